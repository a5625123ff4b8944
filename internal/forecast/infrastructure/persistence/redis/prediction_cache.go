// Package redis 即将到来预测的 Redis 缓存与推送
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/pkg/cache"
)

const (
	upcomingKeyPrefix = "forecast:upcoming:"
	// GeneratedChannel 新预测推送频道
	GeneratedChannel = "forecast:predictions"
)

// predictionCache 实现 domain.PredictionCache
type predictionCache struct {
	cache *cache.RedisCache
	ttl   time.Duration
	loc   *time.Location
}

// NewPredictionCache 创建预测缓存
func NewPredictionCache(c *cache.RedisCache, ttl time.Duration, loc *time.Location) domain.PredictionCache {
	if loc == nil {
		loc = time.Local
	}
	return &predictionCache{cache: c, ttl: ttl, loc: loc}
}

func upcomingKey(from time.Time) string {
	return fmt.Sprintf("%s%d", upcomingKeyPrefix, from.Unix())
}

func (c *predictionCache) GetUpcoming(ctx context.Context, from time.Time) ([]*domain.Prediction, bool, error) {
	var preds []*domain.Prediction
	found, err := c.cache.GetJSON(ctx, upcomingKey(from), &preds)
	if err != nil || !found {
		return nil, false, err
	}
	for _, p := range preds {
		c.restoreLocation(p)
	}
	return preds, true, nil
}

func (c *predictionCache) SetUpcoming(ctx context.Context, from time.Time, preds []*domain.Prediction) error {
	return c.cache.SetJSON(ctx, upcomingKey(from), preds, c.ttl)
}

func (c *predictionCache) Invalidate(ctx context.Context) error {
	_, err := c.cache.DeleteByPattern(ctx, upcomingKeyPrefix+"*")
	return err
}

// GeneratedMessage 推送到 GeneratedChannel 的消息体
type GeneratedMessage struct {
	PredictionID          uint   `json:"prediction_id"`
	PredictionFor         string `json:"prediction_for"`
	Hour                  int    `json:"hour"`
	TotalPredictedOrders  int64  `json:"total_predicted_orders"`
	TotalPredictedRevenue string `json:"total_predicted_revenue"`
	ItemCount             int    `json:"item_count"`
}

func newGeneratedMessage(p *domain.Prediction) GeneratedMessage {
	return GeneratedMessage{
		PredictionID:          p.ID,
		PredictionFor:         p.PredictionFor.Format(domain.DateLayout),
		Hour:                  p.Hour,
		TotalPredictedOrders:  p.TotalPredictedOrders,
		TotalPredictedRevenue: p.TotalPredictedRevenue.StringFixed(2),
		ItemCount:             len(p.Items),
	}
}

func (c *predictionCache) PublishGenerated(ctx context.Context, p *domain.Prediction) error {
	return c.cache.PublishJSON(ctx, GeneratedChannel, newGeneratedMessage(p))
}

// JSON 反序列化后时间带的是固定偏移时区，换回业务时区
func (c *predictionCache) restoreLocation(p *domain.Prediction) {
	p.PredictionFor = p.PredictionFor.In(c.loc)
	p.TargetAt = p.TargetAt.In(c.loc)
	p.CreatedAt = p.CreatedAt.In(c.loc)
}

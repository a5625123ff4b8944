package domain

import (
	"context"
	"time"
)

// TrainingMeta 训练元数据（单例）
type TrainingMeta struct {
	LastTrainingAt time.Time
	UpdatedAt      time.Time
}

// BucketRepository 历史桶仓储
type BucketRepository interface {
	// Upsert 按 (date, hour) 覆盖写入
	Upsert(ctx context.Context, buckets []*HistoricalBucket) error
	// FindByDayOfWeekAndHour 查询同星期同小时的全部桶，按日期升序
	FindByDayOfWeekAndHour(ctx context.Context, dow time.Weekday, hour int) ([]*HistoricalBucket, error)
	Count(ctx context.Context) (int64, error)
}

// PredictionRepository 预测仓储
type PredictionRepository interface {
	Create(ctx context.Context, p *Prediction) error
	Exists(ctx context.Context, date time.Time, hour int) (bool, error)
	// Get 不存在时返回 ErrPredictionNotFound
	Get(ctx context.Context, date time.Time, hour int) (*Prediction, error)
	// ListBetween 查询 target_at ∈ [from, to) 的预测，按 target_at 升序
	ListBetween(ctx context.Context, from, to time.Time) ([]*Prediction, error)
	// ListUnscored 查询 target_at ∈ [from, to] 且未评分的预测，最旧优先
	ListUnscored(ctx context.Context, from, to time.Time, limit int) ([]*Prediction, error)
	// SetAccuracy 仅在 accuracy 为空时写入，返回是否写入
	SetAccuracy(ctx context.Context, id uint, accuracy float64) (bool, error)
	// ListScored 查询已评分预测，最新优先；limit <= 0 表示全部
	ListScored(ctx context.Context, limit int) ([]*Prediction, error)
	// DeleteBefore 删除 prediction_for < cutoff 的预测
	DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// TrainingMetaRepository 训练元数据仓储
type TrainingMetaRepository interface {
	// Get 尚未训练过时返回 nil, nil
	Get(ctx context.Context) (*TrainingMeta, error)
	Save(ctx context.Context, meta *TrainingMeta) error
}

// PredictionCache 即将到来的预测缓存，可选
type PredictionCache interface {
	GetUpcoming(ctx context.Context, from time.Time) ([]*Prediction, bool, error)
	SetUpcoming(ctx context.Context, from time.Time, predictions []*Prediction) error
	Invalidate(ctx context.Context) error
	// PublishGenerated 推送新生成的预测给订阅方
	PublishGenerated(ctx context.Context, p *Prediction) error
}

package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/pkg/utils"
)

// AccuracyOptions 准确率回填参数
type AccuracyOptions struct {
	// 目标时间早于 now-MinAge 且不早于 now-MaxAge 的预测才会被评分
	MinAge time.Duration
	MaxAge time.Duration
	// 每轮最多评分数
	BatchSize int
	// 相邻两次评分之间的间隔
	Pace time.Duration
}

// ItemFailure 单条预测处理失败
type ItemFailure struct {
	PredictionID uint
	Err          error
}

// MarshalJSON 错误输出为字符串
func (f ItemFailure) MarshalJSON() ([]byte, error) {
	msg := ""
	if f.Err != nil {
		msg = f.Err.Error()
	}
	return json.Marshal(struct {
		PredictionID uint   `json:"prediction_id"`
		Error        string `json:"error"`
	}{f.PredictionID, msg})
}

// AccuracyResult 一轮回填结果
type AccuracyResult struct {
	Candidates int `json:"candidates"`
	Scored     int `json:"scored"`
	// 已被并发评分而跳过
	Skipped  int           `json:"skipped"`
	Failures []ItemFailure `json:"failures,omitempty"`
}

// AccuracyTracker 用实际订单给过去的预测打分，每条预测只写一次
type AccuracyTracker struct {
	predictions domain.PredictionRepository
	orders      domain.OrderSource
	publisher   domain.EventPublisher
	cfg         AccuracyOptions
	opts        Options
}

// NewAccuracyTracker 创建准确率追踪器
func NewAccuracyTracker(
	predictions domain.PredictionRepository,
	orders domain.OrderSource,
	publisher domain.EventPublisher,
	cfg AccuracyOptions,
	opts Options,
) *AccuracyTracker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &AccuracyTracker{
		predictions: predictions,
		orders:      orders,
		publisher:   publisher,
		cfg:         cfg,
		opts:        opts.withDefaults(),
	}
}

// UpdateAccuracyMetrics 对窗口内未评分的预测逐条评分。单条失败不影响其余预测。
func (t *AccuracyTracker) UpdateAccuracyMetrics(ctx context.Context) (*AccuracyResult, error) {
	now := t.opts.now()
	candidates, err := t.predictions.ListUnscored(ctx, now.Add(-t.cfg.MaxAge), now.Add(-t.cfg.MinAge), t.cfg.BatchSize)
	if err != nil {
		return nil, domain.StoreError("list unscored predictions", err)
	}

	res := &AccuracyResult{Candidates: len(candidates)}
	for i, p := range candidates {
		if i > 0 {
			if err := utils.Sleep(ctx, t.cfg.Pace); err != nil {
				return res, err
			}
		}
		scored, err := t.score(ctx, p)
		switch {
		case err != nil:
			t.opts.Logger.ErrorContext(ctx, "failed to score prediction", "prediction_id", p.ID, "error", err)
			res.Failures = append(res.Failures, ItemFailure{PredictionID: p.ID, Err: err})
		case scored:
			res.Scored++
		default:
			res.Skipped++
		}
	}

	t.opts.Logger.InfoContext(ctx, "accuracy refresh finished",
		"candidates", res.Candidates,
		"scored", res.Scored,
		"skipped", res.Skipped,
		"failed", len(res.Failures),
	)
	return res, nil
}

func (t *AccuracyTracker) score(ctx context.Context, p *domain.Prediction) (bool, error) {
	from, to := p.Window()
	orders, err := t.orders.ListOrdersBetween(ctx, from, to, domain.FulfilledStatuses...)
	if err != nil {
		return false, domain.StoreError("list actual orders", err)
	}
	accuracy := p.ComputeAccuracy(domain.ActualQuantities(orders))

	ok, err := t.predictions.SetAccuracy(ctx, p.ID, accuracy)
	if err != nil {
		return false, domain.StoreError("set accuracy", err)
	}
	if !ok {
		return false, nil
	}

	t.opts.Metrics.RecordAccuracy(accuracy)
	publishEvent(ctx, t.publisher, t.opts.Logger, domain.PredictionScoredEvent{
		BaseEvent:     domain.BaseEvent{Timestamp: t.opts.now()},
		PredictionID:  p.ID,
		PredictionFor: p.PredictionFor.Format(domain.DateLayout),
		Hour:          p.Hour,
		Accuracy:      accuracy,
	})
	t.opts.Logger.DebugContext(ctx, "prediction scored",
		"prediction_id", p.ID,
		"actual_orders", len(orders),
		"accuracy", accuracy,
	)
	return true, nil
}

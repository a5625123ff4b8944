package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/menuforecast/internal/forecast/application"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/pkg/utils"
)

// GenerationResult 每小时生成结果
type GenerationResult struct {
	Created  int `json:"created"`
	Existing int `json:"existing"`
	Failed   int `json:"failed"`
}

// TrainingResult 夜间训练结果
type TrainingResult struct {
	NewOrders int64 `json:"new_orders"`
	Buckets   int   `json:"buckets"`
	Trained   bool  `json:"trained"`
}

// CleanupResult 清理结果
type CleanupResult struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

// HealthResult 健康检查结果
type HealthResult struct {
	Upcoming  int  `json:"upcoming"`
	Triggered bool `json:"triggered"`
	Serving   bool `json:"serving"`
}

// RunHourlyGeneration 为未来 1..HorizonHours 小时逐个生成预测，已存在的跳过，单个失败不影响后续。
// 与 HTTP 手动生成共用 Generator 的按目标锁。
func (s *Scheduler) RunHourlyGeneration(ctx context.Context) (*GenerationResult, error) {
	res := &GenerationResult{}
	err := s.execute(ctx, JobHourlyGeneration, true, func(ctx context.Context) error {
		base := utils.StartOfHour(s.now())
		for i := 1; i <= s.cfg.HorizonHours; i++ {
			if i > 1 {
				if err := utils.Sleep(ctx, s.cfg.GenerationPace); err != nil {
					return err
				}
			}
			target := base.Add(time.Duration(i) * time.Hour)
			date, hour := domain.StartOfDay(target), target.Hour()
			tag := fmt.Sprintf("%s %02d:00", date.Format(domain.DateLayout), hour)

			_, created, err := s.deps.Generator.EnsurePrediction(ctx, date, hour)
			if err != nil {
				res.Failed++
				s.itemError(ctx, JobHourlyGeneration, tag, err)
				continue
			}
			if !created {
				res.Existing++
				continue
			}
			res.Created++
		}
		s.logger.InfoContext(ctx, "hourly generation finished",
			"created", res.Created,
			"existing", res.Existing,
			"failed", res.Failed,
		)
		return nil
	})
	return res, err
}

// RunNightlyTraining 有新订单时重算历史桶、更新训练时间，并在延迟后触发一次生成
func (s *Scheduler) RunNightlyTraining(ctx context.Context) (*TrainingResult, error) {
	res := &TrainingResult{}
	err := s.execute(ctx, JobNightlyTraining, true, func(ctx context.Context) error {
		startedAt := s.now()
		meta, err := s.deps.Meta.Get(ctx)
		if err != nil {
			return domain.StoreError("get training meta", err)
		}
		var since time.Time
		if meta != nil {
			since = meta.LastTrainingAt
		}

		res.NewOrders, err = s.deps.Orders.CountOrdersSince(ctx, since)
		if err != nil {
			return domain.StoreError("count new orders", err)
		}
		if res.NewOrders == 0 {
			s.logger.InfoContext(ctx, "no new orders since last training", "since", since)
			return nil
		}

		res.Buckets, err = s.deps.Trainer.CollectHistoricalData(ctx, s.cfg.LookbackDays)
		if err != nil {
			return fmt.Errorf("collect historical data: %w", err)
		}
		if res.Buckets == 0 {
			s.logger.InfoContext(ctx, "nothing to train on", "new_orders", res.NewOrders)
			return nil
		}

		if err := s.deps.Meta.Save(ctx, &domain.TrainingMeta{LastTrainingAt: startedAt, UpdatedAt: s.now()}); err != nil {
			return domain.StoreError("save training meta", err)
		}
		res.Trained = true

		s.publish(ctx, domain.TrainingCompletedEvent{
			BaseEvent: domain.BaseEvent{Timestamp: s.now()},
			Buckets:   res.Buckets,
			NewOrders: res.NewOrders,
		})
		s.scheduleRegeneration()
		return nil
	})
	return res, err
}

// RunAccuracyRefresh 对到期未评分的预测打分
func (s *Scheduler) RunAccuracyRefresh(ctx context.Context) (*application.AccuracyResult, error) {
	var res *application.AccuracyResult
	err := s.execute(ctx, JobAccuracyRefresh, true, func(ctx context.Context) error {
		r, err := s.deps.Accuracy.UpdateAccuracyMetrics(ctx)
		res = r
		if r != nil {
			for _, f := range r.Failures {
				s.itemError(ctx, JobAccuracyRefresh, fmt.Sprintf("prediction_id=%d", f.PredictionID), f.Err)
			}
		}
		return err
	})
	return res, err
}

// RunWeeklyCleanup 删除 prediction_for 早于 今天-RetentionDays 的预测
func (s *Scheduler) RunWeeklyCleanup(ctx context.Context) (*CleanupResult, error) {
	res := &CleanupResult{}
	err := s.execute(ctx, JobWeeklyCleanup, false, func(ctx context.Context) error {
		res.Cutoff = domain.StartOfDay(s.now()).AddDate(0, 0, -s.cfg.RetentionDays)
		deleted, err := s.deps.Predictions.DeleteBefore(ctx, res.Cutoff)
		if err != nil {
			return domain.StoreError("delete old predictions", err)
		}
		res.Deleted = deleted

		if s.deps.Cache != nil && deleted > 0 {
			if err := s.deps.Cache.Invalidate(ctx); err != nil {
				s.logger.WarnContext(ctx, "failed to invalidate upcoming cache", "error", err)
			}
		}
		s.publish(ctx, domain.PredictionsPurgedEvent{
			BaseEvent: domain.BaseEvent{Timestamp: s.now()},
			Cutoff:    res.Cutoff.Format(domain.DateLayout),
			Deleted:   deleted,
		})
		s.logger.InfoContext(ctx, "old predictions purged", "cutoff", res.Cutoff, "deleted", deleted)
		return nil
	})
	return res, err
}

// RunHealthCheck 即将到来的预测不足 MinUpcoming 时立即触发一次生成
func (s *Scheduler) RunHealthCheck(ctx context.Context) (*HealthResult, error) {
	res := &HealthResult{}
	err := s.execute(ctx, JobHealthCheck, false, func(ctx context.Context) error {
		count, err := s.deps.Upcoming.CountUpcoming(ctx)
		if err != nil {
			return fmt.Errorf("count upcoming: %w", err)
		}
		res.Upcoming = count
		if count >= s.cfg.MinUpcoming {
			res.Serving = true
			s.setServing(true)
			return nil
		}

		s.logger.WarnContext(ctx, "not enough upcoming predictions, triggering generation",
			"upcoming", count,
			"min", s.cfg.MinUpcoming,
		)
		res.Triggered = true
		if _, err := s.RunHourlyGeneration(ctx); err != nil && !errors.Is(err, ErrJobInProgress) {
			s.setServing(false)
			return fmt.Errorf("triggered generation: %w", err)
		}

		count, err = s.deps.Upcoming.CountUpcoming(ctx)
		if err != nil {
			return fmt.Errorf("recount upcoming: %w", err)
		}
		res.Upcoming = count
		res.Serving = count >= s.cfg.MinUpcoming
		s.setServing(res.Serving)
		return nil
	})
	return res, err
}

func (s *Scheduler) setServing(serving bool) {
	if s.deps.Health != nil {
		s.deps.Health.SetServing(serving)
	}
}

func (s *Scheduler) publish(ctx context.Context, event domain.ForecastEvent) {
	if s.deps.Publisher == nil {
		return
	}
	if err := s.deps.Publisher.Publish(ctx, event); err != nil {
		s.logger.WarnContext(ctx, "failed to publish event", "event", event.EventType(), "error", err)
	}
}

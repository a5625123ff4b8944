package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/wyfcoding/menuforecast/internal/forecast/application"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/pkg/metrics"
)

// PredictionGenerator 目标没有预测时生成一条，created 表示是否新建
type PredictionGenerator interface {
	EnsurePrediction(ctx context.Context, date time.Time, hour int) (*domain.Prediction, bool, error)
}

// Trainer 重算历史桶
type Trainer interface {
	CollectHistoricalData(ctx context.Context, lookbackDays int) (int, error)
}

// AccuracyUpdater 准确率回填
type AccuracyUpdater interface {
	UpdateAccuracyMetrics(ctx context.Context) (*application.AccuracyResult, error)
}

// UpcomingCounter 统计即将到来窗口内的预测数
type UpcomingCounter interface {
	CountUpcoming(ctx context.Context) (int, error)
}

// HealthReporter 对外暴露服务健康状态
type HealthReporter interface {
	SetServing(serving bool)
}

// Config 调度参数
type Config struct {
	Location             *time.Location
	LookbackDays         int
	HorizonHours         int
	RetentionDays        int
	MinUpcoming          int
	GenerationPace       time.Duration
	RetrainGenerateDelay time.Duration
	// 任务 cron 表达式（5 段），为空的任务不注册，仍可手动触发
	Specs map[JobName]string
	// 时钟与延时执行，测试中注入
	Now       func() time.Time
	AfterFunc func(d time.Duration, f func()) Timer
}

// Timer 延时任务句柄，*time.Timer 满足
type Timer interface {
	Stop() bool
}

// Deps 调度依赖。Cache、Publisher、Health、Metrics 可为 nil。
type Deps struct {
	Generator   PredictionGenerator
	Trainer     Trainer
	Accuracy    AccuracyUpdater
	Upcoming    UpcomingCounter
	Predictions domain.PredictionRepository
	Orders      domain.OrderSource
	Meta        domain.TrainingMetaRepository
	Cache       domain.PredictionCache
	Publisher   domain.EventPublisher
	Health      HealthReporter
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// Scheduler 进程内定时任务调度器
type Scheduler struct {
	cfg    Config
	deps   Deps
	state  *State
	cron   *cron.Cron
	logger *slog.Logger

	mu      sync.RWMutex
	baseCtx context.Context

	// 训练后延时生成的定时器，Stop 时取消
	timerMu sync.Mutex
	pending Timer
	stopped bool
}

// New 创建调度器并注册 cron 任务
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AfterFunc == nil {
		cfg.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	logger := deps.Logger.With("component", "scheduler")

	s := &Scheduler{
		cfg:     cfg,
		deps:    deps,
		state:   NewState(cfg.Now()),
		logger:  logger,
		baseCtx: context.Background(),
		cron: cron.New(
			cron.WithLocation(cfg.Location),
			cron.WithChain(cron.Recover(cronLogger{logger: logger})),
			cron.WithLogger(cronLogger{logger: logger}),
		),
	}

	jobs := map[JobName]func(context.Context){
		JobHourlyGeneration: func(ctx context.Context) { _, _ = s.RunHourlyGeneration(ctx) },
		JobNightlyTraining:  func(ctx context.Context) { _, _ = s.RunNightlyTraining(ctx) },
		JobAccuracyRefresh:  func(ctx context.Context) { _, _ = s.RunAccuracyRefresh(ctx) },
		JobWeeklyCleanup:    func(ctx context.Context) { _, _ = s.RunWeeklyCleanup(ctx) },
		JobHealthCheck:      func(ctx context.Context) { _, _ = s.RunHealthCheck(ctx) },
	}
	for _, name := range AllJobs {
		spec := cfg.Specs[name]
		if spec == "" {
			continue
		}
		run := jobs[name]
		if _, err := s.cron.AddFunc(spec, func() { run(s.baseContext()) }); err != nil {
			return nil, fmt.Errorf("failed to schedule %s with %q: %w", name, spec, err)
		}
		logger.Info("job scheduled", "job", name, "spec", spec, "timezone", cfg.Location.String())
	}
	return s, nil
}

// Start 启动 cron，ctx 作为定时触发任务的上下文
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()
	s.cron.Start()
	s.logger.InfoContext(ctx, "scheduler started", "entries", len(s.cron.Entries()))
}

// Stop 停止 cron 并等待运行中的任务结束，同时取消尚未触发的延时生成
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	defer s.cancelPending()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler stop: %w", ctx.Err())
	}
}

// scheduleRegeneration 训练完成后延时触发一次生成，已有未触发的定时器时重置
func (s *Scheduler) scheduleRegeneration() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	if s.stopped {
		return
	}
	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = s.cfg.AfterFunc(s.cfg.RetrainGenerateDelay, func() {
		ctx := s.baseContext()
		if _, err := s.RunHourlyGeneration(ctx); err != nil && !errors.Is(err, ErrJobInProgress) {
			s.logger.ErrorContext(ctx, "post-training generation failed", "error", err)
		}
	})
}

func (s *Scheduler) cancelPending() {
	s.timerMu.Lock()
	defer s.timerMu.Unlock()
	s.stopped = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

// GetStats 返回任务统计快照
func (s *Scheduler) GetStats() StatsSnapshot {
	return s.state.Snapshot()
}

// RunJob 按名称立即执行一次任务
func (s *Scheduler) RunJob(ctx context.Context, name JobName) (any, error) {
	switch name {
	case JobHourlyGeneration:
		return s.RunHourlyGeneration(ctx)
	case JobNightlyTraining:
		return s.RunNightlyTraining(ctx)
	case JobAccuracyRefresh:
		return s.RunAccuracyRefresh(ctx)
	case JobWeeklyCleanup:
		return s.RunWeeklyCleanup(ctx)
	case JobHealthCheck:
		return s.RunHealthCheck(ctx)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
}

func (s *Scheduler) baseContext() context.Context {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.baseCtx
}

func (s *Scheduler) now() time.Time {
	return s.cfg.Now().In(s.cfg.Location)
}

// execute 统一的任务执行包装：guard、panic 恢复、统计与指标。
// guarded 为 false 的任务允许并发执行。
func (s *Scheduler) execute(ctx context.Context, name JobName, guarded bool, fn func(context.Context) error) (err error) {
	if guarded {
		g := s.state.guard(name)
		if !g.TryAcquire() {
			s.state.recordSkip(name)
			s.deps.Metrics.RecordJob(string(name), "skipped", 0)
			s.logger.InfoContext(ctx, "job already in progress, skipping", "job", name)
			return ErrJobInProgress
		}
		defer g.Release()
	}

	start := s.now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
		d := s.now().Sub(start)
		s.state.recordRun(name, start, d, err)
		status := "success"
		if err != nil {
			status = "failure"
			s.logger.ErrorContext(ctx, "job failed", "job", name, "duration", d, "error", err)
		} else {
			s.logger.InfoContext(ctx, "job finished", "job", name, "duration", d)
		}
		s.deps.Metrics.RecordJob(string(name), status, d)
	}()

	s.logger.DebugContext(ctx, "job started", "job", name)
	return fn(ctx)
}

// itemError 记录循环中的单项失败并继续
func (s *Scheduler) itemError(ctx context.Context, name JobName, tag string, err error) {
	s.state.recordItemError(name, tag, s.now(), err)
	s.logger.ErrorContext(ctx, "job item failed", "job", name, "item", tag, "error", err)
}

// cronLogger 把 cron 的日志接到 slog
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}

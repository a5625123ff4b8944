package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/menuforecast/internal/forecast/application"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/internal/forecast/infrastructure/persistence/memory"
)

var testNow = time.Date(2026, 5, 4, 10, 5, 0, 0, time.UTC)

// fakeGenerator 写入内存仓储，failHours 中的小时返回错误
type fakeGenerator struct {
	mu        sync.Mutex
	repo      *memory.PredictionRepository
	failHours map[int]bool
	calls     []int
	block     chan struct{}
	started   chan struct{}
	panicOn   int
}

func (g *fakeGenerator) EnsurePrediction(ctx context.Context, date time.Time, hour int) (*domain.Prediction, bool, error) {
	existing, err := g.repo.Get(ctx, date, hour)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrPredictionNotFound) {
		return nil, false, err
	}

	g.mu.Lock()
	g.calls = append(g.calls, hour)
	g.mu.Unlock()
	if g.started != nil {
		g.started <- struct{}{}
		g.started = nil
	}
	if g.block != nil {
		<-g.block
	}
	if g.panicOn != 0 && hour == g.panicOn {
		panic("boom")
	}
	if g.failHours[hour] {
		return nil, false, &domain.InsufficientDataError{DayOfWeek: date.Weekday(), Hour: hour}
	}
	p := &domain.Prediction{PredictionFor: domain.StartOfDay(date), Hour: hour, TargetAt: domain.TargetTime(date, hour)}
	return p, true, g.repo.Create(ctx, p)
}

func (g *fakeGenerator) Calls() []int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]int(nil), g.calls...)
}

type fakeTrainer struct {
	buckets int
	calls   int
}

func (t *fakeTrainer) CollectHistoricalData(context.Context, int) (int, error) {
	t.calls++
	return t.buckets, nil
}

type fakeAccuracy struct {
	res *application.AccuracyResult
	err error
}

func (a *fakeAccuracy) UpdateAccuracyMetrics(context.Context) (*application.AccuracyResult, error) {
	return a.res, a.err
}

type fakeHealth struct {
	serving []bool
}

func (h *fakeHealth) SetServing(serving bool) { h.serving = append(h.serving, serving) }

// fakeTimer 记录是否被取消
type fakeTimer struct {
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type harness struct {
	sched   *Scheduler
	preds   *memory.PredictionRepository
	orders  *memory.OrderStore
	meta    *memory.TrainingMetaRepository
	gen     *fakeGenerator
	trainer *fakeTrainer
	health  *fakeHealth
	delayed []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		preds:   memory.NewPredictionRepository(),
		orders:  memory.NewOrderStore(),
		meta:    memory.NewTrainingMetaRepository(),
		trainer: &fakeTrainer{buckets: 12},
		health:  &fakeHealth{},
	}
	h.gen = &fakeGenerator{repo: h.preds, failHours: map[int]bool{}}
	query := application.NewQueryService(h.preds, nil, nil, 6*time.Hour, application.Options{
		Location: time.UTC,
		Now:      func() time.Time { return testNow },
	})

	sched, err := New(Config{
		Location:             time.UTC,
		LookbackDays:         90,
		HorizonHours:         6,
		RetentionDays:        30,
		MinUpcoming:          3,
		RetrainGenerateDelay: 5 * time.Second,
		Now:                  func() time.Time { return testNow },
		AfterFunc: func(d time.Duration, f func()) Timer {
			h.delayed = append(h.delayed, d)
			f()
			return &fakeTimer{}
		},
	}, Deps{
		Generator:   h.gen,
		Trainer:     h.trainer,
		Accuracy:    &fakeAccuracy{res: &application.AccuracyResult{}},
		Upcoming:    query,
		Predictions: h.preds,
		Orders:      h.orders,
		Meta:        h.meta,
		Health:      h.health,
	})
	require.NoError(t, err)
	h.sched = sched
	return h
}

func (h *harness) seedPrediction(t *testing.T, target time.Time) {
	t.Helper()
	require.NoError(t, h.preds.Create(context.Background(), &domain.Prediction{
		PredictionFor: domain.StartOfDay(target),
		Hour:          target.Hour(),
		TargetAt:      target,
	}))
}

func TestJobGuard(t *testing.T) {
	var g jobGuard
	assert.True(t, g.TryAcquire())
	assert.False(t, g.TryAcquire())
	assert.True(t, g.Running())
	g.Release()
	assert.False(t, g.Running())
	assert.True(t, g.TryAcquire())
}

func TestHourlyGeneration_SkipsExistingAndContinuesOnFailure(t *testing.T) {
	h := newHarness(t)
	h.seedPrediction(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))
	h.gen.failHours[13] = true

	res, err := h.sched.RunHourlyGeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &GenerationResult{Created: 4, Existing: 1, Failed: 1}, res)
	assert.Equal(t, []int{11, 13, 14, 15, 16}, h.gen.Calls())

	stats := h.sched.GetStats().Jobs[JobHourlyGeneration]
	assert.Equal(t, int64(1), stats.Runs)
	assert.Zero(t, stats.Failures)
	assert.Contains(t, stats.LastError, "insufficient")
	assert.Equal(t, "2026-05-04 13:00", stats.LastErrorContext)

	// 再跑一次全部已存在，只有失败的小时会重试
	res, err = h.sched.RunHourlyGeneration(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, res.Existing)
	assert.Equal(t, 1, res.Failed)
}

func TestHourlyGeneration_SkipsWhenAlreadyRunning(t *testing.T) {
	h := newHarness(t)
	h.gen.block = make(chan struct{})
	h.gen.started = make(chan struct{})
	started := h.gen.started

	done := make(chan error, 1)
	go func() {
		_, err := h.sched.RunHourlyGeneration(context.Background())
		done <- err
	}()
	<-started

	_, err := h.sched.RunHourlyGeneration(context.Background())
	assert.ErrorIs(t, err, ErrJobInProgress)
	assert.True(t, h.sched.GetStats().Jobs[JobHourlyGeneration].Running)

	// 其他任务不受影响
	_, err = h.sched.RunWeeklyCleanup(context.Background())
	assert.NoError(t, err)

	close(h.gen.block)
	require.NoError(t, <-done)

	stats := h.sched.GetStats().Jobs[JobHourlyGeneration]
	assert.Equal(t, int64(1), stats.Skips)
	assert.Equal(t, int64(1), stats.Runs)
	assert.False(t, stats.Running)
}

func TestHourlyGeneration_ReleasesGuardAfterPanic(t *testing.T) {
	h := newHarness(t)
	h.gen.panicOn = 11

	_, err := h.sched.RunHourlyGeneration(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
	assert.Equal(t, int64(1), h.sched.GetStats().Jobs[JobHourlyGeneration].Failures)

	h.gen.panicOn = 0
	_, err = h.sched.RunHourlyGeneration(context.Background())
	assert.NoError(t, err)
}

func TestNightlyTraining_NoNewOrders(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.meta.Save(context.Background(), &domain.TrainingMeta{LastTrainingAt: testNow.Add(-24 * time.Hour)}))
	h.orders.Add(&domain.Order{ID: "old", CreatedAt: testNow.Add(-48 * time.Hour)})

	res, err := h.sched.RunNightlyTraining(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Trained)
	assert.Zero(t, h.trainer.calls)
	assert.Empty(t, h.delayed)
}

func TestNightlyTraining_TrainsAndSchedulesGeneration(t *testing.T) {
	h := newHarness(t)
	h.orders.Add(&domain.Order{ID: "new", CreatedAt: testNow.Add(-time.Hour)})

	res, err := h.sched.RunNightlyTraining(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Trained)
	assert.Equal(t, int64(1), res.NewOrders)
	assert.Equal(t, 12, res.Buckets)

	meta, err := h.meta.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta)
	assert.Equal(t, testNow, meta.LastTrainingAt)

	assert.Equal(t, []time.Duration{5 * time.Second}, h.delayed)
	assert.Len(t, h.gen.Calls(), 6)
}

func TestStopCancelsPendingRegeneration(t *testing.T) {
	h := newHarness(t)
	var timers []*fakeTimer
	h.sched.cfg.AfterFunc = func(d time.Duration, _ func()) Timer {
		h.delayed = append(h.delayed, d)
		tm := &fakeTimer{}
		timers = append(timers, tm)
		return tm
	}
	h.orders.Add(&domain.Order{ID: "new", CreatedAt: testNow.Add(-time.Hour)})

	_, err := h.sched.RunNightlyTraining(context.Background())
	require.NoError(t, err)
	require.Len(t, timers, 1)
	assert.False(t, timers[0].stopped)

	// 再次训练时重置定时器
	h.orders.Add(&domain.Order{ID: "newer", CreatedAt: testNow.Add(time.Minute)})
	_, err = h.sched.RunNightlyTraining(context.Background())
	require.NoError(t, err)
	require.Len(t, timers, 2)
	assert.True(t, timers[0].stopped)

	require.NoError(t, h.sched.Stop(context.Background()))
	assert.True(t, timers[1].stopped)
	assert.Empty(t, h.gen.Calls())

	// 停止后不再安排新的延时生成
	res, err := h.sched.RunNightlyTraining(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Trained)
	assert.Len(t, timers, 2)
}

func TestNightlyTraining_ZeroBucketsLeavesMetaUntouched(t *testing.T) {
	h := newHarness(t)
	h.trainer.buckets = 0
	h.orders.Add(&domain.Order{ID: "new", CreatedAt: testNow.Add(-time.Hour)})

	res, err := h.sched.RunNightlyTraining(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Trained)
	meta, err := h.meta.Get(context.Background())
	require.NoError(t, err)
	assert.Nil(t, meta)
}

func TestWeeklyCleanup_RetentionBoundary(t *testing.T) {
	h := newHarness(t)
	today := domain.StartOfDay(testNow)
	h.seedPrediction(t, today.AddDate(0, 0, -31).Add(12*time.Hour))
	h.seedPrediction(t, today.AddDate(0, 0, -29).Add(12*time.Hour))

	res, err := h.sched.RunWeeklyCleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Deleted)
	assert.Equal(t, today.AddDate(0, 0, -30), res.Cutoff)

	exists, err := h.preds.Exists(context.Background(), today.AddDate(0, 0, -31), 12)
	require.NoError(t, err)
	assert.False(t, exists)
	exists, err = h.preds.Exists(context.Background(), today.AddDate(0, 0, -29), 12)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestHealthCheck_TriggersGenerationWhenTooFew(t *testing.T) {
	h := newHarness(t)
	h.seedPrediction(t, time.Date(2026, 5, 4, 11, 0, 0, 0, time.UTC))
	h.seedPrediction(t, time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC))

	res, err := h.sched.RunHealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Triggered)
	assert.Equal(t, 6, res.Upcoming)
	assert.True(t, res.Serving)
	assert.Equal(t, []int{13, 14, 15, 16}, h.gen.Calls())
	assert.Equal(t, []bool{true}, h.health.serving)
}

func TestHealthCheck_DoesNotTriggerWhenEnough(t *testing.T) {
	h := newHarness(t)
	for hour := 11; hour <= 13; hour++ {
		h.seedPrediction(t, time.Date(2026, 5, 4, hour, 0, 0, 0, time.UTC))
	}

	res, err := h.sched.RunHealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, res.Triggered)
	assert.Equal(t, 3, res.Upcoming)
	assert.Empty(t, h.gen.Calls())
	assert.Zero(t, h.sched.GetStats().Jobs[JobHourlyGeneration].Runs)
}

func TestAccuracyRefresh_RecordsItemFailures(t *testing.T) {
	h := newHarness(t)
	h.sched.deps.Accuracy = &fakeAccuracy{res: &application.AccuracyResult{
		Candidates: 2,
		Scored:     1,
		Failures:   []application.ItemFailure{{PredictionID: 7, Err: errors.New("timeout")}},
	}}

	res, err := h.sched.RunAccuracyRefresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Scored)

	stats := h.sched.GetStats().Jobs[JobAccuracyRefresh]
	assert.Equal(t, "prediction_id=7", stats.LastErrorContext)
	assert.Equal(t, "timeout", stats.LastError)
}

func TestAccuracyRefresh_TopLevelFailureIsRecorded(t *testing.T) {
	h := newHarness(t)
	h.sched.deps.Accuracy = &fakeAccuracy{err: &domain.TransientStoreError{Op: "list", Err: errors.New("db down")}}

	_, err := h.sched.RunAccuracyRefresh(context.Background())
	require.Error(t, err)

	stats := h.sched.GetStats().Jobs[JobAccuracyRefresh]
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, string(JobAccuracyRefresh), stats.LastErrorContext)
	assert.False(t, stats.Running)

	// guard 已释放
	h.sched.deps.Accuracy = &fakeAccuracy{res: &application.AccuracyResult{}}
	_, err = h.sched.RunAccuracyRefresh(context.Background())
	assert.NoError(t, err)
}

func TestRunJob(t *testing.T) {
	h := newHarness(t)
	out, err := h.sched.RunJob(context.Background(), JobWeeklyCleanup)
	require.NoError(t, err)
	assert.IsType(t, &CleanupResult{}, out)

	_, err = h.sched.RunJob(context.Background(), JobName("reindex"))
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New(Config{Specs: map[JobName]string{JobHealthCheck: "every six hours"}}, Deps{})
	assert.Error(t, err)
}

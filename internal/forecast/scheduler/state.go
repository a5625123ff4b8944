// Package scheduler 进程内定时任务：每小时生成、夜间训练、准确率回填、每周清理、健康检查
package scheduler

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// JobName 任务名
type JobName string

const (
	JobHourlyGeneration JobName = "hourly_generation"
	JobNightlyTraining  JobName = "nightly_training"
	JobAccuracyRefresh  JobName = "accuracy_refresh"
	JobWeeklyCleanup    JobName = "weekly_cleanup"
	JobHealthCheck      JobName = "health_check"
)

// AllJobs 全部任务
var AllJobs = []JobName{
	JobHourlyGeneration,
	JobNightlyTraining,
	JobAccuracyRefresh,
	JobWeeklyCleanup,
	JobHealthCheck,
}

// ErrJobInProgress 同类任务正在运行，本次跳过
var ErrJobInProgress = errors.New("job already in progress")

// ErrUnknownJob 未知任务名
var ErrUnknownJob = errors.New("unknown job")

const (
	jobIdle int32 = iota
	jobRunning
)

// jobGuard 单个任务的 Idle/Running 状态机
type jobGuard struct {
	state atomic.Int32
}

// TryAcquire Idle -> Running，已在运行返回 false
func (g *jobGuard) TryAcquire() bool {
	return g.state.CompareAndSwap(jobIdle, jobRunning)
}

// Release Running -> Idle
func (g *jobGuard) Release() {
	g.state.Store(jobIdle)
}

// Running 是否在运行
func (g *jobGuard) Running() bool {
	return g.state.Load() == jobRunning
}

// JobStats 单个任务的运行统计
type JobStats struct {
	Runs         int64         `json:"runs"`
	Skips        int64         `json:"skips"`
	Failures     int64         `json:"failures"`
	Running      bool          `json:"running"`
	LastRun      time.Time     `json:"last_run,omitempty"`
	LastDuration time.Duration `json:"last_duration"`
	// 最近一次错误及其上下文标签
	LastError        string    `json:"last_error,omitempty"`
	LastErrorContext string    `json:"last_error_context,omitempty"`
	LastErrorAt      time.Time `json:"last_error_at,omitempty"`
}

// StatsSnapshot 统计快照
type StatsSnapshot struct {
	StartedAt time.Time            `json:"started_at"`
	Jobs      map[JobName]JobStats `json:"jobs"`
}

// State 调度器共享状态：每个任务一个 guard，加一份统计。不持久化。
type State struct {
	guards    map[JobName]*jobGuard
	mu        sync.RWMutex
	stats     map[JobName]*JobStats
	startedAt time.Time
}

// NewState 创建调度器状态
func NewState(now time.Time) *State {
	s := &State{
		guards:    make(map[JobName]*jobGuard, len(AllJobs)),
		stats:     make(map[JobName]*JobStats, len(AllJobs)),
		startedAt: now,
	}
	for _, name := range AllJobs {
		s.guards[name] = &jobGuard{}
		s.stats[name] = &JobStats{}
	}
	return s
}

func (s *State) guard(name JobName) *jobGuard {
	return s.guards[name]
}

func (s *State) recordRun(name JobName, startedAt time.Time, d time.Duration, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[name]
	st.Runs++
	st.LastRun = startedAt
	st.LastDuration = d
	if err != nil {
		st.Failures++
		st.LastError = err.Error()
		st.LastErrorContext = string(name)
		st.LastErrorAt = startedAt.Add(d)
	}
}

func (s *State) recordSkip(name JobName) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats[name].Skips++
}

// recordItemError 记录循环内单项失败，不计入任务失败次数
func (s *State) recordItemError(name JobName, tag string, at time.Time, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.stats[name]
	st.LastError = err.Error()
	st.LastErrorContext = tag
	st.LastErrorAt = at
}

// Snapshot 返回统计副本
func (s *State) Snapshot() StatsSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := StatsSnapshot{
		StartedAt: s.startedAt,
		Jobs:      make(map[JobName]JobStats, len(s.stats)),
	}
	for name, st := range s.stats {
		c := *st
		c.Running = s.guards[name].Running()
		snap.Jobs[name] = c
	}
	return snap
}

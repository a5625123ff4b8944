// Package ratelimit 提供限流器抽象，分布式实现基于 redis_rate，单机实现基于 x/time/rate
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

// RateLimiter 限流器接口
type RateLimiter interface {
	// Allow 判断 key 在 limit 规则下是否放行
	Allow(ctx context.Context, key string, limit Limit) (*Result, error)
}

// Limit 限流规则
type Limit struct {
	Rate   int
	Period time.Duration
	Burst  int
}

// Result 限流结果
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// RedisRateLimiter 基于 Redis GCRA 的限流器
type RedisRateLimiter struct {
	limiter *redis_rate.Limiter
}

// NewRedisRateLimiter 创建 Redis 限流器
func NewRedisRateLimiter(rdb *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{
		limiter: redis_rate.NewLimiter(rdb),
	}
}

// Allow 实现 RateLimiter
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit Limit) (*Result, error) {
	res, err := r.limiter.Allow(ctx, key, redis_rate.Limit{
		Rate:   limit.Rate,
		Period: limit.Period,
		Burst:  limit.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	return &Result{
		Allowed:    res.Allowed > 0,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}

// LocalRateLimiter 单进程按 key 令牌桶，未配置 Redis 时使用
// 空闲超过 idleTTL 的 key 在后续调用中被回收
type LocalRateLimiter struct {
	mu        sync.Mutex
	entries   map[string]*localEntry
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type localEntry struct {
	limiter  *rate.Limiter
	limit    Limit
	lastSeen time.Time
}

// NewLocalRateLimiter 创建内存限流器，idleTTL <= 0 时取 10 分钟
func NewLocalRateLimiter(idleTTL time.Duration) *LocalRateLimiter {
	if idleTTL <= 0 {
		idleTTL = 10 * time.Minute
	}
	return &LocalRateLimiter{
		entries: make(map[string]*localEntry),
		idleTTL: idleTTL,
		now:     time.Now,
	}
}

// Allow 实现 RateLimiter
func (l *LocalRateLimiter) Allow(_ context.Context, key string, limit Limit) (*Result, error) {
	if limit.Rate <= 0 || limit.Period <= 0 {
		return nil, fmt.Errorf("invalid limit: rate=%d period=%s", limit.Rate, limit.Period)
	}
	perSecond := rate.Limit(float64(limit.Rate) / limit.Period.Seconds())
	burst := max(limit.Burst, 1)

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	e, ok := l.entries[key]
	if !ok || e.limit != limit {
		e = &localEntry{limiter: rate.NewLimiter(perSecond, burst), limit: limit}
		l.entries[key] = e
	}
	e.lastSeen = now

	r := e.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		return &Result{
			Allowed:    false,
			ResetAfter: fullAfter(e.limiter, now, burst, perSecond),
			RetryAfter: delay,
		}, nil
	}
	return &Result{
		Allowed:    true,
		Remaining:  int(e.limiter.TokensAt(now)),
		ResetAfter: fullAfter(e.limiter, now, burst, perSecond),
	}, nil
}

// Len 当前保留的 key 数
func (l *LocalRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// sweep 至多每 idleTTL 扫描一次，调用方持有锁
func (l *LocalRateLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	for key, e := range l.entries {
		if now.Sub(e.lastSeen) >= l.idleTTL {
			delete(l.entries, key)
		}
	}
}

// fullAfter 令牌桶回满所需时间
func fullAfter(lim *rate.Limiter, now time.Time, burst int, perSecond rate.Limit) time.Duration {
	missing := float64(burst) - lim.TokensAt(now)
	if missing <= 0 {
		return 0
	}
	return time.Duration(missing / float64(perSecond) * float64(time.Second))
}

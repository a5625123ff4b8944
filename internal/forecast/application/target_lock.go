package application

import (
	"sync"

	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
)

// targetLocks 按 (日期, 小时) 加锁，无人持有的条目随即释放
type targetLocks struct {
	mu    sync.Mutex
	locks map[domain.BucketKey]*targetLock
}

type targetLock struct {
	mu      sync.Mutex
	waiters int
}

func newTargetLocks() *targetLocks {
	return &targetLocks{locks: make(map[domain.BucketKey]*targetLock)}
}

// lock 返回解锁函数
func (t *targetLocks) lock(key domain.BucketKey) func() {
	t.mu.Lock()
	l, ok := t.locks[key]
	if !ok {
		l = &targetLock{}
		t.locks[key] = l
	}
	l.waiters++
	t.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		t.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(t.locks, key)
		}
		t.mu.Unlock()
	}
}

func (t *targetLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

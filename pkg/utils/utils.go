// Package utils 提供可中断等待、整点截断与指针解引用
package utils

import (
	"context"
	"time"
)

// Sleep 可被 ctx 中断的等待，d <= 0 时立即返回
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// StartOfHour 返回 t 所在整点
func StartOfHour(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, t.Hour(), 0, 0, 0, t.Location())
}

// DerefFloat64 解引用，nil 返回 0
func DerefFloat64(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

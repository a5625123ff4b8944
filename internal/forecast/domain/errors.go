package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInsufficientData 没有可用的同星期同小时历史桶
	ErrInsufficientData = errors.New("insufficient historical data")
	// ErrPredictionNotFound 预测不存在
	ErrPredictionNotFound = errors.New("prediction not found")
	// ErrMenuItemNotFound 菜品不存在
	ErrMenuItemNotFound = errors.New("menu item not found")
	// ErrAlreadyScored 预测已评分，accuracy 只允许写一次
	ErrAlreadyScored = errors.New("prediction already scored")
)

// InsufficientDataError 指定 (星期, 小时) 下没有历史桶
type InsufficientDataError struct {
	DayOfWeek time.Weekday
	Hour      int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient historical data for %s hour %d", e.DayOfWeek, e.Hour)
}

// Is 使 errors.Is(err, ErrInsufficientData) 成立
func (e *InsufficientDataError) Is(target error) bool {
	return target == ErrInsufficientData
}

// ValidationError 调用方传入的目标日期/小时不合法，在访问存储之前返回
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// TransientStoreError 读写历史桶/预测存储失败
type TransientStoreError struct {
	Op  string
	Err error
}

func (e *TransientStoreError) Error() string {
	return fmt.Sprintf("store %s failed: %v", e.Op, e.Err)
}

func (e *TransientStoreError) Unwrap() error {
	return e.Err
}

// StoreError 包装存储错误，err 为 nil 时返回 nil；已是领域错误的原样返回
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPredictionNotFound) || errors.Is(err, ErrMenuItemNotFound) {
		return err
	}
	var tse *TransientStoreError
	if errors.As(err, &tse) {
		return err
	}
	return &TransientStoreError{Op: op, Err: err}
}

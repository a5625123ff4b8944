package domain

import (
	"context"
	"time"
)

// 事件类型
const (
	EventPredictionGenerated = "PredictionGenerated"
	EventPredictionScored    = "PredictionScored"
	EventTrainingCompleted   = "TrainingCompleted"
	EventPredictionsPurged   = "PredictionsPurged"
)

// ForecastEvent 预测领域事件接口
type ForecastEvent interface {
	EventType() string
	OccurredAt() time.Time
	// PartitionKey 决定消息分区
	PartitionKey() string
}

type BaseEvent struct {
	Timestamp time.Time `json:"timestamp"`
}

func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// PredictionGeneratedEvent 预测生成事件
type PredictionGeneratedEvent struct {
	BaseEvent
	PredictionID          uint    `json:"prediction_id"`
	PredictionFor         string  `json:"prediction_for"`
	Hour                  int     `json:"hour"`
	ItemCount             int     `json:"item_count"`
	TotalPredictedOrders  int64   `json:"total_predicted_orders"`
	TotalPredictedRevenue string  `json:"total_predicted_revenue"`
	WeatherCondition      string  `json:"weather_condition"`
	Temperature           float64 `json:"temperature"`
}

func (e PredictionGeneratedEvent) EventType() string    { return EventPredictionGenerated }
func (e PredictionGeneratedEvent) PartitionKey() string { return e.PredictionFor }

// PredictionScoredEvent 预测评分事件
type PredictionScoredEvent struct {
	BaseEvent
	PredictionID  uint    `json:"prediction_id"`
	PredictionFor string  `json:"prediction_for"`
	Hour          int     `json:"hour"`
	Accuracy      float64 `json:"accuracy"`
}

func (e PredictionScoredEvent) EventType() string    { return EventPredictionScored }
func (e PredictionScoredEvent) PartitionKey() string { return e.PredictionFor }

// TrainingCompletedEvent 训练完成事件
type TrainingCompletedEvent struct {
	BaseEvent
	Buckets   int   `json:"buckets"`
	NewOrders int64 `json:"new_orders"`
}

func (e TrainingCompletedEvent) EventType() string    { return EventTrainingCompleted }
func (e TrainingCompletedEvent) PartitionKey() string { return "training" }

// PredictionsPurgedEvent 过期预测清理事件
type PredictionsPurgedEvent struct {
	BaseEvent
	Cutoff  string `json:"cutoff"`
	Deleted int64  `json:"deleted"`
}

func (e PredictionsPurgedEvent) EventType() string    { return EventPredictionsPurged }
func (e PredictionsPurgedEvent) PartitionKey() string { return "cleanup" }

// EventPublisher 事件发布端口，发布失败不影响业务结果
type EventPublisher interface {
	Publish(ctx context.Context, event ForecastEvent) error
}

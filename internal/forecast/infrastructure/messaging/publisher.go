// Package messaging 预测领域事件发布实现
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/pkg/logger"
)

// 事件类型到 Kafka topic 的映射
var topics = map[string]string{
	domain.EventPredictionGenerated: "forecast.prediction.generated",
	domain.EventPredictionScored:    "forecast.prediction.scored",
	domain.EventTrainingCompleted:   "forecast.training.completed",
	domain.EventPredictionsPurged:   "forecast.predictions.purged",
}

// TopicFor 返回事件对应的 topic
func TopicFor(eventType string) (string, bool) {
	t, ok := topics[eventType]
	return t, ok
}

// Envelope 消息信封
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

func newEnvelope(event domain.ForecastEvent) (*Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:    uuid.NewString(),
		EventType:  event.EventType(),
		OccurredAt: event.OccurredAt(),
		Payload:    payload,
	}, nil
}

// MessageSender 由 mq.KafkaProducer 实现
type MessageSender interface {
	SendMessage(ctx context.Context, topic string, key string, value interface{}) error
}

// KafkaEventPublisher 将事件写入 Kafka
type KafkaEventPublisher struct {
	sender MessageSender
}

// NewKafkaEventPublisher 创建 Kafka 事件发布器
func NewKafkaEventPublisher(sender MessageSender) *KafkaEventPublisher {
	return &KafkaEventPublisher{sender: sender}
}

// Publish 发布单个事件
func (p *KafkaEventPublisher) Publish(ctx context.Context, event domain.ForecastEvent) error {
	topic, ok := TopicFor(event.EventType())
	if !ok {
		return fmt.Errorf("no topic for event type %q", event.EventType())
	}
	env, err := newEnvelope(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	return p.sender.SendMessage(ctx, topic, event.PartitionKey(), env)
}

// LogEventPublisher 未配置 Kafka 时只记录日志
type LogEventPublisher struct{}

// NewLogEventPublisher 创建日志事件发布器
func NewLogEventPublisher() *LogEventPublisher {
	return &LogEventPublisher{}
}

func (p *LogEventPublisher) Publish(ctx context.Context, event domain.ForecastEvent) error {
	env, err := newEnvelope(event)
	if err != nil {
		return err
	}
	logger.Info(ctx, "forecast event",
		"event_id", env.EventID,
		"event_type", env.EventType,
		"key", event.PartitionKey(),
		"payload", string(env.Payload),
	)
	return nil
}

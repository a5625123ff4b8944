package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wyfcoding/menuforecast/internal/forecast/domain"
	"github.com/wyfcoding/menuforecast/pkg/mq"
)

type captureWriter struct {
	msgs []kafka.Message
	err  error
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *captureWriter) Close() error { return nil }

func TestKafkaEventPublisherRoutesByType(t *testing.T) {
	w := &captureWriter{}
	pub := NewKafkaEventPublisher(mq.NewProducerWithWriter(w))
	ts := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	err := pub.Publish(context.Background(), domain.PredictionScoredEvent{
		BaseEvent:     domain.BaseEvent{Timestamp: ts},
		PredictionID:  9,
		PredictionFor: "2026-05-04",
		Hour:          12,
		Accuracy:      0.875,
	})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)

	msg := w.msgs[0]
	assert.Equal(t, "forecast.prediction.scored", msg.Topic)
	assert.Equal(t, "2026-05-04", string(msg.Key))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, domain.EventPredictionScored, env.EventType)
	assert.NotEmpty(t, env.EventID)
	assert.True(t, env.OccurredAt.Equal(ts))

	var payload domain.PredictionScoredEvent
	require.NoError(t, json.Unmarshal(env.Payload, &payload))
	assert.Equal(t, uint(9), payload.PredictionID)
	assert.InDelta(t, 0.875, payload.Accuracy, 1e-9)
}

func TestKafkaEventPublisherPropagatesWriteError(t *testing.T) {
	w := &captureWriter{err: errors.New("broker down")}
	pub := NewKafkaEventPublisher(mq.NewProducerWithWriter(w))

	err := pub.Publish(context.Background(), domain.TrainingCompletedEvent{Buckets: 3})
	assert.EqualError(t, err, "broker down")
}

func TestEveryEventTypeHasTopic(t *testing.T) {
	for _, typ := range []string{
		domain.EventPredictionGenerated,
		domain.EventPredictionScored,
		domain.EventTrainingCompleted,
		domain.EventPredictionsPurged,
	} {
		_, ok := TopicFor(typ)
		assert.True(t, ok, typ)
	}
}

func TestLogEventPublisher(t *testing.T) {
	pub := NewLogEventPublisher()
	assert.NoError(t, pub.Publish(context.Background(), domain.PredictionsPurgedEvent{Cutoff: "2026-04-04", Deleted: 2}))
}

package notification

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher forwards lifecycle events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, p Payload) error
	Close() error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Payload) error { return nil }
func (NopPublisher) Close() error                           { return nil }

// MessageWriter is the part of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by reservation id, so one
// reservation's events land on one partition in order.
type KafkaPublisher struct {
	writer MessageWriter
}

// NewKafkaWriter creates an async writer that logs failed batches.
func NewKafkaWriter(brokers []string, topic string, log *zap.Logger) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		Async:        true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("kafka write failed", zap.Int("messages", len(messages)), zap.Error(err))
			}
		},
	}
}

// NewKafkaPublisher wraps w.
func NewKafkaPublisher(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{writer: w}
}

func (k *KafkaPublisher) Publish(ctx context.Context, p Payload) error {
	value, err := json.Marshal(p)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(p.ReservationID),
		Value: value,
		Time:  p.OccurredAt,
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(p.Kind)},
		},
	})
}

func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

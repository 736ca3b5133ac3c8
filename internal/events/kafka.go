package events

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher writes events to topic, keyed by aggregate id so that
// every event of one session lands on the same partition. Writes are async:
// Publish only enqueues, and delivery failures are logged.
func NewKafkaPublisher(brokers, topic string, logger *zap.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(SplitBrokers(brokers)...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
			RequiredAcks: kafka.RequireOne,
			Async:        true,
			Completion:   deliveryLogger(logger),
		},
	}
}

func deliveryLogger(logger *zap.Logger) func([]kafka.Message, error) {
	return func(messages []kafka.Message, err error) {
		if err == nil {
			return
		}
		for _, m := range messages {
			logger.Error("kafka delivery failed",
				zap.String("topic", m.Topic),
				zap.ByteString("key", m.Key),
				zap.String("event_type", headerValue(m.Headers, "event_type")),
				zap.Error(err),
			)
		}
	}
}

func headerValue(headers []kafka.Header, key string) string {
	for _, h := range headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// WithKafka fans base out to a Kafka topic when brokers is set. The returned
// func flushes and closes the writer; it is a no-op without brokers.
func WithKafka(base Publisher, brokers, topic string, logger *zap.Logger) (Publisher, func()) {
	if len(SplitBrokers(brokers)) == 0 {
		return base, func() {}
	}
	kp := NewKafkaPublisher(brokers, topic, logger)
	logger.Info("publishing events to kafka", zap.String("topic", topic))
	return Fanout(base, kp), func() {
		if err := kp.Close(); err != nil {
			logger.Warn("error closing kafka writer", zap.Error(err))
		}
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev Event) error {
	value, err := marshalEvent(ev)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Key:   []byte(ev.AggregateID.String()),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(ev.Type)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("publish %s: %w", ev.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// SplitBrokers parses a comma separated broker list, dropping blanks.
func SplitBrokers(raw string) []string {
	var out []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

type wireEvent struct {
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Payload     map[string]any `json:"payload,omitempty"`
}

func marshalEvent(ev Event) ([]byte, error) {
	data, err := json.Marshal(wireEvent{
		Type:        ev.Type,
		AggregateID: ev.AggregateID.String(),
		OccurredAt:  ev.OccurredAt,
		Payload:     ev.Payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", ev.Type, err)
	}
	return data, nil
}

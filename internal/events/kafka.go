package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	kafkaGo "github.com/segmentio/kafka-go"
)

// KafkaPublisher writes events to a Kafka topic keyed by product id, so all
// events of one product land on the same partition.
type KafkaPublisher struct {
	writer *kafkaGo.Writer
}

// NewKafkaPublisher creates a publisher for topic on brokers.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafkaGo.Writer{
			Addr:         kafkaGo.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafkaGo.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
}

func (k *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return k.writer.WriteMessages(ctx, kafkaGo.Message{
		Key:   []byte(e.ProductID),
		Value: payload,
	})
}

// Close flushes pending writes.
func (k *KafkaPublisher) Close() error {
	return k.writer.Close()
}

// Consume reads events from topic as part of groupID until ctx is done.
// Malformed payloads and handler errors are logged and skipped.
func Consume(ctx context.Context, brokers []string, topic, groupID string, handler func(context.Context, Event) error) error {
	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				slog.Info("consumer shutting down", "topic", topic)
				return nil
			}
			return fmt.Errorf("read %s: %w", topic, err)
		}

		var e Event
		if err := json.Unmarshal(msg.Value, &e); err != nil {
			slog.Error("skipping malformed event", "topic", topic, "offset", msg.Offset, "err", err)
			continue
		}
		if err := handler(ctx, e); err != nil {
			slog.Error("error handling event", "topic", topic, "type", e.Type, "err", err)
		}
	}
}

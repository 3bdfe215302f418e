package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/forumkit/searchsync/pkg/config"
	"github.com/forumkit/searchsync/pkg/logger"
)

// Event is one record bound for a topic. Key carries the document identity:
// equal keys hash to one partition, so successive mutations of a document
// reach the consumer in publish order. Value is JSON-encoded on publish.
type Event struct {
	Key   string
	Value any
}

// Producer writes events synchronously, acknowledged by all replicas.
type Producer struct {
	writer *kafka.Writer
	log    *slog.Logger
}

// NewProducer builds a Producer for topic.
func NewProducer(cfg config.KafkaConfig, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchSize:    100,
			BatchTimeout: 10 * time.Millisecond,
			WriteTimeout: 10 * time.Second,
			MaxAttempts:  3,
			RequiredAcks: kafka.RequireAll,
		},
		log: logger.WithComponent("kafka.producer").With("topic", topic),
	}
}

// Publish encodes one event and writes it, blocking until the brokers
// acknowledge or ctx ends.
func (p *Producer) Publish(ctx context.Context, event Event) error {
	value, err := json.Marshal(event.Value)
	if err != nil {
		return fmt.Errorf("encoding event %q: %w", event.Key, err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Key),
		Value: value,
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("publish failed", "key", event.Key, "error", err)
		return fmt.Errorf("publishing event %q: %w", event.Key, err)
	}
	p.log.Debug("event published", "key", event.Key, "bytes", len(value))
	return nil
}

// Close flushes buffered writes and releases the writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// Package kafka wraps segmentio/kafka-go with the two pieces the sync daemon
// needs: a producer that JSON-encodes document events keyed for per-document
// partition ordering, and a group consumer that commits offsets only after
// its handler succeeds, which makes delivery into the index at-least-once.
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

// MessageHandler processes one fetched message. A nil return commits the
// offset; an error leaves it uncommitted, so the message comes back after a
// restart or rebalance.
type MessageHandler func(ctx context.Context, key, value []byte) error

// Fetch errors back off up to a cap so a broker outage does not spin the
// consume loop.
const (
	fetchBackoffMin = time.Second
	fetchBackoffMax = 30 * time.Second
)

// Consumer drives a MessageHandler from one topic within a consumer group.
type Consumer struct {
	reader  *kafka.Reader
	handler MessageHandler
	log     *slog.Logger
}

// NewConsumer builds a Consumer for topic. A group with no committed offset
// starts at the head of the log rather than replaying history; history is
// covered by a rebuild, the stream only carries mutations from now on.
func NewConsumer(cfg config.KafkaConfig, topic string, handler MessageHandler) *Consumer {
	return &Consumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.Brokers,
			GroupID:     cfg.ConsumerGroup,
			Topic:       topic,
			MaxBytes:    10 << 20,
			MaxWait:     500 * time.Millisecond,
			StartOffset: kafka.LastOffset,
		}),
		handler: handler,
		log:     logger.WithComponent("kafka.consumer").With("topic", topic),
	}
}

// Start fetches, handles and commits messages until ctx is cancelled, then
// closes the reader. A handler failure is logged and the offset stays
// uncommitted; the loop moves on so one poison message cannot wedge the
// partition within this process lifetime.
func (c *Consumer) Start(ctx context.Context) error {
	c.log.Debug("consume loop running", "group", c.reader.Config().GroupID)
	backoff := fetchBackoffMin
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.log.Info("consumer stopping", "reason", ctx.Err())
				return c.reader.Close()
			}
			c.log.Error("fetch failed", "error", err, "retry_in", backoff)
			select {
			case <-ctx.Done():
				return c.reader.Close()
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > fetchBackoffMax {
				backoff = fetchBackoffMax
			}
			continue
		}
		backoff = fetchBackoffMin

		if err := c.handler(ctx, msg.Key, msg.Value); err != nil {
			c.log.Error("handler failed, offset left uncommitted",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
			continue
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error("commit failed",
				"partition", msg.Partition,
				"offset", msg.Offset,
				"error", err,
			)
		}
	}
}

// DecodeJSON unmarshals a message value into T.
func DecodeJSON[T any](value []byte) (T, error) {
	var v T
	if err := json.Unmarshal(value, &v); err != nil {
		return v, fmt.Errorf("decoding message: %w", err)
	}
	return v, nil
}

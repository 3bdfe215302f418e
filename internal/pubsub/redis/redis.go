// Package redis implements the broadcast channel on Redis pub/sub, so
// settings saves reach sibling processes on other hosts.
package redis

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/forumkit/searchsync/pkg/logger"
	pkgredis "github.com/forumkit/searchsync/pkg/redis"
)

// Broadcaster publishes and subscribes through a shared Redis deployment.
type Broadcaster struct {
	client *pkgredis.Client
	logger *slog.Logger
}

// New wraps an established Redis client.
func New(client *pkgredis.Client) *Broadcaster {
	return &Broadcaster{
		client: client,
		logger: logger.WithComponent("broadcast"),
	}
}

func (b *Broadcaster) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.RDB.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publishing to %s: %w", channel, err)
	}
	return nil
}

func (b *Broadcaster) Subscribe(ctx context.Context, channel string, handler func(payload []byte)) error {
	sub := b.client.RDB.Subscribe(ctx, channel)
	// Receive forces the SUBSCRIBE round trip, so a bad connection fails
	// here instead of silently never delivering.
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribing to %s: %w", channel, err)
	}
	ch := sub.Channel()
	go func() {
		defer sub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	b.logger.Debug("subscribed", "channel", channel)
	return nil
}

func (b *Broadcaster) Close() error {
	return nil // the shared Redis client is closed by its owner
}

// Package redis owns the process's go-redis connection. One Client can back
// both the primary store and the settings broadcast channel; RDB is exported
// so those backends drive the full go-redis API (hashes, sorted sets,
// pub/sub) without a wrapper per command.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/forumkit/searchsync/pkg/config"
)

const connectTimeout = 5 * time.Second

// Client wraps a pooled go-redis client.
type Client struct {
	RDB *redis.Client
}

// NewClient connects per cfg and verifies the server answers a PING before
// returning.
func NewClient(cfg config.RedisConfig) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return &Client{RDB: rdb}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.RDB.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.RDB.Close()
}

// Package redis owns the connection shared by the relay's pub/sub bridge and
// the archive job queue.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client embeds the go-redis client.
type Client struct {
	*redis.Client
}

// Connect opens a client and verifies the server is reachable before anything
// is wired on top of it. Timeouts do not apply to blocking queue reads, which
// go-redis exempts.
func Connect(ctx context.Context, addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return &Client{Client: rdb}, nil
}

// Healthy reports whether the server still answers pings.
func (c *Client) Healthy(ctx context.Context) bool {
	return c.Ping(ctx).Err() == nil
}

// Package redis caches explorer proxy responses so repeated UI requests for
// the same history window do not burn explorer API quota.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Client wraps Redis operations for the explorer response cache.
type Client struct {
	rdb *redis.Client
}

// Config holds Redis connection configuration.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// NewClient creates a new Redis client.
func NewClient(cfg Config) (*Client, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

func responseKey(chain, contract, address string) string {
	return fmt.Sprintf("explorer:%s:%s:%s", chain, contract, address)
}

// GetResponse returns a cached explorer response body, or found=false.
func (c *Client) GetResponse(ctx context.Context, chain, contract, address string) ([]byte, bool, error) {
	data, err := c.rdb.Get(ctx, responseKey(chain, contract, address)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get failed: %w", err)
	}
	return data, true, nil
}

// SetResponse caches an explorer response body with the given TTL.
func (c *Client) SetResponse(ctx context.Context, chain, contract, address string, body []byte, ttl time.Duration) error {
	if err := c.rdb.Set(ctx, responseKey(chain, contract, address), body, ttl).Err(); err != nil {
		return fmt.Errorf("set failed: %w", err)
	}
	return nil
}

// Health checks the Redis connection.
func (c *Client) Health(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

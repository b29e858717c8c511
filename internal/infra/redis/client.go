// Package redis carries suspect reorg windows from the stream loop to the fix
// daemon. Repair exclusivity stays in the sink; this queue only hands work over.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/chainetl/internal/core/domain"
)

// Client wraps Redis operations for the fixing pipeline.
type Client struct {
	rdb    *redis.Client
	prefix string
}

// Config holds Redis connection configuration. An empty URL disables Redis.
type Config struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
	Prefix   string `yaml:"prefix"` // key namespace, default: chainetl
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
	if cfg.Prefix == "" {
		cfg.Prefix = "chainetl"
	}

	rdb := redis.NewClient(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Client{rdb: rdb, prefix: cfg.Prefix}, nil
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Key helpers
func queueKey(prefix string) string {
	return fmt.Sprintf("%s:suspect_ranges", prefix)
}

// FormatRange encodes a suspect window as "low-high".
func FormatRange(s domain.SuspectRange) string {
	return s.Range().String()
}

// ParseRange decodes "low-high" into a suspect window.
func ParseRange(member string) (domain.SuspectRange, error) {
	rng, err := domain.ParseBlockRange(member)
	if err != nil {
		return domain.SuspectRange{}, err
	}
	return domain.SuspectOf(rng), nil
}

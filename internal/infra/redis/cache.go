// Package redis stores execution outcomes in Redis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/cuervolu/cortex-engine/internal/domain/execution"
	"github.com/cuervolu/cortex-engine/internal/ports"
)

const (
	defaultKeyPrefix = "result:"
	defaultTTL       = time.Hour
)

var _ ports.ResultCache = (*ResultCache)(nil)

// Config describes how to reach Redis and how long outcomes live.
type Config struct {
	Addr      string
	Password  string
	DB        int
	TTL       time.Duration
	KeyPrefix string
}

type redisClient interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *goredis.StatusCmd
	Ping(ctx context.Context) *goredis.StatusCmd
	Close() error
}

// ResultCache maps task ids to outcomes with a fixed expiry.
type ResultCache struct {
	client redisClient
	ttl    time.Duration
	prefix string
}

// NewResultCache connects to Redis using cfg.
func NewResultCache(cfg Config) (*ResultCache, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address must be provided")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return newResultCache(client, cfg.TTL, cfg.KeyPrefix), nil
}

func newResultCache(client redisClient, ttl time.Duration, prefix string) *ResultCache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = defaultKeyPrefix
	}
	return &ResultCache{client: client, ttl: ttl, prefix: prefix}
}

// Get returns the outcome stored for taskID. ok is false when no entry exists.
func (c *ResultCache) Get(ctx context.Context, taskID string) (execution.Outcome, bool, error) {
	raw, err := c.client.Get(ctx, c.key(taskID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return execution.Outcome{}, false, nil
		}
		return execution.Outcome{}, false, fmt.Errorf("redis get: %w", err)
	}

	var outcome execution.Outcome
	if err := json.Unmarshal(raw, &outcome); err != nil {
		return execution.Outcome{}, false, fmt.Errorf("unmarshal outcome: %w", err)
	}
	return outcome, true, nil
}

// Set stores outcome under taskID, replacing any previous entry.
func (c *ResultCache) Set(ctx context.Context, taskID string, outcome execution.Outcome) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}
	if err := c.client.Set(ctx, c.key(taskID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Ping checks the connection to Redis.
func (c *ResultCache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the Redis connection pool.
func (c *ResultCache) Close() error {
	return c.client.Close()
}

func (c *ResultCache) key(taskID string) string {
	return c.prefix + taskID
}

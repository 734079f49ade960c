// Package redis wraps go-redis with the indexed-entry operations the service registry needs.
//
// An indexed entry is a string key with a TTL plus a field in an index hash that
// points at it. Entries and index fields are written and removed in one MULTI/EXEC
// so readers never see a field without its first value.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/edgecomet/distill/internal/common/configtypes"
)

const connectTimeout = 5 * time.Second

// Client is a Redis connection scoped to indexed entries
type Client struct {
	rdb    *redis.Client
	logger *zap.Logger
}

// NewClient connects and pings Redis. The connection is closed again if the ping fails.
func NewClient(cfg *configtypes.RedisConfig, logger *zap.Logger) (*Client, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	client := &Client{rdb: rdb, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := client.Ping(ctx); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Debug("Redis client connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB))

	return client, nil
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// PutIndexed stores value under key for ttl and records key under field in the index hash
func (c *Client) PutIndexed(ctx context.Context, index, field, key string, value []byte, ttl time.Duration) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, key, value, ttl)
		pipe.HSet(ctx, index, field, key)
		return nil
	})
	if err != nil {
		c.logger.Error("Redis indexed put failed",
			zap.String("key", key),
			zap.String("index", index),
			zap.Error(err))
		return fmt.Errorf("redis indexed put failed: %w", err)
	}
	return nil
}

// DeleteIndexed removes key and its index field. Missing keys are not an error.
// Reports whether the key still existed.
func (c *Client) DeleteIndexed(ctx context.Context, index, field, key string) (bool, error) {
	var del *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, key)
		pipe.HDel(ctx, index, field)
		return nil
	})
	if err != nil {
		c.logger.Error("Redis indexed delete failed",
			zap.String("key", key),
			zap.String("index", index),
			zap.Error(err))
		return false, fmt.Errorf("redis indexed delete failed: %w", err)
	}
	return del.Val() > 0, nil
}

// Get returns the value of key, or nil if it does not exist
func (c *Client) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}
	return val, nil
}

// ListIndexed returns the values of every key referenced by index, keyed by index field.
// Fields whose key already expired are left out; PruneIndex removes them.
func (c *Client) ListIndexed(ctx context.Context, index string) (map[string][]byte, error) {
	fields, err := c.rdb.HGetAll(ctx, index).Result()
	if err != nil {
		return nil, fmt.Errorf("redis hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return map[string][]byte{}, nil
	}

	names := make([]string, 0, len(fields))
	keys := make([]string, 0, len(fields))
	for field, key := range fields {
		names = append(names, field)
		keys = append(keys, key)
	}

	values, err := c.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget failed: %w", err)
	}

	out := make(map[string][]byte, len(values))
	for i, v := range values {
		if s, ok := v.(string); ok {
			out[names[i]] = []byte(s)
		}
	}
	return out, nil
}

// PruneIndex drops index fields whose key has expired and returns how many were removed
func (c *Client) PruneIndex(ctx context.Context, index string) (int, error) {
	fields, err := c.rdb.HGetAll(ctx, index).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hgetall failed: %w", err)
	}

	var stale []string
	for field, key := range fields {
		n, err := c.rdb.Exists(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("redis exists failed: %w", err)
		}
		if n == 0 {
			stale = append(stale, field)
		}
	}
	if len(stale) == 0 {
		return 0, nil
	}

	if err := c.rdb.HDel(ctx, index, stale...).Err(); err != nil {
		return 0, fmt.Errorf("redis hdel failed: %w", err)
	}
	return len(stale), nil
}

// Close releases the connection pool
func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		c.logger.Error("Failed to close Redis client", zap.Error(err))
		return err
	}
	c.logger.Debug("Redis client closed")
	return nil
}

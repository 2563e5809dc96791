// Package redisstore wraps the Redis client operations used by the cell index.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	maintnotifications "github.com/redis/go-redis/v9/maintnotifications"

	"github.com/mohammed-shakir/geohash-udf/internal/core/observability"
)

// maxWatchAttempts bounds how often Watch re-runs fn after losing a race.
const maxWatchAttempts = 100

var ErrTxConflict = errors.New("redis: watched keys kept changing")

type Option func(*redis.Options)

func WithPoolSize(n int) Option {
	return func(o *redis.Options) { o.PoolSize = n }
}

func WithDialTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.DialTimeout = d }
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.ReadTimeout = d }
}

func WithWriteTimeout(d time.Duration) Option {
	return func(o *redis.Options) { o.WriteTimeout = d }
}

type Client struct {
	rdb *redis.Client
}

func New(ctx context.Context, addr string, opts ...Option) (*Client, error) {
	if addr == "" {
		return nil, errors.New("redis address is required")
	}

	ro := &redis.Options{
		Addr:         addr,
		PoolSize:     64,
		MinIdleConns: 4,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		MaintNotificationsConfig: &maintnotifications.Config{
			Mode: maintnotifications.ModeDisabled,
		},
	}
	for _, f := range opts {
		f(ro)
	}

	rdb := redis.NewClient(ro)

	start := time.Now()
	err := rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Client{rdb: rdb}, nil
}

func (c *Client) Ping(ctx context.Context) error {
	start := time.Now()
	err := c.rdb.Ping(ctx).Err()
	observability.ObserveCacheOp("ping", err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// HGet returns ok=false when the field is absent.
func (c *Client) HGet(ctx context.Context, key, field string) (string, bool, error) {
	start := time.Now()
	v, err := c.rdb.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCacheOp("hget", nil, time.Since(start).Seconds())
		return "", false, nil
	}
	observability.ObserveCacheOp("hget", err, time.Since(start).Seconds())
	if err != nil {
		return "", false, fmt.Errorf("redis HGET %q %q: %w", key, field, err)
	}
	return v, true, nil
}

func (c *Client) SMembers(ctx context.Context, key string) ([]string, error) {
	start := time.Now()
	vals, err := c.rdb.SMembers(ctx, key).Result()
	observability.ObserveCacheOp("smembers", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis SMEMBERS %q: %w", key, err)
	}
	return vals, nil
}

// SUnion returns the union of the given sets; missing sets count as empty.
func (c *Client) SUnion(ctx context.Context, keys ...string) ([]string, error) {
	start := time.Now()
	if len(keys) == 0 {
		observability.ObserveCacheOp("sunion", nil, time.Since(start).Seconds())
		return nil, nil
	}
	vals, err := c.rdb.SUnion(ctx, keys...).Result()
	observability.ObserveCacheOp("sunion", err, time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("redis SUNION %d keys: %w", len(keys), err)
	}
	return vals, nil
}

// Watch runs fn as an optimistic transaction over the watched keys. fn reads
// through tx and queues its writes with tx.TxPipelined; when another client
// touches a watched key before EXEC the whole of fn is run again.
func (c *Client) Watch(ctx context.Context, op string, fn func(tx *redis.Tx) error, keys ...string) error {
	start := time.Now()
	var err error
	for range maxWatchAttempts {
		err = c.rdb.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
		if ctx.Err() != nil {
			err = ctx.Err()
			break
		}
	}
	if errors.Is(err, redis.TxFailedErr) {
		err = ErrTxConflict
	}
	observability.ObserveCacheOp(op, err, time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("redis %s (watch): %w", op, err)
	}
	return nil
}

func (c *Client) Close() error {
	if err := c.rdb.Close(); err != nil {
		return fmt.Errorf("redis close: %w", err)
	}
	return nil
}

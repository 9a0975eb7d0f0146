// Package redistier implements the primary, session-scoped storage tier on
// Redis. Values expire with the session TTL, mirroring storage that is cleared
// when the browsing session ends.
package redistier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/cartstore/internal/storage"
)

// Tier is a Redis-backed storage tier. All keys it manages share a namespace
// prefix so Reclaim can drop sibling keys without touching unrelated data.
type Tier struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// New creates a Redis tier. Keys are stored under prefix, with the given TTL.
func New(client *redis.Client, prefix string, ttl time.Duration) *Tier {
	return &Tier{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Name identifies the tier in logs and metrics.
func (t *Tier) Name() string { return "redis" }

// Read returns the value stored under key.
func (t *Tier) Read(ctx context.Context, key string) ([]byte, error) {
	data, err := t.client.Get(ctx, t.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("redis get %s: %w", key, err)
	}
	return data, nil
}

// Write stores value under key with the tier TTL. Redis OOM rejections are
// reported as storage.ErrQuotaExceeded.
func (t *Tier) Write(ctx context.Context, key string, value []byte) error {
	if err := t.client.Set(ctx, t.prefix+key, value, t.ttl).Err(); err != nil {
		if isOOM(err) {
			return fmt.Errorf("redis set %s: %w", key, storage.ErrQuotaExceeded)
		}
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete removes the value under key.
func (t *Tier) Delete(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}

// Reclaim scans the tier's namespace and deletes every key except keep.
func (t *Tier) Reclaim(ctx context.Context, keep string) error {
	keepFull := t.prefix + keep

	iter := t.client.Scan(ctx, 0, t.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if k == keepFull {
			continue
		}
		if err := t.client.Del(ctx, k).Err(); err != nil {
			return fmt.Errorf("redis reclaim del %s: %w", k, err)
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("redis reclaim scan: %w", err)
	}
	return nil
}

// Ping checks connectivity for health reporting.
func (t *Tier) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

// isOOM reports whether the error is a Redis maxmemory rejection.
func isOOM(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "OOM")
}

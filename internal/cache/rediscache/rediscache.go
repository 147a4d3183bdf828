// Package rediscache implements cache.RemoteTier on top of go-redis,
// used as the shared remote tier behind internal/cache.TieredCache.
package rediscache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apexgate/upstreamcore/internal/config"
	"github.com/redis/go-redis/v9"
)

// Tier wraps a redis client behind the cache.RemoteTier contract.
type Tier struct {
	client *redis.Client
}

// New connects to redis per cfg.Cache.Redis.
func New(cfg *config.Config) *Tier {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Cache.Redis.Address,
		Password:    cfg.Cache.Redis.Password,
		DB:          cfg.Cache.Redis.DB,
		DialTimeout: cfg.Cache.Redis.Timeout,
	})
	return &Tier{client: client}
}

// Close releases the underlying connection pool.
func (t *Tier) Close() error { return t.client.Close() }

func (t *Tier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := t.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("rediscache: get %s: %w", key, err)
	}
	return data, true, nil
}

func (t *Tier) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := t.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("rediscache: set %s: %w", key, err)
	}
	return nil
}

// Package cache implements a local-tier cache backed optionally by a remote
// tier, with concurrent loads for the same key collapsed via singleflight.
package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Loader produces the value to cache under a key on a miss.
type Loader func(ctx context.Context) ([]byte, error)

// Cache is the cache contract the balancer core's loader and event handlers
// depend on.
type Cache interface {
	// Get returns the cached value for key, calling loader and caching its
	// result on a miss. ttl <= 0 means "no expiry". hit reports whether the
	// value came from the local tier without calling loader.
	Get(ctx context.Context, key string, ttl time.Duration, loader Loader) (data []byte, hit bool, err error)
	// InvalidateLocal drops this worker's entry for key.
	InvalidateLocal(key string)
}

// RemoteTier is the optional second tier behind the local one (e.g. redis).
type RemoteTier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type entry struct {
	value   []byte
	expires time.Time
}

func (e *entry) expired() bool {
	return !e.expires.IsZero() && time.Now().After(e.expires)
}

// TieredCache is an in-process local tier in front of an optional RemoteTier.
type TieredCache struct {
	local  sync.Map // string -> *entry
	remote RemoteTier
	group  singleflight.Group
}

// New returns a TieredCache. remote may be nil for local-only caching.
func New(remote RemoteTier) *TieredCache {
	return &TieredCache{remote: remote}
}

func (c *TieredCache) Get(ctx context.Context, key string, ttl time.Duration, loader Loader) ([]byte, bool, error) {
	if v, ok := c.local.Load(key); ok {
		e := v.(*entry)
		if !e.expired() {
			return e.value, true, nil
		}
		c.local.Delete(key)
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if c.remote != nil {
			if data, ok, rerr := c.remote.Get(ctx, key); rerr == nil && ok {
				c.store(key, data, ttl)
				return data, nil
			}
		}

		data, err := loader(ctx)
		if err != nil {
			return nil, err
		}

		c.store(key, data, ttl)
		if c.remote != nil {
			_ = c.remote.Set(ctx, key, data, ttl)
		}
		return data, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.([]byte), false, nil
}

func (c *TieredCache) store(key string, value []byte, ttl time.Duration) {
	e := &entry{value: value}
	if ttl > 0 {
		e.expires = time.Now().Add(ttl)
	}
	c.local.Store(key, e)
}

func (c *TieredCache) InvalidateLocal(key string) {
	c.local.Delete(key)
}

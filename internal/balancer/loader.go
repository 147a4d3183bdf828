package balancer

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/apexgate/upstreamcore/internal/log"
	"github.com/apexgate/upstreamcore/internal/types"
)

const (
	upstreamsCacheKey = "upstreamcore:upstreams"
	defaultCacheTTL   = 0 // no expiry; invalidated explicitly on change events
)

func upstreamCacheKey(id string) string { return fmt.Sprintf("upstreamcore:upstream:%s", id) }
func targetsCacheKey(upstreamID string) string {
	return fmt.Sprintf("upstreamcore:targets:%s", upstreamID)
}

// GetAllUpstreams returns every upstream record known to the store, through
// the cache.
func (c *Core) GetAllUpstreams(ctx context.Context) ([]*types.Upstream, error) {
	data, hit, err := c.Cache.Get(ctx, upstreamsCacheKey, defaultCacheTTL, func(ctx context.Context) ([]byte, error) {
		c.recordCacheMiss("upstreams")
		list, err := c.DAO.Upstreams().List(ctx)
		if err != nil {
			return nil, fmt.Errorf("balancer: list upstreams: %w", err)
		}
		return json.Marshal(list)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		c.recordCacheHit("upstreams")
	}

	var out []*types.Upstream
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("balancer: decode cached upstreams: %w", err)
	}
	return out, nil
}

// GetUpstreamByID returns a single upstream by id, through the cache.
// It returns ErrUpstreamNotFound (not nil, nil) when no such upstream exists.
func (c *Core) GetUpstreamByID(ctx context.Context, id string) (*types.Upstream, error) {
	data, hit, err := c.Cache.Get(ctx, upstreamCacheKey(id), defaultCacheTTL, func(ctx context.Context) ([]byte, error) {
		c.recordCacheMiss("upstream")
		found, err := c.DAO.Upstreams().Find(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("balancer: find upstream %s: %w", id, err)
		}
		return json.Marshal(found)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		c.recordCacheHit("upstream")
	}

	var found []*types.Upstream
	if err := json.Unmarshal(data, &found); err != nil {
		return nil, fmt.Errorf("balancer: decode cached upstream %s: %w", id, err)
	}
	if len(found) == 0 {
		return nil, ErrUpstreamNotFound
	}
	return found[0], nil
}

// GetUpstreamByName scans the (typically small) upstream set for a name
// match. It returns ErrUpstreamNotFound rather than a bare nil so a miss is
// distinguishable from a not-yet-populated cache.
func (c *Core) GetUpstreamByName(ctx context.Context, name string) (*types.Upstream, error) {
	all, err := c.GetAllUpstreams(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range all {
		if u.Name == name {
			return u, nil
		}
	}
	return nil, ErrUpstreamNotFound
}

// FetchTargetHistory returns an upstream's full target history, normalised
// (name/port/order derived) and sorted ascending by Order, through the cache.
func (c *Core) FetchTargetHistory(ctx context.Context, upstreamID string) (types.History, error) {
	data, hit, err := c.Cache.Get(ctx, targetsCacheKey(upstreamID), defaultCacheTTL, func(ctx context.Context) ([]byte, error) {
		c.recordCacheMiss("targets")
		raw, err := c.DAO.Targets().List(ctx, upstreamID)
		if err != nil {
			return nil, fmt.Errorf("balancer: list targets for %s: %w", upstreamID, err)
		}
		for _, t := range raw {
			if t.Order == "" || t.Name == "" {
				if nerr := t.NormalizeOrder(); nerr != nil {
					return nil, fmt.Errorf("balancer: normalise target %s/%s: %w", upstreamID, t.ID, nerr)
				}
			}
		}
		sort.Slice(raw, func(i, j int) bool { return raw[i].Order < raw[j].Order })
		return json.Marshal(raw)
	})
	if err != nil {
		return nil, err
	}
	if hit {
		c.recordCacheHit("targets")
	}

	var history types.History
	if err := json.Unmarshal(data, &history); err != nil {
		return nil, fmt.Errorf("balancer: decode cached targets for %s: %w", upstreamID, err)
	}
	return history, nil
}

// invalidateUpstream drops the upstream-list entry and upstream id's own
// entry, used before re-reading after a change event. The target-history
// entry is dropped separately by invalidateTargets.
func (c *Core) invalidateUpstream(id string) {
	c.Cache.InvalidateLocal(upstreamsCacheKey)
	c.Cache.InvalidateLocal(upstreamCacheKey(id))
}

func (c *Core) invalidateTargets(upstreamID string) {
	c.Cache.InvalidateLocal(targetsCacheKey(upstreamID))
}

func logFields(upstream *types.Upstream) []log.Field {
	return []log.Field{log.String("upstream", upstream.Name), log.String("upstream_id", upstream.ID)}
}

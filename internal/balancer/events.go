package balancer

import (
	"context"

	"github.com/apexgate/upstreamcore/internal/log"
	"github.com/apexgate/upstreamcore/internal/types"
)

// OnTargetEvent reacts to a target create/update/delete in the config store.
// Every failure here is logged and swallowed: the event is considered
// acknowledged regardless, so a malformed or late event never blocks the
// store's delivery pipeline.
func (c *Core) OnTargetEvent(ctx context.Context, op string, target *types.Target) {
	c.invalidateTargets(target.UpstreamID)

	upstream, err := c.GetUpstreamByID(ctx, target.UpstreamID)
	if err != nil {
		c.Logger.Warn("target event: upstream not found", log.String("op", op), log.String("upstream_id", target.UpstreamID), log.Err(err))
		return
	}

	b, ok := c.findBalancerByUpstreamID(upstream.ID)
	if !ok {
		c.Logger.Warn("target event: no balancer registered", log.String("op", op), log.String("upstream_id", upstream.ID))
		return
	}

	if err := c.checkTargetHistory(ctx, upstream, b); err != nil {
		c.Logger.Error("target event: history reconciliation failed", logAppend(upstream, log.String("op", op), log.Err(err))...)
	}
}

// checkTargetHistory reconciles a balancer's ring against a fresh fetch of
// its upstream's target history: a fast-path no-op when nothing changed, a
// forward-only replay when the new history is a strict extension of the old
// one, and a full rebuild when it has diverged (an earlier entry was
// edited, reordered, or otherwise no longer matches what this balancer was
// built from).
func (c *Core) checkTargetHistory(ctx context.Context, upstream *types.Upstream, b *Balancer) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	newHistory, err := c.FetchTargetHistory(ctx, upstream.ID)
	if err != nil {
		return err
	}
	oldHistory := b.history

	if len(newHistory) == len(oldHistory) && newHistory.LastOrder() == oldHistory.LastOrder() {
		return nil
	}

	lastEqualIndex := 0
	for lastEqualIndex < len(oldHistory) && lastEqualIndex < len(newHistory) &&
		oldHistory[lastEqualIndex].Order == newHistory[lastEqualIndex].Order {
		lastEqualIndex++
	}

	if lastEqualIndex == len(oldHistory) {
		if err := applyHistory(b.ring, newHistory, lastEqualIndex); err != nil {
			return err
		}
		b.history = newHistory
		c.Logger.Info("balancer history extended", logAppend(upstream,
			log.Int("applied", len(newHistory)-lastEqualIndex), log.Int("total", len(newHistory)))...)
		return nil
	}

	c.Logger.Info("balancer history diverged, rebuilding", logAppend(upstream,
		log.Int("last_equal_index", lastEqualIndex), log.Int("old_size", len(oldHistory)))...)
	return c.rebuildBalancerLocked(ctx, upstream, b, newHistory)
}

// rebuildBalancerLocked replaces b's ring, checker and history in place from
// newHistory. b.mu is already held by the caller (checkTargetHistory), so the
// old checker is stopped here directly rather than through stopHealthChecker,
// which takes b.mu itself. The registry entry is swapped to the rebuilt
// state's outward identity by updating b's own fields rather than publishing
// a new *Balancer, so callers already holding a reference to b (a request
// mid-retry) keep using it.
func (c *Core) rebuildBalancerLocked(ctx context.Context, upstream *types.Upstream, b *Balancer, newHistory types.History) error {
	oldChecker, oldSub := b.checker, b.sub
	b.checker, b.sub = nil, nil
	if oldChecker != nil {
		oldChecker.Stop()
	}
	if oldSub != nil {
		if err := c.Bus.Unregister(oldSub); err != nil {
			c.Logger.Warn("health: bus unregister failed", log.Err(err))
		}
	}

	fresh, err := c.createBalancer(ctx, upstream, newHistory, 0)
	if err != nil {
		return err
	}

	b.ring = fresh.ring
	b.history = fresh.history
	b.checker = fresh.checker
	b.sub = fresh.sub

	c.decActive() // createBalancer counted fresh, which b absorbs rather than adds to
	c.incRebuilds(upstream.Name)
	return nil
}

// OnUpstreamEvent reacts to an upstream create/update/delete in the config
// store. Like OnTargetEvent, every failure is logged and swallowed.
func (c *Core) OnUpstreamEvent(ctx context.Context, op string, upstream *types.Upstream) {
	switch op {
	case "create":
		c.Cache.InvalidateLocal(upstreamsCacheKey)
		if _, loaded := c.balancers.Load(upstream.Name); loaded {
			return
		}
		b, err := c.createBalancer(ctx, upstream, nil, 0)
		if err != nil {
			c.Logger.Error("upstream event: create failed", logAppend(upstream, log.Err(err))...)
			return
		}
		c.balancers.Store(upstream.Name, b)

	case "update":
		c.invalidateUpstream(upstream.ID)
		c.invalidateTargets(upstream.ID)

		if v, ok := c.balancers.Load(upstream.Name); ok {
			c.stopHealthChecker(v.(*Balancer))
			c.decActive()
		}
		b, err := c.createBalancer(ctx, upstream, nil, 0)
		if err != nil {
			c.Logger.Error("upstream event: update/recreate failed", logAppend(upstream, log.Err(err))...)
			c.balancers.Delete(upstream.Name)
			return
		}
		c.balancers.Store(upstream.Name, b)

	case "delete":
		c.invalidateUpstream(upstream.ID)
		c.invalidateTargets(upstream.ID)

		if v, ok := c.balancers.Load(upstream.Name); ok {
			c.teardownBalancer(upstream.Name, v.(*Balancer))
		}

	default:
		c.Logger.Warn("upstream event: unknown op", logAppend(upstream, log.String("op", op))...)
	}
}

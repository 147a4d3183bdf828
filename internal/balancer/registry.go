package balancer

import (
	"context"
	"fmt"

	"github.com/apexgate/upstreamcore/internal/log"
	"github.com/apexgate/upstreamcore/internal/ringbalancer"
	"github.com/apexgate/upstreamcore/internal/types"
)

// getBalancer resolves the live Balancer for an upstream name. If noCreate is
// true and none exists yet, it returns ErrBalancerNotFound instead of
// constructing one; PostHealth uses this since there is nothing useful to
// report health against before a balancer exists.
func (c *Core) getBalancer(ctx context.Context, name string, noCreate bool) (*Balancer, error) {
	if v, ok := c.balancers.Load(name); ok {
		return v.(*Balancer), nil
	}
	if noCreate {
		return nil, ErrBalancerNotFound
	}

	v, err, _ := c.createGroup.Do(name, func() (interface{}, error) {
		if v, ok := c.balancers.Load(name); ok {
			return v.(*Balancer), nil
		}

		upstream, err := c.GetUpstreamByName(ctx, name)
		if err != nil {
			return nil, err
		}
		b, err := c.createBalancer(ctx, upstream, nil, 0)
		if err != nil {
			return nil, err
		}
		c.balancers.Store(name, b)
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Balancer), nil
}

// findBalancerByUpstreamID scans the registry for the balancer owning
// upstream id. The target-event handler only has the upstream id (not its
// name) to work with; the registry set is small enough (one entry per
// configured upstream) that a linear scan is simpler than maintaining a
// second index.
func (c *Core) findBalancerByUpstreamID(id string) (*Balancer, bool) {
	var found *Balancer
	c.balancers.Range(func(_, v interface{}) bool {
		b := v.(*Balancer)
		if b.upstream.ID == id {
			found = b
			return false
		}
		return true
	})
	return found, found != nil
}

// createBalancer builds a fresh ring for upstream, replays its target
// history onto it, and binds a health checker only after replay completes so
// ring-membership callbacks don't fire for pre-existing history. If history
// is nil it is fetched fresh (full replay from 0); callers that already hold
// a freshly-fetched history (the divergence-rebuild path) pass it directly
// along with the index replay should start from.
func (c *Core) createBalancer(ctx context.Context, upstream *types.Upstream, history types.History, start int) (*Balancer, error) {
	if history == nil {
		h, err := c.FetchTargetHistory(ctx, upstream.ID)
		if err != nil {
			return nil, fmt.Errorf("balancer: create %s: %w", upstream.Name, err)
		}
		history = h
		start = 0
	}

	wheelSize := upstream.Slots
	if wheelSize <= 0 {
		wheelSize = c.Config.Balancer.DefaultWheelSize
	}
	ring := ringbalancer.New(ringbalancer.Config{
		WheelSize: wheelSize,
		Order:     upstream.OrderList,
		DNS:       c.DNS,
	})

	if err := applyHistory(ring, history, start); err != nil {
		return nil, fmt.Errorf("balancer: create %s: %w", upstream.Name, err)
	}

	b := &Balancer{upstream: upstream, ring: ring, history: history}

	c.attachHealthCheckerToBalancer(b)
	ring.SetCallback(c.membershipCallback(b))

	c.Logger.Info("balancer created",
		append(logFields(upstream), log.Int("targets", len(history)), log.Int("wheel_size", wheelSize))...)
	c.incCreations(upstream.Name)
	return b, nil
}

// teardownBalancer stops a balancer's health checker and unregisters it from
// the bus. Called when an upstream is deleted.
func (c *Core) teardownBalancer(name string, b *Balancer) {
	c.balancers.Delete(name)
	c.stopHealthChecker(b)
	c.decActive()
}

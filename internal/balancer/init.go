package balancer

import (
	"context"

	"github.com/apexgate/upstreamcore/internal/log"
)

// Init pre-warms the registry with one balancer per known upstream so the
// first request against each doesn't pay creation latency. A per-upstream
// failure is logged and skipped; it does not abort the rest of the sweep.
func (c *Core) Init(ctx context.Context) error {
	upstreams, err := c.GetAllUpstreams(ctx)
	if err != nil {
		return err
	}

	for _, u := range upstreams {
		b, err := c.createBalancer(ctx, u, nil, 0)
		if err != nil {
			c.Logger.Error("init: balancer creation failed", logAppend(u, log.Err(err))...)
			continue
		}
		c.balancers.Store(u.Name, b)
	}
	return nil
}

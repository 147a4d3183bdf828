package balancer

import (
	"context"
	"fmt"
)

// PostHealth pushes an externally-sourced health verdict (e.g. from an
// admin API or a synthetic check outside this core) into the checker bound
// to upstreamName's balancer. It never creates a balancer: there is nothing
// useful to report health against before one exists.
func (c *Core) PostHealth(ctx context.Context, upstreamName, ip string, port int, healthy bool) error {
	b, err := c.getBalancer(ctx, upstreamName, true)
	if err != nil {
		return fmt.Errorf("balancer: post health for %s: %w", upstreamName, err)
	}

	b.mu.Lock()
	checker := b.checker
	b.mu.Unlock()
	if checker == nil {
		return fmt.Errorf("balancer: post health for %s: no health checker bound", upstreamName)
	}

	return checker.SetTargetStatus(ip, port, healthy)
}

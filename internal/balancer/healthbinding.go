package balancer

import (
	"fmt"
	"time"

	"github.com/apexgate/upstreamcore/internal/eventbus"
	"github.com/apexgate/upstreamcore/internal/health"
	"github.com/apexgate/upstreamcore/internal/log"
	"github.com/apexgate/upstreamcore/internal/ringbalancer"
	"github.com/apexgate/upstreamcore/internal/types"
)

// sourceFor derives the event-bus source name a balancer's health verdicts
// are posted under and subscribed to. One source per upstream id keeps one
// upstream's health traffic from waking up every other upstream's callback.
func sourceFor(upstreamID string) string {
	return fmt.Sprintf("healthcheck:%s", upstreamID)
}

// buildHealthCheckConfig merges an upstream's health-check record over the
// core's defaults: every value the upstream sets overrides the default, and
// every value it leaves unset falls back to it. The active and passive
// enabled flags can only be switched on by an upstream, never off.
func (c *Core) buildHealthCheckConfig(upstream *types.Upstream) health.Config {
	d := c.Config.Balancer.HealthCheck
	spec := upstream.HealthChecks

	activeType := spec.ActiveType
	if activeType == "" {
		activeType = d.Active.Type
	}
	activePath := spec.ActivePath
	if activePath == "" {
		activePath = d.Active.Path
	}
	interval := time.Duration(spec.ActiveIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = d.Active.Interval
	}
	timeout := time.Duration(spec.ActiveTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = d.Active.Timeout
	}
	healthyThreshold := spec.HealthyThreshold
	if healthyThreshold <= 0 {
		healthyThreshold = d.Active.HealthyThreshold
	}
	unhealthyThreshold := spec.UnhealthyThreshold
	if unhealthyThreshold <= 0 {
		unhealthyThreshold = d.Active.UnhealthyThreshold
	}

	activeEnabled := d.Active.Enabled
	if spec.ActiveType != "" {
		activeEnabled = true
	}

	passiveEnabled := spec.PassiveEnabled || d.Passive.Enabled
	consecutiveFailures := spec.PassiveConsecutiveFailures
	if consecutiveFailures <= 0 {
		consecutiveFailures = d.Passive.ConsecutiveFailures
	}
	failureCodes := d.Passive.FailureStatusCodes
	if len(spec.PassiveFailureStatusCodes) > 0 {
		failureCodes = spec.PassiveFailureStatusCodes
	}
	codeSet := make(map[int]bool, len(failureCodes))
	for _, code := range failureCodes {
		codeSet[code] = true
	}

	return health.Config{
		ActiveEnabled:              activeEnabled,
		ActiveType:                 activeType,
		ActivePath:                 activePath,
		ActiveInterval:             interval,
		ActiveTimeout:              timeout,
		HealthyThreshold:           healthyThreshold,
		UnhealthyThreshold:         unhealthyThreshold,
		PassiveEnabled:             passiveEnabled,
		PassiveConsecutiveFailures: consecutiveFailures,
		PassiveFailureStatusCodes:  codeSet,
	}
}

// populateHealthChecker seeds checker with every currently-weighted address
// in balancer's ring, then immediately pulls back whatever verdict the
// checker holds for that address and applies it to the ring. The checker
// passed in is always freshly built, so the verdict read back is the healthy
// state AddTarget starts with; verdicts held by a previous checker for the
// same upstream, or by other workers, are not carried over into the new one.
func (c *Core) populateHealthChecker(checker *health.Checker, b *Balancer) {
	for _, entry := range b.ring.AddressIter() {
		if entry.Weight <= 0 {
			continue
		}
		if err := checker.AddTarget(entry.Name, entry.Port, entry.Name); err != nil {
			c.Logger.Error("health: add target failed", log.String("name", entry.Name), log.Int("port", entry.Port), log.Err(err))
			continue
		}
		if healthy, known := checker.Status(entry.Name, entry.Port); known {
			if err := b.ring.SetPeerStatus(healthy, entry.Name, entry.Port, entry.Name); err != nil {
				c.Logger.Error("health: seed peer status failed", log.String("name", entry.Name), log.Err(err))
			}
		}
	}
}

// attachHealthCheckerToBalancer builds the per-balancer health checker,
// populates it from the ring's current membership, and wires the two-way
// bridge between checker verdicts and the ring:
//   - checker -> bus: every verdict change the checker publishes is posted
//     to the balancer's source on the cross-worker bus.
//   - bus -> ring: a subscription on that same source applies every posted
//     verdict (this worker's own, or another worker's) to the ring.
//
// The subscription and checker are stored directly as fields on b, so
// dropping b from the registry (teardownBalancer/stopHealthChecker) is
// enough to release them — no separate weak-keyed side table needed.
func (c *Core) attachHealthCheckerToBalancer(b *Balancer) {
	checker := health.New(c.buildHealthCheckConfig(b.upstream))
	c.populateHealthChecker(checker, b)

	source := sourceFor(b.upstream.ID)
	cb := func(ev eventbus.Event) {
		healthy := ev.Status == eventbus.Healthy
		if err := b.ring.SetPeerStatus(healthy, ev.IP, ev.Port, ev.Hostname); err != nil {
			c.Logger.Error("health: apply peer status failed", log.String("hostname", ev.Hostname), log.Err(err))
			return
		}
		c.recordHealthTransition(healthy)
	}

	sub, err := c.Bus.RegisterWeak(source, cb)
	if err != nil {
		c.Logger.Error("health: bus subscription failed", logAppend(b.upstream, log.Err(err))...)
	}

	b.mu.Lock()
	b.checker = checker
	b.sub = sub
	b.mu.Unlock()

	go c.pumpCheckerEvents(source, checker)
}

// pumpCheckerEvents forwards every verdict a checker produces onto the bus
// under source, until the checker is stopped and closes its event channel.
func (c *Core) pumpCheckerEvents(source string, checker *health.Checker) {
	for ev := range checker.Events() {
		status := eventbus.Unhealthy
		if ev.Healthy {
			status = eventbus.Healthy
		}
		busEvent := eventbus.Event{IP: ev.Host, Port: ev.Port, Hostname: ev.Hostname, Status: status}
		if err := c.Bus.Post(source, busEvent); err != nil {
			c.Logger.Warn("health: post verdict failed", log.String("source", source), log.Err(err))
		}
	}
}

// stopHealthChecker halts the checker bound to b, unregisters its bus
// subscription, and clears both fields. Safe to call on a balancer with no
// checker bound.
func (c *Core) stopHealthChecker(b *Balancer) {
	b.mu.Lock()
	checker := b.checker
	sub := b.sub
	b.checker = nil
	b.sub = nil
	b.mu.Unlock()

	if checker != nil {
		checker.Stop()
	}
	if sub != nil {
		if err := c.Bus.Unregister(sub); err != nil {
			c.Logger.Warn("health: bus unregister failed", log.Err(err))
		}
	}
}

// membershipCallback adapts the ring's own add/remove notifications into
// checker target registration, installed only after a balancer's initial
// history replay so replay itself doesn't double-add every target. The ring
// fires it from applyHistory inside checkTargetHistory, which already holds
// b.mu, so it reads b.checker without taking the lock again.
func (c *Core) membershipCallback(b *Balancer) ringbalancer.Callback {
	return func(action ringbalancer.Action, name string, port int, weight int) {
		checker := b.checker
		if checker == nil {
			return
		}

		switch action {
		case ringbalancer.ActionAdded:
			if err := checker.AddTarget(name, port, name); err != nil {
				c.Logger.Error("health: add target failed", log.String("name", name), log.Err(err))
			}
		case ringbalancer.ActionRemoved:
			if err := checker.RemoveTarget(name, port); err != nil {
				c.Logger.Error("health: remove target failed", log.String("name", name), log.Err(err))
			}
		default:
			c.Logger.Warn("health: unknown ring membership action", log.String("action", string(action)))
		}
	}
}

// ReportHTTPStatus is the passive-signal hook the request pipeline calls
// with a completed request's status code.
func (b *Balancer) ReportHTTPStatus(ip string, port int, status int) {
	b.mu.Lock()
	checker := b.checker
	b.mu.Unlock()
	if checker != nil {
		checker.ReportHTTPStatus(ip, port, status)
	}
}

// ReportTCPFailure is the passive-signal hook the request pipeline calls
// when a connection attempt to a peer fails outright.
func (b *Balancer) ReportTCPFailure(ip string, port int) {
	b.mu.Lock()
	checker := b.checker
	b.mu.Unlock()
	if checker != nil {
		checker.ReportTCPFailure(ip, port)
	}
}

func logAppend(upstream *types.Upstream, extra ...log.Field) []log.Field {
	return append(logFields(upstream), extra...)
}

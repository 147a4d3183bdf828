// Package balancer is the upstream load-balancing core: it loads upstream
// and target-history records, replays history onto per-upstream ring
// balancers, owns their lifecycle, binds them to health checkers, reacts to
// config-store change events, computes request hash values, resolves a peer
// for a request, and accepts external health verdicts.
package balancer

import (
	"sync"

	"github.com/apexgate/upstreamcore/internal/cache"
	"github.com/apexgate/upstreamcore/internal/config"
	"github.com/apexgate/upstreamcore/internal/dnsclient"
	"github.com/apexgate/upstreamcore/internal/eventbus"
	"github.com/apexgate/upstreamcore/internal/health"
	"github.com/apexgate/upstreamcore/internal/log"
	"github.com/apexgate/upstreamcore/internal/metrics"
	"github.com/apexgate/upstreamcore/internal/ringbalancer"
	"github.com/apexgate/upstreamcore/internal/store"
	"github.com/apexgate/upstreamcore/internal/tracing"
	"github.com/apexgate/upstreamcore/internal/types"
	"golang.org/x/sync/singleflight"
)

// Balancer is one upstream's live state: its ring, the health checker bound
// to it, and the event-bus subscription feeding verdicts into the ring.
type Balancer struct {
	mu sync.Mutex

	upstream *types.Upstream
	ring     *ringbalancer.Ring

	checker *health.Checker     // always bound at creation; nil only once stopped
	sub     eventbus.Subscription // nil once stopped, or if bus registration failed

	// history is the last history this balancer was built or reconciled
	// from, kept so a target-event handler can diff against a fresh fetch
	// without re-reading the whole thing from the store on every event.
	history types.History
}

// Core wires every collaborator the balancer registry depends on and owns
// the registry itself.
type Core struct {
	DAO     store.DAO
	Cache   cache.Cache
	Bus     eventbus.Bus
	DNS     dnsclient.Client
	Logger  log.Logger
	Metrics *metrics.Metrics
	Config  *config.Config
	Tracer  *tracing.TracerProvider // optional; nil and a disabled provider both behave as no-ops

	balancers   sync.Map // upstream name -> *Balancer
	createGroup singleflight.Group
}

// New constructs a Core. All fields on cfg collaborators are required except
// Metrics and Tracer, which may be nil (both become no-ops).
func New(dao store.DAO, c cache.Cache, bus eventbus.Bus, dns dnsclient.Client, logger log.Logger, m *metrics.Metrics, cfg *config.Config) *Core {
	return &Core{
		DAO:     dao,
		Cache:   c,
		Bus:     bus,
		DNS:     dns,
		Logger:  logger,
		Metrics: m,
		Config:  cfg,
	}
}

func (c *Core) incCreations(upstream string) {
	if c.Metrics != nil {
		c.Metrics.BalancerCreations.WithLabelValues(upstream).Inc()
		c.Metrics.ActiveBalancers.Inc()
	}
}

func (c *Core) incRebuilds(upstream string) {
	if c.Metrics != nil {
		c.Metrics.BalancerRebuilds.WithLabelValues(upstream).Inc()
	}
}

func (c *Core) decActive() {
	if c.Metrics != nil {
		c.Metrics.ActiveBalancers.Dec()
	}
}

func (c *Core) recordCacheHit(kind string) {
	if c.Metrics != nil {
		c.Metrics.CacheHits.WithLabelValues(kind).Inc()
	}
}

func (c *Core) recordCacheMiss(kind string) {
	if c.Metrics != nil {
		c.Metrics.CacheMisses.WithLabelValues(kind).Inc()
	}
}

func (c *Core) recordHealthTransition(healthy bool) {
	if c.Metrics == nil {
		return
	}
	status := "unhealthy"
	if healthy {
		status = "healthy"
	}
	c.Metrics.HealthTransitions.WithLabelValues(status).Inc()
}

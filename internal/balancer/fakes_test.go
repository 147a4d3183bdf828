package balancer

import (
	"context"
	"sync"

	"github.com/apexgate/upstreamcore/internal/cache"
	"github.com/apexgate/upstreamcore/internal/config"
	"github.com/apexgate/upstreamcore/internal/eventbus"
	"github.com/apexgate/upstreamcore/internal/log"
	"github.com/apexgate/upstreamcore/internal/store"
	"github.com/apexgate/upstreamcore/internal/store/memstore"
	"github.com/apexgate/upstreamcore/internal/types"
)

// fakeDNS is an in-memory Client: it echoes the host back as the resolved ip
// unless a specific answer was registered, and never makes network calls.
type fakeDNS struct {
	mu      sync.Mutex
	answers map[string]string
}

func newFakeDNS() *fakeDNS {
	return &fakeDNS{answers: make(map[string]string)}
}

func (f *fakeDNS) set(host, ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers[host] = ip
}

func (f *fakeDNS) Resolve(ctx context.Context, host string, port int, cacheOnly bool) (string, int, []string, error) {
	f.mu.Lock()
	ip, ok := f.answers[host]
	f.mu.Unlock()
	if !ok {
		ip = host
	}
	return ip, port, []string{host}, nil
}

// fakeDAO is a directly-mutable store.DAO used where a test needs to rewrite
// history in place (simulating an edited/reordered entry), which
// memstore.Store's append-only API intentionally disallows.
type fakeDAO struct {
	mu        sync.Mutex
	upstreams map[string]*types.Upstream
	targets   map[string][]*types.Target
}

func newFakeDAO() *fakeDAO {
	return &fakeDAO{upstreams: make(map[string]*types.Upstream), targets: make(map[string][]*types.Target)}
}

func (d *fakeDAO) Upstreams() store.UpstreamDAO { return fakeUpstreamDAO{d} }
func (d *fakeDAO) Targets() store.TargetDAO     { return fakeTargetDAO{d} }

func (d *fakeDAO) putUpstream(u *types.Upstream) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *u
	d.upstreams[u.ID] = &cp
}

func (d *fakeDAO) setTargets(upstreamID string, targets []*types.Target) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.targets[upstreamID] = targets
}

type fakeUpstreamDAO struct{ d *fakeDAO }

func (u fakeUpstreamDAO) List(ctx context.Context) ([]*types.Upstream, error) {
	u.d.mu.Lock()
	defer u.d.mu.Unlock()
	out := make([]*types.Upstream, 0, len(u.d.upstreams))
	for _, up := range u.d.upstreams {
		cp := *up
		out = append(out, &cp)
	}
	return out, nil
}

func (u fakeUpstreamDAO) Find(ctx context.Context, id string) ([]*types.Upstream, error) {
	u.d.mu.Lock()
	defer u.d.mu.Unlock()
	up, ok := u.d.upstreams[id]
	if !ok {
		return nil, nil
	}
	cp := *up
	return []*types.Upstream{&cp}, nil
}

type fakeTargetDAO struct{ d *fakeDAO }

func (t fakeTargetDAO) List(ctx context.Context, upstreamID string) ([]*types.Target, error) {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	src := t.d.targets[upstreamID]
	out := make([]*types.Target, len(src))
	for i, tg := range src {
		cp := *tg
		out[i] = &cp
	}
	return out, nil
}

// newTestCore wires a Core against in-memory/fake collaborators: a real
// memstore DAO (unless dao is provided), a real local-tier cache, a real
// in-process event bus, a fake DNS client, and a no-op logger.
func newTestCore(dao store.DAO) (*Core, *fakeDNS) {
	dns := newFakeDNS()
	cfg := config.Default()
	c := New(dao, cache.New(nil), eventbus.NewLocal(), dns, log.NewNop(), nil, cfg)
	return c, dns
}

func newMemstoreCore() (*Core, *memstore.Store, *fakeDNS) {
	dao := memstore.New()
	c, dns := newTestCore(dao)
	return c, dao, dns
}

// Package memstore is an in-memory store.DAO for tests and the demo binary.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/apexgate/upstreamcore/internal/store"
	"github.com/apexgate/upstreamcore/internal/types"
	"github.com/google/uuid"
)

// Store is a map-backed store.DAO with the same append-only target
// semantics as the etcd driver.
type Store struct {
	mu        sync.RWMutex
	upstreams map[string]*types.Upstream
	targets   map[string][]*types.Target // upstream id -> history
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		upstreams: make(map[string]*types.Upstream),
		targets:   make(map[string][]*types.Target),
	}
}

func (s *Store) Upstreams() store.UpstreamDAO { return upstreamDAO{s} }
func (s *Store) Targets() store.TargetDAO     { return targetDAO{s} }

// PutUpstream inserts or replaces an upstream, assigning an id if empty.
func (s *Store) PutUpstream(u *types.Upstream) *types.Upstream {
	s.mu.Lock()
	defer s.mu.Unlock()

	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	cp := *u
	s.upstreams[u.ID] = &cp
	return &cp
}

// DeleteUpstream removes an upstream and its target history.
func (s *Store) DeleteUpstream(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.upstreams, id)
	delete(s.targets, id)
}

// AppendTarget appends a target to an upstream's history, assigning id/order
// if not already set.
func (s *Store) AppendTarget(t *types.Target) (*types.Target, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Order == "" {
		if err := t.NormalizeOrder(); err != nil {
			return nil, err
		}
	}
	cp := *t
	s.targets[t.UpstreamID] = append(s.targets[t.UpstreamID], &cp)
	return &cp, nil
}

type upstreamDAO struct{ s *Store }

func (d upstreamDAO) List(ctx context.Context) ([]*types.Upstream, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	out := make([]*types.Upstream, 0, len(d.s.upstreams))
	for _, u := range d.s.upstreams {
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

func (d upstreamDAO) Find(ctx context.Context, id string) ([]*types.Upstream, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	u, ok := d.s.upstreams[id]
	if !ok {
		return nil, nil
	}
	cp := *u
	return []*types.Upstream{&cp}, nil
}

type targetDAO struct{ s *Store }

func (d targetDAO) List(ctx context.Context, upstreamID string) ([]*types.Target, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()

	history := d.s.targets[upstreamID]
	out := make([]*types.Target, len(history))
	for i, t := range history {
		cp := *t
		out[i] = &cp
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// Package store defines the DAO port the balancer core loads upstream and
// target records through, plus an etcd-backed and an in-memory implementation.
package store

import (
	"context"
	"errors"

	"github.com/apexgate/upstreamcore/internal/types"
)

// ErrNotFound is a sentinel a driver may return for a missing record. The
// memstore and etcdstore drivers do not use it: their Upstreams().Find
// reports a missing upstream as an empty result with a nil error.
var ErrNotFound = errors.New("not found")

// DAO is the configuration-store contract the balancer core's loader reads
// through.
type DAO interface {
	Upstreams() UpstreamDAO
	Targets() TargetDAO
}

// UpstreamDAO exposes the upstream half of the DAO contract.
type UpstreamDAO interface {
	// List returns every upstream known to the store.
	List(ctx context.Context) ([]*types.Upstream, error)
	// Find returns 0 or 1 upstream by id.
	Find(ctx context.Context, id string) ([]*types.Upstream, error)
}

// TargetDAO exposes the target half of the DAO contract.
type TargetDAO interface {
	// List returns every target ever recorded for an upstream, in storage
	// order (callers are responsible for sorting by Order).
	List(ctx context.Context, upstreamID string) ([]*types.Target, error)
}

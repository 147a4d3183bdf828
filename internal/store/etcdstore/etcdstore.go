// Package etcdstore implements the DAO contract against an etcd cluster,
// storing upstreams and targets as JSON values under a configurable prefix.
package etcdstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/apexgate/upstreamcore/internal/config"
	"github.com/apexgate/upstreamcore/internal/store"
	"github.com/apexgate/upstreamcore/internal/types"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// Store is an etcd-backed store.DAO. Upstreams are stored at
// "<prefix>/upstreams/<id>"; targets are appended at
// "<prefix>/targets/<upstream_id>/<order>".
type Store struct {
	client *clientv3.Client
	prefix string
}

// New dials etcd per cfg.Store.Etcd and returns a ready Store.
func New(cfg *config.Config) (*Store, error) {
	clientCfg := clientv3.Config{
		Endpoints:   cfg.Store.Etcd.Endpoints,
		DialTimeout: cfg.Store.Etcd.Timeout,
		Username:    cfg.Store.Etcd.Username,
		Password:    cfg.Store.Etcd.Password,
	}

	client, err := clientv3.New(clientCfg)
	if err != nil {
		return nil, fmt.Errorf("etcdstore: failed to create client: %w", err)
	}

	return &Store{client: client, prefix: strings.TrimRight(cfg.Store.KeyPrefix, "/")}, nil
}

// Close releases the underlying etcd client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) upstreamKey(id string) string {
	return fmt.Sprintf("%s/upstreams/%s", s.prefix, id)
}

func (s *Store) upstreamsPrefix() string {
	return fmt.Sprintf("%s/upstreams/", s.prefix)
}

func (s *Store) targetsPrefix(upstreamID string) string {
	return fmt.Sprintf("%s/targets/%s/", s.prefix, upstreamID)
}

// Client exposes the raw etcd client so the event bus can share the connection.
func (s *Store) Client() *clientv3.Client { return s.client }

// Upstreams returns the upstream half of the DAO contract.
func (s *Store) Upstreams() store.UpstreamDAO { return upstreamDAO{s} }

// Targets returns the target half of the DAO contract.
func (s *Store) Targets() store.TargetDAO { return targetDAO{s} }

// PutUpstream writes an upstream record (used by the demo and tests to seed data).
func (s *Store) PutUpstream(ctx context.Context, u *types.Upstream) error {
	data, err := json.Marshal(u)
	if err != nil {
		return fmt.Errorf("etcdstore: marshal upstream: %w", err)
	}
	_, err = s.client.Put(ctx, s.upstreamKey(u.ID), string(data))
	return err
}

// DeleteUpstream removes an upstream record.
func (s *Store) DeleteUpstream(ctx context.Context, id string) error {
	_, err := s.client.Delete(ctx, s.upstreamKey(id))
	return err
}

// AppendTarget appends a target record at its order-derived key.
func (s *Store) AppendTarget(ctx context.Context, t *types.Target) error {
	if t.Order == "" {
		if err := t.NormalizeOrder(); err != nil {
			return err
		}
	}
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("etcdstore: marshal target: %w", err)
	}
	key := fmt.Sprintf("%s%s", s.targetsPrefix(t.UpstreamID), t.Order)
	_, err = s.client.Put(ctx, key, string(data))
	return err
}

type upstreamDAO struct{ s *Store }

func (d upstreamDAO) List(ctx context.Context) ([]*types.Upstream, error) {
	resp, err := d.s.client.Get(ctx, d.s.upstreamsPrefix(), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcdstore: list upstreams: %w", err)
	}
	out := make([]*types.Upstream, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var u types.Upstream
		if err := json.Unmarshal(kv.Value, &u); err != nil {
			return nil, fmt.Errorf("etcdstore: decode upstream %s: %w", kv.Key, err)
		}
		out = append(out, &u)
	}
	return out, nil
}

func (d upstreamDAO) Find(ctx context.Context, id string) ([]*types.Upstream, error) {
	resp, err := d.s.client.Get(ctx, d.s.upstreamKey(id))
	if err != nil {
		return nil, fmt.Errorf("etcdstore: find upstream %s: %w", id, err)
	}
	if len(resp.Kvs) == 0 {
		return nil, nil
	}
	var u types.Upstream
	if err := json.Unmarshal(resp.Kvs[0].Value, &u); err != nil {
		return nil, fmt.Errorf("etcdstore: decode upstream %s: %w", id, err)
	}
	return []*types.Upstream{&u}, nil
}

type targetDAO struct{ s *Store }

func (d targetDAO) List(ctx context.Context, upstreamID string) ([]*types.Target, error) {
	resp, err := d.s.client.Get(ctx, d.s.targetsPrefix(upstreamID), clientv3.WithPrefix())
	if err != nil {
		return nil, fmt.Errorf("etcdstore: list targets for %s: %w", upstreamID, err)
	}
	out := make([]*types.Target, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var t types.Target
		if err := json.Unmarshal(kv.Value, &t); err != nil {
			return nil, fmt.Errorf("etcdstore: decode target %s: %w", kv.Key, err)
		}
		out = append(out, &t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// Package ringbalancer implements a weighted ring balancer: a wheel of
// slots sized proportionally to host weight, supporting both consistent-hash
// peer selection (when a request carries a hash value) and smooth weighted
// round robin (when it doesn't).
package ringbalancer

import (
	"context"
	"errors"
	"fmt"
	"hash/crc32"
	"sort"
	"sync"

	"github.com/apexgate/upstreamcore/internal/dnsclient"
)

// ErrNoPeerAvailable is returned by GetPeer when no healthy host exists.
var ErrNoPeerAvailable = errors.New("No peers are available")

// Action identifies a ring membership change delivered to a Callback.
type Action string

const (
	ActionAdded   Action = "added"
	ActionRemoved Action = "removed"
)

// Callback is notified of ring membership changes so the health-checker
// binding can keep its target set in sync.
type Callback func(action Action, name string, port int, weight int)

type host struct {
	name    string
	port    int
	weight  int
	healthy bool

	// smooth weighted round robin state, used on the no-hash path.
	currentWeight int
}

func hostKey(name string, port int) string {
	return fmt.Sprintf("%s:%d", name, port)
}

// Config configures a new Ring.
type Config struct {
	WheelSize int
	Order     []int // deterministic slot permutation seed; nil means identity order
	DNS       dnsclient.Client
}

// Ring is the per-upstream weighted ring balancer.
type Ring struct {
	mu        sync.RWMutex
	wheelSize int
	order     []int
	dns       dnsclient.Client

	hosts map[string]*host
	wheel []*host // len == wheelSize once built

	callback Callback
}

// New constructs a fresh ring. It starts empty; hosts are added with AddHost.
func New(cfg Config) *Ring {
	size := cfg.WheelSize
	if size <= 0 {
		size = 1000
	}
	order := cfg.Order
	if len(order) != size {
		order = identityOrder(size)
	}
	return &Ring{
		wheelSize: size,
		order:     order,
		dns:       cfg.DNS,
		hosts:     make(map[string]*host),
	}
}

func identityOrder(size int) []int {
	order := make([]int, size)
	for i := range order {
		order[i] = i
	}
	return order
}

// SetCallback installs the ring-membership callback. Per the health-checker
// binding contract, this is installed only after the initial history replay
// so replay does not double-notify.
func (r *Ring) SetCallback(cb Callback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callback = cb
}

// AddHost adds (or updates the weight of) a host and rebuilds the wheel.
func (r *Ring) AddHost(name string, port int, weight int) error {
	if weight <= 0 {
		return fmt.Errorf("ringbalancer: weight must be positive, got %d", weight)
	}

	r.mu.Lock()
	key := hostKey(name, port)
	_, existed := r.hosts[key]
	r.hosts[key] = &host{name: name, port: port, weight: weight, healthy: true}
	r.rebuildWheelLocked()
	cb := r.callback
	r.mu.Unlock()

	if cb != nil && !existed {
		cb(ActionAdded, name, port, weight)
	}
	return nil
}

// RemoveHost removes a host. Removing an unknown (name, port) is a no-op.
func (r *Ring) RemoveHost(name string, port int) error {
	r.mu.Lock()
	key := hostKey(name, port)
	_, existed := r.hosts[key]
	if existed {
		delete(r.hosts, key)
		r.rebuildWheelLocked()
	}
	cb := r.callback
	r.mu.Unlock()

	if cb != nil && existed {
		cb(ActionRemoved, name, port, 0)
	}
	return nil
}

// rebuildWheelLocked recomputes slot assignment from the current host set.
// It is a pure function of (hosts, order), so two rings built from the same
// final host set produce byte-identical wheels regardless of add/remove
// call order.
func (r *Ring) rebuildWheelLocked() {
	r.wheel = make([]*host, r.wheelSize)

	if len(r.hosts) == 0 {
		return
	}

	keys := make([]string, 0, len(r.hosts))
	totalWeight := 0
	for k, h := range r.hosts {
		keys = append(keys, k)
		totalWeight += h.weight
	}
	sort.Strings(keys)

	if totalWeight == 0 {
		return
	}

	// Assign each permuted slot index to a host proportional to weight,
	// walking cumulative weight brackets in sorted-key order.
	slotsPerWeightUnit := float64(r.wheelSize) / float64(totalWeight)
	slotIdx := 0
	for i, k := range keys {
		h := r.hosts[k]
		share := int(float64(h.weight) * slotsPerWeightUnit)
		if i == len(keys)-1 {
			share = r.wheelSize - slotIdx
		}
		for j := 0; j < share && slotIdx < r.wheelSize; j++ {
			r.wheel[r.order[slotIdx]] = h
			slotIdx++
		}
	}
	// Fill any unfilled tail slots (rounding) with the last host.
	if slotIdx < r.wheelSize {
		last := r.hosts[keys[len(keys)-1]]
		for ; slotIdx < r.wheelSize; slotIdx++ {
			r.wheel[r.order[slotIdx]] = last
		}
	}
}

// SetPeerStatus marks a host healthy/unhealthy by the (hostname, port) pair
// the balancer tracks it under. ip is accepted for contract symmetry with
// the health checker's events but is not used for lookup: this ring
// addresses hosts by name, the same way it hands them to the DNS client.
func (r *Ring) SetPeerStatus(healthy bool, ip string, port int, hostname string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.hosts[hostKey(hostname, port)]
	if !ok {
		return nil
	}
	h.healthy = healthy
	return nil
}

// AddressEntry is one row of AddressIter's result.
type AddressEntry struct {
	Weight int
	Name   string
	Port   int
}

// AddressIter enumerates every currently-added host.
func (r *Ring) AddressIter() []AddressEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]AddressEntry, 0, len(r.hosts))
	for _, h := range r.hosts {
		out = append(out, AddressEntry{Weight: h.weight, Name: h.name, Port: h.port})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// GetPeer selects a peer and resolves it to an IP. hashValue nil means
// "no consistent-hash identifier available"; in that case selection falls
// back to smooth weighted round robin.
func (r *Ring) GetPeer(ctx context.Context, hashValue *uint32, tryCount int, cacheOnly bool) (ip string, port int, hostname string, err error) {
	r.mu.Lock()
	h := r.pickHostLocked(hashValue)
	r.mu.Unlock()

	if h == nil {
		return "", 0, "", ErrNoPeerAvailable
	}

	resolvedIP, resolvedPort, _, err := r.dns.Resolve(ctx, h.name, h.port, cacheOnly)
	if err != nil {
		return "", 0, "", err
	}
	return resolvedIP, resolvedPort, h.name, nil
}

func (r *Ring) pickHostLocked(hashValue *uint32) *host {
	if hashValue != nil && len(r.wheel) == r.wheelSize {
		return r.pickByHashLocked(*hashValue)
	}
	return r.pickByWeightedRoundRobinLocked()
}

func (r *Ring) pickByHashLocked(hashValue uint32) *host {
	if r.wheelSize == 0 {
		return nil
	}
	start := int(hashValue % uint32(r.wheelSize))
	for i := 0; i < r.wheelSize; i++ {
		idx := (start + i) % r.wheelSize
		h := r.wheel[idx]
		if h != nil && h.healthy {
			return h
		}
	}
	return nil
}

func (r *Ring) pickByWeightedRoundRobinLocked() *host {
	var selected *host
	total := 0

	keys := make([]string, 0, len(r.hosts))
	for k := range r.hosts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		h := r.hosts[k]
		if !h.healthy {
			continue
		}
		h.currentWeight += h.weight
		total += h.weight
		if selected == nil || h.currentWeight > selected.currentWeight {
			selected = h
		}
	}
	if selected != nil {
		selected.currentWeight -= total
	}
	return selected
}

// Hash returns the CRC32 checksum of identifier, the consistent-hash key
// used to pick a slot on the wheel.
func Hash(identifier []byte) uint32 {
	return crc32.ChecksumIEEE(identifier)
}

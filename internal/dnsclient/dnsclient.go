// Package dnsclient implements the DNS client the balancer core and the ring
// balancer depend on: an authoritative lookup on first attempt, and a
// cache-only lookup (no network I/O) on retries.
package dnsclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrNameError is the sentinel NXDOMAIN error, matching the contract's
// "dns server error: 3 name error" string.
var ErrNameError = errors.New("dns server error: 3 name error")

// Client is the DNS resolution port.
type Client interface {
	// Resolve looks up host. If cacheOnly is true, no network lookup is
	// performed; only a previously cached answer is returned, or
	// ErrNameError if there is none. trylist records every name tried.
	Resolve(ctx context.Context, host string, port int, cacheOnly bool) (ip string, resolvedPort int, trylist []string, err error)
}

type cacheEntry struct {
	ip      string
	expires time.Time
}

// Resolver implements Client against net.Resolver with a bounded-TTL cache
// consulted for cache-only retries.
type Resolver struct {
	resolver *net.Resolver
	ttl      time.Duration
	timeout  time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New builds a Resolver using the system resolver.
func New(cacheTTL, timeout time.Duration) *Resolver {
	return &Resolver{
		resolver: net.DefaultResolver,
		ttl:      cacheTTL,
		timeout:  timeout,
		cache:    make(map[string]cacheEntry),
	}
}

func (r *Resolver) Resolve(ctx context.Context, host string, port int, cacheOnly bool) (string, int, []string, error) {
	trylist := []string{host}

	if cacheOnly {
		r.mu.Lock()
		entry, ok := r.cache[host]
		r.mu.Unlock()
		if !ok || time.Now().After(entry.expires) {
			return "", 0, trylist, ErrNameError
		}
		return entry.ip, port, trylist, nil
	}

	lookupCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		lookupCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	ips, err := r.resolver.LookupHost(lookupCtx, host)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return "", 0, trylist, ErrNameError
		}
		return "", 0, trylist, fmt.Errorf("dnsclient: lookup %s: %w", host, err)
	}
	if len(ips) == 0 {
		return "", 0, trylist, ErrNameError
	}

	ip := ips[0]
	r.mu.Lock()
	r.cache[host] = cacheEntry{ip: ip, expires: time.Now().Add(r.ttl)}
	r.mu.Unlock()

	return ip, port, trylist, nil
}

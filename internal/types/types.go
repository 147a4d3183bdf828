package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Upstream is a named logical pool of backends addressed collectively by
// name in place of a literal host.
type Upstream struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Slots               int    `json:"slots"`
	OrderList           []int  `json:"orderlist"`
	HashOn              string `json:"hash_on"`
	HashFallback        string `json:"hash_fallback"`
	HashOnHeader        string `json:"hash_on_header"`
	HashFallbackHeader  string `json:"hash_fallback_header"`
	HealthChecks        HealthCheckSpec `json:"healthchecks"`
	CreatedAt           int64  `json:"created_at"`
	UpdatedAt           int64  `json:"updated_at"`
}

// HashMode enumerates the hash_on / hash_fallback values an upstream's hash
// policy can use.
const (
	HashNone     = "none"
	HashConsumer = "consumer"
	HashIP       = "ip"
	HashHeader   = "header"
)

// HealthCheckSpec is the per-upstream health-check configuration record.
type HealthCheckSpec struct {
	ActiveType               string `json:"active_type"`
	ActivePath               string `json:"active_path"`
	ActiveIntervalSeconds    int    `json:"active_interval_seconds"`
	ActiveTimeoutSeconds     int    `json:"active_timeout_seconds"`
	HealthyThreshold         int    `json:"healthy_threshold"`
	UnhealthyThreshold       int    `json:"unhealthy_threshold"`
	PassiveEnabled           bool   `json:"passive_enabled"`
	PassiveConsecutiveFailures int  `json:"passive_consecutive_failures"`
	PassiveFailureStatusCodes []int `json:"passive_failure_status_codes"`
}

// Target is one entry in an upstream's append-only change log, not current
// state. Weight 0 marks deletion of a previously added (name, port) pair.
type Target struct {
	UpstreamID string `json:"upstream_id"`
	ID         string `json:"id"`
	CreatedAt  int64  `json:"created_at"`
	Raw        string `json:"target"` // "host:port"
	Weight     int    `json:"weight"`

	// Derived by the loader's normalisation step.
	Name  string `json:"name"`
	Port  int    `json:"port"`
	Order string `json:"order"`
}

// NormalizeOrder fills Name, Port and Order from Raw/CreatedAt/ID, splitting
// the raw "host:port" target into a name and numeric port and synthesising
// a monotonic order key from the record's creation time and id.
func (t *Target) NormalizeOrder() error {
	name, port, err := SplitHostPort(t.Raw)
	if err != nil {
		return fmt.Errorf("normalize target %q: %w", t.Raw, err)
	}
	t.Name = name
	t.Port = port
	t.Order = fmt.Sprintf("%d:%s", t.CreatedAt, t.ID)
	return nil
}

// SplitHostPort splits a "host:port" raw target string.
func SplitHostPort(raw string) (string, int, error) {
	i := strings.IndexByte(raw, ':')
	if i <= 0 {
		return "", 0, fmt.Errorf("invalid target %q, want host:port", raw)
	}
	port, err := strconv.Atoi(raw[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("invalid target %q, want host:port", raw)
	}
	return raw[:i], port, nil
}

// History is the ordered, append-only sequence of Targets for one upstream,
// sorted ascending by Order.
type History []*Target

// LastOrder returns the Order of the last entry, or "" if empty.
func (h History) LastOrder() string {
	if len(h) == 0 {
		return ""
	}
	return h[len(h)-1].Order
}

// TargetRecordType enumerates the per-request target host classification.
type TargetRecordType string

const (
	TargetTypeName TargetRecordType = "name"
	TargetTypeIPv4 TargetRecordType = "ipv4"
	TargetTypeIPv6 TargetRecordType = "ipv6"
)

// TargetRecord is the mutable per-request record threaded through execute().
// Balancer is an opaque handle (internal/balancer.Balancer) stored as
// interface{} here to avoid an import cycle with the balancer package.
type TargetRecord struct {
	Host      string
	Port      int
	Type      TargetRecordType
	TryCount  int
	Balancer  interface{}
	HashValue *uint32

	// Request-context attributes the hash computation reads from, depending
	// on the owning upstream's hash_on/hash_fallback mode.
	ConsumerID   string
	CredentialID string
	RemoteAddr   string
	Headers      map[string][]string

	IP       string
	OutPort  int
	Hostname string
}

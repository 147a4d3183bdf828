package balancer

import (
	"context"
	"testing"

	"github.com/apexgate/upstreamcore/internal/dnsclient"
	"github.com/apexgate/upstreamcore/internal/types"
)

// S1: a literal IP target never touches the registry or DNS, it passes
// straight through.
func TestExecute_LiteralIPPassthrough(t *testing.T) {
	c, _, _ := newMemstoreCore()

	rec := &types.TargetRecord{Host: "10.0.0.5", Port: 8080, Type: types.TargetTypeIPv4}
	if err := c.Execute(context.Background(), rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.IP != "10.0.0.5" || rec.OutPort != 8080 || rec.Hostname != "10.0.0.5" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

// S1b: a literal target with no port set falls back to the configured
// default literal port.
func TestExecute_LiteralIPDefaultPort(t *testing.T) {
	c, _, _ := newMemstoreCore()

	rec := &types.TargetRecord{Host: "10.0.0.5", Type: types.TargetTypeIPv4}
	if err := c.Execute(context.Background(), rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.OutPort != c.Config.Balancer.DefaultLiteralPort {
		t.Fatalf("OutPort = %d, want default %d", rec.OutPort, c.Config.Balancer.DefaultLiteralPort)
	}
}

// S2: a name with no matching upstream falls through to plain DNS resolution.
func TestExecute_UnknownNameFallsBackToDNS(t *testing.T) {
	c, _, dns := newMemstoreCore()
	dns.set("example.com", "93.184.216.34")

	rec := &types.TargetRecord{Host: "example.com", Port: 443, Type: types.TargetTypeName}
	if err := c.Execute(context.Background(), rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if rec.IP != "93.184.216.34" || rec.OutPort != 443 || rec.Hostname != "example.com" {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

// S2b: an NXDOMAIN from the DNS client surfaces as a 503 ExecError, not a
// bare error.
func TestExecute_NameResolutionFailureIsExecError(t *testing.T) {
	c, _, _ := newMemstoreCore()
	c.DNS = errDNS{}

	rec := &types.TargetRecord{Host: "nowhere.invalid", Port: 80, Type: types.TargetTypeName}
	err := c.Execute(context.Background(), rec)
	if err == nil {
		t.Fatal("expected an error")
	}
	execErr, ok := err.(*ExecError)
	if !ok {
		t.Fatalf("err = %T, want *ExecError", err)
	}
	if execErr.Status != 503 {
		t.Fatalf("Status = %d, want 503", execErr.Status)
	}
}

// S3: with hash_on none, requests against a balanced upstream spread across
// its targets in proportion to weight (smooth weighted round robin).
func TestExecute_BalancedUpstreamRespectsWeight(t *testing.T) {
	c, dao, _ := newMemstoreCore()

	upstream := dao.PutUpstream(&types.Upstream{Name: "svc", Slots: 100, HashOn: types.HashNone})
	_, err := dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 1, Raw: "a:80", Weight: 10})
	if err != nil {
		t.Fatalf("AppendTarget a: %v", err)
	}
	_, err = dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 2, Raw: "b:80", Weight: 20})
	if err != nil {
		t.Fatalf("AppendTarget b: %v", err)
	}

	counts := map[string]int{}
	const trials = 300
	for i := 0; i < trials; i++ {
		rec := &types.TargetRecord{Host: "svc", Type: types.TargetTypeName}
		if err := c.Execute(context.Background(), rec); err != nil {
			t.Fatalf("Execute[%d]: %v", i, err)
		}
		counts[rec.Hostname]++
	}

	if counts["a"] == 0 || counts["b"] == 0 {
		t.Fatalf("expected both targets picked, got %v", counts)
	}
	// weight ratio is 1:2; allow generous slack since this is a
	// deterministic but not perfectly linear smoothing schedule.
	if counts["b"] < counts["a"] {
		t.Fatalf("expected b (weight 20) to be picked more often than a (weight 10), got %v", counts)
	}
}

// S1c: a retry (try_count != 0) against an already-resolved balancer reuses
// the balancer handle captured on the first attempt instead of looking the
// upstream up again by name.
func TestExecute_RetryReusesCapturedBalancer(t *testing.T) {
	c, dao, _ := newMemstoreCore()

	upstream := dao.PutUpstream(&types.Upstream{Name: "svc", Slots: 100, HashOn: types.HashNone})
	_, _ = dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 1, Raw: "a:80", Weight: 10})

	rec := &types.TargetRecord{Host: "svc", Type: types.TargetTypeName}
	if err := c.Execute(context.Background(), rec); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	firstBalancer := rec.Balancer

	rec.TryCount = 1
	if err := c.Execute(context.Background(), rec); err != nil {
		t.Fatalf("retry Execute: %v", err)
	}
	if rec.Balancer != firstBalancer {
		t.Fatal("retry rebound the record to a different balancer")
	}
}

type errDNS struct{}

func (errDNS) Resolve(ctx context.Context, host string, port int, cacheOnly bool) (string, int, []string, error) {
	return "", 0, nil, dnsclient.ErrNameError
}

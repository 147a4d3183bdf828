package balancer

import (
	"context"
	"testing"
	"time"

	"github.com/apexgate/upstreamcore/internal/types"
)

// S6: a passive failure signal reported against one peer of a balanced
// upstream isolates it from selection once the checker's verdict has
// propagated through the event bus back onto the ring. Propagation is
// asynchronous (checker -> bus -> ring callback), so the assertion polls.
func TestHealthEvent_PassiveFailurePropagatesToRing(t *testing.T) {
	c, dao, _ := newMemstoreCore()
	ctx := context.Background()

	upstream := dao.PutUpstream(&types.Upstream{Name: "svc", Slots: 100, HashOn: types.HashNone})
	_, _ = dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 1, Raw: "a:80", Weight: 10})
	_, _ = dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 2, Raw: "b:80", Weight: 20})

	rec := &types.TargetRecord{Host: "svc", Type: types.TargetTypeName}
	if err := c.Execute(ctx, rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	b, ok := rec.Balancer.(*Balancer)
	if !ok || b == nil {
		t.Fatal("Execute did not attach a *Balancer to the record")
	}

	failureThreshold := c.Config.Balancer.HealthCheck.Passive.ConsecutiveFailures
	for i := 0; i < failureThreshold; i++ {
		b.ReportHTTPStatus("a", 80, 503)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		sawOnlyB := true
		for i := 0; i < 20; i++ {
			probe := &types.TargetRecord{Host: "svc", Type: types.TargetTypeName}
			if err := c.Execute(ctx, probe); err != nil {
				t.Fatalf("Execute[%d]: %v", i, err)
			}
			if probe.Hostname != "b" {
				sawOnlyB = false
				break
			}
		}
		if sawOnlyB {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("peer a was not isolated after consecutive passive failures")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// PostHealth rejects a health verdict for an upstream that has no balancer
// registered yet, since there is nothing to report health against.
func TestPostHealth_NoBalancerRegistered(t *testing.T) {
	c, _, _ := newMemstoreCore()

	err := c.PostHealth(context.Background(), "does-not-exist", "1.2.3.4", 80, false)
	if err == nil {
		t.Fatal("expected an error for an unregistered upstream")
	}
}

// PostHealth pushes an externally sourced verdict through the bound
// checker, which populateHealthChecker registered every replayed target with
// when the balancer was created.
func TestPostHealth_AppliesVerdictToRegisteredBalancer(t *testing.T) {
	c, dao, _ := newMemstoreCore()
	ctx := context.Background()

	upstream := dao.PutUpstream(&types.Upstream{Name: "svc", Slots: 100, HashOn: types.HashNone})
	_, _ = dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 1, Raw: "a:80", Weight: 10})
	_, _ = dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 2, Raw: "b:80", Weight: 20})

	rec := &types.TargetRecord{Host: "svc", Type: types.TargetTypeName}
	if err := c.Execute(ctx, rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if err := c.PostHealth(ctx, "svc", "a", 80, false); err != nil {
		t.Fatalf("PostHealth: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		sawOnlyB := true
		for i := 0; i < 20; i++ {
			probe := &types.TargetRecord{Host: "svc", Type: types.TargetTypeName}
			if err := c.Execute(ctx, probe); err != nil {
				t.Fatalf("Execute[%d]: %v", i, err)
			}
			if probe.Hostname != "b" {
				sawOnlyB = false
				break
			}
		}
		if sawOnlyB {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("peer a was not isolated after PostHealth(false)")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

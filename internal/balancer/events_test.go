package balancer

import (
	"context"
	"testing"

	"github.com/apexgate/upstreamcore/internal/types"
)

// S4: appending a weight-0 target for a (name, port) already in the ring
// deletes it from the balancer's live membership once the target event
// fires.
func TestOnTargetEvent_WeightZeroDeletesTarget(t *testing.T) {
	c, dao, _ := newMemstoreCore()
	ctx := context.Background()

	upstream := dao.PutUpstream(&types.Upstream{Name: "svc", Slots: 100, HashOn: types.HashNone})
	_, _ = dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 1, Raw: "a:80", Weight: 10})
	_, _ = dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 2, Raw: "b:80", Weight: 20})

	// force creation
	rec := &types.TargetRecord{Host: "svc", Type: types.TargetTypeName}
	if err := c.Execute(ctx, rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	deleteTarget, err := dao.AppendTarget(&types.Target{UpstreamID: upstream.ID, CreatedAt: 3, Raw: "a:80", Weight: 0})
	if err != nil {
		t.Fatalf("AppendTarget delete: %v", err)
	}
	c.OnTargetEvent(ctx, "update", deleteTarget)

	for i := 0; i < 50; i++ {
		probe := &types.TargetRecord{Host: "svc", Type: types.TargetTypeName}
		if err := c.Execute(ctx, probe); err != nil {
			t.Fatalf("Execute[%d]: %v", i, err)
		}
		if probe.Hostname == "a" {
			t.Fatalf("target a still reachable after weight-0 delete")
		}
	}
}

// S5: when a fresh fetch of an upstream's history diverges from what a
// balancer was built from (an earlier entry no longer matches), the
// balancer is rebuilt wholesale rather than forward-extended, and the
// rebuild mutates the existing *Balancer in place.
func TestOnTargetEvent_HistoryDivergenceRebuilds(t *testing.T) {
	dao := newFakeDAO()
	c, _ := newTestCore(dao)
	ctx := context.Background()

	upstream := &types.Upstream{ID: "u1", Name: "svc2", Slots: 100, HashOn: types.HashNone}
	dao.putUpstream(upstream)
	dao.setTargets(upstream.ID, []*types.Target{
		{UpstreamID: upstream.ID, ID: "g1", CreatedAt: 1, Raw: "a:80", Weight: 10, Name: "a", Port: 80, Order: "1:g1"},
		{UpstreamID: upstream.ID, ID: "g2", CreatedAt: 2, Raw: "b:80", Weight: 20, Name: "b", Port: 80, Order: "2:g2"},
	})

	rec := &types.TargetRecord{Host: "svc2", Type: types.TargetTypeName}
	if err := c.Execute(ctx, rec); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	original, err := c.getBalancer(ctx, "svc2", true)
	if err != nil {
		t.Fatalf("getBalancer: %v", err)
	}

	// Edit the second history entry in place: same position, different
	// identity, simulating an upstream target that was deleted and
	// re-created rather than appended.
	dao.setTargets(upstream.ID, []*types.Target{
		{UpstreamID: upstream.ID, ID: "g1", CreatedAt: 1, Raw: "a:80", Weight: 10, Name: "a", Port: 80, Order: "1:g1"},
		{UpstreamID: upstream.ID, ID: "g3", CreatedAt: 3, Raw: "c:80", Weight: 20, Name: "c", Port: 80, Order: "3:g3"},
	})

	c.OnTargetEvent(ctx, "update", &types.Target{UpstreamID: upstream.ID})

	rebuilt, err := c.getBalancer(ctx, "svc2", true)
	if err != nil {
		t.Fatalf("getBalancer after rebuild: %v", err)
	}
	if rebuilt != original {
		t.Fatal("rebuild should mutate the existing *Balancer in place, not replace the registry entry")
	}

	sawC, sawB := false, false
	for i := 0; i < 50; i++ {
		probe := &types.TargetRecord{Host: "svc2", Type: types.TargetTypeName}
		if err := c.Execute(ctx, probe); err != nil {
			t.Fatalf("Execute[%d]: %v", i, err)
		}
		switch probe.Hostname {
		case "c":
			sawC = true
		case "b":
			sawB = true
		}
	}
	if !sawC {
		t.Fatal("expected rebuilt ring to contain the new target c")
	}
	if sawB {
		t.Fatal("expected rebuilt ring to no longer contain stale target b")
	}

	if _, ok := c.findBalancerByUpstreamID(upstream.ID); !ok {
		t.Fatal("balancer should remain registered after rebuild")
	}
}

package health

import (
	"testing"
	"time"
)

func passiveOnlyConfig(consecutiveFailures int, codes ...int) Config {
	codeSet := make(map[int]bool, len(codes))
	for _, c := range codes {
		codeSet[c] = true
	}
	return Config{
		PassiveEnabled:             true,
		PassiveConsecutiveFailures: consecutiveFailures,
		PassiveFailureStatusCodes:  codeSet,
	}
}

func TestChecker_AddTargetStartsHealthy(t *testing.T) {
	c := New(passiveOnlyConfig(3, 500))
	defer c.Stop()

	if err := c.AddTarget("a", 80, "a"); err != nil {
		t.Fatalf("AddTarget: %v", err)
	}
	healthy, known := c.Status("a", 80)
	if !known || !healthy {
		t.Fatalf("healthy=%v known=%v, want true/true", healthy, known)
	}
}

func TestChecker_StatusUnknownForUnregisteredTarget(t *testing.T) {
	c := New(passiveOnlyConfig(3, 500))
	defer c.Stop()

	_, known := c.Status("ghost", 1)
	if known {
		t.Fatal("expected known=false for a target never added")
	}
}

func TestChecker_PassiveIsolatesAfterConsecutiveFailures(t *testing.T) {
	c := New(passiveOnlyConfig(3, 500, 502, 503))
	defer c.Stop()
	_ = c.AddTarget("a", 80, "a")

	c.ReportHTTPStatus("a", 80, 500)
	c.ReportHTTPStatus("a", 80, 500)
	if healthy, _ := c.Status("a", 80); !healthy {
		t.Fatal("should still be healthy before the threshold is reached")
	}

	c.ReportHTTPStatus("a", 80, 500)
	if healthy, _ := c.Status("a", 80); healthy {
		t.Fatal("should be isolated once consecutive failures reach the threshold")
	}

	select {
	case ev := <-c.Events():
		if ev.Healthy {
			t.Fatal("expected an unhealthy event")
		}
		if ev.Host != "a" || ev.Port != 80 {
			t.Fatalf("unexpected event target: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for isolation event")
	}
}

func TestChecker_SuccessResetsFailureStreak(t *testing.T) {
	c := New(passiveOnlyConfig(3, 500))
	defer c.Stop()
	_ = c.AddTarget("a", 80, "a")

	c.ReportHTTPStatus("a", 80, 500)
	c.ReportHTTPStatus("a", 80, 500)
	c.ReportHTTPStatus("a", 80, 200)
	c.ReportHTTPStatus("a", 80, 500)
	c.ReportHTTPStatus("a", 80, 500)

	if healthy, _ := c.Status("a", 80); !healthy {
		t.Fatal("a success in between failures should reset the consecutive-failure streak")
	}
}

func TestChecker_TCPFailureIsolatesRegardlessOfStatusCodes(t *testing.T) {
	c := New(passiveOnlyConfig(1))
	defer c.Stop()
	_ = c.AddTarget("a", 80, "a")

	c.ReportTCPFailure("a", 80)
	if healthy, _ := c.Status("a", 80); healthy {
		t.Fatal("expected isolation after a TCP dial failure")
	}
}

func TestChecker_SetTargetStatusPublishesOnChangeOnly(t *testing.T) {
	c := New(passiveOnlyConfig(3, 500))
	defer c.Stop()
	_ = c.AddTarget("a", 80, "a")

	if err := c.SetTargetStatus("a", 80, true); err != nil {
		t.Fatalf("SetTargetStatus (no-op): %v", err)
	}
	select {
	case ev := <-c.Events():
		t.Fatalf("unexpected event for a no-op status change: %+v", ev)
	case <-time.After(20 * time.Millisecond):
	}

	if err := c.SetTargetStatus("a", 80, false); err != nil {
		t.Fatalf("SetTargetStatus: %v", err)
	}
	select {
	case ev := <-c.Events():
		if ev.Healthy {
			t.Fatal("expected an unhealthy event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for the status-change event")
	}
}

func TestChecker_SetTargetStatusUnknownTargetErrors(t *testing.T) {
	c := New(passiveOnlyConfig(3, 500))
	defer c.Stop()

	if err := c.SetTargetStatus("ghost", 1, false); err == nil {
		t.Fatal("expected an error for an unregistered target")
	}
}

func TestChecker_RemoveTargetStopsIntake(t *testing.T) {
	c := New(passiveOnlyConfig(1, 500))
	defer c.Stop()
	_ = c.AddTarget("a", 80, "a")
	if err := c.RemoveTarget("a", 80); err != nil {
		t.Fatalf("RemoveTarget: %v", err)
	}

	c.ReportHTTPStatus("a", 80, 500)
	if _, known := c.Status("a", 80); known {
		t.Fatal("expected the target to be forgotten after RemoveTarget")
	}
}

func TestChecker_PassiveDisabledIgnoresSignals(t *testing.T) {
	c := New(Config{PassiveEnabled: false})
	defer c.Stop()
	_ = c.AddTarget("a", 80, "a")

	c.ReportHTTPStatus("a", 80, 500)
	c.ReportTCPFailure("a", 80)

	if healthy, _ := c.Status("a", 80); !healthy {
		t.Fatal("passive signals should be ignored when PassiveEnabled is false")
	}
}

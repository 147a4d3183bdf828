package balancer

import (
	"fmt"

	"github.com/apexgate/upstreamcore/internal/ringbalancer"
	"github.com/apexgate/upstreamcore/internal/types"
)

// applyHistory replays history[start:] onto ring in order. A weight>0 entry
// adds (or reweights) a host; weight==0 removes the (name, port) pair added
// by an earlier entry. Replay is fatal to balancer creation on the first
// malformed record: a ring left partially replayed is unsafe to serve from.
func applyHistory(ring *ringbalancer.Ring, history types.History, start int) error {
	for i := start; i < len(history); i++ {
		t := history[i]
		if t.Name == "" {
			if err := t.NormalizeOrder(); err != nil {
				return fmt.Errorf("balancer: replay target %s: %w", t.ID, err)
			}
		}

		if t.Weight > 0 {
			if err := ring.AddHost(t.Name, t.Port, t.Weight); err != nil {
				return fmt.Errorf("balancer: replay add %s:%d: %w", t.Name, t.Port, err)
			}
			continue
		}
		if err := ring.RemoveHost(t.Name, t.Port); err != nil {
			return fmt.Errorf("balancer: replay remove %s:%d: %w", t.Name, t.Port, err)
		}
	}
	return nil
}

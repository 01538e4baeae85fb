package scheduler

import "sync"

// skipReason distinguishes why a node never ran.
type skipReason string

const (
	skipBranchNotTaken skipReason = "branch_not_taken"
	skipUpstreamFailed skipReason = "upstream_failed"
	skipRunHalted      skipReason = "run_halted"
)

// gating tracks nodes excluded from execution: losing branch members of
// condition decisions and dependents of failed or skipped nodes. Writes
// come from condition executors and from the level loop.
type gating struct {
	mu      sync.Mutex
	skipped map[string]skipReason
	causes  map[string]string
}

func newGating() *gating {
	return &gating{
		skipped: make(map[string]skipReason),
		causes:  make(map[string]string),
	}
}

// recordDecision marks the losing branch of a condition node as skipped.
func (g *gating) recordDecision(conditionID string, decision bool, trueBranch, falseBranch []string) {
	losing := falseBranch
	if !decision {
		losing = trueBranch
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, id := range losing {
		if _, exists := g.skipped[id]; !exists {
			g.skipped[id] = skipBranchNotTaken
			g.causes[id] = conditionID
		}
	}
}

// markSkipped records a node as skipped for the given cause node.
func (g *gating) markSkipped(id string, reason skipReason, cause string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.skipped[id]; !exists {
		g.skipped[id] = reason
		g.causes[id] = cause
	}
}

// status returns the skip reason and cause for a node, if skipped.
func (g *gating) status(id string) (skipReason, string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	reason, ok := g.skipped[id]
	return reason, g.causes[id], ok
}

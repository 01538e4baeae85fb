// Package approval brokers human-in-the-loop decisions between the API
// surface and blocked human nodes.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// Decision is the resolution of one approval request.
type Decision struct {
	Approved bool   `json:"approved"`
	Decider  string `json:"decider,omitempty"`
	Comment  string `json:"comment,omitempty"`
}

// Pending describes an outstanding request for listing endpoints.
type Pending struct {
	RunID       string    `json:"run_id"`
	NodeID      string    `json:"node_id"`
	Prompt      string    `json:"prompt"`
	RequestedAt time.Time `json:"requested_at"`
}

type waiter struct {
	pending Pending
	ch      chan Decision
}

// Broker matches approval resolutions to waiting human nodes. One request
// may be outstanding per (run, node) pair.
type Broker struct {
	mu      sync.Mutex
	waiters map[string]*waiter
}

// NewBroker creates an empty broker.
func NewBroker() *Broker {
	return &Broker{waiters: make(map[string]*waiter)}
}

func key(runID, nodeID string) string {
	return runID + "/" + nodeID
}

// Wait registers a request and blocks until it is resolved, the timeout
// elapses, or ctx is canceled. A zero timeout waits indefinitely.
func (b *Broker) Wait(ctx context.Context, runID, nodeID, prompt string, timeout time.Duration) (Decision, error) {
	k := key(runID, nodeID)
	w := &waiter{
		pending: Pending{RunID: runID, NodeID: nodeID, Prompt: prompt, RequestedAt: time.Now().UTC()},
		ch:      make(chan Decision, 1),
	}

	b.mu.Lock()
	if _, exists := b.waiters[k]; exists {
		b.mu.Unlock()
		return Decision{}, sdk.NewError(sdk.ErrInternal, "approval already pending for node %s in run %s", nodeID, runID)
	}
	b.waiters[k] = w
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.waiters, k)
		b.mu.Unlock()
	}()

	var expiry <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expiry = timer.C
	}

	select {
	case d := <-w.ch:
		return d, nil
	case <-expiry:
		return Decision{}, sdk.NewError(sdk.ErrTimeout, "approval for node %s timed out after %s", nodeID, timeout)
	case <-ctx.Done():
		return Decision{}, sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "approval for node %s canceled", nodeID)
	}
}

// Resolve delivers a decision to the waiting node. Resolving a request that
// is not pending is an error so API callers get a 404 rather than a silent
// drop.
func (b *Broker) Resolve(runID, nodeID string, d Decision) error {
	b.mu.Lock()
	w, ok := b.waiters[key(runID, nodeID)]
	b.mu.Unlock()
	if !ok {
		return sdk.NewError(sdk.ErrValidation, "no pending approval for node %s in run %s", nodeID, runID)
	}
	select {
	case w.ch <- d:
		return nil
	default:
		return sdk.NewError(sdk.ErrInternal, "approval for node %s already resolved", nodeID)
	}
}

// PendingApprovals lists outstanding requests, optionally filtered by run.
func (b *Broker) PendingApprovals(runID string) []Pending {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Pending
	for _, w := range b.waiters {
		if runID == "" || w.pending.RunID == runID {
			out = append(out, w.pending)
		}
	}
	return out
}

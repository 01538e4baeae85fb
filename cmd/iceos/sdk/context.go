package sdk

import (
	"sync"
)

// Identity carries the caller's identity through a run. The core performs
// no authentication; these fields scope memory access and budgets.
type Identity struct {
	OrgID     string `json:"org_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
}

// RunContext holds each completed node's output keyed by node id, plus the
// top-level inputs supplied at run start. The scheduler exclusively owns
// writes; executors read snapshots. A node's output is written exactly once.
type RunContext struct {
	RunID    string
	Identity Identity

	mu      sync.RWMutex
	inputs  map[string]interface{}
	outputs map[string]interface{}
	results map[string]*NodeExecutionResult
}

// NewRunContext creates a context for a run with its initial inputs.
func NewRunContext(runID string, identity Identity, inputs map[string]interface{}) *RunContext {
	if inputs == nil {
		inputs = make(map[string]interface{})
	}
	return &RunContext{
		RunID:    runID,
		Identity: identity,
		inputs:   inputs,
		outputs:  make(map[string]interface{}),
		results:  make(map[string]*NodeExecutionResult),
	}
}

// SetOutput records a node's output. Writing twice for the same node id is
// an internal error: completion is append-only.
func (c *RunContext) SetOutput(nodeID string, output interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.outputs[nodeID]; exists {
		return NewError(ErrInternal, "output for node %s already written", nodeID)
	}
	c.outputs[nodeID] = output
	return nil
}

// Output returns a node's output, if it has completed.
func (c *RunContext) Output(nodeID string) (interface{}, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out, ok := c.outputs[nodeID]
	return out, ok
}

// SetResult stores the final execution result for a node.
func (c *RunContext) SetResult(nodeID string, result *NodeExecutionResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results[nodeID] = result
}

// Result returns the stored execution result for a node.
func (c *RunContext) Result(nodeID string) (*NodeExecutionResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res, ok := c.results[nodeID]
	return res, ok
}

// Results returns a copy of all stored node results.
func (c *RunContext) Results() map[string]*NodeExecutionResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]*NodeExecutionResult, len(c.results))
	for k, v := range c.results {
		out[k] = v
	}
	return out
}

// Inputs returns a copy of the run's initial inputs.
func (c *RunContext) Inputs() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.inputs))
	for k, v := range c.inputs {
		out[k] = v
	}
	return out
}

// Outputs returns a copy of all node outputs keyed by node id.
func (c *RunContext) Outputs() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]interface{}, len(c.outputs))
	for k, v := range c.outputs {
		out[k] = v
	}
	return out
}

// Snapshot builds a stable view for template substitution and condition
// evaluation: node outputs keyed by node id, plus "inputs" and identity
// fields. The returned map is owned by the caller.
func (c *RunContext) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	snap := make(map[string]interface{}, len(c.outputs)+4)
	for k, v := range c.outputs {
		snap[k] = v
	}
	snap["inputs"] = c.inputs
	snap["org_id"] = c.Identity.OrgID
	snap["user_id"] = c.Identity.UserID
	snap["session_id"] = c.Identity.SessionID
	return snap
}

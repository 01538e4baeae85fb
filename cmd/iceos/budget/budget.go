// Package budget enforces per-run caps on LLM calls, tool executions, and
// USD cost.
package budget

import (
	"sync"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// Limits caps a run. A zero limit means unlimited.
type Limits struct {
	MaxLLMCalls       int
	MaxToolExecutions int
	OrgBudgetUSD      float64
}

// Status is a point-in-time snapshot of the budget state.
type Status struct {
	LLMCalls     int     `json:"llm_calls"`
	ToolExecs    int     `json:"tool_execs"`
	TotalCostUSD float64 `json:"total_cost_usd"`

	MaxLLMCalls       int     `json:"max_llm_calls,omitempty"`
	MaxToolExecutions int     `json:"max_tool_executions,omitempty"`
	OrgBudgetUSD      float64 `json:"org_budget_usd,omitempty"`
}

// Enforcer tracks counters for one run. FailOpen logs exceedance and lets
// the call through; fail-closed (the production default) rejects it.
type Enforcer struct {
	mu       sync.Mutex
	limits   Limits
	failOpen bool
	log      sdk.Logger

	llmCalls  int
	toolExecs int
	totalCost float64
	warned    bool
}

// NewEnforcer creates a per-run enforcer.
func NewEnforcer(limits Limits, failOpen bool, log sdk.Logger) *Enforcer {
	return &Enforcer{limits: limits, failOpen: failOpen, log: log}
}

// CheckLLMCall verifies an LLM call is within budget before dispatch.
func (e *Enforcer) CheckLLMCall() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.limits.MaxLLMCalls > 0 && e.llmCalls >= e.limits.MaxLLMCalls {
		return e.exceeded("max_llm_calls", "llm call limit reached (%d)", e.limits.MaxLLMCalls)
	}
	if e.limits.OrgBudgetUSD > 0 && e.totalCost >= e.limits.OrgBudgetUSD {
		return e.exceeded("org_budget_usd", "cost budget exhausted ($%.4f)", e.totalCost)
	}
	return nil
}

// RegisterLLMCall records a completed LLM call and its cost.
func (e *Enforcer) RegisterLLMCall(costUSD float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.llmCalls++
	e.totalCost += costUSD
}

// CheckToolExec verifies a tool execution is within budget.
func (e *Enforcer) CheckToolExec() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.limits.MaxToolExecutions > 0 && e.toolExecs >= e.limits.MaxToolExecutions {
		return e.exceeded("max_tool_executions", "tool execution limit reached (%d)", e.limits.MaxToolExecutions)
	}
	return nil
}

// RegisterToolExec records a completed tool execution.
func (e *Enforcer) RegisterToolExec() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.toolExecs++
}

// exceeded builds the budget error, or logs and passes when fail-open.
// Callers hold the mutex.
func (e *Enforcer) exceeded(counter, format string, args ...interface{}) error {
	if e.failOpen {
		if e.log != nil {
			e.log.Warn("budget exceeded, continuing (fail-open)", "counter", counter)
		}
		return nil
	}
	err := sdk.NewError(sdk.ErrBudgetExceeded, format, args...)
	err.Message = err.Message + " [" + counter + "]"
	return err
}

// GetStatus snapshots counters and limits for reporting.
func (e *Enforcer) GetStatus() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		LLMCalls:          e.llmCalls,
		ToolExecs:         e.toolExecs,
		TotalCostUSD:      e.totalCost,
		MaxLLMCalls:       e.limits.MaxLLMCalls,
		MaxToolExecutions: e.limits.MaxToolExecutions,
		OrgBudgetUSD:      e.limits.OrgBudgetUSD,
	}
}

// NearLimit reports, once per run, whether any counter crossed 80% of its
// limit. Used to emit a single BudgetWarning event.
func (e *Enforcer) NearLimit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.warned {
		return false
	}
	near := false
	if e.limits.MaxLLMCalls > 0 && float64(e.llmCalls) >= 0.8*float64(e.limits.MaxLLMCalls) {
		near = true
	}
	if e.limits.MaxToolExecutions > 0 && float64(e.toolExecs) >= 0.8*float64(e.limits.MaxToolExecutions) {
		near = true
	}
	if e.limits.OrgBudgetUSD > 0 && e.totalCost >= 0.8*e.limits.OrgBudgetUSD {
		near = true
	}
	if near {
		e.warned = true
	}
	return near
}

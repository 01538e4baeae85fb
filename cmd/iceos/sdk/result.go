package sdk

import "time"

// Usage holds token accounting for an LLM invocation.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// NodeMetadata records per-attempt execution metadata.
type NodeMetadata struct {
	NodeID     string    `json:"node_id"`
	NodeType   string    `json:"node_type"`
	StartTime  time.Time `json:"start_time"`
	EndTime    time.Time `json:"end_time"`
	DurationMS int64     `json:"duration_ms"`
	Retries    int       `json:"retries"`
	Cached     bool      `json:"cached"`
	Provider   string    `json:"provider,omitempty"`
}

// NodeExecutionResult is the outcome of one node execution. The final
// attempt's result is stored in the run context and as an event payload.
type NodeExecutionResult struct {
	Success   bool         `json:"success"`
	Output    interface{}  `json:"output,omitempty"`
	Error     string       `json:"error,omitempty"`
	ErrorKind ErrorKind    `json:"error_type,omitempty"`
	Metadata  NodeMetadata `json:"metadata"`
	Usage     *Usage       `json:"usage,omitempty"`
	CostUSD   float64      `json:"cost_usd,omitempty"`
}

// SuccessResult builds a successful result with the given output.
func SuccessResult(output interface{}) *NodeExecutionResult {
	return &NodeExecutionResult{Success: true, Output: output}
}

// FailureResult builds a failed result from an error, classifying its kind.
func FailureResult(err error) *NodeExecutionResult {
	return &NodeExecutionResult{
		Success:   false,
		Error:     err.Error(),
		ErrorKind: KindOf(err),
	}
}

// RunStatus is the lifecycle state of an execution.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCanceled  RunStatus = "canceled"
)

// WorkflowResult aggregates per-node results for a completed run.
type WorkflowResult struct {
	RunID       string                          `json:"run_id"`
	Status      RunStatus                       `json:"status"`
	Success     bool                            `json:"success"`
	Output      map[string]interface{}          `json:"output"`
	NodeResults map[string]*NodeExecutionResult `json:"node_results"`
	Error       string                          `json:"error,omitempty"`
	StartedAt   time.Time                       `json:"started_at"`
	FinishedAt  time.Time                       `json:"finished_at"`
}

// FailedNodes returns the ids of nodes that failed fatally, in no
// particular order.
func (r *WorkflowResult) FailedNodes() []string {
	var ids []string
	for id, res := range r.NodeResults {
		if res != nil && !res.Success && res.ErrorKind != ErrUpstreamFailed && res.ErrorKind != ErrCanceled {
			ids = append(ids, id)
		}
	}
	return ids
}

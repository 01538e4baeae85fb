package sdk

import (
	"context"
	"time"
)

// Logger is the minimal logging surface engine packages consume. The
// concrete implementation lives in common/logger.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
}

// Tool is a deterministic capability registered by name. Implementations
// must be safe for concurrent use.
type Tool interface {
	Name() string
	Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error)
}

// ToolFactory constructs a tool instance.
type ToolFactory func() (Tool, error)

// LLMRequest is a provider-agnostic completion request.
type LLMRequest struct {
	Model          string
	Prompt         string
	System         string
	Temperature    float64
	MaxTokens      int
	ResponseFormat string // "text", "json", "tool_calling"
}

// LLMResponse carries the completion text with usage and cost accounting.
type LLMResponse struct {
	Text    string
	Usage   Usage
	CostUSD float64
}

// LLMProvider is the capability behind llm nodes. Cost computation uses the
// provider's own capability tables.
type LLMProvider interface {
	Model() string
	Complete(ctx context.Context, req *LLMRequest) (*LLMResponse, error)
}

// LLMFactory constructs a provider for a model id.
type LLMFactory func() (LLMProvider, error)

// AgentAction is one step decided by an agent: either a tool call or a
// final answer.
type AgentAction struct {
	Thought     string
	ToolName    string
	ToolArgs    map[string]interface{}
	FinalAnswer interface{}
	Done        bool
}

// Observation is the outcome of a dispatched tool call, fed back into the
// agent on the next iteration.
type Observation struct {
	ToolName string                 `json:"tool_name"`
	Output   map[string]interface{} `json:"output,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// AgentState is the evolving state of an agent loop.
type AgentState struct {
	Iteration    int
	Inputs       map[string]interface{}
	Observations []Observation
	Scratch      map[string]interface{}
}

// Agent decides the next action given the loop state. The executor owns the
// iterate-until-stop loop; agents only decide.
type Agent interface {
	Decide(ctx context.Context, state *AgentState) (*AgentAction, error)
}

// AgentFactory constructs an agent bound to a tool subset.
type AgentFactory func(tools []Tool) (Agent, error)

// MemoryScope bounds memory reads and writes to an identity.
type MemoryScope struct {
	OrgID     string
	UserID    string
	SessionID string
}

// Hit is one semantic retrieval result.
type Hit struct {
	Key     string  `json:"key"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// MemoryStore is the external semantic memory capability.
type MemoryStore interface {
	SemanticSearch(ctx context.Context, scope MemoryScope, query string, k int) ([]Hit, error)
	Write(ctx context.Context, scope MemoryScope, key, content string) error
}

// ResourceLimits is the envelope applied around sandboxed execution.
type ResourceLimits struct {
	Timeout     time.Duration
	MemoryBytes int64
	CPUSeconds  float64
}

// CodeRunner executes code-node programs under resource caps, typically a
// WASM runtime. Inputs arrive as a ctx mapping; the output is the value of
// the conventional result variable.
type CodeRunner interface {
	Language() string
	Run(ctx context.Context, code string, imports []string, input map[string]interface{}, limits ResourceLimits) (interface{}, error)
}

// Run is the persisted execution record.
type Run struct {
	ID          string                 `json:"id"`
	BlueprintID string                 `json:"blueprint_id"`
	Status      RunStatus              `json:"status"`
	StartedAt   *time.Time             `json:"started_at,omitempty"`
	FinishedAt  *time.Time             `json:"finished_at,omitempty"`
	CostMeta    map[string]interface{} `json:"cost_meta,omitempty"`
	OrgID       string                 `json:"org_id,omitempty"`
}

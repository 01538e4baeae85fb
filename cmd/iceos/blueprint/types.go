// Package blueprint defines the typed node graph executed by the scheduler:
// node specs, schema validation, the dependency graph and its level
// assignment, and the topology hash used as the cache key prefix.
package blueprint

// SchemaVersion is the wire schema version accepted for blueprint JSON.
const SchemaVersion = "1.2.0"

// NodeType discriminates node specs.
type NodeType string

const (
	NodeTool      NodeType = "tool"
	NodeLLM       NodeType = "llm"
	NodeAgent     NodeType = "agent"
	NodeCondition NodeType = "condition"
	NodeLoop      NodeType = "loop"
	NodeParallel  NodeType = "parallel"
	NodeCode      NodeType = "code"
	NodeRecursive NodeType = "recursive"
	NodeWorkflow  NodeType = "workflow"
	NodeHuman     NodeType = "human"
	NodeSwarm     NodeType = "swarm"
)

// validNodeTypes is the set of recognized node types.
var validNodeTypes = map[NodeType]bool{
	NodeTool:      true,
	NodeLLM:       true,
	NodeAgent:     true,
	NodeCondition: true,
	NodeLoop:      true,
	NodeParallel:  true,
	NodeCode:      true,
	NodeRecursive: true,
	NodeWorkflow:  true,
	NodeHuman:     true,
	NodeSwarm:     true,
}

// BackoffStrategy selects retry delay growth.
type BackoffStrategy string

const (
	BackoffFixed       BackoffStrategy = "fixed"
	BackoffExponential BackoffStrategy = "exponential"
)

// RetryPolicy bounds retries for retryable error kinds.
type RetryPolicy struct {
	MaxAttempts int             `json:"max_attempts"`
	Backoff     BackoffStrategy `json:"backoff_strategy,omitempty"`
	BackoffMS   int             `json:"backoff_ms,omitempty"`
}

// InputMapping binds a placeholder to either a literal value or a dotted
// path into a producer node's output. An empty or "." key selects the
// entire output.
type InputMapping struct {
	Literal         interface{}
	SourceNodeID    string
	SourceOutputKey string
	IsLiteral       bool
}

// ToolRef names a tool granted to an agent.
type ToolRef struct {
	Name string                 `json:"name"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// ToolSpec configures a tool node.
type ToolSpec struct {
	ToolName string                 `json:"tool_name"`
	ToolArgs map[string]interface{} `json:"tool_args,omitempty"`
}

// LLMConfig carries sampling parameters for llm nodes.
type LLMConfig struct {
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
}

// LLMSpec configures an llm node.
type LLMSpec struct {
	Model          string    `json:"model"`
	Prompt         string    `json:"prompt"`
	Config         LLMConfig `json:"llm_config"`
	MemoryAware    bool      `json:"memory_aware,omitempty"`
	ResponseFormat string    `json:"response_format,omitempty"`
}

// AgentSpec configures an agent node.
type AgentSpec struct {
	Package       string                 `json:"package"`
	Tools         []ToolRef              `json:"tools,omitempty"`
	MaxIterations int                    `json:"max_iterations"`
	MemoryConfig  map[string]interface{} `json:"memory_config,omitempty"`
}

// ConditionSpec configures a condition node. TrueBranch/FalseBranch list
// sibling node ids gated by the decision; TruePath/FalsePath hold inline
// nodes executed in place when supplied.
type ConditionSpec struct {
	Expression  string     `json:"expression"`
	TrueBranch  []string   `json:"true_branch,omitempty"`
	FalseBranch []string   `json:"false_branch,omitempty"`
	TruePath    []NodeSpec `json:"true_path,omitempty"`
	FalsePath   []NodeSpec `json:"false_path,omitempty"`
}

// LoopSpec configures a loop node. OutputKey optionally selects a dotted
// path applied to each iteration's output when aggregating.
type LoopSpec struct {
	ItemsSource   string     `json:"items_source"`
	ItemVar       string     `json:"item_var"`
	Body          []NodeSpec `json:"body"`
	MaxIterations int        `json:"max_iterations"`
	OutputKey     string     `json:"output_key,omitempty"`
}

// WaitStrategy selects parallel-node completion semantics.
type WaitStrategy string

const (
	WaitAll WaitStrategy = "all"
	WaitAny WaitStrategy = "any"
	WaitN   WaitStrategy = "n-of-m"
)

// ParallelSpec configures a parallel node.
type ParallelSpec struct {
	Branches     [][]NodeSpec `json:"branches"`
	WaitStrategy WaitStrategy `json:"wait_strategy"`
	N            int          `json:"n,omitempty"`
}

// CodeSpec configures a code node.
type CodeSpec struct {
	Code     string   `json:"code"`
	Language string   `json:"language"`
	Imports  []string `json:"imports,omitempty"`
}

// Convergence bounds a recursive node's agent loop.
type Convergence struct {
	MaxIterations int    `json:"max_iterations"`
	StopPredicate string `json:"stop_predicate"`
}

// RecursiveSpec configures a recursive node coordinating two agents.
type RecursiveSpec struct {
	AgentPackage  string      `json:"agent_package"`
	PartnerNodeID string      `json:"partner_node_id"`
	Convergence   Convergence `json:"convergence"`
}

// WorkflowSpec configures a nested workflow node. InputMap maps nested
// workflow input names to dotted paths in the parent context; Exports lists
// output keys surfaced to the parent.
type WorkflowSpec struct {
	WorkflowRef string            `json:"workflow_ref"`
	Version     string            `json:"workflow_version,omitempty"`
	InputMap    map[string]string `json:"input_map,omitempty"`
	Exports     []string          `json:"exports,omitempty"`
}

// HumanSpec configures a human approval node.
type HumanSpec struct {
	PromptForApproval string `json:"prompt_for_approval"`
}

// SwarmAgent is one member of a swarm node.
type SwarmAgent struct {
	Role    string `json:"role"`
	Package string `json:"package"`
}

// SwarmSpec configures a swarm node.
type SwarmSpec struct {
	Agents               []SwarmAgent `json:"agents"`
	CoordinationStrategy string       `json:"coordination_strategy"`
	MaxIterations        int          `json:"max_iterations,omitempty"`
}

// NodeSpec is a tagged variant: exactly one per-type spec is populated,
// matching Type.
type NodeSpec struct {
	ID            string
	Type          NodeType
	Name          string
	Dependencies  []string
	InputSchema   *Schema
	OutputSchema  *Schema
	InputMappings map[string]InputMapping
	RetryPolicy   *RetryPolicy
	TimeoutMS     int
	UseCache      *bool
	Provider      string

	// Airgap marks a node that forbids external I/O anywhere in the
	// blueprint; RequiresExternalIO marks a node that performs it.
	Airgap             bool
	RequiresExternalIO bool

	Tool      *ToolSpec
	LLM       *LLMSpec
	Agent     *AgentSpec
	Condition *ConditionSpec
	Loop      *LoopSpec
	Parallel  *ParallelSpec
	Code      *CodeSpec
	Recursive *RecursiveSpec
	Workflow  *WorkflowSpec
	Human     *HumanSpec
	Swarm     *SwarmSpec
}

// Blueprint is an immutable, validated DAG of nodes. LockVersion is bumped
// on each mutation through the store's optimistic concurrency check.
type Blueprint struct {
	ID            string                 `json:"id,omitempty"`
	SchemaVersion string                 `json:"schema_version"`
	Metadata      map[string]interface{} `json:"metadata,omitempty"`
	Nodes         []NodeSpec             `json:"nodes"`
	LockVersion   int64                  `json:"-"`
}

// Node returns the spec with the given id, or nil.
func (b *Blueprint) Node(id string) *NodeSpec {
	for i := range b.Nodes {
		if b.Nodes[i].ID == id {
			return &b.Nodes[i]
		}
	}
	return nil
}

// CacheEnabled resolves the node-level use_cache flag against the run-level
// default. The node-level flag always wins when set.
func (n *NodeSpec) CacheEnabled(runDefault bool) bool {
	if n.UseCache != nil {
		return *n.UseCache
	}
	return runDefault
}

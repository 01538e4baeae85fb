// Package registry maps node types to executors and holds name-indexed
// factories for tools, agents, LLM providers, memory stores, code runners,
// and named workflows. It is read-mostly after startup; dynamic
// registration is gated by the allow-dynamic flag (off in production).
package registry

import (
	"context"
	"reflect"
	"sync"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// ExecFunc is the shared executor signature: every built-in and plugin
// executor is a plain function of (runtime, node spec, assembled inputs,
// run context). Inputs arrive already mapped and schema-checked.
type ExecFunc func(ctx context.Context, rt Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error)

// Runtime is the facade the scheduler exposes to executors. It breaks the
// cyclic dependency between scheduler, executors, and registry: executors
// only ever see this interface.
type Runtime interface {
	// RunSubgraph executes inline nodes (loop bodies, parallel branches,
	// condition paths) as a nested scheduler invocation. The child run
	// inherits identity and budget from the parent.
	RunSubgraph(ctx context.Context, nodes []blueprint.NodeSpec, inputs map[string]interface{}, parent *sdk.RunContext) (*sdk.WorkflowResult, error)

	// RunBlueprint executes a registered blueprint as a nested run with a
	// scoped context view.
	RunBlueprint(ctx context.Context, bp *blueprint.Blueprint, inputs map[string]interface{}, identity sdk.Identity) (*sdk.WorkflowResult, error)

	// AppendEvent appends to the current run's event stream.
	AppendEvent(ctx context.Context, kind sdk.EventType, nodeID string, payload map[string]interface{}) error

	// RecordBranchDecision feeds a condition node's decision into the
	// branch gating resolver.
	RecordBranchDecision(conditionID string, decision bool, trueBranch, falseBranch []string)

	// Evaluate runs a boolean DSL expression against an activation.
	Evaluate(expr string, activation map[string]interface{}) (bool, error)

	// ExecuteTool dispatches a tool call under the run's sandbox and
	// budget accounting. Used by agent loops.
	ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error)

	// AwaitApproval blocks until a human approval for nodeID resolves or
	// the timeout elapses.
	AwaitApproval(ctx context.Context, nodeID string, prompt string, timeoutMS int) (bool, error)

	// LookupNode returns the spec of another node in the current blueprint.
	LookupNode(id string) *blueprint.NodeSpec

	Registry() *Registry
	Budget() BudgetReporter
	DevelopmentMode() bool
	Logger() sdk.Logger
}

// BudgetReporter is the budget surface executors consume.
type BudgetReporter interface {
	CheckLLMCall() error
	RegisterLLMCall(costUSD float64)
	CheckToolExec() error
	RegisterToolExec()
	NearLimit() bool
}

// Registry is the process-wide capability registry.
type Registry struct {
	mu           sync.RWMutex
	executors    map[blueprint.NodeType]ExecFunc
	tools        map[string]sdk.ToolFactory
	agents       map[string]sdk.AgentFactory
	llms         map[string]sdk.LLMFactory
	workflows    map[string]*blueprint.Blueprint
	memory       sdk.MemoryStore
	codeRunners  map[string]sdk.CodeRunner
	sealed       bool
	allowDynamic bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{
		executors:   make(map[blueprint.NodeType]ExecFunc),
		tools:       make(map[string]sdk.ToolFactory),
		agents:      make(map[string]sdk.AgentFactory),
		llms:        make(map[string]sdk.LLMFactory),
		workflows:   make(map[string]*blueprint.Blueprint),
		codeRunners: make(map[string]sdk.CodeRunner),
	}
}

// Seal freezes the registry after startup loading. Further registration
// requires allowDynamic (development hot reload only).
func (r *Registry) Seal(allowDynamic bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
	r.allowDynamic = allowDynamic
}

// registrable reports whether a mutation is currently permitted.
func (r *Registry) registrable() error {
	if r.sealed && !r.allowDynamic {
		return sdk.NewError(sdk.ErrRegistry, "registry is sealed; dynamic registration is disabled")
	}
	return nil
}

// RegisterExecutor binds a node type to its executor function.
// Re-registering the identical function is a no-op; a different function
// for the same type is a conflict.
func (r *Registry) RegisterExecutor(t blueprint.NodeType, fn ExecFunc) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registrable(); err != nil {
		return err
	}
	if existing, ok := r.executors[t]; ok {
		if sameFunc(existing, fn) {
			return nil
		}
		return sdk.NewError(sdk.ErrRegistry, "executor for type %q already registered", t)
	}
	r.executors[t] = fn
	return nil
}

// Executor returns the executor for a node type.
func (r *Registry) Executor(t blueprint.NodeType) (ExecFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.executors[t]
	if !ok {
		return nil, sdk.NewError(sdk.ErrRegistry, "no executor registered for node type %q", t)
	}
	return fn, nil
}

// RegisterToolFactory registers a named tool factory.
func (r *Registry) RegisterToolFactory(name string, factory sdk.ToolFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registrable(); err != nil {
		return err
	}
	if existing, ok := r.tools[name]; ok {
		if sameFunc(existing, factory) {
			return nil
		}
		return sdk.NewError(sdk.ErrRegistry, "tool %q already registered", name)
	}
	r.tools[name] = factory
	return nil
}

// Tool instantiates a registered tool.
func (r *Registry) Tool(name string) (sdk.Tool, error) {
	r.mu.RLock()
	factory, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, sdk.NewError(sdk.ErrRegistry, "tool %q is not registered", name)
	}
	tool, err := factory()
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrRegistry, err, "tool factory %q failed", name)
	}
	return tool, nil
}

// RegisterAgentFactory registers a named agent factory.
func (r *Registry) RegisterAgentFactory(name string, factory sdk.AgentFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registrable(); err != nil {
		return err
	}
	if existing, ok := r.agents[name]; ok {
		if sameFunc(existing, factory) {
			return nil
		}
		return sdk.NewError(sdk.ErrRegistry, "agent %q already registered", name)
	}
	r.agents[name] = factory
	return nil
}

// Agent instantiates a registered agent with its tool subset.
func (r *Registry) Agent(name string, tools []sdk.Tool) (sdk.Agent, error) {
	r.mu.RLock()
	factory, ok := r.agents[name]
	r.mu.RUnlock()
	if !ok {
		return nil, sdk.NewError(sdk.ErrRegistry, "agent %q is not registered", name)
	}
	agent, err := factory(tools)
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrRegistry, err, "agent factory %q failed", name)
	}
	return agent, nil
}

// RegisterLLMFactory registers a provider factory for a model id.
func (r *Registry) RegisterLLMFactory(modelID string, factory sdk.LLMFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registrable(); err != nil {
		return err
	}
	if existing, ok := r.llms[modelID]; ok {
		if sameFunc(existing, factory) {
			return nil
		}
		return sdk.NewError(sdk.ErrRegistry, "model %q already registered", modelID)
	}
	r.llms[modelID] = factory
	return nil
}

// LLM instantiates the provider for a model id.
func (r *Registry) LLM(modelID string) (sdk.LLMProvider, error) {
	r.mu.RLock()
	factory, ok := r.llms[modelID]
	r.mu.RUnlock()
	if !ok {
		return nil, sdk.NewError(sdk.ErrRegistry, "model %q is not registered", modelID)
	}
	provider, err := factory()
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrRegistry, err, "llm factory %q failed", modelID)
	}
	return provider, nil
}

// RegisterWorkflow registers a named, validated blueprint for workflow
// nodes.
func (r *Registry) RegisterWorkflow(name string, bp *blueprint.Blueprint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registrable(); err != nil {
		return err
	}
	if existing, ok := r.workflows[name]; ok {
		if existing == bp {
			return nil
		}
		return sdk.NewError(sdk.ErrRegistry, "workflow %q already registered", name)
	}
	r.workflows[name] = bp
	return nil
}

// Workflow returns a registered blueprint.
func (r *Registry) Workflow(name string) (*blueprint.Blueprint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bp, ok := r.workflows[name]
	if !ok {
		return nil, sdk.NewError(sdk.ErrRegistry, "workflow %q is not registered", name)
	}
	return bp, nil
}

// SetMemoryStore installs the memory capability.
func (r *Registry) SetMemoryStore(store sdk.MemoryStore) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.memory = store
}

// Memory returns the memory capability, or nil when none is installed.
func (r *Registry) Memory() sdk.MemoryStore {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.memory
}

// RegisterCodeRunner installs the sandbox runtime for a code language.
func (r *Registry) RegisterCodeRunner(runner sdk.CodeRunner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.registrable(); err != nil {
		return err
	}
	if existing, ok := r.codeRunners[runner.Language()]; ok && existing != runner {
		return sdk.NewError(sdk.ErrRegistry, "code runner for %q already registered", runner.Language())
	}
	r.codeRunners[runner.Language()] = runner
	return nil
}

// CodeRunner returns the runtime for a code language.
func (r *Registry) CodeRunner(language string) (sdk.CodeRunner, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.codeRunners[language]
	if !ok {
		return nil, sdk.NewError(sdk.ErrRegistry, "no code runner registered for language %q", language)
	}
	return runner, nil
}

// HasTool implements blueprint.RefResolver.
func (r *Registry) HasTool(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tools[name]
	return ok
}

// HasAgent implements blueprint.RefResolver.
func (r *Registry) HasAgent(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.agents[name]
	return ok
}

// HasModel implements blueprint.RefResolver.
func (r *Registry) HasModel(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.llms[id]
	return ok
}

// HasWorkflow implements blueprint.RefResolver.
func (r *Registry) HasWorkflow(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.workflows[name]
	return ok
}

// sameFunc reports whether two function values share an entry point, which
// is what makes re-registration of the identical factory idempotent.
func sameFunc(a, b interface{}) bool {
	return reflect.ValueOf(a).Pointer() == reflect.ValueOf(b).Pointer()
}

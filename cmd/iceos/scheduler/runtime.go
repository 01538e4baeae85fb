package scheduler

import (
	"context"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// runtime is the registry.Runtime handed to executors. It is scoped to the
// blueprint, run context, and gating set a node executes in, so nested
// subgraphs resolve node lookups, sub-executions, and branch decisions
// against the right scope.
type runtime struct {
	run    *run
	bp     *blueprint.Blueprint
	rctx   *sdk.RunContext
	gating *gating
}

var _ registry.Runtime = (*runtime)(nil)

// RunSubgraph executes inline nodes as a nested level walk sharing the
// parent's stream, budget, and parallelism bound. The child context sees
// the parent's node outputs plus the supplied inputs, so mappings inside
// loop bodies and branches can reference upstream nodes.
func (rt *runtime) RunSubgraph(ctx context.Context, nodes []blueprint.NodeSpec, inputs map[string]interface{}, parent *sdk.RunContext) (*sdk.WorkflowResult, error) {
	sub := &blueprint.Blueprint{
		SchemaVersion: rt.bp.SchemaVersion,
		Nodes:         nodes,
	}
	graph, err := blueprint.BuildGraph(sub)
	if err != nil {
		return nil, err
	}

	merged := parent.Inputs()
	for k, v := range inputs {
		merged[k] = v
	}
	child := sdk.NewRunContext(parent.RunID, parent.Identity, merged)
	for id, out := range parent.Outputs() {
		if sub.Node(id) != nil {
			continue
		}
		if err := child.SetOutput(id, out); err != nil {
			return nil, err
		}
	}

	// Fresh gating scope: branch decisions inside this subgraph apply to
	// this execution only, never to sibling iterations or branches.
	started := time.Now().UTC()
	rt.run.executeLevels(ctx, sub, graph, child, make(chan struct{}, cap(rt.run.sem)), newGating())
	return rt.run.collect(graph, child, started), nil
}

// RunBlueprint executes a registered blueprint as a nested run. The child
// sees only the supplied inputs; parent outputs do not leak across the
// workflow boundary.
func (rt *runtime) RunBlueprint(ctx context.Context, bp *blueprint.Blueprint, inputs map[string]interface{}, identity sdk.Identity) (*sdk.WorkflowResult, error) {
	graph, err := blueprint.BuildGraph(bp)
	if err != nil {
		return nil, err
	}
	child := sdk.NewRunContext(rt.rctx.RunID, identity, inputs)
	started := time.Now().UTC()
	rt.run.executeLevels(ctx, bp, graph, child, make(chan struct{}, cap(rt.run.sem)), newGating())
	return rt.run.collect(graph, child, started), nil
}

func (rt *runtime) AppendEvent(ctx context.Context, kind sdk.EventType, nodeID string, payload map[string]interface{}) error {
	_, err := rt.run.stream.Append(ctx, kind, nodeID, payload)
	return err
}

func (rt *runtime) RecordBranchDecision(conditionID string, decision bool, trueBranch, falseBranch []string) {
	rt.gating.recordDecision(conditionID, decision, trueBranch, falseBranch)
}

func (rt *runtime) Evaluate(expr string, activation map[string]interface{}) (bool, error) {
	return rt.run.engine.eval.Evaluate(expr, activation)
}

// ExecuteTool dispatches a tool call with budget accounting, on behalf of
// agent loops. Tool nodes go through the tool executor instead.
func (rt *runtime) ExecuteTool(ctx context.Context, name string, args map[string]interface{}) (map[string]interface{}, error) {
	if err := rt.run.budget.CheckToolExec(); err != nil {
		return nil, err
	}
	tool, err := rt.run.engine.reg.Tool(name)
	if err != nil {
		return nil, err
	}
	out, err := tool.Execute(ctx, args)
	rt.run.budget.RegisterToolExec()
	if err != nil {
		return nil, err
	}
	return out, nil
}

// AwaitApproval blocks until the approval broker resolves the request. In
// development mode requests auto-approve immediately.
func (rt *runtime) AwaitApproval(ctx context.Context, nodeID string, prompt string, timeoutMS int) (bool, error) {
	if rt.run.engine.cfg.DevelopmentMode {
		return true, nil
	}
	timeout := time.Duration(timeoutMS) * time.Millisecond
	decision, err := rt.run.engine.approvals.Wait(ctx, rt.rctx.RunID, nodeID, prompt, timeout)
	if err != nil {
		return false, err
	}
	return decision.Approved, nil
}

func (rt *runtime) LookupNode(id string) *blueprint.NodeSpec {
	return rt.bp.Node(id)
}

func (rt *runtime) Registry() *registry.Registry {
	return rt.run.engine.reg
}

func (rt *runtime) Budget() registry.BudgetReporter {
	return rt.run.budget
}

func (rt *runtime) DevelopmentMode() bool {
	return rt.run.engine.cfg.DevelopmentMode
}

func (rt *runtime) Logger() sdk.Logger {
	return rt.run.engine.log
}

package executors

import (
	"context"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// ExecuteCondition evaluates the node's expression against the run context
// and records the branch decision. Sibling nodes listed in the losing
// branch are gated out; inline true_path/false_path nodes, when supplied,
// run in place as a subgraph.
func ExecuteCondition(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Condition
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no condition spec", node.ID)
	}

	activation := rctx.Snapshot()
	for k, v := range inputs {
		activation[k] = v
	}

	decision, err := rt.Evaluate(spec.Expression, activation)
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrValidation, err, "node %s expression", node.ID)
	}

	rt.RecordBranchDecision(node.ID, decision, spec.TrueBranch, spec.FalseBranch)
	if err := rt.AppendEvent(ctx, sdk.EventBranchDecision, node.ID, map[string]interface{}{
		"decision":   decision,
		"expression": spec.Expression,
	}); err != nil {
		return nil, err
	}

	output := map[string]interface{}{"decision": decision}

	path := spec.TruePath
	if !decision {
		path = spec.FalsePath
	}
	if len(path) > 0 {
		sub, err := rt.RunSubgraph(ctx, path, inputs, rctx)
		if err != nil {
			return nil, err
		}
		if !sub.Success {
			return nil, sdk.NewError(sdk.ErrUpstreamFailed, "node %s inline path failed: %s", node.ID, sub.Error)
		}
		output["path_output"] = unwrapSingle(sub.Output)
	}

	return sdk.SuccessResult(output), nil
}

// unwrapSingle collapses a one-entry output map to its value, so single
// leaf subgraphs read naturally downstream.
func unwrapSingle(output map[string]interface{}) interface{} {
	if len(output) == 1 {
		for _, v := range output {
			return v
		}
	}
	return output
}

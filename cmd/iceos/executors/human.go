package executors

import (
	"context"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/template"
)

// ExecuteHuman emits an approval request and suspends until it is resolved
// or times out. In development mode the runtime auto-approves. The decision
// is the node's output, so downstream conditions can branch on it; a
// timeout fails the node.
func ExecuteHuman(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Human
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no human spec", node.ID)
	}

	vars := rctx.Snapshot()
	for k, v := range inputs {
		vars[k] = v
	}
	prompt, err := template.Render(spec.PromptForApproval, vars)
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrInputUnresolved, err, "render approval prompt for node %s", node.ID)
	}

	if err := rt.AppendEvent(ctx, sdk.EventHumanApprovalRequested, node.ID, map[string]interface{}{
		"prompt":     prompt,
		"timeout_ms": node.TimeoutMS,
	}); err != nil {
		return nil, err
	}

	approved, err := rt.AwaitApproval(ctx, node.ID, prompt, node.TimeoutMS)
	if err != nil {
		return nil, err
	}

	if err := rt.AppendEvent(ctx, sdk.EventHumanApprovalResolved, node.ID, map[string]interface{}{
		"approved":     approved,
		"auto_approve": rt.DevelopmentMode(),
	}); err != nil {
		return nil, err
	}

	return sdk.SuccessResult(map[string]interface{}{"approved": approved}), nil
}

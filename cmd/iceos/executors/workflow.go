package executors

import (
	"context"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/template"
)

// ExecuteWorkflow runs a registered blueprint as a nested scheduler
// invocation. The child sees only what input_map imports from the parent
// context; exports filters which child outputs surface to the parent.
func ExecuteWorkflow(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Workflow
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no workflow spec", node.ID)
	}

	ref := spec.WorkflowRef
	if spec.Version != "" {
		ref = ref + "@" + spec.Version
	}
	bp, err := rt.Registry().Workflow(ref)
	if err != nil && spec.Version != "" {
		// Fall back to the unversioned registration.
		bp, err = rt.Registry().Workflow(spec.WorkflowRef)
	}
	if err != nil {
		return nil, err
	}

	childInputs := make(map[string]interface{}, len(spec.InputMap)+len(inputs))
	for k, v := range inputs {
		childInputs[k] = v
	}
	if len(spec.InputMap) > 0 {
		vars := rctx.Snapshot()
		for name, path := range spec.InputMap {
			value, rerr := template.ResolvePath(vars, path)
			if rerr != nil {
				return nil, sdk.WrapError(sdk.ErrInputUnresolved, rerr, "node %s input_map %q", node.ID, name)
			}
			childInputs[name] = value
		}
	}

	result, err := rt.RunBlueprint(ctx, bp, childInputs, rctx.Identity)
	if err != nil {
		return nil, err
	}
	if !result.Success {
		return nil, sdk.NewError(sdk.ErrUpstreamFailed, "workflow %s failed: %s", spec.WorkflowRef, result.Error)
	}

	output := result.Output
	if len(spec.Exports) > 0 {
		filtered := make(map[string]interface{}, len(spec.Exports))
		for _, key := range spec.Exports {
			if v, ok := output[key]; ok {
				filtered[key] = v
			}
		}
		output = filtered
	}
	return sdk.SuccessResult(output), nil
}

package executors

import (
	"context"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/template"
)

// ExecuteTool runs a tool node: substitutes placeholders in the declared
// tool_args, merges the assembled inputs over them, and invokes the tool
// under budget accounting.
func ExecuteTool(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Tool
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no tool spec", node.ID)
	}

	if err := rt.Budget().CheckToolExec(); err != nil {
		return nil, err
	}

	tool, err := rt.Registry().Tool(spec.ToolName)
	if err != nil {
		return nil, err
	}

	vars := rctx.Snapshot()
	for k, v := range inputs {
		vars[k] = v
	}
	args := make(map[string]interface{}, len(spec.ToolArgs)+len(inputs))
	for k, v := range spec.ToolArgs {
		resolved, rerr := template.RenderValue(v, vars)
		if rerr != nil {
			return nil, sdk.WrapError(sdk.ErrInputUnresolved, rerr, "tool arg %q", k)
		}
		args[k] = resolved
	}
	for k, v := range inputs {
		args[k] = v
	}

	output, err := tool.Execute(ctx, args)
	rt.Budget().RegisterToolExec()
	if err != nil {
		return nil, err
	}
	return sdk.SuccessResult(output), nil
}

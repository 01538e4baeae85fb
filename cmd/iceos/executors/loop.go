package executors

import (
	"context"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/template"
)

// ExecuteLoop resolves items_source to a list and runs the body once per
// item with item_var bound in the child context. The node's output is the
// list of per-iteration outputs, optionally narrowed by output_key.
func ExecuteLoop(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Loop
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no loop spec", node.ID)
	}

	vars := rctx.Snapshot()
	for k, v := range inputs {
		vars[k] = v
	}
	resolved, err := template.ResolvePath(vars, spec.ItemsSource)
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrInputUnresolved, err, "node %s items_source %q", node.ID, spec.ItemsSource)
	}
	items, ok := resolved.([]interface{})
	if !ok {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s items_source %q is not a list", node.ID, spec.ItemsSource)
	}

	if spec.MaxIterations > 0 && len(items) > spec.MaxIterations {
		items = items[:spec.MaxIterations]
	}

	results := make([]interface{}, 0, len(items))
	for i, item := range items {
		if ctx.Err() != nil {
			return nil, sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "loop %s canceled at iteration %d", node.ID, i)
		}

		iterInputs := map[string]interface{}{
			spec.ItemVar: item,
			"loop_index": i,
		}
		for k, v := range inputs {
			if _, shadowed := iterInputs[k]; !shadowed {
				iterInputs[k] = v
			}
		}

		sub, err := rt.RunSubgraph(ctx, spec.Body, iterInputs, rctx)
		if err != nil {
			return nil, err
		}
		if !sub.Success {
			return nil, sdk.NewError(sdk.ErrUpstreamFailed, "loop %s iteration %d failed: %s", node.ID, i, sub.Error)
		}

		value := unwrapSingle(sub.Output)
		if spec.OutputKey != "" {
			value, err = template.Subpath(value, spec.OutputKey)
			if err != nil {
				return nil, sdk.WrapError(sdk.ErrOutputSchema, err, "loop %s iteration %d output_key %q", node.ID, i, spec.OutputKey)
			}
		}
		results = append(results, value)
	}

	return sdk.SuccessResult(results), nil
}

package executors

import (
	"context"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// codeImportAllowlist is the module allowlist enforced before code reaches
// the sandbox runtime.
var codeImportAllowlist = map[string]bool{
	"json":        true,
	"math":        true,
	"re":          true,
	"datetime":    true,
	"collections": true,
	"itertools":   true,
	"functools":   true,
	"statistics":  true,
}

// ExecuteCode runs a code node through the registered sandbox runtime for
// its language. Inputs are injected as the ctx mapping; the runtime
// returns the conventional result variable.
func ExecuteCode(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Code
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no code spec", node.ID)
	}

	for _, imp := range spec.Imports {
		if !codeImportAllowlist[imp] {
			return nil, sdk.NewError(sdk.ErrSandboxViolation, "node %s: import %q is not allowed", node.ID, imp)
		}
	}

	runner, err := rt.Registry().CodeRunner(spec.Language)
	if err != nil {
		return nil, err
	}

	limits := sdk.ResourceLimits{}
	if node.TimeoutMS > 0 {
		limits.Timeout = time.Duration(node.TimeoutMS) * time.Millisecond
	}

	value, err := runner.Run(ctx, spec.Code, spec.Imports, inputs, limits)
	if err != nil {
		return nil, err
	}
	return sdk.SuccessResult(value), nil
}

package executors

import (
	"context"
	"sync"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

type branchOutcome struct {
	index  int
	result *sdk.WorkflowResult
	err    error
}

// ExecuteParallel launches each branch as a sub-scheduler run and applies
// the wait strategy: all (every branch must succeed; output is a list by
// branch index), any (first success wins and cancels the rest), or n-of-m
// (n successes win and cancel the rest).
func ExecuteParallel(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Parallel
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no parallel spec", node.ID)
	}

	branchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan branchOutcome, len(spec.Branches))
	var wg sync.WaitGroup
	for i, branch := range spec.Branches {
		wg.Add(1)
		go func(i int, branch []blueprint.NodeSpec) {
			defer wg.Done()
			result, err := rt.RunSubgraph(branchCtx, branch, inputs, rctx)
			outcomes <- branchOutcome{index: i, result: result, err: err}
		}(i, branch)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	need := len(spec.Branches)
	switch spec.WaitStrategy {
	case blueprint.WaitAny:
		need = 1
	case blueprint.WaitN:
		need = spec.N
		if need <= 0 || need > len(spec.Branches) {
			return nil, sdk.NewError(sdk.ErrValidation, "node %s: n must be in [1,%d]", node.ID, len(spec.Branches))
		}
	}

	outputs := make([]interface{}, len(spec.Branches))
	succeeded := 0
	var firstFailure error
	for outcome := range outcomes {
		if outcome.err != nil {
			if firstFailure == nil {
				firstFailure = outcome.err
			}
			continue
		}
		if !outcome.result.Success {
			if outcome.result.Status == sdk.RunCanceled {
				continue
			}
			if firstFailure == nil {
				firstFailure = sdk.NewError(sdk.ErrUpstreamFailed, "branch %d failed: %s", outcome.index, outcome.result.Error)
			}
			continue
		}

		outputs[outcome.index] = unwrapSingle(outcome.result.Output)
		succeeded++
		if succeeded >= need {
			cancel()
			// Drain remaining branches so the subgraph goroutines finish.
			for range outcomes {
			}
			break
		}
	}

	if ctx.Err() != nil {
		return nil, sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "parallel %s canceled", node.ID)
	}
	if succeeded < need {
		if firstFailure != nil {
			return nil, firstFailure
		}
		return nil, sdk.NewError(sdk.ErrUpstreamFailed, "node %s: only %d of required %d branches succeeded", node.ID, succeeded, need)
	}

	if spec.WaitStrategy == blueprint.WaitAny {
		for _, out := range outputs {
			if out != nil {
				return sdk.SuccessResult(out), nil
			}
		}
	}
	return sdk.SuccessResult(outputs), nil
}

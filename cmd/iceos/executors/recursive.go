package executors

import (
	"context"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// ExecuteRecursive alternates two agents until the stop predicate holds or
// max_iterations is reached. The partner is named by another agent node in
// the blueprint; state accumulates in a scratch area keyed by this node.
// Each round emits a RecursionRound event.
func ExecuteRecursive(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Recursive
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no recursive spec", node.ID)
	}

	partner := rt.LookupNode(spec.PartnerNodeID)
	if partner == nil || partner.Agent == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s: partner %q is not an agent node", node.ID, spec.PartnerNodeID)
	}

	primary, err := rt.Registry().Agent(spec.AgentPackage, nil)
	if err != nil {
		return nil, err
	}
	secondary, err := rt.Registry().Agent(partner.Agent.Package, nil)
	if err != nil {
		return nil, err
	}

	maxRounds := spec.Convergence.MaxIterations
	if maxRounds <= 0 {
		maxRounds = defaultAgentIterations
	}

	scratch := map[string]interface{}{"inputs": inputs}
	var lastAnswer interface{}
	rounds := 0

	for round := 1; round <= maxRounds; round++ {
		if ctx.Err() != nil {
			return nil, sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "recursive %s canceled at round %d", node.ID, round)
		}
		rounds = round

		state := &sdk.AgentState{Iteration: round, Inputs: inputs, Scratch: scratch}
		proposal, err := primary.Decide(ctx, state)
		if err != nil {
			return nil, err
		}
		scratch["proposal"] = proposal.FinalAnswer

		review, err := secondary.Decide(ctx, state)
		if err != nil {
			return nil, err
		}
		scratch["review"] = review.FinalAnswer
		scratch["round"] = round
		lastAnswer = proposal.FinalAnswer

		if err := rt.AppendEvent(ctx, sdk.EventRecursionRound, node.ID, map[string]interface{}{
			"round":    round,
			"proposal": proposal.Thought,
			"review":   review.Thought,
		}); err != nil {
			return nil, err
		}

		if spec.Convergence.StopPredicate != "" {
			stop, err := rt.Evaluate(spec.Convergence.StopPredicate, scratch)
			if err != nil {
				return nil, sdk.WrapError(sdk.ErrValidation, err, "node %s stop_predicate", node.ID)
			}
			if stop {
				break
			}
		} else if proposal.Done && review.Done {
			break
		}
	}

	return sdk.SuccessResult(map[string]interface{}{
		"final_answer": lastAnswer,
		"rounds":       rounds,
	}), nil
}

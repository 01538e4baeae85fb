package executors

import (
	"context"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// ExecuteSwarm coordinates a set of agents over shared scratch state. The
// round-robin strategy hands the state to each agent in declaration order
// every round; the run ends when any agent answers or max_iterations
// elapses. The transcript of contributions is part of the output.
func ExecuteSwarm(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Swarm
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no swarm spec", node.ID)
	}
	if spec.CoordinationStrategy != "" && spec.CoordinationStrategy != "round-robin" {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s: unsupported coordination strategy %q", node.ID, spec.CoordinationStrategy)
	}

	agents := make([]sdk.Agent, len(spec.Agents))
	for i, member := range spec.Agents {
		agent, err := rt.Registry().Agent(member.Package, nil)
		if err != nil {
			return nil, err
		}
		agents[i] = agent
	}

	maxRounds := spec.MaxIterations
	if maxRounds <= 0 {
		maxRounds = defaultAgentIterations
	}

	scratch := map[string]interface{}{"inputs": inputs}
	var transcript []map[string]interface{}

	for round := 1; round <= maxRounds; round++ {
		for i, agent := range agents {
			if ctx.Err() != nil {
				return nil, sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "swarm %s canceled at round %d", node.ID, round)
			}

			state := &sdk.AgentState{Iteration: round, Inputs: inputs, Scratch: scratch}
			action, err := agent.Decide(ctx, state)
			if err != nil {
				return nil, err
			}

			role := spec.Agents[i].Role
			entry := map[string]interface{}{
				"round":   round,
				"role":    role,
				"thought": action.Thought,
			}
			transcript = append(transcript, entry)
			scratch[role] = action.FinalAnswer

			if err := rt.AppendEvent(ctx, sdk.EventAgentIteration, node.ID, entry); err != nil {
				return nil, err
			}

			if action.Done {
				return sdk.SuccessResult(map[string]interface{}{
					"final_answer": action.FinalAnswer,
					"role":         role,
					"rounds":       round,
					"transcript":   transcript,
				}), nil
			}
		}
	}

	return sdk.SuccessResult(map[string]interface{}{
		"final_answer": nil,
		"rounds":       maxRounds,
		"transcript":   transcript,
	}), nil
}

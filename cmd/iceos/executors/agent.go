package executors

import (
	"context"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

const defaultAgentIterations = 10

// ExecuteAgent runs an agent node: instantiates the agent with its tool
// subset and drives the iterate-until-stop loop. Each iteration either
// dispatches a tool call through the runtime (sandbox and budget apply) or
// returns the final answer. Per-iteration events land under the agent's
// node id.
func ExecuteAgent(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.Agent
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no agent spec", node.ID)
	}

	tools := make([]sdk.Tool, 0, len(spec.Tools))
	for _, ref := range spec.Tools {
		tool, err := rt.Registry().Tool(ref.Name)
		if err != nil {
			return nil, err
		}
		tools = append(tools, tool)
	}

	agent, err := rt.Registry().Agent(spec.Package, tools)
	if err != nil {
		return nil, err
	}

	maxIterations := spec.MaxIterations
	if maxIterations <= 0 {
		maxIterations = defaultAgentIterations
	}

	state := &sdk.AgentState{
		Inputs:  inputs,
		Scratch: make(map[string]interface{}),
	}

	for i := 1; i <= maxIterations; i++ {
		if ctx.Err() != nil {
			return nil, sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "agent %s canceled at iteration %d", node.ID, i)
		}
		state.Iteration = i

		action, err := agent.Decide(ctx, state)
		if err != nil {
			return nil, err
		}

		payload := map[string]interface{}{"iteration": i, "thought": action.Thought}
		if action.Done {
			payload["final"] = true
		} else {
			payload["tool"] = action.ToolName
		}
		if err := rt.AppendEvent(ctx, sdk.EventAgentIteration, node.ID, payload); err != nil {
			return nil, err
		}

		if action.Done {
			return sdk.SuccessResult(map[string]interface{}{
				"final_answer": action.FinalAnswer,
				"iterations":   i,
			}), nil
		}

		obs := sdk.Observation{ToolName: action.ToolName}
		output, toolErr := rt.ExecuteTool(ctx, action.ToolName, action.ToolArgs)
		if toolErr != nil {
			if sdk.KindOf(toolErr) == sdk.ErrBudgetExceeded {
				return nil, toolErr
			}
			obs.Error = toolErr.Error()
		} else {
			obs.Output = output
		}
		state.Observations = append(state.Observations, obs)
	}

	return nil, sdk.NewError(sdk.ErrInternal, "agent %s did not finish within %d iterations", node.ID, maxIterations)
}

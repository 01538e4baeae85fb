// Package agents holds the built-in agent implementations: an LLM-backed
// reasoning agent and a scripted agent for development and tests.
package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// action is the JSON shape the LLM agent asks the model to emit each
// iteration.
type action struct {
	Thought     string                 `json:"thought"`
	Tool        string                 `json:"tool,omitempty"`
	Args        map[string]interface{} `json:"args,omitempty"`
	FinalAnswer interface{}            `json:"final_answer,omitempty"`
	Done        bool                   `json:"done"`
}

// LLMAgent drives a reason-act loop through an LLM provider. Each Decide
// call renders the loop state into a prompt and parses the model's JSON
// action. A response that is not valid action JSON is treated as a final
// answer, so plain-text models still terminate.
type LLMAgent struct {
	name     string
	provider sdk.LLMProvider
	tools    []sdk.Tool
}

// NewLLMAgent creates an agent bound to a provider and tool subset.
func NewLLMAgent(name string, provider sdk.LLMProvider, tools []sdk.Tool) *LLMAgent {
	return &LLMAgent{name: name, provider: provider, tools: tools}
}

func (a *LLMAgent) Decide(ctx context.Context, state *sdk.AgentState) (*sdk.AgentAction, error) {
	resp, err := a.provider.Complete(ctx, &sdk.LLMRequest{
		Model:          a.provider.Model(),
		System:         a.systemPrompt(),
		Prompt:         renderState(state),
		ResponseFormat: "json",
	})
	if err != nil {
		return nil, err
	}

	var act action
	if err := json.Unmarshal([]byte(resp.Text), &act); err != nil || (act.Tool == "" && !act.Done && act.FinalAnswer == nil) {
		return &sdk.AgentAction{FinalAnswer: resp.Text, Done: true}, nil
	}
	return &sdk.AgentAction{
		Thought:     act.Thought,
		ToolName:    act.Tool,
		ToolArgs:    act.Args,
		FinalAnswer: act.FinalAnswer,
		Done:        act.Done || (act.Tool == "" && act.FinalAnswer != nil),
	}, nil
}

func (a *LLMAgent) systemPrompt() string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are agent %q. Decide one action per turn.\n", a.name)
	b.WriteString("Respond with JSON: {\"thought\": str, \"tool\": str, \"args\": obj} to call a tool, ")
	b.WriteString("or {\"thought\": str, \"final_answer\": any, \"done\": true} to finish.\n")
	if len(a.tools) > 0 {
		b.WriteString("Available tools:")
		for _, t := range a.tools {
			b.WriteString(" " + t.Name())
		}
		b.WriteString("\n")
	}
	return b.String()
}

// renderState serializes the loop state for the model.
func renderState(state *sdk.AgentState) string {
	payload := map[string]interface{}{
		"iteration": state.Iteration,
		"inputs":    state.Inputs,
	}
	if len(state.Observations) > 0 {
		payload["observations"] = state.Observations
	}
	if len(state.Scratch) > 0 {
		payload["scratch"] = state.Scratch
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(data)
}

// ScriptedAgent replays a fixed action sequence, then finishes. Used by
// development blueprints and tests where determinism matters.
type ScriptedAgent struct {
	steps []sdk.AgentAction
}

// NewScriptedAgent creates an agent replaying the given steps in order.
func NewScriptedAgent(steps ...sdk.AgentAction) *ScriptedAgent {
	return &ScriptedAgent{steps: steps}
}

func (a *ScriptedAgent) Decide(_ context.Context, state *sdk.AgentState) (*sdk.AgentAction, error) {
	idx := state.Iteration - 1
	if idx < 0 || idx >= len(a.steps) {
		return &sdk.AgentAction{FinalAnswer: state.Inputs, Done: true}, nil
	}
	step := a.steps[idx]
	return &step, nil
}

// Factory builds an sdk.AgentFactory producing LLM agents under the given
// name and provider factory. Used when applying plugin manifests.
func Factory(name string, providerFactory sdk.LLMFactory) sdk.AgentFactory {
	return func(tools []sdk.Tool) (sdk.Agent, error) {
		provider, err := providerFactory()
		if err != nil {
			return nil, err
		}
		return NewLLMAgent(name, provider, tools), nil
	}
}

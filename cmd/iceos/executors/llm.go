package executors

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/template"
)

// ExecuteLLM runs an llm node: renders the prompt template over the run
// context, optionally prepends semantic memory, dispatches to the
// provider, and records usage and cost against the budget.
func ExecuteLLM(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, error) {
	spec := node.LLM
	if spec == nil {
		return nil, sdk.NewError(sdk.ErrValidation, "node %s has no llm spec", node.ID)
	}

	if err := rt.Budget().CheckLLMCall(); err != nil {
		return nil, err
	}

	vars := rctx.Snapshot()
	for k, v := range inputs {
		vars[k] = v
	}
	prompt, err := template.Render(spec.Prompt, vars)
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrInputUnresolved, err, "render prompt for node %s", node.ID)
	}

	system := ""
	if spec.MemoryAware {
		system, err = memoryPreamble(ctx, rt, rctx, prompt)
		if err != nil {
			rt.Logger().Warn("memory retrieval failed, continuing without", "node_id", node.ID, "error", err)
		}
	}

	provider, err := rt.Registry().LLM(spec.Model)
	if err != nil {
		return nil, err
	}

	resp, err := provider.Complete(ctx, &sdk.LLMRequest{
		Model:          spec.Model,
		Prompt:         prompt,
		System:         system,
		Temperature:    spec.Config.Temperature,
		MaxTokens:      spec.Config.MaxTokens,
		ResponseFormat: spec.ResponseFormat,
	})
	if err != nil {
		return nil, err
	}
	rt.Budget().RegisterLLMCall(resp.CostUSD)

	output := map[string]interface{}{"response": resp.Text}
	if spec.ResponseFormat == "json" {
		var parsed interface{}
		if jerr := json.Unmarshal([]byte(resp.Text), &parsed); jerr != nil {
			return nil, sdk.WrapError(sdk.ErrOutputSchema, jerr, "node %s: provider returned invalid JSON", node.ID)
		}
		output["response"] = parsed
	}

	result := sdk.SuccessResult(output)
	result.Usage = &sdk.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	result.CostUSD = resp.CostUSD
	result.Metadata.Provider = provider.Model()
	return result, nil
}

// memoryPreamble retrieves semantic memory scoped to the run identity and
// formats it as a system preamble.
func memoryPreamble(ctx context.Context, rt registry.Runtime, rctx *sdk.RunContext, query string) (string, error) {
	store := rt.Registry().Memory()
	if store == nil {
		return "", nil
	}
	scope := sdk.MemoryScope{
		OrgID:     rctx.Identity.OrgID,
		UserID:    rctx.Identity.UserID,
		SessionID: rctx.Identity.SessionID,
	}
	hits, err := store.SemanticSearch(ctx, scope, query, 5)
	if err != nil {
		return "", err
	}
	if len(hits) == 0 {
		return "", nil
	}
	var b strings.Builder
	b.WriteString("Relevant context:\n")
	for _, hit := range hits {
		b.WriteString("- ")
		b.WriteString(hit.Content)
		b.WriteString("\n")
	}
	return b.String(), nil
}

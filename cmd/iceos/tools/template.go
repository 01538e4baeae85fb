package tools

import (
	"context"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/template"
)

// TemplateTool renders a {{placeholder}} template against the vars
// argument. Useful for assembling prompts or messages from upstream node
// outputs without a code node.
type TemplateTool struct{}

func (t *TemplateTool) Name() string { return "template" }

func (t *TemplateTool) Execute(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	tmpl, ok := args["template"].(string)
	if !ok || tmpl == "" {
		return nil, sdk.NewError(sdk.ErrValidation, "template tool requires a template string argument")
	}
	vars, _ := args["vars"].(map[string]interface{})
	if vars == nil {
		// Fall back to the remaining arguments as the variable scope.
		vars = make(map[string]interface{}, len(args))
		for k, v := range args {
			if k != "template" {
				vars[k] = v
			}
		}
	}

	rendered, err := template.Render(tmpl, vars)
	if err != nil {
		return nil, sdk.WrapError(sdk.ErrValidation, err, "template render failed")
	}
	return map[string]interface{}{"rendered": rendered}, nil
}

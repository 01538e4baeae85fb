package sandbox

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// DevRunner is the development-mode code runner. It does not execute
// Python: it supports only the assignment convention used by dev
// blueprints, where the final `result = ...` line is a JSON literal or a
// ctx reference. The production deployment registers a WASM runtime under
// the same interface.
type DevRunner struct {
	language string
}

// NewDevRunner creates a stub runner for the given language id.
func NewDevRunner(language string) *DevRunner {
	return &DevRunner{language: language}
}

func (r *DevRunner) Language() string { return r.language }

func (r *DevRunner) Run(ctx context.Context, code string, _ []string, input map[string]interface{}, limits sdk.ResourceLimits) (interface{}, error) {
	if limits.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}
	if err := ctx.Err(); err != nil {
		return nil, sdk.WrapError(sdk.ErrCanceled, err, "code run canceled")
	}

	assignment := ""
	for _, line := range strings.Split(code, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "result") {
			if rest := strings.TrimPrefix(trimmed, "result"); strings.HasPrefix(strings.TrimSpace(rest), "=") {
				assignment = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(rest), "="))
			}
		}
	}
	if assignment == "" {
		return nil, sdk.NewError(sdk.ErrValidation, "dev code runner requires a `result = ...` assignment")
	}

	if value, ok := resolveCtxRef(assignment, input); ok {
		return value, nil
	}

	var literal interface{}
	if err := json.Unmarshal([]byte(normalizeLiteral(assignment)), &literal); err != nil {
		return nil, sdk.NewError(sdk.ErrValidation, "dev code runner cannot evaluate %q; use a JSON literal or ctx reference", assignment)
	}
	return literal, nil
}

// resolveCtxRef handles `ctx["key"]`, `ctx['key']`, and `ctx.key` forms.
func resolveCtxRef(expr string, input map[string]interface{}) (interface{}, bool) {
	if !strings.HasPrefix(expr, "ctx") {
		return nil, false
	}
	rest := strings.TrimPrefix(expr, "ctx")
	var key string
	switch {
	case strings.HasPrefix(rest, "[\"") && strings.HasSuffix(rest, "\"]"):
		key = rest[2 : len(rest)-2]
	case strings.HasPrefix(rest, "['") && strings.HasSuffix(rest, "']"):
		key = rest[2 : len(rest)-2]
	case strings.HasPrefix(rest, "."):
		key = rest[1:]
	default:
		return nil, false
	}
	value, ok := input[key]
	return value, ok
}

// normalizeLiteral maps the Python literals dev blueprints use onto JSON.
func normalizeLiteral(expr string) string {
	switch expr {
	case "True":
		return "true"
	case "False":
		return "false"
	case "None":
		return "null"
	}
	if strings.HasPrefix(expr, "'") && strings.HasSuffix(expr, "'") && len(expr) >= 2 {
		return "\"" + expr[1:len(expr)-1] + "\""
	}
	return expr
}

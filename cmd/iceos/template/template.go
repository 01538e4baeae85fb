// Package template is the single audited substitution engine shared by
// tool, llm, and agent executors. It supports {{ var }} placeholders with
// dotted access into the run context snapshot; no function calls, no
// arbitrary code.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var placeholderPattern = regexp.MustCompile(`\{\{\s*([^}]+?)\s*\}\}`)

// Render substitutes every {{ path }} placeholder in s with the value at
// the dotted path in vars. Missing paths are an error: prompts must not
// silently render empty.
func Render(s string, vars map[string]interface{}) (string, error) {
	var renderErr error
	out := placeholderPattern.ReplaceAllStringFunc(s, func(match string) string {
		if renderErr != nil {
			return match
		}
		path := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])
		value, err := ResolvePath(vars, path)
		if err != nil {
			renderErr = fmt.Errorf("placeholder %q: %w", path, err)
			return match
		}
		return stringify(value)
	})
	if renderErr != nil {
		return "", renderErr
	}
	return out, nil
}

// RenderValue recursively substitutes placeholders in strings inside maps
// and slices. A string that is exactly one placeholder resolves to the
// referenced value itself, preserving its type.
func RenderValue(v interface{}, vars map[string]interface{}) (interface{}, error) {
	switch val := v.(type) {
	case string:
		if m := placeholderPattern.FindStringSubmatch(val); m != nil && strings.TrimSpace(val) == m[0] {
			return ResolvePath(vars, strings.TrimSpace(m[1]))
		}
		return Render(val, vars)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			resolved, err := RenderValue(item, vars)
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", k, err)
			}
			out[k] = resolved
		}
		return out, nil
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			resolved, err := RenderValue(item, vars)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			out[i] = resolved
		}
		return out, nil
	default:
		return v, nil
	}
}

// ResolvePath reads a dotted path out of vars. An empty path or "." returns
// vars itself. Nested fields resolve through gjson over the marshaled
// value, so array indices ("items.2.v") work as well.
func ResolvePath(vars map[string]interface{}, path string) (interface{}, error) {
	if path == "" || path == "." {
		return vars, nil
	}
	parts := strings.SplitN(path, ".", 2)
	head := parts[0]
	value, ok := vars[head]
	if !ok {
		return nil, fmt.Errorf("variable %q not found", head)
	}
	if len(parts) == 1 {
		return value, nil
	}
	return Subpath(value, parts[1])
}

// Subpath extracts a dotted path from an arbitrary JSON-shaped value.
func Subpath(value interface{}, path string) (interface{}, error) {
	if path == "" || path == "." {
		return value, nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("marshal value for path %q: %w", path, err)
	}
	result := gjson.GetBytes(data, path)
	if !result.Exists() {
		return nil, fmt.Errorf("path %q not found", path)
	}
	return result.Value(), nil
}

// stringify renders a resolved value into a prompt or argument string.
// Complex values are marshaled to JSON, matching the wire representation.
func stringify(v interface{}) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(data)
	}
}

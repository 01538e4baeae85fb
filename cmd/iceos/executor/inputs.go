package executor

import (
	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/template"
)

// AssembleInputs materializes a node's declared input mappings against the
// run context. Literals pass through unchanged; references read the
// producer's recorded output, optionally narrowed by a dotted key. A
// reference to a node that has not completed is an input_unresolved error:
// the scheduler only dispatches after dependencies finish, so hitting one
// means the mapping escapes the declared dependency set.
func AssembleInputs(node *blueprint.NodeSpec, rctx *sdk.RunContext) (map[string]interface{}, error) {
	inputs := make(map[string]interface{}, len(node.InputMappings))
	for name, mapping := range node.InputMappings {
		if mapping.IsLiteral {
			inputs[name] = mapping.Literal
			continue
		}
		if mapping.SourceNodeID == "inputs" {
			value, err := template.ResolvePath(map[string]interface{}{"inputs": rctx.Inputs()}, joinPath("inputs", mapping.SourceOutputKey))
			if err != nil {
				return nil, sdk.WrapError(sdk.ErrInputUnresolved, err, "node %s input %q", node.ID, name)
			}
			inputs[name] = value
			continue
		}
		output, ok := rctx.Output(mapping.SourceNodeID)
		if !ok {
			return nil, sdk.NewError(sdk.ErrInputUnresolved, "node %s input %q references %s, which has not produced output", node.ID, name, mapping.SourceNodeID)
		}
		if mapping.SourceOutputKey == "" || mapping.SourceOutputKey == "." || mapping.SourceOutputKey == "*" {
			inputs[name] = output
			continue
		}
		value, err := template.Subpath(output, mapping.SourceOutputKey)
		if err != nil {
			return nil, sdk.WrapError(sdk.ErrInputUnresolved, err, "node %s input %q from %s", node.ID, name, mapping.SourceNodeID)
		}
		inputs[name] = value
	}
	return inputs, nil
}

func joinPath(head, rest string) string {
	if rest == "" || rest == "." || rest == "*" {
		return head
	}
	return head + "." + rest
}

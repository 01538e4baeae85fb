package tools

import (
	"context"
)

// EchoTool returns its msg argument, or all arguments when msg is absent.
// Deterministic, used heavily in examples and tests.
type EchoTool struct{}

func (t *EchoTool) Name() string { return "echo" }

func (t *EchoTool) Execute(_ context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	if msg, ok := args["msg"]; ok {
		return map[string]interface{}{"echo": msg}, nil
	}
	return map[string]interface{}{"echo": args}, nil
}

package tools

import (
	"context"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// SleepTool waits duration_ms and passes its value argument through.
type SleepTool struct{}

func (t *SleepTool) Name() string { return "sleep" }

func (t *SleepTool) Execute(ctx context.Context, args map[string]interface{}) (map[string]interface{}, error) {
	ms, ok := numberArg(args, "duration_ms")
	if !ok {
		return nil, sdk.NewError(sdk.ErrValidation, "sleep requires a numeric duration_ms argument")
	}

	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
		return nil, sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "sleep interrupted")
	}

	out := map[string]interface{}{"slept_ms": ms}
	if v, present := args["value"]; present {
		out["value"] = v
	}
	return out, nil
}

// numberArg reads an argument as int64, accepting the float64 that JSON
// decoding produces.
func numberArg(args map[string]interface{}, key string) (int64, bool) {
	switch v := args[key].(type) {
	case float64:
		return int64(v), true
	case int:
		return int64(v), true
	case int64:
		return v, true
	default:
		return 0, false
	}
}

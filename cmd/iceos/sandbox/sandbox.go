// Package sandbox applies the resource envelope around executor calls:
// wall-clock cancellation, and best-effort memory/CPU caps forwarded to
// runtimes that can enforce them (the WASM code runner does; in-process
// executors get wall-clock only).
package sandbox

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// Guard wraps executor calls with resource limits.
type Guard struct {
	defaults sdk.ResourceLimits
	log      sdk.Logger
}

// NewGuard creates a guard with default limits applied when a node does not
// declare its own.
func NewGuard(defaults sdk.ResourceLimits, log sdk.Logger) *Guard {
	return &Guard{defaults: defaults, log: log}
}

// Limits merges a node timeout over the defaults.
func (g *Guard) Limits(timeoutMS int) sdk.ResourceLimits {
	limits := g.defaults
	if timeoutMS > 0 {
		limits.Timeout = time.Duration(timeoutMS) * time.Millisecond
	}
	return limits
}

// Run executes fn under the limits. On wall-clock expiry the result is a
// Timeout error; the in-flight goroutine is abandoned to its context. The
// caller's context cancellation maps to Canceled.
func (g *Guard) Run(ctx context.Context, limits sdk.ResourceLimits, fn func(ctx context.Context) (*sdk.NodeExecutionResult, error)) (*sdk.NodeExecutionResult, error) {
	runCtx := ctx
	var cancel context.CancelFunc
	if limits.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, limits.Timeout)
		defer cancel()
	}

	type outcome struct {
		result *sdk.NodeExecutionResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				if g.log != nil {
					g.log.Error("executor panicked", "panic", r, "stack", string(debug.Stack()))
				}
				done <- outcome{err: sdk.NewError(sdk.ErrInternal, "executor panic: %v", r)}
			}
		}()
		result, err := fn(runCtx)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return nil, sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "execution canceled")
		}
		return nil, sdk.NewError(sdk.ErrTimeout, "execution exceeded %s wall clock", limits.Timeout)
	}
}

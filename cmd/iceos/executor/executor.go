// Package executor drives the per-node lifecycle: input assembly, schema
// validation, cache lookup, sandboxed dispatch with retries, output schema
// enforcement, and event emission. The scheduler owns ordering; this
// package owns what happens to a single node once dispatched.
package executor

import (
	"context"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sandbox"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// Options carries the run-scoped parameters of an execution.
type Options struct {
	// TopologyHash prefixes cache keys so structurally different blueprints
	// never share entries.
	TopologyHash string
	// CacheDefault is the run-level use_cache flag; node-level flags
	// override it.
	CacheDefault bool
	// CacheTTL bounds cached entries. Zero means no expiry.
	CacheTTL time.Duration
}

// Executor runs single nodes through the full lifecycle.
type Executor struct {
	guard *sandbox.Guard
	cache Cache
	log   sdk.Logger
}

// New creates an executor. cache may be nil to disable caching entirely.
func New(guard *sandbox.Guard, cache Cache, log sdk.Logger) *Executor {
	return &Executor{guard: guard, cache: cache, log: log}
}

// Execute runs one node and returns its final result. The result is always
// non-nil; failures are encoded in it rather than returned as an error, so
// the scheduler can apply its failure policy uniformly. Events for the
// node's lifecycle are appended through the runtime before the result is
// returned, keeping completion unobservable until its events are durable.
func (e *Executor) Execute(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, rctx *sdk.RunContext, opts Options) *sdk.NodeExecutionResult {
	start := time.Now().UTC()

	if err := rt.AppendEvent(ctx, sdk.EventNodeStarted, node.ID, map[string]interface{}{
		"node_type": string(node.Type),
	}); err != nil {
		return e.finalize(ctx, rt, node, start, 0, sdk.FailureResult(err))
	}

	inputs, err := AssembleInputs(node, rctx)
	if err != nil {
		return e.finalize(ctx, rt, node, start, 0, sdk.FailureResult(err))
	}
	if node.InputSchema != nil {
		if err := node.InputSchema.Validate(inputs); err != nil {
			return e.finalize(ctx, rt, node, start, 0,
				sdk.FailureResult(sdk.WrapError(sdk.ErrValidation, err, "node %s input schema", node.ID)))
		}
	}

	cacheKey := ""
	if e.cache != nil && node.CacheEnabled(opts.CacheDefault) && cacheable(node.Type) {
		key, keyErr := CacheKey(opts.TopologyHash, node.ID, inputs)
		if keyErr == nil {
			cacheKey = key
			if cached, hit, getErr := e.cache.Get(ctx, key); getErr == nil && hit {
				result := *cached
				result.Metadata.Cached = true
				result.Metadata.StartTime = start
				result.Metadata.EndTime = time.Now().UTC()
				result.Metadata.DurationMS = 0
				return e.finalize(ctx, rt, node, start, 0, &result)
			} else if getErr != nil {
				e.log.Warn("cache read failed, executing node", "node_id", node.ID, "error", getErr)
			}
		}
	}

	fn, err := rt.Registry().Executor(node.Type)
	if err != nil {
		return e.finalize(ctx, rt, node, start, 0, sdk.FailureResult(err))
	}

	result, retries := e.dispatch(ctx, rt, fn, node, inputs, rctx)

	if result.Success && node.OutputSchema != nil {
		if err := node.OutputSchema.Validate(result.Output); err != nil {
			result = sdk.FailureResult(sdk.WrapError(sdk.ErrOutputSchema, err, "node %s output schema", node.ID))
		}
	}

	if result.Success && cacheKey != "" {
		if putErr := e.cache.Put(ctx, cacheKey, result, opts.CacheTTL); putErr != nil {
			e.log.Warn("cache write failed", "node_id", node.ID, "error", putErr)
		}
	}

	return e.finalize(ctx, rt, node, start, retries, result)
}

// dispatch runs the executor function under the sandbox guard, retrying
// retryable failures per the node's policy.
func (e *Executor) dispatch(ctx context.Context, rt registry.Runtime, fn registry.ExecFunc, node *blueprint.NodeSpec, inputs map[string]interface{}, rctx *sdk.RunContext) (*sdk.NodeExecutionResult, int) {
	attempts := 1
	policy := node.RetryPolicy
	if policy != nil && policy.MaxAttempts > 1 {
		attempts = policy.MaxAttempts
	}
	limits := e.guard.Limits(node.TimeoutMS)

	var result *sdk.NodeExecutionResult
	for attempt := 1; attempt <= attempts; attempt++ {
		res, err := e.guard.Run(ctx, limits, func(runCtx context.Context) (*sdk.NodeExecutionResult, error) {
			return fn(runCtx, rt, node, inputs, rctx)
		})
		if err == nil && res != nil && res.Success {
			return res, attempt - 1
		}
		if err == nil && res != nil {
			result = res
		} else if err != nil {
			result = sdk.FailureResult(err)
		} else {
			result = sdk.FailureResult(sdk.NewError(sdk.ErrInternal, "executor for node %s returned no result", node.ID))
		}

		if attempt == attempts || !result.ErrorKind.Retryable() || ctx.Err() != nil {
			return result, attempt - 1
		}

		delay := backoffDelay(policy, attempt)
		if appendErr := rt.AppendEvent(ctx, sdk.EventNodeRetrying, node.ID, map[string]interface{}{
			"attempt":    attempt,
			"error":      result.Error,
			"error_type": string(result.ErrorKind),
			"backoff_ms": delay.Milliseconds(),
		}); appendErr != nil {
			return sdk.FailureResult(appendErr), attempt - 1
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return sdk.FailureResult(sdk.WrapError(sdk.ErrCanceled, ctx.Err(), "canceled while backing off")), attempt - 1
		}
	}
	return result, attempts - 1
}

// finalize stamps metadata, emits the terminal node event, and returns the
// result. An event append failure overrides a success: unobserved
// completions do not count.
func (e *Executor) finalize(ctx context.Context, rt registry.Runtime, node *blueprint.NodeSpec, start time.Time, retries int, result *sdk.NodeExecutionResult) *sdk.NodeExecutionResult {
	end := time.Now().UTC()
	result.Metadata.NodeID = node.ID
	result.Metadata.NodeType = string(node.Type)
	result.Metadata.StartTime = start
	result.Metadata.EndTime = end
	if !result.Metadata.Cached {
		result.Metadata.DurationMS = end.Sub(start).Milliseconds()
	}
	result.Metadata.Retries = retries
	if result.Metadata.Provider == "" {
		result.Metadata.Provider = node.Provider
	}

	kind := sdk.EventNodeSucceeded
	payload := map[string]interface{}{
		"duration_ms": result.Metadata.DurationMS,
		"retries":     retries,
		"cached":      result.Metadata.Cached,
	}
	if !result.Success {
		kind = sdk.EventNodeFailed
		payload["error"] = result.Error
		payload["error_type"] = string(result.ErrorKind)
	}
	if result.CostUSD > 0 {
		payload["cost_usd"] = result.CostUSD
	}

	if err := rt.AppendEvent(ctx, kind, node.ID, payload); err != nil {
		e.log.Error("event append failed, failing node", "node_id", node.ID, "error", err)
		return sdk.FailureResult(sdk.WrapError(sdk.ErrInternal, err, "node %s completed but its event could not be persisted", node.ID))
	}
	return result
}

// backoffDelay computes the wait before the next attempt.
func backoffDelay(policy *blueprint.RetryPolicy, attempt int) time.Duration {
	base := 250 * time.Millisecond
	if policy != nil && policy.BackoffMS > 0 {
		base = time.Duration(policy.BackoffMS) * time.Millisecond
	}
	if policy != nil && policy.Backoff == blueprint.BackoffExponential {
		return base << (attempt - 1)
	}
	return base
}

// cacheable reports whether a node type's results may be cached. Control
// flow, human, and nested-execution nodes always run.
func cacheable(t blueprint.NodeType) bool {
	switch t {
	case blueprint.NodeTool, blueprint.NodeLLM, blueprint.NodeCode:
		return true
	default:
		return false
	}
}

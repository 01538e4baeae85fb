package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/budget"
	"github.com/iceos-ai/iceos/cmd/iceos/events"
	"github.com/iceos-ai/iceos/cmd/iceos/executor"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// run is one execution of a blueprint. It implements registry.Runtime, so
// executors call back into it for sub-execution, events, and budget.
type run struct {
	engine *Engine
	bp     *blueprint.Blueprint
	graph  *blueprint.Graph
	rctx   *sdk.RunContext
	stream *events.Stream
	budget *budget.Enforcer
	gating *gating
	exec   *executor.Executor
	sem    chan struct{}
	policy FailurePolicy

	mu       sync.Mutex
	cancelFn context.CancelFunc
	canceled bool
	halted   bool
}

// execute runs the full blueprint with run-level events and returns the
// aggregated result.
func (r *run) execute(ctx context.Context) (*sdk.WorkflowResult, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	r.mu.Lock()
	r.cancelFn = cancel
	r.mu.Unlock()

	started := time.Now().UTC()
	if _, err := r.stream.Append(runCtx, sdk.EventRunStarted, "", map[string]interface{}{
		"blueprint_id": r.bp.ID,
		"node_count":   len(r.bp.Nodes),
	}); err != nil {
		return nil, fmt.Errorf("append run.started: %w", err)
	}

	r.executeLevels(runCtx, r.bp, r.graph, r.rctx, r.sem, r.gating)

	result := r.collect(r.graph, r.rctx, started)

	kind := sdk.EventRunCompleted
	payload := map[string]interface{}{
		"status": string(result.Status),
		"budget": r.budget.GetStatus(),
	}
	switch result.Status {
	case sdk.RunFailed:
		kind = sdk.EventRunFailed
		payload["failed_nodes"] = result.FailedNodes()
		payload["error"] = result.Error
	case sdk.RunCanceled:
		kind = sdk.EventRunCanceled
	}
	// Terminal append uses the parent context: runCtx is canceled on halt
	// and user cancellation, but the terminal event must still land.
	if _, err := r.stream.Append(ctx, kind, "", payload); err != nil {
		return nil, fmt.Errorf("append terminal event: %w", err)
	}
	return result, nil
}

// executeLevels walks the graph level by level, dispatching each level's
// runnable nodes concurrently under the given parallelism bound. Nested
// subgraphs bring their own semaphore: sharing the parent's can deadlock
// when every slot is held by a node waiting on its own subgraph. They also
// bring their own gating scope: a branch decision inside one loop iteration
// must not gate the same node id in the next.
func (r *run) executeLevels(ctx context.Context, bp *blueprint.Blueprint, graph *blueprint.Graph, rctx *sdk.RunContext, sem chan struct{}, g *gating) {
	opts := executor.Options{
		TopologyHash: graph.TopologyHash(),
		CacheDefault: r.engine.cfg.CacheDefault,
		CacheTTL:     r.engine.cfg.CacheTTL,
	}

	for _, level := range graph.Levels() {
		if r.isHalted() || ctx.Err() != nil {
			for _, id := range level {
				r.skipNode(g, rctx, id, skipRunHalted, "")
			}
			continue
		}

		var wg sync.WaitGroup
		for _, id := range level {
			node := bp.Node(id)
			if node == nil {
				continue
			}
			if reason, cause, skipped := r.shouldSkip(g, rctx, node); skipped {
				r.skipNode(g, rctx, id, reason, cause)
				continue
			}

			wg.Add(1)
			sem <- struct{}{}
			go func(node *blueprint.NodeSpec) {
				defer wg.Done()
				defer func() { <-sem }()
				r.runNode(ctx, bp, node, rctx, opts, g)
			}(node)
		}
		wg.Wait()
	}
}

// shouldSkip decides whether a node runs, honoring branch gating and the
// failure policy.
func (r *run) shouldSkip(g *gating, rctx *sdk.RunContext, node *blueprint.NodeSpec) (skipReason, string, bool) {
	if reason, cause, ok := g.status(node.ID); ok {
		return reason, cause, true
	}
	if r.policy == PolicyAlways {
		return "", "", false
	}
	for _, dep := range node.Dependencies {
		if res, ok := rctx.Result(dep); ok && !res.Success {
			return skipUpstreamFailed, dep, true
		}
		if _, _, skipped := g.status(dep); skipped {
			return skipUpstreamFailed, dep, true
		}
	}
	return "", "", false
}

// skipNode records a skipped node without executing it. Skips propagate:
// the node is added to the gating set so its dependents skip too.
func (r *run) skipNode(g *gating, rctx *sdk.RunContext, id string, reason skipReason, cause string) {
	g.markSkipped(id, reason, cause)
	msg := fmt.Sprintf("skipped: %s", reason)
	if cause != "" {
		msg = fmt.Sprintf("skipped: %s (via %s)", reason, cause)
	}
	rctx.SetResult(id, &sdk.NodeExecutionResult{
		Success:   false,
		Error:     msg,
		ErrorKind: sdk.ErrUpstreamFailed,
		Metadata:  sdk.NodeMetadata{NodeID: id},
	})
}

// runNode executes one node and records its outcome.
func (r *run) runNode(ctx context.Context, bp *blueprint.Blueprint, node *blueprint.NodeSpec, rctx *sdk.RunContext, opts executor.Options, g *gating) {
	result := r.exec.Execute(ctx, &runtime{run: r, bp: bp, rctx: rctx, gating: g}, node, rctx, opts)
	rctx.SetResult(node.ID, result)
	if result.Success {
		if err := rctx.SetOutput(node.ID, result.Output); err != nil {
			r.engine.log.Error("output write rejected", "node_id", node.ID, "error", err)
		}
	} else if result.ErrorKind != sdk.ErrUpstreamFailed && r.policy == PolicyHalt {
		r.halt()
	}

	if r.budget.NearLimit() {
		if _, err := r.stream.Append(ctx, sdk.EventBudgetWarning, node.ID, map[string]interface{}{
			"budget": r.budget.GetStatus(),
		}); err != nil {
			r.engine.log.Warn("budget warning event failed", "error", err)
		}
	}
}

// collect builds the final WorkflowResult. The run output is the outputs of
// terminal nodes (no dependents) keyed by node id.
func (r *run) collect(graph *blueprint.Graph, rctx *sdk.RunContext, started time.Time) *sdk.WorkflowResult {
	results := rctx.Results()
	output := make(map[string]interface{})
	for id, deps := range graph.Dependents {
		if len(deps) != 0 {
			continue
		}
		if out, ok := rctx.Output(id); ok {
			output[id] = out
		}
	}

	result := &sdk.WorkflowResult{
		RunID:       rctx.RunID,
		Output:      output,
		NodeResults: results,
		StartedAt:   started,
		FinishedAt:  time.Now().UTC(),
	}

	switch {
	case r.isCanceled():
		result.Status = sdk.RunCanceled
		result.Error = "run canceled"
	case len(result.FailedNodes()) > 0:
		result.Status = sdk.RunFailed
		first := result.FailedNodes()[0]
		if res := results[first]; res != nil {
			result.Error = fmt.Sprintf("node %s failed: %s", first, res.Error)
		}
	default:
		result.Status = sdk.RunCompleted
		result.Success = true
	}
	return result
}

func (r *run) halt() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.halted {
		return
	}
	r.halted = true
	if r.cancelFn != nil {
		r.cancelFn()
	}
}

func (r *run) isHalted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.halted || r.canceled
}

func (r *run) requestCancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.canceled {
		return
	}
	r.canceled = true
	if r.cancelFn != nil {
		r.cancelFn()
	}
}

func (r *run) isCanceled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.canceled
}

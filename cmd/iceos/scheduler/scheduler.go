// Package scheduler executes validated blueprints level by level: nodes
// whose dependencies have all completed run concurrently under a shared
// parallelism bound, condition decisions gate sibling branches, and the
// configured failure policy decides how much of the graph survives a
// fatal node failure.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/iceos-ai/iceos/cmd/iceos/approval"
	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/budget"
	"github.com/iceos-ai/iceos/cmd/iceos/condition"
	"github.com/iceos-ai/iceos/cmd/iceos/events"
	"github.com/iceos-ai/iceos/cmd/iceos/executor"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/sandbox"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// FailurePolicy selects how a run reacts to a fatal node failure.
type FailurePolicy string

const (
	// PolicyHalt cancels everything in flight and fails the run.
	PolicyHalt FailurePolicy = "halt"
	// PolicyContinuePossible skips the failed node's dependents and runs
	// every node whose dependencies still all succeed. The default.
	PolicyContinuePossible FailurePolicy = "continue_possible"
	// PolicyAlways attempts every node regardless of upstream failures;
	// nodes with unresolvable inputs fail on their own.
	PolicyAlways FailurePolicy = "always"
)

// Config carries engine-wide execution settings.
type Config struct {
	MaxParallel     int
	FailurePolicy   FailurePolicy
	DevelopmentMode bool
	CacheDefault    bool
	CacheTTL        time.Duration
	BudgetLimits    budget.Limits
	BudgetFailOpen  bool
	DefaultLimits   sdk.ResourceLimits
}

// SinkFactory builds the durable sinks for a new run's event stream.
type SinkFactory func(runID string) []events.Sink

// Engine is the reusable scheduler. One engine serves many concurrent
// runs; per-run state lives in the run type.
type Engine struct {
	reg       *registry.Registry
	eval      *condition.Evaluator
	guard     *sandbox.Guard
	cache     executor.Cache
	approvals *approval.Broker
	sinks     SinkFactory
	log       sdk.Logger
	cfg       Config

	liveMu sync.Mutex
	live   map[string]*run
}

// Opts configures a new Engine.
type Opts struct {
	Registry  *registry.Registry
	Cache     executor.Cache
	Approvals *approval.Broker
	Sinks     SinkFactory
	Logger    sdk.Logger
	Config    Config
}

// NewEngine creates a scheduler engine.
func NewEngine(opts Opts) *Engine {
	cfg := opts.Config
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 8
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = PolicyContinuePossible
	}
	sinks := opts.Sinks
	if sinks == nil {
		sinks = func(string) []events.Sink { return nil }
	}
	approvals := opts.Approvals
	if approvals == nil {
		approvals = approval.NewBroker()
	}
	return &Engine{
		reg:       opts.Registry,
		eval:      condition.NewEvaluator(),
		guard:     sandbox.NewGuard(cfg.DefaultLimits, opts.Logger),
		cache:     opts.Cache,
		approvals: approvals,
		sinks:     sinks,
		log:       opts.Logger,
		cfg:       cfg,
		live:      make(map[string]*run),
	}
}

// Approvals exposes the broker so the API surface can resolve requests.
func (e *Engine) Approvals() *approval.Broker {
	return e.approvals
}

// Execute validates and runs a blueprint to completion, returning the
// aggregated result. The returned error covers setup failures only; node
// failures are reported through the result.
func (e *Engine) Execute(ctx context.Context, bp *blueprint.Blueprint, inputs map[string]interface{}, identity sdk.Identity) (*sdk.WorkflowResult, error) {
	return e.ExecuteRun(ctx, uuid.NewString(), bp, inputs, identity)
}

// ExecuteRun is Execute with a caller-assigned run id, used when the run
// record is created before execution starts.
func (e *Engine) ExecuteRun(ctx context.Context, runID string, bp *blueprint.Blueprint, inputs map[string]interface{}, identity sdk.Identity) (*sdk.WorkflowResult, error) {
	if err := blueprint.Validate(bp, e.reg); err != nil {
		return nil, err
	}
	graph, err := blueprint.BuildGraph(bp)
	if err != nil {
		return nil, err
	}

	r := &run{
		engine: e,
		bp:     bp,
		graph:  graph,
		rctx:   sdk.NewRunContext(runID, identity, inputs),
		stream: events.NewStream(runID, e.sinks(runID)...),
		budget: budget.NewEnforcer(e.cfg.BudgetLimits, e.cfg.BudgetFailOpen, e.log),
		gating: newGating(),
		sem:    make(chan struct{}, e.cfg.MaxParallel),
		policy: e.cfg.FailurePolicy,
	}
	r.exec = executor.New(e.guard, e.cache, e.log)

	e.liveMu.Lock()
	e.live[runID] = r
	e.liveMu.Unlock()
	defer func() {
		e.liveMu.Lock()
		delete(e.live, runID)
		e.liveMu.Unlock()
	}()

	return r.execute(ctx)
}

// Stream returns a run's live event stream while the run is in flight.
// Completed runs read events from the store instead.
func (e *Engine) Stream(runID string) (*events.Stream, bool) {
	e.liveMu.Lock()
	defer e.liveMu.Unlock()
	r, ok := e.live[runID]
	if !ok {
		return nil, false
	}
	return r.stream, true
}

// Cancel requests cancellation of an in-flight run. It reports whether the
// run was live.
func (e *Engine) Cancel(runID string) bool {
	e.liveMu.Lock()
	defer e.liveMu.Unlock()
	r, ok := e.live[runID]
	if !ok {
		return false
	}
	r.requestCancel()
	return true
}

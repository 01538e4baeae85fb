package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/iceos-ai/iceos/cmd/iceos/approval"
	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/events"
	"github.com/iceos-ai/iceos/cmd/iceos/scheduler"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/common/logger"
	"github.com/iceos-ai/iceos/common/models"
	"github.com/iceos-ai/iceos/common/ratelimit"
	"github.com/iceos-ai/iceos/common/repository"
)

// ErrNotRunning is returned when a cancel targets a run that already
// reached a terminal state.
var ErrNotRunning = errors.New("run is not in progress")

// RateLimitError reports a rejected run start with the retry window.
type RateLimitError struct {
	Tier              ratelimit.BlueprintTier
	RetryAfterSeconds int64
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s blueprints, retry in %ds", e.Tier, e.RetryAfterSeconds)
}

// StartRunRequest starts a run from either a stored blueprint id or an
// inline blueprint document. Exactly one of the two must be set.
type StartRunRequest struct {
	BlueprintID string                 `json:"blueprint_id,omitempty"`
	Blueprint   json.RawMessage        `json:"blueprint,omitempty"`
	Inputs      map[string]interface{} `json:"inputs,omitempty"`
	Identity    sdk.Identity           `json:"identity,omitempty"`
}

// runSummary is what lands in cost_meta when a run finishes.
type runSummary struct {
	Status      sdk.RunStatus          `json:"status"`
	Success     bool                   `json:"success"`
	Output      map[string]interface{} `json:"output,omitempty"`
	FailedNodes []string               `json:"failed_nodes,omitempty"`
	Error       string                 `json:"error,omitempty"`
	DurationMS  int64                  `json:"duration_ms"`
}

// RunService owns the run lifecycle: start, status, cancel, events, and
// human approvals. Runs execute asynchronously; the HTTP request returns
// as soon as the execution record exists.
type RunService struct {
	engine     *scheduler.Engine
	blueprints *BlueprintService
	executions repository.ExecutionStore
	limiter    *ratelimit.RateLimiter // nil when Redis is disabled
	log        *logger.Logger
}

// NewRunService creates a run service
func NewRunService(engine *scheduler.Engine, blueprints *BlueprintService, executions repository.ExecutionStore, limiter *ratelimit.RateLimiter, log *logger.Logger) *RunService {
	return &RunService{
		engine:     engine,
		blueprints: blueprints,
		executions: executions,
		limiter:    limiter,
		log:        log,
	}
}

// Start validates the request, creates the execution record, and launches
// the run in the background.
func (s *RunService) Start(ctx context.Context, req *StartRunRequest) (*models.Execution, error) {
	if (req.BlueprintID == "") == (len(req.Blueprint) == 0) {
		return nil, &ValidationError{Err: errors.New("exactly one of blueprint_id or blueprint is required")}
	}

	var bp *blueprint.Blueprint
	var err error
	blueprintID := req.BlueprintID
	if blueprintID != "" {
		bp, err = s.blueprints.Resolve(ctx, blueprintID)
	} else {
		bp, err = s.blueprints.parseAndValidate(req.Blueprint)
	}
	if err != nil {
		return nil, err
	}
	if blueprintID == "" {
		if blueprintID = bp.ID; blueprintID == "" {
			blueprintID = "inline"
		}
	}

	if err := s.checkRateLimit(ctx, bp, req.Identity); err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	now := time.Now().UTC()
	exec := &models.Execution{
		ID:          runID,
		BlueprintID: blueprintID,
		Status:      models.ExecutionPending,
		StartedAt:   &now,
	}
	if req.Identity.OrgID != "" {
		orgID := req.Identity.OrgID
		exec.OrgID = &orgID
	}
	if err := s.executions.Create(ctx, exec); err != nil {
		return nil, err
	}

	go s.execute(runID, bp, req.Inputs, req.Identity)

	s.log.Info("run accepted", "run_id", runID, "blueprint_id", blueprintID)
	return exec, nil
}

// checkRateLimit enforces the per-org tiered limit. Limiter errors fail
// open; a Redis outage should not stop runs.
func (s *RunService) checkRateLimit(ctx context.Context, bp *blueprint.Blueprint, identity sdk.Identity) error {
	if s.limiter == nil {
		return nil
	}
	org := identity.OrgID
	if org == "" {
		org = "anonymous"
	}
	profile := ratelimit.Inspect(bp)
	result, err := s.limiter.CheckTieredLimit(ctx, org, profile.Tier)
	if err != nil {
		s.log.Warn("rate limit check failed, allowing run", "org_id", org, "error", err)
		return nil
	}
	if !result.Allowed {
		return &RateLimitError{Tier: profile.Tier, RetryAfterSeconds: result.RetryAfterSeconds}
	}
	return nil
}

// execute drives one run to completion on a background context. The HTTP
// request that started the run is long gone; cancellation arrives through
// Cancel, not context.
func (s *RunService) execute(runID string, bp *blueprint.Blueprint, inputs map[string]interface{}, identity sdk.Identity) {
	ctx := context.Background()

	if err := s.executions.UpdateStatus(ctx, runID, models.ExecutionRunning, nil); err != nil {
		s.log.Error("failed to mark run running", "run_id", runID, "error", err)
	}

	started := time.Now()
	result, err := s.engine.ExecuteRun(ctx, runID, bp, inputs, identity)
	if err != nil {
		summary, _ := json.Marshal(runSummary{
			Status:     sdk.RunFailed,
			Error:      err.Error(),
			DurationMS: time.Since(started).Milliseconds(),
		})
		if uerr := s.executions.UpdateStatus(ctx, runID, models.ExecutionFailed, summary); uerr != nil {
			s.log.Error("failed to mark run failed", "run_id", runID, "error", uerr)
		}
		s.log.Error("run failed before scheduling", "run_id", runID, "error", err)
		return
	}

	summary, _ := json.Marshal(runSummary{
		Status:      result.Status,
		Success:     result.Success,
		Output:      result.Output,
		FailedNodes: result.FailedNodes(),
		Error:       result.Error,
		DurationMS:  result.FinishedAt.Sub(result.StartedAt).Milliseconds(),
	})
	if err := s.executions.UpdateStatus(ctx, runID, statusOf(result.Status), summary); err != nil {
		s.log.Error("failed to record run outcome", "run_id", runID, "error", err)
	}
	s.log.Info("run finished", "run_id", runID, "status", result.Status)
}

func statusOf(status sdk.RunStatus) models.ExecutionStatus {
	switch status {
	case sdk.RunCompleted:
		return models.ExecutionCompleted
	case sdk.RunCanceled:
		return models.ExecutionCanceled
	default:
		return models.ExecutionFailed
	}
}

// Get returns the execution record
func (s *RunService) Get(ctx context.Context, id string) (*models.Execution, error) {
	return s.executions.Get(ctx, id)
}

// Cancel requests cooperative cancellation of a live run. In-flight nodes
// finish; unstarted nodes are skipped.
func (s *RunService) Cancel(ctx context.Context, id string) error {
	if s.engine.Cancel(id) {
		s.log.Info("run cancellation requested", "run_id", id)
		return nil
	}
	if _, err := s.executions.Get(ctx, id); err != nil {
		return err
	}
	return ErrNotRunning
}

// Events returns the persisted event log with seq > fromSeq.
func (s *RunService) Events(ctx context.Context, id string, fromSeq int64) ([]models.ExecutionEvent, error) {
	if _, err := s.executions.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.executions.ReadEvents(ctx, id, fromSeq)
}

// Stream returns the live event stream for an in-progress run.
func (s *RunService) Stream(id string) (*events.Stream, bool) {
	return s.engine.Stream(id)
}

// PendingApprovals lists approvals blocked on a human decision.
func (s *RunService) PendingApprovals(runID string) []approval.Pending {
	return s.engine.Approvals().PendingApprovals(runID)
}

// ResolveApproval delivers a human decision to a waiting node.
func (s *RunService) ResolveApproval(runID, nodeID string, decision approval.Decision) error {
	return s.engine.Approvals().Resolve(runID, nodeID, decision)
}

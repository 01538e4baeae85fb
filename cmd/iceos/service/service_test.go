package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos-ai/iceos/cmd/iceos/events"
	"github.com/iceos-ai/iceos/cmd/iceos/executors"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/cmd/iceos/scheduler"
	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/cmd/iceos/tools"
	"github.com/iceos-ai/iceos/common/logger"
	"github.com/iceos-ai/iceos/common/models"
	"github.com/iceos-ai/iceos/common/repository"
)

type noopLogger struct{}

func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Debug(string, ...interface{}) {}

type testServices struct {
	blueprints *BlueprintService
	runs       *RunService
	executions repository.ExecutionStore
}

func newTestServices(t *testing.T) *testServices {
	t.Helper()

	reg := registry.New()
	require.NoError(t, executors.RegisterBuiltins(reg))
	for name, factory := range tools.Catalog() {
		require.NoError(t, reg.RegisterToolFactory(name, factory))
	}

	executions := repository.NewMemoryExecutionStore()
	engine := scheduler.NewEngine(scheduler.Opts{
		Registry: reg,
		Sinks: func(string) []events.Sink {
			return []events.Sink{events.NewStoreSink(executions)}
		},
		Logger: noopLogger{},
	})

	log := logger.New("error", "json")
	blueprints := NewBlueprintService(repository.NewMemoryBlueprintStore(), reg, log)
	runs := NewRunService(engine, blueprints, executions, nil, log)
	return &testServices{blueprints: blueprints, runs: runs, executions: executions}
}

const echoBlueprint = `{
	"schema_version": "1.2.0",
	"nodes": [
		{"id": "say", "type": "tool", "tool_name": "echo", "tool_args": {"msg": "hello"}}
	]
}`

func waitForTerminal(t *testing.T, s *testServices, runID string) *models.Execution {
	t.Helper()
	var exec *models.Execution
	require.Eventually(t, func() bool {
		got, err := s.executions.Get(context.Background(), runID)
		if err != nil {
			return false
		}
		exec = got
		return got.Status == models.ExecutionCompleted ||
			got.Status == models.ExecutionFailed ||
			got.Status == models.ExecutionCanceled
	}, 5*time.Second, 10*time.Millisecond)
	return exec
}

func TestBlueprintCreate_AssignsIDWhenMissing(t *testing.T) {
	s := newTestServices(t)

	record, err := s.blueprints.Create(context.Background(), json.RawMessage(echoBlueprint), nil)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, int64(1), record.LockVersion)

	// The generated id is injected into the stored body.
	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal(record.Body, &doc))
	assert.Equal(t, record.ID, doc["id"])
}

func TestBlueprintCreate_RejectsUnknownTool(t *testing.T) {
	s := newTestServices(t)

	_, err := s.blueprints.Create(context.Background(), json.RawMessage(`{
		"schema_version": "1.2.0",
		"nodes": [
			{"id": "say", "type": "tool", "tool_name": "nope"}
		]
	}`), nil)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "nope")
}

func TestBlueprintUpdate_RejectsMismatchedBodyID(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	record, err := s.blueprints.Create(ctx, json.RawMessage(echoBlueprint), nil)
	require.NoError(t, err)

	other := `{"id": "somebody-else", "schema_version": "1.2.0",
		"nodes": [{"id": "say", "type": "tool", "tool_name": "echo"}]}`
	_, err = s.blueprints.Update(ctx, record.ID, json.RawMessage(other), record.LockVersion)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Error(), "does not match")
}

func TestBlueprintPatch_AppliesAndRevalidates(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	record, err := s.blueprints.Create(ctx, json.RawMessage(echoBlueprint), nil)
	require.NoError(t, err)

	patch := json.RawMessage(`[{"op": "replace", "path": "/nodes/0/tool_args/msg", "value": "patched"}]`)
	updated, err := s.blueprints.Patch(ctx, record.ID, patch, record.LockVersion)
	require.NoError(t, err)
	assert.Equal(t, record.LockVersion+1, updated.LockVersion)

	bp, err := s.blueprints.Resolve(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "patched", bp.Nodes[0].Tool.ToolArgs["msg"])
}

func TestBlueprintPatch_StaleVersionConflicts(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	record, err := s.blueprints.Create(ctx, json.RawMessage(echoBlueprint), nil)
	require.NoError(t, err)

	patch := json.RawMessage(`[{"op": "replace", "path": "/nodes/0/tool_args/msg", "value": "patched"}]`)
	_, err = s.blueprints.Patch(ctx, record.ID, patch, record.LockVersion+41)
	assert.ErrorIs(t, err, ErrVersionConflict)
}

func TestBlueprintPatch_InvalidResultRejected(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	record, err := s.blueprints.Create(ctx, json.RawMessage(echoBlueprint), nil)
	require.NoError(t, err)

	// Valid JSON patch, but the patched document references a tool that
	// does not exist; the write must be rejected.
	patch := json.RawMessage(`[{"op": "replace", "path": "/nodes/0/tool_name", "value": "ghost"}]`)
	_, err = s.blueprints.Patch(ctx, record.ID, patch, record.LockVersion)

	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	// The stored body is untouched.
	bp, err := s.blueprints.Resolve(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "echo", bp.Nodes[0].Tool.ToolName)
}

func TestRunStart_RequiresExactlyOneSource(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	_, err := s.runs.Start(ctx, &StartRunRequest{})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	_, err = s.runs.Start(ctx, &StartRunRequest{
		BlueprintID: "bp-1",
		Blueprint:   json.RawMessage(echoBlueprint),
	})
	require.ErrorAs(t, err, &verr)
}

func TestRunStart_InlineBlueprintRunsToCompletion(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	exec, err := s.runs.Start(ctx, &StartRunRequest{
		Blueprint: json.RawMessage(echoBlueprint),
		Identity:  sdk.Identity{OrgID: "org-1"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionPending, exec.Status)
	assert.Equal(t, "inline", exec.BlueprintID)
	require.NotNil(t, exec.OrgID)
	assert.Equal(t, "org-1", *exec.OrgID)

	done := waitForTerminal(t, s, exec.ID)
	assert.Equal(t, models.ExecutionCompleted, done.Status)
	require.NotNil(t, done.FinishedAt)

	var summary runSummary
	require.NoError(t, json.Unmarshal(done.CostMeta, &summary))
	assert.True(t, summary.Success)
	assert.Equal(t, map[string]interface{}{
		"say": map[string]interface{}{"echo": "hello"},
	}, summary.Output)
}

func TestRunStart_ByStoredBlueprintID(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	record, err := s.blueprints.Create(ctx, json.RawMessage(echoBlueprint), nil)
	require.NoError(t, err)

	exec, err := s.runs.Start(ctx, &StartRunRequest{BlueprintID: record.ID})
	require.NoError(t, err)
	assert.Equal(t, record.ID, exec.BlueprintID)

	done := waitForTerminal(t, s, exec.ID)
	assert.Equal(t, models.ExecutionCompleted, done.Status)
}

func TestRunStart_MissingBlueprintID(t *testing.T) {
	s := newTestServices(t)

	_, err := s.runs.Start(context.Background(), &StartRunRequest{BlueprintID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRunEvents_PersistedThroughStoreSink(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	exec, err := s.runs.Start(ctx, &StartRunRequest{Blueprint: json.RawMessage(echoBlueprint)})
	require.NoError(t, err)
	waitForTerminal(t, s, exec.ID)

	log, err := s.runs.Events(ctx, exec.ID, 0)
	require.NoError(t, err)
	require.NotEmpty(t, log)
	assert.Equal(t, string(sdk.EventRunStarted), log[0].Kind)
	assert.Equal(t, string(sdk.EventRunCompleted), log[len(log)-1].Kind)
}

func TestRunCancel_FinishedRunIsNotRunning(t *testing.T) {
	s := newTestServices(t)
	ctx := context.Background()

	exec, err := s.runs.Start(ctx, &StartRunRequest{Blueprint: json.RawMessage(echoBlueprint)})
	require.NoError(t, err)
	waitForTerminal(t, s, exec.ID)

	assert.ErrorIs(t, s.runs.Cancel(ctx, exec.ID), ErrNotRunning)
	assert.ErrorIs(t, s.runs.Cancel(ctx, "never-existed"), repository.ErrNotFound)
}

package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/common/models"
)

func TestMemoryBlueprintStore_OptimisticConcurrency(t *testing.T) {
	s := NewMemoryBlueprintStore()
	ctx := context.Background()

	record := &models.BlueprintRecord{
		ID:            "bp-1",
		SchemaVersion: "1.2.0",
		Body:          json.RawMessage(`{"schema_version":"1.2.0","nodes":[]}`),
	}
	require.NoError(t, s.Create(ctx, record))
	assert.Equal(t, int64(1), record.LockVersion)

	got, err := s.Get(ctx, "bp-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.LockVersion)

	// Updating with the current version bumps it.
	got.Body = json.RawMessage(`{"schema_version":"1.2.0","nodes":[],"metadata":{}}`)
	require.NoError(t, s.Update(ctx, got, 1))
	assert.Equal(t, int64(2), got.LockVersion)

	// A stale version is a conflict.
	err = s.Update(ctx, got, 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	err = s.Delete(ctx, "bp-1", 1)
	assert.ErrorIs(t, err, ErrVersionConflict)

	require.NoError(t, s.Delete(ctx, "bp-1", 2))
	_, err = s.Get(ctx, "bp-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBlueprintStore_NotFound(t *testing.T) {
	s := NewMemoryBlueprintStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Update(ctx, &models.BlueprintRecord{ID: "missing"}, 1)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Delete(ctx, "missing", 1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBlueprintStore_GetReturnsCopy(t *testing.T) {
	s := NewMemoryBlueprintStore()
	ctx := context.Background()
	require.NoError(t, s.Create(ctx, &models.BlueprintRecord{ID: "bp-1", Body: json.RawMessage(`{}`)}))

	got, err := s.Get(ctx, "bp-1")
	require.NoError(t, err)
	got.SchemaVersion = "mutated"

	again, err := s.Get(ctx, "bp-1")
	require.NoError(t, err)
	assert.NotEqual(t, "mutated", again.SchemaVersion)
}

func TestMemoryExecutionStore_Lifecycle(t *testing.T) {
	s := NewMemoryExecutionStore()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Create(ctx, &models.Execution{
		ID:          "run-1",
		BlueprintID: "bp-1",
		Status:      models.ExecutionPending,
		StartedAt:   &now,
	}))

	require.NoError(t, s.UpdateStatus(ctx, "run-1", models.ExecutionRunning, nil))
	got, err := s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionRunning, got.Status)
	assert.Nil(t, got.FinishedAt, "non-terminal statuses leave finished_at unset")

	summary := json.RawMessage(`{"status":"completed","success":true}`)
	require.NoError(t, s.UpdateStatus(ctx, "run-1", models.ExecutionCompleted, summary))
	got, err = s.Get(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionCompleted, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.JSONEq(t, string(summary), string(got.CostMeta))

	err = s.UpdateStatus(ctx, "missing", models.ExecutionRunning, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryExecutionStore_EventLog(t *testing.T) {
	s := NewMemoryExecutionStore()
	ctx := context.Background()

	for seq := int64(1); seq <= 3; seq++ {
		kind := sdk.EventNodeStarted
		nodeID := "n1"
		if seq == 1 {
			kind = sdk.EventRunStarted
			nodeID = ""
		}
		require.NoError(t, s.AppendEvent(ctx, &sdk.Event{
			ExecutionID: "run-1",
			Seq:         seq,
			Timestamp:   time.Now().UTC(),
			Kind:        kind,
			NodeID:      nodeID,
			Payload:     map[string]interface{}{"seq": seq},
		}))
	}

	all, err := s.ReadEvents(ctx, "run-1", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Nil(t, all[0].NodeID, "run-level events carry no node id")
	require.NotNil(t, all[1].NodeID)
	assert.Equal(t, "n1", *all[1].NodeID)

	tail, err := s.ReadEvents(ctx, "run-1", 2)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	assert.Equal(t, int64(3), tail[0].Seq)

	other, err := s.ReadEvents(ctx, "run-2", 0)
	require.NoError(t, err)
	assert.Empty(t, other)
}

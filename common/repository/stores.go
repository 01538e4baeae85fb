package repository

import (
	"context"
	"encoding/json"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/common/models"
)

// BlueprintStore is the persistence contract for stored blueprints.
// Implemented by BlueprintRepository (Postgres) and MemoryBlueprintStore.
type BlueprintStore interface {
	Create(ctx context.Context, record *models.BlueprintRecord) error
	Get(ctx context.Context, id string) (*models.BlueprintRecord, error)
	Update(ctx context.Context, record *models.BlueprintRecord, expectedVersion int64) error
	Delete(ctx context.Context, id string, expectedVersion int64) error
}

// ExecutionStore is the persistence contract for runs and their event
// log. Implemented by ExecutionRepository (Postgres) and
// MemoryExecutionStore.
type ExecutionStore interface {
	Create(ctx context.Context, exec *models.Execution) error
	Get(ctx context.Context, id string) (*models.Execution, error)
	UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, costMeta json.RawMessage) error
	AppendEvent(ctx context.Context, event *sdk.Event) error
	ReadEvents(ctx context.Context, executionID string, fromSeq int64) ([]models.ExecutionEvent, error)
}

package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/common/db"
	"github.com/iceos-ai/iceos/common/models"
)

// ExecutionRepository handles database operations for runs and their events
type ExecutionRepository struct {
	db *db.DB
}

// NewExecutionRepository creates a new execution repository
func NewExecutionRepository(database *db.DB) *ExecutionRepository {
	return &ExecutionRepository{db: database}
}

// Create inserts a new execution record
func (r *ExecutionRepository) Create(ctx context.Context, exec *models.Execution) error {
	query := `
		INSERT INTO execution (id, blueprint_id, status, started_at, org_id)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.Exec(ctx, query, exec.ID, exec.BlueprintID, exec.Status, exec.StartedAt, exec.OrgID)
	if err != nil {
		return fmt.Errorf("failed to create execution: %w", err)
	}

	return nil
}

// Get retrieves an execution by id
func (r *ExecutionRepository) Get(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT id, blueprint_id, status, started_at, finished_at, cost_meta, org_id
		FROM execution
		WHERE id = $1
	`

	exec := &models.Execution{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&exec.ID,
		&exec.BlueprintID,
		&exec.Status,
		&exec.StartedAt,
		&exec.FinishedAt,
		&exec.CostMeta,
		&exec.OrgID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	return exec, nil
}

// UpdateStatus transitions an execution's status, stamping finished_at and
// cost metadata on terminal states
func (r *ExecutionRepository) UpdateStatus(ctx context.Context, id string, status models.ExecutionStatus, costMeta json.RawMessage) error {
	query := `
		UPDATE execution
		SET status = $2,
		    finished_at = CASE WHEN $2 IN ('completed','failed','canceled') THEN $3 ELSE finished_at END,
		    cost_meta = COALESCE($4, cost_meta)
		WHERE id = $1
	`

	tag, err := r.db.Exec(ctx, query, id, status, time.Now().UTC(), costMeta)
	if err != nil {
		return fmt.Errorf("failed to update execution status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// AppendEvent persists one event row
func (r *ExecutionRepository) AppendEvent(ctx context.Context, event *sdk.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	query := `
		INSERT INTO execution_event (execution_id, seq, ts, kind, node_id, payload)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`

	if _, err := r.db.Exec(ctx, query, event.ExecutionID, event.Seq, event.Timestamp, string(event.Kind), event.NodeID, payload); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}

	return nil
}

// ReadEvents returns events with seq > fromSeq in order
func (r *ExecutionRepository) ReadEvents(ctx context.Context, executionID string, fromSeq int64) ([]models.ExecutionEvent, error) {
	query := `
		SELECT execution_id, seq, ts, kind, node_id, payload
		FROM execution_event
		WHERE execution_id = $1 AND seq > $2
		ORDER BY seq
	`

	rows, err := r.db.Query(ctx, query, executionID, fromSeq)
	if err != nil {
		return nil, fmt.Errorf("failed to read events: %w", err)
	}
	defer rows.Close()

	var events []models.ExecutionEvent
	for rows.Next() {
		var event models.ExecutionEvent
		if err := rows.Scan(&event.ExecutionID, &event.Seq, &event.Timestamp, &event.Kind, &event.NodeID, &event.Payload); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

package models

import (
	"encoding/json"
	"time"
)

// ExecutionStatus is the lifecycle state of a run
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCanceled  ExecutionStatus = "canceled"
)

// Execution is the persisted run record
// Maps to: execution table
type Execution struct {
	ID          string          `db:"id" json:"id"`
	BlueprintID string          `db:"blueprint_id" json:"blueprint_id"`
	Status      ExecutionStatus `db:"status" json:"status"`

	StartedAt  *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt *time.Time `db:"finished_at" json:"finished_at,omitempty"`

	// Budget counters and total cost at run end
	CostMeta json.RawMessage `db:"cost_meta" json:"cost_meta,omitempty"`

	OrgID *string `db:"org_id" json:"org_id,omitempty"`
}

// ExecutionEvent is one persisted event row
// Maps to: execution_event table
type ExecutionEvent struct {
	ExecutionID string          `db:"execution_id" json:"execution_id"`
	Seq         int64           `db:"seq" json:"seq"`
	Timestamp   time.Time       `db:"ts" json:"ts"`
	Kind        string          `db:"kind" json:"kind"`
	NodeID      *string         `db:"node_id" json:"node_id,omitempty"`
	Payload     json.RawMessage `db:"payload" json:"payload,omitempty"`
}

package models

import (
	"encoding/json"
	"time"
)

// BlueprintRecord is the persisted form of a blueprint
// Maps to: blueprint table
type BlueprintRecord struct {
	// Blueprint ID (caller-assigned or generated)
	ID string `db:"id" json:"id"`

	// Wire schema version of the body
	SchemaVersion string `db:"schema_version" json:"schema_version"`

	// The full blueprint JSON
	Body json.RawMessage `db:"body" json:"body"`

	// Optimistic concurrency version; bumped on every update
	LockVersion int64 `db:"lock_version" json:"lock_version"`

	// Owning organization, when multi-tenant
	OrgID *string `db:"org_id" json:"org_id,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

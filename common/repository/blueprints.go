package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/iceos-ai/iceos/common/db"
	"github.com/iceos-ai/iceos/common/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when an optimistic concurrency check fails
var ErrVersionConflict = errors.New("version conflict")

// BlueprintRepository handles database operations for blueprints
type BlueprintRepository struct {
	db *db.DB
}

// NewBlueprintRepository creates a new blueprint repository
func NewBlueprintRepository(database *db.DB) *BlueprintRepository {
	return &BlueprintRepository{db: database}
}

// Create inserts a new blueprint with lock_version 1
func (r *BlueprintRepository) Create(ctx context.Context, record *models.BlueprintRecord) error {
	query := `
		INSERT INTO blueprint (id, schema_version, body, lock_version, org_id, created_at, updated_at)
		VALUES ($1, $2, $3, 1, $4, $5, $5)
	`

	now := time.Now().UTC()
	_, err := r.db.Exec(ctx, query, record.ID, record.SchemaVersion, record.Body, record.OrgID, now)
	if err != nil {
		return fmt.Errorf("failed to create blueprint: %w", err)
	}
	record.LockVersion = 1
	record.CreatedAt = now
	record.UpdatedAt = now

	return nil
}

// Get retrieves a blueprint by id
func (r *BlueprintRepository) Get(ctx context.Context, id string) (*models.BlueprintRecord, error) {
	query := `
		SELECT id, schema_version, body, lock_version, org_id, created_at, updated_at
		FROM blueprint
		WHERE id = $1
	`

	record := &models.BlueprintRecord{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&record.ID,
		&record.SchemaVersion,
		&record.Body,
		&record.LockVersion,
		&record.OrgID,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get blueprint: %w", err)
	}

	return record, nil
}

// Update replaces the body if lock_version matches, bumping the version
func (r *BlueprintRepository) Update(ctx context.Context, record *models.BlueprintRecord, expectedVersion int64) error {
	query := `
		UPDATE blueprint
		SET body = $2, schema_version = $3, lock_version = lock_version + 1, updated_at = $4
		WHERE id = $1 AND lock_version = $5
	`

	tag, err := r.db.Exec(ctx, query, record.ID, record.Body, record.SchemaVersion, time.Now().UTC(), expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to update blueprint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, record.ID); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}
	record.LockVersion = expectedVersion + 1

	return nil
}

// Delete removes a blueprint if lock_version matches
func (r *BlueprintRepository) Delete(ctx context.Context, id string, expectedVersion int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM blueprint WHERE id = $1 AND lock_version = $2`, id, expectedVersion)
	if err != nil {
		return fmt.Errorf("failed to delete blueprint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return getErr
		}
		return ErrVersionConflict
	}

	return nil
}

// Package service holds the business logic between the HTTP handlers and
// the engine: blueprint CRUD with optimistic concurrency, and run
// lifecycle management.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"

	"github.com/iceos-ai/iceos/cmd/iceos/blueprint"
	"github.com/iceos-ai/iceos/cmd/iceos/registry"
	"github.com/iceos-ai/iceos/common/logger"
	"github.com/iceos-ai/iceos/common/models"
	"github.com/iceos-ai/iceos/common/repository"
)

// BlueprintService manages stored blueprints. Every write re-validates
// the full document against the registry before it is persisted, so the
// store never holds an unexecutable blueprint.
type BlueprintService struct {
	store repository.BlueprintStore
	reg   *registry.Registry
	log   *logger.Logger
}

// NewBlueprintService creates a blueprint service
func NewBlueprintService(store repository.BlueprintStore, reg *registry.Registry, log *logger.Logger) *BlueprintService {
	return &BlueprintService{store: store, reg: reg, log: log}
}

// ErrNotFound and ErrVersionConflict pass through from the store.
var (
	ErrNotFound        = repository.ErrNotFound
	ErrVersionConflict = repository.ErrVersionConflict
)

// ValidationError wraps a blueprint rejection so handlers can map it to a
// 400 with the validator's message.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return e.Err.Error() }
func (e *ValidationError) Unwrap() error { return e.Err }

// parseAndValidate runs the full static pipeline: JSON grammar, schema
// grammar, reference resolution, cycle detection.
func (s *BlueprintService) parseAndValidate(body json.RawMessage) (*blueprint.Blueprint, error) {
	bp, err := blueprint.Parse(body)
	if err != nil {
		return nil, &ValidationError{Err: err}
	}
	if err := blueprint.Validate(bp, s.reg); err != nil {
		return nil, &ValidationError{Err: err}
	}
	return bp, nil
}

// Create validates and stores a new blueprint. A missing id is assigned.
func (s *BlueprintService) Create(ctx context.Context, body json.RawMessage, orgID *string) (*models.BlueprintRecord, error) {
	bp, err := s.parseAndValidate(body)
	if err != nil {
		return nil, err
	}

	id := bp.ID
	if id == "" {
		id = uuid.NewString()
		body, err = withID(body, id)
		if err != nil {
			return nil, err
		}
	}

	record := &models.BlueprintRecord{
		ID:            id,
		SchemaVersion: bp.SchemaVersion,
		Body:          body,
		OrgID:         orgID,
	}
	if err := s.store.Create(ctx, record); err != nil {
		return nil, err
	}
	s.log.Info("blueprint created", "blueprint_id", id, "nodes", len(bp.Nodes))
	return record, nil
}

// Get returns the stored record
func (s *BlueprintService) Get(ctx context.Context, id string) (*models.BlueprintRecord, error) {
	return s.store.Get(ctx, id)
}

// Update replaces the body under optimistic concurrency. expectedVersion
// must match the stored lock_version.
func (s *BlueprintService) Update(ctx context.Context, id string, body json.RawMessage, expectedVersion int64) (*models.BlueprintRecord, error) {
	bp, err := s.parseAndValidate(body)
	if err != nil {
		return nil, err
	}
	if bp.ID != "" && bp.ID != id {
		return nil, &ValidationError{Err: fmt.Errorf("body id %q does not match path id %q", bp.ID, id)}
	}

	record := &models.BlueprintRecord{
		ID:            id,
		SchemaVersion: bp.SchemaVersion,
		Body:          body,
	}
	if err := s.store.Update(ctx, record, expectedVersion); err != nil {
		return nil, err
	}
	s.log.Info("blueprint updated", "blueprint_id", id, "lock_version", record.LockVersion)
	return record, nil
}

// Patch applies an RFC 6902 JSON patch to the stored body, re-validates,
// and writes back under the same optimistic concurrency as Update.
func (s *BlueprintService) Patch(ctx context.Context, id string, patchDoc json.RawMessage, expectedVersion int64) (*models.BlueprintRecord, error) {
	current, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.LockVersion != expectedVersion {
		return nil, ErrVersionConflict
	}

	patch, err := jsonpatch.DecodePatch(patchDoc)
	if err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("invalid patch document: %w", err)}
	}
	patched, err := patch.Apply(current.Body)
	if err != nil {
		return nil, &ValidationError{Err: fmt.Errorf("patch does not apply: %w", err)}
	}

	return s.Update(ctx, id, patched, expectedVersion)
}

// Delete removes a blueprint under optimistic concurrency
func (s *BlueprintService) Delete(ctx context.Context, id string, expectedVersion int64) error {
	return s.store.Delete(ctx, id, expectedVersion)
}

// Resolve loads and parses a stored blueprint for execution. The stored
// body already passed validation, so a parse failure here is internal.
func (s *BlueprintService) Resolve(ctx context.Context, id string) (*blueprint.Blueprint, error) {
	record, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	bp, err := blueprint.Parse(record.Body)
	if err != nil {
		return nil, fmt.Errorf("stored blueprint %s is corrupt: %w", id, err)
	}
	bp.LockVersion = record.LockVersion
	return bp, nil
}

// withID injects a generated id into the raw body so the stored document
// matches the record.
func withID(body json.RawMessage, id string) (json.RawMessage, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, &ValidationError{Err: errors.New("blueprint body must be a JSON object")}
	}
	idJSON, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	doc["id"] = idJSON
	return json.Marshal(doc)
}

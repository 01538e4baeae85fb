package repository

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
	"github.com/iceos-ai/iceos/common/models"
)

// MemoryBlueprintStore is the in-process blueprint store used in
// development mode and tests. Same optimistic concurrency semantics as
// the Postgres repository.
type MemoryBlueprintStore struct {
	mu      sync.RWMutex
	records map[string]*models.BlueprintRecord
}

// NewMemoryBlueprintStore creates an empty store
func NewMemoryBlueprintStore() *MemoryBlueprintStore {
	return &MemoryBlueprintStore{records: make(map[string]*models.BlueprintRecord)}
}

func (s *MemoryBlueprintStore) Create(_ context.Context, record *models.BlueprintRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	record.LockVersion = 1
	record.CreatedAt = now
	record.UpdatedAt = now
	clone := *record
	s.records[record.ID] = &clone
	return nil
}

func (s *MemoryBlueprintStore) Get(_ context.Context, id string) (*models.BlueprintRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *record
	return &clone, nil
}

func (s *MemoryBlueprintStore) Update(_ context.Context, record *models.BlueprintRecord, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[record.ID]
	if !ok {
		return ErrNotFound
	}
	if existing.LockVersion != expectedVersion {
		return ErrVersionConflict
	}
	existing.Body = record.Body
	existing.SchemaVersion = record.SchemaVersion
	existing.LockVersion++
	existing.UpdatedAt = time.Now().UTC()
	record.LockVersion = existing.LockVersion
	return nil
}

func (s *MemoryBlueprintStore) Delete(_ context.Context, id string, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if existing.LockVersion != expectedVersion {
		return ErrVersionConflict
	}
	delete(s.records, id)
	return nil
}

// MemoryExecutionStore is the in-process execution store.
type MemoryExecutionStore struct {
	mu     sync.RWMutex
	runs   map[string]*models.Execution
	events map[string][]models.ExecutionEvent
}

// NewMemoryExecutionStore creates an empty store
func NewMemoryExecutionStore() *MemoryExecutionStore {
	return &MemoryExecutionStore{
		runs:   make(map[string]*models.Execution),
		events: make(map[string][]models.ExecutionEvent),
	}
}

func (s *MemoryExecutionStore) Create(_ context.Context, exec *models.Execution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *exec
	s.runs[exec.ID] = &clone
	return nil
}

func (s *MemoryExecutionStore) Get(_ context.Context, id string) (*models.Execution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	exec, ok := s.runs[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *exec
	return &clone, nil
}

func (s *MemoryExecutionStore) UpdateStatus(_ context.Context, id string, status models.ExecutionStatus, costMeta json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	exec, ok := s.runs[id]
	if !ok {
		return ErrNotFound
	}
	exec.Status = status
	switch status {
	case models.ExecutionCompleted, models.ExecutionFailed, models.ExecutionCanceled:
		now := time.Now().UTC()
		exec.FinishedAt = &now
	}
	if costMeta != nil {
		exec.CostMeta = costMeta
	}
	return nil
}

func (s *MemoryExecutionStore) AppendEvent(_ context.Context, event *sdk.Event) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return err
	}
	row := models.ExecutionEvent{
		ExecutionID: event.ExecutionID,
		Seq:         event.Seq,
		Timestamp:   event.Timestamp,
		Kind:        string(event.Kind),
		Payload:     payload,
	}
	if event.NodeID != "" {
		nodeID := event.NodeID
		row.NodeID = &nodeID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ExecutionID] = append(s.events[event.ExecutionID], row)
	return nil
}

func (s *MemoryExecutionStore) ReadEvents(_ context.Context, executionID string, fromSeq int64) ([]models.ExecutionEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ExecutionEvent
	for _, event := range s.events[executionID] {
		if event.Seq > fromSeq {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

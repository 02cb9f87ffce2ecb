package durable

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory CheckpointStore used by tests and by the
// single-process development mode. One record per run id; ContinueAsNew
// replaces it with the successor.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Checkpoint
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Checkpoint)}
}

func (s *MemoryStore) Create(_ context.Context, cp *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *cp
	c.UpdatedAt = time.Now()
	s.records[cp.RunID] = &c
	return nil
}

func (s *MemoryStore) ClaimDue(_ context.Context, now time.Time) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var oldest *Checkpoint
	for _, cp := range s.records {
		if cp.Status != StatusPending || cp.WakeAt.After(now) {
			continue
		}
		if oldest == nil || cp.WakeAt.Before(oldest.WakeAt) {
			oldest = cp
		}
	}
	if oldest == nil {
		return nil, nil
	}

	oldest.Status = StatusRunning
	oldest.UpdatedAt = time.Now()
	c := *oldest
	return &c, nil
}

func (s *MemoryStore) ContinueAsNew(_ context.Context, next *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *next
	c.UpdatedAt = time.Now()
	s.records[next.RunID] = &c
	return nil
}

func (s *MemoryStore) Complete(_ context.Context, runID string, _ int) error {
	return s.setStatus(runID, StatusCompleted, "")
}

func (s *MemoryStore) Fail(_ context.Context, runID string, _ int, message string) error {
	return s.setStatus(runID, StatusFailed, message)
}

func (s *MemoryStore) Get(_ context.Context, runID string) (*Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp, ok := s.records[runID]
	if !ok {
		return nil, nil
	}
	c := *cp
	return &c, nil
}

func (s *MemoryStore) setStatus(runID string, status Status, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp, ok := s.records[runID]; ok {
		cp.Status = status
		cp.LastError = message
		cp.UpdatedAt = time.Now()
	}
	return nil
}

// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/weftworks/weft/pkg/types"
)

// MemoryStore keeps checkpoints in process memory. Intended for tests and
// dry runs; nothing survives a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	nextID  int64
	records map[string][]*Record
}

// NewMemoryStore creates an empty in-memory checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string][]*Record),
	}
}

// Save appends a snapshot for the run.
func (s *MemoryStore) Save(ctx context.Context, runID, stepID string, state types.State) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	rec := &Record{
		ID:        s.nextID,
		RunID:     runID,
		StepID:    stepID,
		State:     state.Clone(),
		CreatedAt: time.Now(),
	}
	s.records[runID] = append(s.records[runID], rec)
	return rec.ID, nil
}

// LoadLatest returns the newest record for the run.
func (s *MemoryStore) LoadLatest(ctx context.Context, runID string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[runID]
	if len(recs) == 0 {
		return nil, fmt.Errorf("%s: %w", runID, ErrNoCheckpoint)
	}
	return copyRecord(recs[len(recs)-1]), nil
}

// List returns all records for a run, oldest first.
func (s *MemoryStore) List(ctx context.Context, runID string) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := s.records[runID]
	out := make([]*Record, len(recs))
	for i, rec := range recs {
		out[i] = copyRecord(rec)
	}
	return out, nil
}

func copyRecord(rec *Record) *Record {
	cp := *rec
	cp.State = rec.State.Clone()
	return &cp
}

var _ Store = (*MemoryStore)(nil)

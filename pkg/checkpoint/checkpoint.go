// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package checkpoint persists run state so interrupted workflow runs can
// resume from the last completed step.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/weftworks/weft/pkg/types"
)

// ErrNoCheckpoint is returned by LoadLatest when a run has no checkpoints.
var ErrNoCheckpoint = errors.New("no checkpoint for run")

// Record is one persisted checkpoint. Records are insertion-only; the most
// recent record per run wins.
type Record struct {
	// ID is the store-assigned record identifier
	ID int64

	// RunID identifies the run
	RunID string

	// StepID is the last completed step at the time of the snapshot
	StepID string

	// State is the full run state snapshot
	State types.State

	// CreatedAt is when the record was written
	CreatedAt time.Time
}

// Store is the narrow persistence interface the executor depends on.
// Implementations must serialize access per run ID.
type Store interface {
	// Save persists a snapshot and returns the new record's ID.
	Save(ctx context.Context, runID, stepID string, state types.State) (int64, error)

	// LoadLatest returns the most recent record for a run, or
	// ErrNoCheckpoint.
	LoadLatest(ctx context.Context, runID string) (*Record, error)

	// List returns every record for a run, oldest first.
	List(ctx context.Context, runID string) ([]*Record, error)
}

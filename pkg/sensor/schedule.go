// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package sensor

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// ScheduleSource fires a sensor on a cron schedule. Ticks that arrive
// while the previous run is still in flight are skipped, not queued.
type ScheduleSource struct {
	kernel *Kernel
	def    *Definition
	logger *zap.Logger

	cron    *cron.Cron
	entryID cron.EntryID
	running atomic.Bool
}

// ValidateSchedule checks a cron expression without building a source.
func ValidateSchedule(spec string) error {
	_, err := cron.ParseStandard(spec)
	return err
}

// NewScheduleSource creates a cron trigger for a registered schedule
// sensor. The definition's timezone defaults to UTC.
func NewScheduleSource(kernel *Kernel, def *Definition, logger *zap.Logger) (*ScheduleSource, error) {
	if def.Type != TypeSchedule {
		return nil, fmt.Errorf("sensor %q is %q, not %q", def.ID, def.Type, TypeSchedule)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	loc := time.UTC
	if def.Timezone != "" {
		var err error
		loc, err = time.LoadLocation(def.Timezone)
		if err != nil {
			return nil, fmt.Errorf("sensor %q: invalid timezone %q: %w", def.ID, def.Timezone, err)
		}
	}

	s := &ScheduleSource{
		kernel: kernel,
		def:    def,
		logger: logger,
		cron:   cron.New(cron.WithLocation(loc)),
	}

	entryID, err := s.cron.AddFunc(def.Schedule, s.tick)
	if err != nil {
		return nil, fmt.Errorf("sensor %q: invalid schedule %q: %w", def.ID, def.Schedule, err)
	}
	s.entryID = entryID
	return s, nil
}

func (s *ScheduleSource) tick() {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Warn("schedule tick skipped, previous run still in flight",
			zap.String("sensor", s.def.ID),
		)
		return
	}
	defer s.running.Store(false)

	event := NewEvent("schedule", map[string]any{
		"scheduled_at": time.Now().Format(time.RFC3339),
		"schedule":     s.def.Schedule,
	})
	if _, err := s.kernel.Offer(context.Background(), s.def.ID, event); err != nil {
		s.logger.Warn("schedule tick rejected",
			zap.String("sensor", s.def.ID),
			zap.Error(err),
		)
	}
}

// NextRun reports when the schedule fires next.
func (s *ScheduleSource) NextRun() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Start begins scheduling. It returns immediately; ticks run on the cron
// goroutine.
func (s *ScheduleSource) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for an in-flight tick to finish.
func (s *ScheduleSource) Stop() {
	<-s.cron.Stop().Done()
}

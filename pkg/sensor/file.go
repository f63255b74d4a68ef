// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package sensor

import (
	"context"
	"fmt"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// FileSource watches filesystem paths and offers a file-change event to
// the kernel for every write, create, remove, or rename it observes.
type FileSource struct {
	kernel *Kernel
	def    *Definition
	logger *zap.Logger

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewFileSource creates a watcher for a registered file-change sensor.
func NewFileSource(kernel *Kernel, def *Definition, logger *zap.Logger) (*FileSource, error) {
	if def.Type != TypeFileChange {
		return nil, fmt.Errorf("sensor %q is %q, not %q", def.ID, def.Type, TypeFileChange)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, path := range def.Paths {
		if err := watcher.Add(path); err != nil {
			watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", path, err)
		}
	}

	return &FileSource{
		kernel:  kernel,
		def:     def,
		logger:  logger,
		watcher: watcher,
		done:    make(chan struct{}),
	}, nil
}

// Start consumes watcher events until the context is cancelled or Stop is
// called. It blocks; run it in its own goroutine.
func (s *FileSource) Start(ctx context.Context) {
	for {
		select {
		case ev, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			event := NewEvent("file-watch", map[string]any{
				"path": ev.Name,
				"op":   ev.Op.String(),
			})
			if _, err := s.kernel.Offer(ctx, s.def.ID, event); err != nil {
				s.logger.Warn("file event rejected",
					zap.String("sensor", s.def.ID),
					zap.String("path", ev.Name),
					zap.Error(err),
				)
			}

		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			s.logger.Error("file watcher error",
				zap.String("sensor", s.def.ID),
				zap.Error(err),
			)

		case <-ctx.Done():
			return
		case <-s.done:
			return
		}
	}
}

// Stop closes the watcher and unblocks Start.
func (s *FileSource) Stop() error {
	close(s.done)
	return s.watcher.Close()
}

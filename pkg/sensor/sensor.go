// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Package sensor implements event-driven workflow triggering: a kernel
// that debounces and deduplicates sensor events, plus file-watch and cron
// schedule sources that feed it.
package sensor

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type names what a sensor listens to.
type Type string

const (
	TypeFileChange        Type = "file-change"
	TypeGitCommit         Type = "git-commit"
	TypeSchedule          Type = "schedule"
	TypeWebhook           Type = "webhook"
	TypeAssetMaterialized Type = "asset-materialized"
	TypeManual            Type = "manual"
)

var validTypes = map[Type]bool{
	TypeFileChange:        true,
	TypeGitCommit:         true,
	TypeSchedule:          true,
	TypeWebhook:           true,
	TypeAssetMaterialized: true,
	TypeManual:            true,
}

// ErrorPolicyKind selects how the kernel reacts to target workflow failures.
type ErrorPolicyKind string

const (
	// PolicyRetry re-evaluates on the next event; failures only log
	PolicyRetry ErrorPolicyKind = "retry"

	// PolicyAlert emits an alert after AlertAfter consecutive failures
	PolicyAlert ErrorPolicyKind = "alert"

	// PolicyDisable disables the sensor after MaxRetries consecutive
	// failures
	PolicyDisable ErrorPolicyKind = "disable"
)

// Trigger controls when events fire.
type Trigger struct {
	// Condition is a predicate over the event; false discards it
	Condition string `json:"condition,omitempty" yaml:"condition,omitempty"`

	// DebounceSeconds is the minimum gap between fires
	DebounceSeconds int `json:"debounce_seconds,omitempty" yaml:"debounce_seconds,omitempty"`

	// Filter is an additional predicate applied after the condition
	Filter string `json:"filter,omitempty" yaml:"filter,omitempty"`
}

// Target names the workflow a sensor starts and how event data maps onto
// its inputs. Binding values are expressions evaluated over the event.
type Target struct {
	Workflow      string            `json:"workflow" yaml:"workflow"`
	InputBindings map[string]string `json:"input_bindings,omitempty" yaml:"input_bindings,omitempty"`
}

// Evaluation configures polling sources.
type Evaluation struct {
	Mode            string `json:"mode,omitempty" yaml:"mode,omitempty"`
	IntervalSeconds int    `json:"interval_seconds,omitempty" yaml:"interval_seconds,omitempty"`
}

// ErrorPolicy bounds reaction to target workflow failures.
type ErrorPolicy struct {
	Kind       ErrorPolicyKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	AlertAfter int             `json:"alert_after,omitempty" yaml:"alert_after,omitempty"`
	MaxRetries int             `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// Definition is a declarative sensor.
type Definition struct {
	ID          string      `json:"id" yaml:"id"`
	Type        Type        `json:"type" yaml:"type"`
	Enabled     *bool       `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Trigger     Trigger     `json:"trigger,omitempty" yaml:"trigger,omitempty"`
	Target      Target      `json:"target" yaml:"target"`
	Evaluation  Evaluation  `json:"evaluation,omitempty" yaml:"evaluation,omitempty"`
	ErrorPolicy ErrorPolicy `json:"error_policy,omitempty" yaml:"error_policy,omitempty"`

	// Schedule is the cron expression for schedule sensors
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`

	// Timezone is an IANA zone name for schedule sensors (default: UTC)
	Timezone string `json:"timezone,omitempty" yaml:"timezone,omitempty"`

	// Paths are the watched locations for file-change sensors
	Paths []string `json:"paths,omitempty" yaml:"paths,omitempty"`
}

// EnabledOrDefault reports the enabled flag, defaulting to true.
func (d *Definition) EnabledOrDefault() bool {
	if d.Enabled == nil {
		return true
	}
	return *d.Enabled
}

// Validate checks the registration rules.
func (d *Definition) Validate() error {
	if d.ID == "" {
		return errors.New("sensor requires an id")
	}
	if !validTypes[d.Type] {
		return fmt.Errorf("sensor %q: unknown type %q", d.ID, d.Type)
	}
	if d.Target.Workflow == "" {
		return fmt.Errorf("sensor %q: target workflow is required", d.ID)
	}
	if d.Type == TypeSchedule && d.Schedule == "" {
		return fmt.Errorf("sensor %q: schedule sensors require a cron expression", d.ID)
	}
	if d.Type == TypeFileChange && len(d.Paths) == 0 {
		return fmt.Errorf("sensor %q: file-change sensors require paths", d.ID)
	}
	switch d.ErrorPolicy.Kind {
	case "", PolicyRetry, PolicyAlert, PolicyDisable:
	default:
		return fmt.Errorf("sensor %q: unknown error policy %q", d.ID, d.ErrorPolicy.Kind)
	}
	return nil
}

// Event is one observation delivered to the kernel.
type Event struct {
	// ID identifies the delivery, not the content
	ID string

	// Source names what produced the event
	Source string

	// Payload carries event data; input bindings evaluate over it
	Payload map[string]any

	// Timestamp defaults to arrival time when zero
	Timestamp time.Time
}

// NewEvent creates an event with a fresh delivery ID.
func NewEvent(source string, payload map[string]any) Event {
	return Event{
		ID:      uuid.NewString(),
		Source:  source,
		Payload: payload,
	}
}

// Fingerprint returns a content-addressed hash of the payload. Two events
// carrying the same payload fingerprint identically regardless of delivery
// ID or arrival time.
func (e Event) Fingerprint() string {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		// Unmarshalable payloads fall back to the delivery ID, which
		// makes them never deduplicate.
		return e.ID
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Metrics counts what happened to a sensor's events.
type Metrics struct {
	EventsSeen      int64 `json:"events_seen"`
	EventsFired     int64 `json:"events_fired"`
	EventsDebounced int64 `json:"events_debounced"`
	EventsDeduped   int64 `json:"events_deduped"`
	EventsFiltered  int64 `json:"events_filtered"`
	Failures        int64 `json:"failures"`
}

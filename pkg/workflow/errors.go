// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package workflow

import (
	"fmt"
	"strings"
)

// Step error kinds recorded in StepResult.Error.
const (
	ErrKindCancelled        = "cancelled"
	ErrKindTimeout          = "timeout"
	ErrKindDependencyFailed = "dependency_failed"
	ErrKindExpression       = "expression_error"
	ErrKindHandler          = "handler_error"
)

// CommandError reports a subprocess that exited non-zero.
type CommandError struct {
	// ExitCode is the process exit status
	ExitCode int

	// Stderr is the captured standard error output
	Stderr string
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("command failed with exit code %d", e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + strings.TrimSpace(e.Stderr)
	}
	return msg
}

// CheckError reports a validate step whose checks did not pass.
type CheckError struct {
	// Errors lists every failed check
	Errors []string
}

func (e *CheckError) Error() string {
	return "validation failed: " + strings.Join(e.Errors, "; ")
}

// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"errors"
	"fmt"
)

// ErrProviderMissing is returned when a model routes to a provider name that
// has no registered provider. Wrap it with the model and provider for context.
var ErrProviderMissing = errors.New("no provider registered")

// ProviderError is a failure reported by (or on the way to) a provider API.
type ProviderError struct {
	// Provider is the provider name ("openai", "anthropic", ...)
	Provider string

	// StatusCode is the HTTP status, or 0 for transport-level failures
	StatusCode int

	// Message is the provider's error text
	Message string

	// Retriable marks throttling and transient server errors
	Retriable bool
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: API error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// IsRetriable reports whether err is worth retrying: a ProviderError flagged
// retriable. Context cancellation and malformed-request errors are not.
func IsRetriable(err error) bool {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retriable
	}
	return false
}

// RetriableStatus reports whether an HTTP status indicates a transient
// condition (throttling or a server-side failure).
func RetriableStatus(status int) bool {
	return status == 429 || status >= 500
}

// Copyright © 2026 Weft Contributors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

package llm

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RateLimiterConfig configures request-rate limiting for provider calls.
type RateLimiterConfig struct {
	// Enabled turns the limiter on. A disabled limiter passes calls through.
	Enabled bool

	// RequestsPerSecond is the sustained request rate (default: 2)
	RequestsPerSecond float64

	// BurstCapacity is how many requests may proceed without waiting
	// (default: 5)
	BurstCapacity int

	// MinDelay is the smallest spacing between consecutive requests
	// (default: none)
	MinDelay time.Duration

	// Logger for limiter events (default: no-op)
	Logger *zap.Logger
}

// DefaultRateLimiterConfig returns conservative defaults suitable for
// shared API quotas.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		Enabled:           true,
		RequestsPerSecond: 2.0,
		BurstCapacity:     5,
		Logger:            zap.NewNop(),
	}
}

// RateLimiter is a token-bucket limiter shared by the provider clients. It
// spaces outgoing requests so a burst of parallel agent invocations does not
// trip provider throttling.
type RateLimiter struct {
	config RateLimiterConfig

	mu         sync.Mutex
	tokens     float64
	lastRefill time.Time
	lastCall   time.Time
}

// NewRateLimiter creates a rate limiter with a full bucket.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 2.0
	}
	if config.BurstCapacity <= 0 {
		config.BurstCapacity = 5
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	return &RateLimiter{
		config:     config,
		tokens:     float64(config.BurstCapacity),
		lastRefill: time.Now(),
	}
}

// Wait blocks until a request may proceed or the context ends.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	if !rl.config.Enabled {
		return nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay, ok := rl.reserve()
		if ok && delay == 0 {
			return nil
		}
		if !ok {
			// Bucket empty; wait roughly one refill interval.
			delay = time.Duration(float64(time.Second) / rl.config.RequestsPerSecond)
			rl.config.Logger.Debug("rate limited, waiting",
				zap.Duration("delay", delay))
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Do runs call after acquiring a slot from the limiter.
func (rl *RateLimiter) Do(ctx context.Context, call func(context.Context) error) error {
	if err := rl.Wait(ctx); err != nil {
		return err
	}
	return call(ctx)
}

// reserve refills the bucket and tries to take a token. It returns the
// min-delay spacing still owed (0 when the call may proceed now) and whether
// a token was available.
func (rl *RateLimiter) reserve() (time.Duration, bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.tokens += elapsed * rl.config.RequestsPerSecond
	if max := float64(rl.config.BurstCapacity); rl.tokens > max {
		rl.tokens = max
	}
	rl.lastRefill = now

	if rl.tokens < 1.0 {
		return 0, false
	}

	if rl.config.MinDelay > 0 && !rl.lastCall.IsZero() {
		if since := now.Sub(rl.lastCall); since < rl.config.MinDelay {
			return rl.config.MinDelay - since, true
		}
	}

	rl.tokens -= 1.0
	rl.lastCall = now
	return 0, true
}

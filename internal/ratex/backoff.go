// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

// Package ratex paces retry attempts with an adaptive delay.
package ratex

import (
	"context"
	"sync"
	"time"
)

// BackoffLimiter spaces events by a period that grows on Backoff and
// shrinks on Success, never dropping below the configured minimum. Safe
// for concurrent use.
type BackoffLimiter struct {
	mu      sync.Mutex
	period  time.Duration
	minimum time.Duration
}

func NewBackoffLimiter(minimum time.Duration) *BackoffLimiter {
	return &BackoffLimiter{period: minimum, minimum: minimum}
}

// Wait blocks for the current period or until ctx is done, in which case
// it returns the context error.
func (l *BackoffLimiter) Wait(ctx context.Context) error {
	t := time.NewTimer(l.CurrentPeriod())
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Backoff grows the period by a third, effective from the next Wait.
func (l *BackoffLimiter) Backoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.period = l.period * 4 / 3
}

// Success shrinks the period by a tenth, floored at the minimum.
func (l *BackoffLimiter) Success() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.period = max(l.period*9/10, l.minimum)
}

func (l *BackoffLimiter) CurrentPeriod() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.period
}

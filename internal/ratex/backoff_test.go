// Copyright 2025 The tagscout Authors
// SPDX-License-Identifier: Apache-2.0

package ratex

import (
	"context"
	"testing"
	"time"
)

func TestBackoffGrowsAndSuccessFloors(t *testing.T) {
	l := NewBackoffLimiter(90 * time.Millisecond)
	if got := l.CurrentPeriod(); got != 90*time.Millisecond {
		t.Fatalf("initial period %v", got)
	}
	l.Backoff()
	if got := l.CurrentPeriod(); got != 120*time.Millisecond {
		t.Errorf("after backoff: %v", got)
	}
	for i := 0; i < 10; i++ {
		l.Success()
	}
	if got := l.CurrentPeriod(); got != 90*time.Millisecond {
		t.Errorf("success must floor at the minimum, got %v", got)
	}
}

func TestWaitHonorsContext(t *testing.T) {
	l := NewBackoffLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Wait(ctx); err != context.Canceled {
		t.Errorf("got %v, want context.Canceled", err)
	}
}

func TestWaitElapses(t *testing.T) {
	l := NewBackoffLimiter(time.Millisecond)
	if err := l.Wait(context.Background()); err != nil {
		t.Errorf("got %v", err)
	}
}

// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import (
	"sync"
	"time"
)

// sharedTimer is the RecoveryManager's single loss-detection timer.
//
// A goroutine-based *time.Timer is best-effort to cancel: Stop can
// race with an already-fired callback. Rather than retry cancellation
// in a loop, sharedTimer stamps every arm with a monotonically
// increasing generation; a fired callback compares its captured
// generation against the live one and no-ops if a re-arm or cancel
// raced ahead of it. A RecoveryManager holding a sharedTimer therefore
// never needs to touch a timer-cancellation return value at all.
type sharedTimer struct {
	mu         sync.Mutex
	timer      *time.Timer
	generation uint64
	expiration time.Time // zero if not armed
	newTimer   func(d time.Duration, f func()) *time.Timer
	logger     recoveryLogger
}

func newSharedTimer(logger recoveryLogger) *sharedTimer {
	return &sharedTimer{
		newTimer: time.AfterFunc,
		logger:   logger,
	}
}

// arm schedules fire to run at deadline, discarding any previously
// scheduled fire. A fire already in flight when arm (or cancel) runs
// will observe a stale generation and no-op, logging the spurious
// fire against space for diagnosis.
func (t *sharedTimer) arm(now time.Time, deadline time.Time, space Space, fire func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()

	d := deadline.Sub(now)
	if d < 0 {
		d = 0
	}
	gen := t.generation
	t.expiration = deadline
	t.timer = t.newTimer(d, func() {
		t.mu.Lock()
		stale := gen != t.generation
		t.mu.Unlock()
		if stale {
			// A re-arm or cancel raced with this firing.
			t.logger.spuriousTimerFire(space)
			return
		}
		fire()
	})
}

// cancel disarms the timer. Safe to call when not armed.
func (t *sharedTimer) cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
}

func (t *sharedTimer) cancelLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.generation++
	t.expiration = time.Time{}
}

// expirationTime returns the instant the timer is currently armed
// for, or the zero Time if it is not armed. Exposed so tests can
// assert the at-most-one-arm property without a real sleep.
func (t *sharedTimer) expirationTime() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.expiration
}

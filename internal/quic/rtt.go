// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "time"

// RTTEstimator maintains smoothed RTT, RTT variance, and min RTT from
// acknowledgement samples (RFC 9002, Section 5).
//
// A zero-value RTTEstimator is not ready for use; construct one with
// newRTTEstimator so initialRTT and minRTT start at their documented
// defaults.
type RTTEstimator struct {
	initialRTT Duration

	minRTT      Duration
	smoothedRTT Duration // zero means "unset"
	rttvar      Duration
	latestRTT   Duration
}

// Duration is milliseconds, matching RFC 9002's integer RTT fields.
// A dedicated type (rather than time.Duration) keeps the EWMA
// arithmetic exact: RFC 9002 specifies it in milliseconds, and mixing
// millisecond-integer math with time.Duration's nanosecond units is a
// common source of off-by-factor bugs in this code.
type Duration int64

const defaultInitialRTT Duration = 500

// newRTTEstimator returns an RTTEstimator with the documented defaults:
// initial_rtt_ms = 500, min_rtt_ms = +inf, smoothed/rttvar unset.
func newRTTEstimator(initialRTT Duration) *RTTEstimator {
	if initialRTT <= 0 {
		initialRTT = defaultInitialRTT
	}
	return &RTTEstimator{
		initialRTT: initialRTT,
		minRTT:     Duration(1<<63 - 1),
	}
}

// SmoothedRTT returns initialRTT when no sample has been taken yet.
func (r *RTTEstimator) SmoothedRTT() Duration {
	if r.smoothedRTT == 0 {
		return r.initialRTT
	}
	return r.smoothedRTT
}

// RTTVar returns initialRTT/4 when no sample has been taken yet. This
// default makes the initial PTO equal 2*initialRTT.
func (r *RTTEstimator) RTTVar() Duration {
	if r.smoothedRTT == 0 {
		return r.initialRTT / 4
	}
	return r.rttvar
}

// MinRTT returns the smallest RTT sample observed so far, or zero if
// none has been taken.
func (r *RTTEstimator) MinRTT() Duration {
	if r.smoothedRTT == 0 && r.minRTT == Duration(1<<63-1) {
		return 0
	}
	return r.minRTT
}

// LatestRTT returns the most recent RTT sample, or zero if none.
func (r *RTTEstimator) LatestRTT() Duration {
	return r.latestRTT
}

// AddSample folds an ack sample into the estimator.
// timeReceived is when the acknowledging ACK frame arrived, timeSent
// is when the acknowledged packet was sent, and ackDelay is the
// peer-reported, already-clamped ack delay. AddSample reports whether
// the sample was accepted; a false return means timeReceived preceded
// timeSent and the sample was discarded.
func (r *RTTEstimator) AddSample(timeReceived, timeSent time.Time, ackDelay Duration) bool {
	if timeReceived.Before(timeSent) {
		return false
	}

	sample := Duration(timeReceived.Sub(timeSent).Milliseconds())
	r.latestRTT = sample
	if sample < r.minRTT {
		r.minRTT = sample
	}

	if sample > r.minRTT+ackDelay {
		sample -= ackDelay
	}

	if r.smoothedRTT == 0 {
		r.smoothedRTT = sample
		r.rttvar = sample / 2
		return true
	}

	diff := r.smoothedRTT - sample
	if diff < 0 {
		diff = -diff
	}
	r.rttvar = (3*r.rttvar + diff) / 4
	r.smoothedRTT = (7*r.smoothedRTT + sample) / 8
	return true
}

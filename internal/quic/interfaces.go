// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "time"

// HandshakeStateObserver is the push-notification contract a TLS
// handshake driver uses to report state transitions.
// *RecoveryManager satisfies this interface; it's named separately so
// test doubles and callers can depend on the narrower contract rather
// than the full RecoveryManager surface.
type HandshakeStateObserver interface {
	HandshakeStateChanged(state HandshakeState, now time.Time)
}

// ProbeSender is how a PTO probe or a retransmission hits the wire.
// How the bytes are actually sent is opaque to the recovery manager:
// probes are best-effort and may themselves be lost.
type ProbeSender interface {
	SendProbe(frames []FrameDescriptor, level Level)
}

// CongestionAdvisor is consumed as an opaque advisor. The recovery
// core reports sends, acks, and losses to it. CanSend is part of the
// contract, but nothing in this package calls it.
type CongestionAdvisor interface {
	OnPacketSent(size uint32)
	OnPacketAcked(size uint32)
	OnPacketsLost(sizes []uint32)
	CanSend() bool
}

// HandshakeState is the set of states a HandshakeStateObserver may
// report. Transitions are monotone: Initial -> HasHandshakeKeys ->
// HasAppKeys -> Confirmed.
type HandshakeState int

const (
	HandshakeInitial HandshakeState = iota
	HandshakeHasHandshakeKeys
	HandshakeHasAppKeys
	HandshakeConfirmed
)

func (h HandshakeState) String() string {
	switch h {
	case HandshakeInitial:
		return "Initial"
	case HandshakeHasHandshakeKeys:
		return "HasHandshakeKeys"
	case HandshakeHasAppKeys:
		return "HasAppKeys"
	case HandshakeConfirmed:
		return "Confirmed"
	default:
		return "Unknown"
	}
}

// noopAdvisor is a CongestionAdvisor that never blocks sending. Tests
// that don't care about congestion control use it as a default.
type noopAdvisor struct{}

func (noopAdvisor) OnPacketSent(uint32)    {}
func (noopAdvisor) OnPacketAcked(uint32)   {}
func (noopAdvisor) OnPacketsLost([]uint32) {}
func (noopAdvisor) CanSend() bool          { return true }

// noopProbeSender is a ProbeSender that discards everything. Useful
// for tests that exercise timer arming without caring what gets sent.
type noopProbeSender struct{}

func (noopProbeSender) SendProbe([]FrameDescriptor, Level) {}

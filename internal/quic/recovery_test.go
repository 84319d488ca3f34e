// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import (
	"testing"
	"time"
)

type recordingProbeSender struct {
	calls []probeCall
}

type probeCall struct {
	frames []FrameDescriptor
	level  Level
}

func (p *recordingProbeSender) SendProbe(frames []FrameDescriptor, level Level) {
	p.calls = append(p.calls, probeCall{frames: frames, level: level})
}

// newTestRecoveryManager builds a RecoveryManager with an injectable
// clock and a fake timer, the way conn_test.go's newTestConn builds a
// Conn whose timer and clock are test-controlled.
func newTestRecoveryManager(cfg Config, probe ProbeSender) (*RecoveryManager, *fakeTimer, *time.Time) {
	rm := newRecoveryManager(cfg, nil, probe, nopRecoveryLogger{})
	factory, ft := newFakeTimerFactory()
	rm.timer.newTimer = factory
	now := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := &now
	rm.now = func() time.Time { return *clock }
	return rm, ft, clock
}

// PTO scenario: smoothed_rtt=0, initial_rtt=500, no sent packets,
// peer_awaiting_validation true after a Handshake packet sent at t=0:
// timer arms for t+1000ms; on fire, a probe is emitted and pto_count
// becomes 1; the connection then sends the probe (registering it as
// the new last-ack-eliciting packet) and the next arm is 2x1000ms
// from that new time.
func TestRecoveryManagerPTOScenario(t *testing.T) {
	probe := &recordingProbeSender{}
	rm, ft, clock := newTestRecoveryManager(DefaultConfig(), probe)

	start := *clock
	rm.HandshakeStateChanged(HandshakeHasHandshakeKeys, start)
	rm.PacketSent(SpaceHandshake, start, NewInFlightPacket(0, 100, crypto), nil)

	wantDeadline := start.Add(time.Second)
	if got := rm.timer.expirationTime(); !got.Equal(wantDeadline) {
		t.Fatalf("expirationTime() after first Handshake send = %v, want %v (2*initial_rtt)", got, wantDeadline)
	}

	*clock = wantDeadline
	ft.fire()

	if len(probe.calls) != 1 {
		t.Fatalf("probe calls = %d, want 1", len(probe.calls))
	}
	if got := rm.Snapshot().PTOCount; got != 1 {
		t.Fatalf("PTOCount after first PTO fire = %d, want 1", got)
	}

	// The connection sends the probe as a new Handshake packet.
	rm.PacketSent(SpaceHandshake, *clock, NewInFlightPacket(1, 100, crypto), nil)

	wantDeadline2 := wantDeadline.Add(2 * time.Second)
	if got := rm.timer.expirationTime(); !got.Equal(wantDeadline2) {
		t.Fatalf("expirationTime() after first PTO = %v, want %v (2x backoff from new last-ack-eliciting-sent)", got, wantDeadline2)
	}

	// PTO monotonicity: a second consecutive expiration without any
	// ack doubles the delay again.
	*clock = wantDeadline2
	ft.fire()
	if got := rm.Snapshot().PTOCount; got != 2 {
		t.Fatalf("PTOCount after second PTO fire = %d, want 2", got)
	}
	if len(probe.calls) != 3 { // 1 + numProbes(2) since pto_count>1
		t.Fatalf("total probe calls after second PTO fire = %d, want 3 (1 + 2)", len(probe.calls))
	}
	rm.PacketSent(SpaceHandshake, *clock, NewInFlightPacket(2, 100, crypto), nil)
	wantDeadline3 := wantDeadline2.Add(4 * time.Second)
	if got := rm.timer.expirationTime(); !got.Equal(wantDeadline3) {
		t.Fatalf("expirationTime() after second PTO = %v, want %v (4x initial pto)", got, wantDeadline3)
	}
}

func TestRecoveryManagerOnAckReceivedResetsPTOCount(t *testing.T) {
	probe := &recordingProbeSender{}
	rm, ft, clock := newTestRecoveryManager(DefaultConfig(), probe)
	start := *clock

	rm.HandshakeStateChanged(HandshakeHasHandshakeKeys, start)
	rm.PacketSent(SpaceHandshake, start, NewInFlightPacket(0, 100, crypto), nil)
	*clock = start.Add(time.Second)
	ft.fire()
	if got := rm.Snapshot().PTOCount; got != 1 {
		t.Fatalf("PTOCount after PTO fire = %d, want 1", got)
	}

	rm.OnAckReceived(SpaceHandshake, AckFrame{Largest: 0, Ranges: []AckRange{{Start: 0, End: 0}}}, *clock)
	if got := rm.Snapshot().PTOCount; got != 0 {
		t.Fatalf("PTOCount after ack = %d, want 0", got)
	}
}

func TestRecoveryManagerAckDelayClamped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ReceiverMaxAckDelay = 10
	rm, _, clock := newTestRecoveryManager(cfg, nil)
	start := *clock

	rm.PacketSent(SpaceApp, start, NewInFlightPacket(0, 100, crypto), nil)
	rm.OnAckReceived(SpaceApp, AckFrame{
		Largest:  0,
		AckDelay: 10_000, // far beyond receiver_max_ack_delay_ms
		Ranges:   []AckRange{{Start: 0, End: 0}},
	}, start.Add(50*time.Millisecond))

	// The first sample sets min_rtt to itself, so no ack_delay is
	// subtracted from it: smoothed_rtt bootstraps to the 50ms elapsed time.
	if got := rm.Snapshot().SmoothedRTT; got <= 0 || got > 50 {
		t.Fatalf("SmoothedRTT() = %v, want a small positive value near 50ms (ack_delay clamped)", got)
	}

	// A second, 200ms sample with the same oversized ack_delay: clamped
	// to 10ms, it exceeds min_rtt+ack_delay and is subtracted, giving
	// smoothed_rtt = (7*50 + 190)/8 = 67. Unclamped, 200 is not above
	// 50+10000, nothing would be subtracted, and the result would be 68.
	sent1 := start.Add(50 * time.Millisecond)
	rm.PacketSent(SpaceApp, sent1, NewInFlightPacket(1, 100, crypto), nil)
	rm.OnAckReceived(SpaceApp, AckFrame{
		Largest:  1,
		AckDelay: 10_000,
		Ranges:   []AckRange{{Start: 1, End: 1}},
	}, sent1.Add(200*time.Millisecond))
	if got, want := rm.Snapshot().SmoothedRTT, Duration(67); got != want {
		t.Fatalf("SmoothedRTT() after second sample = %v, want %v (ack_delay clamped to 10ms and subtracted)", got, want)
	}
}

func TestRecoveryManagerStopRecoveryCancelsTimer(t *testing.T) {
	probe := &recordingProbeSender{}
	rm, ft, clock := newTestRecoveryManager(DefaultConfig(), probe)
	start := *clock

	rm.HandshakeStateChanged(HandshakeHasHandshakeKeys, start)
	rm.PacketSent(SpaceHandshake, start, NewInFlightPacket(0, 100, crypto), nil)
	if rm.timer.expirationTime().IsZero() {
		t.Fatalf("timer not armed before StopRecovery")
	}

	rm.StopRecovery()
	if !rm.timer.expirationTime().IsZero() {
		t.Fatalf("timer still armed after StopRecovery")
	}

	// A stale fire (if one were somehow still pending) must no-op.
	*clock = start.Add(time.Hour)
	ft.fire()
	if len(probe.calls) != 0 {
		t.Fatalf("probe calls after StopRecovery = %d, want 0", len(probe.calls))
	}
}

func TestRecoveryManagerInitialDiscardedOnFirstHandshakeSent(t *testing.T) {
	rm, _, clock := newTestRecoveryManager(DefaultConfig(), nil)
	start := *clock

	rm.PacketSent(SpaceInitial, start, NewInFlightPacket(0, 100, crypto), nil)
	if got := rm.detectors[SpaceInitial].BytesInFlight(); got != 100 {
		t.Fatalf("Initial BytesInFlight() before Handshake send = %d, want 100", got)
	}

	rm.PacketSent(SpaceHandshake, start, NewInFlightPacket(0, 100, crypto), nil)
	if got := rm.detectors[SpaceInitial].BytesInFlight(); got != 0 {
		t.Fatalf("Initial BytesInFlight() after first Handshake send = %d, want 0 (Initial keys discarded)", got)
	}
}

func TestRecoveryManagerSelectProbeFallsBackToPingPadding(t *testing.T) {
	probe := &recordingProbeSender{}
	rm, ft, clock := newTestRecoveryManager(DefaultConfig(), probe)
	start := *clock

	rm.HandshakeStateChanged(HandshakeHasHandshakeKeys, start)
	// No ack-eliciting, non-trivial packet may exist to retransmit, but
	// an ack-eliciting in-flight packet is needed to keep the timer
	// armed in PTO mode, so send a Ping-only packet (ack-eliciting, but
	// "trivial").
	rm.PacketSent(SpaceHandshake, start, NewInFlightPacket(0, 100, []FrameDescriptor{{Type: FramePing}}), nil)

	*clock = start.Add(time.Second)
	ft.fire()

	if len(probe.calls) != 1 {
		t.Fatalf("probe calls = %d, want 1", len(probe.calls))
	}
	got := probe.calls[0].frames
	if len(got) != len(pingPadding) || got[0].Type != FramePing || got[1].Type != FramePadding {
		t.Fatalf("probe frames = %v, want the Ping/Padding fallback", got)
	}
}

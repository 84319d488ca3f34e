// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Stats is a read-only snapshot of RecoveryManager state, for
// observability (internal/metrics polls it). It has no effect on
// recovery behavior.
type Stats struct {
	BytesInFlight  [numberSpaceCount]uint64
	SmoothedRTT    Duration
	MinRTT         Duration
	LatestRTT      Duration
	PTOCount       uint32
	TimerDeadline  time.Time // zero if the timer is not armed
	HandshakeState HandshakeState
}

// RecoveryManager orchestrates the three per-space LossDetectors, owns
// the single shared loss-detection timer, computes PTO, and emits
// probes via a ProbeSender.
//
// RecoveryManager serializes all of its operations, including timer
// fires, behind a single mutex: the intended discipline is one coarse
// lock on the whole manager rather than fine-grained per-space locks.
type RecoveryManager struct {
	mu sync.Mutex

	cfg    Config
	probe  ProbeSender
	logger recoveryLogger
	// now is the clock RecoveryManager consults when a timer fires.
	// It defaults to time.Now; tests substitute a fake clock to drive
	// PTO and loss-detection scenarios deterministically.
	now func() time.Time

	rtt       *RTTEstimator
	detectors [numberSpaceCount]*LossDetector
	timer     *sharedTimer

	ptoCount           uint32
	handshakeState     HandshakeState
	firstHandshakeSent bool

	stopped      bool
	spaceStopped [numberSpaceCount]bool
}

// NewRecoveryManager constructs a RecoveryManager. cc and probe may be
// nil, in which case a no-op advisor/sender is used (useful for
// exercising the reassembler or timer logic in isolation). log may be
// nil, in which case logrus.StandardLogger() is used.
func NewRecoveryManager(cfg Config, cc CongestionAdvisor, probe ProbeSender, log logrus.FieldLogger) *RecoveryManager {
	return newRecoveryManager(cfg, cc, probe, newLogrusRecoveryLogger(log))
}

// newRecoveryManager is the shared constructor; tests use it directly
// with a nopRecoveryLogger to keep `go test -v` output quiet.
func newRecoveryManager(cfg Config, cc CongestionAdvisor, probe ProbeSender, logger recoveryLogger) *RecoveryManager {
	if probe == nil {
		probe = noopProbeSender{}
	}
	rm := &RecoveryManager{
		cfg:    cfg,
		probe:  probe,
		logger: logger,
		now:    time.Now,
		rtt:    newRTTEstimator(cfg.InitialRTT),
		timer:  newSharedTimer(logger),
	}
	for s := Space(0); s < numberSpaceCount; s++ {
		rm.detectors[s] = newLossDetector(s, cfg, cc, logger)
	}
	return rm
}

// PacketSent registers a just-sent packet in its space. If
// packet.level == Handshake and this is the first Handshake packet
// sent, the Initial LossDetector is reset (Initial keys are
// discarded once a Handshake packet is sent, per RFC 9001 §4.9.1).
func (rm *RecoveryManager) PacketSent(space Space, now time.Time, pkt *InFlightPacket, onLost func(*InFlightPacket)) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.stopped || rm.spaceStopped[space] {
		return
	}

	if space == SpaceHandshake && !rm.firstHandshakeSent {
		rm.detectors[SpaceInitial].Reset()
		rm.firstHandshakeSent = true
	}

	if pkt.InFlight {
		rm.detectors[space].OnPacketSent(pkt, now, onLost)
	}
	rm.setLossDetectionTimerLocked(now)
}

// OnAckReceived processes an ACK frame received in space.
func (rm *RecoveryManager) OnAckReceived(space Space, ack AckFrame, now time.Time) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.stopped || rm.spaceStopped[space] {
		return
	}

	if ack.AckDelay > rm.cfg.ReceiverMaxAckDelay {
		ack.AckDelay = rm.cfg.ReceiverMaxAckDelay
	}

	rm.ptoCount = 0
	rm.detectors[space].OnAckReceived(ack, now, rm.rtt)
	rm.setLossDetectionTimerLocked(now)
}

// HandshakeStateChanged reports a monotone handshake state transition.
func (rm *RecoveryManager) HandshakeStateChanged(state HandshakeState, now time.Time) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.stopped {
		return
	}
	rm.handshakeState = state
	if state == HandshakeConfirmed {
		rm.setLossDetectionTimerLocked(now)
	}
}

// StopRecovery cancels the timer, resets all detectors, and causes
// all subsequent events to be ignored.
func (rm *RecoveryManager) StopRecovery() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.timer.cancel()
	for s := range rm.detectors {
		rm.detectors[s].Reset()
	}
	rm.stopped = true
}

// StopRecoverySpace resets a single space's detector and re-arms or
// cancels the shared timer according to the remaining spaces;
// subsequent events in that space are ignored.
func (rm *RecoveryManager) StopRecoverySpace(space Space) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.detectors[space].Reset()
	rm.spaceStopped[space] = true
	rm.setLossDetectionTimerLocked(rm.now())
}

// Snapshot returns a read-only view of current recovery state.
func (rm *RecoveryManager) Snapshot() Stats {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	var s Stats
	for i := range rm.detectors {
		s.BytesInFlight[i] = rm.detectors[i].BytesInFlight()
	}
	s.SmoothedRTT = rm.rtt.SmoothedRTT()
	s.MinRTT = rm.rtt.MinRTT()
	s.LatestRTT = rm.rtt.LatestRTT()
	s.PTOCount = rm.ptoCount
	s.TimerDeadline = rm.timer.expirationTime()
	s.HandshakeState = rm.handshakeState
	return s
}

// setLossDetectionTimerLocked implements RFC 9002's SetLossDetectionTimer
// policy: arm for the earliest pending loss_time if one exists,
// otherwise arm for the PTO deadline if a probe might still be
// needed, otherwise cancel. Caller must hold rm.mu.
func (rm *RecoveryManager) setLossDetectionTimerLocked(now time.Time) {
	if lossSpace, lossTime, ok := rm.earliestLossTimeLocked(); ok {
		space := lossSpace
		rm.timer.arm(now, lossTime, space, func() { rm.onLossTimeout(space) })
		return
	}

	ackElicitingInFlight := rm.anyAckElicitingInFlightLocked()
	peerAwaitingValidation := rm.peerAwaitingValidationLocked()
	if !ackElicitingInFlight && !peerAwaitingValidation {
		rm.timer.cancel()
		return
	}

	space, lastAE, ok := rm.earliestLastAckElicitingSentLocked()
	if !ok {
		switch {
		case peerAwaitingValidation:
			space = SpaceHandshake
			lastAE = now
			rm.logger.coercedLastAckElicitingSent(space, now)
		default:
			// No ack-eliciting packet has ever been sent in any
			// live space, and the peer's address is not pending
			// validation: there is nothing to probe for yet.
			rm.timer.cancel()
			return
		}
	}

	maxAckDelayTerm := Duration(0)
	if space == SpaceApp {
		maxAckDelayTerm = rm.cfg.ReceiverMaxAckDelay
	}
	rttvar4 := 4 * rm.rtt.RTTVar()
	if rttvar4 < rm.cfg.Granularity {
		rttvar4 = rm.cfg.Granularity
	}
	ptoMs := rm.rtt.SmoothedRTT() + rttvar4 + maxAckDelayTerm
	ptoDuration := (time.Duration(ptoMs) * time.Millisecond) << rm.ptoCount

	deadline := lastAE.Add(ptoDuration)
	if deadline.Before(now) {
		deadline = now
	}
	rm.timer.arm(now, deadline, space, func() { rm.onPTOTimeout(space) })
}

// onLossTimeout runs when the timer fires for time-threshold
// loss detection in space. Acquires rm.mu itself since it runs from
// the timer goroutine.
func (rm *RecoveryManager) onLossTimeout(space Space) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.stopped || rm.spaceStopped[space] {
		return
	}
	now := rm.now()
	rm.detectors[space].DetectLostPackets(now, rm.rtt)
	rm.setLossDetectionTimerLocked(now)
}

// onPTOTimeout runs when the timer fires with no loss_time
// pending: it's a PTO expiration, and a probe must be sent.
func (rm *RecoveryManager) onPTOTimeout(space Space) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.stopped || rm.spaceStopped[space] {
		return
	}
	now := rm.now()

	rm.ptoCount++
	numProbes := 1
	if rm.ptoCount > 1 {
		numProbes = 2
	}

	frames, level := rm.selectProbeLocked(space)
	for i := 0; i < numProbes; i++ {
		rm.probe.SendProbe(frames, level)
	}

	rm.setLossDetectionTimerLocked(now)
}

// pingPadding is the fallback probe payload, sent when there is
// nothing better to retransmit: a Ping frame plus two bytes of
// Padding.
var pingPadding = []FrameDescriptor{
	{Type: FramePing},
	{Type: FramePadding, Payload: 2},
}

// selectProbeLocked chooses the frames and encryption level for a PTO
// probe. The rule is keyed on handshake state: while still in the
// Initial or Handshake phase, a probe must be sent at that phase's
// level even if a later space already has packets in flight.
func (rm *RecoveryManager) selectProbeLocked(ptoSpace Space) ([]FrameDescriptor, Level) {
	switch {
	case rm.handshakeState == HandshakeInitial:
		if pkt := rm.detectors[SpaceInitial].earliestUnacked(); pkt != nil {
			return pkt.retransmittableFrames(), LevelInitial
		}
		return pingPadding, LevelInitial

	case rm.handshakeState == HandshakeHasHandshakeKeys:
		if pkt := rm.detectors[SpaceHandshake].earliestNonTrivialAckEliciting(); pkt != nil {
			return pkt.retransmittableFrames(), LevelHandshake
		}
		return pingPadding, LevelHandshake

	default: // HasAppKeys or Confirmed
		level := ptoSpace.RelatedEncryptionLevel()
		if pkt := rm.detectors[ptoSpace].earliestNonTrivialAckEliciting(); pkt != nil {
			return pkt.retransmittableFrames(), level
		}
		return pingPadding, level
	}
}

// earliestLossTimeLocked returns the space and time of the earliest
// pending loss_time across all (non-stopped) spaces.
func (rm *RecoveryManager) earliestLossTimeLocked() (Space, time.Time, bool) {
	var bestSpace Space
	var best time.Time
	found := false
	for s := Space(0); s < numberSpaceCount; s++ {
		if rm.spaceStopped[s] {
			continue
		}
		lt := rm.detectors[s].LossTime()
		if lt == nil {
			continue
		}
		if !found || lt.Before(best) {
			best = *lt
			bestSpace = s
			found = true
		}
	}
	return bestSpace, best, found
}

// anyAckElicitingInFlightLocked reports whether any space has an
// ack-eliciting, in-flight packet outstanding.
func (rm *RecoveryManager) anyAckElicitingInFlightLocked() bool {
	for s := Space(0); s < numberSpaceCount; s++ {
		if rm.spaceStopped[s] {
			continue
		}
		if rm.detectors[s].HasAckElicitingInFlight() {
			return true
		}
	}
	return false
}

// peerAwaitingValidationLocked implements RFC 9002's
// PeerCompletedAddressValidation-negated predicate: true while the
// handshake state is still Initial or HasHandshakeKeys and no
// acknowledgment has been received in the Handshake or App space
// (Initial-space acks do not count), meaning the peer's address is not
// yet validated and a PTO must still be armed to keep probing.
func (rm *RecoveryManager) peerAwaitingValidationLocked() bool {
	if rm.handshakeState != HandshakeInitial && rm.handshakeState != HandshakeHasHandshakeKeys {
		return false
	}
	return rm.detectors[SpaceHandshake].NoAckReceived() && rm.detectors[SpaceApp].NoAckReceived()
}

// earliestLastAckElicitingSentLocked returns the space and time of the
// earliest last-ack-eliciting-sent time across all (non-stopped)
// spaces.
func (rm *RecoveryManager) earliestLastAckElicitingSentLocked() (Space, time.Time, bool) {
	var bestSpace Space
	var best time.Time
	found := false
	for s := Space(0); s < numberSpaceCount; s++ {
		if rm.spaceStopped[s] {
			continue
		}
		t := rm.detectors[s].LastAckElicitingSent()
		if t == nil {
			continue
		}
		if !found || t.Before(best) {
			best = *t
			bestSpace = s
			found = true
		}
	}
	return bestSpace, best, found
}

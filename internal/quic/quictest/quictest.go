// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package quictest provides recording test doubles for the external
// collaborators quic.RecoveryManager depends on (ProbeSender,
// CongestionAdvisor, HandshakeStateObserver), for use outside package
// quic, such as by cmd/kwik-recover. The internal/quic tests keep their
// own local fakes, since importing this package from them would be an
// import cycle.
package quictest

import (
	"sync"
	"time"

	"github.com/cybort/kwik/internal/quic"
)

// ProbeSender records every probe sent to it.
type ProbeSender struct {
	mu    sync.Mutex
	Calls []ProbeCall
}

// ProbeCall is one recorded quic.ProbeSender.SendProbe invocation.
type ProbeCall struct {
	Frames []quic.FrameDescriptor
	Level  quic.Level
}

// SendProbe implements quic.ProbeSender.
func (p *ProbeSender) SendProbe(frames []quic.FrameDescriptor, level quic.Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, ProbeCall{Frames: frames, Level: level})
}

// Len returns the number of probes sent so far.
func (p *ProbeSender) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}

// CongestionAdvisor records sent/acked/lost notifications and always
// permits sending, unless Blocked is set.
type CongestionAdvisor struct {
	mu      sync.Mutex
	Blocked bool

	BytesSent, BytesAcked, BytesLost uint64
	LossEvents                      int
}

// OnPacketSent implements quic.CongestionAdvisor.
func (c *CongestionAdvisor) OnPacketSent(size uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BytesSent += uint64(size)
}

// OnPacketAcked implements quic.CongestionAdvisor.
func (c *CongestionAdvisor) OnPacketAcked(size uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.BytesAcked += uint64(size)
}

// OnPacketsLost implements quic.CongestionAdvisor.
func (c *CongestionAdvisor) OnPacketsLost(sizes []uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.LossEvents++
	for _, s := range sizes {
		c.BytesLost += uint64(s)
	}
}

// CanSend implements quic.CongestionAdvisor.
func (c *CongestionAdvisor) CanSend() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.Blocked
}

// HandshakeDriver is a minimal quic.HandshakeStateObserver-compatible
// helper: it both implements the push side (so tests can record state
// transitions independently of a RecoveryManager) and forwards to a
// wrapped observer when one is set.
type HandshakeDriver struct {
	Observer quic.HandshakeStateObserver

	mu          sync.Mutex
	Transitions []Transition
}

// Transition is one recorded handshake state change.
type Transition struct {
	State quic.HandshakeState
	Now   time.Time
}

// HandshakeStateChanged implements quic.HandshakeStateObserver,
// recording the transition and forwarding it to Observer if set.
func (d *HandshakeDriver) HandshakeStateChanged(state quic.HandshakeState, now time.Time) {
	d.mu.Lock()
	d.Transitions = append(d.Transitions, Transition{State: state, Now: now})
	d.mu.Unlock()
	if d.Observer != nil {
		d.Observer.HandshakeStateChanged(state, now)
	}
}

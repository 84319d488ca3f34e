// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import (
	"sort"
	"time"
)

// InFlightPacket is a packet this side has sent in one Space, not yet
// acknowledged, declared lost, or discarded.
type InFlightPacket struct {
	Number       PacketNumber
	TimeSent     time.Time
	Size         uint32
	AckEliciting bool
	InFlight     bool
	Frames       []FrameDescriptor

	onLost func(*InFlightPacket)
}

// NewInFlightPacket builds an InFlightPacket from its frame list,
// computing AckEliciting and InFlight per RFC 9002's definitions: a
// packet is ack-eliciting iff it carries any frame other than
// ACK/PADDING, and in-flight iff it is ack-eliciting or carries
// PADDING.
func NewInFlightPacket(num PacketNumber, size uint32, frames []FrameDescriptor) *InFlightPacket {
	p := &InFlightPacket{Number: num, Size: size, Frames: frames}
	hasPadding := false
	for _, f := range frames {
		if f.Type.ackEliciting() {
			p.AckEliciting = true
		}
		if f.Type == FramePadding {
			hasPadding = true
		}
	}
	p.InFlight = p.AckEliciting || hasPadding
	return p
}

// nonTrivial reports whether the packet carries anything beyond
// Ping, Padding, and Ack — the set of frames a PTO probe retransmit
// excludes from consideration.
func (p *InFlightPacket) nonTrivial() bool {
	for _, f := range p.Frames {
		switch f.Type {
		case FramePing, FramePadding, FrameAck:
			continue
		default:
			return true
		}
	}
	return false
}

// retransmittableFrames returns the packet's frames with ACK frames
// excluded, for use as a PTO probe or loss retransmission payload: a
// retransmitted frame list never carries an Ack frame of its own.
func (p *InFlightPacket) retransmittableFrames() []FrameDescriptor {
	out := make([]FrameDescriptor, 0, len(p.Frames))
	for _, f := range p.Frames {
		if f.Type != FrameAck {
			out = append(out, f)
		}
	}
	return out
}

// AckRange is an inclusive range of acknowledged packet numbers.
type AckRange struct {
	Start, End PacketNumber // Start <= End
}

// AckFrame is the subset of an ACK frame's fields loss detection
// consumes.
type AckFrame struct {
	Largest  PacketNumber
	AckDelay Duration
	Ranges   []AckRange
}

// contains reports whether pn falls within any of the frame's ranges.
func (a AckFrame) contains(pn PacketNumber) bool {
	for _, r := range a.Ranges {
		if pn >= r.Start && pn <= r.End {
			return true
		}
	}
	return false
}

// LossDetector tracks in-flight packets for a single packet-number
// space, processes ack ranges, and declares packets lost using the
// time- and packet-threshold rules of RFC 9002.
//
// LossDetector is a pure data+algorithm object: it never calls back
// into a RecoveryManager. Callers (the RecoveryManager) invoke its
// methods and re-arm the shared timer themselves afterward.
type LossDetector struct {
	space  Space
	cfg    Config
	cc     CongestionAdvisor
	logger recoveryLogger

	sentPackets map[PacketNumber]*InFlightPacket

	largestAcked         *PacketNumber
	lossTime             *time.Time
	lastAckElicitingSent *time.Time
	noAckReceived        bool
}

// newLossDetector constructs a LossDetector for the given space. cc
// may be nil, in which case a no-op advisor is used.
func newLossDetector(space Space, cfg Config, cc CongestionAdvisor, logger recoveryLogger) *LossDetector {
	if cc == nil {
		cc = noopAdvisor{}
	}
	return &LossDetector{
		space:         space,
		cfg:           cfg,
		cc:            cc,
		logger:        logger,
		sentPackets:   make(map[PacketNumber]*InFlightPacket),
		noAckReceived: true,
	}
}

// OnPacketSent registers a just-sent packet. onLost, if non-nil, is
// invoked at most once, when and if this packet is later declared
// lost.
func (ld *LossDetector) OnPacketSent(pkt *InFlightPacket, timeSent time.Time, onLost func(*InFlightPacket)) {
	pkt.TimeSent = timeSent
	pkt.onLost = onLost
	ld.sentPackets[pkt.Number] = pkt

	if pkt.AckEliciting {
		t := timeSent
		ld.lastAckElicitingSent = &t
	}
	if pkt.InFlight {
		ld.cc.OnPacketSent(pkt.Size)
	}
}

// OnAckReceived processes an incoming ACK frame: updates
// largest_acked, removes newly-acked packets, feeds an RTT sample
// when appropriate, and runs loss detection.
//
// rtt is the RecoveryManager's single shared RttEstimator (the data
// model places RTT estimation at the RecoveryManager, not per-space).
// It reports whether any previously-unacked packet was newly
// acknowledged.
func (ld *LossDetector) OnAckReceived(ack AckFrame, now time.Time, rtt *RTTEstimator) bool {
	if ld.largestAcked == nil || ack.Largest > *ld.largestAcked {
		l := ack.Largest
		ld.largestAcked = &l
	}

	var newlyAcked []*InFlightPacket
	for pn, pkt := range ld.sentPackets {
		if ack.contains(pn) {
			newlyAcked = append(newlyAcked, pkt)
		}
	}
	sort.Slice(newlyAcked, func(i, j int) bool { return newlyAcked[i].Number < newlyAcked[j].Number })

	for _, pkt := range newlyAcked {
		delete(ld.sentPackets, pkt.Number)
		if pkt.InFlight {
			ld.cc.OnPacketAcked(pkt.Size)
		}
	}

	if len(newlyAcked) > 0 {
		largestNewlyAcked := newlyAcked[len(newlyAcked)-1]
		if largestNewlyAcked.Number == ack.Largest && largestNewlyAcked.AckEliciting {
			if !rtt.AddSample(now, largestNewlyAcked.TimeSent, ack.AckDelay) {
				ld.logger.negativeRTTSample(ld.space, now, largestNewlyAcked.TimeSent)
			}
		}
	}

	ld.DetectLostPackets(now, rtt)
	ld.noAckReceived = false
	return len(newlyAcked) > 0
}

// DetectLostPackets applies the time- and packet-threshold rules,
// removing and reporting any packet now considered lost, and updates
// loss_time to the earliest future instant at which the next unacked
// packet would cross the time threshold.
func (ld *LossDetector) DetectLostPackets(now time.Time, rtt *RTTEstimator) []*InFlightPacket {
	ld.lossTime = nil
	if ld.largestAcked == nil {
		return nil
	}
	largestAcked := *ld.largestAcked

	lossDelayMs := rtt.SmoothedRTT()
	if rtt.LatestRTT() > lossDelayMs {
		lossDelayMs = rtt.LatestRTT()
	}
	lossDelayMs = lossDelayMs * Duration(ld.cfg.TimeThresholdNum) / Duration(ld.cfg.TimeThresholdDen)
	if lossDelayMs < ld.cfg.Granularity {
		lossDelayMs = ld.cfg.Granularity
	}
	lossDelay := time.Duration(lossDelayMs) * time.Millisecond

	var pns []PacketNumber
	for pn, pkt := range ld.sentPackets {
		if pkt.Number < largestAcked {
			pns = append(pns, pn)
		}
	}
	sort.Slice(pns, func(i, j int) bool { return pns[i] < pns[j] })

	var lost []*InFlightPacket
	for _, pn := range pns {
		pkt := ld.sentPackets[pn]
		elapsed := now.Sub(pkt.TimeSent)
		byCount := uint64(largestAcked-pkt.Number) >= ld.cfg.PacketThreshold
		byTime := elapsed >= lossDelay
		if byTime || byCount {
			delete(ld.sentPackets, pn)
			lost = append(lost, pkt)
			if pkt.InFlight {
				ld.cc.OnPacketsLost([]uint32{pkt.Size})
			}
			if pkt.onLost != nil {
				pkt.onLost(pkt)
			}
			continue
		}
		candidate := pkt.TimeSent.Add(lossDelay)
		if ld.lossTime == nil || candidate.Before(*ld.lossTime) {
			ld.lossTime = &candidate
		}
	}
	return lost
}

// Reset drops all in-flight state, as happens when the Initial space
// is discarded once Handshake keys are available. no_ack_received
// semantics are retained (left true if it was never set false).
func (ld *LossDetector) Reset() {
	ld.sentPackets = make(map[PacketNumber]*InFlightPacket)
	ld.lossTime = nil
	ld.lastAckElicitingSent = nil
}

// LossTime returns the earliest future time at which an unacked
// packet in this space would be declared lost by the time threshold,
// or nil if none is pending.
func (ld *LossDetector) LossTime() *time.Time { return ld.lossTime }

// LastAckElicitingSent returns the send time of the most recently
// sent ack-eliciting packet in this space, or nil if none has been
// sent (or all have been acked/lost and the space reset).
func (ld *LossDetector) LastAckElicitingSent() *time.Time { return ld.lastAckElicitingSent }

// NoAckReceived reports whether no ack has ever been received in this
// space.
func (ld *LossDetector) NoAckReceived() bool { return ld.noAckReceived }

// HasAckElicitingInFlight reports whether any tracked packet is both
// ack-eliciting and in-flight.
func (ld *LossDetector) HasAckElicitingInFlight() bool {
	for _, pkt := range ld.sentPackets {
		if pkt.AckEliciting && pkt.InFlight {
			return true
		}
	}
	return false
}

// BytesInFlight sums the size of all currently in-flight packets.
func (ld *LossDetector) BytesInFlight() uint64 {
	var total uint64
	for _, pkt := range ld.sentPackets {
		if pkt.InFlight {
			total += uint64(pkt.Size)
		}
	}
	return total
}

// earliestUnacked returns the lowest-numbered tracked packet, or nil
// if none is tracked.
func (ld *LossDetector) earliestUnacked() *InFlightPacket {
	var best *InFlightPacket
	for _, pkt := range ld.sentPackets {
		if best == nil || pkt.Number < best.Number {
			best = pkt
		}
	}
	return best
}

// earliestNonTrivialAckEliciting returns the lowest-numbered tracked
// packet that is ack-eliciting and carries more than Ping/Padding/Ack,
// or nil if none qualifies.
func (ld *LossDetector) earliestNonTrivialAckEliciting() *InFlightPacket {
	var best *InFlightPacket
	for _, pkt := range ld.sentPackets {
		if !pkt.AckEliciting || !pkt.nonTrivial() {
			continue
		}
		if best == nil || pkt.Number < best.Number {
			best = pkt
		}
	}
	return best
}

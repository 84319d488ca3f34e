// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

// PacketNumber is a packet number within a single Space.
type PacketNumber uint64

// FrameType identifies the frames a sent packet carried, enough to
// drive ack-eliciting/in-flight classification and PTO retransmission
// selection. Wire-level frame contents (stream data, ack ranges, and
// so on) are out of scope for this core; frame encoding and decoding
// belongs to the packet codec, an external collaborator.
type FrameType int

const (
	FrameAck FrameType = iota
	FramePadding
	FramePing
	FrameCrypto
	FrameOther // any ack-eliciting frame not named above (e.g. STREAM, NEW_CONNECTION_ID)
)

func (f FrameType) String() string {
	switch f {
	case FrameAck:
		return "ACK"
	case FramePadding:
		return "PADDING"
	case FramePing:
		return "PING"
	case FrameCrypto:
		return "CRYPTO"
	case FrameOther:
		return "OTHER"
	default:
		return "UNKNOWN"
	}
}

// ackEliciting reports whether a frame of this type forces the peer
// to respond with an ACK. A packet is ack-eliciting iff it contains
// any frame other than ACK or PADDING (spec glossary).
func (f FrameType) ackEliciting() bool {
	return f != FrameAck && f != FramePadding
}

// FrameDescriptor records a single frame carried by a sent packet, as
// much as loss recovery needs to know about it: its type, and for
// retransmittable frames an opaque payload handed back unchanged to
// the ProbeSender on loss or PTO.
type FrameDescriptor struct {
	Type    FrameType
	Payload any // opaque to this package; round-tripped to ProbeSender
}

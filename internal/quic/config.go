// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

// Config collects the recovery core's RFC 9002 tunable constants into
// a single record, injected at construction time rather than read
// from package-level globals, so a process can run more than one
// independently-configured recovery core.
type Config struct {
	// PacketThreshold is the number of packets by which the largest
	// acknowledged packet number must exceed an unacked packet's
	// number before that packet is declared lost. RFC 9002 default: 3.
	PacketThreshold uint64

	// TimeThresholdNum / TimeThresholdDen express the time-threshold
	// multiplier as a rational (RFC 9002 default: 9/8).
	TimeThresholdNum int64
	TimeThresholdDen int64

	// Granularity is the system timer granularity, a floor applied to
	// loss delay and PTO computations. RFC 9002 default: 1ms.
	Granularity Duration

	// InitialRTT seeds RTTEstimator before any sample has been taken.
	// RFC 9002 default: 500ms.
	InitialRTT Duration

	// ReceiverMaxAckDelay is the peer-advertised max_ack_delay, added
	// to the PTO computation in the App space only.
	ReceiverMaxAckDelay Duration

	// CryptoPrefixSize is the length of the big-endian length prefix
	// the CryptoStream message parser expects before each message
	// body. Production TLS framing uses 4 (1-byte type + 3-byte
	// length, read as one 4-byte big-endian value with the type
	// folded in); tests commonly use a bare 4-byte length.
	CryptoPrefixSize int
}

// DefaultConfig returns the RFC 9002 default constants.
func DefaultConfig() Config {
	return Config{
		PacketThreshold:     3,
		TimeThresholdNum:    9,
		TimeThresholdDen:    8,
		Granularity:         1,
		InitialRTT:          defaultInitialRTT,
		ReceiverMaxAckDelay: 25,
		CryptoPrefixSize:    4,
	}
}

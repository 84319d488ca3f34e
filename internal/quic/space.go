// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

// Package quic implements the loss-recovery and ordered-delivery core
// of a client-role QUIC engine: per-space loss detection, RTT
// estimation, PTO scheduling, and CRYPTO-stream reassembly.
//
// The package does not read or write UDP datagrams, encode or decode
// wire frames, derive AEAD keys, or drive a TLS handshake. Those are
// external collaborators, represented here as interfaces.
package quic

import "fmt"

// Space identifies a QUIC packet-number space. Each space has its own
// packet-number axis and its own loss detector.
type Space int

const (
	SpaceInitial Space = iota
	SpaceHandshake
	SpaceApp
	numberSpaceCount
)

func (s Space) String() string {
	switch s {
	case SpaceInitial:
		return "Initial"
	case SpaceHandshake:
		return "Handshake"
	case SpaceApp:
		return "App"
	default:
		return fmt.Sprintf("Space(%d)", int(s))
	}
}

// Level identifies a QUIC encryption level. PnSpace.App corresponds to
// both LevelZeroRTT and LevelApp on the send side, but to LevelApp only
// for recovery bookkeeping (RelatedEncryptionLevel always returns
// LevelApp for SpaceApp).
type Level int

const (
	LevelInitial Level = iota
	LevelZeroRTT
	LevelHandshake
	LevelApp
)

func (l Level) String() string {
	switch l {
	case LevelInitial:
		return "Initial"
	case LevelZeroRTT:
		return "ZeroRTT"
	case LevelHandshake:
		return "Handshake"
	case LevelApp:
		return "App"
	default:
		return fmt.Sprintf("Level(%d)", int(l))
	}
}

// RelatedEncryptionLevel returns the encryption level that corresponds
// to s for recovery purposes.
func (s Space) RelatedEncryptionLevel() Level {
	switch s {
	case SpaceInitial:
		return LevelInitial
	case SpaceHandshake:
		return LevelHandshake
	case SpaceApp:
		return LevelApp
	default:
		panic(fmt.Sprintf("BUG: unknown packet-number space %v", s))
	}
}

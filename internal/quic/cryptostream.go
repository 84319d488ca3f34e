// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "fmt"

// Message is an opaque parsed unit produced from a CRYPTO stream. This
// core has no TLS dependency, so Message is left as the parser's raw
// output rather than a concrete handshake message type.
type Message = []byte

// MessageParser turns a length-delimited CRYPTO message body into a
// Message. CryptoStream is generic over it instead of hard-coding a
// TLS parser, so this core never needs to link against one.
type MessageParser func(body []byte) (Message, error)

// IdentityParser returns body unchanged. It is the default parser used
// by tests and cmd/kwik-recover's reassemble subcommand, where the
// message body itself is the value under test.
func IdentityParser(body []byte) (Message, error) { return body, nil }

// CryptoStream reassembles CRYPTO-frame fragments and, as each
// length-prefixed message becomes fully contiguous, parses it and
// appends the result to the produced message sequence.
//
// CryptoStream is not safe for concurrent use; callers serialize
// access the way RecoveryManager serializes recovery state.
type CryptoStream struct {
	buf        OrderedByteBuffer
	prefixSize int
	parse      MessageParser
	messages   []Message
}

// NewCryptoStream constructs a CryptoStream using cfg.CryptoPrefixSize
// (defaulting to 4 if unset) as the length-prefix width. A nil parse
// defaults to IdentityParser.
func NewCryptoStream(cfg Config, parse MessageParser) *CryptoStream {
	if parse == nil {
		parse = IdentityParser
	}
	prefixSize := cfg.CryptoPrefixSize
	if prefixSize <= 0 {
		prefixSize = 4
	}
	return &CryptoStream{prefixSize: prefixSize, parse: parse}
}

// Handle ingests one CRYPTO frame's (offset, bytes) and runs the parse
// loop: peek the length prefix from the contiguous run at the read
// cursor without consuming it; if fewer than prefix_size+length bytes
// are contiguous, stop; otherwise consume prefix_size+length bytes,
// hand the body to the message parser, append the result, and repeat.
// Handle returns the first parse error encountered, if any; bytes
// already consumed before the failing message remain consumed.
func (cs *CryptoStream) Handle(offset uint64, data []byte) error {
	cs.buf.Insert(offset, data)
	return cs.drain()
}

func (cs *CryptoStream) drain() error {
	for {
		prefix := cs.buf.Peek(uint64(cs.prefixSize))
		if len(prefix) < cs.prefixSize {
			return nil
		}
		length := decodeLengthPrefix(prefix)
		total := uint64(cs.prefixSize) + length
		if cs.buf.ContiguousAvailable() < total {
			return nil
		}

		framed := cs.buf.ReadContiguous(total)
		body := framed[cs.prefixSize:]
		msg, err := cs.parse(body)
		if err != nil {
			return fmt.Errorf("quic: crypto stream message parse failed at offset %d: %w", cs.buf.ReadOffset()-total, err)
		}
		cs.messages = append(cs.messages, msg)
	}
}

// decodeLengthPrefix reads prefix as a big-endian unsigned integer.
func decodeLengthPrefix(prefix []byte) uint64 {
	var v uint64
	for _, b := range prefix {
		v = v<<8 | uint64(b)
	}
	return v
}

// Messages returns every message produced so far, in stream order.
func (cs *CryptoStream) Messages() []Message { return cs.messages }

// ReadOffset returns the number of contiguous bytes consumed from the
// stream so far.
func (cs *CryptoStream) ReadOffset() uint64 { return cs.buf.ReadOffset() }

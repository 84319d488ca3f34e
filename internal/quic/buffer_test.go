// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestOrderedByteBufferInOrder(t *testing.T) {
	var b OrderedByteBuffer
	b.Insert(0, []byte("hello "))
	b.Insert(6, []byte("world"))

	if got, want := b.ContiguousAvailable(), uint64(11); got != want {
		t.Fatalf("ContiguousAvailable() = %v, want %v", got, want)
	}
	got := b.ReadContiguous(100)
	if string(got) != "hello world" {
		t.Fatalf("ReadContiguous(100) = %q, want %q", got, "hello world")
	}
	if got := b.ReadOffset(); got != 11 {
		t.Errorf("ReadOffset() = %v, want 11", got)
	}
}

func TestOrderedByteBufferGap(t *testing.T) {
	var b OrderedByteBuffer
	b.Insert(6, []byte("world"))
	if got := b.ContiguousAvailable(); got != 0 {
		t.Fatalf("ContiguousAvailable() with a gap at the cursor = %v, want 0", got)
	}
	if got := b.ReadContiguous(100); got != nil {
		t.Fatalf("ReadContiguous() with a gap at the cursor = %q, want nil", got)
	}

	b.Insert(0, []byte("hello "))
	if got, want := b.ContiguousAvailable(), uint64(11); got != want {
		t.Fatalf("ContiguousAvailable() after filling gap = %v, want %v", got, want)
	}
}

func TestOrderedByteBufferDropsConsumedPrefix(t *testing.T) {
	var b OrderedByteBuffer
	b.Insert(0, []byte("hello "))
	b.ReadContiguous(100)

	// Retransmission of already-consumed bytes, overlapping into new
	// territory, must be trimmed rather than rejected outright.
	b.Insert(3, []byte("lo world"))
	got := b.ReadContiguous(100)
	if string(got) != "world" {
		t.Fatalf("ReadContiguous() after overlap with consumed prefix = %q, want %q", got, "world")
	}
}

func TestOrderedByteBufferEarliestSeenWins(t *testing.T) {
	var b OrderedByteBuffer
	b.Insert(0, []byte("AAAAA"))
	b.Insert(2, []byte("XXXXX")) // overlaps [2,5) of the first insert

	got := b.ReadContiguous(100)
	want := "AAAAAXX" // bytes [0,5) keep the first insert's data
	if string(got) != want {
		t.Fatalf("ReadContiguous() = %q, want %q (earliest-seen bytes win)", got, want)
	}
}

func TestOrderedByteBufferReverseOverlap(t *testing.T) {
	// A later, lower-offset fragment overlapping an earlier,
	// higher-offset one must still keep the earlier fragment's bytes
	// in the overlap, regardless of which one started first.
	var b OrderedByteBuffer
	b.Insert(5, []byte("EEEEEEEEEE")) // offsets [5,15)
	b.Insert(0, []byte("NNNNNNNN"))   // offsets [0,8), overlaps [5,8)

	got := b.ReadContiguous(100)
	want := "NNNNNEEEEEEEEEE" // [0,5) from the second insert, [5,15) from the first
	if string(got) != want {
		t.Fatalf("ReadContiguous() = %q, want %q", got, want)
	}
}

func TestOrderedByteBufferPeekDoesNotConsume(t *testing.T) {
	var b OrderedByteBuffer
	b.Insert(0, []byte("hello"))
	if got := b.Peek(3); string(got) != "hel" {
		t.Fatalf("Peek(3) = %q, want %q", got, "hel")
	}
	if got := b.ReadOffset(); got != 0 {
		t.Fatalf("ReadOffset() after Peek = %v, want 0", got)
	}
	if got := b.Peek(100); string(got) != "hello" {
		t.Fatalf("Peek(100) with fewer than n available = %q, want %q", got, "hello")
	}
}

// Reassembly idempotence, restricted to OrderedByteBuffer: any
// segmentation/order/duplication of fragments whose union covers
// [0, N) reassembles to the same bytes.
func TestOrderedByteBufferIdempotenceRandomized(t *testing.T) {
	want := bytes.Repeat([]byte("0123456789abcdef"), 32) // 512 bytes
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 20; trial++ {
		var frags [][2]int // [offset, end)
		for pos := 0; pos < len(want); {
			end := pos + 1 + rng.Intn(17)
			if end > len(want) {
				end = len(want)
			}
			frags = append(frags, [2]int{pos, end})
			pos = end
		}
		// Duplicate a few fragments and shuffle everything.
		for i := 0; i < 3; i++ {
			frags = append(frags, frags[rng.Intn(len(frags))])
		}
		rng.Shuffle(len(frags), func(i, j int) { frags[i], frags[j] = frags[j], frags[i] })

		var b OrderedByteBuffer
		for _, f := range frags {
			b.Insert(uint64(f[0]), want[f[0]:f[1]])
		}
		got := b.ReadContiguous(uint64(len(want)))
		if !bytes.Equal(got, want) {
			t.Fatalf("trial %d: reassembled %q, want %q", trial, got, want)
		}
	}
}

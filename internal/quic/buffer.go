// Copyright 2024 The Kwik Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build go1.21

package quic

import "sort"

// byteRange is a stored, disjoint, offset-addressed run of bytes.
// Ranges are always sorted by start and never touch or overlap: two
// adjacent or overlapping insertions are coalesced into one.
type byteRange struct {
	start uint64
	data  []byte
}

func (r byteRange) end() uint64 { return r.start + uint64(len(r.data)) }

// OrderedByteBuffer reconstructs a contiguous byte stream from
// offset-ranged fragments that may arrive out of order, overlap, or
// duplicate each other.
//
// This is a gap-aware rangeset, the byte-offset analog of the
// sequence-number gap tracking used by reliable-delivery send/receive
// buffers elsewhere in this domain: instead of tracking which packet
// sequence numbers have been seen, it tracks which byte offsets have
// been seen, since CRYPTO frames carry byte offsets rather than
// packet sequence numbers.
type OrderedByteBuffer struct {
	readOffset uint64
	ranges     []byteRange // sorted by start, disjoint
}

// Insert stores data logically at [offset, offset+len(data)). Bytes
// strictly below the read cursor are dropped; overlapping or
// duplicate bytes retain the earliest-seen copy.
func (b *OrderedByteBuffer) Insert(offset uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	end := offset + uint64(len(data))

	if end <= b.readOffset {
		return // entirely already consumed
	}
	if offset < b.readOffset {
		// Trim the already-consumed prefix.
		trim := b.readOffset - offset
		data = data[trim:]
		offset = b.readOffset
	}
	if len(data) == 0 {
		return
	}

	// Find the insertion point: the first stored range that could
	// overlap or touch [offset, end).
	i := sort.Search(len(b.ranges), func(i int) bool {
		return b.ranges[i].end() >= offset
	})

	newRange := byteRange{start: offset, data: data}

	// Merge with every stored range that overlaps or is adjacent to
	// newRange. Each stored range was seen earlier than this insert,
	// so its bytes always win over newRange's in any overlap.
	j := i
	for j < len(b.ranges) && b.ranges[j].start <= newRange.end() {
		newRange = unionPreferExisting(b.ranges[j], newRange)
		j++
	}

	merged := make([]byteRange, 0, len(b.ranges)-(j-i)+1)
	merged = append(merged, b.ranges[:i]...)
	merged = append(merged, newRange)
	merged = append(merged, b.ranges[j:]...)
	b.ranges = merged
}

// unionPreferExisting returns the smallest range spanning both
// existing and incoming, with existing's bytes written over
// incoming's wherever the two overlap. existing and incoming need not
// be ordered by start.
func unionPreferExisting(existing, incoming byteRange) byteRange {
	start := existing.start
	if incoming.start < start {
		start = incoming.start
	}
	end := existing.end()
	if incoming.end() > end {
		end = incoming.end()
	}

	out := make([]byte, end-start)
	copy(out[incoming.start-start:], incoming.data)
	copy(out[existing.start-start:], existing.data)
	return byteRange{start: start, data: out}
}

// ContiguousAvailable returns the number of bytes available starting
// at the read cursor without any gap.
func (b *OrderedByteBuffer) ContiguousAvailable() uint64 {
	if len(b.ranges) == 0 || b.ranges[0].start != b.readOffset {
		return 0
	}
	return uint64(len(b.ranges[0].data))
}

// ReadContiguous returns up to nMax bytes of the prefix starting at
// the read cursor, advances the cursor, and frees their storage. It
// returns nil if the byte at the read cursor has not been seen yet.
func (b *OrderedByteBuffer) ReadContiguous(nMax uint64) []byte {
	if len(b.ranges) == 0 || b.ranges[0].start != b.readOffset {
		return nil
	}
	r := &b.ranges[0]
	n := uint64(len(r.data))
	if n > nMax {
		n = nMax
	}

	out := r.data[:n]
	if n == uint64(len(r.data)) {
		b.ranges = b.ranges[1:]
	} else {
		r.data = r.data[n:]
		r.start += n
	}
	b.readOffset += n
	return out
}

// Peek returns up to n bytes of the contiguous prefix without
// consuming them, the byte-offset analog of a stream peek. It returns
// fewer than n bytes (or nil) if fewer are contiguously available.
func (b *OrderedByteBuffer) Peek(n uint64) []byte {
	if len(b.ranges) == 0 || b.ranges[0].start != b.readOffset {
		return nil
	}
	data := b.ranges[0].data
	if uint64(len(data)) < n {
		return data
	}
	return data[:n]
}

// ReadOffset returns the next byte offset the consumer has not yet
// seen.
func (b *OrderedByteBuffer) ReadOffset() uint64 { return b.readOffset }

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package align provides the stride arithmetic shared by persistent storage
// and the frame ring.
//
// Vertex strides are arbitrary (12, 20, 28 bytes are common), so alignment
// here is modular, not power-of-two masking.
package align

// Up rounds offset up to the next multiple of stride.
// A zero stride leaves offset unchanged.
func Up(offset, stride uint64) uint64 {
	if stride <= 1 {
		return offset
	}
	if r := offset % stride; r != 0 {
		return offset + stride - r
	}
	return offset
}

// SlackSize returns the byte size to reserve from an allocator with no
// notion of alignment so that count records of stride bytes fit at a
// stride-aligned offset somewhere inside the reserved range:
// count*stride plus one stride of slack. Strides 0 and 1 need no slack.
func SlackSize(count, stride uint64) uint64 {
	if stride <= 1 {
		return count * max(stride, 1)
	}
	return count*stride + stride
}

// Fits reports whether count records of stride bytes starting at the
// stride-aligned position inside [offset, offset+size) stay in range.
func Fits(offset, size, count, stride uint64) bool {
	start := Up(offset, stride)
	return start+count*stride <= offset+size
}

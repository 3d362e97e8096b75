// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import "math/bits"

// Two-level size classes.
//
// Sizes below slCount map to first level 0 with one exact class per size.
// Larger sizes map to first level f-slBits+1 where f = floor(log2(size)),
// and the second level splits [2^f, 2^(f+1)) into slCount linear sub-classes.
const (
	slBits  = 4
	slCount = 1 << slBits
	flCount = 64 - slBits + 1
)

// class identifies one free list.
type class struct {
	fl, sl int
}

// classOf returns the class whose size range contains size.
func classOf(size uint64) class {
	if size < slCount {
		return class{fl: 0, sl: int(size)}
	}
	f := bits.Len64(size) - 1
	sl := int(size>>(f-slBits)) - slCount
	return class{fl: f - slBits + 1, sl: sl}
}

// lowerBound returns the smallest size that maps to c.
func (c class) lowerBound() uint64 {
	if c.fl == 0 {
		return uint64(c.sl)
	}
	return uint64(slCount+c.sl) << (c.fl - 1)
}

// next returns the class immediately above c and false when c is the last.
func (c class) next() (class, bool) {
	if c.sl+1 < slCount {
		return class{fl: c.fl, sl: c.sl + 1}, true
	}
	if c.fl+1 < flCount {
		return class{fl: c.fl + 1, sl: 0}, true
	}
	return class{}, false
}

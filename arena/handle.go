// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import "fmt"

// Handle identifies a live allocation.
//
// The low 32 bits hold the slot index plus one, the high 32 bits the slot
// generation at allocation time. Freeing bumps the generation, so a handle
// kept past Free no longer resolves even after its slot is reused.
type Handle uint64

// Invalid is the "no allocation" handle.
const Invalid Handle = 0

func makeHandle(index int32, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(index)+1))
}

func (h Handle) index() int32 { return int32(uint32(h)) - 1 }

func (h Handle) generation() uint32 { return uint32(h >> 32) }

// IsValid reports whether h is not Invalid. It does not check liveness;
// use Arena.Live for that.
func (h Handle) IsValid() bool { return h != Invalid }

// String returns a string representation of the handle.
func (h Handle) String() string {
	if h == Invalid {
		return "Handle(invalid)"
	}
	return fmt.Sprintf("Handle(%d@%d)", h.index(), h.generation())
}

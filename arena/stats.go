// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package arena

import (
	"errors"
	"fmt"
)

// Stats describes arena occupancy.
type Stats struct {
	// Capacity is the size of the extent in bytes.
	Capacity uint64

	// UsedBytes is held by live allocations, including small split remainders.
	UsedBytes uint64

	// FreeBytes is Capacity - UsedBytes.
	FreeBytes uint64

	// LargestFree is the size of the largest free block. An allocation
	// larger than this fails even if FreeBytes would cover it.
	LargestFree uint64

	// Allocations is the number of live allocations.
	Allocations int

	// FreeBlocks is the number of free blocks.
	FreeBlocks int
}

// Fragmentation returns 1 - LargestFree/FreeBytes: 0 when all free space is
// one block, approaching 1 as free space scatters.
func (s Stats) Fragmentation() float64 {
	if s.FreeBytes == 0 {
		return 0
	}
	return 1 - float64(s.LargestFree)/float64(s.FreeBytes)
}

// String returns a human-readable string of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("Arena[%d/%d bytes used, %d allocs, %d free blocks, largest free %d, frag %.1f%%]",
		s.UsedBytes, s.Capacity, s.Allocations, s.FreeBlocks, s.LargestFree, s.Fragmentation()*100)
}

// Stats returns current occupancy statistics.
func (a *Arena) Stats() Stats {
	return Stats{
		Capacity:    a.capacity,
		UsedBytes:   a.used,
		FreeBytes:   a.capacity - a.used,
		LargestFree: a.largestFree(),
		Allocations: a.live,
		FreeBlocks:  a.freeBlocks,
	}
}

// Validate checks the arena's internal invariants and returns an error
// describing the first one that does not hold. It walks every block and is
// meant for tests and debugging.
func (a *Arena) Validate() error {
	var (
		offset     uint64
		used       uint64
		live       int
		freeBlocks int
		prev       = int32(none)
		prevFree   bool
	)
	for b := a.first; b != none; b = a.blocks[b].nextPhys {
		blk := &a.blocks[b]
		if blk.prevPhys != prev {
			return fmt.Errorf("block %d: prevPhys %d, want %d", b, blk.prevPhys, prev)
		}
		if blk.offset != offset {
			return fmt.Errorf("block %d: offset %d, want %d (gap or overlap)", b, blk.offset, offset)
		}
		if blk.size == 0 {
			return fmt.Errorf("block %d: zero size", b)
		}
		if blk.free {
			if prevFree {
				return fmt.Errorf("block %d at %d: adjacent free blocks not coalesced", b, blk.offset)
			}
			if !a.onFreeList(b) {
				return fmt.Errorf("block %d: free but not on its class list", b)
			}
			freeBlocks++
		} else {
			if blk.req == 0 || blk.req > blk.size {
				return fmt.Errorf("block %d: requested %d of %d bytes", b, blk.req, blk.size)
			}
			if blk.slot < 0 || int(blk.slot) >= len(a.slots) {
				return fmt.Errorf("block %d: bad slot %d", b, blk.slot)
			}
			if s := a.slots[blk.slot]; !s.live || s.block != b {
				return fmt.Errorf("block %d: slot %d does not point back", b, blk.slot)
			}
			used += blk.size
			live++
		}
		prevFree = blk.free
		offset += blk.size
		prev = b
	}

	if offset != a.capacity {
		return fmt.Errorf("blocks cover %d bytes, capacity %d", offset, a.capacity)
	}
	if used != a.used {
		return fmt.Errorf("used bytes %d, tracked %d", used, a.used)
	}
	if live != a.live {
		return fmt.Errorf("live allocations %d, tracked %d", live, a.live)
	}
	if freeBlocks != a.freeBlocks {
		return fmt.Errorf("free blocks %d, tracked %d", freeBlocks, a.freeBlocks)
	}
	return a.validateLists()
}

func (a *Arena) onFreeList(b int32) bool {
	c := classOf(a.blocks[b].size)
	for x := a.heads[c.fl][c.sl]; x != none; x = a.blocks[x].nextFree {
		if x == b {
			return true
		}
	}
	return false
}

func (a *Arena) validateLists() error {
	listed := 0
	for fl := 0; fl < flCount; fl++ {
		for sl := 0; sl < slCount; sl++ {
			head := a.heads[fl][sl]
			bit := a.slBitmap[fl]&(1<<uint(sl)) != 0
			if (head != none) != bit {
				return fmt.Errorf("class (%d,%d): head %d but bitmap bit %v", fl, sl, head, bit)
			}
			prev := int32(none)
			for b := head; b != none; b = a.blocks[b].nextFree {
				blk := &a.blocks[b]
				if !blk.free {
					return fmt.Errorf("class (%d,%d): used block %d on free list", fl, sl, b)
				}
				if c := classOf(blk.size); c.fl != fl || c.sl != sl {
					return fmt.Errorf("block %d of size %d on class (%d,%d), belongs to (%d,%d)",
						b, blk.size, fl, sl, c.fl, c.sl)
				}
				if blk.prevFree != prev {
					return errors.New("free list back links broken")
				}
				prev = b
				listed++
			}
		}
		if (a.slBitmap[fl] != 0) != (a.flBitmap&(1<<uint(fl)) != 0) {
			return fmt.Errorf("first level %d bitmap out of sync", fl)
		}
	}
	if listed != a.freeBlocks {
		return fmt.Errorf("free lists hold %d blocks, tracked %d", listed, a.freeBlocks)
	}
	return nil
}

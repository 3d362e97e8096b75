// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package arena implements a segregated-fit byte-range allocator over a
// fixed-capacity extent.
//
// The arena knows nothing about GPUs or alignment: it hands out [offset,
// offset+size) ranges of an abstract extent and identifies them with opaque
// generation-checked handles. Persistent geometry storage places one arena
// over each large GPU buffer.
//
// Free blocks are indexed by a two-level size class (power-of-two magnitude,
// then 16 linear sub-classes) with a bitmap per level, so finding the
// smallest sufficient free block costs a couple of bit scans plus a walk of
// one class list. Freed blocks are coalesced with free neighbours in O(1).
//
// Arena is not safe for concurrent use.
package arena

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/gogpu/gpumem/internal/contract"
)

// Allocation errors.
var (
	// ErrOutOfMemory is returned when no free block can hold the request.
	ErrOutOfMemory = errors.New("arena: out of memory")

	// ErrTooManyAllocations is returned when the live allocation limit is reached.
	ErrTooManyAllocations = errors.New("arena: too many allocations")

	// ErrInvalidSize is returned for zero-byte requests.
	ErrInvalidSize = errors.New("arena: invalid allocation size")

	// ErrInvalidConfig is returned by New for an unusable configuration.
	ErrInvalidConfig = errors.New("arena: invalid config")
)

// Default configuration values.
const (
	// DefaultMaxAllocations is used when Config.MaxAllocations is zero.
	DefaultMaxAllocations = 4096

	// DefaultMinBlockSize is used when Config.MinBlockSize is zero.
	DefaultMinBlockSize = 16
)

// Config configures an Arena.
type Config struct {
	// Capacity is the size of the managed extent in bytes. Required.
	Capacity uint64

	// MaxAllocations bounds the number of simultaneously live allocations.
	// Defaults to DefaultMaxAllocations.
	MaxAllocations int

	// MinBlockSize is the smallest remainder worth keeping as a separate
	// free block when a larger block is split. Smaller remainders are
	// handed out with the allocation. Defaults to DefaultMinBlockSize.
	MinBlockSize uint64

	// OnViolation, if set, receives this arena's contract violations in
	// addition to the process-wide handler.
	OnViolation contract.Handler
}

func (c Config) withDefaults() Config {
	if c.MaxAllocations == 0 {
		c.MaxAllocations = DefaultMaxAllocations
	}
	if c.MinBlockSize == 0 {
		c.MinBlockSize = DefaultMinBlockSize
	}
	return c
}

// Range is a byte range inside the extent. The zero Range is empty.
type Range struct {
	Offset uint64
	Size   uint64
}

// Empty reports whether r covers no bytes.
func (r Range) Empty() bool { return r.Size == 0 }

// End returns the first offset past r.
func (r Range) End() uint64 { return r.Offset + r.Size }

// Overlaps reports whether r and o share at least one byte.
func (r Range) Overlaps(o Range) bool {
	return !r.Empty() && !o.Empty() && r.Offset < o.End() && o.Offset < r.End()
}

// String returns a string representation of the range.
func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.Offset, r.End())
}

const none = -1

// block is one physical block. Blocks tile the extent in address order.
type block struct {
	offset, size       uint64
	req                uint64
	prevPhys, nextPhys int32
	prevFree, nextFree int32
	free               bool
	slot               int32
}

// slot maps a handle index to its block.
type slot struct {
	block int32
	gen   uint32
	live  bool
}

// Arena is a segregated-fit allocator over [0, Capacity).
type Arena struct {
	capacity uint64
	maxLive  int
	minBlock uint64

	blocks      []block
	spareBlocks []int32
	first       int32

	heads    [flCount][slCount]int32
	flBitmap uint64
	slBitmap [flCount]uint32

	slots     []slot
	freeSlots []int32

	used       uint64
	live       int
	freeBlocks int

	violations contract.Scope
}

// New creates an arena managing cfg.Capacity bytes.
func New(cfg Config) (*Arena, error) {
	cfg = cfg.withDefaults()
	if cfg.Capacity == 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)
	}
	if cfg.MaxAllocations < 0 {
		return nil, fmt.Errorf("%w: max allocations %d", ErrInvalidConfig, cfg.MaxAllocations)
	}

	a := &Arena{
		capacity: cfg.Capacity,
		maxLive:  cfg.MaxAllocations,
		minBlock: cfg.MinBlockSize,
		blocks:   make([]block, 0, 2*cfg.MaxAllocations+1),
		slots:    make([]slot, 0, cfg.MaxAllocations),

		violations: contract.NewScope(cfg.OnViolation),
	}
	a.initBlocks()
	return a, nil
}

func (a *Arena) initBlocks() {
	for fl := range a.heads {
		for sl := range a.heads[fl] {
			a.heads[fl][sl] = none
		}
	}
	a.flBitmap = 0
	a.slBitmap = [flCount]uint32{}
	a.freeBlocks = 0
	a.blocks = a.blocks[:0]
	a.spareBlocks = a.spareBlocks[:0]

	a.first = a.newBlock(0, a.capacity)
	a.blocks[a.first].free = true
	a.insertFree(a.first)
	a.used = 0
	a.live = 0
}

// Capacity returns the size of the extent in bytes.
func (a *Arena) Capacity() uint64 { return a.capacity }

// Used returns the number of bytes held by live allocations, including
// split remainders too small to keep as free blocks.
func (a *Arena) Used() uint64 { return a.used }

// FreeBytes returns the number of bytes not held by live allocations.
func (a *Arena) FreeBytes() uint64 { return a.capacity - a.used }

// Len returns the number of live allocations.
func (a *Arena) Len() int { return a.live }

// Alloc reserves size bytes and returns a handle to them.
//
// It picks the smallest free block that can hold size, preferring the
// lowest address among equally small blocks, and splits off the remainder
// when it is at least MinBlockSize. On failure it returns Invalid and one of
// ErrInvalidSize, ErrTooManyAllocations or ErrOutOfMemory.
func (a *Arena) Alloc(size uint64) (Handle, error) {
	if size == 0 {
		return Invalid, ErrInvalidSize
	}
	if a.live >= a.maxLive {
		return Invalid, fmt.Errorf("%w: limit %d", ErrTooManyAllocations, a.maxLive)
	}
	if size > a.capacity-a.used {
		return Invalid, fmt.Errorf("%w: requested %d bytes, %d free", ErrOutOfMemory, size, a.capacity-a.used)
	}

	b := a.findFree(size)
	if b == none {
		return Invalid, fmt.Errorf("%w: requested %d bytes, %d free, largest block %d",
			ErrOutOfMemory, size, a.capacity-a.used, a.largestFree())
	}

	a.removeFree(b)
	a.split(b, size)

	blk := &a.blocks[b]
	blk.free = false
	blk.req = size
	a.used += blk.size

	s := a.takeSlot()
	a.slots[s].block = b
	a.slots[s].live = true
	blk.slot = s
	a.live++

	return makeHandle(s, a.slots[s].gen), nil
}

// Free releases the allocation identified by h.
//
// Freeing Invalid, an already freed handle, or a handle from another arena
// incarnation is a contract violation: it is reported and otherwise ignored.
func (a *Arena) Free(h Handle) {
	s, ok := a.resolve(h)
	if !ok {
		a.violations.Report("arena.Free", "invalid or stale handle", "handle", uint64(h))
		return
	}

	sl := &a.slots[s]
	b := sl.block
	sl.live = false
	sl.block = none
	sl.gen++
	a.freeSlots = append(a.freeSlots, s)
	a.live--

	blk := &a.blocks[b]
	blk.free = true
	blk.slot = none
	blk.req = 0
	a.used -= blk.size

	b = a.coalesce(b)
	a.insertFree(b)
}

// Query returns the range requested for h, or the empty Range when h is
// Invalid or stale. The block backing h may be up to MinBlockSize-1 bytes
// longer than the returned range.
func (a *Arena) Query(h Handle) Range {
	s, ok := a.resolve(h)
	if !ok {
		return Range{}
	}
	blk := &a.blocks[a.slots[s].block]
	return Range{Offset: blk.offset, Size: blk.req}
}

// Live reports whether h identifies a live allocation.
func (a *Arena) Live(h Handle) bool {
	_, ok := a.resolve(h)
	return ok
}

// Reset frees every allocation at once. All outstanding handles become stale.
func (a *Arena) Reset() {
	for i := range a.slots {
		if a.slots[i].live {
			a.slots[i].live = false
			a.slots[i].block = none
			a.slots[i].gen++
			a.freeSlots = append(a.freeSlots, int32(i))
		}
	}
	a.initBlocks()
}

// Walk calls fn for every live allocation in address order until fn
// returns false.
func (a *Arena) Walk(fn func(h Handle, r Range) bool) {
	for b := a.first; b != none; b = a.blocks[b].nextPhys {
		blk := &a.blocks[b]
		if blk.free {
			continue
		}
		h := makeHandle(blk.slot, a.slots[blk.slot].gen)
		if !fn(h, Range{Offset: blk.offset, Size: blk.req}) {
			return
		}
	}
}

func (a *Arena) resolve(h Handle) (int32, bool) {
	if h == Invalid {
		return 0, false
	}
	s := h.index()
	if s < 0 || int(s) >= len(a.slots) {
		return 0, false
	}
	sl := &a.slots[s]
	if !sl.live || sl.gen != h.generation() {
		return 0, false
	}
	return s, true
}

func (a *Arena) takeSlot() int32 {
	if n := len(a.freeSlots); n > 0 {
		s := a.freeSlots[n-1]
		a.freeSlots = a.freeSlots[:n-1]
		return s
	}
	a.slots = append(a.slots, slot{block: none, gen: 1})
	return int32(len(a.slots) - 1)
}

func (a *Arena) newBlock(offset, size uint64) int32 {
	blk := block{
		offset:   offset,
		size:     size,
		prevPhys: none,
		nextPhys: none,
		prevFree: none,
		nextFree: none,
		slot:     none,
	}
	if n := len(a.spareBlocks); n > 0 {
		b := a.spareBlocks[n-1]
		a.spareBlocks = a.spareBlocks[:n-1]
		a.blocks[b] = blk
		return b
	}
	a.blocks = append(a.blocks, blk)
	return int32(len(a.blocks) - 1)
}

func (a *Arena) releaseBlock(b int32) {
	a.blocks[b] = block{prevPhys: none, nextPhys: none, prevFree: none, nextFree: none, slot: none}
	a.spareBlocks = append(a.spareBlocks, b)
}

// split shrinks block b to size and turns the tail into a free block when
// the tail is large enough to be useful.
func (a *Arena) split(b int32, size uint64) {
	rest := a.blocks[b].size - size
	if rest < a.minBlock {
		return
	}
	t := a.newBlock(a.blocks[b].offset+size, rest)
	blk := &a.blocks[b]
	tail := &a.blocks[t]

	blk.size = size
	tail.free = true
	tail.prevPhys = b
	tail.nextPhys = blk.nextPhys
	if blk.nextPhys != none {
		a.blocks[blk.nextPhys].prevPhys = t
	}
	blk.nextPhys = t

	a.insertFree(t)
}

// coalesce merges free block b with its free physical neighbours and
// returns the surviving block. b must not be on a free list.
func (a *Arena) coalesce(b int32) int32 {
	if next := a.blocks[b].nextPhys; next != none && a.blocks[next].free {
		a.removeFree(next)
		a.absorbNext(b)
	}
	if prev := a.blocks[b].prevPhys; prev != none && a.blocks[prev].free {
		a.removeFree(prev)
		a.absorbNext(prev)
		b = prev
	}
	return b
}

// absorbNext merges b's physical successor into b.
func (a *Arena) absorbNext(b int32) {
	n := a.blocks[b].nextPhys
	a.blocks[b].size += a.blocks[n].size
	nn := a.blocks[n].nextPhys
	a.blocks[b].nextPhys = nn
	if nn != none {
		a.blocks[nn].prevPhys = b
	}
	a.releaseBlock(n)
}

func (a *Arena) insertFree(b int32) {
	c := classOf(a.blocks[b].size)
	head := a.heads[c.fl][c.sl]

	blk := &a.blocks[b]
	blk.prevFree = none
	blk.nextFree = head
	if head != none {
		a.blocks[head].prevFree = b
	}
	a.heads[c.fl][c.sl] = b

	a.flBitmap |= 1 << uint(c.fl)
	a.slBitmap[c.fl] |= 1 << uint(c.sl)
	a.freeBlocks++
}

func (a *Arena) removeFree(b int32) {
	blk := &a.blocks[b]
	c := classOf(blk.size)

	if blk.prevFree != none {
		a.blocks[blk.prevFree].nextFree = blk.nextFree
	} else {
		a.heads[c.fl][c.sl] = blk.nextFree
	}
	if blk.nextFree != none {
		a.blocks[blk.nextFree].prevFree = blk.prevFree
	}
	blk.prevFree = none
	blk.nextFree = none

	if a.heads[c.fl][c.sl] == none {
		a.slBitmap[c.fl] &^= 1 << uint(c.sl)
		if a.slBitmap[c.fl] == 0 {
			a.flBitmap &^= 1 << uint(c.fl)
		}
	}
	a.freeBlocks--
}

// findFree returns the smallest free block of at least size bytes, lowest
// address first among equals, or none.
func (a *Arena) findFree(size uint64) int32 {
	c := classOf(size)

	// Blocks in the request's own class may or may not be large enough.
	if b := a.bestInList(a.heads[c.fl][c.sl], size); b != none {
		return b
	}

	// Every block in a higher class is large enough; the first non-empty
	// one holds the smallest candidates.
	up, ok := c.next()
	if !ok {
		return none
	}
	found, ok := a.firstNonEmpty(up)
	if !ok {
		return none
	}
	return a.bestInList(a.heads[found.fl][found.sl], size)
}

// firstNonEmpty returns the lowest non-empty class at or above from.
func (a *Arena) firstNonEmpty(from class) (class, bool) {
	if m := a.slBitmap[from.fl] & (^uint32(0) << uint(from.sl)); m != 0 {
		return class{fl: from.fl, sl: bits.TrailingZeros32(m)}, true
	}
	if from.fl+1 >= flCount {
		return class{}, false
	}
	m := a.flBitmap & (^uint64(0) << uint(from.fl+1))
	if m == 0 {
		return class{}, false
	}
	fl := bits.TrailingZeros64(m)
	return class{fl: fl, sl: bits.TrailingZeros32(a.slBitmap[fl])}, true
}

func (a *Arena) bestInList(head int32, size uint64) int32 {
	best := int32(none)
	for b := head; b != none; b = a.blocks[b].nextFree {
		blk := &a.blocks[b]
		if blk.size < size {
			continue
		}
		if best == none {
			best = b
			continue
		}
		cur := &a.blocks[best]
		if blk.size < cur.size || (blk.size == cur.size && blk.offset < cur.offset) {
			best = b
		}
	}
	return best
}

func (a *Arena) largestFree() uint64 {
	if a.flBitmap == 0 {
		return 0
	}
	fl := 63 - bits.LeadingZeros64(a.flBitmap)
	sl := 31 - bits.LeadingZeros32(a.slBitmap[fl])
	var largest uint64
	for b := a.heads[fl][sl]; b != none; b = a.blocks[b].nextFree {
		largest = max(largest, a.blocks[b].size)
	}
	return largest
}

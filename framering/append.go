// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framering

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumem/geometry"
	"github.com/gogpu/gpumem/internal/align"
	"github.com/gogpu/gpumem/internal/contract"
)

// Append is a locked, CPU-writable run of records in the current slot.
type Append struct {
	ring   *Ring
	buffer hal.Buffer
	offset uint64
	count  uint32
	stride uint32
	frame  uint64
	bytes  []byte
	mapped bool

	violations contract.Scope
}

// Bytes returns the writable records, exactly Count*Stride bytes. The slice
// is invalid after Unlock.
func (a *Append) Bytes() []byte { return a.bytes }

// Offset returns the stride-aligned byte offset of the records in the slot buffer.
func (a *Append) Offset() uint64 { return a.offset }

// BaseIndex returns the index of the first record in the slot buffer, for
// use as a draw call's first vertex or first index.
func (a *Append) BaseIndex() uint32 { return uint32(a.offset / uint64(a.stride)) }

// Count returns the number of records.
func (a *Append) Count() uint32 { return a.count }

// Stride returns the record size.
func (a *Append) Stride() uint32 { return a.stride }

// Frame returns the frame the records belong to.
func (a *Append) Frame() uint64 { return a.frame }

// Buffer returns the slot buffer holding the records.
func (a *Append) Buffer() hal.Buffer { return a.buffer }

// Unlock publishes the records and releases the append.
func (a *Append) Unlock() error {
	if a.ring == nil || a.ring.pending != a {
		a.violations.Report("framering.Append.Unlock", "append is not outstanding")
		return ErrNotLocked
	}
	return a.ring.UnlockAppend()
}

// LockAppend reserves count records of stride bytes at the next
// stride-aligned offset of the current slot and returns them for writing.
//
// It fails with ErrRingFull when the slot has no room; the slot is
// unchanged and the caller skips the geometry. Only one append may be
// outstanding.
func (r *Ring) LockAppend(count, stride uint32) (*Append, error) {
	if r.destroyed {
		return nil, ErrDestroyed
	}
	if !r.inFrame {
		r.violations.Report("framering.LockAppend", "no frame in progress", "frame", r.frame)
		return nil, ErrNoFrame
	}
	if r.pending != nil {
		r.violations.Report("framering.LockAppend", "append already locked", "frame", r.frame)
		return nil, ErrAppendLocked
	}
	if count == 0 || stride == 0 {
		return nil, fmt.Errorf("%w: %d x %d", ErrInvalidLayout, count, stride)
	}

	s := &r.slots[r.Slot()]
	size := uint64(count) * uint64(stride)
	off := align.Up(s.used, uint64(stride))
	if !align.Fits(s.used, r.capacity-s.used, uint64(count), uint64(stride)) {
		return nil, fmt.Errorf("%w: %s slot %d needs %d bytes at offset %d, capacity %d",
			ErrRingFull, r.kind, r.Slot(), size, off, r.capacity)
	}

	a := &Append{
		ring:   r,
		buffer: s.buffer,
		offset: off,
		count:  count,
		stride: stride,
		frame:  r.frame,

		violations: r.violations,
	}
	switch r.upload {
	case geometry.UploadMapped:
		bm, err := r.device.MapBuffer(s.buffer, off, size)
		if err != nil {
			return nil, fmt.Errorf("framering: map slot %d range [%d, %d): %w", r.Slot(), off, off+size, err)
		}
		a.bytes = unsafe.Slice((*byte)(bm.Ptr), size)
		a.mapped = true
	default:
		if uint64(cap(r.staging)) < size {
			r.staging = make([]byte, size)
		}
		a.bytes = r.staging[:size]
	}

	s.used = off + size
	r.pending = a
	return a, nil
}

// LockIndices reserves count 16-bit indices.
func (r *Ring) LockIndices(count uint32) (*Append, error) {
	return r.LockAppend(count, geometry.IndexStride)
}

// UnlockAppend publishes the outstanding append to the slot buffer.
// Without one it reports a violation and returns ErrNotLocked.
func (r *Ring) UnlockAppend() error {
	if r.pending == nil {
		r.violations.Report("framering.UnlockAppend", "no append locked", "frame", r.frame)
		return ErrNotLocked
	}
	return r.pending.release(true)
}

// release ends the append. When publish is false staged writes are dropped.
func (a *Append) release(publish bool) error {
	r := a.ring
	r.pending = nil
	a.ring = nil
	data := a.bytes
	a.bytes = nil

	if a.mapped {
		if err := r.device.UnmapBuffer(a.buffer); err != nil {
			return fmt.Errorf("framering: unmap slot buffer: %w", err)
		}
		return nil
	}
	if !publish {
		return nil
	}
	if err := r.queue.WriteBuffer(a.buffer, a.offset, data); err != nil {
		return fmt.Errorf("framering: write slot range [%d, %d): %w", a.offset, a.offset+uint64(len(data)), err)
	}
	return nil
}

// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package geometry

import (
	"fmt"
	"unsafe"

	"github.com/gogpu/gpumem/internal/align"
	"github.com/gogpu/gpumem/internal/contract"
)

// Mapping is a locked, CPU-writable window onto one allocation.
type Mapping struct {
	storage *Storage
	handle  Handle
	offset  uint64
	bytes   []byte
	mapped  bool

	violations contract.Scope
}

// Bytes returns the writable records, exactly Count*Stride bytes starting
// at a stride-aligned buffer offset. The slice is invalid after Unlock.
func (m *Mapping) Bytes() []byte { return m.bytes }

// Offset returns the stride-aligned byte offset of Bytes in the buffer.
func (m *Mapping) Offset() uint64 { return m.offset }

// Handle returns the locked allocation.
func (m *Mapping) Handle() Handle { return m.handle }

// Unlock publishes the writes and releases the lock.
func (m *Mapping) Unlock() error {
	if m.storage == nil || m.storage.locked != m {
		m.violations.Report("geometry.Mapping.Unlock", "mapping is not the outstanding lock")
		return ErrNotLocked
	}
	return m.storage.Unlock()
}

// Lock maps h for writing and returns its Mapping.
//
// At most one lock per storage may be outstanding. Locking while locked
// reports a violation and returns ErrAlreadyLocked; the existing lock is
// untouched.
func (s *Storage) Lock(h Handle) (*Mapping, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	if s.locked != nil {
		s.violations.Report("geometry.Lock", "storage already locked",
			"locked", s.locked.handle.String(), "handle", h.String())
		return nil, ErrAlreadyLocked
	}
	off, ok := s.Offset(h)
	if !ok {
		s.violations.Report("geometry.Lock", "invalid or stale handle", "handle", h.String())
		return nil, ErrInvalidHandle
	}
	if r := s.arena.Query(h.alloc); !align.Fits(r.Offset, r.Size, uint64(h.count), uint64(h.stride)) {
		return nil, fmt.Errorf("%w: %s does not fit its range %v", ErrInvalidLayout, h, r)
	}
	size := h.Size()

	m := &Mapping{storage: s, handle: h, offset: off, violations: s.violations}
	switch s.upload {
	case UploadMapped:
		bm, err := s.device.MapBuffer(s.buffer, off, size)
		if err != nil {
			return nil, fmt.Errorf("geometry: map %s range [%d, %d): %w", s.kind, off, off+size, err)
		}
		m.bytes = unsafe.Slice((*byte)(bm.Ptr), size)
		m.mapped = true
	default:
		if uint64(cap(s.staging)) < size {
			s.staging = make([]byte, size)
		}
		m.bytes = s.staging[:size]
	}
	s.locked = m
	return m, nil
}

// Unlock publishes the outstanding lock's writes to the GPU buffer and
// releases it. Without an outstanding lock it reports a violation and
// returns ErrNotLocked.
func (s *Storage) Unlock() error {
	if s.locked == nil {
		s.violations.Report("geometry.Unlock", "storage not locked")
		return ErrNotLocked
	}
	return s.locked.release(true)
}

// unlockMapping ends m's lock. When publish is false staged writes are dropped.
func (s *Storage) unlockMapping(m *Mapping, publish bool) error {
	s.locked = nil
	if m.mapped {
		if err := s.device.UnmapBuffer(s.buffer); err != nil {
			return fmt.Errorf("geometry: unmap %s buffer: %w", s.kind, err)
		}
		return nil
	}
	if !publish {
		return nil
	}
	if err := s.queue.WriteBuffer(s.buffer, m.offset, m.bytes); err != nil {
		return fmt.Errorf("geometry: write %s range [%d, %d): %w",
			s.kind, m.offset, m.offset+uint64(len(m.bytes)), err)
	}
	return nil
}

func (m *Mapping) release(publish bool) error {
	s := m.storage
	err := s.unlockMapping(m, publish)
	m.bytes = nil
	m.storage = nil
	return err
}

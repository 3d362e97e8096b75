// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package geometry provides persistent GPU storage for long-lived meshes.
//
// A Storage owns one large GPU buffer and an arena over it. Producers
// allocate ranges, lock one range at a time to write vertices or 16-bit
// indices, and use BaseVertex / BaseIndex to address their data in draw
// calls.
//
// Locking is storage-wide and single-slot: while one Mapping is
// outstanding, no other Lock on the same storage succeeds. The byte slice
// returned by Mapping.Bytes must not be retained past Unlock.
//
// Storage is not safe for concurrent use.
package geometry

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumem/arena"
	"github.com/gogpu/gpumem/internal/align"
	"github.com/gogpu/gpumem/internal/contract"
	"github.com/gogpu/gpumem/internal/logx"
)

// Storage errors.
var (
	// ErrInvalidHandle is returned for Invalid, freed, or foreign handles.
	ErrInvalidHandle = errors.New("geometry: invalid handle")

	// ErrAlreadyLocked is returned by Lock while another lock is outstanding.
	ErrAlreadyLocked = errors.New("geometry: storage already locked")

	// ErrNotLocked is returned by Unlock without an outstanding lock.
	ErrNotLocked = errors.New("geometry: storage not locked")

	// ErrDestroyed is returned when operating on a destroyed storage.
	ErrDestroyed = errors.New("geometry: storage destroyed")

	// ErrInvalidLayout is returned for a zero count or zero stride.
	ErrInvalidLayout = errors.New("geometry: invalid count or stride")

	// ErrInvalidConfig is returned for an unusable configuration.
	ErrInvalidConfig = errors.New("geometry: invalid config")
)

// IndexStride is the size of one 16-bit index.
const IndexStride = 2

// Kind is the geometry kind a buffer holds.
type Kind int

const (
	// KindVertex holds vertex records of caller-defined stride.
	KindVertex Kind = iota

	// KindIndex16 holds 16-bit indices.
	KindIndex16
)

// String returns the string representation of Kind.
func (k Kind) String() string {
	switch k {
	case KindVertex:
		return "vertex"
	case KindIndex16:
		return "index16"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Usage returns the buffer usage flags a buffer of this kind needs.
func (k Kind) Usage() gputypes.BufferUsage {
	if k == KindIndex16 {
		return gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst
	}
	return gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst
}

// UploadMode selects how CPU writes reach the GPU buffer.
type UploadMode int

const (
	// UploadStaged writes into a CPU staging slice and copies it with
	// Queue.WriteBuffer on unlock. Works on every backend.
	UploadStaged UploadMode = iota

	// UploadMapped maps the buffer range with Device.MapBuffer and unmaps
	// on unlock. Requires host-visible buffer memory.
	UploadMapped
)

// String returns the string representation of UploadMode.
func (m UploadMode) String() string {
	switch m {
	case UploadStaged:
		return "staged"
	case UploadMapped:
		return "mapped"
	default:
		return fmt.Sprintf("UploadMode(%d)", int(m))
	}
}

// Config configures a Storage.
type Config struct {
	// Label is an optional debug name for the GPU buffer.
	Label string

	// Capacity is the GPU buffer size in bytes. Required.
	Capacity uint64

	// MaxAllocations bounds live allocations. Defaults to
	// arena.DefaultMaxAllocations.
	MaxAllocations int

	// Upload selects the write path. Defaults to UploadStaged.
	Upload UploadMode

	// OnViolation, if set, receives this storage's contract violations,
	// including those of its arena, in addition to the process-wide handler.
	OnViolation contract.Handler
}

// Handle identifies an allocation in one Storage. The zero Handle is Invalid.
//
// A Handle remembers the stride and count it was allocated with and the
// epoch of the storage that issued it, so a handle kept across a device
// reset is rejected instead of aliasing a new allocation.
type Handle struct {
	alloc  arena.Handle
	stride uint32
	count  uint32
	epoch  uint32
}

// Invalid is the "no allocation" handle.
var Invalid Handle

// IsValid reports whether h is not Invalid. It does not check liveness.
func (h Handle) IsValid() bool { return h.alloc != arena.Invalid }

// Stride returns the record size h was allocated with.
func (h Handle) Stride() uint32 { return h.stride }

// Count returns the number of records h was allocated for.
func (h Handle) Count() uint32 { return h.count }

// Size returns the usable byte size, Count*Stride.
func (h Handle) Size() uint64 { return uint64(h.count) * uint64(h.stride) }

// String returns a string representation of the handle.
func (h Handle) String() string {
	if !h.IsValid() {
		return "geometry.Handle(invalid)"
	}
	return fmt.Sprintf("geometry.Handle(%v, %dx%d, epoch %d)", h.alloc, h.count, h.stride, h.epoch)
}

// epochs numbers storage incarnations process-wide.
var epochs atomic.Uint32

// Storage is persistent GPU geometry storage of one Kind.
type Storage struct {
	kind   Kind
	label  string
	device hal.Device
	queue  hal.Queue
	buffer hal.Buffer
	upload UploadMode

	capacity uint64
	arena    *arena.Arena
	epoch    uint32

	locked  *Mapping
	staging []byte

	violations contract.Scope
	destroyed  bool
}

// NewVertexStorage creates vertex storage backed by a new GPU buffer.
func NewVertexStorage(device hal.Device, queue hal.Queue, cfg Config) (*Storage, error) {
	return newStorage(KindVertex, device, queue, cfg)
}

// NewIndexStorage creates 16-bit index storage backed by a new GPU buffer.
func NewIndexStorage(device hal.Device, queue hal.Queue, cfg Config) (*Storage, error) {
	return newStorage(KindIndex16, device, queue, cfg)
}

func newStorage(kind Kind, device hal.Device, queue hal.Queue, cfg Config) (*Storage, error) {
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil device or queue", ErrInvalidConfig)
	}
	if cfg.Capacity == 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)
	}
	if cfg.Label == "" {
		cfg.Label = "gpumem " + kind.String() + " storage"
	}

	a, err := arena.New(arena.Config{
		Capacity:       cfg.Capacity,
		MaxAllocations: cfg.MaxAllocations,
		OnViolation:    cfg.OnViolation,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	usage := kind.Usage()
	if cfg.Upload == UploadMapped {
		usage |= gputypes.BufferUsageMapWrite
	}
	buffer, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: cfg.Label,
		Size:  cfg.Capacity,
		Usage: usage,
	})
	if err != nil {
		return nil, fmt.Errorf("geometry: create %s buffer (%d bytes): %w", kind, cfg.Capacity, err)
	}

	s := &Storage{
		kind:     kind,
		label:    cfg.Label,
		device:   device,
		queue:    queue,
		buffer:   buffer,
		upload:   cfg.Upload,
		capacity: cfg.Capacity,
		arena:    a,
		epoch:    epochs.Add(1),

		violations: contract.NewScope(cfg.OnViolation),
	}
	logx.L().Debug("geometry: storage created",
		slog.String("kind", kind.String()),
		slog.Uint64("capacity", cfg.Capacity),
		slog.String("upload", cfg.Upload.String()),
		slog.Uint64("epoch", uint64(s.epoch)))
	return s, nil
}

// Kind returns the geometry kind.
func (s *Storage) Kind() Kind { return s.kind }

// Buffer returns the GPU buffer, for binding in draw calls.
func (s *Storage) Buffer() hal.Buffer { return s.buffer }

// Capacity returns the GPU buffer size in bytes.
func (s *Storage) Capacity() uint64 { return s.capacity }

// Epoch identifies this storage incarnation.
func (s *Storage) Epoch() uint32 { return s.epoch }

// Locked reports whether a lock is outstanding.
func (s *Storage) Locked() bool { return s.locked != nil }

// Alloc reserves room for count records of stride bytes.
//
// The arena range is count*stride plus one stride of slack so that Lock can
// place the records at a stride-aligned offset inside it. On failure Alloc
// returns Invalid and an error wrapping the arena error (typically
// arena.ErrOutOfMemory); callers skip the mesh rather than fail.
func (s *Storage) Alloc(count, stride uint32) (Handle, error) {
	if s.destroyed {
		return Invalid, ErrDestroyed
	}
	if count == 0 || stride == 0 {
		return Invalid, fmt.Errorf("%w: %d x %d", ErrInvalidLayout, count, stride)
	}
	h, err := s.arena.Alloc(align.SlackSize(uint64(count), uint64(stride)))
	if err != nil {
		return Invalid, fmt.Errorf("geometry: %s alloc %d x %d: %w", s.kind, count, stride, err)
	}
	return Handle{alloc: h, stride: stride, count: count, epoch: s.epoch}, nil
}

// AllocIndices reserves room for count 16-bit indices.
func (s *Storage) AllocIndices(count uint32) (Handle, error) {
	return s.Alloc(count, IndexStride)
}

// AllocBytes reserves n raw bytes (stride 1).
func (s *Storage) AllocBytes(n uint32) (Handle, error) {
	return s.Alloc(n, 1)
}

// Free releases h.
//
// Free is safe while an unrelated allocation is locked. Freeing the locked
// allocation itself is a contract violation; the lock is released first.
// Freeing an invalid or stale handle is a reported no-op.
func (s *Storage) Free(h Handle) {
	if s.destroyed {
		return
	}
	if !s.owns(h) {
		s.violations.Report("geometry.Free", "invalid or stale handle", "handle", h.String())
		return
	}
	if s.locked != nil && s.locked.handle == h {
		s.violations.Report("geometry.Free", "freeing the locked allocation", "handle", h.String())
		_ = s.locked.release(false)
	}
	s.arena.Free(h.alloc)
}

// Live reports whether h is a live allocation of this storage.
func (s *Storage) Live(h Handle) bool {
	return !s.destroyed && s.owns(h)
}

// Offset returns the stride-aligned byte offset of h's records in the
// buffer, and false for an invalid handle.
func (s *Storage) Offset(h Handle) (uint64, bool) {
	if s.destroyed || !s.owns(h) {
		return 0, false
	}
	r := s.arena.Query(h.alloc)
	return align.Up(r.Offset, uint64(h.stride)), true
}

// BaseVertex returns the index of h's first vertex in the buffer, for use
// as a draw call's base vertex. Invalid handles report a violation and
// yield 0.
func (s *Storage) BaseVertex(h Handle) uint32 {
	return s.base("geometry.BaseVertex", h)
}

// BaseIndex returns the index of h's first element in the buffer, for use
// as a draw call's first index.
func (s *Storage) BaseIndex(h Handle) uint32 {
	return s.base("geometry.BaseIndex", h)
}

func (s *Storage) base(op string, h Handle) uint32 {
	off, ok := s.Offset(h)
	if !ok {
		s.violations.Report(op, "invalid or stale handle", "handle", h.String())
		return 0
	}
	return uint32(off / uint64(h.stride))
}

// owns reports whether h was issued by this storage incarnation and is live.
func (s *Storage) owns(h Handle) bool {
	return h.IsValid() && h.epoch == s.epoch && s.arena.Live(h.alloc)
}

// Stats returns storage statistics.
func (s *Storage) Stats() Stats {
	return Stats{
		Kind:   s.kind,
		Epoch:  s.epoch,
		Locked: s.locked != nil,
		Arena:  s.arena.Stats(),
	}
}

// Destroy releases the GPU buffer. An outstanding lock is released first.
// Every handle becomes invalid. Destroy is idempotent.
func (s *Storage) Destroy() {
	if s.destroyed {
		return
	}
	if s.locked != nil {
		_ = s.locked.release(false)
	}
	s.arena.Reset()
	s.device.DestroyBuffer(s.buffer)
	s.buffer = nil
	s.staging = nil
	s.destroyed = true
	logx.L().Debug("geometry: storage destroyed",
		slog.String("kind", s.kind.String()),
		slog.Uint64("epoch", uint64(s.epoch)))
}

// Stats describes a Storage.
type Stats struct {
	Kind   Kind
	Epoch  uint32
	Locked bool
	Arena  arena.Stats
}

// String returns a human-readable string of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("%s storage (epoch %d, locked %v): %v", s.Kind, s.Epoch, s.Locked, s.Arena)
}

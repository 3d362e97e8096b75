// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package framering provides per-frame transient geometry buffers.
//
// A Ring owns N GPU buffers (slots), one per frame in flight. Frame k
// writes into slot k mod N after waiting for the fence of the frame that
// last used that slot, frame k-N. Within a frame, geometry is appended
// linearly and the slot is rewound at the start of its next use.
//
//	ring.BeginFrame(ctx)          // waits for frame k-N
//	a, _ := ring.LockAppend(n, stride)
//	copy(a.Bytes(), vertices)
//	ring.UnlockAppend()
//	...
//	ring.EndFrame(submissionIndex) // fences slot k mod N
//
// Ring is not safe for concurrent use.
package framering

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/time/rate"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumem/geometry"
	"github.com/gogpu/gpumem/internal/contract"
	"github.com/gogpu/gpumem/internal/logx"
)

// Ring errors.
var (
	// ErrRingFull is returned by LockAppend when the current slot has no
	// room for the request. The slot is unchanged.
	ErrRingFull = errors.New("framering: ring full")

	// ErrFenceTimeout is returned by BeginFrame when the slot's fence is not
	// signaled within the wait policy.
	ErrFenceTimeout = errors.New("framering: fence wait timed out")

	// ErrNoFrame is returned when appending outside BeginFrame/EndFrame.
	ErrNoFrame = errors.New("framering: no frame in progress")

	// ErrFrameInProgress is returned by BeginFrame before the previous
	// frame has ended.
	ErrFrameInProgress = errors.New("framering: frame already in progress")

	// ErrAppendLocked is returned by LockAppend while an append is outstanding.
	ErrAppendLocked = errors.New("framering: append already locked")

	// ErrNotLocked is returned by UnlockAppend without an outstanding append.
	ErrNotLocked = errors.New("framering: no append locked")

	// ErrInvalidLayout is returned for a zero count or zero stride.
	ErrInvalidLayout = errors.New("framering: invalid count or stride")

	// ErrDestroyed is returned when operating on a destroyed ring.
	ErrDestroyed = errors.New("framering: ring destroyed")

	// ErrInvalidConfig is returned for an unusable configuration.
	ErrInvalidConfig = errors.New("framering: invalid config")
)

// Defaults.
const (
	// DefaultFrames is the default number of frames in flight.
	DefaultFrames = 2

	// MaxFrames bounds the number of slots.
	MaxFrames = 16

	// DefaultTimeout bounds a single fence wait.
	DefaultTimeout = 2 * time.Second
)

// WaitPolicy bounds the fence wait in BeginFrame.
type WaitPolicy struct {
	// MaxPolls stops waiting after this many PollCompleted calls.
	// Zero means no poll limit.
	MaxPolls int

	// Timeout stops waiting after this long. Zero means DefaultTimeout;
	// a negative value disables the time limit.
	Timeout time.Duration
}

// Config configures a Ring.
type Config struct {
	// Label is an optional debug name prefix for the slot buffers.
	Label string

	// Kind selects vertex or 16-bit index buffers.
	Kind geometry.Kind

	// Capacity is the size of each slot buffer in bytes. Required.
	Capacity uint64

	// Frames is the number of slots (frames in flight). Defaults to
	// DefaultFrames.
	Frames int

	// Upload selects the write path. Defaults to geometry.UploadStaged.
	Upload geometry.UploadMode

	// Wait bounds the fence wait.
	Wait WaitPolicy

	// OnFrameComplete, if set, is called by EndFrame with the number of
	// the frame that was just fenced.
	OnFrameComplete func(frame uint64)

	// OnViolation, if set, receives this ring's contract violations in
	// addition to the process-wide handler.
	OnViolation contract.Handler
}

func (c Config) withDefaults() Config {
	if c.Frames == 0 {
		c.Frames = DefaultFrames
	}
	if c.Wait.Timeout == 0 {
		c.Wait.Timeout = DefaultTimeout
	}
	if c.Label == "" {
		c.Label = "gpumem transient " + c.Kind.String()
	}
	return c
}

// Fence marks the submission that last consumed a slot.
type Fence struct {
	// Index is the queue submission index.
	Index uint64

	// Frame is the frame that issued the submission.
	Frame uint64
}

// Signaled reports whether the GPU has finished the fenced submission.
func (f Fence) Signaled(q hal.Queue) bool {
	return q.PollCompleted() >= f.Index
}

type slotState uint8

const (
	slotIdle slotState = iota
	slotFenced
)

type slot struct {
	buffer hal.Buffer
	used   uint64
	fence  Fence
	state  slotState
}

// Ring is an N-slot transient geometry ring.
type Ring struct {
	device hal.Device
	queue  hal.Queue
	kind   geometry.Kind
	upload geometry.UploadMode

	capacity uint64
	slots    []slot
	wait     WaitPolicy
	onFrame  func(uint64)

	frame   uint64
	inFrame bool
	pending *Append
	staging []byte

	stats      Stats
	stallLogs  rate.Sometimes
	violations contract.Scope

	destroyed bool
}

// New creates a ring of cfg.Frames slot buffers on device.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Ring, error) {
	cfg = cfg.withDefaults()
	if device == nil || queue == nil {
		return nil, fmt.Errorf("%w: nil device or queue", ErrInvalidConfig)
	}
	if cfg.Capacity == 0 {
		return nil, fmt.Errorf("%w: capacity must be positive", ErrInvalidConfig)
	}
	if cfg.Frames < 1 || cfg.Frames > MaxFrames {
		return nil, fmt.Errorf("%w: frames %d out of range [1, %d]", ErrInvalidConfig, cfg.Frames, MaxFrames)
	}
	if cfg.Wait.MaxPolls < 0 {
		return nil, fmt.Errorf("%w: negative MaxPolls", ErrInvalidConfig)
	}

	usage := cfg.Kind.Usage()
	if cfg.Upload == geometry.UploadMapped {
		usage |= gputypes.BufferUsageMapWrite
	}

	r := &Ring{
		device:    device,
		queue:     queue,
		kind:      cfg.Kind,
		upload:    cfg.Upload,
		capacity:  cfg.Capacity,
		slots:     make([]slot, cfg.Frames),
		wait:      cfg.Wait,
		onFrame:   cfg.OnFrameComplete,
		stallLogs: rate.Sometimes{First: 4, Interval: 5 * time.Second},

		violations: contract.NewScope(cfg.OnViolation),
	}
	for i := range r.slots {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("%s slot %d", cfg.Label, i),
			Size:  cfg.Capacity,
			Usage: usage,
		})
		if err != nil {
			r.destroyBuffers()
			return nil, fmt.Errorf("framering: create slot %d buffer (%d bytes): %w", i, cfg.Capacity, err)
		}
		r.slots[i].buffer = buf
	}

	logx.L().Debug("framering: ring created",
		slog.String("kind", cfg.Kind.String()),
		slog.Int("frames", cfg.Frames),
		slog.Uint64("capacity", cfg.Capacity))
	return r, nil
}

// Kind returns the geometry kind of the ring.
func (r *Ring) Kind() geometry.Kind { return r.kind }

// Frames returns the number of slots.
func (r *Ring) Frames() int { return len(r.slots) }

// Capacity returns the size of each slot buffer in bytes.
func (r *Ring) Capacity() uint64 { return r.capacity }

// Frame returns the current frame number. It advances in EndFrame.
func (r *Ring) Frame() uint64 { return r.frame }

// Slot returns the slot the current frame writes into.
func (r *Ring) Slot() int { return int(r.frame % uint64(len(r.slots))) }

// Buffer returns the current slot's buffer, for binding in draw calls.
func (r *Ring) Buffer() hal.Buffer {
	if r.destroyed {
		return nil
	}
	return r.slots[r.Slot()].buffer
}

// Used returns the bytes appended to the current slot this frame.
func (r *Ring) Used() uint64 {
	if r.destroyed {
		return 0
	}
	return r.slots[r.Slot()].used
}

// InFrame reports whether BeginFrame has been called without EndFrame.
func (r *Ring) InFrame() bool { return r.inFrame }

// Fence returns the fence guarding slot i and whether it is armed.
func (r *Ring) Fence(i int) (Fence, bool) {
	if i < 0 || i >= len(r.slots) {
		return Fence{}, false
	}
	s := &r.slots[i]
	return s.fence, s.state == slotFenced
}

// BeginFrame prepares the current frame's slot for appends.
//
// If the slot is still fenced by frame k-N, BeginFrame polls the queue until
// the fence is signaled, the wait policy is exhausted (ErrFenceTimeout), or
// ctx is done. On error the frame does not begin and BeginFrame may be
// retried.
func (r *Ring) BeginFrame(ctx context.Context) error {
	if r.destroyed {
		return ErrDestroyed
	}
	if r.inFrame {
		r.violations.Report("framering.BeginFrame", "frame already in progress", "frame", r.frame)
		return ErrFrameInProgress
	}

	s := &r.slots[r.Slot()]
	if s.state == slotFenced {
		if err := r.waitFence(ctx, s.fence); err != nil {
			return err
		}
		s.state = slotIdle
	}
	s.used = 0
	r.inFrame = true
	return nil
}

// waitFence spins on PollCompleted until f is signaled.
func (r *Ring) waitFence(ctx context.Context, f Fence) error {
	r.stats.Waits++

	var deadline time.Time
	if r.wait.Timeout > 0 {
		deadline = time.Now().Add(r.wait.Timeout)
	}

	for polls := 1; ; polls++ {
		completed := r.queue.PollCompleted()
		r.stats.Polls++
		if completed >= f.Index {
			if polls > 1 {
				r.stats.Stalls++
				r.logStall(f, polls)
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.wait.MaxPolls > 0 && polls >= r.wait.MaxPolls ||
			!deadline.IsZero() && time.Now().After(deadline) {
			r.stats.Timeouts++
			logx.L().Warn("framering: fence wait timed out",
				slog.Uint64("frame", r.frame),
				slog.Uint64("fence_frame", f.Frame),
				slog.Uint64("submission", f.Index),
				slog.Uint64("completed", completed),
				slog.Int("polls", polls))
			return fmt.Errorf("%w: frame %d waiting on submission %d of frame %d (completed %d, %d polls)",
				ErrFenceTimeout, r.frame, f.Index, f.Frame, completed, polls)
		}
		runtime.Gosched()
	}
}

func (r *Ring) logStall(f Fence, polls int) {
	if !logx.Enabled(slog.LevelWarn) {
		return
	}
	r.stallLogs.Do(func() {
		logx.L().Warn("framering: CPU stalled on GPU",
			slog.Uint64("frame", r.frame),
			slog.Uint64("fence_frame", f.Frame),
			slog.Int("polls", polls))
	})
}

// EndFrame fences the current slot with submission, the queue submission
// index that consumes this frame's geometry, and advances the frame.
// An outstanding append is published first, which is a reported violation.
func (r *Ring) EndFrame(submission uint64) {
	if r.destroyed {
		return
	}
	if !r.inFrame {
		r.violations.Report("framering.EndFrame", "no frame in progress", "frame", r.frame)
		return
	}
	if r.pending != nil {
		r.violations.Report("framering.EndFrame", "append still locked", "frame", r.frame)
		_ = r.pending.release(true)
	}

	s := &r.slots[r.Slot()]
	s.fence = Fence{Index: submission, Frame: r.frame}
	s.state = slotFenced
	r.stats.Frames++

	ended := r.frame
	r.frame++
	r.inFrame = false
	if r.onFrame != nil {
		r.onFrame(ended)
	}
}

// Stats returns ring statistics.
func (r *Ring) Stats() Stats {
	st := r.stats
	st.Frame = r.frame
	st.Slot = r.Slot()
	st.Used = r.Used()
	st.Capacity = r.capacity
	return st
}

// Destroy releases the slot buffers. An outstanding append is dropped.
// The caller must ensure the GPU no longer reads the buffers. Destroy is
// idempotent.
func (r *Ring) Destroy() {
	if r.destroyed {
		return
	}
	if r.pending != nil {
		_ = r.pending.release(false)
	}
	r.destroyBuffers()
	r.staging = nil
	r.inFrame = false
	r.destroyed = true
	logx.L().Debug("framering: ring destroyed", slog.String("kind", r.kind.String()))
}

func (r *Ring) destroyBuffers() {
	for i := range r.slots {
		if r.slots[i].buffer != nil {
			r.device.DestroyBuffer(r.slots[i].buffer)
			r.slots[i].buffer = nil
		}
	}
}

// Stats describes a Ring.
type Stats struct {
	// Frame is the current frame number; Slot the slot it writes into.
	Frame uint64
	Slot  int

	// Used and Capacity describe the current slot in bytes.
	Used     uint64
	Capacity uint64

	// Frames counts ended frames.
	Frames uint64

	// Waits counts BeginFrame calls that found their slot fenced.
	Waits uint64

	// Stalls counts waits where the fence was not yet signaled on the
	// first poll.
	Stalls uint64

	// Polls counts PollCompleted calls made while waiting.
	Polls uint64

	// Timeouts counts waits that gave up.
	Timeouts uint64
}

// String returns a human-readable string of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("frame %d (slot %d): %d/%d bytes, %d waits, %d stalls, %d polls, %d timeouts",
		s.Frame, s.Slot, s.Used, s.Capacity, s.Waits, s.Stalls, s.Polls, s.Timeouts)
}

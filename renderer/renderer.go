// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package renderer ties geometry storage, transient frame rings and the
// state cache to one GPU device and drives them through the frame.
//
// A frame looks like:
//
//	if err := r.BeginFrame(ctx); err != nil { ... }  // waits for frame k-N
//	r.BeginPass(desc)
//	r.States().SetRenderState(statecache.DepthTest, 1)
//	r.DrawStored(mesh.Vertices, mesh.Indices, mesh.IndexCount)
//	r.EndPass()
//	r.EndFrame()                                    // submits, fences rings
//
// When the device is lost, OnDeviceLost tears down every GPU resource and
// notifies DeviceListeners; OnDeviceRestored recreates them on the new
// device as a unit. Handles from before the loss are rejected.
//
// Renderer is not safe for concurrent use; drive it from one goroutine.
package renderer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumem/framering"
	"github.com/gogpu/gpumem/geometry"
	"github.com/gogpu/gpumem/internal/cache"
	"github.com/gogpu/gpumem/internal/contract"
	"github.com/gogpu/gpumem/internal/logx"
	"github.com/gogpu/gpumem/statecache"
)

// Renderer errors.
var (
	// ErrWrongPhase is returned when an operation is called in a phase that
	// does not allow it, e.g. a draw outside a render pass.
	ErrWrongPhase = errors.New("renderer: wrong phase")

	// ErrDeviceLost is returned while the device is lost.
	ErrDeviceLost = errors.New("renderer: device lost")

	// ErrClosed is returned after Close.
	ErrClosed = errors.New("renderer: closed")

	// ErrNilProvider is returned when a nil DeviceProvider is passed.
	ErrNilProvider = errors.New("renderer: nil DeviceProvider")

	// ErrInvalidDraw is returned for a draw with invalid geometry.
	ErrInvalidDraw = errors.New("renderer: invalid draw")
)

// Phase is the renderer lifecycle phase.
type Phase int

const (
	// PhaseIdle is between frames.
	PhaseIdle Phase = iota

	// PhaseInFrame is between BeginFrame and EndFrame, outside a pass.
	PhaseInFrame

	// PhaseInPass is inside a render pass.
	PhaseInPass

	// PhaseLost is after OnDeviceLost until OnDeviceRestored.
	PhaseLost
)

// String returns the string representation of Phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "Idle"
	case PhaseInFrame:
		return "InFrame"
	case PhaseInPass:
		return "InPass"
	case PhaseLost:
		return "Lost"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Renderer owns the geometry memory of one device.
type Renderer struct {
	opts   options
	device hal.Device
	queue  hal.Queue

	vertices  *geometry.Storage
	indices   *geometry.Storage
	tvertices *framering.Ring
	tindices  *framering.Ring
	states    *statecache.Cache
	pipelines *cache.Cache[statecache.PipelineKey, hal.RenderPipeline]
	retired   []retiredPipeline

	violations     contract.Scope
	lastSubmission uint64

	phase   Phase
	closed  bool
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder
	target  passTarget
	bound   hal.RenderPipeline

	listeners []DeviceListener
	stats     counters
}

// New creates a renderer on device and queue.
func New(device hal.Device, queue hal.Queue, opts ...Option) (*Renderer, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	r := &Renderer{
		opts:       o,
		listeners:  append([]DeviceListener(nil), o.listeners...),
		violations: contract.NewScope(o.violations),
	}
	if err := r.createResources(device, queue); err != nil {
		return nil, err
	}
	logx.L().Info("renderer: created",
		slog.Uint64("vertex_capacity", o.vertexCapacity),
		slog.Uint64("index_capacity", o.indexCapacity),
		slog.Int("frames", o.frames))
	return r, nil
}

// NewFromProvider creates a renderer on the device of a host application.
//
// The provider must expose HAL types, either through HalDevice/HalQueue
// accessors or by returning hal.Device and hal.Queue from Device and Queue.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*Renderer, error) {
	if provider == nil {
		return nil, ErrNilProvider
	}
	device, queue, err := halFromProvider(provider)
	if err != nil {
		return nil, err
	}
	info := provider.AdapterInfo()
	logx.L().Info("renderer: using provider device",
		slog.String("adapter", info.Name),
		slog.Int("adapter_type", int(info.Type)))
	return New(device, queue, opts...)
}

func halFromProvider(provider gpucontext.DeviceProvider) (hal.Device, hal.Queue, error) {
	type halProvider interface {
		HalDevice() any
		HalQueue() any
	}
	var dev, q any
	if hp, ok := provider.(halProvider); ok {
		dev, q = hp.HalDevice(), hp.HalQueue()
	} else {
		dev, q = provider.Device(), provider.Queue()
	}
	device, ok := dev.(hal.Device)
	if !ok || device == nil {
		return nil, nil, fmt.Errorf("renderer: provider device %T is not hal.Device", dev)
	}
	queue, ok := q.(hal.Queue)
	if !ok || queue == nil {
		return nil, nil, fmt.Errorf("renderer: provider queue %T is not hal.Queue", q)
	}
	return device, queue, nil
}

// createResources builds storages, rings, cache and pipeline memo on
// device. On error nothing is left allocated.
func (r *Renderer) createResources(device hal.Device, queue hal.Queue) (err error) {
	o := r.opts
	var (
		vertices, indices   *geometry.Storage
		tvertices, tindices *framering.Ring
	)
	defer func() {
		if err == nil {
			return
		}
		for _, s := range []*geometry.Storage{vertices, indices} {
			if s != nil {
				s.Destroy()
			}
		}
		for _, ring := range []*framering.Ring{tvertices, tindices} {
			if ring != nil {
				ring.Destroy()
			}
		}
	}()

	if vertices, err = geometry.NewVertexStorage(device, queue, geometry.Config{
		Label:          "gpumem vertices",
		Capacity:       o.vertexCapacity,
		MaxAllocations: o.maxAllocations,
		Upload:         o.upload,
		OnViolation:    o.violations,
	}); err != nil {
		return fmt.Errorf("renderer: vertex storage: %w", err)
	}
	if indices, err = geometry.NewIndexStorage(device, queue, geometry.Config{
		Label:          "gpumem indices",
		Capacity:       o.indexCapacity,
		MaxAllocations: o.maxAllocations,
		Upload:         o.upload,
		OnViolation:    o.violations,
	}); err != nil {
		return fmt.Errorf("renderer: index storage: %w", err)
	}
	if tvertices, err = framering.New(device, queue, framering.Config{
		Label:    "gpumem transient vertices",
		Kind:     geometry.KindVertex,
		Capacity: o.transientVertexCapacity,
		Frames:   o.frames,
		Upload:      o.upload,
		Wait:        o.wait,
		OnViolation: o.violations,
	}); err != nil {
		return fmt.Errorf("renderer: transient vertex ring: %w", err)
	}
	if tindices, err = framering.New(device, queue, framering.Config{
		Label:    "gpumem transient indices",
		Kind:     geometry.KindIndex16,
		Capacity: o.transientIndexCapacity,
		Frames:   o.frames,
		Upload:      o.upload,
		Wait:        o.wait,
		OnViolation: o.violations,
	}); err != nil {
		return fmt.Errorf("renderer: transient index ring: %w", err)
	}

	states := statecache.New(nil)
	states.SetEnabled(o.stateCaching)
	states.SetViolationHandler(o.violations)

	r.device = device
	r.queue = queue
	r.vertices = vertices
	r.indices = indices
	r.tvertices = tvertices
	r.tindices = tindices
	r.states = states
	r.pipelines = r.newPipelineCache(device, o.pipelineCacheSize)
	r.lastSubmission = 0
	r.bound = nil
	r.phase = PhaseIdle
	return nil
}

// destroyResources releases every GPU resource the renderer owns.
func (r *Renderer) destroyResources() {
	if r.pipelines != nil {
		r.pipelines.Clear()
	}
	r.releaseRetired(true)
	r.vertices.Destroy()
	r.indices.Destroy()
	r.tvertices.Destroy()
	r.tindices.Destroy()
	r.states.Bind(nil)
	r.bound = nil
}

// Device returns the current device.
func (r *Renderer) Device() hal.Device { return r.device }

// Queue returns the current queue.
func (r *Renderer) Queue() hal.Queue { return r.queue }

// Phase returns the lifecycle phase.
func (r *Renderer) Phase() Phase { return r.phase }

// Vertices returns the persistent vertex storage.
func (r *Renderer) Vertices() *geometry.Storage { return r.vertices }

// Indices returns the persistent 16-bit index storage.
func (r *Renderer) Indices() *geometry.Storage { return r.indices }

// TransientVertices returns the per-frame vertex ring.
func (r *Renderer) TransientVertices() *framering.Ring { return r.tvertices }

// TransientIndices returns the per-frame 16-bit index ring.
func (r *Renderer) TransientIndices() *framering.Ring { return r.tindices }

// States returns the state cache. Changes made outside a pass are applied
// when the next pass begins.
func (r *Renderer) States() *statecache.Cache { return r.states }

// Frame returns the number of the current (or next) frame.
func (r *Renderer) Frame() uint64 { return r.tvertices.Frame() }

// checkPhase reports a violation unless the renderer is in want.
func (r *Renderer) checkPhase(op string, want Phase) error {
	switch {
	case r.closed:
		return ErrClosed
	case r.phase == want:
		return nil
	case r.phase == PhaseLost:
		return ErrDeviceLost
	}
	r.violations.Report(op, "wrong phase", "phase", r.phase.String(), "want", want.String())
	return fmt.Errorf("%w: %s in %s", ErrWrongPhase, op, r.phase)
}

// BeginFrame starts a frame. It waits until the GPU has finished the frame
// that last used this frame's transient slots, bounded by the fence wait
// policy. On error the frame does not begin and BeginFrame may be retried.
func (r *Renderer) BeginFrame(ctx context.Context) error {
	if err := r.checkPhase("renderer.BeginFrame", PhaseIdle); err != nil {
		return err
	}
	for _, ring := range []*framering.Ring{r.tvertices, r.tindices} {
		if ring.InFrame() {
			continue
		}
		if err := ring.BeginFrame(ctx); err != nil {
			return fmt.Errorf("renderer: begin frame %d: %w", ring.Frame(), err)
		}
	}

	enc, err := r.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "gpumem frame"})
	if err != nil {
		return fmt.Errorf("renderer: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(fmt.Sprintf("gpumem frame %d", r.Frame())); err != nil {
		enc.DiscardEncoding()
		return fmt.Errorf("renderer: begin encoding: %w", err)
	}
	r.releaseRetired(false)
	r.encoder = enc
	r.phase = PhaseInFrame
	return nil
}

// BeginPass opens a render pass. Cached state is re-applied to the pass.
func (r *Renderer) BeginPass(desc *hal.RenderPassDescriptor) error {
	if err := r.checkPhase("renderer.BeginPass", PhaseInFrame); err != nil {
		return err
	}
	r.pass = r.encoder.BeginRenderPass(desc)
	r.target = passTarget{pass: r.pass}
	r.bound = nil
	r.phase = PhaseInPass
	r.states.Bind(&r.target)
	r.stats.Passes++
	return nil
}

// EndPass closes the render pass.
func (r *Renderer) EndPass() error {
	if err := r.checkPhase("renderer.EndPass", PhaseInPass); err != nil {
		return err
	}
	r.states.Bind(nil)
	r.pass.End()
	r.pass = nil
	r.target = passTarget{}
	r.bound = nil
	r.phase = PhaseInFrame
	return nil
}

// EndFrame finishes encoding, submits the frame and fences the transient
// slots with the submission. An open pass is closed first, which is a
// reported violation.
func (r *Renderer) EndFrame() error {
	if r.phase == PhaseInPass {
		r.violations.Report("renderer.EndFrame", "render pass still open", "frame", r.Frame())
		_ = r.EndPass()
	}
	if err := r.checkPhase("renderer.EndFrame", PhaseInFrame); err != nil {
		return err
	}

	enc := r.encoder
	r.encoder = nil
	r.phase = PhaseIdle

	cmd, err := enc.EndEncoding()
	if err != nil {
		r.endRings(0)
		return fmt.Errorf("renderer: end encoding: %w", err)
	}
	idx, err := r.queue.Submit([]hal.CommandBuffer{cmd})
	if err != nil {
		r.device.FreeCommandBuffer(cmd)
		r.endRings(0)
		return fmt.Errorf("renderer: submit frame %d: %w", r.Frame(), err)
	}
	r.lastSubmission = idx
	r.endRings(idx)
	r.device.FreeCommandBuffer(cmd)
	r.stats.Frames++
	r.stats.Submissions++
	return nil
}

// endRings fences both rings. A zero submission means the GPU never saw
// the frame, so the slots are free immediately. Pipelines retired during
// the frame are fenced with the last submission the GPU did see.
func (r *Renderer) endRings(submission uint64) {
	r.tvertices.EndFrame(submission)
	r.tindices.EndFrame(submission)
	r.fenceRetired(r.lastSubmission)
	r.releaseRetired(false)
}

// Close waits for the GPU and releases every resource. Close is idempotent.
func (r *Renderer) Close() {
	if r.closed {
		return
	}
	if r.phase == PhaseInPass {
		r.states.Bind(nil)
		r.pass.End()
		r.pass = nil
	}
	if r.encoder != nil {
		r.encoder.DiscardEncoding()
		r.encoder = nil
	}
	if r.phase != PhaseLost {
		if err := r.device.WaitIdle(); err != nil {
			logx.L().Warn("renderer: wait idle on close", slog.String("error", err.Error()))
		}
		r.destroyResources()
	}
	r.closed = true
	logx.L().Info("renderer: closed")
}

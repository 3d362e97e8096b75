// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"github.com/gogpu/gpumem/framering"
	"github.com/gogpu/gpumem/geometry"
	"github.com/gogpu/gpumem/internal/contract"
)

// Default capacities.
const (
	DefaultVertexCapacity          = 16 << 20
	DefaultIndexCapacity           = 4 << 20
	DefaultTransientVertexCapacity = 4 << 20
	DefaultTransientIndexCapacity  = 1 << 20
	DefaultPipelineCacheSize       = 64
)

// Option configures a Renderer during creation.
//
// Example:
//
//	r, err := renderer.New(device, queue,
//		renderer.WithVertexCapacity(64<<20),
//		renderer.WithFramesInFlight(3),
//		renderer.WithPipelineSource(shaders),
//	)
type Option func(*options)

// options holds the Renderer configuration. It survives device loss and is
// reused to recreate resources.
type options struct {
	vertexCapacity          uint64
	indexCapacity           uint64
	maxAllocations          int
	frames                  int
	transientVertexCapacity uint64
	transientIndexCapacity  uint64
	stateCaching            bool
	wait                    framering.WaitPolicy
	upload                  geometry.UploadMode
	pipelines               PipelineSource
	pipelineCacheSize       int
	listeners               []DeviceListener
	violations              contract.Handler
}

// defaultOptions returns the default renderer options.
func defaultOptions() options {
	return options{
		vertexCapacity:          DefaultVertexCapacity,
		indexCapacity:           DefaultIndexCapacity,
		frames:                  framering.DefaultFrames,
		transientVertexCapacity: DefaultTransientVertexCapacity,
		transientIndexCapacity:  DefaultTransientIndexCapacity,
		stateCaching:            true,
		pipelineCacheSize:       DefaultPipelineCacheSize,
	}
}

// WithVertexCapacity sets the persistent vertex buffer size in bytes.
func WithVertexCapacity(bytes uint64) Option {
	return func(o *options) {
		o.vertexCapacity = bytes
	}
}

// WithIndexCapacity sets the persistent index buffer size in bytes.
func WithIndexCapacity(bytes uint64) Option {
	return func(o *options) {
		o.indexCapacity = bytes
	}
}

// WithMaxAllocations bounds live allocations per persistent storage.
func WithMaxAllocations(n int) Option {
	return func(o *options) {
		o.maxAllocations = n
	}
}

// WithFramesInFlight sets the number of frames the CPU may run ahead of
// the GPU, which is also the number of transient ring slots.
func WithFramesInFlight(n int) Option {
	return func(o *options) {
		o.frames = n
	}
}

// WithTransientCapacity sets the per-frame transient vertex and index
// buffer sizes in bytes.
func WithTransientCapacity(vertexBytes, indexBytes uint64) Option {
	return func(o *options) {
		o.transientVertexCapacity = vertexBytes
		o.transientIndexCapacity = indexBytes
	}
}

// WithStateCaching turns redundant-state filtering on or off.
// It is on by default.
func WithStateCaching(enabled bool) Option {
	return func(o *options) {
		o.stateCaching = enabled
	}
}

// WithFenceWait bounds how long BeginFrame waits for the GPU.
func WithFenceWait(p framering.WaitPolicy) Option {
	return func(o *options) {
		o.wait = p
	}
}

// WithUploadMode selects how CPU writes reach GPU buffers.
func WithUploadMode(m geometry.UploadMode) Option {
	return func(o *options) {
		o.upload = m
	}
}

// WithPipelineSource sets the source of render pipelines. Without one the
// renderer never binds a pipeline; the caller is expected to.
func WithPipelineSource(s PipelineSource) Option {
	return func(o *options) {
		o.pipelines = s
	}
}

// WithPipelineCacheSize bounds the number of memoized pipelines.
func WithPipelineCacheSize(n int) Option {
	return func(o *options) {
		o.pipelineCacheSize = n
	}
}

// WithDeviceListener registers l for device loss notifications.
func WithDeviceListener(l DeviceListener) Option {
	return func(o *options) {
		o.listeners = append(o.listeners, l)
	}
}

// WithViolationHandler routes contract violations of this renderer, its
// storages, rings and state cache to h, in addition to the process-wide
// handler installed with gpumem.SetViolationHandler.
func WithViolationHandler(h func(v contract.Violation)) Option {
	return func(o *options) {
		o.violations = h
	}
}

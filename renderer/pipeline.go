// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumem/internal/cache"
	"github.com/gogpu/gpumem/statecache"
)

// PipelineSource creates the render pipeline for a state key.
//
// Shader selection and compilation live behind this interface. Pipelines
// are memoized per key and destroyed after eviction, once the GPU is done
// with them, or on device loss, so a source must return a new pipeline on
// every call.
type PipelineSource interface {
	Pipeline(device hal.Device, key statecache.PipelineKey, layout gputypes.VertexBufferLayout) (hal.RenderPipeline, error)
}

// PipelineSourceFunc adapts a function to PipelineSource.
type PipelineSourceFunc func(device hal.Device, key statecache.PipelineKey, layout gputypes.VertexBufferLayout) (hal.RenderPipeline, error)

// Pipeline calls f.
func (f PipelineSourceFunc) Pipeline(device hal.Device, key statecache.PipelineKey, layout gputypes.VertexBufferLayout) (hal.RenderPipeline, error) {
	return f(device, key, layout)
}

// retiredPipeline is an evicted pipeline the GPU may still use. It is
// destroyed once the submission of the frame that evicted it completes.
type retiredPipeline struct {
	device     hal.Device
	pipeline   hal.RenderPipeline
	submission uint64
	submitted  bool
}

// newPipelineCache memoizes pipelines created on device. Evicted pipelines
// may be bound in the open pass or read by frames in flight, so they are
// retired instead of destroyed.
func (r *Renderer) newPipelineCache(device hal.Device, size int) *cache.Cache[statecache.PipelineKey, hal.RenderPipeline] {
	return cache.New(size, func(_ statecache.PipelineKey, p hal.RenderPipeline) {
		if p != nil {
			r.retired = append(r.retired, retiredPipeline{device: device, pipeline: p})
		}
	})
}

// fenceRetired ties pipelines retired during the current frame to its
// submission. Zero means the GPU never saw the frame.
func (r *Renderer) fenceRetired(submission uint64) {
	for i := range r.retired {
		if !r.retired[i].submitted {
			r.retired[i].submission = submission
			r.retired[i].submitted = true
		}
	}
}

// releaseRetired destroys retired pipelines whose submission has completed,
// or all of them when all is set.
func (r *Renderer) releaseRetired(all bool) {
	if len(r.retired) == 0 {
		return
	}
	var completed uint64
	if !all {
		completed = r.queue.PollCompleted()
	}
	kept := r.retired[:0]
	for _, p := range r.retired {
		if all || (p.submitted && p.submission <= completed) {
			p.device.DestroyRenderPipeline(p.pipeline)
			continue
		}
		kept = append(kept, p)
	}
	clear(r.retired[len(kept):])
	r.retired = kept
}

// bindPipeline resolves and binds the pipeline for the current state.
func (r *Renderer) bindPipeline() error {
	if r.opts.pipelines == nil {
		return nil
	}
	key := r.states.PipelineKey()
	p, err := r.pipelines.GetOrCreate(key, func() (hal.RenderPipeline, error) {
		layout, _ := r.states.Layout(key.Layout)
		return r.opts.pipelines.Pipeline(r.device, key, layout)
	})
	if err != nil {
		return err
	}
	if p != r.bound {
		r.pass.SetPipeline(p)
		r.bound = p
		r.stats.PipelineBinds++
	}
	return nil
}

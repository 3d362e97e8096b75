// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumem/framering"
	"github.com/gogpu/gpumem/geometry"
	"github.com/gogpu/gpumem/statecache"
)

// passTarget applies state changes to a render pass. Pipeline states have
// no pass command; they reach the GPU through the pipeline key.
type passTarget struct {
	pass hal.RenderPassEncoder
}

var _ statecache.Target = (*passTarget)(nil)

func (t *passTarget) SetRenderState(state statecache.RenderState, value uint32) {
	switch state {
	case statecache.StencilReference:
		t.pass.SetStencilReference(value)
	case statecache.BlendConstant:
		c := unpackColor(value)
		t.pass.SetBlendConstant(&c)
	}
}

func (t *passTarget) SetTexture(stage uint32, group hal.BindGroup) {
	if group != nil {
		t.pass.SetBindGroup(stage, group, nil)
	}
}

func (t *passTarget) SetViewport(v statecache.Viewport) {
	t.pass.SetViewport(v.X, v.Y, v.Width, v.Height, v.MinDepth, v.MaxDepth)
}

func (t *passTarget) SetScissor(r statecache.Rect) {
	t.pass.SetScissorRect(r.X, r.Y, r.Width, r.Height)
}

func (t *passTarget) SetVertexBuffer(slot uint32, buffer hal.Buffer, offset uint64) {
	t.pass.SetVertexBuffer(slot, buffer, offset)
}

func (t *passTarget) SetIndexBuffer(buffer hal.Buffer, offset uint64) {
	t.pass.SetIndexBuffer(buffer, gputypes.IndexFormatUint16, offset)
}

// unpackColor converts a packed 0xAABBGGRR color.
func unpackColor(v uint32) gputypes.Color {
	return gputypes.Color{
		R: float64(v&0xff) / 255,
		G: float64(v>>8&0xff) / 255,
		B: float64(v>>16&0xff) / 255,
		A: float64(v>>24) / 255,
	}
}

// PackColor packs an RGBA color with components in [0, 1] for the
// statecache.BlendConstant render state.
func PackColor(c gputypes.Color) uint32 {
	ch := func(f float64) uint32 {
		switch {
		case f <= 0:
			return 0
		case f >= 1:
			return 0xff
		}
		return uint32(f*255 + 0.5)
	}
	return ch(c.R) | ch(c.G)<<8 | ch(c.B)<<16 | ch(c.A)<<24
}

// skip records a dropped draw and returns err.
func (r *Renderer) skip(err error) error {
	r.stats.SkippedDraws++
	return err
}

// DrawStored draws indexCount indices of persistent mesh geometry.
//
// vb must be a live allocation of Vertices and ib of Indices. Both buffers
// are bound at offset 0; the draw addresses the mesh through its base
// vertex and first index, so consecutive stored draws share bindings.
func (r *Renderer) DrawStored(vb, ib geometry.Handle, indexCount uint32) error {
	if err := r.checkPhase("renderer.DrawStored", PhaseInPass); err != nil {
		return err
	}
	if !r.vertices.Live(vb) || !r.indices.Live(ib) {
		r.violations.Report("renderer.DrawStored", "invalid or stale handle",
			"vertices", vb.String(), "indices", ib.String())
		return r.skip(fmt.Errorf("%w: %w", ErrInvalidDraw, geometry.ErrInvalidHandle))
	}
	if indexCount == 0 || indexCount > ib.Count() {
		r.violations.Report("renderer.DrawStored", "index count out of range",
			"count", indexCount, "allocated", ib.Count())
		return r.skip(fmt.Errorf("%w: index count %d of %d", ErrInvalidDraw, indexCount, ib.Count()))
	}

	if err := r.bindPipeline(); err != nil {
		return r.skip(fmt.Errorf("renderer: pipeline: %w", err))
	}
	r.states.SetVertexBuffer(0, r.vertices.Buffer(), 0)
	r.states.SetIndexBuffer(r.indices.Buffer(), 0)
	r.pass.DrawIndexed(indexCount, 1, r.indices.BaseIndex(ib), int32(r.vertices.BaseVertex(vb)), 0)
	r.stats.Draws++
	return nil
}

// DrawTransient draws all indices of i over the vertices of v. Both must
// be unlocked appends of the current frame from TransientVertices and
// TransientIndices.
func (r *Renderer) DrawTransient(v, i *framering.Append) error {
	if i == nil {
		return r.DrawTransientRange(v, i, 0, 0)
	}
	return r.DrawTransientRange(v, i, 0, i.Count())
}

// DrawTransientRange draws count indices of i starting at index first.
func (r *Renderer) DrawTransientRange(v, i *framering.Append, first, count uint32) error {
	if err := r.checkPhase("renderer.DrawTransient", PhaseInPass); err != nil {
		return err
	}
	if err := r.checkAppend(v, r.tvertices); err != nil {
		return r.skip(err)
	}
	if err := r.checkAppend(i, r.tindices); err != nil {
		return r.skip(err)
	}
	if count == 0 || first+count > i.Count() {
		r.violations.Report("renderer.DrawTransient", "index range out of bounds",
			"first", first, "count", count, "allocated", i.Count())
		return r.skip(fmt.Errorf("%w: index range [%d, %d) of %d", ErrInvalidDraw, first, first+count, i.Count()))
	}

	if err := r.bindPipeline(); err != nil {
		return r.skip(fmt.Errorf("renderer: pipeline: %w", err))
	}
	r.states.SetVertexBuffer(0, v.Buffer(), 0)
	r.states.SetIndexBuffer(i.Buffer(), 0)
	r.pass.DrawIndexed(count, 1, i.BaseIndex()+first, int32(v.BaseIndex()), 0)
	r.stats.Draws++
	return nil
}

func (r *Renderer) checkAppend(a *framering.Append, ring *framering.Ring) error {
	switch {
	case a == nil:
		r.violations.Report("renderer.DrawTransient", "nil append")
		return fmt.Errorf("%w: nil append", ErrInvalidDraw)
	case a.Bytes() != nil:
		r.violations.Report("renderer.DrawTransient", "append still locked", "frame", a.Frame())
		return fmt.Errorf("%w: append still locked", ErrInvalidDraw)
	case a.Frame() != ring.Frame() || a.Buffer() != ring.Buffer():
		r.violations.Report("renderer.DrawTransient", "append from another frame or ring",
			"frame", a.Frame(), "current", ring.Frame())
		return fmt.Errorf("%w: append of frame %d in frame %d", ErrInvalidDraw, a.Frame(), ring.Frame())
	}
	return nil
}

// DrawArrays draws count vertices starting at first from the vertex
// buffer bound in slot 0 of States.
func (r *Renderer) DrawArrays(first, count uint32) error {
	if err := r.checkPhase("renderer.DrawArrays", PhaseInPass); err != nil {
		return err
	}
	if count == 0 {
		return nil
	}
	if err := r.bindPipeline(); err != nil {
		return r.skip(fmt.Errorf("renderer: pipeline: %w", err))
	}
	r.pass.Draw(count, 1, first, 0)
	r.stats.Draws++
	return nil
}

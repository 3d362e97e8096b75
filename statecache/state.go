// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package statecache

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"
)

// RenderState identifies one fixed-function render state.
type RenderState uint8

// Render states. Values are backend-neutral small integers whose meaning is
// agreed between the producer and the PipelineSource.
const (
	BlendEnable RenderState = iota
	BlendSrcFactor
	BlendDstFactor
	BlendOperation
	DepthTest
	DepthWrite
	DepthCompare
	CullMode
	FrontFace
	StencilEnable
	StencilCompare
	StencilPassOp
	ColorWriteMask
	Topology

	// StencilReference is applied per pass, not baked into the pipeline.
	StencilReference

	// BlendConstant is a packed 0xAABBGGRR color applied per pass.
	BlendConstant

	// NumRenderStates is the number of render states.
	NumRenderStates
)

var renderStateNames = [NumRenderStates]string{
	BlendEnable:      "BlendEnable",
	BlendSrcFactor:   "BlendSrcFactor",
	BlendDstFactor:   "BlendDstFactor",
	BlendOperation:   "BlendOperation",
	DepthTest:        "DepthTest",
	DepthWrite:       "DepthWrite",
	DepthCompare:     "DepthCompare",
	CullMode:         "CullMode",
	FrontFace:        "FrontFace",
	StencilEnable:    "StencilEnable",
	StencilCompare:   "StencilCompare",
	StencilPassOp:    "StencilPassOp",
	ColorWriteMask:   "ColorWriteMask",
	Topology:         "Topology",
	StencilReference: "StencilReference",
	BlendConstant:    "BlendConstant",
}

// String returns the string representation of the render state.
func (s RenderState) String() string {
	if s < NumRenderStates {
		return renderStateNames[s]
	}
	return fmt.Sprintf("RenderState(%d)", uint8(s))
}

// Dynamic reports whether s is set on the render pass rather than being
// part of the pipeline.
func (s RenderState) Dynamic() bool {
	return s == StencilReference || s == BlendConstant
}

// Fixed limits of the cache.
const (
	// MaxTextureStages is the number of texture stages tracked.
	MaxTextureStages = 16

	// MaxVertexSlots is the number of vertex buffer slots tracked.
	MaxVertexSlots = 8
)

// Viewport is a viewport transform.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is a scissor rectangle in pixels.
type Rect struct {
	X, Y, Width, Height uint32
}

// Target is the raw command surface state changes are applied to.
// Cache implements Target itself, so it can wrap another Cache or stand in
// for the raw surface.
type Target interface {
	SetRenderState(state RenderState, value uint32)
	SetTexture(stage uint32, group hal.BindGroup)
	SetViewport(v Viewport)
	SetScissor(r Rect)
	SetVertexBuffer(slot uint32, buffer hal.Buffer, offset uint64)
	SetIndexBuffer(buffer hal.Buffer, offset uint64)
}

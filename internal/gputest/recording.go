// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gputest

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// DrawCall is one recorded draw.
type DrawCall struct {
	Indexed       bool
	Count         uint32
	Instances     uint32
	First         uint32
	BaseVertex    int32
	FirstInstance uint32
}

// Calls counts render pass commands.
type Calls struct {
	Passes           int
	SetPipeline      int
	SetBindGroup     int
	SetVertexBuffer  int
	SetIndexBuffer   int
	SetViewport      int
	SetScissorRect   int
	SetBlendConstant int
	SetStencilRef    int
	Draws            []DrawCall

	// LastStencilRef is the value of the most recent SetStencilReference.
	LastStencilRef uint32
}

// RecordingDevice wraps a hal.Device so that every render pass it encodes
// counts its commands into Calls.
type RecordingDevice struct {
	hal.Device
	Calls Calls

	// MapCalls and UnmapCalls count buffer mapping traffic.
	MapCalls   int
	UnmapCalls int

	// DestroyedBuffers counts DestroyBuffer calls.
	DestroyedBuffers int

	// DestroyedPipelines lists DestroyRenderPipeline arguments in call order.
	DestroyedPipelines []hal.RenderPipeline

	// FailBeginEncoding, when set, is returned by BeginEncoding.
	FailBeginEncoding error

	// Discards counts DiscardEncoding calls.
	Discards int
}

// NewRecordingDevice wraps inner.
func NewRecordingDevice(inner hal.Device) *RecordingDevice {
	return &RecordingDevice{Device: inner}
}

// CreateCommandEncoder returns an encoder whose render passes record calls.
func (d *RecordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &recordingEncoder{CommandEncoder: enc, device: d, calls: &d.Calls}, nil
}

// MapBuffer forwards to the wrapped device and counts the call.
func (d *RecordingDevice) MapBuffer(buffer hal.Buffer, offset, size uint64) (hal.BufferMapping, error) {
	d.MapCalls++
	return d.Device.MapBuffer(buffer, offset, size)
}

// UnmapBuffer forwards to the wrapped device and counts the call.
func (d *RecordingDevice) UnmapBuffer(buffer hal.Buffer) error {
	d.UnmapCalls++
	return d.Device.UnmapBuffer(buffer)
}

// DestroyBuffer forwards to the wrapped device and counts the call.
func (d *RecordingDevice) DestroyBuffer(buffer hal.Buffer) {
	d.DestroyedBuffers++
	d.Device.DestroyBuffer(buffer)
}

// DestroyRenderPipeline forwards to the wrapped device and records the call.
func (d *RecordingDevice) DestroyRenderPipeline(pipeline hal.RenderPipeline) {
	d.DestroyedPipelines = append(d.DestroyedPipelines, pipeline)
	d.Device.DestroyRenderPipeline(pipeline)
}

type recordingEncoder struct {
	hal.CommandEncoder
	device *RecordingDevice
	calls  *Calls
}

func (e *recordingEncoder) BeginEncoding(label string) error {
	if e.device.FailBeginEncoding != nil {
		return e.device.FailBeginEncoding
	}
	return e.CommandEncoder.BeginEncoding(label)
}

func (e *recordingEncoder) DiscardEncoding() {
	e.device.Discards++
	e.CommandEncoder.DiscardEncoding()
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.calls.Passes++
	return &recordingPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), calls: e.calls}
}

type recordingPass struct {
	hal.RenderPassEncoder
	calls *Calls
}

func (p *recordingPass) SetPipeline(pipeline hal.RenderPipeline) {
	p.calls.SetPipeline++
	p.RenderPassEncoder.SetPipeline(pipeline)
}

func (p *recordingPass) SetBindGroup(index uint32, group hal.BindGroup, offsets []uint32) {
	p.calls.SetBindGroup++
	p.RenderPassEncoder.SetBindGroup(index, group, offsets)
}

func (p *recordingPass) SetVertexBuffer(slot uint32, buffer hal.Buffer, offset uint64) {
	p.calls.SetVertexBuffer++
	p.RenderPassEncoder.SetVertexBuffer(slot, buffer, offset)
}

func (p *recordingPass) SetIndexBuffer(buffer hal.Buffer, format gputypes.IndexFormat, offset uint64) {
	p.calls.SetIndexBuffer++
	p.RenderPassEncoder.SetIndexBuffer(buffer, format, offset)
}

func (p *recordingPass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.calls.SetViewport++
	p.RenderPassEncoder.SetViewport(x, y, width, height, minDepth, maxDepth)
}

func (p *recordingPass) SetScissorRect(x, y, width, height uint32) {
	p.calls.SetScissorRect++
	p.RenderPassEncoder.SetScissorRect(x, y, width, height)
}

func (p *recordingPass) SetBlendConstant(color *gputypes.Color) {
	p.calls.SetBlendConstant++
	p.RenderPassEncoder.SetBlendConstant(color)
}

func (p *recordingPass) SetStencilReference(reference uint32) {
	p.calls.SetStencilRef++
	p.calls.LastStencilRef = reference
	p.RenderPassEncoder.SetStencilReference(reference)
}

func (p *recordingPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.calls.Draws = append(p.calls.Draws, DrawCall{
		Count: vertexCount, Instances: instanceCount, First: firstVertex, FirstInstance: firstInstance,
	})
	p.RenderPassEncoder.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *recordingPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.calls.Draws = append(p.calls.Draws, DrawCall{
		Indexed: true, Count: indexCount, Instances: instanceCount, First: firstIndex,
		BaseVertex: baseVertex, FirstInstance: firstInstance,
	})
	p.RenderPassEncoder.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

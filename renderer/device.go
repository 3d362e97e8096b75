// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumem/internal/logx"
)

// DeviceListener is told about device loss.
//
// DeviceLost is called after every GPU resource is gone: handles, appends
// and declared vertex layouts must be dropped. DeviceRestored is called on
// the recreated resources; listeners re-upload geometry and re-declare
// layouts there.
type DeviceListener interface {
	DeviceLost()
	DeviceRestored(r *Renderer)
}

// AddListener registers l.
func (r *Renderer) AddListener(l DeviceListener) {
	r.listeners = append(r.listeners, l)
}

// RemoveListener unregisters l.
func (r *Renderer) RemoveListener(l DeviceListener) {
	for i, x := range r.listeners {
		if x == l {
			r.listeners = append(r.listeners[:i], r.listeners[i+1:]...)
			return
		}
	}
}

// OnDeviceLost tears down every GPU resource and enters PhaseLost.
// An open frame is abandoned. Calling it while lost is a no-op.
func (r *Renderer) OnDeviceLost() {
	if r.closed || r.phase == PhaseLost {
		return
	}
	frame := r.Frame()
	if r.encoder != nil {
		r.encoder.DiscardEncoding()
		r.encoder = nil
	}
	r.pass = nil
	r.target = passTarget{}

	r.destroyResources()
	r.phase = PhaseLost
	r.stats.DeviceLosses++

	logx.L().Info("renderer: device lost", slog.Uint64("frame", frame))
	for _, l := range r.listeners {
		l.DeviceLost()
	}
}

// OnDeviceRestored recreates storages, rings, state cache and pipeline
// memo on device and queue, then notifies listeners. It must follow
// OnDeviceLost. On error the renderer stays lost.
func (r *Renderer) OnDeviceRestored(device hal.Device, queue hal.Queue) error {
	if r.closed {
		return ErrClosed
	}
	if r.phase != PhaseLost {
		r.violations.Report("renderer.OnDeviceRestored", "device not lost", "phase", r.phase.String())
		return fmt.Errorf("%w: restore in %s", ErrWrongPhase, r.phase)
	}
	if err := r.createResources(device, queue); err != nil {
		logx.L().Warn("renderer: device restore failed", slog.String("error", err.Error()))
		return fmt.Errorf("renderer: restore: %w", err)
	}

	logx.L().Info("renderer: device restored",
		slog.Uint64("vertex_epoch", uint64(r.vertices.Epoch())),
		slog.Uint64("index_epoch", uint64(r.indices.Epoch())))
	for _, l := range r.listeners {
		l.DeviceRestored(r)
	}
	return nil
}

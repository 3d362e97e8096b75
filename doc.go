// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpumem manages GPU geometry memory for real-time renderers built
// on the gogpu HAL.
//
// # Overview
//
// gpumem sits between a renderer and the device. It packs many meshes
// into a few large vertex and index buffers, streams per-frame geometry
// through fenced ring buffers, and filters redundant state changes before
// they reach a render pass.
//
// # Packages
//
//   - arena: offset allocator with size-class free lists and stale-handle detection
//   - geometry: persistent vertex and 16-bit index storage on one GPU buffer each
//   - framering: per-frame transient rings paced by queue submission fences
//   - statecache: redundant render-state filtering and pipeline keys
//   - renderer: ties the above to one device, drives frames and handles device loss
//
// # Quick Start
//
//	r, err := renderer.New(device, queue)
//	if err != nil { ... }
//	defer r.Close()
//
//	vb, _ := r.Vertices().Alloc(uint32(len(verts)), 12)
//	m, _ := r.Vertices().Lock(vb)
//	copy(m.Bytes(), vertexBytes)
//	m.Unlock()
//
//	r.BeginFrame(ctx)
//	r.BeginPass(desc)
//	r.DrawStored(vb, ib, indexCount)
//	r.EndPass()
//	r.EndFrame()
//
// # Contract Violations
//
// Misuse such as a double free, a stale handle or an unlock without a lock
// never panics. The call becomes a no-op, returns an error where it has a
// result, and is reported to the handler installed with
// SetViolationHandler. Build with -tags gpumemcheck to log every
// violation at Error level.
//
// # Logging
//
// gpumem produces no log output by default. Call SetLogger to enable it.
package gpumem

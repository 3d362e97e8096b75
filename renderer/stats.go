// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"fmt"
	"strings"

	"github.com/gogpu/gpumem/framering"
	"github.com/gogpu/gpumem/geometry"
	"github.com/gogpu/gpumem/statecache"
)

// counters are the renderer's own event counts.
type counters struct {
	Frames        uint64
	Submissions   uint64
	Passes        uint64
	Draws         uint64
	SkippedDraws  uint64
	PipelineBinds uint64
	DeviceLosses  uint64
}

// PipelineStats describes the pipeline memo.
type PipelineStats struct {
	Cached    int
	Hits      uint64
	Misses    uint64
	Evictions uint64

	// Retired counts evicted pipelines waiting for the GPU to finish with
	// them before they are destroyed.
	Retired int
}

// Stats aggregates renderer, storage, ring and cache statistics.
type Stats struct {
	Phase Phase

	Frames        uint64
	Submissions   uint64
	Passes        uint64
	Draws         uint64
	SkippedDraws  uint64
	PipelineBinds uint64
	DeviceLosses  uint64

	Vertices          geometry.Stats
	Indices           geometry.Stats
	TransientVertices framering.Stats
	TransientIndices  framering.Stats
	States            statecache.Stats
	Pipelines         PipelineStats
}

// Stats returns a snapshot of all statistics.
func (r *Renderer) Stats() Stats {
	c := r.stats
	s := Stats{
		Phase:             r.phase,
		Frames:            c.Frames,
		Submissions:       c.Submissions,
		Passes:            c.Passes,
		Draws:             c.Draws,
		SkippedDraws:      c.SkippedDraws,
		PipelineBinds:     c.PipelineBinds,
		DeviceLosses:      c.DeviceLosses,
		Vertices:          r.vertices.Stats(),
		Indices:           r.indices.Stats(),
		TransientVertices: r.tvertices.Stats(),
		TransientIndices:  r.tindices.Stats(),
		States:            r.states.Stats(),
	}
	ps := r.pipelines.Stats()
	s.Pipelines = PipelineStats{
		Cached:    ps.Len,
		Hits:      ps.Hits,
		Misses:    ps.Misses,
		Evictions: ps.Evictions,
		Retired:   len(r.retired),
	}
	return s
}

// String returns a multi-line human-readable summary.
func (s Stats) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "renderer %s: %d frames, %d passes, %d draws (%d skipped), %d device losses\n",
		s.Phase, s.Frames, s.Passes, s.Draws, s.SkippedDraws, s.DeviceLosses)
	fmt.Fprintf(&b, "  %v\n", s.Vertices)
	fmt.Fprintf(&b, "  %v\n", s.Indices)
	fmt.Fprintf(&b, "  transient vertices %v\n", s.TransientVertices)
	fmt.Fprintf(&b, "  transient indices %v\n", s.TransientIndices)
	fmt.Fprintf(&b, "  %v\n", s.States)
	fmt.Fprintf(&b, "  pipelines: %d cached, %d retired, %d hits, %d misses, %d binds",
		s.Pipelines.Cached, s.Pipelines.Retired, s.Pipelines.Hits, s.Pipelines.Misses, s.PipelineBinds)
	return b.String()
}

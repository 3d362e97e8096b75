// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package statecache filters redundant GPU state changes.
//
// A Cache shadows the last value sent to a Target for every render state,
// texture stage, viewport, scissor and buffer binding. A change is
// forwarded when the cache is disabled, the shadow entry is invalid, or the
// value differs; otherwise it is dropped. Reset invalidates every entry, for
// use whenever the real device state may have changed behind the cache's
// back (a new render pass, device recreation).
//
// Cache is not safe for concurrent use.
package statecache

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumem/internal/contract"
)

// entry shadows one piece of state. set records that a value was ever
// requested; valid that the target is known to hold it.
type entry[T comparable] struct {
	set   bool
	valid bool
	value T
}

type vertexBinding struct {
	buffer hal.Buffer
	offset uint64
}

// Cache is a redundant-state filter in front of a Target.
type Cache struct {
	target  Target
	enabled bool

	states   [NumRenderStates]entry[uint32]
	textures [MaxTextureStages]entry[hal.BindGroup]
	viewport entry[Viewport]
	scissor  entry[Rect]
	vertex   [MaxVertexSlots]entry[vertexBinding]
	index    entry[vertexBinding]

	layouts []gputypes.VertexBufferLayout
	layout  LayoutID

	stats      Stats
	violations contract.Scope
}

var _ Target = (*Cache)(nil)

// New creates an enabled cache forwarding to target. target may be nil:
// changes are then recorded and applied by the next Bind.
func New(target Target) *Cache {
	return &Cache{target: target, enabled: true}
}

// SetViolationHandler routes this cache's contract violations to h in
// addition to the process-wide handler. A nil h removes it.
func (c *Cache) SetViolationHandler(h contract.Handler) {
	c.violations = contract.NewScope(h)
}

// Bind redirects forwarding to target. The new target's state is unknown,
// so the cache is reset and every value requested so far is re-applied to
// it. Bind(nil) detaches the cache; later changes are recorded only.
func (c *Cache) Bind(target Target) {
	c.target = target
	c.Reset()
	if target == nil {
		return
	}
	for s := range c.states {
		if replay(c, &c.states[s]) {
			target.SetRenderState(RenderState(s), c.states[s].value)
		}
	}
	for i := range c.textures {
		if replay(c, &c.textures[i]) {
			target.SetTexture(uint32(i), c.textures[i].value)
		}
	}
	if replay(c, &c.viewport) {
		target.SetViewport(c.viewport.value)
	}
	if replay(c, &c.scissor) {
		target.SetScissor(c.scissor.value)
	}
	for i := range c.vertex {
		if replay(c, &c.vertex[i]) {
			b := c.vertex[i].value
			target.SetVertexBuffer(uint32(i), b.buffer, b.offset)
		}
	}
	if replay(c, &c.index) {
		target.SetIndexBuffer(c.index.value.buffer, c.index.value.offset)
	}
}

// replay reports whether e holds a requested value to re-apply.
func replay[T comparable](c *Cache, e *entry[T]) bool {
	if !e.set {
		return false
	}
	c.stats.Misses++
	e.valid = c.enabled
	return true
}

// Target returns the current target.
func (c *Cache) Target() Target { return c.target }

// Enabled reports whether filtering is on.
func (c *Cache) Enabled() bool { return c.enabled }

// SetEnabled turns filtering on or off. Disabling is equivalent to Reset
// followed by pass-through of every call; re-enabling starts from an empty
// cache.
func (c *Cache) SetEnabled(enabled bool) {
	c.Reset()
	c.enabled = enabled
}

// Reset invalidates every shadow entry. The next change of each state is
// forwarded unconditionally. Requested values and declared layouts survive.
func (c *Cache) Reset() {
	for i := range c.states {
		c.states[i].valid = false
	}
	for i := range c.textures {
		c.textures[i].valid = false
	}
	for i := range c.vertex {
		c.vertex[i].valid = false
	}
	c.viewport.valid = false
	c.scissor.valid = false
	c.index.valid = false
	c.stats.Resets++
}

// admit records v in e and reports whether it must be forwarded now.
func admit[T comparable](c *Cache, e *entry[T], v T) bool {
	if c.enabled && e.valid && e.value == v {
		c.stats.Hits++
		return false
	}
	e.value = v
	e.set = true
	if c.target == nil {
		e.valid = false
		return false
	}
	c.stats.Misses++
	e.valid = c.enabled
	return true
}

// SetRenderState sets state to value.
func (c *Cache) SetRenderState(state RenderState, value uint32) {
	if state >= NumRenderStates {
		c.violations.Report("statecache.SetRenderState", "unknown render state", "state", uint8(state))
		return
	}
	if admit(c, &c.states[state], value) {
		c.target.SetRenderState(state, value)
	}
}

// RenderState returns the last value set for state. Unset states are 0.
func (c *Cache) RenderState(state RenderState) uint32 {
	if state >= NumRenderStates {
		return 0
	}
	return c.states[state].value
}

// SetTexture binds group at stage.
func (c *Cache) SetTexture(stage uint32, group hal.BindGroup) {
	if stage >= MaxTextureStages {
		c.violations.Report("statecache.SetTexture", "stage out of range", "stage", stage)
		return
	}
	if admit(c, &c.textures[stage], group) {
		c.target.SetTexture(stage, group)
	}
}

// SetViewport sets the viewport.
func (c *Cache) SetViewport(v Viewport) {
	if admit(c, &c.viewport, v) {
		c.target.SetViewport(v)
	}
}

// SetScissor sets the scissor rectangle.
func (c *Cache) SetScissor(r Rect) {
	if admit(c, &c.scissor, r) {
		c.target.SetScissor(r)
	}
}

// SetVertexBuffer binds buffer at offset to slot.
func (c *Cache) SetVertexBuffer(slot uint32, buffer hal.Buffer, offset uint64) {
	if slot >= MaxVertexSlots {
		c.violations.Report("statecache.SetVertexBuffer", "slot out of range", "slot", slot)
		return
	}
	if admit(c, &c.vertex[slot], vertexBinding{buffer, offset}) {
		c.target.SetVertexBuffer(slot, buffer, offset)
	}
}

// SetIndexBuffer binds a 16-bit index buffer at offset.
func (c *Cache) SetIndexBuffer(buffer hal.Buffer, offset uint64) {
	if admit(c, &c.index, vertexBinding{buffer, offset}) {
		c.target.SetIndexBuffer(buffer, offset)
	}
}

// Stats returns filter statistics.
func (c *Cache) Stats() Stats { return c.stats }

// Stats counts filtered and forwarded changes.
type Stats struct {
	// Hits counts changes dropped as redundant.
	Hits uint64

	// Misses counts changes forwarded to the target.
	Misses uint64

	// Resets counts Reset calls.
	Resets uint64
}

// HitRate returns Hits / (Hits + Misses), or 0 before any change.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// String returns a human-readable string of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("state cache: %d hits, %d misses (%.1f%%), %d resets",
		s.Hits, s.Misses, s.HitRate()*100, s.Resets)
}

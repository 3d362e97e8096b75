// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package statecache

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
)

// LayoutID names a declared vertex layout. The zero LayoutID is "no layout".
type LayoutID uint16

// DeclareLayout registers a vertex buffer layout and returns its id.
// Identical layouts may be declared more than once; each gets its own id.
func (c *Cache) DeclareLayout(layout gputypes.VertexBufferLayout) LayoutID {
	c.layouts = append(c.layouts, layout)
	return LayoutID(len(c.layouts))
}

// Layout returns the layout declared as id.
func (c *Cache) Layout(id LayoutID) (gputypes.VertexBufferLayout, bool) {
	if id == 0 || int(id) > len(c.layouts) {
		return gputypes.VertexBufferLayout{}, false
	}
	return c.layouts[id-1], true
}

// SetLayout selects the vertex layout of subsequent draws. The layout is
// part of the pipeline, so it is not forwarded to the target.
func (c *Cache) SetLayout(id LayoutID) {
	if id != 0 && int(id) > len(c.layouts) {
		c.violations.Report("statecache.SetLayout", "undeclared layout", "layout", uint16(id))
		return
	}
	c.layout = id
}

// CurrentLayout returns the selected layout id.
func (c *Cache) CurrentLayout() LayoutID { return c.layout }

// PipelineKey identifies the pipeline a draw needs: every non-dynamic
// render state plus the vertex layout. It is comparable and can be used as
// a map key.
type PipelineKey struct {
	States [NumRenderStates]uint32
	Layout LayoutID
}

// PipelineKey returns the key for the currently requested state.
// Values are tracked whether or not filtering is enabled.
func (c *Cache) PipelineKey() PipelineKey {
	var k PipelineKey
	for s := RenderState(0); s < NumRenderStates; s++ {
		if !s.Dynamic() {
			k.States[s] = c.states[s].value
		}
	}
	k.Layout = c.layout
	return k
}

// String returns the non-zero states of the key.
func (k PipelineKey) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "layout=%d", k.Layout)
	for s, v := range k.States {
		if v != 0 {
			fmt.Fprintf(&b, " %s=%d", RenderState(s), v)
		}
	}
	return b.String()
}

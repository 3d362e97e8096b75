// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package renderer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpumem/framering"
	"github.com/gogpu/gpumem/geometry"
	"github.com/gogpu/gpumem/internal/contract"
	"github.com/gogpu/gpumem/internal/gputest"
	"github.com/gogpu/gpumem/statecache"
)

func captureViolations(t *testing.T) *[]contract.Violation {
	t.Helper()
	var got []contract.Violation
	restore := contract.SetHandler(func(v contract.Violation) { got = append(got, v) })
	t.Cleanup(restore)
	return &got
}

type testRenderer struct {
	*Renderer
	device *gputest.RecordingDevice
	queue  *gputest.Queue
}

func newTestRenderer(t *testing.T, opts ...Option) testRenderer {
	t.Helper()
	device, queue := gputest.NoopDevice(t)
	rec := gputest.NewRecordingDevice(device)
	q := gputest.NewQueue(queue)
	q.AutoComplete = true

	base := []Option{
		WithVertexCapacity(64 << 10),
		WithIndexCapacity(16 << 10),
		WithTransientCapacity(16<<10, 4<<10),
	}
	r, err := New(rec, q, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(r.Close)
	return testRenderer{Renderer: r, device: rec, queue: q}
}

type mesh struct {
	vb, ib     geometry.Handle
	indexCount uint32
}

// uploadMesh stores a mesh of vertexCount 12-byte vertices and indexCount indices.
func uploadMesh(t *testing.T, r *Renderer, vertexCount, indexCount uint32) mesh {
	t.Helper()
	vb, err := r.Vertices().Alloc(vertexCount, 12)
	if err != nil {
		t.Fatalf("vertex Alloc failed: %v", err)
	}
	m, err := r.Vertices().Lock(vb)
	if err != nil {
		t.Fatalf("vertex Lock failed: %v", err)
	}
	for i := range m.Bytes() {
		m.Bytes()[i] = byte(i)
	}
	if err := m.Unlock(); err != nil {
		t.Fatal(err)
	}

	ib, err := r.Indices().AllocIndices(indexCount)
	if err != nil {
		t.Fatalf("index Alloc failed: %v", err)
	}
	im, err := r.Indices().Lock(ib)
	if err != nil {
		t.Fatal(err)
	}
	if err := im.Unlock(); err != nil {
		t.Fatal(err)
	}
	return mesh{vb: vb, ib: ib, indexCount: indexCount}
}

func beginPass(t *testing.T, r *Renderer) {
	t.Helper()
	if err := r.BeginFrame(context.Background()); err != nil {
		t.Fatalf("BeginFrame failed: %v", err)
	}
	if err := r.BeginPass(&hal.RenderPassDescriptor{Label: "test pass"}); err != nil {
		t.Fatalf("BeginPass failed: %v", err)
	}
}

func endFrame(t *testing.T, r *Renderer) {
	t.Helper()
	if err := r.EndPass(); err != nil {
		t.Fatalf("EndPass failed: %v", err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatalf("EndFrame failed: %v", err)
	}
}

// fakePipeline is a distinguishable render pipeline.
type fakePipeline struct{ id int }

func (*fakePipeline) Destroy() {}

func TestFrameLifecycle(t *testing.T) {
	r := newTestRenderer(t)

	if r.Phase() != PhaseIdle {
		t.Fatalf("initial phase = %v, want Idle", r.Phase())
	}
	if err := r.BeginFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if r.Phase() != PhaseInFrame {
		t.Errorf("phase = %v, want InFrame", r.Phase())
	}
	if err := r.BeginPass(&hal.RenderPassDescriptor{}); err != nil {
		t.Fatal(err)
	}
	if r.Phase() != PhaseInPass {
		t.Errorf("phase = %v, want InPass", r.Phase())
	}
	endFrame(t, r.Renderer)

	if r.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want Idle", r.Phase())
	}
	if r.queue.Submitted() != 1 {
		t.Errorf("submissions = %d, want 1", r.queue.Submitted())
	}
	f, armed := r.TransientVertices().Fence(0)
	if !armed || f.Index != 1 || f.Frame != 0 {
		t.Errorf("slot 0 fence = %+v (armed %v), want submission 1 of frame 0", f, armed)
	}
	if r.Frame() != 1 {
		t.Errorf("Frame() = %d, want 1", r.Frame())
	}
	if r.device.Calls.Passes != 1 {
		t.Errorf("passes = %d, want 1", r.device.Calls.Passes)
	}
}

func TestWrongPhase(t *testing.T) {
	violations := captureViolations(t)
	r := newTestRenderer(t)
	m := uploadMesh(t, r.Renderer, 4, 6)

	if err := r.DrawStored(m.vb, m.ib, 6); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("DrawStored while idle error = %v, want ErrWrongPhase", err)
	}
	if err := r.BeginPass(&hal.RenderPassDescriptor{}); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("BeginPass while idle error = %v, want ErrWrongPhase", err)
	}
	if err := r.EndFrame(); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("EndFrame while idle error = %v, want ErrWrongPhase", err)
	}
	if len(*violations) != 3 {
		t.Errorf("violations = %d, want 3", len(*violations))
	}
}

func TestDrawStoredSharesBindings(t *testing.T) {
	r := newTestRenderer(t)
	_ = uploadMesh(t, r.Renderer, 3, 3)
	m := uploadMesh(t, r.Renderer, 4, 6)

	beginPass(t, r.Renderer)
	for range 5 {
		if err := r.DrawStored(m.vb, m.ib, m.indexCount); err != nil {
			t.Fatalf("DrawStored failed: %v", err)
		}
	}
	endFrame(t, r.Renderer)

	calls := r.device.Calls
	if calls.SetVertexBuffer != 1 || calls.SetIndexBuffer != 1 {
		t.Errorf("vertex/index binds = %d/%d, want 1/1", calls.SetVertexBuffer, calls.SetIndexBuffer)
	}
	if len(calls.Draws) != 5 {
		t.Fatalf("draws = %d, want 5", len(calls.Draws))
	}
	d := calls.Draws[0]
	wantBase := int32(r.Vertices().BaseVertex(m.vb))
	wantFirst := r.Indices().BaseIndex(m.ib)
	if !d.Indexed || d.Count != 6 || d.BaseVertex != wantBase || d.First != wantFirst {
		t.Errorf("draw = %+v, want indexed 6 from %d base %d", d, wantFirst, wantBase)
	}
	if wantBase == 0 {
		t.Error("second mesh unexpectedly at base vertex 0")
	}
}

func TestDrawStoredInvalid(t *testing.T) {
	violations := captureViolations(t)
	r := newTestRenderer(t)
	m := uploadMesh(t, r.Renderer, 4, 6)
	r.Vertices().Free(m.vb)

	beginPass(t, r.Renderer)
	if err := r.DrawStored(m.vb, m.ib, 6); !errors.Is(err, geometry.ErrInvalidHandle) {
		t.Errorf("DrawStored(freed) error = %v, want ErrInvalidHandle", err)
	}
	m2 := uploadMesh(t, r.Renderer, 4, 6)
	if err := r.DrawStored(m2.vb, m2.ib, 7); !errors.Is(err, ErrInvalidDraw) {
		t.Errorf("DrawStored(too many indices) error = %v, want ErrInvalidDraw", err)
	}
	endFrame(t, r.Renderer)

	if got := r.Stats().SkippedDraws; got != 2 {
		t.Errorf("SkippedDraws = %d, want 2", got)
	}
	if len(r.device.Calls.Draws) != 0 {
		t.Errorf("invalid draws reached the pass")
	}
	if len(*violations) != 2 {
		t.Errorf("violations = %d, want 2", len(*violations))
	}
}

func TestStateFilteringThroughPass(t *testing.T) {
	tests := []struct {
		name    string
		caching bool
		want    int
	}{
		{"cached", true, 1},
		{"pass-through", false, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRenderer(t, WithStateCaching(tt.caching))
			beginPass(t, r.Renderer)
			for range 5 {
				r.States().SetRenderState(statecache.StencilReference, 7)
			}
			endFrame(t, r.Renderer)

			if got := r.device.Calls.SetStencilRef; got != tt.want {
				t.Errorf("SetStencilReference calls = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStateSetBeforePassIsApplied(t *testing.T) {
	r := newTestRenderer(t)
	r.States().SetRenderState(statecache.StencilReference, 9)
	r.States().SetViewport(statecache.Viewport{Width: 320, Height: 240, MaxDepth: 1})

	beginPass(t, r.Renderer)
	r.States().SetRenderState(statecache.StencilReference, 9)
	endFrame(t, r.Renderer)

	calls := r.device.Calls
	if calls.SetStencilRef != 1 || calls.LastStencilRef != 9 || calls.SetViewport != 1 {
		t.Errorf("stencil calls %d (last %d), viewport calls %d; want 1 (9), 1",
			calls.SetStencilRef, calls.LastStencilRef, calls.SetViewport)
	}
}

func TestPipelineMemo(t *testing.T) {
	created := 0
	source := PipelineSourceFunc(func(_ hal.Device, _ statecache.PipelineKey, _ gputypes.VertexBufferLayout) (hal.RenderPipeline, error) {
		created++
		return &fakePipeline{id: created}, nil
	})
	r := newTestRenderer(t, WithPipelineSource(source))
	m := uploadMesh(t, r.Renderer, 4, 6)

	beginPass(t, r.Renderer)
	for _, depth := range []uint32{1, 1, 0, 1} {
		r.States().SetRenderState(statecache.DepthTest, depth)
		if err := r.DrawStored(m.vb, m.ib, 6); err != nil {
			t.Fatal(err)
		}
	}
	endFrame(t, r.Renderer)

	if created != 2 {
		t.Errorf("pipelines created = %d, want 2", created)
	}
	if got := r.device.Calls.SetPipeline; got != 3 {
		t.Errorf("SetPipeline calls = %d, want 3", got)
	}
	st := r.Stats().Pipelines
	if st.Cached != 2 || st.Hits != 2 {
		t.Errorf("pipeline stats = %+v, want 2 cached, 2 hits", st)
	}
}

func TestPipelineErrorSkipsDraw(t *testing.T) {
	errNoShader := errors.New("no shader")
	source := PipelineSourceFunc(func(hal.Device, statecache.PipelineKey, gputypes.VertexBufferLayout) (hal.RenderPipeline, error) {
		return nil, errNoShader
	})
	r := newTestRenderer(t, WithPipelineSource(source))

	beginPass(t, r.Renderer)
	if err := r.DrawArrays(0, 3); !errors.Is(err, errNoShader) {
		t.Errorf("DrawArrays error = %v, want errNoShader", err)
	}
	endFrame(t, r.Renderer)

	if len(r.device.Calls.Draws) != 0 || r.Stats().SkippedDraws != 1 {
		t.Errorf("draws = %d, skipped = %d; want 0, 1", len(r.device.Calls.Draws), r.Stats().SkippedDraws)
	}
}

func TestEvictedPipelineOutlivesPass(t *testing.T) {
	created := 0
	source := PipelineSourceFunc(func(hal.Device, statecache.PipelineKey, gputypes.VertexBufferLayout) (hal.RenderPipeline, error) {
		created++
		return &fakePipeline{id: created}, nil
	})
	r := newTestRenderer(t, WithPipelineSource(source), WithPipelineCacheSize(1))
	r.queue.AutoComplete = false
	m := uploadMesh(t, r.Renderer, 4, 6)

	beginPass(t, r.Renderer)
	for _, depth := range []uint32{1, 0} {
		r.States().SetRenderState(statecache.DepthTest, depth)
		if err := r.DrawStored(m.vb, m.ib, 6); err != nil {
			t.Fatal(err)
		}
	}
	if n := len(r.device.DestroyedPipelines); n != 0 {
		t.Fatalf("pipelines destroyed inside the pass = %d, want 0", n)
	}
	if st := r.Stats().Pipelines; st.Evictions != 1 || st.Retired != 1 {
		t.Errorf("pipeline stats = %+v, want 1 eviction, 1 retired", st)
	}
	endFrame(t, r.Renderer)

	if n := len(r.device.DestroyedPipelines); n != 0 {
		t.Fatalf("pipelines destroyed before the frame completed = %d, want 0", n)
	}

	r.queue.CompleteAll()
	if err := r.BeginFrame(context.Background()); err != nil {
		t.Fatal(err)
	}
	if n := len(r.device.DestroyedPipelines); n != 1 {
		t.Fatalf("pipelines destroyed after completion = %d, want 1", n)
	}
	if p, ok := r.device.DestroyedPipelines[0].(*fakePipeline); !ok || p.id != 1 {
		t.Errorf("destroyed pipeline = %v, want pipeline 1", r.device.DestroyedPipelines[0])
	}
	if got := r.Stats().Pipelines.Retired; got != 0 {
		t.Errorf("retired after release = %d, want 0", got)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestCloseReleasesRetiredPipelines(t *testing.T) {
	created := 0
	source := PipelineSourceFunc(func(hal.Device, statecache.PipelineKey, gputypes.VertexBufferLayout) (hal.RenderPipeline, error) {
		created++
		return &fakePipeline{id: created}, nil
	})
	r := newTestRenderer(t, WithPipelineSource(source), WithPipelineCacheSize(1))
	r.queue.AutoComplete = false

	beginPass(t, r.Renderer)
	for _, depth := range []uint32{1, 0} {
		r.States().SetRenderState(statecache.DepthTest, depth)
		if err := r.DrawArrays(0, 3); err != nil {
			t.Fatal(err)
		}
	}
	endFrame(t, r.Renderer)
	if n := len(r.device.DestroyedPipelines); n != 0 {
		t.Fatalf("pipelines destroyed before Close = %d, want 0", n)
	}

	r.Close()
	// The retired pipeline plus the one still cached.
	if n := len(r.device.DestroyedPipelines); n != 2 {
		t.Errorf("pipelines destroyed by Close = %d, want 2", n)
	}
}

func TestDeviceLossReleasesRetiredPipelines(t *testing.T) {
	created := 0
	source := PipelineSourceFunc(func(hal.Device, statecache.PipelineKey, gputypes.VertexBufferLayout) (hal.RenderPipeline, error) {
		created++
		return &fakePipeline{id: created}, nil
	})
	r := newTestRenderer(t, WithPipelineSource(source), WithPipelineCacheSize(1))
	r.queue.AutoComplete = false

	beginPass(t, r.Renderer)
	for _, depth := range []uint32{1, 0} {
		r.States().SetRenderState(statecache.DepthTest, depth)
		if err := r.DrawArrays(0, 3); err != nil {
			t.Fatal(err)
		}
	}
	r.OnDeviceLost()

	if n := len(r.device.DestroyedPipelines); n != 2 {
		t.Errorf("pipelines destroyed on device loss = %d, want 2", n)
	}
	if got := len(r.retired); got != 0 {
		t.Errorf("retired after device loss = %d, want 0", got)
	}
}

func TestBeginEncodingFailureDiscardsEncoder(t *testing.T) {
	r := newTestRenderer(t)
	r.device.FailBeginEncoding = errors.New("encoder lost")

	if err := r.BeginFrame(context.Background()); !errors.Is(err, r.device.FailBeginEncoding) {
		t.Fatalf("BeginFrame error = %v, want encoder failure", err)
	}
	if r.device.Discards != 1 {
		t.Errorf("DiscardEncoding calls = %d, want 1", r.device.Discards)
	}
	if r.Phase() != PhaseIdle {
		t.Errorf("phase = %v, want Idle", r.Phase())
	}

	r.device.FailBeginEncoding = nil
	beginPass(t, r.Renderer)
	endFrame(t, r.Renderer)
	if r.device.Discards != 1 {
		t.Errorf("DiscardEncoding calls after retry = %d, want 1", r.device.Discards)
	}
}

func TestRendererViolationHandler(t *testing.T) {
	global := captureViolations(t)
	var own []contract.Violation
	r := newTestRenderer(t, WithViolationHandler(func(v contract.Violation) { own = append(own, v) }))
	other := newTestRenderer(t)

	if err := r.EndPass(); !errors.Is(err, ErrWrongPhase) {
		t.Fatalf("EndPass error = %v, want ErrWrongPhase", err)
	}
	r.Vertices().Free(geometry.Invalid)
	other.Indices().Free(geometry.Invalid)

	if len(own) != 2 {
		t.Fatalf("own handler got %d violations, want 2: %+v", len(own), own)
	}
	if own[0].Op != "renderer.EndPass" || own[1].Op != "geometry.Free" {
		t.Errorf("own ops = %q, %q; want renderer.EndPass, geometry.Free", own[0].Op, own[1].Op)
	}
	if len(*global) != 3 {
		t.Errorf("global handler got %d violations, want 3", len(*global))
	}
}

func TestDrawTransient(t *testing.T) {
	violations := captureViolations(t)
	r := newTestRenderer(t)
	beginPass(t, r.Renderer)

	// Pad the vertex ring so the append's base vertex is non-zero.
	pad, err := r.TransientVertices().LockAppend(5, 4)
	if err != nil {
		t.Fatal(err)
	}
	_ = pad.Unlock()

	v, err := r.TransientVertices().LockAppend(3, 12)
	if err != nil {
		t.Fatal(err)
	}
	if err := r.DrawTransient(v, nil); !errors.Is(err, ErrInvalidDraw) {
		t.Errorf("DrawTransient(nil indices) error = %v, want ErrInvalidDraw", err)
	}
	if err := v.Unlock(); err != nil {
		t.Fatal(err)
	}
	i, err := r.TransientIndices().LockIndices(3)
	if err != nil {
		t.Fatal(err)
	}
	copy(i.Bytes(), []byte{0, 0, 1, 0, 2, 0})
	if err := r.DrawTransient(v, i); !errors.Is(err, ErrInvalidDraw) {
		t.Errorf("DrawTransient(locked indices) error = %v, want ErrInvalidDraw", err)
	}
	if err := i.Unlock(); err != nil {
		t.Fatal(err)
	}

	if err := r.DrawTransient(v, i); err != nil {
		t.Fatalf("DrawTransient failed: %v", err)
	}
	if err := r.DrawTransientRange(v, i, 1, 3); !errors.Is(err, ErrInvalidDraw) {
		t.Errorf("DrawTransientRange past end error = %v, want ErrInvalidDraw", err)
	}
	endFrame(t, r.Renderer)

	draws := r.device.Calls.Draws
	if len(draws) != 1 {
		t.Fatalf("draws = %d, want 1", len(draws))
	}
	if d := draws[0]; d.BaseVertex != int32(v.BaseIndex()) || d.First != i.BaseIndex() || d.Count != 3 {
		t.Errorf("draw = %+v, want base %d first %d count 3", d, v.BaseIndex(), i.BaseIndex())
	}
	if v.BaseIndex() != 2 {
		t.Errorf("vertex append base = %d, want 2 (offset 24 / stride 12)", v.BaseIndex())
	}
	if len(*violations) != 3 {
		t.Errorf("violations = %d, want 3", len(*violations))
	}

	// Appends of a finished frame are rejected.
	beginPass(t, r.Renderer)
	if err := r.DrawTransient(v, i); !errors.Is(err, ErrInvalidDraw) {
		t.Errorf("DrawTransient(stale frame) error = %v, want ErrInvalidDraw", err)
	}
	endFrame(t, r.Renderer)
}

func TestFenceTimeoutThroughRenderer(t *testing.T) {
	r := newTestRenderer(t, WithFenceWait(framering.WaitPolicy{MaxPolls: 3, Timeout: -1}))
	r.queue.AutoComplete = false

	for range 2 {
		beginPass(t, r.Renderer)
		endFrame(t, r.Renderer)
	}
	if err := r.BeginFrame(context.Background()); !errors.Is(err, framering.ErrFenceTimeout) {
		t.Fatalf("BeginFrame error = %v, want ErrFenceTimeout", err)
	}
	if r.Phase() != PhaseIdle {
		t.Errorf("phase after timeout = %v, want Idle", r.Phase())
	}

	r.queue.CompleteAll()
	if err := r.BeginFrame(context.Background()); err != nil {
		t.Fatalf("BeginFrame retry failed: %v", err)
	}
	if err := r.EndFrame(); err != nil {
		t.Fatal(err)
	}
}

func TestEndFrameClosesOpenPass(t *testing.T) {
	violations := captureViolations(t)
	r := newTestRenderer(t)

	beginPass(t, r.Renderer)
	if err := r.EndFrame(); err != nil {
		t.Fatalf("EndFrame failed: %v", err)
	}
	if r.Phase() != PhaseIdle || len(*violations) != 1 {
		t.Errorf("phase = %v, violations = %d; want Idle, 1", r.Phase(), len(*violations))
	}
}

type recordingListener struct {
	lost     int
	restored int
	last     *Renderer
}

func (l *recordingListener) DeviceLost() { l.lost++ }

func (l *recordingListener) DeviceRestored(r *Renderer) {
	l.restored++
	l.last = r
}

func TestDeviceLossAndRestore(t *testing.T) {
	_ = captureViolations(t)
	listener := &recordingListener{}
	r := newTestRenderer(t, WithDeviceListener(listener))
	m := uploadMesh(t, r.Renderer, 4, 6)
	oldEpoch := r.Vertices().Epoch()

	beginPass(t, r.Renderer)
	r.OnDeviceLost()
	r.OnDeviceLost()

	if r.Phase() != PhaseLost || listener.lost != 1 {
		t.Fatalf("phase = %v, lost notifications = %d; want Lost, 1", r.Phase(), listener.lost)
	}
	if err := r.BeginFrame(context.Background()); !errors.Is(err, ErrDeviceLost) {
		t.Errorf("BeginFrame while lost error = %v, want ErrDeviceLost", err)
	}

	device, queue := gputest.NoopDevice(t)
	if err := r.OnDeviceRestored(device, queue); err != nil {
		t.Fatalf("OnDeviceRestored failed: %v", err)
	}
	if r.Phase() != PhaseIdle || listener.restored != 1 || listener.last != r.Renderer {
		t.Fatalf("phase = %v, restored notifications = %d", r.Phase(), listener.restored)
	}
	if r.Device() != device || r.Vertices().Epoch() == oldEpoch {
		t.Error("resources were not recreated on the new device")
	}

	// Pre-loss handles are rejected by the new storages.
	if r.Vertices().Live(m.vb) || r.Indices().Live(m.ib) {
		t.Error("handle from before the loss is live after restore")
	}
	beginPass(t, r.Renderer)
	if err := r.DrawStored(m.vb, m.ib, 6); !errors.Is(err, ErrInvalidDraw) {
		t.Errorf("DrawStored(stale) error = %v, want ErrInvalidDraw", err)
	}
	endFrame(t, r.Renderer)

	if err := r.OnDeviceRestored(device, queue); !errors.Is(err, ErrWrongPhase) {
		t.Errorf("second OnDeviceRestored error = %v, want ErrWrongPhase", err)
	}
	if r.Stats().DeviceLosses != 1 {
		t.Errorf("DeviceLosses = %d, want 1", r.Stats().DeviceLosses)
	}
}

func TestRemoveListener(t *testing.T) {
	a, b := &recordingListener{}, &recordingListener{}
	r := newTestRenderer(t)
	r.AddListener(a)
	r.AddListener(b)
	r.RemoveListener(a)

	r.OnDeviceLost()
	if a.lost != 0 || b.lost != 1 {
		t.Errorf("lost notifications a=%d b=%d, want 0, 1", a.lost, b.lost)
	}
}

// halProvider exposes HAL objects through gpucontext.DeviceProvider.
type halProvider struct {
	device hal.Device
	queue  hal.Queue
	viaHal bool
}

func (p *halProvider) Device() gpucontext.Device {
	if p.viaHal {
		return nil
	}
	return p.device
}

func (p *halProvider) Queue() gpucontext.Queue {
	if p.viaHal {
		return nil
	}
	return p.queue
}

func (p *halProvider) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (p *halProvider) Adapter() gpucontext.Adapter           { return nil }
func (p *halProvider) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: "noop", Type: gpucontext.AdapterTypeSoftware}
}

// halAccessProvider adds the HalDevice/HalQueue accessors.
type halAccessProvider struct{ halProvider }

func (p *halAccessProvider) HalDevice() any { return p.device }
func (p *halAccessProvider) HalQueue() any  { return p.queue }

func TestNewFromProvider(t *testing.T) {
	device, queue := gputest.NoopDevice(t)
	small := []Option{WithVertexCapacity(1024), WithIndexCapacity(1024), WithTransientCapacity(1024, 1024)}

	if _, err := NewFromProvider(nil); !errors.Is(err, ErrNilProvider) {
		t.Errorf("nil provider error = %v, want ErrNilProvider", err)
	}

	r, err := NewFromProvider(&halProvider{device: device, queue: queue}, small...)
	if err != nil {
		t.Fatalf("NewFromProvider(Device/Queue) failed: %v", err)
	}
	r.Close()

	r, err = NewFromProvider(&halAccessProvider{halProvider{device: device, queue: queue, viaHal: true}}, small...)
	if err != nil {
		t.Fatalf("NewFromProvider(HalDevice/HalQueue) failed: %v", err)
	}
	if r.Device() != device {
		t.Error("renderer does not use the provider's device")
	}
	r.Close()

	if _, err := NewFromProvider(&halProvider{viaHal: true}); err == nil {
		t.Error("provider without HAL objects accepted")
	}
}

func TestNewInvalidOptions(t *testing.T) {
	device, queue := gputest.NoopDevice(t)
	rec := gputest.NewRecordingDevice(device)

	if _, err := New(rec, queue, WithFramesInFlight(framering.MaxFrames+1)); !errors.Is(err, framering.ErrInvalidConfig) {
		t.Errorf("New error = %v, want framering.ErrInvalidConfig", err)
	}
	// Storages created before the failing ring are released.
	if rec.DestroyedBuffers != 2 {
		t.Errorf("DestroyBuffer calls = %d, want 2", rec.DestroyedBuffers)
	}
}

func TestClose(t *testing.T) {
	r := newTestRenderer(t, WithFramesInFlight(3))
	beginPass(t, r.Renderer)

	r.Close()
	r.Close()
	// Two storages plus three slots per ring.
	if got := r.device.DestroyedBuffers; got != 8 {
		t.Errorf("DestroyBuffer calls = %d, want 8", got)
	}
	if err := r.BeginFrame(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("BeginFrame after Close error = %v, want ErrClosed", err)
	}
}

func TestPackColor(t *testing.T) {
	c := gputypes.Color{R: 1, G: 0.5, B: 0, A: 1}
	v := PackColor(c)
	if v != 0xff0080ff {
		t.Errorf("PackColor = %#x, want 0xff0080ff", v)
	}
	got := unpackColor(v)
	if got.R != 1 || got.B != 0 || got.A != 1 || got.G < 0.49 || got.G > 0.51 {
		t.Errorf("unpackColor = %+v", got)
	}
}

func TestStatsString(t *testing.T) {
	r := newTestRenderer(t)
	beginPass(t, r.Renderer)
	endFrame(t, r.Renderer)

	s := r.Stats().String()
	for _, want := range []string{"renderer Idle", "1 frames", "vertex storage", "transient indices"} {
		if !strings.Contains(s, want) {
			t.Errorf("Stats().String() missing %q:\n%s", want, s)
		}
	}
}

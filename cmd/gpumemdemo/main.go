// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command gpumemdemo drives the gpumem renderer on the headless noop
// backend and prints memory and state statistics.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpumem"
	"github.com/gogpu/gpumem/framering"
	"github.com/gogpu/gpumem/geometry"
	"github.com/gogpu/gpumem/renderer"
	"github.com/gogpu/gpumem/statecache"
)

func main() {
	var (
		frames   = flag.Int("frames", 120, "number of frames to render")
		meshes   = flag.Int("meshes", 64, "number of stored meshes")
		sprites  = flag.Int("sprites", 256, "transient quads per frame")
		inFlight = flag.Int("inflight", framering.DefaultFrames, "frames in flight")
		mapped   = flag.Bool("mapped", false, "upload through mapped buffers instead of staging")
		loseAt   = flag.Int("lose-at", -1, "simulate device loss before this frame")
		verbose  = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *verbose {
		gpumem.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}
	restore := gpumem.SetViolationHandler(func(v gpumem.Violation) {
		log.Printf("contract violation: %v %v", v, v.Attrs)
	})
	defer restore()

	provider, err := openHeadless()
	if err != nil {
		log.Fatalf("Failed to open noop device: %v", err)
	}
	defer provider.Close()

	upload := geometry.UploadStaged
	if *mapped {
		upload = geometry.UploadMapped
	}
	scene := &scene{meshes: *meshes}
	r, err := renderer.NewFromProvider(provider,
		renderer.WithFramesInFlight(*inFlight),
		renderer.WithUploadMode(upload),
		renderer.WithPipelineSource(renderer.PipelineSourceFunc(newPipeline)),
		renderer.WithDeviceListener(scene),
	)
	if err != nil {
		log.Fatalf("Failed to create renderer: %v", err)
	}
	defer r.Close()

	if err := scene.upload(r); err != nil {
		log.Fatalf("Failed to upload meshes: %v", err)
	}

	ctx := context.Background()
	for f := range *frames {
		if f == *loseAt {
			r.OnDeviceLost()
			if err := provider.reopen(); err != nil {
				log.Fatalf("Failed to reopen device: %v", err)
			}
			if err := r.OnDeviceRestored(provider.device, provider.queue); err != nil {
				log.Fatalf("Failed to restore renderer: %v", err)
			}
		}
		if err := renderFrame(ctx, r, scene, *sprites, f); err != nil {
			log.Fatalf("Frame %d: %v", f, err)
		}
	}

	fmt.Println(r.Stats())
	log.Printf("Rendered %d frames on %s, %d contract violations", *frames, provider.info.Name, gpumem.Violations())
}

// vertexStride is the size of a position-only vertex.
const vertexStride = 12

// quadLayout describes the demo's vertex format.
var quadLayout = gputypes.VertexBufferLayout{
	ArrayStride: vertexStride,
	StepMode:    gputypes.VertexStepModeVertex,
	Attributes: []gputypes.VertexAttribute{
		{Format: gputypes.VertexFormatFloat32x3, Offset: 0, ShaderLocation: 0},
	},
}

// scene owns the stored meshes and re-uploads them after device loss.
type scene struct {
	meshes int
	layout statecache.LayoutID
	quads  []mesh
}

type mesh struct {
	vertices, indices geometry.Handle
}

func (s *scene) DeviceLost() {
	s.quads = nil
	s.layout = 0
}

func (s *scene) DeviceRestored(r *renderer.Renderer) {
	if err := s.upload(r); err != nil {
		log.Printf("Re-upload after device loss failed: %v", err)
	}
}

// upload stores s.meshes polygons with 3 to 10 vertices each.
func (s *scene) upload(r *renderer.Renderer) error {
	s.layout = r.States().DeclareLayout(quadLayout)
	s.quads = s.quads[:0]
	for i := range s.meshes {
		sides := 3 + i%8
		vb, err := r.Vertices().Alloc(uint32(sides), vertexStride)
		if err != nil {
			return err
		}
		m, err := r.Vertices().Lock(vb)
		if err != nil {
			return err
		}
		writePolygon(m.Bytes(), sides, float32(i))
		if err := m.Unlock(); err != nil {
			return err
		}

		ib, err := r.Indices().AllocIndices(uint32(3 * (sides - 2)))
		if err != nil {
			return err
		}
		im, err := r.Indices().Lock(ib)
		if err != nil {
			return err
		}
		writeFan(im.Bytes(), sides)
		if err := im.Unlock(); err != nil {
			return err
		}
		s.quads = append(s.quads, mesh{vertices: vb, indices: ib})
	}
	return nil
}

func renderFrame(ctx context.Context, r *renderer.Renderer, s *scene, sprites, frame int) error {
	if err := r.BeginFrame(ctx); err != nil {
		return err
	}
	if err := r.BeginPass(&hal.RenderPassDescriptor{Label: "main"}); err != nil {
		return err
	}

	st := r.States()
	st.SetLayout(s.layout)
	st.SetViewport(statecache.Viewport{Width: 1280, Height: 720, MaxDepth: 1})
	st.SetRenderState(statecache.DepthTest, 1)
	st.SetRenderState(statecache.DepthWrite, 1)
	st.SetRenderState(statecache.BlendEnable, 0)
	for i, q := range s.quads {
		st.SetRenderState(statecache.StencilReference, uint32(i%4))
		if err := r.DrawStored(q.vertices, q.indices, q.indices.Count()); err != nil {
			return err
		}
	}

	if sprites > 0 {
		st.SetRenderState(statecache.DepthWrite, 0)
		st.SetRenderState(statecache.BlendEnable, 1)
		st.SetRenderState(statecache.BlendConstant, renderer.PackColor(gputypes.Color{R: 1, G: 1, B: 1, A: 0.5}))
		v, err := r.TransientVertices().LockAppend(uint32(4*sprites), vertexStride)
		if err != nil {
			return err
		}
		for i := range sprites {
			writeQuad(v.Bytes()[i*4*vertexStride:], float32(i), float32(frame))
		}
		if err := v.Unlock(); err != nil {
			return err
		}
		idx, err := r.TransientIndices().LockIndices(uint32(6 * sprites))
		if err != nil {
			return err
		}
		for i := range sprites {
			base := uint16(4 * i)
			for j, k := range []uint16{0, 1, 2, 0, 2, 3} {
				binary.LittleEndian.PutUint16(idx.Bytes()[(6*i+j)*2:], base+k)
			}
		}
		if err := idx.Unlock(); err != nil {
			return err
		}
		if err := r.DrawTransient(v, idx); err != nil {
			return err
		}
	}

	if err := r.EndPass(); err != nil {
		return err
	}
	return r.EndFrame()
}

func putVertex(b []byte, x, y, z float32) {
	binary.LittleEndian.PutUint32(b[0:], math.Float32bits(x))
	binary.LittleEndian.PutUint32(b[4:], math.Float32bits(y))
	binary.LittleEndian.PutUint32(b[8:], math.Float32bits(z))
}

func writePolygon(b []byte, sides int, depth float32) {
	for i := range sides {
		a := 2 * math.Pi * float64(i) / float64(sides)
		putVertex(b[i*vertexStride:], float32(math.Cos(a)), float32(math.Sin(a)), depth)
	}
}

func writeFan(b []byte, sides int) {
	n := 0
	for i := 1; i < sides-1; i++ {
		for _, v := range []int{0, i, i + 1} {
			binary.LittleEndian.PutUint16(b[n*2:], uint16(v))
			n++
		}
	}
}

func writeQuad(b []byte, i, frame float32) {
	x := float32(math.Mod(float64(i*17+frame), 1280))
	y := float32(math.Mod(float64(i*29), 720))
	putVertex(b[0:], x, y, 0)
	putVertex(b[vertexStride:], x+8, y, 0)
	putVertex(b[2*vertexStride:], x+8, y+8, 0)
	putVertex(b[3*vertexStride:], x, y+8, 0)
}

// demoPipeline stands in for a compiled render pipeline.
type demoPipeline struct {
	key statecache.PipelineKey
}

func (*demoPipeline) Destroy() {}

// newPipeline would compile shaders for key; the noop backend has none.
func newPipeline(_ hal.Device, key statecache.PipelineKey, layout gputypes.VertexBufferLayout) (hal.RenderPipeline, error) {
	if layout.ArrayStride != vertexStride {
		return nil, fmt.Errorf("unsupported vertex stride %d", layout.ArrayStride)
	}
	return &demoPipeline{key: key}, nil
}

// headless implements gpucontext.DeviceProvider over the noop backend.
type headless struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue
	info     gputypes.AdapterInfo
}

var _ gpucontext.DeviceProvider = (*headless)(nil)

func openHeadless() (*headless, error) {
	h := &headless{}
	if err := h.reopen(); err != nil {
		return nil, err
	}
	return h, nil
}

// reopen replaces the device, as a host would after device loss.
func (h *headless) reopen() error {
	h.Close()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return fmt.Errorf("no adapters")
	}
	od, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return err
	}
	h.instance = instance
	h.device = od.Device
	h.queue = od.Queue
	h.info = adapters[0].Info
	return nil
}

func (h *headless) Close() {
	if h.device != nil {
		h.device.Destroy()
		h.device = nil
	}
	if h.instance != nil {
		h.instance.Destroy()
		h.instance = nil
	}
}

func (h *headless) HalDevice() any                        { return h.device }
func (h *headless) HalQueue() any                         { return h.queue }
func (h *headless) Device() gpucontext.Device             { return h.device }
func (h *headless) Queue() gpucontext.Queue               { return h.queue }
func (h *headless) SurfaceFormat() gputypes.TextureFormat { return gputypes.TextureFormatUndefined }
func (h *headless) Adapter() gpucontext.Adapter           { return nil }

func (h *headless) AdapterInfo() gpucontext.AdapterInfo {
	return gpucontext.AdapterInfo{Name: h.info.Name, Type: gpucontext.AdapterTypeSoftware}
}

package engine

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer/shader"
)

type fakeTexture struct {
	desc compositor.TextureDescriptor
}

func (t *fakeTexture) Name() common.IdString                    { return t.desc.Name }
func (t *fakeTexture) Descriptor() compositor.TextureDescriptor { return t.desc }

type fakeBuffer struct {
	desc compositor.BufferDescriptor
}

func (b *fakeBuffer) Name() common.IdString                   { return b.desc.Name }
func (b *fakeBuffer) Descriptor() compositor.BufferDescriptor { return b.desc }

func newWindowTexture(name string, width, height uint32) *fakeTexture {
	return &fakeTexture{desc: compositor.TextureDescriptor{
		Name:          common.NewIdString(name),
		Width:         width,
		Height:        height,
		DepthOrSlices: 1,
		MipLevels:     1,
		SampleCount:   1,
		Format:        wgpu.TextureFormatBGRA8Unorm,
		RenderWindow:  true,
	}}
}

// fakeRenderer is a renderer without a GPU. It records passes and presents.
type fakeRenderer struct {
	window    *fakeTexture
	samplers  *common.BlockPool[common.SamplerStagingData]
	materials []string
	handlers  map[compositor.PassType]renderer.PassHandler
	quadDraws int
	live      map[compositor.Texture]bool
	passes    []compositor.PassType
	frames    int
	presented int
	released  bool
	failPass  error
}

var _ renderer.Renderer = &fakeRenderer{}

// newFakeRenderer creates a fake renderer with a window of the given size. A zero size is headless.
func newFakeRenderer(width, height uint32) *fakeRenderer {
	r := &fakeRenderer{
		samplers: common.NewBlockPool[common.SamplerStagingData]("sampler", 16),
		handlers: map[compositor.PassType]renderer.PassHandler{},
		live:     map[compositor.Texture]bool{},
	}
	if width > 0 && height > 0 {
		r.window = newWindowTexture("renderWindow", width, height)
	}
	return r
}

func (r *fakeRenderer) CreateTexture(desc compositor.TextureDescriptor) (compositor.Texture, error) {
	tex := &fakeTexture{desc: desc}
	r.live[tex] = true
	return tex, nil
}

func (r *fakeRenderer) DestroyTexture(tex compositor.Texture) { delete(r.live, tex) }

func (r *fakeRenderer) CreateBuffer(desc compositor.BufferDescriptor) (compositor.Buffer, error) {
	return &fakeBuffer{desc: desc}, nil
}

func (r *fakeRenderer) DestroyBuffer(compositor.Buffer) {}

func (r *fakeRenderer) BeginFrameOnce() error {
	r.frames++
	return nil
}

func (r *fakeRenderer) EndFrameOnce() error { return nil }

func (r *fakeRenderer) ExecuteResourceTransitions([]compositor.ResourceTransition) {}

func (r *fakeRenderer) ExecutePass(ctx *compositor.PassContext) error {
	r.passes = append(r.passes, ctx.Pass.Type())
	return r.failPass
}

func (r *fakeRenderer) WriteTexture(compositor.Texture, common.TextureStagingData) error { return nil }

func (r *fakeRenderer) SetPassHandler(passType compositor.PassType, handler renderer.PassHandler) {
	if handler == nil {
		delete(r.handlers, passType)
		return
	}
	r.handlers[passType] = handler
}

func (r *fakeRenderer) MaterialQuadHandler() renderer.PassHandler {
	return func(*renderer.Frame, *compositor.PassContext) error {
		r.quadDraws++
		return nil
	}
}

func (r *fakeRenderer) RegisterMaterial(material shader.Material) error {
	r.materials = append(r.materials, material.Name)
	return nil
}

func (r *fakeRenderer) SamplerPool() *common.BlockPool[common.SamplerStagingData] { return r.samplers }

func (r *fakeRenderer) Sampler(common.BlockHandle) (*wgpu.Sampler, error) {
	return &wgpu.Sampler{}, nil
}

func (r *fakeRenderer) WindowTexture() compositor.Texture {
	if r.window == nil {
		return nil
	}
	return r.window
}

func (r *fakeRenderer) Resize(width, height int) (compositor.Texture, error) {
	if r.window == nil {
		return nil, fmt.Errorf("%w: headless", common.ErrInvalidState)
	}
	r.window = newWindowTexture("renderWindow", uint32(width), uint32(height))
	return r.window, nil
}

func (r *fakeRenderer) Present() { r.presented++ }

func (r *fakeRenderer) Stats() renderer.FrameStats {
	return renderer.FrameStats{Frame: uint64(r.frames), Passes: len(r.passes)}
}

func (r *fakeRenderer) Release() { r.released = true }

package renderer

import (
	"errors"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer/shader"
)

type textureWrite struct {
	layer         uint32
	pixels        []byte
	width, height uint32
}

// fakeBackend hands out placeholder GPU objects and records what the renderer asked for.
type fakeBackend struct {
	surfaceFormat wgpu.TextureFormat
	surfaceSize   [2]int
	presentMode   PresentMode

	created         []*wgpu.TextureDescriptor
	releasedTex     int
	releasedViews   int
	views           []*wgpu.TextureViewDescriptor
	buffers         int
	releasedBuffers int
	samplers        []*wgpu.SamplerDescriptor
	releasedSamp    int
	writes          []textureWrite

	frameOpen   bool
	surfaceView *wgpu.TextureView
	encoder     *wgpu.CommandEncoder
	begun       int
	ended       int
	presented   int
	clears      []clearOp
	copies      []textureCopy
	pipelines   []string
	quads       []quadDraw
	releasedPip int
	released    bool

	failBegin error
}

var _ rendererBackend = &fakeBackend{}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{encoder: &wgpu.CommandEncoder{}}
}

func (b *fakeBackend) ConfigureSurface(width, height int) error {
	b.surfaceFormat = wgpu.TextureFormatBGRA8Unorm
	b.surfaceSize = [2]int{width, height}
	return nil
}

func (b *fakeBackend) SetPresentMode(mode PresentMode) { b.presentMode = mode }

func (b *fakeBackend) SurfaceFormat() wgpu.TextureFormat { return b.surfaceFormat }

func (b *fakeBackend) CreateTexture(desc *wgpu.TextureDescriptor) (*wgpu.Texture, error) {
	b.created = append(b.created, desc)
	return &wgpu.Texture{}, nil
}

func (b *fakeBackend) CreateTextureView(_ *wgpu.Texture, desc *wgpu.TextureViewDescriptor) (*wgpu.TextureView, error) {
	b.views = append(b.views, desc)
	return &wgpu.TextureView{}, nil
}

func (b *fakeBackend) ReleaseTexture(_ *wgpu.Texture, views []*wgpu.TextureView) {
	b.releasedTex++
	b.releasedViews += len(views)
}

func (b *fakeBackend) CreateBuffer(*wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	b.buffers++
	return &wgpu.Buffer{}, nil
}

func (b *fakeBackend) ReleaseBuffer(*wgpu.Buffer) { b.releasedBuffers++ }

func (b *fakeBackend) CreateSampler(desc *wgpu.SamplerDescriptor) (*wgpu.Sampler, error) {
	b.samplers = append(b.samplers, desc)
	return &wgpu.Sampler{}, nil
}

func (b *fakeBackend) ReleaseSampler(*wgpu.Sampler) { b.releasedSamp++ }

func (b *fakeBackend) WriteTexture(_ *wgpu.Texture, layer uint32, pixels []byte, width, height uint32) error {
	b.writes = append(b.writes, textureWrite{layer: layer, pixels: pixels, width: width, height: height})
	return nil
}

func (b *fakeBackend) BeginFrame() error {
	if b.failBegin != nil {
		return b.failBegin
	}
	if b.frameOpen {
		return errors.New("frame already open")
	}
	b.frameOpen = true
	b.begun++
	if b.surfaceFormat != wgpu.TextureFormatUndefined {
		b.surfaceView = &wgpu.TextureView{}
	}
	return nil
}

func (b *fakeBackend) SurfaceView() *wgpu.TextureView { return b.surfaceView }

func (b *fakeBackend) Encoder() *wgpu.CommandEncoder { return b.encoder }

func (b *fakeBackend) Clear(op clearOp) { b.clears = append(b.clears, op) }

func (b *fakeBackend) CopyTexture(c textureCopy) { b.copies = append(b.copies, c) }

func (b *fakeBackend) CreateQuadPipeline(material *shader.Material, format wgpu.TextureFormat) (*quadPipeline, error) {
	layout, err := quadBindGroupLayout(material)
	if err != nil {
		return nil, err
	}
	b.pipelines = append(b.pipelines, material.Name+"/"+format.String())
	p := &quadPipeline{
		pipeline:   &wgpu.RenderPipeline{},
		layout:     &wgpu.BindGroupLayout{},
		entries:    layout.Entries,
		paramsSize: material.ParamsSize(),
	}
	if p.paramsSize > 0 {
		p.params = &wgpu.Buffer{}
	}
	return p, nil
}

func (b *fakeBackend) DrawQuad(d quadDraw) error {
	b.quads = append(b.quads, d)
	return nil
}

func (b *fakeBackend) ReleaseQuadPipeline(*quadPipeline) { b.releasedPip++ }

func (b *fakeBackend) EndFrame() error {
	b.frameOpen = false
	b.ended++
	return nil
}

func (b *fakeBackend) Present() {
	b.presented++
	b.surfaceView = nil
}

func (b *fakeBackend) Release() { b.released = true }

// newTestRenderer attaches a fake backend. A zero size makes the renderer headless.
func newTestRenderer(t *testing.T, width, height int, options ...RendererBuilderOption) (*renderer, *fakeBackend) {
	t.Helper()
	r := newRendererState(BackendTypeWGPU, options)
	b := newFakeBackend()
	require.NoError(t, r.attach(b, width, height))
	return r, b
}

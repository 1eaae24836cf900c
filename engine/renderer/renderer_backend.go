package renderer

import (
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer/shader"
)

// RendererBackendType identifies the GPU backend implementation used by the Renderer.
type RendererBackendType int

const (
	// BackendTypeWGPU selects the WebGPU-based rendering backend.
	BackendTypeWGPU RendererBackendType = iota
)

// PresentMode controls how rendered frames are presented to the display surface.
type PresentMode int

const (
	// PresentModeVSync waits for the next vertical blank before presenting, capping frame rate
	// to the monitor's refresh rate. Eliminates tearing.
	PresentModeVSync PresentMode = iota

	// PresentModeUncapped presents frames immediately without waiting for vertical blank.
	// May cause screen tearing but provides the lowest latency.
	PresentModeUncapped
)

// clearOp describes the attachments a clear pass loads with a clear value.
type clearOp struct {
	colour      *wgpu.TextureView
	colourValue wgpu.Color

	depth        *wgpu.TextureView
	depthValue   float32
	stencilValue uint32
	clearDepth   bool
	clearStencil bool
	// hasStencil is false for depth-only formats, whose stencil ops must stay undefined.
	hasStencil bool
}

// textureCopy copies one mip of a texture into a slice and mip of another.
type textureCopy struct {
	src           *wgpu.Texture
	dst           *wgpu.Texture
	dstSlice      uint32
	dstMip        uint32
	width, height uint32
}

// rendererBackend is the GPU API surface the renderer records through. Every method is
// called with the renderer lock held.
type rendererBackend interface {
	// ConfigureSurface (re)configures the swapchain. Headless backends ignore it.
	ConfigureSurface(width, height int) error
	SetPresentMode(mode PresentMode)
	// SurfaceFormat is the swapchain format, Undefined when headless.
	SurfaceFormat() wgpu.TextureFormat

	CreateTexture(desc *wgpu.TextureDescriptor) (*wgpu.Texture, error)
	CreateTextureView(tex *wgpu.Texture, desc *wgpu.TextureViewDescriptor) (*wgpu.TextureView, error)
	ReleaseTexture(tex *wgpu.Texture, views []*wgpu.TextureView)
	CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error)
	ReleaseBuffer(buf *wgpu.Buffer)
	CreateSampler(desc *wgpu.SamplerDescriptor) (*wgpu.Sampler, error)
	ReleaseSampler(s *wgpu.Sampler)
	// WriteTexture uploads one RGBA8 image into an array layer of mip 0.
	WriteTexture(tex *wgpu.Texture, layer uint32, pixels []byte, width, height uint32) error

	// BeginFrame opens a command encoder and acquires the swapchain texture when there is a surface.
	BeginFrame() error
	// SurfaceView is the swapchain view of the open frame, nil when headless or outside a frame.
	SurfaceView() *wgpu.TextureView
	// Encoder is the command encoder of the open frame.
	Encoder() *wgpu.CommandEncoder
	Clear(op clearOp)
	CopyTexture(c textureCopy)
	// CreateQuadPipeline builds the pipeline, bind group layout and parameter buffer of a quad
	// material drawing into format. The sampler handle is left to the caller.
	CreateQuadPipeline(material *shader.Material, format wgpu.TextureFormat) (*quadPipeline, error)
	// DrawQuad uploads the parameters and records one fullscreen triangle into the open frame.
	DrawQuad(d quadDraw) error
	ReleaseQuadPipeline(p *quadPipeline)
	// EndFrame submits the frame's commands.
	EndFrame() error
	Present()

	Release()
}

package renderer

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer/shader"
)

// wgpuRendererBackend records compositor frames with WebGPU. Every pass of a frame is encoded
// into one command encoder and submitted once in EndFrame.
type wgpuRendererBackend struct {
	device *wgpu.Device
	queue  *wgpu.Queue

	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	surface  *wgpu.Surface

	surfaceFormat wgpu.TextureFormat
	presentMode   wgpu.PresentMode // defaults to PresentModeImmediate (Uncapped)

	// Frame state for batched recording across every pass of a compositor update
	frameEncoder *wgpu.CommandEncoder
	frameSurface *wgpu.Texture
	frameView    *wgpu.TextureView
}

var _ rendererBackend = &wgpuRendererBackend{}

// newWGPURendererBackend creates the WebGPU instance, adapter and device. A nil surface descriptor
// creates a headless backend.
//
// Parameters:
//   - surfaceDescriptor: the window surface to present to, or nil
//   - forceFallbackAdapter: true to request the software adapter
//
// Returns:
//   - *wgpuRendererBackend: the backend
//   - error: an error if no adapter or device could be obtained
func newWGPURendererBackend(surfaceDescriptor *wgpu.SurfaceDescriptor, forceFallbackAdapter bool) (*wgpuRendererBackend, error) {
	runtime.LockOSThread()
	b := &wgpuRendererBackend{
		instance:    wgpu.CreateInstance(nil),
		presentMode: wgpu.PresentModeImmediate,
	}
	if surfaceDescriptor != nil {
		b.surface = b.instance.CreateSurface(surfaceDescriptor)
	}

	a, err := b.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: forceFallbackAdapter,
		CompatibleSurface:    b.surface,
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("request adapter: %w", err)
	}
	b.adapter = a

	d, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "Compositor Device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		b.Release()
		return nil, fmt.Errorf("request device: %w", err)
	}
	b.device = d
	b.queue = d.GetQueue()
	return b, nil
}

func (b *wgpuRendererBackend) ConfigureSurface(width, height int) error {
	if b.surface == nil {
		return nil
	}
	capabilities := b.surface.GetCapabilities(b.adapter)
	if len(capabilities.Formats) == 0 || len(capabilities.AlphaModes) == 0 {
		return errors.New("surface is not supported by the adapter")
	}
	b.surfaceFormat = capabilities.Formats[0]

	b.surface.Configure(b.adapter, b.device, &wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      b.surfaceFormat,
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: b.presentMode,
		AlphaMode:   capabilities.AlphaModes[0],
	})
	return nil
}

func (b *wgpuRendererBackend) SetPresentMode(mode PresentMode) {
	switch mode {
	case PresentModeVSync:
		b.presentMode = wgpu.PresentModeFifo
	case PresentModeUncapped:
		fallthrough
	default:
		b.presentMode = wgpu.PresentModeImmediate
	}
}

func (b *wgpuRendererBackend) SurfaceFormat() wgpu.TextureFormat {
	return b.surfaceFormat
}

func (b *wgpuRendererBackend) CreateTexture(desc *wgpu.TextureDescriptor) (*wgpu.Texture, error) {
	return b.device.CreateTexture(desc)
}

func (b *wgpuRendererBackend) CreateTextureView(tex *wgpu.Texture, desc *wgpu.TextureViewDescriptor) (*wgpu.TextureView, error) {
	return tex.CreateView(desc)
}

func (b *wgpuRendererBackend) ReleaseTexture(tex *wgpu.Texture, views []*wgpu.TextureView) {
	for _, v := range views {
		v.Release()
	}
	tex.Release()
}

func (b *wgpuRendererBackend) CreateBuffer(desc *wgpu.BufferDescriptor) (*wgpu.Buffer, error) {
	return b.device.CreateBuffer(desc)
}

func (b *wgpuRendererBackend) ReleaseBuffer(buf *wgpu.Buffer) {
	buf.Release()
}

func (b *wgpuRendererBackend) CreateSampler(desc *wgpu.SamplerDescriptor) (*wgpu.Sampler, error) {
	return b.device.CreateSampler(desc)
}

func (b *wgpuRendererBackend) ReleaseSampler(s *wgpu.Sampler) {
	s.Release()
}

func (b *wgpuRendererBackend) WriteTexture(tex *wgpu.Texture, layer uint32, pixels []byte, width, height uint32) error {
	if height == 0 || len(pixels)%int(width*height) != 0 {
		return fmt.Errorf("%d bytes is not a whole %dx%d image", len(pixels), width, height)
	}
	bytesPerRow := uint32(len(pixels)) / height
	b.queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{Z: layer},
			Aspect:   wgpu.TextureAspectAll,
		},
		pixels,
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: height,
		},
		&wgpu.Extent3D{
			Width:              width,
			Height:             height,
			DepthOrArrayLayers: 1,
		},
	)
	return nil
}

func (b *wgpuRendererBackend) BeginFrame() error {
	// A still held surface texture means the last frame was never presented. Acquiring another
	// one fails validation with "Surface image is already acquired".
	if b.frameSurface != nil {
		return errors.New("previous frame surface not yet presented")
	}

	if b.surface != nil {
		surfaceTexture, err := b.surface.GetCurrentTexture()
		if err != nil {
			return err
		}
		view, err := surfaceTexture.CreateView(nil)
		if err != nil {
			surfaceTexture.Release()
			return err
		}
		b.frameSurface = surfaceTexture
		b.frameView = view
	}

	encoder, err := b.device.CreateCommandEncoder(nil)
	if err != nil {
		b.releaseSurfaceTexture()
		return err
	}
	b.frameEncoder = encoder
	return nil
}

func (b *wgpuRendererBackend) SurfaceView() *wgpu.TextureView {
	return b.frameView
}

func (b *wgpuRendererBackend) Encoder() *wgpu.CommandEncoder {
	return b.frameEncoder
}

func (b *wgpuRendererBackend) Clear(op clearOp) {
	if b.frameEncoder == nil {
		return
	}
	desc := &wgpu.RenderPassDescriptor{}
	if op.colour != nil {
		desc.ColorAttachments = []wgpu.RenderPassColorAttachment{{
			View:       op.colour,
			LoadOp:     wgpu.LoadOpClear,
			StoreOp:    wgpu.StoreOpStore,
			ClearValue: op.colourValue,
		}}
	}
	if op.depth != nil {
		ds := &wgpu.RenderPassDepthStencilAttachment{
			View:            op.depth,
			DepthLoadOp:     wgpu.LoadOpLoad,
			DepthStoreOp:    wgpu.StoreOpStore,
			DepthClearValue: op.depthValue,
		}
		if op.clearDepth {
			ds.DepthLoadOp = wgpu.LoadOpClear
		}
		if op.hasStencil {
			ds.StencilLoadOp = wgpu.LoadOpLoad
			ds.StencilStoreOp = wgpu.StoreOpStore
			ds.StencilClearValue = op.stencilValue
			if op.clearStencil {
				ds.StencilLoadOp = wgpu.LoadOpClear
			}
		}
		desc.DepthStencilAttachment = ds
	}
	pass := b.frameEncoder.BeginRenderPass(desc)
	pass.End()
}

func (b *wgpuRendererBackend) CopyTexture(c textureCopy) {
	if b.frameEncoder == nil {
		return
	}
	b.frameEncoder.CopyTextureToTexture(
		&wgpu.ImageCopyTexture{
			Texture:  c.src,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.ImageCopyTexture{
			Texture:  c.dst,
			MipLevel: c.dstMip,
			Origin:   wgpu.Origin3D{Z: c.dstSlice},
			Aspect:   wgpu.TextureAspectAll,
		},
		&wgpu.Extent3D{
			Width:              c.width,
			Height:             c.height,
			DepthOrArrayLayers: 1,
		},
	)
}

func (b *wgpuRendererBackend) CreateQuadPipeline(material *shader.Material, format wgpu.TextureFormat) (*quadPipeline, error) {
	s := material.Shader
	layoutDesc, err := quadBindGroupLayout(material)
	if err != nil {
		return nil, err
	}

	module, err := b.device.CreateShaderModule(s.Module())
	if err != nil {
		return nil, err
	}
	defer module.Release()

	p := &quadPipeline{entries: layoutDesc.Entries}
	if p.layout, err = b.device.CreateBindGroupLayout(&layoutDesc); err != nil {
		return nil, fmt.Errorf("bind group layout: %w", err)
	}
	pipelineLayout, err := b.device.CreatePipelineLayout(&wgpu.PipelineLayoutDescriptor{
		Label:            material.Name,
		BindGroupLayouts: []*wgpu.BindGroupLayout{p.layout},
	})
	if err != nil {
		b.ReleaseQuadPipeline(p)
		return nil, err
	}
	defer pipelineLayout.Release()

	p.pipeline, err = b.device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label:  material.Name + " Render Pipeline",
		Layout: pipelineLayout,
		Vertex: wgpu.VertexState{
			Module:     module,
			EntryPoint: s.EntryPoint(shader.ShaderTypeVertex),
		},
		Fragment: &wgpu.FragmentState{
			Module:     module,
			EntryPoint: s.EntryPoint(shader.ShaderTypeFragment),
			Targets: []wgpu.ColorTargetState{{
				Format:    format,
				WriteMask: wgpu.ColorWriteMaskAll,
			}},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeNone,
		},
		Multisample: wgpu.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		b.ReleaseQuadPipeline(p)
		return nil, err
	}

	if p.paramsSize = material.ParamsSize(); p.paramsSize > 0 {
		if p.params, err = b.device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: material.Name + " Params",
			Size:  p.paramsSize,
			Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
		}); err != nil {
			b.ReleaseQuadPipeline(p)
			return nil, err
		}
	}
	return p, nil
}

func (b *wgpuRendererBackend) DrawQuad(d quadDraw) error {
	if b.frameEncoder == nil {
		return nil
	}
	if d.pipeline.params != nil {
		if err := b.queue.WriteBuffer(d.pipeline.params, 0, d.params); err != nil {
			return fmt.Errorf("write params: %w", err)
		}
	}
	bindGroup, err := b.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Layout:  d.pipeline.layout,
		Entries: d.bindings,
	})
	if err != nil {
		return fmt.Errorf("bind group: %w", err)
	}
	defer bindGroup.Release()

	pass := b.frameEncoder.BeginRenderPass(&wgpu.RenderPassDescriptor{
		ColorAttachments: []wgpu.RenderPassColorAttachment{{
			View:    d.target,
			LoadOp:  wgpu.LoadOpLoad,
			StoreOp: wgpu.StoreOpStore,
		}},
	})
	defer pass.Release()
	vp := d.viewport
	pass.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	pass.SetPipeline(d.pipeline.pipeline)
	pass.SetBindGroup(0, bindGroup, nil)
	pass.Draw(3, 1, 0, 0)
	return pass.End()
}

func (b *wgpuRendererBackend) ReleaseQuadPipeline(p *quadPipeline) {
	if p.pipeline != nil {
		p.pipeline.Release()
	}
	if p.layout != nil {
		p.layout.Release()
	}
	if p.params != nil {
		p.params.Release()
	}
}

func (b *wgpuRendererBackend) EndFrame() error {
	if b.frameEncoder == nil {
		return nil
	}
	encoder := b.frameEncoder
	b.frameEncoder = nil
	defer encoder.Release()

	commandBuffer, err := encoder.Finish(nil)
	if err != nil {
		b.releaseSurfaceTexture()
		return fmt.Errorf("finish frame: %w", err)
	}
	b.queue.Submit(commandBuffer)
	commandBuffer.Release()
	return nil
}

func (b *wgpuRendererBackend) Present() {
	// If no frame surface is held, nothing to present.
	if b.frameSurface == nil {
		return
	}
	b.surface.Present()
	b.releaseSurfaceTexture()
}

func (b *wgpuRendererBackend) releaseSurfaceTexture() {
	if b.frameView != nil {
		b.frameView.Release()
		b.frameView = nil
	}
	if b.frameSurface != nil {
		b.frameSurface.Release()
		b.frameSurface = nil
	}
}

func (b *wgpuRendererBackend) Release() {
	if b.frameEncoder != nil {
		b.frameEncoder.Release()
		b.frameEncoder = nil
	}
	b.releaseSurfaceTexture()
	b.queue = nil
	if b.device != nil {
		b.device.Release()
		b.device = nil
	}
	if b.adapter != nil {
		b.adapter.Release()
		b.adapter = nil
	}
	if b.surface != nil {
		b.surface.Release()
		b.surface = nil
	}
	if b.instance != nil {
		b.instance.Release()
		b.instance = nil
	}
}

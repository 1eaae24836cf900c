package renderer

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
	"github.com/Carmen-Shannon/oxy-compositor/engine/cubemap"
	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-compositor/engine/window"
)

const (
	// DefaultDepthBufferPool is the depth buffer pool of the render window texture.
	DefaultDepthBufferPool uint16 = 1

	// DefaultSamplerCapacity is the number of distinct live samplers of a renderer-owned pool.
	DefaultSamplerCapacity = 64
)

// WindowTextureName is the name of the render window texture.
var WindowTextureName = common.NewIdString("renderWindow")

// Frame is what a PassHandler records into: the open command encoder and GPU views of the pass
// target and inputs.
type Frame struct {
	// Encoder is the command encoder of the open frame.
	Encoder *wgpu.CommandEncoder
	// Target is a view of the target slice and mip.
	Target *wgpu.TextureView
	// TargetFormat is the format of Target.
	TargetFormat wgpu.TextureFormat
	// Depth is the pooled depth buffer of the target, nil if the target has none.
	Depth *wgpu.TextureView
	// Inputs are full views of the pass inputs, in slot order.
	Inputs []*wgpu.TextureView
	// Buffers are the pass buffers, in slot order.
	Buffers []*wgpu.Buffer
	// Material is the registered material of a quad pass, nil for other passes or unknown materials.
	Material *shader.Material
}

// PassHandler records one pass. Handlers run without the renderer lock held and may call Sampler.
type PassHandler func(frame *Frame, ctx *compositor.PassContext) error

// FrameStats counts what the renderer did during one GPU frame.
type FrameStats struct {
	// Frame is the number of frames ended before this one.
	Frame uint64
	// Passes is the number of passes executed, skipped ones included.
	Passes int
	// Skipped is the number of passes with no handler, or quads with no registered material.
	Skipped int
	// Transitions is the number of resource transitions the compositor issued.
	Transitions int
	// Clears, Copies and Quads are the built-in passes recorded.
	Clears, Copies, Quads int
	// LiveTextures and LiveBuffers are the resources alive at the end of the frame.
	LiveTextures, LiveBuffers int
}

// Renderer is the WebGPU render system the compositor allocates textures from and executes
// passes with.
//
// Clear and depth copy passes are recorded by the renderer itself. Every other pass type is
// recorded by the PassHandler registered for it; passes with no handler are skipped.
type Renderer interface {
	compositor.RenderSystem
	cubemap.TextureWriter

	// SetPassHandler registers the handler for a pass type. A nil handler unregisters it.
	//
	// Parameters:
	//   - passType: the pass kind the handler records
	//   - handler: the handler, or nil
	SetPassHandler(passType compositor.PassType, handler PassHandler)

	// RegisterMaterial makes a quad material known to the renderer. Quad passes naming it get it in
	// Frame.Material, and their shader parameters must match the size of its parameter struct.
	//
	// Parameters:
	//   - material: the material
	//
	// Returns:
	//   - error: ErrInvalidParams if the material has no shader or its parameter struct is not declared
	RegisterMaterial(material shader.Material) error

	// MaterialQuadHandler returns the handler drawing quad passes with their registered material:
	// a fullscreen triangle whose parameter buffer holds the pass shader parameters, whose samplers
	// are the material sampler and whose textures are the pass inputs in binding order. Quads
	// naming an unregistered material are skipped.
	//
	// Returns:
	//   - PassHandler: the handler, to be registered for compositor.PassTypeQuad
	MaterialQuadHandler() PassHandler

	// SamplerPool returns the sampler block pool Sampler resolves handles from.
	//
	// Returns:
	//   - *common.BlockPool[common.SamplerStagingData]: the pool
	SamplerPool() *common.BlockPool[common.SamplerStagingData]

	// Sampler returns the GPU sampler of a live sampler block, creating it on first use.
	//
	// Parameters:
	//   - h: a handle acquired from SamplerPool
	//
	// Returns:
	//   - *wgpu.Sampler: the sampler
	//   - error: an error if the sampler could not be created
	Sampler(h common.BlockHandle) (*wgpu.Sampler, error)

	// WindowTexture returns the texture standing for the swapchain. Workspaces render to the
	// window by taking it as their first external texture.
	//
	// Returns:
	//   - compositor.Texture: the window texture, or nil when the renderer is headless
	WindowTexture() compositor.Texture

	// Resize reconfigures the surface. The window texture is replaced because its size changed;
	// workspaces holding the old one must be given the new one.
	//
	// Parameters:
	//   - width: the new width of the surface in pixels
	//   - height: the new height of the surface in pixels
	//
	// Returns:
	//   - compositor.Texture: the new window texture
	//   - error: ErrInvalidState when headless, or a surface configuration error
	Resize(width, height int) (compositor.Texture, error)

	// Present presents the last submitted frame to the surface.
	Present()

	// Stats returns the counters of the last ended frame, or of the open one.
	//
	// Returns:
	//   - FrameStats: the counters
	Stats() FrameStats

	// Release destroys every texture, buffer and sampler still alive and the GPU device.
	Release()
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu  *sync.Mutex
	log *slog.Logger

	backendType RendererBackendType
	backend     rendererBackend

	handlers        map[compositor.PassType]PassHandler
	warned          map[compositor.PassType]bool
	materials       map[string]*shader.Material
	warnedMaterials map[string]bool
	pipelines       map[quadPipelineKey]*quadPipeline

	textures     map[*gpuTexture]struct{}
	buffers      map[*gpuBuffer]struct{}
	depthBuffers map[depthKey]depthBuffer

	samplerPool *common.BlockPool[common.SamplerStagingData]
	samplers    map[common.BlockHandle]cachedSampler

	window          *gpuTexture
	windowDepthPool uint16

	frameOpen  bool
	frameCount uint64
	stats      FrameStats

	// Pre-creation config collected from builder options
	forceFallbackAdapter bool
	pendingPresentMode   *PresentMode
}

// cachedSampler remembers the block a GPU sampler was created from, so a recycled handle is
// detected.
type cachedSampler struct {
	block   common.SamplerStagingData
	sampler *wgpu.Sampler
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer presenting to win. A nil window creates a headless renderer
// with no window texture.
//
// Parameters:
//   - backendType: the GPU backend to use
//   - win: the window to present to, or nil
//   - options: functional options to configure the renderer
//
// Returns:
//   - Renderer: the new renderer
//   - error: an error if the GPU device could not be created
func NewRenderer(backendType RendererBackendType, win window.Window, options ...RendererBuilderOption) (Renderer, error) {
	r := newRendererState(backendType, options)

	var surfaceDescriptor *wgpu.SurfaceDescriptor
	width, height := 0, 0
	if win != nil {
		surfaceDescriptor = win.SurfaceDescriptor()
		width, height = win.Width(), win.Height()
	}

	var backend rendererBackend
	switch backendType {
	case BackendTypeWGPU:
		b, err := newWGPURendererBackend(surfaceDescriptor, r.forceFallbackAdapter)
		if err != nil {
			return nil, err
		}
		backend = b
	default:
		return nil, fmt.Errorf("%w: unknown renderer backend %d", common.ErrInvalidParams, backendType)
	}

	if err := r.attach(backend, width, height); err != nil {
		backend.Release()
		return nil, err
	}
	return r, nil
}

func newRendererState(backendType RendererBackendType, options []RendererBuilderOption) *renderer {
	r := &renderer{
		mu:              &sync.Mutex{},
		log:             common.ComponentLogger("renderer"),
		backendType:     backendType,
		handlers:        make(map[compositor.PassType]PassHandler),
		warned:          make(map[compositor.PassType]bool),
		materials:       make(map[string]*shader.Material),
		warnedMaterials: make(map[string]bool),
		pipelines:       make(map[quadPipelineKey]*quadPipeline),
		textures:        make(map[*gpuTexture]struct{}),
		buffers:         make(map[*gpuBuffer]struct{}),
		depthBuffers:    make(map[depthKey]depthBuffer),
		samplers:        make(map[common.BlockHandle]cachedSampler),
		windowDepthPool: DefaultDepthBufferPool,
	}
	for _, option := range options {
		option(r)
	}
	if r.samplerPool == nil {
		r.samplerPool = common.NewBlockPool[common.SamplerStagingData]("sampler", DefaultSamplerCapacity)
	}
	return r
}

// attach binds the backend and configures the surface. Width or height 0 means headless.
func (r *renderer) attach(backend rendererBackend, width, height int) error {
	r.backend = backend
	if r.pendingPresentMode != nil {
		backend.SetPresentMode(*r.pendingPresentMode)
		r.pendingPresentMode = nil
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	_, err := r.Resize(width, height)
	return err
}

func (r *renderer) WindowTexture() compositor.Texture {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.window == nil {
		return nil
	}
	return r.window
}

func (r *renderer) Resize(width, height int) (compositor.Texture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: surface size %dx%d", common.ErrInvalidParams, width, height)
	}
	if err := r.backend.ConfigureSurface(width, height); err != nil {
		return nil, fmt.Errorf("configure surface: %w", err)
	}
	format := r.backend.SurfaceFormat()
	if format == wgpu.TextureFormatUndefined {
		return nil, fmt.Errorf("%w: the renderer has no surface", common.ErrInvalidState)
	}

	// The window's depth buffers have the old size.
	if r.window != nil {
		r.dropDepthBuffers(r.window.desc.DepthBufferPool)
	}
	r.window = &gpuTexture{
		desc: compositor.TextureDescriptor{
			Name:            WindowTextureName,
			Label:           "Render Window",
			Type:            compositor.TextureType2D,
			Width:           uint32(width),
			Height:          uint32(height),
			DepthOrSlices:   1,
			MipLevels:       1,
			Format:          format,
			Usage:           wgpu.TextureUsageRenderAttachment,
			SampleCount:     1,
			DepthBufferPool: r.windowDepthPool,
			RenderWindow:    true,
		},
	}
	r.log.Debug("surface configured", "width", width, "height", height, "format", format)
	return r.window, nil
}

func (r *renderer) dropDepthBuffers(pool uint16) {
	if pool == 0 {
		return
	}
	for key, db := range r.depthBuffers {
		if key.pool == pool {
			r.backend.ReleaseTexture(db.tex, []*wgpu.TextureView{db.view})
			delete(r.depthBuffers, key)
		}
	}
}

func (r *renderer) CreateTexture(desc compositor.TextureDescriptor) (compositor.Texture, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if desc.RenderWindow {
		return nil, fmt.Errorf("%w: texture %q: render window textures come from WindowTexture", common.ErrInvalidParams, desc.Label)
	}
	if desc.Width == 0 || desc.Height == 0 {
		return nil, fmt.Errorf("%w: texture %q has size %dx%d", common.ErrInvalidParams, desc.Label, desc.Width, desc.Height)
	}
	desc.DepthOrSlices = max(desc.DepthOrSlices, 1)
	desc.MipLevels = max(desc.MipLevels, 1)
	desc.SampleCount = max(desc.SampleCount, 1)
	if desc.Usage == 0 {
		desc.Usage = wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding
	}

	tex, err := r.backend.CreateTexture(&wgpu.TextureDescriptor{
		Label: desc.Label,
		Size: wgpu.Extent3D{
			Width:              desc.Width,
			Height:             desc.Height,
			DepthOrArrayLayers: desc.DepthOrSlices,
		},
		MipLevelCount: desc.MipLevels,
		SampleCount:   desc.SampleCount,
		Dimension:     textureDimension(desc.Type),
		Format:        desc.Format,
		Usage:         desc.Usage,
	})
	if err != nil {
		return nil, fmt.Errorf("create texture %q: %w", desc.Label, err)
	}

	t := &gpuTexture{desc: desc, tex: tex, views: make(map[viewKey]*wgpu.TextureView)}
	r.textures[t] = struct{}{}
	return t, nil
}

func (r *renderer) DestroyTexture(tex compositor.Texture) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := tex.(*gpuTexture)
	if !ok {
		r.log.Warn("destroying a texture the renderer does not own", "texture", tex.Name())
		return
	}
	if _, live := r.textures[t]; !live {
		r.log.Warn("destroying a texture twice", "texture", t.desc.Label)
		return
	}
	delete(r.textures, t)
	r.backend.ReleaseTexture(t.tex, t.allViews())
	t.views = nil
}

func (r *renderer) CreateBuffer(desc compositor.BufferDescriptor) (compositor.Buffer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	size := uint64(desc.NumElements) * uint64(desc.BytesPerElement)
	if size == 0 {
		return nil, fmt.Errorf("%w: buffer %q is empty", common.ErrInvalidParams, desc.Label)
	}
	if desc.Usage == 0 {
		desc.Usage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopyDst
	}
	buf, err := r.backend.CreateBuffer(&wgpu.BufferDescriptor{
		Label: desc.Label,
		Usage: desc.Usage,
		Size:  size,
	})
	if err != nil {
		return nil, fmt.Errorf("create buffer %q: %w", desc.Label, err)
	}
	b := &gpuBuffer{desc: desc, buf: buf}
	r.buffers[b] = struct{}{}
	return b, nil
}

func (r *renderer) DestroyBuffer(buf compositor.Buffer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := buf.(*gpuBuffer)
	if !ok {
		r.log.Warn("destroying a buffer the renderer does not own", "buffer", buf.Name())
		return
	}
	if _, live := r.buffers[b]; !live {
		r.log.Warn("destroying a buffer twice", "buffer", b.desc.Label)
		return
	}
	delete(r.buffers, b)
	r.backend.ReleaseBuffer(b.buf)
}

func (r *renderer) WriteTexture(tex compositor.Texture, data common.TextureStagingData) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, err := r.ownedTexture(tex)
	if err != nil {
		return err
	}
	if t.desc.RenderWindow {
		return fmt.Errorf("%w: cannot write into the render window", common.ErrInvalidParams)
	}
	layers := max(data.Layers, 1)
	if data.Width != t.desc.Width || data.Height != t.desc.Height || layers > t.desc.DepthOrSlices {
		return fmt.Errorf("%w: %dx%dx%d pixels do not fit texture %q of %dx%dx%d", common.ErrInvalidParams,
			data.Width, data.Height, layers, t.desc.Label, t.desc.Width, t.desc.Height, t.desc.DepthOrSlices)
	}
	layerSize := int(data.Width * data.Height * 4)
	if len(data.Pixels) != layerSize*int(layers) {
		return fmt.Errorf("%w: texture %q expects %d bytes of RGBA8 pixels, got %d", common.ErrInvalidParams,
			t.desc.Label, layerSize*int(layers), len(data.Pixels))
	}

	for layer := range layers {
		texels, _, err := encodeTexels(t.desc.Format, data.Pixels[int(layer)*layerSize:int(layer+1)*layerSize])
		if err != nil {
			return fmt.Errorf("texture %q: %w", t.desc.Label, err)
		}
		if err := r.backend.WriteTexture(t.tex, layer, texels, data.Width, data.Height); err != nil {
			return fmt.Errorf("write texture %q layer %d: %w", t.desc.Label, layer, err)
		}
	}
	return nil
}

func (r *renderer) ownedTexture(tex compositor.Texture) (*gpuTexture, error) {
	t, ok := tex.(*gpuTexture)
	if !ok || t == nil {
		return nil, fmt.Errorf("%w: texture %v is not owned by the renderer", common.ErrInvalidParams, tex)
	}
	if t == r.window {
		return t, nil
	}
	if _, live := r.textures[t]; !live {
		return nil, fmt.Errorf("%w: texture %q was destroyed", common.ErrInvalidState, t.desc.Label)
	}
	return t, nil
}

// view returns a cached view of t. The render window resolves to the current swapchain view.
func (r *renderer) view(t *gpuTexture, key viewKey) (*wgpu.TextureView, error) {
	if t.desc.RenderWindow {
		v := r.backend.SurfaceView()
		if v == nil {
			return nil, fmt.Errorf("%w: no swapchain texture was acquired", common.ErrInvalidState)
		}
		return v, nil
	}
	if v, ok := t.views[key]; ok {
		return v, nil
	}
	v, err := r.backend.CreateTextureView(t.tex, viewDescriptor(t.desc, key))
	if err != nil {
		return nil, fmt.Errorf("view of texture %q: %w", t.desc.Label, err)
	}
	t.views[key] = v
	return v, nil
}

// depthView returns the pooled depth buffer of a target mip, creating it on first use.
func (r *renderer) depthView(t *gpuTexture, mip uint32) (*wgpu.TextureView, error) {
	if t.desc.DepthBufferPool == 0 || isDepthFormat(t.desc.Format) {
		return nil, nil
	}
	w, h := t.mipSize(mip)
	key := depthKey{pool: t.desc.DepthBufferPool, width: w, height: h, samples: t.desc.SampleCount}
	if db, ok := r.depthBuffers[key]; ok {
		return db.view, nil
	}

	label := fmt.Sprintf("Depth Buffer %d (%dx%d)", key.pool, w, h)
	tex, err := r.backend.CreateTexture(&wgpu.TextureDescriptor{
		Label: label,
		Size: wgpu.Extent3D{
			Width:              w,
			Height:             h,
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   key.samples,
		Dimension:     wgpu.TextureDimension2D,
		Format:        depthBufferFormat,
		Usage:         wgpu.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", label, err)
	}
	view, err := r.backend.CreateTextureView(tex, nil)
	if err != nil {
		r.backend.ReleaseTexture(tex, nil)
		return nil, fmt.Errorf("view of %s: %w", label, err)
	}
	r.depthBuffers[key] = depthBuffer{tex: tex, view: view}
	return view, nil
}

func (r *renderer) BeginFrameOnce() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frameOpen {
		return nil
	}
	if err := r.backend.BeginFrame(); err != nil {
		return err
	}
	r.frameOpen = true
	r.stats = FrameStats{Frame: r.frameCount}
	return nil
}

func (r *renderer) EndFrameOnce() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.frameOpen {
		return nil
	}
	r.frameOpen = false
	r.frameCount++
	r.stats.LiveTextures = len(r.textures)
	r.stats.LiveBuffers = len(r.buffers)
	return r.backend.EndFrame()
}

// ExecuteResourceTransitions only counts transitions; WebGPU tracks layouts and inserts barriers
// itself.
func (r *renderer) ExecuteResourceTransitions(transitions []compositor.ResourceTransition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats.Transitions += len(transitions)
}

func (r *renderer) ExecutePass(ctx *compositor.PassContext) error {
	r.mu.Lock()
	if !r.frameOpen {
		r.mu.Unlock()
		return fmt.Errorf("%w: pass executed outside of a frame", common.ErrInvalidState)
	}
	passType := ctx.Pass.Type()
	r.stats.Passes++

	handler := r.handlers[passType]
	if handler == nil && passType != compositor.PassTypeClear && passType != compositor.PassTypeDepthCopy {
		r.stats.Skipped++
		if !r.warned[passType] {
			r.warned[passType] = true
			r.log.Warn("no handler registered, passes of this type are skipped", "pass", passType.String())
		}
		r.mu.Unlock()
		return nil
	}

	frame, err := r.buildFrame(ctx)
	if err != nil {
		r.mu.Unlock()
		return fmt.Errorf("%s pass: %w", passType, err)
	}

	if handler != nil {
		r.mu.Unlock()
		return handler(frame, ctx)
	}
	defer r.mu.Unlock()
	if passType == compositor.PassTypeClear {
		return r.recordClear(frame, ctx)
	}
	return r.recordDepthCopy(ctx)
}

func (r *renderer) buildFrame(ctx *compositor.PassContext) (*Frame, error) {
	target, err := r.ownedTexture(ctx.Target.Texture)
	if err != nil {
		return nil, err
	}
	frame := &Frame{
		Encoder:      r.backend.Encoder(),
		TargetFormat: target.desc.Format,
	}
	if frame.Target, err = r.view(target, viewKey{slice: ctx.Target.Slice, mip: ctx.Target.MipLevel}); err != nil {
		return nil, err
	}
	if frame.Depth, err = r.depthView(target, ctx.Target.MipLevel); err != nil {
		return nil, err
	}
	for _, in := range ctx.Inputs {
		t, err := r.ownedTexture(in)
		if err != nil {
			return nil, err
		}
		v, err := r.view(t, viewKey{full: true})
		if err != nil {
			return nil, err
		}
		frame.Inputs = append(frame.Inputs, v)
	}
	if def, ok := ctx.Pass.Definition().(*compositor.QuadPassDef); ok {
		if frame.Material = r.materials[def.MaterialName]; frame.Material != nil {
			want := frame.Material.ParamsSize()
			if len(ctx.ShaderParams) > 0 && uint64(len(ctx.ShaderParams)) != want {
				return nil, fmt.Errorf("%w: material %s expects %d bytes of %s, got %d", common.ErrInvalidParams,
					def.MaterialName, want, frame.Material.ParamsStruct, len(ctx.ShaderParams))
			}
		}
	}
	for _, buf := range ctx.Buffers {
		b, ok := buf.(*gpuBuffer)
		if !ok {
			return nil, fmt.Errorf("%w: buffer %v is not owned by the renderer", common.ErrInvalidParams, buf)
		}
		frame.Buffers = append(frame.Buffers, b.buf)
	}
	return frame, nil
}

func (r *renderer) recordClear(frame *Frame, ctx *compositor.PassContext) error {
	def, ok := ctx.Pass.Definition().(*compositor.ClearPassDef)
	if !ok {
		return fmt.Errorf("%w: clear pass without a clear definition", common.ErrInvalidParams)
	}

	op := clearOp{
		depthValue:   def.Depth,
		stencilValue: def.Stencil,
		clearDepth:   def.Buffers&compositor.ClearDepth != 0,
		clearStencil: def.Buffers&compositor.ClearStencil != 0,
	}
	if isDepthFormat(frame.TargetFormat) {
		op.depth = frame.Target
		op.hasStencil = hasStencil(frame.TargetFormat)
	} else {
		if def.Buffers&compositor.ClearColour != 0 {
			op.colour = frame.Target
			op.colourValue = wgpu.Color{
				R: float64(def.Colour[0]),
				G: float64(def.Colour[1]),
				B: float64(def.Colour[2]),
				A: float64(def.Colour[3]),
			}
		}
		op.depth = frame.Depth
		op.hasStencil = hasStencil(depthBufferFormat)
	}
	if op.depth != nil && !op.clearDepth && !op.clearStencil {
		op.depth = nil
	}
	if op.colour == nil && op.depth == nil {
		return nil
	}
	r.backend.Clear(op)
	r.stats.Clears++
	return nil
}

func (r *renderer) recordDepthCopy(ctx *compositor.PassContext) error {
	if len(ctx.Inputs) != 1 {
		return fmt.Errorf("%w: depth copy needs exactly one source, got %d", common.ErrInvalidParams, len(ctx.Inputs))
	}
	src, err := r.ownedTexture(ctx.Inputs[0])
	if err != nil {
		return err
	}
	dst, err := r.ownedTexture(ctx.Target.Texture)
	if err != nil {
		return err
	}
	if src.desc.RenderWindow || dst.desc.RenderWindow {
		return fmt.Errorf("%w: depth copy from %q to %q: the render window cannot be copied", common.ErrInvalidParams, src.desc.Label, dst.desc.Label)
	}
	dw, dh := dst.mipSize(ctx.Target.MipLevel)
	if src.desc.Width != dw || src.desc.Height != dh || src.desc.Format != dst.desc.Format {
		return fmt.Errorf("%w: depth copy from %q (%dx%d %v) to %q mip %d (%dx%d %v)", common.ErrInvalidParams,
			src.desc.Label, src.desc.Width, src.desc.Height, src.desc.Format,
			dst.desc.Label, ctx.Target.MipLevel, dw, dh, dst.desc.Format)
	}
	r.backend.CopyTexture(textureCopy{
		src:      src.tex,
		dst:      dst.tex,
		dstSlice: ctx.Target.Slice,
		dstMip:   ctx.Target.MipLevel,
		width:    dw,
		height:   dh,
	})
	r.stats.Copies++
	return nil
}

func (r *renderer) SetPassHandler(passType compositor.PassType, handler PassHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if handler == nil {
		delete(r.handlers, passType)
		return
	}
	r.handlers[passType] = handler
}

func (r *renderer) RegisterMaterial(material shader.Material) error {
	if material.Shader == nil {
		return fmt.Errorf("%w: material %s has no shader", common.ErrInvalidParams, material.Name)
	}
	if material.ParamsStruct != "" {
		if _, ok := material.Shader.StructLayout(material.ParamsStruct); !ok {
			return fmt.Errorf("%w: material %s: shader %s declares no struct %s", common.ErrInvalidParams,
				material.Name, material.Shader.Key(), material.ParamsStruct)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.materials[material.Name]; ok {
		r.log.Warn("replacing material", "material", material.Name)
		r.dropQuadPipelines(material.Name)
	}
	delete(r.warnedMaterials, material.Name)
	r.materials[material.Name] = &material
	return nil
}

func (r *renderer) SamplerPool() *common.BlockPool[common.SamplerStagingData] {
	return r.samplerPool
}

func (r *renderer) Sampler(h common.BlockHandle) (*wgpu.Sampler, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sampler(h)
}

func (r *renderer) sampler(h common.BlockHandle) (*wgpu.Sampler, error) {
	if int(h) >= r.samplerPool.Capacity() {
		return nil, fmt.Errorf("%w: sampler handle %d out of range", common.ErrInvalidParams, h)
	}
	block := r.samplerPool.Get(h)
	if cached, ok := r.samplers[h]; ok {
		if cached.block == block {
			return cached.sampler, nil
		}
		// The slot was released and reacquired with another block.
		r.backend.ReleaseSampler(cached.sampler)
		delete(r.samplers, h)
	}

	s, err := r.backend.CreateSampler(&wgpu.SamplerDescriptor{
		Label:         fmt.Sprintf("Sampler %d", h),
		AddressModeU:  common.Coalesce(block.AddressModeU, wgpu.AddressModeRepeat),
		AddressModeV:  common.Coalesce(block.AddressModeV, wgpu.AddressModeRepeat),
		AddressModeW:  common.Coalesce(block.AddressModeW, wgpu.AddressModeRepeat),
		MagFilter:     common.Coalesce(block.MagFilter, wgpu.FilterModeLinear),
		MinFilter:     common.Coalesce(block.MinFilter, wgpu.FilterModeLinear),
		MipmapFilter:  common.Coalesce(block.MipmapFilter, wgpu.MipmapFilterModeLinear),
		LodMinClamp:   common.Coalesce(block.LodMinClamp, 0.0),
		LodMaxClamp:   common.Coalesce(block.LodMaxClamp, 32.0),
		MaxAnisotropy: common.Coalesce(block.MaxAnisotropy, 1),
		Compare:       block.Compare,
	})
	if err != nil {
		return nil, fmt.Errorf("create sampler %d: %w", h, err)
	}
	r.samplers[h] = cachedSampler{block: block, sampler: s}
	return s, nil
}

func (r *renderer) Present() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.window != nil {
		r.backend.Present()
	}
}

func (r *renderer) Stats() FrameStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *renderer) Release() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.textures) > 0 || len(r.buffers) > 0 {
		r.log.Warn("releasing renderer with live resources", "textures", len(r.textures), "buffers", len(r.buffers))
	}
	r.dropQuadPipelines("")
	for t := range r.textures {
		r.backend.ReleaseTexture(t.tex, t.allViews())
	}
	for b := range r.buffers {
		r.backend.ReleaseBuffer(b.buf)
	}
	for _, db := range r.depthBuffers {
		r.backend.ReleaseTexture(db.tex, []*wgpu.TextureView{db.view})
	}
	for _, s := range r.samplers {
		r.backend.ReleaseSampler(s.sampler)
	}
	clear(r.textures)
	clear(r.buffers)
	clear(r.depthBuffers)
	clear(r.samplers)
	r.window = nil
	r.backend.Release()
}

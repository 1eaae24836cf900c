// Package cubemap implements parallax corrected cubemaps: a set of cubemap probes, each
// affecting an oriented area of the scene, of which the ones around a tracked position are
// selected every frame, refreshed when dirty and blended into one cubemap.
package cubemap

import (
	"fmt"
	"log/slog"
	"slices"

	"cogentcore.org/core/base/errors"
	"cogentcore.org/core/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/google/uuid"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
)

// MaxCubeProbes is how many probes are blended at once.
const MaxCubeProbes = 4

const (
	// DefaultCameraNear is the near plane of probe cameras.
	DefaultCameraNear float32 = 0.5
	// DefaultClearExecutionMask marks the probe workspace passes that only run on the first
	// render iteration.
	DefaultClearExecutionMask uint8 = 0x01
	// DefaultSamplerCapacity is the size of the private sampler pool.
	DefaultSamplerCapacity = 16
)

// ProbeBinding is what the shader binds for one of the MaxCubeProbes slots.
type ProbeBinding struct {
	Data GPUCubemapProbeData
	// Texture is the probe cubemap, or the blank probe for unused slots.
	Texture compositor.Texture
	// Sampler is a block of the sampler pool.
	Sampler common.BlockHandle
}

// ParallaxCorrectedCubemap selects, refreshes and blends the cubemap probes around a tracked
// position. Once enabled it hooks into the compositor Manager: selection runs before the
// workspaces update and rendering right after the GPU frame begins.
type ParallaxCorrectedCubemap struct {
	id           uint32
	uid          uuid.UUID
	name         string
	manager      *compositor.Manager
	renderSystem compositor.RenderSystem
	sceneManager compositor.SceneManager
	log          *slog.Logger

	probeWorkspaceDef   common.IdString
	reservedRenderQueue uint8
	proxyVisibilityMask uint32

	mask               uint32
	cameraNear         float32
	clearExecutionMask uint8
	samplers           *common.BlockPool[common.SamplerStagingData]
	pointSampler       common.BlockHandle
	trilinearSampler   common.BlockHandle

	probes      []*CubemapProbe
	nextProbeID uint32

	enabled        bool
	maxWidth       uint32
	maxHeight      uint32
	format         wgpu.TextureFormat
	captureCubemap compositor.Texture
	blendCubemap   compositor.Texture
	blankProbe     compositor.Texture
	blendCamera    camera.Camera
	copyWorkspace  *compositor.Workspace
	blendWorkspace *compositor.Workspace
	defs           internalDefs

	trackedCamera   camera.Camera
	trackedPosition math32.Vector3
	trackedViewProj math32.Matrix4

	collectedProbes  [MaxCubeProbes]*CubemapProbe
	probeNDFs        [MaxCubeProbes]float32
	blendFactors     [MaxCubeProbes]float32
	numCollected     int
	lastCollected    [MaxCubeProbes]*CubemapProbe
	lastNumCollected int
	blendCameraPos   math32.Vector3
	bindings         [MaxCubeProbes]ProbeBinding

	blendedProbeNeedsUpdate bool
}

var _ compositor.ManagerListener = &ParallaxCorrectedCubemap{}

// NewParallaxCorrectedCubemap creates a disabled ParallaxCorrectedCubemap. Call SetEnabled
// before probes can render.
//
// Parameters:
//   - id: a user id
//   - manager: the compositor manager the probe workspaces are created in
//   - sceneManager: the scene manager probe cameras are created in
//   - probeWorkspaceDef: the workspace definition each probe renders the scene with. Its final
//     target is the probe cubemap; its scene passes should reorient the camera per cubemap face
//   - reservedRenderQueue: the render queue the probe proxies are drawn in
//   - proxyVisibilityMask: the visibility flags of the probe proxies
//   - options: functional options
//
// Returns:
//   - *ParallaxCorrectedCubemap: the new instance
//   - error: ErrItemNotFound for an unknown workspace definition, ErrInternal if no sampler
//     block is left, or an error creating the internal definitions
func NewParallaxCorrectedCubemap(id uint32, manager *compositor.Manager, sceneManager compositor.SceneManager,
	probeWorkspaceDef common.IdString, reservedRenderQueue uint8, proxyVisibilityMask uint32,
	options ...PCCBuilderOption) (*ParallaxCorrectedCubemap, error) {
	def, err := manager.WorkspaceDefinition(probeWorkspaceDef)
	if err != nil {
		return nil, err
	}

	uid := uuid.New()
	p := &ParallaxCorrectedCubemap{
		id:                  id,
		uid:                 uid,
		name:                fmt.Sprintf("PCC/%d/%s", id, uid.String()[:8]),
		manager:             manager,
		renderSystem:        manager.RenderSystem(),
		sceneManager:        sceneManager,
		probeWorkspaceDef:   probeWorkspaceDef,
		reservedRenderQueue: reservedRenderQueue,
		proxyVisibilityMask: proxyVisibilityMask,
		mask:                DefaultProbeMask,
		cameraNear:          DefaultCameraNear,
		clearExecutionMask:  DefaultClearExecutionMask,
	}
	for _, opt := range options {
		opt(p)
	}
	p.log = common.ComponentLogger("pcc").With("pcc", p.name)
	if p.samplers == nil {
		p.samplers = common.NewBlockPool[common.SamplerStagingData]("sampler", DefaultSamplerCapacity)
	}

	if p.pointSampler, _, err = p.samplers.Acquire(common.PointSampler()); err != nil {
		return nil, err
	}
	if p.trilinearSampler, _, err = p.samplers.Acquire(common.TrilinearSampler()); err != nil {
		p.samplers.Release(p.pointSampler)
		return nil, err
	}

	p.warnAboutVisibleProxies(def)
	if p.defs, err = createInternalDefs(manager, p.name); err != nil {
		errors.Log(p.defs.remove(manager))
		p.releaseSamplers()
		return nil, err
	}
	p.resetCollected()
	return p, nil
}

// warnAboutVisibleProxies flags probe workspace scene passes that would render the probe
// proxies into the probes.
func (p *ParallaxCorrectedCubemap) warnAboutVisibleProxies(def *compositor.WorkspaceDef) {
	for _, alias := range def.NodeAliases() {
		nodeDef, err := p.manager.NodeDefinition(alias.DefName)
		if err != nil {
			continue
		}
		for _, target := range nodeDef.TargetPasses() {
			for _, pass := range target.Passes() {
				scene, ok := pass.(*compositor.ScenePassDef)
				if !ok {
					continue
				}
				if scene.FirstRQ <= p.reservedRenderQueue && p.reservedRenderQueue <= scene.LastRQ &&
					scene.VisibilityMask&p.proxyVisibilityMask != 0 {
					p.log.Warn("probe workspace scene pass renders the probe proxies",
						"node", nodeDef.NameStr(), "reserved_rq", p.reservedRenderQueue)
				}
			}
		}
	}
}

// ID returns the user id.
func (p *ParallaxCorrectedCubemap) ID() uint32 { return p.id }

// Name returns the unique name prefix of every resource the instance creates.
func (p *ParallaxCorrectedCubemap) Name() string { return p.name }

// ReservedRenderQueue returns the render queue the probe proxies are drawn in.
func (p *ParallaxCorrectedCubemap) ReservedRenderQueue() uint8 { return p.reservedRenderQueue }

// ProxyVisibilityMask returns the visibility flags of the probe proxies.
func (p *ParallaxCorrectedCubemap) ProxyVisibilityMask() uint32 { return p.proxyVisibilityMask }

// Mask returns the mask ANDed with every probe mask during selection.
func (p *ParallaxCorrectedCubemap) Mask() uint32 { return p.mask }

// SetMask sets the mask ANDed with every probe mask during selection.
func (p *ParallaxCorrectedCubemap) SetMask(mask uint32) { p.mask = mask }

// Enabled reports whether SetEnabled turned the instance on.
func (p *ParallaxCorrectedCubemap) Enabled() bool { return p.enabled }

// Probes returns every probe in creation order.
func (p *ParallaxCorrectedCubemap) Probes() []*CubemapProbe { return p.probes }

// BlendCubemap returns the cubemap the selected probes are blended into, nil while disabled.
func (p *ParallaxCorrectedCubemap) BlendCubemap() compositor.Texture { return p.blendCubemap }

// BlankProbe returns the 1x1 cubemap bound to unused probe slots, nil while disabled.
func (p *ParallaxCorrectedCubemap) BlankProbe() compositor.Texture { return p.blankProbe }

// BlendCameraPos returns where the blended cubemap is considered captured from.
func (p *ParallaxCorrectedCubemap) BlendCameraPos() math32.Vector3 { return p.blendCameraPos }

// SamplerPool returns the pool the probe sampler blocks live in.
func (p *ParallaxCorrectedCubemap) SamplerPool() *common.BlockPool[common.SamplerStagingData] {
	return p.samplers
}

// CreateProbe adds a probe. It takes part in selection once placed with Set; it renders once it
// has a texture and a workspace.
//
// Parameters:
//   - options: functional options
//
// Returns:
//   - *CubemapProbe: the new probe
func (p *ParallaxCorrectedCubemap) CreateProbe(options ...ProbeBuilderOption) *CubemapProbe {
	probe := newCubemapProbe(p, p.nextProbeID)
	p.nextProbeID++
	for _, opt := range options {
		opt(probe)
	}
	p.probes = append(p.probes, probe)
	return probe
}

// DestroyProbe destroys a probe and its GPU resources.
//
// Parameters:
//   - probe: a probe created by this instance
//
// Returns:
//   - error: ErrItemNotFound if the probe belongs to another instance or was already destroyed
func (p *ParallaxCorrectedCubemap) DestroyProbe(probe *CubemapProbe) error {
	idx := slices.Index(p.probes, probe)
	if idx < 0 {
		return fmt.Errorf("%w: probe is not owned by %s", common.ErrItemNotFound, p.name)
	}
	p.probes = slices.Delete(p.probes, idx, idx+1)
	if slices.Contains(p.collectedProbes[:p.numCollected], probe) {
		p.resetCollected()
		p.forceBlendUpdate()
		p.updateBindings()
	}
	probe.destroy()
	return nil
}

// DestroyAllProbes destroys every probe.
func (p *ParallaxCorrectedCubemap) DestroyAllProbes() {
	for _, probe := range p.probes {
		probe.destroy()
	}
	p.probes = nil
	p.resetCollected()
	p.forceBlendUpdate()
	p.updateBindings()
}

// forceBlendUpdate makes the next selection count as changed.
func (p *ParallaxCorrectedCubemap) forceBlendUpdate() {
	p.lastCollected = [MaxCubeProbes]*CubemapProbe{}
	p.lastNumCollected = -1
	p.blendedProbeNeedsUpdate = true
}

// SetEnabled turns probe rendering on or off. Enabling creates the shared capture cubemap
// static probes render into, the blend cubemap and the blank probe, and registers the instance
// as a listener of the manager. Enabling again with other settings recreates them.
//
// Parameters:
//   - enabled: whether probes render and blend
//   - maxWidth, maxHeight: the size of the capture and blend cubemaps; no static probe may be larger
//   - format: the pixel format of the capture and blend cubemaps
//
// Returns:
//   - error: ErrInvalidParams for a zero size, or an error creating textures or workspaces
func (p *ParallaxCorrectedCubemap) SetEnabled(enabled bool, maxWidth, maxHeight uint32, format wgpu.TextureFormat) error {
	if enabled == p.enabled && (!enabled || (maxWidth == p.maxWidth && maxHeight == p.maxHeight && format == p.format)) {
		return nil
	}
	if enabled && (maxWidth == 0 || maxHeight == 0) {
		return fmt.Errorf("%w: %s cubemap size %dx%d", common.ErrInvalidParams, p.name, maxWidth, maxHeight)
	}

	if p.enabled {
		p.manager.RemoveListener(p)
		p.destroyGpuResources()
		p.enabled = false
		p.updateBindings()
	}
	if !enabled {
		return nil
	}

	p.maxWidth, p.maxHeight, p.format = maxWidth, maxHeight, format
	if err := p.createGpuResources(); err != nil {
		p.destroyGpuResources()
		return err
	}
	p.enabled = true
	p.forceBlendUpdate()
	p.updateBindings()
	p.manager.AddListener(p)

	var errs []error
	for _, probe := range p.probes {
		if probe.wantWorkspace && probe.workspace == nil && probe.canInitWorkspace() {
			errs = append(errs, probe.InitWorkspace())
		}
	}
	return errors.Join(errs...)
}

func (p *ParallaxCorrectedCubemap) createCubemap(suffix string, width, height, mips uint32) (compositor.Texture, error) {
	name := p.name + "/" + suffix
	return p.renderSystem.CreateTexture(compositor.TextureDescriptor{
		Name:          common.NewIdString(name),
		Label:         name,
		Type:          compositor.TextureTypeCube,
		Width:         width,
		Height:        height,
		DepthOrSlices: 6,
		MipLevels:     mips,
		Format:        p.format,
		SampleCount:   1,
		Usage: wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding |
			wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst,
	})
}

func (p *ParallaxCorrectedCubemap) createGpuResources() error {
	var err error
	if p.captureCubemap, err = p.createCubemap("Capture", p.maxWidth, p.maxHeight, 1); err != nil {
		return fmt.Errorf("%s capture cubemap: %w", p.name, err)
	}
	if p.blendCubemap, err = p.createCubemap("Blend", p.maxWidth, p.maxHeight, mipCount(p.maxWidth, p.maxHeight)); err != nil {
		return fmt.Errorf("%s blend cubemap: %w", p.name, err)
	}
	if p.blankProbe, err = p.createCubemap("Blank", 1, 1, 1); err != nil {
		return fmt.Errorf("%s blank probe: %w", p.name, err)
	}
	if w, ok := p.renderSystem.(TextureWriter); ok {
		if err := w.WriteTexture(p.blankProbe, common.TextureStagingData{
			Pixels: make([]byte, 4*6),
			Width:  1,
			Height: 1,
			Layers: 6,
		}); err != nil {
			return fmt.Errorf("%s blank probe upload: %w", p.name, err)
		}
	}

	p.blendCamera = p.sceneManager.CreateCamera(p.name + "/BlendCamera")
	p.blendCamera.SetFov(math32.Pi / 2)
	p.blendCamera.SetAspect(1)
	p.blendCamera.SetNear(p.cameraNear)

	if p.copyWorkspace, err = p.manager.AddWorkspace(p.defs.copyWorkspace,
		compositor.WithCamera(p.blendCamera),
		compositor.WithExternalTextures(p.blendCubemap, p.blankProbe),
		compositor.WithEnabled(false),
		compositor.WithWorkspaceListener(&compositor.WorkspaceListenerFuncs{OnPassPreExecute: setCopyParams}),
	); err != nil {
		return fmt.Errorf("%s copy workspace: %w", p.name, err)
	}
	if p.blendWorkspace, err = p.manager.AddWorkspace(p.defs.blendWorkspace,
		compositor.WithCamera(p.blendCamera),
		compositor.WithExternalTextures(p.blendTargets()...),
		compositor.WithEnabled(false),
		compositor.WithWorkspaceListener(&compositor.WorkspaceListenerFuncs{OnPassPreExecute: p.setBlendParams}),
	); err != nil {
		return fmt.Errorf("%s blend workspace: %w", p.name, err)
	}
	return nil
}

func (p *ParallaxCorrectedCubemap) destroyGpuResources() {
	for _, probe := range p.probes {
		if probe.static {
			probe.destroyWorkspace()
		}
	}
	for _, ws := range []*compositor.Workspace{p.copyWorkspace, p.blendWorkspace} {
		if ws != nil {
			errors.Log(p.manager.RemoveWorkspace(ws))
		}
	}
	p.copyWorkspace, p.blendWorkspace = nil, nil
	if p.blendCamera != nil {
		p.sceneManager.DestroyCamera(p.blendCamera)
		p.blendCamera = nil
	}
	for _, tex := range []compositor.Texture{p.captureCubemap, p.blendCubemap, p.blankProbe} {
		if tex != nil {
			p.renderSystem.DestroyTexture(tex)
		}
	}
	p.captureCubemap, p.blendCubemap, p.blankProbe = nil, nil, nil
}

// SetUpdatedTrackedDataFromCamera makes selection follow cam: its position and view-projection
// matrix are read at the start of every UpdateSceneGraph. Nil stops following.
//
// Parameters:
//   - cam: the camera to follow
func (p *ParallaxCorrectedCubemap) SetUpdatedTrackedDataFromCamera(cam camera.Camera) {
	p.trackedCamera = cam
	if cam != nil {
		p.trackedPosition = cam.Position()
		p.trackedViewProj = cam.ViewProjectionMatrix()
	}
}

// SetTrackedData sets the tracked position and view-projection matrix and stops following a camera.
//
// Parameters:
//   - position: the world position probes are selected around
//   - viewProj: the view-projection matrix FindClosestProbe projects probe areas with
func (p *ParallaxCorrectedCubemap) SetTrackedData(position math32.Vector3, viewProj math32.Matrix4) {
	p.trackedCamera = nil
	p.trackedPosition = position
	p.trackedViewProj = viewProj
}

// TrackedPosition returns the position probes are selected around.
func (p *ParallaxCorrectedCubemap) TrackedPosition() math32.Vector3 { return p.trackedPosition }

// AllWorkspacesBeforeBeginUpdate runs UpdateSceneGraph.
func (p *ParallaxCorrectedCubemap) AllWorkspacesBeforeBeginUpdate(uint64) error {
	p.UpdateSceneGraph()
	return nil
}

// AllWorkspacesBeginUpdate runs UpdateRender.
func (p *ParallaxCorrectedCubemap) AllWorkspacesBeginUpdate() error {
	return p.UpdateRender()
}

// AllWorkspacesUpdated does nothing.
func (p *ParallaxCorrectedCubemap) AllWorkspacesUpdated() error {
	return nil
}

// ProbeBindings returns the data bound for every probe slot, unused slots included.
//
// Returns:
//   - []ProbeBinding: MaxCubeProbes bindings with slot 0 holding the dominant probe, nil while
//     disabled
func (p *ParallaxCorrectedCubemap) ProbeBindings() []ProbeBinding {
	if !p.enabled {
		return nil
	}
	return slices.Clone(p.bindings[:])
}

// Destroy releases every probe, GPU resource, internal definition and sampler block.
//
// Returns:
//   - error: an error removing the internal definitions
func (p *ParallaxCorrectedCubemap) Destroy() error {
	p.DestroyAllProbes()
	if p.enabled {
		p.manager.RemoveListener(p)
		p.destroyGpuResources()
		p.enabled = false
		p.updateBindings()
	}
	p.releaseSamplers()
	return p.defs.remove(p.manager)
}

func (p *ParallaxCorrectedCubemap) releaseSamplers() {
	p.samplers.Release(p.pointSampler)
	p.samplers.Release(p.trilinearSampler)
}

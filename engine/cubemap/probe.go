package cubemap

import (
	"fmt"
	"math"

	"cogentcore.org/core/math32"
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
)

const (
	// DefaultProbeIterations is how many times a probe is rendered when it is refreshed.
	DefaultProbeIterations = 32
	// DefaultProbeMask is the mask of a new probe.
	DefaultProbeMask uint32 = math.MaxUint32
)

// CubemapProbe is a cubemap captured at one position, used to light whatever is inside its area.
// The area is an oriented box; inside its inner region the probe fully dominates, and its
// influence fades towards the area boundary. Probes are created and owned by a
// ParallaxCorrectedCubemap.
type CubemapProbe struct {
	pcc *ParallaxCorrectedCubemap
	id  uint32

	cameraPos       math32.Vector3
	area            math32.Box3
	areaInnerRegion math32.Vector3
	orientation     math32.Quat
	invOrientation  math32.Quat
	probeShape      math32.Box3

	width, height uint32
	format        wgpu.TextureFormat
	numMips       uint32

	texture   compositor.Texture
	camera    camera.Camera
	workspace *compositor.Workspace

	wantWorkspace bool

	numIterations uint32
	mask          uint32
	enabled       bool
	static        bool
	dirty         bool
}

func newCubemapProbe(pcc *ParallaxCorrectedCubemap, id uint32) *CubemapProbe {
	return &CubemapProbe{
		pcc:            pcc,
		id:             id,
		area:           math32.B3(-1, -1, -1, 1, 1, 1),
		probeShape:     math32.B3(-1, -1, -1, 1, 1, 1),
		orientation:    common.QuatIdentity(),
		invOrientation: common.QuatIdentity(),
		format:         wgpu.TextureFormatRGBA8UnormSrgb,
		numIterations:  DefaultProbeIterations,
		mask:           DefaultProbeMask,
		enabled:        true,
		static:         true,
		dirty:          true,
	}
}

// Set places the probe.
//
// Parameters:
//   - cameraPos: where the cubemap is captured from
//   - area: the region the probe affects, before orientation
//   - areaInnerRegion: the fraction of the area, per axis in [0, 1], where the probe fully dominates
//   - orientation: the rotation of the area and the probe shape around the area center
//   - probeShape: the box the cubemap is reprojected against
func (p *CubemapProbe) Set(cameraPos math32.Vector3, area math32.Box3, areaInnerRegion math32.Vector3,
	orientation math32.Quat, probeShape math32.Box3) {
	p.cameraPos = cameraPos
	p.area = area
	areaInnerRegion.Clamp(math32.Vector3{}, math32.Vec3(1, 1, 1))
	p.areaInnerRegion = areaInnerRegion
	p.orientation = orientation
	p.invOrientation = common.QuatInverse(orientation)
	p.probeShape = probeShape
	p.dirty = true
	if p.camera != nil {
		p.placeCamera()
	}
}

// SetTextureParams (re)creates the probe's cubemap. A workspace set up by InitWorkspace is
// recreated for the new texture.
//
// Parameters:
//   - width, height: the size of each face
//   - format: the pixel format
//   - static: static probes render once and whenever they are marked dirty; dynamic ones every frame
//
// Returns:
//   - error: ErrInvalidParams for a zero size, or a texture allocation error
func (p *CubemapProbe) SetTextureParams(width, height uint32, format wgpu.TextureFormat, static bool) error {
	if width == 0 || height == 0 {
		return fmt.Errorf("%w: probe %d cubemap size %dx%d", common.ErrInvalidParams, p.id, width, height)
	}
	p.destroyWorkspace()
	p.destroyTexture()

	p.width, p.height, p.format, p.static = width, height, format, static
	p.numMips = mipCount(width, height)

	tex, err := p.pcc.renderSystem.CreateTexture(compositor.TextureDescriptor{
		Name:          common.NewIdString(p.textureName()),
		Label:         p.textureName(),
		Type:          compositor.TextureTypeCube,
		Width:         width,
		Height:        height,
		DepthOrSlices: 6,
		MipLevels:     p.numMips,
		Format:        format,
		SampleCount:   1,
		Usage: wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding |
			wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("probe %d cubemap: %w", p.id, err)
	}
	p.texture = tex
	p.dirty = true

	if p.wantWorkspace && p.canInitWorkspace() {
		return p.InitWorkspace()
	}
	return nil
}

// canInitWorkspace reports whether InitWorkspace has everything it needs.
func (p *CubemapProbe) canInitWorkspace() bool {
	return p.texture != nil && (!p.static || p.pcc.captureCubemap != nil)
}

// InitWorkspace creates the probe camera and the workspace rendering the probe. Static probes
// render into the shared capture cubemap of their ParallaxCorrectedCubemap and are copied into
// the probe cubemap afterwards, so the ParallaxCorrectedCubemap must be enabled first and the
// probe no larger than its maximum size.
//
// Returns:
//   - error: ErrInvalidState without a texture or with a disabled ParallaxCorrectedCubemap,
//     ErrInvalidParams for a static probe bigger than the capture cubemap, or a workspace error
func (p *CubemapProbe) InitWorkspace() error {
	if p.texture == nil {
		return fmt.Errorf("%w: probe %d has no texture, call SetTextureParams first", common.ErrInvalidState, p.id)
	}
	p.wantWorkspace = true
	target := p.texture
	if p.static {
		if p.pcc.captureCubemap == nil {
			return fmt.Errorf("%w: static probe %d needs an enabled parallax corrected cubemap", common.ErrInvalidState, p.id)
		}
		desc := p.pcc.captureCubemap.Descriptor()
		if p.width > desc.Width || p.height > desc.Height {
			return fmt.Errorf("%w: probe %d is %dx%d but the capture cubemap is %dx%d",
				common.ErrInvalidParams, p.id, p.width, p.height, desc.Width, desc.Height)
		}
		target = p.pcc.captureCubemap
	}

	p.destroyWorkspace()
	p.camera = p.pcc.sceneManager.CreateCamera(p.cameraName())
	p.camera.SetFov(math32.Pi / 2)
	p.camera.SetAspect(1)
	p.camera.SetNear(p.pcc.cameraNear)
	p.placeCamera()

	ws, err := p.pcc.manager.AddWorkspace(p.pcc.probeWorkspaceDef,
		compositor.WithCamera(p.camera),
		compositor.WithExternalTextures(target),
		compositor.WithEnabled(false),
	)
	if err != nil {
		p.pcc.sceneManager.DestroyCamera(p.camera)
		p.camera = nil
		return fmt.Errorf("probe %d workspace: %w", p.id, err)
	}
	p.workspace = ws
	p.dirty = true
	return nil
}

// placeCamera moves the camera to the capture position and pushes the far plane out to the
// farthest corner of the probe shape.
func (p *CubemapProbe) placeCamera() {
	p.camera.SetPosition(p.cameraPos)
	p.camera.SetOrientation(common.QuatIdentity())
	far := p.pcc.cameraNear
	for _, c := range common.BoxCorners(p.probeShape) {
		far = max(far, c.Sub(p.cameraPos).Length())
	}
	p.camera.SetFar(max(far, p.pcc.cameraNear*2))
}

// NDF returns the normalized distance field of a point in the probe's local space: 0 inside the
// inner region, 1 on the area boundary.
//
// Parameters:
//   - posLS: the point, relative to the area center and rotated by the inverse orientation
//
// Returns:
//   - float32: the distance, greater than 1 outside the area
func (p *CubemapProbe) NDF(posLS math32.Vector3) float32 {
	halfSize := p.area.Size().MulScalar(0.5)
	inner := p.areaInnerRegion.Mul(halfSize)
	outer := halfSize.Sub(inner)

	dist := posLS.Abs().Sub(inner).Max(math32.Vector3{})
	axis := func(d, o float32) float32 {
		if o <= 0 {
			if d > 0 {
				return math32.Inf(1)
			}
			return 0
		}
		return d / o
	}
	return max(axis(dist.X, outer.X), axis(dist.Y, outer.Y), axis(dist.Z, outer.Z))
}

// toLocal converts a world position into the probe's local space.
func (p *CubemapProbe) toLocal(pos math32.Vector3) math32.Vector3 {
	return pos.Sub(p.area.Center()).MulQuat(p.invOrientation)
}

// areaLS is the area in local space, centered on the origin.
func (p *CubemapProbe) areaLS() math32.Box3 {
	half := p.area.Size().MulScalar(0.5)
	return math32.Box3{Min: half.Negate(), Max: half}
}

// ID returns the probe id, unique within its ParallaxCorrectedCubemap.
func (p *CubemapProbe) ID() uint32 { return p.id }

// CameraPos returns where the cubemap is captured from.
func (p *CubemapProbe) CameraPos() math32.Vector3 { return p.cameraPos }

// Area returns the region the probe affects, before orientation.
func (p *CubemapProbe) Area() math32.Box3 { return p.area }

// AreaInnerRegion returns the per axis fraction of the area where the probe fully dominates.
func (p *CubemapProbe) AreaInnerRegion() math32.Vector3 { return p.areaInnerRegion }

// Orientation returns the rotation of the area and probe shape.
func (p *CubemapProbe) Orientation() math32.Quat { return p.orientation }

// ProbeShape returns the box the cubemap is reprojected against.
func (p *CubemapProbe) ProbeShape() math32.Box3 { return p.probeShape }

// Texture returns the probe cubemap, nil before SetTextureParams.
func (p *CubemapProbe) Texture() compositor.Texture { return p.texture }

// Camera returns the capture camera, nil before InitWorkspace.
func (p *CubemapProbe) Camera() camera.Camera { return p.camera }

// Workspace returns the capture workspace, nil before InitWorkspace.
func (p *CubemapProbe) Workspace() *compositor.Workspace { return p.workspace }

// NumIterations returns how many times the probe renders when refreshed.
func (p *CubemapProbe) NumIterations() uint32 { return p.numIterations }

// SetNumIterations sets how many times the probe renders when refreshed. Each iteration sees the
// reflections of the previous one. Zero is raised to one.
func (p *CubemapProbe) SetNumIterations(n uint32) {
	p.numIterations = max(n, 1)
}

// Mask returns the probe mask, ANDed with the mask of the ParallaxCorrectedCubemap.
func (p *CubemapProbe) Mask() uint32 { return p.mask }

// SetMask sets the probe mask.
func (p *CubemapProbe) SetMask(mask uint32) { p.mask = mask }

// Enabled reports whether the probe takes part in selection.
func (p *CubemapProbe) Enabled() bool { return p.enabled }

// SetEnabled includes or excludes the probe from selection.
func (p *CubemapProbe) SetEnabled(enabled bool) { p.enabled = enabled }

// Static reports whether the probe only renders when dirty.
func (p *CubemapProbe) Static() bool { return p.static }

// SetStatic switches between rendering once (static) and every frame the probe is used.
// Static probes render through the shared capture cubemap, so the workspace is recreated.
//
// Returns:
//   - error: an InitWorkspace error
func (p *CubemapProbe) SetStatic(static bool) error {
	if p.static == static {
		return nil
	}
	p.static = static
	p.dirty = true
	if p.wantWorkspace {
		p.destroyWorkspace()
		if p.canInitWorkspace() {
			return p.InitWorkspace()
		}
	}
	return nil
}

// Dirty reports whether the probe renders the next time it is used.
func (p *CubemapProbe) Dirty() bool { return p.dirty }

// MarkDirty makes a static probe render again the next time it is used.
func (p *CubemapProbe) MarkDirty() { p.dirty = true }

func (p *CubemapProbe) textureName() string {
	return fmt.Sprintf("%s/Probe%d", p.pcc.name, p.id)
}

func (p *CubemapProbe) cameraName() string {
	return fmt.Sprintf("%s/Probe%d/Camera", p.pcc.name, p.id)
}

func (p *CubemapProbe) destroyWorkspace() {
	if p.workspace != nil {
		if err := p.pcc.manager.RemoveWorkspace(p.workspace); err != nil {
			p.pcc.log.Warn("removing probe workspace failed", "probe", p.id, "error", err)
		}
		p.workspace = nil
	}
	if p.camera != nil {
		p.pcc.sceneManager.DestroyCamera(p.camera)
		p.camera = nil
	}
}

func (p *CubemapProbe) destroyTexture() {
	if p.texture != nil {
		p.pcc.renderSystem.DestroyTexture(p.texture)
		p.texture = nil
	}
}

func (p *CubemapProbe) destroy() {
	p.wantWorkspace = false
	p.destroyWorkspace()
	p.destroyTexture()
}

// mipCount returns the length of the full mip chain of a width x height texture.
func mipCount(width, height uint32) uint32 {
	n := uint32(1)
	for s := max(width, height); s > 1; s >>= 1 {
		n++
	}
	return n
}

package compositor

import (
	"math"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

// PassType identifies the kind of a pass definition.
type PassType int

const (
	PassTypeClear PassType = iota
	PassTypeQuad
	PassTypeScene
	PassTypeCompute
	PassTypeMipmap
	PassTypeDepthCopy
)

func (t PassType) String() string {
	switch t {
	case PassTypeClear:
		return "clear"
	case PassTypeQuad:
		return "quad"
	case PassTypeScene:
		return "scene"
	case PassTypeCompute:
		return "compute"
	case PassTypeMipmap:
		return "mipmap"
	case PassTypeDepthCopy:
		return "depth_copy"
	}
	return "unknown"
}

// InfiniteInitialPasses makes a pass execute every frame.
const InfiniteInitialPasses = math.MaxUint32

// DefaultExecutionMask is the execution mask passes are created with.
const DefaultExecutionMask uint8 = 0xFF

// Viewport is a viewport in normalized [0, 1] target coordinates.
type Viewport struct {
	Left, Top, Width, Height float32
}

// FullViewport covers the whole target.
var FullViewport = Viewport{Left: 0, Top: 0, Width: 1, Height: 1}

// Modify maps v into the sub-rectangle m.
func (v Viewport) Modify(m Viewport) Viewport {
	return Viewport{
		Left:   m.Left + v.Left*m.Width,
		Top:    m.Top + v.Top*m.Height,
		Width:  v.Width * m.Width,
		Height: v.Height * m.Height,
	}
}

// Resolve converts the viewport to texels for a target of the given size.
func (v Viewport) Resolve(width, height uint32) PixelViewport {
	return PixelViewport{
		X:      uint32(v.Left * float32(width)),
		Y:      uint32(v.Top * float32(height)),
		Width:  uint32(v.Width * float32(width)),
		Height: uint32(v.Height * float32(height)),
	}
}

// PassDefBase holds the settings shared by every pass definition.
type PassDefBase struct {
	// Identifier is a user value listeners can match passes by.
	Identifier uint32
	// ProfilingLabel names the pass in GPU captures.
	ProfilingLabel string
	Viewport       Viewport
	// ExecutionMask is ANDed with the workspace execution mask; the pass is skipped when the result is zero.
	ExecutionMask uint8
	// ViewportModifierMask is ANDed with the workspace viewport modifier mask; when non-zero the
	// workspace viewport modifier is applied to Viewport.
	ViewportModifierMask uint8
	IncludeOverlays      bool
	// NumInitialPasses is how many times the pass executes before it stops. InfiniteInitialPasses never stops.
	NumInitialPasses uint32

	// ShadowMapIdx ties the pass to a shadow map of its shadow node; -1 ties it to none.
	// A tied pass is skipped while its shadow map has no light assigned.
	ShadowMapIdx int
	// ShadowMapLightTypes restricts a tied pass to lights of these types. Zero allows any type.
	ShadowMapLightTypes light.LightTypeMask
	// ShadowMapFullViewport opts the pass out of the shadow map viewport check.
	ShadowMapFullViewport bool
}

func newPassDefBase() PassDefBase {
	return PassDefBase{
		Viewport:             FullViewport,
		ExecutionMask:        DefaultExecutionMask,
		ViewportModifierMask: DefaultExecutionMask,
		IncludeOverlays:      true,
		NumInitialPasses:     InfiniteInitialPasses,
		ShadowMapIdx:         -1,
	}
}

// PassDef is the closed set of pass definitions a TargetDef holds.
type PassDef interface {
	// Type returns the pass kind.
	//
	// Returns:
	//   - PassType: the pass kind
	Type() PassType

	// Base returns the settings shared by every pass kind.
	//
	// Returns:
	//   - *PassDefBase: the shared settings, mutable
	Base() *PassDefBase

	isPassDef()
}

// ClearBuffers selects which buffers a clear pass clears.
type ClearBuffers uint8

const (
	ClearColour ClearBuffers = 1 << iota
	ClearDepth
	ClearStencil
	ClearAll = ClearColour | ClearDepth | ClearStencil
)

// ClearPassDef clears the target.
type ClearPassDef struct {
	PassDefBase
	Buffers ClearBuffers
	Colour  [4]float32
	Depth   float32
	Stencil uint32
}

func (*ClearPassDef) Type() PassType       { return PassTypeClear }
func (d *ClearPassDef) Base() *PassDefBase { return &d.PassDefBase }
func (*ClearPassDef) isPassDef()           {}

// QuadTextureSource binds a texture to a material texture unit.
type QuadTextureSource struct {
	TexUnitIdx  uint32
	TextureName common.IdString
	textureStr  string
}

// QuadPassDef draws a fullscreen triangle with a material.
type QuadPassDef struct {
	PassDefBase
	MaterialName string
	// CameraName is the camera whose frustum corners the material may use. Blank uses the workspace camera.
	CameraName common.IdString
	Inputs     []QuadTextureSource
}

func (*QuadPassDef) Type() PassType       { return PassTypeQuad }
func (d *QuadPassDef) Base() *PassDefBase { return &d.PassDefBase }
func (*QuadPassDef) isPassDef()           {}

// AddQuadTextureSource binds textureName to texture unit texUnitIdx.
func (d *QuadPassDef) AddQuadTextureSource(texUnitIdx uint32, textureName string) {
	d.Inputs = append(d.Inputs, QuadTextureSource{
		TexUnitIdx:  texUnitIdx,
		TextureName: common.NewIdString(textureName),
		textureStr:  textureName,
	})
}

// ShadowNodeRecalculation controls whether a scene pass updates its shadow node before rendering.
type ShadowNodeRecalculation int

const (
	// ShadowNodeRecalculate updates the shadow node every time the pass executes.
	ShadowNodeRecalculate ShadowNodeRecalculation = iota
	// ShadowNodeFirstOnly updates it only for the first pass in the workspace using the same shadow node and camera.
	// Scene passes start with it.
	ShadowNodeFirstOnly
	// ShadowNodeReuse never updates it; the pass uses whatever the shadow node last rendered.
	ShadowNodeReuse
	// ShadowNodeCasterPass marks a pass that renders shadow casters inside a shadow node.
	ShadowNodeCasterPass
)

// ScenePassDef renders scene objects.
type ScenePassDef struct {
	PassDefBase
	// CameraName is the camera to render with. Blank uses the workspace camera.
	CameraName common.IdString
	// LodCameraName is the camera used for LOD selection. Blank uses the rendering camera.
	LodCameraName  common.IdString
	VisibilityMask uint32
	FirstRQ        uint8
	LastRQ         uint8
	// ShadowNode is the shadow node whose maps this pass samples. Blank uses none.
	ShadowNode common.IdString
	// ShadowNodeRecalculation defaults to ShadowNodeFirstOnly.
	ShadowNodeRecalculation ShadowNodeRecalculation
	// CameraCubemapReorient rotates the camera to face the cubemap face of the target slice.
	CameraCubemapReorient bool
	LodBias               float32
}

func (*ScenePassDef) Type() PassType       { return PassTypeScene }
func (d *ScenePassDef) Base() *PassDefBase { return &d.PassDefBase }
func (*ScenePassDef) isPassDef()           {}

// ComputeTextureSource binds a texture to a compute job slot.
type ComputeTextureSource struct {
	Slot        uint32
	TextureName common.IdString
	// Uav binds the texture for storage access; otherwise it is sampled and Access must be AccessRead.
	Uav    bool
	Access ResourceAccess
}

// ComputeBufferSource binds a buffer to a compute job slot.
type ComputeBufferSource struct {
	Slot       uint32
	BufferName common.IdString
	Access     ResourceAccess
}

// ComputePassDef dispatches a compute job.
type ComputePassDef struct {
	PassDefBase
	JobName        string
	TextureSources []ComputeTextureSource
	BufferSources  []ComputeBufferSource
	ThreadGroups   [3]uint32
}

func (*ComputePassDef) Type() PassType       { return PassTypeCompute }
func (d *ComputePassDef) Base() *PassDefBase { return &d.PassDefBase }
func (*ComputePassDef) isPassDef()           {}

// AddTextureSource binds textureName to slot.
func (d *ComputePassDef) AddTextureSource(slot uint32, textureName string, uav bool, access ResourceAccess) {
	d.TextureSources = append(d.TextureSources, ComputeTextureSource{
		Slot:        slot,
		TextureName: common.NewIdString(textureName),
		Uav:         uav,
		Access:      access,
	})
}

// AddBufferSource binds bufferName to slot.
func (d *ComputePassDef) AddBufferSource(slot uint32, bufferName string, access ResourceAccess) {
	d.BufferSources = append(d.BufferSources, ComputeBufferSource{
		Slot:       slot,
		BufferName: common.NewIdString(bufferName),
		Access:     access,
	})
}

// MipmapMethod selects how a mipmap pass generates the mip chain.
type MipmapMethod int

const (
	// MipmapMethodAPIDefault lets the RenderSystem pick its native path.
	MipmapMethodAPIDefault MipmapMethod = iota
	// MipmapMethodCompute downsamples with a compute job.
	MipmapMethodCompute
)

// MipmapPassDef generates the mip chain of the target.
type MipmapPassDef struct {
	PassDefBase
	Method MipmapMethod
}

func (*MipmapPassDef) Type() PassType       { return PassTypeMipmap }
func (d *MipmapPassDef) Base() *PassDefBase { return &d.PassDefBase }
func (*MipmapPassDef) isPassDef()           {}

// DepthCopyPassDef copies a texture into the target.
type DepthCopyPassDef struct {
	PassDefBase
	SourceTextureName common.IdString
}

func (*DepthCopyPassDef) Type() PassType       { return PassTypeDepthCopy }
func (d *DepthCopyPassDef) Base() *PassDefBase { return &d.PassDefBase }
func (*DepthCopyPassDef) isPassDef()           {}

func newPassDef(t PassType) PassDef {
	base := newPassDefBase()
	switch t {
	case PassTypeClear:
		return &ClearPassDef{PassDefBase: base, Buffers: ClearAll, Depth: 1}
	case PassTypeQuad:
		return &QuadPassDef{PassDefBase: base}
	case PassTypeScene:
		return &ScenePassDef{
			PassDefBase:             base,
			VisibilityMask:          math.MaxUint32,
			LastRQ:                  math.MaxUint8,
			ShadowNodeRecalculation: ShadowNodeFirstOnly,
		}
	case PassTypeCompute:
		return &ComputePassDef{PassDefBase: base, ThreadGroups: [3]uint32{1, 1, 1}}
	case PassTypeMipmap:
		return &MipmapPassDef{PassDefBase: base}
	case PassTypeDepthCopy:
		return &DepthCopyPassDef{PassDefBase: base}
	}
	return nil
}

package compositor

import (
	"fmt"

	"cogentcore.org/core/math32"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
)

// Pass is a live instance of a PassDef inside a node.
type Pass interface {
	// Type returns the pass kind.
	//
	// Returns:
	//   - PassType: the pass kind
	Type() PassType

	// Definition returns the definition the pass was instanced from.
	//
	// Returns:
	//   - PassDef: the definition
	Definition() PassDef

	// Parent returns the node the pass belongs to.
	//
	// Returns:
	//   - *Node: the owning node
	Parent() *Node

	// Target returns the texture view the pass renders into.
	//
	// Returns:
	//   - RenderTargetView: the target
	Target() RenderTargetView

	// ResourceUses lists every resource the pass touches, in the order the hazard analysis visits them.
	//
	// Returns:
	//   - []ResourceUse: the resource uses
	ResourceUses() []ResourceUse

	// Barriers returns the transitions executed before the pass.
	//
	// Returns:
	//   - []ResourceTransition: the transitions placed by the last hazard analysis
	Barriers() []ResourceTransition

	// NumPassesLeft returns how many more times the pass will execute.
	//
	// Returns:
	//   - uint32: the remaining executions, or InfiniteInitialPasses
	NumPassesLeft() uint32

	execute(lodCamera camera.Camera) error
	core() *passBase
}

type passBase struct {
	def           PassDef
	parent        *Node
	target        RenderTargetView
	numPassesLeft uint32
	barriers      []ResourceTransition
}

func newPassBase(def PassDef, parent *Node, target RenderTargetView) passBase {
	return passBase{
		def:           def,
		parent:        parent,
		target:        target,
		numPassesLeft: def.Base().NumInitialPasses,
	}
}

func (p *passBase) Type() PassType                 { return p.def.Type() }
func (p *passBase) Definition() PassDef            { return p.def }
func (p *passBase) Parent() *Node                  { return p.parent }
func (p *passBase) Target() RenderTargetView       { return p.target }
func (p *passBase) Barriers() []ResourceTransition { return p.barriers }
func (p *passBase) NumPassesLeft() uint32          { return p.numPassesLeft }
func (p *passBase) core() *passBase                { return p }

// shouldExecute applies the pass count, the execution mask, and the shadow map gating.
func (p *passBase) shouldExecute() bool {
	if p.numPassesLeft == 0 {
		return false
	}
	base := p.def.Base()
	ws := p.parent.workspace
	if base.ExecutionMask&ws.executionMask == 0 {
		return false
	}
	if sn := p.parent.shadowNode; sn != nil && base.ShadowMapIdx >= 0 {
		return sn.isPassActive(base)
	}
	return true
}

// skip still issues the pass barriers, so the layouts the hazard analysis assumed stay true.
func (p *passBase) skip() {
	if len(p.barriers) > 0 {
		p.parent.workspace.renderSystem.ExecuteResourceTransitions(p.barriers)
	}
}

func (p *passBase) viewport() PixelViewport {
	if p.target.Texture == nil {
		return PixelViewport{}
	}
	base := p.def.Base()
	ws := p.parent.workspace
	vp := base.Viewport
	if base.ViewportModifierMask&ws.viewportModifierMask != 0 {
		vp = vp.Modify(ws.viewportModifier)
	}
	desc := p.target.Texture.Descriptor()
	return vp.Resolve(max(desc.Width>>p.target.MipLevel, 1), max(desc.Height>>p.target.MipLevel, 1))
}

// run notifies listeners before building the context, so whatever they change on the pass is
// part of this execution.
func (p *passBase) run(self Pass, build func() *PassContext) error {
	ws := p.parent.workspace
	if len(p.barriers) > 0 {
		ws.renderSystem.ExecuteResourceTransitions(p.barriers)
	}
	ws.notifyPassPreExecute(self)
	ctx := build()
	ctx.Pass = self
	ctx.Workspace = ws
	ctx.Node = p.parent
	ctx.Target = p.target
	ctx.Viewport = p.viewport()

	err := ws.renderSystem.ExecutePass(ctx)
	ws.notifyPassPosExecute(self)

	if p.numPassesLeft != InfiniteInitialPasses {
		p.numPassesLeft--
	}
	if err != nil {
		return fmt.Errorf("%s pass of node %q: %w", p.def.Type(), p.parent.AliasStr(), err)
	}
	return nil
}

func (p *passBase) targetUse(layout ResourceLayout, access ResourceAccess) []ResourceUse {
	if p.target.Texture == nil {
		return nil
	}
	return []ResourceUse{{Resource: p.target.Texture, Layout: layout, Access: access}}
}

// ClearPass clears its target.
type ClearPass struct {
	passBase
	def *ClearPassDef
}

var _ Pass = &ClearPass{}

func (p *ClearPass) ResourceUses() []ResourceUse {
	return p.targetUse(ResourceLayoutRenderTarget, AccessWrite)
}

func (p *ClearPass) execute(camera.Camera) error {
	if !p.shouldExecute() {
		p.skip()
		return nil
	}
	return p.run(p, func() *PassContext { return &PassContext{} })
}

// QuadPass draws a fullscreen triangle with a material.
type QuadPass struct {
	passBase
	def          *QuadPassDef
	inputs       []Texture
	camera       camera.Camera
	shaderParams []byte
}

var _ Pass = &QuadPass{}

// Inputs returns the textures bound to the material, in the order they were declared.
func (p *QuadPass) Inputs() []Texture {
	return p.inputs
}

// SetShaderParams attaches bytes the material reads on the next executions. Listeners usually
// call it from PassPreExecute.
func (p *QuadPass) SetShaderParams(params []byte) {
	p.shaderParams = params
}

// ShaderParams returns the bytes last set with SetShaderParams.
func (p *QuadPass) ShaderParams() []byte {
	return p.shaderParams
}

func (p *QuadPass) ResourceUses() []ResourceUse {
	uses := make([]ResourceUse, 0, len(p.inputs)+1)
	for _, tex := range p.inputs {
		uses = append(uses, ResourceUse{Resource: tex, Layout: ResourceLayoutTexture, Access: AccessRead})
	}
	return append(uses, p.targetUse(ResourceLayoutRenderTarget, AccessWrite)...)
}

func (p *QuadPass) execute(camera.Camera) error {
	if !p.shouldExecute() {
		p.skip()
		return nil
	}
	return p.run(p, func() *PassContext {
		return &PassContext{
			Camera:       p.camera,
			Inputs:       p.inputs,
			ShaderParams: p.shaderParams,
		}
	})
}

// ScenePass renders scene objects, updating its shadow node first when configured to.
type ScenePass struct {
	passBase
	def              *ScenePassDef
	camera           camera.Camera
	lodCamera        camera.Camera
	shadowNode       *ShadowNode
	updateShadowNode bool
	// shadowBarriers are the barriers of each shadow node pass for the update this pass runs.
	shadowBarriers [][]ResourceTransition
}

var _ Pass = &ScenePass{}

// Camera returns the camera the pass renders with. Inside a shadow node it is the camera of
// the pass's shadow map.
func (p *ScenePass) Camera() camera.Camera {
	if sn := p.parent.shadowNode; sn != nil {
		return sn.ShadowCamera(p.def.ShadowMapIdx)
	}
	return p.camera
}

// ShadowNode returns the shadow node the pass samples, nil if none.
func (p *ScenePass) ShadowNode() *ShadowNode {
	return p.shadowNode
}

// UpdatesShadowNode reports whether executing the pass recalculates its shadow node.
func (p *ScenePass) UpdatesShadowNode() bool {
	return p.updateShadowNode
}

func (p *ScenePass) ResourceUses() []ResourceUse {
	var uses []ResourceUse
	if p.shadowNode != nil {
		for _, tex := range p.shadowNode.ContiguousShadowMapTextures() {
			uses = append(uses, ResourceUse{Resource: tex, Layout: ResourceLayoutTexture, Access: AccessRead})
		}
	}
	return append(uses, p.targetUse(ResourceLayoutRenderTarget, AccessReadWrite)...)
}

func (p *ScenePass) execute(lodCamera camera.Camera) error {
	if !p.shouldExecute() {
		if p.shadowNode != nil && p.updateShadowNode {
			for _, barriers := range p.shadowBarriers {
				if len(barriers) > 0 {
					p.parent.workspace.renderSystem.ExecuteResourceTransitions(barriers)
				}
			}
		}
		p.skip()
		return nil
	}

	cam := p.Camera()
	if cam == nil {
		return fmt.Errorf("%w: scene pass of node %q has no camera", common.ErrInvalidState, p.parent.AliasStr())
	}
	lod := p.lodCamera
	if lod == nil {
		lod = lodCamera
	}
	if lod == nil {
		lod = cam
	}

	if p.shadowNode != nil && p.updateShadowNode {
		for i, shadowPass := range p.shadowNode.passes {
			if i < len(p.shadowBarriers) {
				shadowPass.core().barriers = p.shadowBarriers[i]
			}
		}
		if err := p.shadowNode.Update(cam, lod, p.def.VisibilityMask); err != nil {
			return err
		}
	}

	if p.def.CameraCubemapReorient {
		old := cam.Orientation()
		cam.SetOrientation(common.QuatMul(old, cubemapFaceOrientation(p.target.Slice)))
		defer cam.SetOrientation(old)
	}

	return p.run(p, func() *PassContext {
		return &PassContext{
			Camera:     cam,
			LodCamera:  lod,
			ShadowNode: p.shadowNode,
		}
	})
}

// cubemapFaceOrientation returns the rotation from a camera looking down -Z to the cubemap
// face of the given slice (+X, -X, +Y, -Y, +Z, -Z).
func cubemapFaceOrientation(slice uint32) math32.Quat {
	type face struct{ dir, up math32.Vector3 }
	faces := [6]face{
		{math32.Vec3(1, 0, 0), math32.Vec3(0, -1, 0)},
		{math32.Vec3(-1, 0, 0), math32.Vec3(0, -1, 0)},
		{math32.Vec3(0, 1, 0), math32.Vec3(0, 0, 1)},
		{math32.Vec3(0, -1, 0), math32.Vec3(0, 0, -1)},
		{math32.Vec3(0, 0, 1), math32.Vec3(0, -1, 0)},
		{math32.Vec3(0, 0, -1), math32.Vec3(0, -1, 0)},
	}
	f := faces[slice%6]
	return common.QuatFromDirection(f.dir, f.up)
}

// ComputePass dispatches a compute job.
type ComputePass struct {
	passBase
	def      *ComputePassDef
	textures []Texture
	buffers  []Buffer
}

var _ Pass = &ComputePass{}

func (p *ComputePass) ResourceUses() []ResourceUse {
	uses := make([]ResourceUse, 0, len(p.textures)+len(p.buffers))
	for i, src := range p.def.TextureSources {
		if src.Uav {
			uses = append(uses, ResourceUse{Resource: p.textures[i], Layout: ResourceLayoutUav, Access: src.Access})
		} else {
			uses = append(uses, ResourceUse{Resource: p.textures[i], Layout: ResourceLayoutTexture, Access: AccessRead})
		}
	}
	for i, src := range p.def.BufferSources {
		uses = append(uses, ResourceUse{Resource: p.buffers[i], Layout: ResourceLayoutUav, Access: src.Access})
	}
	return uses
}

func (p *ComputePass) execute(camera.Camera) error {
	if !p.shouldExecute() {
		p.skip()
		return nil
	}
	return p.run(p, func() *PassContext { return &PassContext{Inputs: p.textures, Buffers: p.buffers} })
}

// MipmapPass generates the mip chain of its target.
type MipmapPass struct {
	passBase
	def *MipmapPassDef
}

var _ Pass = &MipmapPass{}

func (p *MipmapPass) ResourceUses() []ResourceUse {
	return p.targetUse(ResourceLayoutMipmapGen, AccessReadWrite)
}

func (p *MipmapPass) execute(camera.Camera) error {
	if !p.shouldExecute() {
		p.skip()
		return nil
	}
	return p.run(p, func() *PassContext { return &PassContext{} })
}

// DepthCopyPass copies a texture into its target.
type DepthCopyPass struct {
	passBase
	def    *DepthCopyPassDef
	source Texture
}

var _ Pass = &DepthCopyPass{}

func (p *DepthCopyPass) ResourceUses() []ResourceUse {
	uses := []ResourceUse{{Resource: p.source, Layout: ResourceLayoutCopySrc, Access: AccessRead}}
	return append(uses, p.targetUse(ResourceLayoutCopyDst, AccessWrite)...)
}

func (p *DepthCopyPass) execute(camera.Camera) error {
	if !p.shouldExecute() {
		p.skip()
		return nil
	}
	return p.run(p, func() *PassContext { return &PassContext{Inputs: []Texture{p.source}} })
}

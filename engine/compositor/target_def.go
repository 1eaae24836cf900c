package compositor

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// TargetDef is an ordered list of passes that render into one texture (or one slice of it).
type TargetDef struct {
	renderTargetName    common.IdString
	renderTargetNameStr string
	slice               uint32
	passes              []PassDef
}

// RenderTargetName returns the name of the texture the passes render into.
func (t *TargetDef) RenderTargetName() common.IdString {
	return t.renderTargetName
}

// RenderTargetNameStr returns the render target name as it was declared.
func (t *TargetDef) RenderTargetNameStr() string {
	return t.renderTargetNameStr
}

// Slice returns the array slice (or cubemap face) the passes render into.
func (t *TargetDef) Slice() uint32 {
	return t.slice
}

// Passes returns the pass definitions in execution order.
func (t *TargetDef) Passes() []PassDef {
	return t.passes
}

// NumPasses returns the number of pass definitions.
func (t *TargetDef) NumPasses() int {
	return len(t.passes)
}

// AddPass appends a pass of the given type with default settings.
func (t *TargetDef) AddPass(passType PassType) PassDef {
	def := newPassDef(passType)
	t.passes = append(t.passes, def)
	return def
}

// AddClearPass appends a clear pass.
func (t *TargetDef) AddClearPass() *ClearPassDef {
	return t.AddPass(PassTypeClear).(*ClearPassDef)
}

// AddQuadPass appends a quad pass.
func (t *TargetDef) AddQuadPass() *QuadPassDef {
	return t.AddPass(PassTypeQuad).(*QuadPassDef)
}

// AddScenePass appends a scene pass.
func (t *TargetDef) AddScenePass() *ScenePassDef {
	return t.AddPass(PassTypeScene).(*ScenePassDef)
}

// AddComputePass appends a compute pass.
func (t *TargetDef) AddComputePass() *ComputePassDef {
	return t.AddPass(PassTypeCompute).(*ComputePassDef)
}

// AddMipmapPass appends a mipmap generation pass.
func (t *TargetDef) AddMipmapPass() *MipmapPassDef {
	return t.AddPass(PassTypeMipmap).(*MipmapPassDef)
}

// AddDepthCopyPass appends a copy pass reading from sourceTexture.
func (t *TargetDef) AddDepthCopyPass(sourceTexture string) *DepthCopyPassDef {
	def := t.AddPass(PassTypeDepthCopy).(*DepthCopyPassDef)
	def.SourceTextureName = common.NewIdString(sourceTexture)
	return def
}

// RemovePass removes the pass at idx.
func (t *TargetDef) RemovePass(idx int) error {
	if idx < 0 || idx >= len(t.passes) {
		return fmt.Errorf("%w: pass index %d out of range [0, %d)", common.ErrInvalidParams, idx, len(t.passes))
	}
	t.passes = append(t.passes[:idx], t.passes[idx+1:]...)
	return nil
}

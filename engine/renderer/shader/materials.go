package shader

import (
	_ "embed"
	"errors"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
	"github.com/Carmen-Shannon/oxy-compositor/engine/cubemap"
)

// IncludeFullscreenQuad names the fullscreen triangle vertex stage and cube_face_dir.
const IncludeFullscreenQuad = "fullscreen_quad"

// FullscreenQuadSource is the vertex stage shared by quad materials.
//
//go:embed assets/fullscreen_quad.wgsl
var FullscreenQuadSource string

// CopyCubemapSource copies one face of a cubemap; it reads a CopyFaceParams uniform.
//
//go:embed assets/copy_cubemap.wgsl
var CopyCubemapSource string

// BlendCubemapSource reprojects up to four probes into one face of the blended cubemap; it reads
// the CubemapBlendParams the parallax corrected cubemap attaches to its blend passes.
//
//go:embed assets/blend_cubemap.wgsl
var BlendCubemapSource string

// CubeToAtlasSource unwraps a point light shadow cubemap into its atlas region.
//
//go:embed assets/cube_to_atlas.wgsl
var CubeToAtlasSource string

// Material is a quad material: the shader drawing it and the uniform struct its pass parameters
// fill. ParamsStruct is empty when the quad pass carries no parameters. Sampler is bound to every
// sampler binding of the shader; the zero block filters linearly.
type Material struct {
	Name         string
	Shader       Shader
	ParamsStruct string
	Sampler      common.SamplerStagingData
}

// ParamsSize returns the byte size of the parameter struct, or 0 if the material has none.
//
// Returns:
//   - uint64: the size in bytes
func (m Material) ParamsSize() uint64 {
	if m.ParamsStruct == "" {
		return 0
	}
	l, _ := m.Shader.StructLayout(m.ParamsStruct)
	return l.Size
}

// BuiltinMaterials reflects the quad materials the compositor's generated nodes reference.
//
// Returns:
//   - []Material: the copy and blend materials of the parallax corrected cubemap, and the shadow node's cube to atlas material
//   - error: an error if a material failed to reflect
func BuiltinMaterials() ([]Material, error) {
	pp := NewPreProcessor()
	builtins := []struct {
		name, source, params string
		sampler              common.SamplerStagingData
	}{
		{cubemap.CopyMaterial, CopyCubemapSource, "CopyFaceParams", common.TrilinearSampler()},
		{cubemap.BlendMaterial, BlendCubemapSource, "CubemapBlendParams", common.TrilinearSampler()},
		{compositor.CubeToAtlasMaterial, CubeToAtlasSource, "", common.PointSampler()},
	}
	materials := make([]Material, 0, len(builtins))
	var errs []error
	for _, b := range builtins {
		s, err := NewShader(b.name, ShaderTypeFragment, b.source, pp)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		materials = append(materials, Material{Name: b.name, Shader: s, ParamsStruct: b.params, Sampler: b.sampler})
	}
	return materials, errors.Join(errs...)
}

package compositor

import (
	"fmt"
	"math"
	"sort"

	"cogentcore.org/core/math32"
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

// MaxPssmSplits is the largest number of PSSM splits a ShadowParam can request.
const MaxPssmSplits = 4

// ShadowParam describes one shadow casting light slot for CreateShadowNodeWithSettings.
type ShadowParam struct {
	// SupportedLightTypes are the light types the slot accepts.
	SupportedLightTypes light.LightTypeMask
	Technique           ShadowMapTechnique
	// NumPssmSplits is the number of splits for ShadowMapPssm, ignored otherwise.
	NumPssmSplits uint8
	// AtlasID selects the atlas texture the maps of this slot live in.
	AtlasID uint8
	// AtlasStart is the texel origin of each split's map in the atlas.
	AtlasStart [MaxPssmSplits][2]uint32
	// Resolution is the texel size of each split's map.
	Resolution [MaxPssmSplits][2]uint32
}

// SetSplit places split split of the slot at (x, y) in the atlas with the given size.
func (p *ShadowParam) SetSplit(split int, x, y, width, height uint32) {
	p.AtlasStart[split] = [2]uint32{x, y}
	p.Resolution[split] = [2]uint32{width, height}
}

func (p *ShadowParam) numSplits() int {
	if p.Technique == ShadowMapPssm {
		return int(p.NumPssmSplits)
	}
	return 1
}

type shadowNodeHelperOptions struct {
	useEsm                      bool
	pointLightCubemapResolution uint32
	pssmLambda                  float32
	splitPadding                float32
	splitBlend                  float32
	splitFade                   float32
	numStableSplits             uint32
	visibilityMask              uint32
	depthFormat                 wgpu.TextureFormat
	esmFormat                   wgpu.TextureFormat
	firstRq, lastRq             uint8
}

// ShadowNodeHelperOption is a functional option for CreateShadowNodeWithSettings.
type ShadowNodeHelperOption func(o *shadowNodeHelperOptions)

// WithEsm renders exponential shadow maps and blurs them with a separable gaussian compute filter.
func WithEsm(useEsm bool) ShadowNodeHelperOption {
	return func(o *shadowNodeHelperOptions) {
		o.useEsm = useEsm
	}
}

// WithPointLightCubemapResolution sets the size of the cubemap point lights render into before
// being reprojected into the atlas. Defaults to 1024.
func WithPointLightCubemapResolution(resolution uint32) ShadowNodeHelperOption {
	return func(o *shadowNodeHelperOptions) {
		o.pointLightCubemapResolution = resolution
	}
}

// WithPssmLambda sets the PSSM split distribution. Defaults to 0.95.
func WithPssmLambda(lambda float32) ShadowNodeHelperOption {
	return func(o *shadowNodeHelperOptions) {
		o.pssmLambda = lambda
	}
}

// WithPssmSplitSettings sets the PSSM padding, blend, and fade ranges.
func WithPssmSplitSettings(padding, blend, fade float32) ShadowNodeHelperOption {
	return func(o *shadowNodeHelperOptions) {
		o.splitPadding = padding
		o.splitBlend = blend
		o.splitFade = fade
	}
}

// WithNumStableSplits sets how many of the nearest PSSM splits use a rotation invariant fit.
func WithNumStableSplits(n uint32) ShadowNodeHelperOption {
	return func(o *shadowNodeHelperOptions) {
		o.numStableSplits = n
	}
}

// WithShadowVisibilityMask sets the visibility mask of every caster pass.
func WithShadowVisibilityMask(mask uint32) ShadowNodeHelperOption {
	return func(o *shadowNodeHelperOptions) {
		o.visibilityMask = mask
	}
}

// WithShadowRenderQueues restricts caster passes to render queues [first, last].
func WithShadowRenderQueues(first, last uint8) ShadowNodeHelperOption {
	return func(o *shadowNodeHelperOptions) {
		o.firstRq = first
		o.lastRq = last
	}
}

// WithShadowDepthFormat sets the atlas format for depth shadow maps. Defaults to Depth32Float.
func WithShadowDepthFormat(format wgpu.TextureFormat) ShadowNodeHelperOption {
	return func(o *shadowNodeHelperOptions) {
		o.depthFormat = format
	}
}

// atlasName is the name of the atlas texture with the given id.
func atlasName(id uint8) string {
	return fmt.Sprintf("atlas%d", id)
}

const (
	tmpCubemapName = "tmpCubemap"
	// Materials and compute jobs the generated passes reference.
	CubeToAtlasMaterial = "Shadow/CubeToAtlas"
	EsmFilterJobH       = "ESM/GaussianLogFilterH"
	EsmFilterJobV       = "ESM/GaussianLogFilterV"
)

// CreateShadowNodeWithSettings builds a complete shadow node definition from a list of light
// slots: one atlas texture per atlas id, a target per atlas with a clear pass and one caster
// pass per shadow map, a temporary cubemap plus reprojection passes when any slot accepts point
// lights, and optional ESM filter passes.
//
// Parameters:
//   - m: the manager to register the definition with
//   - name: the shadow node definition name
//   - params: one entry per light slot, in slot order
//   - options: functional options
//
// Returns:
//   - *ShadowNodeDef: the validated definition
//   - error: ErrInvalidParams for malformed params, ErrDuplicateItem if the name is taken
func CreateShadowNodeWithSettings(m *Manager, name string, params []ShadowParam, options ...ShadowNodeHelperOption) (*ShadowNodeDef, error) {
	o := shadowNodeHelperOptions{
		pointLightCubemapResolution: 1024,
		pssmLambda:                  0.95,
		splitPadding:                1,
		splitBlend:                  0.125,
		splitFade:                   0.313,
		visibilityMask:              math.MaxUint32,
		depthFormat:                 wgpu.TextureFormatDepth32Float,
		esmFormat:                   wgpu.TextureFormatR32Float,
		lastRq:                      255,
	}
	for _, opt := range options {
		opt(&o)
	}

	if len(params) == 0 {
		return nil, fmt.Errorf("%w: shadow node %q needs at least one shadow param", common.ErrInvalidParams, name)
	}
	atlasSizes := map[uint8][2]uint32{}
	hasPointLights := false
	for i, p := range params {
		if p.SupportedLightTypes == 0 {
			return nil, fmt.Errorf("%w: shadow param %d supports no light types", common.ErrInvalidParams, i)
		}
		if p.Technique == ShadowMapPssm {
			if p.NumPssmSplits < 1 || p.NumPssmSplits > MaxPssmSplits {
				return nil, fmt.Errorf("%w: shadow param %d asks for %d PSSM splits, expected 1 to %d",
					common.ErrInvalidParams, i, p.NumPssmSplits, MaxPssmSplits)
			}
			if p.SupportedLightTypes != light.LightTypeMaskDirectional {
				return nil, fmt.Errorf("%w: shadow param %d uses PSSM, which only supports directional lights", common.ErrInvalidParams, i)
			}
		}
		hasPointLights = hasPointLights || p.SupportedLightTypes.Has(light.LightTypePoint)
		size := atlasSizes[p.AtlasID]
		for s := range p.numSplits() {
			if p.Resolution[s][0] == 0 || p.Resolution[s][1] == 0 {
				return nil, fmt.Errorf("%w: shadow param %d split %d has no resolution", common.ErrInvalidParams, i, s)
			}
			size[0] = max(size[0], p.AtlasStart[s][0]+p.Resolution[s][0])
			size[1] = max(size[1], p.AtlasStart[s][1]+p.Resolution[s][1])
		}
		atlasSizes[p.AtlasID] = size
	}
	atlasIDs := make([]uint8, 0, len(atlasSizes))
	for id := range atlasSizes {
		atlasIDs = append(atlasIDs, id)
	}
	sort.Slice(atlasIDs, func(i, j int) bool { return atlasIDs[i] < atlasIDs[j] })

	def, err := m.AddShadowNodeDefinition(name)
	if err != nil {
		return nil, err
	}

	for _, id := range atlasIDs {
		tex, err := def.AddTextureDefinition(atlasName(id))
		if err != nil {
			return nil, err
		}
		tex.Width, tex.Height = atlasSizes[id][0], atlasSizes[id][1]
		tex.Format = o.depthFormat
		if o.useEsm {
			tex.Format = o.esmFormat
			tex.Uav = true
			tmp, err := def.AddTextureDefinition(atlasName(id) + "/esmTmp")
			if err != nil {
				return nil, err
			}
			tmp.Width, tmp.Height, tmp.Format, tmp.Uav = tex.Width, tex.Height, o.esmFormat, true
		}
	}
	if hasPointLights {
		cube, err := def.AddTextureDefinition(tmpCubemapName)
		if err != nil {
			return nil, err
		}
		cube.Type = TextureTypeCube
		cube.Width, cube.Height = o.pointLightCubemapResolution, o.pointLightCubemapResolution
		cube.Format = o.depthFormat
		if o.useEsm {
			cube.Format = o.esmFormat
		}
	}

	type shadowMap struct {
		idx   int
		param *ShadowParam
		split int
	}
	var maps []shadowMap
	for lightIdx := range params {
		p := &params[lightIdx]
		def.SetLightTypesMask(uint32(lightIdx), p.SupportedLightTypes)
		size := atlasSizes[p.AtlasID]
		for split := range p.numSplits() {
			uvOffset := math32.Vec2(float32(p.AtlasStart[split][0])/float32(size[0]), float32(p.AtlasStart[split][1])/float32(size[1]))
			uvLength := math32.Vec2(float32(p.Resolution[split][0])/float32(size[0]), float32(p.Resolution[split][1])/float32(size[1]))
			texDef, err := def.AddShadowTextureDefinition(uint32(lightIdx), uint32(split), atlasName(p.AtlasID), uvOffset, uvLength, 0)
			if err != nil {
				return nil, err
			}
			texDef.Technique = p.Technique
			if p.Technique == ShadowMapPssm {
				texDef.NumSplits = uint32(p.NumPssmSplits)
				texDef.PssmLambda = o.pssmLambda
				texDef.SplitPadding = o.splitPadding
				texDef.SplitBlend = o.splitBlend
				texDef.SplitFade = o.splitFade
				texDef.NumStableSplits = o.numStableSplits
			}
			maps = append(maps, shadowMap{idx: def.NumShadowTextureDefinitions() - 1, param: p, split: split})
		}
	}

	regionViewport := func(sm shadowMap) Viewport {
		size := atlasSizes[sm.param.AtlasID]
		return Viewport{
			Left:   float32(sm.param.AtlasStart[sm.split][0]) / float32(size[0]),
			Top:    float32(sm.param.AtlasStart[sm.split][1]) / float32(size[1]),
			Width:  float32(sm.param.Resolution[sm.split][0]) / float32(size[0]),
			Height: float32(sm.param.Resolution[sm.split][1]) / float32(size[1]),
		}
	}
	casterPass := func(target *TargetDef, sm shadowMap, lightTypes light.LightTypeMask) *ScenePassDef {
		pass := target.AddScenePass()
		pass.IncludeOverlays = false
		pass.ShadowMapIdx = sm.idx
		pass.ShadowMapLightTypes = lightTypes
		pass.VisibilityMask = o.visibilityMask
		pass.FirstRQ, pass.LastRQ = o.firstRq, o.lastRq
		pass.ShadowNodeRecalculation = ShadowNodeCasterPass
		return pass
	}

	// Directional and spot maps render straight into the atlas.
	for _, id := range atlasIDs {
		target := def.AddTargetPass(atlasName(id), 0)
		clearPass := target.AddClearPass()
		clearPass.IncludeOverlays = false
		clearPass.Colour = [4]float32{1, 1, 1, 1}
		clearPass.Depth = 1
		for _, sm := range maps {
			if sm.param.AtlasID != id {
				continue
			}
			direct := sm.param.SupportedLightTypes &^ light.LightTypeMaskPoint
			if direct == 0 {
				continue
			}
			pass := casterPass(target, sm, direct)
			pass.Viewport = regionViewport(sm)
		}
	}

	// Point maps render into a cubemap, then get reprojected into their atlas region.
	if hasPointLights {
		for _, sm := range maps {
			if !sm.param.SupportedLightTypes.Has(light.LightTypePoint) {
				continue
			}
			for face := range uint32(6) {
				target := def.AddTargetPass(tmpCubemapName, face)
				clearPass := target.AddClearPass()
				clearPass.IncludeOverlays = false
				clearPass.Colour = [4]float32{1, 1, 1, 1}
				clearPass.ShadowMapIdx = sm.idx
				clearPass.ShadowMapLightTypes = light.LightTypeMaskPoint
				clearPass.ShadowMapFullViewport = true
				pass := casterPass(target, sm, light.LightTypeMaskPoint)
				pass.CameraCubemapReorient = true
				pass.ShadowMapFullViewport = true
			}
			target := def.AddTargetPass(atlasName(sm.param.AtlasID), 0)
			quad := target.AddQuadPass()
			quad.IncludeOverlays = false
			quad.MaterialName = CubeToAtlasMaterial
			quad.AddQuadTextureSource(0, tmpCubemapName)
			quad.ShadowMapIdx = sm.idx
			quad.ShadowMapLightTypes = light.LightTypeMaskPoint
			quad.Viewport = regionViewport(sm)
		}
	}

	if o.useEsm {
		for _, sm := range maps {
			atlas := atlasName(sm.param.AtlasID)
			tmp := atlas + "/esmTmp"

			horizontal := def.AddTargetPass(tmp, 0).AddComputePass()
			horizontal.IncludeOverlays = false
			horizontal.JobName = EsmFilterJobH
			horizontal.ShadowMapIdx = sm.idx
			horizontal.AddTextureSource(0, atlas, false, AccessRead)
			horizontal.AddTextureSource(1, tmp, true, AccessWrite)

			vertical := def.AddTargetPass(atlas, 0).AddComputePass()
			vertical.IncludeOverlays = false
			vertical.JobName = EsmFilterJobV
			vertical.ShadowMapIdx = sm.idx
			vertical.AddTextureSource(0, tmp, false, AccessRead)
			vertical.AddTextureSource(1, atlas, true, AccessWrite)
		}
	}

	if err := def.ValidateAndFinish(); err != nil {
		return nil, err
	}
	return def, nil
}

package compositor

import (
	"fmt"
	"math"

	"cogentcore.org/core/math32"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

// ShadowMapTechnique selects how a shadow map camera is fitted to the view.
type ShadowMapTechnique int

const (
	ShadowMapUniform ShadowMapTechnique = iota
	ShadowMapFocused
	ShadowMapPssm
)

func (t ShadowMapTechnique) String() string {
	switch t {
	case ShadowMapUniform:
		return "uniform"
	case ShadowMapFocused:
		return "focused"
	case ShadowMapPssm:
		return "pssm"
	}
	return "unknown"
}

// NoSharedSetup marks a shadow texture definition that owns its camera setup.
const NoSharedSetup = math.MaxInt

// ShadowTextureDefinition binds a (light, split) pair of a shadow node to a region of a texture.
type ShadowTextureDefinition struct {
	// Light is the light slot index inside the shadow node, not an index into the scene's lights.
	Light uint32
	// Split is the PSSM split this map renders. Zero for non PSSM techniques.
	Split uint32

	TextureName common.IdString
	textureStr  string

	// UvOffset and UvLength locate the map inside the texture in normalized coordinates.
	UvOffset math32.Vector2
	UvLength math32.Vector2
	ArrayIdx uint8

	Technique ShadowMapTechnique
	NumSplits uint32
	// PssmLambda blends logarithmic (1) and linear (0) split distribution.
	PssmLambda      float32
	SplitPadding    float32
	SplitBlend      float32
	SplitFade       float32
	NumStableSplits uint32
	// MaxDistance caps how far from the camera shadows are rendered. Zero uses the camera's far
	// plane clamped to light.DefaultShadowFar.
	MaxDistance float32

	sharesSetupWith int
}

// TextureNameStr returns the atlas texture name as it was declared.
func (s *ShadowTextureDefinition) TextureNameStr() string {
	return s.textureStr
}

// SharesSetupWith returns the index of the definition whose camera setup this one reuses, or
// NoSharedSetup if it owns its setup.
func (s *ShadowTextureDefinition) SharesSetupWith() int {
	return s.sharesSetupWith
}

// ShadowNodeDef is a NodeDef that also declares shadow maps and the light types each light slot accepts.
type ShadowNodeDef struct {
	NodeDef

	shadowMapTexDefs []*ShadowTextureDefinition
	lightTypesMask   []light.LightTypeMask
	lightsSeen       map[uint32]struct{}
	minRq, maxRq     uint8
	defaultTechnique ShadowMapTechnique
}

func newShadowNodeDef(name string) *ShadowNodeDef {
	return &ShadowNodeDef{
		NodeDef:          *newNodeDef(name),
		lightsSeen:       map[uint32]struct{}{},
		maxRq:            math.MaxUint8,
		defaultTechnique: ShadowMapFocused,
	}
}

// SetDefaultTechnique sets the technique of shadow texture definitions added afterwards.
func (d *ShadowNodeDef) SetDefaultTechnique(t ShadowMapTechnique) {
	d.defaultTechnique = t
}

// AddShadowTextureDefinition declares the shadow map for split split of light slot lightIdx.
//
// Parameters:
//   - lightIdx: the light slot
//   - split: the PSSM split, zero for non PSSM techniques
//   - textureName: the texture (usually an atlas) the map lives in
//   - uvOffset, uvLength: the map's region in normalized texture coordinates
//   - arrayIdx: the array slice of the texture
//
// Returns:
//   - *ShadowTextureDefinition: the new definition, with the node's default technique
//   - error: ErrDuplicateItem if the (light, split) pair was already declared
func (d *ShadowNodeDef) AddShadowTextureDefinition(lightIdx, split uint32, textureName string,
	uvOffset, uvLength math32.Vector2, arrayIdx uint8) (*ShadowTextureDefinition, error) {
	for _, existing := range d.shadowMapTexDefs {
		if existing.Light == lightIdx && existing.Split == split {
			return nil, fmt.Errorf("%w: shadow node %q already has a shadow map for light %d split %d",
				common.ErrDuplicateItem, d.nameStr, lightIdx, split)
		}
	}

	def := &ShadowTextureDefinition{
		Light:           lightIdx,
		Split:           split,
		TextureName:     common.NewIdString(textureName),
		textureStr:      textureName,
		UvOffset:        uvOffset,
		UvLength:        uvLength,
		ArrayIdx:        arrayIdx,
		Technique:       d.defaultTechnique,
		NumSplits:       1,
		PssmLambda:      0.95,
		SplitPadding:    1,
		SplitBlend:      0.125,
		SplitFade:       0.313,
		sharesSetupWith: NoSharedSetup,
	}
	d.shadowMapTexDefs = append(d.shadowMapTexDefs, def)
	d.lightsSeen[lightIdx] = struct{}{}
	for uint32(len(d.lightTypesMask)) <= lightIdx {
		d.lightTypesMask = append(d.lightTypesMask, light.LightTypeMaskAll)
	}
	d.validated = false
	return def, nil
}

// ShadowTextureDefinitions returns the shadow maps in declaration order. The index of a
// definition is its shadow map index.
func (d *ShadowNodeDef) ShadowTextureDefinitions() []*ShadowTextureDefinition {
	return d.shadowMapTexDefs
}

// NumShadowTextureDefinitions returns the number of shadow maps.
func (d *ShadowNodeDef) NumShadowTextureDefinitions() int {
	return len(d.shadowMapTexDefs)
}

// ShadowTextureDefinition returns the shadow map at idx.
func (d *ShadowNodeDef) ShadowTextureDefinition(idx int) (*ShadowTextureDefinition, error) {
	if idx < 0 || idx >= len(d.shadowMapTexDefs) {
		return nil, fmt.Errorf("%w: shadow map index %d out of range [0, %d)", common.ErrInvalidParams, idx, len(d.shadowMapTexDefs))
	}
	return d.shadowMapTexDefs[idx], nil
}

// NumLights returns the number of distinct light slots the shadow maps reference.
func (d *ShadowNodeDef) NumLights() uint32 {
	return uint32(len(d.lightsSeen))
}

// SetLightTypesMask restricts light slot lightIdx to lights of the types in mask.
func (d *ShadowNodeDef) SetLightTypesMask(lightIdx uint32, mask light.LightTypeMask) {
	for uint32(len(d.lightTypesMask)) <= lightIdx {
		d.lightTypesMask = append(d.lightTypesMask, light.LightTypeMaskAll)
	}
	d.lightTypesMask[lightIdx] = mask
}

// LightTypesMask returns the light types light slot lightIdx accepts.
func (d *ShadowNodeDef) LightTypesMask(lightIdx uint32) light.LightTypeMask {
	if lightIdx >= uint32(len(d.lightTypesMask)) {
		return 0
	}
	return d.lightTypesMask[lightIdx]
}

// MinRq returns the lowest render queue any caster pass renders. Valid after ValidateAndFinish.
func (d *ShadowNodeDef) MinRq() uint8 {
	return d.minRq
}

// MaxRq returns the highest render queue any caster pass renders. Valid after ValidateAndFinish.
func (d *ShadowNodeDef) MaxRq() uint8 {
	return d.maxRq
}

// ValidateAndFinish validates the node and repairs the inconsistencies that have an obvious
// fix, logging a warning for each. Overlays are disabled on every pass, every scene pass
// becomes a caster pass with no nested shadow node, scene passes rendering the same shadow map
// get the same viewport, and camera setups are shared between compatible shadow maps.
//
// Returns:
//   - error: ErrInvalidParams for input channels, gaps in the light slots, or passes
//     referencing shadow maps that do not exist
func (d *ShadowNodeDef) ValidateAndFinish() error {
	if err := d.NodeDef.ValidateAndFinish(); err != nil {
		return err
	}
	d.validated = false

	if d.NumInputChannels() > 0 {
		return fmt.Errorf("%w: shadow node %q declares input channels", common.ErrInvalidParams, d.nameStr)
	}
	for i := uint32(0); i < d.NumLights(); i++ {
		if _, ok := d.lightsSeen[i]; !ok {
			return fmt.Errorf("%w: shadow node %q uses %d light slots but slot %d has no shadow map",
				common.ErrInvalidParams, d.nameStr, d.NumLights(), i)
		}
	}

	log := common.ComponentLogger("shadow_node")
	minRq, maxRq := uint8(math.MaxUint8), uint8(0)
	hasScenePass := false
	viewports := map[int]Viewport{}

	for _, target := range d.targets {
		for _, pass := range target.passes {
			base := pass.Base()
			if base.IncludeOverlays {
				log.Warn("overlays are not allowed in shadow nodes, disabling them",
					"shadow_node", d.nameStr, "target", target.renderTargetNameStr)
				base.IncludeOverlays = false
			}
			if base.ShadowMapIdx >= len(d.shadowMapTexDefs) {
				return fmt.Errorf("%w: shadow node %q has a %s pass on shadow map %d, but only %d are declared",
					common.ErrInvalidParams, d.nameStr, pass.Type(), base.ShadowMapIdx, len(d.shadowMapTexDefs))
			}

			scene, ok := pass.(*ScenePassDef)
			if !ok {
				continue
			}
			if base.ShadowMapIdx < 0 {
				return fmt.Errorf("%w: shadow node %q has a scene pass with no shadow map index", common.ErrInvalidParams, d.nameStr)
			}
			hasScenePass = true
			minRq = min(minRq, scene.FirstRQ)
			maxRq = max(maxRq, scene.LastRQ)

			if !scene.ShadowNode.IsBlank() {
				log.Warn("shadow nodes cannot be nested, removing the shadow node from a caster pass",
					"shadow_node", d.nameStr, "nested", scene.ShadowNode.String())
				scene.ShadowNode = common.BlankIdString
			}
			scene.ShadowNodeRecalculation = ShadowNodeCasterPass

			if base.ShadowMapFullViewport {
				continue
			}
			if vp, seen := viewports[base.ShadowMapIdx]; !seen {
				viewports[base.ShadowMapIdx] = base.Viewport
			} else if vp != base.Viewport {
				log.Warn("scene passes rendering the same shadow map have different viewports, using the first one",
					"shadow_node", d.nameStr, "shadow_map", base.ShadowMapIdx)
				base.Viewport = vp
			}
		}
	}
	if !hasScenePass {
		minRq, maxRq = 0, math.MaxUint8
	}
	d.minRq, d.maxRq = minRq, maxRq

	d.shareCameraSetups()
	d.validated = true
	return nil
}

// shareCameraSetups points every shadow map at an earlier owner it can share a camera setup
// with. Splits of the same light always share; otherwise maps with the same non PSSM
// technique share.
func (d *ShadowNodeDef) shareCameraSetups() {
	log := common.ComponentLogger("shadow_node")
	for _, def := range d.shadowMapTexDefs {
		def.sharesSetupWith = NoSharedSetup
	}

	for i, def := range d.shadowMapTexDefs {
		for j := 0; j < i; j++ {
			owner := d.shadowMapTexDefs[j]
			if owner.sharesSetupWith != NoSharedSetup || owner.Light != def.Light || owner.Split == def.Split {
				continue
			}
			if owner.NumSplits != def.NumSplits {
				log.Warn("splits of the same light disagree on the number of splits, using the first one",
					"shadow_node", d.nameStr, "light", def.Light, "split", def.Split,
					"num_splits", def.NumSplits, "expected", owner.NumSplits)
				def.NumSplits = owner.NumSplits
			}
			def.Technique = owner.Technique
			def.sharesSetupWith = j
			break
		}
		if def.sharesSetupWith != NoSharedSetup || def.Technique == ShadowMapPssm {
			continue
		}
		for j := 0; j < i; j++ {
			owner := d.shadowMapTexDefs[j]
			if owner.sharesSetupWith == NoSharedSetup && owner.Technique == def.Technique {
				def.sharesSetupWith = j
				break
			}
		}
	}
}

package compositor

import (
	"container/heap"
	"fmt"
	"slices"
	"sort"

	"cogentcore.org/core/math32"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

// LightClosest is the light occupying a light slot of a shadow node.
type LightClosest struct {
	// Light is the assigned light, nil for an empty slot.
	Light light.Light
	// GlobalIndex is the light's index in the scene's light list, -1 if it is not in it.
	GlobalIndex int
	// IsStatic pins the light to the slot; it is not reassigned every frame.
	IsStatic bool
	// IsDirty makes a static slot render on the next update.
	IsDirty bool
}

// ShadowMapCamera is the camera rendering one shadow map.
type ShadowMapCamera struct {
	Camera camera.Camera
	// Setup may be shared with other shadow maps of the same node.
	Setup       ShadowCameraSetup
	MinDistance float32
	MaxDistance float32
	// IdxToContiguousTex indexes ContiguousShadowMapTextures.
	IdxToContiguousTex int
}

// ShadowNode is a node that renders shadow maps. Every frame it assigns the closest shadow
// casting lights to its light slots, positions one camera per shadow map, and renders.
type ShadowNode struct {
	*Node

	def                *ShadowNodeDef
	shadowMapCameras   []ShadowMapCamera
	castingLights      []LightClosest
	contiguousTextures []Texture
	castersBox         math32.Box3

	lastCamera camera.Camera
	lastFrame  uint64
	candidates closestLightHeap
}

func newShadowNode(def *ShadowNodeDef, ws *Workspace) (*ShadowNode, error) {
	node, err := newNode(def.name, def.nameStr, &def.NodeDef, ws)
	if err != nil {
		return nil, err
	}
	sn := &ShadowNode{
		Node:          node,
		def:           def,
		castingLights: make([]LightClosest, def.NumLights()),
		castersBox:    math32.B3Empty(),
	}
	node.shadowNode = sn
	for i := range sn.castingLights {
		sn.castingLights[i].GlobalIndex = -1
	}

	texIndex := map[common.IdString]int{}
	for i, texDef := range def.shadowMapTexDefs {
		var setup ShadowCameraSetup
		if texDef.sharesSetupWith != NoSharedSetup {
			setup = sn.shadowMapCameras[texDef.sharesSetupWith].Setup
		} else {
			setup = newShadowCameraSetup(texDef)
		}

		idx, ok := texIndex[texDef.TextureName]
		if !ok {
			tex, err := node.resolveTexture(texDef.TextureName)
			if err != nil {
				sn.destroy()
				return nil, err
			}
			idx = len(sn.contiguousTextures)
			sn.contiguousTextures = append(sn.contiguousTextures, tex)
			texIndex[texDef.TextureName] = idx
		}

		cam := ws.sceneManager.CreateCamera(fmt.Sprintf("%s/%s/ShadowCamera%d", ws.id, def.nameStr, i))
		sn.shadowMapCameras = append(sn.shadowMapCameras, ShadowMapCamera{
			Camera:             cam,
			Setup:              setup,
			IdxToContiguousTex: idx,
		})
	}

	if err := node.createPasses(); err != nil {
		sn.destroy()
		return nil, err
	}
	return sn, nil
}

// Definition returns the shadow node definition the node was instanced from.
func (sn *ShadowNode) Definition() *ShadowNodeDef {
	return sn.def
}

// Update assigns lights, positions every shadow camera and renders the shadow maps.
//
// Parameters:
//   - cam: the camera the scene is viewed from
//   - lodCamera: the camera used for LOD selection
//   - visibilityMask: the visibility mask of the scene pass being shadowed
//
// Returns:
//   - error: an error if a pass failed
func (sn *ShadowNode) Update(cam, lodCamera camera.Camera, visibilityMask uint32) error {
	sn.BuildClosestLightList(cam, lodCamera, visibilityMask)

	for i, texDef := range sn.def.shadowMapTexDefs {
		entry := sn.castingLights[texDef.Light]
		if entry.Light == nil || (entry.IsStatic && !entry.IsDirty) {
			continue
		}
		smc := &sn.shadowMapCameras[i]
		l := entry.Light
		if l.Type() == light.LightTypePoint {
			smc.Camera.SetOrientation(common.QuatIdentity())
		} else {
			smc.Camera.SetOrientation(l.Orientation())
		}

		if pssm, ok := smc.Setup.(*PSSMShadowCameraSetup); ok {
			near, far := cam.Near(), viewShadowDistance(cam, texDef.MaxDistance)
			points := pssm.SplitPoints()
			if points[0] != near || points[len(points)-1] != far || pssm.NumSplits() != texDef.NumSplits {
				pssm.CalculateSplitPoints(texDef.NumSplits, near, far, texDef.PssmLambda)
			}
		}

		smc.Setup.ShadowCamera(ShadowSetupParams{
			ViewCamera:   cam,
			Light:        l,
			ShadowCamera: smc.Camera,
			Split:        texDef.Split,
			CastersBox:   sn.castersBox,
			MaxDistance:  texDef.MaxDistance,
		})
		smc.MinDistance = smc.Setup.MinDistance()
		smc.MaxDistance = smc.Setup.MaxDistance()
	}

	if err := sn.Node.update(lodCamera); err != nil {
		return err
	}
	for i := range sn.castingLights {
		if sn.castingLights[i].IsStatic {
			sn.castingLights[i].IsDirty = false
		}
	}
	return nil
}

// BuildClosestLightList assigns scene lights to the light slots. Calls repeated with the same
// camera within one workspace frame do nothing.
//
// Static slots keep their light. Directional lights fill the directional slots first, then the
// closest remaining lights fill the rest, preferring lights that are visible, enabled, and cast
// shadows. Finally the casters box is refreshed for cam.
//
// Parameters:
//   - cam: the camera the scene is viewed from
//   - lodCamera: the camera used for LOD selection
//   - visibilityMask: lights whose visibility flags do not intersect it are never assigned
func (sn *ShadowNode) BuildClosestLightList(cam, lodCamera camera.Camera, visibilityMask uint32) {
	frame := sn.workspace.frameCount
	if sn.lastCamera == cam && sn.lastFrame == frame {
		return
	}
	sn.lastCamera = cam
	sn.lastFrame = frame

	// Pinned lights stop casting while the list is rebuilt so they are not picked twice.
	var muted []light.Light
	for i := range sn.castingLights {
		entry := &sn.castingLights[i]
		if entry.IsStatic {
			if entry.Light != nil && entry.Light.CastsShadows() {
				entry.Light.SetCastsShadows(false)
				muted = append(muted, entry.Light)
			}
			continue
		}
		*entry = LightClosest{GlobalIndex: -1}
	}

	lights := sn.workspace.sceneManager.Lights()
	frustum := cam.Frustum()
	qualifies := func(l light.Light) bool {
		if !l.Enabled() || !l.CastsShadows() || l.VisibilityFlags()&visibilityMask == 0 {
			return false
		}
		center, radius := l.BoundingSphere()
		return frustum.IntersectsSphere(center, radius)
	}

	numDirectional := 0
	startIdx := 0
	for i, l := range lights {
		if l.Type() != light.LightTypeDirectional {
			break
		}
		numDirectional++
		if !qualifies(l) {
			continue
		}
		if entry := sn.findNextEmptyShadowCastingLightEntry(light.LightTypeMaskDirectional, &startIdx); entry >= 0 {
			sn.castingLights[entry] = LightClosest{Light: l, GlobalIndex: i}
		}
	}

	remaining := 0
	for _, entry := range sn.castingLights {
		if entry.Light == nil {
			remaining++
		}
	}

	if remaining > 0 {
		camPos := cam.Position()
		sn.candidates = sn.candidates[:0]
		for i := numDirectional; i < len(lights); i++ {
			l := lights[i]
			center, radius := l.BoundingSphere()
			sn.candidates.offer(lightCandidate{
				light:       l,
				globalIndex: i,
				qualifies:   qualifies(l),
				distance:    center.Sub(camPos).Length() - radius,
			}, remaining)
		}
		closest := sn.candidates.sorted()
		sort.SliceStable(closest, func(i, j int) bool {
			return closest[i].light.Type() < closest[j].light.Type()
		})

		startIdx = 0
		prevType := light.NumLightTypes
		for _, c := range closest {
			if !c.qualifies {
				continue
			}
			if t := c.light.Type(); t != prevType {
				startIdx = 0
				prevType = t
			}
			if entry := sn.findNextEmptyShadowCastingLightEntry(c.light.Type().Mask(), &startIdx); entry >= 0 {
				sn.castingLights[entry] = LightClosest{Light: c.light, GlobalIndex: c.globalIndex}
			}
		}
	}

	for _, l := range muted {
		l.SetCastsShadows(true)
	}

	sn.castersBox = sn.workspace.sceneManager.CastersBox(cam, visibilityMask, sn.def.minRq, sn.def.maxRq)
}

// findNextEmptyShadowCastingLightEntry returns the first empty slot at or after *startIdx that
// accepts a light type in mask, or -1. *startIdx moves past the returned slot.
func (sn *ShadowNode) findNextEmptyShadowCastingLightEntry(mask light.LightTypeMask, startIdx *int) int {
	for i := *startIdx; i < len(sn.castingLights); i++ {
		if sn.castingLights[i].Light == nil && sn.def.LightTypesMask(uint32(i))&mask != 0 {
			*startIdx = i + 1
			return i
		}
	}
	*startIdx = len(sn.castingLights)
	return -1
}

// isPassActive reports whether a pass tied to a shadow map should render this frame.
func (sn *ShadowNode) isPassActive(base *PassDefBase) bool {
	entry := sn.castingLights[sn.def.shadowMapTexDefs[base.ShadowMapIdx].Light]
	if entry.Light == nil {
		return false
	}
	if base.ShadowMapLightTypes != 0 && !base.ShadowMapLightTypes.Has(entry.Light.Type()) {
		return false
	}
	return !entry.IsStatic || entry.IsDirty
}

// SetLightFixedToShadowMap pins l to the light slot of shadow map shadowMapIdx. A nil light
// unpins the slot. A pinned slot renders once, then only after SetStaticShadowMapDirty.
func (sn *ShadowNode) SetLightFixedToShadowMap(shadowMapIdx int, l light.Light) error {
	texDef, err := sn.def.ShadowTextureDefinition(shadowMapIdx)
	if err != nil {
		return err
	}
	slot := &sn.castingLights[texDef.Light]
	sn.lastCamera = nil
	if l == nil {
		*slot = LightClosest{GlobalIndex: -1}
		return nil
	}
	*slot = LightClosest{
		Light:       l,
		GlobalIndex: slices.Index(sn.workspace.sceneManager.Lights(), l),
		IsStatic:    true,
		IsDirty:     true,
	}
	return nil
}

// SetStaticShadowMapDirty re-renders the static shadow map shadowMapIdx on the next update.
// With includeLinked, static maps sharing the same texture slice are re-rendered too.
func (sn *ShadowNode) SetStaticShadowMapDirty(shadowMapIdx int, includeLinked bool) error {
	texDef, err := sn.def.ShadowTextureDefinition(shadowMapIdx)
	if err != nil {
		return err
	}
	if sn.castingLights[texDef.Light].IsStatic {
		sn.castingLights[texDef.Light].IsDirty = true
	}
	if !includeLinked {
		return nil
	}
	for _, other := range sn.def.shadowMapTexDefs {
		if other.TextureName == texDef.TextureName && other.ArrayIdx == texDef.ArrayIdx &&
			sn.castingLights[other.Light].IsStatic {
			sn.castingLights[other.Light].IsDirty = true
		}
	}
	return nil
}

// IsShadowMapIdxInStaticMode reports whether the light slot of shadowMapIdx is pinned.
func (sn *ShadowNode) IsShadowMapIdxInStaticMode(shadowMapIdx int) bool {
	if shadowMapIdx < 0 || shadowMapIdx >= len(sn.def.shadowMapTexDefs) {
		return false
	}
	return sn.castingLights[sn.def.shadowMapTexDefs[shadowMapIdx].Light].IsStatic
}

// IsShadowMapIdxActive reports whether a light is assigned to the slot of shadowMapIdx. The
// matrix and split lookups return nil for inactive maps.
func (sn *ShadowNode) IsShadowMapIdxActive(shadowMapIdx int) bool {
	if shadowMapIdx < 0 || shadowMapIdx >= len(sn.def.shadowMapTexDefs) {
		return false
	}
	return sn.castingLights[sn.def.shadowMapTexDefs[shadowMapIdx].Light].Light != nil
}

// ShadowCastingLights returns a copy of the light slots.
func (sn *ShadowNode) ShadowCastingLights() []LightClosest {
	return slices.Clone(sn.castingLights)
}

// ShadowCamera returns the camera of shadowMapIdx, nil if out of range.
func (sn *ShadowNode) ShadowCamera(shadowMapIdx int) camera.Camera {
	if shadowMapIdx < 0 || shadowMapIdx >= len(sn.shadowMapCameras) {
		return nil
	}
	return sn.shadowMapCameras[shadowMapIdx].Camera
}

// ViewProjectionMatrix returns the view-projection matrix of shadowMapIdx, nil if inactive.
func (sn *ShadowNode) ViewProjectionMatrix(shadowMapIdx int) *math32.Matrix4 {
	if !sn.IsShadowMapIdxActive(shadowMapIdx) {
		return nil
	}
	m := sn.shadowMapCameras[shadowMapIdx].Camera.ViewProjectionMatrix()
	return &m
}

func (sn *ShadowNode) pssmSetup(shadowMapIdx int) *PSSMShadowCameraSetup {
	if !sn.IsShadowMapIdxActive(shadowMapIdx) || sn.def.shadowMapTexDefs[shadowMapIdx].Technique != ShadowMapPssm {
		return nil
	}
	pssm, _ := sn.shadowMapCameras[shadowMapIdx].Setup.(*PSSMShadowCameraSetup)
	return pssm
}

// PssmSplits returns the split distances of shadowMapIdx, nil if inactive or not PSSM.
func (sn *ShadowNode) PssmSplits(shadowMapIdx int) []float32 {
	if pssm := sn.pssmSetup(shadowMapIdx); pssm != nil {
		return slices.Clone(pssm.SplitPoints())
	}
	return nil
}

// PssmBlends returns the split blend distances of shadowMapIdx, nil if inactive or not PSSM.
func (sn *ShadowNode) PssmBlends(shadowMapIdx int) []float32 {
	if pssm := sn.pssmSetup(shadowMapIdx); pssm != nil {
		return slices.Clone(pssm.SplitBlends())
	}
	return nil
}

// PssmFade returns the fade start distance of shadowMapIdx, nil if inactive or not PSSM.
func (sn *ShadowNode) PssmFade(shadowMapIdx int) *float32 {
	if pssm := sn.pssmSetup(shadowMapIdx); pssm != nil {
		fade := pssm.SplitFade()
		return &fade
	}
	return nil
}

// MinMaxDepthRange returns the depth range of shadowMapIdx's camera after the last update.
func (sn *ShadowNode) MinMaxDepthRange(shadowMapIdx int) (minDistance, maxDistance float32, ok bool) {
	if !sn.IsShadowMapIdxActive(shadowMapIdx) {
		return 0, 0, false
	}
	smc := sn.shadowMapCameras[shadowMapIdx]
	return smc.MinDistance, smc.MaxDistance, true
}

// CastersBox returns the caster bounds computed by the last BuildClosestLightList.
func (sn *ShadowNode) CastersBox() math32.Box3 {
	return sn.castersBox
}

// ContiguousShadowMapTextures returns every distinct texture the shadow maps live in.
func (sn *ShadowNode) ContiguousShadowMapTextures() []Texture {
	return sn.contiguousTextures
}

// IndexToContiguousShadowMapTex returns the index into ContiguousShadowMapTextures of the
// texture shadowMapIdx lives in, or -1.
func (sn *ShadowNode) IndexToContiguousShadowMapTex(shadowMapIdx int) int {
	if shadowMapIdx < 0 || shadowMapIdx >= len(sn.shadowMapCameras) {
		return -1
	}
	return sn.shadowMapCameras[shadowMapIdx].IdxToContiguousTex
}

func (sn *ShadowNode) destroy() {
	for _, smc := range sn.shadowMapCameras {
		sn.workspace.sceneManager.DestroyCamera(smc.Camera)
	}
	sn.shadowMapCameras = nil
	sn.contiguousTextures = nil
	sn.Node.destroy()
}

type lightCandidate struct {
	light       light.Light
	globalIndex int
	qualifies   bool
	distance    float32
}

// closerThan orders qualifying lights first, then by distance from the camera to the light's
// bounding surface.
func (c lightCandidate) closerThan(o lightCandidate) bool {
	if c.qualifies != o.qualifies {
		return c.qualifies
	}
	return c.distance < o.distance
}

// closestLightHeap keeps the k closest candidates offered to it. The root is the farthest kept
// candidate, so a closer one replaces it in O(log k).
type closestLightHeap []lightCandidate

func (h closestLightHeap) Len() int           { return len(h) }
func (h closestLightHeap) Less(i, j int) bool { return h[j].closerThan(h[i]) }
func (h closestLightHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *closestLightHeap) Push(x any)        { *h = append(*h, x.(lightCandidate)) }
func (h *closestLightHeap) Pop() any {
	old := *h
	c := old[len(old)-1]
	*h = old[:len(old)-1]
	return c
}

func (h *closestLightHeap) offer(c lightCandidate, k int) {
	if h.Len() < k {
		heap.Push(h, c)
		return
	}
	if c.closerThan((*h)[0]) {
		(*h)[0] = c
		heap.Fix(h, 0)
	}
}

// sorted returns the kept candidates closest first. The heap is left unordered.
func (h closestLightHeap) sorted() []lightCandidate {
	out := slices.Clone(h)
	sort.Slice(out, func(i, j int) bool { return out[i].closerThan(out[j]) })
	return out
}

package cubemap

import (
	"cogentcore.org/core/math32"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// UpdateSceneGraph selects up to MaxCubeProbes probes around the tracked position and computes
// their blend factors. The manager calls it before the workspaces update.
//
// Probes whose area holds the tracked position are collected by lowest NDF. A probe with an NDF
// of zero dominates alone. When no area holds the position, FindClosestProbe picks one.
func (p *ParallaxCorrectedCubemap) UpdateSceneGraph() {
	if p.trackedCamera != nil {
		p.trackedPosition = p.trackedCamera.Position()
		p.trackedViewProj = p.trackedCamera.ViewProjectionMatrix()
	}

	p.resetCollected()
	for _, probe := range p.probes {
		if !probe.enabled || probe.mask&p.mask == 0 {
			continue
		}
		posLS := probe.toLocal(p.trackedPosition)
		if !probe.areaLS().ContainsPoint(posLS) {
			continue
		}
		ndf := probe.NDF(posLS)
		if ndf <= 0 {
			p.resetCollected()
			p.collectedProbes[0] = probe
			p.probeNDFs[0] = ndf
			p.numCollected = 1
			break
		}
		p.collectProbe(probe, ndf)
	}

	if p.numCollected == 0 {
		if closest := p.FindClosestProbe(); closest != nil {
			p.collectedProbes[0] = closest
			p.probeNDFs[0] = closest.NDF(closest.toLocal(p.trackedPosition))
			p.numCollected = 1
		}
	}

	p.calculateBlendFactors()
	p.moveDominantToFront()

	if p.numCollected > 0 {
		p.blendCameraPos = p.collectedProbes[0].cameraPos
		if p.numCollected > 1 {
			t := p.blendFactors[0]*float32(p.numCollected) - 1
			p.blendCameraPos = common.Lerp3(p.blendCameraPos, p.trackedPosition, t)
		}
		if p.blendCamera != nil {
			p.blendCamera.SetPosition(p.blendCameraPos)
		}
	}

	unchanged := p.numCollected == p.lastNumCollected && p.collectedProbes == p.lastCollected
	p.blendedProbeNeedsUpdate = !unchanged || p.numCollected > 1
	p.lastCollected = p.collectedProbes
	p.lastNumCollected = p.numCollected

	p.updateBindings()
}

// blankCubemapProbe fills the collected slots past numCollected. It has no texture, so those
// slots bind the blank cubemap.
var blankCubemapProbe = &CubemapProbe{}

func (p *ParallaxCorrectedCubemap) resetCollected() {
	for i := range p.collectedProbes {
		p.collectedProbes[i] = blankCubemapProbe
	}
	p.blendFactors = [MaxCubeProbes]float32{}
	for i := range p.probeNDFs {
		p.probeNDFs[i] = math32.Inf(1)
	}
	p.numCollected = 0
}

// collectProbe keeps the MaxCubeProbes lowest NDFs seen so far. When full, the candidate
// replaces the highest collected NDF that is above its own.
func (p *ParallaxCorrectedCubemap) collectProbe(probe *CubemapProbe, ndf float32) {
	if p.numCollected < MaxCubeProbes {
		p.collectedProbes[p.numCollected] = probe
		p.probeNDFs[p.numCollected] = ndf
		p.numCollected++
		return
	}
	worst := -1
	for i := range p.numCollected {
		if p.probeNDFs[i] > ndf && (worst < 0 || p.probeNDFs[i] > p.probeNDFs[worst]) {
			worst = i
		}
	}
	if worst >= 0 {
		p.collectedProbes[worst] = probe
		p.probeNDFs[worst] = ndf
	}
}

// FindClosestProbe picks the probe whose area covers the largest volume of the tracked view
// frustum: each area is projected through the tracked view-projection matrix and the volume of
// its screen space bounds compared, with the depth range squared. Areas entirely behind the
// camera are skipped. It is an approximation; probes whose inner regions overlap can pop.
//
// Returns:
//   - *CubemapProbe: the chosen probe, nil if none qualifies
func (p *ParallaxCorrectedCubemap) FindClosestProbe() *CubemapProbe {
	var closest *CubemapProbe
	bestVolume := float32(-1)

	for _, probe := range p.probes {
		if !probe.enabled || probe.mask&p.mask == 0 {
			continue
		}
		psMin := math32.Vec3(math32.Inf(1), math32.Inf(1), math32.Inf(1))
		psMax := math32.Vec3(math32.Inf(-1), math32.Inf(-1), math32.Inf(-1))
		for _, corner := range common.BoxCorners(probe.area) {
			clip := common.TransformPoint(p.trackedViewProj[:], corner)
			ps := math32.Vec3(clip.X, clip.Y, clip.Z)
			if clip.W != 0 {
				ps = ps.DivScalar(clip.W)
			}
			psMin = psMin.Min(ps)
			psMax = psMax.Max(ps)
		}
		if psMax.Z <= -1 {
			continue
		}

		lo := math32.Vec3(-1, -1, -1)
		hi := math32.Vec3(1, 1, 1)
		psMin.Clamp(lo, hi)
		psMax.Clamp(lo, hi)

		// Remap depth to [0, 1] and square it to flatten the perspective distribution.
		zMin := psMin.Z*0.5 + 0.5
		zMax := psMax.Z*0.5 + 0.5
		zMin *= zMin
		zMax *= zMax

		volume := (psMax.X - psMin.X) * (psMax.Y - psMin.Y) * (zMax - zMin)
		if volume > bestVolume {
			bestVolume = volume
			closest = probe
		}
	}
	return closest
}

// calculateBlendFactors weighs the collected probes by their NDFs and normalizes the weights.
func (p *ParallaxCorrectedCubemap) calculateBlendFactors() {
	n := p.numCollected
	if n <= 1 {
		if n == 1 {
			p.blendFactors[0] = 1
		}
		return
	}

	var sumNdf float32
	for i := range n {
		sumNdf += p.probeNDFs[i]
	}
	invSumNdf := float32(n) - sumNdf
	if invSumNdf <= 0 {
		invSumNdf = 1
	}

	var sumBlend float32
	for i := range n {
		ndf := p.probeNDFs[i]
		p.blendFactors[i] = (1 - ndf/sumNdf) * (1 - ndf) / invSumNdf
		sumBlend += p.blendFactors[i]
	}
	if sumBlend <= 0 {
		sumBlend = 1
	}
	for i := range n {
		p.blendFactors[i] /= sumBlend
	}
}

// moveDominantToFront swaps the probe with the highest blend factor into slot 0.
func (p *ParallaxCorrectedCubemap) moveDominantToFront() {
	best := 0
	for i := 1; i < p.numCollected; i++ {
		if p.blendFactors[i] > p.blendFactors[best] {
			best = i
		}
	}
	if best == 0 {
		return
	}
	p.collectedProbes[0], p.collectedProbes[best] = p.collectedProbes[best], p.collectedProbes[0]
	p.probeNDFs[0], p.probeNDFs[best] = p.probeNDFs[best], p.probeNDFs[0]
	p.blendFactors[0], p.blendFactors[best] = p.blendFactors[best], p.blendFactors[0]
}

// updateBindings fills every slot; unused slots and probes without a texture bind the blank probe.
// Without a blank probe, while disabled, the bindings are cleared.
func (p *ParallaxCorrectedCubemap) updateBindings() {
	if p.blankProbe == nil {
		p.bindings = [MaxCubeProbes]ProbeBinding{}
		return
	}
	var blendMips uint32
	if p.blendCubemap != nil {
		blendMips = p.blendCubemap.Descriptor().MipLevels
	}
	for i := range MaxCubeProbes {
		b := ProbeBinding{Texture: p.blankProbe, Sampler: p.trilinearSampler}
		if i < p.numCollected {
			probe := p.collectedProbes[i]
			b.Data = probeData(probe, p.blendFactors[i], p.probeNDFs[i])
			if probe.texture != nil {
				b.Texture = probe.texture
				if probe.numMips == blendMips {
					b.Sampler = p.pointSampler
				}
			}
		}
		p.bindings[i] = b
	}
}

// CollectedProbes returns the probes selected by the last UpdateSceneGraph, dominant first.
func (p *ParallaxCorrectedCubemap) CollectedProbes() []*CubemapProbe {
	return p.collectedProbes[:p.numCollected]
}

// BlendFactors returns the blend factor of each collected probe.
func (p *ParallaxCorrectedCubemap) BlendFactors() []float32 {
	return p.blendFactors[:p.numCollected]
}

// ProbeNDFs returns the NDF of each collected probe.
func (p *ParallaxCorrectedCubemap) ProbeNDFs() []float32 {
	return p.probeNDFs[:p.numCollected]
}

// BlendedProbeNeedsUpdate reports whether the last selection changed the blend cubemap.
func (p *ParallaxCorrectedCubemap) BlendedProbeNeedsUpdate() bool {
	return p.blendedProbeNeedsUpdate
}

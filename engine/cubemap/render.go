package cubemap

import (
	"fmt"

	"cogentcore.org/core/base/errors"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
)

// UpdateRender refreshes the collected probes that need it and rebuilds the blend cubemap. The
// manager calls it once the GPU frame has begun.
//
// Dirty or dynamic probes render NumIterations times; passes in the clear execution mask only run
// on the first iteration. Static probes render into the capture cubemap, are copied into their
// own cubemap after each iteration, and become clean. Several collected probes are then blended
// into the blend cubemap; a single one is copied.
//
// Returns:
//   - error: the joined errors of every workspace that failed
func (p *ParallaxCorrectedCubemap) UpdateRender() error {
	if !p.enabled {
		return nil
	}

	var errs []error
	rendered := false
	for _, probe := range p.collectedProbes[:p.numCollected] {
		if probe.workspace == nil || !(probe.dirty || !probe.static) {
			continue
		}
		if err := p.renderProbe(probe); err != nil {
			errs = append(errs, err)
			continue
		}
		rendered = true
	}

	if p.numCollected == 0 || !(p.blendedProbeNeedsUpdate || rendered) {
		return errors.Join(errs...)
	}
	if p.numCollected > 1 {
		errs = append(errs, p.runBlend())
	} else if tex := p.collectedProbes[0].texture; tex != nil {
		errs = append(errs, p.runCopy(p.blendCubemap, tex))
	}
	return errors.Join(errs...)
}

func (p *ParallaxCorrectedCubemap) renderProbe(probe *CubemapProbe) error {
	ws := probe.workspace
	defer ws.SetExecutionMask(compositor.DefaultExecutionMask)

	for it := range probe.numIterations {
		mask := compositor.DefaultExecutionMask
		if it > 0 {
			mask &^= p.clearExecutionMask
		}
		ws.SetExecutionMask(mask)
		if err := runWorkspace(ws); err != nil {
			return fmt.Errorf("probe %d iteration %d: %w", probe.id, it, err)
		}
		if probe.static {
			if err := p.runCopy(probe.texture, p.captureCubemap); err != nil {
				return fmt.Errorf("probe %d iteration %d: %w", probe.id, it, err)
			}
		}
	}
	if probe.static {
		probe.dirty = false
	}
	return nil
}

func (p *ParallaxCorrectedCubemap) runCopy(dst, src compositor.Texture) error {
	if err := p.copyWorkspace.SetExternalRenderTargets(dst, src); err != nil {
		return err
	}
	return runWorkspace(p.copyWorkspace)
}

func (p *ParallaxCorrectedCubemap) runBlend() error {
	if err := p.blendWorkspace.SetExternalRenderTargets(p.blendTargets()...); err != nil {
		return err
	}
	return runWorkspace(p.blendWorkspace)
}

// blendTargets returns the blend workspace externals: the blend cubemap, then one texture per slot.
func (p *ParallaxCorrectedCubemap) blendTargets() []compositor.Texture {
	targets := make([]compositor.Texture, 0, MaxCubeProbes+1)
	targets = append(targets, p.blendCubemap)
	for _, b := range p.bindings {
		tex := b.Texture
		if tex == nil {
			tex = p.blankProbe
		}
		targets = append(targets, tex)
	}
	return targets
}

// setBlendParams hands the blend parameters of the face being rendered to each blend quad.
func (p *ParallaxCorrectedCubemap) setBlendParams(pass compositor.Pass) {
	quad, ok := pass.(*compositor.QuadPass)
	if !ok {
		return
	}
	params := GPUBlendParams{
		CameraPos: [3]float32{p.blendCameraPos.X, p.blendCameraPos.Y, p.blendCameraPos.Z},
		NumProbes: uint32(p.numCollected),
		Face:      quad.Target().Slice,
	}
	for i, b := range p.bindings {
		params.Probes[i] = b.Data
	}
	quad.SetShaderParams(params.Marshal())
}

// setCopyParams points each copy quad at the face it writes.
func setCopyParams(pass compositor.Pass) {
	quad, ok := pass.(*compositor.QuadPass)
	if !ok {
		return
	}
	params := GPUCopyFaceParams{Face: quad.Target().Slice}
	quad.SetShaderParams(params.Marshal())
}

// runWorkspace updates a workspace the manager does not drive, inside the current GPU frame.
func runWorkspace(ws *compositor.Workspace) error {
	if !ws.IsValid() {
		if err := ws.RecreateAllNodes(); err != nil {
			return err
		}
		if !ws.IsValid() {
			return fmt.Errorf("%w: workspace %q is incomplete", common.ErrInvalidState, ws.Definition().NameStr())
		}
	}
	if err := ws.BeginUpdate(false); err != nil {
		return err
	}
	if err := ws.Update(); err != nil {
		return err
	}
	return ws.EndUpdate(false)
}

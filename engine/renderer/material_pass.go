package renderer

import (
	"fmt"
	"slices"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer/shader"
)

// quadPipelineKey identifies the pipeline of a material for one target format.
type quadPipelineKey struct {
	material string
	format   wgpu.TextureFormat
}

// quadPipeline is the render pipeline a material draws its fullscreen triangle with. Only bind
// group 0 is used: buffer entries take the parameter buffer, sampler entries the material
// sampler and texture entries the pass inputs in binding order.
type quadPipeline struct {
	pipeline *wgpu.RenderPipeline
	layout   *wgpu.BindGroupLayout
	// entries are the group 0 layout entries sorted by binding.
	entries []wgpu.BindGroupLayoutEntry
	// params is the uniform buffer of the material parameters, nil without a parameter struct.
	params     *wgpu.Buffer
	paramsSize uint64
	sampler    common.BlockHandle
}

// quadDraw is one fullscreen triangle recorded into the frame encoder.
type quadDraw struct {
	pipeline *quadPipeline
	target   *wgpu.TextureView
	viewport compositor.PixelViewport
	// params are uploaded into the pipeline parameter buffer before drawing.
	params   []byte
	bindings []wgpu.BindGroupEntry
}

// quadBindGroupLayout returns the group 0 entries of a material shader in binding order.
//
// Parameters:
//   - material: the material
//
// Returns:
//   - wgpu.BindGroupLayoutDescriptor: the group 0 descriptor with sorted entries
//   - error: ErrInvalidParams if the shader binds groups other than 0
func quadBindGroupLayout(material *shader.Material) (wgpu.BindGroupLayoutDescriptor, error) {
	groups := material.Shader.BindGroupLayoutDescriptors()
	for g := range groups {
		if g != 0 {
			return wgpu.BindGroupLayoutDescriptor{}, fmt.Errorf("%w: material %s binds group %d, quads only bind group 0",
				common.ErrInvalidParams, material.Name, g)
		}
	}
	desc := groups[0]
	desc.Label = material.Name + " Bind Group Layout"
	desc.Entries = slices.Clone(desc.Entries)
	slices.SortFunc(desc.Entries, func(a, b wgpu.BindGroupLayoutEntry) int {
		return int(a.Binding) - int(b.Binding)
	})
	return desc, nil
}

// MaterialQuadHandler draws quad passes with their registered material. Pipelines are created
// per material and target format on first use and live until Release.
func (r *renderer) MaterialQuadHandler() PassHandler {
	return r.drawMaterialQuad
}

func (r *renderer) drawMaterialQuad(frame *Frame, ctx *compositor.PassContext) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frame.Material == nil {
		name := ""
		if def, ok := ctx.Pass.Definition().(*compositor.QuadPassDef); ok {
			name = def.MaterialName
		}
		r.stats.Skipped++
		if !r.warnedMaterials[name] {
			r.warnedMaterials[name] = true
			r.log.Warn("quad material is not registered, its passes are skipped", "material", name)
		}
		return nil
	}

	p, err := r.quadPipeline(frame.Material, frame.TargetFormat)
	if err != nil {
		return err
	}
	bindings, err := r.quadBindings(p, frame)
	if err != nil {
		return fmt.Errorf("material %s: %w", frame.Material.Name, err)
	}
	params := ctx.ShaderParams
	if p.params != nil && len(params) == 0 {
		params = make([]byte, p.paramsSize)
	}
	if err := r.backend.DrawQuad(quadDraw{
		pipeline: p,
		target:   frame.Target,
		viewport: ctx.Viewport,
		params:   params,
		bindings: bindings,
	}); err != nil {
		return fmt.Errorf("material %s: %w", frame.Material.Name, err)
	}
	r.stats.Quads++
	return nil
}

// quadPipeline returns the cached pipeline of material for format, creating it on first use.
func (r *renderer) quadPipeline(material *shader.Material, format wgpu.TextureFormat) (*quadPipeline, error) {
	key := quadPipelineKey{material: material.Name, format: format}
	if p, ok := r.pipelines[key]; ok {
		return p, nil
	}
	p, err := r.backend.CreateQuadPipeline(material, format)
	if err != nil {
		return nil, fmt.Errorf("material %s pipeline for %v: %w", material.Name, format, err)
	}
	if p.sampler, _, err = r.samplerPool.Acquire(material.Sampler); err != nil {
		r.backend.ReleaseQuadPipeline(p)
		return nil, fmt.Errorf("material %s sampler: %w", material.Name, err)
	}
	r.pipelines[key] = p
	r.log.Debug("quad pipeline created", "material", material.Name, "format", format)
	return p, nil
}

func (r *renderer) quadBindings(p *quadPipeline, frame *Frame) ([]wgpu.BindGroupEntry, error) {
	bindings := make([]wgpu.BindGroupEntry, 0, len(p.entries))
	input := 0
	for _, e := range p.entries {
		switch {
		case e.Buffer.Type != wgpu.BufferBindingTypeUndefined:
			if p.params == nil {
				return nil, fmt.Errorf("%w: binding %d is a buffer but the material has no parameter struct",
					common.ErrInvalidParams, e.Binding)
			}
			bindings = append(bindings, wgpu.BindGroupEntry{Binding: e.Binding, Buffer: p.params, Size: wgpu.WholeSize})
		case e.Sampler.Type != wgpu.SamplerBindingTypeUndefined:
			s, err := r.sampler(p.sampler)
			if err != nil {
				return nil, err
			}
			bindings = append(bindings, wgpu.BindGroupEntry{Binding: e.Binding, Sampler: s})
		default:
			if input >= len(frame.Inputs) {
				return nil, fmt.Errorf("%w: binding %d needs input %d, the pass has %d",
					common.ErrInvalidParams, e.Binding, input, len(frame.Inputs))
			}
			bindings = append(bindings, wgpu.BindGroupEntry{Binding: e.Binding, TextureView: frame.Inputs[input]})
			input++
		}
	}
	return bindings, nil
}

// dropQuadPipelines releases the pipelines of a material, every material when name is empty.
func (r *renderer) dropQuadPipelines(name string) {
	for key, p := range r.pipelines {
		if name != "" && key.material != name {
			continue
		}
		r.backend.ReleaseQuadPipeline(p)
		r.samplerPool.Release(p.sampler)
		delete(r.pipelines, key)
	}
}

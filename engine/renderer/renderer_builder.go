package renderer

import (
	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithPresentMode sets the surface present mode which controls how frames are delivered to the display.
//
// Parameters:
//   - mode: the PresentMode to use (VSync or Uncapped)
//
// Returns:
//   - RendererBuilderOption: a function that applies the present mode option to a renderer
func WithPresentMode(mode PresentMode) RendererBuilderOption {
	return func(r *renderer) {
		r.pendingPresentMode = &mode
	}
}

// WithForceSoftwareRenderer forces WGPU to use a CPU/software fallback adapter instead of
// hardware GPU acceleration. This requires a software Vulkan ICD to be installed on the system
// (e.g. SwiftShader or lavapipe).
//
// Parameters:
//   - force: true to force the software fallback adapter, false to use hardware (default)
//
// Returns:
//   - RendererBuilderOption: a function that applies the force software renderer option to a renderer
func WithForceSoftwareRenderer(force bool) RendererBuilderOption {
	return func(r *renderer) {
		r.forceFallbackAdapter = force
	}
}

// WithPassHandler registers the handler that records passes of the given type.
// Handlers registered for clear and depth copy passes replace the built-in ones.
//
// Parameters:
//   - passType: the pass kind the handler records
//   - handler: the handler
//
// Returns:
//   - RendererBuilderOption: a function that applies the handler option to a renderer
func WithPassHandler(passType compositor.PassType, handler PassHandler) RendererBuilderOption {
	return func(r *renderer) {
		r.handlers[passType] = handler
	}
}

// WithSamplerPool shares a sampler block pool with other systems, typically the parallax corrected
// cubemap, so the handles they allocate resolve through Sampler.
//
// Parameters:
//   - pool: the shared pool
//
// Returns:
//   - RendererBuilderOption: a function that applies the sampler pool option to a renderer
func WithSamplerPool(pool *common.BlockPool[common.SamplerStagingData]) RendererBuilderOption {
	return func(r *renderer) {
		r.samplerPool = pool
	}
}

// WithWindowDepthBufferPool sets the depth buffer pool of the render window texture. Zero gives
// the window no depth buffer. Defaults to DefaultDepthBufferPool.
//
// Parameters:
//   - pool: the depth buffer pool id
//
// Returns:
//   - RendererBuilderOption: a function that applies the depth buffer option to a renderer
func WithWindowDepthBufferPool(pool uint16) RendererBuilderOption {
	return func(r *renderer) {
		r.windowDepthPool = pool
	}
}

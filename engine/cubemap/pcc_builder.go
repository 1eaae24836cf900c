package cubemap

import (
	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// PCCBuilderOption configures a ParallaxCorrectedCubemap at construction.
type PCCBuilderOption func(*ParallaxCorrectedCubemap)

// WithMask sets the mask ANDed with every probe mask during selection.
//
// Parameters:
//   - mask: the system mask
//
// Returns:
//   - PCCBuilderOption: option function to apply
func WithMask(mask uint32) PCCBuilderOption {
	return func(p *ParallaxCorrectedCubemap) {
		p.mask = mask
	}
}

// WithCameraNear sets the near plane of every probe camera.
//
// Parameters:
//   - near: the near plane distance, must be positive
//
// Returns:
//   - PCCBuilderOption: option function to apply
func WithCameraNear(near float32) PCCBuilderOption {
	return func(p *ParallaxCorrectedCubemap) {
		if near > 0 {
			p.cameraNear = near
		}
	}
}

// WithClearExecutionMask sets the execution mask bits that only run on the first render iteration
// of a probe. Give the clear passes of the probe workspace definition this mask.
//
// Parameters:
//   - mask: the execution mask bits of first-iteration passes
//
// Returns:
//   - PCCBuilderOption: option function to apply
func WithClearExecutionMask(mask uint8) PCCBuilderOption {
	return func(p *ParallaxCorrectedCubemap) {
		p.clearExecutionMask = mask
	}
}

// WithSamplerPool shares a sampler block pool, usually the render system's, instead of a
// private one.
//
// Parameters:
//   - pool: the sampler pool
//
// Returns:
//   - PCCBuilderOption: option function to apply
func WithSamplerPool(pool *common.BlockPool[common.SamplerStagingData]) PCCBuilderOption {
	return func(p *ParallaxCorrectedCubemap) {
		if pool != nil {
			p.samplers = pool
		}
	}
}

// ProbeBuilderOption configures a CubemapProbe at creation.
type ProbeBuilderOption func(*CubemapProbe)

// WithProbeIterations sets how many times the probe renders when refreshed.
//
// Parameters:
//   - n: the number of iterations, zero is raised to one
//
// Returns:
//   - ProbeBuilderOption: option function to apply
func WithProbeIterations(n uint32) ProbeBuilderOption {
	return func(p *CubemapProbe) {
		p.SetNumIterations(n)
	}
}

// WithProbeMask sets the probe mask.
//
// Parameters:
//   - mask: the probe mask
//
// Returns:
//   - ProbeBuilderOption: option function to apply
func WithProbeMask(mask uint32) ProbeBuilderOption {
	return func(p *CubemapProbe) {
		p.mask = mask
	}
}

// WithProbeEnabled sets whether the probe takes part in selection.
//
// Parameters:
//   - enabled: the enabled flag
//
// Returns:
//   - ProbeBuilderOption: option function to apply
func WithProbeEnabled(enabled bool) ProbeBuilderOption {
	return func(p *CubemapProbe) {
		p.enabled = enabled
	}
}

// WithProbeStatic sets whether the probe only renders when dirty.
//
// Parameters:
//   - static: the static flag
//
// Returns:
//   - ProbeBuilderOption: option function to apply
func WithProbeStatic(static bool) ProbeBuilderOption {
	return func(p *CubemapProbe) {
		p.static = static
	}
}

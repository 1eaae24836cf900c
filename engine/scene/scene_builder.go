package scene

import (
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

// SceneBuilderOption is a functional option for configuring a Scene.
// Use the With* functions to create options.
type SceneBuilderOption func(s *scene)

// WithLights adds initial lights to the scene.
//
// Parameters:
//   - lights: the lights to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithLights(lights ...light.Light) SceneBuilderOption {
	return func(s *scene) {
		for _, l := range lights {
			s.AddLight(l)
		}
	}
}

// WithCasters adds initial shadow casters to the scene. Their ids are assigned in order, starting at 1.
//
// Parameters:
//   - casters: the casters to add
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCasters(casters ...Caster) SceneBuilderOption {
	return func(s *scene) {
		for _, c := range casters {
			s.AddCaster(c)
		}
	}
}

// WithBoundsWorkers sets the number of worker goroutines CastersBox fans out to.
// Defaults to runtime.NumCPU()-1.
//
// Parameters:
//   - n: the number of workers (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithBoundsWorkers(n int) SceneBuilderOption {
	return func(s *scene) {
		s.boundsWorkers = max(n, 1)
	}
}

// WithCasterChunkSize sets how many casters one worker task bounds. Scenes with no more casters
// than this are bounded on the calling goroutine.
//
// Parameters:
//   - n: the chunk size (minimum 1)
//
// Returns:
//   - SceneBuilderOption: option function to apply
func WithCasterChunkSize(n int) SceneBuilderOption {
	return func(s *scene) {
		s.casterChunk = max(n, 1)
	}
}

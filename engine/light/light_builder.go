package light

import "cogentcore.org/core/math32"

// LightBuilderOption is a function that configures a Light instance during construction.
type LightBuilderOption func(*lightImpl)

// WithName is an option builder that sets the light's name.
//
// Parameters:
//   - name: the name used in logs
//
// Returns:
//   - LightBuilderOption: a function that applies the name option to a lightImpl
func WithName(name string) LightBuilderOption {
	return func(l *lightImpl) {
		l.name = name
	}
}

// WithPosition is an option builder that sets the world-space position of the light.
//
// Parameters:
//   - x, y, z: the position components
//
// Returns:
//   - LightBuilderOption: a function that applies the position option to a lightImpl
func WithPosition(x, y, z float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.position = math32.Vec3(x, y, z)
	}
}

// WithDirection is an option builder that sets the direction of the light.
// The direction is normalized before storing.
//
// Parameters:
//   - x, y, z: the direction components
//
// Returns:
//   - LightBuilderOption: a function that applies the direction option to a lightImpl
func WithDirection(x, y, z float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.SetDirection(math32.Vec3(x, y, z))
	}
}

// WithRange is an option builder that sets the attenuation range for point and spot lights.
//
// Parameters:
//   - r: the range in world units
//
// Returns:
//   - LightBuilderOption: a function that applies the range option to a lightImpl
func WithRange(r float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.lightRange = r
	}
}

// WithConeAngles is an option builder that sets the spot cone half-angles.
//
// Parameters:
//   - inner: inner half-angle in radians
//   - outer: outer half-angle in radians
//
// Returns:
//   - LightBuilderOption: a function that applies the cone option to a lightImpl
func WithConeAngles(inner, outer float32) LightBuilderOption {
	return func(l *lightImpl) {
		l.SetConeAngles(inner, outer)
	}
}

// WithCastsShadows is an option builder that sets whether the light is eligible for shadow maps.
//
// Parameters:
//   - casts: true to cast shadows
//
// Returns:
//   - LightBuilderOption: a function that applies the option to a lightImpl
func WithCastsShadows(casts bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.castsShadows = casts
	}
}

// WithEnabled is an option builder that sets the initial enabled state.
//
// Parameters:
//   - enabled: the initial state
//
// Returns:
//   - LightBuilderOption: a function that applies the option to a lightImpl
func WithEnabled(enabled bool) LightBuilderOption {
	return func(l *lightImpl) {
		l.enabled = enabled
	}
}

// WithVisibilityFlags is an option builder that sets the light's visibility bits.
//
// Parameters:
//   - flags: the visibility flags
//
// Returns:
//   - LightBuilderOption: a function that applies the option to a lightImpl
func WithVisibilityFlags(flags uint32) LightBuilderOption {
	return func(l *lightImpl) {
		l.visibilityFlags = flags
	}
}

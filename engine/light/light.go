package light

import (
	"cogentcore.org/core/math32"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// LightType identifies the kind of light source.
type LightType int

const (
	// LightTypeDirectional represents a light with no position, only direction.
	// Used for large distant sources like the sun or moon. Directional lights are
	// always assigned to shadow maps before any other light type.
	LightTypeDirectional LightType = iota

	// LightTypePoint represents a light that emits in all directions from a position.
	// Point light shadows are rendered into a cubemap and reprojected into the atlas.
	LightTypePoint

	// LightTypeSpot represents a light that emits in a cone from a position along a direction.
	LightTypeSpot

	// NumLightTypes is the number of light types.
	NumLightTypes
)

// LightTypeMask is a bitmask of LightType values, one bit per type.
type LightTypeMask uint8

const (
	LightTypeMaskDirectional LightTypeMask = 1 << LightTypeDirectional
	LightTypeMaskPoint       LightTypeMask = 1 << LightTypePoint
	LightTypeMaskSpot        LightTypeMask = 1 << LightTypeSpot
	LightTypeMaskAll                       = LightTypeMaskDirectional | LightTypeMaskPoint | LightTypeMaskSpot
)

// Mask returns the single-bit mask of the light type.
func (t LightType) Mask() LightTypeMask {
	return 1 << t
}

// Has reports whether the mask includes the light type.
func (m LightTypeMask) Has(t LightType) bool {
	return m&t.Mask() != 0
}

func (t LightType) String() string {
	switch t {
	case LightTypeDirectional:
		return "directional"
	case LightTypePoint:
		return "point"
	case LightTypeSpot:
		return "spot"
	}
	return "unknown"
}

// DefaultVisibilityFlags makes a light visible to every visibility mask.
const DefaultVisibilityFlags uint32 = 0xFFFFFFFF

// lightImpl is the implementation of the Light interface.
type lightImpl struct {
	name            string
	lightType       LightType
	position        math32.Vector3
	direction       math32.Vector3
	orientation     math32.Quat
	lightRange      float32
	innerCone       float32 // stored as cos(angle in radians)
	outerCone       float32 // stored as cos(angle in radians)
	enabled         bool
	castsShadows    bool
	visibilityFlags uint32
}

// Light defines the interface for a light source in the scene.
//
// The compositor only reads lights: shadow nodes rank them by distance to the
// camera, assign them to shadow map slots and orient shadow cameras from them.
// Type-specific properties (e.g. cone angles for spot lights) return zero
// values when not applicable.
type Light interface {
	// Name returns the light's name, used in logs.
	//
	// Returns:
	//   - string: the name
	Name() string

	// Type returns the kind of light source.
	//
	// Returns:
	//   - LightType: the light type (directional, point, or spot)
	Type() LightType

	// Position returns the world-space position of the light.
	// Meaningless for directional lights.
	//
	// Returns:
	//   - math32.Vector3: the position
	Position() math32.Vector3

	// Direction returns the normalized direction of the light.
	// For directional lights this is the light direction. For spot lights this
	// is the cone axis. Meaningless for point lights.
	//
	// Returns:
	//   - math32.Vector3: the normalized direction
	Direction() math32.Vector3

	// Orientation returns the derived orientation of the light: the rotation whose
	// local -Z axis points along Direction.
	//
	// Returns:
	//   - math32.Quat: the orientation
	Orientation() math32.Quat

	// Range returns the maximum attenuation distance for point and spot lights.
	//
	// Returns:
	//   - float32: the range value
	Range() float32

	// InnerCone returns the cosine of the inner cone half-angle for spot lights.
	//
	// Returns:
	//   - float32: cos(inner half-angle)
	InnerCone() float32

	// OuterCone returns the cosine of the outer cone half-angle for spot lights.
	//
	// Returns:
	//   - float32: cos(outer half-angle)
	OuterCone() float32

	// BoundingSphere returns the sphere that encloses the light's area of influence.
	// Directional lights report an infinite radius centred on the origin.
	//
	// Returns:
	//   - math32.Vector3: the sphere centre
	//   - float32: the sphere radius
	BoundingSphere() (math32.Vector3, float32)

	// Enabled returns whether this light is active.
	//
	// Returns:
	//   - bool: true if the light is enabled
	Enabled() bool

	// CastsShadows returns whether this light is eligible for shadow map assignment.
	// Shadow nodes temporarily clear this flag on lights pinned to static shadow maps
	// while they build their light list.
	//
	// Returns:
	//   - bool: true if the light casts shadows
	CastsShadows() bool

	// VisibilityFlags returns the visibility bits tested against a pass visibility mask.
	//
	// Returns:
	//   - uint32: the flags
	VisibilityFlags() uint32

	// SetPosition sets the world-space position of the light.
	//
	// Parameters:
	//   - p: the position
	SetPosition(p math32.Vector3)

	// SetDirection sets the direction of the light and normalizes it.
	//
	// Parameters:
	//   - d: the direction (will be normalized)
	SetDirection(d math32.Vector3)

	// SetRange sets the attenuation range.
	//
	// Parameters:
	//   - r: the range in world units
	SetRange(r float32)

	// SetConeAngles sets the spot cone half-angles.
	//
	// Parameters:
	//   - inner, outer: half-angles in radians
	SetConeAngles(inner, outer float32)

	// SetEnabled enables or disables the light.
	//
	// Parameters:
	//   - enabled: the new state
	SetEnabled(enabled bool)

	// SetCastsShadows sets whether the light is eligible for shadow maps.
	//
	// Parameters:
	//   - casts: the new state
	SetCastsShadows(casts bool)

	// SetVisibilityFlags sets the light's visibility bits.
	//
	// Parameters:
	//   - flags: the new flags
	SetVisibilityFlags(flags uint32)
}

var _ Light = &lightImpl{}

// NewLight creates a new Light of the given type.
// Defaults: enabled, casts shadows, range 10, direction (0, -1, 0), 30/45 degree spot cone.
//
// Parameters:
//   - lightType: the kind of light
//   - options: functional options to configure the light
//
// Returns:
//   - Light: the newly created light
func NewLight(lightType LightType, options ...LightBuilderOption) Light {
	l := &lightImpl{
		lightType:       lightType,
		lightRange:      10,
		innerCone:       math32.Cos(math32.DegToRad(30)),
		outerCone:       math32.Cos(math32.DegToRad(45)),
		enabled:         true,
		castsShadows:    true,
		visibilityFlags: DefaultVisibilityFlags,
	}
	l.SetDirection(math32.Vec3(0, -1, 0))
	for _, option := range options {
		option(l)
	}
	return l
}

func (l *lightImpl) Name() string {
	return l.name
}

func (l *lightImpl) Type() LightType {
	return l.lightType
}

func (l *lightImpl) Position() math32.Vector3 {
	return l.position
}

func (l *lightImpl) Direction() math32.Vector3 {
	return l.direction
}

func (l *lightImpl) Orientation() math32.Quat {
	return l.orientation
}

func (l *lightImpl) Range() float32 {
	return l.lightRange
}

func (l *lightImpl) InnerCone() float32 {
	return l.innerCone
}

func (l *lightImpl) OuterCone() float32 {
	return l.outerCone
}

func (l *lightImpl) BoundingSphere() (math32.Vector3, float32) {
	if l.lightType == LightTypeDirectional {
		return math32.Vector3{}, math32.Infinity
	}
	return l.position, l.lightRange
}

func (l *lightImpl) Enabled() bool {
	return l.enabled
}

func (l *lightImpl) CastsShadows() bool {
	return l.castsShadows
}

func (l *lightImpl) VisibilityFlags() uint32 {
	return l.visibilityFlags
}

func (l *lightImpl) SetPosition(p math32.Vector3) {
	l.position = p
}

func (l *lightImpl) SetDirection(d math32.Vector3) {
	if d.Length() == 0 {
		return
	}
	l.direction = d.Normal()
	l.orientation = common.QuatFromDirection(l.direction, math32.Vec3(0, 1, 0))
}

func (l *lightImpl) SetRange(r float32) {
	l.lightRange = r
}

func (l *lightImpl) SetConeAngles(inner, outer float32) {
	l.innerCone = math32.Cos(inner)
	l.outerCone = math32.Cos(outer)
}

func (l *lightImpl) SetEnabled(enabled bool) {
	l.enabled = enabled
}

func (l *lightImpl) SetCastsShadows(casts bool) {
	l.castsShadows = casts
}

func (l *lightImpl) SetVisibilityFlags(flags uint32) {
	l.visibilityFlags = flags
}

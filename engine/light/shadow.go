package light

// ShadowMapResolution is the default width and height in texels of a single
// shadow map region inside a shadow atlas.
const ShadowMapResolution = 2048

// DefaultShadowHalfExtent is the orthographic half-extent (in world units) used
// for directional shadow cameras when there is no shadow caster to fit against.
const DefaultShadowHalfExtent float32 = 40.0

// DefaultShadowNear is the default near plane for shadow cameras.
const DefaultShadowNear float32 = 0.1

// DefaultShadowFar is the default far plane for shadow cameras, and the
// maximum distance covered by PSSM splits when none is configured.
const DefaultShadowFar float32 = 200.0

// DefaultShadowDirectionalDistance is how far behind the fitted volume a
// directional shadow camera is pulled back along the light direction.
const DefaultShadowDirectionalDistance float32 = 100.0

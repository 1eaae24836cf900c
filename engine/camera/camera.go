package camera

import (
	"math"
	"sync"

	"cogentcore.org/core/math32"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// ProjectionType selects between perspective and orthographic projection.
type ProjectionType int

const (
	// ProjectionPerspective is a standard perspective projection driven by Fov and Aspect.
	ProjectionPerspective ProjectionType = iota
	// ProjectionOrthographic is a parallel projection driven by the ortho window size.
	ProjectionOrthographic
)

type cameraImpl struct {
	mu *sync.Mutex

	name        string
	position    math32.Vector3
	orientation math32.Quat

	projection  ProjectionType
	fov         float32
	aspect      float32
	near        float32
	far         float32
	orthoWidth  float32
	orthoHeight float32

	viewMatrix              math32.Matrix4
	projectionMatrix        math32.Matrix4
	viewProjectionMatrix    math32.Matrix4
	inverseProjectionMatrix math32.Matrix4
}

// Camera defines the interface for cameras created by the scene manager.
// The camera holds a position, an orientation (looking down local -Z) and
// projection settings, and keeps its view/projection matrices up to date on
// every setter. Shadow nodes and cubemap probes own cameras of their own and
// reposition them every frame.
type Camera interface {
	// Name returns the camera's name.
	//
	// Returns:
	//   - string: the name given at creation
	Name() string

	// Position returns the world-space position of the camera.
	//
	// Returns:
	//   - math32.Vector3: the position
	Position() math32.Vector3

	// Orientation returns the camera's orientation.
	//
	// Returns:
	//   - math32.Quat: the orientation
	Orientation() math32.Quat

	// Direction returns the world-space direction the camera looks along.
	//
	// Returns:
	//   - math32.Vector3: the normalized view direction
	Direction() math32.Vector3

	// ProjectionType returns the projection mode.
	//
	// Returns:
	//   - ProjectionType: perspective or orthographic
	ProjectionType() ProjectionType

	// Fov returns the vertical field of view in radians.
	//
	// Returns:
	//   - float32: field of view in radians
	Fov() float32

	// Aspect returns the aspect ratio (width / height).
	//
	// Returns:
	//   - float32: the aspect ratio
	Aspect() float32

	// Near returns the near clipping plane distance.
	//
	// Returns:
	//   - float32: near plane distance
	Near() float32

	// Far returns the far clipping plane distance.
	//
	// Returns:
	//   - float32: far plane distance
	Far() float32

	// OrthoWindow returns the size of the orthographic view volume.
	//
	// Returns:
	//   - width, height: the window size in world units
	OrthoWindow() (width, height float32)

	// ViewMatrix returns the current 4x4 view matrix (column-major).
	//
	// Returns:
	//   - math32.Matrix4: the view matrix
	ViewMatrix() math32.Matrix4

	// ProjectionMatrix returns the current 4x4 projection matrix (column-major).
	//
	// Returns:
	//   - math32.Matrix4: the projection matrix
	ProjectionMatrix() math32.Matrix4

	// ViewProjectionMatrix returns the current combined view-projection matrix (column-major).
	//
	// Returns:
	//   - math32.Matrix4: the combined view-projection matrix
	ViewProjectionMatrix() math32.Matrix4

	// InverseProjectionMatrix returns the inverse of the current projection matrix.
	//
	// Returns:
	//   - math32.Matrix4: the inverse projection matrix
	InverseProjectionMatrix() math32.Matrix4

	// Frustum returns the camera's world-space culling frustum.
	//
	// Returns:
	//   - common.Frustum: the six frustum planes
	Frustum() common.Frustum

	// WorldSpaceCorners returns the eight world-space corners of the view volume
	// clipped to the given near and far distances. The first four corners lie on
	// the near plane, the last four on the far plane.
	//
	// Parameters:
	//   - near: the near distance along the view direction
	//   - far: the far distance along the view direction
	//
	// Returns:
	//   - [8]math32.Vector3: the corners
	WorldSpaceCorners(near, far float32) [8]math32.Vector3

	// SetPosition sets the world-space position and recomputes matrices.
	//
	// Parameters:
	//   - p: the position
	SetPosition(p math32.Vector3)

	// SetOrientation sets the orientation and recomputes matrices.
	//
	// Parameters:
	//   - q: the orientation
	SetOrientation(q math32.Quat)

	// LookAt orients the camera towards a world-space point, keeping +Y as up.
	//
	// Parameters:
	//   - target: the point to look at
	LookAt(target math32.Vector3)

	// SetProjectionType switches between perspective and orthographic projection.
	//
	// Parameters:
	//   - p: the projection mode
	SetProjectionType(p ProjectionType)

	// SetFov sets the field of view in radians and recomputes matrices.
	//
	// Parameters:
	//   - fov: field of view in radians
	SetFov(fov float32)

	// SetAspect sets the aspect ratio (width / height) and recomputes matrices.
	//
	// Parameters:
	//   - aspect: the aspect ratio
	SetAspect(aspect float32)

	// SetNear sets the near clipping plane distance and recomputes matrices.
	//
	// Parameters:
	//   - near: near plane distance
	SetNear(near float32)

	// SetFar sets the far clipping plane distance and recomputes matrices.
	//
	// Parameters:
	//   - far: far plane distance
	SetFar(far float32)

	// SetOrthoWindow sets the orthographic view volume size and recomputes matrices.
	//
	// Parameters:
	//   - width, height: the window size in world units
	SetOrthoWindow(width, height float32)
}

var _ Camera = &cameraImpl{}

// NewCamera creates a new Camera at the origin looking down -Z with default perspective settings.
//
// Parameters:
//   - name: the camera name
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(name string, options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:          &sync.Mutex{},
		name:        name,
		orientation: common.QuatIdentity(),
		fov:         45.0 * (math.Pi / 180.0), // radians
		aspect:      1.0,
		near:        0.1,
		far:         100.0,
		orthoWidth:  10,
		orthoHeight: 10,
	}
	for _, option := range options {
		option(c)
	}
	c.updateMatrices()
	return c
}

func (c *cameraImpl) Name() string {
	return c.name
}

func (c *cameraImpl) Position() math32.Vector3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.position
}

func (c *cameraImpl) Orientation() math32.Quat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orientation
}

func (c *cameraImpl) Direction() math32.Vector3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return math32.Vec3(0, 0, -1).MulQuat(c.orientation)
}

func (c *cameraImpl) ProjectionType() ProjectionType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projection
}

func (c *cameraImpl) Fov() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fov
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) Near() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.near
}

func (c *cameraImpl) Far() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.far
}

func (c *cameraImpl) OrthoWindow() (width, height float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.orthoWidth, c.orthoHeight
}

func (c *cameraImpl) ViewMatrix() math32.Matrix4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewMatrix
}

func (c *cameraImpl) ProjectionMatrix() math32.Matrix4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.projectionMatrix
}

func (c *cameraImpl) ViewProjectionMatrix() math32.Matrix4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewProjectionMatrix
}

func (c *cameraImpl) InverseProjectionMatrix() math32.Matrix4 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inverseProjectionMatrix
}

func (c *cameraImpl) Frustum() common.Frustum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return common.ExtractFrustumFromMatrix(c.viewProjectionMatrix[:])
}

func (c *cameraImpl) WorldSpaceCorners(near, far float32) [8]math32.Vector3 {
	c.mu.Lock()
	defer c.mu.Unlock()

	var corners [8]math32.Vector3
	for i, d := range [2]float32{near, far} {
		halfW, halfH := c.orthoWidth*0.5, c.orthoHeight*0.5
		if c.projection == ProjectionPerspective {
			halfH = d * math32.Tan(c.fov*0.5)
			halfW = halfH * c.aspect
		}
		local := [4]math32.Vector3{
			math32.Vec3(-halfW, halfH, -d),
			math32.Vec3(halfW, halfH, -d),
			math32.Vec3(halfW, -halfH, -d),
			math32.Vec3(-halfW, -halfH, -d),
		}
		for j, p := range local {
			corners[i*4+j] = p.MulQuat(c.orientation).Add(c.position)
		}
	}
	return corners
}

func (c *cameraImpl) SetPosition(p math32.Vector3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = p
	c.updateMatrices()
}

func (c *cameraImpl) SetOrientation(q math32.Quat) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orientation = q
	c.updateMatrices()
}

func (c *cameraImpl) LookAt(target math32.Vector3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orientation = common.QuatFromDirection(target.Sub(c.position), math32.Vec3(0, 1, 0))
	c.updateMatrices()
}

func (c *cameraImpl) SetProjectionType(p ProjectionType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.projection = p
	c.updateMatrices()
}

func (c *cameraImpl) SetFov(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fov = fov
	c.updateMatrices()
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aspect = aspect
	c.updateMatrices()
}

func (c *cameraImpl) SetNear(near float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.near = near
	c.updateMatrices()
}

func (c *cameraImpl) SetFar(far float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.far = far
	c.updateMatrices()
}

func (c *cameraImpl) SetOrthoWindow(width, height float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.orthoWidth = width
	c.orthoHeight = height
	c.updateMatrices()
}

// updateMatrices recalculates the view, projection, view-projection, and inverse projection matrices.
// Caller must hold the mutex.
func (c *cameraImpl) updateMatrices() {
	common.ViewFromOrientation(c.viewMatrix[:], c.position, c.orientation)

	switch c.projection {
	case ProjectionOrthographic:
		common.Orthographic(c.projectionMatrix[:], c.orthoWidth, c.orthoHeight, c.near, c.far)
	default:
		common.Perspective(c.projectionMatrix[:], c.fov, c.aspect, c.near, c.far)
	}

	common.Mul4(c.viewProjectionMatrix[:], c.projectionMatrix[:], c.viewMatrix[:])
	common.Invert4(c.inverseProjectionMatrix[:], c.projectionMatrix[:])
}

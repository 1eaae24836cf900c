package compositor

import (
	"cogentcore.org/core/math32"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

// ShadowSetupParams is everything a ShadowCameraSetup needs to position one shadow camera.
type ShadowSetupParams struct {
	// ViewCamera is the camera the scene is viewed from.
	ViewCamera camera.Camera
	// Light is the light casting the shadow.
	Light light.Light
	// ShadowCamera is the camera to position. Its orientation is already the light's.
	ShadowCamera camera.Camera
	// Split is the PSSM split being rendered.
	Split uint32
	// CastersBox bounds every visible shadow caster.
	CastersBox math32.Box3
	// MaxDistance caps the view depth covered by shadows.
	MaxDistance float32
}

// ShadowCameraSetup positions and projects a shadow camera. Setups may be shared between shadow
// maps, so implementations keep only values that are copied out right after each call.
type ShadowCameraSetup interface {
	// ShadowCamera positions p.ShadowCamera for p.Light.
	//
	// Parameters:
	//   - p: the cameras, the light, and the caster bounds
	ShadowCamera(p ShadowSetupParams)

	// MinDistance returns the near distance of the last positioned camera.
	//
	// Returns:
	//   - float32: the near distance
	MinDistance() float32

	// MaxDistance returns the far distance of the last positioned camera.
	//
	// Returns:
	//   - float32: the far distance
	MaxDistance() float32
}

// UniformShadowCameraSetup covers a fixed area around the view: an orthographic box around the
// casters for directional lights, and the light's own frustum for spot and point lights.
type UniformShadowCameraSetup struct {
	minDistance float32
	maxDistance float32
}

var _ ShadowCameraSetup = &UniformShadowCameraSetup{}

// NewUniformShadowCameraSetup creates a uniform setup.
func NewUniformShadowCameraSetup() *UniformShadowCameraSetup {
	return &UniformShadowCameraSetup{}
}

func (s *UniformShadowCameraSetup) MinDistance() float32 { return s.minDistance }
func (s *UniformShadowCameraSetup) MaxDistance() float32 { return s.maxDistance }

func (s *UniformShadowCameraSetup) ShadowCamera(p ShadowSetupParams) {
	cam := p.ShadowCamera
	l := p.Light
	switch l.Type() {
	case light.LightTypeDirectional:
		center := p.ViewCamera.Position()
		halfExtent := light.DefaultShadowHalfExtent
		if !p.CastersBox.IsEmpty() {
			center = p.CastersBox.Center()
			halfExtent = max(p.CastersBox.Size().Length()*0.5, light.DefaultShadowNear)
		}
		dist := light.DefaultShadowDirectionalDistance + halfExtent
		cam.SetProjectionType(camera.ProjectionOrthographic)
		cam.SetOrthoWindow(halfExtent*2, halfExtent*2)
		cam.SetPosition(center.Sub(l.Direction().MulScalar(dist)))
		s.minDistance = light.DefaultShadowNear
		s.maxDistance = dist + halfExtent

	case light.LightTypeSpot:
		cam.SetProjectionType(camera.ProjectionPerspective)
		cam.SetFov(math32.Clamp(2*math32.Acos(l.OuterCone()), math32.DegToRad(1), math32.DegToRad(175)))
		cam.SetAspect(1)
		cam.SetPosition(l.Position())
		s.minDistance = light.DefaultShadowNear
		s.maxDistance = max(l.Range(), light.DefaultShadowNear*2)

	default:
		cam.SetProjectionType(camera.ProjectionPerspective)
		cam.SetFov(math32.Pi / 2)
		cam.SetAspect(1)
		cam.SetPosition(l.Position())
		s.minDistance = light.DefaultShadowNear
		s.maxDistance = max(l.Range(), light.DefaultShadowNear*2)
	}
	cam.SetNear(s.minDistance)
	cam.SetFar(s.maxDistance)
}

// FocusedShadowCameraSetup fits directional shadow cameras to the part of the view frustum that
// contains casters, in light space. Other light types fall back to the uniform setup.
type FocusedShadowCameraSetup struct {
	UniformShadowCameraSetup
	// stable fits a rotation invariant bounding square, which stops shadow edges from swimming
	// when the view rotates.
	stable bool
}

var _ ShadowCameraSetup = &FocusedShadowCameraSetup{}

// NewFocusedShadowCameraSetup creates a focused setup.
func NewFocusedShadowCameraSetup() *FocusedShadowCameraSetup {
	return &FocusedShadowCameraSetup{}
}

func (s *FocusedShadowCameraSetup) ShadowCamera(p ShadowSetupParams) {
	if p.Light.Type() != light.LightTypeDirectional {
		s.UniformShadowCameraSetup.ShadowCamera(p)
		return
	}
	far := viewShadowDistance(p.ViewCamera, p.MaxDistance)
	s.focusDirectional(p, p.ViewCamera.Near(), far, s.stable)
}

// focusDirectional fits an orthographic shadow camera to the view frustum slice [near, far]
// intersected with the casters, both in light space.
func (s *FocusedShadowCameraSetup) focusDirectional(p ShadowSetupParams, near, far float32, stable bool) {
	cam := p.ShadowCamera
	q := cam.Orientation()
	inv := common.QuatInverse(q)

	corners := p.ViewCamera.WorldSpaceCorners(near, far)
	view := math32.B3Empty()
	for _, c := range corners {
		view.ExpandByPoint(c.MulQuat(inv))
	}

	fit := view
	if !p.CastersBox.IsEmpty() {
		casters := p.CastersBox.MulQuat(inv)
		xy := math32.B3(
			max(view.Min.X, casters.Min.X), max(view.Min.Y, casters.Min.Y), view.Min.Z,
			min(view.Max.X, casters.Max.X), min(view.Max.Y, casters.Max.Y), view.Max.Z)
		if xy.Min.X < xy.Max.X && xy.Min.Y < xy.Max.Y {
			fit = xy
		}
		// Casters between the light and the view volume still cast into it.
		fit.Max.Z = max(fit.Max.Z, casters.Max.Z)
	}

	width, height := fit.Size().X, fit.Size().Y
	centerX, centerY := fit.Center().X, fit.Center().Y
	if stable {
		var centroid math32.Vector3
		for _, c := range corners {
			centroid = centroid.Add(c)
		}
		centroid = centroid.MulScalar(1.0 / 8)
		radius := float32(0)
		for _, c := range corners {
			radius = max(radius, c.Sub(centroid).Length())
		}
		cLS := centroid.MulQuat(inv)
		width, height = radius*2, radius*2
		centerX, centerY = cLS.X, cLS.Y
	}
	width = max(width, light.DefaultShadowNear)
	height = max(height, light.DefaultShadowNear)

	eye := math32.Vec3(centerX, centerY, fit.Max.Z+light.DefaultShadowNear)
	cam.SetProjectionType(camera.ProjectionOrthographic)
	cam.SetOrthoWindow(width, height)
	cam.SetPosition(eye.MulQuat(q))

	s.minDistance = light.DefaultShadowNear
	s.maxDistance = fit.Max.Z - fit.Min.Z + light.DefaultShadowNear*2
	cam.SetNear(s.minDistance)
	cam.SetFar(s.maxDistance)
}

// PSSMShadowCameraSetup splits the view depth into ranges, each covered by its own focused
// shadow map.
type PSSMShadowCameraSetup struct {
	FocusedShadowCameraSetup

	splitPoints     []float32
	splitBlends     []float32
	splitFade       float32
	splitPadding    float32
	splitBlend      float32
	fadeRange       float32
	lambda          float32
	numStableSplits uint32
}

var _ ShadowCameraSetup = &PSSMShadowCameraSetup{}

// NewPSSMShadowCameraSetup creates a PSSM setup for the settings of def.
func NewPSSMShadowCameraSetup(def *ShadowTextureDefinition) *PSSMShadowCameraSetup {
	return &PSSMShadowCameraSetup{
		splitPadding:    def.SplitPadding,
		splitBlend:      def.SplitBlend,
		fadeRange:       def.SplitFade,
		lambda:          def.PssmLambda,
		numStableSplits: def.NumStableSplits,
		splitPoints:     make([]float32, max(def.NumSplits, 1)+1),
	}
}

// CalculateSplitPoints distributes numSplits splits between near and far, blending a
// logarithmic and a linear distribution by lambda.
func (s *PSSMShadowCameraSetup) CalculateSplitPoints(numSplits uint32, near, far, lambda float32) {
	numSplits = max(numSplits, 1)
	s.lambda = lambda
	s.splitPoints = make([]float32, numSplits+1)
	s.splitPoints[0] = near
	for i := uint32(1); i < numSplits; i++ {
		fraction := float32(i) / float32(numSplits)
		logSplit := near * math32.Pow(far/near, fraction)
		linSplit := near + (far-near)*fraction
		s.splitPoints[i] = lambda*logSplit + (1-lambda)*linSplit
	}
	s.splitPoints[numSplits] = far

	s.splitBlends = make([]float32, numSplits-1)
	for i := range s.splitBlends {
		lo, hi := s.splitPoints[i], s.splitPoints[i+1]
		s.splitBlends[i] = hi - (hi-lo)*s.splitBlend
	}
	lo, hi := s.splitPoints[numSplits-1], s.splitPoints[numSplits]
	s.splitFade = hi - (hi-lo)*s.fadeRange
}

// SplitPoints returns the numSplits+1 split distances, starting at the view camera's near plane.
func (s *PSSMShadowCameraSetup) SplitPoints() []float32 {
	return s.splitPoints
}

// SplitBlends returns the distance where each split starts blending into the next.
func (s *PSSMShadowCameraSetup) SplitBlends() []float32 {
	return s.splitBlends
}

// SplitFade returns the distance where the last split starts fading out.
func (s *PSSMShadowCameraSetup) SplitFade() float32 {
	return s.splitFade
}

// NumSplits returns the number of splits.
func (s *PSSMShadowCameraSetup) NumSplits() uint32 {
	return uint32(len(s.splitPoints) - 1)
}

// Lambda returns the lambda the split points were last calculated with.
func (s *PSSMShadowCameraSetup) Lambda() float32 {
	return s.lambda
}

func (s *PSSMShadowCameraSetup) ShadowCamera(p ShadowSetupParams) {
	if p.Light.Type() != light.LightTypeDirectional {
		s.UniformShadowCameraSetup.ShadowCamera(p)
		return
	}
	split := min(p.Split, s.NumSplits()-1)
	near := max(s.splitPoints[split]-s.splitPadding, s.splitPoints[0])
	far := s.splitPoints[split+1] + s.splitPadding
	s.focusDirectional(p, near, far, split < s.numStableSplits)
}

func newShadowCameraSetup(def *ShadowTextureDefinition) ShadowCameraSetup {
	switch def.Technique {
	case ShadowMapPssm:
		return NewPSSMShadowCameraSetup(def)
	case ShadowMapFocused:
		return NewFocusedShadowCameraSetup()
	}
	return NewUniformShadowCameraSetup()
}

// viewShadowDistance is how deep into the view shadows are rendered.
func viewShadowDistance(view camera.Camera, maxDistance float32) float32 {
	if maxDistance > 0 {
		return min(maxDistance, view.Far())
	}
	return min(view.Far(), light.DefaultShadowFar)
}

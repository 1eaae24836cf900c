package compositor

import (
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

func newPssmSetup(numSplits uint32) *PSSMShadowCameraSetup {
	return NewPSSMShadowCameraSetup(&ShadowTextureDefinition{
		NumSplits:    numSplits,
		PssmLambda:   0.95,
		SplitPadding: 1,
		SplitBlend:   0.125,
		SplitFade:    0.313,
	})
}

func TestCalculateSplitPoints(t *testing.T) {
	s := newPssmSetup(3)

	s.CalculateSplitPoints(3, 1, 100, 0)
	points := s.SplitPoints()
	require.Len(t, points, 4)
	assert.InDelta(t, 1, points[0], 1e-5)
	assert.InDelta(t, 34, points[1], 1e-4)
	assert.InDelta(t, 67, points[2], 1e-4)
	assert.InDelta(t, 100, points[3], 1e-5)
	require.Len(t, s.SplitBlends(), 2)
	assert.InDelta(t, 29.875, s.SplitBlends()[0], 1e-4)
	assert.InDelta(t, 100-33*0.313, s.SplitFade(), 1e-4)

	s.CalculateSplitPoints(3, 1, 100, 1)
	assert.InDelta(t, math32.Pow(100, 1.0/3), s.SplitPoints()[1], 1e-4)
	assert.Equal(t, float32(1), s.Lambda())

	s.CalculateSplitPoints(2, 1, 100, 0.95)
	assert.Equal(t, uint32(2), s.NumSplits())
	assert.Len(t, s.SplitBlends(), 1)
	for i := 1; i < len(s.SplitPoints()); i++ {
		assert.Greater(t, s.SplitPoints()[i], s.SplitPoints()[i-1])
	}
}

func TestUniformSetupForLocalLights(t *testing.T) {
	view := camera.NewCamera("view")
	shadowCam := camera.NewCamera("shadow")
	spot := light.NewLight(light.LightTypeSpot,
		light.WithPosition(1, 2, 3),
		light.WithRange(25),
		light.WithConeAngles(math32.DegToRad(30), math32.DegToRad(45)))

	s := NewUniformShadowCameraSetup()
	s.ShadowCamera(ShadowSetupParams{ViewCamera: view, Light: spot, ShadowCamera: shadowCam, CastersBox: math32.B3Empty()})

	assert.InDelta(t, math32.Pi/2, shadowCam.Fov(), 1e-4)
	assert.Equal(t, math32.Vec3(1, 2, 3), shadowCam.Position())
	assert.InDelta(t, 25, shadowCam.Far(), 1e-5)
	assert.InDelta(t, 25, s.MaxDistance(), 1e-5)

	point := light.NewLight(light.LightTypePoint, light.WithRange(5))
	s.ShadowCamera(ShadowSetupParams{ViewCamera: view, Light: point, ShadowCamera: shadowCam, CastersBox: math32.B3Empty()})
	assert.InDelta(t, math32.Pi/2, shadowCam.Fov(), 1e-5)
	assert.Equal(t, camera.ProjectionPerspective, shadowCam.ProjectionType())
}

func TestDirectionalSetupsUseOrthographicCameras(t *testing.T) {
	view := camera.NewCamera("view", camera.WithPosition(0, 5, 0))
	sun := light.NewLight(light.LightTypeDirectional, light.WithDirection(0, -1, 0))
	box := math32.B3(-10, -1, -10, 10, 1, 10)

	for name, setup := range map[string]ShadowCameraSetup{
		"uniform": NewUniformShadowCameraSetup(),
		"focused": NewFocusedShadowCameraSetup(),
	} {
		t.Run(name, func(t *testing.T) {
			shadowCam := camera.NewCamera("shadow")
			shadowCam.SetOrientation(sun.Orientation())
			setup.ShadowCamera(ShadowSetupParams{ViewCamera: view, Light: sun, ShadowCamera: shadowCam, CastersBox: box})

			assert.Equal(t, camera.ProjectionOrthographic, shadowCam.ProjectionType())
			assert.Greater(t, setup.MaxDistance(), setup.MinDistance())
			assert.InDelta(t, setup.MaxDistance(), shadowCam.Far(), 1e-5)
		})
	}

	shadowCam := camera.NewCamera("shadow")
	uniform := NewUniformShadowCameraSetup()
	uniform.ShadowCamera(ShadowSetupParams{ViewCamera: view, Light: sun, ShadowCamera: shadowCam, CastersBox: box})
	assert.Greater(t, shadowCam.Position().Y, box.Max.Y, "the camera sits behind the casters along the light")
}

func TestViewShadowDistance(t *testing.T) {
	view := camera.NewCamera("view", camera.WithFar(500))
	assert.Equal(t, light.DefaultShadowFar, viewShadowDistance(view, 0))
	assert.Equal(t, float32(50), viewShadowDistance(view, 50))
	assert.Equal(t, float32(500), viewShadowDistance(view, 1000))
}

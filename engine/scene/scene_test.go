package scene

import (
	"math/rand/v2"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

func TestLightsDirectionalFirst(t *testing.T) {
	point := light.NewLight(light.LightTypePoint, light.WithName("point"))
	sun := light.NewLight(light.LightTypeDirectional, light.WithName("sun"))
	spot := light.NewLight(light.LightTypeSpot, light.WithName("spot"))
	moon := light.NewLight(light.LightTypeDirectional, light.WithName("moon"))

	s := NewScene("lights", WithLights(point, sun, spot, moon))
	defer s.Close()
	assert.Equal(t, []light.Light{sun, moon, point, spot}, s.Lights())

	s.RemoveLight(sun)
	s.RemoveLight(sun)
	assert.Equal(t, []light.Light{moon, point, spot}, s.Lights())

	lights := s.Lights()
	lights[0] = nil
	assert.Same(t, moon, s.Lights()[0], "Lights returns a copy")
}

func TestCameras(t *testing.T) {
	s := NewScene("cameras")
	defer s.Close()

	a := s.CreateCamera("a")
	b := s.CreateCamera("b")
	assert.Same(t, a, s.FindCamera(common.NewIdString("a")))
	assert.Equal(t, []camera.Camera{a, b}, s.Cameras())
	assert.Panics(t, func() { s.CreateCamera("a") })

	s.DestroyCamera(camera.NewCamera("b"))
	assert.Same(t, b, s.FindCamera(common.NewIdString("b")), "a different camera with the same name is not destroyed")

	s.DestroyCamera(a)
	assert.Nil(t, s.FindCamera(common.NewIdString("a")))
	assert.Equal(t, []camera.Camera{b}, s.Cameras())
}

func TestCasterRegistry(t *testing.T) {
	first := Caster{Name: "first", CastShadows: true}
	s := NewScene("casters", WithCasters(first))
	defer s.Close()

	id := s.AddCaster(Caster{Name: "second"})
	assert.Equal(t, uint64(2), id)
	assert.Equal(t, 2, s.CasterCount())

	got, ok := s.Caster(1)
	require.True(t, ok)
	assert.Equal(t, first, got)

	require.NoError(t, s.UpdateCaster(id, Caster{Name: "moved"}))
	got, _ = s.Caster(id)
	assert.Equal(t, "moved", got.Name)

	require.NoError(t, s.RemoveCaster(1))
	assert.ErrorIs(t, s.RemoveCaster(1), common.ErrItemNotFound)
	assert.ErrorIs(t, s.UpdateCaster(1, first), common.ErrItemNotFound)
	_, ok = s.Caster(1)
	assert.False(t, ok)
}

func box(x0, y0, z0, x1, y1, z1 float32) math32.Box3 {
	return math32.B3(x0, y0, z0, x1, y1, z1)
}

func filteredCasters() []Caster {
	return []Caster{
		{Name: "front", Bounds: box(-1, -1, -6, 1, 1, -4), RenderQueue: 50, VisibilityFlags: 1, CastShadows: true},
		{Name: "far", Bounds: box(2, 0, -12, 3, 1, -10), RenderQueue: 10, VisibilityFlags: 3, CastShadows: true},
		{Name: "behind", Bounds: box(-1, -1, 4, 1, 1, 6), RenderQueue: 50, VisibilityFlags: 1, CastShadows: true},
		{Name: "noShadows", Bounds: box(-9, -9, -9, -8, -8, -8), RenderQueue: 50, VisibilityFlags: 1},
		{Name: "lateQueue", Bounds: box(-9, -9, -9, -8, -8, -8), RenderQueue: 200, VisibilityFlags: 1, CastShadows: true},
		{Name: "hidden", Bounds: box(-9, -9, -9, -8, -8, -8), RenderQueue: 50, VisibilityFlags: 2, CastShadows: true},
		{Name: "empty", Bounds: math32.B3Empty(), RenderQueue: 50, VisibilityFlags: 1, CastShadows: true},
	}
}

func TestCastersBoxFilters(t *testing.T) {
	for _, chunk := range []int{DefaultCasterChunkSize, 2} {
		s := NewScene("filters", WithCasters(filteredCasters()...), WithCasterChunkSize(chunk), WithBoundsWorkers(3))
		cam := camera.NewCamera("view")

		got := s.CastersBox(cam, 1, 0, 100)
		assert.Equal(t, box(-1, -1, -12, 3, 1, -4), got, "chunk %d", chunk)

		got = s.CastersBox(nil, 1, 0, 100)
		assert.Equal(t, box(-1, -1, -12, 3, 1, 6), got, "a nil camera skips the frustum test, chunk %d", chunk)

		assert.True(t, s.CastersBox(cam, 1, 60, 100).IsEmpty())
		s.Close()
	}
}

func TestCastersBoxParallelMatchesSerial(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	casters := make([]Caster, 1000)
	for i := range casters {
		c := math32.Vec3(rng.Float32()*200-100, rng.Float32()*200-100, rng.Float32()*200-100)
		h := math32.Vec3(rng.Float32()+0.1, rng.Float32()+0.1, rng.Float32()+0.1)
		casters[i] = Caster{
			Bounds:          math32.Box3{Min: c.Sub(h), Max: c.Add(h)},
			RenderQueue:     uint8(rng.IntN(256)),
			VisibilityFlags: rng.Uint32(),
			CastShadows:     rng.IntN(4) != 0,
		}
	}

	serial := NewScene("serial", WithCasters(casters...), WithCasterChunkSize(len(casters)))
	defer serial.Close()
	parallel := NewScene("parallel", WithCasters(casters...), WithCasterChunkSize(7), WithBoundsWorkers(4))
	defer parallel.Close()

	cam := camera.NewCamera("view", camera.WithFar(150))
	for _, mask := range []uint32{0xFFFFFFFF, 0x0F} {
		want := serial.CastersBox(cam, mask, 20, 180)
		require.False(t, want.IsEmpty())
		assert.Equal(t, want, parallel.CastersBox(cam, mask, 20, 180))
	}
}

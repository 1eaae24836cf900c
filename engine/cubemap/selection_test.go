package cubemap

import (
	"math/rand/v2"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
)

func TestCalculateBlendFactorsSumToOne(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	p := &ParallaxCorrectedCubemap{}
	for n := 1; n <= MaxCubeProbes; n++ {
		for range 200 {
			p.resetCollected()
			p.numCollected = n
			for i := range n {
				// (0, 1), never exactly 0.
				p.probeNDFs[i] = 0.001 + rng.Float32()*0.998
			}
			p.calculateBlendFactors()

			var sum float32
			for _, f := range p.blendFactors[:n] {
				assert.GreaterOrEqual(t, f, float32(0))
				sum += f
			}
			require.InDelta(t, 1.0, sum, 1e-5, "n=%d ndfs=%v", n, p.probeNDFs[:n])
		}
	}
}

func TestCalculateBlendFactorsFavoursLowNDF(t *testing.T) {
	p := &ParallaxCorrectedCubemap{}
	p.resetCollected()
	p.numCollected = 3
	p.probeNDFs[0], p.probeNDFs[1], p.probeNDFs[2] = 0.2, 0.5, 0.8
	p.calculateBlendFactors()

	assert.Greater(t, p.blendFactors[0], p.blendFactors[1])
	assert.Greater(t, p.blendFactors[1], p.blendFactors[2])
}

func TestCalculateBlendFactorsSingleProbe(t *testing.T) {
	p := &ParallaxCorrectedCubemap{}
	p.resetCollected()
	p.numCollected = 1
	p.probeNDFs[0] = 0.9
	p.calculateBlendFactors()
	assert.Equal(t, float32(1), p.blendFactors[0])
}

func TestUpdateSceneGraphEarlyOut(t *testing.T) {
	for _, centerFirst := range []bool{true, false} {
		f := newFixture(t)
		var centered *CubemapProbe
		if centerFirst {
			centered = f.pcc.CreateProbe()
			placeAt(centered, math32.Vector3{}, 10)
		}
		for _, x := range []float32{1, 2, 3, 4, 5} {
			placeAt(f.pcc.CreateProbe(), math32.Vec3(x, 0, 0), 10)
		}
		if !centerFirst {
			centered = f.pcc.CreateProbe()
			placeAt(centered, math32.Vector3{}, 10)
		}

		f.pcc.SetTrackedData(math32.Vector3{}, identity())
		f.pcc.UpdateSceneGraph()

		require.Len(t, f.pcc.CollectedProbes(), 1, "center first: %v", centerFirst)
		assert.Same(t, centered, f.pcc.CollectedProbes()[0])
		assert.Equal(t, []float32{1}, f.pcc.BlendFactors())
		assert.Equal(t, centered.CameraPos(), f.pcc.BlendCameraPos())
	}
}

func TestUpdateSceneGraphKeepsLowestNDFs(t *testing.T) {
	offsets := []float32{1, 2, 3, 4, 5, 6, 7}
	require.Len(t, offsets, MaxCubeProbes+3)

	orders := map[string][]float32{
		"ascending":  offsets,
		"descending": {7, 6, 5, 4, 3, 2, 1},
	}
	for name, order := range orders {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			byOffset := map[float32]*CubemapProbe{}
			for _, x := range order {
				probe := f.pcc.CreateProbe()
				placeAt(probe, math32.Vec3(x, 0, 0), 10)
				byOffset[x] = probe
			}

			f.pcc.SetTrackedData(math32.Vector3{}, identity())
			f.pcc.UpdateSceneGraph()

			want := []*CubemapProbe{byOffset[1], byOffset[2], byOffset[3], byOffset[4]}
			assert.ElementsMatch(t, want, f.pcc.CollectedProbes())
			assert.Same(t, byOffset[1], f.pcc.CollectedProbes()[0], "lowest NDF dominates")
			for _, ndf := range f.pcc.ProbeNDFs() {
				assert.LessOrEqual(t, ndf, float32(0.4)+1e-6)
			}

			var sum float32
			for _, b := range f.pcc.BlendFactors() {
				sum += b
			}
			assert.InDelta(t, 1.0, sum, 1e-5)
		})
	}
}

func TestUpdateSceneGraphSkipsDisabledAndMaskedProbes(t *testing.T) {
	f := newFixture(t, WithMask(0x0F))
	disabled := f.pcc.CreateProbe(WithProbeEnabled(false))
	placeAt(disabled, math32.Vec3(1, 0, 0), 10)
	masked := f.pcc.CreateProbe(WithProbeMask(0xF0))
	placeAt(masked, math32.Vec3(2, 0, 0), 10)
	visible := f.pcc.CreateProbe(WithProbeMask(0x01))
	placeAt(visible, math32.Vec3(3, 0, 0), 10)

	f.pcc.SetTrackedData(math32.Vector3{}, identity())
	f.pcc.UpdateSceneGraph()
	assert.Equal(t, []*CubemapProbe{visible}, f.pcc.CollectedProbes())
}

func TestUpdateSceneGraphUsesOrientedArea(t *testing.T) {
	f := newFixture(t)
	long := math32.B3(-10, -1, -1, 10, 1, 1)

	aligned := f.pcc.CreateProbe()
	aligned.Set(math32.Vector3{}, long, math32.Vector3{}, common.QuatIdentity(), long)
	rotated := f.pcc.CreateProbe()
	rotated.Set(math32.Vector3{}, long, math32.Vector3{}, common.QuatFromAxisAngle(math32.Vec3(0, 1, 0), math32.Pi/2), long)

	f.pcc.SetTrackedData(math32.Vec3(0, 0, 5), identity())
	f.pcc.UpdateSceneGraph()
	require.Equal(t, []*CubemapProbe{rotated}, f.pcc.CollectedProbes())
	assert.InDelta(t, 0.5, f.pcc.ProbeNDFs()[0], 1e-5)
}

func TestNDFInnerRegion(t *testing.T) {
	f := newFixture(t)
	probe := f.pcc.CreateProbe()
	box := math32.B3(-10, -10, -10, 10, 10, 10)
	probe.Set(math32.Vector3{}, box, math32.Vec3(0.5, 0.5, 0.5), common.QuatIdentity(), box)

	assert.Equal(t, float32(0), probe.NDF(math32.Vec3(4, -4, 4)), "inside the inner region")
	assert.InDelta(t, 0.5, probe.NDF(math32.Vec3(7.5, 0, 0)), 1e-5)
	assert.InDelta(t, 1.0, probe.NDF(math32.Vec3(0, 10, 0)), 1e-5)

	probe.Set(math32.Vector3{}, box, math32.Vec3(2, -1, 0.5), common.QuatIdentity(), box)
	assert.Equal(t, math32.Vec3(1, 0, 0.5), probe.AreaInnerRegion(), "inner region is clamped to [0, 1]")
}

func TestFindClosestProbeFallback(t *testing.T) {
	f := newFixture(t)
	far := f.pcc.CreateProbe()
	placeAt(far, math32.Vec3(0, 0, -80), 2)
	near := f.pcc.CreateProbe()
	placeAt(near, math32.Vec3(0, 0, -10), 2)

	cam := camera.NewCamera("viewer")
	f.pcc.SetUpdatedTrackedDataFromCamera(cam)
	f.pcc.UpdateSceneGraph()

	require.Equal(t, []*CubemapProbe{near}, f.pcc.CollectedProbes())
	assert.Equal(t, []float32{1}, f.pcc.BlendFactors())
	assert.Greater(t, f.pcc.ProbeNDFs()[0], float32(1), "the tracked point is outside the area")
}

func TestFindClosestProbeNoProbes(t *testing.T) {
	f := newFixture(t)
	f.pcc.SetTrackedData(math32.Vector3{}, identity())
	f.pcc.UpdateSceneGraph()
	assert.Empty(t, f.pcc.CollectedProbes())
	assert.Nil(t, f.pcc.FindClosestProbe())
}

func TestTrackedCameraIsFollowed(t *testing.T) {
	f := newFixture(t)
	a := f.pcc.CreateProbe()
	placeAt(a, math32.Vec3(0, 0, 0), 5)
	b := f.pcc.CreateProbe()
	placeAt(b, math32.Vec3(100, 0, 0), 5)

	cam := camera.NewCamera("viewer")
	f.pcc.SetUpdatedTrackedDataFromCamera(cam)
	f.pcc.UpdateSceneGraph()
	assert.Equal(t, []*CubemapProbe{a}, f.pcc.CollectedProbes())

	cam.SetPosition(math32.Vec3(101, 0, 0))
	f.pcc.UpdateSceneGraph()
	assert.Equal(t, []*CubemapProbe{b}, f.pcc.CollectedProbes())

	f.pcc.SetTrackedData(math32.Vec3(1, 0, 0), identity())
	cam.SetPosition(math32.Vec3(100, 0, 0))
	f.pcc.UpdateSceneGraph()
	assert.Equal(t, []*CubemapProbe{a}, f.pcc.CollectedProbes(), "explicit tracked data stops following the camera")
}

func TestBlendCameraPosition(t *testing.T) {
	f := newFixture(t)
	a := f.pcc.CreateProbe()
	placeAt(a, math32.Vec3(-2, 0, 0), 10)
	b := f.pcc.CreateProbe()
	placeAt(b, math32.Vec3(6, 0, 0), 10)

	tracked := math32.Vec3(0, 1, 0)
	f.pcc.SetTrackedData(tracked, identity())
	f.pcc.UpdateSceneGraph()

	require.Len(t, f.pcc.CollectedProbes(), 2)
	require.Same(t, a, f.pcc.CollectedProbes()[0])
	bf0 := f.pcc.BlendFactors()[0]
	want := common.Lerp3(a.CameraPos(), tracked, bf0*2-1)
	got := f.pcc.BlendCameraPos()
	assert.InDelta(t, want.X, got.X, 1e-5)
	assert.InDelta(t, want.Y, got.Y, 1e-5)
	assert.InDelta(t, want.Z, got.Z, 1e-5)
}

func TestBlendedProbeNeedsUpdate(t *testing.T) {
	f := newFixture(t)
	a := f.pcc.CreateProbe()
	placeAt(a, math32.Vec3(1, 0, 0), 10)
	f.pcc.SetTrackedData(math32.Vector3{}, identity())

	f.pcc.UpdateSceneGraph()
	assert.True(t, f.pcc.BlendedProbeNeedsUpdate(), "first selection")
	f.pcc.UpdateSceneGraph()
	assert.False(t, f.pcc.BlendedProbeNeedsUpdate(), "same single probe")

	b := f.pcc.CreateProbe()
	placeAt(b, math32.Vec3(2, 0, 0), 10)
	f.pcc.UpdateSceneGraph()
	assert.True(t, f.pcc.BlendedProbeNeedsUpdate())
	f.pcc.UpdateSceneGraph()
	assert.True(t, f.pcc.BlendedProbeNeedsUpdate(), "blends of several probes always update")

	require.NoError(t, f.pcc.DestroyProbe(b))
	f.pcc.UpdateSceneGraph()
	assert.True(t, f.pcc.BlendedProbeNeedsUpdate())
	f.pcc.UpdateSceneGraph()
	assert.False(t, f.pcc.BlendedProbeNeedsUpdate())
}

func TestUnusedSlotsHoldTheBlankProbe(t *testing.T) {
	f := newFixture(t)
	assert.Nil(t, f.pcc.ProbeBindings(), "nothing is bound while disabled")
	for _, slot := range f.pcc.collectedProbes {
		assert.Same(t, blankCubemapProbe, slot)
	}

	require.NoError(t, f.pcc.SetEnabled(true, 32, 32, wgpu.TextureFormatRGBA16Float))
	blank := f.pcc.BlankProbe()
	bindings := f.pcc.ProbeBindings()
	require.Len(t, bindings, MaxCubeProbes)
	for _, b := range bindings {
		assert.Same(t, blank, b.Texture, "enabling binds the blank probe before any selection")
	}

	a := f.renderableProbe(t, math32.Vec3(-1, 0, 0), true)
	f.pcc.SetTrackedData(math32.Vector3{}, identity())
	f.pcc.UpdateSceneGraph()
	require.Equal(t, []*CubemapProbe{a}, f.pcc.CollectedProbes())
	for _, slot := range f.pcc.collectedProbes[1:] {
		assert.Same(t, blankCubemapProbe, slot)
	}
	bindings = f.pcc.ProbeBindings()
	assert.Same(t, a.Texture(), bindings[0].Texture)
	for _, b := range bindings[1:] {
		assert.Same(t, blank, b.Texture)
	}

	require.NoError(t, f.pcc.DestroyProbe(a))
	for _, b := range f.pcc.ProbeBindings() {
		assert.Same(t, blank, b.Texture, "a destroyed probe is unbound right away")
	}

	require.NoError(t, f.pcc.SetEnabled(false, 0, 0, wgpu.TextureFormatRGBA16Float))
	f.pcc.UpdateSceneGraph()
	assert.Nil(t, f.pcc.ProbeBindings())
	assert.Equal(t, [MaxCubeProbes]ProbeBinding{}, f.pcc.bindings)
}

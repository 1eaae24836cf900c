package compositor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

type shadowFixture struct {
	m   *Manager
	rs  *fakeRenderSystem
	sm  *fakeSceneManager
	ws  *Workspace
	sn  *ShadowNode
	cam camera.Camera

	sun, spotNear, spotFar, point light.Light
}

// newShadowFixture renders a scene pass shadowed by the node params describe. The point light
// is the farthest local light, so it only wins a slot once both spots are out.
func newShadowFixture(t *testing.T, params []ShadowParam) *shadowFixture {
	t.Helper()
	return newShadowFixtureWith(t, params, func(_ *shadowFixture, target *TargetDef) {
		target.AddScenePass().ShadowNode = common.NewIdString("shadows")
	})
}

// newShadowFixtureWith lets addScenePasses declare the scene passes of the main node after its
// clear pass.
func newShadowFixtureWith(t *testing.T, params []ShadowParam, addScenePasses func(f *shadowFixture, target *TargetDef)) *shadowFixture {
	t.Helper()
	f := &shadowFixture{
		sun:      light.NewLight(light.LightTypeDirectional, light.WithName("sun"), light.WithDirection(0, -1, -1)),
		spotNear: light.NewLight(light.LightTypeSpot, light.WithName("spotNear"), light.WithPosition(0, 0, -10)),
		spotFar:  light.NewLight(light.LightTypeSpot, light.WithName("spotFar"), light.WithPosition(0, 0, -50)),
		point:    light.NewLight(light.LightTypePoint, light.WithName("point"), light.WithPosition(0, 0, -90)),
	}
	f.m, f.rs, f.sm = newTestManager(f.sun, f.spotFar, f.point, f.spotNear)

	_, err := CreateShadowNodeWithSettings(f.m, "shadows", params)
	require.NoError(t, err)

	node, err := f.m.AddNodeDefinition("main")
	require.NoError(t, err)
	require.NoError(t, node.AddTextureSourceName("rw", 0, TextureSourceInput))
	target := node.AddTargetPass("rw", 0)
	target.AddClearPass()
	addScenePasses(f, target)
	wsDef, err := f.m.AddWorkspaceDefinition("shadowed")
	require.NoError(t, err)
	require.NoError(t, wsDef.ConnectOutput("main", 0))

	f.cam = f.sm.CreateCamera("view")
	f.ws, err = f.m.AddWorkspace(common.NewIdString("shadowed"),
		WithExternalTextures(newRenderWindow(640, 480)),
		WithCamera(f.cam))
	require.NoError(t, err)
	require.True(t, f.ws.IsValid())
	f.sn = f.ws.FindShadowNode(common.NewIdString("shadows"))
	require.NotNil(t, f.sn)
	return f
}

func sunAndSpotParams() []ShadowParam {
	sun := ShadowParam{SupportedLightTypes: light.LightTypeMaskDirectional, Technique: ShadowMapFocused}
	sun.SetSplit(0, 0, 0, 1024, 1024)
	spot := ShadowParam{SupportedLightTypes: light.LightTypeMaskSpot, Technique: ShadowMapFocused}
	spot.SetSplit(0, 1024, 0, 1024, 1024)
	return []ShadowParam{sun, spot}
}

// frame runs one manager update and returns the passes it executed.
func (f *shadowFixture) frame(t *testing.T) []string {
	t.Helper()
	f.rs.events = nil
	require.NoError(t, f.m.Update())
	return f.rs.passEvents()
}

func TestShadowNodeRendersBeforeTheShadowedPass(t *testing.T) {
	f := newShadowFixture(t, sunAndSpotParams())

	assert.Equal(t, []string{
		"main:clear",
		"shadows:clear", "shadows:scene", "shadows:scene",
		"main:scene",
	}, f.frame(t))

	slots := f.sn.ShadowCastingLights()
	require.Len(t, slots, 2)
	assert.Equal(t, f.sun, slots[0].Light)
	assert.Equal(t, 0, slots[0].GlobalIndex)
	assert.Equal(t, f.spotNear, slots[1].Light, "the closest spot wins the spot slot")
	assert.Equal(t, 3, slots[1].GlobalIndex)

	assert.NotNil(t, f.sn.ViewProjectionMatrix(0))
	data, ok := f.sn.ShadowMapData(1)
	require.True(t, ok)
	assert.Equal(t, uint32(light.LightTypeSpot), data.LightType)
	assert.InDelta(t, 0.5, data.UvOffset[0], 1e-6)
	assert.Len(t, data.Marshal(), data.Size())

	scene := f.rs.passes[len(f.rs.passes)-1]
	assert.Same(t, f.sn, scene.ShadowNode)
	assert.Equal(t, f.cam, scene.Camera)

	caster := f.rs.passes[2]
	assert.Equal(t, f.sn.ShadowCamera(0), caster.Camera)
	assert.Equal(t, PixelViewport{X: 0, Y: 0, Width: 1024, Height: 1024}, caster.Viewport)
}

func TestBuildClosestLightListRunsOncePerCameraAndFrame(t *testing.T) {
	f := newShadowFixture(t, sunAndSpotParams())
	f.frame(t)
	require.Equal(t, 1, f.sm.boxQueries)

	f.sn.BuildClosestLightList(f.cam, f.cam, light.DefaultVisibilityFlags)
	assert.Equal(t, 2, f.sm.boxQueries, "a new workspace frame rebuilds the list")
	f.sn.BuildClosestLightList(f.cam, f.cam, light.DefaultVisibilityFlags)
	assert.Equal(t, 2, f.sm.boxQueries)

	other := f.sm.CreateCamera("other")
	f.sn.BuildClosestLightList(other, other, light.DefaultVisibilityFlags)
	assert.Equal(t, 3, f.sm.boxQueries)

	f.frame(t)
	assert.Equal(t, 4, f.sm.boxQueries)
	assert.Equal(t, f.spotNear, f.sn.ShadowCastingLights()[1].Light)
}

func TestShadowSlotsFollowLightChanges(t *testing.T) {
	f := newShadowFixture(t, sunAndSpotParams())
	f.frame(t)

	f.spotNear.SetEnabled(false)
	f.frame(t)
	assert.Equal(t, f.spotFar, f.sn.ShadowCastingLights()[1].Light)

	f.spotFar.SetCastsShadows(false)
	events := f.frame(t)
	assert.Nil(t, f.sn.ShadowCastingLights()[1].Light)
	assert.False(t, f.sn.IsShadowMapIdxActive(1))
	assert.Nil(t, f.sn.ViewProjectionMatrix(1))
	assert.Equal(t, []string{"main:clear", "shadows:clear", "shadows:scene", "main:scene"}, events)

	f.sun.SetVisibilityFlags(0)
	f.frame(t)
	assert.Nil(t, f.sn.ShadowCastingLights()[0].Light, "lights outside the visibility mask are ignored")
}

func TestStaticShadowMapsRenderOnlyWhenDirty(t *testing.T) {
	f := newShadowFixture(t, sunAndSpotParams())
	require.NoError(t, f.sn.SetLightFixedToShadowMap(1, f.spotFar))
	assert.True(t, f.sn.IsShadowMapIdxInStaticMode(1))

	countCasters := func(events []string) int {
		n := 0
		for _, e := range events {
			if e == "shadows:scene" {
				n++
			}
		}
		return n
	}

	assert.Equal(t, 2, countCasters(f.frame(t)))
	assert.Equal(t, f.spotFar, f.sn.ShadowCastingLights()[1].Light, "the pinned light keeps its slot")
	assert.True(t, f.spotFar.CastsShadows(), "pinned lights are unmuted after the light list is built")

	assert.Equal(t, 1, countCasters(f.frame(t)), "clean static maps are skipped")

	require.NoError(t, f.sn.SetStaticShadowMapDirty(1, false))
	assert.Equal(t, 2, countCasters(f.frame(t)))

	require.NoError(t, f.sn.SetLightFixedToShadowMap(1, nil))
	f.frame(t)
	assert.False(t, f.sn.IsShadowMapIdxInStaticMode(1))
	assert.Equal(t, f.spotNear, f.sn.ShadowCastingLights()[1].Light)
}

func TestPssmShadowNodeExposesSplits(t *testing.T) {
	sun := ShadowParam{SupportedLightTypes: light.LightTypeMaskDirectional, Technique: ShadowMapPssm, NumPssmSplits: 3}
	sun.SetSplit(0, 0, 0, 1024, 1024)
	sun.SetSplit(1, 1024, 0, 1024, 1024)
	sun.SetSplit(2, 2048, 0, 1024, 1024)
	f := newShadowFixture(t, []ShadowParam{sun})
	f.frame(t)

	splits := f.sn.PssmSplits(0)
	require.Len(t, splits, 4)
	assert.InDelta(t, f.cam.Near(), splits[0], 1e-6)
	assert.InDelta(t, f.cam.Far(), splits[3], 1e-4)
	assert.Len(t, f.sn.PssmBlends(1), 2)
	require.NotNil(t, f.sn.PssmFade(2))
	assert.Equal(t, 0, f.sn.IndexToContiguousShadowMapTex(2))
	assert.Equal(t, -1, f.sn.IndexToContiguousShadowMapTex(3))
	assert.Len(t, f.sn.ContiguousShadowMapTextures(), 1)

	data, ok := f.sn.ShadowMapData(0)
	require.True(t, ok)
	assert.Equal(t, uint32(3), data.NumSplits)
	assert.InDelta(t, splits[1], data.PssmSplits[0], 1e-6)
}

func TestEveryShadowNodeRecalculationGetsItsBarriers(t *testing.T) {
	f := newShadowFixtureWith(t, sunAndSpotParams(), func(_ *shadowFixture, target *TargetDef) {
		for range 2 {
			pass := target.AddScenePass()
			pass.ShadowNode = common.NewIdString("shadows")
			pass.ShadowNodeRecalculation = ShadowNodeRecalculate
		}
	})
	atlas := f.sn.ContiguousShadowMapTextures()[0]

	f.frame(t)
	f.rs.transitions = nil
	assert.Equal(t, []string{
		"main:clear",
		"shadows:clear", "shadows:scene", "shadows:scene",
		"main:scene",
		"shadows:clear", "shadows:scene", "shadows:scene",
		"main:scene",
	}, f.frame(t))

	sampled := func(barriers []ResourceTransition) bool {
		for _, tr := range barriers {
			if tr.Resource == atlas && tr.OldLayout == ResourceLayoutRenderTarget && tr.NewLayout == ResourceLayoutTexture {
				return true
			}
		}
		return false
	}
	main, err := f.ws.FindNode(common.NewIdString("main"))
	require.NoError(t, err)
	for i, pass := range main.Passes()[1:] {
		sp := pass.(*ScenePass)
		require.True(t, sp.UpdatesShadowNode())
		assert.True(t, sampled(sp.Barriers()), "scene pass %d samples the atlas its shadow node just rendered", i)
	}

	toTexture, toTarget := 0, 0
	for _, batch := range f.rs.transitions {
		for _, tr := range batch {
			if tr.Resource != atlas {
				continue
			}
			switch tr.NewLayout {
			case ResourceLayoutTexture:
				toTexture++
			case ResourceLayoutRenderTarget:
				toTarget++
			}
		}
	}
	assert.Equal(t, 2, toTarget, "each recalculation turns the atlas back into a render target")
	assert.Equal(t, 2, toTexture)
}

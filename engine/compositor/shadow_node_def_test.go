package compositor

import (
	"testing"

	"cogentcore.org/core/base/errors"
	"cogentcore.org/core/math32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

func newAtlasShadowNodeDef(t *testing.T, m *Manager, name string) *ShadowNodeDef {
	t.Helper()
	def, err := m.AddShadowNodeDefinition(name)
	require.NoError(t, err)
	tex, err := def.AddTextureDefinition("atlas")
	require.NoError(t, err)
	tex.Width, tex.Height = 2048, 2048
	return def
}

func addShadowMap(t *testing.T, def *ShadowNodeDef, lightIdx, split uint32) *ShadowTextureDefinition {
	t.Helper()
	texDef, err := def.AddShadowTextureDefinition(lightIdx, split, "atlas", math32.Vec2(0, 0), math32.Vec2(1, 1), 0)
	require.NoError(t, err)
	return texDef
}

func TestShadowTextureDefinitionDuplicates(t *testing.T) {
	m, _, _ := newTestManager()
	def := newAtlasShadowNodeDef(t, m, "shadows")
	addShadowMap(t, def, 0, 0)

	_, err := def.AddShadowTextureDefinition(0, 0, "atlas", math32.Vec2(0, 0), math32.Vec2(1, 1), 0)
	assert.True(t, errors.Is(err, common.ErrDuplicateItem))
	assert.Equal(t, 1, def.NumShadowTextureDefinitions())
}

func TestNumLightsCountsDistinctSlots(t *testing.T) {
	m, _, _ := newTestManager()
	def := newAtlasShadowNodeDef(t, m, "shadows")
	addShadowMap(t, def, 0, 0)
	addShadowMap(t, def, 0, 1)
	addShadowMap(t, def, 2, 0)

	assert.Equal(t, uint32(2), def.NumLights())
	err := def.ValidateAndFinish()
	assert.True(t, errors.Is(err, common.ErrInvalidParams), "light slot 1 has no shadow map")

	addShadowMap(t, def, 1, 0)
	assert.Equal(t, uint32(3), def.NumLights())
	assert.NoError(t, def.ValidateAndFinish())
}

func TestSplitsShareTheFirstSplitSetup(t *testing.T) {
	m, _, _ := newTestManager()
	def := newAtlasShadowNodeDef(t, m, "shadows")
	first := addShadowMap(t, def, 0, 0)
	first.Technique = ShadowMapPssm
	first.NumSplits = 3
	second := addShadowMap(t, def, 0, 1)
	second.Technique = ShadowMapPssm
	second.NumSplits = 3
	third := addShadowMap(t, def, 0, 2)
	third.NumSplits = 2
	spot := addShadowMap(t, def, 1, 0)
	otherSpot := addShadowMap(t, def, 2, 0)

	require.NoError(t, def.ValidateAndFinish())

	assert.Equal(t, NoSharedSetup, first.SharesSetupWith())
	assert.Equal(t, 0, second.SharesSetupWith())
	assert.Equal(t, 0, third.SharesSetupWith())
	assert.Equal(t, uint32(3), third.NumSplits, "splits follow the owner's split count")
	assert.Equal(t, ShadowMapPssm, third.Technique)

	assert.Equal(t, NoSharedSetup, spot.SharesSetupWith())
	assert.Equal(t, 3, otherSpot.SharesSetupWith(), "maps with the same technique share a setup")
}

func TestShadowNodeValidationRepairsPasses(t *testing.T) {
	m, _, _ := newTestManager()
	def := newAtlasShadowNodeDef(t, m, "shadows")
	addShadowMap(t, def, 0, 0)

	target := def.AddTargetPass("atlas", 0)
	clearPass := target.AddClearPass()
	first := target.AddScenePass()
	first.ShadowMapIdx = 0
	first.FirstRQ, first.LastRQ = 10, 20
	first.Viewport = Viewport{Left: 0, Top: 0, Width: 0.5, Height: 0.5}
	second := target.AddScenePass()
	second.ShadowMapIdx = 0
	second.FirstRQ, second.LastRQ = 5, 15
	second.ShadowNode = common.NewIdString("nested")
	second.ShadowNodeRecalculation = ShadowNodeRecalculate

	require.NoError(t, def.ValidateAndFinish())

	assert.False(t, clearPass.IncludeOverlays)
	assert.False(t, first.IncludeOverlays)
	assert.True(t, second.ShadowNode.IsBlank())
	assert.Equal(t, ShadowNodeCasterPass, second.ShadowNodeRecalculation)
	assert.Equal(t, first.Viewport, second.Viewport)
	assert.Equal(t, uint8(5), def.MinRq())
	assert.Equal(t, uint8(20), def.MaxRq())
}

func TestShadowNodeValidationErrors(t *testing.T) {
	t.Run("input channels", func(t *testing.T) {
		m, _, _ := newTestManager()
		def := newAtlasShadowNodeDef(t, m, "shadows")
		addShadowMap(t, def, 0, 0)
		require.NoError(t, def.AddTextureSourceName("in", 0, TextureSourceInput))
		assert.True(t, errors.Is(def.ValidateAndFinish(), common.ErrInvalidParams))
	})

	t.Run("scene pass without shadow map", func(t *testing.T) {
		m, _, _ := newTestManager()
		def := newAtlasShadowNodeDef(t, m, "shadows")
		addShadowMap(t, def, 0, 0)
		def.AddTargetPass("atlas", 0).AddScenePass()
		assert.True(t, errors.Is(def.ValidateAndFinish(), common.ErrInvalidParams))
	})

	t.Run("shadow map out of range", func(t *testing.T) {
		m, _, _ := newTestManager()
		def := newAtlasShadowNodeDef(t, m, "shadows")
		addShadowMap(t, def, 0, 0)
		def.AddTargetPass("atlas", 0).AddScenePass().ShadowMapIdx = 1
		assert.True(t, errors.Is(def.ValidateAndFinish(), common.ErrInvalidParams))
	})

	t.Run("no scene passes", func(t *testing.T) {
		m, _, _ := newTestManager()
		def := newAtlasShadowNodeDef(t, m, "shadows")
		addShadowMap(t, def, 0, 0)
		def.AddTargetPass("atlas", 0).AddClearPass()
		require.NoError(t, def.ValidateAndFinish())
		assert.Equal(t, uint8(0), def.MinRq())
		assert.Equal(t, uint8(255), def.MaxRq())
	})
}

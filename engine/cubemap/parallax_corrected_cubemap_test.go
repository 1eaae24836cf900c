package cubemap

import (
	"encoding/binary"
	"math"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
)

func TestNewParallaxCorrectedCubemapUnknownWorkspace(t *testing.T) {
	rs := newFakeRenderSystem()
	m := compositor.NewManager(rs, newFakeSceneManager())
	_, err := NewParallaxCorrectedCubemap(1, m, newFakeSceneManager(), common.NewIdString("Missing"), 200, 1)
	assert.ErrorIs(t, err, common.ErrItemNotFound)
}

func TestNewParallaxCorrectedCubemapSamplerExhaustion(t *testing.T) {
	pool := common.NewBlockPool[common.SamplerStagingData]("sampler", 1)
	rs := newFakeRenderSystem()
	sm := newFakeSceneManager()
	m := compositor.NewManager(rs, sm)
	_, err := m.CreateBasicWorkspaceDef("ProbeWorkspace", [4]float32{})
	require.NoError(t, err)

	_, err = NewParallaxCorrectedCubemap(1, m, sm, probeWorkspace, 200, 1, WithSamplerPool(pool))
	assert.ErrorIs(t, err, common.ErrInternal)
	assert.Equal(t, 0, pool.Len(), "the point sampler is released again")
}

func TestSetEnabledCreatesAndDestroysResources(t *testing.T) {
	f := newFixture(t)
	require.ErrorIs(t, f.pcc.SetEnabled(true, 0, 128, wgpu.TextureFormatRGBA16Float), common.ErrInvalidParams)

	require.NoError(t, f.pcc.SetEnabled(true, 128, 64, wgpu.TextureFormatRGBA16Float))
	assert.True(t, f.pcc.Enabled())

	blend := f.pcc.BlendCubemap().Descriptor()
	assert.Equal(t, compositor.TextureTypeCube, blend.Type)
	assert.Equal(t, uint32(128), blend.Width)
	assert.Equal(t, uint32(64), blend.Height)
	assert.Equal(t, uint32(6), blend.DepthOrSlices)
	assert.Equal(t, uint32(8), blend.MipLevels)
	assert.Equal(t, wgpu.TextureFormatRGBA16Float, blend.Format)

	blank := f.pcc.BlankProbe()
	assert.Equal(t, uint32(1), blank.Descriptor().Width)
	require.Contains(t, f.rs.written, blank)
	assert.Equal(t, uint32(6), f.rs.written[blank].Layers)
	assert.Len(t, f.rs.live, 3, "capture, blend and blank cubemaps")
	assert.Len(t, f.sm.cameras, 1, "blend camera")

	// Enabling again with the same settings is a no-op.
	require.NoError(t, f.pcc.SetEnabled(true, 128, 64, wgpu.TextureFormatRGBA16Float))
	assert.Same(t, blank, f.pcc.BlankProbe())

	require.NoError(t, f.pcc.SetEnabled(false, 0, 0, wgpu.TextureFormatUndefined))
	assert.False(t, f.pcc.Enabled())
	assert.Nil(t, f.pcc.BlendCubemap())
	assert.Empty(t, f.rs.live)
	assert.Empty(t, f.sm.cameras)
}

func TestProbeLifecycleErrors(t *testing.T) {
	f := newFixture(t)
	probe := f.pcc.CreateProbe()

	assert.ErrorIs(t, probe.InitWorkspace(), common.ErrInvalidState, "no texture")
	assert.ErrorIs(t, probe.SetTextureParams(0, 32, wgpu.TextureFormatRGBA8Unorm, true), common.ErrInvalidParams)

	require.NoError(t, probe.SetTextureParams(64, 64, wgpu.TextureFormatRGBA8Unorm, true))
	assert.Equal(t, uint32(7), probe.Texture().Descriptor().MipLevels)
	assert.ErrorIs(t, probe.InitWorkspace(), common.ErrInvalidState, "static probes need an enabled PCC")

	assert.ErrorIs(t, f.pcc.SetEnabled(true, 32, 32, wgpu.TextureFormatRGBA8Unorm), common.ErrInvalidParams,
		"the pending workspace is bigger than the capture cubemap")
	assert.True(t, f.pcc.Enabled())
	assert.ErrorIs(t, probe.InitWorkspace(), common.ErrInvalidParams)
	assert.Nil(t, probe.Workspace())

	require.NoError(t, probe.SetTextureParams(32, 32, wgpu.TextureFormatRGBA8Unorm, true))
	assert.NotNil(t, probe.Workspace(), "the pending workspace is created with the new texture")
	assert.NotNil(t, probe.Camera())
	assert.InDelta(t, math32.Pi/2, probe.Camera().Fov(), 1e-6)

	other := newFixture(t)
	assert.ErrorIs(t, other.pcc.DestroyProbe(probe), common.ErrItemNotFound)
	require.NoError(t, f.pcc.DestroyProbe(probe))
	assert.ErrorIs(t, f.pcc.DestroyProbe(probe), common.ErrItemNotFound)
	assert.Empty(t, f.pcc.Probes())
}

func TestProbeCameraCoversProbeShape(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pcc.SetEnabled(true, 32, 32, wgpu.TextureFormatRGBA8Unorm))
	probe := f.renderableProbe(t, math32.Vec3(1, 2, 3), true)

	cam := probe.Camera()
	assert.Equal(t, math32.Vec3(1, 2, 3), cam.Position())
	assert.InDelta(t, math32.Sqrt(300), cam.Far(), 1e-4, "distance to the farthest probe shape corner")
	assert.Equal(t, DefaultCameraNear, cam.Near())
}

func TestUpdateRenderStaticProbe(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pcc.SetEnabled(true, 64, 64, wgpu.TextureFormatRGBA16Float))
	probe := f.renderableProbe(t, math32.Vector3{}, true)
	f.pcc.SetTrackedData(math32.Vec3(1, 0, 0), identity())
	copyNode := f.pcc.Name() + "/CopyNode"

	require.NoError(t, f.m.Update())
	assert.Equal(t, 6, f.rs.count(probeNode, compositor.PassTypeClear), "clears only run on the first iteration")
	assert.Equal(t, 12, f.rs.count(probeNode, compositor.PassTypeScene))
	assert.Equal(t, 18, f.rs.count(copyNode, compositor.PassTypeQuad), "one copy per iteration plus the blend copy")
	assert.Equal(t, 3, f.rs.count(copyNode, compositor.PassTypeMipmap))
	assert.False(t, probe.Dirty())
	assert.Equal(t, compositor.DefaultExecutionMask, probe.Workspace().ExecutionMask())

	last := f.rs.passes[len(f.rs.passes)-1]
	assert.Same(t, f.pcc.BlendCubemap(), last.Target.Texture)
	assert.Equal(t, []compositor.Texture{probe.Texture()}, f.rs.passes[len(f.rs.passes)-2].Inputs)

	f.rs.reset()
	require.NoError(t, f.m.Update())
	assert.Empty(t, f.rs.events, "a clean static probe and an unchanged selection render nothing")

	probe.MarkDirty()
	require.NoError(t, f.m.Update())
	assert.Equal(t, 12, f.rs.count(probeNode, compositor.PassTypeScene))
	assert.Equal(t, 18, f.rs.count(copyNode, compositor.PassTypeQuad))
}

func TestUpdateRenderDynamicProbe(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pcc.SetEnabled(true, 64, 64, wgpu.TextureFormatRGBA16Float))
	probe := f.renderableProbe(t, math32.Vector3{}, false)
	f.pcc.SetTrackedData(math32.Vec3(1, 0, 0), identity())
	copyNode := f.pcc.Name() + "/CopyNode"

	for range 2 {
		f.rs.reset()
		require.NoError(t, f.m.Update())
		assert.Equal(t, 12, f.rs.count(probeNode, compositor.PassTypeScene), "dynamic probes render every frame")
		assert.Equal(t, 6, f.rs.count(copyNode, compositor.PassTypeQuad), "only the blend copy")
		assert.Same(t, probe.Texture(), f.rs.passes[0].Target.Texture, "dynamic probes render into their own cubemap")

		for _, ctx := range f.rs.passes {
			if ctx.Node.AliasStr() != copyNode || ctx.Pass.Type() != compositor.PassTypeQuad {
				continue
			}
			require.Len(t, ctx.ShaderParams, 16)
			assert.Equal(t, ctx.Target.Slice, binary.LittleEndian.Uint32(ctx.ShaderParams[0:4]), "each copy writes the face it targets")
		}
	}
}

func TestUpdateRenderBlendsSeveralProbes(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pcc.SetEnabled(true, 64, 64, wgpu.TextureFormatRGBA16Float))
	a := f.renderableProbe(t, math32.Vec3(-1, 0, 0), true)
	b := f.renderableProbe(t, math32.Vec3(3, 0, 0), true)
	f.pcc.SetTrackedData(math32.Vector3{}, identity())
	blendNode := f.pcc.Name() + "/BlendNode"

	require.NoError(t, f.m.Update())
	assert.Equal(t, 6, f.rs.count(blendNode, compositor.PassTypeQuad))
	assert.Equal(t, 1, f.rs.count(blendNode, compositor.PassTypeMipmap))

	var faces []uint32
	for _, ctx := range f.rs.passes {
		if ctx.Node.AliasStr() != blendNode || ctx.Pass.Type() != compositor.PassTypeQuad {
			continue
		}
		require.Len(t, ctx.ShaderParams, 416)
		assert.Equal(t, ctx.Target.Slice, binary.LittleEndian.Uint32(ctx.ShaderParams[400:404]))
		assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(ctx.ShaderParams[396:400]))
		blank := f.pcc.BlankProbe()
		assert.Equal(t, []compositor.Texture{a.Texture(), b.Texture(), blank, blank}, ctx.Inputs)
		faces = append(faces, ctx.Target.Slice)
	}
	assert.Equal(t, []uint32{0, 1, 2, 3, 4, 5}, faces)

	f.rs.reset()
	require.NoError(t, f.m.Update())
	assert.Equal(t, 6, f.rs.count(blendNode, compositor.PassTypeQuad), "blends update every frame")
	assert.Zero(t, f.rs.count(probeNode, compositor.PassTypeScene), "both probes are clean")
}

func TestProbeBindingsFillEverySlot(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pcc.SetEnabled(true, 32, 32, wgpu.TextureFormatRGBA16Float))
	a := f.renderableProbe(t, math32.Vec3(-1, 0, 0), true)
	b := f.pcc.CreateProbe()
	placeAt(b, math32.Vec3(2, 0, 0), 10)
	require.NoError(t, b.SetTextureParams(16, 16, wgpu.TextureFormatRGBA16Float, true))

	f.pcc.SetTrackedData(math32.Vector3{}, identity())
	f.pcc.UpdateSceneGraph()
	bindings := f.pcc.ProbeBindings()
	pool := f.pcc.SamplerPool()

	assert.Same(t, a.Texture(), bindings[0].Texture)
	assert.Equal(t, common.PointSampler(), pool.Get(bindings[0].Sampler), "same mip count as the blend cubemap")
	assert.Same(t, b.Texture(), bindings[1].Texture)
	assert.Equal(t, common.TrilinearSampler(), pool.Get(bindings[1].Sampler))
	for _, unused := range bindings[2:] {
		assert.Same(t, f.pcc.BlankProbe(), unused.Texture)
		assert.Equal(t, GPUCubemapProbeData{}, unused.Data)
	}

	weights := f.pcc.BlendFactors()
	assert.Equal(t, weights[0], bindings[0].Data.HalfSizeWeight[3])
	assert.Equal(t, weights[1], bindings[1].Data.HalfSizeWeight[3])
	assert.Equal(t, [4]float32{1, 0, 0, -1}, bindings[0].Data.Row0CenterX)
	assert.Equal(t, [4]float32{0, 0, 0, 0.1}, bindings[0].Data.CameraPosNdf)
}

func TestDestroyReleasesEverything(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.pcc.SetEnabled(true, 32, 32, wgpu.TextureFormatRGBA8Unorm))
	f.renderableProbe(t, math32.Vector3{}, true)
	f.renderableProbe(t, math32.Vec3(1, 0, 0), false)
	require.NoError(t, f.m.Update())

	require.NoError(t, f.pcc.Destroy())
	assert.Empty(t, f.rs.live)
	assert.Empty(t, f.sm.cameras)
	assert.Empty(t, f.m.Workspaces())
	assert.Equal(t, 0, f.pcc.SamplerPool().Len())
	assert.False(t, f.m.HasWorkspaceDefinition(common.NewIdString(f.pcc.Name()+"/Copy")))
	assert.False(t, f.m.HasNodeDefinition(common.NewIdString(f.pcc.Name()+"/BlendNode")))
	assert.True(t, f.m.HasWorkspaceDefinition(probeWorkspace), "the user definition is kept")
}

func TestGPUTypesLayout(t *testing.T) {
	var probe GPUCubemapProbeData
	assert.Equal(t, 96, probe.Size())
	assert.Len(t, probe.Marshal(), probe.Size())

	params := GPUBlendParams{NumProbes: 3, Face: 5}
	params.Probes[1].HalfSizeWeight[3] = 0.25
	assert.Equal(t, 416, params.Size())
	buf := params.Marshal()
	require.Len(t, buf, params.Size())
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(buf[396:400]))
	assert.Equal(t, uint32(5), binary.LittleEndian.Uint32(buf[400:404]))
	assert.Equal(t, math.Float32bits(0.25), binary.LittleEndian.Uint32(buf[96+60:96+64]))
}

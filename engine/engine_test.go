package engine

import (
	"testing"
	"time"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
	"github.com/Carmen-Shannon/oxy-compositor/engine/cubemap"
)

// newTestEngine creates an engine around a fake renderer with a window of the given size.
func newTestEngine(t *testing.T, width, height uint32, options ...EngineBuilderOption) (*engine, *fakeRenderer) {
	t.Helper()
	fr := newFakeRenderer(width, height)
	e, err := NewEngine(append([]EngineBuilderOption{WithRenderer(fr)}, options...)...)
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, e.Release()) })
	return e.(*engine), fr
}

func TestNewEngineRegistersBuiltinMaterials(t *testing.T) {
	e, fr := newTestEngine(t, 64, 64)
	assert.ElementsMatch(t, []string{cubemap.CopyMaterial, cubemap.BlendMaterial, compositor.CubeToAtlasMaterial}, fr.materials)
	require.Contains(t, fr.handlers, compositor.PassTypeQuad, "quads are drawn with the registered materials")
	require.NoError(t, fr.handlers[compositor.PassTypeQuad](nil, nil))
	assert.Equal(t, 1, fr.quadDraws)
	assert.NotNil(t, e.Scene())
	assert.Same(t, fr, e.Renderer())
	assert.Same(t, fr, e.Compositor().RenderSystem())
	assert.Nil(t, e.Window())
}

func TestReleaseLeavesGivenRenderer(t *testing.T) {
	fr := newFakeRenderer(64, 64)
	e, err := NewEngine(WithRenderer(fr))
	require.NoError(t, err)
	require.NoError(t, e.Release())
	assert.False(t, fr.released)
}

func TestRenderFrameUpdatesAndPresents(t *testing.T) {
	e, fr := newTestEngine(t, 320, 240, WithProfiling(true), WithProfilerInterval(time.Hour))
	def, err := e.Compositor().CreateBasicWorkspaceDef("Main", [4]float32{0, 0, 0, 1})
	require.NoError(t, err)

	cam := camera.NewCamera("main")
	ws, err := e.AddWindowWorkspace(def.Name(), compositor.WithCamera(cam))
	require.NoError(t, err)
	assert.Same(t, fr.window, ws.ExternalRenderTargets()[0])
	assert.InDelta(t, 320.0/240.0, cam.Aspect(), 1e-6)

	var deltas []float32
	e.SetRenderCallback(func(dt float32) { deltas = append(deltas, dt) })
	require.NoError(t, e.RenderFrame(0.5))
	assert.Equal(t, []float32{0.5}, deltas)
	assert.Equal(t, 1, fr.frames)
	assert.Equal(t, 1, fr.presented)
	assert.Equal(t, []compositor.PassType{compositor.PassTypeClear, compositor.PassTypeScene}, fr.passes)
	assert.Equal(t, uint64(1), e.Compositor().FrameCount())

	fr.failPass = assert.AnError
	assert.ErrorIs(t, e.RenderFrame(0.5), assert.AnError)
	assert.Equal(t, 2, fr.presented, "a failed update still presents")
}

func TestResizeHandsWindowToWorkspaces(t *testing.T) {
	e, fr := newTestEngine(t, 320, 240)
	def, err := e.Compositor().CreateBasicWorkspaceDef("Main", [4]float32{})
	require.NoError(t, err)

	cam := camera.NewCamera("main")
	onWindow, err := e.AddWindowWorkspace(def.Name(), compositor.WithCamera(cam))
	require.NoError(t, err)
	offscreen := newWindowTexture("offscreen", 128, 128)
	other, err := e.Compositor().AddWorkspace(def.Name(),
		compositor.WithCamera(camera.NewCamera("other")), compositor.WithExternalTextures(offscreen))
	require.NoError(t, err)
	require.NoError(t, e.RenderFrame(0))

	require.NoError(t, e.Resize(640, 320))
	require.Len(t, onWindow.ExternalRenderTargets(), 1)
	assert.Same(t, fr.window, onWindow.ExternalRenderTargets()[0])
	assert.Equal(t, uint32(640), onWindow.ExternalRenderTargets()[0].Descriptor().Width)
	assert.InDelta(t, 2.0, cam.Aspect(), 1e-6)
	assert.Same(t, offscreen, other.ExternalRenderTargets()[0])

	require.NoError(t, e.RenderFrame(0))
	assert.Equal(t, 2, fr.presented)
}

func TestHeadlessEngine(t *testing.T) {
	e, fr := newTestEngine(t, 0, 0)
	def, err := e.Compositor().CreateBasicWorkspaceDef("Main", [4]float32{})
	require.NoError(t, err)

	_, err = e.AddWindowWorkspace(def.Name())
	assert.ErrorIs(t, err, common.ErrInvalidState)
	assert.ErrorIs(t, e.Resize(64, 64), common.ErrInvalidState)

	require.NoError(t, e.RenderFrame(0))
	assert.Equal(t, 1, fr.presented)
}

func TestParallaxCorrectedCubemapSharesSamplerPool(t *testing.T) {
	e, fr := newTestEngine(t, 64, 64)
	def, err := e.Compositor().CreateBasicWorkspaceDef("Probe", [4]float32{})
	require.NoError(t, err)

	pcc, err := e.NewParallaxCorrectedCubemap(7, def.Name(), 200, 1<<31)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), pcc.ID())
	assert.Same(t, fr.samplers, pcc.SamplerPool())
	assert.Equal(t, 2, fr.samplers.Len(), "point and trilinear samplers")

	require.NoError(t, pcc.SetEnabled(true, 32, 32, wgpu.TextureFormatRGBA16Float))
	require.NoError(t, e.RenderFrame(0))

	require.NoError(t, e.Release())
	assert.Equal(t, 0, fr.samplers.Len())
	assert.False(t, pcc.Enabled())
	assert.Empty(t, fr.live)
}

func TestTickAndFrameRates(t *testing.T) {
	e, _ := newTestEngine(t, 64, 64, WithTickRate(0), WithRenderFrameLimit(50))
	assert.Equal(t, time.Second/60, e.engineTickRate)
	assert.Equal(t, 20*time.Millisecond, e.renderFrameLimit)

	e.SetTickRate(120)
	assert.Equal(t, time.Duration(float64(time.Second)/120), e.engineTickRate)
	e.SetRenderFrameLimit(0)
	assert.Zero(t, e.renderFrameLimit)
}

func TestRunHeadlessUntilQuit(t *testing.T) {
	e, fr := newTestEngine(t, 64, 64, WithTickRate(1000))
	ticks := make(chan struct{}, 1)
	e.SetTickCallback(func(float32) {
		select {
		case ticks <- struct{}{}:
		default:
		}
	})

	done := make(chan struct{})
	go func() {
		e.Run()
		close(done)
	}()
	select {
	case <-ticks:
	case <-time.After(5 * time.Second):
		t.Fatal("the tick loop never ran")
	}
	e.Quit()
	e.Quit()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Quit")
	}
	assert.Positive(t, fr.presented)
}

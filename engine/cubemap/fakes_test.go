package cubemap

import (
	"fmt"
	"testing"

	"cogentcore.org/core/math32"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

type fakeTexture struct {
	desc compositor.TextureDescriptor
}

func (t *fakeTexture) Name() common.IdString                    { return t.desc.Name }
func (t *fakeTexture) Descriptor() compositor.TextureDescriptor { return t.desc }

type fakeBuffer struct {
	desc compositor.BufferDescriptor
}

func (b *fakeBuffer) Name() common.IdString                   { return b.desc.Name }
func (b *fakeBuffer) Descriptor() compositor.BufferDescriptor { return b.desc }

// fakeRenderSystem records executed passes and tracks live textures.
type fakeRenderSystem struct {
	events  []string
	passes  []*compositor.PassContext
	live    map[compositor.Texture]bool
	written map[compositor.Texture]common.TextureStagingData
}

var _ TextureWriter = &fakeRenderSystem{}

func newFakeRenderSystem() *fakeRenderSystem {
	return &fakeRenderSystem{
		live:    map[compositor.Texture]bool{},
		written: map[compositor.Texture]common.TextureStagingData{},
	}
}

func (rs *fakeRenderSystem) CreateTexture(desc compositor.TextureDescriptor) (compositor.Texture, error) {
	tex := &fakeTexture{desc: desc}
	rs.live[tex] = true
	return tex, nil
}

func (rs *fakeRenderSystem) DestroyTexture(tex compositor.Texture) {
	delete(rs.live, tex)
}

func (rs *fakeRenderSystem) CreateBuffer(desc compositor.BufferDescriptor) (compositor.Buffer, error) {
	return &fakeBuffer{desc: desc}, nil
}

func (rs *fakeRenderSystem) DestroyBuffer(compositor.Buffer) {}

func (rs *fakeRenderSystem) BeginFrameOnce() error { return nil }

func (rs *fakeRenderSystem) EndFrameOnce() error { return nil }

func (rs *fakeRenderSystem) ExecuteResourceTransitions([]compositor.ResourceTransition) {}

func (rs *fakeRenderSystem) ExecutePass(ctx *compositor.PassContext) error {
	rs.events = append(rs.events, fmt.Sprintf("%s:%s", ctx.Node.AliasStr(), ctx.Pass.Type()))
	rs.passes = append(rs.passes, ctx)
	return nil
}

func (rs *fakeRenderSystem) WriteTexture(tex compositor.Texture, data common.TextureStagingData) error {
	rs.written[tex] = data
	return nil
}

func (rs *fakeRenderSystem) reset() {
	rs.events = nil
	rs.passes = nil
}

// count returns how many passes of type t ran in the node with the given alias.
func (rs *fakeRenderSystem) count(alias string, t compositor.PassType) int {
	want := fmt.Sprintf("%s:%s", alias, t)
	n := 0
	for _, e := range rs.events {
		if e == want {
			n++
		}
	}
	return n
}

type fakeSceneManager struct {
	cameras map[common.IdString]camera.Camera
}

func newFakeSceneManager() *fakeSceneManager {
	return &fakeSceneManager{cameras: map[common.IdString]camera.Camera{}}
}

func (sm *fakeSceneManager) Lights() []light.Light { return nil }

func (sm *fakeSceneManager) CreateCamera(name string) camera.Camera {
	cam := camera.NewCamera(name)
	sm.cameras[common.NewIdString(name)] = cam
	return cam
}

func (sm *fakeSceneManager) DestroyCamera(cam camera.Camera) {
	delete(sm.cameras, common.NewIdString(cam.Name()))
}

func (sm *fakeSceneManager) FindCamera(name common.IdString) camera.Camera {
	return sm.cameras[name]
}

func (sm *fakeSceneManager) CastersBox(camera.Camera, uint32, uint8, uint8) math32.Box3 {
	return math32.B3Empty()
}

const probeNode = "ProbeNode"

var probeWorkspace = common.NewIdString("ProbeWorkspace")

type pccFixture struct {
	m   *compositor.Manager
	rs  *fakeRenderSystem
	sm  *fakeSceneManager
	pcc *ParallaxCorrectedCubemap
}

// newFixture registers a probe workspace that clears each face (first iteration only) and
// renders the scene into it, and creates a disabled ParallaxCorrectedCubemap around it.
func newFixture(t *testing.T, options ...PCCBuilderOption) *pccFixture {
	t.Helper()
	rs := newFakeRenderSystem()
	sm := newFakeSceneManager()
	m := compositor.NewManager(rs, sm)

	node, err := m.AddNodeDefinition(probeNode)
	require.NoError(t, err)
	require.NoError(t, node.AddTextureSourceName("rt", 0, compositor.TextureSourceInput))
	for face := range uint32(6) {
		target := node.AddTargetPass("rt", face)
		target.AddClearPass().ExecutionMask = DefaultClearExecutionMask
		scene := target.AddScenePass()
		scene.CameraCubemapReorient = true
		scene.LastRQ = 100
	}
	ws, err := m.AddWorkspaceDefinition("ProbeWorkspace")
	require.NoError(t, err)
	require.NoError(t, ws.ConnectOutput(probeNode, 0))

	pcc, err := NewParallaxCorrectedCubemap(7, m, sm, probeWorkspace, 200, 0x80000000, options...)
	require.NoError(t, err)
	return &pccFixture{m: m, rs: rs, sm: sm, pcc: pcc}
}

// placeAt places a probe whose area and shape are a cube of the given half size around center.
func placeAt(probe *CubemapProbe, center math32.Vector3, half float32) {
	extent := math32.Vec3(half, half, half)
	box := math32.Box3{Min: center.Sub(extent), Max: center.Add(extent)}
	probe.Set(center, box, math32.Vector3{}, common.QuatIdentity(), box)
}

// renderableProbe creates a placed probe with a texture and a workspace. The fixture must be enabled.
func (f *pccFixture) renderableProbe(t *testing.T, center math32.Vector3, static bool) *CubemapProbe {
	t.Helper()
	probe := f.pcc.CreateProbe(WithProbeIterations(2))
	placeAt(probe, center, 10)
	require.NoError(t, probe.SetTextureParams(32, 32, wgpu.TextureFormatRGBA16Float, static))
	require.NoError(t, probe.InitWorkspace())
	return probe
}

func identity() math32.Matrix4 {
	var m math32.Matrix4
	common.Identity(m[:])
	return m
}

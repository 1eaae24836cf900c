package compositor

import (
	"testing"

	"cogentcore.org/core/base/errors"
	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// buildChain declares A -> B -> C where C renders into the render window. Aliases are declared
// in reverse so the execution order has to come from the connections.
func buildChain(t *testing.T, m *Manager) *WorkspaceDef {
	t.Helper()
	a, err := m.AddNodeDefinition("A")
	require.NoError(t, err)
	rtA, err := a.AddTextureDefinition("rtA")
	require.NoError(t, err)
	rtA.Width, rtA.Height, rtA.Format = 64, 64, wgpu.TextureFormatRGBA8Unorm
	a.AddTargetPass("rtA", 0).AddClearPass()
	require.NoError(t, a.MapOutputChannel(0, "rtA"))

	b, err := m.AddNodeDefinition("B")
	require.NoError(t, err)
	require.NoError(t, b.AddTextureSourceName("in", 0, TextureSourceInput))
	_, err = b.AddTextureDefinition("rtB")
	require.NoError(t, err)
	b.AddTargetPass("rtB", 0).AddQuadPass().AddQuadTextureSource(0, "in")
	require.NoError(t, b.MapOutputChannel(0, "rtB"))

	c, err := m.AddNodeDefinition("C")
	require.NoError(t, err)
	require.NoError(t, c.AddTextureSourceName("in", 0, TextureSourceInput))
	require.NoError(t, c.AddTextureSourceName("rw", 1, TextureSourceInput))
	c.AddTargetPass("rw", 0).AddQuadPass().AddQuadTextureSource(0, "in")

	ws, err := m.AddWorkspaceDefinition("chain")
	require.NoError(t, err)
	require.NoError(t, ws.AddNodeAlias("C", "C"))
	require.NoError(t, ws.AddNodeAlias("B", "B"))
	require.NoError(t, ws.AddNodeAlias("A", "A"))
	require.NoError(t, ws.Connect("A", 0, "B", 0))
	require.NoError(t, ws.Connect("B", 0, "C", 0))
	require.NoError(t, ws.ConnectExternal(0, "C", 1))
	return ws
}

func sequenceAliases(ws *Workspace) []string {
	var out []string
	for _, n := range ws.NodeSequence() {
		out = append(out, n.AliasStr())
	}
	return out
}

func TestChainExecutesInDependencyOrder(t *testing.T) {
	m, rs, _ := newTestManager()
	buildChain(t, m)
	rw := newRenderWindow(320, 240)

	ws, err := m.AddWorkspace(common.NewIdString("chain"), WithExternalTextures(rw))
	require.NoError(t, err)
	require.True(t, ws.IsValid())
	assert.Equal(t, []string{"A", "B", "C"}, sequenceAliases(ws))

	b, err := ws.FindNode(common.NewIdString("B"))
	require.NoError(t, err)
	require.Len(t, b.LocalTextures(), 1)
	assert.Equal(t, uint32(320), b.LocalTextures()[0].Descriptor().Width, "relative size follows the final target")
	assert.Equal(t, wgpu.TextureFormatBGRA8Unorm, b.LocalTextures()[0].Descriptor().Format)

	require.NoError(t, m.Update())
	assert.Equal(t, []string{"A:clear", "B:quad", "C:quad"}, rs.passEvents())

	c, err := ws.FindNode(common.NewIdString("C"))
	require.NoError(t, err)
	out, err := b.OutputChannel(0)
	require.NoError(t, err)
	assert.Equal(t, out, c.InputChannel(0))
	assert.Equal(t, Texture(rw), c.InputChannel(1))
}

func TestDisablingAMiddleNodeInvalidatesTheWorkspace(t *testing.T) {
	m, rs, _ := newTestManager()
	buildChain(t, m)
	ws, err := m.AddWorkspace(common.NewIdString("chain"), WithExternalTextures(newRenderWindow(64, 64)))
	require.NoError(t, err)

	b, err := ws.FindNode(common.NewIdString("B"))
	require.NoError(t, err)
	b.SetEnabled(false)
	require.NoError(t, ws.ReconnectAllNodes())

	assert.False(t, ws.IsValid())
	assert.Equal(t, []string{"B", "A", "C"}, sequenceAliases(ws), "disabled nodes complete at once, incomplete ones go last")
	c, err := ws.FindNode(common.NewIdString("C"))
	require.NoError(t, err)
	assert.Nil(t, c.InputChannel(0))
	assert.Empty(t, c.Passes())

	err = ws.Update()
	assert.True(t, errors.Is(err, common.ErrInvalidState))

	b.SetEnabled(true)
	require.NoError(t, ws.ReconnectAllNodes())
	assert.True(t, ws.IsValid())
	require.NoError(t, m.Update())
	assert.Equal(t, []string{"A:clear", "B:quad", "C:quad"}, rs.passEvents())
}

func TestMissingExternalLeavesWorkspaceIncomplete(t *testing.T) {
	m, rs, _ := newTestManager()
	buildChain(t, m)

	ws, err := m.AddWorkspace(common.NewIdString("chain"))
	require.NoError(t, err, "a missing external is not fatal")
	assert.False(t, ws.IsValid())

	require.NoError(t, m.Update())
	assert.Empty(t, rs.passEvents())

	require.NoError(t, ws.SetExternalRenderTargets(newRenderWindow(64, 64)))
	assert.True(t, ws.IsValid())
	require.NoError(t, m.Update())
	assert.Len(t, rs.passEvents(), 3)
}

func TestSetExternalRenderTargetsKeepsTexturesForSameShape(t *testing.T) {
	m, rs, _ := newTestManager()
	buildChain(t, m)
	ws, err := m.AddWorkspace(common.NewIdString("chain"), WithExternalTextures(newRenderWindow(64, 64)))
	require.NoError(t, err)
	a, err := ws.FindNode(common.NewIdString("A"))
	require.NoError(t, err)
	before := a.LocalTextures()[0]

	require.NoError(t, ws.SetExternalRenderTargets(newRenderWindow(64, 64)))
	a, err = ws.FindNode(common.NewIdString("A"))
	require.NoError(t, err)
	assert.Same(t, before, a.LocalTextures()[0])

	require.NoError(t, ws.SetExternalRenderTargets(newRenderWindow(128, 128)))
	a, err = ws.FindNode(common.NewIdString("A"))
	require.NoError(t, err)
	assert.NotSame(t, before, a.LocalTextures()[0])
	assert.False(t, rs.live[before], "recreating destroys the old textures")
}

func TestBarriersReachSteadyState(t *testing.T) {
	m, rs, _ := newTestManager()
	buildChain(t, m)
	rw := newRenderWindow(64, 64)
	ws, err := m.AddWorkspace(common.NewIdString("chain"), WithExternalTextures(rw))
	require.NoError(t, err)

	a, err := ws.FindNode(common.NewIdString("A"))
	require.NoError(t, err)
	rtA := a.LocalTextures()[0]
	clearBarriers := a.Passes()[0].Barriers()
	require.Len(t, clearBarriers, 1)
	assert.Equal(t, ResourceLayoutTexture, clearBarriers[0].OldLayout, "the previous frame left rtA sampled")
	assert.Equal(t, ResourceLayoutRenderTarget, clearBarriers[0].NewLayout)

	c, err := ws.FindNode(common.NewIdString("C"))
	require.NoError(t, err)
	var rwBarrier *ResourceTransition
	for _, tr := range c.Passes()[0].Barriers() {
		if tr.Resource == GpuResource(rw) {
			rwBarrier = &tr
		}
	}
	require.NotNil(t, rwBarrier)
	assert.Equal(t, ResourceLayoutPresentReady, rwBarrier.OldLayout)

	final := ws.FinalTransitions()
	require.Len(t, final, 1)
	assert.Equal(t, ResourceLayoutPresentReady, final[0].NewLayout)
	assert.Equal(t, ResourceLayoutTexture, ws.ResourceStatus(rtA).Layout)

	require.NoError(t, m.Update())
	last := rs.transitions[len(rs.transitions)-1]
	assert.Equal(t, final, last)
}

func TestManagerUpdateOrder(t *testing.T) {
	m, rs, _ := newTestManager()
	_, err := m.CreateBasicWorkspaceDef("basic", [4]float32{0, 0, 0, 1})
	require.NoError(t, err)
	m.AddListener(&ManagerListenerFuncs{
		OnAllWorkspacesBeforeBeginUpdate: func(uint64) error {
			rs.events = append(rs.events, "before")
			return nil
		},
		OnAllWorkspacesBeginUpdate: func() error {
			rs.events = append(rs.events, "beginUpdate")
			return nil
		},
		OnAllWorkspacesUpdated: func() error {
			rs.events = append(rs.events, "updated")
			return nil
		},
	})

	ws, err := m.AddWorkspace(common.NewIdString("basic"),
		WithExternalTextures(newRenderWindow(64, 64)),
		WithCamera(m.SceneManager().CreateCamera("main")))
	require.NoError(t, err)
	assert.Empty(t, m.Workspaces(), "new workspaces join on the next update")

	require.NoError(t, m.Update())
	assert.Equal(t, []*Workspace{ws}, m.Workspaces())
	assert.Equal(t, []string{
		"before", "begin", "beginUpdate",
		"basic/Node:clear", "basic/Node:scene",
		"end", "updated",
	}, rs.events)
	assert.Equal(t, uint64(1), m.FrameCount())
	assert.Equal(t, uint64(1), ws.FrameCount())
}

func TestPassGating(t *testing.T) {
	m, rs, _ := newTestManager()
	node, err := m.AddNodeDefinition("node")
	require.NoError(t, err)
	require.NoError(t, node.AddTextureSourceName("rw", 0, TextureSourceInput))
	target := node.AddTargetPass("rw", 0)
	once := target.AddClearPass()
	once.NumInitialPasses = 1
	masked := target.AddQuadPass()
	masked.ExecutionMask = 0x02
	wsDef, err := m.AddWorkspaceDefinition("gated")
	require.NoError(t, err)
	require.NoError(t, wsDef.ConnectOutput("node", 0))

	ws, err := m.AddWorkspace(common.NewIdString("gated"),
		WithExternalTextures(newRenderWindow(64, 64)),
		WithExecutionMask(0x01))
	require.NoError(t, err)

	require.NoError(t, m.Update())
	require.NoError(t, m.Update())
	assert.Equal(t, []string{"node:clear"}, rs.passEvents())

	n, err := ws.FindNode(common.NewIdString("node"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), n.Passes()[0].NumPassesLeft())

	ws.SetExecutionMask(0x02)
	require.NoError(t, m.Update())
	assert.Equal(t, []string{"node:clear", "node:quad"}, rs.passEvents())
}

func TestWorkspaceListenerSeesEveryPass(t *testing.T) {
	m, _, _ := newTestManager()
	buildChain(t, m)
	var pre, post []PassType
	updates := 0
	listener := &WorkspaceListenerFuncs{
		OnWorkspacePreUpdate: func(*Workspace) { updates++ },
		OnPassPreExecute:     func(p Pass) { pre = append(pre, p.Type()) },
		OnPassPosExecute:     func(p Pass) { post = append(post, p.Type()) },
	}
	_, err := m.AddWorkspace(common.NewIdString("chain"),
		WithExternalTextures(newRenderWindow(64, 64)),
		WithWorkspaceListener(listener))
	require.NoError(t, err)

	require.NoError(t, m.Update())
	assert.Equal(t, 1, updates)
	assert.Equal(t, []PassType{PassTypeClear, PassTypeQuad, PassTypeQuad}, pre)
	assert.Equal(t, pre, post)
}

func TestRemoveWorkspaceDestroysResources(t *testing.T) {
	m, rs, _ := newTestManager()
	buildChain(t, m)
	ws, err := m.AddWorkspace(common.NewIdString("chain"), WithExternalTextures(newRenderWindow(64, 64)))
	require.NoError(t, err)
	assert.Len(t, rs.live, 2)

	require.NoError(t, m.RemoveWorkspace(ws))
	assert.Empty(t, rs.live)
	assert.True(t, errors.Is(m.RemoveWorkspace(ws), common.ErrItemNotFound))
}

func TestScenePassesRecalculateShadowNodeOncePerCamera(t *testing.T) {
	f := newShadowFixtureWith(t, sunAndSpotParams(), func(f *shadowFixture, target *TargetDef) {
		f.sm.CreateCamera("other")
		target.AddScenePass().ShadowNode = common.NewIdString("shadows")
		target.AddScenePass().ShadowNode = common.NewIdString("shadows")
		other := target.AddScenePass()
		other.ShadowNode = common.NewIdString("shadows")
		other.CameraName = common.NewIdString("other")
	})

	main, err := f.ws.FindNode(common.NewIdString("main"))
	require.NoError(t, err)
	var updates []bool
	for _, pass := range main.Passes()[1:] {
		updates = append(updates, pass.(*ScenePass).UpdatesShadowNode())
	}
	assert.Equal(t, []bool{true, false, true}, updates, "a second pass with the same camera reuses the maps")

	assert.Equal(t, []string{
		"main:clear",
		"shadows:clear", "shadows:scene", "shadows:scene",
		"main:scene",
		"main:scene",
		"shadows:clear", "shadows:scene", "shadows:scene",
		"main:scene",
	}, f.frame(t))
}

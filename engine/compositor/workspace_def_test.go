package compositor

import (
	"slices"
	"testing"

	"cogentcore.org/core/base/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

func addPassthroughNode(t *testing.T, m *Manager, name string) *NodeDef {
	t.Helper()
	def, err := m.AddNodeDefinition(name)
	require.NoError(t, err)
	require.NoError(t, def.AddTextureSourceName("in", 0, TextureSourceInput))
	require.NoError(t, def.MapOutputChannel(0, "in"))
	return def
}

func TestConnectOverwritesInputChannel(t *testing.T) {
	m, _, _ := newTestManager()
	addPassthroughNode(t, m, "A")
	addPassthroughNode(t, m, "B")
	addPassthroughNode(t, m, "C")
	ws, err := m.AddWorkspaceDefinition("ws")
	require.NoError(t, err)

	require.NoError(t, ws.Connect("A", 0, "C", 0))
	require.NoError(t, ws.Connect("B", 0, "C", 0))

	routes := ws.ChannelRoutes()
	require.Len(t, routes, 1)
	assert.Equal(t, common.NewIdString("B"), routes[0].OutNode)

	require.NoError(t, ws.ConnectExternal(0, "C", 0))
	assert.Empty(t, ws.ChannelRoutes())
	assert.Len(t, ws.ExternalChannelRoutes(), 1)
}

func TestReturnedRoutesSurviveLaterEdits(t *testing.T) {
	m, _, _ := newTestManager()
	for _, name := range []string{"A", "B", "C", "D"} {
		addPassthroughNode(t, m, name)
	}
	ws, err := m.AddWorkspaceDefinition("ws")
	require.NoError(t, err)
	require.NoError(t, ws.Connect("A", 0, "B", 0))
	require.NoError(t, ws.Connect("A", 0, "C", 0))

	held := ws.ChannelRoutes()
	want := slices.Clone(held)

	require.NoError(t, ws.Connect("D", 0, "B", 0))
	assert.Equal(t, want, held, "overwriting a connection leaves earlier results alone")
	require.Len(t, ws.ChannelRoutes(), 2)

	held = ws.ChannelRoutes()
	want = slices.Clone(held)
	require.NoError(t, ws.RemoveNodeAlias(common.NewIdString("A")))
	assert.Equal(t, want, held)
	assert.Equal(t, []ChannelRoute{{
		OutNode: common.NewIdString("D"), InNode: common.NewIdString("B"),
	}}, ws.ChannelRoutes())
}

func TestClearAllInterNodeConnectionsKeepsExternalRoutes(t *testing.T) {
	m, _, _ := newTestManager()
	addPassthroughNode(t, m, "A")
	b := addPassthroughNode(t, m, "B")
	require.NoError(t, b.AddBufferInput(0, "data"))
	require.NoError(t, b.MapOutputBufferChannel(0, "data"))
	ws, err := m.AddWorkspaceDefinition("ws")
	require.NoError(t, err)

	require.NoError(t, ws.ConnectExternal(0, "A", 0))
	require.NoError(t, ws.Connect("A", 0, "B", 0))
	require.NoError(t, ws.ConnectExternalBuffer(0, "B", 0))
	require.NoError(t, ws.ConnectBuffer("B", 0, "A", 0))

	ws.ClearAllInterNodeConnections()
	assert.Empty(t, ws.ChannelRoutes())
	assert.Len(t, ws.ExternalChannelRoutes(), 1)
	assert.Len(t, ws.BufferChannelRoutes(), 1)
	assert.Len(t, ws.ExternalBufferChannelRoutes(), 1)
	assert.Len(t, ws.NodeAliases(), 2)

	ws.ClearOutputConnections()
	assert.Empty(t, ws.ExternalChannelRoutes())
}

func TestImplicitAndExplicitAliases(t *testing.T) {
	m, _, _ := newTestManager()
	addPassthroughNode(t, m, "Blur")
	ws, err := m.AddWorkspaceDefinition("ws")
	require.NoError(t, err)

	require.NoError(t, ws.AddNodeAlias("BlurH", "Blur"))
	require.NoError(t, ws.AddNodeAlias("BlurV", "Blur"))
	err = ws.AddNodeAlias("BlurH", "Blur")
	assert.True(t, errors.Is(err, common.ErrDuplicateItem))
	err = ws.AddNodeAlias("Other", "Missing")
	assert.True(t, errors.Is(err, common.ErrItemNotFound))

	require.NoError(t, ws.Connect("BlurH", 0, "BlurV", 0))
	require.NoError(t, ws.Connect("BlurV", 0, "Blur", 0))

	aliases := ws.NodeAliases()
	require.Len(t, aliases, 3)
	assert.Equal(t, "Blur", ws.AliasName(aliases[2].Alias))
	assert.Equal(t, common.NewIdString("Blur"), aliases[0].DefName)

	require.NoError(t, ws.RemoveNodeAlias(common.NewIdString("BlurV")))
	assert.Empty(t, ws.ChannelRoutes())
	assert.Len(t, ws.NodeAliases(), 2)

	err = ws.Connect("Nope", 0, "Blur", 0)
	assert.True(t, errors.Is(err, common.ErrItemNotFound))
	err = ws.Connect("Blur", -1, "Blur", 0)
	assert.True(t, errors.Is(err, common.ErrInvalidParams))
}

func TestDefinitionNamesAreUnique(t *testing.T) {
	m, _, _ := newTestManager()
	_, err := m.AddNodeDefinition("Shared")
	require.NoError(t, err)

	_, err = m.AddShadowNodeDefinition("Shared")
	assert.True(t, errors.Is(err, common.ErrDuplicateItem))
	_, err = m.AddNodeDefinition("Shared")
	assert.True(t, errors.Is(err, common.ErrDuplicateItem))

	_, err = m.AddWorkspaceDefinition("Main")
	require.NoError(t, err)
	_, err = m.AddWorkspaceDefinition("Main")
	assert.True(t, errors.Is(err, common.ErrDuplicateItem))

	def, err := m.AddNodeDefinition("Textures")
	require.NoError(t, err)
	_, err = def.AddTextureDefinition("rt")
	require.NoError(t, err)
	_, err = def.AddTextureDefinition("rt")
	assert.True(t, errors.Is(err, common.ErrDuplicateItem))
	err = def.AddTextureSourceName("rt", 0, TextureSourceInput)
	assert.True(t, errors.Is(err, common.ErrDuplicateItem))
}

func TestWorkspaceDefinitionRejectsInputChannels(t *testing.T) {
	m, _, _ := newTestManager()
	ws, err := m.AddWorkspaceDefinition("ws")
	require.NoError(t, err)

	err = ws.AddTextureSourceName("in", 0, TextureSourceInput)
	assert.True(t, errors.Is(err, common.ErrInvalidParams))

	_, err = ws.AddTextureDefinition("shared")
	require.NoError(t, err)
	_, src, err := ws.TextureSource(common.NewIdString("shared"))
	require.NoError(t, err)
	assert.Equal(t, TextureSourceGlobal, src)
}

func TestNodeDefinitionValidatesOutputChannels(t *testing.T) {
	m, _, _ := newTestManager()
	def, err := m.AddNodeDefinition("node")
	require.NoError(t, err)
	_, err = def.AddTextureDefinition("rt")
	require.NoError(t, err)

	require.NoError(t, def.MapOutputChannel(1, "rt"))
	err = def.ValidateAndFinish()
	assert.True(t, errors.Is(err, common.ErrInvalidParams), "channel 0 is unmapped")

	require.NoError(t, def.MapOutputChannel(0, "missing"))
	assert.Error(t, def.ValidateAndFinish())

	require.NoError(t, def.MapOutputChannel(0, "rt"))
	assert.NoError(t, def.ValidateAndFinish())
	assert.Equal(t, 2, def.NumOutputChannels())
}

func TestRemoveDefinitionInUse(t *testing.T) {
	m, _, _ := newTestManager()
	_, err := m.CreateBasicWorkspaceDef("basic", [4]float32{0, 0, 0, 1})
	require.NoError(t, err)
	_, err = m.AddWorkspace(common.NewIdString("basic"), WithExternalTextures(newRenderWindow(64, 64)))
	require.NoError(t, err)

	err = m.RemoveNodeDefinition(common.NewIdString("basic/Node"))
	assert.True(t, errors.Is(err, common.ErrInvalidState))
	err = m.RemoveWorkspaceDefinition(common.NewIdString("basic"))
	assert.True(t, errors.Is(err, common.ErrInvalidState))

	m.RemoveAllWorkspaces()
	assert.NoError(t, m.RemoveWorkspaceDefinition(common.NewIdString("basic")))
	assert.NoError(t, m.RemoveNodeDefinition(common.NewIdString("basic/Node")))
	assert.False(t, m.HasNodeDefinition(common.NewIdString("basic/Node")))
}

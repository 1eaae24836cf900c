package compositor

import (
	"fmt"

	"cogentcore.org/core/base/keylist"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// ChannelRoute is a directed edge from an output channel of one node to an input channel of another.
type ChannelRoute struct {
	OutNode    common.IdString
	OutChannel int
	InNode     common.IdString
	InChannel  int
}

// ExternalRoute feeds an entry of the workspace's external textures (or buffers) into a node input.
type ExternalRoute struct {
	ExternalIdx int
	InNode      common.IdString
	InChannel   int
}

// NodeAlias names one instance of a node definition inside a workspace.
type NodeAlias struct {
	Alias   common.IdString
	DefName common.IdString
}

// WorkspaceDef wires node definitions into a graph. Every node is instanced under an alias;
// routes connect aliases.
type WorkspaceDef struct {
	TextureDefinitionBase

	name    common.IdString
	nameStr string
	manager *Manager

	aliasedNodes                *keylist.List[common.IdString, common.IdString]
	aliasNames                  map[common.IdString]string
	channelRoutes               []ChannelRoute
	bufferChannelRoutes         []ChannelRoute
	externalChannelRoutes       []ExternalRoute
	externalBufferChannelRoutes []ExternalRoute
}

func newWorkspaceDef(name string, manager *Manager) *WorkspaceDef {
	return &WorkspaceDef{
		TextureDefinitionBase: newTextureDefinitionBase(TextureSourceGlobal),
		name:                  common.NewIdString(name),
		nameStr:               name,
		manager:               manager,
		aliasedNodes:          keylist.New[common.IdString, common.IdString](),
		aliasNames:            map[common.IdString]string{},
	}
}

// Name returns the definition's name.
func (w *WorkspaceDef) Name() common.IdString {
	return w.name
}

// NameStr returns the definition's name as it was declared.
func (w *WorkspaceDef) NameStr() string {
	return w.nameStr
}

// AddNodeAlias instances node definition defName under alias.
//
// Parameters:
//   - alias: the instance name, unique within the workspace
//   - defName: the node definition to instance
//
// Returns:
//   - error: ErrDuplicateItem if the alias is taken, ErrItemNotFound if there is no such node definition
func (w *WorkspaceDef) AddNodeAlias(alias, defName string) error {
	defID := common.NewIdString(defName)
	if !w.manager.HasNodeDefinition(defID) {
		return fmt.Errorf("%w: workspace %q aliases unknown node definition %q", common.ErrItemNotFound, w.nameStr, defName)
	}
	aliasID := common.NewIdString(alias)
	if err := w.aliasedNodes.Add(aliasID, defID); err != nil {
		return fmt.Errorf("%w: workspace %q already has node alias %q", common.ErrDuplicateItem, w.nameStr, alias)
	}
	w.aliasNames[aliasID] = alias
	return nil
}

// RemoveNodeAlias removes an alias and every route to or from it.
func (w *WorkspaceDef) RemoveNodeAlias(alias common.IdString) error {
	if !w.aliasedNodes.DeleteByKey(alias) {
		return fmt.Errorf("%w: workspace %q has no node alias %s", common.ErrItemNotFound, w.nameStr, alias)
	}
	delete(w.aliasNames, alias)
	w.channelRoutes = filterRoutes(w.channelRoutes, func(r ChannelRoute) bool {
		return r.OutNode != alias && r.InNode != alias
	})
	w.bufferChannelRoutes = filterRoutes(w.bufferChannelRoutes, func(r ChannelRoute) bool {
		return r.OutNode != alias && r.InNode != alias
	})
	w.externalChannelRoutes = filterRoutes(w.externalChannelRoutes, func(r ExternalRoute) bool { return r.InNode != alias })
	w.externalBufferChannelRoutes = filterRoutes(w.externalBufferChannelRoutes, func(r ExternalRoute) bool { return r.InNode != alias })
	return nil
}

// NodeAliases returns every alias and its definition name, in insertion order.
func (w *WorkspaceDef) NodeAliases() []NodeAlias {
	out := make([]NodeAlias, w.aliasedNodes.Len())
	for i, alias := range w.aliasedNodes.Keys {
		out[i] = NodeAlias{Alias: alias, DefName: w.aliasedNodes.Values[i]}
	}
	return out
}

// AliasName returns the alias as it was declared.
func (w *WorkspaceDef) AliasName(alias common.IdString) string {
	return w.aliasNames[alias]
}

// createImplicitAlias resolves a node name used in a route. An existing alias is used as is;
// otherwise a node definition of that name is aliased under its own name.
func (w *WorkspaceDef) createImplicitAlias(nodeName string) (common.IdString, error) {
	id := common.NewIdString(nodeName)
	if _, ok := w.aliasedNodes.AtTry(id); ok {
		return id, nil
	}
	if !w.manager.HasNodeDefinition(id) {
		return id, fmt.Errorf("%w: workspace %q references %q, which is neither an alias nor a node definition",
			common.ErrItemNotFound, w.nameStr, nodeName)
	}
	w.aliasedNodes.Set(id, id)
	w.aliasNames[id] = nodeName
	return id, nil
}

// checkInputChannelIsEmpty drops any route already feeding inChannel of inNode, logging a
// warning. The newest connection wins.
func (w *WorkspaceDef) checkInputChannelIsEmpty(inNode common.IdString, inChannel int) {
	before := len(w.channelRoutes) + len(w.externalChannelRoutes)
	w.channelRoutes = filterRoutes(w.channelRoutes, func(r ChannelRoute) bool {
		return r.InNode != inNode || r.InChannel != inChannel
	})
	w.externalChannelRoutes = filterRoutes(w.externalChannelRoutes, func(r ExternalRoute) bool {
		return r.InNode != inNode || r.InChannel != inChannel
	})
	if before != len(w.channelRoutes)+len(w.externalChannelRoutes) {
		common.ComponentLogger("compositor").Warn("input channel is already connected, overwriting the previous connection",
			"workspace", w.nameStr, "node", w.aliasNames[inNode], "channel", inChannel)
	}
}

func (w *WorkspaceDef) checkInputBufferChannelIsEmpty(inNode common.IdString, inChannel int) {
	before := len(w.bufferChannelRoutes) + len(w.externalBufferChannelRoutes)
	w.bufferChannelRoutes = filterRoutes(w.bufferChannelRoutes, func(r ChannelRoute) bool {
		return r.InNode != inNode || r.InChannel != inChannel
	})
	w.externalBufferChannelRoutes = filterRoutes(w.externalBufferChannelRoutes, func(r ExternalRoute) bool {
		return r.InNode != inNode || r.InChannel != inChannel
	})
	if before != len(w.bufferChannelRoutes)+len(w.externalBufferChannelRoutes) {
		common.ComponentLogger("compositor").Warn("input buffer channel is already connected, overwriting the previous connection",
			"workspace", w.nameStr, "node", w.aliasNames[inNode], "channel", inChannel)
	}
}

// Connect routes output channel outChannel of outNode into input channel inChannel of inNode.
// Node names that are not aliases yet are aliased implicitly under their definition name.
//
// Parameters:
//   - outNode: the producing alias or node definition name
//   - outChannel: the output channel of outNode
//   - inNode: the consuming alias or node definition name
//   - inChannel: the input channel of inNode
//
// Returns:
//   - error: ErrItemNotFound if a name is neither an alias nor a node definition,
//     ErrInvalidParams for negative channels
func (w *WorkspaceDef) Connect(outNode string, outChannel int, inNode string, inChannel int) error {
	if outChannel < 0 || inChannel < 0 {
		return fmt.Errorf("%w: negative channel connecting %q to %q", common.ErrInvalidParams, outNode, inNode)
	}
	outID, err := w.createImplicitAlias(outNode)
	if err != nil {
		return err
	}
	inID, err := w.createImplicitAlias(inNode)
	if err != nil {
		return err
	}
	w.checkInputChannelIsEmpty(inID, inChannel)
	w.channelRoutes = append(w.channelRoutes, ChannelRoute{OutNode: outID, OutChannel: outChannel, InNode: inID, InChannel: inChannel})
	return nil
}

// ConnectExternal routes entry externalIdx of the workspace's external textures into input
// channel inChannel of inNode. The index is checked when the workspace is instantiated.
func (w *WorkspaceDef) ConnectExternal(externalIdx int, inNode string, inChannel int) error {
	if externalIdx < 0 || inChannel < 0 {
		return fmt.Errorf("%w: negative index connecting external %d to %q", common.ErrInvalidParams, externalIdx, inNode)
	}
	inID, err := w.createImplicitAlias(inNode)
	if err != nil {
		return err
	}
	w.checkInputChannelIsEmpty(inID, inChannel)
	w.externalChannelRoutes = append(w.externalChannelRoutes, ExternalRoute{ExternalIdx: externalIdx, InNode: inID, InChannel: inChannel})
	return nil
}

// ConnectOutput routes the workspace's final target (external texture 0) into inNode.
func (w *WorkspaceDef) ConnectOutput(inNode string, inChannel int) error {
	return w.ConnectExternal(0, inNode, inChannel)
}

// ConnectBuffer routes an output buffer channel into an input buffer channel.
func (w *WorkspaceDef) ConnectBuffer(outNode string, outChannel int, inNode string, inChannel int) error {
	if outChannel < 0 || inChannel < 0 {
		return fmt.Errorf("%w: negative buffer channel connecting %q to %q", common.ErrInvalidParams, outNode, inNode)
	}
	outID, err := w.createImplicitAlias(outNode)
	if err != nil {
		return err
	}
	inID, err := w.createImplicitAlias(inNode)
	if err != nil {
		return err
	}
	w.checkInputBufferChannelIsEmpty(inID, inChannel)
	w.bufferChannelRoutes = append(w.bufferChannelRoutes, ChannelRoute{OutNode: outID, OutChannel: outChannel, InNode: inID, InChannel: inChannel})
	return nil
}

// ConnectExternalBuffer routes entry externalIdx of the workspace's external buffers into inNode.
func (w *WorkspaceDef) ConnectExternalBuffer(externalIdx int, inNode string, inChannel int) error {
	if externalIdx < 0 || inChannel < 0 {
		return fmt.Errorf("%w: negative index connecting external buffer %d to %q", common.ErrInvalidParams, externalIdx, inNode)
	}
	inID, err := w.createImplicitAlias(inNode)
	if err != nil {
		return err
	}
	w.checkInputBufferChannelIsEmpty(inID, inChannel)
	w.externalBufferChannelRoutes = append(w.externalBufferChannelRoutes, ExternalRoute{ExternalIdx: externalIdx, InNode: inID, InChannel: inChannel})
	return nil
}

// ClearAllInterNodeConnections removes every node to node texture route. Buffer and external
// routes are kept.
func (w *WorkspaceDef) ClearAllInterNodeConnections() {
	w.channelRoutes = nil
}

// ClearOutputConnections removes every external texture route.
func (w *WorkspaceDef) ClearOutputConnections() {
	w.externalChannelRoutes = nil
}

// ChannelRoutes returns the node to node texture routes.
func (w *WorkspaceDef) ChannelRoutes() []ChannelRoute {
	return w.channelRoutes
}

// BufferChannelRoutes returns the node to node buffer routes.
func (w *WorkspaceDef) BufferChannelRoutes() []ChannelRoute {
	return w.bufferChannelRoutes
}

// ExternalChannelRoutes returns the external texture routes.
func (w *WorkspaceDef) ExternalChannelRoutes() []ExternalRoute {
	return w.externalChannelRoutes
}

// ExternalBufferChannelRoutes returns the external buffer routes.
func (w *WorkspaceDef) ExternalBufferChannelRoutes() []ExternalRoute {
	return w.externalBufferChannelRoutes
}

// filterRoutes copies the kept routes into a new slice; callers may still hold the old one.
func filterRoutes[R any](routes []R, keep func(R) bool) []R {
	var out []R
	for _, r := range routes {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

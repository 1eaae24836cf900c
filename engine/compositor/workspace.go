package compositor

import (
	"fmt"
	"log/slog"
	"slices"

	"cogentcore.org/core/base/errors"
	"github.com/google/uuid"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
)

// errIncomplete marks instantiation failures that can heal on their own, such as a missing
// external texture. The workspace is left invalid and retried by the Manager.
var errIncomplete = errors.New("workspace is incomplete")

// Workspace is a live instance of a WorkspaceDef: its nodes, their connections, and the
// barriers between their passes.
type Workspace struct {
	id           uuid.UUID
	def          *WorkspaceDef
	manager      *Manager
	renderSystem RenderSystem
	sceneManager SceneManager
	log          *slog.Logger

	defaultCamera camera.Camera
	lodCamera     camera.Camera

	externalTextures []Texture
	externalBuffers  []Buffer
	globalTextures   map[common.IdString]Texture
	globalBuffers    map[common.IdString]Buffer

	nodes        []*Node
	nodeSequence []*Node
	shadowNodes  []*ShadowNode

	enabled              bool
	valid                bool
	executionMask        uint8
	viewportModifier     Viewport
	viewportModifierMask uint8
	listeners            []WorkspaceListener

	resourcesLayout  ResourceStatusMap
	uavsAccess       map[GpuResource]ResourceAccess
	finalTransitions []ResourceTransition
	frameCount       uint64
}

func newWorkspace(def *WorkspaceDef, m *Manager, options ...WorkspaceBuilderOption) *Workspace {
	ws := &Workspace{
		id:                   uuid.New(),
		def:                  def,
		manager:              m,
		renderSystem:         m.renderSystem,
		sceneManager:         m.sceneManager,
		enabled:              true,
		executionMask:        DefaultExecutionMask,
		viewportModifier:     FullViewport,
		viewportModifierMask: DefaultExecutionMask,
		globalTextures:       map[common.IdString]Texture{},
		globalBuffers:        map[common.IdString]Buffer{},
	}
	for _, opt := range options {
		opt(ws)
	}
	ws.log = common.ComponentLogger("compositor").With("workspace", def.nameStr, "id", ws.id.String())
	return ws
}

// ID returns the unique id of the workspace instance.
func (ws *Workspace) ID() uuid.UUID {
	return ws.id
}

// Definition returns the definition the workspace was instanced from.
func (ws *Workspace) Definition() *WorkspaceDef {
	return ws.def
}

// IsValid reports whether every enabled node has all of its inputs connected.
func (ws *Workspace) IsValid() bool {
	return ws.valid
}

// Enabled reports whether the Manager updates the workspace every frame.
func (ws *Workspace) Enabled() bool {
	return ws.enabled
}

// SetEnabled sets whether the Manager updates the workspace every frame. It takes effect on the
// next Manager update.
func (ws *Workspace) SetEnabled(enabled bool) {
	ws.enabled = enabled
}

// Camera returns the default camera.
func (ws *Workspace) Camera() camera.Camera {
	return ws.defaultCamera
}

// SetCamera replaces the default camera and reconnects the nodes so passes pick it up.
func (ws *Workspace) SetCamera(cam camera.Camera) error {
	ws.defaultCamera = cam
	return ws.ReconnectAllNodes()
}

// SetLodCamera replaces the LOD camera.
func (ws *Workspace) SetLodCamera(cam camera.Camera) {
	ws.lodCamera = cam
}

// ExecutionMask returns the mask ANDed with every pass execution mask.
func (ws *Workspace) ExecutionMask() uint8 {
	return ws.executionMask
}

// SetExecutionMask sets the mask ANDed with every pass execution mask.
func (ws *Workspace) SetExecutionMask(mask uint8) {
	ws.executionMask = mask
}

// SetViewportModifier maps the viewport of passes whose modifier mask intersects mask into vp.
func (ws *Workspace) SetViewportModifier(vp Viewport, mask uint8) {
	ws.viewportModifier = vp
	ws.viewportModifierMask = mask
}

// AddListener registers a listener.
func (ws *Workspace) AddListener(l WorkspaceListener) {
	ws.listeners = append(ws.listeners, l)
}

// RemoveListener unregisters a listener.
func (ws *Workspace) RemoveListener(l WorkspaceListener) {
	if idx := slices.Index(ws.listeners, l); idx >= 0 {
		ws.listeners = slices.Delete(ws.listeners, idx, idx+1)
	}
}

// FrameCount returns how many updates the workspace completed.
func (ws *Workspace) FrameCount() uint64 {
	return ws.frameCount
}

// ExternalRenderTargets returns the external textures.
func (ws *Workspace) ExternalRenderTargets() []Texture {
	return ws.externalTextures
}

// Nodes returns every node in alias order.
func (ws *Workspace) Nodes() []*Node {
	return ws.nodes
}

// NodeSequence returns the nodes in execution order.
func (ws *Workspace) NodeSequence() []*Node {
	return ws.nodeSequence
}

// FindNode returns the node instanced under alias.
func (ws *Workspace) FindNode(alias common.IdString) (*Node, error) {
	for _, n := range ws.nodes {
		if n.alias == alias {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: workspace %q has no node %s", common.ErrItemNotFound, ws.def.nameStr, alias)
}

// FindShadowNode returns the instance of shadow node definition name, nil if no pass
// instanced it.
func (ws *Workspace) FindShadowNode(name common.IdString) *ShadowNode {
	for _, sn := range ws.shadowNodes {
		if sn.def.name == name {
			return sn
		}
	}
	return nil
}

// ShadowNodes returns every instanced shadow node.
func (ws *Workspace) ShadowNodes() []*ShadowNode {
	return ws.shadowNodes
}

// ResourceStatus returns the layout and access res is left in after a whole update.
func (ws *Workspace) ResourceStatus(res GpuResource) ResourceStatus {
	return ws.resourcesLayout[res]
}

// UavAccess returns every access res is used with as a UAV during an update.
func (ws *Workspace) UavAccess(res GpuResource) ResourceAccess {
	return ws.uavsAccess[res]
}

// FinalTransitions returns the transitions issued after the last node, such as moving render
// windows to ResourceLayoutPresentReady.
func (ws *Workspace) FinalTransitions() []ResourceTransition {
	return ws.finalTransitions
}

func (ws *Workspace) finalTarget() Texture {
	if len(ws.externalTextures) == 0 {
		return nil
	}
	return ws.externalTextures[0]
}

func (ws *Workspace) findOrCreateShadowNode(name common.IdString) (*ShadowNode, error) {
	if sn := ws.FindShadowNode(name); sn != nil {
		return sn, nil
	}
	def, err := ws.manager.ShadowNodeDefinition(name)
	if err != nil {
		return nil, err
	}
	if !def.validated {
		if err := def.ValidateAndFinish(); err != nil {
			return nil, err
		}
	}
	sn, err := newShadowNode(def, ws)
	if err != nil {
		return nil, err
	}
	ws.shadowNodes = append(ws.shadowNodes, sn)
	return sn, nil
}

// SetExternalRenderTargets replaces the external textures. When every replacement has the
// size and format of the texture it replaces only the connections are rebuilt; otherwise
// every node is recreated.
//
// Parameters:
//   - textures: the new external textures
//
// Returns:
//   - error: a non transient instantiation error
func (ws *Workspace) SetExternalRenderTargets(textures ...Texture) error {
	sameShape := len(textures) == len(ws.externalTextures) && len(ws.nodes) > 0
	for i := 0; sameShape && i < len(textures); i++ {
		a, b := textures[i].Descriptor(), ws.externalTextures[i].Descriptor()
		sameShape = a.Width == b.Width && a.Height == b.Height && a.Format == b.Format
	}
	ws.externalTextures = textures
	if sameShape {
		return ws.ReconnectAllNodes()
	}
	return ws.RecreateAllNodes()
}

// SetExternalBuffers replaces the external buffers and reconnects the nodes.
func (ws *Workspace) SetExternalBuffers(buffers ...Buffer) error {
	ws.externalBuffers = buffers
	return ws.ReconnectAllNodes()
}

// RecreateAllNodes destroys every node, shadow node, and global resource and instances them
// again. Transient failures leave the workspace invalid and return nil.
//
// Returns:
//   - error: a non transient instantiation error
func (ws *Workspace) RecreateAllNodes() error {
	ws.destroyAllNodes()
	if err := ws.createAllNodes(); err != nil {
		return ws.instantiationFailed(err)
	}
	return ws.connectAllNodes()
}

// ReconnectAllNodes rebuilds connections, passes, and barriers without recreating textures.
// Call it after enabling or disabling nodes or after changing routes.
//
// Returns:
//   - error: a non transient instantiation error
func (ws *Workspace) ReconnectAllNodes() error {
	if len(ws.nodes) == 0 && ws.def.aliasedNodes.Len() > 0 {
		return ws.RecreateAllNodes()
	}
	return ws.connectAllNodes()
}

func (ws *Workspace) instantiationFailed(err error) error {
	ws.valid = false
	if errors.Is(err, errIncomplete) {
		ws.log.Debug("workspace is incomplete, it will be retried", "reason", err.Error())
		return nil
	}
	return fmt.Errorf("workspace %q: %w", ws.def.nameStr, err)
}

func (ws *Workspace) createAllNodes() error {
	if err := ws.createGlobalResources(); err != nil {
		return err
	}
	for _, alias := range ws.def.NodeAliases() {
		def, err := ws.manager.NodeDefinition(alias.DefName)
		if err != nil {
			return err
		}
		if !def.validated {
			if err := def.ValidateAndFinish(); err != nil {
				return err
			}
		}
		n, err := newNode(alias.Alias, ws.def.AliasName(alias.Alias), def, ws)
		if err != nil {
			return err
		}
		ws.nodes = append(ws.nodes, n)
	}
	return nil
}

func (ws *Workspace) createGlobalResources() error {
	final := ws.finalTarget()
	for _, texDef := range ws.def.localTextureDefs {
		desc, err := texDef.Descriptor(final, fmt.Sprintf("%s/%s", ws.id, texDef.nameStr))
		if err != nil {
			return err
		}
		tex, err := ws.renderSystem.CreateTexture(desc)
		if err != nil {
			return fmt.Errorf("global texture %q: %w", texDef.nameStr, err)
		}
		ws.globalTextures[texDef.name] = tex
	}
	for _, bufDef := range ws.def.localBufferDefs {
		buf, err := ws.renderSystem.CreateBuffer(bufDef.Descriptor(fmt.Sprintf("%s/%s", ws.id, bufDef.nameStr)))
		if err != nil {
			return fmt.Errorf("global buffer %q: %w", bufDef.nameStr, err)
		}
		ws.globalBuffers[bufDef.name] = buf
	}
	return nil
}

// connectAllNodes wires externals first, then repeatedly sweeps the nodes in alias order,
// forwarding the outputs of every enabled node whose inputs are complete. Nodes are appended
// to the sequence in the order they complete; nodes that never complete go last.
func (ws *Workspace) connectAllNodes() error {
	ws.valid = false
	for _, n := range ws.nodes {
		n.notifyCleared()
	}
	ws.nodeSequence = ws.nodeSequence[:0]

	for _, route := range ws.def.externalChannelRoutes {
		if route.ExternalIdx >= len(ws.externalTextures) {
			return ws.instantiationFailed(fmt.Errorf("%w: external texture %d is not set", errIncomplete, route.ExternalIdx))
		}
		n, err := ws.FindNode(route.InNode)
		if err != nil {
			return ws.instantiationFailed(err)
		}
		if err := n.ConnectExternalTexture(ws.externalTextures[route.ExternalIdx], route.InChannel); err != nil {
			return ws.instantiationFailed(err)
		}
	}
	for _, route := range ws.def.externalBufferChannelRoutes {
		if route.ExternalIdx >= len(ws.externalBuffers) {
			return ws.instantiationFailed(fmt.Errorf("%w: external buffer %d is not set", errIncomplete, route.ExternalIdx))
		}
		n, err := ws.FindNode(route.InNode)
		if err != nil {
			return ws.instantiationFailed(err)
		}
		if err := n.ConnectExternalBuffer(ws.externalBuffers[route.ExternalIdx], route.InChannel); err != nil {
			return ws.instantiationFailed(err)
		}
	}

	processed := make(map[*Node]bool, len(ws.nodes))
	for progress := true; progress; {
		progress = false
		for _, n := range ws.nodes {
			if processed[n] {
				continue
			}
			if n.enabled && !n.AreAllInputsConnected() {
				continue
			}
			processed[n] = true
			progress = true
			ws.nodeSequence = append(ws.nodeSequence, n)
			if !n.enabled {
				continue
			}
			if err := ws.forwardOutputs(n); err != nil {
				return ws.instantiationFailed(err)
			}
		}
	}
	valid := true
	for _, n := range ws.nodes {
		if !processed[n] {
			ws.nodeSequence = append(ws.nodeSequence, n)
			valid = false
		}
	}

	for _, n := range ws.nodeSequence {
		if !n.enabled || !n.AreAllInputsConnected() {
			continue
		}
		if err := n.createPasses(); err != nil {
			return ws.instantiationFailed(err)
		}
	}

	ws.setupPassesShadowNodes()
	ws.analyzeHazardsAndPlaceBarriers()
	ws.valid = valid
	if !valid {
		ws.log.Debug("workspace has enabled nodes with unconnected inputs")
	}
	return nil
}

func (ws *Workspace) forwardOutputs(n *Node) error {
	for _, route := range ws.def.channelRoutes {
		if route.OutNode != n.alias {
			continue
		}
		dst, err := ws.FindNode(route.InNode)
		if err != nil {
			return err
		}
		if err := n.ConnectTo(route.OutChannel, dst, route.InChannel); err != nil {
			return err
		}
	}
	for _, route := range ws.def.bufferChannelRoutes {
		if route.OutNode != n.alias {
			continue
		}
		dst, err := ws.FindNode(route.InNode)
		if err != nil {
			return err
		}
		if err := n.ConnectBufferTo(route.OutChannel, dst, route.InChannel); err != nil {
			return err
		}
	}
	return nil
}

// setupPassesShadowNodes decides which scene passes recalculate their shadow node. With
// ShadowNodeFirstOnly only the first pass per (shadow node, camera) pair in execution order does.
func (ws *Workspace) setupPassesShadowNodes() {
	type key struct {
		sn  *ShadowNode
		cam camera.Camera
	}
	seen := map[key]bool{}
	for _, n := range ws.nodeSequence {
		for _, pass := range n.passes {
			sp, ok := pass.(*ScenePass)
			if !ok || sp.shadowNode == nil {
				continue
			}
			switch sp.def.ShadowNodeRecalculation {
			case ShadowNodeFirstOnly:
				k := key{sp.shadowNode, sp.camera}
				sp.updateShadowNode = !seen[k]
				seen[k] = true
			case ShadowNodeReuse, ShadowNodeCasterPass:
				sp.updateShadowNode = false
			default:
				sp.updateShadowNode = true
			}
		}
	}
}

// analyzeHazardsAndPlaceBarriers walks every pass in execution order and stores, on each pass,
// the transitions it needs. A first walk finds the layouts each resource ends the frame in;
// the second walk starts from them, since every frame begins where the previous one ended.
func (ws *Workspace) analyzeHazardsAndPlaceBarriers() {
	for _, sn := range ws.shadowNodes {
		for _, pass := range sn.passes {
			pass.core().barriers = nil
		}
	}
	steady := ws.walkPasses(newBarrierSolver(nil), false)
	solver := ws.walkPasses(newBarrierSolver(steady.status), true)
	ws.resourcesLayout = solver.status
	ws.uavsAccess = solver.uavsAccess
}

func (ws *Workspace) walkPasses(solver *barrierSolver, place bool) *barrierSolver {
	for _, n := range ws.nodeSequence {
		if !n.enabled || !n.AreAllInputsConnected() {
			continue
		}
		for _, pass := range n.passes {
			// A shadow node recalculated by several scene passes is resolved at each of them.
			if sp, ok := pass.(*ScenePass); ok && sp.shadowNode != nil && sp.updateShadowNode {
				shadowBarriers := make([][]ResourceTransition, len(sp.shadowNode.passes))
				for i, shadowPass := range sp.shadowNode.passes {
					shadowBarriers[i] = solver.resolve(shadowPass.ResourceUses())
				}
				if place {
					sp.shadowBarriers = shadowBarriers
				}
			} else if ok && place {
				sp.shadowBarriers = nil
			}
			barriers := solver.resolve(pass.ResourceUses())
			if place {
				pass.core().barriers = barriers
			}
		}
	}

	var final []ResourceTransition
	for _, tex := range ws.externalTextures {
		if tex != nil && tex.Descriptor().RenderWindow {
			final = append(final, solver.resolve([]ResourceUse{{
				Resource: tex,
				Layout:   ResourceLayoutPresentReady,
				Access:   AccessRead,
			}})...)
		}
	}
	if place {
		ws.finalTransitions = final
	}
	return solver
}

// BeginUpdate starts an update. Workspaces updated by the Manager share one GPU frame; manual
// updates pass forceBeginFrame to open one.
func (ws *Workspace) BeginUpdate(forceBeginFrame bool) error {
	if forceBeginFrame {
		return ws.renderSystem.BeginFrameOnce()
	}
	return nil
}

// Update executes every enabled node in sequence order.
//
// Returns:
//   - error: ErrInvalidState for invalid workspaces, or the first pass error
func (ws *Workspace) Update() error {
	if !ws.valid {
		return fmt.Errorf("%w: workspace %q is not valid", common.ErrInvalidState, ws.def.nameStr)
	}
	for _, l := range ws.listeners {
		l.WorkspacePreUpdate(ws)
	}

	var err error
	for _, n := range ws.nodeSequence {
		if !n.enabled {
			continue
		}
		if err = n.update(ws.lodCamera); err != nil {
			err = fmt.Errorf("workspace %q: %w", ws.def.nameStr, err)
			break
		}
	}
	if err == nil && len(ws.finalTransitions) > 0 {
		ws.renderSystem.ExecuteResourceTransitions(ws.finalTransitions)
	}

	for _, l := range ws.listeners {
		l.WorkspacePosUpdate(ws)
	}
	return err
}

// EndUpdate finishes an update and advances the frame counter. Manual updates pass
// forceEndFrame to submit the frame they opened.
func (ws *Workspace) EndUpdate(forceEndFrame bool) error {
	ws.frameCount++
	if forceEndFrame {
		return ws.renderSystem.EndFrameOnce()
	}
	return nil
}

func (ws *Workspace) notifyPassPreExecute(pass Pass) {
	for _, l := range ws.listeners {
		l.PassPreExecute(pass)
	}
}

func (ws *Workspace) notifyPassPosExecute(pass Pass) {
	for _, l := range ws.listeners {
		l.PassPosExecute(pass)
	}
}

func (ws *Workspace) destroyAllNodes() {
	for _, sn := range ws.shadowNodes {
		sn.destroy()
	}
	for _, n := range ws.nodes {
		n.destroy()
	}
	for name, tex := range ws.globalTextures {
		ws.renderSystem.DestroyTexture(tex)
		delete(ws.globalTextures, name)
	}
	for name, buf := range ws.globalBuffers {
		ws.renderSystem.DestroyBuffer(buf)
		delete(ws.globalBuffers, name)
	}
	ws.shadowNodes = nil
	ws.nodes = nil
	ws.nodeSequence = nil
	ws.resourcesLayout = nil
	ws.uavsAccess = nil
	ws.finalTransitions = nil
	ws.valid = false
}

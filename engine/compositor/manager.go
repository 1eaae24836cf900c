package compositor

import (
	"fmt"
	"log/slog"
	"slices"

	"cogentcore.org/core/base/errors"
	"cogentcore.org/core/base/keylist"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// Manager owns every node, shadow node, and workspace definition, and every live workspace.
// It drives the per-frame update of all enabled workspaces.
type Manager struct {
	renderSystem RenderSystem
	sceneManager SceneManager
	log          *slog.Logger

	nodeDefs       *keylist.List[common.IdString, *NodeDef]
	shadowNodeDefs *keylist.List[common.IdString, *ShadowNodeDef]
	workspaceDefs  *keylist.List[common.IdString, *WorkspaceDef]

	workspaces       []*Workspace
	queuedWorkspaces []*Workspace
	listeners        []ManagerListener
	frameCount       uint64
}

// NewManager creates a Manager on top of a render system and a scene manager.
//
// Parameters:
//   - rs: the render system textures are allocated from and passes executed with
//   - sm: the scene manager lights and cameras come from
//   - options: functional options
//
// Returns:
//   - *Manager: the new manager
func NewManager(rs RenderSystem, sm SceneManager, options ...ManagerBuilderOption) *Manager {
	m := &Manager{
		renderSystem:   rs,
		sceneManager:   sm,
		log:            common.ComponentLogger("compositor"),
		nodeDefs:       keylist.New[common.IdString, *NodeDef](),
		shadowNodeDefs: keylist.New[common.IdString, *ShadowNodeDef](),
		workspaceDefs:  keylist.New[common.IdString, *WorkspaceDef](),
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

// RenderSystem returns the render system.
func (m *Manager) RenderSystem() RenderSystem {
	return m.renderSystem
}

// SceneManager returns the scene manager.
func (m *Manager) SceneManager() SceneManager {
	return m.sceneManager
}

// FrameCount returns how many times Update ran.
func (m *Manager) FrameCount() uint64 {
	return m.frameCount
}

func (m *Manager) nameTaken(id common.IdString) bool {
	_, node := m.nodeDefs.AtTry(id)
	_, shadow := m.shadowNodeDefs.AtTry(id)
	return node || shadow
}

// AddNodeDefinition creates an empty node definition.
//
// Parameters:
//   - name: the definition name, unique among node and shadow node definitions
//
// Returns:
//   - *NodeDef: the new definition
//   - error: ErrDuplicateItem if the name is taken
func (m *Manager) AddNodeDefinition(name string) (*NodeDef, error) {
	id := common.NewIdString(name)
	if m.nameTaken(id) {
		return nil, fmt.Errorf("%w: node definition %q", common.ErrDuplicateItem, name)
	}
	def := newNodeDef(name)
	m.nodeDefs.Set(id, def)
	return def, nil
}

// AddShadowNodeDefinition creates an empty shadow node definition.
//
// Parameters:
//   - name: the definition name, unique among node and shadow node definitions
//
// Returns:
//   - *ShadowNodeDef: the new definition
//   - error: ErrDuplicateItem if the name is taken
func (m *Manager) AddShadowNodeDefinition(name string) (*ShadowNodeDef, error) {
	id := common.NewIdString(name)
	if m.nameTaken(id) {
		return nil, fmt.Errorf("%w: shadow node definition %q", common.ErrDuplicateItem, name)
	}
	def := newShadowNodeDef(name)
	m.shadowNodeDefs.Set(id, def)
	return def, nil
}

// AddWorkspaceDefinition creates an empty workspace definition.
//
// Parameters:
//   - name: the definition name
//
// Returns:
//   - *WorkspaceDef: the new definition
//   - error: ErrDuplicateItem if the name is taken
func (m *Manager) AddWorkspaceDefinition(name string) (*WorkspaceDef, error) {
	id := common.NewIdString(name)
	if _, ok := m.workspaceDefs.AtTry(id); ok {
		return nil, fmt.Errorf("%w: workspace definition %q", common.ErrDuplicateItem, name)
	}
	def := newWorkspaceDef(name, m)
	m.workspaceDefs.Set(id, def)
	return def, nil
}

// HasNodeDefinition reports whether a node definition called name exists.
func (m *Manager) HasNodeDefinition(name common.IdString) bool {
	_, ok := m.nodeDefs.AtTry(name)
	return ok
}

// HasShadowNodeDefinition reports whether a shadow node definition called name exists.
func (m *Manager) HasShadowNodeDefinition(name common.IdString) bool {
	_, ok := m.shadowNodeDefs.AtTry(name)
	return ok
}

// HasWorkspaceDefinition reports whether a workspace definition called name exists.
func (m *Manager) HasWorkspaceDefinition(name common.IdString) bool {
	_, ok := m.workspaceDefs.AtTry(name)
	return ok
}

// NodeDefinition returns the node definition called name.
func (m *Manager) NodeDefinition(name common.IdString) (*NodeDef, error) {
	def, ok := m.nodeDefs.AtTry(name)
	if !ok {
		return nil, fmt.Errorf("%w: node definition %s", common.ErrItemNotFound, name)
	}
	return def, nil
}

// ShadowNodeDefinition returns the shadow node definition called name.
func (m *Manager) ShadowNodeDefinition(name common.IdString) (*ShadowNodeDef, error) {
	def, ok := m.shadowNodeDefs.AtTry(name)
	if !ok {
		return nil, fmt.Errorf("%w: shadow node definition %s", common.ErrItemNotFound, name)
	}
	return def, nil
}

// WorkspaceDefinition returns the workspace definition called name.
func (m *Manager) WorkspaceDefinition(name common.IdString) (*WorkspaceDef, error) {
	def, ok := m.workspaceDefs.AtTry(name)
	if !ok {
		return nil, fmt.Errorf("%w: workspace definition %s", common.ErrItemNotFound, name)
	}
	return def, nil
}

// AllWorkspaces returns every workspace, including those queued for the next update.
func (m *Manager) AllWorkspaces() []*Workspace {
	return append(slices.Clone(m.workspaces), m.queuedWorkspaces...)
}

// RemoveNodeDefinition removes a node definition no live workspace instances.
func (m *Manager) RemoveNodeDefinition(name common.IdString) error {
	if !m.HasNodeDefinition(name) {
		return fmt.Errorf("%w: node definition %s", common.ErrItemNotFound, name)
	}
	for _, ws := range m.AllWorkspaces() {
		for _, n := range ws.nodes {
			if n.def.name == name {
				return fmt.Errorf("%w: node definition %s is used by workspace %q", common.ErrInvalidState, name, ws.def.nameStr)
			}
		}
	}
	m.nodeDefs.DeleteByKey(name)
	return nil
}

// RemoveShadowNodeDefinition removes a shadow node definition no live workspace instances.
func (m *Manager) RemoveShadowNodeDefinition(name common.IdString) error {
	if !m.HasShadowNodeDefinition(name) {
		return fmt.Errorf("%w: shadow node definition %s", common.ErrItemNotFound, name)
	}
	for _, ws := range m.AllWorkspaces() {
		if ws.FindShadowNode(name) != nil {
			return fmt.Errorf("%w: shadow node definition %s is used by workspace %q", common.ErrInvalidState, name, ws.def.nameStr)
		}
	}
	m.shadowNodeDefs.DeleteByKey(name)
	return nil
}

// RemoveWorkspaceDefinition removes a workspace definition no live workspace instances.
func (m *Manager) RemoveWorkspaceDefinition(name common.IdString) error {
	if !m.HasWorkspaceDefinition(name) {
		return fmt.Errorf("%w: workspace definition %s", common.ErrItemNotFound, name)
	}
	for _, ws := range m.AllWorkspaces() {
		if ws.def.name == name {
			return fmt.Errorf("%w: workspace definition %s is instanced", common.ErrInvalidState, name)
		}
	}
	m.workspaceDefs.DeleteByKey(name)
	return nil
}

// ValidateAllNodes validates every node and shadow node definition that changed since it was
// last validated.
//
// Returns:
//   - error: the first validation error
func (m *Manager) ValidateAllNodes() error {
	for _, def := range m.nodeDefs.Values {
		if def.validated {
			continue
		}
		if err := def.ValidateAndFinish(); err != nil {
			return err
		}
	}
	for _, def := range m.shadowNodeDefs.Values {
		if def.validated {
			continue
		}
		if err := def.ValidateAndFinish(); err != nil {
			return err
		}
	}
	return nil
}

// AddWorkspace instances a workspace definition. The workspace is instantiated right away but
// only joins the per-frame update on the next call to Update.
//
// Parameters:
//   - defName: the workspace definition to instance
//   - options: cameras, external textures, and other settings
//
// Returns:
//   - *Workspace: the new workspace, possibly invalid until its externals are set
//   - error: ErrItemNotFound for an unknown definition, or a definition or instantiation error
func (m *Manager) AddWorkspace(defName common.IdString, options ...WorkspaceBuilderOption) (*Workspace, error) {
	def, err := m.WorkspaceDefinition(defName)
	if err != nil {
		return nil, err
	}
	if err := m.ValidateAllNodes(); err != nil {
		return nil, err
	}
	ws := newWorkspace(def, m, options...)
	if err := ws.RecreateAllNodes(); err != nil {
		ws.destroyAllNodes()
		return nil, err
	}
	m.queuedWorkspaces = append(m.queuedWorkspaces, ws)
	return ws, nil
}

// RemoveWorkspace destroys a workspace and its resources.
func (m *Manager) RemoveWorkspace(ws *Workspace) error {
	if idx := slices.Index(m.workspaces, ws); idx >= 0 {
		m.workspaces = slices.Delete(m.workspaces, idx, idx+1)
	} else if idx := slices.Index(m.queuedWorkspaces, ws); idx >= 0 {
		m.queuedWorkspaces = slices.Delete(m.queuedWorkspaces, idx, idx+1)
	} else {
		return fmt.Errorf("%w: workspace %s is not owned by this manager", common.ErrItemNotFound, ws.id)
	}
	ws.destroyAllNodes()
	return nil
}

// RemoveAllWorkspaces destroys every workspace.
func (m *Manager) RemoveAllWorkspaces() {
	for _, ws := range m.AllWorkspaces() {
		ws.destroyAllNodes()
	}
	m.workspaces = nil
	m.queuedWorkspaces = nil
}

// Workspaces returns the workspaces taking part in the per-frame update.
func (m *Manager) Workspaces() []*Workspace {
	return m.workspaces
}

// AddListener registers a listener.
func (m *Manager) AddListener(l ManagerListener) {
	m.listeners = append(m.listeners, l)
}

// RemoveListener unregisters a listener.
func (m *Manager) RemoveListener(l ManagerListener) {
	if idx := slices.Index(m.listeners, l); idx >= 0 {
		m.listeners = slices.Delete(m.listeners, idx, idx+1)
	}
}

// Update runs one frame: queued workspaces join, invalid enabled workspaces are recreated once,
// then every enabled valid workspace executes inside a single GPU frame.
//
// Returns:
//   - error: an error beginning or ending the GPU frame, or joined workspace errors
func (m *Manager) Update() error {
	m.workspaces = append(m.workspaces, m.queuedWorkspaces...)
	m.queuedWorkspaces = nil

	for _, l := range m.listeners {
		errors.Log(l.AllWorkspacesBeforeBeginUpdate(m.frameCount))
	}

	for _, ws := range m.workspaces {
		if ws.enabled && !ws.valid {
			if err := ws.RecreateAllNodes(); err != nil {
				m.log.Warn("recreating invalid workspace failed", "workspace", ws.def.nameStr, "error", err)
			}
		}
	}

	if err := m.renderSystem.BeginFrameOnce(); err != nil {
		return fmt.Errorf("begin frame: %w", err)
	}

	active := make([]*Workspace, 0, len(m.workspaces))
	for _, ws := range m.workspaces {
		if ws.enabled && ws.valid {
			active = append(active, ws)
		}
	}

	var errs []error
	for _, ws := range active {
		errs = append(errs, ws.BeginUpdate(false))
	}
	for _, l := range m.listeners {
		errors.Log(l.AllWorkspacesBeginUpdate())
	}
	for _, ws := range active {
		errs = append(errs, ws.Update())
	}
	for _, ws := range active {
		errs = append(errs, ws.EndUpdate(false))
	}

	if err := m.renderSystem.EndFrameOnce(); err != nil {
		errs = append(errs, fmt.Errorf("end frame: %w", err))
	}
	for _, l := range m.listeners {
		errors.Log(l.AllWorkspacesUpdated())
	}
	m.frameCount++
	return errors.Join(errs...)
}

// CreateBasicWorkspaceDef creates a workspace definition with one node that clears the final
// target to clearColour and renders the scene into it.
//
// Parameters:
//   - name: the workspace definition name; the node definition is called name + "/Node"
//   - clearColour: the RGBA clear colour
//
// Returns:
//   - *WorkspaceDef: the new definition
//   - error: ErrDuplicateItem if either name is taken
func (m *Manager) CreateBasicWorkspaceDef(name string, clearColour [4]float32) (*WorkspaceDef, error) {
	nodeName := name + "/Node"
	node, err := m.AddNodeDefinition(nodeName)
	if err != nil {
		return nil, err
	}
	if err := node.AddTextureSourceName("renderWindow", 0, TextureSourceInput); err != nil {
		return nil, err
	}
	target := node.AddTargetPass("renderWindow", 0)
	clearPass := target.AddClearPass()
	clearPass.Colour = clearColour
	target.AddScenePass()

	ws, err := m.AddWorkspaceDefinition(name)
	if err != nil {
		return nil, err
	}
	if err := ws.ConnectOutput(nodeName, 0); err != nil {
		return nil, err
	}
	return ws, nil
}

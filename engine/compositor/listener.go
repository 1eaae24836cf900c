package compositor

// WorkspaceListener observes the execution of a workspace.
type WorkspaceListener interface {
	// WorkspacePreUpdate is called before the first node of ws executes.
	//
	// Parameters:
	//   - ws: the updating workspace
	WorkspacePreUpdate(ws *Workspace)

	// WorkspacePosUpdate is called after the last node of ws executed.
	//
	// Parameters:
	//   - ws: the updated workspace
	WorkspacePosUpdate(ws *Workspace)

	// PassPreExecute is called right before a pass is handed to the RenderSystem.
	//
	// Parameters:
	//   - pass: the executing pass
	PassPreExecute(pass Pass)

	// PassPosExecute is called right after a pass was handed to the RenderSystem.
	//
	// Parameters:
	//   - pass: the executed pass
	PassPosExecute(pass Pass)
}

// WorkspaceListenerFuncs adapts optional functions to a WorkspaceListener. Nil fields are skipped.
type WorkspaceListenerFuncs struct {
	OnWorkspacePreUpdate func(ws *Workspace)
	OnWorkspacePosUpdate func(ws *Workspace)
	OnPassPreExecute     func(pass Pass)
	OnPassPosExecute     func(pass Pass)
}

var _ WorkspaceListener = &WorkspaceListenerFuncs{}

func (f *WorkspaceListenerFuncs) WorkspacePreUpdate(ws *Workspace) {
	if f.OnWorkspacePreUpdate != nil {
		f.OnWorkspacePreUpdate(ws)
	}
}

func (f *WorkspaceListenerFuncs) WorkspacePosUpdate(ws *Workspace) {
	if f.OnWorkspacePosUpdate != nil {
		f.OnWorkspacePosUpdate(ws)
	}
}

func (f *WorkspaceListenerFuncs) PassPreExecute(pass Pass) {
	if f.OnPassPreExecute != nil {
		f.OnPassPreExecute(pass)
	}
}

func (f *WorkspaceListenerFuncs) PassPosExecute(pass Pass) {
	if f.OnPassPosExecute != nil {
		f.OnPassPosExecute(pass)
	}
}

// ManagerListener observes the per-frame update of every workspace of a Manager. Returned
// errors are logged; they do not stop the frame.
type ManagerListener interface {
	// AllWorkspacesBeforeBeginUpdate is called before invalid workspaces are retried and
	// before the GPU frame begins.
	//
	// Parameters:
	//   - frame: the manager frame number
	//
	// Returns:
	//   - error: an error to log
	AllWorkspacesBeforeBeginUpdate(frame uint64) error

	// AllWorkspacesBeginUpdate is called after every workspace began its update and before
	// any of them executes.
	//
	// Returns:
	//   - error: an error to log
	AllWorkspacesBeginUpdate() error

	// AllWorkspacesUpdated is called after the GPU frame ended.
	//
	// Returns:
	//   - error: an error to log
	AllWorkspacesUpdated() error
}

// ManagerListenerFuncs adapts optional functions to a ManagerListener. Nil fields are skipped.
type ManagerListenerFuncs struct {
	OnAllWorkspacesBeforeBeginUpdate func(frame uint64) error
	OnAllWorkspacesBeginUpdate       func() error
	OnAllWorkspacesUpdated           func() error
}

var _ ManagerListener = &ManagerListenerFuncs{}

func (f *ManagerListenerFuncs) AllWorkspacesBeforeBeginUpdate(frame uint64) error {
	if f.OnAllWorkspacesBeforeBeginUpdate != nil {
		return f.OnAllWorkspacesBeforeBeginUpdate(frame)
	}
	return nil
}

func (f *ManagerListenerFuncs) AllWorkspacesBeginUpdate() error {
	if f.OnAllWorkspacesBeginUpdate != nil {
		return f.OnAllWorkspacesBeginUpdate()
	}
	return nil
}

func (f *ManagerListenerFuncs) AllWorkspacesUpdated() error {
	if f.OnAllWorkspacesUpdated != nil {
		return f.OnAllWorkspacesUpdated()
	}
	return nil
}

package compositor

import "github.com/Carmen-Shannon/oxy-compositor/engine/camera"

// WorkspaceBuilderOption is a functional option for configuring a Workspace.
// Use the With* functions to create options.
type WorkspaceBuilderOption func(ws *Workspace)

// WithCamera sets the camera used by scene and quad passes that name no camera.
//
// Parameters:
//   - cam: the default camera
//
// Returns:
//   - WorkspaceBuilderOption: option function to apply
func WithCamera(cam camera.Camera) WorkspaceBuilderOption {
	return func(ws *Workspace) {
		ws.defaultCamera = cam
	}
}

// WithLodCamera sets the camera used for LOD selection by passes with no LOD camera.
// Defaults to the default camera.
//
// Parameters:
//   - cam: the LOD camera
//
// Returns:
//   - WorkspaceBuilderOption: option function to apply
func WithLodCamera(cam camera.Camera) WorkspaceBuilderOption {
	return func(ws *Workspace) {
		ws.lodCamera = cam
	}
}

// WithExternalTextures sets the external textures routes refer to by index. The first one is
// the final target relative texture sizes are computed from.
//
// Parameters:
//   - textures: the external textures
//
// Returns:
//   - WorkspaceBuilderOption: option function to apply
func WithExternalTextures(textures ...Texture) WorkspaceBuilderOption {
	return func(ws *Workspace) {
		ws.externalTextures = textures
	}
}

// WithExternalBuffers sets the external buffers buffer routes refer to by index.
//
// Parameters:
//   - buffers: the external buffers
//
// Returns:
//   - WorkspaceBuilderOption: option function to apply
func WithExternalBuffers(buffers ...Buffer) WorkspaceBuilderOption {
	return func(ws *Workspace) {
		ws.externalBuffers = buffers
	}
}

// WithEnabled sets whether the Manager updates the workspace every frame. Disabled workspaces
// can still be updated manually.
//
// Parameters:
//   - enabled: whether the workspace is updated automatically
//
// Returns:
//   - WorkspaceBuilderOption: option function to apply
func WithEnabled(enabled bool) WorkspaceBuilderOption {
	return func(ws *Workspace) {
		ws.enabled = enabled
	}
}

// WithExecutionMask sets the mask ANDed with every pass execution mask.
//
// Parameters:
//   - mask: the execution mask
//
// Returns:
//   - WorkspaceBuilderOption: option function to apply
func WithExecutionMask(mask uint8) WorkspaceBuilderOption {
	return func(ws *Workspace) {
		ws.executionMask = mask
	}
}

// WithViewportModifier maps the viewport of passes whose modifier mask intersects mask into vp.
//
// Parameters:
//   - vp: the normalized sub-rectangle to render into
//   - mask: the viewport modifier mask
//
// Returns:
//   - WorkspaceBuilderOption: option function to apply
func WithViewportModifier(vp Viewport, mask uint8) WorkspaceBuilderOption {
	return func(ws *Workspace) {
		ws.viewportModifier = vp
		ws.viewportModifierMask = mask
	}
}

// WithWorkspaceListener registers a listener.
//
// Parameters:
//   - l: the listener
//
// Returns:
//   - WorkspaceBuilderOption: option function to apply
func WithWorkspaceListener(l WorkspaceListener) WorkspaceBuilderOption {
	return func(ws *Workspace) {
		ws.listeners = append(ws.listeners, l)
	}
}

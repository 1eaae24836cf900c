package compositor

import (
	"cogentcore.org/core/math32"
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

// TextureType is the dimensionality of a texture.
type TextureType int

const (
	TextureType2D TextureType = iota
	TextureType2DArray
	TextureTypeCube
	TextureType3D
)

// TextureDescriptor describes a texture to allocate through the RenderSystem.
type TextureDescriptor struct {
	// Name is the texture's name inside the node or workspace that declared it.
	Name common.IdString
	// Label is a unique, human readable label for debugging tools.
	Label string
	// Type is the texture dimensionality.
	Type TextureType
	// Width and Height are the size of mip 0 in texels.
	Width, Height uint32
	// DepthOrSlices is the depth of 3D textures or the number of array slices (6 for cubemaps).
	DepthOrSlices uint32
	// MipLevels is the number of mip levels, at least 1.
	MipLevels uint32
	// Format is the pixel format.
	Format wgpu.TextureFormat
	// Usage are the wgpu usage flags the texture is created with.
	Usage wgpu.TextureUsage
	// SampleCount is the MSAA sample count, at least 1.
	SampleCount uint32
	// DepthBufferPool groups render targets that may share a depth buffer. Zero means no depth buffer.
	DepthBufferPool uint16
	// RenderWindow marks a swapchain texture, which is transitioned to PresentReady at the end of every update.
	RenderWindow bool
}

// BufferDescriptor describes a UAV buffer to allocate through the RenderSystem.
type BufferDescriptor struct {
	Name            common.IdString
	Label           string
	NumElements     uint32
	BytesPerElement uint32
	Usage           wgpu.BufferUsage
}

// GpuResource is a texture or buffer tracked by the hazard analysis.
type GpuResource interface {
	// Name returns the resource's declared name.
	//
	// Returns:
	//   - common.IdString: the name
	Name() common.IdString
}

// Texture is a GPU texture owned by the RenderSystem.
type Texture interface {
	GpuResource

	// Descriptor returns the descriptor the texture was created with.
	//
	// Returns:
	//   - TextureDescriptor: the descriptor
	Descriptor() TextureDescriptor
}

// Buffer is a GPU buffer owned by the RenderSystem.
type Buffer interface {
	GpuResource

	// Descriptor returns the descriptor the buffer was created with.
	//
	// Returns:
	//   - BufferDescriptor: the descriptor
	Descriptor() BufferDescriptor
}

// RenderTargetView is the texture, array slice and mip level a pass renders into.
type RenderTargetView struct {
	Texture  Texture
	Slice    uint32
	MipLevel uint32
}

// PixelViewport is a viewport rectangle in texels.
type PixelViewport struct {
	X, Y, Width, Height uint32
}

// PassContext carries everything the RenderSystem needs to execute one pass.
type PassContext struct {
	// Pass is the executing pass instance.
	Pass Pass
	// Workspace is the workspace the pass belongs to.
	Workspace *Workspace
	// Node is the node the pass belongs to.
	Node *Node
	// Target is the render target the pass writes to.
	Target RenderTargetView
	// Viewport is the pass viewport resolved against the target size.
	Viewport PixelViewport
	// Camera is the camera for scene and quad passes, nil otherwise.
	Camera camera.Camera
	// LodCamera is the camera used for LOD selection in scene passes.
	LodCamera camera.Camera
	// ShadowNode is the shadow node whose textures a scene pass samples, nil if none.
	ShadowNode *ShadowNode
	// Inputs are the textures a quad, compute, or depth copy pass reads, in slot order.
	Inputs []Texture
	// Buffers are the buffers a compute pass binds, in slot order.
	Buffers []Buffer
	// ShaderParams are the bytes a listener attached to a quad pass for this execution.
	ShaderParams []byte
}

// RenderSystem is the GPU collaborator the compositor allocates resources from and executes passes with.
type RenderSystem interface {
	// CreateTexture allocates a texture.
	//
	// Parameters:
	//   - desc: the texture descriptor
	//
	// Returns:
	//   - Texture: the new texture
	//   - error: an error if allocation failed
	CreateTexture(desc TextureDescriptor) (Texture, error)

	// DestroyTexture releases a texture created by CreateTexture.
	//
	// Parameters:
	//   - tex: the texture to release
	DestroyTexture(tex Texture)

	// CreateBuffer allocates a buffer.
	//
	// Parameters:
	//   - desc: the buffer descriptor
	//
	// Returns:
	//   - Buffer: the new buffer
	//   - error: an error if allocation failed
	CreateBuffer(desc BufferDescriptor) (Buffer, error)

	// DestroyBuffer releases a buffer created by CreateBuffer.
	//
	// Parameters:
	//   - buf: the buffer to release
	DestroyBuffer(buf Buffer)

	// BeginFrameOnce starts a GPU frame. Calls while a frame is already open are ignored.
	//
	// Returns:
	//   - error: an error if the frame could not be started
	BeginFrameOnce() error

	// EndFrameOnce submits the current GPU frame. Calls with no open frame are ignored.
	//
	// Returns:
	//   - error: an error if the frame could not be submitted
	EndFrameOnce() error

	// ExecuteResourceTransitions issues the barriers the hazard analysis placed before a pass.
	//
	// Parameters:
	//   - transitions: the layout and access changes to apply
	ExecuteResourceTransitions(transitions []ResourceTransition)

	// ExecutePass records one pass.
	//
	// Parameters:
	//   - ctx: the pass, its target and its bound resources
	//
	// Returns:
	//   - error: an error if the pass could not be recorded
	ExecutePass(ctx *PassContext) error
}

// SceneManager is the scene collaborator shadow nodes and cubemap probes query.
type SceneManager interface {
	// Lights returns every light in the scene. Directional lights must come first.
	//
	// Returns:
	//   - []light.Light: the scene lights
	Lights() []light.Light

	// CreateCamera creates a camera owned by the caller.
	//
	// Parameters:
	//   - name: a unique camera name
	//
	// Returns:
	//   - camera.Camera: the new camera
	CreateCamera(name string) camera.Camera

	// DestroyCamera destroys a camera created by CreateCamera.
	//
	// Parameters:
	//   - cam: the camera to destroy
	DestroyCamera(cam camera.Camera)

	// FindCamera looks up a camera by name.
	//
	// Parameters:
	//   - name: the camera name
	//
	// Returns:
	//   - camera.Camera: the camera, or nil if none has that name
	FindCamera(name common.IdString) camera.Camera

	// CastersBox returns the bounds of every shadow caster visible to cam whose visibility
	// flags intersect visibilityMask and whose render queue lies in [minRq, maxRq].
	//
	// Parameters:
	//   - cam: the viewing camera
	//   - visibilityMask: the pass visibility mask
	//   - minRq, maxRq: the inclusive render queue range
	//
	// Returns:
	//   - math32.Box3: the caster bounds, empty if there are none
	CastersBox(cam camera.Camera, visibilityMask uint32, minRq, maxRq uint8) math32.Box3
}

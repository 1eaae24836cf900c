package window

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// Window is the surface the render window texture presents to. It owns the platform message
// loop and reports framebuffer resizes, which invalidate every workspace rendering to it.
type Window interface {
	// SetUpdateCallback sets the function called each message loop iteration.
	//
	// Parameters:
	//   - callback: function to call (or nil to disable)
	SetUpdateCallback(callback func())

	// SetResizeCallback sets the function called when the framebuffer is resized. Minimising
	// reports 0x0; the callback is not invoked for empty sizes.
	//
	// Parameters:
	//   - callback: function receiving new width and height in pixels
	SetResizeCallback(callback func(width, height int))

	// SetKeyCallback sets the callback for key press and release events. Escape always closes
	// the window and is not forwarded.
	//
	// Parameters:
	//   - callback: function receiving the key code and whether it was pressed
	SetKeyCallback(callback func(keyCode uint32, pressed bool))

	// SetTitle replaces the title bar text.
	SetTitle(title string)

	// SurfaceDescriptor returns a wgpu.SurfaceDescriptor suitable for creating a WebGPU surface.
	// The descriptor is platform-appropriate (Windows HWND, X11 Xlib, Wayland, macOS Metal, etc.)
	// and is created by the wgpuglfw bridge from the underlying GLFW window.
	//
	// Returns:
	//   - *wgpu.SurfaceDescriptor: the platform-specific surface descriptor, or nil if window is not initialized
	SurfaceDescriptor() *wgpu.SurfaceDescriptor

	// IsRunning returns true if the window is still active.
	//
	// Returns:
	//   - bool: true if window is running, false if closed
	IsRunning() bool

	// Close closes the window and releases platform resources.
	//
	// Returns:
	//   - error: error if close operation fails
	Close() error

	// ProcessMessages runs the window message loop.
	// Blocks until the window is closed. Calls the update callback each iteration.
	ProcessMessages()

	// Width returns the current framebuffer width in pixels.
	//
	// Returns:
	//   - int: width in pixels
	Width() int

	// Height returns the current framebuffer height in pixels.
	//
	// Returns:
	//   - int: height in pixels
	Height() int
}

// engineWindow is the implementation of the Window interface.
type engineWindow struct {
	log *slog.Logger

	title string

	// size limits applied to the platform window; 0 leaves a bound open
	minWidth, minHeight int
	maxWidth, maxHeight int

	// framebuffer size in pixels
	width, height int

	// internalWindow holds the platform-specific window data (glfwWindow).
	internalWindow any

	onUpdate func()
	onResize func(width, height int)
	onKey    func(keyCode uint32, pressed bool)
}

var _ Window = &engineWindow{}

// NewWindow creates and shows a window with the specified options.
// Applies default values first, then each option in order.
//
// Parameters:
//   - options: functional options to configure the window
//
// Returns:
//   - Window: the window
//   - error: an error if the options are inconsistent or the platform window could not be created
func NewWindow(options ...WindowBuilderOption) (Window, error) {
	w := &engineWindow{
		log:       common.ComponentLogger("window"),
		title:     "Compositor",
		minWidth:  320,
		minHeight: 200,
		width:     1280,
		height:    720,
	}
	for _, opt := range options {
		opt(w)
	}
	if err := w.validate(); err != nil {
		return nil, err
	}
	if err := newPlatformWindow(w); err != nil {
		return nil, fmt.Errorf("create platform window: %w", err)
	}
	w.log.Debug("window created", "title", w.title, "width", w.width, "height", w.height)
	return w, nil
}

// validate checks the requested size against the limits.
func (w *engineWindow) validate() error {
	if w.width <= 0 || w.height <= 0 {
		return fmt.Errorf("%w: window size %dx%d", common.ErrInvalidParams, w.width, w.height)
	}
	if w.maxWidth > 0 && w.minWidth > w.maxWidth || w.maxHeight > 0 && w.minHeight > w.maxHeight {
		return fmt.Errorf("%w: minimum size %dx%d exceeds maximum %dx%d", common.ErrInvalidParams,
			w.minWidth, w.minHeight, w.maxWidth, w.maxHeight)
	}
	w.width = clampSize(w.width, w.minWidth, w.maxWidth)
	w.height = clampSize(w.height, w.minHeight, w.maxHeight)
	return nil
}

// clampSize clamps v into [lo, hi]; a zero hi is unbounded.
func clampSize(v, lo, hi int) int {
	v = max(v, lo)
	if hi > 0 {
		v = min(v, hi)
	}
	return v
}

// resized records a framebuffer size change and forwards non-empty sizes.
func (w *engineWindow) resized(width, height int) {
	if width == w.width && height == w.height {
		return
	}
	w.width, w.height = width, height
	if width == 0 || height == 0 {
		w.log.Debug("window minimised")
		return
	}
	if w.onResize != nil {
		w.onResize(width, height)
	}
}

func (w *engineWindow) SetUpdateCallback(callback func()) {
	w.onUpdate = callback
}

func (w *engineWindow) SetResizeCallback(callback func(width, height int)) {
	w.onResize = callback
}

func (w *engineWindow) SetKeyCallback(callback func(keyCode uint32, pressed bool)) {
	w.onKey = callback
}

func (w *engineWindow) SetTitle(title string) {
	w.title = title
	platformSetTitle(w)
}

func (w *engineWindow) SurfaceDescriptor() *wgpu.SurfaceDescriptor {
	return platformGetSurfaceDescriptor(w)
}

func (w *engineWindow) IsRunning() bool {
	return platformIsRunningCheck(w)
}

func (w *engineWindow) Close() error {
	return platformCloseWindow(w)
}

func (w *engineWindow) ProcessMessages() {
	for w.IsRunning() {
		if succ := platformProcessMessages(w); !succ {
			break
		}

		if w.onUpdate != nil && w.width > 0 && w.height > 0 {
			w.onUpdate()
		}

		runtime.Gosched()
	}
}

func (w *engineWindow) Width() int {
	return w.width
}

func (w *engineWindow) Height() int {
	return w.height
}

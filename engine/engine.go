package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
	"github.com/Carmen-Shannon/oxy-compositor/engine/cubemap"
	"github.com/Carmen-Shannon/oxy-compositor/engine/profiler"
	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer"
	"github.com/Carmen-Shannon/oxy-compositor/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-compositor/engine/scene"
	"github.com/Carmen-Shannon/oxy-compositor/engine/window"
)

// engine implements the Engine interface.
// Coordinates the tick loop, the render loop and the window message loop.
type engine struct {
	log *slog.Logger

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	// frameMu serialises frames with resizes and cubemap creation.
	frameMu *sync.Mutex

	window   window.Window
	renderer renderer.Renderer
	scene    scene.Scene
	manager  *compositor.Manager
	pccs     []*cubemap.ParallaxCorrectedCubemap

	rendererOptions []renderer.RendererBuilderOption
	ownsRenderer    bool

	profiler         *profiler.Profiler
	profilingEnabled bool

	engineTickRate time.Duration
	tickCallback   func(deltaTime float32)
	renderCallback func(deltaTime float32)

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine drives a compositor: it owns the render system and the scene the compositor manager
// renders, updates every workspace once per frame and keeps workspaces rendering to the window
// in sync with its size.
type Engine interface {
	// Window returns the window frames are presented to.
	//
	// Returns:
	//   - window.Window: the window, or nil when headless
	Window() window.Window

	// Renderer returns the render system.
	//
	// Returns:
	//   - renderer.Renderer: the renderer
	Renderer() renderer.Renderer

	// Scene returns the scene shadow nodes and cubemap probes query.
	//
	// Returns:
	//   - scene.Scene: the scene
	Scene() scene.Scene

	// Compositor returns the compositor manager.
	//
	// Returns:
	//   - *compositor.Manager: the manager
	Compositor() *compositor.Manager

	// AddWindowWorkspace instances a workspace whose only external texture is the render window.
	// Workspaces holding the window texture follow it on resize.
	//
	// Parameters:
	//   - defName: the workspace definition
	//   - options: workspace options; WithExternalTextures replaces the window texture
	//
	// Returns:
	//   - *compositor.Workspace: the workspace
	//   - error: ErrInvalidState when headless, or the instantiation error
	AddWindowWorkspace(defName common.IdString, options ...compositor.WorkspaceBuilderOption) (*compositor.Workspace, error)

	// NewParallaxCorrectedCubemap creates a parallax corrected cubemap in the engine's compositor.
	// Its sampler blocks come from the renderer's sampler pool and it is destroyed with the engine.
	//
	// Parameters:
	//   - id: a user id
	//   - probeWorkspaceDef: the workspace definition probes render the scene with
	//   - reservedRenderQueue: the render queue the probe proxies are drawn in
	//   - proxyVisibilityMask: the visibility flags of the probe proxies
	//   - options: functional options
	//
	// Returns:
	//   - *cubemap.ParallaxCorrectedCubemap: the new instance
	//   - error: the creation error
	NewParallaxCorrectedCubemap(id uint32, probeWorkspaceDef common.IdString, reservedRenderQueue uint8,
		proxyVisibilityMask uint32, options ...cubemap.PCCBuilderOption) (*cubemap.ParallaxCorrectedCubemap, error)

	// EnableProfiler enables performance profiling output to the log.
	EnableProfiler()

	// DisableProfiler disables performance profiling output.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for logic updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate, receiving the delta time in seconds
	SetTickCallback(callback func(deltaTime float32))

	// SetRenderCallback registers the function called before each compositor update.
	// Use it to move cameras, lights and casters, and to feed cubemaps their tracked camera.
	//
	// Parameters:
	//   - callback: function to call each render frame, receiving the delta time in seconds
	SetRenderCallback(callback func(deltaTime float32))

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// RenderFrame updates every workspace once and presents the result.
	//
	// Parameters:
	//   - deltaTime: the time since the last frame in seconds, handed to the render callback
	//
	// Returns:
	//   - error: the compositor update error
	RenderFrame(deltaTime float32) error

	// Resize replaces the window texture and hands it to every workspace that rendered to the old one.
	//
	// Parameters:
	//   - width: the new width in pixels
	//   - height: the new height in pixels
	//
	// Returns:
	//   - error: the resize error
	Resize(width, height int) error

	// Run starts the engine loops (blocks until window closes).
	Run()

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()

	// Release destroys the cubemaps, the workspaces and the scene, and the renderer if the
	// engine created it.
	//
	// Returns:
	//   - error: an error destroying a cubemap
	Release() error
}

// NewEngine creates a new Engine instance with the provided options.
// A renderer is created for the window unless one is given with WithRenderer; a scene is
// created unless one is given with WithScene. Quad passes are drawn by the renderer's
// MaterialQuadHandler; Renderer().SetPassHandler replaces it.
//
// Parameters:
//   - options: functional options for engine configuration (window, renderer, scene, profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
//   - error: an error creating the renderer or registering the built-in materials
func NewEngine(options ...EngineBuilderOption) (Engine, error) {
	e := &engine{
		log:              common.ComponentLogger("engine"),
		tickRateChannel:  make(chan time.Duration, 1),
		quitChannel:      make(chan struct{}),
		frameMu:          &sync.Mutex{},
		profiler:         profiler.NewProfiler(time.Second),
		profilingEnabled: false,
		engineTickRate:   time.Second / 60,
	}
	for _, opt := range options {
		opt(e)
	}

	if e.renderer == nil {
		r, err := renderer.NewRenderer(renderer.BackendTypeWGPU, e.window, e.rendererOptions...)
		if err != nil {
			return nil, fmt.Errorf("create renderer: %w", err)
		}
		e.renderer = r
		e.ownsRenderer = true
	}
	if e.scene == nil {
		e.scene = scene.NewScene("main")
	}
	e.manager = compositor.NewManager(e.renderer, e.scene)

	materials, err := shader.BuiltinMaterials()
	for _, m := range materials {
		err = errors.Join(err, e.renderer.RegisterMaterial(m))
	}
	if err != nil {
		e.releaseOwned()
		return nil, fmt.Errorf("register built-in materials: %w", err)
	}
	e.renderer.SetPassHandler(compositor.PassTypeQuad, e.renderer.MaterialQuadHandler())

	if e.window != nil {
		e.window.SetResizeCallback(func(width, height int) {
			if err := e.Resize(width, height); err != nil {
				e.log.Error("resize failed", "width", width, "height", height, "error", err)
			}
		})
	}
	return e, nil
}

func (e *engine) Window() window.Window {
	return e.window
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Scene() scene.Scene {
	return e.scene
}

func (e *engine) Compositor() *compositor.Manager {
	return e.manager
}

func (e *engine) AddWindowWorkspace(defName common.IdString, options ...compositor.WorkspaceBuilderOption) (*compositor.Workspace, error) {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	win := e.renderer.WindowTexture()
	if win == nil {
		return nil, fmt.Errorf("%w: the engine is headless", common.ErrInvalidState)
	}
	options = append([]compositor.WorkspaceBuilderOption{compositor.WithExternalTextures(win)}, options...)
	ws, err := e.manager.AddWorkspace(defName, options...)
	if err != nil {
		return nil, err
	}
	e.fitCamera(ws, win)
	return ws, nil
}

func (e *engine) NewParallaxCorrectedCubemap(id uint32, probeWorkspaceDef common.IdString, reservedRenderQueue uint8,
	proxyVisibilityMask uint32, options ...cubemap.PCCBuilderOption) (*cubemap.ParallaxCorrectedCubemap, error) {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	options = append([]cubemap.PCCBuilderOption{cubemap.WithSamplerPool(e.renderer.SamplerPool())}, options...)
	pcc, err := cubemap.NewParallaxCorrectedCubemap(id, e.manager, e.scene, probeWorkspaceDef,
		reservedRenderQueue, proxyVisibilityMask, options...)
	if err != nil {
		return nil, err
	}
	e.pccs = append(e.pccs, pcc)
	return pcc, nil
}

func (e *engine) RenderFrame(deltaTime float32) error {
	if e.renderCallback != nil {
		e.renderCallback(deltaTime)
	}

	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	err := e.manager.Update()
	e.renderer.Present()
	if e.profilingEnabled && e.profiler != nil {
		e.profiler.Tick(e.renderer.Stats())
	}
	return err
}

func (e *engine) Resize(width, height int) error {
	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	old := e.renderer.WindowTexture()
	tex, err := e.renderer.Resize(width, height)
	if err != nil {
		return err
	}

	var errs []error
	for _, ws := range e.manager.AllWorkspaces() {
		externals := ws.ExternalRenderTargets()
		idx := slices.IndexFunc(externals, func(t compositor.Texture) bool { return t == old })
		if idx < 0 {
			continue
		}
		externals = slices.Clone(externals)
		externals[idx] = tex
		errs = append(errs, ws.SetExternalRenderTargets(externals...))
		e.fitCamera(ws, tex)
	}
	return errors.Join(errs...)
}

// fitCamera matches the workspace camera's aspect ratio to the window.
func (e *engine) fitCamera(ws *compositor.Workspace, win compositor.Texture) {
	cam := ws.Camera()
	desc := win.Descriptor()
	if cam == nil || desc.Height == 0 {
		return
	}
	cam.SetAspect(float32(desc.Width) / float32(desc.Height))
}

func (e *engine) Run() {
	e.running = true
	e.handle()
	if e.window != nil {
		e.window.ProcessMessages()
		e.signalQuit()
	}
	e.wg.Wait()
}

// Quit signals all engine goroutines to stop and shuts down the engine.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
// Uses sync.Once to ensure the channel is only closed once.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		e.running = false
		close(e.quitChannel)
	})
}

// handle launches the engine and render goroutines.
// Each goroutine is tracked by the engine's WaitGroup.
func (e *engine) handle() {
	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now

			if e.tickCallback != nil {
				e.tickCallback(dt)
			}
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("render goroutine recovered from panic", "panic", r)
			e.signalQuit()
		}
	}()

	lastRender := time.Now()
	lastErr := ""

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			// The same failure repeats every frame until the graph changes; log it once.
			if err := e.RenderFrame(dt); err != nil && err.Error() != lastErr {
				lastErr = err.Error()
				e.log.Error("frame failed", "frame", e.manager.FrameCount(), "error", err)
			} else if err == nil {
				lastErr = ""
			}

			if e.renderFrameLimit > 0 {
				if remaining := e.renderFrameLimit - time.Since(lastRender); remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

// EnableProfiler enables performance profiling output to the log.
func (e *engine) EnableProfiler() {
	e.profilingEnabled = true
}

// DisableProfiler disables performance profiling output.
func (e *engine) DisableProfiler() {
	e.profilingEnabled = false
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if !e.running {
		e.engineTickRate = newRate
		return
	}
	// Replace any pending update.
	select {
	case e.tickRateChannel <- newRate:
	default:
		select {
		case <-e.tickRateChannel:
		default:
		}
		e.tickRateChannel <- newRate
	}
}

// SetTickCallback registers the function called each engine tick.
func (e *engine) SetTickCallback(callback func(deltaTime float32)) {
	e.tickCallback = callback
}

// SetRenderCallback registers the function called each render frame.
func (e *engine) SetRenderCallback(callback func(deltaTime float32)) {
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) Release() error {
	e.signalQuit()
	e.frameMu.Lock()
	defer e.frameMu.Unlock()

	var errs []error
	for _, pcc := range e.pccs {
		errs = append(errs, pcc.Destroy())
	}
	e.pccs = nil
	e.manager.RemoveAllWorkspaces()
	e.releaseOwned()
	return errors.Join(errs...)
}

// releaseOwned releases what NewEngine created.
func (e *engine) releaseOwned() {
	e.scene.Close()
	if e.ownsRenderer {
		e.renderer.Release()
	}
}

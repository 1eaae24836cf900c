package scene

import (
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"time"

	"cogentcore.org/core/base/keylist"
	"cogentcore.org/core/math32"
	"github.com/Carmen-Shannon/automation/tools/worker"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

// DefaultCasterChunkSize is how many casters one worker task bounds in CastersBox.
const DefaultCasterChunkSize = 256

// Caster is an object that may cast shadows, as seen by the compositor.
type Caster struct {
	// Name is used in logs.
	Name string
	// Bounds is the world-space bounding box.
	Bounds math32.Box3
	// RenderQueue is the render queue the object is drawn in.
	RenderQueue uint8
	// VisibilityFlags are ANDed with the pass visibility mask.
	VisibilityFlags uint32
	// CastShadows excludes the object from every caster box when false.
	CastShadows bool
}

// Scene is an in-memory scene: lights, named cameras and shadow casters. It implements the
// compositor.SceneManager collaborator shadow nodes and cubemap probes query.
type Scene interface {
	compositor.SceneManager

	// Name returns the scene name.
	//
	// Returns:
	//   - string: the name
	Name() string

	// AddLight adds a light. Lights() keeps directional lights first, then insertion order.
	//
	// Parameters:
	//   - l: the light to add
	AddLight(l light.Light)

	// RemoveLight removes a light. Unknown lights are ignored.
	//
	// Parameters:
	//   - l: the light to remove
	RemoveLight(l light.Light)

	// Cameras returns every camera in creation order.
	//
	// Returns:
	//   - []camera.Camera: the cameras
	Cameras() []camera.Camera

	// AddCaster adds a shadow caster.
	//
	// Parameters:
	//   - c: the caster
	//
	// Returns:
	//   - uint64: the caster id, never 0
	AddCaster(c Caster) uint64

	// UpdateCaster replaces a caster, typically after it moved.
	//
	// Parameters:
	//   - id: the id returned by AddCaster
	//   - c: the new caster state
	//
	// Returns:
	//   - error: ErrItemNotFound for an unknown id
	UpdateCaster(id uint64, c Caster) error

	// RemoveCaster removes a caster.
	//
	// Parameters:
	//   - id: the id returned by AddCaster
	//
	// Returns:
	//   - error: ErrItemNotFound for an unknown id
	RemoveCaster(id uint64) error

	// Caster looks up a caster.
	//
	// Parameters:
	//   - id: the id returned by AddCaster
	//
	// Returns:
	//   - Caster: the caster
	//   - bool: false for an unknown id
	Caster(id uint64) (Caster, bool)

	// CasterCount returns the number of casters.
	//
	// Returns:
	//   - int: the count
	CasterCount() int

	// Close stops the worker pool. The scene must not be used afterwards; closing twice is a no-op.
	Close()
}

type scene struct {
	mu *sync.RWMutex

	name string
	log  *slog.Logger

	lights  []light.Light
	cameras *keylist.List[common.IdString, camera.Camera]
	casters *keylist.List[uint64, Caster]
	nextID  uint64

	// boundsPool fans CastersBox out over chunks of casterChunk casters. Workers persist
	// across frames.
	boundsPool    worker.DynamicWorkerPool
	boundsWorkers int
	casterChunk   int
	closeOnce     sync.Once
}

var _ Scene = &scene{}

// NewScene creates an empty scene.
//
// Parameters:
//   - name: the scene name
//   - options: functional options to configure the scene
//
// Returns:
//   - Scene: the new scene
func NewScene(name string, options ...SceneBuilderOption) Scene {
	s := &scene{
		mu:            &sync.RWMutex{},
		name:          name,
		cameras:       keylist.New[common.IdString, camera.Camera](),
		casters:       keylist.New[uint64, Caster](),
		nextID:        1,
		boundsWorkers: max(runtime.NumCPU()-1, 1),
		casterChunk:   DefaultCasterChunkSize,
	}
	for _, option := range options {
		option(s)
	}
	s.log = common.ComponentLogger("scene").With("scene", name)

	// Initialized after options so WithBoundsWorkers can override the default.
	s.boundsPool = worker.NewDynamicWorkerPool(s.boundsWorkers, 256, 1*time.Second)
	return s
}

func (s *scene) Name() string {
	return s.name
}

func (s *scene) AddLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lights = append(s.lights, l)
	slices.SortStableFunc(s.lights, func(a, b light.Light) int {
		return directionalRank(a) - directionalRank(b)
	})
}

// directionalRank sorts directional lights before the others.
func directionalRank(l light.Light) int {
	if l.Type() == light.LightTypeDirectional {
		return 0
	}
	return 1
}

func (s *scene) RemoveLight(l light.Light) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx := slices.Index(s.lights, l); idx >= 0 {
		s.lights = slices.Delete(s.lights, idx, idx+1)
	}
}

func (s *scene) Lights() []light.Light {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.lights)
}

// CreateCamera panics if a camera with the same name exists.
func (s *scene) CreateCamera(name string) camera.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	cam := camera.NewCamera(name)
	if err := s.cameras.Add(common.NewIdString(name), cam); err != nil {
		panic(fmt.Sprintf("scene: CreateCamera: camera %q already exists", name))
	}
	return cam
}

func (s *scene) DestroyCamera(cam camera.Camera) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := common.NewIdString(cam.Name())
	if existing, ok := s.cameras.AtTry(key); ok && existing == cam {
		s.cameras.DeleteByKey(key)
		return
	}
	s.log.Warn("destroying unknown camera", "camera", cam.Name())
}

func (s *scene) FindCamera(name common.IdString) camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cam, _ := s.cameras.AtTry(name)
	return cam
}

func (s *scene) Cameras() []camera.Camera {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.cameras.Values)
}

func (s *scene) AddCaster(c Caster) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.casters.Set(id, c)
	return id
}

func (s *scene) UpdateCaster(id uint64, c Caster) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.casters.IndexByKey(id) < 0 {
		return fmt.Errorf("%w: caster %d", common.ErrItemNotFound, id)
	}
	s.casters.Set(id, c)
	return nil
}

func (s *scene) RemoveCaster(id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.casters.DeleteByKey(id) {
		return fmt.Errorf("%w: caster %d", common.ErrItemNotFound, id)
	}
	return nil
}

func (s *scene) Caster(id uint64) (Caster, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.casters.AtTry(id)
}

func (s *scene) CasterCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.casters.Len()
}

// CastersBox merges the bounds of the shadow casters inside the camera frustum whose
// visibility flags intersect visibilityMask and whose render queue lies in [minRq, maxRq].
// A nil camera skips the frustum test. Chunks of casters are bounded on the worker pool.
func (s *scene) CastersBox(cam camera.Camera, visibilityMask uint32, minRq, maxRq uint8) math32.Box3 {
	s.mu.RLock()
	casters := slices.Clone(s.casters.Values)
	s.mu.RUnlock()

	var frustum *common.Frustum
	if cam != nil {
		f := cam.Frustum()
		frustum = &f
	}
	filter := casterFilter{frustum: frustum, visibilityMask: visibilityMask, minRq: minRq, maxRq: maxRq}

	if len(casters) <= s.casterChunk {
		return filter.bounds(casters)
	}

	numChunks := (len(casters) + s.casterChunk - 1) / s.casterChunk
	partial := make([]math32.Box3, numChunks)

	// A WaitGroup is the per-call barrier; pool.Wait() only returns once workers idle out.
	var wg sync.WaitGroup
	for i := range numChunks {
		chunk := casters[i*s.casterChunk : min((i+1)*s.casterChunk, len(casters))]
		wg.Add(1)
		s.boundsPool.SubmitTask(worker.Task{
			ID: i,
			Do: func() (any, error) {
				defer wg.Done()
				partial[i] = filter.bounds(chunk)
				return nil, nil
			},
		})
	}
	wg.Wait()

	box := math32.B3Empty()
	for _, b := range partial {
		if !b.IsEmpty() {
			box.ExpandByBox(b)
		}
	}
	return box
}

func (s *scene) Close() {
	s.closeOnce.Do(s.boundsPool.Stop)
}

// casterFilter selects the casters taking part in a caster box.
type casterFilter struct {
	frustum        *common.Frustum
	visibilityMask uint32
	minRq, maxRq   uint8
}

func (f casterFilter) accepts(c *Caster) bool {
	if !c.CastShadows || c.Bounds.IsEmpty() {
		return false
	}
	if c.VisibilityFlags&f.visibilityMask == 0 || c.RenderQueue < f.minRq || c.RenderQueue > f.maxRq {
		return false
	}
	return f.frustum == nil || f.frustum.IntersectsBox(c.Bounds)
}

func (f casterFilter) bounds(casters []Caster) math32.Box3 {
	box := math32.B3Empty()
	for i := range casters {
		if f.accepts(&casters[i]) {
			box.ExpandByBox(casters[i].Bounds)
		}
	}
	return box
}

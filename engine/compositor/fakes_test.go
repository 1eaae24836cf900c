package compositor

import (
	"fmt"

	"cogentcore.org/core/math32"
	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
	"github.com/Carmen-Shannon/oxy-compositor/engine/light"
)

type fakeTexture struct {
	desc TextureDescriptor
}

func (t *fakeTexture) Name() common.IdString         { return t.desc.Name }
func (t *fakeTexture) Descriptor() TextureDescriptor { return t.desc }

type fakeBuffer struct {
	desc BufferDescriptor
}

func (b *fakeBuffer) Name() common.IdString        { return b.desc.Name }
func (b *fakeBuffer) Descriptor() BufferDescriptor { return b.desc }

func newRenderWindow(width, height uint32) *fakeTexture {
	return &fakeTexture{desc: TextureDescriptor{
		Name:          common.NewIdString("renderWindow"),
		Width:         width,
		Height:        height,
		DepthOrSlices: 1,
		MipLevels:     1,
		Format:        wgpu.TextureFormatBGRA8Unorm,
		RenderWindow:  true,
	}}
}

// fakeRenderSystem records every call so tests can assert on ordering.
type fakeRenderSystem struct {
	events      []string
	passes      []*PassContext
	transitions [][]ResourceTransition
	live        map[Texture]bool
	failPass    error
}

func newFakeRenderSystem() *fakeRenderSystem {
	return &fakeRenderSystem{live: map[Texture]bool{}}
}

func (rs *fakeRenderSystem) CreateTexture(desc TextureDescriptor) (Texture, error) {
	tex := &fakeTexture{desc: desc}
	rs.live[tex] = true
	return tex, nil
}

func (rs *fakeRenderSystem) DestroyTexture(tex Texture) {
	delete(rs.live, tex)
}

func (rs *fakeRenderSystem) CreateBuffer(desc BufferDescriptor) (Buffer, error) {
	return &fakeBuffer{desc: desc}, nil
}

func (rs *fakeRenderSystem) DestroyBuffer(Buffer) {}

func (rs *fakeRenderSystem) BeginFrameOnce() error {
	rs.events = append(rs.events, "begin")
	return nil
}

func (rs *fakeRenderSystem) EndFrameOnce() error {
	rs.events = append(rs.events, "end")
	return nil
}

func (rs *fakeRenderSystem) ExecuteResourceTransitions(transitions []ResourceTransition) {
	rs.transitions = append(rs.transitions, transitions)
}

func (rs *fakeRenderSystem) ExecutePass(ctx *PassContext) error {
	rs.events = append(rs.events, fmt.Sprintf("%s:%s", ctx.Node.AliasStr(), ctx.Pass.Type()))
	rs.passes = append(rs.passes, ctx)
	return rs.failPass
}

// passEvents returns the recorded events without frame markers.
func (rs *fakeRenderSystem) passEvents() []string {
	var out []string
	for _, e := range rs.events {
		if e != "begin" && e != "end" {
			out = append(out, e)
		}
	}
	return out
}

type fakeSceneManager struct {
	lights     []light.Light
	cameras    map[common.IdString]camera.Camera
	castersBox math32.Box3
	boxQueries int
}

func newFakeSceneManager(lights ...light.Light) *fakeSceneManager {
	return &fakeSceneManager{
		lights:     lights,
		cameras:    map[common.IdString]camera.Camera{},
		castersBox: math32.B3(-10, -10, -10, 10, 10, 10),
	}
}

func (sm *fakeSceneManager) Lights() []light.Light { return sm.lights }

func (sm *fakeSceneManager) CreateCamera(name string) camera.Camera {
	cam := camera.NewCamera(name)
	sm.cameras[common.NewIdString(name)] = cam
	return cam
}

func (sm *fakeSceneManager) DestroyCamera(cam camera.Camera) {
	delete(sm.cameras, common.NewIdString(cam.Name()))
}

func (sm *fakeSceneManager) FindCamera(name common.IdString) camera.Camera {
	return sm.cameras[name]
}

func (sm *fakeSceneManager) CastersBox(camera.Camera, uint32, uint8, uint8) math32.Box3 {
	sm.boxQueries++
	return sm.castersBox
}

func newTestManager(lights ...light.Light) (*Manager, *fakeRenderSystem, *fakeSceneManager) {
	rs := newFakeRenderSystem()
	sm := newFakeSceneManager(lights...)
	return NewManager(rs, sm), rs, sm
}

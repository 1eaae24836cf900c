package compositor

// ResourceLayout is the state a GPU resource must be in for a given use.
type ResourceLayout uint8

const (
	ResourceLayoutUndefined ResourceLayout = iota
	ResourceLayoutTexture
	ResourceLayoutRenderTarget
	ResourceLayoutRenderTargetReadOnly
	ResourceLayoutUav
	ResourceLayoutCopySrc
	ResourceLayoutCopyDst
	ResourceLayoutMipmapGen
	ResourceLayoutPresentReady
)

func (l ResourceLayout) String() string {
	switch l {
	case ResourceLayoutTexture:
		return "Texture"
	case ResourceLayoutRenderTarget:
		return "RenderTarget"
	case ResourceLayoutRenderTargetReadOnly:
		return "RenderTargetReadOnly"
	case ResourceLayoutUav:
		return "Uav"
	case ResourceLayoutCopySrc:
		return "CopySrc"
	case ResourceLayoutCopyDst:
		return "CopyDst"
	case ResourceLayoutMipmapGen:
		return "MipmapGen"
	case ResourceLayoutPresentReady:
		return "PresentReady"
	}
	return "Undefined"
}

// ResourceAccess is how a pass touches a resource.
type ResourceAccess uint8

const (
	AccessUndefined ResourceAccess = 0
	AccessRead      ResourceAccess = 1 << 0
	AccessWrite     ResourceAccess = 1 << 1
	AccessReadWrite                = AccessRead | AccessWrite
)

// Writes reports whether the access includes writing.
func (a ResourceAccess) Writes() bool {
	return a&AccessWrite != 0
}

// ResourceUse is one resource a pass reads or writes, and the layout it needs it in.
type ResourceUse struct {
	Resource GpuResource
	Layout   ResourceLayout
	Access   ResourceAccess
}

// ResourceStatus is the tracked layout and last access of a resource.
type ResourceStatus struct {
	Layout ResourceLayout
	Access ResourceAccess
}

// ResourceTransition is a barrier moving a resource between layouts or separating two accesses.
type ResourceTransition struct {
	Resource  GpuResource
	OldLayout ResourceLayout
	NewLayout ResourceLayout
	OldAccess ResourceAccess
	NewAccess ResourceAccess
}

// ResourceStatusMap tracks the status of every resource touched by a workspace.
type ResourceStatusMap map[GpuResource]ResourceStatus

// needsBarrier reports whether moving from prev to use is a hazard.
// Render target and sampling layouts are ordered by the API, so reuse in the same layout is free.
// Every other layout needs a barrier whenever either side writes (RAW, WAW and WAR).
func needsBarrier(prev ResourceStatus, use ResourceUse) bool {
	if prev.Layout != use.Layout {
		return true
	}
	switch use.Layout {
	case ResourceLayoutRenderTarget, ResourceLayoutRenderTargetReadOnly, ResourceLayoutTexture:
		return false
	}
	return prev.Access.Writes() || use.Access.Writes()
}

// barrierSolver walks resource uses in execution order and emits the transitions between them.
type barrierSolver struct {
	status     ResourceStatusMap
	uavsAccess map[GpuResource]ResourceAccess
}

func newBarrierSolver(initial ResourceStatusMap) *barrierSolver {
	s := &barrierSolver{
		status:     make(ResourceStatusMap, len(initial)),
		uavsAccess: map[GpuResource]ResourceAccess{},
	}
	for res, st := range initial {
		s.status[res] = st
	}
	return s
}

// resolve records uses and returns the transitions required before them.
func (s *barrierSolver) resolve(uses []ResourceUse) []ResourceTransition {
	var transitions []ResourceTransition
	for _, use := range uses {
		if use.Resource == nil {
			continue
		}
		prev := s.status[use.Resource]
		if needsBarrier(prev, use) {
			transitions = append(transitions, ResourceTransition{
				Resource:  use.Resource,
				OldLayout: prev.Layout,
				NewLayout: use.Layout,
				OldAccess: prev.Access,
				NewAccess: use.Access,
			})
			s.status[use.Resource] = ResourceStatus{Layout: use.Layout, Access: use.Access}
		} else {
			s.status[use.Resource] = ResourceStatus{Layout: use.Layout, Access: prev.Access | use.Access}
		}
		if use.Layout == ResourceLayoutUav {
			s.uavsAccess[use.Resource] |= use.Access
		}
	}
	return transitions
}

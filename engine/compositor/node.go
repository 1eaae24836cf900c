package compositor

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/camera"
)

// Node is a live instance of a NodeDef inside a workspace.
type Node struct {
	def        *NodeDef
	alias      common.IdString
	aliasStr   string
	workspace  *Workspace
	shadowNode *ShadowNode

	enabled       bool
	inTextures    []Texture
	localTextures []Texture
	inBuffers     []Buffer
	localBuffers  []Buffer
	passes        []Pass
}

func newNode(alias common.IdString, aliasStr string, def *NodeDef, ws *Workspace) (*Node, error) {
	n := &Node{
		def:        def,
		alias:      alias,
		aliasStr:   aliasStr,
		workspace:  ws,
		enabled:    def.startEnabled,
		inTextures: make([]Texture, def.NumInputChannels()),
		inBuffers:  make([]Buffer, def.NumInputBufferChannels()),
	}
	if err := n.createLocalResources(); err != nil {
		n.destroy()
		return nil, err
	}
	return n, nil
}

func (n *Node) createLocalResources() error {
	rs := n.workspace.renderSystem
	final := n.workspace.finalTarget()
	for _, texDef := range n.def.localTextureDefs {
		desc, err := texDef.Descriptor(final, n.resourceLabel(texDef.nameStr))
		if err != nil {
			return err
		}
		tex, err := rs.CreateTexture(desc)
		if err != nil {
			return fmt.Errorf("node %q texture %q: %w", n.aliasStr, texDef.nameStr, err)
		}
		n.localTextures = append(n.localTextures, tex)
	}
	for _, bufDef := range n.def.localBufferDefs {
		buf, err := rs.CreateBuffer(bufDef.Descriptor(n.resourceLabel(bufDef.nameStr)))
		if err != nil {
			return fmt.Errorf("node %q buffer %q: %w", n.aliasStr, bufDef.nameStr, err)
		}
		n.localBuffers = append(n.localBuffers, buf)
	}
	return nil
}

func (n *Node) resourceLabel(name string) string {
	return fmt.Sprintf("%s/%s/%s", n.workspace.id, n.aliasStr, name)
}

// Alias returns the name the node is instanced under.
func (n *Node) Alias() common.IdString {
	return n.alias
}

// AliasStr returns the alias as it was declared.
func (n *Node) AliasStr() string {
	return n.aliasStr
}

// Definition returns the definition the node was instanced from.
func (n *Node) Definition() *NodeDef {
	return n.def
}

// Workspace returns the workspace that owns the node.
func (n *Node) Workspace() *Workspace {
	return n.workspace
}

// Enabled reports whether the node executes.
func (n *Node) Enabled() bool {
	return n.enabled
}

// SetEnabled enables or disables the node. Disabled nodes do not forward their outputs, so the
// workspace must be reconnected with ReconnectAllNodes for the change to reach downstream nodes.
func (n *Node) SetEnabled(enabled bool) {
	n.enabled = enabled
}

// AreAllInputsConnected reports whether every input channel has a texture and every input
// buffer channel has a buffer.
func (n *Node) AreAllInputsConnected() bool {
	for _, tex := range n.inTextures {
		if tex == nil {
			return false
		}
	}
	for _, buf := range n.inBuffers {
		if buf == nil {
			return false
		}
	}
	return true
}

// InputChannel returns the texture connected to input channel idx, nil if unconnected.
func (n *Node) InputChannel(idx int) Texture {
	if idx < 0 || idx >= len(n.inTextures) {
		return nil
	}
	return n.inTextures[idx]
}

// OutputChannel returns the texture exposed on output channel idx.
func (n *Node) OutputChannel(idx int) (Texture, error) {
	if idx < 0 || idx >= len(n.def.outChannels) {
		return nil, fmt.Errorf("%w: node %q has no output channel %d", common.ErrInvalidParams, n.aliasStr, idx)
	}
	return n.resolveTexture(n.def.outChannels[idx])
}

// LocalTextures returns the textures the node owns, in declaration order.
func (n *Node) LocalTextures() []Texture {
	return n.localTextures
}

// Passes returns the node's passes in execution order. Empty until the node is connected.
func (n *Node) Passes() []Pass {
	return n.passes
}

// ConnectTo feeds output channel outChannel into input channel inChannel of dst.
func (n *Node) ConnectTo(outChannel int, dst *Node, inChannel int) error {
	tex, err := n.OutputChannel(outChannel)
	if err != nil {
		return err
	}
	return dst.ConnectExternalTexture(tex, inChannel)
}

// ConnectExternalTexture feeds tex into input channel inChannel.
func (n *Node) ConnectExternalTexture(tex Texture, inChannel int) error {
	if inChannel < 0 || inChannel >= len(n.inTextures) {
		return fmt.Errorf("%w: node %q has %d input channels, cannot connect channel %d",
			common.ErrInvalidParams, n.aliasStr, len(n.inTextures), inChannel)
	}
	n.inTextures[inChannel] = tex
	return nil
}

// ConnectBufferTo feeds output buffer channel outChannel into input buffer channel inChannel of dst.
func (n *Node) ConnectBufferTo(outChannel int, dst *Node, inChannel int) error {
	if outChannel < 0 || outChannel >= len(n.def.outBufferChannels) {
		return fmt.Errorf("%w: node %q has no output buffer channel %d", common.ErrInvalidParams, n.aliasStr, outChannel)
	}
	buf, err := n.resolveBuffer(n.def.outBufferChannels[outChannel])
	if err != nil {
		return err
	}
	return dst.ConnectExternalBuffer(buf, inChannel)
}

// ConnectExternalBuffer feeds buf into input buffer channel inChannel.
func (n *Node) ConnectExternalBuffer(buf Buffer, inChannel int) error {
	if inChannel < 0 || inChannel >= len(n.inBuffers) {
		return fmt.Errorf("%w: node %q has %d input buffer channels, cannot connect channel %d",
			common.ErrInvalidParams, n.aliasStr, len(n.inBuffers), inChannel)
	}
	n.inBuffers[inChannel] = buf
	return nil
}

// resolveTexture finds the texture a name refers to: a local texture, an input channel, or a
// workspace global. Unconnected inputs resolve to nil without error.
func (n *Node) resolveTexture(name common.IdString) (Texture, error) {
	idx, src, err := n.def.TextureSource(name)
	if err == nil {
		switch src {
		case TextureSourceLocal:
			return n.localTextures[idx], nil
		case TextureSourceInput:
			return n.inTextures[idx], nil
		}
	}
	if tex, ok := n.workspace.globalTextures[name]; ok {
		return tex, nil
	}
	return nil, fmt.Errorf("%w: node %q references texture %s, which is not local, an input, or a global",
		common.ErrItemNotFound, n.aliasStr, name)
}

func (n *Node) resolveBuffer(name common.IdString) (Buffer, error) {
	idx, src, err := n.def.BufferSource(name)
	if err == nil {
		switch src {
		case TextureSourceLocal:
			return n.localBuffers[idx], nil
		case TextureSourceInput:
			return n.inBuffers[idx], nil
		}
	}
	if buf, ok := n.workspace.globalBuffers[name]; ok {
		return buf, nil
	}
	return nil, fmt.Errorf("%w: node %q references buffer %s, which is not local, an input, or a global",
		common.ErrItemNotFound, n.aliasStr, name)
}

// notifyCleared forgets every connection and pass.
func (n *Node) notifyCleared() {
	clear(n.inTextures)
	clear(n.inBuffers)
	n.passes = nil
}

// createPasses instances every pass of every target. All inputs must be connected.
func (n *Node) createPasses() error {
	n.passes = nil
	for _, target := range n.def.targets {
		tex, err := n.resolveTexture(target.renderTargetName)
		if err != nil {
			return err
		}
		if tex == nil {
			return fmt.Errorf("%w: node %q renders into unconnected input %q", errIncomplete, n.aliasStr, target.renderTargetNameStr)
		}
		view := RenderTargetView{Texture: tex, Slice: target.slice}
		for _, passDef := range target.passes {
			pass, err := n.newPass(passDef, view)
			if err != nil {
				return err
			}
			n.passes = append(n.passes, pass)
		}
	}
	return nil
}

func (n *Node) newPass(passDef PassDef, target RenderTargetView) (Pass, error) {
	base := newPassBase(passDef, n, target)
	switch def := passDef.(type) {
	case *ClearPassDef:
		return &ClearPass{passBase: base, def: def}, nil

	case *QuadPassDef:
		pass := &QuadPass{passBase: base, def: def}
		for _, in := range def.Inputs {
			tex, err := n.resolveTexture(in.TextureName)
			if err != nil {
				return nil, err
			}
			pass.inputs = append(pass.inputs, tex)
		}
		cam, err := n.resolveCamera(def.CameraName)
		if err != nil {
			return nil, err
		}
		pass.camera = cam
		return pass, nil

	case *ScenePassDef:
		pass := &ScenePass{passBase: base, def: def}
		if n.shadowNode != nil {
			return pass, nil
		}
		cam, err := n.resolveCamera(def.CameraName)
		if err != nil {
			return nil, err
		}
		pass.camera = cam
		if !def.LodCameraName.IsBlank() {
			if pass.lodCamera, err = n.resolveCamera(def.LodCameraName); err != nil {
				return nil, err
			}
		} else if !def.CameraName.IsBlank() {
			pass.lodCamera = cam
		}
		if !def.ShadowNode.IsBlank() {
			sn, err := n.workspace.findOrCreateShadowNode(def.ShadowNode)
			if err != nil {
				return nil, err
			}
			pass.shadowNode = sn
			pass.updateShadowNode = def.ShadowNodeRecalculation != ShadowNodeReuse
		}
		return pass, nil

	case *ComputePassDef:
		pass := &ComputePass{passBase: base, def: def}
		for _, src := range def.TextureSources {
			tex, err := n.resolveTexture(src.TextureName)
			if err != nil {
				return nil, err
			}
			pass.textures = append(pass.textures, tex)
		}
		for _, src := range def.BufferSources {
			buf, err := n.resolveBuffer(src.BufferName)
			if err != nil {
				return nil, err
			}
			pass.buffers = append(pass.buffers, buf)
		}
		return pass, nil

	case *MipmapPassDef:
		return &MipmapPass{passBase: base, def: def}, nil

	case *DepthCopyPassDef:
		src, err := n.resolveTexture(def.SourceTextureName)
		if err != nil {
			return nil, err
		}
		return &DepthCopyPass{passBase: base, def: def, source: src}, nil
	}
	panic(fmt.Sprintf("compositor: unknown pass definition %T", passDef))
}

func (n *Node) resolveCamera(name common.IdString) (camera.Camera, error) {
	if name.IsBlank() {
		return n.workspace.defaultCamera, nil
	}
	cam := n.workspace.sceneManager.FindCamera(name)
	if cam == nil {
		return nil, fmt.Errorf("%w: node %q references camera %s", common.ErrItemNotFound, n.aliasStr, name)
	}
	return cam, nil
}

func (n *Node) update(lodCamera camera.Camera) error {
	for _, pass := range n.passes {
		if err := pass.execute(lodCamera); err != nil {
			return err
		}
	}
	return nil
}

func (n *Node) destroy() {
	rs := n.workspace.renderSystem
	for _, tex := range n.localTextures {
		rs.DestroyTexture(tex)
	}
	for _, buf := range n.localBuffers {
		rs.DestroyBuffer(buf)
	}
	n.localTextures = nil
	n.localBuffers = nil
	n.notifyCleared()
}

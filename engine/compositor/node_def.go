package compositor

import (
	"fmt"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// NodeDef is the blueprint of a compositor node: its textures, the targets and passes that render
// into them, and which textures it exposes on its output channels.
type NodeDef struct {
	TextureDefinitionBase

	name    common.IdString
	nameStr string

	targets           []*TargetDef
	outChannels       []common.IdString
	outBufferChannels []common.IdString
	startEnabled      bool
	validated         bool
}

func newNodeDef(name string) *NodeDef {
	return &NodeDef{
		TextureDefinitionBase: newTextureDefinitionBase(TextureSourceLocal),
		name:                  common.NewIdString(name),
		nameStr:               name,
		startEnabled:          true,
	}
}

// Name returns the definition's name.
func (d *NodeDef) Name() common.IdString {
	return d.name
}

// NameStr returns the definition's name as it was declared.
func (d *NodeDef) NameStr() string {
	return d.nameStr
}

// AddTargetPass appends a target rendering into the texture called renderTargetName.
//
// Parameters:
//   - renderTargetName: a local, input, or global texture name
//   - slice: the array slice or cubemap face to render into
//
// Returns:
//   - *TargetDef: the new target, to be filled with passes
func (d *NodeDef) AddTargetPass(renderTargetName string, slice uint32) *TargetDef {
	t := &TargetDef{
		renderTargetName:    common.NewIdString(renderTargetName),
		renderTargetNameStr: renderTargetName,
		slice:               slice,
	}
	d.targets = append(d.targets, t)
	d.validated = false
	return t
}

// TargetPasses returns the targets in execution order.
func (d *NodeDef) TargetPasses() []*TargetDef {
	return d.targets
}

// NumTargetPasses returns the number of targets.
func (d *NodeDef) NumTargetPasses() int {
	return len(d.targets)
}

// MapOutputChannel exposes textureName on output channel outChannel.
//
// Parameters:
//   - outChannel: the output channel
//   - textureName: a local or input texture name
//
// Returns:
//   - error: ErrInvalidParams for a negative channel
func (d *NodeDef) MapOutputChannel(outChannel int, textureName string) error {
	if outChannel < 0 {
		return fmt.Errorf("%w: output channel %d of node %q", common.ErrInvalidParams, outChannel, d.nameStr)
	}
	for len(d.outChannels) <= outChannel {
		d.outChannels = append(d.outChannels, common.BlankIdString)
	}
	d.outChannels[outChannel] = common.NewIdString(textureName)
	d.validated = false
	return nil
}

// MapOutputBufferChannel exposes bufferName on output buffer channel outChannel.
func (d *NodeDef) MapOutputBufferChannel(outChannel int, bufferName string) error {
	if outChannel < 0 {
		return fmt.Errorf("%w: output buffer channel %d of node %q", common.ErrInvalidParams, outChannel, d.nameStr)
	}
	for len(d.outBufferChannels) <= outChannel {
		d.outBufferChannels = append(d.outBufferChannels, common.BlankIdString)
	}
	d.outBufferChannels[outChannel] = common.NewIdString(bufferName)
	d.validated = false
	return nil
}

// OutputChannels returns the texture name mapped to each output channel.
func (d *NodeDef) OutputChannels() []common.IdString {
	return d.outChannels
}

// NumOutputChannels returns the number of output channels.
func (d *NodeDef) NumOutputChannels() int {
	return len(d.outChannels)
}

// NumOutputBufferChannels returns the number of output buffer channels.
func (d *NodeDef) NumOutputBufferChannels() int {
	return len(d.outBufferChannels)
}

// SetStartEnabled sets whether instances of this node start enabled.
func (d *NodeDef) SetStartEnabled(enabled bool) {
	d.startEnabled = enabled
}

// StartEnabled reports whether instances of this node start enabled.
func (d *NodeDef) StartEnabled() bool {
	return d.startEnabled
}

// ValidateAndFinish checks that every output channel is mapped to a local or input texture.
// It is called by the Manager before any workspace is instantiated.
//
// Returns:
//   - error: ErrInvalidParams if an output channel is unmapped or maps to an unknown name
func (d *NodeDef) ValidateAndFinish() error {
	if err := d.validateChannels(d.outChannels, d.textureSources, "texture"); err != nil {
		return err
	}
	if err := d.validateChannels(d.outBufferChannels, d.bufferSources, "buffer"); err != nil {
		return err
	}
	d.validated = true
	return nil
}

func (d *NodeDef) validateChannels(channels []common.IdString, sources map[common.IdString]sourceSlot, kind string) error {
	for i, name := range channels {
		if name.IsBlank() {
			return fmt.Errorf("%w: node %q leaves output %s channel %d unmapped", common.ErrInvalidParams, d.nameStr, kind, i)
		}
		slot, ok := sources[name]
		if !ok || slot.source == TextureSourceGlobal {
			return fmt.Errorf("%w: node %q maps output %s channel %d to %s, which is neither local nor an input",
				common.ErrInvalidParams, d.nameStr, kind, i, name)
		}
	}
	return nil
}

package compositor

import (
	"fmt"
	"sort"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
)

// TextureSource says where a texture name used by a node resolves to.
type TextureSource int

const (
	// TextureSourceInput is an input channel, filled by a route from another node or an external texture.
	TextureSourceInput TextureSource = iota
	// TextureSourceLocal is a texture the node creates and owns.
	TextureSourceLocal
	// TextureSourceGlobal is a texture the workspace creates and every node can reference by name.
	TextureSourceGlobal
)

func (s TextureSource) String() string {
	switch s {
	case TextureSourceInput:
		return "input"
	case TextureSourceLocal:
		return "local"
	case TextureSourceGlobal:
		return "global"
	}
	return fmt.Sprintf("TextureSource(%d)", int(s))
}

// TextureDefinition describes a texture a node or workspace creates when instantiated.
// A zero Width or Height makes that dimension relative to the workspace's final target,
// scaled by WidthFactor or HeightFactor.
type TextureDefinition struct {
	name    common.IdString
	nameStr string

	Type          TextureType
	Width         uint32
	Height        uint32
	WidthFactor   float32
	HeightFactor  float32
	DepthOrSlices uint32
	// NumMipmaps is the number of mip levels. Zero means a single level.
	NumMipmaps uint32
	// Format is the pixel format. TextureFormatUndefined takes the final target's format.
	Format          wgpu.TextureFormat
	Fsaa            uint32
	DepthBufferPool uint16
	Uav             bool
	AutomipmapsUav  bool
}

func newTextureDefinition(name string) *TextureDefinition {
	return &TextureDefinition{
		name:          common.NewIdString(name),
		nameStr:       name,
		Type:          TextureType2D,
		WidthFactor:   1,
		HeightFactor:  1,
		DepthOrSlices: 1,
		Fsaa:          1,
	}
}

// Name returns the texture's name.
func (t *TextureDefinition) Name() common.IdString {
	return t.name
}

// NameStr returns the texture's name as it was declared.
func (t *TextureDefinition) NameStr() string {
	return t.nameStr
}

// Descriptor resolves the definition into a texture descriptor. final may be nil when
// every size and format is absolute.
func (t *TextureDefinition) Descriptor(final Texture, label string) (TextureDescriptor, error) {
	desc := TextureDescriptor{
		Name:            t.name,
		Label:           label,
		Type:            t.Type,
		Width:           t.Width,
		Height:          t.Height,
		DepthOrSlices:   t.DepthOrSlices,
		MipLevels:       max(t.NumMipmaps, 1),
		Format:          t.Format,
		SampleCount:     max(t.Fsaa, 1),
		DepthBufferPool: t.DepthBufferPool,
		Usage: wgpu.TextureUsageRenderAttachment | wgpu.TextureUsageTextureBinding |
			wgpu.TextureUsageCopySrc | wgpu.TextureUsageCopyDst,
	}
	if t.Uav {
		desc.Usage |= wgpu.TextureUsageStorageBinding
	}
	if t.Type == TextureTypeCube {
		desc.DepthOrSlices = 6
	}

	needsFinal := t.Width == 0 || t.Height == 0 || t.Format == wgpu.TextureFormatUndefined
	if needsFinal {
		if final == nil {
			return desc, fmt.Errorf("%w: texture %q is relative to the final target but there is none", errIncomplete, t.nameStr)
		}
		fd := final.Descriptor()
		if t.Width == 0 {
			desc.Width = max(uint32(float32(fd.Width)*t.WidthFactor), 1)
		}
		if t.Height == 0 {
			desc.Height = max(uint32(float32(fd.Height)*t.HeightFactor), 1)
		}
		if t.Format == wgpu.TextureFormatUndefined {
			desc.Format = fd.Format
		}
	}
	return desc, nil
}

// BufferDefinition describes a UAV buffer a node or workspace creates when instantiated.
type BufferDefinition struct {
	name            common.IdString
	nameStr         string
	NumElements     uint32
	BytesPerElement uint32
}

// Name returns the buffer's name.
func (b *BufferDefinition) Name() common.IdString {
	return b.name
}

// NameStr returns the buffer's name as it was declared.
func (b *BufferDefinition) NameStr() string {
	return b.nameStr
}

// Descriptor resolves the definition into a buffer descriptor.
func (b *BufferDefinition) Descriptor(label string) BufferDescriptor {
	return BufferDescriptor{
		Name:            b.name,
		Label:           label,
		NumElements:     b.NumElements,
		BytesPerElement: b.BytesPerElement,
		Usage:           wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst,
	}
}

type sourceSlot struct {
	index  int
	source TextureSource
}

// TextureDefinitionBase holds the texture and buffer names shared by node and workspace
// definitions, and where each of them resolves to.
type TextureDefinitionBase struct {
	defaultSource TextureSource

	localTextureDefs []*TextureDefinition
	localBufferDefs  []*BufferDefinition
	textureSources   map[common.IdString]sourceSlot
	bufferSources    map[common.IdString]sourceSlot
	names            map[common.IdString]string
}

func newTextureDefinitionBase(defaultSource TextureSource) TextureDefinitionBase {
	return TextureDefinitionBase{
		defaultSource:  defaultSource,
		textureSources: map[common.IdString]sourceSlot{},
		bufferSources:  map[common.IdString]sourceSlot{},
		names:          map[common.IdString]string{},
	}
}

// AddTextureDefinition declares a texture owned by this definition. Node definitions own local
// textures, workspace definitions own global ones.
//
// Parameters:
//   - name: the texture name, unique among this definition's textures and input names
//
// Returns:
//   - *TextureDefinition: the new definition, to be filled in by the caller
//   - error: ErrDuplicateItem if the name is taken
func (b *TextureDefinitionBase) AddTextureDefinition(name string) (*TextureDefinition, error) {
	id := common.NewIdString(name)
	if _, ok := b.textureSources[id]; ok {
		return nil, fmt.Errorf("%w: texture %q", common.ErrDuplicateItem, name)
	}
	def := newTextureDefinition(name)
	b.textureSources[id] = sourceSlot{index: len(b.localTextureDefs), source: b.defaultSource}
	b.localTextureDefs = append(b.localTextureDefs, def)
	b.names[id] = name
	return def, nil
}

// AddTextureSourceName binds a name to an input channel, or declares that name refers to a
// workspace global.
//
// Parameters:
//   - name: the texture name
//   - index: the input channel for TextureSourceInput, ignored for TextureSourceGlobal
//   - source: TextureSourceInput or TextureSourceGlobal
//
// Returns:
//   - error: ErrDuplicateItem if the name is taken, ErrInvalidParams for local sources or
//     inputs on a workspace definition
func (b *TextureDefinitionBase) AddTextureSourceName(name string, index int, source TextureSource) error {
	switch {
	case source == TextureSourceLocal:
		return fmt.Errorf("%w: use AddTextureDefinition to declare local texture %q", common.ErrInvalidParams, name)
	case source == TextureSourceInput && b.defaultSource == TextureSourceGlobal:
		return fmt.Errorf("%w: workspaces have no input channels (texture %q)", common.ErrInvalidParams, name)
	case source == TextureSourceInput && index < 0:
		return fmt.Errorf("%w: negative input channel %d for texture %q", common.ErrInvalidParams, index, name)
	}
	id := common.NewIdString(name)
	if _, ok := b.textureSources[id]; ok {
		return fmt.Errorf("%w: texture %q", common.ErrDuplicateItem, name)
	}
	if source == TextureSourceGlobal {
		index = -1
	}
	b.textureSources[id] = sourceSlot{index: index, source: source}
	b.names[id] = name
	return nil
}

// TextureSource resolves a texture name.
//
// Parameters:
//   - name: the texture name
//
// Returns:
//   - int: the input channel or local index, -1 for globals
//   - TextureSource: where the name resolves to
//   - error: ErrItemNotFound if the name was never declared
func (b *TextureDefinitionBase) TextureSource(name common.IdString) (int, TextureSource, error) {
	slot, ok := b.textureSources[name]
	if !ok {
		return -1, b.defaultSource, fmt.Errorf("%w: texture %s", common.ErrItemNotFound, name)
	}
	return slot.index, slot.source, nil
}

// RemoveTexture forgets a texture name. Removing a local texture shifts the indices of the
// local textures declared after it.
func (b *TextureDefinitionBase) RemoveTexture(name common.IdString) error {
	slot, ok := b.textureSources[name]
	if !ok {
		return fmt.Errorf("%w: texture %s", common.ErrItemNotFound, name)
	}
	delete(b.textureSources, name)
	delete(b.names, name)
	if slot.source != b.defaultSource {
		return nil
	}
	b.localTextureDefs = append(b.localTextureDefs[:slot.index], b.localTextureDefs[slot.index+1:]...)
	for id, s := range b.textureSources {
		if s.source == b.defaultSource && s.index > slot.index {
			s.index--
			b.textureSources[id] = s
		}
	}
	return nil
}

// RenameTexture gives a texture a new name, keeping its source and index.
func (b *TextureDefinitionBase) RenameTexture(oldName common.IdString, newName string) error {
	slot, ok := b.textureSources[oldName]
	if !ok {
		return fmt.Errorf("%w: texture %s", common.ErrItemNotFound, oldName)
	}
	newID := common.NewIdString(newName)
	if _, taken := b.textureSources[newID]; taken {
		return fmt.Errorf("%w: texture %q", common.ErrDuplicateItem, newName)
	}
	delete(b.textureSources, oldName)
	delete(b.names, oldName)
	b.textureSources[newID] = slot
	b.names[newID] = newName
	if slot.source == b.defaultSource {
		def := b.localTextureDefs[slot.index]
		def.name, def.nameStr = newID, newName
	}
	return nil
}

// LocalTextureDefinitions returns the textures owned by this definition, in declaration order.
func (b *TextureDefinitionBase) LocalTextureDefinitions() []*TextureDefinition {
	return b.localTextureDefs
}

// NumInputChannels returns one past the highest input channel any texture name is bound to.
func (b *TextureDefinitionBase) NumInputChannels() int {
	return numChannels(b.textureSources)
}

// InputChannelNames returns the texture names bound to input channels, sorted by channel.
func (b *TextureDefinitionBase) InputChannelNames() []string {
	type named struct {
		channel int
		name    string
	}
	var inputs []named
	for id, s := range b.textureSources {
		if s.source == TextureSourceInput {
			inputs = append(inputs, named{s.index, b.names[id]})
		}
	}
	sort.Slice(inputs, func(i, j int) bool { return inputs[i].channel < inputs[j].channel })
	out := make([]string, len(inputs))
	for i, in := range inputs {
		out[i] = in.name
	}
	return out
}

// AddBufferDefinition declares a UAV buffer owned by this definition.
//
// Parameters:
//   - name: the buffer name
//   - numElements: the element count
//   - bytesPerElement: the element stride
//
// Returns:
//   - *BufferDefinition: the new definition
//   - error: ErrDuplicateItem if the name is taken
func (b *TextureDefinitionBase) AddBufferDefinition(name string, numElements, bytesPerElement uint32) (*BufferDefinition, error) {
	id := common.NewIdString(name)
	if _, ok := b.bufferSources[id]; ok {
		return nil, fmt.Errorf("%w: buffer %q", common.ErrDuplicateItem, name)
	}
	def := &BufferDefinition{name: id, nameStr: name, NumElements: numElements, BytesPerElement: bytesPerElement}
	b.bufferSources[id] = sourceSlot{index: len(b.localBufferDefs), source: b.defaultSource}
	b.localBufferDefs = append(b.localBufferDefs, def)
	return def, nil
}

// AddBufferInput binds a buffer name to an input buffer channel.
func (b *TextureDefinitionBase) AddBufferInput(inChannel int, name string) error {
	if b.defaultSource == TextureSourceGlobal || inChannel < 0 {
		return fmt.Errorf("%w: buffer input %d (%q)", common.ErrInvalidParams, inChannel, name)
	}
	id := common.NewIdString(name)
	if _, ok := b.bufferSources[id]; ok {
		return fmt.Errorf("%w: buffer %q", common.ErrDuplicateItem, name)
	}
	b.bufferSources[id] = sourceSlot{index: inChannel, source: TextureSourceInput}
	return nil
}

// BufferSource resolves a buffer name the way TextureSource resolves texture names.
func (b *TextureDefinitionBase) BufferSource(name common.IdString) (int, TextureSource, error) {
	slot, ok := b.bufferSources[name]
	if !ok {
		return -1, b.defaultSource, fmt.Errorf("%w: buffer %s", common.ErrItemNotFound, name)
	}
	return slot.index, slot.source, nil
}

// LocalBufferDefinitions returns the buffers owned by this definition, in declaration order.
func (b *TextureDefinitionBase) LocalBufferDefinitions() []*BufferDefinition {
	return b.localBufferDefs
}

// NumInputBufferChannels returns one past the highest input buffer channel.
func (b *TextureDefinitionBase) NumInputBufferChannels() int {
	return numChannels(b.bufferSources)
}

func numChannels(sources map[common.IdString]sourceSlot) int {
	n := 0
	for _, s := range sources {
		if s.source == TextureSourceInput && s.index+1 > n {
			n = s.index + 1
		}
	}
	return n
}

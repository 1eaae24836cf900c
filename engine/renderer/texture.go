package renderer

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
)

// viewKey selects a cached view of a texture. full views cover every slice and mip with the
// texture's natural dimension; the others cover one slice of one mip as a 2D view.
type viewKey struct {
	slice uint32
	mip   uint32
	full  bool
}

// gpuTexture is the compositor.Texture the renderer hands out.
type gpuTexture struct {
	desc  compositor.TextureDescriptor
	tex   *wgpu.Texture
	views map[viewKey]*wgpu.TextureView
}

var _ compositor.Texture = &gpuTexture{}

func (t *gpuTexture) Name() common.IdString {
	return t.desc.Name
}

func (t *gpuTexture) Descriptor() compositor.TextureDescriptor {
	return t.desc
}

// mipSize returns the size of a mip level, never smaller than 1x1.
func (t *gpuTexture) mipSize(mip uint32) (uint32, uint32) {
	return max(t.desc.Width>>mip, 1), max(t.desc.Height>>mip, 1)
}

func (t *gpuTexture) allViews() []*wgpu.TextureView {
	views := make([]*wgpu.TextureView, 0, len(t.views))
	for _, v := range t.views {
		views = append(views, v)
	}
	return views
}

// gpuBuffer is the compositor.Buffer the renderer hands out.
type gpuBuffer struct {
	desc compositor.BufferDescriptor
	buf  *wgpu.Buffer
}

var _ compositor.Buffer = &gpuBuffer{}

func (b *gpuBuffer) Name() common.IdString {
	return b.desc.Name
}

func (b *gpuBuffer) Descriptor() compositor.BufferDescriptor {
	return b.desc
}

// depthKey identifies a pooled depth buffer. Render targets of the same size, sample count and
// pool share one.
type depthKey struct {
	pool          uint16
	width, height uint32
	samples       uint32
}

type depthBuffer struct {
	tex  *wgpu.Texture
	view *wgpu.TextureView
}

// depthBufferFormat is the format of every pooled depth buffer.
const depthBufferFormat = wgpu.TextureFormatDepth24PlusStencil8

func textureDimension(t compositor.TextureType) wgpu.TextureDimension {
	if t == compositor.TextureType3D {
		return wgpu.TextureDimension3D
	}
	return wgpu.TextureDimension2D
}

func viewDimension(t compositor.TextureType) wgpu.TextureViewDimension {
	switch t {
	case compositor.TextureType2DArray:
		return wgpu.TextureViewDimension2DArray
	case compositor.TextureTypeCube:
		return wgpu.TextureViewDimensionCube
	case compositor.TextureType3D:
		return wgpu.TextureViewDimension3D
	default:
		return wgpu.TextureViewDimension2D
	}
}

// viewDescriptor builds the wgpu view descriptor for a cached view key.
func viewDescriptor(desc compositor.TextureDescriptor, key viewKey) *wgpu.TextureViewDescriptor {
	if key.full {
		layers := max(desc.DepthOrSlices, 1)
		if desc.Type == compositor.TextureType3D {
			layers = 1
		}
		return &wgpu.TextureViewDescriptor{
			Label:           desc.Label,
			Format:          desc.Format,
			Dimension:       viewDimension(desc.Type),
			BaseMipLevel:    0,
			MipLevelCount:   max(desc.MipLevels, 1),
			BaseArrayLayer:  0,
			ArrayLayerCount: layers,
			Aspect:          wgpu.TextureAspectAll,
		}
	}
	if desc.Type == compositor.TextureType3D {
		return &wgpu.TextureViewDescriptor{
			Label:           fmt.Sprintf("%s mip %d", desc.Label, key.mip),
			Format:          desc.Format,
			Dimension:       wgpu.TextureViewDimension3D,
			BaseMipLevel:    key.mip,
			MipLevelCount:   1,
			ArrayLayerCount: 1,
			Aspect:          wgpu.TextureAspectAll,
		}
	}
	return &wgpu.TextureViewDescriptor{
		Label:           fmt.Sprintf("%s slice %d mip %d", desc.Label, key.slice, key.mip),
		Format:          desc.Format,
		Dimension:       wgpu.TextureViewDimension2D,
		BaseMipLevel:    key.mip,
		MipLevelCount:   1,
		BaseArrayLayer:  key.slice,
		ArrayLayerCount: 1,
		Aspect:          wgpu.TextureAspectAll,
	}
}

func isDepthFormat(f wgpu.TextureFormat) bool {
	switch f {
	case wgpu.TextureFormatDepth16Unorm, wgpu.TextureFormatDepth24Plus, wgpu.TextureFormatDepth24PlusStencil8,
		wgpu.TextureFormatDepth32Float, wgpu.TextureFormatDepth32FloatStencil8, wgpu.TextureFormatStencil8:
		return true
	}
	return false
}

func hasStencil(f wgpu.TextureFormat) bool {
	switch f {
	case wgpu.TextureFormatDepth24PlusStencil8, wgpu.TextureFormatDepth32FloatStencil8, wgpu.TextureFormatStencil8:
		return true
	}
	return false
}

// encodeTexels converts RGBA8 pixels into the texel layout of format.
//
// Parameters:
//   - format: the destination texture format
//   - rgba: the source pixels, 4 bytes per texel
//
// Returns:
//   - []byte: the encoded texels
//   - uint32: the bytes per texel of format
//   - error: ErrInvalidParams for formats RGBA8 data cannot be uploaded to
func encodeTexels(format wgpu.TextureFormat, rgba []byte) ([]byte, uint32, error) {
	switch format {
	case wgpu.TextureFormatRGBA8Unorm, wgpu.TextureFormatRGBA8UnormSrgb:
		return rgba, 4, nil

	case wgpu.TextureFormatBGRA8Unorm, wgpu.TextureFormatBGRA8UnormSrgb:
		out := make([]byte, len(rgba))
		for i := 0; i+3 < len(rgba); i += 4 {
			out[i], out[i+1], out[i+2], out[i+3] = rgba[i+2], rgba[i+1], rgba[i], rgba[i+3]
		}
		return out, 4, nil

	case wgpu.TextureFormatRGBA16Float:
		out := make([]byte, len(rgba)*2)
		for i, c := range rgba {
			binary.LittleEndian.PutUint16(out[i*2:], unormToHalf(c))
		}
		return out, 8, nil

	case wgpu.TextureFormatRGBA32Float:
		out := make([]byte, len(rgba)*4)
		for i, c := range rgba {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(c)/255))
		}
		return out, 16, nil
	}
	return nil, 0, fmt.Errorf("%w: cannot upload RGBA8 pixels to format %v", common.ErrInvalidParams, format)
}

// unormToHalf converts an 8-bit unorm channel to IEEE 754 binary16 bits, rounding to nearest.
// Every non-zero input is a normal half.
func unormToHalf(c uint8) uint16 {
	if c == 0 {
		return 0
	}
	bits := math.Float32bits(float32(c) / 255)
	exp := (bits>>23)&0xff - 127 + 15
	h := uint16(exp<<10 | (bits>>13)&0x3ff)
	if bits&0x1000 != 0 {
		h++
	}
	return h
}

package cubemap

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"

	"cogentcore.org/core/math32"
)

// GPUCubemapProbeSource is the canonical WGSL definition of the CubemapProbe and
// CubemapBlendParams structs.
//
//go:embed assets/cubemap_probe.wgsl
var GPUCubemapProbeSource string

// GPUCubemapProbeData is what a shader needs to reproject one probe.
// Size: 96 bytes (std430 / WGSL aligned).
type GPUCubemapProbeData struct {
	Row0CenterX     [4]float32 // offset  0: inverse orientation row 0, w = area center x
	Row1CenterY     [4]float32 // offset 16: inverse orientation row 1, w = area center y
	Row2CenterZ     [4]float32 // offset 32: inverse orientation row 2, w = area center z
	HalfSizeWeight  [4]float32 // offset 48: probe shape half size, w = blend weight
	CameraPosNdf    [4]float32 // offset 64: capture position in probe space, w = NDF
	ShapeCenterMips [4]float32 // offset 80: probe shape center in probe space, w = mip count
}

// Size returns the size of the GPUCubemapProbeData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (96)
func (g *GPUCubemapProbeData) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 96-byte buffer ready for GPU upload
func (g *GPUCubemapProbeData) Marshal() []byte {
	buf := make([]byte, 96)
	g.marshalInto(buf)
	return buf
}

func (g *GPUCubemapProbeData) marshalInto(buf []byte) {
	rows := [6][4]float32{g.Row0CenterX, g.Row1CenterY, g.Row2CenterZ, g.HalfSizeWeight, g.CameraPosNdf, g.ShapeCenterMips}
	for r, row := range rows {
		for i, v := range row {
			off := r*16 + i*4
			binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v))
		}
	}
}

// GPUBlendParams is bound to each face of the cubemap blend.
// Size: 416 bytes (std430 / WGSL aligned).
type GPUBlendParams struct {
	Probes    [MaxCubeProbes]GPUCubemapProbeData // offset   0: slot 0 holds the dominant probe
	CameraPos [3]float32                         // offset 384: blend camera position
	NumProbes uint32                             // offset 396: number of collected probes
	Face      uint32                             // offset 400: cubemap face being blended
	_pad      [3]uint32                          // offset 404: padding to 416-byte alignment
}

// Size returns the size of the GPUBlendParams struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (416)
func (g *GPUBlendParams) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 416-byte buffer ready for GPU upload
func (g *GPUBlendParams) Marshal() []byte {
	buf := make([]byte, 416)
	for i := range g.Probes {
		g.Probes[i].marshalInto(buf[i*96 : (i+1)*96])
	}
	for i, v := range g.CameraPos {
		binary.LittleEndian.PutUint32(buf[384+i*4:388+i*4], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[396:400], g.NumProbes)
	binary.LittleEndian.PutUint32(buf[400:404], g.Face)
	return buf
}

// GPUCopyFaceParams is bound to each face of a cubemap copy.
// Size: 16 bytes (std430 / WGSL aligned).
type GPUCopyFaceParams struct {
	Face uint32    // offset  0: cubemap face being written
	Mip  float32   // offset  4: source mip sampled
	_pad [2]uint32 // offset  8: padding to 16-byte alignment
}

// Marshal serializes the struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 16-byte buffer ready for GPU upload
func (g *GPUCopyFaceParams) Marshal() []byte {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], g.Face)
	binary.LittleEndian.PutUint32(buf[4:8], math.Float32bits(g.Mip))
	return buf
}

func vec4(v math32.Vector3, w float32) [4]float32 {
	return [4]float32{v.X, v.Y, v.Z, w}
}

// probeData builds the GPU data of a probe with the given blend weight and NDF.
func probeData(p *CubemapProbe, weight, ndf float32) GPUCubemapProbeData {
	// Columns of the inverse rotation; rows are read across them.
	cx := math32.Vec3(1, 0, 0).MulQuat(p.invOrientation)
	cy := math32.Vec3(0, 1, 0).MulQuat(p.invOrientation)
	cz := math32.Vec3(0, 0, 1).MulQuat(p.invOrientation)
	center := p.area.Center()

	return GPUCubemapProbeData{
		Row0CenterX:     [4]float32{cx.X, cy.X, cz.X, center.X},
		Row1CenterY:     [4]float32{cx.Y, cy.Y, cz.Y, center.Y},
		Row2CenterZ:     [4]float32{cx.Z, cy.Z, cz.Z, center.Z},
		HalfSizeWeight:  vec4(p.probeShape.Size().MulScalar(0.5), weight),
		CameraPosNdf:    vec4(p.toLocal(p.cameraPos), ndf),
		ShapeCenterMips: vec4(p.toLocal(p.probeShape.Center()), float32(p.numMips)),
	}
}

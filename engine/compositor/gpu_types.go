package compositor

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUShadowMapSource is the canonical WGSL definition of the ShadowMap struct.
// Matches GPUShadowMapData layout exactly (144 bytes, std430 aligned).
//
//go:embed assets/shadow_map.wgsl
var GPUShadowMapSource string

// GPUShadowMapData is what a scene pass binds per shadow map to sample it.
// Size: 144 bytes (std430 / WGSL aligned).
type GPUShadowMapData struct {
	ViewProj   [16]float32 // offset   0: shadow camera view-projection
	UvOffset   [2]float32  // offset  64: map origin inside the atlas
	UvLength   [2]float32  // offset  72: map size inside the atlas
	PssmSplits [4]float32  // offset  80: far distance of each split (PSSM only)
	PssmBlends [4]float32  // offset  96: blend start of each split (PSSM only)
	PssmFade   float32     // offset 112: fade start of the last split (PSSM only)
	NumSplits  uint32      // offset 116: 1 for non PSSM maps
	LightType  uint32      // offset 120: 0 = directional, 1 = point, 2 = spot
	ArrayIdx   uint32      // offset 124: atlas array slice
	DepthRange [2]float32  // offset 128: shadow camera near and far
	_pad       [2]float32  // offset 136: padding to 144-byte alignment
}

// Size returns the size of the GPUShadowMapData struct in bytes.
//
// Returns:
//   - int: the struct size in bytes (144)
func (g *GPUShadowMapData) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 144-byte buffer ready for GPU upload
func (g *GPUShadowMapData) Marshal() []byte {
	buf := make([]byte, 144)
	putF32 := func(off int, v float32) { binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v)) }
	for i, v := range g.ViewProj {
		putF32(i*4, v)
	}
	putF32(64, g.UvOffset[0])
	putF32(68, g.UvOffset[1])
	putF32(72, g.UvLength[0])
	putF32(76, g.UvLength[1])
	for i := range 4 {
		putF32(80+i*4, g.PssmSplits[i])
		putF32(96+i*4, g.PssmBlends[i])
	}
	putF32(112, g.PssmFade)
	binary.LittleEndian.PutUint32(buf[116:120], g.NumSplits)
	binary.LittleEndian.PutUint32(buf[120:124], g.LightType)
	binary.LittleEndian.PutUint32(buf[124:128], g.ArrayIdx)
	putF32(128, g.DepthRange[0])
	putF32(132, g.DepthRange[1])
	return buf
}

// ShadowMapData collects the GPU data of shadowMapIdx.
//
// Parameters:
//   - shadowMapIdx: the shadow map index
//
// Returns:
//   - GPUShadowMapData: the data to bind
//   - bool: false if the shadow map is inactive
func (sn *ShadowNode) ShadowMapData(shadowMapIdx int) (GPUShadowMapData, bool) {
	if !sn.IsShadowMapIdxActive(shadowMapIdx) {
		return GPUShadowMapData{}, false
	}
	texDef := sn.def.shadowMapTexDefs[shadowMapIdx]
	smc := sn.shadowMapCameras[shadowMapIdx]
	data := GPUShadowMapData{
		ViewProj:   smc.Camera.ViewProjectionMatrix(),
		UvOffset:   [2]float32{texDef.UvOffset.X, texDef.UvOffset.Y},
		UvLength:   [2]float32{texDef.UvLength.X, texDef.UvLength.Y},
		NumSplits:  1,
		LightType:  uint32(sn.castingLights[texDef.Light].Light.Type()),
		ArrayIdx:   uint32(texDef.ArrayIdx),
		DepthRange: [2]float32{smc.MinDistance, smc.MaxDistance},
	}
	if pssm := sn.pssmSetup(shadowMapIdx); pssm != nil {
		points := pssm.SplitPoints()
		data.NumSplits = pssm.NumSplits()
		for i := 1; i < len(points) && i <= 4; i++ {
			data.PssmSplits[i-1] = points[i]
		}
		copy(data.PssmBlends[:], pssm.SplitBlends())
		data.PssmFade = pssm.SplitFade()
	}
	return data, true
}

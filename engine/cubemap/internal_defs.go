package cubemap

import (
	"fmt"

	"cogentcore.org/core/base/errors"

	"github.com/Carmen-Shannon/oxy-compositor/common"
	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
)

const (
	// CopyMaterial is the quad material copying one cubemap face into another cubemap.
	CopyMaterial = "PCC/CopyCubemap"
	// BlendMaterial is the quad material reprojecting and blending the probes into one face.
	BlendMaterial = "PCC/BlendCubemap"
)

// TextureWriter is implemented by render systems that can upload pixels into a texture. The
// blank probe is cleared to black through it when available.
type TextureWriter interface {
	// WriteTexture uploads data into every layer of tex.
	//
	// Parameters:
	//   - tex: the destination texture
	//   - data: the pixels, one RGBA8 image per layer
	//
	// Returns:
	//   - error: an error if the upload failed
	WriteTexture(tex compositor.Texture, data common.TextureStagingData) error
}

// internalDefs are the node and workspace definitions behind the copy and blend workspaces.
// Copy externals are [dst, src]; blend externals are [dst, probe0..probe3].
type internalDefs struct {
	copyNode       common.IdString
	copyWorkspace  common.IdString
	blendNode      common.IdString
	blendWorkspace common.IdString
}

func createInternalDefs(m *compositor.Manager, prefix string) (internalDefs, error) {
	var defs internalDefs

	copyNodeName := prefix + "/CopyNode"
	copyNode, err := m.AddNodeDefinition(copyNodeName)
	if err != nil {
		return defs, err
	}
	defs.copyNode = copyNode.Name()
	if err := copyNode.AddTextureSourceName("dst", 0, compositor.TextureSourceInput); err != nil {
		return defs, err
	}
	if err := copyNode.AddTextureSourceName("src", 1, compositor.TextureSourceInput); err != nil {
		return defs, err
	}
	for face := range uint32(6) {
		quad := copyNode.AddTargetPass("dst", face).AddQuadPass()
		quad.MaterialName = CopyMaterial
		quad.Identifier = face
		quad.AddQuadTextureSource(0, "src")
	}
	copyNode.AddTargetPass("dst", 0).AddMipmapPass()

	copyWs, err := m.AddWorkspaceDefinition(prefix + "/Copy")
	if err != nil {
		return defs, err
	}
	defs.copyWorkspace = copyWs.Name()
	for ch := range 2 {
		if err := copyWs.ConnectExternal(ch, copyNodeName, ch); err != nil {
			return defs, err
		}
	}

	blendNodeName := prefix + "/BlendNode"
	blendNode, err := m.AddNodeDefinition(blendNodeName)
	if err != nil {
		return defs, err
	}
	defs.blendNode = blendNode.Name()
	if err := blendNode.AddTextureSourceName("dst", 0, compositor.TextureSourceInput); err != nil {
		return defs, err
	}
	for i := range MaxCubeProbes {
		if err := blendNode.AddTextureSourceName(fmt.Sprintf("probe%d", i), i+1, compositor.TextureSourceInput); err != nil {
			return defs, err
		}
	}
	for face := range uint32(6) {
		quad := blendNode.AddTargetPass("dst", face).AddQuadPass()
		quad.MaterialName = BlendMaterial
		quad.Identifier = face
		for i := range MaxCubeProbes {
			quad.AddQuadTextureSource(uint32(i), fmt.Sprintf("probe%d", i))
		}
	}
	blendNode.AddTargetPass("dst", 0).AddMipmapPass()

	blendWs, err := m.AddWorkspaceDefinition(prefix + "/Blend")
	if err != nil {
		return defs, err
	}
	defs.blendWorkspace = blendWs.Name()
	for ch := range MaxCubeProbes + 1 {
		if err := blendWs.ConnectExternal(ch, blendNodeName, ch); err != nil {
			return defs, err
		}
	}
	return defs, nil
}

// remove deletes the definitions; their workspaces must be gone.
func (d internalDefs) remove(m *compositor.Manager) error {
	var errs []error
	for _, name := range []common.IdString{d.copyWorkspace, d.blendWorkspace} {
		if !name.IsBlank() && m.HasWorkspaceDefinition(name) {
			errs = append(errs, m.RemoveWorkspaceDefinition(name))
		}
	}
	for _, name := range []common.IdString{d.copyNode, d.blendNode} {
		if !name.IsBlank() && m.HasNodeDefinition(name) {
			errs = append(errs, m.RemoveNodeDefinition(name))
		}
	}
	return errors.Join(errs...)
}

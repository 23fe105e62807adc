// view.go holds the per-frame view uniform block bound at descriptor set 1 for
// every pass: camera matrices, eye position, lighting toggles, and time.
// Layout must match the view block in the shared shader headers (std140).
package renderer

import (
	"github.com/Carmen-Shannon/forge-go/common"
)

// ViewUniformData is the uniform block behind the fixed view descriptor set.
type ViewUniformData struct {
	// View and Projection are the camera matrices; InverseView and
	// InverseProjection are their inverses for reconstruction in screen-space
	// passes and ray generation.
	View              [16]float32
	Projection        [16]float32
	InverseView       [16]float32
	InverseProjection [16]float32

	// PrevFrameViewProjection feeds temporal passes.
	PrevFrameViewProjection [16]float32

	// EyePos is the camera position in world space.
	EyePos [3]float32

	// Time is the elapsed time in seconds.
	Time float32

	// SunDir is the normalized directional light vector.
	SunDir [3]float32

	// NumLights is the populated count of the packed lights table.
	NumLights uint32

	// Feature toggles consumed by the domain shaders.
	ShadowsEnabled   uint32
	SSAOEnabled      uint32
	IBLEnabled       uint32
	RaytracingMode   uint32
	TotalSamples     uint32
	NumSamplesPerSec uint32

	Padding [2]uint32
}

// SetCamera fills the camera matrices and derived inverses from a view and
// projection matrix, keeping the previous view-projection for temporal use.
//
// Parameters:
//   - view: the world-to-view matrix (column-major)
//   - projection: the view-to-clip matrix (column-major)
func (v *ViewUniformData) SetCamera(view, projection [16]float32) {
	var prevViewProj [16]float32
	common.Mul4(prevViewProj[:], v.Projection[:], v.View[:])
	v.PrevFrameViewProjection = prevViewProj

	v.View = view
	v.Projection = projection
	common.Invert4(v.InverseView[:], view[:])
	common.Invert4(v.InverseProjection[:], projection[:])
}

// Bytes returns the raw uniform block for buffer upload.
//
// Returns:
//   - []byte: the block's memory as bytes
func (v *ViewUniformData) Bytes() []byte {
	return common.StructToBytes(v)
}

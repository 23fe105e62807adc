// package pipeline provides the pipeline descriptor, the deduplicating
// comparison the graph's pipeline cache is built on, and compilation of
// graphics, compute, and ray tracing pipelines from GLSL source paths.
package pipeline

import (
	"unsafe"

	"github.com/Carmen-Shannon/forge-go/common"
	vk "github.com/goki/vulkan"
)

// Desc is the immutable input that determines a pipeline: shader source paths
// per stage, vertex input, fixed-function state, and attachment formats.
// Descriptors compare by value through Equal; the graph's pipeline cache
// dedupes on it.
type Desc struct {
	// VertexPath and FragmentPath are set for graphics pipelines.
	VertexPath   string
	FragmentPath string

	// ComputePath is set for compute pipelines.
	ComputePath string

	// RaygenPath, MissPath, and HitPath are set for ray tracing pipelines.
	RaygenPath string
	MissPath   string
	HitPath    string

	// VertexInputBindings and VertexInputAttributes describe the vertex fetch
	// layout; both empty means vertex pulling through the bindless buffers.
	VertexInputBindings   []vk.VertexInputBindingDescription
	VertexInputAttributes []vk.VertexInputAttributeDescription

	// ColorAttachmentFormats and DepthStencilFormat are patched in by the pass
	// builder once the pass's writes are known, before compilation happens in
	// prepare. They are derived state and take no part in Equal.
	ColorAttachmentFormats []vk.Format
	DepthStencilFormat     vk.Format

	// Topology is the primitive topology; defaults to triangle lists.
	Topology vk.PrimitiveTopology

	// CullMode and FrontFace configure the rasterizer.
	CullMode  vk.CullModeFlagBits
	FrontFace vk.FrontFace

	// DepthTestEnabled and DepthWriteEnabled configure the depth state.
	DepthTestEnabled  bool
	DepthWriteEnabled bool
}

// Equal reports whether two descriptors describe the same pipeline. Attachment
// formats are excluded: they are derived from the pass's writes each frame and
// would defeat deduplication across frames.
//
// Parameters:
//   - other: the descriptor to compare against
//
// Returns:
//   - bool: true if the descriptors are interchangeable
func (d Desc) Equal(other Desc) bool {
	if d.VertexPath != other.VertexPath ||
		d.FragmentPath != other.FragmentPath ||
		d.ComputePath != other.ComputePath ||
		d.RaygenPath != other.RaygenPath ||
		d.MissPath != other.MissPath ||
		d.HitPath != other.HitPath ||
		d.Topology != other.Topology ||
		d.CullMode != other.CullMode ||
		d.FrontFace != other.FrontFace ||
		d.DepthTestEnabled != other.DepthTestEnabled ||
		d.DepthWriteEnabled != other.DepthWriteEnabled {
		return false
	}
	if len(d.VertexInputBindings) != len(other.VertexInputBindings) ||
		len(d.VertexInputAttributes) != len(other.VertexInputAttributes) {
		return false
	}
	for i := range d.VertexInputBindings {
		if d.VertexInputBindings[i] != other.VertexInputBindings[i] {
			return false
		}
	}
	for i := range d.VertexInputAttributes {
		if d.VertexInputAttributes[i] != other.VertexInputAttributes[i] {
			return false
		}
	}
	return true
}

// ReferencesShader reports whether any stage of the descriptor uses the given
// source path. The pipeline cache uses it to find pipelines affected by a
// changed file during hot reload.
//
// Parameters:
//   - path: the shader source path, compared by suffix so watcher paths with
//     differing roots still match
//
// Returns:
//   - bool: true if some stage compiles from path
func (d Desc) ReferencesShader(path string) bool {
	for _, stage := range []string{d.VertexPath, d.FragmentPath, d.ComputePath, d.RaygenPath, d.MissPath, d.HitPath} {
		if stage == "" {
			continue
		}
		if stage == path || hasPathSuffix(path, stage) || hasPathSuffix(stage, path) {
			return true
		}
	}
	return false
}

func hasPathSuffix(path, suffix string) bool {
	if len(suffix) == 0 || len(path) < len(suffix) {
		return false
	}
	if path[len(path)-len(suffix):] != suffix {
		return false
	}
	return len(path) == len(suffix) || path[len(path)-len(suffix)-1] == '/'
}

// DescOption is a functional option used to configure a Desc during construction.
type DescOption func(*Desc)

// NewDesc creates a pipeline descriptor with triangle-list topology, back-face
// culling disabled, counter-clockwise front faces, and depth test + write
// enabled, then applies the provided options.
//
// Parameters:
//   - opts: a variadic list of DescOption functions to configure the descriptor
//
// Returns:
//   - Desc: the configured descriptor
func NewDesc(opts ...DescOption) Desc {
	d := Desc{
		Topology:          vk.PrimitiveTopologyTriangleList,
		CullMode:          vk.CullModeNone,
		FrontFace:         vk.FrontFaceCounterClockwise,
		DepthTestEnabled:  true,
		DepthWriteEnabled: true,
	}
	for _, opt := range opts {
		opt(&d)
	}
	return d
}

// WithVertexShader sets the vertex stage source path.
//
// Parameters:
//   - path: the .vert source path
//
// Returns:
//   - DescOption: a function that sets the vertex path
func WithVertexShader(path string) DescOption {
	return func(d *Desc) {
		d.VertexPath = path
	}
}

// WithFragmentShader sets the fragment stage source path.
//
// Parameters:
//   - path: the .frag source path
//
// Returns:
//   - DescOption: a function that sets the fragment path
func WithFragmentShader(path string) DescOption {
	return func(d *Desc) {
		d.FragmentPath = path
	}
}

// WithComputeShader sets the compute stage source path, marking the descriptor
// as a compute pipeline.
//
// Parameters:
//   - path: the .comp source path
//
// Returns:
//   - DescOption: a function that sets the compute path
func WithComputeShader(path string) DescOption {
	return func(d *Desc) {
		d.ComputePath = path
	}
}

// WithRaytracingShaders sets the raygen/miss/closest-hit triple, marking the
// descriptor as a ray tracing pipeline.
//
// Parameters:
//   - raygen: the .rgen source path
//   - miss: the .rmiss source path
//   - hit: the .rchit source path
//
// Returns:
//   - DescOption: a function that sets the ray tracing stage paths
func WithRaytracingShaders(raygen, miss, hit string) DescOption {
	return func(d *Desc) {
		d.RaygenPath = raygen
		d.MissPath = miss
		d.HitPath = hit
	}
}

// WithTopology sets the primitive topology.
//
// Parameters:
//   - topology: the primitive topology
//
// Returns:
//   - DescOption: a function that sets the topology
func WithTopology(topology vk.PrimitiveTopology) DescOption {
	return func(d *Desc) {
		d.Topology = topology
	}
}

// WithCullMode sets the rasterizer cull mode.
//
// Parameters:
//   - mode: the cull mode
//
// Returns:
//   - DescOption: a function that sets the cull mode
func WithCullMode(mode vk.CullModeFlagBits) DescOption {
	return func(d *Desc) {
		d.CullMode = mode
	}
}

// WithFrontFace sets the front-face winding order.
//
// Parameters:
//   - frontFace: the winding order
//
// Returns:
//   - DescOption: a function that sets the front face
func WithFrontFace(frontFace vk.FrontFace) DescOption {
	return func(d *Desc) {
		d.FrontFace = frontFace
	}
}

// WithDepthTest sets the depth test and write enables.
//
// Parameters:
//   - test: whether depth testing is enabled
//   - write: whether depth writes are enabled
//
// Returns:
//   - DescOption: a function that sets the depth state
func WithDepthTest(test, write bool) DescOption {
	return func(d *Desc) {
		d.DepthTestEnabled = test
		d.DepthWriteEnabled = write
	}
}

// WithDefaultVertexInput sets the interleaved vertex-fetch layout matching
// common.GPUVertex. Pipelines without this option use vertex pulling.
//
// Returns:
//   - DescOption: a function that sets the vertex input layout
func WithDefaultVertexInput() DescOption {
	return func(d *Desc) {
		var v common.GPUVertex
		d.VertexInputBindings = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    uint32(unsafe.Sizeof(v)),
			InputRate: vk.VertexInputRateVertex,
		}}
		d.VertexInputAttributes = []vk.VertexInputAttributeDescription{
			{Location: 0, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(v.Pos))},
			{Location: 1, Binding: 0, Format: vk.FormatR32g32b32Sfloat, Offset: uint32(unsafe.Offsetof(v.Normal))},
			{Location: 2, Binding: 0, Format: vk.FormatR32g32Sfloat, Offset: uint32(unsafe.Offsetof(v.UV))},
			{Location: 3, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: uint32(unsafe.Offsetof(v.Color))},
			{Location: 4, Binding: 0, Format: vk.FormatR32g32b32a32Sfloat, Offset: uint32(unsafe.Offsetof(v.Tangent))},
		}
	}
}

// package synch provides the access-scope taxonomy used by the frame graph to
// track how a resource was last used, and synthesizes Vulkan pipeline barriers
// from (previous, next) access pairs. The taxonomy collapses the full Vulkan
// stage/access/layout triple into a single enum so that callers declare intent
// ("this pass samples the texture") instead of raw masks.
package synch

import (
	vk "github.com/goki/vulkan"
)

// AccessType describes the most recent (or upcoming) way a resource is used.
type AccessType int

const (
	// AccessNothing indicates the resource has not been used yet. Images in this
	// state are in the undefined layout.
	AccessNothing AccessType = iota

	// AccessAnyShaderReadSampledImage indicates a read as a sampled image
	// (combined image sampler) from any shader stage.
	AccessAnyShaderReadSampledImage

	// AccessAnyShaderReadOther indicates any other read from any shader stage:
	// storage buffers, storage images, uniform texel buffers, acceleration structures.
	AccessAnyShaderReadOther

	// AccessAnyShaderWrite indicates a write from any shader stage (storage image
	// or storage buffer).
	AccessAnyShaderWrite

	// AccessColorAttachmentWrite indicates a write through color attachment output.
	AccessColorAttachmentWrite

	// AccessDepthStencilAttachmentWrite indicates a write through the depth/stencil
	// attachment during fragment tests.
	AccessDepthStencilAttachmentWrite

	// AccessTransferRead indicates the source side of a transfer operation.
	AccessTransferRead

	// AccessTransferWrite indicates the destination side of a transfer operation.
	AccessTransferWrite

	// AccessAccelerationStructureBuildWrite indicates a write performed by an
	// acceleration structure build.
	AccessAccelerationStructureBuildWrite

	// AccessAccelerationStructureBuildRead indicates a read performed by an
	// acceleration structure build (BLAS inputs, instance buffers).
	AccessAccelerationStructureBuildRead

	// AccessHostWrite indicates a write from mapped host memory.
	AccessHostWrite

	// AccessPresent indicates the image is handed to (or received back from) the
	// presentation engine.
	AccessPresent
)

// String returns the access type name used in logs and panic messages.
func (a AccessType) String() string {
	switch a {
	case AccessNothing:
		return "Nothing"
	case AccessAnyShaderReadSampledImage:
		return "AnyShaderReadSampledImage"
	case AccessAnyShaderReadOther:
		return "AnyShaderReadOther"
	case AccessAnyShaderWrite:
		return "AnyShaderWrite"
	case AccessColorAttachmentWrite:
		return "ColorAttachmentWrite"
	case AccessDepthStencilAttachmentWrite:
		return "DepthStencilAttachmentWrite"
	case AccessTransferRead:
		return "TransferRead"
	case AccessTransferWrite:
		return "TransferWrite"
	case AccessAccelerationStructureBuildWrite:
		return "AccelerationStructureBuildWrite"
	case AccessAccelerationStructureBuildRead:
		return "AccelerationStructureBuildRead"
	case AccessHostWrite:
		return "HostWrite"
	case AccessPresent:
		return "Present"
	default:
		return "Unknown"
	}
}

// IsWrite reports whether the access type performs any write. Read-after-read
// transitions between identical access types need no barrier; everything
// downstream of a write does.
func (a AccessType) IsWrite() bool {
	switch a {
	case AccessAnyShaderWrite,
		AccessColorAttachmentWrite,
		AccessDepthStencilAttachmentWrite,
		AccessTransferWrite,
		AccessAccelerationStructureBuildWrite,
		AccessHostWrite:
		return true
	default:
		return false
	}
}

// accessInfo is the Vulkan stage/access/layout triple an AccessType expands to.
type accessInfo struct {
	stageMask  vk.PipelineStageFlags
	accessMask vk.AccessFlags
	layout     vk.ImageLayout
}

// anyShaderStages covers every programmable stage, including ray tracing when
// the extension is enabled. Unsupported stage bits in a mask are ignored by
// drivers only when the corresponding feature is enabled, so the ray tracing
// bit is added by the device wrapper at emission time instead.
const anyShaderStages = vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit |
	vk.PipelineStageFragmentShaderBit |
	vk.PipelineStageComputeShaderBit)

// infoFor expands an AccessType to its stage/access/layout triple.
// Panics for access types with no mapping, per the fail-fast executor contract.
func infoFor(access AccessType) accessInfo {
	switch access {
	case AccessNothing:
		return accessInfo{0, 0, vk.ImageLayoutUndefined}
	case AccessAnyShaderReadSampledImage:
		return accessInfo{
			stageMask:  anyShaderStages,
			accessMask: vk.AccessFlags(vk.AccessShaderReadBit),
			layout:     vk.ImageLayoutShaderReadOnlyOptimal,
		}
	case AccessAnyShaderReadOther:
		return accessInfo{
			stageMask:  anyShaderStages,
			accessMask: vk.AccessFlags(vk.AccessShaderReadBit),
			layout:     vk.ImageLayoutGeneral,
		}
	case AccessAnyShaderWrite:
		return accessInfo{
			stageMask:  anyShaderStages,
			accessMask: vk.AccessFlags(vk.AccessShaderWriteBit),
			layout:     vk.ImageLayoutGeneral,
		}
	case AccessColorAttachmentWrite:
		return accessInfo{
			stageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			accessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			layout:     vk.ImageLayoutColorAttachmentOptimal,
		}
	case AccessDepthStencilAttachmentWrite:
		return accessInfo{
			stageMask: vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit |
				vk.PipelineStageLateFragmentTestsBit),
			accessMask: vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	case AccessTransferRead:
		return accessInfo{
			stageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			accessMask: vk.AccessFlags(vk.AccessTransferReadBit),
			layout:     vk.ImageLayoutTransferSrcOptimal,
		}
	case AccessTransferWrite:
		return accessInfo{
			stageMask:  vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			accessMask: vk.AccessFlags(vk.AccessTransferWriteBit),
			layout:     vk.ImageLayoutTransferDstOptimal,
		}
	case AccessAccelerationStructureBuildWrite:
		return accessInfo{
			stageMask:  vk.PipelineStageFlags(vk.PipelineStageAccelerationStructureBuildBit),
			accessMask: vk.AccessFlags(vk.AccessAccelerationStructureWriteBit),
			layout:     vk.ImageLayoutGeneral,
		}
	case AccessAccelerationStructureBuildRead:
		return accessInfo{
			stageMask:  vk.PipelineStageFlags(vk.PipelineStageAccelerationStructureBuildBit),
			accessMask: vk.AccessFlags(vk.AccessAccelerationStructureReadBit),
			layout:     vk.ImageLayoutGeneral,
		}
	case AccessHostWrite:
		return accessInfo{
			stageMask:  vk.PipelineStageFlags(vk.PipelineStageHostBit),
			accessMask: vk.AccessFlags(vk.AccessHostWriteBit),
			layout:     vk.ImageLayoutGeneral,
		}
	case AccessPresent:
		return accessInfo{0, 0, vk.ImageLayoutPresentSrc}
	default:
		panic("synch: no access info mapping for access type " + access.String())
	}
}

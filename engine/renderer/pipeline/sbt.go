// sbt.go builds ray tracing pipelines and their shader binding tables: one
// buffer holding the raygen, miss, and hit group handles at aligned offsets,
// exposed as the strided address regions CmdTraceRays consumes.
package pipeline

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/forge-go/engine/buffer"
	"github.com/Carmen-Shannon/forge-go/engine/device"
	vk "github.com/goki/vulkan"
)

// SBT is the shader binding table of a ray tracing pipeline: the backing
// buffer plus the four regions handed to CmdTraceRays.
type SBT struct {
	// Raygen, Miss, Hit, and Callable are the strided device address regions.
	// Callable is empty; the engine's ray pipelines use no callable shaders.
	Raygen   vk.StridedDeviceAddressRegion
	Miss     vk.StridedDeviceAddressRegion
	Hit      vk.StridedDeviceAddressRegion
	Callable vk.StridedDeviceAddressRegion

	backing buffer.Buffer
}

func (s *SBT) destroy(dev device.Device) {
	s.backing.Destroy(dev)
}

// groupCount is raygen + miss + hit.
const groupCount = 3

// createRaytracingPipeline builds the ray pipeline from the raygen/miss/hit
// modules (in that order) and its shader binding table.
func createRaytracingPipeline(dev device.Device, modules []vk.ShaderModule, layout vk.PipelineLayout) (vk.Pipeline, *SBT) {
	if !dev.RaytracingSupported() {
		panic("pipeline: ray tracing pipeline requested without ray tracing support")
	}

	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageRaygenBit,
			Module: modules[0],
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageMissBit,
			Module: modules[1],
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageClosestHitBit,
			Module: modules[2],
			PName:  "main\x00",
		},
	}

	groups := []vk.RayTracingShaderGroupCreateInfo{
		{
			SType:              vk.StructureTypeRayTracingShaderGroupCreateInfo,
			Type:               vk.RayTracingShaderGroupTypeGeneral,
			GeneralShader:      0,
			ClosestHitShader:   vk.ShaderUnused,
			AnyHitShader:       vk.ShaderUnused,
			IntersectionShader: vk.ShaderUnused,
		},
		{
			SType:              vk.StructureTypeRayTracingShaderGroupCreateInfo,
			Type:               vk.RayTracingShaderGroupTypeGeneral,
			GeneralShader:      1,
			ClosestHitShader:   vk.ShaderUnused,
			AnyHitShader:       vk.ShaderUnused,
			IntersectionShader: vk.ShaderUnused,
		},
		{
			SType:              vk.StructureTypeRayTracingShaderGroupCreateInfo,
			Type:               vk.RayTracingShaderGroupTypeTrianglesHitGroup,
			GeneralShader:      vk.ShaderUnused,
			ClosestHitShader:   2,
			AnyHitShader:       vk.ShaderUnused,
			IntersectionShader: vk.ShaderUnused,
		},
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateRayTracingPipelines(dev.Handle(),
		vk.DeferredOperation(vk.NullHandle), vk.PipelineCache(vk.NullHandle), 1,
		[]vk.RayTracingPipelineCreateInfo{{
			SType:                        vk.StructureTypeRayTracingPipelineCreateInfo,
			StageCount:                   uint32(len(stages)),
			PStages:                      stages,
			GroupCount:                   uint32(len(groups)),
			PGroups:                      groups,
			MaxPipelineRayRecursionDepth: 1,
			Layout:                       layout,
		}}, nil, pipelines)
	if ret != vk.Success {
		panic(fmt.Sprintf("pipeline: ray tracing pipeline creation failed: %v", vk.Error(ret)))
	}
	handle := pipelines[0]

	return handle, buildSBT(dev, handle)
}

// buildSBT queries the group handles and packs them into a device-addressable
// buffer at base-aligned offsets.
func buildSBT(dev device.Device, handle vk.Pipeline) *SBT {
	handleSize, baseAlignment := raytracingProperties(dev)
	alignedSize := alignUp(handleSize, baseAlignment)

	handles := make([]byte, handleSize*groupCount)
	ret := vk.GetRayTracingShaderGroupHandles(dev.Handle(), handle, 0, groupCount,
		uint(len(handles)), unsafe.Pointer(&handles[0]))
	if ret != vk.Success {
		panic(fmt.Sprintf("pipeline: fetching shader group handles failed: %v", vk.Error(ret)))
	}

	// One aligned slot per group: raygen, miss, hit.
	packed := make([]byte, alignedSize*groupCount)
	for group := uint32(0); group < groupCount; group++ {
		copy(packed[group*alignedSize:], handles[group*handleSize:(group+1)*handleSize])
	}

	backing := buffer.NewBuffer(dev, "sbt", uint64(len(packed)),
		vk.BufferUsageFlags(vk.BufferUsageShaderBindingTableBit|vk.BufferUsageShaderDeviceAddressBit),
		device.MemoryLocationCPUToGPU)
	backing.UpdateMemory(dev, packed)

	base := backing.DeviceAddress(dev)
	region := func(group uint32) vk.StridedDeviceAddressRegion {
		return vk.StridedDeviceAddressRegion{
			DeviceAddress: base + vk.DeviceAddress(group*alignedSize),
			Stride:        vk.DeviceSize(alignedSize),
			Size:          vk.DeviceSize(alignedSize),
		}
	}

	return &SBT{
		Raygen:  region(0),
		Miss:    region(1),
		Hit:     region(2),
		backing: backing,
	}
}

// raytracingProperties queries the group handle size and base alignment from
// the physical device.
func raytracingProperties(dev device.Device) (handleSize, baseAlignment uint32) {
	rtProps := vk.PhysicalDeviceRayTracingPipelineProperties{
		SType: vk.StructureTypePhysicalDeviceRayTracingPipelineProperties,
	}
	props := vk.PhysicalDeviceProperties2{
		SType: vk.StructureTypePhysicalDeviceProperties2,
		PNext: unsafe.Pointer(&rtProps),
	}
	vk.GetPhysicalDeviceProperties2(dev.PhysicalDevice(), &props)
	rtProps.Deref()
	return rtProps.ShaderGroupHandleSize, rtProps.ShaderGroupBaseAlignment
}

func alignUp(value, alignment uint32) uint32 {
	return (value + alignment - 1) &^ (alignment - 1)
}

// bindless.go builds the engine-wide bindless descriptor set: one large
// combined-image-sampler array for every scene texture, two storage-buffer
// arrays for all vertex and index buffers, and three single storage-buffer
// slots for the packed material, mesh, and light tables. Shaders address the
// arrays with integer indices carried in the packed records.
package renderer

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/forge-go/engine/device"
	vk "github.com/goki/vulkan"
)

const (
	// MaxBindlessTextures is the capacity of the scene texture array.
	MaxBindlessTextures = 512 * 1024

	// MaxBindlessBuffers is the capacity of each geometry buffer array.
	MaxBindlessBuffers = 16 * 1024
)

// Bindless set binding indices; fixed by the shared shader headers.
const (
	BindlessBindingTextures      = 0
	BindlessBindingVertexBuffers = 1
	BindlessBindingIndexBuffers  = 2
	BindlessBindingMaterials     = 3
	BindlessBindingMeshes        = 4
	BindlessBindingLights        = 5
)

// createBindlessDescriptorSetLayout builds the six-binding layout. The array
// bindings are partially bound and update-after-bind; the capacity is a fixed
// upper bound because the variable-count flag is only legal on a set's last
// binding and the packed tables sit above the arrays.
func createBindlessDescriptorSetLayout(dev device.Device) vk.DescriptorSetLayout {
	bindings := []vk.DescriptorSetLayoutBinding{
		{
			Binding:         BindlessBindingTextures,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: MaxBindlessTextures,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		},
		{
			Binding:         BindlessBindingVertexBuffers,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: MaxBindlessBuffers,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		},
		{
			Binding:         BindlessBindingIndexBuffers,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: MaxBindlessBuffers,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		},
		{
			Binding:         BindlessBindingMaterials,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		},
		{
			Binding:         BindlessBindingMeshes,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		},
		{
			Binding:         BindlessBindingLights,
			DescriptorType:  vk.DescriptorTypeStorageBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		},
	}

	arrayFlags := vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit |
		vk.DescriptorBindingUpdateAfterBindBit)
	bindingFlags := []vk.DescriptorBindingFlags{
		arrayFlags, arrayFlags, arrayFlags, 0, 0, 0,
	}

	flagsInfo := vk.DescriptorSetLayoutBindingFlagsCreateInfo{
		SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
		BindingCount:  uint32(len(bindingFlags)),
		PBindingFlags: bindingFlags,
	}

	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(dev.Handle(), &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		PNext:        unsafe.Pointer(&flagsInfo),
		Flags:        vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit),
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}, nil, &layout)
	if ret != vk.Success {
		panic(fmt.Sprintf("renderer: bindless layout creation failed: %v", vk.Error(ret)))
	}
	return layout
}

// createBindlessDescriptorSet allocates the single bindless set from an
// update-after-bind pool sized for the full arrays.
func createBindlessDescriptorSet(dev device.Device, layout vk.DescriptorSetLayout) (vk.DescriptorSet, vk.DescriptorPool) {
	poolSizes := []vk.DescriptorPoolSize{
		{
			Type:            vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: MaxBindlessTextures,
		},
		{
			Type:            vk.DescriptorTypeStorageBuffer,
			DescriptorCount: MaxBindlessBuffers*2 + 3,
		},
	}

	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(dev.Handle(), &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit),
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}, nil, &pool)
	if ret != vk.Success {
		panic(fmt.Sprintf("renderer: bindless pool creation failed: %v", vk.Error(ret)))
	}

	var set vk.DescriptorSet
	ret = vk.AllocateDescriptorSets(dev.Handle(), &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}, &set)
	if ret != vk.Success {
		panic(fmt.Sprintf("renderer: bindless set allocation failed: %v", vk.Error(ret)))
	}

	return set, pool
}

// package descriptor provides the descriptor-set helper: a pool sized from a
// reflected binding map, one allocated set, and name-addressed writes that
// resolve (set, binding) locations through the reflection instead of hardcoded
// indices.
package descriptor

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/forge-go/engine/buffer"
	"github.com/Carmen-Shannon/forge-go/engine/device"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/shader"
	"github.com/Carmen-Shannon/forge-go/engine/texture"
	vk "github.com/goki/vulkan"
)

// descriptorSet is the implementation of the DescriptorSet interface.
type descriptorSet struct {
	handle     vk.DescriptorSet
	pool       vk.DescriptorPool
	bindingMap shader.BindingMap
}

// DescriptorSet is one allocated descriptor set with its backing pool and the
// binding map used to resolve writes by name. Unknown names are a hard error
// with the offending name in the message.
type DescriptorSet interface {
	// Handle returns the vk.DescriptorSet for binding.
	//
	// Returns:
	//   - vk.DescriptorSet: the set handle
	Handle() vk.DescriptorSet

	// WriteUniformBuffer writes a uniform-buffer descriptor at the named binding.
	//
	// Parameters:
	//   - dev: the device the set was allocated on
	//   - name: the binding name from the shader source
	//   - buf: the uniform buffer
	WriteUniformBuffer(dev device.Device, name string, buf buffer.Buffer)

	// WriteStorageBuffer writes a storage-buffer descriptor at the named binding.
	//
	// Parameters:
	//   - dev: the device the set was allocated on
	//   - name: the binding name from the shader source
	//   - buf: the storage buffer
	WriteStorageBuffer(dev device.Device, name string, buf buffer.Buffer)

	// WriteCombinedImage writes a combined-image-sampler descriptor at the named binding.
	//
	// Parameters:
	//   - dev: the device the set was allocated on
	//   - name: the binding name from the shader source
	//   - tex: the texture to sample
	WriteCombinedImage(dev device.Device, name string, tex texture.Texture)

	// WriteStorageImage writes a storage-image descriptor at the named binding.
	//
	// Parameters:
	//   - dev: the device the set was allocated on
	//   - name: the binding name from the shader source
	//   - tex: the texture backing the storage image
	WriteStorageImage(dev device.Device, name string, tex texture.Texture)

	// WriteTextureAt writes a texture at an explicit binding index, bypassing the
	// name lookup. The graph uses this to fill per-pass read-input sets in read
	// declaration order.
	//
	// Parameters:
	//   - dev: the device the set was allocated on
	//   - binding: the binding index within the set
	//   - tex: the texture to write
	//   - storage: true to write a storage-image descriptor, false for combined image sampler
	WriteTextureAt(dev device.Device, binding uint32, tex texture.Texture, storage bool)

	// WriteAccelerationStructure writes a TLAS descriptor at the named binding.
	//
	// Parameters:
	//   - dev: the device the set was allocated on
	//   - name: the binding name from the shader source
	//   - tlas: the top-level acceleration structure
	WriteAccelerationStructure(dev device.Device, name string, tlas vk.AccelerationStructure)

	// Destroy releases the backing pool (and with it, the set).
	//
	// Parameters:
	//   - dev: the device the set was allocated on
	Destroy(dev device.Device)
}

var _ DescriptorSet = &descriptorSet{}

// NewDescriptorSet creates a pool sized from the binding map (one pool size
// per descriptor type used) and allocates a single set with the given layout.
//
// Panics on driver failure, per the fail-fast contract.
//
// Parameters:
//   - dev: the device to allocate on
//   - layout: the set layout the set is allocated with
//   - bindingMap: the reflected bindings backing name-addressed writes
//
// Returns:
//   - DescriptorSet: the allocated set
func NewDescriptorSet(dev device.Device, layout vk.DescriptorSetLayout, bindingMap shader.BindingMap) DescriptorSet {
	typeCounts := make(map[vk.DescriptorType]uint32)
	for _, binding := range bindingMap {
		typeCounts[shader.ToVkDescriptorType(binding.Info.Type)]++
	}
	if len(typeCounts) == 0 {
		// An empty layout still needs a non-empty pool to allocate from.
		typeCounts[vk.DescriptorTypeUniformBuffer] = 1
	}

	poolSizes := make([]vk.DescriptorPoolSize, 0, len(typeCounts))
	for descriptorType, count := range typeCounts {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{
			Type:            descriptorType,
			DescriptorCount: count,
		})
	}

	var pool vk.DescriptorPool
	ret := vk.CreateDescriptorPool(dev.Handle(), &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}, nil, &pool)
	if ret != vk.Success {
		panic(fmt.Sprintf("descriptor: pool creation failed: %v", vk.Error(ret)))
	}

	var handle vk.DescriptorSet
	ret = vk.AllocateDescriptorSets(dev.Handle(), &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout},
	}, &handle)
	if ret != vk.Success {
		panic(fmt.Sprintf("descriptor: set allocation failed: %v", vk.Error(ret)))
	}

	return &descriptorSet{
		handle:     handle,
		pool:       pool,
		bindingMap: bindingMap,
	}
}

func (s *descriptorSet) Handle() vk.DescriptorSet {
	return s.handle
}

// resolve looks up a named binding; unknown names are fatal.
func (s *descriptorSet) resolve(name string) shader.Binding {
	binding, ok := s.bindingMap[name]
	if !ok {
		panic(fmt.Sprintf("descriptor: no descriptor binding found with name %q", name))
	}
	return binding
}

func (s *descriptorSet) writeBuffer(dev device.Device, name string, buf buffer.Buffer, descriptorType vk.DescriptorType) {
	binding := s.resolve(name)

	vk.UpdateDescriptorSets(dev.Handle(), 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.handle,
		DstBinding:      binding.Binding,
		DescriptorCount: 1,
		DescriptorType:  descriptorType,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buf.Handle(),
			Range:  vk.DeviceSize(buf.Size()),
		}},
	}}, 0, nil)
}

func (s *descriptorSet) WriteUniformBuffer(dev device.Device, name string, buf buffer.Buffer) {
	s.writeBuffer(dev, name, buf, vk.DescriptorTypeUniformBuffer)
}

func (s *descriptorSet) WriteStorageBuffer(dev device.Device, name string, buf buffer.Buffer) {
	s.writeBuffer(dev, name, buf, vk.DescriptorTypeStorageBuffer)
}

func (s *descriptorSet) WriteCombinedImage(dev device.Device, name string, tex texture.Texture) {
	binding := s.resolve(name)
	s.writeImage(dev, binding.Binding, tex.DescriptorInfo(), vk.DescriptorTypeCombinedImageSampler)
}

func (s *descriptorSet) WriteStorageImage(dev device.Device, name string, tex texture.Texture) {
	binding := s.resolve(name)
	s.writeImage(dev, binding.Binding, tex.StorageDescriptorInfo(), vk.DescriptorTypeStorageImage)
}

func (s *descriptorSet) WriteTextureAt(dev device.Device, binding uint32, tex texture.Texture, storage bool) {
	if storage {
		s.writeImage(dev, binding, tex.StorageDescriptorInfo(), vk.DescriptorTypeStorageImage)
		return
	}
	s.writeImage(dev, binding, tex.DescriptorInfo(), vk.DescriptorTypeCombinedImageSampler)
}

func (s *descriptorSet) writeImage(dev device.Device, binding uint32, info vk.DescriptorImageInfo, descriptorType vk.DescriptorType) {
	vk.UpdateDescriptorSets(dev.Handle(), 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          s.handle,
		DstBinding:      binding,
		DescriptorCount: 1,
		DescriptorType:  descriptorType,
		PImageInfo:      []vk.DescriptorImageInfo{info},
	}}, 0, nil)
}

func (s *descriptorSet) WriteAccelerationStructure(dev device.Device, name string, tlas vk.AccelerationStructure) {
	binding := s.resolve(name)

	accelInfo := vk.WriteDescriptorSetAccelerationStructure{
		SType:                      vk.StructureTypeWriteDescriptorSetAccelerationStructure,
		AccelerationStructureCount: 1,
		PAccelerationStructures:    []vk.AccelerationStructure{tlas},
	}

	vk.UpdateDescriptorSets(dev.Handle(), 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		PNext:           unsafe.Pointer(&accelInfo),
		DstSet:          s.handle,
		DstBinding:      binding.Binding,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeAccelerationStructure,
	}}, 0, nil)
}

func (s *descriptorSet) Destroy(dev device.Device) {
	vk.DestroyDescriptorPool(dev.Handle(), s.pool, nil)
}

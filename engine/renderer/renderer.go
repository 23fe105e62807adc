// package renderer owns the scene-wide GPU state every pass can see: the
// bindless table with all textures and geometry buffers, the packed material,
// mesh, and light tables, the per-frame view uniform buffer, the instance
// list, and the optional ray tracing subsystem.
package renderer

import (
	"unsafe"

	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/buffer"
	"github.com/Carmen-Shannon/forge-go/engine/device"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/raytracing"
	"github.com/Carmen-Shannon/forge-go/engine/texture"
	vk "github.com/goki/vulkan"
)

// Capacities of the packed scene tables.
const (
	MaxGPUMaterials = 1024
	MaxGPUMeshes    = 1024
	MaxGPULights    = 1024
)

// renderer is the implementation of the Renderer interface.
type renderer struct {
	bindlessLayout vk.DescriptorSetLayout
	bindlessSet    vk.DescriptorSet
	bindlessPool   vk.DescriptorPool

	// Next free indices in the bindless arrays; append-only and monotonic.
	nextTextureIndex uint32
	nextVertexIndex  uint32
	nextIndexIndex   uint32

	materials []common.GPUMaterial
	meshes    []common.GPUMesh
	lights    []common.GPULight

	materialsBuffer buffer.Buffer
	meshesBuffer    buffer.Buffer
	lightsBuffer    buffer.Buffer

	viewBuffer buffer.Buffer
	viewData   ViewUniformData

	instances []raytracing.Instance

	raytracing raytracing.Raytracing
}

// Renderer is the host-facing facade over the bindless table and scene-wide
// GPU state. The graph binds its bindless set at descriptor set 0 and its view
// buffer at set 1 for every pass.
type Renderer interface {
	// BindlessLayout returns the bindless set layout, substituted at set 0 of
	// every pipeline layout.
	//
	// Returns:
	//   - vk.DescriptorSetLayout: the bindless layout
	BindlessLayout() vk.DescriptorSetLayout

	// BindlessSet returns the bindless descriptor set bound at set 0.
	//
	// Returns:
	//   - vk.DescriptorSet: the bindless set
	BindlessSet() vk.DescriptorSet

	// ViewUniformBuffer returns the buffer behind descriptor set 1.
	//
	// Returns:
	//   - buffer.Buffer: the view uniform buffer
	ViewUniformBuffer() buffer.Buffer

	// ViewData returns a pointer to the CPU copy of the view block for the host
	// to mutate before UpdateView.
	//
	// Returns:
	//   - *ViewUniformData: the mutable view block
	ViewData() *ViewUniformData

	// UpdateView uploads the CPU view block into the view uniform buffer.
	//
	// Parameters:
	//   - dev: the device the renderer was created on
	UpdateView(dev device.Device)

	// AddTexture appends a texture to the bindless texture array and returns its
	// stable index. Indices are assigned monotonically and never reused.
	//
	// Parameters:
	//   - dev: the device the renderer was created on
	//   - tex: the texture to publish
	//
	// Returns:
	//   - uint32: the bindless texture index
	AddTexture(dev device.Device, tex texture.Texture) uint32

	// AddVertexBuffer appends a vertex buffer to the bindless vertex array.
	//
	// Parameters:
	//   - dev: the device the renderer was created on
	//   - buf: the vertex storage buffer
	//
	// Returns:
	//   - uint32: the bindless vertex buffer index
	AddVertexBuffer(dev device.Device, buf buffer.Buffer) uint32

	// AddIndexBuffer appends an index buffer to the bindless index array.
	//
	// Parameters:
	//   - dev: the device the renderer was created on
	//   - buf: the index storage buffer
	//
	// Returns:
	//   - uint32: the bindless index buffer index
	AddIndexBuffer(dev device.Device, buf buffer.Buffer) uint32

	// AddMaterial appends a packed material record and re-uploads the table.
	//
	// Parameters:
	//   - dev: the device the renderer was created on
	//   - material: the packed record
	//
	// Returns:
	//   - uint32: the material index
	AddMaterial(dev device.Device, material common.GPUMaterial) uint32

	// AddMesh appends a packed mesh record, re-uploads the table, and registers
	// a TLAS instance when ray tracing is active.
	//
	// Parameters:
	//   - dev: the device the renderer was created on
	//   - mesh: the packed record
	//   - transform: the row-major 3x4 world transform for the TLAS instance
	//   - blasAddress: the mesh's BLAS device address; zero when ray tracing is off
	//
	// Returns:
	//   - uint32: the mesh index
	AddMesh(dev device.Device, mesh common.GPUMesh, transform [12]float32, blasAddress uint64) uint32

	// AddLight appends a packed light record and re-uploads the table. The view
	// block's light count is set from the table length by UpdateView.
	//
	// Parameters:
	//   - dev: the device the renderer was created on
	//   - light: the packed record
	//
	// Returns:
	//   - uint32: the light index
	AddLight(dev device.Device, light common.GPULight) uint32

	// Instances returns the TLAS instance list for the executor's rebuild step.
	//
	// Returns:
	//   - []raytracing.Instance: the current instances
	Instances() []raytracing.Instance

	// Raytracing returns the acceleration structure manager, or nil when the
	// device lacks ray tracing support.
	//
	// Returns:
	//   - raytracing.Raytracing: the manager or nil
	Raytracing() raytracing.Raytracing

	// Destroy releases the bindless pool, the scene buffers, and the ray
	// tracing structures.
	//
	// Parameters:
	//   - dev: the device the renderer was created on
	Destroy(dev device.Device)
}

var _ Renderer = &renderer{}

// NewRenderer builds the bindless layout and set, allocates the packed scene
// tables and the view uniform buffer, writes the table slots into the bindless
// set, and brings up ray tracing when the device supports it.
//
// Parameters:
//   - dev: the device to create scene state on
//
// Returns:
//   - Renderer: the ready renderer
func NewRenderer(dev device.Device) Renderer {
	r := &renderer{}

	r.bindlessLayout = createBindlessDescriptorSetLayout(dev)
	r.bindlessSet, r.bindlessPool = createBindlessDescriptorSet(dev, r.bindlessLayout)

	var material common.GPUMaterial
	var mesh common.GPUMesh
	var light common.GPULight
	storage := vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit)
	r.materialsBuffer = buffer.NewBuffer(dev, "bindless_materials",
		uint64(unsafe.Sizeof(material))*MaxGPUMaterials, storage, device.MemoryLocationCPUToGPU)
	r.meshesBuffer = buffer.NewBuffer(dev, "bindless_meshes",
		uint64(unsafe.Sizeof(mesh))*MaxGPUMeshes, storage, device.MemoryLocationCPUToGPU)
	r.lightsBuffer = buffer.NewBuffer(dev, "bindless_lights",
		uint64(unsafe.Sizeof(light))*MaxGPULights, storage, device.MemoryLocationCPUToGPU)

	var view ViewUniformData
	r.viewBuffer = buffer.NewBuffer(dev, "view",
		uint64(unsafe.Sizeof(view)),
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), device.MemoryLocationCPUToGPU)

	r.writeTableSlot(dev, BindlessBindingMaterials, r.materialsBuffer)
	r.writeTableSlot(dev, BindlessBindingMeshes, r.meshesBuffer)
	r.writeTableSlot(dev, BindlessBindingLights, r.lightsBuffer)

	if dev.RaytracingSupported() {
		r.raytracing = raytracing.NewRaytracing(dev)
	}

	return r
}

func (r *renderer) BindlessLayout() vk.DescriptorSetLayout {
	return r.bindlessLayout
}

func (r *renderer) BindlessSet() vk.DescriptorSet {
	return r.bindlessSet
}

func (r *renderer) ViewUniformBuffer() buffer.Buffer {
	return r.viewBuffer
}

func (r *renderer) ViewData() *ViewUniformData {
	return &r.viewData
}

func (r *renderer) UpdateView(dev device.Device) {
	r.viewData.NumLights = uint32(len(r.lights))
	r.viewBuffer.UpdateMemory(dev, r.viewData.Bytes())
}

// writeArraySlot appends one descriptor into a bindless array binding at the
// given element.
func (r *renderer) writeArraySlot(dev device.Device, binding, element uint32, write vk.WriteDescriptorSet) {
	write.SType = vk.StructureTypeWriteDescriptorSet
	write.DstSet = r.bindlessSet
	write.DstBinding = binding
	write.DstArrayElement = element
	write.DescriptorCount = 1
	vk.UpdateDescriptorSets(dev.Handle(), 1, []vk.WriteDescriptorSet{write}, 0, nil)
}

func (r *renderer) writeTableSlot(dev device.Device, binding uint32, buf buffer.Buffer) {
	r.writeArraySlot(dev, binding, 0, vk.WriteDescriptorSet{
		DescriptorType: vk.DescriptorTypeStorageBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buf.Handle(),
			Range:  vk.DeviceSize(buf.Size()),
		}},
	})
}

func (r *renderer) AddTexture(dev device.Device, tex texture.Texture) uint32 {
	index := r.nextTextureIndex
	r.nextTextureIndex++

	r.writeArraySlot(dev, BindlessBindingTextures, index, vk.WriteDescriptorSet{
		DescriptorType: vk.DescriptorTypeCombinedImageSampler,
		PImageInfo:     []vk.DescriptorImageInfo{tex.DescriptorInfo()},
	})
	return index
}

func (r *renderer) AddVertexBuffer(dev device.Device, buf buffer.Buffer) uint32 {
	index := r.nextVertexIndex
	r.nextVertexIndex++

	r.writeArraySlot(dev, BindlessBindingVertexBuffers, index, vk.WriteDescriptorSet{
		DescriptorType: vk.DescriptorTypeStorageBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buf.Handle(),
			Range:  vk.DeviceSize(buf.Size()),
		}},
	})
	return index
}

func (r *renderer) AddIndexBuffer(dev device.Device, buf buffer.Buffer) uint32 {
	index := r.nextIndexIndex
	r.nextIndexIndex++

	r.writeArraySlot(dev, BindlessBindingIndexBuffers, index, vk.WriteDescriptorSet{
		DescriptorType: vk.DescriptorTypeStorageBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buf.Handle(),
			Range:  vk.DeviceSize(buf.Size()),
		}},
	})
	return index
}

func (r *renderer) AddMaterial(dev device.Device, material common.GPUMaterial) uint32 {
	r.materials = append(r.materials, material)
	r.materialsBuffer.UpdateMemory(dev, common.SliceToBytes(r.materials))
	return uint32(len(r.materials) - 1)
}

func (r *renderer) AddMesh(dev device.Device, mesh common.GPUMesh, transform [12]float32, blasAddress uint64) uint32 {
	r.meshes = append(r.meshes, mesh)
	r.meshesBuffer.UpdateMemory(dev, common.SliceToBytes(r.meshes))
	index := uint32(len(r.meshes) - 1)

	if r.raytracing != nil && blasAddress != 0 {
		r.instances = append(r.instances, raytracing.Instance{
			Transform:   transform,
			CustomIndex: index,
			BlasAddress: blasAddress,
		})
	}
	return index
}

func (r *renderer) AddLight(dev device.Device, light common.GPULight) uint32 {
	r.lights = append(r.lights, light)
	r.lightsBuffer.UpdateMemory(dev, common.SliceToBytes(r.lights))
	return uint32(len(r.lights) - 1)
}

func (r *renderer) Instances() []raytracing.Instance {
	return r.instances
}

func (r *renderer) Raytracing() raytracing.Raytracing {
	return r.raytracing
}

func (r *renderer) Destroy(dev device.Device) {
	if r.raytracing != nil {
		r.raytracing.Destroy(dev)
	}
	r.viewBuffer.Destroy(dev)
	r.materialsBuffer.Destroy(dev)
	r.meshesBuffer.Destroy(dev)
	r.lightsBuffer.Destroy(dev)
	vk.DestroyDescriptorPool(dev.Handle(), r.bindlessPool, nil)
	vk.DestroyDescriptorSetLayout(dev.Handle(), r.bindlessLayout, nil)
}

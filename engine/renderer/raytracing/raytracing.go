// package raytracing manages hardware ray tracing acceleration structures:
// bottom-level structures built per mesh from the scene's vertex and index
// buffers, and the single top-level structure rebuilt from the instance list,
// either on the setup command buffer or inline in the frame by the graph.
package raytracing

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/Carmen-Shannon/forge-go/engine/buffer"
	"github.com/Carmen-Shannon/forge-go/engine/device"
	vk "github.com/goki/vulkan"
)

// MaxInstances is the TLAS capacity; the structure and its buffers are sized
// once so per-frame rebuilds never reallocate.
const MaxInstances = 4096

// instanceStride is sizeof(VkAccelerationStructureInstanceKHR).
const instanceStride = 64

// Instance is one BLAS placement in the scene.
type Instance struct {
	// Transform is the row-major 3x4 world transform.
	Transform [12]float32

	// CustomIndex is surfaced to shaders as gl_InstanceCustomIndexEXT; the
	// renderer stores the mesh index here.
	CustomIndex uint32

	// BlasAddress is the device address of the instance's bottom-level structure.
	BlasAddress uint64
}

// BLAS is a built bottom-level acceleration structure.
type BLAS struct {
	Handle  vk.AccelerationStructure
	Address uint64

	backing buffer.Buffer
}

// raytracing is the implementation of the Raytracing interface.
type raytracing struct {
	tlas        vk.AccelerationStructure
	tlasBuffer  buffer.Buffer
	scratch     buffer.Buffer
	instanceBuf buffer.Buffer

	blases []*BLAS
}

// Raytracing owns the acceleration structures. The TLAS handle is stable for
// the engine's lifetime; rebuilds change its contents in place.
type Raytracing interface {
	// TLAS returns the top-level acceleration structure handle for descriptor writes.
	//
	// Returns:
	//   - vk.AccelerationStructure: the TLAS handle
	TLAS() vk.AccelerationStructure

	// CreateBLAS builds a bottom-level structure for an indexed triangle mesh on
	// the setup command buffer (submit + wait idle).
	//
	// Parameters:
	//   - dev: the device to build on
	//   - vertexBuf: vertex buffer with device-address usage; tightly packed positions first
	//   - indexBuf: uint32 index buffer with device-address usage
	//   - vertexCount: number of vertices
	//   - indexCount: number of indices; must be a multiple of three
	//   - vertexStride: byte stride between consecutive vertices
	//
	// Returns:
	//   - *BLAS: the built structure and its device address
	CreateBLAS(dev device.Device, vertexBuf, indexBuf buffer.Buffer, vertexCount, indexCount, vertexStride uint32) *BLAS

	// RebuildTLAS re-records the top-level structure from the instance list into
	// the given command buffer. The caller is responsible for the surrounding
	// global barriers; the graph emits them in its TLAS rebuild step.
	//
	// Parameters:
	//   - dev: the device the structures live on
	//   - cb: command buffer in the recording state
	//   - instances: the frame's instance list; truncated at MaxInstances
	RebuildTLAS(dev device.Device, cb vk.CommandBuffer, instances []Instance)

	// Destroy releases every structure and backing buffer.
	//
	// Parameters:
	//   - dev: the device the structures live on
	Destroy(dev device.Device)
}

var _ Raytracing = &raytracing{}

// NewRaytracing creates the TLAS at full capacity together with its scratch
// and instance buffers, and performs an initial empty build so the handle is
// valid for descriptor writes before the first frame.
//
// Parameters:
//   - dev: the device to build on; must support ray tracing
//
// Returns:
//   - Raytracing: the acceleration structure manager
func NewRaytracing(dev device.Device) Raytracing {
	if !dev.RaytracingSupported() {
		panic("raytracing: device does not support ray tracing")
	}

	rt := &raytracing{}

	rt.instanceBuf = buffer.NewBuffer(dev, "tlas_instances", MaxInstances*instanceStride,
		vk.BufferUsageFlags(vk.BufferUsageAccelerationStructureBuildInputReadOnlyBit|
			vk.BufferUsageShaderDeviceAddressBit),
		device.MemoryLocationCPUToGPU)

	_, sizes := rt.tlasBuildInfo(dev, MaxInstances)

	rt.tlasBuffer = buffer.NewBuffer(dev, "tlas", uint64(sizes.AccelerationStructureSize),
		vk.BufferUsageFlags(vk.BufferUsageAccelerationStructureStorageBit|
			vk.BufferUsageShaderDeviceAddressBit),
		device.MemoryLocationGPUOnly)

	rt.scratch = buffer.NewBuffer(dev, "tlas_scratch", uint64(sizes.BuildScratchSize),
		vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit|vk.BufferUsageShaderDeviceAddressBit),
		device.MemoryLocationGPUOnly)

	var tlas vk.AccelerationStructure
	ret := vk.CreateAccelerationStructure(dev.Handle(), &vk.AccelerationStructureCreateInfo{
		SType:  vk.StructureTypeAccelerationStructureCreateInfo,
		Buffer: rt.tlasBuffer.Handle(),
		Size:   sizes.AccelerationStructureSize,
		Type:   vk.AccelerationStructureTypeTopLevel,
	}, nil, &tlas)
	if ret != vk.Success {
		panic(fmt.Sprintf("raytracing: TLAS creation failed: %v", vk.Error(ret)))
	}
	rt.tlas = tlas

	dev.ExecuteAndSubmit(func(cb vk.CommandBuffer) {
		rt.RebuildTLAS(dev, cb, nil)
	})

	return rt
}

func (r *raytracing) TLAS() vk.AccelerationStructure {
	return r.tlas
}

// tlasGeometry describes the instance stream for build-info and size queries.
func (r *raytracing) tlasGeometry(dev device.Device) vk.AccelerationStructureGeometry {
	var instanceData vk.DeviceOrHostAddressConst
	if r.instanceBuf != nil {
		instanceData.DeviceAddress = r.instanceBuf.DeviceAddress(dev)
	}

	return vk.AccelerationStructureGeometry{
		SType:        vk.StructureTypeAccelerationStructureGeometry,
		GeometryType: vk.GeometryTypeInstances,
		Geometry: vk.AccelerationStructureGeometryData{
			Instances: vk.AccelerationStructureGeometryInstancesData{
				SType: vk.StructureTypeAccelerationStructureGeometryInstancesData,
				Data:  instanceData,
			},
		},
	}
}

func (r *raytracing) tlasBuildInfo(dev device.Device, maxInstances uint32) (vk.AccelerationStructureBuildGeometryInfo, vk.AccelerationStructureBuildSizesInfo) {
	geometry := r.tlasGeometry(dev)

	buildInfo := vk.AccelerationStructureBuildGeometryInfo{
		SType:         vk.StructureTypeAccelerationStructureBuildGeometryInfo,
		Type:          vk.AccelerationStructureTypeTopLevel,
		Flags:         vk.BuildAccelerationStructureFlags(vk.BuildAccelerationStructurePreferFastBuildBit),
		Mode:          vk.BuildAccelerationStructureModeBuild,
		GeometryCount: 1,
		PGeometries:   []vk.AccelerationStructureGeometry{geometry},
	}

	sizes := vk.AccelerationStructureBuildSizesInfo{
		SType: vk.StructureTypeAccelerationStructureBuildSizesInfo,
	}
	vk.GetAccelerationStructureBuildSizes(dev.Handle(),
		vk.AccelerationStructureBuildTypeDevice, &buildInfo, []uint32{maxInstances}, &sizes)
	sizes.Deref()

	return buildInfo, sizes
}

func (r *raytracing) RebuildTLAS(dev device.Device, cb vk.CommandBuffer, instances []Instance) {
	if len(instances) > MaxInstances {
		instances = instances[:MaxInstances]
	}

	packed := make([]byte, 0, len(instances)*instanceStride)
	for _, instance := range instances {
		packed = append(packed, packInstance(instance)...)
	}
	if len(packed) > 0 {
		r.instanceBuf.UpdateMemory(dev, packed)
	}

	buildInfo, _ := r.tlasBuildInfo(dev, MaxInstances)
	buildInfo.DstAccelerationStructure = r.tlas
	buildInfo.ScratchData = vk.DeviceOrHostAddress{
		DeviceAddress: r.scratch.DeviceAddress(dev),
	}

	rangeInfo := vk.AccelerationStructureBuildRangeInfo{
		PrimitiveCount: uint32(len(instances)),
	}
	vk.CmdBuildAccelerationStructures(cb, 1,
		[]vk.AccelerationStructureBuildGeometryInfo{buildInfo},
		[][]vk.AccelerationStructureBuildRangeInfo{{rangeInfo}})
}

// packInstance serializes one VkAccelerationStructureInstanceKHR. The struct
// carries C bitfields, so it is packed by hand: 48 bytes of transform, a
// 24/8-bit custom-index/mask word, a 24/8-bit SBT-offset/flags word, and the
// 64-bit BLAS address.
func packInstance(instance Instance) []byte {
	out := make([]byte, instanceStride)
	for i, f := range instance.Transform {
		binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(f))
	}
	binary.LittleEndian.PutUint32(out[48:], instance.CustomIndex&0x00ffffff|0xff000000) // mask 0xff
	const triangleFacingCullDisable = 0x1
	binary.LittleEndian.PutUint32(out[52:], triangleFacingCullDisable<<24)
	binary.LittleEndian.PutUint64(out[56:], instance.BlasAddress)
	return out
}

func (r *raytracing) CreateBLAS(dev device.Device, vertexBuf, indexBuf buffer.Buffer, vertexCount, indexCount, vertexStride uint32) *BLAS {
	triangles := vk.AccelerationStructureGeometryTrianglesData{
		SType:        vk.StructureTypeAccelerationStructureGeometryTrianglesData,
		VertexFormat: vk.FormatR32g32b32Sfloat,
		VertexData: vk.DeviceOrHostAddressConst{
			DeviceAddress: vertexBuf.DeviceAddress(dev),
		},
		VertexStride: vk.DeviceSize(vertexStride),
		MaxVertex:    vertexCount - 1,
		IndexType:    vk.IndexTypeUint32,
		IndexData: vk.DeviceOrHostAddressConst{
			DeviceAddress: indexBuf.DeviceAddress(dev),
		},
	}

	geometry := vk.AccelerationStructureGeometry{
		SType:        vk.StructureTypeAccelerationStructureGeometry,
		GeometryType: vk.GeometryTypeTriangles,
		Geometry: vk.AccelerationStructureGeometryData{
			Triangles: triangles,
		},
		Flags: vk.GeometryFlags(vk.GeometryOpaqueBit),
	}

	primitiveCount := indexCount / 3

	buildInfo := vk.AccelerationStructureBuildGeometryInfo{
		SType:         vk.StructureTypeAccelerationStructureBuildGeometryInfo,
		Type:          vk.AccelerationStructureTypeBottomLevel,
		Flags:         vk.BuildAccelerationStructureFlags(vk.BuildAccelerationStructurePreferFastTraceBit),
		Mode:          vk.BuildAccelerationStructureModeBuild,
		GeometryCount: 1,
		PGeometries:   []vk.AccelerationStructureGeometry{geometry},
	}

	sizes := vk.AccelerationStructureBuildSizesInfo{
		SType: vk.StructureTypeAccelerationStructureBuildSizesInfo,
	}
	vk.GetAccelerationStructureBuildSizes(dev.Handle(),
		vk.AccelerationStructureBuildTypeDevice, &buildInfo, []uint32{primitiveCount}, &sizes)
	sizes.Deref()

	backing := buffer.NewBuffer(dev, "blas", uint64(sizes.AccelerationStructureSize),
		vk.BufferUsageFlags(vk.BufferUsageAccelerationStructureStorageBit|
			vk.BufferUsageShaderDeviceAddressBit),
		device.MemoryLocationGPUOnly)

	var handle vk.AccelerationStructure
	ret := vk.CreateAccelerationStructure(dev.Handle(), &vk.AccelerationStructureCreateInfo{
		SType:  vk.StructureTypeAccelerationStructureCreateInfo,
		Buffer: backing.Handle(),
		Size:   sizes.AccelerationStructureSize,
		Type:   vk.AccelerationStructureTypeBottomLevel,
	}, nil, &handle)
	if ret != vk.Success {
		panic(fmt.Sprintf("raytracing: BLAS creation failed: %v", vk.Error(ret)))
	}

	scratch := buffer.NewBuffer(dev, "blas_scratch", uint64(sizes.BuildScratchSize),
		vk.BufferUsageFlags(vk.BufferUsageStorageBufferBit|vk.BufferUsageShaderDeviceAddressBit),
		device.MemoryLocationGPUOnly)

	buildInfo.DstAccelerationStructure = handle
	buildInfo.ScratchData = vk.DeviceOrHostAddress{
		DeviceAddress: scratch.DeviceAddress(dev),
	}

	dev.ExecuteAndSubmit(func(cb vk.CommandBuffer) {
		vk.CmdBuildAccelerationStructures(cb, 1,
			[]vk.AccelerationStructureBuildGeometryInfo{buildInfo},
			[][]vk.AccelerationStructureBuildRangeInfo{{{PrimitiveCount: primitiveCount}}})
	})

	scratch.Destroy(dev)

	address := uint64(vk.GetAccelerationStructureDeviceAddress(dev.Handle(),
		&vk.AccelerationStructureDeviceAddressInfo{
			SType:                 vk.StructureTypeAccelerationStructureDeviceAddressInfo,
			AccelerationStructure: handle,
		}))

	blas := &BLAS{
		Handle:  handle,
		Address: address,
		backing: backing,
	}
	r.blases = append(r.blases, blas)
	return blas
}

func (r *raytracing) Destroy(dev device.Device) {
	for _, blas := range r.blases {
		vk.DestroyAccelerationStructure(dev.Handle(), blas.Handle, nil)
		blas.backing.Destroy(dev)
	}
	vk.DestroyAccelerationStructure(dev.Handle(), r.tlas, nil)
	r.tlasBuffer.Destroy(dev)
	r.scratch.Destroy(dev)
	r.instanceBuf.Destroy(dev)
}


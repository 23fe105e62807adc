// package buffer provides the typed GPU buffer primitive: a vk.Buffer plus its
// allocation, with a uniform update path that either writes through a
// persistent mapping (host-visible buffers) or stages through a transient
// buffer on the device's setup command buffer (device-local buffers).
package buffer

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/forge-go/engine/device"
	vk "github.com/goki/vulkan"
)

// buffer is the implementation of the Buffer interface.
type buffer struct {
	handle vk.Buffer
	memory vk.DeviceMemory

	size           uint64
	usage          vk.BufferUsageFlags
	memoryLocation device.MemoryLocation

	// mapped is the persistent mapping for host-visible buffers, nil otherwise.
	mapped unsafe.Pointer

	// deviceAddress caches the buffer device address; fetched lazily on first use.
	deviceAddress vk.DeviceAddress

	debugName string
}

// Buffer is a GPU buffer with a uniform update path regardless of where its
// memory lives. Buffers own their allocation and release it on Destroy; the
// graph holds them indirectly through its resource arrays.
type Buffer interface {
	// Handle returns the underlying vk.Buffer.
	//
	// Returns:
	//   - vk.Buffer: the buffer handle
	Handle() vk.Buffer

	// Size returns the buffer size in bytes.
	//
	// Returns:
	//   - uint64: the size in bytes
	Size() uint64

	// MemoryLocation returns where the buffer's memory was allocated.
	//
	// Returns:
	//   - device.MemoryLocation: the memory location policy
	MemoryLocation() device.MemoryLocation

	// DebugName returns the name the buffer was created with.
	//
	// Returns:
	//   - string: the debug name
	DebugName() string

	// SetDebugName replaces the buffer's debug name.
	//
	// Parameters:
	//   - name: the new debug name
	SetDebugName(name string)

	// UpdateMemory uploads data into the buffer starting at offset zero. For
	// host-visible buffers this is a direct copy through the persistent mapping.
	// For device-local buffers a staging buffer is allocated, filled, copied on
	// the setup command buffer (submit + wait idle), and freed.
	//
	// Parameters:
	//   - dev: the device the buffer was created on
	//   - data: the bytes to upload; must not exceed the buffer size
	UpdateMemory(dev device.Device, data []byte)

	// CopyToImage records a buffer-to-image copy covering the full image extent.
	// The image must be in the transfer-destination layout.
	//
	// Parameters:
	//   - cb: command buffer in the recording state
	//   - image: destination image handle
	//   - width: image width in pixels
	//   - height: image height in pixels
	CopyToImage(cb vk.CommandBuffer, image vk.Image, width, height uint32)

	// DeviceAddress returns the buffer device address. The buffer must have been
	// created with the shader-device-address usage flag. The address is cached
	// after the first query.
	//
	// Parameters:
	//   - dev: the device the buffer was created on
	//
	// Returns:
	//   - vk.DeviceAddress: the device address of the buffer's first byte
	DeviceAddress(dev device.Device) vk.DeviceAddress

	// Destroy releases the buffer and its allocation.
	//
	// Parameters:
	//   - dev: the device the buffer was created on
	Destroy(dev device.Device)
}

var _ Buffer = &buffer{}

// NewBuffer creates a buffer of the given size and usage in the requested
// memory location. The transfer-destination usage is always added so every
// buffer can be filled through UpdateMemory. Host-visible buffers are mapped
// persistently at creation.
//
// Panics if buffer creation, allocation, or mapping fails.
//
// Parameters:
//   - dev: the device to create the buffer on
//   - debugName: name used in logs and for graph deduplication
//   - size: size in bytes
//   - usage: buffer usage flags
//   - location: memory location policy
//
// Returns:
//   - Buffer: the created buffer
func NewBuffer(dev device.Device, debugName string, size uint64, usage vk.BufferUsageFlags, location device.MemoryLocation) Buffer {
	b := &buffer{
		size:           size,
		usage:          usage | vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		memoryLocation: location,
		debugName:      debugName,
	}

	var handle vk.Buffer
	ret := vk.CreateBuffer(dev.Handle(), &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       b.usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &handle)
	if ret != vk.Success {
		panic(fmt.Sprintf("buffer: %q creation failed: %v", debugName, vk.Error(ret)))
	}
	b.handle = handle

	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(dev.Handle(), handle, &requirements)
	requirements.Deref()

	b.memory = dev.AllocateMemory(requirements, location)
	if ret := vk.BindBufferMemory(dev.Handle(), handle, b.memory, 0); ret != vk.Success {
		panic(fmt.Sprintf("buffer: %q memory bind failed: %v", debugName, vk.Error(ret)))
	}

	if location == device.MemoryLocationCPUToGPU {
		var mapped unsafe.Pointer
		if ret := vk.MapMemory(dev.Handle(), b.memory, 0, vk.DeviceSize(size), 0, &mapped); ret != vk.Success {
			panic(fmt.Sprintf("buffer: %q memory map failed: %v", debugName, vk.Error(ret)))
		}
		b.mapped = mapped
	}

	return b
}

func (b *buffer) Handle() vk.Buffer {
	return b.handle
}

func (b *buffer) Size() uint64 {
	return b.size
}

func (b *buffer) MemoryLocation() device.MemoryLocation {
	return b.memoryLocation
}

func (b *buffer) DebugName() string {
	return b.debugName
}

func (b *buffer) SetDebugName(name string) {
	b.debugName = name
}

func (b *buffer) UpdateMemory(dev device.Device, data []byte) {
	if uint64(len(data)) > b.size {
		panic(fmt.Sprintf("buffer: %q update of %d bytes exceeds size %d", b.debugName, len(data), b.size))
	}

	if b.memoryLocation == device.MemoryLocationCPUToGPU {
		vk.Memcopy(b.mapped, data)
		return
	}

	staging := NewBuffer(dev, b.debugName+"_staging", b.size,
		vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), device.MemoryLocationCPUToGPU)
	staging.UpdateMemory(dev, data)

	dev.ExecuteAndSubmit(func(cb vk.CommandBuffer) {
		vk.CmdCopyBuffer(cb, staging.Handle(), b.handle, 1, []vk.BufferCopy{{
			Size: vk.DeviceSize(b.size),
		}})
	})

	staging.Destroy(dev)
}

func (b *buffer) CopyToImage(cb vk.CommandBuffer, image vk.Image, width, height uint32) {
	vk.CmdCopyBufferToImage(cb, b.handle, image, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{{
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LayerCount: 1,
		},
		ImageExtent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
	}})
}

func (b *buffer) DeviceAddress(dev device.Device) vk.DeviceAddress {
	if b.deviceAddress == 0 {
		b.deviceAddress = vk.GetBufferDeviceAddress(dev.Handle(), &vk.BufferDeviceAddressInfo{
			SType:  vk.StructureTypeBufferDeviceAddressInfo,
			Buffer: b.handle,
		})
	}
	return b.deviceAddress
}

func (b *buffer) Destroy(dev device.Device) {
	if b.mapped != nil {
		vk.UnmapMemory(dev.Handle(), b.memory)
		b.mapped = nil
	}
	vk.DestroyBuffer(dev.Handle(), b.handle, nil)
	dev.FreeMemory(b.memory)
}

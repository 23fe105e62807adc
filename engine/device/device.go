// package device wraps the Vulkan instance, physical device selection, and the
// logical device together with the single graphics queue, command pool, the
// reusable setup command buffer, and the mutex-guarded memory allocator that
// every other engine package allocates through.
package device

import (
	"fmt"
	"log"
	"sync"
	"unsafe"

	"github.com/Carmen-Shannon/forge-go/common"
	vk "github.com/goki/vulkan"
)

// MemoryLocation selects which memory pool a resource is allocated from.
type MemoryLocation int

const (
	// MemoryLocationGPUOnly allocates device-local memory; updates go through a
	// staging buffer on the setup command buffer.
	MemoryLocationGPUOnly MemoryLocation = iota

	// MemoryLocationCPUToGPU allocates host-visible, host-coherent memory that is
	// persistently mappable for direct writes.
	MemoryLocationCPUToGPU
)

// device is the implementation of the Device interface.
type device struct {
	instance       vk.Instance
	physicalDevice vk.PhysicalDevice
	handle         vk.Device

	queue            vk.Queue
	queueFamilyIndex uint32

	commandPool vk.CommandPool
	setupCmd    vk.CommandBuffer

	// allocatorMu serializes all memory allocations and frees; the allocator is
	// the only shared-mutable state reachable from outside the render thread.
	allocatorMu      sync.Mutex
	memoryProperties vk.PhysicalDeviceMemoryProperties

	raytracingSupported bool
	timestampPeriod     float32

	frameProfiler *FrameProfiler

	appName string
}

// Device owns the Vulkan logical device and the shared machinery the engine
// builds on: the graphics queue, the command pool, a reusable setup command
// buffer for one-time uploads, the memory allocator, and capability flags.
type Device interface {
	// Handle returns the Vulkan logical device handle.
	//
	// Returns:
	//   - vk.Device: the logical device
	Handle() vk.Device

	// Instance returns the Vulkan instance the device was created from.
	//
	// Returns:
	//   - vk.Instance: the instance
	Instance() vk.Instance

	// PhysicalDevice returns the physical device the logical device targets.
	//
	// Returns:
	//   - vk.PhysicalDevice: the physical device
	PhysicalDevice() vk.PhysicalDevice

	// Queue returns the single graphics+compute queue.
	//
	// Returns:
	//   - vk.Queue: the queue
	Queue() vk.Queue

	// QueueFamilyIndex returns the family index the queue was created from.
	//
	// Returns:
	//   - uint32: the queue family index
	QueueFamilyIndex() uint32

	// CommandPool returns the command pool all frame command buffers come from.
	//
	// Returns:
	//   - vk.CommandPool: the command pool
	CommandPool() vk.CommandPool

	// ExecuteAndSubmit records one-time commands into the setup command buffer,
	// submits them, and waits for the device to go idle. This is the only call
	// outside the frame fence that blocks on the GPU; it is used for one-time
	// uploads (buffer staging, image layout init, acceleration structure builds)
	// and must never be called from inside a pass callback.
	//
	// Parameters:
	//   - record: function that records commands into the provided command buffer
	ExecuteAndSubmit(record func(cb vk.CommandBuffer))

	// AllocateMemory allocates device memory satisfying the requirements with the
	// requested property flags. All allocations serialize on the allocator lock.
	// Panics with AllocationFailed semantics if no suitable memory type exists or
	// the driver rejects the allocation.
	//
	// Parameters:
	//   - requirements: memory requirements queried from the resource
	//   - location: which memory pool to allocate from
	//
	// Returns:
	//   - vk.DeviceMemory: the bound allocation
	AllocateMemory(requirements vk.MemoryRequirements, location MemoryLocation) vk.DeviceMemory

	// FreeMemory returns an allocation to the driver. Serializes on the allocator lock.
	//
	// Parameters:
	//   - memory: the allocation to free
	FreeMemory(memory vk.DeviceMemory)

	// FindMemoryTypeIndex looks up a memory type index compatible with the
	// requirements and property flags.
	//
	// Parameters:
	//   - typeBits: the memory type bits from the resource's requirements
	//   - properties: required memory property flags
	//
	// Returns:
	//   - uint32: the memory type index
	//   - bool: true if a compatible type was found
	FindMemoryTypeIndex(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, bool)

	// RaytracingSupported reports whether the ray tracing pipeline and
	// acceleration structure extensions were enabled at device creation.
	//
	// Returns:
	//   - bool: true if ray tracing is available
	RaytracingSupported() bool

	// FrameProfiler returns the GPU timestamp profiler, or nil if profiling was
	// not enabled at device creation.
	//
	// Returns:
	//   - *FrameProfiler: the profiler or nil
	FrameProfiler() *FrameProfiler

	// CmdPushConstants pushes a raw constant blob visible to all shader stages.
	//
	// Parameters:
	//   - cb: command buffer in the recording state
	//   - layout: the pipeline layout declaring the push-constant range
	//   - data: the constant bytes
	CmdPushConstants(cb vk.CommandBuffer, layout vk.PipelineLayout, data []byte)

	// WaitIdle blocks until the device has finished all submitted work.
	WaitIdle()

	// Destroy releases the command pool, profiler, and logical device.
	Destroy()
}

var _ Device = &device{}

// deviceExtensions are always requested; raytracingExtensions are added when
// the physical device advertises them and the builder did not disable them.
var deviceExtensions = []string{
	"VK_KHR_swapchain\x00",
	"VK_KHR_dynamic_rendering\x00",
}

var raytracingExtensions = []string{
	"VK_KHR_acceleration_structure\x00",
	"VK_KHR_ray_tracing_pipeline\x00",
	"VK_KHR_deferred_host_operations\x00",
}

// NewDevice creates the Vulkan instance, selects the first discrete (or
// otherwise first reported) physical device without regard to its queues,
// looks up its graphics+compute queue family (panicking when it has none),
// creates the logical device with dynamic rendering, descriptor indexing, and buffer
// device address enabled, and builds the command pool and setup command buffer.
//
// The caller must have loaded the Vulkan proc addr (the window package does
// this through GLFW) before calling NewDevice.
//
// Parameters:
//   - opts: a variadic list of DeviceBuilderOption functions to configure the device
//
// Returns:
//   - Device: the ready-to-use device
func NewDevice(opts ...DeviceBuilderOption) Device {
	cfg := &deviceConfig{
		raytracing: true,
		profiling:  false,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	d := &device{
		appName: common.Coalesce(cfg.appName, "forge") + "\x00",
	}

	d.createInstance(cfg)
	d.selectPhysicalDevice(cfg)
	d.createLogicalDevice(cfg)
	d.createCommandPool()

	if cfg.profiling {
		d.frameProfiler = newFrameProfiler(d.handle, d.timestampPeriod)
	}

	return d
}

func (d *device) createInstance(cfg *deviceConfig) {
	if err := vk.Init(); err != nil {
		panic(fmt.Sprintf("device: failed to initialize Vulkan: %v", err))
	}

	layers := []string{}
	if cfg.validation {
		layers = append(layers, "VK_LAYER_KHRONOS_validation\x00")
	}

	var instance vk.Instance
	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:            vk.StructureTypeApplicationInfo,
			PApplicationName: d.appName,
			PEngineName:      "forge\x00",
			ApiVersion:       vk.MakeVersion(1, 2, 0),
		},
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     layers,
		EnabledExtensionCount:   uint32(len(cfg.instanceExtensions)),
		PpEnabledExtensionNames: cfg.instanceExtensions,
	}, nil, &instance)
	if ret != vk.Success {
		panic(fmt.Sprintf("device: failed to create instance: %v", vk.Error(ret)))
	}
	d.instance = instance

	if err := vk.InitInstance(instance); err != nil {
		panic(fmt.Sprintf("device: failed to load instance procs: %v", err))
	}
}

func (d *device) selectPhysicalDevice(cfg *deviceConfig) {
	var count uint32
	vk.EnumeratePhysicalDevices(d.instance, &count, nil)
	if count == 0 {
		panic("device: no Vulkan-capable GPU found")
	}
	gpus := make([]vk.PhysicalDevice, count)
	vk.EnumeratePhysicalDevices(d.instance, &count, gpus)

	// Prefer a discrete GPU, fall back to whatever is first.
	selected := gpus[0]
	for _, gpu := range gpus {
		var props vk.PhysicalDeviceProperties
		vk.GetPhysicalDeviceProperties(gpu, &props)
		props.Deref()
		if props.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			selected = gpu
			break
		}
	}
	d.physicalDevice = selected

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(selected, &props)
	props.Deref()
	props.Limits.Deref()
	d.timestampPeriod = props.Limits.TimestampPeriod
	log.Printf("[Device] Using GPU: %s", vk.ToString(props.DeviceName[:]))

	vk.GetPhysicalDeviceMemoryProperties(selected, &d.memoryProperties)
	d.memoryProperties.Deref()

	if cfg.raytracing {
		var extCount uint32
		vk.EnumerateDeviceExtensionProperties(selected, "", &extCount, nil)
		exts := make([]vk.ExtensionProperties, extCount)
		vk.EnumerateDeviceExtensionProperties(selected, "", &extCount, exts)
		available := make(map[string]bool, extCount)
		for i := range exts {
			exts[i].Deref()
			available[vk.ToString(exts[i].ExtensionName[:])] = true
		}
		d.raytracingSupported = true
		for _, name := range raytracingExtensions {
			if !available[name[:len(name)-1]] {
				d.raytracingSupported = false
				break
			}
		}
	}
	if cfg.raytracing && !d.raytracingSupported {
		log.Printf("[Device] Ray tracing extensions not available, continuing without")
	}
}

func (d *device) createLogicalDevice(cfg *deviceConfig) {
	var familyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physicalDevice, &familyCount, nil)
	families := make([]vk.QueueFamilyProperties, familyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(d.physicalDevice, &familyCount, families)

	found := false
	for i := range families {
		families[i].Deref()
		flags := families[i].QueueFlags
		if flags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 && flags&vk.QueueFlags(vk.QueueComputeBit) != 0 {
			d.queueFamilyIndex = uint32(i)
			found = true
			break
		}
	}
	if !found {
		panic("device: no graphics+compute queue family found")
	}

	extensions := append([]string{}, deviceExtensions...)
	if d.raytracingSupported {
		extensions = append(extensions, raytracingExtensions...)
	}

	dynamicRendering := vk.PhysicalDeviceDynamicRenderingFeatures{
		SType:            vk.StructureTypePhysicalDeviceDynamicRenderingFeatures,
		DynamicRendering: vk.True,
	}
	vulkan12 := vk.PhysicalDeviceVulkan12Features{
		SType:                                        vk.StructureTypePhysicalDeviceVulkan12Features,
		PNext:                                        unsafe.Pointer(&dynamicRendering),
		DescriptorIndexing:                           vk.True,
		RuntimeDescriptorArray:                       vk.True,
		DescriptorBindingPartiallyBound:              vk.True,
		DescriptorBindingVariableDescriptorCount:     vk.True,
		DescriptorBindingSampledImageUpdateAfterBind: vk.True,
		ShaderSampledImageArrayNonUniformIndexing:    vk.True,
		BufferDeviceAddress:                          vk.True,
	}
	if d.raytracingSupported {
		accelFeatures := vk.PhysicalDeviceAccelerationStructureFeatures{
			SType:                 vk.StructureTypePhysicalDeviceAccelerationStructureFeatures,
			AccelerationStructure: vk.True,
		}
		rtFeatures := vk.PhysicalDeviceRayTracingPipelineFeatures{
			SType:              vk.StructureTypePhysicalDeviceRayTracingPipelineFeatures,
			PNext:              unsafe.Pointer(&accelFeatures),
			RayTracingPipeline: vk.True,
		}
		dynamicRendering.PNext = unsafe.Pointer(&rtFeatures)
	}

	var handle vk.Device
	ret := vk.CreateDevice(d.physicalDevice, &vk.DeviceCreateInfo{
		SType: vk.StructureTypeDeviceCreateInfo,
		PNext: unsafe.Pointer(&vulkan12),
		PQueueCreateInfos: []vk.DeviceQueueCreateInfo{{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: d.queueFamilyIndex,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}},
		QueueCreateInfoCount:    1,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy: vk.True,
			ShaderInt64:       vk.True,
		}},
	}, nil, &handle)
	if ret != vk.Success {
		panic(fmt.Sprintf("device: failed to create logical device: %v", vk.Error(ret)))
	}
	d.handle = handle

	var queue vk.Queue
	vk.GetDeviceQueue(handle, d.queueFamilyIndex, 0, &queue)
	d.queue = queue
}

func (d *device) createCommandPool() {
	var pool vk.CommandPool
	ret := vk.CreateCommandPool(d.handle, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: d.queueFamilyIndex,
	}, nil, &pool)
	if ret != vk.Success {
		panic(fmt.Sprintf("device: failed to create command pool: %v", vk.Error(ret)))
	}
	d.commandPool = pool

	cmdBuffers := make([]vk.CommandBuffer, 1)
	ret = vk.AllocateCommandBuffers(d.handle, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}, cmdBuffers)
	if ret != vk.Success {
		panic(fmt.Sprintf("device: failed to allocate setup command buffer: %v", vk.Error(ret)))
	}
	d.setupCmd = cmdBuffers[0]
}

func (d *device) Handle() vk.Device {
	return d.handle
}

func (d *device) Instance() vk.Instance {
	return d.instance
}

func (d *device) PhysicalDevice() vk.PhysicalDevice {
	return d.physicalDevice
}

func (d *device) Queue() vk.Queue {
	return d.queue
}

func (d *device) QueueFamilyIndex() uint32 {
	return d.queueFamilyIndex
}

func (d *device) CommandPool() vk.CommandPool {
	return d.commandPool
}

func (d *device) ExecuteAndSubmit(record func(cb vk.CommandBuffer)) {
	vk.BeginCommandBuffer(d.setupCmd, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	})

	record(d.setupCmd)

	vk.EndCommandBuffer(d.setupCmd)

	ret := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{d.setupCmd},
	}}, vk.Fence(vk.NullHandle))
	if ret != vk.Success {
		panic(fmt.Sprintf("device: setup submit failed: %v", vk.Error(ret)))
	}

	vk.DeviceWaitIdle(d.handle)
}

func (d *device) FindMemoryTypeIndex(typeBits uint32, properties vk.MemoryPropertyFlags) (uint32, bool) {
	typeCount := d.memoryProperties.MemoryTypeCount
	for i := uint32(0); i < typeCount; i++ {
		if typeBits&(1<<i) == 0 {
			continue
		}
		d.memoryProperties.MemoryTypes[i].Deref()
		if d.memoryProperties.MemoryTypes[i].PropertyFlags&properties == properties {
			return i, true
		}
	}
	return 0, false
}

func (d *device) AllocateMemory(requirements vk.MemoryRequirements, location MemoryLocation) vk.DeviceMemory {
	properties := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	if location == MemoryLocationCPUToGPU {
		properties = vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	}

	typeIndex, ok := d.FindMemoryTypeIndex(requirements.MemoryTypeBits, properties)
	if !ok {
		panic(fmt.Sprintf("device: no memory type for requirements (bits %#x, properties %#x)", requirements.MemoryTypeBits, properties))
	}

	// Resources created with the device-address usage need the corresponding
	// allocation flag or GetBufferDeviceAddress is undefined.
	allocateFlags := vk.MemoryAllocateFlagsInfo{
		SType: vk.StructureTypeMemoryAllocateFlagsInfo,
		Flags: vk.MemoryAllocateFlags(vk.MemoryAllocateDeviceAddressBit),
	}

	d.allocatorMu.Lock()
	defer d.allocatorMu.Unlock()

	var memory vk.DeviceMemory
	ret := vk.AllocateMemory(d.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		PNext:           unsafe.Pointer(&allocateFlags),
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: typeIndex,
	}, nil, &memory)
	if ret != vk.Success {
		panic(fmt.Sprintf("device: allocation of %d bytes failed: %v", requirements.Size, vk.Error(ret)))
	}
	return memory
}

func (d *device) FreeMemory(memory vk.DeviceMemory) {
	d.allocatorMu.Lock()
	defer d.allocatorMu.Unlock()
	vk.FreeMemory(d.handle, memory, nil)
}

func (d *device) RaytracingSupported() bool {
	return d.raytracingSupported
}

func (d *device) FrameProfiler() *FrameProfiler {
	return d.frameProfiler
}

func (d *device) CmdPushConstants(cb vk.CommandBuffer, layout vk.PipelineLayout, data []byte) {
	vk.CmdPushConstants(cb, layout, vk.ShaderStageFlags(vk.ShaderStageAll), 0, uint32(len(data)), unsafe.Pointer(&data[0]))
}

func (d *device) WaitIdle() {
	vk.DeviceWaitIdle(d.handle)
}

func (d *device) Destroy() {
	vk.DeviceWaitIdle(d.handle)
	if d.frameProfiler != nil {
		d.frameProfiler.destroy(d.handle)
	}
	vk.DestroyCommandPool(d.handle, d.commandPool, nil)
	vk.DestroyDevice(d.handle, nil)
	vk.DestroyInstance(d.instance, nil)
}

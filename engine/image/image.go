// package image provides the typed GPU image primitive: a vk.Image with its
// allocation, a full-image view, and lazily created per-layer views for
// rendering into individual array layers or cubemap faces.
package image

import (
	"fmt"

	"github.com/Carmen-Shannon/forge-go/engine/device"
	"github.com/Carmen-Shannon/forge-go/engine/synch"
	vk "github.com/goki/vulkan"
)

// Desc describes an image to create. Compared by value in the graph's texture
// dedup warning path.
type Desc struct {
	// Width and Height are the image extent in pixels.
	Width  uint32
	Height uint32

	// Format is the pixel format.
	Format vk.Format

	// Usage is the combined usage mask the image is created with.
	Usage vk.ImageUsageFlags

	// Aspect selects the color or depth aspect for views and barriers.
	Aspect vk.ImageAspectFlags

	// MipLevels is the mip chain length; minimum 1.
	MipLevels uint32

	// ArrayLayers is the layer count: 1 for 2D, N for arrays, 6 for cubemaps.
	ArrayLayers uint32

	// Cubemap marks the image as cube-compatible with six layers.
	Cubemap bool
}

// New2DDesc returns a Desc for a single-layer 2D image.
//
// Parameters:
//   - width: image width in pixels
//   - height: image height in pixels
//   - format: pixel format
//   - usage: usage mask
//   - aspect: color or depth aspect
//
// Returns:
//   - Desc: the populated descriptor
func New2DDesc(width, height uint32, format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) Desc {
	return Desc{
		Width:       width,
		Height:      height,
		Format:      format,
		Usage:       usage,
		Aspect:      aspect,
		MipLevels:   1,
		ArrayLayers: 1,
	}
}

// New2DArrayDesc returns a Desc for a 2D array image with the given layer count.
//
// Parameters:
//   - width: image width in pixels
//   - height: image height in pixels
//   - layers: number of array layers
//   - format: pixel format
//   - usage: usage mask
//   - aspect: color or depth aspect
//
// Returns:
//   - Desc: the populated descriptor
func New2DArrayDesc(width, height, layers uint32, format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) Desc {
	desc := New2DDesc(width, height, format, usage, aspect)
	desc.ArrayLayers = layers
	return desc
}

// NewCubemapDesc returns a Desc for a six-layer cube-compatible image.
//
// Parameters:
//   - size: edge length in pixels
//   - format: pixel format
//   - usage: usage mask
//   - mipLevels: mip chain length
//
// Returns:
//   - Desc: the populated descriptor
func NewCubemapDesc(size uint32, format vk.Format, usage vk.ImageUsageFlags, mipLevels uint32) Desc {
	return Desc{
		Width:       size,
		Height:      size,
		Format:      format,
		Usage:       usage,
		Aspect:      vk.ImageAspectFlags(vk.ImageAspectColorBit),
		MipLevels:   mipLevels,
		ArrayLayers: 6,
		Cubemap:     true,
	}
}

// image is the implementation of the Image interface.
type image struct {
	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView

	// layerViews are created lazily, one per array layer, for layered rendering.
	layerViews []vk.ImageView

	desc Desc

	// external marks images whose handle is owned elsewhere (swapchain).
	external bool

	debugName string
}

// Image is a GPU image plus its full view and optional per-layer views.
// Images own their allocation and release it on Destroy, except images wrapped
// from external handles (swapchain images), which only own their views.
type Image interface {
	// Handle returns the underlying vk.Image.
	//
	// Returns:
	//   - vk.Image: the image handle
	Handle() vk.Image

	// View returns the full-image view covering all layers and levels.
	//
	// Returns:
	//   - vk.ImageView: the full view
	View() vk.ImageView

	// LayerView returns the view for a single array layer, creating it on first
	// use. Panics if the layer is out of range.
	//
	// Parameters:
	//   - dev: the device the image was created on
	//   - layer: the array layer index
	//
	// Returns:
	//   - vk.ImageView: the per-layer view
	LayerView(dev device.Device, layer uint32) vk.ImageView

	// Desc returns the descriptor the image was created from.
	//
	// Returns:
	//   - Desc: the image descriptor
	Desc() Desc

	// Width returns the image width in pixels.
	//
	// Returns:
	//   - uint32: the width
	Width() uint32

	// Height returns the image height in pixels.
	//
	// Returns:
	//   - uint32: the height
	Height() uint32

	// Format returns the pixel format.
	//
	// Returns:
	//   - vk.Format: the format
	Format() vk.Format

	// DebugName returns the name the image was created with.
	//
	// Returns:
	//   - string: the debug name
	DebugName() string

	// Transition records an access transition for the whole image through the
	// synchronization helper and returns the new access for bookkeeping.
	//
	// Parameters:
	//   - cb: command buffer in the recording state
	//   - prevAccess: the access recorded by the most recent use
	//   - nextAccess: the access the upcoming use requires
	//
	// Returns:
	//   - synch.AccessType: nextAccess
	Transition(cb vk.CommandBuffer, prevAccess, nextAccess synch.AccessType) synch.AccessType

	// Destroy releases the views and, for owned images, the image and allocation.
	//
	// Parameters:
	//   - dev: the device the image was created on
	Destroy(dev device.Device)
}

var _ Image = &image{}

// NewImage creates an image matching desc, allocates and binds device-local
// memory, and creates the full-image view.
//
// Panics if creation, allocation, or view creation fails.
//
// Parameters:
//   - dev: the device to create the image on
//   - debugName: name used in logs and for graph deduplication
//   - desc: the image descriptor
//
// Returns:
//   - Image: the created image
func NewImage(dev device.Device, debugName string, desc Desc) Image {
	if desc.MipLevels == 0 {
		desc.MipLevels = 1
	}
	if desc.ArrayLayers == 0 {
		desc.ArrayLayers = 1
	}

	img := &image{
		desc:      desc,
		debugName: debugName,
	}

	var flags vk.ImageCreateFlags
	if desc.Cubemap {
		flags = vk.ImageCreateFlags(vk.ImageCreateCubeCompatibleBit)
	}

	var handle vk.Image
	ret := vk.CreateImage(dev.Handle(), &vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		Flags:     flags,
		ImageType: vk.ImageType2d,
		Format:    desc.Format,
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     desc.MipLevels,
		ArrayLayers:   desc.ArrayLayers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         desc.Usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &handle)
	if ret != vk.Success {
		panic(fmt.Sprintf("image: %q creation failed: %v", debugName, vk.Error(ret)))
	}
	img.handle = handle

	var requirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev.Handle(), handle, &requirements)
	requirements.Deref()

	img.memory = dev.AllocateMemory(requirements, device.MemoryLocationGPUOnly)
	if ret := vk.BindImageMemory(dev.Handle(), handle, img.memory, 0); ret != vk.Success {
		panic(fmt.Sprintf("image: %q memory bind failed: %v", debugName, vk.Error(ret)))
	}

	img.view = createView(dev, handle, desc, fullViewType(desc), 0, desc.ArrayLayers)

	return img
}

// NewFromHandle wraps an externally owned image (a swapchain image) with the
// given format and extent. Only the created view is owned by the wrapper.
//
// Parameters:
//   - dev: the device the external image belongs to
//   - handle: the external image handle
//   - width: image width in pixels
//   - height: image height in pixels
//   - format: the image format
//
// Returns:
//   - Image: the wrapping image
func NewFromHandle(dev device.Device, handle vk.Image, width, height uint32, format vk.Format) Image {
	desc := New2DDesc(width, height, format,
		vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))

	img := &image{
		handle:    handle,
		desc:      desc,
		external:  true,
		debugName: "swapchain",
	}
	img.view = createView(dev, handle, desc, vk.ImageViewType2d, 0, 1)
	return img
}

func fullViewType(desc Desc) vk.ImageViewType {
	switch {
	case desc.Cubemap:
		return vk.ImageViewTypeCube
	case desc.ArrayLayers > 1:
		return vk.ImageViewType2dArray
	default:
		return vk.ImageViewType2d
	}
}

func createView(dev device.Device, handle vk.Image, desc Desc, viewType vk.ImageViewType, baseLayer, layerCount uint32) vk.ImageView {
	var view vk.ImageView
	ret := vk.CreateImageView(dev.Handle(), &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: viewType,
		Format:   desc.Format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     desc.Aspect,
			LevelCount:     desc.MipLevels,
			BaseArrayLayer: baseLayer,
			LayerCount:     layerCount,
		},
	}, nil, &view)
	if ret != vk.Success {
		panic(fmt.Sprintf("image: view creation failed: %v", vk.Error(ret)))
	}
	return view
}

func (i *image) Handle() vk.Image {
	return i.handle
}

func (i *image) View() vk.ImageView {
	return i.view
}

func (i *image) LayerView(dev device.Device, layer uint32) vk.ImageView {
	if layer >= i.desc.ArrayLayers {
		panic(fmt.Sprintf("image: %q layer %d out of range (%d layers)", i.debugName, layer, i.desc.ArrayLayers))
	}
	if i.layerViews == nil {
		i.layerViews = make([]vk.ImageView, i.desc.ArrayLayers)
	}
	if i.layerViews[layer] == vk.ImageView(vk.NullHandle) {
		i.layerViews[layer] = createView(dev, i.handle, i.desc, vk.ImageViewType2d, layer, 1)
	}
	return i.layerViews[layer]
}

func (i *image) Desc() Desc {
	return i.desc
}

func (i *image) Width() uint32 {
	return i.desc.Width
}

func (i *image) Height() uint32 {
	return i.desc.Height
}

func (i *image) Format() vk.Format {
	return i.desc.Format
}

func (i *image) DebugName() string {
	return i.debugName
}

func (i *image) Transition(cb vk.CommandBuffer, prevAccess, nextAccess synch.AccessType) synch.AccessType {
	return synch.CmdImageBarrier(cb, i.handle, i.desc.Aspect, i.desc.ArrayLayers, i.desc.MipLevels, prevAccess, nextAccess)
}

func (i *image) Destroy(dev device.Device) {
	for _, view := range i.layerViews {
		if view != vk.ImageView(vk.NullHandle) {
			vk.DestroyImageView(dev.Handle(), view, nil)
		}
	}
	vk.DestroyImageView(dev.Handle(), i.view, nil)
	if !i.external {
		vk.DestroyImage(dev.Handle(), i.handle, nil)
		dev.FreeMemory(i.memory)
	}
}

// IsDepthFormat reports whether a format selects the depth aspect; the graph
// uses it to pick between color and depth-stencil attachment write accesses.
//
// Parameters:
//   - format: the format to classify
//
// Returns:
//   - bool: true for depth/depth-stencil formats
func IsDepthFormat(format vk.Format) bool {
	switch format {
	case vk.FormatD16Unorm, vk.FormatD32Sfloat, vk.FormatD16UnormS8Uint,
		vk.FormatD24UnormS8Uint, vk.FormatD32SfloatS8Uint, vk.FormatX8D24UnormPack32:
		return true
	default:
		return false
	}
}

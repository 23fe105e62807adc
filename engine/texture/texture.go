// package texture pairs an image with a sampler and the descriptor-info record
// used when writing the texture into a descriptor set or the bindless table.
package texture

import (
	"fmt"

	"github.com/Carmen-Shannon/forge-go/engine/buffer"
	"github.com/Carmen-Shannon/forge-go/engine/device"
	"github.com/Carmen-Shannon/forge-go/engine/image"
	"github.com/Carmen-Shannon/forge-go/engine/synch"
	vk "github.com/goki/vulkan"
)

// texture is the implementation of the Texture interface.
type texture struct {
	image   image.Image
	sampler vk.Sampler
}

// Texture is an image plus its sampler, ready for descriptor writes. Scene
// textures with initial pixel data are uploaded through a staging buffer on
// the setup command buffer at creation time.
type Texture interface {
	// Image returns the underlying image.
	//
	// Returns:
	//   - image.Image: the image
	Image() image.Image

	// Sampler returns the texture's sampler.
	//
	// Returns:
	//   - vk.Sampler: the sampler
	Sampler() vk.Sampler

	// DescriptorInfo returns the combined-image-sampler descriptor record with
	// the shader-read-only layout, usable in a descriptor write.
	//
	// Returns:
	//   - vk.DescriptorImageInfo: sampler + view + layout
	DescriptorInfo() vk.DescriptorImageInfo

	// StorageDescriptorInfo returns the storage-image descriptor record with the
	// general layout, usable in a descriptor write for image_write resources.
	//
	// Returns:
	//   - vk.DescriptorImageInfo: view + general layout
	StorageDescriptorInfo() vk.DescriptorImageInfo

	// Destroy releases the sampler and the image.
	//
	// Parameters:
	//   - dev: the device the texture was created on
	Destroy(dev device.Device)
}

var _ Texture = &texture{}

// NewTexture creates a texture from an image descriptor, optionally uploading
// initial pixel data. When pixels are provided the image is transitioned to
// the transfer-destination layout, filled from a staging buffer on the setup
// command buffer, and transitioned to shader-read-only.
//
// Parameters:
//   - dev: the device to create the texture on
//   - debugName: name used in logs and for graph deduplication
//   - desc: the image descriptor
//   - pixels: optional initial data (tightly packed, full extent); nil to skip upload
//
// Returns:
//   - Texture: the created texture
func NewTexture(dev device.Device, debugName string, desc image.Desc, pixels []byte) Texture {
	img := image.NewImage(dev, debugName, desc)

	t := &texture{
		image:   img,
		sampler: newDefaultSampler(dev, desc.MipLevels),
	}

	if pixels != nil {
		staging := buffer.NewBuffer(dev, debugName+"_upload", uint64(len(pixels)),
			vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit), device.MemoryLocationCPUToGPU)
		staging.UpdateMemory(dev, pixels)

		dev.ExecuteAndSubmit(func(cb vk.CommandBuffer) {
			img.Transition(cb, synch.AccessNothing, synch.AccessTransferWrite)
			staging.CopyToImage(cb, img.Handle(), desc.Width, desc.Height)
			img.Transition(cb, synch.AccessTransferWrite, synch.AccessAnyShaderReadSampledImage)
		})

		staging.Destroy(dev)
	}

	return t
}

func newDefaultSampler(dev device.Device, mipLevels uint32) vk.Sampler {
	var sampler vk.Sampler
	ret := vk.CreateSampler(dev.Handle(), &vk.SamplerCreateInfo{
		SType:        vk.StructureTypeSamplerCreateInfo,
		MagFilter:    vk.FilterLinear,
		MinFilter:    vk.FilterLinear,
		MipmapMode:   vk.SamplerMipmapModeLinear,
		AddressModeU: vk.SamplerAddressModeRepeat,
		AddressModeV: vk.SamplerAddressModeRepeat,
		AddressModeW: vk.SamplerAddressModeRepeat,
		MaxLod:       float32(mipLevels),
	}, nil, &sampler)
	if ret != vk.Success {
		panic(fmt.Sprintf("texture: sampler creation failed: %v", vk.Error(ret)))
	}
	return sampler
}

func (t *texture) Image() image.Image {
	return t.image
}

func (t *texture) Sampler() vk.Sampler {
	return t.sampler
}

func (t *texture) DescriptorInfo() vk.DescriptorImageInfo {
	return vk.DescriptorImageInfo{
		Sampler:     t.sampler,
		ImageView:   t.image.View(),
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}
}

func (t *texture) StorageDescriptorInfo() vk.DescriptorImageInfo {
	return vk.DescriptorImageInfo{
		ImageView:   t.image.View(),
		ImageLayout: vk.ImageLayoutGeneral,
	}
}

func (t *texture) Destroy(dev device.Device) {
	vk.DestroySampler(dev.Handle(), t.sampler, nil)
	t.image.Destroy(dev)
}

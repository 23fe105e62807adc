package synch

import (
	vk "github.com/goki/vulkan"
)

// ImageBarrier is the synthesized result of an image access transition, ready
// to be recorded with CmdPipelineBarrier. Needed is false when the transition
// is a read-after-read between identical access scopes, which requires no
// barrier at all.
type ImageBarrier struct {
	SrcStageMask vk.PipelineStageFlags
	DstStageMask vk.PipelineStageFlags
	SrcAccess    vk.AccessFlags
	DstAccess    vk.AccessFlags
	OldLayout    vk.ImageLayout
	NewLayout    vk.ImageLayout
	Needed       bool
}

// GlobalBarrier is the synthesized result of a global memory transition.
type GlobalBarrier struct {
	SrcStageMask vk.PipelineStageFlags
	DstStageMask vk.PipelineStageFlags
	SrcAccess    vk.AccessFlags
	DstAccess    vk.AccessFlags
	Needed       bool
}

// ComputeImageBarrier synthesizes the barrier for transitioning an image from
// prevAccess to nextAccess. It is a pure function so the executor's barrier
// minimality can be tested without a device.
//
// A source access mask is only included when the previous access performed a
// write; read-to-read hazards only require execution dependencies, and
// identical read-to-read pairs with matching layouts need nothing.
//
// Parameters:
//   - prevAccess: the access recorded by the most recent use of the image
//   - nextAccess: the access the upcoming use requires
//
// Returns:
//   - ImageBarrier: the stage masks, access masks, and layouts for the barrier; Needed is false when no barrier must be recorded
func ComputeImageBarrier(prevAccess, nextAccess AccessType) ImageBarrier {
	prev := infoFor(prevAccess)
	next := infoFor(nextAccess)

	if prevAccess == nextAccess && !prevAccess.IsWrite() && prev.layout == next.layout {
		return ImageBarrier{Needed: false}
	}

	barrier := ImageBarrier{
		SrcStageMask: prev.stageMask,
		DstStageMask: next.stageMask,
		DstAccess:    next.accessMask,
		OldLayout:    prev.layout,
		NewLayout:    next.layout,
		Needed:       true,
	}
	if prevAccess.IsWrite() {
		barrier.SrcAccess = prev.accessMask
	}
	if barrier.SrcStageMask == 0 {
		barrier.SrcStageMask = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if barrier.DstStageMask == 0 {
		barrier.DstStageMask = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return barrier
}

// ComputeGlobalBarrier synthesizes a global memory barrier for a buffer (or
// whole-queue) transition from prevAccess to nextAccess. Buffer transitions
// restrict availability and visibility only, so a single global barrier is
// used instead of per-buffer barriers.
//
// Parameters:
//   - prevAccess: the access recorded by the most recent use
//   - nextAccess: the access the upcoming use requires
//
// Returns:
//   - GlobalBarrier: stage and access masks; Needed is false for identical read-to-read pairs
func ComputeGlobalBarrier(prevAccess, nextAccess AccessType) GlobalBarrier {
	prev := infoFor(prevAccess)
	next := infoFor(nextAccess)

	if prevAccess == nextAccess && !prevAccess.IsWrite() {
		return GlobalBarrier{Needed: false}
	}

	barrier := GlobalBarrier{
		SrcStageMask: prev.stageMask,
		DstStageMask: next.stageMask,
		DstAccess:    next.accessMask,
		Needed:       true,
	}
	if prevAccess.IsWrite() {
		barrier.SrcAccess = prev.accessMask
	}
	if barrier.SrcStageMask == 0 {
		barrier.SrcStageMask = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
	}
	if barrier.DstStageMask == 0 {
		barrier.DstStageMask = vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit)
	}
	return barrier
}

// CmdImageBarrier records the synthesized image barrier for image on cb,
// covering the given subresource range. No-op when the barrier is not needed.
//
// Parameters:
//   - cb: command buffer in the recording state
//   - image: the image being transitioned
//   - aspectMask: image aspect (color or depth)
//   - layerCount: number of array layers covered
//   - levelCount: number of mip levels covered
//   - prevAccess: access recorded by the most recent use
//   - nextAccess: access the upcoming use requires
//
// Returns:
//   - AccessType: nextAccess, for convenient prev-access bookkeeping by the caller
func CmdImageBarrier(cb vk.CommandBuffer, image vk.Image, aspectMask vk.ImageAspectFlags, layerCount, levelCount uint32, prevAccess, nextAccess AccessType) AccessType {
	barrier := ComputeImageBarrier(prevAccess, nextAccess)
	if !barrier.Needed {
		return nextAccess
	}

	vk.CmdPipelineBarrier(cb,
		barrier.SrcStageMask,
		barrier.DstStageMask,
		0,
		0, nil,
		0, nil,
		1, []vk.ImageMemoryBarrier{{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       barrier.SrcAccess,
			DstAccessMask:       barrier.DstAccess,
			OldLayout:           barrier.OldLayout,
			NewLayout:           barrier.NewLayout,
			SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
			DstQueueFamilyIndex: vk.QueueFamilyIgnored,
			Image:               image,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: aspectMask,
				LevelCount: levelCount,
				LayerCount: layerCount,
			},
		}})

	return nextAccess
}

// CmdGlobalBarrier records the synthesized global memory barrier on cb.
// No-op when the barrier is not needed.
//
// Parameters:
//   - cb: command buffer in the recording state
//   - prevAccess: access recorded by the most recent use
//   - nextAccess: access the upcoming use requires
//
// Returns:
//   - AccessType: nextAccess, for convenient prev-access bookkeeping by the caller
func CmdGlobalBarrier(cb vk.CommandBuffer, prevAccess, nextAccess AccessType) AccessType {
	barrier := ComputeGlobalBarrier(prevAccess, nextAccess)
	if !barrier.Needed {
		return nextAccess
	}

	vk.CmdPipelineBarrier(cb,
		barrier.SrcStageMask,
		barrier.DstStageMask,
		0,
		1, []vk.MemoryBarrier{{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: barrier.SrcAccess,
			DstAccessMask: barrier.DstAccess,
		}},
		0, nil,
		0, nil)

	return nextAccess
}

// executor.go is the per-frame walk over the pass list: for each pass it
// synthesizes the image and global barriers from prev-access tracking, opens
// the dynamic rendering scope, binds the pipeline and the fixed descriptor
// sets, invokes the record callback, and runs the optional copy command.
package graph

import (
	"github.com/Carmen-Shannon/forge-go/engine/device"
	"github.com/Carmen-Shannon/forge-go/engine/image"
	"github.com/Carmen-Shannon/forge-go/engine/renderer"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/forge-go/engine/synch"
	vk "github.com/goki/vulkan"
)

// Render records the whole frame graph into cb, in pass declaration order.
//
// Parameters:
//   - dev: the device the frame is recorded on
//   - cb: the frame command buffer in the recording state
//   - rend: the renderer providing bindless set, TLAS, and instances
//   - presentImage: the acquired swapchain image for presentation passes
//   - rebuildTlas: true to rebuild the TLAS from the renderer's instances first
func (g *Graph) Render(dev device.Device, cb vk.CommandBuffer, rend renderer.Renderer, presentImage image.Image, rebuildTlas bool) {
	profiler := dev.FrameProfiler()
	if g.profilingEnabled && profiler != nil {
		profiler.BeginFrame(dev.Handle(), cb)
	}

	if rt := rend.Raytracing(); rt != nil && rebuildTlas {
		scope := g.beginGPUScope(dev, cb, "rebuild_tlas_pass")

		synch.CmdGlobalBarrier(cb, synch.AccessAnyShaderReadOther, synch.AccessAccelerationStructureBuildWrite)
		rt.RebuildTLAS(dev, cb, rend.Instances())
		synch.CmdGlobalBarrier(cb, synch.AccessAccelerationStructureBuildWrite, synch.AccessAnyShaderReadOther)

		g.endGPUScope(dev, cb, scope)
	}

	for _, pass := range g.passes {
		scope := g.beginGPUScope(dev, cb, pass.Name)
		g.renderPass(dev, cb, rend, pass, presentImage)
		g.endGPUScope(dev, cb, scope)
	}

	// The frame's scopes resolve at the next BeginFrame, once the fence
	// guarding this command buffer has been waited on.
}

func (g *Graph) renderPass(dev device.Device, cb vk.CommandBuffer, rend renderer.Renderer, pass *Pass, presentImage image.Image) {
	passPipeline := g.resources.Pipeline(pass.PipelineHandle)

	// Transition pass resources: reads before writes; they target different
	// access scopes and cannot conflict within one pass.
	for _, read := range pass.reads {
		switch read.kind {
		case resourceTexture:
			entry := g.resources.Texture(read.texture)
			entry.PrevAccess = entry.Texture.Image().Transition(cb, entry.PrevAccess, read.access)
		case resourceBuffer:
			entry := g.resources.Buffer(read.buffer)
			entry.PrevAccess = synch.CmdGlobalBarrier(cb, entry.PrevAccess, read.access)
		case resourceTlas:
			// Static within the frame; the rebuild step's global barriers are
			// the synchronization source.
		}
	}

	for _, barrier := range pass.extraBarriers {
		entry := g.resources.Buffer(barrier.Buffer)
		entry.PrevAccess = synch.CmdGlobalBarrier(cb, entry.PrevAccess, barrier.Access)
	}

	writesForSynch := pass.writes
	if pass.depthAttachment != nil && pass.depthAttachment.External == nil {
		writesForSynch = append(writesForSynch[:len(writesForSynch):len(writesForSynch)],
			pass.depthAttachment.Attachment)
	}
	for _, write := range writesForSynch {
		entry := g.resources.Texture(write.Texture)
		access := synch.AccessColorAttachmentWrite
		if image.IsDepthFormat(entry.Texture.Image().Format()) {
			access = synch.AccessDepthStencilAttachmentWrite
		}
		// Load-op attachments accumulating over consecutive passes stay in the
		// attachment-write scope; re-barriering would serialize them for nothing.
		if write.LoadOp == vk.AttachmentLoadOpLoad && entry.PrevAccess == access {
			continue
		}
		entry.PrevAccess = entry.Texture.Image().Transition(cb, entry.PrevAccess, access)
	}

	if pass.presentationPass {
		presentImage.Transition(cb, synch.AccessPresent, synch.AccessColorAttachmentWrite)
	}

	colors, depth, extent := g.resolveAttachments(dev, pass, presentImage)

	// Compute and ray tracing passes have no attachments and skip the
	// dynamic rendering scope entirely.
	renderingScope := passPipeline.Type() == pipeline.PipelineTypeGraphics && (len(colors) > 0 || depth != nil)
	if renderingScope {
		pass.prepareRender(dev, cb, colors, depth, extent)
	}

	bindPoint := passPipeline.Type().BindPoint()
	vk.CmdBindPipeline(cb, bindPoint, passPipeline.Handle())

	// The common sets every pass sees: bindless, view, and this pass's inputs.
	vk.CmdBindDescriptorSets(cb, bindPoint, passPipeline.Layout(),
		DescriptorSetIndexBindless, 1, []vk.DescriptorSet{rend.BindlessSet()}, 0, nil)
	vk.CmdBindDescriptorSets(cb, bindPoint, passPipeline.Layout(),
		DescriptorSetIndexView, 1, []vk.DescriptorSet{g.viewDescriptorSet.Handle()}, 0, nil)
	if pass.readResourcesSet != nil {
		vk.CmdBindDescriptorSets(cb, bindPoint, passPipeline.Layout(),
			DescriptorSetIndexInputs, 1, []vk.DescriptorSet{pass.readResourcesSet.Handle()}, 0, nil)
	}
	if pass.uniformsSet != nil {
		uniformSet := passPipeline.Reflection().GetBinding(pass.uniformName).Set
		vk.CmdBindDescriptorSets(cb, bindPoint, passPipeline.Layout(),
			uniformSet, 1, []vk.DescriptorSet{pass.uniformsSet.Handle()}, 0, nil)
	}

	if pass.renderFunc != nil {
		pass.renderFunc(dev, cb, rend, pass, g.resources)
	}

	if renderingScope {
		vk.CmdEndRendering(cb)
	}

	if pass.copyCommand != nil {
		g.executeCopyCommand(cb, pass.copyCommand)
	}
}

// resolveAttachments looks up the pass's attachment images and derives the
// render extent: the first color attachment's size, the depth attachment's
// size when there are no color attachments, or the present image's size for
// presentation passes.
func (g *Graph) resolveAttachments(dev device.Device, pass *Pass, presentImage image.Image) ([]resolvedAttachment, *resolvedAttachment, vk.Extent2D) {
	var colors []resolvedAttachment
	if pass.presentationPass {
		colors = []resolvedAttachment{{
			img:    presentImage,
			view:   FullView(),
			loadOp: vk.AttachmentLoadOpClear,
		}}
	} else {
		colors = make([]resolvedAttachment, 0, len(pass.writes))
		for _, write := range pass.writes {
			colors = append(colors, resolvedAttachment{
				img:    g.resources.Texture(write.Texture).Texture.Image(),
				view:   write.View,
				loadOp: write.LoadOp,
			})
		}
	}

	var depth *resolvedAttachment
	if attachment := pass.depthAttachment; attachment != nil {
		if attachment.External != nil {
			depth = &resolvedAttachment{
				img:    attachment.External,
				view:   FullView(),
				loadOp: attachment.ExternalLoadOp,
			}
		} else {
			depth = &resolvedAttachment{
				img:    g.resources.Texture(attachment.Attachment.Texture).Texture.Image(),
				view:   attachment.Attachment.View,
				loadOp: attachment.Attachment.LoadOp,
			}
		}
	}

	extent := vk.Extent2D{Width: 1, Height: 1}
	switch {
	case len(colors) > 0:
		extent = vk.Extent2D{Width: colors[0].img.Width(), Height: colors[0].img.Height()}
	case depth != nil:
		extent = vk.Extent2D{Width: depth.img.Width(), Height: depth.img.Height()}
	}

	return colors, depth, extent
}

// executeCopyCommand runs the pass's one-shot image copy: source to transfer
// read, destination to transfer write, aspect masks patched from the images.
func (g *Graph) executeCopyCommand(cb vk.CommandBuffer, copyCommand *TextureCopy) {
	src := g.resources.Texture(copyCommand.Src)
	dst := g.resources.Texture(copyCommand.Dst)

	src.PrevAccess = src.Texture.Image().Transition(cb, src.PrevAccess, synch.AccessTransferRead)
	dst.PrevAccess = dst.Texture.Image().Transition(cb, dst.PrevAccess, synch.AccessTransferWrite)

	region := copyCommand.Region
	region.SrcSubresource.AspectMask = src.Texture.Image().Desc().Aspect
	region.DstSubresource.AspectMask = dst.Texture.Image().Desc().Aspect

	vk.CmdCopyImage(cb,
		src.Texture.Image().Handle(), vk.ImageLayoutTransferSrcOptimal,
		dst.Texture.Image().Handle(), vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageCopy{region})
}

// beginGPUScope opens a named profiler scope when profiling is enabled.
func (g *Graph) beginGPUScope(dev device.Device, cb vk.CommandBuffer, name string) device.ActiveScope {
	if !g.profilingEnabled || dev.FrameProfiler() == nil {
		return device.ActiveScope{}
	}
	return dev.FrameProfiler().BeginScope(cb, name)
}

// endGPUScope closes a profiler scope opened by beginGPUScope.
func (g *Graph) endGPUScope(dev device.Device, cb vk.CommandBuffer, scope device.ActiveScope) {
	if !g.profilingEnabled || dev.FrameProfiler() == nil {
		return
	}
	dev.FrameProfiler().EndScope(cb, scope)
}

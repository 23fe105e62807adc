package graph

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/forge-go/engine/device"
	"github.com/Carmen-Shannon/forge-go/engine/image"
	"github.com/Carmen-Shannon/forge-go/engine/renderer"
	"github.com/Carmen-Shannon/forge-go/engine/synch"
	vk "github.com/goki/vulkan"
)

// PassBuilder accumulates the declarative configuration of a single pass.
// Build is the only place that mutates the graph: it patches the pipeline
// descriptor's attachment formats, creates or reuses the pass's uniform
// buffer, and appends the finished pass to the graph's pass list.
type PassBuilder struct {
	graph *Graph

	name           string
	pipelineHandle PipelineID

	reads            []passResource
	writes           []Attachment
	depthAttachment  *DepthAttachment
	presentationPass bool

	renderFunc    RenderFunc
	copyCommand   *TextureCopy
	extraBarriers []BufferBarrier

	// uniforms keyed by pass-prefixed unique name; the value keeps the plain
	// shader-side name next to the payload.
	uniforms map[string]uniformEntry
}

type uniformEntry struct {
	name string
	data UniformData
}

// Read adds a sampled-image read of the texture; the executor transitions it
// to AnyShaderReadSampledImage before the pass body.
//
// Parameters:
//   - tex: the texture handle to sample
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) Read(tex TextureID) *PassBuilder {
	b.reads = append(b.reads, passResource{
		kind:      resourceTexture,
		texture:   tex,
		inputType: inputCombinedImageSampler,
		access:    synch.AccessAnyShaderReadSampledImage,
	})
	return b
}

// ImageWrite adds a storage-image write of the texture; the executor
// transitions it to AnyShaderWrite before the pass body.
//
// Parameters:
//   - tex: the texture handle written as a storage image
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) ImageWrite(tex TextureID) *PassBuilder {
	b.reads = append(b.reads, passResource{
		kind:      resourceTexture,
		texture:   tex,
		inputType: inputStorageImage,
		access:    synch.AccessAnyShaderWrite,
	})
	return b
}

// ReadBuffer adds a shader read of the buffer, synchronized with a global barrier.
//
// Parameters:
//   - buf: the buffer handle to read
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) ReadBuffer(buf BufferID) *PassBuilder {
	b.reads = append(b.reads, passResource{
		kind:   resourceBuffer,
		buffer: buf,
		access: synch.AccessAnyShaderReadOther,
	})
	return b
}

// WriteBuffer adds a shader write of the buffer, synchronized with a global barrier.
//
// Parameters:
//   - buf: the buffer handle to write
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) WriteBuffer(buf BufferID) *PassBuilder {
	b.reads = append(b.reads, passResource{
		kind:   resourceBuffer,
		buffer: buf,
		access: synch.AccessAnyShaderWrite,
	})
	return b
}

// Write adds a full-view color attachment with load-op clear.
//
// Parameters:
//   - tex: the texture handle used as color attachment
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) Write(tex TextureID) *PassBuilder {
	b.writes = append(b.writes, Attachment{
		Texture: tex,
		View:    FullView(),
		LoadOp:  vk.AttachmentLoadOpClear,
	})
	return b
}

// WriteLayer adds a single-layer color attachment with load-op clear.
//
// Parameters:
//   - tex: the texture handle used as color attachment
//   - layer: the array layer to render into
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) WriteLayer(tex TextureID, layer uint32) *PassBuilder {
	b.writes = append(b.writes, Attachment{
		Texture: tex,
		View:    LayerView(layer),
		LoadOp:  vk.AttachmentLoadOpClear,
	})
	return b
}

// LoadWrite adds a full-view color attachment with load-op load, preserving
// the prior content.
//
// Parameters:
//   - tex: the texture handle used as color attachment
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) LoadWrite(tex TextureID) *PassBuilder {
	b.writes = append(b.writes, Attachment{
		Texture: tex,
		View:    FullView(),
		LoadOp:  vk.AttachmentLoadOpLoad,
	})
	return b
}

// DepthAttachment uses a graph-owned texture as cleared depth attachment.
//
// Parameters:
//   - tex: the depth texture handle
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) DepthAttachment(tex TextureID) *PassBuilder {
	b.depthAttachment = &DepthAttachment{
		Attachment: Attachment{
			Texture: tex,
			View:    FullView(),
			LoadOp:  vk.AttachmentLoadOpClear,
		},
	}
	return b
}

// DepthAttachmentLayer uses one layer of a graph-owned texture as cleared
// depth attachment.
//
// Parameters:
//   - tex: the depth texture handle
//   - layer: the array layer to render into
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) DepthAttachmentLayer(tex TextureID, layer uint32) *PassBuilder {
	b.depthAttachment = &DepthAttachment{
		Attachment: Attachment{
			Texture: tex,
			View:    LayerView(layer),
			LoadOp:  vk.AttachmentLoadOpClear,
		},
	}
	return b
}

// ExternalDepthAttachment uses a host-provided depth image that the graph does
// not own or track.
//
// Parameters:
//   - img: the external depth image
//   - loadOp: the attachment load op
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) ExternalDepthAttachment(img image.Image, loadOp vk.AttachmentLoadOp) *PassBuilder {
	b.depthAttachment = &DepthAttachment{
		External:       img,
		ExternalLoadOp: loadOp,
	}
	return b
}

// Tlas declares an acceleration-structure read. The TLAS is static within a
// frame, so the executor emits no per-pass barrier for it; the rebuild step's
// global barriers are the synchronization source.
//
// Parameters:
//   - id: the TLAS id (currently unused; the renderer owns a single TLAS)
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) Tlas(id TlasID) *PassBuilder {
	b.reads = append(b.reads, passResource{
		kind: resourceTlas,
		tlas: id,
	})
	return b
}

// ExtraBarriers adds buffer barriers emitted before the pass body for
// resources the other declarations don't cover.
//
// Parameters:
//   - barriers: buffer handles with their target access
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) ExtraBarriers(barriers ...BufferBarrier) *PassBuilder {
	b.extraBarriers = append(b.extraBarriers, barriers...)
	return b
}

// Render installs a custom record callback.
//
// Parameters:
//   - fn: the callback invoked by the executor with the pass context
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) Render(fn RenderFunc) *PassBuilder {
	b.renderFunc = fn
	return b
}

// Dispatch installs a record callback that issues one compute dispatch.
//
// Parameters:
//   - groupsX: workgroup count in x
//   - groupsY: workgroup count in y
//   - groupsZ: workgroup count in z
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) Dispatch(groupsX, groupsY, groupsZ uint32) *PassBuilder {
	b.renderFunc = func(_ device.Device, cb vk.CommandBuffer, _ renderer.Renderer, _ *Pass, _ *Resources) {
		vk.CmdDispatch(cb, groupsX, groupsY, groupsZ)
	}
	return b
}

// TraceRays installs a record callback that dispatches the pass pipeline's
// ray tracing SBT over the given dimensions.
//
// Parameters:
//   - width: ray grid width
//   - height: ray grid height
//   - depth: ray grid depth
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) TraceRays(width, height, depth uint32) *PassBuilder {
	b.renderFunc = func(_ device.Device, cb vk.CommandBuffer, _ renderer.Renderer, pass *Pass, resources *Resources) {
		sbt := resources.Pipeline(pass.PipelineHandle).SBT()
		if sbt == nil {
			panic(fmt.Sprintf("graph: pass %q traces rays without a raytracing SBT", pass.Name))
		}
		vk.CmdTraceRays(cb, &sbt.Raygen, &sbt.Miss, &sbt.Hit, &sbt.Callable, width, height, depth)
	}
	return b
}

// CopyImage queues an image copy that executes after the pass callback with
// its own transfer barriers. Aspect masks in the region are patched from the
// images at execution time.
//
// Parameters:
//   - src: the source texture handle
//   - dst: the destination texture handle
//   - region: the copy region
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) CopyImage(src, dst TextureID, region vk.ImageCopy) *PassBuilder {
	b.copyCommand = &TextureCopy{
		Src:    src,
		Dst:    dst,
		Region: region,
	}
	return b
}

// PresentationPass marks the pass as writing the swapchain image, which the
// executor substitutes for the declared color attachments.
//
// Parameters:
//   - presentation: true to render into the present image
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) PresentationPass(presentation bool) *PassBuilder {
	b.presentationPass = presentation
	return b
}

// Uniforms copies the payload bytes into the pass's named uniform entry.
// Repeated calls with the same name overwrite the entry, so the call is
// idempotent for identical payloads. The payload must fit MaxUniformsSize.
//
// Parameters:
//   - name: the shader-side uniform block name
//   - data: the payload bytes (common.StructToBytes for typed constants)
//
// Returns:
//   - *PassBuilder: the builder for chaining
func (b *PassBuilder) Uniforms(name string, data []byte) *PassBuilder {
	if len(data) > MaxUniformsSize {
		panic(fmt.Sprintf("graph: pass %q uniform %q of %d bytes exceeds the %d byte capacity",
			b.name, name, len(data), MaxUniformsSize))
	}

	uniqueName := b.name + "_" + name
	entry, ok := b.uniforms[uniqueName]
	if !ok {
		entry = uniformEntry{name: name}
	}
	copy(entry.data.Data[:], data)
	entry.data.Size = uint64(len(data))
	b.uniforms[uniqueName] = entry
	return b
}

// Build finalizes the pass and appends it to the graph: the pipeline
// descriptor's color and depth attachment formats are patched from the
// declared writes (so compilation in Prepare sees correct formats), and the
// pass's uniform buffer is created or reused by name.
//
// Parameters:
//   - dev: the device used for uniform buffer creation
func (b *PassBuilder) Build(dev device.Device) {
	pass := &Pass{
		Name:             b.name,
		PipelineHandle:   b.pipelineHandle,
		reads:            b.reads,
		writes:           b.writes,
		depthAttachment:  b.depthAttachment,
		presentationPass: b.presentationPass,
		renderFunc:       b.renderFunc,
		copyCommand:      b.copyCommand,
		extraBarriers:    b.extraBarriers,
		uniformBuffer:    -1,
	}

	// Update attachment formats now that all writes are known.
	desc := &b.graph.pipelineDescs[b.pipelineHandle]
	desc.ColorAttachmentFormats = desc.ColorAttachmentFormats[:0]
	for _, write := range pass.writes {
		desc.ColorAttachmentFormats = append(desc.ColorAttachmentFormats,
			b.graph.resources.Texture(write.Texture).Texture.Image().Format())
	}
	if depth := pass.depthAttachment; depth != nil {
		if depth.External != nil {
			desc.DepthStencilFormat = depth.External.Format()
		} else {
			desc.DepthStencilFormat = b.graph.resources.Texture(depth.Attachment.Texture).Texture.Image().Format()
		}
	}

	if len(b.uniforms) > 1 {
		panic(fmt.Sprintf("graph: pass %q declares %d uniform entries; one uniform buffer per pass is supported",
			b.name, len(b.uniforms)))
	}
	for uniqueName, entry := range b.uniforms {
		pass.uniformName = entry.name
		pass.uniformData = entry.data
		// The buffer is cached by name across frames; sizing it to the full
		// inline capacity keeps the cached buffer valid when a later frame
		// supplies a larger payload under the same name.
		pass.uniformBuffer = b.graph.CreateBuffer(uniqueName, dev, MaxUniformsSize,
			vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit), device.MemoryLocationCPUToGPU)
	}

	b.graph.passes = append(b.graph.passes, pass)
}

// warnOnce logs builder misuse once per message; kept package-private so the
// builder can flag soft issues without spamming every frame.
var warned = map[string]bool{}

func warnOnce(message string) {
	if warned[message] {
		return
	}
	warned[message] = true
	log.Printf("[Graph] %s", message)
}

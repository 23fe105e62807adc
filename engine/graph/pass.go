package graph

import (
	"fmt"

	"github.com/Carmen-Shannon/forge-go/engine/device"
	"github.com/Carmen-Shannon/forge-go/engine/image"
	"github.com/Carmen-Shannon/forge-go/engine/renderer"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/descriptor"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/shader"
	"github.com/Carmen-Shannon/forge-go/engine/synch"
	vk "github.com/goki/vulkan"
)

// MaxUniformsSize is the fixed capacity of a pass's inline uniform blob.
const MaxUniformsSize = 2048

// UniformData is a fixed-capacity inline byte buffer for per-pass constants.
type UniformData struct {
	Data [MaxUniformsSize]byte
	Size uint64
}

// RenderFunc is a pass's record callback. It runs inside an open dynamic
// rendering scope for graphics passes, with the pipeline and the common
// descriptor sets already bound and viewport + scissor set. It must not end
// the rendering scope, submit, or mutate the graph's resource arrays.
type RenderFunc func(dev device.Device, cb vk.CommandBuffer, rend renderer.Renderer, pass *Pass, resources *Resources)

// View selects a texture view for an attachment.
type View struct {
	// PerLayer selects the single-layer view at Layer instead of the full view.
	PerLayer bool
	Layer    uint32
}

// FullView selects the whole image.
//
// Returns:
//   - View: the full-image view choice
func FullView() View {
	return View{}
}

// LayerView selects one array layer.
//
// Parameters:
//   - layer: the array layer index
//
// Returns:
//   - View: the per-layer view choice
func LayerView(layer uint32) View {
	return View{PerLayer: true, Layer: layer}
}

// resolve picks the vk.ImageView matching the view choice.
func (v View) resolve(dev device.Device, img image.Image) vk.ImageView {
	if v.PerLayer {
		return img.LayerView(dev, v.Layer)
	}
	return img.View()
}

// Attachment is a color or depth write target.
type Attachment struct {
	Texture TextureID
	View    View
	LoadOp  vk.AttachmentLoadOp
}

// DepthAttachment is either a graph-owned attachment or an externally
// supplied depth image (e.g. the swapchain-associated depth buffer).
type DepthAttachment struct {
	// Attachment is the graph-owned target; valid when External is nil.
	Attachment Attachment

	// External is the host-provided depth image, nil for graph-owned depth.
	External image.Image

	// ExternalLoadOp is the load op for the external image.
	ExternalLoadOp vk.AttachmentLoadOp
}

// textureInputType distinguishes sampled reads from storage-image writes in
// the per-pass read-resources set.
type textureInputType int

const (
	inputCombinedImageSampler textureInputType = iota
	inputStorageImage
)

// resourceKind tags the read-resource union.
type resourceKind int

const (
	resourceTexture resourceKind = iota
	resourceBuffer
	resourceTlas
)

// passResource is a declared read (or storage write) of a pass.
type passResource struct {
	kind resourceKind

	texture   TextureID
	inputType textureInputType

	buffer BufferID

	tlas TlasID

	access synch.AccessType
}

// BufferBarrier is an extra buffer transition emitted before a pass body.
type BufferBarrier struct {
	Buffer BufferID
	Access synch.AccessType
}

// TextureCopy is a one-shot image copy executed after the pass callback.
type TextureCopy struct {
	Src    TextureID
	Dst    TextureID
	Region vk.ImageCopy
}

// Pass is a compiled pass record, rebuilt every frame from its builder. The
// two descriptor sets are allocated lazily the first frame the pass runs and
// released when the pass list is cleared.
type Pass struct {
	// Name is the pass name used for scopes and uniform buffer naming.
	Name string

	// PipelineHandle is the pass's pipeline id in the graph's resource arrays.
	PipelineHandle PipelineID

	reads            []passResource
	writes           []Attachment
	depthAttachment  *DepthAttachment
	presentationPass bool

	renderFunc    RenderFunc
	copyCommand   *TextureCopy
	extraBarriers []BufferBarrier

	// uniformName and uniformData are the pass's single named uniform entry;
	// uniformBuffer is the graph buffer it uploads into (-1 when unused).
	uniformName   string
	uniformData   UniformData
	uniformBuffer BufferID

	readResourcesSet descriptor.DescriptorSet
	uniformsSet      descriptor.DescriptorSet
}

// UniformBuffer returns the pass's uniform buffer handle, or -1 when the pass
// declares no uniforms.
//
// Returns:
//   - BufferID: the uniform buffer handle or -1
func (p *Pass) UniformBuffer() BufferID {
	return p.uniformBuffer
}

// tryCreateReadResourcesDescriptorSet allocates and fills the per-pass input
// set (descriptor set 2) the first frame the pass runs. Reads are written in
// declaration order at consecutive binding indices; TLAS reads resolve to the
// acceleration-structure binding by name.
func (p *Pass) tryCreateReadResourcesDescriptorSet(dev device.Device, resources *Resources, tlas vk.AccelerationStructure) {
	if len(p.reads) == 0 || p.readResourcesSet != nil {
		return
	}

	pipe := resources.Pipeline(p.PipelineHandle)
	layouts := pipe.DescriptorSetLayouts()
	if int(DescriptorSetIndexInputs) >= len(layouts) {
		return
	}

	set := descriptor.NewDescriptorSet(dev,
		layouts[DescriptorSetIndexInputs],
		pipe.Reflection().GetSetMappings(DescriptorSetIndexInputs))

	binding := uint32(0)
	for _, read := range p.reads {
		switch read.kind {
		case resourceTexture:
			set.WriteTextureAt(dev, binding, resources.Texture(read.texture).Texture,
				read.inputType == inputStorageImage)
			binding++
		case resourceBuffer:
			// Buffer reads live in the pass input set only when the shader
			// declares them there; resolved by binding order like textures.
			set.WriteStorageBuffer(dev, bindingNameAt(pipe, DescriptorSetIndexInputs, binding),
				resources.Buffer(read.buffer).Buffer)
			binding++
		case resourceTlas:
			for name, b := range pipe.Reflection().GetSetMappings(DescriptorSetIndexInputs) {
				if b.Info.Type == shader.DescriptorTypeAccelerationStructure {
					set.WriteAccelerationStructure(dev, name, tlas)
				}
			}
		}
	}

	p.readResourcesSet = set
}

// bindingNameAt resolves the name declared at (set, binding) for order-based
// buffer writes.
func bindingNameAt(pipe pipeline.Pipeline, set, binding uint32) string {
	for name, b := range pipe.Reflection().GetSetMappings(set) {
		if b.Binding == binding {
			return name
		}
	}
	panic(fmt.Sprintf("graph: no binding %d in descriptor set %d", binding, set))
}

// tryCreateUniformsDescriptorSet allocates the pass's uniform set the first
// frame it runs, at the set index the shader declares for the uniform name.
func (p *Pass) tryCreateUniformsDescriptorSet(dev device.Device, resources *Resources) {
	if p.uniformName == "" || p.uniformsSet != nil {
		return
	}

	pipe := resources.Pipeline(p.PipelineHandle)
	binding := pipe.Reflection().GetBinding(p.uniformName)

	set := descriptor.NewDescriptorSet(dev,
		pipe.DescriptorSetLayouts()[binding.Set],
		pipe.Reflection().GetSetMappings(binding.Set))
	set.WriteUniformBuffer(dev, p.uniformName, resources.Buffer(p.uniformBuffer).Buffer)

	p.uniformsSet = set
}

// updateUniformBufferMemory uploads the inline uniform blob into the pass's
// uniform buffer.
func (p *Pass) updateUniformBufferMemory(dev device.Device, resources *Resources) {
	if p.uniformBuffer < 0 {
		return
	}
	resources.Buffer(p.uniformBuffer).Buffer.UpdateMemory(dev, p.uniformData.Data[:p.uniformData.Size])
}

// releaseDescriptorSets frees the lazily allocated per-pass sets; called when
// the pass list is cleared.
func (p *Pass) releaseDescriptorSets(dev device.Device) {
	if p.readResourcesSet != nil {
		p.readResourcesSet.Destroy(dev)
		p.readResourcesSet = nil
	}
	if p.uniformsSet != nil {
		p.uniformsSet.Destroy(dev)
		p.uniformsSet = nil
	}
}

// resolvedAttachment is an attachment with its image looked up, ready for the
// dynamic rendering scope.
type resolvedAttachment struct {
	img    image.Image
	view   View
	loadOp vk.AttachmentLoadOp
}

// prepareRender opens the dynamic rendering scope with the resolved color and
// depth attachments and sets the flipped-Y viewport and the scissor derived
// from the pass extent.
func (p *Pass) prepareRender(dev device.Device, cb vk.CommandBuffer, colors []resolvedAttachment, depth *resolvedAttachment, extent vk.Extent2D) {
	colorInfos := make([]vk.RenderingAttachmentInfo, len(colors))
	for i, attachment := range colors {
		var clear vk.ClearValue
		clear.SetColor([]float32{0, 0, 0, 0})
		colorInfos[i] = vk.RenderingAttachmentInfo{
			SType:       vk.StructureTypeRenderingAttachmentInfo,
			ImageView:   attachment.view.resolve(dev, attachment.img),
			ImageLayout: vk.ImageLayoutColorAttachmentOptimal,
			LoadOp:      attachment.loadOp,
			StoreOp:     vk.AttachmentStoreOpStore,
			ClearValue:  clear,
		}
	}

	renderingInfo := vk.RenderingInfo{
		SType:      vk.StructureTypeRenderingInfo,
		LayerCount: 1,
		RenderArea: vk.Rect2D{
			Extent: extent,
		},
		ColorAttachmentCount: uint32(len(colorInfos)),
		PColorAttachments:    colorInfos,
	}

	if depth != nil {
		var clear vk.ClearValue
		clear.SetDepthStencil(1.0, 0)
		renderingInfo.PDepthAttachment = &vk.RenderingAttachmentInfo{
			SType:       vk.StructureTypeRenderingAttachmentInfo,
			ImageView:   depth.view.resolve(dev, depth.img),
			ImageLayout: vk.ImageLayoutDepthStencilAttachmentOptimal,
			LoadOp:      depth.loadOp,
			StoreOp:     vk.AttachmentStoreOpStore,
			ClearValue:  clear,
		}
	}

	vk.CmdBeginRendering(cb, &renderingInfo)

	// Flipped-Y viewport so world-space Y points up with GLSL conventions.
	vk.CmdSetViewport(cb, 0, 1, []vk.Viewport{{
		X:        0,
		Y:        float32(extent.Height),
		Width:    float32(extent.Width),
		Height:   -float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(cb, 0, 1, []vk.Rect2D{{
		Extent: extent,
	}})
}

package pipeline

import (
	"fmt"
	"unsafe"

	"github.com/Carmen-Shannon/forge-go/engine/device"
	vk "github.com/goki/vulkan"
)

// createGraphicsPipeline builds a render-pass-less graphics pipeline: the
// attachment formats come from the descriptor through a
// PipelineRenderingCreateInfo chain, and viewport + scissor are dynamic so the
// executor can size them per pass.
func createGraphicsPipeline(dev device.Device, desc Desc, modules []vk.ShaderModule, layout vk.PipelineLayout) vk.Pipeline {
	stages := []vk.PipelineShaderStageCreateInfo{
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageVertexBit,
			Module: modules[0],
			PName:  "main\x00",
		},
		{
			SType:  vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:  vk.ShaderStageFragmentBit,
			Module: modules[1],
			PName:  "main\x00",
		},
	}

	vertexInput := vk.PipelineVertexInputStateCreateInfo{
		SType:                           vk.StructureTypePipelineVertexInputStateCreateInfo,
		VertexBindingDescriptionCount:   uint32(len(desc.VertexInputBindings)),
		PVertexBindingDescriptions:      desc.VertexInputBindings,
		VertexAttributeDescriptionCount: uint32(len(desc.VertexInputAttributes)),
		PVertexAttributeDescriptions:    desc.VertexInputAttributes,
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:    vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology: desc.Topology,
	}

	// Viewport and scissor are dynamic; the counts still have to be declared.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterization := vk.PipelineRasterizationStateCreateInfo{
		SType:       vk.StructureTypePipelineRasterizationStateCreateInfo,
		PolygonMode: vk.PolygonModeFill,
		CullMode:    vk.CullModeFlags(desc.CullMode),
		FrontFace:   desc.FrontFace,
		LineWidth:   1.0,
	}

	multisample := vk.PipelineMultisampleStateCreateInfo{
		SType:                vk.StructureTypePipelineMultisampleStateCreateInfo,
		RasterizationSamples: vk.SampleCount1Bit,
	}

	depthTest := vk.Bool32(vk.False)
	if desc.DepthTestEnabled {
		depthTest = vk.Bool32(vk.True)
	}
	depthWrite := vk.Bool32(vk.False)
	if desc.DepthWriteEnabled {
		depthWrite = vk.Bool32(vk.True)
	}
	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:            vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:  depthTest,
		DepthWriteEnable: depthWrite,
		DepthCompareOp:   vk.CompareOpLessOrEqual,
		MaxDepthBounds:   1.0,
	}

	blendAttachments := make([]vk.PipelineColorBlendAttachmentState, len(desc.ColorAttachmentFormats))
	for i := range blendAttachments {
		blendAttachments[i] = vk.PipelineColorBlendAttachmentState{
			ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit |
				vk.ColorComponentGBit | vk.ColorComponentBBit | vk.ColorComponentABit),
		}
	}
	colorBlend := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		AttachmentCount: uint32(len(blendAttachments)),
		PAttachments:    blendAttachments,
	}

	dynamicStates := []vk.DynamicState{vk.DynamicStateViewport, vk.DynamicStateScissor}
	dynamicState := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	renderingInfo := vk.PipelineRenderingCreateInfo{
		SType:                   vk.StructureTypePipelineRenderingCreateInfo,
		ColorAttachmentCount:    uint32(len(desc.ColorAttachmentFormats)),
		PColorAttachmentFormats: desc.ColorAttachmentFormats,
		DepthAttachmentFormat:   desc.DepthStencilFormat,
	}

	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateGraphicsPipelines(dev.Handle(), vk.PipelineCache(vk.NullHandle), 1,
		[]vk.GraphicsPipelineCreateInfo{{
			SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
			PNext:               unsafe.Pointer(&renderingInfo),
			StageCount:          uint32(len(stages)),
			PStages:             stages,
			PVertexInputState:   &vertexInput,
			PInputAssemblyState: &inputAssembly,
			PViewportState:      &viewportState,
			PRasterizationState: &rasterization,
			PMultisampleState:   &multisample,
			PDepthStencilState:  &depthStencil,
			PColorBlendState:    &colorBlend,
			PDynamicState:       &dynamicState,
			Layout:              layout,
		}}, nil, pipelines)
	if ret != vk.Success {
		panic(fmt.Sprintf("pipeline: graphics pipeline creation failed: %v", vk.Error(ret)))
	}
	return pipelines[0]
}

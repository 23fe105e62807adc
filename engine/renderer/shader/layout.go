// layout.go synthesizes Vulkan descriptor-set layouts and the pipeline layout
// from a merged reflection. Set 0 is reserved for the engine's bindless table:
// the externally supplied bindless layout is used there in place of whatever
// the shader declared, and no layout is created from those declarations.
package shader

import (
	"fmt"

	vk "github.com/goki/vulkan"
)

// ToVkDescriptorType maps a reflected descriptor type to the Vulkan enum.
//
// Parameters:
//   - t: the reflected descriptor type
//
// Returns:
//   - vk.DescriptorType: the Vulkan descriptor type
func ToVkDescriptorType(t DescriptorType) vk.DescriptorType {
	switch t {
	case DescriptorTypeCombinedImageSampler:
		return vk.DescriptorTypeCombinedImageSampler
	case DescriptorTypeSampledImage:
		return vk.DescriptorTypeSampledImage
	case DescriptorTypeStorageImage:
		return vk.DescriptorTypeStorageImage
	case DescriptorTypeUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case DescriptorTypeStorageBuffer:
		return vk.DescriptorTypeStorageBuffer
	case DescriptorTypeAccelerationStructure:
		return vk.DescriptorTypeAccelerationStructure
	default:
		panic(fmt.Sprintf("shader: unsupported descriptor type %d", t))
	}
}

// CreateLayoutsFromReflection materializes one descriptor-set layout per
// declared set (descriptor count 1, stage flags ALL — variable counts are the
// bindless layout's business), substitutes the externally owned layouts at
// the reserved set indices — bindless at set 0, view at set 1 — and builds
// the pipeline layout including the merged push-constant range.
//
// The executor binds the bindless and view sets unconditionally, so the
// reserved slots are always present in the pipeline layout regardless of what
// the shader declared (or omitted) there. Other set indices may be sparse;
// gaps get empty layouts so that set N binds at index N.
//
// Panics on driver failure, per the fail-fast contract.
//
// Parameters:
//   - dev: the logical device
//   - reflection: the merged reflection of all pipeline stages
//   - bindlessLayout: the engine's bindless set layout, substituted at set 0; pass the null handle to keep the shader-declared layout
//   - viewLayout: the graph's view set layout, substituted at set 1; pass the null handle to keep the shader-declared layout
//
// Returns:
//   - vk.PipelineLayout: the pipeline layout
//   - []vk.DescriptorSetLayout: one layout per set index, bindless at 0 and view at 1
//   - []vk.PushConstantRange: the push-constant ranges (at most one)
func CreateLayoutsFromReflection(dev vk.Device, reflection *Reflection, bindlessLayout, viewLayout vk.DescriptorSetLayout) (vk.PipelineLayout, []vk.DescriptorSetLayout, []vk.PushConstantRange) {
	nullLayout := vk.DescriptorSetLayout(vk.NullHandle)

	var maxSet uint32
	for _, set := range reflection.SetIndices() {
		if set > maxSet {
			maxSet = set
		}
	}
	// The reserved slots exist even when the shader declares nothing there.
	if viewLayout != nullLayout && maxSet < 1 {
		maxSet = 1
	}

	setLayouts := make([]vk.DescriptorSetLayout, maxSet+1)
	for set := uint32(0); set <= maxSet; set++ {
		// Substituted slots never get a shader-derived layout; creating one
		// just to overwrite it would leak it.
		if set == 0 && bindlessLayout != nullLayout {
			setLayouts[set] = bindlessLayout
			continue
		}
		if set == 1 && viewLayout != nullLayout {
			setLayouts[set] = viewLayout
			continue
		}

		bindings := reflection.SetBindings(set)

		layoutBindings := make([]vk.DescriptorSetLayoutBinding, 0, len(bindings))
		for bindingIdx, info := range bindings {
			layoutBindings = append(layoutBindings, vk.DescriptorSetLayoutBinding{
				Binding:         bindingIdx,
				DescriptorType:  ToVkDescriptorType(info.Type),
				DescriptorCount: 1,
				StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
			})
		}

		var layout vk.DescriptorSetLayout
		ret := vk.CreateDescriptorSetLayout(dev, &vk.DescriptorSetLayoutCreateInfo{
			SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
			BindingCount: uint32(len(layoutBindings)),
			PBindings:    layoutBindings,
		}, nil, &layout)
		if ret != vk.Success {
			panic(fmt.Sprintf("shader: descriptor set layout creation failed for set %d: %v", set, vk.Error(ret)))
		}
		setLayouts[set] = layout
	}

	var pushConstantRanges []vk.PushConstantRange
	if pc := reflection.PushConstant(); pc != nil {
		pushConstantRanges = append(pushConstantRanges, vk.PushConstantRange{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageAll),
			Offset:     pc.Offset,
			Size:       pc.Size,
		})
	}

	var pipelineLayout vk.PipelineLayout
	ret := vk.CreatePipelineLayout(dev, &vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(setLayouts)),
		PSetLayouts:            setLayouts,
		PushConstantRangeCount: uint32(len(pushConstantRanges)),
		PPushConstantRanges:    pushConstantRanges,
	}, nil, &pipelineLayout)
	if ret != vk.Success {
		panic(fmt.Sprintf("shader: pipeline layout creation failed: %v", vk.Error(ret)))
	}

	return pipelineLayout, setLayouts, pushConstantRanges
}

// CreateShaderModule wraps a SPIR-V binary in a vk.ShaderModule.
//
// Parameters:
//   - dev: the logical device
//   - spirv: the SPIR-V binary
//
// Returns:
//   - vk.ShaderModule: the shader module
func CreateShaderModule(dev vk.Device, spirv []byte) vk.ShaderModule {
	code := make([]uint32, len(spirv)/4)
	for i := range code {
		code[i] = uint32(spirv[i*4]) | uint32(spirv[i*4+1])<<8 | uint32(spirv[i*4+2])<<16 | uint32(spirv[i*4+3])<<24
	}

	var module vk.ShaderModule
	ret := vk.CreateShaderModule(dev, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint64(len(spirv)),
		PCode:    code,
	}, nil, &module)
	if ret != vk.Success {
		panic(fmt.Sprintf("shader: shader module creation failed: %v", vk.Error(ret)))
	}
	return module
}

package pipeline

import (
	"fmt"
	"log"

	"github.com/Carmen-Shannon/forge-go/engine/device"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/shader"
	vk "github.com/goki/vulkan"
)

// PipelineType identifies how a pipeline is bound and dispatched.
type PipelineType int

const (
	// PipelineTypeGraphics is a vertex + fragment pipeline recorded inside a
	// dynamic rendering scope.
	PipelineTypeGraphics PipelineType = iota

	// PipelineTypeCompute is a compute pipeline.
	PipelineTypeCompute

	// PipelineTypeRaytracing is a ray tracing pipeline with an SBT.
	PipelineTypeRaytracing
)

// BindPoint returns the Vulkan bind point for the pipeline type.
func (t PipelineType) BindPoint() vk.PipelineBindPoint {
	switch t {
	case PipelineTypeCompute:
		return vk.PipelineBindPointCompute
	case PipelineTypeRaytracing:
		return vk.PipelineBindPointRayTracing
	default:
		return vk.PipelineBindPointGraphics
	}
}

// pipeline is the implementation of the Pipeline interface.
type pipeline struct {
	handle       vk.Pipeline
	pipelineType PipelineType

	layout          vk.PipelineLayout
	setLayouts      []vk.DescriptorSetLayout
	ownedSetLayouts []vk.DescriptorSetLayout
	reflection      *shader.Reflection

	sbt *SBT

	desc        Desc
	includeRoot string

	// includes are the header files that went into the stage compilations; a
	// change to any of them also triggers a rebuild during hot reload.
	includes []string
}

// Pipeline is a compiled pipeline: the handle, its layouts, its merged
// reflection, and for ray tracing pipelines the SBT regions. It keeps its
// descriptor so the cache can recompile it in place after a shader change.
type Pipeline interface {
	// Handle returns the compiled vk.Pipeline.
	//
	// Returns:
	//   - vk.Pipeline: the pipeline handle
	Handle() vk.Pipeline

	// Type returns the pipeline type tag.
	//
	// Returns:
	//   - PipelineType: graphics, compute, or ray tracing
	Type() PipelineType

	// Layout returns the pipeline layout.
	//
	// Returns:
	//   - vk.PipelineLayout: the layout
	Layout() vk.PipelineLayout

	// DescriptorSetLayouts returns the per-set layouts, bindless at index 0.
	//
	// Returns:
	//   - []vk.DescriptorSetLayout: one layout per set index
	DescriptorSetLayouts() []vk.DescriptorSetLayout

	// Reflection returns the merged reflection of all stages.
	//
	// Returns:
	//   - *shader.Reflection: the reflection
	Reflection() *shader.Reflection

	// Desc returns the descriptor the pipeline was compiled from.
	//
	// Returns:
	//   - Desc: the pipeline descriptor
	Desc() Desc

	// SBT returns the shader binding table for ray tracing pipelines, nil otherwise.
	//
	// Returns:
	//   - *SBT: the SBT or nil
	SBT() *SBT

	// ReferencesShader reports whether the pipeline's stages or their includes
	// use the given source path.
	//
	// Parameters:
	//   - path: the changed shader source path
	//
	// Returns:
	//   - bool: true if the pipeline must be rebuilt for this path
	ReferencesShader(path string) bool

	// Recreate recompiles the pipeline in place after a shader source change.
	// On failure the previous handle and layouts stay live and the error is
	// returned for the caller to log.
	//
	// Parameters:
	//   - dev: the device the pipeline was created on
	//   - bindlessLayout: the bindless layout substituted at set 0
	//   - viewLayout: the view layout substituted at set 1
	//
	// Returns:
	//   - error: the compile or reflection error, or nil on success
	Recreate(dev device.Device, bindlessLayout, viewLayout vk.DescriptorSetLayout) error

	// Destroy releases the pipeline and its owned layouts.
	//
	// Parameters:
	//   - dev: the device the pipeline was created on
	Destroy(dev device.Device)
}

var _ Pipeline = &pipeline{}

// compiled carries everything one compilation attempt produced, so Recreate
// can swap state atomically only after the whole attempt succeeded.
type compiled struct {
	handle     vk.Pipeline
	layout     vk.PipelineLayout
	setLayouts []vk.DescriptorSetLayout
	// ownedSetLayouts are the shader-derived layouts this compilation created;
	// the substituted bindless and view layouts are shared and never freed here.
	ownedSetLayouts []vk.DescriptorSetLayout
	reflection      *shader.Reflection
	sbt             *SBT
	includes        []string
}

// NewPipeline compiles the descriptor into a pipeline. The descriptor's stage
// paths select the pipeline type: compute path → compute, raygen path → ray
// tracing, otherwise graphics.
//
// Parameters:
//   - dev: the device to compile on
//   - desc: the pipeline descriptor
//   - bindlessLayout: the bindless layout substituted at set 0
//   - viewLayout: the view layout substituted at set 1
//   - includeRoot: shared shader header directory; empty for the default
//
// Returns:
//   - Pipeline: the compiled pipeline
//   - error: a *shader.CompileError or *shader.ReflectionError on failure
func NewPipeline(dev device.Device, desc Desc, bindlessLayout, viewLayout vk.DescriptorSetLayout, includeRoot string) (Pipeline, error) {
	p := &pipeline{
		pipelineType: classify(desc),
		desc:         desc,
		includeRoot:  includeRoot,
	}

	result, err := p.compile(dev, bindlessLayout, viewLayout)
	if err != nil {
		return nil, err
	}
	p.apply(result)

	return p, nil
}

func classify(desc Desc) PipelineType {
	switch {
	case desc.ComputePath != "":
		return PipelineTypeCompute
	case desc.RaygenPath != "":
		return PipelineTypeRaytracing
	default:
		return PipelineTypeGraphics
	}
}

func (p *pipeline) apply(result *compiled) {
	p.handle = result.handle
	p.layout = result.layout
	p.setLayouts = result.setLayouts
	p.ownedSetLayouts = result.ownedSetLayouts
	p.reflection = result.reflection
	p.sbt = result.sbt
	p.includes = result.includes
}

// stagePaths returns the source paths for the pipeline's stages in stage order.
func (p *pipeline) stagePaths() []string {
	switch p.pipelineType {
	case PipelineTypeCompute:
		return []string{p.desc.ComputePath}
	case PipelineTypeRaytracing:
		return []string{p.desc.RaygenPath, p.desc.MissPath, p.desc.HitPath}
	default:
		return []string{p.desc.VertexPath, p.desc.FragmentPath}
	}
}

func (p *pipeline) compile(dev device.Device, bindlessLayout, viewLayout vk.DescriptorSetLayout) (*compiled, error) {
	paths := p.stagePaths()

	binaries := make([][]byte, 0, len(paths))
	var includes []string
	for _, path := range paths {
		spirv, stageIncludes, err := shader.CompileGLSL(path, p.includeRoot)
		if err != nil {
			return nil, err
		}
		binaries = append(binaries, spirv)
		includes = append(includes, stageIncludes...)
	}

	reflection, err := shader.NewReflection(binaries)
	if err != nil {
		return nil, err
	}

	layout, setLayouts, _ := shader.CreateLayoutsFromReflection(dev.Handle(), reflection, bindlessLayout, viewLayout)

	owned := make([]vk.DescriptorSetLayout, 0, len(setLayouts))
	for _, setLayout := range setLayouts {
		if setLayout != bindlessLayout && setLayout != viewLayout {
			owned = append(owned, setLayout)
		}
	}

	modules := make([]vk.ShaderModule, len(binaries))
	for i, spirv := range binaries {
		modules[i] = shader.CreateShaderModule(dev.Handle(), spirv)
	}
	defer func() {
		for _, module := range modules {
			vk.DestroyShaderModule(dev.Handle(), module, nil)
		}
	}()

	result := &compiled{
		layout:          layout,
		setLayouts:      setLayouts,
		ownedSetLayouts: owned,
		reflection:      reflection,
		includes:        includes,
	}

	switch p.pipelineType {
	case PipelineTypeCompute:
		result.handle = createComputePipeline(dev, modules[0], layout)
	case PipelineTypeRaytracing:
		handle, sbt := createRaytracingPipeline(dev, modules, layout)
		result.handle = handle
		result.sbt = sbt
	default:
		result.handle = createGraphicsPipeline(dev, p.desc, modules, layout)
	}

	return result, nil
}

func (p *pipeline) Handle() vk.Pipeline {
	return p.handle
}

func (p *pipeline) Type() PipelineType {
	return p.pipelineType
}

func (p *pipeline) Layout() vk.PipelineLayout {
	return p.layout
}

func (p *pipeline) DescriptorSetLayouts() []vk.DescriptorSetLayout {
	return p.setLayouts
}

func (p *pipeline) Reflection() *shader.Reflection {
	return p.reflection
}

func (p *pipeline) Desc() Desc {
	return p.desc
}

func (p *pipeline) SBT() *SBT {
	return p.sbt
}

func (p *pipeline) ReferencesShader(path string) bool {
	if p.desc.ReferencesShader(path) {
		return true
	}
	for _, include := range p.includes {
		if include == path || hasPathSuffix(path, include) || hasPathSuffix(include, path) {
			return true
		}
	}
	return false
}

func (p *pipeline) Recreate(dev device.Device, bindlessLayout, viewLayout vk.DescriptorSetLayout) error {
	result, err := p.compile(dev, bindlessLayout, viewLayout)
	if err != nil {
		return err
	}

	// In-flight frames may still reference the old handle and layouts.
	dev.WaitIdle()
	oldHandle := p.handle
	oldLayout := p.layout
	oldOwnedSetLayouts := p.ownedSetLayouts
	oldSBT := p.sbt

	p.apply(result)

	vk.DestroyPipeline(dev.Handle(), oldHandle, nil)
	vk.DestroyPipelineLayout(dev.Handle(), oldLayout, nil)
	for _, setLayout := range oldOwnedSetLayouts {
		vk.DestroyDescriptorSetLayout(dev.Handle(), setLayout, nil)
	}
	if oldSBT != nil {
		oldSBT.destroy(dev)
	}

	log.Printf("[Pipeline] Recompiled %v", p.stagePaths())
	return nil
}

func (p *pipeline) Destroy(dev device.Device) {
	vk.DestroyPipeline(dev.Handle(), p.handle, nil)
	vk.DestroyPipelineLayout(dev.Handle(), p.layout, nil)
	for _, setLayout := range p.ownedSetLayouts {
		vk.DestroyDescriptorSetLayout(dev.Handle(), setLayout, nil)
	}
	if p.sbt != nil {
		p.sbt.destroy(dev)
	}
}

func createComputePipeline(dev device.Device, module vk.ShaderModule, layout vk.PipelineLayout) vk.Pipeline {
	pipelines := make([]vk.Pipeline, 1)
	ret := vk.CreateComputePipelines(dev.Handle(), vk.PipelineCache(vk.NullHandle), 1,
		[]vk.ComputePipelineCreateInfo{{
			SType: vk.StructureTypeComputePipelineCreateInfo,
			Stage: vk.PipelineShaderStageCreateInfo{
				SType:  vk.StructureTypePipelineShaderStageCreateInfo,
				Stage:  vk.ShaderStageComputeBit,
				Module: module,
				PName:  "main\x00",
			},
			Layout: layout,
		}}, nil, pipelines)
	if ret != vk.Success {
		panic(fmt.Sprintf("pipeline: compute pipeline creation failed: %v", vk.Error(ret)))
	}
	return pipelines[0]
}

package graph

import (
	"fmt"
	"log"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/automation/tools/worker"
	"github.com/Carmen-Shannon/forge-go/engine/buffer"
	"github.com/Carmen-Shannon/forge-go/engine/device"
	"github.com/Carmen-Shannon/forge-go/engine/image"
	"github.com/Carmen-Shannon/forge-go/engine/renderer"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/descriptor"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/shader"
	"github.com/Carmen-Shannon/forge-go/engine/synch"
	"github.com/Carmen-Shannon/forge-go/engine/texture"
	vk "github.com/goki/vulkan"
)

// Fixed descriptor set indices shared by every pipeline layout.
const (
	// DescriptorSetIndexBindless is the engine-wide bindless table.
	DescriptorSetIndexBindless uint32 = 0

	// DescriptorSetIndexView is the per-frame view uniform block.
	DescriptorSetIndexView uint32 = 1

	// DescriptorSetIndexInputs is the per-pass read-resources set.
	DescriptorSetIndexInputs uint32 = 2
)

// Graph is the frame graph: persistent name-deduplicated resources, a
// deferred-compile pipeline cache, and the per-frame pass list rebuilt by the
// host between frames.
type Graph struct {
	passes    []*Pass
	resources *Resources

	// pipelineDescs is the pipeline cache key array; compilation into
	// resources.Pipelines is deferred until Prepare.
	pipelineDescs []pipeline.Desc

	viewDescriptorSet    descriptor.DescriptorSet
	viewDescriptorLayout vk.DescriptorSetLayout

	// includeRoot is the shared shader header directory handed to compiles.
	includeRoot string

	// compilePool fans per-pipeline shader compilation out during Prepare.
	compilePool worker.DynamicWorkerPool
	poolOnce    sync.Once

	profilingEnabled bool
}

// New creates a graph bound to the renderer's view uniform buffer: descriptor
// set 1 is allocated once here and bound for every pass.
//
// Parameters:
//   - dev: the device resources are created on
//   - viewUniformBuffer: the buffer behind descriptor set 1
//
// Returns:
//   - *Graph: the empty graph
func New(dev device.Device, viewUniformBuffer buffer.Buffer) *Graph {
	g := &Graph{
		resources:   newResources(),
		includeRoot: shader.DefaultIncludeRoot,
	}
	g.createViewDescriptorSet(dev, viewUniformBuffer)
	return g
}

// SetIncludeRoot overrides the shared shader header directory.
//
// Parameters:
//   - root: the include root handed to shader compilation
func (g *Graph) SetIncludeRoot(root string) {
	g.includeRoot = root
}

// SetProfilingEnabled toggles GPU timing scopes around the frame and each pass.
//
// Parameters:
//   - enabled: whether to open profiler scopes during Render
func (g *Graph) SetProfilingEnabled(enabled bool) {
	g.profilingEnabled = enabled
}

// Resources exposes the graph's resource arrays to pass callbacks and tests.
//
// Returns:
//   - *Resources: the resource arrays
func (g *Graph) Resources() *Resources {
	return g.resources
}

// createViewDescriptorSet builds the fixed set-1 layout (a single uniform
// buffer at binding 0, all stages) with a synthetic binding map, and writes
// the view buffer into it.
func (g *Graph) createViewDescriptorSet(dev device.Device, viewUniformBuffer buffer.Buffer) {
	var layout vk.DescriptorSetLayout
	ret := vk.CreateDescriptorSetLayout(dev.Handle(), &vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: 1,
		PBindings: []vk.DescriptorSetLayoutBinding{{
			Binding:         0,
			DescriptorType:  vk.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageAll),
		}},
	}, nil, &layout)
	if ret != vk.Success {
		panic(fmt.Sprintf("graph: view descriptor layout creation failed: %v", vk.Error(ret)))
	}
	g.viewDescriptorLayout = layout

	bindingMap := shader.BindingMap{
		"view": {
			Set:     DescriptorSetIndexView,
			Binding: 0,
			Info: shader.DescriptorInfo{
				Type:  shader.DescriptorTypeUniformBuffer,
				Name:  "view",
				Count: 1,
			},
		},
	}

	g.viewDescriptorSet = descriptor.NewDescriptorSet(dev, layout, bindingMap)
	g.viewDescriptorSet.WriteUniformBuffer(dev, "view", viewUniformBuffer)
}

// CreateTexture creates a texture and returns its handle. A second call with
// the same name returns the existing handle; a differing descriptor on such a
// call is logged once, since the cached texture keeps its original shape.
//
// Parameters:
//   - name: the dedup key and debug name
//   - dev: the device to create on
//   - desc: the image descriptor
//
// Returns:
//   - TextureID: the stable texture handle
func (g *Graph) CreateTexture(name string, dev device.Device, desc image.Desc) TextureID {
	if id := g.resources.findTexture(name); id >= 0 {
		if g.resources.Texture(id).Desc != desc {
			warnOnce(fmt.Sprintf("texture %q re-requested with a different descriptor; keeping the cached one", name))
		}
		return id
	}

	tex := texture.NewTexture(dev, name, desc, nil)
	g.resources.Textures = append(g.resources.Textures, &GraphTexture{
		Texture:    tex,
		PrevAccess: synch.AccessNothing,
		Desc:       desc,
		Name:       name,
	})
	return len(g.resources.Textures) - 1
}

// CreateBuffer creates a buffer and returns its handle. A second call with
// the same name returns the existing handle.
//
// Parameters:
//   - name: the dedup key and debug name
//   - dev: the device to create on
//   - size: size in bytes
//   - usage: buffer usage flags
//   - location: memory location policy
//
// Returns:
//   - BufferID: the stable buffer handle
func (g *Graph) CreateBuffer(name string, dev device.Device, size uint64, usage vk.BufferUsageFlags, location device.MemoryLocation) BufferID {
	if id := g.resources.findBuffer(name); id >= 0 {
		return id
	}

	buf := buffer.NewBuffer(dev, name, size, usage, location)
	g.resources.Buffers = append(g.resources.Buffers, &GraphBuffer{
		Buffer:     buf,
		PrevAccess: synch.AccessNothing,
	})
	return len(g.resources.Buffers) - 1
}

// CreatePipeline registers a pipeline descriptor and returns its handle.
// Equal descriptors share a handle; compilation is deferred until Prepare.
//
// Parameters:
//   - desc: the pipeline descriptor
//
// Returns:
//   - PipelineID: the stable pipeline handle
func (g *Graph) CreatePipeline(desc pipeline.Desc) PipelineID {
	for i := range g.pipelineDescs {
		if g.pipelineDescs[i].Equal(desc) {
			return i
		}
	}
	g.pipelineDescs = append(g.pipelineDescs, desc)
	return len(g.pipelineDescs) - 1
}

// AddPass starts a pass builder for an already registered pipeline.
//
// Parameters:
//   - name: the pass name
//   - pipelineHandle: the pipeline to run the pass with
//
// Returns:
//   - *PassBuilder: the fluent builder; call Build to append the pass
func (g *Graph) AddPass(name string, pipelineHandle PipelineID) *PassBuilder {
	return &PassBuilder{
		graph:          g,
		name:           name,
		pipelineHandle: pipelineHandle,
		uniforms:       make(map[string]uniformEntry),
	}
}

// AddPassFromDesc registers (or dedupes) the pipeline descriptor and starts a
// pass builder for it.
//
// Parameters:
//   - name: the pass name
//   - desc: the pipeline descriptor built from pipeline.NewDesc options
//
// Returns:
//   - *PassBuilder: the fluent builder; call Build to append the pass
func (g *Graph) AddPassFromDesc(name string, desc pipeline.Desc) *PassBuilder {
	return g.AddPass(name, g.CreatePipeline(desc))
}

// Prepare compiles every pending pipeline descriptor, allocates the per-pass
// descriptor sets that do not exist yet, and uploads per-pass uniform
// constants. Shader compilation fans out over the worker pool; an initial
// compile failure is fatal.
//
// Parameters:
//   - dev: the device to compile and allocate on
//   - rend: the renderer providing the bindless layout and the TLAS
func (g *Graph) Prepare(dev device.Device, rend renderer.Renderer) {
	pendingFrom := len(g.resources.Pipelines)
	pendingCount := len(g.pipelineDescs) - pendingFrom

	if pendingCount > 0 {
		compiled := make([]pipeline.Pipeline, pendingCount)
		errs := make([]error, pendingCount)

		if pendingCount == 1 {
			compiled[0], errs[0] = pipeline.NewPipeline(dev, g.pipelineDescs[pendingFrom], rend.BindlessLayout(), g.viewDescriptorLayout, g.includeRoot)
		} else {
			g.poolOnce.Do(func() {
				g.compilePool = worker.NewDynamicWorkerPool(runtime.NumCPU(), 256, 1*time.Second)
			})

			var wg sync.WaitGroup
			for i := 0; i < pendingCount; i++ {
				wg.Add(1)
				slot := i
				desc := g.pipelineDescs[pendingFrom+i]
				g.compilePool.SubmitTask(worker.Task{
					ID: slot,
					Do: func() (any, error) {
						defer wg.Done()
						compiled[slot], errs[slot] = pipeline.NewPipeline(dev, desc, rend.BindlessLayout(), g.viewDescriptorLayout, g.includeRoot)
						return nil, nil
					},
				})
			}
			wg.Wait()
		}

		for i := 0; i < pendingCount; i++ {
			if errs[i] != nil {
				panic(fmt.Sprintf("graph: initial pipeline compilation failed: %v", errs[i]))
			}
			g.resources.Pipelines = append(g.resources.Pipelines, compiled[i])
		}
	}

	tlas := vk.AccelerationStructure(vk.NullHandle)
	if rt := rend.Raytracing(); rt != nil {
		tlas = rt.TLAS()
	}

	for _, pass := range g.passes {
		pass.tryCreateReadResourcesDescriptorSet(dev, g.resources, tlas)
		pass.tryCreateUniformsDescriptorSet(dev, g.resources)
		pass.updateUniformBufferMemory(dev, g.resources)
	}
}

// Clear releases the per-pass descriptor pools and empties the pass list.
// Resources and compiled pipelines persist; the host rebuilds the pass list
// each frame.
//
// Parameters:
//   - dev: the device the descriptor pools live on
func (g *Graph) Clear(dev device.Device) {
	for _, pass := range g.passes {
		pass.releaseDescriptorSets(dev)
	}
	g.passes = g.passes[:0]
}

// RecompileShader rebuilds every compiled pipeline whose stages (or includes)
// reference the changed path. Failures are logged and leave the previous
// pipeline in use.
//
// Parameters:
//   - dev: the device to recompile on
//   - bindlessLayout: the bindless layout substituted at set 0
//   - path: the changed shader source path
func (g *Graph) RecompileShader(dev device.Device, bindlessLayout vk.DescriptorSetLayout, path string) {
	for _, pipe := range g.resources.Pipelines {
		if !pipe.ReferencesShader(path) {
			continue
		}
		if err := pipe.Recreate(dev, bindlessLayout, g.viewDescriptorLayout); err != nil {
			log.Printf("[Graph] Shader recompile for %q failed, keeping previous pipeline: %v", path, err)
		}
	}
}

// RecompileAllShaders rebuilds every compiled pipeline. Failures are logged
// and leave the previous pipeline in use.
//
// Parameters:
//   - dev: the device to recompile on
//   - bindlessLayout: the bindless layout substituted at set 0
func (g *Graph) RecompileAllShaders(dev device.Device, bindlessLayout vk.DescriptorSetLayout) {
	for _, pipe := range g.resources.Pipelines {
		if err := pipe.Recreate(dev, bindlessLayout, g.viewDescriptorLayout); err != nil {
			log.Printf("[Graph] Shader recompile failed, keeping previous pipeline: %v", err)
		}
	}
}

// Destroy tears the graph down: passes, then every owned resource, pipelines,
// and the view descriptor set.
//
// Parameters:
//   - dev: the device everything was created on
func (g *Graph) Destroy(dev device.Device) {
	g.Clear(dev)
	for _, pipe := range g.resources.Pipelines {
		pipe.Destroy(dev)
	}
	for _, tex := range g.resources.Textures {
		tex.Texture.Destroy(dev)
	}
	for _, buf := range g.resources.Buffers {
		buf.Buffer.Destroy(dev)
	}
	g.viewDescriptorSet.Destroy(dev)
	vk.DestroyDescriptorSetLayout(dev.Handle(), g.viewDescriptorLayout, nil)
}

package graph

import (
	"bytes"
	"testing"

	"github.com/Carmen-Shannon/forge-go/common"
	"github.com/Carmen-Shannon/forge-go/engine/device"
	img "github.com/Carmen-Shannon/forge-go/engine/image"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/forge-go/engine/synch"
	"github.com/Carmen-Shannon/forge-go/engine/texture"
	vk "github.com/goki/vulkan"
)

// stubImage satisfies image.Image without touching a device.
type stubImage struct {
	desc img.Desc
}

func (s *stubImage) Handle() vk.Image { return vk.Image(vk.NullHandle) }
func (s *stubImage) View() vk.ImageView {
	return vk.ImageView(vk.NullHandle)
}
func (s *stubImage) LayerView(device.Device, uint32) vk.ImageView {
	return vk.ImageView(vk.NullHandle)
}
func (s *stubImage) Desc() img.Desc    { return s.desc }
func (s *stubImage) Width() uint32     { return s.desc.Width }
func (s *stubImage) Height() uint32    { return s.desc.Height }
func (s *stubImage) Format() vk.Format { return s.desc.Format }
func (s *stubImage) DebugName() string { return "stub" }
func (s *stubImage) Transition(_ vk.CommandBuffer, _, next synch.AccessType) synch.AccessType {
	return next
}
func (s *stubImage) Destroy(device.Device) {}

// stubTexture satisfies texture.Texture without touching a device.
type stubTexture struct {
	image *stubImage
}

func (s *stubTexture) Image() img.Image   { return s.image }
func (s *stubTexture) Sampler() vk.Sampler { return vk.Sampler(vk.NullHandle) }
func (s *stubTexture) DescriptorInfo() vk.DescriptorImageInfo {
	return vk.DescriptorImageInfo{}
}
func (s *stubTexture) StorageDescriptorInfo() vk.DescriptorImageInfo {
	return vk.DescriptorImageInfo{}
}
func (s *stubTexture) Destroy(device.Device) {}

// testGraph builds a graph without a device; the view descriptor set is left
// unallocated, which none of these tests reach.
func testGraph() *Graph {
	return &Graph{resources: newResources()}
}

func addStubTexture(g *Graph, name string, desc img.Desc) TextureID {
	g.resources.Textures = append(g.resources.Textures, &GraphTexture{
		Texture:    &stubTexture{image: &stubImage{desc: desc}},
		PrevAccess: synch.AccessNothing,
		Desc:       desc,
		Name:       name,
	})
	return len(g.resources.Textures) - 1
}

var _ texture.Texture = &stubTexture{}
var _ img.Image = &stubImage{}

func TestCreateTextureNameDedup(t *testing.T) {
	g := testGraph()
	descA := img.New2DDesc(64, 64, vk.FormatR8g8b8a8Unorm,
		vk.ImageUsageFlags(vk.ImageUsageSampledBit), vk.ImageAspectFlags(vk.ImageAspectColorBit))
	first := addStubTexture(g, "gbuffer_albedo", descA)

	// Same name returns the cached handle without touching the device.
	second := g.CreateTexture("gbuffer_albedo", nil, descA)
	if second != first {
		t.Fatalf("second creation returned %d, want cached handle %d", second, first)
	}

	// Same name with a differing descriptor still returns the cached handle.
	descB := descA
	descB.Width = 128
	third := g.CreateTexture("gbuffer_albedo", nil, descB)
	if third != first {
		t.Fatalf("mismatched re-request returned %d, want cached handle %d", third, first)
	}
	if g.resources.Texture(first).Desc != descA {
		t.Error("cached descriptor was replaced by the mismatched request")
	}
}

func TestCreatePipelineDedup(t *testing.T) {
	g := testGraph()

	descA := pipeline.NewDesc(
		pipeline.WithVertexShader("shaders/forward.vert"),
		pipeline.WithFragmentShader("shaders/forward.frag"),
	)
	descB := pipeline.NewDesc(
		pipeline.WithVertexShader("shaders/forward.vert"),
		pipeline.WithFragmentShader("shaders/forward.frag"),
	)
	descC := pipeline.NewDesc(
		pipeline.WithComputeShader("shaders/ssao.comp"),
	)

	idA := g.CreatePipeline(descA)
	idB := g.CreatePipeline(descB)
	idC := g.CreatePipeline(descC)

	if idA != idB {
		t.Errorf("equal descriptors got handles %d and %d", idA, idB)
	}
	if idC == idA {
		t.Errorf("distinct descriptors share handle %d", idC)
	}
	if len(g.pipelineDescs) != 2 {
		t.Errorf("cache holds %d descriptors, want 2", len(g.pipelineDescs))
	}
}

func TestUniformsIdempotence(t *testing.T) {
	g := testGraph()
	handle := g.CreatePipeline(pipeline.NewDesc(pipeline.WithComputeShader("shaders/ssao.comp")))

	type settings struct {
		Radius   float32
		Bias     float32
		Kernel   int32
		Reserved int32
	}
	payload := settings{Radius: 0.5, Bias: 0.025, Kernel: 32}

	builder := g.AddPass("ssao", handle)
	builder.Uniforms("settings", common.StructToBytes(&payload))
	once := builder.uniforms["ssao_settings"]

	builder.Uniforms("settings", common.StructToBytes(&payload))
	twice := builder.uniforms["ssao_settings"]

	if len(builder.uniforms) != 1 {
		t.Fatalf("repeated write created %d entries, want 1", len(builder.uniforms))
	}
	if once.data.Size != twice.data.Size {
		t.Errorf("payload size changed: %d vs %d", once.data.Size, twice.data.Size)
	}
	if !bytes.Equal(once.data.Data[:once.data.Size], twice.data.Data[:twice.data.Size]) {
		t.Error("payload bytes changed between identical writes")
	}
}

func TestPassOrderMatchesBuildOrder(t *testing.T) {
	g := testGraph()
	handle := g.CreatePipeline(pipeline.NewDesc(pipeline.WithComputeShader("shaders/a.comp")))

	g.AddPass("first", handle).Build(nil)
	g.AddPass("second", handle).Build(nil)
	g.AddPass("third", handle).Build(nil)

	if len(g.passes) != 3 {
		t.Fatalf("graph holds %d passes, want 3", len(g.passes))
	}
	for i, want := range []string{"first", "second", "third"} {
		if g.passes[i].Name != want {
			t.Errorf("pass %d is %q, want %q", i, g.passes[i].Name, want)
		}
	}

	g.Clear(nil)
	if len(g.passes) != 0 {
		t.Errorf("Clear left %d passes", len(g.passes))
	}
}

func TestBuildPatchesAttachmentFormats(t *testing.T) {
	g := testGraph()
	handle := g.CreatePipeline(pipeline.NewDesc(
		pipeline.WithVertexShader("shaders/gbuffer.vert"),
		pipeline.WithFragmentShader("shaders/gbuffer.frag"),
	))

	albedo := addStubTexture(g, "gbuffer_albedo", img.New2DDesc(64, 64, vk.FormatR8g8b8a8Unorm,
		vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit), vk.ImageAspectFlags(vk.ImageAspectColorBit)))
	normals := addStubTexture(g, "gbuffer_normals", img.New2DDesc(64, 64, vk.FormatR16g16b16a16Sfloat,
		vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit), vk.ImageAspectFlags(vk.ImageAspectColorBit)))
	depth := addStubTexture(g, "gbuffer_depth", img.New2DDesc(64, 64, vk.FormatD32Sfloat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit), vk.ImageAspectFlags(vk.ImageAspectDepthBit)))

	g.AddPass("gbuffer", handle).
		Write(albedo).
		Write(normals).
		DepthAttachment(depth).
		Build(nil)

	desc := g.pipelineDescs[handle]
	wantColors := []vk.Format{vk.FormatR8g8b8a8Unorm, vk.FormatR16g16b16a16Sfloat}
	if len(desc.ColorAttachmentFormats) != len(wantColors) {
		t.Fatalf("patched %d color formats, want %d", len(desc.ColorAttachmentFormats), len(wantColors))
	}
	for i, want := range wantColors {
		if desc.ColorAttachmentFormats[i] != want {
			t.Errorf("color format %d = %v, want %v", i, desc.ColorAttachmentFormats[i], want)
		}
	}
	if desc.DepthStencilFormat != vk.FormatD32Sfloat {
		t.Errorf("depth format = %v, want D32Sfloat", desc.DepthStencilFormat)
	}
}

func TestAccessStateAdvancesMonotonically(t *testing.T) {
	g := testGraph()
	desc := img.New2DDesc(64, 64, vk.FormatR8g8b8a8Unorm,
		vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit), vk.ImageAspectFlags(vk.ImageAspectColorBit))
	id := addStubTexture(g, "out", desc)

	entry := g.resources.Texture(id)
	if entry.PrevAccess != synch.AccessNothing {
		t.Fatalf("fresh texture access = %v, want Nothing", entry.PrevAccess)
	}

	// The stub's Transition returns the next access unchanged, mirroring how
	// the executor's bookkeeping records it after a pass writes the texture.
	entry.PrevAccess = entry.Texture.Image().Transition(vk.CommandBuffer(vk.NullHandle),
		entry.PrevAccess, synch.AccessColorAttachmentWrite)
	if entry.PrevAccess != synch.AccessColorAttachmentWrite {
		t.Errorf("access after write = %v, want ColorAttachmentWrite", entry.PrevAccess)
	}
}

package shader

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// spirvBuilder assembles a minimal SPIR-V module for reflection tests.
type spirvBuilder struct {
	words  []uint32
	nextID uint32
}

func newSpirvBuilder() *spirvBuilder {
	return &spirvBuilder{
		// magic, version 1.2, generator, bound (patched in bytes()), schema
		words:  []uint32{spirvMagic, 0x00010200, 0, 0, 0},
		nextID: 1,
	}
}

func (b *spirvBuilder) id() uint32 {
	id := b.nextID
	b.nextID++
	return id
}

func (b *spirvBuilder) ins(opcode uint32, operands ...uint32) {
	b.words = append(b.words, uint32(len(operands)+1)<<16|opcode)
	b.words = append(b.words, operands...)
}

func stringWords(s string) []uint32 {
	raw := append([]byte(s), 0)
	for len(raw)%4 != 0 {
		raw = append(raw, 0)
	}
	words := make([]uint32, len(raw)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(raw[i*4:])
	}
	return words
}

func (b *spirvBuilder) name(target uint32, name string) {
	b.ins(opName, append([]uint32{target}, stringWords(name)...)...)
}

func (b *spirvBuilder) decorate(target, decoration uint32, operands ...uint32) {
	b.ins(opDecorate, append([]uint32{target, decoration}, operands...)...)
}

func (b *spirvBuilder) bytes() []byte {
	b.words[3] = b.nextID // bound
	out := make([]byte, len(b.words)*4)
	for i, w := range b.words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

// uniformBufferStage builds a stage declaring a uniform block named blockName
// at (set, binding).
func uniformBufferStage(set, binding uint32, blockName string) []byte {
	b := newSpirvBuilder()
	floatType := b.id()
	structType := b.id()
	ptrType := b.id()
	variable := b.id()

	b.name(variable, blockName)
	b.decorate(structType, decorationBlock)
	b.decorate(variable, decorationDescriptorSet, set)
	b.decorate(variable, decorationBinding, binding)
	b.ins(opTypeFloat, floatType, 32)
	b.ins(opTypeStruct, structType, floatType)
	b.ins(opTypePointer, ptrType, storageClassUniform, structType)
	b.ins(opVariable, ptrType, variable, storageClassUniform)
	return b.bytes()
}

// combinedImageStage builds a stage declaring a combined image sampler named
// texName at (set, binding).
func combinedImageStage(set, binding uint32, texName string) []byte {
	b := newSpirvBuilder()
	floatType := b.id()
	imageType := b.id()
	sampledType := b.id()
	ptrType := b.id()
	variable := b.id()

	b.name(variable, texName)
	b.decorate(variable, decorationDescriptorSet, set)
	b.decorate(variable, decorationBinding, binding)
	b.ins(opTypeFloat, floatType, 32)
	// sampled type, dim 2D, depth, arrayed, ms, sampled=1, format Unknown
	b.ins(opTypeImage, imageType, floatType, 1, 0, 0, 0, 1, 0)
	b.ins(opTypeSampledImg, sampledType, imageType)
	b.ins(opTypePointer, ptrType, storageClassUniformConstant, sampledType)
	b.ins(opVariable, ptrType, variable, storageClassUniformConstant)
	return b.bytes()
}

// storageImageStage builds a stage declaring a storage image named imgName at
// (set, binding).
func storageImageStage(set, binding uint32, imgName string) []byte {
	b := newSpirvBuilder()
	floatType := b.id()
	imageType := b.id()
	ptrType := b.id()
	variable := b.id()

	b.name(variable, imgName)
	b.decorate(variable, decorationDescriptorSet, set)
	b.decorate(variable, decorationBinding, binding)
	b.ins(opTypeFloat, floatType, 32)
	// sampled=2 marks the image as storage
	b.ins(opTypeImage, imageType, floatType, 1, 0, 0, 0, 2, 0)
	b.ins(opTypePointer, ptrType, storageClassUniformConstant, imageType)
	b.ins(opVariable, ptrType, variable, storageClassUniformConstant)
	return b.bytes()
}

func TestReflectSingleStage(t *testing.T) {
	tests := []struct {
		name     string
		spirv    []byte
		binding  string
		wantSet  uint32
		wantBind uint32
		wantType DescriptorType
	}{
		{
			name:     "uniform block",
			spirv:    uniformBufferStage(1, 0, "view"),
			binding:  "view",
			wantSet:  1,
			wantBind: 0,
			wantType: DescriptorTypeUniformBuffer,
		},
		{
			name:     "combined image sampler",
			spirv:    combinedImageStage(2, 3, "inputTex"),
			binding:  "inputTex",
			wantSet:  2,
			wantBind: 3,
			wantType: DescriptorTypeCombinedImageSampler,
		},
		{
			name:     "storage image",
			spirv:    storageImageStage(2, 0, "outputImage"),
			binding:  "outputImage",
			wantSet:  2,
			wantBind: 0,
			wantType: DescriptorTypeStorageImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			refl, err := NewReflection([][]byte{tt.spirv})
			if err != nil {
				t.Fatalf("NewReflection: %v", err)
			}
			binding, ok := refl.TryGetBinding(tt.binding)
			if !ok {
				t.Fatalf("binding %q not found", tt.binding)
			}
			if binding.Set != tt.wantSet || binding.Binding != tt.wantBind {
				t.Errorf("binding at (%d, %d), want (%d, %d)", binding.Set, binding.Binding, tt.wantSet, tt.wantBind)
			}
			if binding.Info.Type != tt.wantType {
				t.Errorf("type = %v, want %v", binding.Info.Type, tt.wantType)
			}
		})
	}
}

func TestReflectionMerge(t *testing.T) {
	t.Run("matching bindings across stages merge", func(t *testing.T) {
		vertex := uniformBufferStage(1, 0, "view")
		fragment := uniformBufferStage(1, 0, "view")

		refl, err := NewReflection([][]byte{vertex, fragment})
		if err != nil {
			t.Fatalf("NewReflection: %v", err)
		}
		if got := refl.GetBinding("view"); got.Set != 1 || got.Binding != 0 {
			t.Errorf("merged binding at (%d, %d), want (1, 0)", got.Set, got.Binding)
		}
	})

	t.Run("type mismatch is a reflection error", func(t *testing.T) {
		vertex := uniformBufferStage(1, 0, "view")
		fragment := combinedImageStage(1, 0, "view")

		_, err := NewReflection([][]byte{vertex, fragment})
		var reflErr *ReflectionError
		if !errors.As(err, &reflErr) {
			t.Fatalf("expected *ReflectionError, got %v", err)
		}
	})

	t.Run("name mismatch is a reflection error", func(t *testing.T) {
		vertex := uniformBufferStage(1, 0, "view")
		fragment := uniformBufferStage(1, 0, "settings")

		_, err := NewReflection([][]byte{vertex, fragment})
		var reflErr *ReflectionError
		if !errors.As(err, &reflErr) {
			t.Fatalf("expected *ReflectionError, got %v", err)
		}
	})

	t.Run("distinct sets merge side by side", func(t *testing.T) {
		vertex := uniformBufferStage(1, 0, "view")
		fragment := combinedImageStage(2, 0, "inputTex")

		refl, err := NewReflection([][]byte{vertex, fragment})
		if err != nil {
			t.Fatalf("NewReflection: %v", err)
		}
		if len(refl.GetSetMappings(1)) != 1 || len(refl.GetSetMappings(2)) != 1 {
			t.Errorf("expected one binding in set 1 and one in set 2")
		}
		sets := refl.SetIndices()
		if len(sets) != 2 || sets[0] != 1 || sets[1] != 2 {
			t.Errorf("SetIndices() = %v, want [1 2]", sets)
		}
	})
}

func TestReflectRejectsGarbage(t *testing.T) {
	_, err := NewReflection([][]byte{{1, 2, 3}})
	var reflErr *ReflectionError
	if !errors.As(err, &reflErr) {
		t.Fatalf("expected *ReflectionError for truncated input, got %v", err)
	}
}

func TestClassifyStage(t *testing.T) {
	tests := []struct {
		path    string
		want    ShaderType
		wantErr bool
	}{
		{path: "shaders/fullscreen.vert", want: ShaderTypeVertex},
		{path: "shaders/deferred.frag", want: ShaderTypeFragment},
		{path: "shaders/ssao.comp", want: ShaderTypeCompute},
		{path: "shaders/pathtrace.rgen", want: ShaderTypeRayGen},
		{path: "shaders/pathtrace.rmiss", want: ShaderTypeRayMiss},
		{path: "shaders/pathtrace.rchit", want: ShaderTypeRayClosestHit},
		{path: "shaders/readme.md", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := ClassifyStage(tt.path)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("ClassifyStage: %v", err)
			}
			if got != tt.want {
				t.Errorf("stage = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPreProcessorIncludes(t *testing.T) {
	dir := t.TempDir()
	includeDir := filepath.Join(dir, "include")
	if err := os.Mkdir(includeDir, 0o755); err != nil {
		t.Fatal(err)
	}

	write := func(path, content string) {
		t.Helper()
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	write(filepath.Join(dir, "local.glsl"), "float local() { return 1.0; }")
	write(filepath.Join(includeDir, "shared.glsl"), "float shared_fn() { return 2.0; }")
	write(filepath.Join(dir, "main.frag"), strings.Join([]string{
		"#version 450",
		`#include "local.glsl"`,
		`#include "shared.glsl"`,
		`#include "local.glsl"`,
		"void main() {}",
	}, "\n"))

	pp := NewPreProcessor(includeDir)
	out, err := pp.Process(filepath.Join(dir, "main.frag"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if !strings.Contains(out, "float local()") {
		t.Error("local include not injected")
	}
	if !strings.Contains(out, "float shared_fn()") {
		t.Error("shared-root include not injected")
	}
	if strings.Count(out, "float local()") != 1 {
		t.Error("duplicate include was injected twice")
	}
	if strings.Contains(out, "#include") {
		t.Error("unresolved #include left in output")
	}

	included := pp.IncludedFiles()
	if len(included) != 2 {
		t.Fatalf("IncludedFiles() = %v, want 2 entries", included)
	}
}

func TestPreProcessorMissingInclude(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.frag")
	if err := os.WriteFile(path, []byte(`#include "nope.glsl"`), 0o644); err != nil {
		t.Fatal(err)
	}

	pp := NewPreProcessor(dir)
	if _, err := pp.Process(path); err == nil {
		t.Fatal("expected error for missing include")
	}
}

func TestPushConstantSize(t *testing.T) {
	b := newSpirvBuilder()
	floatType := b.id()
	vecType := b.id()
	structType := b.id()
	ptrType := b.id()
	variable := b.id()

	b.name(variable, "pc")
	b.ins(opMemberDecorate, structType, 0, decorationOffset, 0)
	b.ins(opMemberDecorate, structType, 1, decorationOffset, 16)
	b.ins(opTypeFloat, floatType, 32)
	b.ins(opTypeVector, vecType, floatType, 4)
	b.ins(opTypeStruct, structType, vecType, vecType)
	b.ins(opTypePointer, ptrType, storageClassPushConstant, structType)
	b.ins(opVariable, ptrType, variable, storageClassPushConstant)

	refl, err := NewReflection([][]byte{b.bytes()})
	if err != nil {
		t.Fatalf("NewReflection: %v", err)
	}
	pc := refl.PushConstant()
	if pc == nil {
		t.Fatal("push constant not reflected")
	}
	if pc.Size != 32 {
		t.Errorf("push constant size = %d, want 32", pc.Size)
	}
}

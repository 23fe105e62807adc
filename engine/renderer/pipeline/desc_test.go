package pipeline

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestDescEqual(t *testing.T) {
	base := func() Desc {
		return NewDesc(
			WithVertexShader("shaders/forward.vert"),
			WithFragmentShader("shaders/forward.frag"),
		)
	}

	tests := []struct {
		name   string
		mutate func(*Desc)
		want   bool
	}{
		{
			name:   "identical descriptors are equal",
			mutate: func(d *Desc) {},
			want:   true,
		},
		{
			name:   "different fragment path differs",
			mutate: func(d *Desc) { d.FragmentPath = "shaders/other.frag" },
			want:   false,
		},
		{
			name:   "different cull mode differs",
			mutate: func(d *Desc) { d.CullMode = vk.CullModeBackBit },
			want:   false,
		},
		{
			name:   "different depth state differs",
			mutate: func(d *Desc) { d.DepthTestEnabled = false },
			want:   false,
		},
		{
			name: "attachment formats are derived state and do not differ",
			mutate: func(d *Desc) {
				d.ColorAttachmentFormats = []vk.Format{vk.FormatR8g8b8a8Unorm}
				d.DepthStencilFormat = vk.FormatD32Sfloat
			},
			want: true,
		},
		{
			name:   "vertex input layout differs",
			mutate: func(d *Desc) { WithDefaultVertexInput()(d) },
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base()
			b := base()
			tt.mutate(&b)
			if got := a.Equal(b); got != tt.want {
				t.Errorf("Equal = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescReferencesShader(t *testing.T) {
	desc := NewDesc(
		WithVertexShader("shaders/forward.vert"),
		WithFragmentShader("shaders/forward.frag"),
	)

	tests := []struct {
		name string
		path string
		want bool
	}{
		{name: "exact match", path: "shaders/forward.frag", want: true},
		{name: "watcher path with extra root", path: "/home/user/project/shaders/forward.frag", want: true},
		{name: "unrelated shader", path: "shaders/ssao.comp", want: false},
		{name: "suffix of the file name only", path: "ward.frag", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := desc.ReferencesShader(tt.path); got != tt.want {
				t.Errorf("ReferencesShader(%q) = %v, want %v", tt.path, got, tt.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		desc Desc
		want PipelineType
	}{
		{
			name: "vertex and fragment is graphics",
			desc: NewDesc(WithVertexShader("a.vert"), WithFragmentShader("a.frag")),
			want: PipelineTypeGraphics,
		},
		{
			name: "compute path is compute",
			desc: NewDesc(WithComputeShader("a.comp")),
			want: PipelineTypeCompute,
		},
		{
			name: "raygen triple is raytracing",
			desc: NewDesc(WithRaytracingShaders("a.rgen", "a.rmiss", "a.rchit")),
			want: PipelineTypeRaytracing,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classify(tt.desc); got != tt.want {
				t.Errorf("classify = %v, want %v", got, tt.want)
			}
		})
	}
}

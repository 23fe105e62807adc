package synch

import (
	"testing"

	vk "github.com/goki/vulkan"
)

func TestComputeImageBarrier(t *testing.T) {
	tests := []struct {
		name       string
		prev, next AccessType
		wantNeeded bool
		wantOld    vk.ImageLayout
		wantNew    vk.ImageLayout
		wantSrcAcc vk.AccessFlags
	}{
		{
			name:       "read after identical read needs no barrier",
			prev:       AccessAnyShaderReadSampledImage,
			next:       AccessAnyShaderReadSampledImage,
			wantNeeded: false,
		},
		{
			name:       "sample after color attachment write",
			prev:       AccessColorAttachmentWrite,
			next:       AccessAnyShaderReadSampledImage,
			wantNeeded: true,
			wantOld:    vk.ImageLayoutColorAttachmentOptimal,
			wantNew:    vk.ImageLayoutShaderReadOnlyOptimal,
			wantSrcAcc: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		},
		{
			name:       "first use of storage image",
			prev:       AccessNothing,
			next:       AccessAnyShaderWrite,
			wantNeeded: true,
			wantOld:    vk.ImageLayoutUndefined,
			wantNew:    vk.ImageLayoutGeneral,
			wantSrcAcc: 0,
		},
		{
			name:       "sampled read to storage read still transitions layout",
			prev:       AccessAnyShaderReadSampledImage,
			next:       AccessAnyShaderReadOther,
			wantNeeded: true,
			wantOld:    vk.ImageLayoutShaderReadOnlyOptimal,
			wantNew:    vk.ImageLayoutGeneral,
			wantSrcAcc: 0,
		},
		{
			name:       "present to color attachment write",
			prev:       AccessPresent,
			next:       AccessColorAttachmentWrite,
			wantNeeded: true,
			wantOld:    vk.ImageLayoutPresentSrc,
			wantNew:    vk.ImageLayoutColorAttachmentOptimal,
			wantSrcAcc: 0,
		},
		{
			name:       "attachment write to transfer read",
			prev:       AccessColorAttachmentWrite,
			next:       AccessTransferRead,
			wantNeeded: true,
			wantOld:    vk.ImageLayoutColorAttachmentOptimal,
			wantNew:    vk.ImageLayoutTransferSrcOptimal,
			wantSrcAcc: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
		},
		{
			name:       "write after write keeps barrier",
			prev:       AccessAnyShaderWrite,
			next:       AccessAnyShaderWrite,
			wantNeeded: true,
			wantOld:    vk.ImageLayoutGeneral,
			wantNew:    vk.ImageLayoutGeneral,
			wantSrcAcc: vk.AccessFlags(vk.AccessShaderWriteBit),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeImageBarrier(tt.prev, tt.next)
			if got.Needed != tt.wantNeeded {
				t.Fatalf("Needed = %v, want %v", got.Needed, tt.wantNeeded)
			}
			if !tt.wantNeeded {
				return
			}
			if got.OldLayout != tt.wantOld {
				t.Errorf("OldLayout = %v, want %v", got.OldLayout, tt.wantOld)
			}
			if got.NewLayout != tt.wantNew {
				t.Errorf("NewLayout = %v, want %v", got.NewLayout, tt.wantNew)
			}
			if got.SrcAccess != tt.wantSrcAcc {
				t.Errorf("SrcAccess = %v, want %v", got.SrcAccess, tt.wantSrcAcc)
			}
			if got.SrcStageMask == 0 || got.DstStageMask == 0 {
				t.Errorf("stage masks must never be zero: src=%v dst=%v", got.SrcStageMask, got.DstStageMask)
			}
		})
	}
}

func TestComputeGlobalBarrier(t *testing.T) {
	tests := []struct {
		name       string
		prev, next AccessType
		wantNeeded bool
		wantSrcAcc vk.AccessFlags
		wantDstAcc vk.AccessFlags
	}{
		{
			name:       "identical buffer reads need no barrier",
			prev:       AccessAnyShaderReadOther,
			next:       AccessAnyShaderReadOther,
			wantNeeded: false,
		},
		{
			name:       "shader write to shader read",
			prev:       AccessAnyShaderWrite,
			next:       AccessAnyShaderReadOther,
			wantNeeded: true,
			wantSrcAcc: vk.AccessFlags(vk.AccessShaderWriteBit),
			wantDstAcc: vk.AccessFlags(vk.AccessShaderReadBit),
		},
		{
			name:       "tlas rebuild fence",
			prev:       AccessAnyShaderReadOther,
			next:       AccessAccelerationStructureBuildWrite,
			wantNeeded: true,
			wantSrcAcc: 0,
			wantDstAcc: vk.AccessFlags(vk.AccessAccelerationStructureWriteBit),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeGlobalBarrier(tt.prev, tt.next)
			if got.Needed != tt.wantNeeded {
				t.Fatalf("Needed = %v, want %v", got.Needed, tt.wantNeeded)
			}
			if !tt.wantNeeded {
				return
			}
			if got.SrcAccess != tt.wantSrcAcc {
				t.Errorf("SrcAccess = %v, want %v", got.SrcAccess, tt.wantSrcAcc)
			}
			if got.DstAccess != tt.wantDstAcc {
				t.Errorf("DstAccess = %v, want %v", got.DstAccess, tt.wantDstAcc)
			}
		})
	}
}

func TestAccessTypeIsWrite(t *testing.T) {
	writes := []AccessType{
		AccessAnyShaderWrite,
		AccessColorAttachmentWrite,
		AccessDepthStencilAttachmentWrite,
		AccessTransferWrite,
		AccessAccelerationStructureBuildWrite,
		AccessHostWrite,
	}
	reads := []AccessType{
		AccessNothing,
		AccessAnyShaderReadSampledImage,
		AccessAnyShaderReadOther,
		AccessTransferRead,
		AccessAccelerationStructureBuildRead,
		AccessPresent,
	}
	for _, a := range writes {
		if !a.IsWrite() {
			t.Errorf("%v.IsWrite() = false, want true", a)
		}
	}
	for _, a := range reads {
		if a.IsWrite() {
			t.Errorf("%v.IsWrite() = true, want false", a)
		}
	}
}

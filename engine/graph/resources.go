// package graph implements the frame graph: name-deduplicated resource arrays
// that persist across frames, a fluent pass builder, and the per-frame
// executor that derives barriers, opens dynamic rendering scopes, binds the
// fixed descriptor sets, and invokes each pass's record callback.
package graph

import (
	"github.com/Carmen-Shannon/forge-go/engine/buffer"
	"github.com/Carmen-Shannon/forge-go/engine/image"
	"github.com/Carmen-Shannon/forge-go/engine/renderer/pipeline"
	"github.com/Carmen-Shannon/forge-go/engine/synch"
	"github.com/Carmen-Shannon/forge-go/engine/texture"
)

// Virtual resource handles: dense indices into the graph's resource arrays,
// stable for the lifetime of the graph.
type (
	TextureID  = int
	BufferID   = int
	PipelineID = int
	TlasID     = int
)

// GraphTexture is a texture owned by the graph together with its access state.
type GraphTexture struct {
	// Texture is the underlying texture.
	Texture texture.Texture

	// PrevAccess records the most recent use; the executor's barrier
	// computation consumes and advances it.
	PrevAccess synch.AccessType

	// Desc is the descriptor the texture was created from, kept for the
	// same-name redeclaration warning.
	Desc image.Desc

	// Name is the dedup key.
	Name string
}

// GraphBuffer is a buffer owned by the graph together with its access state.
type GraphBuffer struct {
	// Buffer is the underlying buffer.
	Buffer buffer.Buffer

	// PrevAccess records the most recent use.
	PrevAccess synch.AccessType
}

// Resources holds the graph's name-deduplicated resource arrays. Entries are
// never removed; handles stay valid until the graph is torn down.
type Resources struct {
	Textures  []*GraphTexture
	Buffers   []*GraphBuffer
	Pipelines []pipeline.Pipeline
}

func newResources() *Resources {
	return &Resources{}
}

// Texture returns the graph texture for a handle.
//
// Parameters:
//   - id: the texture handle
//
// Returns:
//   - *GraphTexture: the texture entry
func (r *Resources) Texture(id TextureID) *GraphTexture {
	return r.Textures[id]
}

// Buffer returns the graph buffer for a handle.
//
// Parameters:
//   - id: the buffer handle
//
// Returns:
//   - *GraphBuffer: the buffer entry
func (r *Resources) Buffer(id BufferID) *GraphBuffer {
	return r.Buffers[id]
}

// Pipeline returns the compiled pipeline for a handle. Nil until the graph's
// Prepare has compiled it.
//
// Parameters:
//   - id: the pipeline handle
//
// Returns:
//   - pipeline.Pipeline: the compiled pipeline or nil
func (r *Resources) Pipeline(id PipelineID) pipeline.Pipeline {
	if id >= len(r.Pipelines) {
		return nil
	}
	return r.Pipelines[id]
}

// findTexture returns the handle of the texture with the given debug name, or
// -1. Name lookup is what enables the cross-frame resource cache.
func (r *Resources) findTexture(name string) TextureID {
	for i, tex := range r.Textures {
		if tex.Name == name {
			return i
		}
	}
	return -1
}

// findBuffer returns the handle of the buffer with the given debug name, or -1.
func (r *Resources) findBuffer(name string) BufferID {
	for i, buf := range r.Buffers {
		if buf.Buffer.DebugName() == name {
			return i
		}
	}
	return -1
}

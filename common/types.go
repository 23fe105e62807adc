// package common contains common types that are used throughout this engine. They are not interface-wrapped structs, just plain structs that express
// commonly used data-types.
package common

// GPUMaterial is the packed material record stored in the bindless materials table.
// Shaders index this table with the material index carried by each mesh record, and
// the texture fields are indices into the bindless combined-image-sampler array.
// Layout must match the Material struct in the shared shader headers (std430).
type GPUMaterial struct {
	// DiffuseMap is the bindless texture index of the albedo texture.
	DiffuseMap uint32
	// NormalMap is the bindless texture index of the tangent-space normal map.
	NormalMap uint32
	// MetallicRoughnessMap is the bindless texture index of the combined metallic/roughness texture.
	MetallicRoughnessMap uint32
	// OcclusionMap is the bindless texture index of the ambient occlusion texture.
	OcclusionMap uint32

	// BaseColorFactor scales the sampled diffuse color (RGBA).
	BaseColorFactor [4]float32
	// MetallicFactor scales the sampled metallic channel.
	MetallicFactor float32
	// RoughnessFactor scales the sampled roughness channel.
	RoughnessFactor float32

	// Padding keeps the struct at a 16-byte multiple for std430 array indexing.
	Padding [2]float32
}

// GPUMesh is the packed mesh record stored in the bindless meshes table.
// VertexBuffer and IndexBuffer are indices into the bindless storage-buffer
// arrays holding all scene geometry; Material indexes the materials table.
type GPUMesh struct {
	// VertexBuffer is the bindless index of this mesh's vertex storage buffer.
	VertexBuffer uint32
	// IndexBuffer is the bindless index of this mesh's index storage buffer.
	IndexBuffer uint32
	// Material is the index into the packed materials table.
	Material uint32

	// Padding keeps the struct at a 16-byte multiple for std430 array indexing.
	Padding uint32
}

// GPULight is the packed light record stored in the bindless lights table.
type GPULight struct {
	// Position is the light position in world space.
	Position [3]float32
	// Range is the light influence radius in world units.
	Range float32
	// Color is the linear RGB light color scaled by intensity.
	Color [3]float32

	// Padding keeps the struct at a 16-byte multiple for std430 array indexing.
	Padding float32
}

// GPUVertex is the interleaved vertex format shared by all scene geometry.
// Vertex pulling shaders read this layout from the bindless vertex buffers,
// and the graphics pipeline vertex-input description mirrors it field by field.
type GPUVertex struct {
	// Pos is the object-space position.
	Pos [3]float32
	// Normal is the object-space normal.
	Normal [3]float32
	// UV is the texture coordinate.
	UV [2]float32
	// Color is the vertex color (RGBA).
	Color [4]float32
	// Tangent is the object-space tangent with handedness in w.
	Tangent [4]float32
}

// Extent2D is a width/height pair in pixels. Mirrors the Vulkan extent without
// dragging the API dependency into packages that only need dimensions.
type Extent2D struct {
	Width  uint32
	Height uint32
}

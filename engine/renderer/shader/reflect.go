// reflect.go recovers the descriptor interface of a single SPIR-V binary: the
// (set, binding) table with descriptor types and names, and the push-constant
// block. Only the opcodes needed for layout synthesis are decoded.
package shader

import (
	"encoding/binary"
	"fmt"
)

// DescriptorType classifies a reflected binding. The supported set matches
// what the descriptor-set helper can write.
type DescriptorType int

const (
	// DescriptorTypeCombinedImageSampler is a sampler2D/samplerCube style binding.
	DescriptorTypeCombinedImageSampler DescriptorType = iota

	// DescriptorTypeSampledImage is a texture binding without a sampler.
	DescriptorTypeSampledImage

	// DescriptorTypeStorageImage is a read/write image binding.
	DescriptorTypeStorageImage

	// DescriptorTypeUniformBuffer is a uniform block binding.
	DescriptorTypeUniformBuffer

	// DescriptorTypeStorageBuffer is an SSBO binding.
	DescriptorTypeStorageBuffer

	// DescriptorTypeAccelerationStructure is a ray tracing TLAS binding.
	DescriptorTypeAccelerationStructure
)

// String returns the descriptor type name used in error messages.
func (t DescriptorType) String() string {
	switch t {
	case DescriptorTypeCombinedImageSampler:
		return "CombinedImageSampler"
	case DescriptorTypeSampledImage:
		return "SampledImage"
	case DescriptorTypeStorageImage:
		return "StorageImage"
	case DescriptorTypeUniformBuffer:
		return "UniformBuffer"
	case DescriptorTypeStorageBuffer:
		return "StorageBuffer"
	case DescriptorTypeAccelerationStructure:
		return "AccelerationStructure"
	default:
		return "Unknown"
	}
}

// DescriptorInfo describes one reflected binding.
type DescriptorInfo struct {
	// Type is the descriptor type derived from the variable's SPIR-V type.
	Type DescriptorType

	// Name is the binding name: the variable's OpName, or the block type's
	// OpName when the instance name is empty.
	Name string

	// Count is the array size of the binding; 1 for scalars, 0 for
	// runtime-sized arrays (bindless).
	Count uint32
}

// PushConstantInfo describes the push-constant block of one stage.
type PushConstantInfo struct {
	Offset uint32
	Size   uint32
}

// stageReflection is the reflected interface of one SPIR-V stage binary.
type stageReflection struct {
	// sets maps set index to binding index to descriptor info.
	sets map[uint32]map[uint32]DescriptorInfo

	// pushConstant is the stage's push-constant block, or nil.
	pushConstant *PushConstantInfo
}

// SPIR-V opcodes and enum values used by the parser.
const (
	opName           = 5
	opMemberDecorate = 72
	opDecorate       = 71
	opTypeInt        = 21
	opTypeFloat      = 22
	opTypeVector     = 23
	opTypeMatrix     = 24
	opTypeImage      = 25
	opTypeSampler    = 26
	opTypeSampledImg = 27
	opTypeArray      = 28
	opTypeRuntimeArr = 29
	opTypeStruct     = 30
	opTypePointer    = 32
	opConstant       = 43
	opVariable       = 59
	opTypeAccelKHR   = 5341

	decorationBlock         = 2
	decorationBufferBlock   = 3
	decorationBinding       = 33
	decorationDescriptorSet = 34
	decorationOffset        = 35

	storageClassUniformConstant = 0
	storageClassUniform         = 2
	storageClassPushConstant    = 9
	storageClassStorageBuffer   = 12
)

// typeDef records the shape of one OpType* instruction.
type typeDef struct {
	opcode   uint32
	operands []uint32
}

// spirvModule is the decoded instruction stream plus the side tables the
// classifier consults.
type spirvModule struct {
	names         map[uint32]string
	decorations   map[uint32]map[uint32]uint32 // id -> decoration -> operand
	memberOffsets map[uint32][]uint32          // struct id -> member offsets
	types         map[uint32]typeDef
	constants     map[uint32]uint32 // constant id -> first value word
	variables     []varDef
}

type varDef struct {
	id           uint32
	typeID       uint32 // pointer type
	storageClass uint32
}

// reflectSPIRV parses a SPIR-V binary and returns its descriptor interface.
//
// Parameters:
//   - spirv: the binary, little-endian words
//
// Returns:
//   - *stageReflection: the reflected sets and push constant
//   - error: a *ReflectionError if the binary is malformed or a binding uses an unsupported descriptor type
func reflectSPIRV(spirv []byte) (*stageReflection, error) {
	if len(spirv) < 20 || len(spirv)%4 != 0 {
		return nil, &ReflectionError{Message: "truncated SPIR-V binary"}
	}
	words := make([]uint32, len(spirv)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(spirv[i*4:])
	}
	if words[0] != spirvMagic {
		return nil, &ReflectionError{Message: fmt.Sprintf("bad SPIR-V magic %#x", words[0])}
	}

	mod := &spirvModule{
		names:         make(map[uint32]string),
		decorations:   make(map[uint32]map[uint32]uint32),
		memberOffsets: make(map[uint32][]uint32),
		types:         make(map[uint32]typeDef),
		constants:     make(map[uint32]uint32),
	}

	// Instruction stream starts after the five-word header.
	for pos := 5; pos < len(words); {
		first := words[pos]
		opcode := first & 0xffff
		count := int(first >> 16)
		if count == 0 || pos+count > len(words) {
			return nil, &ReflectionError{Message: fmt.Sprintf("malformed instruction at word %d", pos)}
		}
		operands := words[pos+1 : pos+count]
		mod.decode(opcode, operands)
		pos += count
	}

	return mod.classify()
}

func (m *spirvModule) decode(opcode uint32, operands []uint32) {
	switch opcode {
	case opName:
		if len(operands) >= 2 {
			m.names[operands[0]] = decodeString(operands[1:])
		}
	case opDecorate:
		if len(operands) >= 2 {
			target, decoration := operands[0], operands[1]
			if m.decorations[target] == nil {
				m.decorations[target] = make(map[uint32]uint32)
			}
			var value uint32
			if len(operands) >= 3 {
				value = operands[2]
			}
			m.decorations[target][decoration] = value
		}
	case opMemberDecorate:
		if len(operands) >= 4 && operands[2] == decorationOffset {
			structID, member, offset := operands[0], operands[1], operands[3]
			offsets := m.memberOffsets[structID]
			for uint32(len(offsets)) <= member {
				offsets = append(offsets, 0)
			}
			offsets[member] = offset
			m.memberOffsets[structID] = offsets
		}
	case opTypeInt, opTypeFloat, opTypeVector, opTypeMatrix, opTypeImage,
		opTypeSampler, opTypeSampledImg, opTypeArray, opTypeRuntimeArr,
		opTypeStruct, opTypePointer, opTypeAccelKHR:
		if len(operands) >= 1 {
			m.types[operands[0]] = typeDef{opcode: opcode, operands: operands[1:]}
		}
	case opConstant:
		if len(operands) >= 3 {
			m.constants[operands[1]] = operands[2]
		}
	case opVariable:
		if len(operands) >= 3 {
			m.variables = append(m.variables, varDef{
				id:           operands[1],
				typeID:       operands[0],
				storageClass: operands[2],
			})
		}
	}
}

// decodeString reads a null-terminated SPIR-V literal string from words.
func decodeString(words []uint32) string {
	buf := make([]byte, 0, len(words)*4)
	for _, w := range words {
		for shift := 0; shift < 32; shift += 8 {
			c := byte(w >> shift)
			if c == 0 {
				return string(buf)
			}
			buf = append(buf, c)
		}
	}
	return string(buf)
}

func (m *spirvModule) classify() (*stageReflection, error) {
	refl := &stageReflection{sets: make(map[uint32]map[uint32]DescriptorInfo)}

	for _, v := range m.variables {
		if v.storageClass == storageClassPushConstant {
			pointee, ok := m.pointee(v.typeID)
			if !ok {
				continue
			}
			size := m.sizeOf(pointee)
			refl.pushConstant = &PushConstantInfo{Offset: 0, Size: size}
			continue
		}

		decorations := m.decorations[v.id]
		if decorations == nil {
			continue
		}
		set, hasSet := decorations[decorationDescriptorSet]
		bindingIdx, hasBinding := decorations[decorationBinding]
		if !hasSet || !hasBinding {
			continue
		}

		pointee, ok := m.pointee(v.typeID)
		if !ok {
			return nil, &ReflectionError{Message: fmt.Sprintf("variable %%%d has no pointer type", v.id)}
		}

		count := uint32(1)
		if def, ok := m.types[pointee]; ok {
			switch def.opcode {
			case opTypeArray:
				if len(def.operands) >= 2 {
					count = m.constants[def.operands[1]]
					pointee = def.operands[0]
				}
			case opTypeRuntimeArr:
				count = 0
				if len(def.operands) >= 1 {
					pointee = def.operands[0]
				}
			}
		}

		descType, err := m.descriptorType(v, pointee)
		if err != nil {
			return nil, err
		}

		name := m.names[v.id]
		if name == "" {
			name = m.names[pointee]
		}

		if refl.sets[set] == nil {
			refl.sets[set] = make(map[uint32]DescriptorInfo)
		}
		refl.sets[set][bindingIdx] = DescriptorInfo{
			Type:  descType,
			Name:  name,
			Count: count,
		}
	}

	return refl, nil
}

// pointee resolves a pointer type to its pointee type id.
func (m *spirvModule) pointee(typeID uint32) (uint32, bool) {
	def, ok := m.types[typeID]
	if !ok || def.opcode != opTypePointer || len(def.operands) < 2 {
		return 0, false
	}
	return def.operands[1], true
}

// descriptorType classifies the pointee type of a resource variable.
func (m *spirvModule) descriptorType(v varDef, pointee uint32) (DescriptorType, error) {
	def, ok := m.types[pointee]
	if !ok {
		return 0, &ReflectionError{Message: fmt.Sprintf("variable %%%d references unknown type %%%d", v.id, pointee)}
	}

	switch def.opcode {
	case opTypeSampledImg:
		return DescriptorTypeCombinedImageSampler, nil
	case opTypeImage:
		// OpTypeImage operands: sampled type, dim, depth, arrayed, ms, sampled, format.
		if len(def.operands) >= 6 && def.operands[5] == 2 {
			return DescriptorTypeStorageImage, nil
		}
		return DescriptorTypeSampledImage, nil
	case opTypeAccelKHR:
		return DescriptorTypeAccelerationStructure, nil
	case opTypeStruct:
		switch v.storageClass {
		case storageClassStorageBuffer:
			return DescriptorTypeStorageBuffer, nil
		case storageClassUniform:
			if dec := m.decorations[pointee]; dec != nil {
				if _, buffer := dec[decorationBufferBlock]; buffer {
					return DescriptorTypeStorageBuffer, nil
				}
			}
			return DescriptorTypeUniformBuffer, nil
		}
	}

	return 0, &ReflectionError{
		Message: fmt.Sprintf("unsupported descriptor type for variable %q (%%%d)", m.names[v.id], v.id),
	}
}

// sizeOf computes the std430/std140-compatible upper-bound size of a type for
// push-constant range synthesis: max member offset plus that member's size.
func (m *spirvModule) sizeOf(typeID uint32) uint32 {
	def, ok := m.types[typeID]
	if !ok {
		return 0
	}
	switch def.opcode {
	case opTypeInt, opTypeFloat:
		if len(def.operands) >= 1 {
			return def.operands[0] / 8
		}
		return 4
	case opTypeVector:
		if len(def.operands) >= 2 {
			return m.sizeOf(def.operands[0]) * def.operands[1]
		}
	case opTypeMatrix:
		if len(def.operands) >= 2 {
			return m.sizeOf(def.operands[0]) * def.operands[1]
		}
	case opTypeArray:
		if len(def.operands) >= 2 {
			return m.sizeOf(def.operands[0]) * m.constants[def.operands[1]]
		}
	case opTypeStruct:
		offsets := m.memberOffsets[typeID]
		var size uint32
		for i, member := range def.operands {
			end := m.sizeOf(member)
			if i < len(offsets) {
				end += offsets[i]
			}
			if end > size {
				size = end
			}
		}
		return size
	}
	return 0
}

// reflection.go merges the per-stage SPIR-V reflections of one pipeline into a
// single descriptor interface, and exposes the name-addressed binding map that
// descriptor writes and the graph executor resolve bindings through.
package shader

import (
	"fmt"
	"sort"
)

// ReflectionError is returned for malformed SPIR-V, unsupported descriptor
// types, and cross-stage binding mismatches. Always fatal.
type ReflectionError struct {
	// Message describes what was inconsistent or unsupported.
	Message string
}

func (e *ReflectionError) Error() string {
	return "shader: reflection failed: " + e.Message
}

// Binding locates one named binding in the merged interface.
type Binding struct {
	// Set is the descriptor set index.
	Set uint32

	// Binding is the binding index within the set.
	Binding uint32

	// Info carries the descriptor type, name, and array count.
	Info DescriptorInfo
}

// BindingMap maps binding names to their locations.
type BindingMap map[string]Binding

// Reflection is the merged descriptor interface of all stages of one pipeline.
type Reflection struct {
	// sets maps set index to binding index to descriptor info, merged across stages.
	sets map[uint32]map[uint32]DescriptorInfo

	// pushConstant is the merged push-constant block (at most one), or nil.
	pushConstant *PushConstantInfo

	// bindings is the name-addressed view of sets.
	bindings BindingMap
}

// NewReflection reflects every stage binary and merges the results. If the
// same (set, binding) appears in two stages, its descriptor type and name must
// match; an inconsistency is a hard error. At most one push-constant range is
// collected, shared between all stages.
//
// Parameters:
//   - stages: one SPIR-V binary per pipeline stage
//
// Returns:
//   - *Reflection: the merged interface
//   - error: a *ReflectionError on malformed input or cross-stage mismatch
func NewReflection(stages [][]byte) (*Reflection, error) {
	merged := &Reflection{
		sets:     make(map[uint32]map[uint32]DescriptorInfo),
		bindings: make(BindingMap),
	}

	for _, spirv := range stages {
		stage, err := reflectSPIRV(spirv)
		if err != nil {
			return nil, err
		}

		for set, bindings := range stage.sets {
			if merged.sets[set] == nil {
				merged.sets[set] = make(map[uint32]DescriptorInfo)
			}
			for bindingIdx, info := range bindings {
				existing, exists := merged.sets[set][bindingIdx]
				if !exists {
					merged.sets[set][bindingIdx] = info
					continue
				}
				if existing.Type != info.Type || existing.Name != info.Name {
					return nil, &ReflectionError{
						Message: fmt.Sprintf(
							"set %d binding %d inconsistent between shader stages: %s %q vs %s %q",
							set, bindingIdx, existing.Type, existing.Name, info.Type, info.Name),
					}
				}
			}
		}

		if stage.pushConstant != nil && merged.pushConstant == nil {
			merged.pushConstant = stage.pushConstant
		}
	}

	for set, bindings := range merged.sets {
		for bindingIdx, info := range bindings {
			merged.bindings[info.Name] = Binding{
				Set:     set,
				Binding: bindingIdx,
				Info:    info,
			}
		}
	}

	return merged, nil
}

// GetBinding resolves a binding by name. Unknown names are a hard error with
// the offending name in the message.
//
// Parameters:
//   - name: the binding name from the shader source
//
// Returns:
//   - Binding: the binding location and info
func (r *Reflection) GetBinding(name string) Binding {
	binding, ok := r.bindings[name]
	if !ok {
		panic(fmt.Sprintf("shader: no descriptor binding found with name %q", name))
	}
	return binding
}

// TryGetBinding resolves a binding by name without panicking.
//
// Parameters:
//   - name: the binding name from the shader source
//
// Returns:
//   - Binding: the binding location and info
//   - bool: true if the name exists
func (r *Reflection) TryGetBinding(name string) (Binding, bool) {
	binding, ok := r.bindings[name]
	return binding, ok
}

// GetSetMappings returns the name-addressed bindings of one set.
//
// Parameters:
//   - set: the descriptor set index
//
// Returns:
//   - BindingMap: bindings declared in that set
func (r *Reflection) GetSetMappings(set uint32) BindingMap {
	mappings := make(BindingMap)
	for name, binding := range r.bindings {
		if binding.Set == set {
			mappings[name] = binding
		}
	}
	return mappings
}

// PushConstant returns the merged push-constant block, or nil.
//
// Returns:
//   - *PushConstantInfo: the push-constant range or nil
func (r *Reflection) PushConstant() *PushConstantInfo {
	return r.pushConstant
}

// SetIndices returns the declared set indices in ascending order.
//
// Returns:
//   - []uint32: sorted set indices
func (r *Reflection) SetIndices() []uint32 {
	indices := make([]uint32, 0, len(r.sets))
	for set := range r.sets {
		indices = append(indices, set)
	}
	sort.Slice(indices, func(i, j int) bool { return indices[i] < indices[j] })
	return indices
}

// SetBindings returns the bindings of one set keyed by binding index.
//
// Parameters:
//   - set: the descriptor set index
//
// Returns:
//   - map[uint32]DescriptorInfo: the set's bindings, or nil if the set is not declared
func (r *Reflection) SetBindings(set uint32) map[uint32]DescriptorInfo {
	return r.sets[set]
}

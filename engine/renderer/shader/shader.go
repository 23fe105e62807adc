// package shader turns GLSL source files into SPIR-V binaries and recovers the
// descriptor interface of each binary through SPIR-V reflection. The merged
// reflection of all stages of one pipeline drives descriptor-set layout and
// pipeline layout synthesis in layout.go.
package shader

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os/exec"
	"strings"
)

// ShaderType identifies the pipeline stage a shader source file targets.
// Stages are classified from the file name suffix.
type ShaderType int

const (
	// ShaderTypeVertex is a vertex shader (.vert).
	ShaderTypeVertex ShaderType = iota

	// ShaderTypeFragment is a fragment shader (.frag).
	ShaderTypeFragment

	// ShaderTypeCompute is a compute shader (.comp).
	ShaderTypeCompute

	// ShaderTypeRayGen is a ray generation shader (.rgen).
	ShaderTypeRayGen

	// ShaderTypeRayMiss is a ray miss shader (.rmiss).
	ShaderTypeRayMiss

	// ShaderTypeRayClosestHit is a ray closest-hit shader (.rchit).
	ShaderTypeRayClosestHit
)

// stageName returns the glslc -fshader-stage argument for the stage.
func (t ShaderType) stageName() string {
	switch t {
	case ShaderTypeVertex:
		return "vertex"
	case ShaderTypeFragment:
		return "fragment"
	case ShaderTypeCompute:
		return "compute"
	case ShaderTypeRayGen:
		return "rgen"
	case ShaderTypeRayMiss:
		return "rmiss"
	case ShaderTypeRayClosestHit:
		return "rchit"
	default:
		return "vertex"
	}
}

// ClassifyStage derives the shader stage from a source file path suffix.
//
// Parameters:
//   - path: the shader source path
//
// Returns:
//   - ShaderType: the classified stage
//   - error: an error if the suffix is not a known stage extension
func ClassifyStage(path string) (ShaderType, error) {
	switch {
	case strings.HasSuffix(path, ".vert"):
		return ShaderTypeVertex, nil
	case strings.HasSuffix(path, ".frag"):
		return ShaderTypeFragment, nil
	case strings.HasSuffix(path, ".comp"):
		return ShaderTypeCompute, nil
	case strings.HasSuffix(path, ".rgen"):
		return ShaderTypeRayGen, nil
	case strings.HasSuffix(path, ".rmiss"):
		return ShaderTypeRayMiss, nil
	case strings.HasSuffix(path, ".rchit"):
		return ShaderTypeRayClosestHit, nil
	default:
		return 0, fmt.Errorf("shader: unsupported shader extension on %q", path)
	}
}

// CompileError is returned when the external compiler rejects a shader. During
// hot reload it is logged and the previous pipeline stays live; on initial
// compilation the pipeline cache treats it as fatal.
type CompileError struct {
	// Path is the shader source file that failed.
	Path string

	// Diagnostics is the compiler's stderr output.
	Diagnostics string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shader: compiling %q failed:\n%s", e.Path, e.Diagnostics)
}

// compilerBinary is the external GLSL compiler from the Vulkan SDK.
const compilerBinary = "glslc"

// spirvMagic is the first word of every valid SPIR-V binary.
const spirvMagic = 0x07230203

// CompileGLSL pre-processes and compiles the GLSL file at path to SPIR-V
// targeting Vulkan 1.2, with debug info. Include directives are resolved by
// the pre-processor (the file's own directory first, then includeRoot), so
// the compiler itself never touches the filesystem for headers.
//
// Parameters:
//   - path: the GLSL source file; the stage is classified from its suffix
//   - includeRoot: shared header directory; empty for DefaultIncludeRoot
//
// Returns:
//   - []byte: the SPIR-V binary
//   - []string: the include files that went into the translation unit
//   - error: a *CompileError for compiler diagnostics, or another error for I/O failures
func CompileGLSL(path string, includeRoot string) ([]byte, []string, error) {
	stage, err := ClassifyStage(path)
	if err != nil {
		return nil, nil, err
	}

	pp := NewPreProcessor(includeRoot)
	source, err := pp.Process(path)
	if err != nil {
		return nil, nil, err
	}

	cmd := exec.Command(compilerBinary,
		"-fshader-stage="+stage.stageName(),
		"--target-env=vulkan1.2",
		"-g",
		"-o", "-",
		"-")
	cmd.Stdin = strings.NewReader(source)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return nil, nil, &CompileError{Path: path, Diagnostics: stderr.String()}
		}
		return nil, nil, fmt.Errorf("shader: running %s for %q failed: %w", compilerBinary, path, err)
	}

	spirv := stdout.Bytes()
	if len(spirv) < 20 || binary.LittleEndian.Uint32(spirv) != spirvMagic {
		return nil, nil, &CompileError{Path: path, Diagnostics: "compiler produced no SPIR-V output"}
	}

	return spirv, pp.IncludedFiles(), nil
}

// pre_processor.go implements the GLSL shader pre-processor. It resolves
// #include directives before the source reaches the external compiler so that
// the compiler sees a single flattened translation unit and the include search
// order stays under engine control: the including file's directory first, then
// the shared include root that holds cross-shader headers.
package shader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	// includeRoot is the shared header directory searched when an include is not
	// found next to the including file.
	includeRoot string

	// included accumulates every file pulled in during a Process call, in
	// resolution order. Reset at the start of each Process invocation.
	included []string
}

// PreProcessor flattens a GLSL source file by textually resolving #include
// directives, while collecting the list of included files so that the pipeline
// cache can rebuild pipelines whose headers changed on disk.
type PreProcessor interface {
	// Process reads the shader source at path and returns it with every
	// #include replaced by the included file's (recursively processed) content.
	// Includes are resolved against the including file's directory first, then
	// against the shared include root. A file included more than once is only
	// injected the first time.
	//
	// Parameters:
	//   - path: the shader source file to process
	//
	// Returns:
	//   - string: the flattened GLSL source
	//   - error: an error if the source or any include cannot be read
	Process(path string) (string, error)

	// IncludedFiles returns the files injected during the most recent Process
	// call, in resolution order. Returns nil if Process has not been called.
	//
	// Returns:
	//   - []string: resolved include paths from the last Process call
	IncludedFiles() []string
}

var _ PreProcessor = &preProcessor{}

// DefaultIncludeRoot is the shared header directory used when none is configured.
const DefaultIncludeRoot = "shaders/include"

// NewPreProcessor creates a PreProcessor with the given shared include root.
// Pass an empty string to use DefaultIncludeRoot.
//
// Parameters:
//   - includeRoot: directory searched for headers not found beside the including file
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor instance
func NewPreProcessor(includeRoot string) PreProcessor {
	if includeRoot == "" {
		includeRoot = DefaultIncludeRoot
	}
	return &preProcessor{includeRoot: includeRoot}
}

func (p *preProcessor) Process(path string) (string, error) {
	p.included = p.included[:0]
	seen := make(map[string]bool)
	return p.process(path, seen, 0)
}

func (p *preProcessor) IncludedFiles() []string {
	return p.included
}

// maxIncludeDepth guards against include cycles that the seen-set cannot catch
// (e.g. headers included through differing relative spellings).
const maxIncludeDepth = 32

func (p *preProcessor) process(path string, seen map[string]bool, depth int) (string, error) {
	if depth > maxIncludeDepth {
		return "", fmt.Errorf("shader: include depth exceeded processing %q", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("shader: failed to read source file %q: %w", path, err)
	}

	lines := strings.Split(string(data), "\n")
	out := make([]string, 0, len(lines))

	for i, line := range lines {
		name, ok := parseInclude(line)
		if !ok {
			out = append(out, line)
			continue
		}

		resolved, err := p.resolve(path, name)
		if err != nil {
			return "", fmt.Errorf("shader: %s line %d: %w", path, i+1, err)
		}
		if seen[resolved] {
			continue
		}
		seen[resolved] = true
		p.included = append(p.included, resolved)

		content, err := p.process(resolved, seen, depth+1)
		if err != nil {
			return "", err
		}
		out = append(out, content)
	}

	return strings.Join(out, "\n"), nil
}

// parseInclude matches `#include "name"` lines, tolerating leading whitespace.
func parseInclude(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#include") {
		return "", false
	}
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "#include"))
	if len(rest) < 2 || rest[0] != '"' {
		return "", false
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return "", false
	}
	return rest[1 : 1+end], true
}

// resolve searches the including file's directory, then the shared include root.
func (p *preProcessor) resolve(from, name string) (string, error) {
	local := filepath.Join(filepath.Dir(from), name)
	if _, err := os.Stat(local); err == nil {
		return local, nil
	}

	shared := filepath.Join(p.includeRoot, name)
	if _, err := os.Stat(shared); err == nil {
		return shared, nil
	}

	return "", fmt.Errorf("include %q not found (searched %q and %q)", name, filepath.Dir(from), p.includeRoot)
}

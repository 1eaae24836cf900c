// pre_processor.go implements the WGSL include pre-processor. Shaders pull the canonical
// WGSL definitions of the engine's GPU structs in with a single-line directive
//
//	//@oxy:include <name>
//
// so the Go struct, its WGSL asset and every shader reading it share one definition.
package shader

import (
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-compositor/engine/compositor"
	"github.com/Carmen-Shannon/oxy-compositor/engine/cubemap"
)

// includePrefix marks an include directive. It must start the line, after optional whitespace.
const includePrefix = "//@oxy:include"

const (
	// IncludeCubemapProbe names the CubemapProbe and CubemapBlendParams structs.
	IncludeCubemapProbe = "cubemap_probe"
	// IncludeShadowMap names the ShadowMap struct.
	IncludeShadowMap = "shadow_map"
)

// PreProcessor expands include directives in WGSL source.
type PreProcessor interface {
	// Register adds or replaces an include.
	//
	// Parameters:
	//   - name: the name include directives refer to
	//   - source: the WGSL source substituted for the directive
	Register(name, source string)

	// Process replaces every include directive with the registered source. Each include is
	// expanded once; later directives naming it are dropped. Included sources may include others.
	//
	// Parameters:
	//   - source: the WGSL source
	//
	// Returns:
	//   - string: the expanded source
	//   - error: an error if a directive is malformed or names an unknown include
	Process(source string) (string, error)
}

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	includes map[string]string
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor with the engine's GPU struct sources registered.
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor() PreProcessor {
	return &preProcessor{
		includes: map[string]string{
			IncludeCubemapProbe:   cubemap.GPUCubemapProbeSource,
			IncludeShadowMap:      compositor.GPUShadowMapSource,
			IncludeFullscreenQuad: FullscreenQuadSource,
		},
	}
}

func (p *preProcessor) Register(name, source string) {
	p.includes[name] = source
}

func (p *preProcessor) Process(source string) (string, error) {
	return p.expand(source, make(map[string]bool))
}

func (p *preProcessor) expand(source string, seen map[string]bool) (string, error) {
	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		rest, ok := strings.CutPrefix(strings.TrimSpace(line), includePrefix)
		if !ok {
			out = append(out, line)
			continue
		}
		args := strings.Fields(rest)
		if len(args) != 1 {
			return "", fmt.Errorf("line %d: @oxy:include takes exactly one name, got %d", i+1, len(args))
		}
		name := args[0]
		if seen[name] {
			continue
		}
		included, ok := p.includes[name]
		if !ok {
			return "", fmt.Errorf("line %d: unknown @oxy:include %q", i+1, name)
		}
		seen[name] = true
		expanded, err := p.expand(included, seen)
		if err != nil {
			return "", fmt.Errorf("include %q: %w", name, err)
		}
		out = append(out, expanded)
	}
	return strings.Join(out, "\n"), nil
}

package forge

import (
	"fmt"
	"path/filepath"

	"github.com/gogpu/naga/ir"
)

// Stage is the pipeline stage a shader entry point runs in.
type Stage uint8

// Shader stages.
const (
	StageVertex Stage = iota
	StageFragment
	StageCompute
)

func (s Stage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return fmt.Sprintf("Stage(%d)", uint8(s))
	}
}

// ParseStage parses the names produced by Stage.String.
func ParseStage(s string) (Stage, error) {
	switch s {
	case "vertex", "vert":
		return StageVertex, nil
	case "fragment", "frag":
		return StageFragment, nil
	case "compute", "comp":
		return StageCompute, nil
	}
	return 0, fmt.Errorf("forge: unknown shader stage %q", s)
}

// naga returns the equivalent naga IR stage.
func (s Stage) naga() ir.ShaderStage {
	switch s {
	case StageFragment:
		return ir.StageFragment
	case StageCompute:
		return ir.StageCompute
	default:
		return ir.StageVertex
	}
}

// SourceDescriptor describes where a shader's source comes from and how it
// is compiled.
//
// A descriptor with a Path is file-backed: the file is re-read on every
// compilation and is watched for changes. A descriptor without a Path carries
// its source inline in Text and is only recompiled when resubmitted.
type SourceDescriptor struct {
	// Path is the shader file. Empty for inline sources.
	Path string

	// Name is the diagnostic label of an inline source.
	Name string

	// Text is the inline source. Ignored when Path is set.
	Text string

	// EntryPoint is the shader function used by pipelines.
	EntryPoint string

	// Stage is the stage EntryPoint runs in.
	Stage Stage
}

// IsFile reports whether the descriptor is file-backed.
func (d SourceDescriptor) IsFile() bool { return d.Path != "" }

// Filename returns the label used in diagnostics: Name when set, otherwise
// the base name of Path.
func (d SourceDescriptor) Filename() string {
	if d.Name != "" {
		return d.Name
	}
	if d.Path != "" {
		return filepath.Base(d.Path)
	}
	return "<inline>"
}

// canonicalPath resolves p to an absolute path with symlinks evaluated.
// Paths that do not exist (a file mid-rename) fall back to the cleaned
// absolute form.
func canonicalPath(p string) string {
	abs, err := filepath.Abs(p)
	if err != nil {
		return filepath.Clean(p)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

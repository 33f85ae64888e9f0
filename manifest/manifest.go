// Package manifest declares the shaders of an application in a YAML or TOML
// file and loads them into a forge.State.
//
// A manifest lists every shader with a unique name, a source and the entry
// point used by pipelines:
//
//	shaders:
//	  - name: sprite.vert
//	    path: shaders/sprite.wgsl
//	    entry: vs_main
//	    stage: vertex
//	  - name: sprite.frag
//	    path: shaders/sprite.wgsl
//	    entry: fs_main
//	    stage: fragment
//
// Each shader is registered under forge.TagFromName(name), so code that
// derives its tags from the same names finds them without a lookup table.
package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/gogpu/forge"
)

// DefaultEntryPoint is used for shaders whose entry is omitted.
const DefaultEntryPoint = "main"

// ErrUnknownFormat is returned for manifest files that are neither YAML nor
// TOML.
var ErrUnknownFormat = errors.New("manifest: unknown format")

// Format is a manifest encoding.
type Format int

// Manifest encodings.
const (
	YAML Format = iota
	TOML
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	}
	return 0, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// Manifest is a set of shaders.
type Manifest struct {
	Shaders []Shader `yaml:"shaders" toml:"shaders"`

	// Dir resolves relative shader paths. Open sets it to the directory of
	// the manifest file.
	Dir string `yaml:"-" toml:"-"`
}

// Shader is one manifest entry. Exactly one of Path and Source is set.
type Shader struct {
	Name   string `yaml:"name" toml:"name"`
	Path   string `yaml:"path,omitempty" toml:"path,omitempty"`
	Source string `yaml:"source,omitempty" toml:"source,omitempty"`
	Entry  string `yaml:"entry,omitempty" toml:"entry,omitempty"`
	Stage  string `yaml:"stage" toml:"stage"`
}

// Tag returns the tag the shader is registered under.
func (s Shader) Tag() forge.Tag { return forge.TagFromName(s.Name) }

// Descriptor returns the source descriptor of s, resolving a relative Path
// against dir.
func (s Shader) Descriptor(dir string) (forge.SourceDescriptor, error) {
	stage, err := forge.ParseStage(strings.ToLower(strings.TrimSpace(s.Stage)))
	if err != nil {
		return forge.SourceDescriptor{}, err
	}
	entry := s.Entry
	if entry == "" {
		entry = DefaultEntryPoint
	}
	desc := forge.SourceDescriptor{
		Name:       s.Name,
		EntryPoint: entry,
		Stage:      stage,
	}
	if s.Path != "" {
		desc.Path = s.Path
		if dir != "" && !filepath.IsAbs(s.Path) {
			desc.Path = filepath.Join(dir, s.Path)
		}
		return desc, nil
	}
	desc.Text = s.Source
	return desc, nil
}

// Parse decodes a manifest and validates it.
func Parse(input []byte, format Format) (*Manifest, error) {
	var m Manifest
	switch format {
	case YAML:
		if err := yaml.Unmarshal(input, &m); err != nil {
			return nil, fmt.Errorf("manifest: decode yaml: %w", err)
		}
	case TOML:
		if err := toml.Unmarshal(input, &m); err != nil {
			return nil, fmt.Errorf("manifest: decode toml: %w", err)
		}
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownFormat, format)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Open reads and parses the manifest file at path.
func Open(path string) (*Manifest, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("manifest: %w", err)
	}
	m, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	m.Dir = filepath.Dir(path)
	return m, nil
}

// Validate checks that names are unique and every entry has exactly one
// source and a known stage.
func (m *Manifest) Validate() error {
	if len(m.Shaders) == 0 {
		return errors.New("manifest: shaders must be non-empty")
	}
	seen := make(map[string]struct{}, len(m.Shaders))
	for i, s := range m.Shaders {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return fmt.Errorf("manifest: shaders[%d].name is required", i)
		}
		if _, ok := seen[name]; ok {
			return fmt.Errorf("manifest: shaders[%d].name must be unique (duplicate %q)", i, name)
		}
		seen[name] = struct{}{}

		if (s.Path == "") == (s.Source == "") {
			return fmt.Errorf("manifest: shaders[%d] (%s) needs exactly one of path or source", i, name)
		}
		if _, err := s.Descriptor(""); err != nil {
			return fmt.Errorf("manifest: shaders[%d] (%s): %w", i, name, err)
		}
	}
	return nil
}

// Tags returns the tag of every shader by name.
func (m *Manifest) Tags() map[string]forge.Tag {
	tags := make(map[string]forge.Tag, len(m.Shaders))
	for _, s := range m.Shaders {
		tags[s.Name] = s.Tag()
	}
	return tags
}

// Load submits every shader of m to state and waits until all of them have
// compiled or ctx is done. File shaders are watched from then on.
//
// When ctx ends first, the error names the shaders that never compiled;
// their compile errors have already been reported through the State.
func Load(ctx context.Context, state *forge.State, m *Manifest) (map[string]forge.Tag, error) {
	g, gctx := errgroup.WithContext(ctx)
	for _, s := range m.Shaders {
		desc, err := s.Descriptor(m.Dir)
		if err != nil {
			return nil, fmt.Errorf("manifest: %s: %w", s.Name, err)
		}
		tag := s.Tag()
		g.Go(func() error {
			if desc.IsFile() {
				return state.LoadFile(gctx, tag, desc.Path, desc.EntryPoint, desc.Stage)
			}
			return state.LoadSource(gctx, tag, desc.Name, desc.Text, desc.EntryPoint, desc.Stage)
		})
	}
	if err := g.Wait(); err != nil {
		if missing := Missing(state, m); len(missing) > 0 {
			return nil, fmt.Errorf("manifest: not loaded: %s: %w", strings.Join(missing, ", "), err)
		}
		return nil, err
	}
	return m.Tags(), nil
}

// Missing returns the sorted names of the shaders of m that have no
// compiled module in state.
func Missing(state *forge.State, m *Manifest) []string {
	var missing []string
	for _, s := range m.Shaders {
		if !state.Registry().Contains(s.Tag()) {
			missing = append(missing, s.Name)
		}
	}
	sort.Strings(missing)
	return missing
}

package forge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gogpu/naga/ir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStage(t *testing.T) {
	tests := []struct {
		in   string
		want Stage
	}{
		{"vertex", StageVertex},
		{"vert", StageVertex},
		{"fragment", StageFragment},
		{"frag", StageFragment},
		{"compute", StageCompute},
		{"comp", StageCompute},
	}
	for _, tt := range tests {
		got, err := ParseStage(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseStage("geometry")
	assert.Error(t, err)
}

func TestStageString(t *testing.T) {
	for _, s := range []Stage{StageVertex, StageFragment, StageCompute} {
		got, err := ParseStage(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "Stage(9)", Stage(9).String())
}

func TestStageNaga(t *testing.T) {
	assert.Equal(t, ir.StageVertex, StageVertex.naga())
	assert.Equal(t, ir.StageFragment, StageFragment.naga())
	assert.Equal(t, ir.StageCompute, StageCompute.naga())
}

func TestSourceDescriptorFilename(t *testing.T) {
	tests := []struct {
		name string
		desc SourceDescriptor
		want string
		file bool
	}{
		{"path", SourceDescriptor{Path: "shaders/sprite.wgsl"}, "sprite.wgsl", true},
		{"name wins", SourceDescriptor{Path: "shaders/sprite.wgsl", Name: "sprite"}, "sprite", true},
		{"inline named", SourceDescriptor{Name: "blit.wgsl", Text: "..."}, "blit.wgsl", false},
		{"inline", SourceDescriptor{Text: "..."}, "<inline>", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.desc.Filename())
			assert.Equal(t, tt.file, tt.desc.IsFile())
		})
	}
}

func TestCanonicalPath(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "a.wgsl")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	want := canonicalPath(file)
	assert.True(t, filepath.IsAbs(want))
	assert.Equal(t, want, canonicalPath(filepath.Join(dir, ".", "a.wgsl")))

	link := filepath.Join(dir, "link.wgsl")
	if err := os.Symlink(file, link); err == nil {
		assert.Equal(t, want, canonicalPath(link))
	}

	// Missing files still produce an absolute path.
	missing := canonicalPath(filepath.Join(dir, "missing.wgsl"))
	assert.True(t, filepath.IsAbs(missing))
}

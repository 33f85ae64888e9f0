package forge

import (
	"context"
	"testing"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/spirv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/forge/internal/headless"
)

const (
	testVertexWGSL = `
@vertex
fn main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`
	testFragmentWGSL = `
@fragment
fn main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return color;
}
`
	testComputeWGSL = `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
}
`
)

// testCompilerOptions skips validation: the test shaders are minimal.
func testCompilerOptions() naga.CompileOptions {
	return naga.CompileOptions{SPIRVVersion: spirv.Version1_3, Validate: false}
}

func TestNagaCompilerStages(t *testing.T) {
	tests := []struct {
		name   string
		source string
		stage  Stage
	}{
		{"vertex", testVertexWGSL, StageVertex},
		{"fragment", testFragmentWGSL, StageFragment},
		{"compute", testComputeWGSL, StageCompute},
	}
	c := NewNagaCompiler(testCompilerOptions(), 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			words, err := c.Compile(tt.source, tt.stage, tt.name+".wgsl", "main")
			require.NoError(t, err)
			require.Greater(t, len(words), 5, "SPIR-V shorter than its header")
			assert.Equal(t, uint32(0x07230203), words[0])
		})
	}
}

func TestNagaCompilerErrors(t *testing.T) {
	c := NewNagaCompiler(testCompilerOptions(), 0)

	_, err := c.Compile("fn main( {", StageVertex, "broken.wgsl", "main")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.wgsl")

	_, err = c.Compile(testVertexWGSL, StageVertex, "quad.wgsl", "vs_main")
	assert.ErrorIs(t, err, ErrNoEntryPoint)

	// Right name, wrong stage.
	_, err = c.Compile(testVertexWGSL, StageFragment, "quad.wgsl", "main")
	assert.ErrorIs(t, err, ErrNoEntryPoint)
}

func TestNagaCompilerCache(t *testing.T) {
	c := NewNagaCompiler(testCompilerOptions(), 2)

	first, err := c.Compile(testVertexWGSL, StageVertex, "a.wgsl", "main")
	require.NoError(t, err)
	assert.Equal(t, 1, c.CachedCount())

	second, err := c.Compile(testVertexWGSL, StageVertex, "b.wgsl", "main")
	require.NoError(t, err)
	assert.Equal(t, 1, c.CachedCount(), "same source should hit the cache")
	assert.Equal(t, first, second)

	_, err = c.Compile(testFragmentWGSL, StageFragment, "c.wgsl", "main")
	require.NoError(t, err)
	_, err = c.Compile(testComputeWGSL, StageCompute, "d.wgsl", "main")
	require.NoError(t, err)
	assert.Equal(t, 2, c.CachedCount(), "cache must stay bounded")

	// Failures are not cached.
	_, err = c.Compile("fn main( {", StageVertex, "broken.wgsl", "main")
	require.Error(t, err)
	assert.Equal(t, 2, c.CachedCount())
}

func TestNagaCompilerCacheDisabled(t *testing.T) {
	c := NewNagaCompiler(testCompilerOptions(), 0)
	_, err := c.Compile(testVertexWGSL, StageVertex, "a.wgsl", "main")
	require.NoError(t, err)
	assert.Equal(t, 0, c.CachedCount())
}

func TestSourceKey(t *testing.T) {
	base := sourceKey("src", StageVertex, "main")
	assert.Equal(t, base, sourceKey("src", StageVertex, "main"))
	assert.NotEqual(t, base, sourceKey("src", StageFragment, "main"))
	assert.NotEqual(t, base, sourceKey("src", StageVertex, "vs_main"))
	assert.NotEqual(t, base, sourceKey("src2", StageVertex, "main"))
}

// End to end: WGSL through naga onto the headless device.
func TestStateWithNagaCompiler(t *testing.T) {
	s, err := New(headless.NewDevice(),
		WithCompiler(NewNagaCompiler(testCompilerOptions(), DefaultCacheSize)),
		WithoutWatcher())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	ctx := context.Background()
	vert, frag := TagFromName("quad.vert"), TagFromName("quad.frag")
	require.NoError(t, s.LoadSource(ctx, vert, "quad.vert.wgsl", testVertexWGSL, "main", StageVertex))
	require.NoError(t, s.LoadSource(ctx, frag, "quad.frag.wgsl", testFragmentWGSL, "main", StageFragment))

	h, err := s.RenderPipelineBuilder("quad", nil, vert).Fragment(frag).Build()
	require.NoError(t, err)
	p := h.Get().(*headless.RenderPipeline)
	assert.Equal(t, "main", p.VertexEntry)
	assert.Equal(t, "main", p.FragmentEntry)
}

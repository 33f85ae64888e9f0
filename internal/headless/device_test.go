package headless

import (
	"errors"
	"sync"
	"testing"

	"github.com/gogpu/wgpu/hal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func module(t *testing.T, d *Device, label string) *Module {
	t.Helper()
	m, err := d.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  label,
		Source: hal.ShaderSource{SPIRV: []uint32{spirvMagic, 1, 2}},
	})
	require.NoError(t, err)
	return m.(*Module)
}

func TestCreateShaderModule(t *testing.T) {
	d := NewDevice()
	code := []uint32{spirvMagic, 0x00010300}
	raw, err := d.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "sprite",
		Source: hal.ShaderSource{SPIRV: code},
	})
	require.NoError(t, err)

	m := raw.(*Module)
	assert.Equal(t, "sprite", m.Label)
	assert.Equal(t, code, m.Code)
	code[1] = 0
	assert.Equal(t, uint32(0x00010300), m.Code[1], "code must be copied")
	assert.True(t, d.IsLive(m.ID))
	assert.Equal(t, 1, d.Stats().LiveModules())
}

func TestCreateShaderModuleErrors(t *testing.T) {
	d := NewDevice()
	_, err := d.CreateShaderModule(&hal.ShaderModuleDescriptor{Label: "empty"})
	assert.ErrorIs(t, err, ErrEmptyCode)

	_, err = d.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  "wgsl",
		Source: hal.ShaderSource{SPIRV: []uint32{0xdeadbeef}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")
	assert.Equal(t, 0, d.Stats().ModulesCreated)
}

func TestDestroyTwicePanics(t *testing.T) {
	d := NewDevice()
	m := module(t, d, "once")
	d.DestroyShaderModule(m)
	assert.False(t, d.IsLive(m.ID))
	assert.Panics(t, func() { d.DestroyShaderModule(m) })
}

func TestRenderPipeline(t *testing.T) {
	d := NewDevice()
	vs, fs := module(t, d, "vs"), module(t, d, "fs")

	raw, err := d.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:    "quad",
		Vertex:   hal.VertexState{Module: vs, EntryPoint: "vs_main"},
		Fragment: &hal.FragmentState{Module: fs, EntryPoint: "fs_main"},
	})
	require.NoError(t, err)
	p := raw.(*RenderPipeline)
	assert.Equal(t, "quad", p.Label)
	assert.Same(t, vs, p.Vertex)
	assert.Equal(t, "vs_main", p.VertexEntry)
	assert.Same(t, fs, p.Fragment)
	assert.Equal(t, "fs_main", p.FragmentEntry)

	d.DestroyRenderPipeline(p)
	stats := d.Stats()
	assert.Equal(t, 1, stats.RenderPipelinesCreated)
	assert.Equal(t, 1, stats.RenderPipelinesDestroyed)
	assert.Equal(t, 0, stats.LivePipelines())
}

func TestPipelineFromDestroyedModule(t *testing.T) {
	d := NewDevice()
	vs := module(t, d, "vs")
	d.DestroyShaderModule(vs)

	_, err := d.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  "quad",
		Vertex: hal.VertexState{Module: vs, EntryPoint: "vs_main"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "destroyed")

	_, err = d.CreateComputePipeline(&hal.ComputePipelineDescriptor{Label: "nil module"})
	require.Error(t, err)
}

func TestComputePipeline(t *testing.T) {
	d := NewDevice()
	cs := module(t, d, "cs")

	raw, err := d.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:   "blur",
		Compute: hal.ComputeState{Module: cs, EntryPoint: "main"},
	})
	require.NoError(t, err)
	p := raw.(*ComputePipeline)
	assert.Same(t, cs, p.Module)
	assert.Equal(t, "main", p.Entry)
	assert.Equal(t, 1, d.Stats().LivePipelines())
}

func TestFailureHooks(t *testing.T) {
	d := NewDevice()
	vs := module(t, d, "vs")
	errOOM := errors.New("out of memory")

	d.FailRenderPipelines(func(*hal.RenderPipelineDescriptor) error { return errOOM })
	_, err := d.CreateRenderPipeline(&hal.RenderPipelineDescriptor{Vertex: hal.VertexState{Module: vs}})
	assert.ErrorIs(t, err, errOOM)

	d.FailComputePipelines(func(*hal.ComputePipelineDescriptor) error { return errOOM })
	_, err = d.CreateComputePipeline(&hal.ComputePipelineDescriptor{Compute: hal.ComputeState{Module: vs}})
	assert.ErrorIs(t, err, errOOM)

	d.FailRenderPipelines(nil)
	_, err = d.CreateRenderPipeline(&hal.RenderPipelineDescriptor{Vertex: hal.VertexState{Module: vs}})
	assert.NoError(t, err)
}

func TestForeignObjectsIgnored(t *testing.T) {
	d := NewDevice()
	assert.NotPanics(t, func() {
		d.DestroyShaderModule(nil)
		d.DestroyRenderPipeline(nil)
		d.DestroyComputePipeline(nil)
	})
	assert.Equal(t, Stats{}, d.Stats())
}

func TestConcurrentUse(t *testing.T) {
	d := NewDevice()
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				m, err := d.CreateShaderModule(&hal.ShaderModuleDescriptor{
					Source: hal.ShaderSource{SPIRV: []uint32{spirvMagic}},
				})
				if err != nil {
					t.Error(err)
					return
				}
				d.DestroyShaderModule(m)
			}
		}()
	}
	wg.Wait()

	stats := d.Stats()
	assert.Equal(t, 800, stats.ModulesCreated)
	assert.Equal(t, 0, stats.LiveModules())
}

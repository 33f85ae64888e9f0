package forge

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// RenderPipelineBuilder configures a hot-reloadable render pipeline.
// Created by State.RenderPipelineBuilder.
type RenderPipelineBuilder struct {
	state  *State
	recipe renderRecipe
	tags   ShaderTags
}

// RenderPipelineBuilder starts a render pipeline using the vertex shader
// registered under vertex. The defaults are a triangle list without culling,
// no fragment stage, no depth/stencil and single sampling.
func (s *State) RenderPipelineBuilder(label string, layout hal.PipelineLayout, vertex Tagger) *RenderPipelineBuilder {
	return &RenderPipelineBuilder{
		state: s,
		tags:  ShaderTags{Vertex: vertex.Tag()},
		recipe: renderRecipe{
			label:  label,
			layout: layout,
			primitive: gputypes.PrimitiveState{
				Topology: gputypes.PrimitiveTopologyTriangleList,
				CullMode: gputypes.CullModeNone,
			},
			multisample: gputypes.MultisampleState{
				Count: 1,
				Mask:  0xFFFFFFFF,
			},
		},
	}
}

// Fragment sets the fragment shader and the color targets it writes.
func (b *RenderPipelineBuilder) Fragment(fragment Tagger, targets ...gputypes.ColorTargetState) *RenderPipelineBuilder {
	b.tags.Fragment = fragment.Tag()
	b.recipe.targets = append([]gputypes.ColorTargetState(nil), targets...)
	return b
}

// VertexBuffers sets the vertex buffer layouts.
func (b *RenderPipelineBuilder) VertexBuffers(layouts ...gputypes.VertexBufferLayout) *RenderPipelineBuilder {
	b.recipe.buffers = append([]gputypes.VertexBufferLayout(nil), layouts...)
	return b
}

// Primitive sets the primitive state.
func (b *RenderPipelineBuilder) Primitive(primitive gputypes.PrimitiveState) *RenderPipelineBuilder {
	b.recipe.primitive = primitive
	return b
}

// DepthStencil sets the depth/stencil state. Nil disables depth/stencil.
func (b *RenderPipelineBuilder) DepthStencil(ds *hal.DepthStencilState) *RenderPipelineBuilder {
	if ds == nil {
		b.recipe.depthStencil = nil
		return b
	}
	c := *ds
	b.recipe.depthStencil = &c
	return b
}

// Multisample sets the multisample state.
func (b *RenderPipelineBuilder) Multisample(ms gputypes.MultisampleState) *RenderPipelineBuilder {
	b.recipe.multisample = ms
	return b
}

// Build creates the pipeline and registers it with the manufactory, so that
// recompiling either of its shaders rebuilds it in place.
//
// Build panics if a shader is not registered yet: shaders must be loaded
// before the pipelines that use them are built.
func (b *RenderPipelineBuilder) Build() (*RenderPipeline, error) {
	recipe := b.recipe
	return Manufacture[hal.RenderPipeline](b.state, recipe.label, b.tags, &recipe, destroyRenderPipeline)
}

// ComputePipeline creates a hot-reloadable compute pipeline from the
// compute shader registered under shader. layout may be nil.
//
// ComputePipeline panics if the shader is not registered yet.
func (s *State) ComputePipeline(label string, layout hal.PipelineLayout, shader Tagger) (*ComputePipeline, error) {
	recipe := &computeRecipe{label: label, layout: layout}
	return Manufacture[hal.ComputePipeline](s, label, ComputeTags(shader), recipe, destroyComputePipeline)
}

// renderRecipe rebuilds a render pipeline with fixed state captured when
// the builder ran.
type renderRecipe struct {
	label        string
	layout       hal.PipelineLayout
	buffers      []gputypes.VertexBufferLayout
	targets      []gputypes.ColorTargetState
	primitive    gputypes.PrimitiveState
	depthStencil *hal.DepthStencilState
	multisample  gputypes.MultisampleState
}

// Build implements Recipe. Entry points are taken from the modules' source
// descriptors, so a resubmission with a new entry point is honored.
func (r *renderRecipe) Build(dev Device, set ShaderSet) (hal.RenderPipeline, error) {
	desc := &hal.RenderPipelineDescriptor{
		Label:  r.label,
		Layout: r.layout,
		Vertex: hal.VertexState{
			Module:     set.Vertex.Raw(),
			EntryPoint: set.Vertex.EntryPoint(),
			Buffers:    r.buffers,
		},
		DepthStencil: r.depthStencil,
		Primitive:    r.primitive,
		Multisample:  r.multisample,
	}
	if set.Fragment != nil {
		desc.Fragment = &hal.FragmentState{
			Module:     set.Fragment.Raw(),
			EntryPoint: set.Fragment.EntryPoint(),
			Targets:    r.targets,
		}
	}
	return dev.CreateRenderPipeline(desc)
}

// computeRecipe rebuilds a compute pipeline.
type computeRecipe struct {
	label  string
	layout hal.PipelineLayout
}

// Build implements Recipe.
func (r *computeRecipe) Build(dev Device, set ShaderSet) (hal.ComputePipeline, error) {
	return dev.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  r.label,
		Layout: r.layout,
		Compute: hal.ComputeState{
			Module:     set.Compute.Raw(),
			EntryPoint: set.Compute.EntryPoint(),
		},
	})
}

func destroyRenderPipeline(dev Device, p hal.RenderPipeline) {
	if p != nil {
		dev.DestroyRenderPipeline(p)
	}
}

func destroyComputePipeline(dev Device, p hal.ComputePipeline) {
	if p != nil {
		dev.DestroyComputePipeline(p)
	}
}

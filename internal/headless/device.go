// Package headless provides a device that creates shader modules and
// pipelines without a GPU.
//
// The objects it returns record the descriptors they were created from, which
// makes the device useful for validating shaders on CI machines and for tests
// that assert what a pipeline was rebuilt from. The objects must not be
// passed to a real backend.
package headless

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// ErrEmptyCode is returned when a shader module is created without SPIR-V.
var ErrEmptyCode = errors.New("headless: empty SPIR-V bytecode")

// spirvMagic is the first word of every SPIR-V module.
const spirvMagic = 0x07230203

// Module is a shader module created by Device.
type Module struct {
	hal.ShaderModule

	// ID is unique per Device, starting at 1.
	ID uint64
	// Label is the descriptor label.
	Label string
	// Code is a copy of the SPIR-V words.
	Code []uint32
}

// RenderPipeline is a render pipeline created by Device.
type RenderPipeline struct {
	hal.RenderPipeline

	ID     uint64
	Label  string
	Vertex *Module
	// VertexEntry is the vertex entry point.
	VertexEntry string
	// Fragment is nil for vertex-only pipelines.
	Fragment      *Module
	FragmentEntry string
}

// ComputePipeline is a compute pipeline created by Device.
type ComputePipeline struct {
	hal.ComputePipeline

	ID     uint64
	Label  string
	Module *Module
	Entry  string
}

// Stats counts the objects created and destroyed by a Device.
type Stats struct {
	ModulesCreated            int
	ModulesDestroyed          int
	RenderPipelinesCreated    int
	RenderPipelinesDestroyed  int
	ComputePipelinesCreated   int
	ComputePipelinesDestroyed int
}

// LiveModules returns the number of shader modules not yet destroyed.
func (s Stats) LiveModules() int { return s.ModulesCreated - s.ModulesDestroyed }

// LivePipelines returns the number of pipelines not yet destroyed.
func (s Stats) LivePipelines() int {
	return s.RenderPipelinesCreated - s.RenderPipelinesDestroyed +
		s.ComputePipelinesCreated - s.ComputePipelinesDestroyed
}

// Device creates headless shader modules and pipelines.
//
// Thread Safety: Device is safe for concurrent use.
type Device struct {
	nextID atomic.Uint64

	mu    sync.Mutex
	stats Stats
	live  map[uint64]struct{}

	// failRender and failCompute make pipeline creation fail when set.
	failRender  func(*hal.RenderPipelineDescriptor) error
	failCompute func(*hal.ComputePipelineDescriptor) error
}

// NewDevice returns an empty Device.
func NewDevice() *Device {
	return &Device{live: make(map[uint64]struct{})}
}

func (d *Device) newID() uint64 {
	return d.nextID.Add(1)
}

// FailRenderPipelines makes CreateRenderPipeline return the error fn returns
// for a descriptor. A nil fn or a nil error lets creation succeed.
func (d *Device) FailRenderPipelines(fn func(*hal.RenderPipelineDescriptor) error) {
	d.mu.Lock()
	d.failRender = fn
	d.mu.Unlock()
}

// FailComputePipelines is the compute counterpart of FailRenderPipelines.
func (d *Device) FailComputePipelines(fn func(*hal.ComputePipelineDescriptor) error) {
	d.mu.Lock()
	d.failCompute = fn
	d.mu.Unlock()
}

// Stats returns a snapshot of the object counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// IsLive reports whether the object with the given ID was created and not
// yet destroyed.
func (d *Device) IsLive(id uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.live[id]
	return ok
}

// CreateShaderModule checks that the descriptor carries SPIR-V starting with
// the SPIR-V magic number and records a copy of it.
func (d *Device) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	code := desc.Source.SPIRV
	if len(code) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrEmptyCode, desc.Label)
	}
	if code[0] != spirvMagic {
		return nil, fmt.Errorf("headless: %s: bad SPIR-V magic %#08x", desc.Label, code[0])
	}
	m := &Module{
		ID:    d.newID(),
		Label: desc.Label,
		Code:  append([]uint32(nil), code...),
	}

	d.mu.Lock()
	d.stats.ModulesCreated++
	d.live[m.ID] = struct{}{}
	d.mu.Unlock()
	return m, nil
}

// DestroyShaderModule releases a module created by d. Destroying an object
// twice panics, because it would be a use-after-free on a real device.
func (d *Device) DestroyShaderModule(module hal.ShaderModule) {
	m, ok := module.(*Module)
	if !ok || m == nil {
		return
	}
	d.release(m.ID, "shader module", m.Label)
	d.mu.Lock()
	d.stats.ModulesDestroyed++
	d.mu.Unlock()
}

// CreateRenderPipeline records the vertex and fragment stages of desc.
func (d *Device) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.mu.Lock()
	fail := d.failRender
	d.mu.Unlock()
	if fail != nil {
		if err := fail(desc); err != nil {
			return nil, err
		}
	}

	vertex, err := d.checkModule(desc.Vertex.Module, "vertex", desc.Label)
	if err != nil {
		return nil, err
	}
	p := &RenderPipeline{
		ID:          d.newID(),
		Label:       desc.Label,
		Vertex:      vertex,
		VertexEntry: desc.Vertex.EntryPoint,
	}
	if desc.Fragment != nil {
		fragment, err := d.checkModule(desc.Fragment.Module, "fragment", desc.Label)
		if err != nil {
			return nil, err
		}
		p.Fragment = fragment
		p.FragmentEntry = desc.Fragment.EntryPoint
	}

	d.mu.Lock()
	d.stats.RenderPipelinesCreated++
	d.live[p.ID] = struct{}{}
	d.mu.Unlock()
	return p, nil
}

// DestroyRenderPipeline releases a render pipeline created by d.
func (d *Device) DestroyRenderPipeline(pipeline hal.RenderPipeline) {
	p, ok := pipeline.(*RenderPipeline)
	if !ok || p == nil {
		return
	}
	d.release(p.ID, "render pipeline", p.Label)
	d.mu.Lock()
	d.stats.RenderPipelinesDestroyed++
	d.mu.Unlock()
}

// CreateComputePipeline records the compute stage of desc.
func (d *Device) CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error) {
	d.mu.Lock()
	fail := d.failCompute
	d.mu.Unlock()
	if fail != nil {
		if err := fail(desc); err != nil {
			return nil, err
		}
	}

	module, err := d.checkModule(desc.Compute.Module, "compute", desc.Label)
	if err != nil {
		return nil, err
	}
	p := &ComputePipeline{
		ID:     d.newID(),
		Label:  desc.Label,
		Module: module,
		Entry:  desc.Compute.EntryPoint,
	}

	d.mu.Lock()
	d.stats.ComputePipelinesCreated++
	d.live[p.ID] = struct{}{}
	d.mu.Unlock()
	return p, nil
}

// DestroyComputePipeline releases a compute pipeline created by d.
func (d *Device) DestroyComputePipeline(pipeline hal.ComputePipeline) {
	p, ok := pipeline.(*ComputePipeline)
	if !ok || p == nil {
		return
	}
	d.release(p.ID, "compute pipeline", p.Label)
	d.mu.Lock()
	d.stats.ComputePipelinesDestroyed++
	d.mu.Unlock()
}

// checkModule verifies that module is a live module of d.
func (d *Device) checkModule(module hal.ShaderModule, stage, label string) (*Module, error) {
	m, ok := module.(*Module)
	if !ok || m == nil {
		return nil, fmt.Errorf("headless: %s: %s module was not created by this device", label, stage)
	}
	if !d.IsLive(m.ID) {
		return nil, fmt.Errorf("headless: %s: %s module %q was destroyed", label, stage, m.Label)
	}
	return m, nil
}

func (d *Device) release(id uint64, kind, label string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.live[id]; !ok {
		panic(fmt.Sprintf("headless: %s %q destroyed twice", kind, label))
	}
	delete(d.live, id)
}

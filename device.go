package forge

import (
	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
)

// Device is the part of a GPU device the manufactory needs: shader modules
// and pipelines. Every method must be safe to call from the compiler worker
// goroutine while the render loop uses the device.
//
// hal.Device satisfies Device.
type Device interface {
	CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error)
	DestroyShaderModule(module hal.ShaderModule)

	CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error)
	DestroyRenderPipeline(pipeline hal.RenderPipeline)

	CreateComputePipeline(desc *hal.ComputePipelineDescriptor) (hal.ComputePipeline, error)
	DestroyComputePipeline(pipeline hal.ComputePipeline)
}

var _ Device = hal.Device(nil)

// NewFromProvider creates a State on the device shared by a host
// application (e.g. gogpu.App). The provider must implement HalDevice() any
// returning a hal.Device.
func NewFromProvider(provider gpucontext.DeviceProvider, opts ...Option) (*State, error) {
	type halProvider interface {
		HalDevice() any
	}
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoProvider
	}
	device, ok := hp.HalDevice().(hal.Device)
	if !ok || device == nil {
		return nil, ErrNoProvider
	}
	return New(device, opts...)
}

package forge

import (
	"testing"

	"github.com/gogpu/gpucontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/forge/internal/headless"
)

// halProvider embeds gpucontext.DeviceProvider so only HalDevice needs an
// implementation.
type halProvider struct {
	gpucontext.DeviceProvider
	device any
}

func (p *halProvider) HalDevice() any { return p.device }

type plainProvider struct {
	gpucontext.DeviceProvider
}

func TestNewFromProvider(t *testing.T) {
	_, err := NewFromProvider(&plainProvider{})
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = NewFromProvider(&halProvider{device: "not a device"})
	assert.ErrorIs(t, err, ErrNoProvider)

	_, err = NewFromProvider(&halProvider{device: nil})
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestHeadlessDeviceIsDevice(t *testing.T) {
	var dev Device = headless.NewDevice()
	s, err := New(dev, WithCompiler(&fakeCompiler{}), WithoutWatcher())
	require.NoError(t, err)
	assert.Same(t, dev, s.Device())
	require.NoError(t, s.Close())
}

func TestCompileErrorUnwrap(t *testing.T) {
	inner := ErrNoEntryPoint
	err := &CompileError{Tag: TagFromUint64(1), Filename: "a.wgsl", Err: inner}
	assert.ErrorIs(t, err, ErrNoEntryPoint)
	assert.Equal(t, "forge: compile a.wgsl: forge: entry point not found", err.Error())
}

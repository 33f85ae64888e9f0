package forge

import (
	"errors"
	"fmt"
)

// Package errors.
var (
	// ErrClosed is returned when a request is made after Close.
	ErrClosed = errors.New("forge: state is closed")

	// ErrNilDevice is returned when a State is created without a device.
	ErrNilDevice = errors.New("forge: device is nil")

	// ErrShaderNotRegistered is the panic value wrapped when a pipeline
	// builder references a tag that has no compiled module yet.
	ErrShaderNotRegistered = errors.New("forge: shader not registered")

	// ErrNoEntryPoint is returned by the compiler when the requested entry
	// point does not exist for the requested stage.
	ErrNoEntryPoint = errors.New("forge: entry point not found")

	// ErrInvalidTag is returned when parsing a malformed tag string.
	ErrInvalidTag = errors.New("forge: invalid tag")

	// ErrNoProvider is returned when a device provider cannot supply a HAL device.
	ErrNoProvider = errors.New("forge: provider does not expose a HAL device")
)

// CompileError reports a failed compilation of one shader source.
// IO failures while reading a watched file are reported the same way.
type CompileError struct {
	// Tag is the tag the compilation was submitted under.
	Tag Tag

	// Filename is the diagnostic label of the source.
	Filename string

	// Err is the underlying compiler, IO or device error.
	Err error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("forge: compile %s: %v", e.Filename, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

package forge

import (
	"encoding/binary"
	"hash"
	"hash/fnv"

	"github.com/gogpu/wgpu/hal"
)

// ShaderModule is the result of one successful compilation of a tag.
//
// A ShaderModule is immutable. Recompiling the tag produces a new
// ShaderModule that replaces this one in the Registry; this one stays valid
// until the next cull after the replacement.
type ShaderModule struct {
	// tag is the registry key this module was compiled for.
	tag Tag

	// source is the descriptor the module was compiled from. Nil only for
	// modules that were never submitted through a descriptor.
	source *SourceDescriptor

	// canonical is the resolved source path of file-backed modules.
	canonical string

	// halModule is the device shader module.
	halModule hal.ShaderModule

	// code is the SPIR-V the module was created from.
	code []uint32

	// codeHash is an FNV-1a hash of code.
	codeHash uint64

	// generation counts successful compilations of tag, starting at 1.
	generation uint64
}

// Tag returns the tag the module is registered under.
func (m *ShaderModule) Tag() Tag { return m.tag }

// Source returns the descriptor the module was compiled from.
func (m *ShaderModule) Source() (SourceDescriptor, bool) {
	if m.source == nil {
		return SourceDescriptor{}, false
	}
	return *m.source, true
}

// EntryPoint returns the entry point recorded in the source descriptor.
func (m *ShaderModule) EntryPoint() string {
	if m.source == nil {
		return ""
	}
	return m.source.EntryPoint
}

// Raw returns the underlying device shader module.
func (m *ShaderModule) Raw() hal.ShaderModule { return m.halModule }

// Code returns the SPIR-V words. The slice must not be modified.
func (m *ShaderModule) Code() []uint32 { return m.code }

// CodeHash returns the FNV-1a hash of the SPIR-V words.
func (m *ShaderModule) CodeHash() uint64 { return m.codeHash }

// Generation returns how many times the tag had compiled successfully when
// this module was produced.
func (m *ShaderModule) Generation() uint64 { return m.generation }

// hashWords computes an FNV-1a hash of SPIR-V words.
func hashWords(words []uint32) uint64 {
	h := fnv.New64a()
	for _, w := range words {
		hashWriteUint32(h, w)
	}
	return h.Sum64()
}

// hashWriteUint32 writes a uint32 to the hash.
func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}

// hashWriteString writes a length-prefixed string to the hash.
//
//nolint:gosec // G115: shader sources are far below 4 GiB
func hashWriteString(h hash.Hash64, s string) {
	hashWriteUint32(h, uint32(len(s)))
	_, _ = h.Write([]byte(s))
}

// spirvWords converts little-endian SPIR-V bytes to 32-bit words.
func spirvWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

package forge

import (
	"fmt"
	"hash/fnv"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/ir"
	"github.com/gogpu/naga/spirv"
)

// Compiler turns shader source into SPIR-V.
//
// The compiler worker is the only caller, so implementations need not be
// safe for concurrent use.
type Compiler interface {
	Compile(source string, stage Stage, filename, entryPoint string) ([]uint32, error)
}

// DefaultCacheSize is the number of compiled sources NagaCompiler remembers.
const DefaultCacheSize = 128

// NagaCompiler compiles WGSL to SPIR-V with the pure Go naga compiler.
//
// Results are cached by source, stage and entry point, so reloading a file
// whose contents did not change (an editor touching the file on save) skips
// compilation. The cache holds bytecode only; every compilation still yields
// a separate device module.
type NagaCompiler struct {
	opts  naga.CompileOptions
	cache *lru.Cache[uint64, []uint32]
}

// NewNagaCompiler creates a compiler with the given naga options.
// A cacheSize of zero or less disables the bytecode cache.
func NewNagaCompiler(opts naga.CompileOptions, cacheSize int) *NagaCompiler {
	c := &NagaCompiler{opts: opts}
	if cacheSize > 0 {
		// lru.New only fails for non-positive sizes.
		c.cache, _ = lru.New[uint64, []uint32](cacheSize)
	}
	return c
}

// Compile implements Compiler.
//
// The pipeline is:
//  1. Parse WGSL to AST
//  2. Lower AST to IR
//  3. Check that entryPoint exists for stage
//  4. Validate IR (if enabled)
//  5. Generate SPIR-V
func (c *NagaCompiler) Compile(source string, stage Stage, filename, entryPoint string) ([]uint32, error) {
	key := sourceKey(source, stage, entryPoint)
	if c.cache != nil {
		if words, ok := c.cache.Get(key); ok {
			return words, nil
		}
	}

	ast, err := naga.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	module, err := naga.LowerWithSource(ast, source)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	if !hasEntryPoint(module, entryPoint, stage.naga()) {
		return nil, fmt.Errorf("%s: %w: %s %q", filename, ErrNoEntryPoint, stage, entryPoint)
	}

	if c.opts.Validate {
		verrs, err := naga.Validate(module)
		if err != nil {
			return nil, fmt.Errorf("%s: validation error: %w", filename, err)
		}
		if len(verrs) > 0 {
			return nil, fmt.Errorf("%s: validation failed: %w", filename, &verrs[0])
		}
	}

	spirvBytes, err := naga.GenerateSPIRV(module, spirv.Options{
		Version: c.opts.SPIRVVersion,
		Debug:   c.opts.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}

	words := spirvWords(spirvBytes)
	if c.cache != nil {
		c.cache.Add(key, words)
	}
	return words, nil
}

// CachedCount returns the number of cached compilation results.
func (c *NagaCompiler) CachedCount() int {
	if c.cache == nil {
		return 0
	}
	return c.cache.Len()
}

func hasEntryPoint(m *ir.Module, name string, stage ir.ShaderStage) bool {
	for _, ep := range m.EntryPoints {
		if ep.Name == name && ep.Stage == stage {
			return true
		}
	}
	return false
}

// sourceKey hashes everything that affects the compiled output.
func sourceKey(source string, stage Stage, entryPoint string) uint64 {
	h := fnv.New64a()
	hashWriteString(h, source)
	hashWriteUint32(h, uint32(stage))
	hashWriteString(h, entryPoint)
	return h.Sum64()
}

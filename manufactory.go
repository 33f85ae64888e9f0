package forge

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"weak"
)

// ShaderTags names the shader slots a pipeline depends on.
// The zero Tag marks an unused slot.
type ShaderTags struct {
	Vertex   Tag
	Fragment Tag
	Compute  Tag
}

// RenderTags returns the tags of a render pipeline. fragment may be nil for
// vertex-only pipelines.
func RenderTags(vertex, fragment Tagger) ShaderTags {
	tags := ShaderTags{Vertex: vertex.Tag()}
	if fragment != nil {
		tags.Fragment = fragment.Tag()
	}
	return tags
}

// ComputeTags returns the tags of a compute pipeline.
func ComputeTags(compute Tagger) ShaderTags {
	return ShaderTags{Compute: compute.Tag()}
}

// Has reports whether any slot holds t.
func (st ShaderTags) Has(t Tag) bool {
	if t.IsZero() {
		return false
	}
	return st.Vertex == t || st.Fragment == t || st.Compute == t
}

// ShaderSet holds the modules a recipe builds from. Slots whose tag is
// unused are nil.
type ShaderSet struct {
	Vertex   *ShaderModule
	Fragment *ShaderModule
	Compute  *ShaderModule
}

// Recipe builds a pipeline object from the current modules of its shaders.
// It is called once when the pipeline is first built and again whenever one
// of its shaders recompiles, always from a single goroutine at a time.
type Recipe[P any] interface {
	Build(dev Device, set ShaderSet) (P, error)
}

// RecipeFunc adapts a function to Recipe.
type RecipeFunc[P any] func(dev Device, set ShaderSet) (P, error)

// Build implements Recipe.
func (f RecipeFunc[P]) Build(dev Device, set ShaderSet) (P, error) { return f(dev, set) }

// manufacturingData is one live pipeline with everything needed to rebuild it.
type manufacturingData interface {
	tags() ShaderTags
	alive() bool
	label() string

	// rebuild builds a new object, swaps it into the handle and returns a
	// function that releases the displaced object.
	rebuild(dev Device, set ShaderSet) (release func(), err error)
}

type manufactured[P any] struct {
	recipe     Recipe[P]
	shaderTags ShaderTags
	handle     weak.Pointer[Pipeline[P]]
	name       string
	destroy    func(Device, P)
}

func (m *manufactured[P]) tags() ShaderTags { return m.shaderTags }
func (m *manufactured[P]) label() string    { return m.name }
func (m *manufactured[P]) alive() bool      { return m.handle.Value() != nil }

func (m *manufactured[P]) rebuild(dev Device, set ShaderSet) (func(), error) {
	h := m.handle.Value()
	if h == nil {
		return nil, nil
	}
	next, err := m.recipe.Build(dev, set)
	if err != nil {
		return nil, err
	}
	old := h.swap(next)
	if m.destroy == nil {
		return nil, nil
	}
	destroy := m.destroy
	return func() { destroy(dev, old) }, nil
}

// Manufactory tracks every live pipeline and rebuilds the ones depending on
// a shader after it recompiles.
//
// Thread Safety:
// Registration happens on caller goroutines, scans on the compiler worker.
// Both take the write lock, so a pipeline is either built from the newest
// modules or registered in time for the rebuild pass that follows them.
type Manufactory struct {
	mu      sync.RWMutex
	entries []manufacturingData

	// rebuilds counts successful rebuilds (atomic for lock-free reads).
	rebuilds atomic.Uint64
}

// Len returns the number of tracked pipelines, including ones whose handles
// were dropped since the last scan.
func (m *Manufactory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// Rebuilds returns the number of pipelines rebuilt so far.
func (m *Manufactory) Rebuilds() uint64 {
	return m.rebuilds.Load()
}

// prune drops entries whose handle has been collected. Callers hold mu.
func (m *Manufactory) prune() {
	live := m.entries[:0]
	for _, e := range m.entries {
		if e.alive() {
			live = append(live, e)
		}
	}
	clear(m.entries[len(live):])
	m.entries = live
}

// rebuild prunes dead entries and rebuilds every pipeline depending on tag.
// It returns release functions for the displaced pipeline objects.
func (m *Manufactory) rebuild(tag Tag, reg *Registry, dev Device, log *slog.Logger) []func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.prune()

	var garbage []func()
	for _, e := range m.entries {
		if !e.tags().Has(tag) {
			continue
		}
		set, err := resolveSet(reg, e.tags())
		if err != nil {
			log.Warn("forge: skipping rebuild", "pipeline", e.label(), "err", err)
			continue
		}
		release, err := e.rebuild(dev, set)
		if err != nil {
			log.Warn("forge: rebuild failed, keeping previous pipeline",
				"pipeline", e.label(), "tag", tag, "err", err)
			continue
		}
		m.rebuilds.Add(1)
		log.Debug("forge: pipeline rebuilt", "pipeline", e.label(), "tag", tag)
		if release != nil {
			garbage = append(garbage, release)
		}
	}
	return garbage
}

// resolveSet looks up the current module for every used slot of tags.
func resolveSet(reg *Registry, tags ShaderTags) (ShaderSet, error) {
	var set ShaderSet
	slots := [...]struct {
		name string
		tag  Tag
		dst  **ShaderModule
	}{
		{"vertex", tags.Vertex, &set.Vertex},
		{"fragment", tags.Fragment, &set.Fragment},
		{"compute", tags.Compute, &set.Compute},
	}
	for _, s := range slots {
		if s.tag.IsZero() {
			continue
		}
		m, ok := reg.Get(s.tag)
		if !ok {
			return ShaderSet{}, fmt.Errorf("%w: no %s shader with tag %s", ErrShaderNotRegistered, s.name, s.tag)
		}
		*s.dst = m
	}
	return set, nil
}

// Manufacture builds a pipeline from recipe and registers it for rebuilding
// whenever one of tags recompiles. destroy releases displaced objects; it may
// be nil when P owns no device resources.
//
// Every used slot of tags must already be registered: a missing shader means
// pipelines are being built before their shaders were loaded, and
// Manufacture panics. Errors returned by the recipe are returned.
func Manufacture[P any](s *State, label string, tags ShaderTags, recipe Recipe[P], destroy func(Device, P)) (*Pipeline[P], error) {
	m := s.manufactory
	m.mu.Lock()
	defer m.mu.Unlock()

	set, err := resolveSet(s.registry, tags)
	if err != nil {
		panic(fmt.Errorf("forge: build %q: %w", label, err))
	}
	p, err := recipe.Build(s.device, set)
	if err != nil {
		return nil, fmt.Errorf("forge: build %q: %w", label, err)
	}

	h := newPipeline(label, p)
	m.entries = append(m.entries, &manufactured[P]{
		recipe:     recipe,
		shaderTags: tags,
		handle:     weak.Make(h),
		name:       label,
		destroy:    destroy,
	})
	if destroy != nil {
		dev := s.device
		runtime.AddCleanup(h, func(slot *pipelineSlot[P]) {
			last := slot.load()
			s.retire(func() { destroy(dev, last) })
		}, h.slot)
	}
	s.logger().Debug("forge: pipeline built", "pipeline", label)
	return h, nil
}

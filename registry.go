package forge

import (
	"context"
	"sync"
	"sync/atomic"
)

// Registry maps tags to their most recently compiled shader modules.
//
// Thread Safety:
// Readers never take a lock; any number of goroutines may call Get
// concurrently with the compiler worker replacing entries. Only the compiler
// worker writes.
//
// Once a tag is present it stays present: a failed recompilation leaves the
// previous module in place, and entries are never removed.
type Registry struct {
	// entries holds Tag -> *ShaderModule.
	entries sync.Map

	// count is the number of distinct tags present.
	count atomic.Int64

	// mu guards changed.
	mu sync.Mutex

	// changed is closed and replaced on every insert to wake waiters.
	changed chan struct{}
}

func newRegistry() *Registry {
	return &Registry{changed: make(chan struct{})}
}

// Get returns the current module for t.
// A missing entry means the tag has not compiled successfully yet.
func (r *Registry) Get(t Tagger) (*ShaderModule, bool) {
	v, ok := r.entries.Load(t.Tag())
	if !ok {
		return nil, false
	}
	return v.(*ShaderModule), true
}

// Contains reports whether t has a compiled module.
func (r *Registry) Contains(t Tagger) bool {
	_, ok := r.entries.Load(t.Tag())
	return ok
}

// Len returns the number of registered tags.
func (r *Registry) Len() int {
	return int(r.count.Load())
}

// Range calls fn for every registered module until fn returns false.
// The iteration order is unspecified.
func (r *Registry) Range(fn func(m *ShaderModule) bool) {
	r.entries.Range(func(_, v any) bool {
		return fn(v.(*ShaderModule))
	})
}

// Wait blocks until t has a compiled module or ctx is done.
func (r *Registry) Wait(ctx context.Context, t Tagger) (*ShaderModule, error) {
	for {
		if m, ok := r.Get(t); ok {
			return m, nil
		}
		r.mu.Lock()
		ch := r.changed
		r.mu.Unlock()
		// Re-check after capturing the channel so an insert between the
		// first Get and the capture is not missed.
		if m, ok := r.Get(t); ok {
			return m, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Lookup returns every tag whose file-backed source resolves to path.
func (r *Registry) Lookup(path string) []Tag {
	want := canonicalPath(path)
	var tags []Tag
	r.Range(func(m *ShaderModule) bool {
		if m.source != nil && m.source.IsFile() && m.canonical == want {
			tags = append(tags, m.tag)
		}
		return true
	})
	return tags
}

// insert publishes m and returns the module it replaced, if any.
func (r *Registry) insert(m *ShaderModule) *ShaderModule {
	prev, loaded := r.entries.Swap(m.tag, m)
	if !loaded {
		r.count.Add(1)
	}

	r.mu.Lock()
	close(r.changed)
	r.changed = make(chan struct{})
	r.mu.Unlock()

	if !loaded {
		return nil
	}
	return prev.(*ShaderModule)
}

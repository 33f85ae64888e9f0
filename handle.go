package forge

import (
	"sync/atomic"

	"github.com/gogpu/wgpu/hal"
)

// Pipeline is a shared handle to a pipeline object that is rebuilt in place
// whenever one of its shaders recompiles.
//
// Callers keep the *Pipeline they got from a builder and call Get when they
// record a pass; after a hot reload Get returns the rebuilt object without
// the caller re-fetching anything. The manufactory only holds a weak
// reference: once every caller drops the handle, it stops being rebuilt and
// its last pipeline object is released at a later cull.
type Pipeline[P any] struct {
	label string
	slot  *pipelineSlot[P]
}

// pipelineSlot is kept apart from Pipeline so that cleanup code can reach the
// current object after the handle itself has been collected.
type pipelineSlot[P any] struct {
	current    atomic.Pointer[P]
	generation atomic.Uint64
}

// RenderPipeline is a hot-reloadable render pipeline handle.
type RenderPipeline = Pipeline[hal.RenderPipeline]

// ComputePipeline is a hot-reloadable compute pipeline handle.
type ComputePipeline = Pipeline[hal.ComputePipeline]

func newPipeline[P any](label string, p P) *Pipeline[P] {
	h := &Pipeline[P]{label: label, slot: &pipelineSlot[P]{}}
	h.slot.current.Store(&p)
	return h
}

// Get returns the current pipeline object. The object stays valid at least
// until the next cull after it is replaced.
func (h *Pipeline[P]) Get() P {
	return h.slot.load()
}

// Label returns the debug label the pipeline was built with.
func (h *Pipeline[P]) Label() string { return h.label }

// Generation returns the number of times the pipeline has been rebuilt.
func (h *Pipeline[P]) Generation() uint64 {
	return h.slot.generation.Load()
}

// swap installs next and returns the object it displaced.
func (h *Pipeline[P]) swap(next P) P {
	old := h.slot.current.Swap(&next)
	h.slot.generation.Add(1)
	return *old
}

func (s *pipelineSlot[P]) load() P {
	return *s.current.Load()
}

package forge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// State compiles shaders on a background worker, serves the compiled modules
// and keeps the pipelines built from them up to date.
//
// A State owns one compiler worker goroutine and, unless disabled, one file
// watcher. All methods are safe for concurrent use.
type State struct {
	device      Device
	compiler    Compiler
	registry    *Registry
	manufactory *Manufactory
	watcher     *watcher

	log     *slog.Logger
	onError func(*CompileError)

	queue   chan compilerMessage
	done    chan struct{}
	closed  atomic.Bool
	closeMu sync.RWMutex

	retiredMu sync.Mutex
	retired   []func()
}

// New creates a State on device and starts its compiler worker.
//
// Call Close during shutdown to stop the worker and the file watcher.
func New(device Device, opts ...Option) (*State, error) {
	if device == nil {
		return nil, ErrNilDevice
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	s := &State{
		device:      device,
		compiler:    o.newCompiler(),
		registry:    newRegistry(),
		manufactory: &Manufactory{},
		log:         o.logger,
		onError:     o.onError,
		queue:       make(chan compilerMessage, o.queueSize),
		done:        make(chan struct{}),
	}
	if o.watch {
		w, err := newWatcher(s, o.debounce)
		if err != nil {
			return nil, fmt.Errorf("forge: start file watcher: %w", err)
		}
		s.watcher = w
	}

	go s.run()
	return s, nil
}

// logger returns the State's logger, falling back to the package logger.
func (s *State) logger() *slog.Logger {
	if s.log != nil {
		return s.log
	}
	return Logger()
}

// Registry returns the shader registry.
func (s *State) Registry() *Registry { return s.registry }

// Manufactory returns the pipeline manufactory.
func (s *State) Manufactory() *Manufactory { return s.manufactory }

// Device returns the device the State compiles for.
func (s *State) Device() Device { return s.device }

// Shader returns the current module for t. It returns false until t has
// compiled successfully once, and true from then on.
func (s *State) Shader(t Tagger) (*ShaderModule, bool) {
	return s.registry.Get(t)
}

// LoadFile compiles the shader file at path under tag t, starts watching it
// for changes, and blocks until t has a compiled module or ctx is done.
//
// A compile error does not end the wait: the file watcher recompiles the
// file when it is saved again. Use a context with a deadline to bound it.
func (s *State) LoadFile(ctx context.Context, t Tagger, path, entryPoint string, stage Stage) error {
	desc := SourceDescriptor{Path: path, EntryPoint: entryPoint, Stage: stage}
	if err := s.SubmitFile(t, desc); err != nil {
		return err
	}
	if _, err := s.registry.Wait(ctx, t); err != nil {
		return fmt.Errorf("forge: load %s: %w", desc.Filename(), err)
	}
	return nil
}

// LoadSource compiles inline source under tag t and blocks until t has a
// compiled module or ctx is done. filename labels the source in diagnostics.
// Inline sources are not watched.
func (s *State) LoadSource(ctx context.Context, t Tagger, filename, source, entryPoint string, stage Stage) error {
	desc := SourceDescriptor{Name: filename, Text: source, EntryPoint: entryPoint, Stage: stage}
	if err := s.SubmitSource(t, desc); err != nil {
		return err
	}
	if _, err := s.registry.Wait(ctx, t); err != nil {
		return fmt.Errorf("forge: load %s: %w", desc.Filename(), err)
	}
	return nil
}

// SubmitFile queues a compilation of the file-backed desc under tag t and
// returns without waiting for it. The file is watched from now on.
func (s *State) SubmitFile(t Tagger, desc SourceDescriptor) error {
	if !desc.IsFile() {
		return fmt.Errorf("forge: submit %s: descriptor has no path", desc.Filename())
	}
	if s.closed.Load() {
		return ErrClosed
	}
	if s.watcher != nil {
		if err := s.watcher.add(t.Tag(), desc); err != nil {
			// Watching is best effort; the shader still compiles.
			s.logger().Warn("forge: cannot watch shader", "path", desc.Path, "err", err)
		}
	}
	return s.enqueue(compilerMessage{kind: msgCompileFile, tag: t.Tag(), source: desc})
}

// SubmitSource queues a compilation of the inline desc under tag t and
// returns without waiting for it.
func (s *State) SubmitSource(t Tagger, desc SourceDescriptor) error {
	desc.Path = ""
	if s.watcher != nil {
		s.watcher.forget(t.Tag())
	}
	return s.enqueue(compilerMessage{kind: msgCompileSource, tag: t.Tag(), source: desc})
}

// Cull releases pipeline objects and shader modules displaced by hot
// reloads. Call it once per frame, after the GPU has finished every frame
// that could still reference them.
func (s *State) Cull() error {
	return s.enqueue(compilerMessage{kind: msgCull})
}

// Sync blocks until every request submitted before it has been processed,
// including the pipeline rebuilds they trigger.
func (s *State) Sync(ctx context.Context) error {
	reply := make(chan struct{})
	if err := s.enqueue(compilerMessage{kind: msgSync, reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the file watcher and the compiler worker, waiting for the
// request in progress to finish. Pending garbage is released, so the GPU must
// be idle. Close is idempotent.
func (s *State) Close() error {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()
	if s.closed.Swap(true) {
		return nil
	}

	var err error
	if s.watcher != nil {
		err = s.watcher.close()
	}
	select {
	case s.queue <- compilerMessage{kind: msgInterrupt}:
	case <-s.done:
	}
	<-s.done
	return err
}

// enqueue hands msg to the compiler worker, blocking while the queue is full.
// The read lock keeps Close from queueing the interrupt between the closed
// check and the send, so an accepted message is always handled.
func (s *State) enqueue(msg compilerMessage) error {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	if s.closed.Load() {
		return ErrClosed
	}
	select {
	case s.queue <- msg:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

// retire schedules release of the last object of a collected pipeline
// handle for the next cull.
func (s *State) retire(release func()) {
	if s.closed.Load() {
		return
	}
	s.retiredMu.Lock()
	s.retired = append(s.retired, release)
	s.retiredMu.Unlock()
}

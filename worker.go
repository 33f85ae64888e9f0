package forge

import (
	"fmt"
	"os"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// messageKind selects what the compiler worker does with a message.
type messageKind uint8

const (
	// msgCompileFile re-reads source.Path and compiles it.
	msgCompileFile messageKind = iota

	// msgCompileSource compiles source.Text.
	msgCompileSource

	// msgCull releases every displaced pipeline and module.
	msgCull

	// msgSync closes reply once every earlier message has been handled.
	msgSync

	// msgInterrupt stops the worker.
	msgInterrupt
)

func (k messageKind) String() string {
	switch k {
	case msgCompileFile:
		return "compile-file"
	case msgCompileSource:
		return "compile-source"
	case msgCull:
		return "cull"
	case msgSync:
		return "sync"
	case msgInterrupt:
		return "interrupt"
	default:
		return fmt.Sprintf("messageKind(%d)", uint8(k))
	}
}

// compilerMessage is one unit of work for the compiler worker.
type compilerMessage struct {
	kind   messageKind
	tag    Tag
	source SourceDescriptor
	reply  chan struct{}

	// watched marks reloads queued by the file watcher. They are dropped
	// when the tag was resubmitted from another source in the meantime.
	watched bool
}

// run is the compiler worker. It handles messages strictly in order, one at a
// time, and owns the pending garbage.
func (s *State) run() {
	defer close(s.done)

	log := s.logger()
	log.Info("forge: compiler worker started")

	var garbage []func()
	for {
		msg := <-s.queue
		switch msg.kind {
		case msgCompileFile, msgCompileSource:
			garbage = append(garbage, s.compile(msg)...)
		case msgCull:
			garbage = s.cull(garbage)
		case msgSync:
			close(msg.reply)
		case msgInterrupt:
			s.cull(garbage)
			log.Info("forge: compiler worker stopped")
			return
		}
	}
}

// compile handles one compile message. On success the module is published
// and every dependent pipeline rebuilt before returning; the returned
// functions release what the new objects displaced.
func (s *State) compile(msg compilerMessage) []func() {
	desc := msg.source
	filename := desc.Filename()
	log := s.logger()

	if msg.watched && s.watcher != nil && !s.watcher.owns(msg.tag, canonicalPath(desc.Path)) {
		log.Debug("forge: skipping stale reload", "file", filename, "tag", msg.tag)
		return nil
	}

	text := desc.Text
	if msg.kind == msgCompileFile {
		data, err := os.ReadFile(desc.Path)
		if err != nil {
			s.reportError(msg.tag, filename, err)
			return nil
		}
		text = string(data)
	}

	start := time.Now()
	code, err := s.compiler.Compile(text, desc.Stage, filename, desc.EntryPoint)
	if err != nil {
		s.reportError(msg.tag, filename, err)
		return nil
	}

	raw, err := s.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label: filename,
		Source: hal.ShaderSource{
			SPIRV: code,
		},
	})
	if err != nil {
		s.reportError(msg.tag, filename, fmt.Errorf("create shader module: %w", err))
		return nil
	}

	m := &ShaderModule{
		tag:        msg.tag,
		source:     &desc,
		halModule:  raw,
		code:       code,
		codeHash:   hashWords(code),
		generation: 1,
	}
	if desc.IsFile() {
		m.canonical = canonicalPath(desc.Path)
	}
	if prev, ok := s.registry.Get(msg.tag); ok {
		m.generation = prev.generation + 1
	}

	var garbage []func()
	if prev := s.registry.insert(m); prev != nil && prev.halModule != nil {
		old := prev.halModule
		garbage = append(garbage, func() { s.device.DestroyShaderModule(old) })
	}
	log.Debug("forge: shader compiled",
		"file", filename,
		"tag", msg.tag,
		"generation", m.generation,
		"words", len(code),
		"elapsed", time.Since(start))

	return append(garbage, s.manufactory.rebuild(msg.tag, s.registry, s.device, log)...)
}

// cull releases garbage and every pipeline retired by a collected handle.
func (s *State) cull(garbage []func()) []func() {
	s.retiredMu.Lock()
	retired := s.retired
	s.retired = nil
	s.retiredMu.Unlock()

	n := len(garbage) + len(retired)
	for _, release := range garbage {
		release()
	}
	for _, release := range retired {
		release()
	}
	if n > 0 {
		s.logger().Debug("forge: culled", "objects", n)
	}
	clear(garbage)
	return garbage[:0]
}

// reportError logs a failed compilation and forwards it to the error
// handler. The registry is left untouched.
func (s *State) reportError(tag Tag, filename string, err error) {
	cerr := &CompileError{Tag: tag, Filename: filename, Err: err}
	s.logger().Error("forge: failed to compile shader", "file", filename, "tag", tag, "err", err)
	if s.onError != nil {
		s.onError(cerr)
	}
}

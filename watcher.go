package forge

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watcher recompiles file-backed shaders when their files are written.
//
// It watches the directory of every shader file rather than the file
// itself, so editors that save by writing a temporary file and renaming it
// over the original keep triggering reloads.
type watcher struct {
	fs       *fsnotify.Watcher
	state    *State
	debounce time.Duration

	mu sync.Mutex
	// dirs is the set of watched directories.
	dirs map[string]struct{}
	// files maps a canonical shader path to the descriptors submitted for
	// it, so a file whose first compilation failed is still reloaded.
	files map[string]map[Tag]SourceDescriptor
	// paths is the inverse of files: the canonical path each tag is
	// currently loaded from. A tag belongs to at most one path.
	paths map[Tag]string
	// timers holds pending debounced reloads by canonical path.
	timers map[string]*time.Timer

	done chan struct{}
	wg   sync.WaitGroup
}

func newWatcher(s *State, debounce time.Duration) (*watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		fs:       fsw,
		state:    s,
		debounce: debounce,
		dirs:     make(map[string]struct{}),
		files:    make(map[string]map[Tag]SourceDescriptor),
		paths:    make(map[Tag]string),
		timers:   make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// add starts watching desc.Path for tag. A tag previously loaded from
// another file stops following that file.
func (w *watcher) add(tag Tag, desc SourceDescriptor) error {
	path := canonicalPath(desc.Path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	w.detach(tag)
	tags, ok := w.files[path]
	if !ok {
		tags = make(map[Tag]SourceDescriptor)
		w.files[path] = tags
	}
	tags[tag] = desc
	w.paths[tag] = path

	if _, ok := w.dirs[dir]; ok {
		return nil
	}
	if err := w.fs.Add(dir); err != nil {
		return err
	}
	w.dirs[dir] = struct{}{}
	w.state.logger().Info("forge: watching shader directory", "dir", dir)
	return nil
}

// forget stops reloading tag from any file, for tags resubmitted from
// inline source.
func (w *watcher) forget(tag Tag) {
	w.mu.Lock()
	w.detach(tag)
	w.mu.Unlock()
}

// detach removes tag from the file it was loaded from. w.mu must be held.
// The directory stays watched.
func (w *watcher) detach(tag Tag) {
	path, ok := w.paths[tag]
	if !ok {
		return
	}
	delete(w.paths, tag)
	tags := w.files[path]
	delete(tags, tag)
	if len(tags) == 0 {
		delete(w.files, path)
	}
}

// owns reports whether tag is still loaded from the canonical path.
func (w *watcher) owns(tag Tag, path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.paths[tag] == path
}

func (w *watcher) loop() {
	defer w.wg.Done()
	log := w.state.logger()
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			w.handle(event)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Warn("forge: shader watcher error", "err", err)
		}
	}
}

// handle filters events down to completed writes of watched files.
// Chmod, Remove and Rename events are ignored.
func (w *watcher) handle(event fsnotify.Event) {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}
	path := canonicalPath(event.Name)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.files[path]; !ok {
		return
	}
	if w.debounce <= 0 {
		go w.reload(path)
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()
		w.reload(path)
	})
}

// reload queues a recompilation of every tag loaded from path. Tags whose
// module was compiled from path reuse the descriptor stored with it; tags
// that never compiled reuse the descriptor they were submitted with.
func (w *watcher) reload(path string) {
	select {
	case <-w.done:
		return
	default:
	}

	w.mu.Lock()
	pending := make(map[Tag]SourceDescriptor, len(w.files[path]))
	for tag, desc := range w.files[path] {
		pending[tag] = desc
	}
	w.mu.Unlock()

	s := w.state
	for _, tag := range s.registry.Lookup(path) {
		if _, ok := pending[tag]; !ok {
			continue
		}
		if m, ok := s.registry.Get(tag); ok && m.canonical == path {
			if desc, ok := m.Source(); ok {
				pending[tag] = desc
			}
		}
	}

	for tag, desc := range pending {
		s.logger().Debug("forge: shader file changed", "path", path, "tag", tag)
		msg := compilerMessage{kind: msgCompileFile, tag: tag, source: desc, watched: true}
		if err := s.enqueue(msg); err != nil {
			return
		}
	}
}

func (w *watcher) close() error {
	close(w.done)
	w.mu.Lock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
	w.mu.Unlock()
	err := w.fs.Close()
	w.wg.Wait()
	return err
}

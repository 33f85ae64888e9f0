package forge

import (
	"log/slog"
	"time"

	"github.com/gogpu/naga"
)

// Option configures a State during creation.
//
// Example:
//
//	state, err := forge.New(device,
//	    forge.WithLogger(logger),
//	    forge.WithDebounce(100*time.Millisecond),
//	)
type Option func(*options)

// options holds optional configuration for State creation.
type options struct {
	logger    *slog.Logger
	compiler  Compiler
	queueSize int
	debounce  time.Duration
	watch     bool
	onError   func(*CompileError)
	cacheSize int
}

// defaultOptions returns the default State options.
func defaultOptions() options {
	return options{
		queueSize: 64,
		debounce:  50 * time.Millisecond,
		watch:     true,
		cacheSize: DefaultCacheSize,
	}
}

// WithLogger sets the logger of this State. Without it the State logs to
// the package logger (see SetLogger).
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithCompiler replaces the default naga WGSL compiler.
func WithCompiler(c Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// WithQueueSize sets how many requests may wait for the compiler worker
// before submitters block.
func WithQueueSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.queueSize = n
		}
	}
}

// WithDebounce sets how long the file watcher waits for a burst of writes
// to a shader file to settle before recompiling it. Zero recompiles on
// every write event.
func WithDebounce(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.debounce = d
		}
	}
}

// WithoutWatcher disables file watching; file-backed shaders are then only
// recompiled when resubmitted.
func WithoutWatcher() Option {
	return func(o *options) {
		o.watch = false
	}
}

// WithErrorHandler registers fn to be called on the compiler worker after
// every failed compilation, in addition to the error being logged.
func WithErrorHandler(fn func(*CompileError)) Option {
	return func(o *options) {
		o.onError = fn
	}
}

// WithCacheSize sets the bytecode cache size of the default compiler.
// It has no effect together with WithCompiler.
func WithCacheSize(n int) Option {
	return func(o *options) {
		o.cacheSize = n
	}
}

func (o *options) newCompiler() Compiler {
	if o.compiler != nil {
		return o.compiler
	}
	return NewNagaCompiler(naga.DefaultOptions(), o.cacheSize)
}

// Command forgewatch compiles the shaders listed in a manifest and recompiles
// them whenever their files change, reporting every failure.
//
// Usage:
//
//	forgewatch -manifest shaders.yaml [-debounce 50ms] [-once] [-v]
//
// Shaders are compiled to SPIR-V with naga and turned into modules on a
// headless device, so no GPU is required. With -once, forgewatch exits after
// the first compilation with a non-zero status if any shader failed, which
// makes it usable as a CI check.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gogpu/naga"

	"github.com/gogpu/forge"
	"github.com/gogpu/forge/internal/headless"
	"github.com/gogpu/forge/manifest"
)

func main() {
	var (
		manifestPath = flag.String("manifest", "shaders.yaml", "shader manifest (.yaml, .yml or .toml)")
		debounce     = flag.Duration("debounce", 50*time.Millisecond, "wait for writes to settle before recompiling")
		timeout      = flag.Duration("timeout", 30*time.Second, "time allowed for the initial compilation")
		once         = flag.Bool("once", false, "compile once and exit")
		validate     = flag.Bool("validate", true, "validate shader IR before generating SPIR-V")
		verbose      = flag.Bool("v", false, "log compile timings and pipeline rebuilds")
	)
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(logger, config{
		manifest: *manifestPath,
		debounce: *debounce,
		timeout:  *timeout,
		once:     *once,
		validate: *validate,
	}); err != nil {
		logger.Error("forgewatch failed", "err", err)
		os.Exit(1)
	}
}

type config struct {
	manifest string
	debounce time.Duration
	timeout  time.Duration
	once     bool
	validate bool
}

func run(logger *slog.Logger, cfg config) error {
	m, err := manifest.Open(cfg.manifest)
	if err != nil {
		return err
	}

	opts := naga.DefaultOptions()
	opts.Validate = cfg.validate
	stateOpts := []forge.Option{
		forge.WithLogger(logger),
		forge.WithCompiler(forge.NewNagaCompiler(opts, forge.DefaultCacheSize)),
		forge.WithDebounce(cfg.debounce),
	}
	if cfg.once {
		stateOpts = append(stateOpts, forge.WithoutWatcher())
	}

	dev := headless.NewDevice()
	state, err := forge.New(dev, stateOpts...)
	if err != nil {
		return err
	}
	defer state.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loadCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	_, err = manifest.Load(loadCtx, state, m)
	cancel()
	if missing := manifest.Missing(state, m); len(missing) > 0 {
		if cfg.once {
			return fmt.Errorf("%d of %d shaders failed to compile: %v", len(missing), len(m.Shaders), missing)
		}
		logger.Warn("some shaders failed to compile, waiting for fixes", "shaders", missing)
	} else if err != nil {
		return err
	}
	logger.Info("shaders compiled", "count", len(m.Shaders)-len(manifest.Missing(state, m)))
	if cfg.once {
		return nil
	}

	logger.Info("watching for changes, press Ctrl+C to stop")
	watch(ctx, logger, state, m)

	stats := dev.Stats()
	logger.Info("stopped",
		"modules_created", stats.ModulesCreated,
		"modules_destroyed", stats.ModulesDestroyed)
	return nil
}

// watch reports every shader that recompiled since the last tick and culls
// displaced modules. There are no frames in flight on a headless device, so
// culling on every tick is safe.
func watch(ctx context.Context, logger *slog.Logger, state *forge.State, m *manifest.Manifest) {
	generations := make(map[string]uint64, len(m.Shaders))
	for _, s := range m.Shaders {
		if mod, ok := state.Shader(s.Tag()); ok {
			generations[s.Name] = mod.Generation()
		}
	}
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, s := range m.Shaders {
			mod, ok := state.Shader(s.Tag())
			if !ok {
				continue
			}
			if gen := mod.Generation(); gen != generations[s.Name] {
				logger.Info("shader reloaded", "shader", s.Name, "generation", gen, "words", len(mod.Code()))
				generations[s.Name] = gen
			}
		}
		if err := state.Cull(); err != nil {
			return
		}
	}
}

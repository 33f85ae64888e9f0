package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const computeWGSL = `
@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) global_id: vec3<u32>) {
}
`

func writeManifest(t *testing.T, shader string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "blur.wgsl"), []byte(shader), 0o600))
	path := filepath.Join(dir, "shaders.yaml")
	manifest := "shaders:\n  - name: blur\n    path: blur.wgsl\n    stage: compute\n"
	require.NoError(t, os.WriteFile(path, []byte(manifest), 0o600))
	return path
}

func testConfig(path string) config {
	return config{
		manifest: path,
		debounce: 0,
		timeout:  time.Second,
		once:     true,
		validate: false,
	}
}

func TestRunOnce(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	require.NoError(t, run(logger, testConfig(writeManifest(t, computeWGSL))))
	assert.Contains(t, buf.String(), "shaders compiled")
}

func TestRunOnceFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	err := run(logger, testConfig(writeManifest(t, "fn main( {")))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 shaders failed")
	assert.Contains(t, buf.String(), "failed to compile shader")
}

func TestRunMissingManifest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	err := run(logger, testConfig(filepath.Join(t.TempDir(), "none.yaml")))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

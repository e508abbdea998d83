package main

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/i5heu/ouroboros-sprite/internal/testutil"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cliManifest = `
items:
  - id: 1
    attachment: 11
  - id: 2
    attachment: 12
attachments:
  - id: 11
    file: a.png
    sizes:
      thumbnail: {file: a-thumb.png, width: 4, height: 10}
  - id: 12
    file: b.png
    sizes:
      thumbnail: {file: b-thumb.png, width: 4, height: 20}
`

const cliConfig = `
dataDir: data
uploadDir: uploads
manifest: manifest.yaml
outputFormat: png
recordBackend: badger
minimumFreeGB: 0
logLevel: error
`

func writeLayout(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	uploads := filepath.Join(dir, "uploads")
	require.NoError(t, os.MkdirAll(uploads, 0o755))
	for name, h := range map[string]int{"a-thumb.png": 10, "b-thumb.png": 20} {
		data := testutil.SolidPNG(t, 4, h, color.NRGBA{R: 90, A: 255})
		require.NoError(t, os.WriteFile(filepath.Join(uploads, name), data, 0o644))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.yaml"), []byte(cliManifest), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sprite.yaml"), []byte(cliConfig), 0o644))
	return filepath.Join(dir, "sprite.yaml")
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := run(context.Background(), args, &out)
	return out.String(), err
}

func TestRun_Hash(t *testing.T) {
	out, err := runCLI(t, "hash", "-size", "thumbnail", "2,1")
	require.NoError(t, err)

	want, err := types.DeriveHash([]int64{1, 2}, "thumbnail")
	require.NoError(t, err)
	assert.Equal(t, want.String(), strings.TrimSpace(out))
}

func TestRun_BuildShowList(t *testing.T) {
	configPath := writeLayout(t)

	out, err := runCLI(t, "-config", configPath, "build", "1", "2")
	require.NoError(t, err)
	hash, err := types.DeriveHash([]int64{1, 2}, "thumbnail")
	require.NoError(t, err)
	assert.Contains(t, out, "Hash:   "+hash.String())
	assert.Contains(t, out, "(4x30)")

	// each run releases the badger directory lock, so the next one can open it
	out, err = runCLI(t, "-config", configPath, "show", hash.String())
	require.NoError(t, err)
	assert.Contains(t, out, "sprite-"+hash.String())

	out, err = runCLI(t, "-config", configPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, hash.String())
	assert.Contains(t, out, "1 sprites")
}

func TestRun_FailedCommandStillCloses(t *testing.T) {
	configPath := writeLayout(t)

	_, err := runCLI(t, "-config", configPath, "show", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no sprite stored under missing")

	_, err = runCLI(t, "-config", configPath, "build", "1,x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `invalid item id "x"`)

	out, err := runCLI(t, "-config", configPath, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "0 sprites")
}

func TestRun_Usage(t *testing.T) {
	_, err := runCLI(t)
	assert.True(t, errors.Is(err, errUsage))

	out, err := runCLI(t, "frobnicate")
	assert.True(t, errors.Is(err, errUsage))
	assert.Contains(t, out, "Unknown command: frobnicate")
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Defaults(t *testing.T) {
	config, err := Parse([]byte("{}"))
	require.NoError(t, err)
	assert.Equal(t, Default(), config)
}

func TestParse_Overrides(t *testing.T) {
	config, err := Parse([]byte(`
dataDir: /var/lib/sprite
uploadDir: /srv/uploads
outputFormat: PNG
recordBackend: sqlite
decodeWorkers: 8
buildTimeout: 15s
logLevel: debug
`))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/sprite", config.DataDir)
	assert.Equal(t, "png", config.OutputFormat)
	assert.Equal(t, BackendSQLite, config.RecordBackend)
	assert.Equal(t, 8, config.DecodeWorkers)
	assert.Equal(t, 15*time.Second, config.BuildTimeout)
	assert.Equal(t, "thumbnail", config.DefaultSizeVariant)
	assert.Equal(t, logrus.DebugLevel, config.Logger().GetLevel())
}

func TestParse_ZeroValuesFallBack(t *testing.T) {
	config, err := Parse([]byte("jpegQuality: 0\nspriteDir: \"\"\n"))
	require.NoError(t, err)
	assert.Equal(t, 90, config.JPEGQuality)
	assert.Equal(t, "sprites", config.SpriteDir)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown field", "colour: red"},
		{"bad format", "outputFormat: gif"},
		{"bad backend", "recordBackend: postgres"},
		{"bad quality", "jpegQuality: 101"},
		{"bad size", "defaultSizeVariant: a b"},
		{"bad level", "logLevel: loud"},
		{"negative workers", "decodeWorkers: -1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfig_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sprite.yaml")
	require.NoError(t, os.WriteFile(path, []byte("uploadDir: public\nmanifest: catalog.yaml\ndataDir: /abs\n"), 0o600))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "public"), config.UploadDir)
	assert.Equal(t, filepath.Join(dir, "catalog.yaml"), config.Manifest)
	assert.Equal(t, "/abs", config.DataDir)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

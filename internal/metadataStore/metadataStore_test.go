package metadataStore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testManifest = `
items:
  - id: 10
    attachment: 100
  - id: 20
    attachment: 200
  - id: 30
    attachment: 999
attachments:
  - id: 100
    file: 2024/05/photo.jpg
    sizes:
      thumbnail:
        file: photo-150x150.jpg
        width: 150
        height: 150
        mime-type: image/jpeg
  - id: 200
    file: logo.png
    sizes:
      medium:
        file: logo-300x100.png
        width: 300
        height: 100
`

func loadTestCatalog(t *testing.T) *Catalog {
	path := filepath.Join(t.TempDir(), "manifest.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testManifest), 0o644))

	c, err := LoadManifest(path, "/srv/uploads", nil)
	require.NoError(t, err)
	return c
}

func TestCatalog_ResolvesFeaturedImage(t *testing.T) {
	c := loadTestCatalog(t)

	meta, ok, err := c.ImageMetadata(context.Background(), 10, "thumbnail")
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, int64(100), meta.AttachmentID)
	assert.Equal(t, "/srv/uploads/2024/05/photo-150x150.jpg", meta.Path)
	assert.Equal(t, 150, meta.Height)
	assert.Equal(t, "image/jpeg", meta.MimeType)
}

func TestCatalog_MimeTypeFromExtension(t *testing.T) {
	c := loadTestCatalog(t)

	meta, ok, err := c.ImageMetadata(context.Background(), 20, "medium")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/srv/uploads/logo-300x100.png", meta.Path)
	assert.Equal(t, "image/png", meta.MimeType)
}

func TestCatalog_Missing(t *testing.T) {
	c := loadTestCatalog(t)
	ctx := context.Background()

	cases := map[string]struct {
		item int64
		size string
	}{
		"unknown item":       {99, "thumbnail"},
		"missing size":       {10, "large"},
		"unknown attachment": {30, "thumbnail"},
	}
	for name, tc := range cases {
		_, ok, err := c.ImageMetadata(ctx, tc.item, tc.size)
		assert.NoError(t, err, name)
		assert.False(t, ok, name)
	}
}

func TestLoadManifest_Invalid(t *testing.T) {
	dir := t.TempDir()

	unknownKey := filepath.Join(dir, "unknown.yaml")
	require.NoError(t, os.WriteFile(unknownKey, []byte("posts: []\n"), 0o644))
	_, err := LoadManifest(unknownKey, dir, nil)
	assert.Error(t, err)

	duplicate := filepath.Join(dir, "dup.yaml")
	require.NoError(t, os.WriteFile(duplicate, []byte("items:\n  - id: 1\n    attachment: 2\n  - id: 1\n    attachment: 3\n"), 0o644))
	_, err = LoadManifest(duplicate, dir, nil)
	assert.Error(t, err)

	_, err = LoadManifest(filepath.Join(dir, "missing.yaml"), dir, nil)
	assert.Error(t, err)
}

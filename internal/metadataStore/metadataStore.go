// Package metadataStore resolves item images from a YAML manifest describing
// items, their featured attachment and the generated sizes of every
// attachment.
package metadataStore

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"

	"github.com/i5heu/ouroboros-sprite/pkg/types"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

type Manifest struct {
	Items       []Item       `yaml:"items"`
	Attachments []Attachment `yaml:"attachments"`
}

// Item maps a content item to its featured image attachment.
type Item struct {
	ID         int64 `yaml:"id"`
	Attachment int64 `yaml:"attachment"`
}

type Attachment struct {
	ID    int64           `yaml:"id"`
	File  string          `yaml:"file"` // original upload, relative to the upload dir
	Sizes map[string]Size `yaml:"sizes"`
}

// Size is one generated variant. File lives next to the original upload.
type Size struct {
	File     string `yaml:"file"`
	Width    int    `yaml:"width"`
	Height   int    `yaml:"height"`
	MimeType string `yaml:"mime-type"`
}

type Catalog struct {
	baseDir     string
	log         *logrus.Logger
	items       map[int64]int64
	attachments map[int64]Attachment
}

func LoadManifest(path string, baseDir string, log *logrus.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.UnmarshalStrict(data, &manifest); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}

	return NewCatalog(manifest, baseDir, log)
}

func NewCatalog(manifest Manifest, baseDir string, log *logrus.Logger) (*Catalog, error) {
	if log == nil {
		log = logrus.New()
	}

	c := &Catalog{
		baseDir:     baseDir,
		log:         log,
		items:       make(map[int64]int64, len(manifest.Items)),
		attachments: make(map[int64]Attachment, len(manifest.Attachments)),
	}

	for _, a := range manifest.Attachments {
		if _, dup := c.attachments[a.ID]; dup {
			return nil, fmt.Errorf("manifest: duplicate attachment %d", a.ID)
		}
		c.attachments[a.ID] = a
	}
	for _, it := range manifest.Items {
		if _, dup := c.items[it.ID]; dup {
			return nil, fmt.Errorf("manifest: duplicate item %d", it.ID)
		}
		c.items[it.ID] = it.Attachment
	}

	log.WithFields(logrus.Fields{
		"items":       len(c.items),
		"attachments": len(c.attachments),
	}).Debug("manifest loaded")

	return c, nil
}

// ImageMetadata returns the featured image of itemID at sizeVariant.
func (c *Catalog) ImageMetadata(ctx context.Context, itemID int64, sizeVariant string) (types.ImageMetadata, bool, error) {
	if err := ctx.Err(); err != nil {
		return types.ImageMetadata{}, false, err
	}

	attachmentID, ok := c.items[itemID]
	if !ok {
		return types.ImageMetadata{}, false, nil
	}

	attachment, ok := c.attachments[attachmentID]
	if !ok {
		c.log.WithFields(logrus.Fields{
			"item":       itemID,
			"attachment": attachmentID,
		}).Warn("item references unknown attachment")
		return types.ImageMetadata{}, false, nil
	}

	size, ok := attachment.Sizes[sizeVariant]
	if !ok {
		return types.ImageMetadata{}, false, nil
	}

	mimeType := size.MimeType
	if mimeType == "" {
		mimeType = mime.TypeByExtension(filepath.Ext(size.File))
	}

	return types.ImageMetadata{
		AttachmentID: attachment.ID,
		Path:         filepath.Join(c.baseDir, filepath.Dir(attachment.File), size.File),
		Width:        size.Width,
		Height:       size.Height,
		MimeType:     mimeType,
	}, true, nil
}

// Package interfaces defines the collaborators a sprite builder depends on:
// where source image metadata comes from, where composites are written, and
// where built records are kept.
package interfaces

import (
	"context"

	"github.com/i5heu/ouroboros-sprite/pkg/types"
)

// MetadataStore resolves the generated image of an item at a size variant.
// ok is false when the item has no image or the variant was never generated.
type MetadataStore interface {
	ImageMetadata(ctx context.Context, itemID int64, sizeVariant string) (meta types.ImageMetadata, ok bool, err error)
}

// ImageStorage is the durable location composites are served from.
type ImageStorage interface {
	// WriteImage stores data and returns an externally resolvable locator.
	WriteImage(ctx context.Context, data []byte, suggestedName string) (locator string, err error)
	// DeleteImage removes a composite by the locator WriteImage returned.
	// Deleting a missing image is not an error.
	DeleteImage(ctx context.Context, locator string) error
	// ReadImage returns the bytes stored at a source image path.
	ReadImage(ctx context.Context, path string) ([]byte, error)
}

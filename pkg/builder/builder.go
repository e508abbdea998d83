// Package builder resolves sprite requests: it returns the cached record for
// a content hash or composes, persists and caches a new one.
package builder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"slices"
	"time"

	"github.com/i5heu/ouroboros-sprite/pkg/compositor"
	"github.com/i5heu/ouroboros-sprite/pkg/interfaces"
	"github.com/i5heu/ouroboros-sprite/pkg/spriteCache"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
	workerpool "github.com/i5heu/ouroboros-sprite/pkg/workerPool"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

type Config struct {
	Metadata interfaces.MetadataStore
	Images   interfaces.ImageStorage
	Cache    *spriteCache.Cache
	// Pool decodes source images concurrently. Nil decodes sequentially.
	Pool    *workerpool.WorkerPool
	Output  compositor.Options
	Timeout time.Duration // 0 disables the build deadline
	Logger  *logrus.Logger
}

type Builder struct {
	config Config
	log    *logrus.Logger
	flight singleflight.Group
}

func New(config Config) (*Builder, error) {
	if config.Metadata == nil || config.Images == nil || config.Cache == nil {
		return nil, errors.New("builder: metadata store, image storage and cache are required")
	}
	if config.Output.Format == "" {
		config.Output.Format = compositor.FormatJPEG
	}
	if config.Logger == nil {
		config.Logger = logrus.New()
	}
	return &Builder{
		config: config,
		log:    config.Logger,
	}, nil
}

// Build returns the sprite for req, composing it when no record exists for
// its content hash. Concurrent calls for one hash share a single build.
func (b *Builder) Build(ctx context.Context, req types.SpriteRequest) (types.SpriteRecord, error) {
	req = req.Normalize()
	hash, err := types.DeriveHash(req.Items, req.SizeVariant)
	if err != nil {
		return types.SpriteRecord{}, err
	}
	if err := ctx.Err(); err != nil {
		return types.SpriteRecord{}, contextError(err, hash, req.SizeVariant)
	}

	rec, hit, err := b.lookup(ctx, hash, req.SizeVariant)
	if err != nil {
		return types.SpriteRecord{}, err
	}
	if hit {
		return rec, nil
	}

	ch := b.flight.DoChan(hash.String(), func() (interface{}, error) {
		// shared by every waiting caller, so it must not die with the first one
		buildCtx := context.WithoutCancel(ctx)
		if b.config.Timeout > 0 {
			var cancel context.CancelFunc
			buildCtx, cancel = context.WithTimeout(buildCtx, b.config.Timeout)
			defer cancel()
		}
		return b.buildOnce(buildCtx, hash, req)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return types.SpriteRecord{}, res.Err
		}
		return cloneRecord(res.Val.(types.SpriteRecord)), nil
	case <-ctx.Done():
		return types.SpriteRecord{}, contextError(ctx.Err(), hash, req.SizeVariant)
	}
}

// lookup treats stored records that cannot be decoded as misses so that the
// rebuild replaces them.
func (b *Builder) lookup(ctx context.Context, hash types.ContentHash, sizeVariant string) (types.SpriteRecord, bool, error) {
	rec, ok, err := b.config.Cache.Load(ctx, hash)
	switch {
	case errors.Is(err, types.ErrInvalidRecord), errors.Is(err, types.ErrUnsupportedRecord):
		b.log.WithFields(logrus.Fields{
			"hash":  hash,
			"error": err,
		}).Warn("stored sprite record is unreadable, rebuilding")
		return types.SpriteRecord{}, false, nil
	case err != nil:
		if ctx.Err() != nil {
			return types.SpriteRecord{}, false, contextError(ctx.Err(), hash, sizeVariant)
		}
		return types.SpriteRecord{}, false, types.NewSpriteError(types.PersistError, hash, 0, sizeVariant, fmt.Errorf("loading record: %w", err))
	}
	return rec, ok, nil
}

type source struct {
	itemID int64
	meta   types.ImageMetadata
}

type decoded struct {
	img image.Image
	err error
}

func (b *Builder) buildOnce(ctx context.Context, hash types.ContentHash, req types.SpriteRequest) (types.SpriteRecord, error) {
	// a flight that started right after another one finished finds its record
	rec, hit, err := b.lookup(ctx, hash, req.SizeVariant)
	if err != nil || hit {
		return rec, err
	}

	start := time.Now()
	log := b.log.WithFields(logrus.Fields{
		"hash": hash,
		"size": req.SizeVariant,
	})

	sources, skipped, err := b.resolve(ctx, hash, req)
	if err != nil {
		return types.SpriteRecord{}, err
	}

	images, err := b.decode(ctx, hash, req.SizeVariant, sources)
	if err != nil {
		return types.SpriteRecord{}, err
	}

	stack := compositor.NewStack()
	entries := make([]types.SpriteItemEntry, 0, len(sources))
	seen := make(map[int64]struct{}, len(sources))
	for i, src := range sources {
		offset := stack.Append(images[i])
		if _, dup := seen[src.itemID]; dup {
			continue
		}
		seen[src.itemID] = struct{}{}

		size := images[i].Bounds().Size()
		if size.X != src.meta.Width || size.Y != src.meta.Height {
			log.WithFields(logrus.Fields{
				"item":     src.itemID,
				"metadata": fmt.Sprintf("%dx%d", src.meta.Width, src.meta.Height),
				"decoded":  fmt.Sprintf("%dx%d", size.X, size.Y),
			}).Warn("image dimensions differ from metadata, using decoded size")
		}

		entries = append(entries, types.SpriteItemEntry{
			SourceItemID: src.itemID,
			AttachmentID: src.meta.AttachmentID,
			ImagePath:    src.meta.Path,
			Width:        size.X,
			Height:       size.Y,
			MimeType:     src.meta.MimeType,
			Offset:       offset,
		})
	}

	rec = types.SpriteRecord{
		Version:     types.RecordVersion,
		Hash:        hash,
		SizeVariant: req.SizeVariant,
		ImageWidth:  stack.Width(),
		ImageHeight: stack.Height(),
		Items:       entries,
		Skipped:     skipped,
	}

	if stack.Len() > 0 {
		data, err := stack.EncodeToBytes(b.config.Output)
		if err != nil {
			return types.SpriteRecord{}, types.NewSpriteError(types.CompositionError, hash, 0, req.SizeVariant, err)
		}
		if err := ctx.Err(); err != nil {
			return types.SpriteRecord{}, contextError(err, hash, req.SizeVariant)
		}

		rec.ImageURL, err = b.config.Images.WriteImage(ctx, data, hash.String()+b.config.Output.Format.Extension())
		if err != nil {
			return types.SpriteRecord{}, persistError(ctx, hash, req.SizeVariant, fmt.Errorf("writing image: %w", err))
		}
		log.WithFields(logrus.Fields{
			"url":   rec.ImageURL,
			"mime":  b.config.Output.Format.MimeType(),
			"bytes": len(data),
		}).Debug("sprite image written")
	} else {
		log.Warn("no item has an image at this size, storing an empty sprite")
	}

	// once the image exists the record is written even if the deadline passes
	persistCtx := context.WithoutCancel(ctx)
	if _, err := b.config.Cache.Put(persistCtx, hash, rec); err != nil {
		if rec.ImageURL != "" {
			if derr := b.config.Images.DeleteImage(persistCtx, rec.ImageURL); derr != nil {
				log.WithFields(logrus.Fields{
					"url":   rec.ImageURL,
					"error": derr,
				}).Error("removing image of failed build")
			}
		}
		return types.SpriteRecord{}, types.NewSpriteError(types.PersistError, hash, 0, req.SizeVariant, fmt.Errorf("writing record: %w", err))
	}

	log.WithFields(logrus.Fields{
		"items":    len(rec.Items),
		"skipped":  len(rec.Skipped),
		"width":    rec.ImageWidth,
		"height":   rec.ImageHeight,
		"duration": time.Since(start),
	}).Info("sprite built")

	return rec, nil
}

// resolve looks up the image of every item. Items without the size variant
// are skipped.
func (b *Builder) resolve(ctx context.Context, hash types.ContentHash, req types.SpriteRequest) ([]source, []int64, error) {
	sources := make([]source, 0, len(req.Items))
	var skipped []int64

	for _, itemID := range req.Items {
		meta, ok, err := b.config.Metadata.ImageMetadata(ctx, itemID, req.SizeVariant)
		if err != nil {
			if ctx.Err() != nil {
				return nil, nil, contextError(ctx.Err(), hash, req.SizeVariant)
			}
			return nil, nil, types.NewSpriteError(types.MetadataError, hash, itemID, req.SizeVariant, err)
		}
		if !ok {
			b.log.WithFields(logrus.Fields{
				"hash": hash,
				"item": itemID,
				"size": req.SizeVariant,
			}).Warn("item has no image at this size, skipping")
			skipped = append(skipped, itemID)
			continue
		}
		sources = append(sources, source{itemID: itemID, meta: meta})
	}

	return sources, skipped, nil
}

// decode reads and decodes all sources. The result is index aligned with
// sources no matter how the work was scheduled.
func (b *Builder) decode(ctx context.Context, hash types.ContentHash, sizeVariant string, sources []source) ([]image.Image, error) {
	results := make([]decoded, len(sources))

	if b.config.Pool == nil {
		for i, src := range sources {
			results[i] = b.decodeOne(ctx, src)
			if results[i].err != nil {
				break
			}
		}
	} else {
		room := b.config.Pool.CreateRoom(len(sources))
		queued := 0
		for _, src := range sources {
			src := src
			err := room.NewTaskWaitForFreeSlot(func() interface{} {
				return b.decodeOne(ctx, src)
			})
			if err != nil {
				b.log.WithError(err).Debug("decode pool unavailable, decoding inline")
				break
			}
			queued++
		}
		for i, r := range room.Collect() {
			results[i] = r.(decoded)
		}
		for i := queued; i < len(sources); i++ {
			results[i] = b.decodeOne(ctx, sources[i])
		}
	}

	images := make([]image.Image, len(sources))
	for i, r := range results {
		if r.err != nil {
			if ctx.Err() != nil {
				return nil, contextError(ctx.Err(), hash, sizeVariant)
			}
			return nil, types.NewSpriteError(types.CompositionError, hash, sources[i].itemID, sizeVariant, r.err)
		}
		images[i] = r.img
	}
	return images, nil
}

func (b *Builder) decodeOne(ctx context.Context, src source) decoded {
	if err := ctx.Err(); err != nil {
		return decoded{err: err}
	}
	data, err := b.config.Images.ReadImage(ctx, src.meta.Path)
	if err != nil {
		return decoded{err: fmt.Errorf("reading %s: %w", src.meta.Path, err)}
	}
	img, err := compositor.Decode(data)
	if err != nil {
		return decoded{err: fmt.Errorf("%s: %w", src.meta.Path, err)}
	}
	return decoded{img: img}
}

func contextError(err error, hash types.ContentHash, sizeVariant string) error {
	return types.NewSpriteError(types.BuildTimeout, hash, 0, sizeVariant, err)
}

func persistError(ctx context.Context, hash types.ContentHash, sizeVariant string, err error) error {
	if ctx.Err() != nil {
		return contextError(ctx.Err(), hash, sizeVariant)
	}
	return types.NewSpriteError(types.PersistError, hash, 0, sizeVariant, err)
}

func cloneRecord(rec types.SpriteRecord) types.SpriteRecord {
	rec.Items = slices.Clone(rec.Items)
	rec.Skipped = slices.Clone(rec.Skipped)
	return rec
}

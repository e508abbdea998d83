package spriteCache

import (
	"context"
	"fmt"

	"github.com/i5heu/ouroboros-sprite/pkg/interfaces"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
	"github.com/sirupsen/logrus"
)

// Schema is the document kind sprite records are stored under.
var Schema = interfaces.Schema{
	Kind:        "sprite",
	Description: "composite sprite image and per-item offsets, named by content hash",
	Public:      false,
}

// Cache stores SpriteRecords in a RecordStore, named by their content hash.
type Cache struct {
	store interfaces.RecordStore
	log   *logrus.Logger
}

// New registers Schema with store and returns a cache backed by it.
func New(store interfaces.RecordStore, log *logrus.Logger) (*Cache, error) {
	if log == nil {
		log = logrus.New()
	}
	if err := store.RegisterSchema(Schema); err != nil {
		return nil, fmt.Errorf("registering sprite schema: %w", err)
	}
	return &Cache{store: store, log: log}, nil
}

// Exists returns the record id stored under hash.
func (c *Cache) Exists(ctx context.Context, hash types.ContentHash) (types.RecordID, bool, error) {
	doc, ok, err := c.store.FindByName(ctx, Schema.Kind, hash.String())
	if err != nil || !ok {
		return 0, false, err
	}
	return doc.ID, true, nil
}

// Load returns the record stored under hash. A stored payload that cannot be
// decoded is reported as an error wrapping types.ErrInvalidRecord or
// types.ErrUnsupportedRecord.
func (c *Cache) Load(ctx context.Context, hash types.ContentHash) (types.SpriteRecord, bool, error) {
	doc, ok, err := c.store.FindByName(ctx, Schema.Kind, hash.String())
	if err != nil || !ok {
		return types.SpriteRecord{}, false, err
	}

	rec, err := decode(doc, hash)
	if err != nil {
		return types.SpriteRecord{}, false, err
	}
	return rec, true, nil
}

// List returns every readable record in store order. Unreadable records are
// logged and left out.
func (c *Cache) List(ctx context.Context) ([]types.SpriteRecord, error) {
	docs, err := c.store.ListByKind(ctx, Schema.Kind)
	if err != nil {
		return nil, err
	}

	records := make([]types.SpriteRecord, 0, len(docs))
	for _, doc := range docs {
		rec, err := decode(doc, types.ContentHash(doc.Name))
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"hash":  doc.Name,
				"error": err,
			}).Warn("skipping unreadable sprite record")
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

func decode(doc interfaces.Document, hash types.ContentHash) (types.SpriteRecord, error) {
	rec, err := types.DecodeRecord(doc.Content)
	if err != nil {
		return types.SpriteRecord{}, fmt.Errorf("decoding record %s (id %d): %w", hash, doc.ID, err)
	}

	switch {
	case rec.Hash.IsZero():
		// legacy payloads do not carry their name
		rec.Hash = hash
	case rec.Hash != hash:
		return types.SpriteRecord{}, fmt.Errorf("decoding record %s (id %d): %w: stored hash %s", hash, doc.ID, types.ErrInvalidRecord, rec.Hash)
	}
	return rec, nil
}

// Put creates or overwrites the record stored under hash.
func (c *Cache) Put(ctx context.Context, hash types.ContentHash, rec types.SpriteRecord) (types.RecordID, error) {
	rec.Hash = hash
	content, err := rec.MarshalJSON()
	if err != nil {
		return 0, fmt.Errorf("encoding record %s: %w", hash, err)
	}

	id, err := c.store.UpsertByName(ctx, interfaces.Document{
		Kind:    Schema.Kind,
		Name:    hash.String(),
		Content: content,
	})
	if err != nil {
		return 0, err
	}

	c.log.WithFields(logrus.Fields{
		"hash":  hash,
		"id":    id,
		"items": len(rec.Items),
	}).Debug("sprite record stored")

	return id, nil
}

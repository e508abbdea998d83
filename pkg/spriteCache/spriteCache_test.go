package spriteCache

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/i5heu/ouroboros-sprite/internal/testutil"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*Cache, *testutil.MemoryRecordStore) {
	store := testutil.NewMemoryRecordStore()
	c, err := New(store, nil)
	require.NoError(t, err)
	return c, store
}

func testRecord() types.SpriteRecord {
	return types.SpriteRecord{
		Version:     types.RecordVersion,
		SizeVariant: "thumbnail",
		ImageURL:    "/sprites/h.jpg",
		ImageWidth:  10,
		ImageHeight: 30,
		Items: []types.SpriteItemEntry{
			{SourceItemID: 1, Width: 10, Height: 10, Offset: 0},
			{SourceItemID: 2, Width: 10, Height: 20, Offset: 10},
		},
	}
}

func TestCache_PutLoadExists(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Exists(ctx, "h")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = c.Load(ctx, "h")
	require.NoError(t, err)
	assert.False(t, ok)

	id, err := c.Put(ctx, "h", testRecord())
	require.NoError(t, err)

	existing, ok, err := c.Exists(ctx, "h")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, id, existing)

	rec, ok, err := c.Load(ctx, "h")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ContentHash("h"), rec.Hash)
	assert.Equal(t, []int64{1, 2}, rec.ItemIDs())

	doc, _, err := store.FindByName(ctx, Schema.Kind, "h")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(doc.Content), "{\n    \"version\": 1"), "payload is pretty printed")
}

func TestCache_PutUpserts(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	id1, err := c.Put(ctx, "h", testRecord())
	require.NoError(t, err)

	rec := testRecord()
	rec.ImageURL = "/sprites/h2.jpg"
	id2, err := c.Put(ctx, "h", rec)
	require.NoError(t, err)

	assert.Equal(t, id1, id2)
	assert.Equal(t, 1, store.Len())

	loaded, _, err := c.Load(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, "/sprites/h2.jpg", loaded.ImageURL)
}

func TestCache_LoadLegacyPayload(t *testing.T) {
	c, store := newTestCache(t)
	store.Put(Schema.Kind, "legacy", []byte(`{"image_url": "/s.jpg", "image_w": 5, "image_h": 5,
		"map": {"3": {"id": 30, "filepath": "/a.jpg", "width": 5, "height": 5, "mime-type": "image/jpeg", "offset": 0}}}`))

	rec, ok, err := c.Load(context.Background(), "legacy")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.ContentHash("legacy"), rec.Hash)
	assert.Equal(t, []int64{3}, rec.ItemIDs())
}

func TestCache_LoadRejectsForeignHash(t *testing.T) {
	c, store := newTestCache(t)
	rec := testRecord()
	rec.Hash = "other"
	content, err := rec.MarshalJSON()
	require.NoError(t, err)
	store.Put(Schema.Kind, "h", content)

	_, _, err = c.Load(context.Background(), "h")
	assert.True(t, errors.Is(err, types.ErrInvalidRecord))
}

func TestCache_LoadRejectsUnknownVersion(t *testing.T) {
	c, store := newTestCache(t)
	store.Put(Schema.Kind, "h", []byte(`{"version": 7}`))

	_, ok, err := c.Load(context.Background(), "h")
	assert.False(t, ok)
	assert.True(t, errors.Is(err, types.ErrUnsupportedRecord))
}

func TestCache_ListSkipsUnreadable(t *testing.T) {
	c, store := newTestCache(t)
	ctx := context.Background()

	_, err := c.Put(ctx, "h1", testRecord())
	require.NoError(t, err)
	store.Put(Schema.Kind, "broken", []byte(`{"version": 7}`))
	_, err = c.Put(ctx, "h2", testRecord())
	require.NoError(t, err)

	records, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, types.ContentHash("h1"), records[0].Hash)
	assert.Equal(t, types.ContentHash("h2"), records[1].Hash)
}

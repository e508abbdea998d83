package render

import (
	"errors"
	"testing"

	"github.com/i5heu/ouroboros-sprite/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeItemRecord() types.SpriteRecord {
	return types.SpriteRecord{
		Version:     types.RecordVersion,
		Hash:        "abc123",
		SizeVariant: "thumbnail",
		ImageURL:    "/uploads/sprites/abc123.jpg",
		ImageWidth:  8,
		ImageHeight: 60,
		Items: []types.SpriteItemEntry{
			{SourceItemID: 1, Height: 10, Offset: 0},
			{SourceItemID: 2, Height: 20, Offset: 10},
			{SourceItemID: 3, Height: 30, Offset: 30},
		},
	}
}

func TestBackgroundPosition(t *testing.T) {
	rec := threeItemRecord()

	tests := []struct {
		item int64
		want string
	}{
		{1, "0.000%"},
		{2, "33.333%"},
		{3, "100.000%"},
	}
	for _, tt := range tests {
		pos, err := BackgroundPosition(rec, tt.item)
		require.NoError(t, err)
		assert.Equal(t, tt.want, pos.String(), "item %d", tt.item)
	}

	pos, err := BackgroundPosition(rec, 3)
	require.NoError(t, err)
	assert.Equal(t, "background-position: 0 100.000%", pos.Declaration())
	assert.Equal(t, 30, pos.Offset)
}

func TestBackgroundPosition_SingleItem(t *testing.T) {
	rec := types.SpriteRecord{
		Hash:        "abc",
		ImageHeight: 40,
		Items:       []types.SpriteItemEntry{{SourceItemID: 9, Height: 40}},
	}

	pos, err := BackgroundPosition(rec, 9)
	require.NoError(t, err)
	assert.Equal(t, "0.000%", pos.String())
}

func TestBackgroundPosition_MissingItem(t *testing.T) {
	_, err := BackgroundPosition(threeItemRecord(), 42)
	require.Error(t, err)
	assert.True(t, errors.Is(err, types.ErrNotFound))

	kind, ok := types.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, types.NotFoundError, kind)
}

func TestBackgroundImageStyle(t *testing.T) {
	rec := threeItemRecord()

	assert.Equal(t,
		`.sprite-abc123 { background-image: url("/uploads/sprites/abc123.jpg"); }`,
		BackgroundImageStyle(rec, ""))
	assert.Equal(t,
		`.gallery { background-image: url("/uploads/sprites/abc123.jpg"); }`,
		BackgroundImageStyle(rec, "gallery"))
	assert.Equal(t,
		`<style>.gallery { background-image: url("/uploads/sprites/abc123.jpg"); }</style>`,
		StyleTag(rec, "gallery"))
}

func TestBackgroundImageStyle_Escapes(t *testing.T) {
	rec := threeItemRecord()
	rec.ImageURL = `/x.jpg"); } </style><script>\`

	got := BackgroundImageStyle(rec, `a"b{}`)
	assert.Equal(t, `.a\"b\{\} { background-image: url("/x.jpg\"); } \3c /style\3e \3c script\3e \\"); }`, got)
	assert.NotContains(t, StyleTag(rec, `a"b{}`), "</style><")
}

func TestBackgroundImageStyle_KeepsURLCharacters(t *testing.T) {
	rec := threeItemRecord()
	rec.ImageURL = "/cdn/sprite.png?v=2&size=thumb"

	assert.Equal(t,
		`.gallery { background-image: url("/cdn/sprite.png?v=2&size=thumb"); }`,
		BackgroundImageStyle(rec, "gallery"))
}

func TestCSSIdent(t *testing.T) {
	assert.Equal(t, "sprite_a-1", cssIdent("sprite_a-1"))
	assert.Equal(t, `\31 col`, cssIdent("1col"))
	assert.Equal(t, `a\ b\.c`, cssIdent("a b.c"))
	assert.Equal(t, `x\a y`, cssIdent("x\ny"))
}

func TestPositions(t *testing.T) {
	positions := Positions(threeItemRecord())
	require.Len(t, positions, 3)
	assert.Equal(t, int64(2), positions[1].ItemID)
	assert.InDelta(t, 33.333, positions[1].Percent, 0.001)
}

package types_test

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/i5heu/ouroboros-sprite/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestDeriveHash_Deterministic(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		items := rapid.SliceOf(rapid.Int64Range(1, 1_000_000)).Draw(t, "items")
		size := rapid.StringMatching(`[a-z][a-z0-9_-]{0,15}`).Draw(t, "size")

		shuffled := append([]int64(nil), items...)
		rand.New(rand.NewSource(rapid.Int64().Draw(t, "seed"))).Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})

		a, err := types.DeriveHash(items, size)
		if err != nil {
			t.Fatalf("DeriveHash failed: %v", err)
		}
		b, err := types.DeriveHash(shuffled, size)
		if err != nil {
			t.Fatalf("DeriveHash failed: %v", err)
		}
		if a != b {
			t.Fatalf("hash differs for permutation %v of %v", shuffled, items)
		}
	})
}

func TestDeriveHash_Sensitivity(t *testing.T) {
	base, err := types.DeriveHash([]int64{3, 1, 2}, "thumbnail")
	require.NoError(t, err)

	variants := map[string]struct {
		items []int64
		size  string
	}{
		"changed item":  {[]int64{1, 2, 4}, "thumbnail"},
		"added item":    {[]int64{1, 2, 3, 4}, "thumbnail"},
		"removed item":  {[]int64{1, 2}, "thumbnail"},
		"duplicate":     {[]int64{1, 2, 3, 3}, "thumbnail"},
		"size variant":  {[]int64{1, 2, 3}, "medium"},
		"joined digits": {[]int64{12, 3}, "thumbnail"},
	}

	seen := map[types.ContentHash]string{base: "base"}
	for name, v := range variants {
		h, err := types.DeriveHash(v.items, v.size)
		require.NoError(t, err, name)
		if other, dup := seen[h]; dup {
			t.Errorf("%s collides with %s", name, other)
		}
		seen[h] = name
	}
}

func TestDeriveHash_DoesNotMutateInput(t *testing.T) {
	items := []int64{9, 4, 7}
	_, err := types.DeriveHash(items, "thumbnail")
	require.NoError(t, err)
	assert.Equal(t, []int64{9, 4, 7}, items)
}

func TestDeriveHash_EmptyItems(t *testing.T) {
	h, err := types.DeriveHash(nil, "thumbnail")
	require.NoError(t, err)
	assert.Len(t, h.String(), 64)

	h2, err := types.DeriveHash([]int64{}, "thumbnail")
	require.NoError(t, err)
	assert.Equal(t, h, h2)
}

func TestDeriveHash_InvalidSizeVariant(t *testing.T) {
	for _, size := range []string{"", "thumb nail", "../etc", "medium|large"} {
		_, err := types.DeriveHash([]int64{1}, size)
		require.Error(t, err, size)
		assert.True(t, errors.Is(err, types.ErrInvalidRequest), size)

		kind, ok := types.KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, types.InvalidRequestError, kind)
	}
}

func TestSpriteRequest_Normalize(t *testing.T) {
	req := types.SpriteRequest{Items: []int64{5, 1, 5, 3}}
	norm := req.Normalize()

	assert.Equal(t, []int64{1, 3, 5, 5}, norm.Items)
	assert.Equal(t, types.DefaultSizeVariant, norm.SizeVariant)

	h1, err := req.Hash()
	require.NoError(t, err)
	h2, err := norm.Hash()
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
}

package types

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

const (
	// DefaultSizeVariant is used when a request does not name a size profile.
	DefaultSizeVariant = "thumbnail"

	hashInputSeparator = "-"
	itemSeparator      = "|"
)

var sizeVariantPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ContentHash is the hex encoded SHA-512/256 digest identifying a sprite.
type ContentHash string

func (h ContentHash) String() string {
	return string(h)
}

// IsZero reports whether the hash has not been derived yet.
func (h ContentHash) IsZero() bool {
	return h == ""
}

// RecordID is the mutable identifier a record store assigns to a document.
type RecordID uint64

func (id RecordID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// ValidateSizeVariant rejects empty or malformed size profile names.
func ValidateSizeVariant(sizeVariant string) error {
	if sizeVariant == "" {
		return NewSpriteError(InvalidRequestError, "", 0, sizeVariant, fmt.Errorf("size variant is empty"))
	}
	if !sizeVariantPattern.MatchString(sizeVariant) {
		return NewSpriteError(InvalidRequestError, "", 0, sizeVariant, fmt.Errorf("size variant %q contains invalid characters", sizeVariant))
	}
	return nil
}

// SortItems returns an ascending copy of items. Duplicates are kept.
func SortItems(items []int64) []int64 {
	sorted := slices.Clone(items)
	slices.Sort(sorted)
	return sorted
}

// DeriveHash returns the identity of a sprite built from items at sizeVariant.
// The result only depends on the size variant and the sorted item list.
func DeriveHash(items []int64, sizeVariant string) (ContentHash, error) {
	if err := ValidateSizeVariant(sizeVariant); err != nil {
		return "", err
	}

	sorted := SortItems(items)
	parts := make([]string, len(sorted))
	for i, id := range sorted {
		parts[i] = strconv.FormatInt(id, 10)
	}

	var b strings.Builder
	b.WriteString(sizeVariant)
	b.WriteString(hashInputSeparator)
	b.WriteString(strings.Join(parts, itemSeparator))

	sum := sha512.Sum512_256([]byte(b.String()))
	return ContentHash(hex.EncodeToString(sum[:])), nil
}

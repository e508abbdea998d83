package types

// RecordVersion is the current serialization version of a SpriteRecord.
const RecordVersion = 1

// SpriteRequest asks for a sprite of Items rendered at SizeVariant.
// Item order is irrelevant, duplicates are significant.
type SpriteRequest struct {
	Items       []int64
	SizeVariant string
}

// Hash derives the identity of the request.
func (r SpriteRequest) Hash() (ContentHash, error) {
	return DeriveHash(r.Items, r.sizeVariant())
}

// Normalize returns the request with a default size variant and sorted items.
func (r SpriteRequest) Normalize() SpriteRequest {
	return SpriteRequest{
		Items:       SortItems(r.Items),
		SizeVariant: r.sizeVariant(),
	}
}

func (r SpriteRequest) sizeVariant() string {
	if r.SizeVariant == "" {
		return DefaultSizeVariant
	}
	return r.SizeVariant
}

// ImageMetadata describes one generated size of a source image.
type ImageMetadata struct {
	AttachmentID int64
	Path         string
	Width        int
	Height       int
	MimeType     string
}

// SpriteItemEntry locates the slice of one source item inside a sprite.
type SpriteItemEntry struct {
	SourceItemID int64  `json:"sourceItemId"`
	AttachmentID int64  `json:"attachmentId"`
	ImagePath    string `json:"imagePath"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	MimeType     string `json:"mimeType"`
	Offset       int    `json:"offset"` // pixels from the top of the sprite
}

// SpriteRecord is a built sprite. Items is ordered by Offset and unique by
// SourceItemID.
type SpriteRecord struct {
	Version     int
	Hash        ContentHash
	SizeVariant string
	ImageURL    string
	ImageWidth  int
	ImageHeight int
	Items       []SpriteItemEntry
	Skipped     []int64 // items without the requested size variant
}

// Entry returns the entry of itemID.
func (r *SpriteRecord) Entry(itemID int64) (SpriteItemEntry, bool) {
	for _, e := range r.Items {
		if e.SourceItemID == itemID {
			return e, true
		}
	}
	return SpriteItemEntry{}, false
}

// LastEntry returns the entry with the largest offset.
func (r *SpriteRecord) LastEntry() (SpriteItemEntry, bool) {
	if len(r.Items) == 0 {
		return SpriteItemEntry{}, false
	}
	return r.Items[len(r.Items)-1], true
}

// ItemIDs lists the composited item IDs in composition order.
func (r *SpriteRecord) ItemIDs() []int64 {
	ids := make([]int64, len(r.Items))
	for i, e := range r.Items {
		ids[i] = e.SourceItemID
	}
	return ids
}

// IsEmpty reports whether no image was composited.
func (r *SpriteRecord) IsEmpty() bool {
	return len(r.Items) == 0
}

package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

var (
	ErrInvalidRecord     = errors.New("sprite record: invalid payload")
	ErrUnsupportedRecord = errors.New("sprite record: unsupported version")
)

type recordV1 struct {
	Version     int               `json:"version"`
	Hash        string            `json:"hash"`
	SizeVariant string            `json:"sizeVariant"`
	ImageURL    string            `json:"imageUrl"`
	ImageWidth  int               `json:"imageWidth"`
	ImageHeight int               `json:"imageHeight"`
	Items       []SpriteItemEntry `json:"items"`
	Skipped     []int64           `json:"skipped"`
}

var requiredV1Fields = []string{"hash", "imageWidth", "imageHeight", "items"}

func (r SpriteRecord) MarshalJSON() ([]byte, error) {
	items := r.Items
	if items == nil {
		items = []SpriteItemEntry{}
	}
	skipped := r.Skipped
	if skipped == nil {
		skipped = []int64{}
	}

	return json.MarshalIndent(&recordV1{
		Version:     RecordVersion,
		Hash:        r.Hash.String(),
		SizeVariant: r.SizeVariant,
		ImageURL:    r.ImageURL,
		ImageWidth:  r.ImageWidth,
		ImageHeight: r.ImageHeight,
		Items:       items,
		Skipped:     skipped,
	}, "", "    ")
}

func (r *SpriteRecord) UnmarshalJSON(data []byte) error {
	rec, err := DecodeRecord(data)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}

// DecodeRecord parses a stored payload. Version 1 payloads are decoded
// strictly, payloads without a version field are upgraded from the legacy
// shape (image_url, image_w, image_h, map). Legacy payloads carry no hash.
func DecodeRecord(data []byte) (SpriteRecord, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return SpriteRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	rawVersion, versioned := probe["version"]
	if !versioned {
		if _, ok := probe["image_url"]; ok {
			return decodeLegacyRecord(data)
		}
		return SpriteRecord{}, fmt.Errorf("%w: missing version", ErrInvalidRecord)
	}

	var version int
	if err := json.Unmarshal(rawVersion, &version); err != nil {
		return SpriteRecord{}, fmt.Errorf("%w: version: %v", ErrInvalidRecord, err)
	}
	if version != RecordVersion {
		return SpriteRecord{}, fmt.Errorf("%w: %d", ErrUnsupportedRecord, version)
	}

	for _, field := range requiredV1Fields {
		if _, ok := probe[field]; !ok {
			return SpriteRecord{}, fmt.Errorf("%w: missing field %q", ErrInvalidRecord, field)
		}
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var v1 recordV1
	if err := dec.Decode(&v1); err != nil {
		return SpriteRecord{}, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	rec := SpriteRecord{
		Version:     v1.Version,
		Hash:        ContentHash(v1.Hash),
		SizeVariant: v1.SizeVariant,
		ImageURL:    v1.ImageURL,
		ImageWidth:  v1.ImageWidth,
		ImageHeight: v1.ImageHeight,
		Items:       v1.Items,
		Skipped:     v1.Skipped,
	}
	if err := rec.validate(); err != nil {
		return SpriteRecord{}, err
	}
	return rec, nil
}

func (r *SpriteRecord) validate() error {
	if r.ImageWidth < 0 || r.ImageHeight < 0 {
		return fmt.Errorf("%w: negative dimensions", ErrInvalidRecord)
	}

	seen := make(map[int64]struct{}, len(r.Items))
	prev := 0
	for _, e := range r.Items {
		if _, dup := seen[e.SourceItemID]; dup {
			return fmt.Errorf("%w: duplicate item %d", ErrInvalidRecord, e.SourceItemID)
		}
		seen[e.SourceItemID] = struct{}{}

		if e.Offset < prev {
			return fmt.Errorf("%w: offsets not ascending at item %d", ErrInvalidRecord, e.SourceItemID)
		}
		if e.Offset+e.Height > r.ImageHeight {
			return fmt.Errorf("%w: item %d exceeds image height", ErrInvalidRecord, e.SourceItemID)
		}
		prev = e.Offset
	}
	return nil
}

// flexInt accepts JSON numbers and numeric strings.
type flexInt int64

func (f *flexInt) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return err
		}
		*f = flexInt(n)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	i, err := n.Int64()
	if err != nil {
		fl, ferr := n.Float64()
		if ferr != nil {
			return err
		}
		i = int64(fl)
	}
	*f = flexInt(i)
	return nil
}

type legacyEntry struct {
	ID       flexInt `json:"id"`
	Filepath string  `json:"filepath"`
	Width    flexInt `json:"width"`
	Height   flexInt `json:"height"`
	MimeType string  `json:"mime-type"`
	Offset   flexInt `json:"offset"`
}

type legacyRecord struct {
	ImageURL string          `json:"image_url"`
	ImageW   flexInt         `json:"image_w"`
	ImageH   flexInt         `json:"image_h"`
	Map      json.RawMessage `json:"map"`
}

func decodeLegacyRecord(data []byte) (SpriteRecord, error) {
	var legacy legacyRecord
	if err := json.Unmarshal(data, &legacy); err != nil {
		return SpriteRecord{}, fmt.Errorf("%w: legacy: %v", ErrInvalidRecord, err)
	}

	entries := map[string]legacyEntry{}
	raw := bytes.TrimSpace(legacy.Map)
	switch {
	case len(raw) == 0, bytes.Equal(raw, []byte("null")), bytes.Equal(raw, []byte("[]")):
		// empty sprite
	default:
		if err := json.Unmarshal(raw, &entries); err != nil {
			return SpriteRecord{}, fmt.Errorf("%w: legacy map: %v", ErrInvalidRecord, err)
		}
	}

	items := make([]SpriteItemEntry, 0, len(entries))
	for key, e := range entries {
		itemID, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return SpriteRecord{}, fmt.Errorf("%w: legacy item key %q", ErrInvalidRecord, key)
		}
		items = append(items, SpriteItemEntry{
			SourceItemID: itemID,
			AttachmentID: int64(e.ID),
			ImagePath:    e.Filepath,
			Width:        int(e.Width),
			Height:       int(e.Height),
			MimeType:     e.MimeType,
			Offset:       int(e.Offset),
		})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Offset != items[j].Offset {
			return items[i].Offset < items[j].Offset
		}
		return items[i].SourceItemID < items[j].SourceItemID
	})

	rec := SpriteRecord{
		Version:     RecordVersion,
		ImageURL:    legacy.ImageURL,
		ImageWidth:  int(legacy.ImageW),
		ImageHeight: int(legacy.ImageH),
		Items:       items,
	}
	if err := rec.validate(); err != nil {
		return SpriteRecord{}, err
	}
	return rec, nil
}

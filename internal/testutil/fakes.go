package testutil

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/i5heu/ouroboros-sprite/pkg/interfaces"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
)

// MemoryRecordStore is an in-memory RecordStore.
type MemoryRecordStore struct {
	mu      sync.Mutex
	schemas map[string]interfaces.Schema
	docs    map[string]interfaces.Document
	lastID  types.RecordID
	Upserts atomic.Int64
	// UpsertErr makes every UpsertByName fail.
	UpsertErr error
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{
		schemas: make(map[string]interfaces.Schema),
		docs:    make(map[string]interfaces.Document),
	}
}

func (m *MemoryRecordStore) RegisterSchema(schema interfaces.Schema) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schemas[schema.Kind] = schema
	return nil
}

func (m *MemoryRecordStore) FindByName(ctx context.Context, kind, name string) (interfaces.Document, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemas[kind]; !ok {
		return interfaces.Document{}, false, interfaces.ErrUnknownSchema
	}
	doc, ok := m.docs[kind+"/"+name]
	return doc, ok, nil
}

func (m *MemoryRecordStore) UpsertByName(ctx context.Context, doc interfaces.Document) (types.RecordID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemas[doc.Kind]; !ok {
		return 0, interfaces.ErrUnknownSchema
	}
	m.Upserts.Add(1)
	if m.UpsertErr != nil {
		return 0, m.UpsertErr
	}

	key := doc.Kind + "/" + doc.Name
	if existing, ok := m.docs[key]; ok {
		doc.ID = existing.ID
	} else {
		m.lastID++
		doc.ID = m.lastID
	}
	m.docs[key] = doc
	return doc.ID, nil
}

func (m *MemoryRecordStore) ListByKind(ctx context.Context, kind string) ([]interfaces.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.schemas[kind]; !ok {
		return nil, interfaces.ErrUnknownSchema
	}
	var docs []interfaces.Document
	for _, doc := range m.docs {
		if doc.Kind == kind {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Put stores raw content, bypassing schema checks.
func (m *MemoryRecordStore) Put(kind, name string, content []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastID++
	m.docs[kind+"/"+name] = interfaces.Document{ID: m.lastID, Kind: kind, Name: name, Content: content}
}

func (m *MemoryRecordStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

func (m *MemoryRecordStore) Close() error { return nil }

// MemoryImageStorage keeps source images and written composites in memory.
type MemoryImageStorage struct {
	mu       sync.Mutex
	sources  map[string][]byte
	written  map[string][]byte
	Writes   atomic.Int64
	Deletes  atomic.Int64
	WriteErr error
	ReadHook func(path string) // called before every read
}

func NewMemoryImageStorage() *MemoryImageStorage {
	return &MemoryImageStorage{
		sources: make(map[string][]byte),
		written: make(map[string][]byte),
	}
}

func (m *MemoryImageStorage) AddSource(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources[path] = data
}

func (m *MemoryImageStorage) WriteImage(ctx context.Context, data []byte, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	m.Writes.Add(1)
	if m.WriteErr != nil {
		return "", m.WriteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.written[name] = data
	return "/sprites/" + name, nil
}

func (m *MemoryImageStorage) DeleteImage(ctx context.Context, locator string) error {
	m.Deletes.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.written, strings.TrimPrefix(locator, "/sprites/"))
	return nil
}

func (m *MemoryImageStorage) ReadImage(ctx context.Context, path string) ([]byte, error) {
	if m.ReadHook != nil {
		m.ReadHook(path)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.sources[path]
	if !ok {
		return nil, fmt.Errorf("no such image %s", path)
	}
	return data, nil
}

func (m *MemoryImageStorage) Written(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.written[name]
	return data, ok
}

func (m *MemoryImageStorage) WrittenCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.written)
}

// StaticMetadata is a MetadataStore over a fixed map keyed by item ID.
type StaticMetadata struct {
	Images  map[int64]types.ImageMetadata
	Err     error
	Lookups atomic.Int64
	Hook    func(itemID int64) // called before every lookup
}

func (s *StaticMetadata) ImageMetadata(ctx context.Context, itemID int64, sizeVariant string) (types.ImageMetadata, bool, error) {
	s.Lookups.Add(1)
	if s.Hook != nil {
		s.Hook(itemID)
	}
	if s.Err != nil {
		return types.ImageMetadata{}, false, s.Err
	}
	meta, ok := s.Images[itemID]
	return meta, ok, nil
}

// SolidPNG encodes a w x h PNG filled with c.
func SolidPNG(t testing.TB, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encoding test png: %v", err)
	}
	return buf.Bytes()
}

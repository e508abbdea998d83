package interfaces

import (
	"context"
	"errors"

	"github.com/i5heu/ouroboros-sprite/pkg/types"
)

// ErrUnknownSchema is returned for documents of a kind nobody registered.
var ErrUnknownSchema = errors.New("record store: unknown schema")

// Schema declares a document kind. Stores refuse kinds that were not
// registered, so the set of kinds is fixed when the process starts.
type Schema struct {
	Kind        string
	Description string
	Public      bool
}

// Document is one named payload in a RecordStore.
type Document struct {
	ID      types.RecordID
	Kind    string
	Name    string
	Content []byte
}

// RecordStore is a queryable key to document store.
type RecordStore interface {
	RegisterSchema(schema Schema) error
	// FindByName returns the first document of kind with the exact name.
	FindByName(ctx context.Context, kind, name string) (doc Document, ok bool, err error)
	// UpsertByName creates the document or overwrites the one with the same
	// kind and name. The identifier is resolved inside the same atomic write.
	UpsertByName(ctx context.Context, doc Document) (types.RecordID, error)
	// ListByKind returns every document of kind ordered by ID.
	ListByKind(ctx context.Context, kind string) ([]Document, error)
	Close() error
}

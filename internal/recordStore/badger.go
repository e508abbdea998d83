package recordStore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"

	"github.com/i5heu/ouroboros-sprite/internal/keyValStore"
	"github.com/i5heu/ouroboros-sprite/pkg/interfaces"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
	"github.com/sirupsen/logrus"
)

var sequenceKey = []byte("Record:seq")

// BadgerStore keeps documents in a KeyValStore. Every document lives under
// Record:doc:<id> and is reachable through Record:name:<kind>:<name>.
type BadgerStore struct {
	kv      *keyValStore.KeyValStore
	log     *logrus.Logger
	schemas *schemaRegistry
}

func NewBadgerStore(kv *keyValStore.KeyValStore, log *logrus.Logger) *BadgerStore {
	if log == nil {
		log = logrus.New()
	}
	return &BadgerStore{
		kv:      kv,
		log:     log,
		schemas: newSchemaRegistry(),
	}
}

func nameKey(kind, name string) []byte {
	return []byte("Record:name:" + kind + ":" + name)
}

func docKey(id types.RecordID) []byte {
	key := []byte("Record:doc:")
	return binary.BigEndian.AppendUint64(key, uint64(id))
}

func decodeID(b []byte) (types.RecordID, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("record store: invalid id length %d", len(b))
	}
	return types.RecordID(binary.BigEndian.Uint64(b)), nil
}

func encodeID(id types.RecordID) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(id))
}

func (s *BadgerStore) RegisterSchema(schema interfaces.Schema) error {
	return s.schemas.register(schema)
}

func (s *BadgerStore) FindByName(ctx context.Context, kind, name string) (interfaces.Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return interfaces.Document{}, false, err
	}
	if err := s.schemas.check(kind); err != nil {
		return interfaces.Document{}, false, err
	}

	rawID, err := s.kv.Read(nameKey(kind, name))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		return interfaces.Document{}, false, nil
	}
	if err != nil {
		return interfaces.Document{}, false, fmt.Errorf("find %s/%s: %w", kind, name, err)
	}

	id, err := decodeID(rawID)
	if err != nil {
		return interfaces.Document{}, false, err
	}

	content, err := s.kv.Read(docKey(id))
	if errors.Is(err, keyValStore.ErrKeyNotFound) {
		s.log.WithFields(logrus.Fields{
			"kind": kind,
			"name": name,
			"id":   id,
		}).Warn("name index points to a missing document")
		return interfaces.Document{}, false, nil
	}
	if err != nil {
		return interfaces.Document{}, false, fmt.Errorf("read document %d: %w", id, err)
	}

	return interfaces.Document{
		ID:      id,
		Kind:    kind,
		Name:    name,
		Content: content,
	}, true, nil
}

func (s *BadgerStore) UpsertByName(ctx context.Context, doc interfaces.Document) (types.RecordID, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := s.schemas.check(doc.Kind); err != nil {
		return 0, err
	}
	if doc.Name == "" {
		return 0, fmt.Errorf("record store: document name is empty")
	}

	var id types.RecordID
	err := s.kv.Update(func(txn *keyValStore.Txn) error {
		rawID, exists, err := txn.Get(nameKey(doc.Kind, doc.Name))
		if err != nil {
			return err
		}

		if exists {
			id, err = decodeID(rawID)
			if err != nil {
				return err
			}
		} else {
			seq, _, err := txn.Get(sequenceKey)
			if err != nil {
				return err
			}
			var last types.RecordID
			if seq != nil {
				last, err = decodeID(seq)
				if err != nil {
					return err
				}
			}
			id = last + 1
			if err := txn.Set(sequenceKey, encodeID(id)); err != nil {
				return err
			}
			if err := txn.Set(nameKey(doc.Kind, doc.Name), encodeID(id)); err != nil {
				return err
			}
		}

		return txn.Set(docKey(id), doc.Content)
	})
	if err != nil {
		return 0, fmt.Errorf("upsert %s/%s: %w", doc.Kind, doc.Name, err)
	}

	return id, nil
}

// ListByKind walks the name index of kind.
func (s *BadgerStore) ListByKind(ctx context.Context, kind string) ([]interfaces.Document, error) {
	if err := s.schemas.check(kind); err != nil {
		return nil, err
	}

	prefix := nameKey(kind, "")
	entries, err := s.kv.GetItemsWithPrefix(prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", kind, err)
	}

	docs := make([]interfaces.Document, 0, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id, err := decodeID(entry[1])
		if err != nil {
			return nil, err
		}
		content, err := s.kv.Read(docKey(id))
		if errors.Is(err, keyValStore.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read document %d: %w", id, err)
		}
		docs = append(docs, interfaces.Document{
			ID:      id,
			Kind:    kind,
			Name:    string(entry[0][len(prefix):]),
			Content: content,
		})
	}

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return docs, nil
}

// Close closes the underlying KeyValStore.
func (s *BadgerStore) Close() error {
	return s.kv.Close()
}

package recordStore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/i5heu/ouroboros-sprite/pkg/interfaces"
	"github.com/i5heu/ouroboros-sprite/pkg/types"
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

const schemaRecords = `
CREATE TABLE IF NOT EXISTS records (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    kind TEXT NOT NULL,
    name TEXT NOT NULL,
    content TEXT NOT NULL,
    created_at DATETIME NOT NULL,
    modified_at DATETIME NOT NULL,
    UNIQUE(kind, name)
)`

const upsertRecord = `
INSERT INTO records (kind, name, content, created_at, modified_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(kind, name) DO UPDATE SET
    content = excluded.content,
    modified_at = excluded.modified_at
RETURNING id`

const findRecordByName = `
SELECT id, content FROM records
WHERE kind = ? AND name = ?
ORDER BY id
LIMIT 1`

const listRecordsByKind = `
SELECT id, name, content FROM records
WHERE kind = ?
ORDER BY id`

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
}

// SQLiteStore keeps documents in a single SQLite table.
type SQLiteStore struct {
	db      *sql.DB
	log     *logrus.Logger
	schemas *schemaRegistry
}

func NewSQLiteStore(ctx context.Context, dbPath string, log *logrus.Logger) (*SQLiteStore, error) {
	if log == nil {
		log = logrus.New()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	// one writer at a time keeps busy errors out of concurrent upserts
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connecting to sqlite: %w", err)
	}

	for _, pragma := range sqlitePragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("setting pragma: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, schemaRecords); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	log.WithFields(logrus.Fields{"path": dbPath}).Debug("sqlite record store opened")

	return &SQLiteStore{
		db:      db,
		log:     log,
		schemas: newSchemaRegistry(),
	}, nil
}

func (s *SQLiteStore) RegisterSchema(schema interfaces.Schema) error {
	return s.schemas.register(schema)
}

func (s *SQLiteStore) FindByName(ctx context.Context, kind, name string) (interfaces.Document, bool, error) {
	if err := s.schemas.check(kind); err != nil {
		return interfaces.Document{}, false, err
	}

	var (
		id      int64
		content string
	)
	err := s.db.QueryRowContext(ctx, findRecordByName, kind, name).Scan(&id, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return interfaces.Document{}, false, nil
	}
	if err != nil {
		return interfaces.Document{}, false, fmt.Errorf("querying record %s/%s: %w", kind, name, err)
	}

	return interfaces.Document{
		ID:      types.RecordID(id),
		Kind:    kind,
		Name:    name,
		Content: []byte(content),
	}, true, nil
}

func (s *SQLiteStore) UpsertByName(ctx context.Context, doc interfaces.Document) (types.RecordID, error) {
	if err := s.schemas.check(doc.Kind); err != nil {
		return 0, err
	}
	if doc.Name == "" {
		return 0, fmt.Errorf("record store: document name is empty")
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var id int64
	err := s.db.QueryRowContext(ctx, upsertRecord,
		doc.Kind,
		doc.Name,
		string(doc.Content),
		now,
		now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upserting record %s/%s: %w", doc.Kind, doc.Name, err)
	}

	return types.RecordID(id), nil
}

func (s *SQLiteStore) ListByKind(ctx context.Context, kind string) ([]interfaces.Document, error) {
	if err := s.schemas.check(kind); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, listRecordsByKind, kind)
	if err != nil {
		return nil, fmt.Errorf("listing records %s: %w", kind, err)
	}
	defer rows.Close()

	var docs []interfaces.Document
	for rows.Next() {
		var (
			id      int64
			name    string
			content string
		)
		if err := rows.Scan(&id, &name, &content); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		docs = append(docs, interfaces.Document{
			ID:      types.RecordID(id),
			Kind:    kind,
			Name:    name,
			Content: []byte(content),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing records %s: %w", kind, err)
	}
	return docs, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

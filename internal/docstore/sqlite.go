package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    seq INTEGER PRIMARY KEY AUTOINCREMENT,
    collection TEXT NOT NULL,
    id TEXT NOT NULL,
    data TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE (collection, id)
);

CREATE INDEX IF NOT EXISTS documents_collection ON documents(collection);`

// SQLite stores documents as JSON rows in a single table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at dbPath. ":memory:" gives a
// private in-process database.
func OpenSQLite(dbPath string) (*SQLite, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite: empty database path")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "sqlite: open")
	}
	if dbPath == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "sqlite: create schema")
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) CreateDocument(ctx context.Context, collection, id string, data map[string]any) (Document, error) {
	if id == "" {
		id = uuid.NewString()
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return Document{}, errors.Wrap(err, "sqlite: encode document")
	}

	query := `
        INSERT INTO documents (collection, id, data, created_at, updated_at)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`
	if _, err := s.db.ExecContext(ctx, query, collection, id, string(payload)); err != nil {
		return Document{}, errors.Wrapf(err, "sqlite: insert %s/%s", collection, id)
	}
	return s.GetDocument(ctx, collection, id)
}

func (s *SQLite) GetDocument(ctx context.Context, collection, id string) (Document, error) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "sqlite: get %s/%s", collection, id)
	}
	return decodeDocument(id, payload)
}

func (s *SQLite) UpdateDocument(ctx context.Context, collection, id string, data map[string]any) (Document, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Document{}, err
	}
	defer tx.Rollback()

	var payload string
	err = tx.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = ? AND id = ?",
		collection, id,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrDocumentNotFound
	}
	if err != nil {
		return Document{}, errors.Wrapf(err, "sqlite: get %s/%s", collection, id)
	}

	doc, err := decodeDocument(id, payload)
	if err != nil {
		return Document{}, err
	}
	for k, v := range data {
		doc.Data[k] = v
	}

	merged, err := json.Marshal(doc.Data)
	if err != nil {
		return Document{}, errors.Wrap(err, "sqlite: encode document")
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE documents SET data = ?, updated_at = CURRENT_TIMESTAMP WHERE collection = ? AND id = ?",
		string(merged), collection, id,
	); err != nil {
		return Document{}, errors.Wrapf(err, "sqlite: update %s/%s", collection, id)
	}

	if err := tx.Commit(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *SQLite) DeleteDocument(ctx context.Context, collection, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM documents WHERE collection = ? AND id = ?", collection, id)
	if err != nil {
		return errors.Wrapf(err, "sqlite: delete %s/%s", collection, id)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrDocumentNotFound
	}
	return nil
}

func (s *SQLite) ListDocuments(ctx context.Context, collection string, opts ListOptions) ([]Document, error) {
	var query strings.Builder
	args := []any{collection}

	query.WriteString("SELECT id, data FROM documents WHERE collection = ?")
	for _, f := range opts.Filters {
		query.WriteString(" AND json_extract(data, ?) = ?")
		args = append(args, jsonPath(f.Field), f.Value)
	}

	direction := "ASC"
	if opts.Descending {
		direction = "DESC"
	}
	if opts.OrderBy != "" {
		query.WriteString(" ORDER BY json_extract(data, ?) " + direction + ", seq " + direction)
		args = append(args, jsonPath(opts.OrderBy))
	} else {
		query.WriteString(" ORDER BY seq " + direction)
	}

	if opts.Limit > 0 {
		query.WriteString(" LIMIT ?")
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, errors.Wrapf(err, "sqlite: list %s", collection)
	}
	defer rows.Close()

	docs := make([]Document, 0)
	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, errors.Wrap(err, "sqlite: scan document")
		}
		doc, err := decodeDocument(id, payload)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func decodeDocument(id, payload string) (Document, error) {
	data := make(map[string]any)
	if err := json.Unmarshal([]byte(payload), &data); err != nil {
		return Document{}, errors.Wrapf(err, "sqlite: decode document %s", id)
	}
	return Document{ID: id, Data: data}, nil
}

func jsonPath(field string) string {
	return `$."` + strings.ReplaceAll(field, `"`, "") + `"`
}

var _ Client = (*SQLite)(nil)

// Package sqlite provides a SQLite-backed implementation of the document
// store. Documents are stored as JSON in a single table and queried with the
// JSON1 functions, which keeps the collaborator's collection/document
// semantics while using an embeddable database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver

	"github.com/layerhub-dev/layerhub/internal/docstore"
)

// store wraps the SQLite handle.
type store struct {
	db *sql.DB
}

var _ docstore.Store = (*store)(nil)

// Open opens (or creates) the database at path and applies pending schema
// migrations.
func Open(path string) (docstore.Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent request handlers.
	db.SetMaxOpenConns(1)

	if err := migrateUp(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &store{db: db}, nil
}

// Collection implements docstore.Store.
func (s *store) Collection(name string) docstore.Collection {
	return &collection{db: s.db, name: name}
}

// RunBatch implements docstore.Store.
func (s *store) RunBatch(ctx context.Context, writes []docstore.Write) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, w := range writes {
		if w.Fields == nil {
			raw, err := json.Marshal(w.Doc)
			if err != nil {
				return fmt.Errorf("failed to encode document %s/%s: %w", w.Collection, w.ID, err)
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT OR REPLACE INTO documents (collection, id, data) VALUES (?, ?, ?)`,
				w.Collection, w.ID, string(raw),
			); err != nil {
				return fmt.Errorf("failed to write document %s/%s: %w", w.Collection, w.ID, err)
			}
			continue
		}

		if err := updateIn(ctx, tx, w.Collection, w.ID, w.Fields); err != nil {
			return fmt.Errorf("update %s/%s: %w", w.Collection, w.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// Close implements docstore.Store.
func (s *store) Close() error {
	return s.db.Close()
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// updateIn merges fields into a stored document inside the given handle.
func updateIn(ctx context.Context, h execer, coll, id string, fields map[string]any) error {
	var data string
	err := h.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, coll, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(data), &doc); err != nil {
		return fmt.Errorf("corrupt document: %w", err)
	}
	for k, v := range fields {
		doc[k] = v
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	if _, err := h.ExecContext(ctx,
		`UPDATE documents SET data = ? WHERE collection = ? AND id = ?`,
		string(raw), coll, id,
	); err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

type collection struct {
	db   *sql.DB
	name string
}

var _ docstore.Collection = (*collection)(nil)

func (c *collection) Get(ctx context.Context, id string, out any) error {
	var data string
	err := c.db.QueryRowContext(ctx,
		`SELECT data FROM documents WHERE collection = ? AND id = ?`, c.name, id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return docstore.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to read document: %w", err)
	}
	return json.Unmarshal([]byte(data), out)
}

func (c *collection) Set(ctx context.Context, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO documents (collection, id, data) VALUES (?, ?, ?)`,
		c.name, id, string(raw),
	)
	if err != nil {
		return fmt.Errorf("failed to write document: %w", err)
	}
	return nil
}

func (c *collection) Update(ctx context.Context, id string, fields map[string]any) error {
	return updateIn(ctx, c.db, c.name, id, fields)
}

func (c *collection) Insert(ctx context.Context, doc any) (string, error) {
	id := uuid.NewString()
	if err := c.Set(ctx, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (c *collection) Delete(ctx context.Context, id string) error {
	_, err := c.db.ExecContext(ctx,
		`DELETE FROM documents WHERE collection = ? AND id = ?`, c.name, id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	return nil
}

func (c *collection) Find(ctx context.Context, q docstore.Query) ([]docstore.Document, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT id, data FROM documents WHERE collection = ?`)
	args = append(args, c.name)

	for _, f := range q.Filters {
		if !docstore.ValidField(f.Field) {
			return nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
		if f.AnyOf != nil {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.AnyOf)), ",")
			fmt.Fprintf(&sb,
				` AND EXISTS (SELECT 1 FROM json_each(data, '$.%s') WHERE json_each.value IN (%s))`,
				f.Field, placeholders,
			)
			args = append(args, f.AnyOf...)
			continue
		}
		fmt.Fprintf(&sb, ` AND json_extract(data, '$.%s') = ?`, f.Field)
		args = append(args, sqlValue(f.Value))
	}

	if q.OrderBy != "" {
		if !docstore.ValidField(q.OrderBy) {
			return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
		}
		direction := "ASC"
		if q.Descending {
			direction = "DESC"
		}
		// Timestamp strings are renormalized to a fixed-width form before
		// comparison: RFC3339 with trimmed fraction zeros does not sort
		// chronologically as raw text ("...00.5Z" > "...00.55Z").
		fmt.Fprintf(&sb,
			` ORDER BY CASE`+
				` WHEN json_type(data, '$.%[1]s') = 'text'`+
				` AND json_extract(data, '$.%[1]s') GLOB '[0-9][0-9][0-9][0-9]-[0-9][0-9]-[0-9][0-9]T*'`+
				` THEN strftime('%%Y-%%m-%%dT%%H:%%M:%%f', json_extract(data, '$.%[1]s'))`+
				` ELSE json_extract(data, '$.%[1]s') END %[2]s`,
			q.OrderBy, direction)
	} else {
		sb.WriteString(` ORDER BY id ASC`)
	}

	limit := q.Limit
	if limit <= 0 {
		limit = -1 // SQLite: no limit, required when OFFSET is present
	}
	sb.WriteString(` LIMIT ? OFFSET ?`)
	args = append(args, limit, q.Offset)

	rows, err := c.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var docs []docstore.Document
	for rows.Next() {
		var (
			id   string
			data string
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		docs = append(docs, docstore.Document{ID: id, Data: json.RawMessage(data)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	return docs, nil
}

func (c *collection) Count(ctx context.Context) (int64, error) {
	var count int64
	err := c.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE collection = ?`, c.name,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return count, nil
}

func (c *collection) Increment(ctx context.Context, id string, field string, delta int64) error {
	if !docstore.ValidField(field) {
		return fmt.Errorf("invalid field %q", field)
	}

	query := fmt.Sprintf(
		`UPDATE documents
		 SET data = json_set(data, '$.%[1]s', COALESCE(json_extract(data, '$.%[1]s'), 0) + ?)
		 WHERE collection = ? AND id = ?`, field)

	res, err := c.db.ExecContext(ctx, query, delta, c.name, id)
	if err != nil {
		return fmt.Errorf("increment failed: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("increment failed: %w", err)
	}
	if affected == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

// sqlValue converts a filter value into the representation json_extract
// yields: JSON booleans come back as 0/1 integers.
func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return 1
		}
		return 0
	}
	return v
}

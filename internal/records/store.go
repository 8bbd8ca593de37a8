// Package records persists fetched records locally and answers the queries the CLI makes
// against them.
package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dictsync/internal/apperr"
)

// Store is a snapshot of a record collection, Save replaces whatever was stored before.
type Store[T any] interface {
	Load(ctx context.Context) ([]T, error)
	Save(ctx context.Context, records []T) error
	Close() error
}

// Open picks the backend by extension, ".db" and ".sqlite" are sqlite databases and anything
// else is a JSON file. kind separates collections sharing one database.
func Open[T any](path, kind string) (Store[T], error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		err := os.MkdirAll(filepath.Dir(path), 0700)
		if err != nil {
			return nil, err
		}
		db, err := sql.Open("sqlite", path)
		if err != nil {
			return nil, err
		}
		store, err := NewSQLite[T](db, kind)
		if err != nil {
			db.Close()
			return nil, err
		}
		return store, nil
	}
	return JSONFile[T]{Path: path}, nil
}

// JSONFile stores records as one flat JSON array.
type JSONFile[T any] struct {
	Path string
}

func (f JSONFile[T]) Load(ctx context.Context) ([]T, error) {
	contents, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, apperr.Newf(apperr.KindNotFound, "load records", "%w: %s", apperr.ErrSnapshotNotFound, f.Path)
	}
	if err != nil {
		return nil, err
	}
	var out []T
	err = json.Unmarshal(contents, &out)
	if err != nil {
		return nil, apperr.Newf(apperr.KindEncoding, "load records", "parse %s: %w", f.Path, err)
	}
	return out, nil
}

func (f JSONFile[T]) Save(ctx context.Context, records []T) error {
	if records == nil {
		records = []T{}
	}
	contents, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return apperr.Newf(apperr.KindEncoding, "save records", "%w", err)
	}
	err = os.MkdirAll(filepath.Dir(f.Path), 0700)
	if err != nil {
		return err
	}
	return os.WriteFile(f.Path, contents, 0600)
}

func (JSONFile[T]) Close() error {
	return nil
}

// SQLite stores every record as a JSON row, rows keep the order they were saved in.
type SQLite[T any] struct {
	db   *sql.DB
	kind string
}

// NewSQLite applies the schema to db and returns a store for the collection kind, the store
// owns db afterwards.
func NewSQLite[T any](db *sql.DB, kind string) (SQLite[T], error) {
	_, err := db.Exec(Schema)
	if err != nil {
		return SQLite[T]{}, fmt.Errorf("apply schema: %w", err)
	}
	return SQLite[T]{db: db, kind: kind}, nil
}

func (s SQLite[T]) Load(ctx context.Context) ([]T, error) {
	var savedAt int64
	err := s.db.QueryRowContext(ctx, "select saved_at from snapshot where kind = ?", s.kind).Scan(&savedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.KindNotFound, "load records", "%w: %s", apperr.ErrSnapshotNotFound, s.kind)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, "select body from record where kind = ? order by position", s.kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var body string
		err = rows.Scan(&body)
		if err != nil {
			return nil, err
		}
		var record T
		err = json.Unmarshal([]byte(body), &record)
		if err != nil {
			return nil, apperr.Newf(apperr.KindEncoding, "load records", "row %d: %w", len(out), err)
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

func (s SQLite[T]) Save(ctx context.Context, records []T) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, "delete from record where kind = ?", s.kind)
	if err != nil {
		return err
	}
	for i, record := range records {
		body, err := json.Marshal(record)
		if err != nil {
			return apperr.Newf(apperr.KindEncoding, "save records", "record %d: %w", i, err)
		}
		_, err = tx.ExecContext(
			ctx,
			"insert into record (kind, position, body) values (?, ?, ?)",
			s.kind, i, string(body),
		)
		if err != nil {
			return err
		}
	}
	_, err = tx.ExecContext(
		ctx,
		"insert into snapshot (kind, saved_at) values (?, ?) on conflict (kind) do update set saved_at = excluded.saved_at",
		s.kind, time.Now().Unix(),
	)
	if err != nil {
		return err
	}
	return tx.Commit()
}

func (s SQLite[T]) Close() error {
	return s.db.Close()
}

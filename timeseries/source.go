// Package timeseries reads append-only records out of on-disk sqlite
// tables. It is a read-only collaborator of the beacon HTTP edge: each
// configured path becomes one named Source, queried for a half-open
// window of rows and for its properties document.
package timeseries

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Row is one record out of a source's resources table, for ts in the
// half-open window (t0, t1].
type Row struct {
	TS       float64
	Modified float64
	Path     string
	Type     string
	Content  json.RawMessage
}

// Source is a single sqlite-backed timeseries table, opened read-only.
//
// The original opens one sqlite handle per worker thread on first use
// (threading.local()); spec.md §9 asks a re-implementation to use a
// connection pool instead. database/sql already pools and
// serializes access to *sql.DB across goroutines, so a single shared
// handle per Source satisfies that directly — no per-goroutine handle
// management is needed.
type Source struct {
	name string
	db   *sql.DB
}

// Open opens the sqlite file at path read-only and wraps it as a Source
// named after the file's basename.
func Open(path string) (*Source, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("open timeseries source %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open timeseries source %q: %w", path, err)
	}
	return &Source{name: filepath.Base(path), db: db}, nil
}

// Close releases the underlying sqlite handle.
func (s *Source) Close() error { return s.db.Close() }

// Name is the source's tag in /info and /ts responses: the basename of
// the path it was opened from.
func (s *Source) Name() string { return s.name }

// Properties returns the most recently inserted properties document from
// the source's meta table, or null if none has ever been written.
func (s *Source) Properties(ctx context.Context) (json.RawMessage, error) {
	var properties string
	err := s.db.QueryRowContext(ctx,
		`SELECT properties FROM meta ORDER BY version DESC LIMIT 1`,
	).Scan(&properties)
	if err == sql.ErrNoRows {
		return json.RawMessage("null"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read properties from %q: %w", s.name, err)
	}
	return json.RawMessage(properties), nil
}

// Range returns every row with ts in the half-open window (t0, t1],
// ascending by ts. A null path in the underlying row defaults to
// "<name>/<ts>" per spec.md §4.5.
func (s *Source) Range(ctx context.Context, t0, t1 float64) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT ts, modified, path, type, content FROM resources WHERE ts > ? AND ts <= ? ORDER BY ts ASC`,
		t0, t1,
	)
	if err != nil {
		return nil, fmt.Errorf("range query on %q: %w", s.name, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			r       Row
			path    sql.NullString
			content sql.NullString
		)
		if err := rows.Scan(&r.TS, &r.Modified, &path, &r.Type, &content); err != nil {
			return nil, fmt.Errorf("scan row from %q: %w", s.name, err)
		}
		if path.Valid {
			r.Path = path.String
		} else {
			r.Path = fmt.Sprintf("%s/%v", s.name, r.TS)
		}
		if content.Valid {
			r.Content = json.RawMessage(content.String)
		} else {
			r.Content = json.RawMessage("null")
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows from %q: %w", s.name, err)
	}
	return out, nil
}

package timeseries

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

func seedDB(t *testing.T, path string) {
	t.Helper()
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open seed db: %v", err)
	}
	defer db.Close()

	schema := []string{
		`CREATE TABLE resources(ts real primary key, modified real, path text, type text, content text)`,
		`CREATE TABLE meta(id integer primary key, version integer, properties text)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("create schema: %v", err)
		}
	}

	rows := []struct {
		ts, modified float64
		path, typ    string
		content      string
	}{
		{1.0, 1.0, "a.geojson", "geojson", `{"n":1}`},
		{2.0, 2.0, "", "geojson", `{"n":2}`},
		{3.0, 3.0, "c.geojson", "geojson", `{"n":3}`},
	}
	for _, r := range rows {
		var path any = r.path
		if r.path == "" {
			path = nil
		}
		if _, err := db.Exec(
			`INSERT INTO resources(ts, modified, path, type, content) VALUES (?, ?, ?, ?, ?)`,
			r.ts, r.modified, path, r.typ, r.content,
		); err != nil {
			t.Fatalf("insert row: %v", err)
		}
	}
	if _, err := db.Exec(
		`INSERT INTO meta(version, properties) VALUES (1, ?), (2, ?)`,
		`{"version":1}`, `{"version":2}`,
	); err != nil {
		t.Fatalf("insert meta: %v", err)
	}
}

func TestSource_RangeIsHalfOpenAscending(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite")
	seedDB(t, path)

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	rows, err := src.Range(context.Background(), 1.0, 3.0)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows for (1, 3], got %d", len(rows))
	}
	if rows[0].TS != 2.0 || rows[1].TS != 3.0 {
		t.Errorf("expected rows in ascending ts order, got %v, %v", rows[0].TS, rows[1].TS)
	}
}

func TestSource_RangeDefaultsNullPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite")
	seedDB(t, path)

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	rows, err := src.Range(context.Background(), 0, 10)
	if err != nil {
		t.Fatalf("Range: %v", err)
	}
	for _, r := range rows {
		if r.TS == 2.0 && r.Path != "test.sqlite/2" {
			t.Errorf("expected default path for null-path row, got %q", r.Path)
		}
	}
}

func TestSource_PropertiesReturnsMostRecentVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.sqlite")
	seedDB(t, path)

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	props, err := src.Properties(context.Background())
	if err != nil {
		t.Fatalf("Properties: %v", err)
	}
	if string(props) != `{"version":2}` {
		t.Errorf("expected most recent properties, got %s", props)
	}
}

func TestSource_Name(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weather.sqlite")
	seedDB(t, path)

	src, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer src.Close()

	if src.Name() != "weather.sqlite" {
		t.Errorf("expected name %q, got %q", "weather.sqlite", src.Name())
	}
}

package timeseries

import (
	"context"
	"encoding/json"
	"fmt"
)

// Entry is one row of a /ts response, tagged with the name of the source
// it came from, per spec.md §4.5.
type Entry struct {
	TS      float64         `json:"ts"`
	DB      string          `json:"db"`
	Path    string          `json:"path"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content"`
}

// Manager holds every configured timeseries Source, in configuration
// order, and fans read requests out across all of them.
type Manager struct {
	sources []*Source
}

// NewManager opens one Source per path. On the first failure it closes
// whatever was already opened and returns the error — a misconfigured
// timeseries source should fail startup rather than silently serve a
// partial set.
func NewManager(paths []string) (*Manager, error) {
	m := &Manager{}
	for _, path := range paths {
		src, err := Open(path)
		if err != nil {
			m.Close()
			return nil, err
		}
		m.sources = append(m.sources, src)
	}
	return m, nil
}

// Close closes every open source.
func (m *Manager) Close() error {
	var firstErr error
	for _, src := range m.sources {
		if err := src.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Range queries every source for the window (t0, t1] and returns the
// combined rows, each tagged with its source's name.
func (m *Manager) Range(ctx context.Context, t0, t1 float64) ([]Entry, error) {
	entries := make([]Entry, 0)
	for _, src := range m.sources {
		rows, err := src.Range(ctx, t0, t1)
		if err != nil {
			return nil, fmt.Errorf("timeseries source %q: %w", src.Name(), err)
		}
		for _, r := range rows {
			entries = append(entries, Entry{
				TS:      r.TS,
				DB:      src.Name(),
				Path:    r.Path,
				Type:    r.Type,
				Content: r.Content,
			})
		}
	}
	return entries, nil
}

// Info returns every source's properties document, each tagged with a
// "db" field naming its source, for GET /info. Matches the original's
// handle_info_query: a list, not a map, with "db" merged into each entry.
func (m *Manager) Info(ctx context.Context) ([]map[string]any, error) {
	info := make([]map[string]any, 0, len(m.sources))
	for _, src := range m.sources {
		raw, err := src.Properties(ctx)
		if err != nil {
			return nil, fmt.Errorf("timeseries source %q: %w", src.Name(), err)
		}
		var props map[string]any
		if err := json.Unmarshal(raw, &props); err != nil {
			return nil, fmt.Errorf("timeseries source %q: %w", src.Name(), err)
		}
		if props == nil {
			props = make(map[string]any)
		}
		props["db"] = src.Name()
		info = append(info, props)
	}
	return info, nil
}

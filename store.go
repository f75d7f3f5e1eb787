package beacon

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
)

// Store is the in-memory object table keyed by the producer-chosen key. It
// also owns the monotonic id counter.
//
// The mutable map (Store.objects) is touched only by the Coordinator
// goroutine. HTTP read handlers never see that map: every mutation
// publishes an immutable snapshot through snap, a lock-free
// atomic.Pointer, so concurrent reads are memory-safe without taking a
// lock on the hot read path. An Object reached through a published
// snapshot is never mutated again in place — updates always build a fresh
// *Object and publish a new snapshot — so a reader's pointer is safe to
// hold onto even if the coordinator immediately applies another update.
//
// This is the Go-idiomatic replacement for the original Python
// implementation's unsynchronized dict reads: the CPython GIL makes those
// merely stale, never memory-unsafe, but a plain Go map would crash the
// process under concurrent read/write. spec.md §4.5's "readers may observe
// a partial update" tolerance is preserved — a snapshot can lag the
// coordinator by one operation — while staying race-free.
type Store struct {
	objects      map[string]*Object
	nextObjectID int64
	snap         atomic.Pointer[map[string]*Object]

	persistDir string // empty when running in transient mode
	logger     *slog.Logger
}

// NewStore creates an empty, transient Store. Call EnablePersistence to
// turn on and populate persistence.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		objects:      make(map[string]*Object),
		nextObjectID: 1,
		logger:       logger,
	}
	s.publish()
	return s
}

// EnablePersistence creates dir (if needed) and loads any objects already
// there. On failure to create the directory, persistence is left disabled
// and the store stays transient — callers should log and continue, the
// way the original reverts to "objects will be lost on exit" instead of
// refusing to start.
func (s *Store) EnablePersistence(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	s.persistDir = dir
	s.load()
	s.publish()
	return nil
}

// PersistDir reports the configured persistence directory, or "" when the
// store is transient.
func (s *Store) PersistDir() string { return s.persistDir }

// load scans the persistence directory for <id>.meta / <id>.data pairs and
// populates the in-memory table. Files that don't parse, or whose metadata
// fails to decode, are logged and skipped: one bad file must not prevent
// the rest from loading.
func (s *Store) load() {
	entries, err := os.ReadDir(s.persistDir)
	if err != nil {
		s.logger.Error("failed to list persistence directory", slog.String("dir", s.persistDir), slog.Any("error", err))
		return
	}

	loaded := make(map[int64]bool)
	var maxID int64
	for _, ent := range entries {
		name := ent.Name()
		if !strings.HasSuffix(name, ".meta") {
			continue
		}
		idStr := strings.TrimSuffix(name, ".meta")
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			s.logger.Warn("skipping unparseable object file", slog.String("file", name))
			continue
		}
		if loaded[id] {
			continue
		}

		buf, err := os.ReadFile(filepath.Join(s.persistDir, name))
		if err != nil {
			s.logger.Warn("failed to read object metadata", slog.String("file", name), slog.Any("error", err))
			continue
		}
		var rec persistRecord
		if err := json.Unmarshal(buf, &rec); err != nil {
			s.logger.Warn("failed to decode object metadata", slog.String("file", name), slog.Any("error", err))
			continue
		}

		obj := newObject(rec.Key, id)
		obj.Metadata = rec.Metadata
		obj.LastData = rec.LastData
		if data, err := os.ReadFile(dataPath(s.persistDir, id)); err == nil {
			obj.Data = data
		}

		s.objects[rec.Key] = obj
		loaded[id] = true
		if id > maxID {
			maxID = id
		}
	}
	s.nextObjectID = maxID + 1
	s.logger.Info("loaded persisted objects", slog.Int("count", len(loaded)))
}

// publish snapshots the current table for lock-free reads. Must be called
// by the Coordinator after every mutation.
func (s *Store) publish() {
	snapshot := make(map[string]*Object, len(s.objects))
	for k, v := range s.objects {
		snapshot[k] = v
	}
	s.snap.Store(&snapshot)
}

// get returns the coordinator's live object for key, or nil if unknown.
// Coordinator-goroutine-only: never call from a read handler.
func (s *Store) get(key string) *Object {
	return s.objects[key]
}

// nextID returns a fresh object id and advances the counter.
func (s *Store) nextID() int64 {
	id := s.nextObjectID
	s.nextObjectID++
	return id
}

// set installs obj as the current value for key. Coordinator-goroutine-only.
func (s *Store) set(key string, obj *Object) {
	s.objects[key] = obj
}

// delete removes key from the table, returning the removed object (or nil
// if the key was unknown). Coordinator-goroutine-only.
func (s *Store) delete(key string) *Object {
	obj, ok := s.objects[key]
	if !ok {
		return nil
	}
	delete(s.objects, key)
	return obj
}

// Get returns the published snapshot's value for key. Safe for concurrent
// use from any goroutine; may lag the coordinator by one operation.
func (s *Store) Get(key string) (*Object, bool) {
	objects := *s.snap.Load()
	obj, ok := objects[key]
	return obj, ok
}

// Keys returns every key whose metadata is non-null, matching GET /list's
// filter (spec.md §4.5). Safe for concurrent use.
func (s *Store) Keys() []string {
	objects := *s.snap.Load()
	keys := make([]string, 0, len(objects))
	for k, obj := range objects {
		if obj.Metadata != nil {
			keys = append(keys, k)
		}
	}
	return keys
}

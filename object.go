package beacon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Metadata is the arbitrary, producer-supplied structured document attached
// to an Object. Its content is never validated or interpreted beyond the
// few derived fields documented on Object.
type Metadata map[string]any

// Object is a server-side record identified by a user-chosen key. It is
// created lazily on the first update for a new key and destroyed by an
// update that supplies neither metadata nor data.
//
// An Object's id is assigned once, at creation, and never changes or gets
// reused, even across a delete-then-recreate of the same key (the
// recreated object gets a fresh id).
type Object struct {
	Key      string
	ID       int64
	Metadata Metadata
	Data     []byte
	LastData float64 // unix seconds, 0 if data was never assigned

	dirty bool // Data changed since the last persist
}

func newObject(key string, id int64) *Object {
	return &Object{Key: key, ID: id}
}

// cloneMetadata returns a shallow copy of m, or nil if m is nil.
//
// Every upsert builds a fresh *Object rather than mutating the one
// reachable from the last published Store snapshot, but a shallow struct
// copy still shares the underlying Metadata map by reference. Without
// this clone, touchMetadata would mutate a map a concurrent reader might
// still be holding through an older snapshot. Cloning before every
// mutation keeps each published snapshot's objects immutable for as long
// as they're reachable, which is what makes Store.Get lock-free.
func cloneMetadata(m Metadata) Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// touchMetadata recomputes the fields the coordinator derives on every
// mutation: updated, has_data, last_data, and the path default. It is a
// no-op when the object has no metadata yet.
func (o *Object) touchMetadata(now time.Time) {
	if o.Metadata == nil {
		return
	}
	if _, ok := o.Metadata["path"]; !ok {
		o.Metadata["path"] = ""
	}
	o.Metadata["updated"] = float64(now.UnixNano()) / 1e9
	o.Metadata["has_data"] = o.Data != nil
	o.Metadata["last_data"] = o.LastData
}

// persistRecord is the on-disk shape of <id>.meta.
type persistRecord struct {
	Metadata Metadata `json:"metadata"`
	LastData float64  `json:"last_data"`
	Key      string   `json:"key"`
	ID       int64    `json:"id"`
}

func metaPath(dir string, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.meta", id))
}

func dataPath(dir string, id int64) string {
	return filepath.Join(dir, fmt.Sprintf("%d.data", id))
}

// persist writes the object's metadata in full, and its data only if it is
// dirty, clearing the dirty flag on success. Mirrors the original's
// behavior of always rewriting .meta but only rewriting .data when it
// changed.
func (o *Object) persist(dir string) error {
	rec := persistRecord{Metadata: o.Metadata, LastData: o.LastData, Key: o.Key, ID: o.ID}
	buf, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal metadata for %q: %w", o.Key, err)
	}
	if err := os.WriteFile(metaPath(dir, o.ID), buf, 0o644); err != nil {
		return fmt.Errorf("write meta for %q: %w", o.Key, err)
	}
	if o.Data != nil && o.dirty {
		if err := os.WriteFile(dataPath(dir, o.ID), o.Data, 0o644); err != nil {
			return fmt.Errorf("write data for %q: %w", o.Key, err)
		}
		o.dirty = false
	}
	return nil
}

// purge removes both persisted files for the object. Failures are ignored,
// matching the original's best-effort delete.
func (o *Object) purge(dir string) {
	_ = os.Remove(metaPath(dir, o.ID))
	_ = os.Remove(dataPath(dir, o.ID))
}

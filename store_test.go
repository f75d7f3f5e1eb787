package beacon

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPersistenceRoundTripsAcrossRestart(t *testing.T) {
	dir := t.TempDir()

	store1 := NewStore(nil)
	if err := store1.EnablePersistence(dir); err != nil {
		t.Fatalf("EnablePersistence: %v", err)
	}
	coord1 := NewCoordinator(store1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go coord1.Run(ctx)

	if err := coord1.Publish(context.Background(), "bar", Metadata{"a": float64(1)}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := coord1.PublishData(context.Background(), "bar", []byte{0xDE, 0xAD, 0xBE, 0xEF}); err != nil {
		t.Fatalf("PublishData: %v", err)
	}
	original, ok := waitForObjectWithData(t, store1, "bar")
	if !ok {
		t.Fatal("object bar never acquired data")
	}
	cancel()

	store2 := NewStore(nil)
	if err := store2.EnablePersistence(dir); err != nil {
		t.Fatalf("EnablePersistence on restart: %v", err)
	}

	restored, ok := store2.Get("bar")
	if !ok {
		t.Fatal("expected bar to survive a restart")
	}
	if restored.ID != original.ID {
		t.Errorf("expected id %d, got %d", original.ID, restored.ID)
	}
	if restored.Key != "bar" {
		t.Errorf("expected key bar, got %q", restored.Key)
	}
	if restored.LastData != original.LastData {
		t.Errorf("expected last_data %v, got %v", original.LastData, restored.LastData)
	}
	if string(restored.Data) != string(original.Data) {
		t.Errorf("expected data %v, got %v", original.Data, restored.Data)
	}
	if restored.Metadata["a"].(float64) != 1 {
		t.Errorf("expected metadata a=1, got %v", restored.Metadata["a"])
	}
}

func TestDeletePurgesPersistedFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)
	if err := store.EnablePersistence(dir); err != nil {
		t.Fatalf("EnablePersistence: %v", err)
	}
	coord := NewCoordinator(store, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	if err := coord.Publish(context.Background(), "bar", Metadata{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	obj, ok := waitForObject(t, store, "bar")
	if !ok {
		t.Fatal("object never appeared")
	}
	id := obj.ID

	metaFile := metaPath(dir, id)
	if _, err := os.Stat(metaFile); err != nil {
		t.Fatalf("expected meta file to exist: %v", err)
	}

	if err := coord.Delete(context.Background(), "bar"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(metaFile); os.IsNotExist(err) {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected %s to be removed after delete", metaFile)
}

func TestLoadSkipsUnparseableFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "not-a-number.meta"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("writing garbage file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "2.meta"), []byte("not json"), 0o644); err != nil {
		t.Fatalf("writing bad json file: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "5.meta"), []byte(`{"metadata":{"a":1},"last_data":0,"key":"ok","id":5}`), 0o644); err != nil {
		t.Fatalf("writing good file: %v", err)
	}

	store := NewStore(nil)
	if err := store.EnablePersistence(dir); err != nil {
		t.Fatalf("EnablePersistence: %v", err)
	}

	if _, ok := store.Get("ok"); !ok {
		t.Error("expected the well-formed object to load")
	}
	if store.nextObjectID != 6 {
		t.Errorf("expected nextObjectID to advance past the highest loaded id, got %d", store.nextObjectID)
	}
}

func TestKeysFiltersObjectsWithoutMetadata(t *testing.T) {
	store, coord := startCoordinator(t)

	if err := coord.PublishData(context.Background(), "data-only", []byte{1}); err != nil {
		t.Fatalf("PublishData: %v", err)
	}
	if err := coord.Publish(context.Background(), "has-meta", Metadata{}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if _, ok := waitForObject(t, store, "has-meta"); !ok {
		t.Fatal("has-meta never appeared")
	}
	if _, ok := waitForObject(t, store, "data-only"); !ok {
		t.Fatal("data-only never appeared")
	}

	keys := store.Keys()
	if len(keys) != 1 || keys[0] != "has-meta" {
		t.Errorf("expected only [has-meta], got %v", keys)
	}
}

func waitForObjectWithData(t *testing.T, store *Store, key string) (*Object, bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if obj, ok := store.Get(key); ok && obj.Data != nil {
			return obj, true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil, false
}

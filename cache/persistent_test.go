package cache

import (
	"path/filepath"
	"testing"
)

func newTestMetadataStore(t *testing.T, compression bool) *MetadataStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "metadata.db")
	ms, err := NewMetadataStore(dbPath, compression)
	if err != nil {
		t.Fatalf("Failed to create metadata store: %v", err)
	}
	t.Cleanup(func() { ms.Close() })
	return ms
}

func TestMetadataStoreSetGet(t *testing.T) {
	for _, compression := range []bool{false, true} {
		name := "uncompressed"
		if compression {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			ms := newTestMetadataStore(t, compression)

			record := TrackRecord{
				Title:           "Hello",
				Artist:          "Adele",
				DurationSeconds: 295,
				CoverURL:        "https://i.ytimg.com/vi/abc/maxresdefault.jpg",
				ResolvedAt:      1700000000,
			}

			key := DeriveKey("hello adele")
			if err := ms.Set(key, record); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, ok := ms.Get(key)
			if !ok {
				t.Fatal("Expected record to be found")
			}
			if got != record {
				t.Errorf("Expected %+v, got %+v", record, got)
			}
		})
	}
}

func TestMetadataStoreMissingKey(t *testing.T) {
	ms := newTestMetadataStore(t, false)

	if _, ok := ms.Get("nonexistent"); ok {
		t.Error("Expected miss for unknown key")
	}
}

func TestMetadataStoreDelete(t *testing.T) {
	ms := newTestMetadataStore(t, false)

	key := DeriveKey("some song")
	if err := ms.Set(key, TrackRecord{Title: "Some Song"}); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := ms.Delete(key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := ms.Get(key); ok {
		t.Error("Expected record to be gone after delete")
	}
}

func TestMetadataStorePersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "metadata.db")

	ms, err := NewMetadataStore(dbPath, true)
	if err != nil {
		t.Fatalf("Failed to create metadata store: %v", err)
	}

	key := DeriveKey("persisted song")
	record := TrackRecord{Title: "Persisted Song", Artist: "Unknown", DurationSeconds: 180}
	if err := ms.Set(key, record); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := ms.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := NewMetadataStore(dbPath, true)
	if err != nil {
		t.Fatalf("Failed to reopen metadata store: %v", err)
	}
	defer reopened.Close()

	got, ok := reopened.Get(key)
	if !ok {
		t.Fatal("Expected record to survive reopen")
	}
	if got != record {
		t.Errorf("Expected %+v, got %+v", record, got)
	}
}

func TestMetadataStoreRangeAndStats(t *testing.T) {
	ms := newTestMetadataStore(t, false)

	keys := []string{DeriveKey("one"), DeriveKey("two"), DeriveKey("three")}
	for i, key := range keys {
		if err := ms.Set(key, TrackRecord{Title: key, DurationSeconds: i}); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	seen := map[string]bool{}
	ms.Range(func(key string, record TrackRecord) bool {
		seen[key] = true
		return true
	})
	if len(seen) != len(keys) {
		t.Errorf("Expected %d records in Range, got %d", len(keys), len(seen))
	}

	numKeys, _ := ms.Stats()
	if numKeys != len(keys) {
		t.Errorf("Expected %d keys in Stats, got %d", len(keys), numKeys)
	}
}

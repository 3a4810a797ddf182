package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T, maxSize int64) *Store {
	t.Helper()
	store, err := NewStore(t.TempDir(), maxSize, 0.8, 100)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	return store
}

func writeFileWithMtime(t *testing.T, path string, size int, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, make([]byte, size), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("Failed to set mtime on %s: %v", path, err)
	}
}

func TestHasAudioSizeThreshold(t *testing.T) {
	store := newTestStore(t, 1<<20)
	key := DeriveKey("test song artist")

	if store.HasAudio(key) {
		t.Error("Expected no audio before any write")
	}

	// A file at or below the threshold counts as a placeholder
	writeFileWithMtime(t, store.AudioPath(key), 100, time.Now())
	if store.HasAudio(key) {
		t.Error("Expected file at threshold size to not count as real audio")
	}

	writeFileWithMtime(t, store.AudioPath(key), 101, time.Now())
	if !store.HasAudio(key) {
		t.Error("Expected file above threshold to count as real audio")
	}
}

func TestWriteFileAtomic(t *testing.T) {
	store := newTestStore(t, 1<<20)
	path := store.LyricPath("somekey")

	if err := store.WriteFileAtomic(path, []byte("[00:00.00]line")); err != nil {
		t.Fatalf("WriteFileAtomic failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read back: %v", err)
	}
	if string(data) != "[00:00.00]line" {
		t.Errorf("Unexpected content: %q", data)
	}

	// The temp sibling must not survive a successful publish
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("Expected temp file to be gone after publish")
	}
}

func TestCleanupTemp(t *testing.T) {
	store := newTestStore(t, 1<<20)
	key := "abc123"

	for _, ext := range []string{".part", ".ytdl", ".webm", ".m4a", ".tmp"} {
		path := filepath.Join(store.Dir(), key+ext)
		writeFileWithMtime(t, path, 10, time.Now())
	}
	// The final artifact must survive cleanup
	writeFileWithMtime(t, store.AudioPath(key), 10, time.Now())

	store.CleanupTemp(key)

	for _, ext := range []string{".part", ".ytdl", ".webm", ".m4a", ".tmp"} {
		path := filepath.Join(store.Dir(), key+ext)
		if _, err := os.Stat(path); !os.IsNotExist(err) {
			t.Errorf("Expected %s to be removed", path)
		}
	}
	if _, err := os.Stat(store.AudioPath(key)); err != nil {
		t.Error("Expected final audio artifact to survive temp cleanup")
	}
}

func TestEnforceLimitEvictsOldestFirst(t *testing.T) {
	// Limit 1000 bytes, watermark 0.8 => evict down to 800.
	store := newTestStore(t, 1000)

	now := time.Now()
	writeFileWithMtime(t, filepath.Join(store.Dir(), "oldest.mp3"), 400, now.Add(-3*time.Hour))
	writeFileWithMtime(t, filepath.Join(store.Dir(), "middle.mp3"), 400, now.Add(-2*time.Hour))
	writeFileWithMtime(t, filepath.Join(store.Dir(), "newest.mp3"), 400, now.Add(-1*time.Hour))

	removed, freed := store.EnforceLimit()

	// 1200 total; removing the oldest brings it to 800 which meets the
	// watermark, so exactly one file goes.
	if removed != 1 {
		t.Errorf("Expected 1 file removed, got %d", removed)
	}
	if freed != 400 {
		t.Errorf("Expected 400 bytes freed, got %d", freed)
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "oldest.mp3")); !os.IsNotExist(err) {
		t.Error("Expected oldest file to be evicted")
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "middle.mp3")); err != nil {
		t.Error("Expected middle file to survive")
	}
	if _, err := os.Stat(filepath.Join(store.Dir(), "newest.mp3")); err != nil {
		t.Error("Expected newest file to survive")
	}
}

func TestEnforceLimitUnderLimitNoop(t *testing.T) {
	store := newTestStore(t, 1000)
	writeFileWithMtime(t, filepath.Join(store.Dir(), "a.mp3"), 500, time.Now())

	removed, freed := store.EnforceLimit()
	if removed != 0 || freed != 0 {
		t.Errorf("Expected noop under limit, got removed=%d freed=%d", removed, freed)
	}
}

func TestEnforceLimitEvictsEverythingIfNeeded(t *testing.T) {
	store := newTestStore(t, 100)

	now := time.Now()
	writeFileWithMtime(t, filepath.Join(store.Dir(), "a.mp3"), 400, now.Add(-2*time.Hour))
	writeFileWithMtime(t, filepath.Join(store.Dir(), "b.mp3"), 400, now.Add(-1*time.Hour))

	store.EnforceLimit()

	if got := store.TotalSize(); got > 80 {
		t.Errorf("Expected total size under watermark, got %d", got)
	}
}

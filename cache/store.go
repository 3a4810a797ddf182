package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	log "github.com/sirupsen/logrus"

	"music-api-go/logcolors"
)

// tempExtensions are the transient suffixes a fetch can leave behind.
// None of them may survive a completed or failed fetch.
var tempExtensions = []string{".part", ".ytdl", ".webm", ".m4a", ".tmp"}

// Store owns the on-disk cache directory. Every entry is a flat pair of
// files named by cache key: {key}.mp3 and {key}.lrc. All writers publish
// through a temp path plus os.Rename, so readers only ever observe complete
// files.
type Store struct {
	dir              string
	maxSizeBytes     int64
	evictWatermark   float64
	minRealSizeBytes int64
}

// NewStore creates the cache directory if needed and returns a Store.
func NewStore(dir string, maxSizeBytes int64, evictWatermark float64, minRealSizeBytes int64) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory %s: %v", dir, err)
	}
	if evictWatermark <= 0 || evictWatermark > 1 {
		evictWatermark = 0.8
	}
	log.Infof("%s Artifact store initialized at %s (limit: %d MB)", logcolors.LogCacheInit, dir, maxSizeBytes/1024/1024)
	return &Store{
		dir:              dir,
		maxSizeBytes:     maxSizeBytes,
		evictWatermark:   evictWatermark,
		minRealSizeBytes: minRealSizeBytes,
	}, nil
}

// Dir returns the cache directory path.
func (s *Store) Dir() string {
	return s.dir
}

// AudioPath returns the final audio artifact path for a key.
func (s *Store) AudioPath(key string) string {
	return filepath.Join(s.dir, key+".mp3")
}

// LyricPath returns the lyric artifact path for a key.
func (s *Store) LyricPath(key string) string {
	return filepath.Join(s.dir, key+".lrc")
}

// HasAudio reports whether a real (non-placeholder) audio artifact exists
// for the key. The size threshold distinguishes a finished download from a
// placeholder or truncated file.
func (s *Store) HasAudio(key string) bool {
	info, err := os.Stat(s.AudioPath(key))
	return err == nil && info.Size() > s.minRealSizeBytes
}

// HasLyrics reports whether a lyric artifact exists for the key.
func (s *Store) HasLyrics(key string) bool {
	_, err := os.Stat(s.LyricPath(key))
	return err == nil
}

// WriteFileAtomic writes data to path via a temporary sibling and a rename,
// so a concurrent reader never sees a partial file.
func (s *Store) WriteFileAtomic(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to publish %s: %v", path, err)
	}
	return nil
}

// CleanupTemp removes any transient files a fetch left behind for the key.
// Missing files are fine; other removal errors are logged and skipped.
func (s *Store) CleanupTemp(key string) {
	for _, ext := range tempExtensions {
		path := filepath.Join(s.dir, key+ext)
		if err := os.Remove(path); err == nil {
			log.Infof("%s Cleaned temp file: %s", logcolors.LogCache, path)
		} else if !os.IsNotExist(err) {
			log.Warnf("%s Failed to remove temp file %s: %v", logcolors.LogCache, path, err)
		}
	}
}

// cacheFile is one regular file in the store, used for eviction ordering.
type cacheFile struct {
	path  string
	size  int64
	mtime int64
}

// EnforceLimit keeps the total store size under the configured ceiling.
// When the total exceeds the limit, files are deleted in ascending
// last-modified order until the total drops to the watermark (or nothing is
// left). Least-recently-modified approximates least-recently-used: a
// re-fetched artifact has a fresh mtime, so hot entries go last. Deletion
// failures are tolerated; eviction is housekeeping, not correctness.
// Returns the number of files removed and bytes freed.
func (s *Store) EnforceLimit() (removed int, freed int64) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		log.Warnf("%s Failed to scan cache directory: %v", logcolors.LogEvict, err)
		return 0, 0
	}

	var files []cacheFile
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		total += info.Size()
		files = append(files, cacheFile{
			path:  filepath.Join(s.dir, entry.Name()),
			size:  info.Size(),
			mtime: info.ModTime().UnixNano(),
		})
	}

	if total <= s.maxSizeBytes {
		return 0, 0
	}

	sort.Slice(files, func(i, j int) bool { return files[i].mtime < files[j].mtime })

	target := int64(float64(s.maxSizeBytes) * s.evictWatermark)
	for _, f := range files {
		if total <= target {
			break
		}
		if err := os.Remove(f.path); err != nil {
			log.Warnf("%s Failed to delete %s: %v", logcolors.LogEvict, f.path, err)
			continue
		}
		total -= f.size
		freed += f.size
		removed++
		log.Infof("%s Deleted old cache file: %s (%d bytes)", logcolors.LogEvict, f.path, f.size)
	}

	return removed, freed
}

// TotalSize returns the current total size of all regular files in the
// store.
func (s *Store) TotalSize() int64 {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if info, err := entry.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

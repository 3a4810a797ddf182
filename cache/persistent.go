package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"

	"music-api-go/logcolors"
	"music-api-go/utils"
)

const bucketName = "metadata"

// TrackRecord is the resolved metadata persisted for a cache key. It is
// derived from the external source's fast info query and survives restarts,
// so a cache hit can report the real title and cover without re-querying.
type TrackRecord struct {
	Title           string `json:"title"`
	Artist          string `json:"artist"`
	DurationSeconds int    `json:"duration_seconds"`
	CoverURL        string `json:"cover_url"`
	ResolvedAt      int64  `json:"resolved_at"`
}

// MetadataStore wraps BoltDB with an in-memory mirror for fast access.
// Records are stored as (optionally gzip-compressed) JSON keyed by cache
// key.
type MetadataStore struct {
	db                 *bolt.DB
	memCache           sync.Map
	dbPath             string
	compressionEnabled bool
}

// NewMetadataStore opens (or creates) the metadata database.
func NewMetadataStore(dbPath string, compressionEnabled bool) (*MetadataStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create metadata directory: %v", err)
	}

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open metadata database: %v", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create metadata bucket: %v", err)
	}

	ms := &MetadataStore{
		db:                 db,
		dbPath:             dbPath,
		compressionEnabled: compressionEnabled,
	}

	if err := ms.loadToMemory(); err != nil {
		log.Warnf("%s Failed to preload metadata to memory: %v", logcolors.LogCache, err)
	}

	log.Infof("%s Metadata store initialized at %s (compression: %v)", logcolors.LogCacheInit, dbPath, compressionEnabled)
	return ms, nil
}

// loadToMemory mirrors all records from disk into the memory map.
func (ms *MetadataStore) loadToMemory() error {
	count := 0
	err := ms.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}

		return b.ForEach(func(k, v []byte) error {
			ms.memCache.Store(string(k), string(v))
			count++
			return nil
		})
	})

	if err != nil {
		return err
	}

	log.Infof("%s Loaded %d metadata records from disk", logcolors.LogCache, count)
	return nil
}

// decode unpacks a stored value into a TrackRecord, decompressing first
// when compression is enabled.
func (ms *MetadataStore) decode(raw string) (TrackRecord, error) {
	var record TrackRecord
	payload := raw
	if ms.compressionEnabled {
		decompressed, err := utils.DecompressString(raw)
		if err != nil {
			return record, fmt.Errorf("failed to decompress metadata: %v", err)
		}
		payload = decompressed
	}
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return record, fmt.Errorf("failed to unmarshal metadata: %v", err)
	}
	return record, nil
}

// Get retrieves the record for a cache key (memory first, then disk).
func (ms *MetadataStore) Get(key string) (TrackRecord, bool) {
	if raw, ok := ms.memCache.Load(key); ok {
		record, err := ms.decode(raw.(string))
		if err != nil {
			log.Errorf("%s Bad metadata record for key %s: %v", logcolors.LogCache, key, err)
			return TrackRecord{}, false
		}
		return record, true
	}

	var raw string
	err := ms.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		data := b.Get([]byte(key))
		if data == nil {
			return fmt.Errorf("key not found")
		}
		raw = string(data)
		ms.memCache.Store(key, raw)
		return nil
	})
	if err != nil {
		return TrackRecord{}, false
	}

	record, err := ms.decode(raw)
	if err != nil {
		log.Errorf("%s Bad metadata record for key %s: %v", logcolors.LogCache, key, err)
		return TrackRecord{}, false
	}
	return record, true
}

// Set stores the record for a cache key in both memory and disk.
func (ms *MetadataStore) Set(key string, record TrackRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %v", err)
	}

	value := string(data)
	if ms.compressionEnabled {
		value, err = utils.CompressString(value)
		if err != nil {
			return fmt.Errorf("failed to compress metadata: %v", err)
		}
	}

	ms.memCache.Store(key, value)

	return ms.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Put([]byte(key), []byte(value))
	})
}

// Delete removes a key from both memory and disk.
func (ms *MetadataStore) Delete(key string) error {
	ms.memCache.Delete(key)

	return ms.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket not found")
		}
		return b.Delete([]byte(key))
	})
}

// Range iterates over all records.
func (ms *MetadataStore) Range(fn func(key string, record TrackRecord) bool) {
	ms.memCache.Range(func(k, v interface{}) bool {
		record, err := ms.decode(v.(string))
		if err != nil {
			return true
		}
		return fn(k.(string), record)
	})
}

// Stats returns the number of records and their approximate stored size.
func (ms *MetadataStore) Stats() (numKeys int, sizeInKB int) {
	size := 0
	ms.memCache.Range(func(k, v interface{}) bool {
		numKeys++
		size += len(k.(string)) + len(v.(string))
		return true
	})
	sizeInKB = size / 1024
	return
}

// Close closes the database connection.
func (ms *MetadataStore) Close() error {
	if ms.db != nil {
		return ms.db.Close()
	}
	return nil
}

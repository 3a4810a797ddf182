package main

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"music-api-go/cache"
	"music-api-go/logcolors"
	"music-api-go/stats"
)

// streamPCM resolves a track request and returns a playable URL. On a
// cache miss the URL points at a freshly synthesized placeholder while
// the real download proceeds in the background.
func streamPCM(w http.ResponseWriter, r *http.Request) {
	song := firstQueryParam(r, "s", "song", "songName")
	artist := firstQueryParam(r, "a", "artist", "artistName")

	if strings.TrimSpace(song) == "" {
		Respond(w, r).Error(http.StatusBadRequest, ErrorResponse{Error: "Missing song param"})
		return
	}

	meta, err := trackResolver.Resolve(r.Context(), song, artist)
	if err != nil {
		log.Errorf("%s Resolve failed for %q: %v", logcolors.LogStream, song, err)
		Respond(w, r).Error(http.StatusInternalServerError, ErrorResponse{Error: "Failed to prepare track"})
		return
	}

	status := "MISS"
	if meta.FromCache {
		status = "HIT"
	}

	Respond(w, r).SetCacheStatus(status).JSON(StreamResponse{
		Success:   true,
		Artist:    meta.Artist,
		Title:     meta.Title,
		AudioURL:  "/music_cache/" + meta.Key + ".mp3",
		CoverURL:  meta.CoverURL,
		Duration:  meta.DurationSeconds,
		FromCache: meta.FromCache,
		LyricURL:  "/music_cache/" + meta.Key + ".lrc",
	})
}

// searchHandler runs a metadata-only lookup without touching the cache.
func searchHandler(w http.ResponseWriter, r *http.Request) {
	query := firstQueryParam(r, "q", "query", "s")
	if strings.TrimSpace(query) == "" {
		Respond(w, r).Error(http.StatusBadRequest, ErrorResponse{Error: "Query not provided"})
		return
	}

	meta, err := trackResolver.Search(r.Context(), query)
	if err != nil {
		log.Warnf("%s Search failed for %q: %v", logcolors.LogSearch, query, err)
		Respond(w, r).Error(http.StatusBadGateway, ErrorResponse{Error: "Search unavailable"})
		return
	}

	Respond(w, r).JSON(SearchResponse{
		Success:  true,
		Artist:   meta.Artist,
		Title:    meta.Title,
		CoverURL: meta.CoverURL,
		Duration: meta.DurationSeconds,
	})
}

func getHealthStatus(w http.ResponseWriter, r *http.Request) {
	s := stats.Get()
	Respond(w, r).JSON(map[string]interface{}{
		"status":         "ok",
		"uptime":         s.Uptime().String(),
		"cache_size_mb":  fmt.Sprintf("%.1f", float64(store.TotalSize())/1024/1024),
		"circuit_state":  breaker.State().String(),
		"total_requests": s.TotalRequests.Load(),
	})
}

func getStats(w http.ResponseWriter, r *http.Request) {
	snapshot := stats.Get().Snapshot()
	snapshot["cache_store"] = map[string]interface{}{
		"total_size_mb": float64(store.TotalSize()) / 1024 / 1024,
		"max_size_mb":   conf.Configuration.MaxCacheSizeMB,
	}
	Respond(w, r).JSON(snapshot)
}

func getCacheSummary(w http.ResponseWriter, r *http.Request) {
	numKeys, sizeKB := metaStore.Stats()

	audioFiles := 0
	metaStore.Range(func(key string, record cache.TrackRecord) bool {
		if store.HasAudio(key) {
			audioFiles++
		}
		return true
	})

	total := store.TotalSize()
	Respond(w, r).JSON(CacheSummaryResponse{
		AudioFiles:     audioFiles,
		TotalSizeMB:    float64(total) / 1024 / 1024,
		MaxSizeMB:      conf.Configuration.MaxCacheSizeMB,
		MetadataKeys:   numKeys,
		MetadataSizeKB: sizeKB,
		HitRatePercent: stats.Get().CacheHitRate(),
	})
}

// evictCache forces a size enforcement pass, regardless of whether the
// limit is currently exceeded.
func evictCache(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Respond(w, r).Error(http.StatusMethodNotAllowed, ErrorResponse{Error: "POST required"})
		return
	}

	removed, freed := store.EnforceLimit()
	if removed > 0 {
		stats.Get().RecordEviction(removed, freed)
	}
	log.Infof("%s Manual eviction: %d files, %d bytes", logcolors.LogEvict, removed, freed)

	Respond(w, r).JSON(EvictResponse{Success: true, FilesRemoved: removed, BytesFreed: freed})
}

func getCircuitBreakerStatus(w http.ResponseWriter, r *http.Request) {
	status := breaker.Stats()
	status["time_until_retry"] = breaker.TimeUntilRetry().Round(time.Second).String()
	Respond(w, r).JSON(status)
}

func resetCircuitBreaker(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		Respond(w, r).Error(http.StatusMethodNotAllowed, ErrorResponse{Error: "POST required"})
		return
	}

	breaker.Reset()
	Respond(w, r).JSON(map[string]interface{}{
		"success": true,
		"state":   breaker.State().String(),
	})
}

func helpHandler(w http.ResponseWriter, r *http.Request) {
	Respond(w, r).JSON(map[string]interface{}{
		"help": "Use /stream_pcm?song=NAME&artist=ARTIST to request a track. " +
			"The response audio_url is served from /music_cache/ and is playable immediately.",
	})
}

// firstQueryParam returns the first non-empty value among aliases.
func firstQueryParam(r *http.Request, names ...string) string {
	for _, name := range names {
		if v := r.URL.Query().Get(name); v != "" {
			return v
		}
	}
	return ""
}

package stats

import (
	"sync/atomic"
	"time"
)

// Stats holds all server statistics with atomic counters
type Stats struct {
	// Server info
	StartTime time.Time

	// Request counters
	TotalRequests  atomic.Int64
	StreamRequests atomic.Int64
	SearchRequests atomic.Int64
	StatsRequests  atomic.Int64
	HealthRequests atomic.Int64
	OtherRequests  atomic.Int64

	// Cache performance
	CacheHits   atomic.Int64
	CacheMisses atomic.Int64

	// Placeholder synthesis
	PlaceholdersSynthesized atomic.Int64

	// Background fetches
	FetchesCompleted atomic.Int64
	FetchesFailed    atomic.Int64
	FetchesSkipped   atomic.Int64 // real audio already present when task ran
	FetchesDropped   atomic.Int64 // queue full at schedule time

	// Eviction
	FilesEvicted atomic.Int64
	BytesEvicted atomic.Int64

	// Auth and rate limiting
	AuthRejected      atomic.Int64
	RateLimitExceeded atomic.Int64

	// Response status codes
	Status2xx atomic.Int64
	Status4xx atomic.Int64
	Status5xx atomic.Int64

	// Response time tracking (in microseconds for precision)
	totalResponseTime atomic.Int64
	responseCount     atomic.Int64
	minResponseTime   atomic.Int64
	maxResponseTime   atomic.Int64

	// Stream endpoint response times (microseconds)
	streamResponseTime  atomic.Int64
	streamResponseCount atomic.Int64
}

// Global stats instance
var global = &Stats{
	StartTime: time.Now(),
}

func init() {
	// Initialize min to a high value
	global.minResponseTime.Store(int64(^uint64(0) >> 1)) // Max int64
}

// Get returns the global stats instance
func Get() *Stats {
	return global
}

// RecordRequest records a request to a specific endpoint
func (s *Stats) RecordRequest(endpoint string) {
	s.TotalRequests.Add(1)
	switch endpoint {
	case "/stream_pcm":
		s.StreamRequests.Add(1)
	case "/search":
		s.SearchRequests.Add(1)
	case "/stats":
		s.StatsRequests.Add(1)
	case "/health":
		s.HealthRequests.Add(1)
	default:
		s.OtherRequests.Add(1)
	}
}

// RecordCacheHit records a cache hit
func (s *Stats) RecordCacheHit() {
	s.CacheHits.Add(1)
}

// RecordCacheMiss records a cache miss
func (s *Stats) RecordCacheMiss() {
	s.CacheMisses.Add(1)
}

// RecordPlaceholder records a synthesized placeholder
func (s *Stats) RecordPlaceholder() {
	s.PlaceholdersSynthesized.Add(1)
}

// RecordFetch records the outcome of a background fetch task
func (s *Stats) RecordFetch(outcome string) {
	switch outcome {
	case "completed":
		s.FetchesCompleted.Add(1)
	case "failed":
		s.FetchesFailed.Add(1)
	case "skipped":
		s.FetchesSkipped.Add(1)
	case "dropped":
		s.FetchesDropped.Add(1)
	}
}

// RecordEviction records files removed by cache eviction
func (s *Stats) RecordEviction(files int, bytes int64) {
	s.FilesEvicted.Add(int64(files))
	s.BytesEvicted.Add(bytes)
}

// RecordAuthRejected records a failed device authentication
func (s *Stats) RecordAuthRejected() {
	s.AuthRejected.Add(1)
}

// RecordRateLimitExceeded records a rejected request (429)
func (s *Stats) RecordRateLimitExceeded() {
	s.RateLimitExceeded.Add(1)
}

// RecordStatusCode records a response status code
func (s *Stats) RecordStatusCode(code int) {
	switch {
	case code >= 200 && code < 300:
		s.Status2xx.Add(1)
	case code >= 400 && code < 500:
		s.Status4xx.Add(1)
	case code >= 500:
		s.Status5xx.Add(1)
	}
}

// RecordResponseTime records a response time
func (s *Stats) RecordResponseTime(duration time.Duration, endpoint string) {
	us := duration.Microseconds()

	s.totalResponseTime.Add(us)
	s.responseCount.Add(1)

	// Update min/max atomically
	for {
		current := s.minResponseTime.Load()
		if us >= current || s.minResponseTime.CompareAndSwap(current, us) {
			break
		}
	}
	for {
		current := s.maxResponseTime.Load()
		if us <= current || s.maxResponseTime.CompareAndSwap(current, us) {
			break
		}
	}

	if endpoint == "/stream_pcm" {
		s.streamResponseTime.Add(us)
		s.streamResponseCount.Add(1)
	}
}

// Uptime returns the server uptime
func (s *Stats) Uptime() time.Duration {
	return time.Since(s.StartTime)
}

// CacheHitRate returns the cache hit rate as a percentage
func (s *Stats) CacheHitRate() float64 {
	hits := s.CacheHits.Load()
	misses := s.CacheMisses.Load()
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// AvgResponseTime returns the average response time
func (s *Stats) AvgResponseTime() time.Duration {
	count := s.responseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.totalResponseTime.Load()/count) * time.Microsecond
}

// MinResponseTime returns the minimum response time
func (s *Stats) MinResponseTime() time.Duration {
	min := s.minResponseTime.Load()
	if min == int64(^uint64(0)>>1) {
		return 0
	}
	return time.Duration(min) * time.Microsecond
}

// MaxResponseTime returns the maximum response time
func (s *Stats) MaxResponseTime() time.Duration {
	return time.Duration(s.maxResponseTime.Load()) * time.Microsecond
}

// AvgStreamResponseTime returns the average response time for stream requests
func (s *Stats) AvgStreamResponseTime() time.Duration {
	count := s.streamResponseCount.Load()
	if count == 0 {
		return 0
	}
	return time.Duration(s.streamResponseTime.Load()/count) * time.Microsecond
}

// Snapshot returns a point-in-time snapshot of all stats
func (s *Stats) Snapshot() map[string]interface{} {
	uptime := s.Uptime()

	return map[string]interface{}{
		"server": map[string]interface{}{
			"start_time":     s.StartTime.Format(time.RFC3339),
			"uptime":         uptime.String(),
			"uptime_seconds": int64(uptime.Seconds()),
		},
		"requests": map[string]interface{}{
			"total":  s.TotalRequests.Load(),
			"stream": s.StreamRequests.Load(),
			"search": s.SearchRequests.Load(),
			"stats":  s.StatsRequests.Load(),
			"health": s.HealthRequests.Load(),
			"other":  s.OtherRequests.Load(),
		},
		"cache": map[string]interface{}{
			"hits":     s.CacheHits.Load(),
			"misses":   s.CacheMisses.Load(),
			"hit_rate": s.CacheHitRate(),
		},
		"placeholders": map[string]interface{}{
			"synthesized": s.PlaceholdersSynthesized.Load(),
		},
		"fetches": map[string]interface{}{
			"completed": s.FetchesCompleted.Load(),
			"failed":    s.FetchesFailed.Load(),
			"skipped":   s.FetchesSkipped.Load(),
			"dropped":   s.FetchesDropped.Load(),
		},
		"eviction": map[string]interface{}{
			"files_evicted": s.FilesEvicted.Load(),
			"bytes_evicted": s.BytesEvicted.Load(),
		},
		"security": map[string]interface{}{
			"auth_rejected":       s.AuthRejected.Load(),
			"rate_limit_exceeded": s.RateLimitExceeded.Load(),
		},
		"responses": map[string]interface{}{
			"2xx": s.Status2xx.Load(),
			"4xx": s.Status4xx.Load(),
			"5xx": s.Status5xx.Load(),
		},
		"response_times": map[string]interface{}{
			"avg":        s.AvgResponseTime().String(),
			"min":        s.MinResponseTime().String(),
			"max":        s.MaxResponseTime().String(),
			"avg_stream": s.AvgStreamResponseTime().String(),
		},
	}
}

package main

// StreamResponse is the /stream_pcm reply. The device starts playing
// audio_url immediately; the file behind it may still be a placeholder.
type StreamResponse struct {
	Success   bool   `json:"success"`
	Artist    string `json:"artist"`
	Title     string `json:"title"`
	AudioURL  string `json:"audio_url"`
	CoverURL  string `json:"cover_url"`
	Duration  int    `json:"duration"`
	FromCache bool   `json:"from_cache"`
	LyricURL  string `json:"lyric_url"`
}

// SearchResponse is the /search reply.
type SearchResponse struct {
	Success  bool   `json:"success"`
	Artist   string `json:"artist"`
	Title    string `json:"title"`
	CoverURL string `json:"cover_url"`
	Duration int    `json:"duration"`
}

// ErrorResponse is the generic error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// CacheSummaryResponse is the /cache reply.
type CacheSummaryResponse struct {
	AudioFiles     int     `json:"audio_files"`
	TotalSizeMB    float64 `json:"total_size_mb"`
	MaxSizeMB      int     `json:"max_size_mb"`
	MetadataKeys   int     `json:"metadata_keys"`
	MetadataSizeKB int     `json:"metadata_size_kb"`
	HitRatePercent float64 `json:"hit_rate_percent"`
}

// EvictResponse is the /cache/evict reply.
type EvictResponse struct {
	Success      bool  `json:"success"`
	FilesRemoved int   `json:"files_removed"`
	BytesFreed   int64 `json:"bytes_freed"`
}

// Package resolver turns a free-text track request into playable cache
// state: metadata, a streamable file (real or placeholder), and a
// scheduled background fetch when the real audio is missing.
package resolver

import (
	"context"
	"os"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"music-api-go/cache"
	"music-api-go/circuitbreaker"
	"music-api-go/fetcher"
	"music-api-go/logcolors"
	"music-api-go/stats"
	"music-api-go/synth"
	"music-api-go/ytdlp"
)

// Metadata is the resolved view of one track request.
type Metadata struct {
	Key             string
	Title           string
	Artist          string
	DurationSeconds int
	CoverURL        string
	FromCache       bool
}

// InfoExtractor looks up track metadata for a search query. Satisfied
// by *ytdlp.Client.
type InfoExtractor interface {
	ExtractInfo(ctx context.Context, query string) (*ytdlp.Info, error)
}

// Placeholder synthesizes stand-in audio. Satisfied by
// *synth.Synthesizer.
type Placeholder interface {
	Synthesize(dest, title, artist string, durationSeconds int) error
}

// Resolver coordinates the cache, metadata store, synthesizer and fetch
// queue for incoming stream requests.
type Resolver struct {
	store     *cache.Store
	meta      *cache.MetadataStore
	synth     Placeholder
	coord     *fetcher.Coordinator
	breaker   *circuitbreaker.CircuitBreaker
	extractor InfoExtractor

	infoTimeout     time.Duration
	defaultDuration int
	defaultCoverURL string
}

// Config for the resolver.
type Config struct {
	InfoTimeout     time.Duration
	DefaultDuration int
	DefaultCoverURL string
}

// New creates a resolver.
func New(store *cache.Store, meta *cache.MetadataStore, s Placeholder,
	coord *fetcher.Coordinator, breaker *circuitbreaker.CircuitBreaker,
	extractor InfoExtractor, cfg Config) *Resolver {

	if cfg.InfoTimeout <= 0 {
		cfg.InfoTimeout = 10 * time.Second
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = 180
	}

	return &Resolver{
		store:           store,
		meta:            meta,
		synth:           s,
		coord:           coord,
		breaker:         breaker,
		extractor:       extractor,
		infoTimeout:     cfg.InfoTimeout,
		defaultDuration: cfg.DefaultDuration,
		defaultCoverURL: cfg.DefaultCoverURL,
	}
}

// ParseArtistFromTitle splits a "Artist - Title" video title, dropping
// a leading "[...]" tag from the artist part. Returns empty artist when
// no separator is present.
func ParseArtistFromTitle(title string) (artist, cleanTitle string) {
	if idx := strings.Index(title, " - "); idx > 0 {
		artist = strings.TrimSpace(title[:idx])
		if strings.HasPrefix(artist, "[") {
			if end := strings.Index(artist, "]"); end >= 0 {
				artist = strings.TrimSpace(artist[end+1:])
			}
		}
		return artist, strings.TrimSpace(title[idx+3:])
	}
	return "", strings.TrimSpace(title)
}

// upgradeThumbnail swaps low resolution default thumbnails for the
// highest resolution variant of the same image.
func upgradeThumbnail(url string) string {
	return strings.Replace(url, "default.jpg", "maxresdefault.jpg", 1)
}

// Resolve handles one track request. On a cache hit the stored metadata
// is returned. On a miss the track metadata is looked up, a placeholder
// is synthesized so streaming can start immediately, and the real
// download is queued in the background.
func (r *Resolver) Resolve(ctx context.Context, song, artist string) (*Metadata, error) {
	query := strings.TrimSpace(song)
	if artist != "" {
		query = query + " " + strings.TrimSpace(artist)
	}
	key := cache.DeriveKey(query)

	if r.store.HasAudio(key) {
		stats.Get().RecordCacheHit()
		log.Infof("%s %s for %q", logcolors.LogCacheHit, key, query)
		return r.fromRecord(key, query), nil
	}

	stats.Get().RecordCacheMiss()
	log.Infof("%s %s for %q", logcolors.LogCacheMiss, key, query)

	meta := r.lookupMetadata(ctx, query, song, artist)
	meta.Key = key

	if err := r.ensurePlaceholder(key, meta); err != nil {
		return nil, err
	}

	record := cache.TrackRecord{
		Title:           meta.Title,
		Artist:          meta.Artist,
		DurationSeconds: meta.DurationSeconds,
		CoverURL:        meta.CoverURL,
		ResolvedAt:      time.Now().Unix(),
	}
	if err := r.meta.Set(key, record); err != nil {
		log.Warnf("%s Failed to persist metadata for %s: %v", logcolors.LogResolve, key, err)
	}

	r.coord.Schedule(fetcher.Task{
		Key:    key,
		Query:  query,
		Title:  meta.Title,
		Artist: meta.Artist,
	})

	return meta, nil
}

// fromRecord builds hit-path metadata from the persistent store,
// falling back to query-derived values when the record is missing.
func (r *Resolver) fromRecord(key, query string) *Metadata {
	meta := &Metadata{
		Key:             key,
		Title:           query,
		DurationSeconds: r.defaultDuration,
		CoverURL:        r.defaultCoverURL,
		FromCache:       true,
	}

	if record, ok := r.meta.Get(key); ok {
		meta.Title = record.Title
		meta.Artist = record.Artist
		if record.DurationSeconds > 0 {
			meta.DurationSeconds = record.DurationSeconds
		}
		if record.CoverURL != "" {
			meta.CoverURL = record.CoverURL
		}
	}

	return meta
}

// lookupMetadata queries the external source behind the circuit
// breaker. Any failure degrades to query-derived defaults so a track
// request never fails outright on metadata.
func (r *Resolver) lookupMetadata(ctx context.Context, query, song, artist string) *Metadata {
	fallbackArtist := strings.TrimSpace(artist)
	if fallbackArtist == "" {
		fallbackArtist = "Unknown"
	}
	fallback := &Metadata{
		Title:           strings.TrimSpace(song),
		Artist:          fallbackArtist,
		DurationSeconds: r.defaultDuration,
		CoverURL:        r.defaultCoverURL,
	}

	if !r.breaker.Allow() {
		log.Warnf("%s Metadata source unavailable (circuit open), using defaults for %q", logcolors.LogResolve, query)
		return fallback
	}

	infoCtx, cancel := context.WithTimeout(ctx, r.infoTimeout)
	defer cancel()

	info, err := r.extractor.ExtractInfo(infoCtx, query)
	if err != nil {
		r.breaker.RecordFailure()
		log.Warnf("%s Metadata lookup failed for %q: %v", logcolors.LogResolve, query, err)
		return fallback
	}
	r.breaker.RecordSuccess()

	meta := &Metadata{
		Title:           info.Title,
		Artist:          strings.TrimSpace(artist),
		DurationSeconds: int(info.Duration),
		CoverURL:        upgradeThumbnail(info.Thumbnail),
	}

	if meta.Artist == "" {
		if parsedArtist, cleanTitle := ParseArtistFromTitle(info.Title); parsedArtist != "" {
			meta.Artist = parsedArtist
			meta.Title = cleanTitle
		} else if info.Uploader != "" {
			meta.Artist = info.Uploader
		} else {
			meta.Artist = "Unknown"
		}
	}
	if meta.DurationSeconds <= 0 {
		meta.DurationSeconds = r.defaultDuration
	}
	if meta.CoverURL == "" {
		meta.CoverURL = r.defaultCoverURL
	}

	log.Infof("%s Resolved %q: %q by %q (%ds)", logcolors.LogResolve, query, meta.Title, meta.Artist, meta.DurationSeconds)
	return meta
}

// ensurePlaceholder synthesizes placeholder audio and lyrics for the
// key so the client has something to stream right away.
func (r *Resolver) ensurePlaceholder(key string, meta *Metadata) error {
	if !r.store.HasAudio(key) {
		if err := r.synth.Synthesize(r.store.AudioPath(key), meta.Title, meta.Artist, meta.DurationSeconds); err != nil {
			// A stale artifact from an earlier run is still playable
			if fi, statErr := os.Stat(r.store.AudioPath(key)); statErr != nil || fi.Size() == 0 {
				return err
			}
			log.Warnf("%s Synthesis failed for %s, serving existing artifact: %v", logcolors.LogResolve, key, err)
		} else {
			stats.Get().RecordPlaceholder()
		}
	}

	if !r.store.HasLyrics(key) {
		if err := synth.WriteLyrics(r.store.LyricPath(key), meta.Title, meta.Artist); err != nil {
			log.Warnf("%s Failed to write placeholder lyrics for %s: %v", logcolors.LogResolve, key, err)
		}
	}

	return nil
}

// Search runs a metadata-only lookup without touching the cache.
func (r *Resolver) Search(ctx context.Context, query string) (*Metadata, error) {
	if !r.breaker.Allow() {
		return nil, circuitbreaker.ErrCircuitOpen
	}

	infoCtx, cancel := context.WithTimeout(ctx, r.infoTimeout)
	defer cancel()

	info, err := r.extractor.ExtractInfo(infoCtx, query)
	if err != nil {
		r.breaker.RecordFailure()
		return nil, err
	}
	r.breaker.RecordSuccess()

	artist, title := ParseArtistFromTitle(info.Title)
	if artist == "" {
		artist = info.Uploader
		title = info.Title
	}
	if artist == "" {
		artist = "Unknown"
	}

	duration := int(info.Duration)
	if duration <= 0 {
		duration = r.defaultDuration
	}
	cover := upgradeThumbnail(info.Thumbnail)
	if cover == "" {
		cover = r.defaultCoverURL
	}

	return &Metadata{
		Key:             cache.DeriveKey(query),
		Title:           title,
		Artist:          artist,
		DurationSeconds: duration,
		CoverURL:        cover,
	}, nil
}

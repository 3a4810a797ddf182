package resolver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"music-api-go/cache"
	"music-api-go/circuitbreaker"
	"music-api-go/fetcher"
	"music-api-go/ytdlp"
)

func TestParseArtistFromTitle(t *testing.T) {
	tests := []struct {
		title      string
		wantArtist string
		wantTitle  string
	}{
		{"Adele - Hello", "Adele", "Hello"},
		{"Adele - Hello - Live", "Adele", "Hello - Live"},
		{"Hello", "", "Hello"},
		{" - Hello", "", "- Hello"},
		{"Daft Punk - Get Lucky ", "Daft Punk", "Get Lucky"},
		{"[MV] Adele - Hello", "Adele", "Hello"},
		{"[Official Video] Daft Punk - Get Lucky", "Daft Punk", "Get Lucky"},
		{"[MV] - Hello", "", "Hello"},
	}

	for _, tt := range tests {
		artist, title := ParseArtistFromTitle(tt.title)
		if artist != tt.wantArtist || title != tt.wantTitle {
			t.Errorf("ParseArtistFromTitle(%q) = (%q, %q), want (%q, %q)",
				tt.title, artist, title, tt.wantArtist, tt.wantTitle)
		}
	}
}

func TestUpgradeThumbnail(t *testing.T) {
	got := upgradeThumbnail("https://i.ytimg.com/vi/abc/default.jpg")
	want := "https://i.ytimg.com/vi/abc/maxresdefault.jpg"
	if got != want {
		t.Errorf("upgradeThumbnail = %q, want %q", got, want)
	}

	unchanged := "https://i.ytimg.com/vi/abc/hq720.jpg"
	if got := upgradeThumbnail(unchanged); got != unchanged {
		t.Errorf("upgradeThumbnail modified non-default url: %q", got)
	}
}

type fakeExtractor struct {
	info  *ytdlp.Info
	err   error
	calls int
}

func (f *fakeExtractor) ExtractInfo(ctx context.Context, query string) (*ytdlp.Info, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

// fakeDownloader writes a large mp3 so the fetch counts as real audio.
type fakeDownloader struct{}

func (fakeDownloader) Download(ctx context.Context, query string, opts ytdlp.DownloadOptions) error {
	path := strings.Replace(opts.OutputTemplate, "%(ext)s", "mp3", 1)
	return os.WriteFile(path, make([]byte, 200000), 0644)
}

// fakePlaceholder writes a tiny file, small enough to stay below the
// real-audio threshold.
type fakePlaceholder struct{}

func (fakePlaceholder) Synthesize(dest, title, artist string, durationSeconds int) error {
	return os.WriteFile(dest, []byte("tone"), 0644)
}

type failingPlaceholder struct{}

func (failingPlaceholder) Synthesize(dest, title, artist string, durationSeconds int) error {
	return errors.New("ffmpeg broken")
}

func newTestResolver(t *testing.T, ex InfoExtractor) (*Resolver, *cache.Store, *fetcher.Coordinator) {
	t.Helper()
	return newTestResolverWith(t, ex, fakePlaceholder{})
}

func newTestResolverWith(t *testing.T, ex InfoExtractor, p Placeholder) (*Resolver, *cache.Store, *fetcher.Coordinator) {
	t.Helper()
	dir := t.TempDir()

	store, err := cache.NewStore(dir, 1<<30, 0.8, 100)
	if err != nil {
		t.Fatal(err)
	}
	meta, err := cache.NewMetadataStore(filepath.Join(dir, "meta.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { meta.Close() })

	coord := fetcher.New(store, fakeDownloader{}, fetcher.Config{Workers: 1, QueueSize: 8})
	t.Cleanup(coord.Close)

	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "test", Threshold: 2, Cooldown: time.Hour})

	r := New(store, meta, p, coord, breaker, ex, Config{
		DefaultDuration: 180,
		DefaultCoverURL: "https://example.com/default.jpg",
	})
	return r, store, coord
}

func TestResolveMissSynthesizesAndSchedules(t *testing.T) {
	ex := &fakeExtractor{info: &ytdlp.Info{
		Title:     "Adele - Hello",
		Uploader:  "AdeleVEVO",
		Duration:  367,
		Thumbnail: "https://i.ytimg.com/vi/abc/default.jpg",
	}}
	r, store, coord := newTestResolver(t, ex)

	meta, err := r.Resolve(context.Background(), "hello", "adele")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	coord.Flush()

	if meta.FromCache {
		t.Error("miss reported FromCache")
	}
	if meta.Title != "Adele - Hello" {
		t.Errorf("Title = %q", meta.Title)
	}
	if meta.Artist != "adele" {
		t.Errorf("Artist = %q, want requested artist preserved", meta.Artist)
	}
	if meta.DurationSeconds != 367 {
		t.Errorf("DurationSeconds = %d", meta.DurationSeconds)
	}
	if meta.CoverURL != "https://i.ytimg.com/vi/abc/maxresdefault.jpg" {
		t.Errorf("CoverURL = %q", meta.CoverURL)
	}
	if meta.Key != cache.DeriveKey("hello adele") {
		t.Errorf("Key = %q", meta.Key)
	}

	// Fetch completed, so real audio and lyrics exist
	if !store.HasAudio(meta.Key) {
		t.Error("no audio after resolve and fetch")
	}
	if !store.HasLyrics(meta.Key) {
		t.Error("no lyrics after resolve")
	}
}

func TestResolveParsesArtistWhenMissing(t *testing.T) {
	ex := &fakeExtractor{info: &ytdlp.Info{Title: "Adele - Hello", Duration: 367}}
	r, _, coord := newTestResolver(t, ex)

	meta, err := r.Resolve(context.Background(), "hello adele", "")
	if err != nil {
		t.Fatal(err)
	}
	coord.Flush()

	if meta.Artist != "Adele" {
		t.Errorf("Artist = %q, want parsed from title", meta.Artist)
	}
	if meta.Title != "Hello" {
		t.Errorf("Title = %q, want separator stripped", meta.Title)
	}
}

func TestResolveFallsBackOnLookupFailure(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("boom")}
	r, _, coord := newTestResolver(t, ex)

	meta, err := r.Resolve(context.Background(), "hello", "adele")
	if err != nil {
		t.Fatalf("Resolve failed despite fallback path: %v", err)
	}
	coord.Flush()

	if meta.Title != "hello" {
		t.Errorf("fallback Title = %q", meta.Title)
	}
	if meta.DurationSeconds != 180 {
		t.Errorf("fallback DurationSeconds = %d, want 180", meta.DurationSeconds)
	}
	if meta.CoverURL != "https://example.com/default.jpg" {
		t.Errorf("fallback CoverURL = %q", meta.CoverURL)
	}
}

func TestResolveUnknownArtist(t *testing.T) {
	// No hint, no separator in the title, no uploader
	ex := &fakeExtractor{info: &ytdlp.Info{Title: "Hello", Duration: 367}}
	r, _, coord := newTestResolver(t, ex)

	meta, err := r.Resolve(context.Background(), "hello", "")
	if err != nil {
		t.Fatal(err)
	}
	coord.Flush()

	if meta.Artist != "Unknown" {
		t.Errorf("Artist = %q, want Unknown", meta.Artist)
	}

	// Lookup failure without a hint also defaults the artist
	failed := &fakeExtractor{err: errors.New("boom")}
	r2, _, coord2 := newTestResolver(t, failed)

	meta, err = r2.Resolve(context.Background(), "some song", "")
	if err != nil {
		t.Fatal(err)
	}
	coord2.Flush()

	if meta.Artist != "Unknown" {
		t.Errorf("fallback Artist = %q, want Unknown", meta.Artist)
	}
}

func TestResolveServesStaleOnSynthesisFailure(t *testing.T) {
	ex := &fakeExtractor{info: &ytdlp.Info{Title: "Adele - Hello", Duration: 367}}
	r, store, coord := newTestResolverWith(t, ex, failingPlaceholder{})

	key := cache.DeriveKey("hello adele")
	if err := os.WriteFile(store.AudioPath(key), []byte("stale tone"), 0644); err != nil {
		t.Fatal(err)
	}

	meta, err := r.Resolve(context.Background(), "hello adele", "")
	if err != nil {
		t.Fatalf("Resolve failed despite existing artifact: %v", err)
	}
	coord.Flush()

	if meta.Key != key {
		t.Errorf("Key = %q, want %q", meta.Key, key)
	}

	// With nothing on disk the synthesis error must surface
	r2, _, _ := newTestResolverWith(t, ex, failingPlaceholder{})
	if _, err := r2.Resolve(context.Background(), "other song", ""); err == nil {
		t.Error("Resolve succeeded with no artifact and failing synthesis")
	}
}

func TestResolveHitUsesStoredRecord(t *testing.T) {
	ex := &fakeExtractor{info: &ytdlp.Info{Title: "Adele - Hello", Duration: 367}}
	r, store, coord := newTestResolver(t, ex)

	first, err := r.Resolve(context.Background(), "hello adele", "")
	if err != nil {
		t.Fatal(err)
	}
	coord.Flush()

	if !store.HasAudio(first.Key) {
		t.Fatal("no audio after first resolve")
	}

	second, err := r.Resolve(context.Background(), "hello adele", "")
	if err != nil {
		t.Fatal(err)
	}

	if !second.FromCache {
		t.Error("second resolve not FromCache")
	}
	if second.Title != "Hello" || second.Artist != "Adele" {
		t.Errorf("cached metadata = %q / %q", second.Title, second.Artist)
	}
	if second.DurationSeconds != 367 {
		t.Errorf("cached DurationSeconds = %d", second.DurationSeconds)
	}
	if ex.calls != 1 {
		t.Errorf("extractor called %d times, want 1", ex.calls)
	}
}

func TestResolveOpenCircuitUsesDefaults(t *testing.T) {
	ex := &fakeExtractor{err: errors.New("boom")}
	r, _, coord := newTestResolver(t, ex)

	// Threshold is 2; trip the breaker
	r.Resolve(context.Background(), "one", "")
	r.Resolve(context.Background(), "two", "")
	coord.Flush()

	calls := ex.calls
	meta, err := r.Resolve(context.Background(), "three", "")
	if err != nil {
		t.Fatal(err)
	}
	coord.Flush()

	if ex.calls != calls {
		t.Error("extractor called while circuit open")
	}
	if meta.DurationSeconds != 180 {
		t.Errorf("DurationSeconds = %d, want default", meta.DurationSeconds)
	}
}

func TestSearch(t *testing.T) {
	ex := &fakeExtractor{info: &ytdlp.Info{
		Title:     "Adele - Hello",
		Duration:  367,
		Thumbnail: "https://i.ytimg.com/vi/abc/default.jpg",
	}}
	r, store, _ := newTestResolver(t, ex)

	meta, err := r.Search(context.Background(), "hello adele")
	if err != nil {
		t.Fatal(err)
	}

	if meta.Artist != "Adele" || meta.Title != "Hello" {
		t.Errorf("Search metadata = %q / %q", meta.Title, meta.Artist)
	}

	// Search must not create cache files
	if store.HasAudio(meta.Key) {
		t.Error("Search synthesized audio")
	}
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"music-api-go/cache"
	"music-api-go/circuitbreaker"
	"music-api-go/fetcher"
	"music-api-go/middleware"
	"music-api-go/resolver"
	"music-api-go/ytdlp"
)

type fakeExtractor struct {
	info *ytdlp.Info
	err  error
}

func (f *fakeExtractor) ExtractInfo(ctx context.Context, query string) (*ytdlp.Info, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.info, nil
}

type fakeDownloader struct{}

func (fakeDownloader) Download(ctx context.Context, query string, opts ytdlp.DownloadOptions) error {
	path := strings.Replace(opts.OutputTemplate, "%(ext)s", "mp3", 1)
	return os.WriteFile(path, make([]byte, 200000), 0644)
}

type fakePlaceholder struct{}

func (fakePlaceholder) Synthesize(dest, title, artist string, durationSeconds int) error {
	return os.WriteFile(dest, []byte("tone"), 0644)
}

// setupTestApp wires the handler singletons against temp storage and
// fakes for the external tools.
func setupTestApp(t *testing.T, ex resolver.InfoExtractor) {
	t.Helper()
	dir := t.TempDir()

	var err error
	store, err = cache.NewStore(dir, 1<<30, 0.8, 100)
	if err != nil {
		t.Fatal(err)
	}
	metaStore, err = cache.NewMetadataStore(filepath.Join(dir, "meta.db"), false)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { metaStore.Close() })

	breaker = circuitbreaker.New(circuitbreaker.Config{Name: "test", Threshold: 5, Cooldown: time.Hour})
	coordinator = fetcher.New(store, fakeDownloader{}, fetcher.Config{Workers: 1, QueueSize: 8})
	t.Cleanup(coordinator.Close)

	trackResolver = resolver.New(store, metaStore, fakePlaceholder{}, coordinator, breaker, ex, resolver.Config{
		DefaultDuration: 180,
		DefaultCoverURL: "https://example.com/default.jpg",
	})
}

func defaultExtractor() *fakeExtractor {
	return &fakeExtractor{info: &ytdlp.Info{
		Title:     "Adele - Hello",
		Uploader:  "AdeleVEVO",
		Duration:  367,
		Thumbnail: "https://i.ytimg.com/vi/abc/default.jpg",
	}}
}

func TestStreamPCMMissingSong(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	req := httptest.NewRequest("GET", "/stream_pcm", nil)
	rec := httptest.NewRecorder()
	streamPCM(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing song returned %d, want 400", rec.Code)
	}

	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("error body not JSON: %v", err)
	}
	if body.Error == "" {
		t.Error("error body empty")
	}
}

func TestStreamPCMMiss(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	req := httptest.NewRequest("GET", "/stream_pcm?song=hello&artist=adele", nil)
	rec := httptest.NewRecorder()
	streamPCM(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := rec.Header().Get("X-Cache-Status"); got != "MISS" {
		t.Errorf("X-Cache-Status = %q, want MISS", got)
	}

	var body StreamResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}

	if !body.Success {
		t.Error("success = false")
	}
	if body.FromCache {
		t.Error("from_cache = true on first request")
	}

	wantKey := cache.DeriveKey("hello adele")
	if body.AudioURL != "/music_cache/"+wantKey+".mp3" {
		t.Errorf("audio_url = %q", body.AudioURL)
	}
	if body.LyricURL != "/music_cache/"+wantKey+".lrc" {
		t.Errorf("lyric_url = %q", body.LyricURL)
	}
	if body.Duration != 367 {
		t.Errorf("duration = %d", body.Duration)
	}

	// Placeholder must be streamable right away
	if _, err := os.Stat(store.AudioPath(wantKey)); err != nil {
		t.Errorf("placeholder missing: %v", err)
	}
}

func TestStreamPCMHitAfterFetch(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	first := httptest.NewRequest("GET", "/stream_pcm?song=hello&artist=adele", nil)
	streamPCM(httptest.NewRecorder(), first)
	coordinator.Flush()

	req := httptest.NewRequest("GET", "/stream_pcm?song=hello&artist=adele", nil)
	rec := httptest.NewRecorder()
	streamPCM(rec, req)

	if got := rec.Header().Get("X-Cache-Status"); got != "HIT" {
		t.Errorf("X-Cache-Status = %q, want HIT", got)
	}

	var body StreamResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.FromCache {
		t.Error("from_cache = false on second request")
	}
	// The caller's artist hint wins and the source title is kept whole
	if body.Title != "Adele - Hello" || body.Artist != "adele" {
		t.Errorf("cached metadata = %q / %q", body.Title, body.Artist)
	}
}

func TestStreamPCMQueryAliases(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	for _, qs := range []string{"s=hello", "song=hello", "songName=hello"} {
		req := httptest.NewRequest("GET", "/stream_pcm?"+qs, nil)
		rec := httptest.NewRecorder()
		streamPCM(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s returned %d", qs, rec.Code)
		}
	}
}

func TestSearchHandler(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	req := httptest.NewRequest("GET", "/search?q=hello+adele", nil)
	rec := httptest.NewRecorder()
	searchHandler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body SearchResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Artist != "Adele" || body.Title != "Hello" {
		t.Errorf("search result = %q / %q", body.Title, body.Artist)
	}

	missing := httptest.NewRequest("GET", "/search", nil)
	rec = httptest.NewRecorder()
	searchHandler(rec, missing)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing query returned %d, want 400", rec.Code)
	}
}

func TestEvictCache(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	get := httptest.NewRequest("GET", "/cache/evict", nil)
	rec := httptest.NewRecorder()
	evictCache(rec, get)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET evict returned %d, want 405", rec.Code)
	}

	post := httptest.NewRequest("POST", "/cache/evict", nil)
	rec = httptest.NewRecorder()
	evictCache(rec, post)
	if rec.Code != http.StatusOK {
		t.Errorf("POST evict returned %d", rec.Code)
	}

	var body EvictResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if !body.Success {
		t.Error("evict success = false")
	}
}

func TestCircuitBreakerEndpoints(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	req := httptest.NewRequest("GET", "/circuit-breaker", nil)
	rec := httptest.NewRecorder()
	getCircuitBreakerStatus(rec, req)

	var status map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status["state"] != "CLOSED" {
		t.Errorf("state = %v", status["state"])
	}

	reset := httptest.NewRequest("POST", "/circuit-breaker/reset", nil)
	rec = httptest.NewRecorder()
	resetCircuitBreaker(rec, reset)
	if rec.Code != http.StatusOK {
		t.Errorf("reset returned %d", rec.Code)
	}
}

// newAuthedStreamRequest builds a device authenticated request the way
// firmware does.
func newAuthedStreamRequest(path, secret string) *http.Request {
	req := httptest.NewRequest("GET", path, nil)
	ts := time.Now().Unix()
	req.Header.Set("X-MAC-Address", "AA:BB:CC:DD:EE:FF")
	req.Header.Set("X-Chip-ID", "esp32-0001")
	req.Header.Set("X-Timestamp", fmt.Sprintf("%d", ts))
	req.Header.Set("X-Dynamic-Key", middleware.DeriveDynamicKey("AA:BB:CC:DD:EE:FF", "esp32-0001", ts, secret))
	return req
}

func TestRouterDeviceAuth(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	router := mux.NewRouter()
	setupRoutes(router)
	handler := middleware.DeviceAuthMiddleware("test-secret", 0, publicPathPrefixes())(router)

	// Unauthenticated stream request is rejected
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/stream_pcm?song=hello", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated request returned %d, want 401", rec.Code)
	}

	// Authenticated request succeeds
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, newAuthedStreamRequest("/stream_pcm?song=hello", "test-secret"))
	if rec.Code != http.StatusOK {
		t.Errorf("authenticated request returned %d, body %s", rec.Code, rec.Body.String())
	}

	// Cached artifacts are public
	key := cache.DeriveKey("hello")
	if err := store.WriteFileAtomic(store.AudioPath(key), make([]byte, 1000)); err != nil {
		t.Fatal(err)
	}
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/music_cache/"+key+".mp3", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("public artifact returned %d, want 200", rec.Code)
	}
}

func TestRouterAdminGate(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	router := mux.NewRouter()
	setupRoutes(router)

	// Default config has no admin token, so ops endpoints are disabled
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/stats", nil))
	if rec.Code != http.StatusForbidden {
		t.Errorf("/stats without configured token returned %d, want 403", rec.Code)
	}
}

func TestHelpHandler(t *testing.T) {
	setupTestApp(t, defaultExtractor())

	rec := httptest.NewRecorder()
	helpHandler(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("help returned %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "/stream_pcm") {
		t.Error("help body does not mention /stream_pcm")
	}
}

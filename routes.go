package main

import (
	"net/http"

	"github.com/gorilla/mux"

	"music-api-go/middleware"
)

// setupRoutes configures all HTTP routes for the API
func setupRoutes(router *mux.Router) {
	// Track resolution endpoints (device authenticated)
	router.HandleFunc("/stream_pcm", streamPCM)
	router.HandleFunc("/search", searchHandler)

	// Cached artifacts are served directly; devices fetch these without
	// auth headers so the audio player can stream them.
	router.PathPrefix("/music_cache/").Handler(
		http.StripPrefix("/music_cache/", http.FileServer(http.Dir(store.Dir()))))

	// Liveness probe, open so monitors need no token
	router.HandleFunc("/health", getHealthStatus)

	// Operational endpoints, gated by the admin token
	admin := middleware.AdminTokenMiddleware(conf.Configuration.AdminAccessToken)
	router.Handle("/stats", admin(http.HandlerFunc(getStats)))
	router.Handle("/cache", admin(http.HandlerFunc(getCacheSummary)))
	router.Handle("/cache/evict", admin(http.HandlerFunc(evictCache)))
	router.Handle("/circuit-breaker", admin(http.HandlerFunc(getCircuitBreakerStatus)))
	router.Handle("/circuit-breaker/reset", admin(http.HandlerFunc(resetCircuitBreaker)))

	// Help endpoint
	router.HandleFunc("/", helpHandler)
}

// publicPathPrefixes lists paths exempt from device authentication.
// Admin endpoints carry their own token gate.
func publicPathPrefixes() []string {
	return []string{
		"/music_cache/",
		"/health",
		"/stats",
		"/cache",
		"/circuit-breaker",
	}
}

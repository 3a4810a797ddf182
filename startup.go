package main

import (
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"

	"music-api-go/bridge"
	"music-api-go/cache"
	"music-api-go/circuitbreaker"
	"music-api-go/fetcher"
	"music-api-go/logcolors"
	"music-api-go/resolver"
	"music-api-go/stats"
	"music-api-go/synth"
	"music-api-go/ytdlp"
)

// Service singletons wired at startup and used by the handlers.
var (
	store         *cache.Store
	metaStore     *cache.MetadataStore
	coordinator   *fetcher.Coordinator
	trackResolver *resolver.Resolver
	breaker       *circuitbreaker.CircuitBreaker
	statsStore    *stats.Store
	sweeperStop   chan struct{}
)

// initializeServices builds the acquisition pipeline from configuration.
// Returns a shutdown function that flushes and closes everything.
func initializeServices() func() {
	var err error

	store, err = cache.NewStore(
		conf.Configuration.CacheDir,
		int64(conf.Configuration.MaxCacheSizeMB)*1024*1024,
		conf.Configuration.CacheEvictWatermark,
		conf.Configuration.MinRealSizeBytes,
	)
	if err != nil {
		log.Fatalf("%s Failed to open cache store: %v", logcolors.LogCacheInit, err)
	}
	log.Infof("%s Cache dir %s (max %d MB, current %.1f MB)",
		logcolors.LogCacheInit, store.Dir(),
		conf.Configuration.MaxCacheSizeMB,
		float64(store.TotalSize())/1024/1024)

	metaStore, err = cache.NewMetadataStore(
		filepath.Join(conf.Configuration.CacheDir, "metadata.db"),
		conf.FeatureFlags.CacheCompression,
	)
	if err != nil {
		log.Fatalf("%s Failed to open metadata store: %v", logcolors.LogCacheInit, err)
	}

	statsStore, err = stats.NewStore(filepath.Join(conf.Configuration.CacheDir, "stats.db"))
	if err != nil {
		log.Warnf("%s Stats persistence disabled: %v", logcolors.LogStats, err)
	} else {
		if err := statsStore.Load(); err != nil {
			log.Warnf("%s Failed to load persisted stats: %v", logcolors.LogStats, err)
		}
		statsStore.StartAutoSave(5 * time.Minute)
	}

	breaker = circuitbreaker.New(circuitbreaker.Config{
		Name:      "metadata",
		Threshold: conf.Configuration.CircuitBreakerThreshold,
		Cooldown:  time.Duration(conf.Configuration.CircuitBreakerCooldownSecs) * time.Second,
	})

	ytdlpClient := ytdlp.NewClient(conf.Configuration.YtdlpPath)
	synthesizer := synth.New(conf.Configuration.FFmpegPath)

	coordinator = fetcher.New(store, ytdlpClient, fetcher.Config{
		Workers:         conf.Configuration.FetchConcurrency,
		QueueSize:       conf.Configuration.FetchQueueSize,
		DownloadTimeout: time.Duration(conf.Configuration.DownloadTimeoutSeconds) * time.Second,
	})

	trackResolver = resolver.New(store, metaStore, synthesizer, coordinator, breaker, ytdlpClient, resolver.Config{
		InfoTimeout:     time.Duration(conf.Configuration.InfoTimeoutSeconds) * time.Second,
		DefaultDuration: conf.Configuration.DefaultDurationSeconds,
		DefaultCoverURL: conf.Configuration.DefaultCoverURL,
	})

	sweeperStop = make(chan struct{})
	fetcher.StartSweeper(5*time.Minute, 15*time.Minute, sweeperStop)

	// Clear anything a previous run left half-written
	if removed, freed := store.EnforceLimit(); removed > 0 {
		log.Infof("%s Startup eviction removed %d files (%d bytes)", logcolors.LogEvict, removed, freed)
	}

	var telemetry *bridge.Bridge
	if conf.Bridge.Enabled {
		telemetry = bridge.New(bridge.Config{
			ServerHost:     conf.Bridge.ServerHost,
			DeviceID:       conf.Bridge.DeviceID,
			MQTTBroker:     conf.Bridge.MQTTBroker,
			MQTTUser:       conf.Bridge.MQTTUser,
			MQTTPassword:   conf.Bridge.MQTTPassword,
			MQTTClientID:   conf.Bridge.MQTTClientID,
			RealtimePoll:   time.Duration(conf.Bridge.RealtimePollSeconds) * time.Second,
			TotalsPoll:     time.Duration(conf.Bridge.TotalsPollSeconds) * time.Second,
			SessionRefresh: time.Duration(conf.Bridge.SessionRefreshSeconds) * time.Second,
		})
		if err := telemetry.Start(); err != nil {
			log.Warnf("%s Bridge disabled: %v", logcolors.LogBridge, err)
			telemetry = nil
		}
	}

	return func() {
		close(sweeperStop)
		coordinator.Close()
		if telemetry != nil {
			telemetry.Stop()
		}
		if statsStore != nil {
			statsStore.Close()
		}
		metaStore.Close()
		log.Infof("%s Shutdown complete", logcolors.LogServer)
	}
}

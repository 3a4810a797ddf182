package config

import (
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	log "github.com/sirupsen/logrus"
)

var conf = mustLoad()

type Config struct {
	Configuration struct {
		Port     string `envconfig:"PORT" default:"5005"`
		CacheDir string `envconfig:"CACHE_DIR" default:"music_cache"`

		// Cache sizing. The store evicts least-recently-modified files once
		// the total size passes MaxCacheSizeMB, down to the watermark.
		MaxCacheSizeMB      int     `envconfig:"MAX_CACHE_SIZE_MB" default:"500"`
		CacheEvictWatermark float64 `envconfig:"CACHE_EVICT_WATERMARK" default:"0.8"`

		// An audio file smaller than this is treated as a placeholder, not
		// a finished download.
		MinRealSizeBytes int64 `envconfig:"MIN_REAL_SIZE_BYTES" default:"100000"`

		FetchConcurrency int `envconfig:"FETCH_CONCURRENCY" default:"3"`
		FetchQueueSize   int `envconfig:"FETCH_QUEUE_SIZE" default:"64"`

		FFmpegPath string `envconfig:"FFMPEG_PATH" default:"ffmpeg"`
		YtdlpPath  string `envconfig:"YTDLP_PATH" default:"yt-dlp"`

		InfoTimeoutSeconds     int `envconfig:"INFO_TIMEOUT_SECONDS" default:"10"`
		DownloadTimeoutSeconds int `envconfig:"DOWNLOAD_TIMEOUT_SECONDS" default:"300"`

		DefaultDurationSeconds int    `envconfig:"DEFAULT_DURATION_SECONDS" default:"180"`
		DefaultCoverURL        string `envconfig:"DEFAULT_COVER_URL" default:"http://y.gtimg.cn/music/photo_new/T002R300x300M000004AfbeH1xUvTe.jpg"`

		// Shared secret for the device auth headers. Must match the firmware.
		DeviceSecretKey string `envconfig:"DEVICE_SECRET_KEY" default:"your-esp32-secret-key-2024"`
		// Timestamp freshness window for device auth. 0 disables the check,
		// which keeps a captured header set replayable (the historical
		// behavior); set a positive value to reject stale timestamps.
		AuthMaxClockSkewSeconds int `envconfig:"AUTH_MAX_CLOCK_SKEW_SECONDS" default:"0"`

		AdminAccessToken string `envconfig:"ADMIN_ACCESS_TOKEN" default:""`

		RateLimitPerSecond  int `envconfig:"RATE_LIMIT_PER_SECOND" default:"5"`
		RateLimitBurstLimit int `envconfig:"RATE_LIMIT_BURST_LIMIT" default:"10"`

		CircuitBreakerThreshold    int `envconfig:"CIRCUIT_BREAKER_THRESHOLD" default:"5"`       // Consecutive failures before circuit opens
		CircuitBreakerCooldownSecs int `envconfig:"CIRCUIT_BREAKER_COOLDOWN_SECS" default:"300"` // Seconds to wait before retrying
	}

	Bridge struct {
		Enabled    bool   `envconfig:"BRIDGE_ENABLED" default:"false"`
		ServerHost string `envconfig:"BRIDGE_SERVER_HOST" default:"https://lumentree.net"`
		DeviceID   string `envconfig:"BRIDGE_DEVICE_ID" default:""`

		MQTTBroker   string `envconfig:"BRIDGE_MQTT_BROKER" default:"tcp://127.0.0.1:1883"`
		MQTTUser     string `envconfig:"BRIDGE_MQTT_USER" default:""`
		MQTTPassword string `envconfig:"BRIDGE_MQTT_PASSWORD" default:""`
		MQTTClientID string `envconfig:"BRIDGE_MQTT_CLIENT_ID" default:"LumenTree"`

		RealtimePollSeconds   int `envconfig:"BRIDGE_REALTIME_POLL_SECONDS" default:"2"`
		TotalsPollSeconds     int `envconfig:"BRIDGE_TOTALS_POLL_SECONDS" default:"180"`
		SessionRefreshSeconds int `envconfig:"BRIDGE_SESSION_REFRESH_SECONDS" default:"3600"`
	}

	FeatureFlags struct {
		CacheCompression bool `envconfig:"FF_CACHE_COMPRESSION" default:"true"`
	}
}

// load loads the configuration from the environment.
func load() (Config, error) {
	err := godotenv.Load()
	if err != nil {
		log.Warnf("Error loading env config: %v", err)
	}

	cfg := Config{}
	err = envconfig.Process("", &cfg)
	return cfg, err
}

func mustLoad() Config {
	c, err := load()
	if err != nil {
		log.WithError(err).Warnf("Unable to load configuration")
	}

	return c
}

func Get() Config {
	return conf
}

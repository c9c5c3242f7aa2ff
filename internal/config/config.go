// Package config loads the engine configuration: compiled-in defaults, an
// optional .env file, then DISCOUNTD_* environment variables, in that order.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// envPrefix namespaces all environment variables, e.g. DISCOUNTD_SERVER_PORT.
const envPrefix = "discountd"

type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	API      APIConfig
	Scrape   ScrapeConfig
	Tracking TrackingConfig
	Image    ImageConfig
	Log      LogConfig
}

type ServerConfig struct {
	Bind string `envconfig:"SERVER_BIND"`
	Port int    `envconfig:"SERVER_PORT"`
}

type StorageConfig struct {
	DataDir string `envconfig:"DATA_DIR"`
}

type APIConfig struct {
	// Token guards the engine's HTTP surface; the outer routing layer is
	// the only expected caller.
	Token string `envconfig:"API_TOKEN"`
}

// ScrapeConfig overrides per-source pacing when set; zero values keep each
// source's built-in tuning.
type ScrapeConfig struct {
	CategoryDelay  time.Duration `envconfig:"SCRAPE_CATEGORY_DELAY"`
	ChunkDelay     time.Duration `envconfig:"SCRAPE_CHUNK_DELAY"`
	RetryBudget    int           `envconfig:"SCRAPE_RETRY_BUDGET"`
	RetryBackoff   time.Duration `envconfig:"SCRAPE_RETRY_BACKOFF"`
	RequestTimeout time.Duration `envconfig:"SCRAPE_REQUEST_TIMEOUT"`
	BatchSize      int           `envconfig:"SCRAPE_BATCH_SIZE"`
}

type TrackingConfig struct {
	// Capacity is the hard per-user tracking cap.
	Capacity int           `envconfig:"TRACKING_CAPACITY"`
	CacheTTL time.Duration `envconfig:"TRACKING_CACHE_TTL"`
}

type ImageConfig struct {
	// AllowedHosts is the relay allow-list; subdomains of each entry are
	// accepted.
	AllowedHosts []string `envconfig:"IMAGE_ALLOWED_HOSTS"`
	// MaxAge is the relay cache lifetime in seconds.
	MaxAge int `envconfig:"IMAGE_MAX_AGE"`
}

type LogConfig struct {
	Level string `envconfig:"LOG_LEVEL"`
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 4600,
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Scrape: ScrapeConfig{
			BatchSize: 50,
		},
		Tracking: TrackingConfig{
			Capacity: 10,
			CacheTTL: 30 * time.Second,
		},
		Image: ImageConfig{
			AllowedHosts: []string{
				"static.zara.net",
				"static.bershka.net",
				"static.pullandbear.net",
				"static.e-stradivarius.net",
				"static.oysho.net",
				"static.massimodutti.net",
				"static.lefties.com",
			},
			MaxAge: 86400,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration: defaults, then an optional .env file in the
// working directory, then DISCOUNTD_* environment variables.
func Load() (Config, error) {
	// A missing .env is the normal production case.
	_ = godotenv.Load()

	cfg := defaults()
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.API.Token == "" {
		return fmt.Errorf("missing required config: API token. Set it via DISCOUNTD_API_TOKEN")
	}
	if c.Tracking.Capacity <= 0 {
		return fmt.Errorf("tracking capacity must be positive, got %d", c.Tracking.Capacity)
	}
	return nil
}

func defaultDataDir() string {
	if dir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(dir, ".discountd")
	}
	return ".discountd"
}

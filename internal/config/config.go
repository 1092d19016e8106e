package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/grid"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DataRoot        string
	CatalogPath     string
	Variables       []string
	SourceExtension string
	GridResolution  float64
	ExtractionMode  grid.Mode
	ProgressEvery   int
	Workers         int
	ManifestPath    string // empty disables the manifest

	KafkaBrokers []string // empty disables completion events
	KafkaTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration

	// Mapbox geocoding configuration.
	MapboxToken       string
	MapboxEnabled     bool
	MapboxTimeout     time.Duration
	MapboxCacheSize   int
	MapboxMaxDistance float64 // meters
}

// Load reads configuration from environment variables, applying defaults
// where unset. A .env file in the working directory is loaded first if
// present; variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	mapboxTimeout, err := time.ParseDuration(sharedcfg.EnvOrDefault("MAPBOX_TIMEOUT", "5s"))
	if err != nil || mapboxTimeout <= 0 {
		return nil, errors.New("invalid MAPBOX_TIMEOUT")
	}

	resolution, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("GRID_RESOLUTION", "0.25"), 64)
	if err != nil || resolution <= 0 || resolution > 90 {
		return nil, errors.New("invalid GRID_RESOLUTION")
	}

	mode, err := grid.ParseMode(os.Getenv("EXTRACTION_MODE"))
	if err != nil {
		return nil, fmt.Errorf("invalid EXTRACTION_MODE: %w", err)
	}

	progressEvery, err := positiveInt("PROGRESS_EVERY", 1000)
	if err != nil {
		return nil, err
	}
	workers, err := positiveInt("WORKERS", 1)
	if err != nil {
		return nil, err
	}
	maxDistance, err := strconv.ParseFloat(sharedcfg.EnvOrDefault("MAPBOX_MAX_DISTANCE_M", "50000"), 64)
	if err != nil || maxDistance <= 0 {
		return nil, errors.New("invalid MAPBOX_MAX_DISTANCE_M")
	}

	variables := domain.DefaultVariableNames()
	if v := os.Getenv("ERA5_VARIABLES"); v != "" {
		variables = splitList(v)
	}
	if err := domain.ValidateVariables(variables); err != nil {
		return nil, fmt.Errorf("invalid ERA5_VARIABLES: %w", err)
	}

	var brokers []string
	if v := os.Getenv("KAFKA_BROKERS"); strings.TrimSpace(v) != "" {
		brokers = sharedcfg.ParseBrokers(v)
	}

	mapboxToken := os.Getenv("MAPBOX_TOKEN")
	mapboxEnabled := mapboxToken != ""
	if v := os.Getenv("MAPBOX_ENABLED"); v != "" {
		mapboxEnabled = v == "true"
	}

	cfg := &Config{
		DataRoot:        sharedcfg.EnvOrDefault("DATA_ROOT", "data/"),
		CatalogPath:     sharedcfg.EnvOrDefault("CATALOG_PATH", "data/simplemaps-worldcities-basic.csv"),
		Variables:       variables,
		SourceExtension: strings.TrimPrefix(sharedcfg.EnvOrDefault("SOURCE_EXTENSION", "nc"), "."),
		GridResolution:  resolution,
		ExtractionMode:  mode,
		ProgressEvery:   progressEvery,
		Workers:         workers,
		ManifestPath:    os.Getenv("MANIFEST_PATH"),

		KafkaBrokers: brokers,
		KafkaTopic:   sharedcfg.EnvOrDefault("KAFKA_TOPIC", "era5-periods-completed"),

		HTTPAddr:        sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		ShutdownTimeout: shutdownTimeout,

		MapboxToken:       mapboxToken,
		MapboxEnabled:     mapboxEnabled,
		MapboxTimeout:     mapboxTimeout,
		MapboxCacheSize:   parseMapboxCacheSize(),
		MapboxMaxDistance: maxDistance,
	}

	if cfg.DataRoot == "" {
		return nil, errors.New("DATA_ROOT is required")
	}
	if cfg.SourceExtension == "" {
		return nil, errors.New("SOURCE_EXTENSION is required")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return nil, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set")
	}
	if cfg.MapboxEnabled && cfg.MapboxToken == "" {
		return nil, errors.New("MAPBOX_ENABLED is true but MAPBOX_TOKEN is not set")
	}

	return cfg, nil
}

// KafkaEnabled reports whether period completion events are published.
func (c *Config) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func positiveInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseMapboxCacheSize() int {
	if s := os.Getenv("MAPBOX_CACHE_SIZE"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			return n
		}
	}
	return 1000
}

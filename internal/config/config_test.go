package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/grid"
)

const testMapboxToken = "pk.test-token"

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data/", cfg.DataRoot)
	assert.Equal(t, "data/simplemaps-worldcities-basic.csv", cfg.CatalogPath)
	assert.Equal(t, domain.DefaultVariableNames(), cfg.Variables)
	assert.Equal(t, "nc", cfg.SourceExtension)
	assert.InDelta(t, 0.25, cfg.GridResolution, 0)
	assert.Equal(t, grid.Interpolate, cfg.ExtractionMode)
	assert.Equal(t, 1000, cfg.ProgressEvery)
	assert.Equal(t, 1, cfg.Workers)
	assert.Empty(t, cfg.ManifestPath)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.False(t, cfg.KafkaEnabled())
	assert.Equal(t, "era5-periods-completed", cfg.KafkaTopic)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.MapboxEnabled)
	assert.Equal(t, 5*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 1000, cfg.MapboxCacheSize)
	assert.InDelta(t, 50_000, cfg.MapboxMaxDistance, 0)
}

func TestLoad_CustomEnv(t *testing.T) {
	t.Setenv("DATA_ROOT", "s3://era5-bucket/reanalysis/")
	t.Setenv("CATALOG_PATH", "/etc/era5/cities.csv")
	t.Setenv("ERA5_VARIABLES", "2m_temperature, total_precipitation")
	t.Setenv("SOURCE_EXTENSION", ".grib")
	t.Setenv("GRID_RESOLUTION", "0.5")
	t.Setenv("EXTRACTION_MODE", "nearest")
	t.Setenv("PROGRESS_EVERY", "250")
	t.Setenv("WORKERS", "4")
	t.Setenv("MANIFEST_PATH", "/var/lib/era5/manifest.db")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("KAFKA_TOPIC", "custom-topic")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "text")
	t.Setenv("SHUTDOWN_TIMEOUT", "30s")
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_TIMEOUT", "10s")
	t.Setenv("MAPBOX_CACHE_SIZE", "500")
	t.Setenv("MAPBOX_MAX_DISTANCE_M", "25000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "s3://era5-bucket/reanalysis/", cfg.DataRoot)
	assert.Equal(t, "/etc/era5/cities.csv", cfg.CatalogPath)
	assert.Equal(t, []string{"2m_temperature", "total_precipitation"}, cfg.Variables)
	assert.Equal(t, "grib", cfg.SourceExtension)
	assert.InDelta(t, 0.5, cfg.GridResolution, 0)
	assert.Equal(t, grid.Nearest, cfg.ExtractionMode)
	assert.Equal(t, 250, cfg.ProgressEvery)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, "/var/lib/era5/manifest.db", cfg.ManifestPath)
	assert.Equal(t, []string{"broker1:9092", "broker2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.KafkaEnabled())
	assert.Equal(t, "custom-topic", cfg.KafkaTopic)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.MapboxEnabled)
	assert.Equal(t, testMapboxToken, cfg.MapboxToken)
	assert.Equal(t, 10*time.Second, cfg.MapboxTimeout)
	assert.Equal(t, 500, cfg.MapboxCacheSize)
	assert.InDelta(t, 25_000, cfg.MapboxMaxDistance, 0)
}

func TestLoad_InvalidValuesNameTheKey(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"SHUTDOWN_TIMEOUT", "not-a-duration"},
		{"MAPBOX_TIMEOUT", "bad"},
		{"GRID_RESOLUTION", "zero"},
		{"GRID_RESOLUTION", "-0.25"},
		{"EXTRACTION_MODE", "cubic"},
		{"PROGRESS_EVERY", "0"},
		{"WORKERS", "many"},
		{"ERA5_VARIABLES", "2m_temperature,not_a_variable"},
		{"MAPBOX_MAX_DISTANCE_M", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoad_MapboxEnabledWithoutToken(t *testing.T) {
	t.Setenv("MAPBOX_ENABLED", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAPBOX_TOKEN")
}

func TestLoad_MapboxTokenImpliesEnabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.MapboxEnabled)
}

func TestLoad_MapboxExplicitlyDisabled(t *testing.T) {
	t.Setenv("MAPBOX_TOKEN", testMapboxToken)
	t.Setenv("MAPBOX_ENABLED", "false")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.MapboxEnabled)
}

func TestLoad_BlankBrokersDisableKafka(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "  ")
	cfg, err := Load()
	require.NoError(t, err)
	assert.False(t, cfg.KafkaEnabled())
}

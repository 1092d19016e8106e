package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/era5-city-etl/internal/adapter/kafka"
	"github.com/couchcryptid/era5-city-etl/internal/adapter/mapbox"
	"github.com/couchcryptid/era5-city-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/era5-city-etl/internal/adapter/sqlite"
	"github.com/couchcryptid/era5-city-etl/internal/catalog"
	"github.com/couchcryptid/era5-city-etl/internal/config"
	"github.com/couchcryptid/era5-city-etl/internal/naming"
	"github.com/couchcryptid/era5-city-etl/internal/observability"
	"github.com/couchcryptid/era5-city-etl/internal/retrieval"
	"github.com/couchcryptid/era5-city-etl/internal/storage"
)

// app carries what every subcommand needs once configuration is loaded.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *observability.Metrics
}

var (
	metricsOnce sync.Once
	metrics     *observability.Metrics
)

// processMetrics registers collectors once per process.
func processMetrics() *observability.Metrics {
	metricsOnce.Do(func() { metrics = observability.NewMetrics() })
	return metrics
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var dataRoot, catalogPath string

	root := &cobra.Command{
		Use:           "era5etl",
		Short:         "Extract and serve per-city ERA5 time series",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("data-root") {
				cfg.DataRoot = dataRoot
			}
			if cmd.Flags().Changed("catalog") {
				cfg.CatalogPath = catalogPath
			}
			a.cfg = cfg
			a.logger = observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
			a.metrics = processMetrics()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&dataRoot, "data-root", "", "storage root: local path or scheme://bucket/prefix/ (overrides DATA_ROOT)")
	root.PersistentFlags().StringVar(&catalogPath, "catalog", "", "city catalog CSV (overrides CATALOG_PATH)")

	root.AddCommand(
		newExtractCmd(a),
		newReadCmd(a),
		newVerifyCmd(a),
		newServeCmd(a),
	)
	return root
}

func (a *app) openStore(ctx context.Context) (storage.Store, error) {
	s, err := storage.New(ctx, a.cfg.DataRoot)
	if err != nil {
		return nil, err
	}
	a.logger.Debug("storage opened", "root", s.Root())
	return s, nil
}

func (a *app) loadCatalog() (*catalog.Catalog, error) {
	c, err := catalog.LoadFile(a.cfg.CatalogPath)
	if err != nil {
		return nil, err
	}
	a.logger.Info("catalog loaded", "path", a.cfg.CatalogPath, "locations", c.Len())
	return c, nil
}

// openManifest returns nil when no manifest is configured.
func (a *app) openManifest() (*sqlite.Manifest, error) {
	if a.cfg.ManifestPath == "" {
		return nil, nil
	}
	return sqlite.Open(a.cfg.ManifestPath)
}

// openNotifier returns nil when Kafka is not configured.
func (a *app) openNotifier() *kafka.Notifier {
	if !a.cfg.KafkaEnabled() {
		a.logger.Info("kafka notifications disabled")
		return nil
	}
	a.logger.Info("kafka notifications enabled", "brokers", a.cfg.KafkaBrokers, "topic", a.cfg.KafkaTopic)
	return kafka.NewNotifier(a.cfg, a.logger)
}

// newRetrieval wires the read path over store and cat.
func (a *app) newRetrieval(store storage.Store, cat *catalog.Catalog, opts ...retrieval.Option) *retrieval.Service {
	if a.cfg.MapboxEnabled {
		client := mapbox.NewClient(a.cfg.MapboxToken, a.cfg.MapboxTimeout, a.metrics, a.logger)
		geocoder := mapbox.NewCachedGeocoder(client, a.cfg.MapboxCacheSize, a.metrics)
		opts = append(opts, retrieval.WithGeocoder(geocoder, a.cfg.MapboxMaxDistance))
		a.metrics.GeocodeEnabled.Set(1)
		a.logger.Info("mapbox geocoding enabled", "cache_size", a.cfg.MapboxCacheSize, "timeout", a.cfg.MapboxTimeout)
	} else {
		a.logger.Info("mapbox geocoding disabled")
	}
	resolver := naming.NewResolver(store, a.cfg.SourceExtension)
	return retrieval.NewService(cat, resolver, netcdf.NewCodec(store), a.logger, opts...)
}

package main

import (
	"context"
	"fmt"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/couchcryptid/era5-city-etl/internal/adapter/netcdf"
	"github.com/couchcryptid/era5-city-etl/internal/domain"
	"github.com/couchcryptid/era5-city-etl/internal/grid"
	"github.com/couchcryptid/era5-city-etl/internal/naming"
	"github.com/couchcryptid/era5-city-etl/internal/pipeline"
)

func newExtractCmd(a *app) *cobra.Command {
	var (
		year    int
		months  string
		workers int
		mode    string
	)
	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract per-city series for the given months",
		Example: `  era5etl extract --year 2017 --months 1-12 --data-root data/
  era5etl extract --year 2017 --months 6 --data-root s3://era5-bucket/reanalysis/`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			first, last, err := parseMonths(months)
			if err != nil {
				return err
			}
			periods, err := domain.PeriodsInRange(year, first, last)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") {
				a.cfg.Workers = workers
			}
			if cmd.Flags().Changed("mode") {
				if a.cfg.ExtractionMode, err = grid.ParseMode(mode); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.runExtract(ctx, cmd, periods)
		},
	}
	cmd.Flags().IntVar(&year, "year", 0, "year to process")
	cmd.Flags().StringVar(&months, "months", "1-12", "month or inclusive month range, e.g. 6 or 1-12")
	cmd.Flags().IntVar(&workers, "workers", 1, "periods processed concurrently (overrides WORKERS)")
	cmd.Flags().StringVar(&mode, "mode", "", "interpolate or nearest (overrides EXTRACTION_MODE)")
	_ = cmd.MarkFlagRequired("year")
	return cmd
}

func (a *app) runExtract(ctx context.Context, cmd *cobra.Command, periods []domain.Period) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	cat, err := a.loadCatalog()
	if err != nil {
		return err
	}

	engine := pipeline.NewEngine(
		naming.NewResolver(store, a.cfg.SourceExtension),
		netcdf.NewCodec(store),
		store,
		cat.Locations(),
		pipeline.Options{
			Variables:     a.cfg.Variables,
			Mode:          a.cfg.ExtractionMode,
			Resolution:    a.cfg.GridResolution,
			ProgressEvery: a.cfg.ProgressEvery,
			OnProgress: func(p pipeline.Progress) {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s %d/%d\n", p.Period, p.Count, p.Total)
			},
		},
		a.logger,
		a.metrics,
	)

	var recorder pipeline.Recorder
	manifest, err := a.openManifest()
	if err != nil {
		return err
	}
	if manifest != nil {
		defer manifest.Close()
		recorder = manifest
	}

	var notifier pipeline.Notifier
	if n := a.openNotifier(); n != nil {
		defer n.Close()
		notifier = n
	}

	a.logger.Info("extract starting",
		"periods", len(periods),
		"variables", a.cfg.Variables,
		"mode", a.cfg.ExtractionMode.String(),
		"workers", a.cfg.Workers,
	)
	results, runErr := pipeline.NewRunner(engine, recorder, notifier, a.cfg.Workers, a.logger, a.metrics).Run(ctx, periods)

	out := cmd.OutOrStdout()
	for _, r := range results {
		fmt.Fprintf(out, "%s\t%d artifacts\t%d skipped\t%d empty selections\n",
			r.Period, r.Written(), r.Skipped, r.EmptySelections)
	}
	return runErr
}

// parseMonths accepts "6" or "1-12".
func parseMonths(s string) (first, last int, err error) {
	lo, hi, isRange := strings.Cut(strings.TrimSpace(s), "-")
	if first, err = strconv.Atoi(strings.TrimSpace(lo)); err != nil {
		return 0, 0, fmt.Errorf("invalid --months %q", s)
	}
	last = first
	if isRange {
		if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
			return 0, 0, fmt.Errorf("invalid --months %q", s)
		}
	}
	if first < 1 || last > 12 || first > last {
		return 0, 0, fmt.Errorf("invalid --months %q: want 1-12", s)
	}
	return first, last, nil
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	httpadapter "github.com/couchcryptid/era5-city-etl/internal/adapter/http"
	"github.com/couchcryptid/era5-city-etl/internal/retrieval"
	"github.com/couchcryptid/era5-city-etl/internal/storage"
)

// storePinger reports whether the storage root answers.
type storePinger struct{ store storage.Store }

func (p storePinger) Ping(ctx context.Context) error {
	_, err := p.store.ContainerExists(ctx, "processed")
	return err
}

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve stored series over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			store, err := a.openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()
			cat, err := a.loadCatalog()
			if err != nil {
				return err
			}

			opts := []retrieval.Option{retrieval.WithReadinessCheck(storePinger{store: store})}
			manifest, err := a.openManifest()
			if err != nil {
				return err
			}
			if manifest != nil {
				defer manifest.Close()
				opts = append(opts, retrieval.WithReadinessCheck(manifest))
			}
			svc := a.newRetrieval(store, cat, opts...)

			srv := httpadapter.NewServer(a.cfg.HTTPAddr, svc, svc, a.metrics, a.logger)
			errCh := make(chan error, 1)
			go func() {
				if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case <-ctx.Done():
			case err := <-errCh:
				if err != nil {
					return err
				}
			}
			a.logger.Info("shutting down")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				a.logger.Error("http server shutdown error", "error", err)
			}
			a.logger.Info("shutdown complete")
			return nil
		},
	}
}

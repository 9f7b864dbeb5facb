package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/spf13/cobra"

	"zipfetch/internal/api"
	"zipfetch/internal/app"
	"zipfetch/internal/domain"
	"zipfetch/internal/infra/config"
	"zipfetch/internal/infra/logger"
	"zipfetch/internal/pipeline"
	"zipfetch/internal/queue"
	"zipfetch/internal/store"
)

// pipelineRunner builds a pipeline per run so the progress callback can
// feed that run's live byte counters, which the API reports.
type pipelineRunner struct {
	cfg   *config.Config
	log   logger.Log
	store pipeline.Store
}

func (r *pipelineRunner) Run(ctx context.Context, run *domain.Run) error {
	p := pipeline.New(r.cfg, r.log, r.store, func(written, total int64) {
		run.BytesWritten.Store(written)
		run.TotalBytes = total
	}, nil)
	return p.Run(ctx, run)
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API with a persistent run queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadApp()
			if err != nil {
				return err
			}

			st, err := store.New(cfg.Store)
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer st.Close()

			appCtx := app.NewContext(cfg, log)
			appCtx.Store = st
			appCtx.Runner = &pipelineRunner{cfg: cfg, log: log, store: st}

			// Unfinished runs from a previous process are re-queued; their
			// partial downloads resume from disk.
			mgr := queue.NewManager(appCtx, true)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			go mgr.Start(ctx)

			e := echo.New()
			api.RegisterRoutes(e, appCtx, mgr)

			srv := &http.Server{Addr: ":" + cfg.Port, Handler: e}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("Shutdown signal received, stopping server")

				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer shutdownCancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Error("Server shutdown error: %v", err)
				}

				// Cancel the queue loop; the active run is persisted as
				// failed and resumes on next start.
				cancel()
			}()

			log.Info("Listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("server error: %w", err)
			}

			return nil
		},
	}
}

package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/segmentio/ksuid"
	"github.com/spf13/cobra"

	"zipfetch/internal/domain"
	"zipfetch/internal/download"
	"zipfetch/internal/pipeline"
)

func newFetchCmd() *cobra.Command {
	var (
		chunkSize  int
		maxRetries int
		retryDelay time.Duration
		timeout    time.Duration
		pointerURL string
		maxDepth   int
		noVerify   bool
		noExtract  bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <url> [destination]",
		Short: "Download a file, verify its checksum, and unpack it",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadApp()
			if err != nil {
				return err
			}

			// Flags override the config file when set.
			if cmd.Flags().Changed("chunk-size") {
				cfg.Download.ChunkSize = chunkSize
			}
			if cmd.Flags().Changed("max-retries") {
				cfg.Download.MaxRetries = maxRetries
			}
			if cmd.Flags().Changed("retry-delay") {
				cfg.Download.RetryDelay = retryDelay
			}
			if cmd.Flags().Changed("timeout") {
				cfg.Download.Timeout = timeout
			}
			if cmd.Flags().Changed("max-depth") {
				cfg.Extract.MaxDepth = maxDepth
			}
			if noVerify {
				cfg.Verify.Enabled = false
			}

			rawURL := args[0]
			destination, err := resolveDestination(cfg.Download.OutDir, rawURL, args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			tracker := download.NewTracker()
			p := pipeline.New(cfg, log, nil, tracker.Observe, nil)

			trackCtx, stopTracking := context.WithCancel(ctx)
			go tracker.Start(trackCtx)

			run := &domain.Run{
				ID:          ksuid.New().String(),
				URL:         rawURL,
				Destination: destination,
				PointerURL:  pointerURL,
				Stage:       domain.StageIdle,
				Extract:     !noExtract,
				StartedAt:   time.Now(),
			}

			log.Info("Starting fetch %s: %s -> %s", run.ID, run.URL, run.Destination)

			err = p.Run(ctx, run)
			stopTracking()
			tracker.Finish()

			if err != nil {
				return fmt.Errorf("%s: %w", pipeline.FailureClass(err), err)
			}

			log.Info("Fetch %s finished successfully", run.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&chunkSize, "chunk-size", download.DefaultChunkSize, "read chunk size in bytes")
	cmd.Flags().IntVar(&maxRetries, "max-retries", 5, "retries after the initial attempt")
	cmd.Flags().DurationVar(&retryDelay, "retry-delay", 60*time.Second, "wait between retries")
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "per-request HTTP timeout")
	cmd.Flags().StringVar(&pointerURL, "pointer-url", "", "checksum pointer URL (default: derived from the download URL)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 1, "nested container extraction depth")
	cmd.Flags().BoolVar(&noVerify, "no-verify", false, "skip checksum verification")
	cmd.Flags().BoolVar(&noExtract, "no-extract", false, "skip container extraction")

	return cmd
}

// resolveDestination uses the explicit destination argument when given,
// otherwise drops the URL's file name into the configured output directory.
func resolveDestination(outDir, rawURL string, args []string) (string, error) {
	if len(args) == 2 {
		return args[1], nil
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	name := filepath.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("cannot derive a file name from %q, pass a destination", rawURL)
	}

	return filepath.Join(outDir, name), nil
}

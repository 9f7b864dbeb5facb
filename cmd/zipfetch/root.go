package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"zipfetch/internal/domain"
	"zipfetch/internal/infra/config"
	"zipfetch/internal/infra/logger"
)

// Exit codes
const (
	ExitSuccess          = 0
	ExitGeneralError     = 1
	ExitInvalidArgs      = 2
	ExitRetriesExhausted = 3
	ExitIntegrityFailed  = 4
	ExitExtractionFailed = 5
)

var cfgPath string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "zipfetch",
		Short:         "Download, verify, and unpack remote archives",
		Long:          "zipfetch downloads large files over HTTP with resume support,\nverifies them against sha256 pointer files, and recursively unpacks\nzip containers.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to config file (default: config.yaml if present)")

	root.AddCommand(newFetchCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newExtractCmd())
	root.AddCommand(newServeCmd())

	return root
}

// Execute runs the CLI and maps failures to process exit codes so scripts
// can tell a flaky network from a corrupted artifact.
func Execute(args []string) int {
	root := newRootCmd()
	root.SetArgs(args)

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return ExitSuccess
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, domain.ErrRetriesExhausted):
		return ExitRetriesExhausted
	case errors.Is(err, domain.ErrIntegrityMismatch), errors.Is(err, domain.ErrPointerFetch):
		return ExitIntegrityFailed
	case errors.Is(err, domain.ErrBadArchive), errors.Is(err, domain.ErrRecursionLimit):
		return ExitExtractionFailed
	default:
		return ExitGeneralError
	}
}

// loadApp builds the config and logger every command starts from.
func loadApp() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, fmt.Errorf("config error: %w", err)
	}

	log, err := logger.New(cfg.Log.Path, logger.ParseLevel(cfg.Log.Level), cfg.Log.IncludeStdout)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return cfg, log, nil
}

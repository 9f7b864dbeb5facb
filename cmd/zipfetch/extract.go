package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"zipfetch/internal/extraction"
)

func newExtractCmd() *cobra.Command {
	var (
		maxDepth int
		workers  int
	)

	cmd := &cobra.Command{
		Use:   "extract <archive> [destination]",
		Short: "Recursively unpack a zip archive",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadApp()
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("max-depth") {
				cfg.Extract.MaxDepth = maxDepth
			}
			if cmd.Flags().Changed("workers") {
				cfg.Extract.Workers = workers
			}

			archive := args[0]

			isContainer, err := extraction.IsContainer(archive)
			if err != nil {
				return err
			}
			if !isContainer {
				return fmt.Errorf("%s is not a zip archive", archive)
			}

			extractTo := filepath.Dir(archive)
			if len(args) == 2 {
				extractTo = args[1]
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			extractor := extraction.NewExtractor(cfg.Extract.Workers, log, nil)

			if err := extractor.ExtractArchive(ctx, archive, extractTo, cfg.Extract.MaxDepth); err != nil {
				return err
			}

			fmt.Printf("Extracted %s -> %s\n", archive, extractTo)
			return nil
		},
	}

	cmd.Flags().IntVar(&maxDepth, "max-depth", 1, "nested container extraction depth")
	cmd.Flags().IntVar(&workers, "workers", 4, "concurrent workers for nested containers")

	return cmd
}

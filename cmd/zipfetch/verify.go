package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"zipfetch/internal/checksum"
	"zipfetch/internal/domain"
)

func newVerifyCmd() *cobra.Command {
	var pointerURL string

	cmd := &cobra.Command{
		Use:   "verify <file> [source-url]",
		Short: "Check a local file against its sha256 pointer",
		Long:  "Fetches the pointer file, extracts the expected sha256 digest, and\ncompares it against the file on disk. The pointer URL is derived from\nthe source URL unless --pointer-url is given.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadApp()
			if err != nil {
				return err
			}

			filePath := args[0]

			target := pointerURL
			if target == "" {
				if len(args) < 2 {
					return fmt.Errorf("pass a source URL or --pointer-url")
				}
				target, err = checksum.DerivePointerURL(args[1])
				if err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			verifier := checksum.NewVerifier(cfg.Verify.PointerTimeout, log)

			match, err := verifier.Verify(ctx, filePath, target)
			if err != nil {
				return err
			}
			if !match {
				return fmt.Errorf("%s: %w", filePath, domain.ErrIntegrityMismatch)
			}

			fmt.Printf("OK %s\n", filePath)
			return nil
		},
	}

	cmd.Flags().StringVar(&pointerURL, "pointer-url", "", "checksum pointer URL")

	return cmd
}

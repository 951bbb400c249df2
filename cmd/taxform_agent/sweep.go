package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonathan/taxform-extractor/internal/sessions"
)

func newSweepCmd() *cobra.Command {
	var root string

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Remove expired session uploads once",
		Long:  `Delete every session directory under the upload directory that is older than the session max age, then exit. With --root, sweep that directory instead.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			store, err := sessions.NewStore(cfg.UploadDir, cfg.SessionMaxAge, sessions.WithLogger(logger))
			if err != nil {
				return err
			}
			var stats sessions.SweepStats
			if root != "" {
				stats, err = store.SweepRoot(cmd.Context(), root, cfg.SessionMaxAge)
			} else {
				stats, err = store.Sweep(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("sweep failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Scanned %d sessions, removed %d, failed %d\n", stats.Scanned, stats.Removed, stats.Failed) //nolint:errcheck
			return nil
		},
	}

	cmd.Flags().StringVar(&root, "root", "", "Sweep this directory instead of the upload directory")
	return cmd
}

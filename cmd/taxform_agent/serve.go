package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jonathan/taxform-extractor/internal/server"
	"github.com/jonathan/taxform-extractor/internal/server/ratelimit"
	"github.com/jonathan/taxform-extractor/internal/sessions"
)

func newServeCmd() *cobra.Command {
	var secureCookies bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long:  `Start an HTTP server for uploading W-9 PDFs and extracting their fields. Expired session uploads are swept in the background.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateCredentials(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			logger.Info("serve.config", "config", cfg.String())

			store, err := sessions.NewStore(cfg.UploadDir, cfg.SessionMaxAge, sessions.WithLogger(logger))
			if err != nil {
				return err
			}
			analyzer, err := newAnalyzer(cfg, logger)
			if err != nil {
				return err
			}
			extractor, err := newExtractor(cfg, analyzer, logger)
			if err != nil {
				return err
			}

			srv, err := server.New(server.Config{
				Addr:           cfg.Address(),
				MaxUploadBytes: cfg.MaxUploadBytes,
				AllowedOrigins: cfg.AllowedOrigins,
				RateLimit:      ratelimit.NewConfig(cfg.RateLimit.Enabled, cfg.RateLimit.PerMinute, cfg.RateLimit.Whitelist, cfg.RateLimit.Blacklist),
				SecureCookies:  secureCookies,
				Logger:         logger,
			}, store, extractor)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.Run(gctx)
			})
			g.Go(func() error {
				sessions.NewSweeper(store, cfg.SweepInterval).Run(gctx)
				return nil
			})
			return g.Wait()
		},
	}

	cmd.Flags().BoolVar(&secureCookies, "secure-cookies", false, "Mark the session cookie Secure (serve behind TLS)")
	return cmd
}

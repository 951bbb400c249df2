// Package main provides the entry point for the tax-form extraction service.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jonathan/taxform-extractor/internal/config"
	"github.com/jonathan/taxform-extractor/internal/observability"
)

var configPath string

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "taxform_agent",
		Short:         "W-9 Tax Form Extraction Service",
		Long:          "taxform_agent extracts the fields of uploaded W-9 forms by combining document layout analysis with a language model, over HTTP or from the command line.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to a config file (default ./taxform.{yaml,json,toml} when present)")
	config.RegisterFlags(rootCmd.PersistentFlags())

	rootCmd.AddCommand(newServeCmd(), newExtractCmd(), newSweepCmd())
	return rootCmd
}

// loadConfig resolves the configuration for cmd and builds the logger.
func loadConfig(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(cmd.Flags(), configPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

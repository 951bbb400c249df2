package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jonathan/taxform-extractor/internal/auth"
	"github.com/jonathan/taxform-extractor/internal/config"
	"github.com/jonathan/taxform-extractor/internal/docanalysis"
	"github.com/jonathan/taxform-extractor/internal/extraction"
	"github.com/jonathan/taxform-extractor/internal/llm"
	"github.com/jonathan/taxform-extractor/internal/normalize"
)

// newAnalyzer builds the configured layout analyzer.
func newAnalyzer(cfg *config.Config, logger *slog.Logger) (docanalysis.Analyzer, error) {
	if cfg.Analyzer.Provider == docanalysis.ProviderLocal {
		return docanalysis.NewLocalAnalyzer(logger), nil
	}

	azureCfg := docanalysis.AzureConfig{
		Endpoint:   cfg.Analyzer.Endpoint,
		APIVersion: cfg.Analyzer.APIVersion,
		ModelID:    cfg.Analyzer.ModelID,
		APIKey:     cfg.Analyzer.APIKey,
	}
	if tokenCfg, ok := cfg.AnalyzerTokenConfig(); ok {
		tokens, err := auth.NewClientCredentials(tokenCfg, logger)
		if err != nil {
			return nil, fmt.Errorf("document analysis credentials: %w", err)
		}
		azureCfg.Tokens = tokens
	}
	return docanalysis.NewAzureClient(azureCfg, logger)
}

// newExtractor wires the analyzer, token source, model client and
// normalizer into an Extractor.
func newExtractor(cfg *config.Config, analyzer docanalysis.Analyzer, logger *slog.Logger) (*extraction.Extractor, error) {
	llmCfg := cfg.LLMClientConfig()

	opts := extraction.Options{
		Analyzer: analyzer,
		NewClient: func(ctx context.Context, token string) (llm.Client, error) {
			return llm.NewClient(ctx, llmCfg, token, logger)
		},
		Normalizer: normalize.NewNormalizer(cfg.KeepExtras, logger),
		Logger:     logger,
	}
	if llmCfg.NeedsToken() {
		tokens, err := auth.NewClientCredentials(cfg.LLMTokenConfig(), logger)
		if err != nil {
			return nil, fmt.Errorf("llm credentials: %w", err)
		}
		opts.Tokens = tokens
	}
	return extraction.New(opts)
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/jonathan/taxform-extractor/internal/docanalysis"
	"github.com/jonathan/taxform-extractor/internal/extraction"
	"github.com/jonathan/taxform-extractor/internal/geometry"
	"github.com/jonathan/taxform-extractor/internal/observability"
	"github.com/jonathan/taxform-extractor/internal/types"
)

func newExtractCmd() *cobra.Command {
	var (
		outPath string
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "extract <file.pdf>...",
		Short: "Extract W-9 fields from local PDF files",
		Long: `Run the extraction pipeline over local PDF files and write the batch as JSON:
{"results": [...], "skipped": [...]}.

Documents are processed in the order given. A failing document becomes an
error entry and never stops the batch.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sources, err := localSources(args)
			if err != nil {
				return err
			}

			cfg, logger, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if err := cfg.ValidateCredentials(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			analyzer, err := newAnalyzer(cfg, logger)
			if err != nil {
				return err
			}

			var printer *observability.Printer
			if verbose {
				printer = observability.NewPrinter(cmd.ErrOrStderr())
				analyzer = &layoutPrinter{Analyzer: analyzer, printer: printer}
			}

			extractor, err := newExtractor(cfg, analyzer, logger)
			if err != nil {
				return err
			}

			var onEvent extraction.EventCallback
			if printer != nil {
				onEvent = func(ev extraction.Event) {
					if ev.Result != nil {
						printer.PrintResult(*ev.Result)
					}
				}
			}

			batch, err := extractor.Extract(cmd.Context(), sources, onEvent)
			if err != nil {
				return fmt.Errorf("extraction failed: %w", err)
			}
			if printer != nil {
				printer.PrintSkipped(batch.Skipped)
				printer.PrintSummary(batch.Results, batch.Skipped)
			}

			return writeBatch(cmd.OutOrStdout(), outPath, batch)
		},
	}

	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Write the JSON batch to this file instead of stdout")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print the analyzed layout and each result to stderr")
	return cmd
}

// localSources checks that every argument names a readable regular file.
func localSources(paths []string) ([]extraction.Source, error) {
	sources := make([]extraction.Source, 0, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("input file: %w", err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("input file %s is a directory", p)
		}
		sources = append(sources, extraction.Source{Path: abs, Filename: filepath.Base(abs)})
	}
	return sources, nil
}

func writeBatch(stdout io.Writer, outPath string, batch *extraction.Batch) error {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	data = append(data, '\n')

	if outPath == "" {
		_, err := stdout.Write(data)
		return err
	}
	if dir := filepath.Dir(outPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(outPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	return nil
}

// layoutPrinter prints the first page of every analyzed document.
type layoutPrinter struct {
	docanalysis.Analyzer
	printer *observability.Printer

	mu sync.Mutex
	n  int
}

func (a *layoutPrinter) Analyze(ctx context.Context, data []byte) (*types.Document, error) {
	doc, err := a.Analyzer.Analyze(ctx, data)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.n++
	label := fmt.Sprintf("document %d", a.n)
	a.mu.Unlock()

	if page, ok := doc.FirstPage(); ok {
		a.printer.PrintLayout(label, page, geometry.Associate(page.SelectionMarks, page.Lines))
	}
	return doc, nil
}

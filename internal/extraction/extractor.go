// Package extraction runs the per-document extraction pipeline: layout
// analysis, checkbox association, model call and schema normalization.
package extraction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/jonathan/taxform-extractor/internal/auth"
	"github.com/jonathan/taxform-extractor/internal/docanalysis"
	"github.com/jonathan/taxform-extractor/internal/geometry"
	"github.com/jonathan/taxform-extractor/internal/llm"
	"github.com/jonathan/taxform-extractor/internal/normalize"
	"github.com/jonathan/taxform-extractor/internal/prompts"
	"github.com/jonathan/taxform-extractor/internal/types"
)

// Source is a stored document to extract.
type Source struct {
	Path     string
	Filename string
}

// Batch is the outcome of one extraction request. Results keep input order;
// skipped documents never appear in Results.
type Batch struct {
	Results []types.ExtractionResult `json:"results"`
	Skipped []types.Skip             `json:"skipped"`
}

// Event reports the outcome of one document while a batch runs.
// Exactly one of Result and Skip is set.
type Event struct {
	Index  int                     `json:"index"`
	Total  int                     `json:"total"`
	Result *types.ExtractionResult `json:"result,omitempty"`
	Skip   *types.Skip             `json:"skip,omitempty"`
}

// EventCallback is called after each document
type EventCallback func(event Event)

// ClientFactory builds a model client for one batch. token is empty when no
// TokenSource is configured.
type ClientFactory func(ctx context.Context, token string) (llm.Client, error)

// Options holds the collaborators of an Extractor
type Options struct {
	Analyzer   docanalysis.Analyzer
	Tokens     auth.TokenSource
	NewClient  ClientFactory
	Normalizer *normalize.Normalizer
	Logger     *slog.Logger
}

// Extractor turns stored PDFs into validated form records.
type Extractor struct {
	analyzer   docanalysis.Analyzer
	tokens     auth.TokenSource
	newClient  ClientFactory
	normalizer *normalize.Normalizer
	logger     *slog.Logger

	systemPrompt string
	userTemplate string
}

// New creates an Extractor.
func New(opts Options) (*Extractor, error) {
	if opts.Analyzer == nil {
		return nil, fmt.Errorf("analyzer is required")
	}
	if opts.NewClient == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Normalizer == nil {
		opts.Normalizer = normalize.NewNormalizer(false, opts.Logger)
	}

	system, err := prompts.Get(prompts.ExtractionFile, prompts.KeySystem)
	if err != nil {
		return nil, err
	}
	user, err := prompts.Get(prompts.ExtractionFile, prompts.KeyExtractW9)
	if err != nil {
		return nil, err
	}

	return &Extractor{
		analyzer:     opts.Analyzer,
		tokens:       opts.Tokens,
		newClient:    opts.NewClient,
		normalizer:   opts.Normalizer,
		logger:       opts.Logger,
		systemPrompt: system,
		userTemplate: user,
	}, nil
}

// Extract processes sources one at a time. A failing document becomes an
// error result or a skip and never stops the batch; only credential and
// client setup failures, or cancellation of ctx, return an error.
func (e *Extractor) Extract(ctx context.Context, sources []Source, onEvent EventCallback) (*Batch, error) {
	batch := &Batch{
		Results: make([]types.ExtractionResult, 0, len(sources)),
		Skipped: make([]types.Skip, 0),
	}

	var token string
	if e.tokens != nil {
		var err error
		token, err = e.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("obtain access token: %w", err)
		}
	}

	client, err := e.newClient(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("create llm client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil {
			e.logger.Warn("extract.client.close_error", "error", err)
		}
	}()

	start := time.Now()
	e.logger.Info("extract.batch.start", "files", len(sources))

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			e.logger.Warn("extract.batch.cancelled", "processed", i, "files", len(sources))
			return batch, err
		}

		result, skip := e.processFile(ctx, client, src)
		event := Event{Index: i, Total: len(sources)}
		if skip != nil {
			batch.Skipped = append(batch.Skipped, *skip)
			event.Skip = skip
		} else {
			batch.Results = append(batch.Results, *result)
			event.Result = result
		}
		if onEvent != nil {
			onEvent(event)
		}
	}

	e.logger.Info("extract.batch.done",
		"files", len(sources),
		"results", len(batch.Results),
		"skipped", len(batch.Skipped),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return batch, nil
}

// processFile runs the pipeline for one document inside its own failure
// boundary.
func (e *Extractor) processFile(ctx context.Context, client llm.Client, src Source) (result *types.ExtractionResult, skip *types.Skip) {
	start := time.Now()
	log := e.logger.With("file", src.Filename)

	defer func() {
		if r := recover(); r != nil {
			log.Error("extract.file.panic", "panic", r)
			result, skip = errorResult(src, fmt.Errorf("internal error: %v", r)), nil
		}
	}()

	record, err := e.extractRecord(ctx, client, src)

	var noPages *noPagesError
	var validationErr *normalize.ValidationError
	switch {
	case errors.As(err, &noPages):
		log.Warn("extract.file.skipped", "reason", types.SkipNoPages)
		return nil, &types.Skip{File: src.Path, Filename: src.Filename, Reason: types.SkipNoPages}
	case errors.As(err, &validationErr):
		log.Warn("extract.file.skipped", "reason", types.SkipValidationFailed, "error", err)
		return nil, &types.Skip{
			File:     src.Path,
			Filename: src.Filename,
			Reason:   types.SkipValidationFailed,
			Detail:   validationErr.Error(),
		}
	case err != nil:
		log.Error("extract.file.error", "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return errorResult(src, err), nil
	}

	log.Info("extract.file.done", "elapsed_ms", time.Since(start).Milliseconds())
	return &types.ExtractionResult{File: src.Path, Filename: src.Filename, Record: record}, nil
}

func (e *Extractor) extractRecord(ctx context.Context, client llm.Client, src Source) (*types.FormRecord, error) {
	data, err := os.ReadFile(src.Path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	doc, err := e.analyzer.Analyze(ctx, data)
	if err != nil {
		return nil, err
	}
	page, ok := doc.FirstPage()
	if !ok {
		return nil, &noPagesError{}
	}

	response, err := client.Invoke(ctx, []llm.Message{
		{Role: llm.RoleSystem, Content: e.systemPrompt},
		{Role: llm.RoleUser, Content: e.BuildPrompt(page)},
	})
	if err != nil {
		return nil, err
	}

	raw, err := normalize.ParseRaw(response)
	if err != nil {
		return nil, err
	}
	return e.normalizer.Normalize(raw)
}

// BuildPrompt renders the user prompt for one page: its line contents and
// the checkbox states associated with their nearest labels.
func (e *Extractor) BuildPrompt(page *types.Page) string {
	lines := make([]string, 0, len(page.Lines))
	for _, l := range page.Lines {
		lines = append(lines, l.Content)
	}
	checkboxes := geometry.RenderCheckboxes(geometry.Associate(page.SelectionMarks, page.Lines))

	return prompts.Format(e.userTemplate, map[string]string{
		"ExtractedText": strings.Join(lines, "\n"),
		"CheckboxText":  checkboxes,
	})
}

func errorResult(src Source, err error) *types.ExtractionResult {
	return &types.ExtractionResult{File: src.Path, Filename: src.Filename, Error: err.Error()}
}

type noPagesError struct{}

func (*noPagesError) Error() string { return "document has no pages" }

// Package observability builds the process logger and formats extraction
// output for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/taxform-extractor/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, truncate(line, boxWidth-4))
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

// PrintLayout outputs a summary of the analyzed first page and its
// checkbox associations.
func (p *Printer) PrintLayout(filename string, page *types.Page, assocs []types.CheckboxAssociation) {
	if page == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Lines:      %d\n", len(page.Lines)))
	sb.WriteString(fmt.Sprintf("Checkboxes: %d\n", len(page.SelectionMarks)))

	if len(page.Lines) > 0 {
		sb.WriteString("\n")
		count := min(len(page.Lines), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  %s\n", page.Lines[i].Content))
		}
		if len(page.Lines) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(page.Lines)-maxItemsToShow))
		}
	}

	var selected []string
	for _, a := range assocs {
		if a.State == types.StateSelected {
			selected = append(selected, a.Label)
		}
	}
	if len(selected) > 0 {
		sb.WriteString("\nSelected:\n")
		for _, label := range selected {
			sb.WriteString(fmt.Sprintf("  ☒ %s\n", label))
		}
	}

	p.printBox("LAYOUT: "+filename, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintResult outputs one extraction result: the populated fields of the
// record, or its error.
func (p *Printer) PrintResult(result types.ExtractionResult) {
	if result.Failed() {
		p.printBox("FAILED: "+result.Filename, "⚠ "+result.Error)
		return
	}

	var sb strings.Builder
	for _, key := range types.FormFieldKeys {
		v, ok := result.Record.Get(key)
		if !ok {
			continue
		}
		if key == types.FieldUserSigned && v == "" {
			v = "(not signed)"
		}
		sb.WriteString(fmt.Sprintf("%-14s %s\n", key+":", v))
	}
	if len(result.Record.Extras) > 0 {
		sb.WriteString(fmt.Sprintf("\n+ %d extra fields\n", len(result.Record.Extras)))
	}
	if sb.Len() == 0 {
		sb.WriteString("(no fields extracted)")
	}

	p.printBox("EXTRACTED: "+result.Filename, strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSkipped outputs the documents left out of the results.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintSkipped(skips []types.Skip) {
	if len(skips) == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO DOCUMENTS SKIPPED")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Skipped %d documents:\n\n", len(skips)))
	for i, s := range skips {
		sb.WriteString(fmt.Sprintf("⚠ %s (%s)\n", s.Filename, s.Reason))
		if s.Detail != "" {
			sb.WriteString(fmt.Sprintf("  %s\n", s.Detail))
		}
		if i < len(skips)-1 {
			sb.WriteString("\n")
		}
	}

	p.printBox("SKIPPED DOCUMENTS", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintSummary outputs the batch totals.
func (p *Printer) PrintSummary(results []types.ExtractionResult, skips []types.Skip) {
	failed := 0
	for _, r := range results {
		if r.Failed() {
			failed++
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Documents: %d\n", len(results)+len(skips)))
	sb.WriteString(fmt.Sprintf("Extracted: %d\n", len(results)-failed))
	sb.WriteString(fmt.Sprintf("Failed:    %d\n", failed))
	sb.WriteString(fmt.Sprintf("Skipped:   %d", len(skips)))

	p.printBox("BATCH SUMMARY", sb.String())
}

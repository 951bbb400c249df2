package docanalysis

import (
	"context"
	"testing"

	"github.com/ledongthuc/pdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/taxform-extractor/internal/geometry"
	"github.com/jonathan/taxform-extractor/internal/testpdf"
	"github.com/jonathan/taxform-extractor/internal/types"
)

func glyphs(s string, x, y, size float64) []pdf.Text {
	out := make([]pdf.Text, 0, len(s))
	for _, r := range s {
		out = append(out, pdf.Text{S: string(r), X: x, Y: y, W: size / 2, FontSize: size})
		x += size / 2
	}
	return out
}

func TestSegmentRow_SplitsOnWideGaps(t *testing.T) {
	row := append(glyphs("Name", 50, 700, 10), glyphs("City", 300, 700, 10)...)

	lines := segmentRow(row, 792)
	require.Len(t, lines, 2)
	assert.Equal(t, "Name", lines[0].Content)
	assert.Equal(t, "City", lines[1].Content)

	x, y, ok := lines[0].Polygon.Anchor()
	require.True(t, ok)
	assert.Equal(t, 50.0, x)
	assert.Equal(t, 82.0, y, "top edge in top-left coordinates")
}

func TestSegmentRow_InsertsWordSpaces(t *testing.T) {
	row := append(glyphs("Business", 50, 700, 10), glyphs("name", 94, 700, 10)...)

	lines := segmentRow(row, 792)
	require.Len(t, lines, 1)
	assert.Equal(t, "Business name", lines[0].Content)
}

func TestGroupRows_TopFirst(t *testing.T) {
	var all []pdf.Text
	all = append(all, glyphs("low", 10, 100, 10)...)
	all = append(all, glyphs("high", 10, 700, 10)...)

	rows := groupRows(all)
	require.Len(t, rows, 2)
	assert.Equal(t, "h", rows[0][0].S)
}

func TestDetectMarks(t *testing.T) {
	rects := []pdf.Rect{
		{Min: pdf.Point{X: 10, Y: 10}, Max: pdf.Point{X: 20, Y: 20}},   // checkbox with glyph
		{Min: pdf.Point{X: 10, Y: 10}, Max: pdf.Point{X: 20, Y: 20}},   // duplicate stroke
		{Min: pdf.Point{X: 40, Y: 10}, Max: pdf.Point{X: 50, Y: 20}},   // empty checkbox
		{Min: pdf.Point{X: 0, Y: 0}, Max: pdf.Point{X: 300, Y: 20}},    // text field
		{Min: pdf.Point{X: 60, Y: 10}, Max: pdf.Point{X: 62, Y: 12}},   // speck
		{Min: pdf.Point{X: 80, Y: 10}, Max: pdf.Point{X: 98, Y: 14.5}}, // underline
	}
	texts := glyphs("X", 13, 12, 8)

	marks, inside := detectMarks(rects, texts, 100)
	require.Len(t, marks, 2)
	assert.Equal(t, types.StateSelected, marks[0].State)
	assert.Equal(t, types.StateUnselected, marks[1].State)
	assert.Equal(t, types.Polygon{10, 80, 20, 80, 20, 90, 10, 90}, marks[0].Polygon)

	assert.True(t, inside(texts[0]))
	assert.False(t, inside(pdf.Text{S: "a", X: 200, Y: 50, W: 5, FontSize: 10}))
}

func TestLocalAnalyzer_ReadsGeneratedPDF(t *testing.T) {
	data := testpdf.Build(
		testpdf.Page{
			Texts: []testpdf.Text{
				{X: 72, Y: 740, Size: 14, S: "Form W-9"},
				{X: 90, Y: 600, S: "Individual/sole proprietor"},
				{X: 90, Y: 560, S: "C corporation"},
				{X: 77, Y: 600, Size: 8, S: "X"},
			},
			Boxes: []testpdf.Box{
				{X: 75, Y: 598, W: 10, H: 10},
				{X: 75, Y: 558, W: 10, H: 10},
			},
		},
		testpdf.Page{Texts: []testpdf.Text{{X: 72, Y: 700, S: "Page two"}}},
	)

	doc, err := NewLocalAnalyzer(nil).Analyze(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, doc.Pages, 2)

	page := doc.Pages[0]
	assert.Equal(t, 1, page.PageNumber)
	assert.Equal(t, 612.0, page.Width)
	assert.Equal(t, 792.0, page.Height)

	var contents []string
	for _, l := range page.Lines {
		contents = append(contents, l.Content)
	}
	assert.Equal(t, []string{"Form W-9", "Individual/sole proprietor", "C corporation"}, contents)

	assocs := geometry.Associate(page.SelectionMarks, page.Lines)
	assert.Equal(t, []types.CheckboxAssociation{
		{Label: "Individual/sole proprietor", State: types.StateSelected},
		{Label: "C corporation", State: types.StateUnselected},
	}, assocs)
}

func TestLocalAnalyzer_InvalidPDF(t *testing.T) {
	_, err := NewLocalAnalyzer(nil).Analyze(context.Background(), []byte("not a pdf"))
	assert.Error(t, err)
}

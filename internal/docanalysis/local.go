package docanalysis

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/jonathan/taxform-extractor/internal/types"
)

// Box size limits, in points, for rectangles treated as checkboxes.
const (
	minMarkSide = 4.0
	maxMarkSide = 20.0
	// maxMarkSkew bounds |w-h| relative to the longer side.
	maxMarkSkew = 0.25
)

// Letter size, used when a page has no readable MediaBox.
const (
	defaultPageWidth  = 612.0
	defaultPageHeight = 792.0
)

// LocalAnalyzer builds a layout from the PDF content stream without a remote
// service. It only sees text and vector rectangles, so scanned images yield
// empty pages.
type LocalAnalyzer struct {
	logger *slog.Logger
}

// NewLocalAnalyzer creates an offline analyzer.
func NewLocalAnalyzer(logger *slog.Logger) *LocalAnalyzer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalAnalyzer{logger: logger}
}

// Analyze reads every page of the PDF.
func (a *LocalAnalyzer) Analyze(ctx context.Context, data []byte) (doc *types.Document, err error) {
	// the content-stream parser panics on some malformed files
	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("read PDF: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open PDF: %w", err)
	}

	doc = &types.Document{}
	for i := 1; i <= reader.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := reader.Page(i)
		if p.V.IsNull() {
			continue
		}

		doc.Pages = append(doc.Pages, analyzePage(p, i))
	}

	a.logger.Debug("docanalysis.local.ok", "pages", len(doc.Pages))
	return doc, nil
}

func analyzePage(p pdf.Page, number int) types.Page {
	width, height := pageSize(p)
	content := p.Content()

	marks, inside := detectMarks(content.Rect, content.Text, height)

	var glyphs []pdf.Text
	for _, t := range content.Text {
		if !inside(t) {
			glyphs = append(glyphs, t)
		}
	}

	var lines []types.TextLine
	for _, row := range groupRows(glyphs) {
		lines = append(lines, segmentRow(row, height)...)
	}

	return types.Page{
		PageNumber:     number,
		Width:          width,
		Height:         height,
		Unit:           "point",
		Lines:          lines,
		SelectionMarks: marks,
	}
}

func pageSize(p pdf.Page) (float64, float64) {
	box := p.MediaBox()
	if box.Len() != 4 {
		return defaultPageWidth, defaultPageHeight
	}
	w := box.Index(2).Float64() - box.Index(0).Float64()
	h := box.Index(3).Float64() - box.Index(1).Float64()
	if w <= 0 || h <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return w, h
}

// groupRows buckets glyphs by baseline, top of the page first.
func groupRows(glyphs []pdf.Text) [][]pdf.Text {
	byBaseline := make(map[int64][]pdf.Text)
	var baselines []int64
	for _, g := range glyphs {
		if g.S == "\n" {
			continue
		}
		key := int64(math.Round(g.Y))
		if _, ok := byBaseline[key]; !ok {
			baselines = append(baselines, key)
		}
		byBaseline[key] = append(byBaseline[key], g)
	}
	sort.Slice(baselines, func(i, j int) bool { return baselines[i] > baselines[j] })

	rows := make([][]pdf.Text, 0, len(baselines))
	for _, b := range baselines {
		rows = append(rows, byBaseline[b])
	}
	return rows
}

// segmentRow splits one baseline row into lines wherever the horizontal gap
// between glyphs exceeds twice the font size, and inserts a space for
// smaller word gaps. Coordinates are flipped to a top-left origin.
func segmentRow(texts []pdf.Text, pageHeight float64) []types.TextLine {
	if len(texts) == 0 {
		return nil
	}
	sort.SliceStable(texts, func(i, j int) bool { return texts[i].X < texts[j].X })

	var lines []types.TextLine
	var sb strings.Builder
	segStart := 0

	flush := func(end int) {
		content := strings.TrimSpace(sb.String())
		sb.Reset()
		if content == "" {
			return
		}
		first, last := texts[segStart], texts[end-1]
		size := 0.0
		for _, t := range texts[segStart:end] {
			size = math.Max(size, fontHeight(t))
		}
		left, right := first.X, last.X+last.W
		bottom := pageHeight - first.Y
		top := bottom - size
		lines = append(lines, types.TextLine{
			Content: content,
			Polygon: types.Polygon{left, top, right, top, right, bottom, left, bottom},
		})
	}

	for i, t := range texts {
		if i > segStart {
			prev := texts[i-1]
			gap := t.X - (prev.X + prev.W)
			switch {
			case gap > 2*fontHeight(prev):
				flush(i)
				segStart = i
			case gap > 0.25*fontHeight(prev) && !strings.HasSuffix(prev.S, " ") && !strings.HasPrefix(t.S, " "):
				sb.WriteByte(' ')
			}
		}
		sb.WriteString(t.S)
	}
	flush(len(texts))

	return lines
}

func fontHeight(t pdf.Text) float64 {
	if t.FontSize > 0 {
		return t.FontSize
	}
	return 12
}

// detectMarks turns small near-square rectangles into selection marks. A mark
// is selected when a visible glyph is drawn inside it. The returned predicate
// reports whether a glyph belongs to a mark, so it can be left out of lines.
func detectMarks(rects []pdf.Rect, texts []pdf.Text, pageHeight float64) ([]types.SelectionMark, func(pdf.Text) bool) {
	var boxes []pdf.Rect
	seen := make(map[[4]int]bool)
	for _, r := range rects {
		w, h := r.Max.X-r.Min.X, r.Max.Y-r.Min.Y
		if w < 0 {
			r.Min.X, r.Max.X, w = r.Max.X, r.Min.X, -w
		}
		if h < 0 {
			r.Min.Y, r.Max.Y, h = r.Max.Y, r.Min.Y, -h
		}
		if w < minMarkSide || h < minMarkSide || w > maxMarkSide || h > maxMarkSide {
			continue
		}
		if math.Abs(w-h) > maxMarkSkew*math.Max(w, h) {
			continue
		}
		key := [4]int{int(math.Round(r.Min.X)), int(math.Round(r.Min.Y)), int(math.Round(r.Max.X)), int(math.Round(r.Max.Y))}
		if seen[key] {
			continue
		}
		seen[key] = true
		boxes = append(boxes, r)
	}

	contains := func(r pdf.Rect, t pdf.Text) bool {
		cx := t.X + t.W/2
		cy := t.Y + fontHeight(t)/3
		return cx >= r.Min.X && cx <= r.Max.X && cy >= r.Min.Y && cy <= r.Max.Y
	}

	marks := make([]types.SelectionMark, 0, len(boxes))
	for _, r := range boxes {
		state := types.StateUnselected
		for _, t := range texts {
			if strings.TrimSpace(t.S) != "" && contains(r, t) {
				state = types.StateSelected
				break
			}
		}
		top, bottom := pageHeight-r.Max.Y, pageHeight-r.Min.Y
		marks = append(marks, types.SelectionMark{
			State:   state,
			Polygon: types.Polygon{r.Min.X, top, r.Max.X, top, r.Max.X, bottom, r.Min.X, bottom},
		})
	}

	inside := func(t pdf.Text) bool {
		for _, r := range boxes {
			if contains(r, t) {
				return true
			}
		}
		return false
	}
	return marks, inside
}

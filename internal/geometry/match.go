// Package geometry associates selection marks with the text lines that label them.
package geometry

import (
	"fmt"
	"math"
	"strings"

	"github.com/jonathan/taxform-extractor/internal/types"
)

// Associate assigns each selection mark the content of the nearest text line.
//
// The mark position is its polygon centroid; a line's position is the first
// vertex of its polygon. Marks without a polygon produce no entry and lines
// without a polygon are never candidates. Ties keep the first line
// encountered. Output order follows marks.
func Associate(marks []types.SelectionMark, lines []types.TextLine) []types.CheckboxAssociation {
	out := make([]types.CheckboxAssociation, 0, len(marks))

	for _, mark := range marks {
		cx, cy, ok := mark.Polygon.Centroid()
		if !ok {
			continue
		}

		label := ""
		best := math.Inf(1)
		for _, line := range lines {
			lx, ly, ok := line.Polygon.Anchor()
			if !ok {
				continue
			}
			if d := math.Hypot(lx-cx, ly-cy); d < best {
				best = d
				label = line.Content
			}
		}

		out = append(out, types.CheckboxAssociation{Label: label, State: mark.State})
	}

	return out
}

// RenderCheckboxes formats associations as one sentence per line, in order.
func RenderCheckboxes(assocs []types.CheckboxAssociation) string {
	rows := make([]string, 0, len(assocs))
	for _, a := range assocs {
		rows = append(rows, fmt.Sprintf("Checkbox labeled '%s' is %s", a.Label, a.State))
	}
	return strings.Join(rows, "\n")
}

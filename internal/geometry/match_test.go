package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/taxform-extractor/internal/types"
)

// box returns a rectangle polygon with top-left corner (x, y).
func box(x, y, w, h float64) types.Polygon {
	return types.Polygon{x, y, x + w, y, x + w, y + h, x, y + h}
}

func line(content string, x, y float64) types.TextLine {
	return types.TextLine{Content: content, Polygon: box(x, y, 2, 0.2)}
}

func mark(state types.SelectionState, x, y float64) types.SelectionMark {
	return types.SelectionMark{State: state, Polygon: box(x, y, 0.2, 0.2)}
}

func TestAssociate_NearestLine(t *testing.T) {
	lines := []types.TextLine{
		line("Individual/sole proprietor", 1.0, 2.0),
		line("C Corporation", 3.0, 2.0),
		line("S Corporation", 5.0, 2.0),
	}
	marks := []types.SelectionMark{
		mark(types.StateUnselected, 0.7, 1.95),
		mark(types.StateSelected, 2.7, 1.95),
	}

	got := Associate(marks, lines)

	require.Len(t, got, 2)
	assert.Equal(t, types.CheckboxAssociation{Label: "Individual/sole proprietor", State: types.StateUnselected}, got[0])
	assert.Equal(t, types.CheckboxAssociation{Label: "C Corporation", State: types.StateSelected}, got[1])
}

func TestAssociate_TieKeepsFirstLine(t *testing.T) {
	// Centroid at (1, 1); both anchors are exactly 1 away.
	m := types.SelectionMark{State: types.StateSelected, Polygon: box(0, 0, 2, 2)}
	lines := []types.TextLine{
		{Content: "left", Polygon: types.Polygon{0, 1, 0.5, 1, 0.5, 1.2, 0, 1.2}},
		{Content: "right", Polygon: types.Polygon{2, 1, 2.5, 1, 2.5, 1.2, 2, 1.2}},
	}

	got := Associate([]types.SelectionMark{m}, lines)

	require.Len(t, got, 1)
	assert.Equal(t, "left", got[0].Label)
}

func TestAssociate_SkipsMissingPolygons(t *testing.T) {
	lines := []types.TextLine{
		{Content: "no geometry"},
		line("Limited liability company", 4, 4),
	}
	marks := []types.SelectionMark{
		{State: types.StateSelected},
		mark(types.StateSelected, 0, 0),
	}

	got := Associate(marks, lines)

	require.Len(t, got, 1, "mark without polygon yields no entry")
	assert.Equal(t, "Limited liability company", got[0].Label, "line without polygon is never a candidate")
}

func TestAssociate_NoLines(t *testing.T) {
	got := Associate([]types.SelectionMark{mark(types.StateUnselected, 1, 1)}, nil)

	require.Len(t, got, 1)
	assert.Equal(t, "", got[0].Label)
	assert.Equal(t, types.StateUnselected, got[0].State)
}

func TestAssociate_PreservesMarkOrder(t *testing.T) {
	lines := []types.TextLine{line("A", 0, 0), line("B", 10, 10)}
	marks := []types.SelectionMark{
		mark(types.StateSelected, 10, 10),
		mark(types.StateUnselected, 0, 0),
		mark(types.StateSelected, 9, 9),
	}

	got := Associate(marks, lines)

	labels := make([]string, 0, len(got))
	for _, a := range got {
		labels = append(labels, a.Label)
	}
	assert.Equal(t, []string{"B", "A", "B"}, labels)
}

func TestRenderCheckboxes(t *testing.T) {
	assocs := []types.CheckboxAssociation{
		{Label: "C Corporation", State: types.StateSelected},
		{Label: "", State: types.StateUnselected},
	}

	got := RenderCheckboxes(assocs)

	assert.Equal(t, "Checkbox labeled 'C Corporation' is selected\nCheckbox labeled '' is unselected", got)
	assert.Equal(t, "", RenderCheckboxes(nil))
}

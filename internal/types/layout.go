// Package types provides type definitions for structured data used throughout the taxform-extractor system.
//
//nolint:revive // types is a standard Go package name pattern
package types

// SelectionState is the binary state of a detected checkbox-like region.
type SelectionState string

const (
	// StateSelected marks a checked box
	StateSelected SelectionState = "selected"
	// StateUnselected marks an empty box
	StateUnselected SelectionState = "unselected"
)

// Polygon is a flat list of vertex coordinates: x0, y0, x1, y1, ...
// This matches the wire format returned by the document analysis service.
type Polygon []float64

// Centroid returns the mean of the x (even index) and y (odd index) coordinates.
// ok is false when the polygon carries fewer than one full vertex.
func (p Polygon) Centroid() (x, y float64, ok bool) {
	if len(p) < 2 {
		return 0, 0, false
	}

	var sumX, sumY float64
	var nX, nY int
	for i, v := range p {
		if i%2 == 0 {
			sumX += v
			nX++
		} else {
			sumY += v
			nY++
		}
	}

	return sumX / float64(nX), sumY / float64(nY), true
}

// Anchor returns the first vertex of the polygon.
func (p Polygon) Anchor() (x, y float64, ok bool) {
	if len(p) < 2 {
		return 0, 0, false
	}
	return p[0], p[1], true
}

// TextLine is a recognized line of text on a page
type TextLine struct {
	Content string  `json:"content"`
	Polygon Polygon `json:"polygon,omitempty"`
}

// SelectionMark is a detected checkbox on a page
type SelectionMark struct {
	State      SelectionState `json:"state"`
	Polygon    Polygon        `json:"polygon,omitempty"`
	Confidence float64        `json:"confidence,omitempty"`
}

// Page holds the layout of one analyzed page
type Page struct {
	PageNumber     int             `json:"pageNumber"`
	Width          float64         `json:"width,omitempty"`
	Height         float64         `json:"height,omitempty"`
	Unit           string          `json:"unit,omitempty"`
	Lines          []TextLine      `json:"lines"`
	SelectionMarks []SelectionMark `json:"selectionMarks"`
}

// KeyValuePair is a key/value association reported by the analyzer.
type KeyValuePair struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Document is the analyzed layout of an uploaded file
type Document struct {
	Pages         []Page         `json:"pages"`
	KeyValuePairs []KeyValuePair `json:"keyValuePairs,omitempty"`
}

// FirstPage returns the first page, or false when the document has none.
func (d *Document) FirstPage() (*Page, bool) {
	if d == nil || len(d.Pages) == 0 {
		return nil, false
	}
	return &d.Pages[0], true
}

// CheckboxAssociation pairs a selection mark with its nearest text label
type CheckboxAssociation struct {
	Label string         `json:"label"`
	State SelectionState `json:"state"`
}

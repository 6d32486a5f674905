package domain

import "fmt"

// Kind identifies the variant of a PDF annotation.
type Kind string

const (
	KindHighlight Kind = "highlight"
	KindUnderline Kind = "underline"
	KindStrikeout Kind = "strikeout"
	KindRectangle Kind = "rectangle"
	KindComment   Kind = "comment"
	KindInk       Kind = "ink"
)

// Kinds lists every supported annotation kind.
var Kinds = []Kind{KindHighlight, KindUnderline, KindStrikeout, KindRectangle, KindComment, KindInk}

// ParseKind validates a stored kind string.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindHighlight, KindUnderline, KindStrikeout, KindRectangle, KindComment, KindInk:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// TextBased reports whether the kind is created from a text selection.
func (k Kind) TextBased() bool {
	return k == KindHighlight || k == KindUnderline || k == KindStrikeout
}

// Rect is a rectangle in percent of the page surface. Storing percentages
// keeps the geometry valid at every render scale.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Right returns the right edge.
func (r Rect) Right() float64 { return r.Left + r.Width }

// Bottom returns the bottom edge.
func (r Rect) Bottom() float64 { return r.Top + r.Height }

// DataTypeAnnotation tags annotation records in the document store.
const DataTypeAnnotation = "pdfAnnotation"

// Annotation is the persisted record of one annotation.
// ID and DocumentID are immutable after creation.
type Annotation struct {
	ID         string `json:"_id"`
	Rev        string `json:"_rev,omitempty"`
	DocumentID string `json:"projectId"`
	PageNumber int    `json:"pageNumber"`
	Kind       Kind   `json:"type"`
	Color      string `json:"color"`
	Rects      []Rect `json:"rects"`
	// Content holds the comment text, or the serialized stroke payload for ink.
	Content string `json:"content"`
}

// Clone returns a deep copy.
func (a *Annotation) Clone() *Annotation {
	c := *a
	c.Rects = append([]Rect(nil), a.Rects...)
	return &c
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Color   *string `json:"color,omitempty"`
	Content *string `json:"content,omitempty"`
	Rects   []Rect  `json:"rects,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Color == nil && p.Content == nil && p.Rects == nil
}

// Apply merges the patch into a.
func (p Patch) Apply(a *Annotation) {
	if p.Color != nil {
		a.Color = *p.Color
	}
	if p.Content != nil {
		a.Content = *p.Content
	}
	if p.Rects != nil {
		a.Rects = append([]Rect(nil), p.Rects...)
	}
}

// Package render holds the retained visual model of the annotation layer.
// The desktop frontend mirrors it: every mount, update and unmount is
// forwarded to a Sink, which the app turns into webview events.
package render

import "fmt"

// Unit is a CSS length unit.
type Unit string

const (
	Percent Unit = "%"
	Pixel   Unit = "px"
)

// Length is a CSS length.
type Length struct {
	Value float64 `json:"value"`
	Unit  Unit    `json:"unit"`
}

// Pct returns a percentage length.
func Pct(v float64) Length { return Length{Value: v, Unit: Percent} }

// Px returns a pixel length.
func Px(v float64) Length { return Length{Value: v, Unit: Pixel} }

func (l Length) String() string { return fmt.Sprintf("%g%s", l.Value, l.Unit) }

// Style is the subset of inline CSS the annotation layer uses.
type Style struct {
	Background        string  `json:"background,omitempty"`
	BorderBottomColor string  `json:"borderBottomColor,omitempty"`
	BorderBottomWidth float64 `json:"borderBottomWidth,omitempty"`
	MixBlendMode      string  `json:"mixBlendMode,omitempty"`
	Cursor            string  `json:"cursor,omitempty"`
	ZIndex            int     `json:"zIndex"`
	Draggable         bool    `json:"draggable,omitempty"`
}

// Element is one absolutely positioned region in a page's annotation layer.
type Element struct {
	ID           string `json:"id"`
	AnnotationID string `json:"annotationId"`
	Page         int    `json:"page"`
	Class        string `json:"class"`
	Left         Length `json:"left"`
	Top          Length `json:"top"`
	Width        Length `json:"width"`
	Height       Length `json:"height"`
	Style        Style  `json:"style"`
	Active       bool   `json:"active"`
	// Icon is an image drawn inside the region (comments).
	Icon string `json:"icon,omitempty"`
	// Payload is the serialized drawing of an ink surface.
	Payload string `json:"payload,omitempty"`
}

// Resolve converts the element's box to pixels for a page surface of the
// given size.
func (e *Element) Resolve(pageWidth, pageHeight float64) (left, top, width, height float64) {
	conv := func(l Length, total float64) float64 {
		if l.Unit == Percent {
			return l.Value / 100 * total
		}
		return l.Value
	}
	return conv(e.Left, pageWidth), conv(e.Top, pageHeight), conv(e.Width, pageWidth), conv(e.Height, pageHeight)
}

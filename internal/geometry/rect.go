// Package geometry converts between viewport pixels and page-relative
// percentages. All functions are pure.
package geometry

import (
	"math"

	"github.com/golang/geo/r2"

	"sophosia/internal/domain"
)

// Rect is a rectangle in viewport pixels.
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

// Point is a viewport pixel position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PageOffset is the bounding box of a page's rendering surface in viewport
// pixels at the current scale. Recompute it for every conversion.
type PageOffset Rect

// Valid reports whether the offset can be divided by.
func (o PageOffset) Valid() bool { return o.Width > 0 && o.Height > 0 }

// Contains reports whether p lies inside the page surface.
func (o PageOffset) Contains(p Point) bool {
	return o.bounds().ContainsPoint(r2.Point{X: p.X, Y: p.Y})
}

func (o PageOffset) bounds() r2.Rect {
	return r2.RectFromPoints(
		r2.Point{X: o.Left, Y: o.Top},
		r2.Point{X: o.Left + o.Width, Y: o.Top + o.Height},
	)
}

// ToPercent converts a pixel rectangle to percent of the page surface.
// Callers must ensure off.Valid().
func ToPercent(px Rect, off PageOffset) domain.Rect {
	return domain.Rect{
		Left:   (px.Left - off.Left) / off.Width * 100,
		Top:    (px.Top - off.Top) / off.Height * 100,
		Width:  px.Width / off.Width * 100,
		Height: px.Height / off.Height * 100,
	}
}

// ToPixel is the inverse of ToPercent.
func ToPixel(pct domain.Rect, off PageOffset) Rect {
	return Rect{
		Left:   off.Left + pct.Left/100*off.Width,
		Top:    off.Top + pct.Top/100*off.Height,
		Width:  pct.Width / 100 * off.Width,
		Height: pct.Height / 100 * off.Height,
	}
}

// FromCorners returns the normalised rectangle spanned by two points.
func FromCorners(a, b Point) Rect {
	return Rect{
		Left:   math.Min(a.X, b.X),
		Top:    math.Min(a.Y, b.Y),
		Width:  math.Abs(a.X - b.X),
		Height: math.Abs(a.Y - b.Y),
	}
}

// Clamp moves r so that it lies inside the page surface, keeping its size.
// A rectangle larger than the page is pinned to the top-left corner.
func Clamp(r Rect, off PageOffset) Rect {
	page := off.bounds()
	box := r2.RectFromPoints(
		r2.Point{X: r.Left, Y: r.Top},
		r2.Point{X: r.Right(), Y: r.Bottom()},
	)
	if page.Contains(box) {
		return r
	}
	maxLeft := math.Max(page.X.Lo, page.X.Hi-r.Width)
	maxTop := math.Max(page.Y.Lo, page.Y.Hi-r.Height)
	r.Left = math.Min(math.Max(r.Left, page.X.Lo), maxLeft)
	r.Top = math.Min(math.Max(r.Top, page.Y.Lo), maxTop)
	return r
}

// Translate shifts a percent rectangle by the pixel delta d.
func Translate(pct domain.Rect, d Point, off PageOffset) domain.Rect {
	pct.Left += d.X / off.Width * 100
	pct.Top += d.Y / off.Height * 100
	return pct
}

package geometry

import (
	"iter"
	"math"
)

// Selection rectangles narrower than this are anti-aliasing artifacts.
const minSelectionWidth = 0.5

// SelectionRects joins the client rectangles of a text selection into one
// rectangle per visual line. Rectangles whose top lies within a third of
// the running rectangle's height extend that rectangle to their right
// edge; any other rectangle starts a new line. The comparison is strict.
//
// The returned sequence is lazy and may be ranged over more than once.
func SelectionRects(rects []Rect) iter.Seq[Rect] {
	return func(yield func(Rect) bool) {
		var (
			run     Rect
			running bool
		)
		for _, r := range rects {
			if r.Width <= minSelectionWidth || r.Height <= 0 {
				continue
			}
			if !running {
				run, running = r, true
				continue
			}
			if math.Abs(run.Top-r.Top) < run.Height/3 {
				run.Width = r.Right() - run.Left
				continue
			}
			if !yield(run) {
				return
			}
			run = r
		}
		if running {
			yield(run)
		}
	}
}

package geometry

import (
	"math/rand"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sophosia/internal/domain"
)

const eps = 1e-9

func TestToPercent(t *testing.T) {
	off := PageOffset{Left: 100, Top: 50, Width: 600, Height: 800}
	got := ToPercent(Rect{Left: 160, Top: 130, Width: 300, Height: 8}, off)
	assert.InDelta(t, 10, got.Left, eps)
	assert.InDelta(t, 10, got.Top, eps)
	assert.InDelta(t, 50, got.Width, eps)
	assert.InDelta(t, 1, got.Height, eps)
}

func TestPercentRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		off := PageOffset{
			Left:   rng.Float64()*400 - 200,
			Top:    rng.Float64()*4000 - 2000,
			Width:  1 + rng.Float64()*2000,
			Height: 1 + rng.Float64()*3000,
		}
		px := Rect{
			Left:   off.Left + rng.Float64()*off.Width,
			Top:    off.Top + rng.Float64()*off.Height,
			Width:  rng.Float64() * off.Width,
			Height: rng.Float64() * off.Height,
		}
		back := ToPixel(ToPercent(px, off), off)
		require.InDelta(t, px.Left, back.Left, 1e-6)
		require.InDelta(t, px.Top, back.Top, 1e-6)
		require.InDelta(t, px.Width, back.Width, 1e-6)
		require.InDelta(t, px.Height, back.Height, 1e-6)
	}
}

func TestScaleInvariance(t *testing.T) {
	pct := domain.Rect{Left: 12.5, Top: 40, Width: 30, Height: 2}
	base := PageOffset{Width: 612, Height: 792}
	for _, s := range [][2]float64{{1, 2}, {0.5, 1.75}, {3, 0.25}} {
		s1, s2 := s[0], s[1]
		a := ToPixel(pct, PageOffset{Width: base.Width * s1, Height: base.Height * s1})
		b := ToPixel(pct, PageOffset{Width: base.Width * s2, Height: base.Height * s2})
		ratio := s2 / s1
		assert.InDelta(t, a.Left*ratio, b.Left, 1e-6)
		assert.InDelta(t, a.Top*ratio, b.Top, 1e-6)
		assert.InDelta(t, a.Width*ratio, b.Width, 1e-6)
		assert.InDelta(t, a.Height*ratio, b.Height, 1e-6)
	}
}

func TestSelectionRects_MergeSameLine(t *testing.T) {
	in := []Rect{
		{Top: 0, Left: 0, Width: 50, Height: 10},
		{Top: 1, Left: 50, Width: 30, Height: 10},
	}
	got := slices.Collect(SelectionRects(in))
	require.Len(t, got, 1)
	assert.Equal(t, Rect{Top: 0, Left: 0, Width: 80, Height: 10}, got[0])
}

func TestSelectionRects_NewLine(t *testing.T) {
	in := []Rect{
		{Top: 0, Left: 0, Width: 50, Height: 10},
		{Top: 5, Left: 0, Width: 50, Height: 10},
	}
	got := slices.Collect(SelectionRects(in))
	assert.Equal(t, in, got)
}

func TestSelectionRects_StrictThreshold(t *testing.T) {
	// 3 is exactly a third of 9: not merged.
	in := []Rect{
		{Top: 0, Left: 0, Width: 40, Height: 9},
		{Top: 3, Left: 40, Width: 40, Height: 9},
	}
	assert.Len(t, slices.Collect(SelectionRects(in)), 2)
}

func TestSelectionRects_DropsArtifacts(t *testing.T) {
	in := []Rect{
		{Top: 0, Left: 0, Width: 0.5, Height: 10},
		{Top: 0, Left: 10, Width: 20, Height: 0},
		{Top: 20, Left: 0, Width: 30, Height: 10},
	}
	got := slices.Collect(SelectionRects(in))
	assert.Equal(t, []Rect{{Top: 20, Left: 0, Width: 30, Height: 10}}, got)
}

func TestSelectionRects_EmptyAndRestartable(t *testing.T) {
	assert.Empty(t, slices.Collect(SelectionRects(nil)))

	seq := SelectionRects([]Rect{
		{Top: 0, Left: 0, Width: 10, Height: 10},
		{Top: 20, Left: 0, Width: 10, Height: 10},
	})
	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)
	assert.Len(t, first, 2)
}

func TestSelectionRects_EarlyStop(t *testing.T) {
	seq := SelectionRects([]Rect{
		{Top: 0, Left: 0, Width: 10, Height: 10},
		{Top: 20, Left: 0, Width: 10, Height: 10},
		{Top: 40, Left: 0, Width: 10, Height: 10},
	})
	n := 0
	for range seq {
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestFromCorners(t *testing.T) {
	r := FromCorners(Point{X: 50, Y: 10}, Point{X: 20, Y: 40})
	assert.Equal(t, Rect{Left: 20, Top: 10, Width: 30, Height: 30}, r)
}

func TestClamp(t *testing.T) {
	off := PageOffset{Left: 0, Top: 0, Width: 100, Height: 200}

	inside := Rect{Left: 10, Top: 10, Width: 20, Height: 20}
	assert.Equal(t, inside, Clamp(inside, off))

	assert.Equal(t, Rect{Left: 0, Top: 0, Width: 40, Height: 40},
		Clamp(Rect{Left: -5, Top: -10, Width: 40, Height: 40}, off))
	assert.Equal(t, Rect{Left: 60, Top: 160, Width: 40, Height: 40},
		Clamp(Rect{Left: 90, Top: 190, Width: 40, Height: 40}, off))
}

func TestPageOffsetContains(t *testing.T) {
	off := PageOffset{Left: 10, Top: 10, Width: 100, Height: 100}
	assert.True(t, off.Contains(Point{X: 50, Y: 50}))
	assert.False(t, off.Contains(Point{X: 5, Y: 50}))
	assert.True(t, off.Valid())
	assert.False(t, PageOffset{}.Valid())
}

package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sophosia/internal/domain"
	"sophosia/internal/geometry"
)

func TestInkSurface_TapLeavesDot(t *testing.T) {
	s := NewInkSurface(600, 800, 2)
	s.BeginStroke(geometry.Point{X: 20, Y: 40}, Stroke{Mode: ModeDraw, Width: 3, Opacity: 1})
	s.EndStroke()

	require.Len(t, s.Strokes, 1)
	assert.Equal(t, [][2]float64{{10, 20}, {10, 20}}, s.Strokes[0].Points)
	assert.False(t, s.Drawing())

	// Points after the stroke ended are dropped.
	s.AddPoint(geometry.Point{X: 1, Y: 1})
	assert.Len(t, s.Strokes[0].Points, 2)
}

func TestInkSurface_SerializeRoundTrip(t *testing.T) {
	s := NewInkSurface(600, 800, 1.5)
	s.BeginStroke(geometry.Point{X: 3, Y: 3}, Stroke{Mode: ModeDraw, Color: "#f00", Width: 2, Opacity: 0.5})
	s.AddPoint(geometry.Point{X: 6, Y: 9})
	s.EndStroke()

	got, err := ParseInk(s.Serialize())
	require.NoError(t, err)
	assert.Equal(t, s.Width, got.Width)
	assert.Equal(t, s.Scale, got.Scale)
	assert.Equal(t, s.Strokes, got.Strokes)
}

func TestInkSurface_Rescale(t *testing.T) {
	s := NewInkSurface(600, 800, 1)
	s.Rescale(1200, 1600, 2)
	assert.Equal(t, 1200.0, s.Width)
	assert.Equal(t, 1600.0, s.Height)
	assert.Equal(t, 2.0, s.Scale)

	s.Rescale(10, 10, 0)
	assert.Equal(t, 1.0, s.Scale)
}

func TestParseInk_Errors(t *testing.T) {
	_, err := ParseInk("not json")
	assert.Error(t, err)
	_, err = ParseInk(`{"version":99}`)
	assert.Error(t, err)
}

func TestFactory_InkFromStoredContent(t *testing.T) {
	f, _, _ := newTestFactory()
	s := NewInkSurface(300, 400, 0.5)
	s.BeginStroke(geometry.Point{X: 1, Y: 1}, Stroke{Mode: ModeDraw, Width: 1, Opacity: 1})

	a := f.Build(&domain.Annotation{ID: "i", PageNumber: 1, Kind: domain.KindInk, Content: s.Serialize()})
	require.NotNil(t, a.Ink())
	assert.Len(t, a.Ink().Strokes, 1)
	// Sized to the page's current render, not the stored one.
	assert.Equal(t, 600.0, a.Ink().Width)
	assert.Equal(t, 1.0, a.Ink().Scale)

	bad := f.Build(&domain.Annotation{ID: "j", PageNumber: 1, Kind: domain.KindInk, Content: "{"})
	require.NotNil(t, bad)
	assert.Empty(t, bad.Ink().Strokes)
}

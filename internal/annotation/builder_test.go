package annotation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sophosia/internal/domain"
	"sophosia/internal/geometry"
	"sophosia/internal/logging"
	"sophosia/internal/render"
)

func newTestFactory() (*Factory, *render.Recorder, *render.Scene) {
	rec := &render.Recorder{}
	scene := render.NewScene(rec)
	scene.PageRendered(1, geometry.PageOffset{Width: 600, Height: 800}, 1)
	return NewFactory(scene, WithFactoryLogger(logging.Discard())), rec, scene
}

func TestFactory_DrawIsIdempotent(t *testing.T) {
	f, rec, scene := newTestFactory()
	r := highlightRecord("h1", 1)

	require.NotNil(t, f.Draw(r))
	require.NotNil(t, f.Draw(r))

	assert.Len(t, scene.Snapshot(1), 2)
	assert.Equal(t, 2, rec.Count("mount"))
}

func TestFactory_UnknownKind(t *testing.T) {
	f, rec, _ := newTestFactory()
	assert.Nil(t, f.Build(&domain.Annotation{ID: "x", PageNumber: 1, Kind: "stamp"}))
	assert.Nil(t, f.Draw(&domain.Annotation{ID: "x", PageNumber: 1, Kind: "stamp"}))
	assert.Zero(t, rec.Count("mount"))
}

func TestFactory_KindVisuals(t *testing.T) {
	f, _, _ := newTestFactory()
	rect := []domain.Rect{{Left: 10, Top: 20, Width: 30, Height: 4}}
	build := func(kind domain.Kind) render.Element {
		a := f.Build(&domain.Annotation{ID: string(kind), PageNumber: 1, Kind: kind, Color: "#ff0000", Rects: rect})
		require.NotNil(t, a)
		els := a.Elements()
		require.Len(t, els, 1)
		return els[0]
	}

	hl := build(domain.KindHighlight)
	assert.Equal(t, classHighlight, hl.Class)
	assert.Equal(t, "#ff0000", hl.Style.Background)
	assert.Equal(t, blendMultiply, hl.Style.MixBlendMode)
	assert.Equal(t, render.Pct(4), hl.Height)

	ul := build(domain.KindUnderline)
	assert.Equal(t, classUnderline, ul.Class)
	assert.Empty(t, ul.Style.Background)
	assert.Equal(t, "#ff0000", ul.Style.BorderBottomColor)
	assert.Equal(t, 2.0, ul.Style.BorderBottomWidth)
	assert.Equal(t, render.Pct(4), ul.Height)

	so := build(domain.KindStrikeout)
	assert.Equal(t, classStrikeout, so.Class)
	assert.Equal(t, render.Pct(2), so.Height)

	rc := build(domain.KindRectangle)
	assert.Equal(t, classRectangle, rc.Class)
	assert.Equal(t, blendMultiply, rc.Style.MixBlendMode)
	assert.True(t, rc.Style.Draggable)

	cm := build(domain.KindComment)
	assert.Equal(t, classComment, cm.Class)
	assert.Equal(t, render.Pct(10), cm.Left)
	assert.Equal(t, render.Px(DefaultCommentSize), cm.Width)
	assert.Equal(t, render.Px(DefaultCommentSize), cm.Height)
	assert.NotEmpty(t, cm.Icon)

	ink := build(domain.KindInk)
	assert.Equal(t, classInk, ink.Class)
	assert.Equal(t, render.Pct(100), ink.Width)
	assert.NotEmpty(t, ink.Payload)
}

func TestFactory_ScaleInvariantPlacement(t *testing.T) {
	f, _, _ := newTestFactory()
	a := f.Build(highlightRecord("h1", 1))
	el := a.Elements()[0]

	l1, t1, w1, h1 := el.Resolve(600, 800)
	l2, t2, w2, h2 := el.Resolve(900, 1200)
	assert.InDelta(t, 1.5, l2/l1, 1e-9)
	assert.InDelta(t, 1.5, t2/t1, 1e-9)
	assert.InDelta(t, 1.5, w2/w1, 1e-9)
	assert.InDelta(t, 1.5, h2/h1, 1e-9)
}

func TestAnnotation_ColorRestyle(t *testing.T) {
	f, rec, _ := newTestFactory()
	a := f.Draw(&domain.Annotation{ID: "u1", PageNumber: 1, Kind: domain.KindUnderline, Color: "#000", Rects: []domain.Rect{{Width: 1, Height: 1}}})
	a.apply(domain.Patch{Color: strptr("#00f")})

	last, ok := rec.Last()
	require.True(t, ok)
	assert.Equal(t, "update", last.Kind)
	assert.Equal(t, "#00f", last.Element.Style.BorderBottomColor)
	assert.Equal(t, "#00f", a.Record().Color)
}

func TestAnnotation_RectChangeRemounts(t *testing.T) {
	f, rec, scene := newTestFactory()
	a := f.Draw(highlightRecord("h1", 1))
	a.apply(domain.Patch{Rects: []domain.Rect{{Left: 1, Top: 1, Width: 5, Height: 1}}})

	assert.Equal(t, 1, scene.Layer(1).Count("h1"))
	assert.Equal(t, 1, rec.Count("unmount"))
	assert.Equal(t, render.Pct(5), a.Elements()[0].Width)
}

func TestFactory_CommentSizeOption(t *testing.T) {
	scene := render.NewScene(nil)
	f := NewFactory(scene, WithCommentSize(24), WithFactoryLogger(logging.Discard()))
	a := f.Build(&domain.Annotation{ID: "c", PageNumber: 1, Kind: domain.KindComment, Rects: []domain.Rect{{}}})
	assert.Equal(t, render.Px(24), a.Elements()[0].Width)
}

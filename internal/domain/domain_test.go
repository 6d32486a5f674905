package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	for _, k := range Kinds {
		got, err := ParseKind(string(k))
		require.NoError(t, err)
		assert.Equal(t, k, got)
	}
	_, err := ParseKind("stamp")
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = ParseKind("")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestParseTool(t *testing.T) {
	got, err := ParseTool("")
	require.NoError(t, err)
	assert.Equal(t, ToolCursor, got)

	got, err = ParseTool("eraser")
	require.NoError(t, err)
	kind, ok := got.Kind()
	assert.True(t, ok)
	assert.Equal(t, KindInk, kind)

	_, ok = ToolCursor.Kind()
	assert.False(t, ok)

	_, err = ParseTool("lasso")
	assert.Error(t, err)
}

func TestPatch(t *testing.T) {
	assert.True(t, Patch{}.Empty())

	a := &Annotation{ID: "a", Color: "#fff", Content: "old", Rects: []Rect{{Left: 1}}}
	color := "#000"
	p := Patch{Color: &color, Rects: []Rect{{Left: 2}, {Left: 3}}}
	assert.False(t, p.Empty())

	p.Apply(a)
	assert.Equal(t, "#000", a.Color)
	assert.Equal(t, "old", a.Content)
	require.Len(t, a.Rects, 2)

	p.Rects[0].Left = 99
	assert.Equal(t, 2.0, a.Rects[0].Left, "apply copies rects")
}

func TestAnnotationClone(t *testing.T) {
	a := &Annotation{ID: "a", Rects: []Rect{{Left: 1}}}
	c := a.Clone()
	c.Rects[0].Left = 5
	assert.Equal(t, 1.0, a.Rects[0].Left)
}

func TestSelectorMatch(t *testing.T) {
	d := &Doc{ID: "a1", DataType: DataTypeAnnotation, DocumentID: "p1", PageNumber: 2, Kind: "ink"}

	assert.True(t, Selector{}.Match(d))
	assert.True(t, Selector{DataType: DataTypeAnnotation, DocumentID: "p1", PageNumber: 2}.Match(d))
	assert.True(t, Selector{Kinds: []string{"comment", "ink"}, IDs: []string{"a1"}}.Match(d))
	assert.False(t, Selector{DataType: DataTypeDocument}.Match(d))
	assert.False(t, Selector{PageNumber: 3}.Match(d))
	assert.False(t, Selector{Kinds: []string{"comment"}}.Match(d))
	assert.False(t, Selector{IDs: []string{"b"}}.Match(d))
}

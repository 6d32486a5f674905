package annotation

import (
	"fmt"
	"log/slog"

	"sophosia/internal/domain"
	"sophosia/internal/logging"
	"sophosia/internal/render"
)

const (
	// DefaultCommentSize is the side of a comment icon in pixels.
	DefaultCommentSize = 40

	commentIcon    = "annotation-note-transparent.svg"
	borderWidth    = 2
	annotationZ    = 100
	blendMultiply  = "multiply"
	cursorPointer  = "pointer"
	cursorGrab     = "grab"
	classHighlight = "highlightAnnotation"
	classUnderline = "underlineAnnotation"
	classStrikeout = "strikeoutAnnotation"
	classRectangle = "rectangleAnnotation"
	classComment   = "textAnnotation"
	classInk       = "inkAnnotation"
)

// Factory builds live annotations on the layers of a Scene.
type Factory struct {
	scene       *render.Scene
	commentSize float64
	log         *slog.Logger
}

// FactoryOption configures a Factory.
type FactoryOption func(*Factory)

// WithCommentSize overrides the comment icon size.
func WithCommentSize(px float64) FactoryOption {
	return func(f *Factory) {
		if px > 0 {
			f.commentSize = px
		}
	}
}

// WithFactoryLogger sets the logger.
func WithFactoryLogger(l *slog.Logger) FactoryOption {
	return func(f *Factory) { f.log = l }
}

// NewFactory creates a factory drawing on scene.
func NewFactory(scene *render.Scene, opts ...FactoryOption) *Factory {
	f := &Factory{scene: scene, commentSize: DefaultCommentSize}
	for _, o := range opts {
		o(f)
	}
	if f.log == nil {
		f.log = logging.WithComponent("annotation.factory")
	}
	return f
}

// Scene returns the scene the factory draws on.
func (f *Factory) Scene() *render.Scene { return f.scene }

// CommentSize returns the comment icon size in pixels.
func (f *Factory) CommentSize() float64 { return f.commentSize }

// Build constructs the live annotation for rec without mounting it.
// It returns nil for kinds it does not know.
func (f *Factory) Build(rec *domain.Annotation) *Annotation {
	if _, err := domain.ParseKind(string(rec.Kind)); err != nil {
		f.log.Warn("skipping annotation", "id", rec.ID, "err", err)
		return nil
	}
	a := &Annotation{
		rec:     rec.Clone(),
		layer:   f.scene.Layer(rec.PageNumber),
		factory: f,
	}
	if rec.Kind == domain.KindInk {
		a.ink = f.surface(a.rec)
		a.rec.Content = a.ink.Serialize()
	}
	a.elements = f.elements(a.rec, a.ink)
	return a
}

// Draw builds and mounts rec. It returns nil for unknown kinds.
func (f *Factory) Draw(rec *domain.Annotation) *Annotation {
	a := f.Build(rec)
	if a != nil {
		a.Mount()
	}
	return a
}

// elements dispatches on the kind. Every kind must have a case.
func (f *Factory) elements(rec *domain.Annotation, ink *InkSurface) []*render.Element {
	switch rec.Kind {
	case domain.KindHighlight:
		return f.textElements(rec, classHighlight, 1)
	case domain.KindUnderline:
		return f.textElements(rec, classUnderline, 1)
	case domain.KindStrikeout:
		return f.textElements(rec, classStrikeout, 0.5)
	case domain.KindRectangle:
		return f.rectangleElements(rec)
	case domain.KindComment:
		return f.commentElements(rec)
	case domain.KindInk:
		return f.inkElements(rec, ink)
	default:
		panic(fmt.Sprintf("annotation: unhandled kind %q", rec.Kind))
	}
}

func (f *Factory) textElements(rec *domain.Annotation, class string, heightFactor float64) []*render.Element {
	els := make([]*render.Element, 0, len(rec.Rects))
	for i, r := range rec.Rects {
		el := &render.Element{
			ID:           elementID(rec.ID, i),
			AnnotationID: rec.ID,
			Class:        class,
			Left:         render.Pct(r.Left),
			Top:          render.Pct(r.Top),
			Width:        render.Pct(r.Width),
			Height:       render.Pct(r.Height * heightFactor),
			Style:        render.Style{Cursor: cursorPointer, ZIndex: annotationZ},
		}
		paint(rec.Kind, &el.Style, rec.Color)
		els = append(els, el)
	}
	return els
}

func (f *Factory) rectangleElements(rec *domain.Annotation) []*render.Element {
	if len(rec.Rects) == 0 {
		return nil
	}
	r := rec.Rects[0]
	el := &render.Element{
		ID:           elementID(rec.ID, 0),
		AnnotationID: rec.ID,
		Class:        classRectangle,
		Left:         render.Pct(r.Left),
		Top:          render.Pct(r.Top),
		Width:        render.Pct(r.Width),
		Height:       render.Pct(r.Height),
		Style:        render.Style{Cursor: cursorGrab, ZIndex: annotationZ, Draggable: true},
	}
	paint(rec.Kind, &el.Style, rec.Color)
	return []*render.Element{el}
}

func (f *Factory) commentElements(rec *domain.Annotation) []*render.Element {
	var r domain.Rect
	if len(rec.Rects) > 0 {
		r = rec.Rects[0]
	}
	el := &render.Element{
		ID:           elementID(rec.ID, 0),
		AnnotationID: rec.ID,
		Class:        classComment,
		Left:         render.Pct(r.Left),
		Top:          render.Pct(r.Top),
		Width:        render.Px(f.commentSize),
		Height:       render.Px(f.commentSize),
		Icon:         commentIcon,
		Style:        render.Style{Cursor: cursorGrab, ZIndex: annotationZ, Draggable: true},
	}
	paint(rec.Kind, &el.Style, rec.Color)
	return []*render.Element{el}
}

func (f *Factory) inkElements(rec *domain.Annotation, ink *InkSurface) []*render.Element {
	el := &render.Element{
		ID:           elementID(rec.ID, 0),
		AnnotationID: rec.ID,
		Class:        classInk,
		Left:         render.Pct(0),
		Top:          render.Pct(0),
		Width:        render.Pct(100),
		Height:       render.Pct(100),
		Style:        render.Style{ZIndex: annotationZ},
	}
	if ink != nil {
		el.Payload = ink.Serialize()
	}
	return []*render.Element{el}
}

// surface restores the stored drawing or starts an empty one, sized to the
// page's current render.
func (f *Factory) surface(rec *domain.Annotation) *InkSurface {
	off, _ := f.scene.Offset(rec.PageNumber)
	scale := f.scene.Scale(rec.PageNumber)
	if rec.Content == "" {
		return NewInkSurface(off.Width, off.Height, scale)
	}
	s, err := ParseInk(rec.Content)
	if err != nil {
		f.log.Warn("discarding unreadable ink payload", "id", rec.ID, "err", err)
		return NewInkSurface(off.Width, off.Height, scale)
	}
	if off.Valid() {
		s.Rescale(off.Width, off.Height, scale)
	}
	return s
}

// paint applies the color where the kind shows it.
func paint(kind domain.Kind, st *render.Style, color string) {
	switch kind {
	case domain.KindHighlight, domain.KindRectangle:
		st.Background = color
		st.MixBlendMode = blendMultiply
	case domain.KindUnderline, domain.KindStrikeout:
		st.BorderBottomColor = color
		st.BorderBottomWidth = borderWidth
	case domain.KindComment:
		st.Background = color
	case domain.KindInk:
		// strokes carry their own color
	}
}

func elementID(annotationID string, i int) string {
	return fmt.Sprintf("%s#%d", annotationID, i)
}

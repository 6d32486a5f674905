package annotation

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/google/uuid"

	"sophosia/internal/domain"
	"sophosia/internal/geometry"
	"sophosia/internal/logging"
	"sophosia/internal/render"
)

// minRectangleSize is the smallest rectangle mark side, in pixels.
const minRectangleSize = 1

const classPreview = "rectanglePreview"

type state int

const (
	stateIdle state = iota
	stateTracking
)

// gesture is the pointer interaction in progress.
type gesture struct {
	tool    domain.Tool
	page    int
	start   geometry.Point
	preview *render.Element
	ink     *Annotation
	newInk  bool
}

type dragState struct {
	id     string
	page   int
	start  geometry.Point
	origin []domain.Rect
	box    geometry.Rect
}

// Controller turns pointer gestures on page surfaces into new records,
// following the tool selected in the tool context. At most one gesture is
// tracked at a time; a pointer-down while tracking is ignored.
type Controller struct {
	store *Store
	tools domain.ToolContext
	log   *slog.Logger
	newID func() string

	mu       sync.Mutex
	attached map[int]bool
	state    state
	g        gesture
	drag     *dragState
}

// NewController creates a controller adding records to store.
func NewController(store *Store, tools domain.ToolContext, log *slog.Logger) *Controller {
	if log == nil {
		log = logging.WithComponent("annotation.controller")
	}
	return &Controller{
		store:    store,
		tools:    tools,
		log:      log,
		newID:    uuid.NewString,
		attached: make(map[int]bool),
	}
}

// Attach enables pointer handling on a page surface.
func (c *Controller) Attach(page int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached[page] = true
}

// Detach disables every page's pointer handling and abandons the gesture
// in progress.
func (c *Controller) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = make(map[int]bool)
	c.abandon()
	c.drag = nil
}

// Attached reports whether pointer handling is enabled on page.
func (c *Controller) Attached(page int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached[page]
}

// Tracking reports whether a gesture is in progress.
func (c *Controller) Tracking() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateTracking
}

// PointerDown starts a gesture for the current tool.
func (c *Controller) PointerDown(page int, p geometry.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached[page] || c.state == stateTracking || c.drag != nil {
		return
	}

	tool := c.tools.Tool()
	g := gesture{tool: tool, page: page, start: p}
	scene := c.store.factory.Scene()

	switch tool {
	case domain.ToolRectangle:
		off, ok := scene.Offset(page)
		if !ok {
			return
		}
		pct := geometry.ToPercent(geometry.Rect{Left: p.X, Top: p.Y}, off)
		g.preview = &render.Element{
			ID:           "preview",
			AnnotationID: previewID(page),
			Class:        classPreview,
			Left:         render.Pct(pct.Left),
			Top:          render.Pct(pct.Top),
			Width:        render.Pct(0),
			Height:       render.Pct(0),
			Style:        render.Style{Background: c.tools.Settings().Color, MixBlendMode: blendMultiply, ZIndex: annotationZ},
		}
		scene.Layer(page).Mount(g.preview.AnnotationID, g.preview)
	case domain.ToolInk, domain.ToolEraser:
		off, ok := scene.Offset(page)
		if !ok || !off.Contains(p) {
			return
		}
		a := c.store.Ink(page)
		if a == nil {
			a = c.store.factory.Build(c.record(domain.KindInk, page, nil))
			a.Mount()
			g.newInk = true
		}
		c.store.mu.Lock()
		a.ink.BeginStroke(geometry.Point{X: p.X - off.Left, Y: p.Y - off.Top}, c.stroke(tool))
		a.syncInk()
		c.store.mu.Unlock()
		g.ink = a
	}

	c.g = g
	c.state = stateTracking
}

// PointerMove updates the preview or the stroke of the current gesture.
func (c *Controller) PointerMove(page int, p geometry.Point) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateTracking || page != c.g.page {
		return
	}
	scene := c.store.factory.Scene()
	off, ok := scene.Offset(page)
	if !ok {
		return
	}

	switch {
	case c.g.preview != nil:
		pct := geometry.ToPercent(geometry.FromCorners(c.g.start, p), off)
		c.g.preview.Left, c.g.preview.Top = render.Pct(pct.Left), render.Pct(pct.Top)
		c.g.preview.Width, c.g.preview.Height = render.Pct(pct.Width), render.Pct(pct.Height)
		scene.Layer(page).Update(c.g.preview)
	case c.g.ink != nil:
		c.store.mu.Lock()
		c.g.ink.ink.AddPoint(geometry.Point{X: p.X - off.Left, Y: p.Y - off.Top})
		c.g.ink.syncInk()
		c.store.mu.Unlock()
	}
}

// PointerUp ends the gesture. selection holds the client rects of the text
// selection, used by the text tools. It returns the record created, or nil
// when the gesture produced nothing.
func (c *Controller) PointerUp(ctx context.Context, page int, p geometry.Point, selection []geometry.Rect) (*domain.Annotation, error) {
	c.mu.Lock()
	if c.state != stateTracking || page != c.g.page {
		c.mu.Unlock()
		return nil, nil
	}
	g := c.g
	c.g = gesture{}
	c.state = stateIdle
	c.mu.Unlock()

	scene := c.store.factory.Scene()
	if g.preview != nil {
		scene.Layer(page).Unmount(g.preview.AnnotationID)
	}

	switch g.tool {
	case domain.ToolHighlight, domain.ToolUnderline, domain.ToolStrikeout:
		return c.finishText(ctx, g, selection)
	case domain.ToolRectangle:
		return c.finishRectangle(ctx, g, p)
	case domain.ToolComment:
		return c.finishComment(ctx, g, p)
	case domain.ToolInk, domain.ToolEraser:
		return c.finishInk(ctx, g)
	default:
		c.store.SetActive("")
		return nil, nil
	}
}

func (c *Controller) finishText(ctx context.Context, g gesture, selection []geometry.Rect) (*domain.Annotation, error) {
	px := slices.Collect(geometry.SelectionRects(selection))
	if len(px) == 0 {
		c.store.SetActive("")
		return nil, nil
	}
	off, ok := c.store.factory.Scene().Offset(g.page)
	if !ok {
		return nil, nil
	}
	rects := make([]domain.Rect, len(px))
	for i, r := range px {
		rects[i] = geometry.ToPercent(r, off)
	}
	kind, _ := g.tool.Kind()
	return c.create(ctx, c.record(kind, g.page, rects))
}

func (c *Controller) finishRectangle(ctx context.Context, g gesture, p geometry.Point) (*domain.Annotation, error) {
	r := geometry.FromCorners(g.start, p)
	if r.Width < minRectangleSize || r.Height < minRectangleSize {
		return nil, nil
	}
	off, ok := c.store.factory.Scene().Offset(g.page)
	if !ok {
		return nil, nil
	}
	return c.create(ctx, c.record(domain.KindRectangle, g.page, []domain.Rect{geometry.ToPercent(r, off)}))
}

func (c *Controller) finishComment(ctx context.Context, g gesture, p geometry.Point) (*domain.Annotation, error) {
	off, ok := c.store.factory.Scene().Offset(g.page)
	if !ok {
		return nil, nil
	}
	pct := geometry.ToPercent(geometry.Rect{Left: p.X, Top: p.Y}, off)
	return c.create(ctx, c.record(domain.KindComment, g.page, []domain.Rect{pct}))
}

func (c *Controller) finishInk(ctx context.Context, g gesture) (*domain.Annotation, error) {
	a := g.ink
	c.store.mu.Lock()
	a.ink.EndStroke()
	a.syncInk()
	content := a.rec.Content
	c.store.mu.Unlock()

	if g.newInk {
		if err := c.store.Add(ctx, a, true); err != nil {
			a.Unmount()
			return nil, err
		}
		return a.Record(), nil
	}
	if err := c.store.Update(ctx, a.rec.ID, domain.Patch{Content: &content}); err != nil {
		return nil, err
	}
	return a.Record(), nil
}

func (c *Controller) create(ctx context.Context, rec *domain.Annotation) (*domain.Annotation, error) {
	a := c.store.factory.Build(rec)
	if a == nil {
		return nil, fmt.Errorf("create annotation: %w", domain.ErrUnknownKind)
	}
	if err := c.store.Add(ctx, a, true); err != nil {
		return nil, err
	}
	c.store.SetActive(rec.ID)
	c.log.Debug("annotation created", "id", rec.ID, "kind", rec.Kind, "page", rec.PageNumber)
	return a.Record(), nil
}

func (c *Controller) record(kind domain.Kind, page int, rects []domain.Rect) *domain.Annotation {
	return &domain.Annotation{
		ID:         c.newID(),
		DocumentID: c.store.documentID,
		PageNumber: page,
		Kind:       kind,
		Color:      c.tools.Settings().Color,
		Rects:      rects,
	}
}

func (c *Controller) stroke(tool domain.Tool) Stroke {
	st := c.tools.Settings()
	if tool == domain.ToolEraser {
		return Stroke{Mode: ModeErase, Width: st.EraserThickness, Opacity: 1}
	}
	return Stroke{Mode: ModeDraw, Color: st.Color, Width: st.InkThickness, Opacity: st.InkOpacity}
}

// abandon drops the gesture in progress. Callers hold c.mu.
func (c *Controller) abandon() {
	if c.state != stateTracking {
		return
	}
	if c.g.preview != nil {
		c.store.factory.Scene().Layer(c.g.page).Unmount(c.g.preview.AnnotationID)
	}
	if c.g.ink != nil {
		c.store.mu.Lock()
		s := c.g.ink.ink
		s.EndStroke()
		if !c.g.newInk && len(s.Strokes) > 0 {
			s.Strokes = s.Strokes[:len(s.Strokes)-1]
			c.g.ink.syncInk()
		}
		c.store.mu.Unlock()
		if c.g.newInk {
			c.g.ink.Unmount()
		}
	}
	c.g = gesture{}
	c.state = stateIdle
}

func previewID(page int) string { return fmt.Sprintf("preview-%d", page) }

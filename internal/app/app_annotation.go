package app

// ─────────────────────────────────────────────────────────────
// Annotation Handlers: page surfaces, pointer input, records
// ─────────────────────────────────────────────────────────────

import (
	"errors"
	"fmt"

	"sophosia/internal/domain"
	"sophosia/internal/geometry"
	"sophosia/internal/render"
)

// ── Page Surfaces ──────────────────────────────────────────

// PageRendered reports a page's surface box after the viewer drew it.
// Annotations of the page are drawn or rescaled in response.
func (a *App) PageRendered(page int, offset geometry.PageOffset, scale float64) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	if !offset.Valid() {
		return fmt.Errorf("page %d surface %vx%v: %w", page, offset.Width, offset.Height, domain.ErrInvalidGeometry)
	}
	if err := a.viewer.SetScale(sess.DocumentID, scale); err != nil {
		return err
	}
	sess.Scene.PageRendered(page, offset, scale)
	return nil
}

// MoveSurface updates a page box after scrolling, without a re-render.
func (a *App) MoveSurface(page int, offset geometry.PageOffset) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	sess.Scene.MoveSurface(page, offset)
	return nil
}

// ReplayLayer returns every element currently mounted on a page, for a
// frontend that lost its layer.
func (a *App) ReplayLayer(page int) ([]render.Element, error) {
	sess, err := a.current()
	if err != nil {
		return nil, err
	}
	return sess.Scene.Snapshot(page), nil
}

// ── Pointer Input ──────────────────────────────────────────

func (a *App) PointerDown(page int, x, y float64) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	sess.Controller.PointerDown(page, geometry.Point{X: x, Y: y})
	return nil
}

func (a *App) PointerMove(page int, x, y float64) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	sess.Controller.PointerMove(page, geometry.Point{X: x, Y: y})
	return nil
}

// PointerUp ends a gesture. selection carries the client rects of the text
// selection when a text tool is active. The created record is returned,
// nil if the gesture produced nothing.
func (a *App) PointerUp(page int, x, y float64, selection []geometry.Rect) (*domain.Annotation, error) {
	sess, err := a.current()
	if err != nil {
		return nil, err
	}
	return sess.Controller.PointerUp(a.ctx, page, geometry.Point{X: x, Y: y}, selection)
}

func (a *App) BeginDrag(id string, x, y float64) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	return sess.Controller.BeginDrag(id, geometry.Point{X: x, Y: y})
}

func (a *App) Drag(x, y float64) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	return sess.Controller.Drag(a.ctx, geometry.Point{X: x, Y: y})
}

func (a *App) EndDrag(x, y float64) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	return sess.Controller.EndDrag(a.ctx, geometry.Point{X: x, Y: y})
}

// ── Records ────────────────────────────────────────────────

// SelectAnnotation makes id the active annotation; an empty id clears it.
func (a *App) SelectAnnotation(id string) (bool, error) {
	sess, err := a.current()
	if err != nil {
		return false, err
	}
	return sess.Store.SetActive(id), nil
}

// ListAnnotations lists the current document's annotations. A page of 0
// means every page.
func (a *App) ListAnnotations(page int, kinds []string) ([]*domain.Annotation, error) {
	sess, err := a.current()
	if err != nil {
		return nil, err
	}
	parsed := make([]domain.Kind, 0, len(kinds))
	for _, k := range kinds {
		kind, err := domain.ParseKind(k)
		if err != nil {
			return nil, err
		}
		parsed = append(parsed, kind)
	}
	return a.annotations.List(a.ctx, sess.DocumentID, page, parsed...)
}

func (a *App) UpdateAnnotation(id string, patch domain.Patch) (*domain.Annotation, error) {
	return a.annotations.Update(a.ctx, id, patch)
}

// DeleteAnnotation removes an annotation. Deleting a missing one is a no-op.
func (a *App) DeleteAnnotation(id string) error {
	err := a.annotations.Delete(a.ctx, id)
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

package annotation

import (
	"context"
	"fmt"

	"sophosia/internal/domain"
	"sophosia/internal/geometry"
)

// BeginDrag starts moving a comment or rectangle mark from pointer p.
func (c *Controller) BeginDrag(id string, p geometry.Point) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateTracking {
		return nil
	}
	a := c.store.ByID(id)
	if a == nil {
		return fmt.Errorf("drag annotation %s: %w", id, domain.ErrNotFound)
	}
	if k := a.Kind(); k != domain.KindComment && k != domain.KindRectangle {
		return nil
	}
	rec := a.Record()
	if len(rec.Rects) == 0 {
		return nil
	}
	off, ok := c.store.factory.Scene().Offset(rec.PageNumber)
	if !ok {
		return fmt.Errorf("drag annotation %s: page %d: %w", id, rec.PageNumber, domain.ErrInvalidGeometry)
	}

	box := geometry.ToPixel(rec.Rects[0], off)
	if rec.Kind == domain.KindComment {
		size := c.store.factory.CommentSize()
		box.Width, box.Height = size, size
	}
	c.drag = &dragState{id: id, page: rec.PageNumber, start: p, origin: rec.Rects, box: box}
	c.store.SetActive(id)
	return nil
}

// Drag moves the dragged annotation so it follows p, clamped to the page.
func (c *Controller) Drag(ctx context.Context, p geometry.Point) error {
	c.mu.Lock()
	d := c.drag
	c.mu.Unlock()
	if d == nil {
		return nil
	}
	rects, ok := c.dragRects(d, p)
	if !ok {
		return nil
	}
	return c.store.Update(ctx, d.id, domain.Patch{Rects: rects})
}

// EndDrag commits the final position and writes it without waiting for
// the debounce.
func (c *Controller) EndDrag(ctx context.Context, p geometry.Point) error {
	c.mu.Lock()
	d := c.drag
	c.drag = nil
	c.mu.Unlock()
	if d == nil {
		return nil
	}
	rects, ok := c.dragRects(d, p)
	if !ok {
		return nil
	}
	if err := c.store.Update(ctx, d.id, domain.Patch{Rects: rects}); err != nil {
		return err
	}
	c.store.Flush(d.id)
	return nil
}

func (c *Controller) dragRects(d *dragState, p geometry.Point) ([]domain.Rect, bool) {
	off, ok := c.store.factory.Scene().Offset(d.page)
	if !ok {
		return nil, false
	}
	moved := d.box
	moved.Left += p.X - d.start.X
	moved.Top += p.Y - d.start.Y
	moved = geometry.Clamp(moved, off)

	delta := geometry.Point{X: moved.Left - d.box.Left, Y: moved.Top - d.box.Top}
	rects := make([]domain.Rect, len(d.origin))
	for i, r := range d.origin {
		rects[i] = geometry.Translate(r, delta, off)
	}
	return rects, true
}

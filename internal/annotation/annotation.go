// Package annotation holds live annotations: persisted records paired with
// the elements they draw on a page's annotation layer. It provides the
// per-document Store, the kind-specific visual builders and the pointer
// Controller that turns gestures into new records.
package annotation

import (
	"sophosia/internal/domain"
	"sophosia/internal/render"
)

// Annotation is a live annotation. It is not safe for concurrent use; the
// Store serializes access.
type Annotation struct {
	rec      *domain.Annotation
	layer    *render.Layer
	elements []*render.Element
	ink      *InkSurface
	active   bool
	factory  *Factory
}

// ID returns the record id.
func (a *Annotation) ID() string { return a.rec.ID }

// Kind returns the annotation kind.
func (a *Annotation) Kind() domain.Kind { return a.rec.Kind }

// Page returns the page number.
func (a *Annotation) Page() int { return a.rec.PageNumber }

// Record returns a copy of the current record.
func (a *Annotation) Record() *domain.Annotation { return a.rec.Clone() }

// Active reports whether the annotation is highlighted as active.
func (a *Annotation) Active() bool { return a.active }

// Elements returns copies of the visual elements.
func (a *Annotation) Elements() []render.Element {
	out := make([]render.Element, len(a.elements))
	for i, el := range a.elements {
		out[i] = *el
	}
	return out
}

// Ink returns the drawing surface of an ink annotation, nil otherwise.
func (a *Annotation) Ink() *InkSurface { return a.ink }

// Mount inserts the elements into the page layer. It is a no-op when the
// layer already holds elements for this id.
func (a *Annotation) Mount() bool {
	return a.layer.Mount(a.rec.ID, a.elements...)
}

// Unmount removes the elements from the page layer.
func (a *Annotation) Unmount() {
	a.layer.Unmount(a.rec.ID)
}

// Mounted reports whether elements for this id are on the layer.
func (a *Annotation) Mounted() bool { return a.layer.Has(a.rec.ID) }

// SetActive toggles the active visual state.
func (a *Annotation) SetActive(on bool) {
	if a.active == on {
		return
	}
	a.active = on
	for _, el := range a.elements {
		el.Active = on
		a.layer.Update(el)
	}
}

// apply merges p into the record and restyles the mounted elements.
func (a *Annotation) apply(p domain.Patch) {
	p.Apply(a.rec)

	if p.Rects != nil {
		a.rebuild()
		return
	}
	if p.Color != nil {
		for _, el := range a.elements {
			paint(a.rec.Kind, &el.Style, a.rec.Color)
			a.layer.Update(el)
		}
	}
	if p.Content != nil && a.rec.Kind == domain.KindInk {
		if s, err := ParseInk(a.rec.Content); err == nil {
			s.Rescale(a.ink.Width, a.ink.Height, a.ink.Scale)
			a.ink = s
		}
		a.syncInk()
	}
}

// rebuild regenerates the geometry of every element. A change in the
// number of rects remounts the annotation.
func (a *Annotation) rebuild() {
	fresh := a.factory.elements(a.rec, a.ink)
	for _, el := range fresh {
		el.Active = a.active
	}
	if len(fresh) != len(a.elements) {
		mounted := a.Mounted()
		a.Unmount()
		a.elements = fresh
		if mounted {
			a.Mount()
		}
		return
	}
	for i, el := range fresh {
		el.Page = a.elements[i].Page
		*a.elements[i] = *el
		a.layer.Update(a.elements[i])
	}
}

// rescale follows a page re-render. Only ink surfaces depend on scale.
func (a *Annotation) rescale(width, height, scale float64) {
	if a.ink == nil {
		return
	}
	a.ink.Rescale(width, height, scale)
	a.syncInk()
}

// syncInk pushes the surface into the element payload and the record.
func (a *Annotation) syncInk() {
	payload := a.ink.Serialize()
	a.rec.Content = payload
	for _, el := range a.elements {
		el.Payload = payload
		a.layer.Update(el)
	}
}

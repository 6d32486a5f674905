package render

import (
	"sync"

	"sophosia/internal/geometry"
)

// Sink receives layer mutations. Implementations must not call back into
// the Scene.
type Sink interface {
	Mount(el Element)
	Update(el Element)
	Unmount(page int, annotationID string)
}

// RenderedFunc is called after a page was (re)rendered.
type RenderedFunc func(page int, offset geometry.PageOffset, scale float64)

type pageState struct {
	offset   geometry.PageOffset
	scale    float64
	rendered bool
}

// Scene is the page rendering surface provider: it tracks each page's
// surface box and scale and owns the per-page annotation layers.
type Scene struct {
	mu        sync.Mutex
	sink      Sink
	pages     map[int]*pageState
	layers    map[int]*Layer
	listeners []RenderedFunc
}

// NewScene creates a scene forwarding mutations to sink. A nil sink drops them.
func NewScene(sink Sink) *Scene {
	if sink == nil {
		sink = nopSink{}
	}
	return &Scene{
		sink:   sink,
		pages:  make(map[int]*pageState),
		layers: make(map[int]*Layer),
	}
}

// OnRendered registers a listener for page render events.
func (s *Scene) OnRendered(fn RenderedFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// PageRendered records the page's current surface box and scale and
// notifies listeners.
func (s *Scene) PageRendered(page int, offset geometry.PageOffset, scale float64) {
	s.mu.Lock()
	p := s.page(page)
	p.offset, p.scale, p.rendered = offset, scale, true
	listeners := append([]RenderedFunc(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(page, offset, scale)
	}
}

// MoveSurface updates the page box without a re-render, e.g. after scrolling.
func (s *Scene) MoveSurface(page int, offset geometry.PageOffset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.page(page).offset = offset
}

// Offset returns the page's surface box. ok is false until the page rendered.
func (s *Scene) Offset(page int) (geometry.PageOffset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[page]
	if !ok || !p.rendered || !p.offset.Valid() {
		return geometry.PageOffset{}, false
	}
	return p.offset, true
}

// Scale returns the page's render scale, 1 if unknown.
func (s *Scene) Scale(page int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pages[page]; ok && p.scale > 0 {
		return p.scale
	}
	return 1
}

// Layer returns the annotation layer of a page, creating it on first use.
func (s *Scene) Layer(page int) *Layer {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.layers[page]
	if !ok {
		l = &Layer{page: page, sink: s.sink, byAnnot: make(map[string][]*Element)}
		s.layers[page] = l
	}
	return l
}

// Snapshot returns copies of every element mounted on a page, in insertion order.
func (s *Scene) Snapshot(page int) []Element {
	return s.Layer(page).snapshot()
}

// Reset unmounts every layer and forgets all pages.
func (s *Scene) Reset() {
	s.mu.Lock()
	layers := s.layers
	s.layers = make(map[int]*Layer)
	s.pages = make(map[int]*pageState)
	s.mu.Unlock()

	for _, l := range layers {
		l.clear()
	}
}

func (s *Scene) page(n int) *pageState {
	p, ok := s.pages[n]
	if !ok {
		p = &pageState{scale: 1}
		s.pages[n] = p
	}
	return p
}

// Layer is the annotation layer of one page.
type Layer struct {
	mu      sync.Mutex
	page    int
	sink    Sink
	order   []string
	byAnnot map[string][]*Element
}

// Page returns the page number of the layer.
func (l *Layer) Page() int { return l.page }

// Has reports whether elements for the annotation are mounted.
func (l *Layer) Has(annotationID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.byAnnot[annotationID]
	return ok
}

// Mount inserts the elements of a single annotation. It is a no-op and
// returns false if that annotation already has elements on the layer.
func (l *Layer) Mount(annotationID string, els ...*Element) bool {
	l.mu.Lock()
	if _, ok := l.byAnnot[annotationID]; ok {
		l.mu.Unlock()
		return false
	}
	l.byAnnot[annotationID] = els
	l.order = append(l.order, annotationID)
	copies := make([]Element, len(els))
	for i, el := range els {
		el.Page = l.page
		copies[i] = *el
	}
	l.mu.Unlock()

	for _, el := range copies {
		l.sink.Mount(el)
	}
	return true
}

// Update pushes the current state of a mounted element to the sink.
func (l *Layer) Update(el *Element) {
	l.mu.Lock()
	_, ok := l.byAnnot[el.AnnotationID]
	cp := *el
	l.mu.Unlock()
	if ok {
		l.sink.Update(cp)
	}
}

// Unmount removes every element of the annotation.
func (l *Layer) Unmount(annotationID string) {
	l.mu.Lock()
	if _, ok := l.byAnnot[annotationID]; !ok {
		l.mu.Unlock()
		return
	}
	delete(l.byAnnot, annotationID)
	for i, id := range l.order {
		if id == annotationID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.mu.Unlock()

	l.sink.Unmount(l.page, annotationID)
}

// Count returns the number of mounted elements for an annotation.
func (l *Layer) Count(annotationID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.byAnnot[annotationID])
}

func (l *Layer) snapshot() []Element {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Element
	for _, id := range l.order {
		for _, el := range l.byAnnot[id] {
			out = append(out, *el)
		}
	}
	return out
}

func (l *Layer) clear() {
	l.mu.Lock()
	ids := l.order
	l.order = nil
	l.byAnnot = make(map[string][]*Element)
	l.mu.Unlock()

	for _, id := range ids {
		l.sink.Unmount(l.page, id)
	}
}

type nopSink struct{}

func (nopSink) Mount(Element)       {}
func (nopSink) Update(Element)      {}
func (nopSink) Unmount(int, string) {}

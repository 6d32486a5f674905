package render

import "sync"

// Op is one recorded layer mutation.
type Op struct {
	Kind         string // "mount" | "update" | "unmount"
	Page         int
	AnnotationID string
	Element      Element
}

// Recorder is a Sink that records every mutation, for tests and for
// replaying a layer into a freshly loaded webview.
type Recorder struct {
	mu  sync.Mutex
	Ops []Op
}

func (r *Recorder) Mount(el Element) {
	r.add(Op{Kind: "mount", Page: el.Page, AnnotationID: el.AnnotationID, Element: el})
}

func (r *Recorder) Update(el Element) {
	r.add(Op{Kind: "update", Page: el.Page, AnnotationID: el.AnnotationID, Element: el})
}

func (r *Recorder) Unmount(page int, annotationID string) {
	r.add(Op{Kind: "unmount", Page: page, AnnotationID: annotationID})
}

func (r *Recorder) add(op Op) {
	r.mu.Lock()
	r.Ops = append(r.Ops, op)
	r.mu.Unlock()
}

// Count returns how many ops of the given kind were recorded.
func (r *Recorder) Count(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, op := range r.Ops {
		if op.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent op, if any.
func (r *Recorder) Last() (Op, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.Ops) == 0 {
		return Op{}, false
	}
	return r.Ops[len(r.Ops)-1], true
}

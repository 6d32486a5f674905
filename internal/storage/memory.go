package storage

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"sophosia/internal/domain"
)

// MemoryStore is a DocStore kept in process memory.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]*memEntry
	closed bool
}

type memEntry struct {
	doc     domain.Doc
	deleted bool
}

var _ domain.DocStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]*memEntry)}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*domain.Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, domain.ErrStoreClosed
	}
	e, ok := m.docs[id]
	if !ok || e.deleted {
		return nil, fmt.Errorf("get %s: %w", id, domain.ErrNotFound)
	}
	d := cloneDoc(e.doc)
	return &d, nil
}

func (m *MemoryStore) Put(_ context.Context, doc *domain.Doc) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return "", domain.ErrStoreClosed
	}
	e, ok := m.docs[doc.ID]
	switch {
	case !ok && doc.Rev != "":
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrNotFound)
	case ok && !e.deleted && e.doc.Rev != doc.Rev:
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
	case ok && e.deleted && doc.Rev != "" && doc.Rev != e.doc.Rev:
		return "", fmt.Errorf("put %s: %w", doc.ID, domain.ErrConflict)
	}

	prev := ""
	if ok {
		prev = e.doc.Rev
	}
	d := cloneDoc(*doc)
	d.Rev = nextRev(prev)
	d.UpdatedAt = time.Now().UTC()
	m.docs[doc.ID] = &memEntry{doc: d}
	return d.Rev, nil
}

func (m *MemoryStore) Remove(_ context.Context, id, rev string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return domain.ErrStoreClosed
	}
	e, ok := m.docs[id]
	if !ok || e.deleted {
		return fmt.Errorf("remove %s: %w", id, domain.ErrNotFound)
	}
	if e.doc.Rev != rev {
		return fmt.Errorf("remove %s: %w", id, domain.ErrConflict)
	}
	e.deleted = true
	e.doc.Rev = nextRev(e.doc.Rev)
	e.doc.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *MemoryStore) Find(_ context.Context, sel domain.Selector) ([]domain.Doc, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, domain.ErrStoreClosed
	}
	var out []domain.Doc
	for _, e := range m.docs {
		if !e.deleted && sel.Match(&e.doc) {
			out = append(out, cloneDoc(e.doc))
		}
	}
	slices.SortFunc(out, func(a, b domain.Doc) int {
		if a.PageNumber != b.PageNumber {
			return a.PageNumber - b.PageNumber
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (m *MemoryStore) Compact(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, domain.ErrStoreClosed
	}
	n := 0
	for id, e := range m.docs {
		if e.deleted && e.doc.UpdatedAt.Before(before) {
			delete(m.docs, id)
			n++
		}
	}
	return n, nil
}

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func cloneDoc(d domain.Doc) domain.Doc {
	d.Body = append([]byte(nil), d.Body...)
	return d
}

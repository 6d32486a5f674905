package domain

import (
	"context"
	"encoding/json"
	"slices"
	"time"
)

// Doc is one record in the document store. Body carries the full JSON of
// the typed record; the remaining fields are indexed copies used by Find.
type Doc struct {
	ID         string          `json:"_id"`
	Rev        string          `json:"_rev"`
	DataType   string          `json:"dataType"`
	DocumentID string          `json:"projectId,omitempty"`
	PageNumber int             `json:"pageNumber,omitempty"`
	Kind       string          `json:"type,omitempty"`
	Body       json.RawMessage `json:"body"`
	UpdatedAt  time.Time       `json:"updatedAt"`
}

// Selector is a conjunction of equality and membership predicates over
// the indexed fields. Zero values match anything.
type Selector struct {
	DataType   string
	DocumentID string
	PageNumber int
	Kinds      []string
	IDs        []string
}

// Match reports whether d satisfies the selector.
func (s Selector) Match(d *Doc) bool {
	if s.DataType != "" && d.DataType != s.DataType {
		return false
	}
	if s.DocumentID != "" && d.DocumentID != s.DocumentID {
		return false
	}
	if s.PageNumber != 0 && d.PageNumber != s.PageNumber {
		return false
	}
	if len(s.Kinds) > 0 && !slices.Contains(s.Kinds, d.Kind) {
		return false
	}
	if len(s.IDs) > 0 && !slices.Contains(s.IDs, d.ID) {
		return false
	}
	return true
}

// DocStore is a keyed record store with optimistic concurrency.
//
// Put inserts when doc.Rev is empty and updates otherwise; an update whose
// Rev does not match the stored revision fails with ErrConflict. Removed
// records become tombstones until Compact purges them.
type DocStore interface {
	Get(ctx context.Context, id string) (*Doc, error)
	Put(ctx context.Context, doc *Doc) (rev string, err error)
	Remove(ctx context.Context, id, rev string) error
	Find(ctx context.Context, sel Selector) ([]Doc, error)
	Compact(ctx context.Context, before time.Time) (int, error)
	Close() error
}

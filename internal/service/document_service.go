package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"sophosia/internal/domain"
	"sophosia/internal/logging"
	"sophosia/internal/pdfinfo"
)

// ─────────────────────────────────────────────────────────────
// Document Service: library entries and their attached PDFs
// ─────────────────────────────────────────────────────────────

// InspectFunc reads page geometry from a PDF file.
type InspectFunc func(path string) (*pdfinfo.Info, error)

// DocumentService manages document records.
type DocumentService struct {
	docs    domain.DocStore
	inspect InspectFunc
	emitter EventEmitter
	log     *slog.Logger
}

// NewDocumentService creates a DocumentService. A nil inspect uses pdfcpu.
func NewDocumentService(docs domain.DocStore, inspect InspectFunc, emitter EventEmitter) *DocumentService {
	if inspect == nil {
		inspect = pdfinfo.Inspect
	}
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &DocumentService{docs: docs, inspect: inspect, emitter: emitter, log: logging.WithComponent("service.documents")}
}

// Create adds a document. With a path, page count and sizes are read from the file.
func (s *DocumentService) Create(ctx context.Context, title, path string) (*domain.Document, error) {
	now := time.Now().UTC()
	d := &domain.Document{ID: uuid.NewString(), Title: strings.TrimSpace(title), Path: path, CreatedAt: now, UpdatedAt: now}
	if path != "" {
		if err := s.readPages(d); err != nil {
			return nil, fmt.Errorf("create document: %w", err)
		}
	}
	if d.Title == "" {
		d.Title = "Untitled"
	}
	if err := s.put(ctx, d); err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	return d, nil
}

// Get returns a document by id.
func (s *DocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if doc.DataType != domain.DataTypeDocument {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	d, err := decodeDoc[domain.Document](doc)
	if err != nil {
		return nil, err
	}
	d.ID, d.Rev = doc.ID, doc.Rev
	return d, nil
}

// List returns every document ordered by title.
func (s *DocumentService) List(ctx context.Context) ([]domain.Document, error) {
	docs, err := s.docs.Find(ctx, domain.Selector{DataType: domain.DataTypeDocument})
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	out := make([]domain.Document, 0, len(docs))
	for i := range docs {
		d, err := decodeDoc[domain.Document](&docs[i])
		if err != nil {
			s.log.Warn("skipping unreadable document", "id", docs[i].ID, "err", err)
			continue
		}
		d.ID, d.Rev = docs[i].ID, docs[i].Rev
		out = append(out, *d)
	}
	slices.SortFunc(out, func(a, b domain.Document) int { return strings.Compare(a.Title, b.Title) })
	return out, nil
}

// Rename changes the title.
func (s *DocumentService) Rename(ctx context.Context, id, title string) (*domain.Document, error) {
	return s.modify(ctx, id, func(d *domain.Document) error {
		d.Title = strings.TrimSpace(title)
		return nil
	})
}

// AttachFile sets the PDF of a document and reads its pages.
func (s *DocumentService) AttachFile(ctx context.Context, id, path string) (*domain.Document, error) {
	return s.modify(ctx, id, func(d *domain.Document) error {
		d.Path = path
		return s.readPages(d)
	})
}

// Refresh re-reads page geometry after the attached file changed.
func (s *DocumentService) Refresh(ctx context.Context, id string) (*domain.Document, error) {
	return s.modify(ctx, id, func(d *domain.Document) error {
		if d.Path == "" {
			return nil
		}
		return s.readPages(d)
	})
}

// Delete removes a document with its annotations and viewer state.
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	related, err := s.docs.Find(ctx, domain.Selector{DocumentID: id})
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	for _, d := range related {
		if err := s.docs.Remove(ctx, d.ID, d.Rev); err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("delete document %s: remove %s: %w", id, d.ID, err)
		}
	}

	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	if err := s.docs.Remove(ctx, id, doc.Rev); err != nil {
		return fmt.Errorf("delete document %s: %w", id, err)
	}
	s.log.Info("document deleted", "id", id, "cascaded", len(related))
	s.emitter.Emit(ctx, EventDocumentDeleted, id)
	return nil
}

func (s *DocumentService) modify(ctx context.Context, id string, fn func(d *domain.Document) error) (*domain.Document, error) {
	for attempt := 0; ; attempt++ {
		d, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if err := fn(d); err != nil {
			return nil, fmt.Errorf("update document %s: %w", id, err)
		}
		d.UpdatedAt = time.Now().UTC()
		err = s.put(ctx, d)
		if errors.Is(err, domain.ErrConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update document %s: %w", id, err)
		}
		return d, nil
	}
}

func (s *DocumentService) put(ctx context.Context, d *domain.Document) error {
	doc, err := encodeDoc(d.ID, d.Rev, domain.DataTypeDocument, "", d)
	if err != nil {
		return err
	}
	rev, err := s.docs.Put(ctx, doc)
	if err != nil {
		return err
	}
	d.Rev = rev
	return nil
}

func (s *DocumentService) readPages(d *domain.Document) error {
	info, err := s.inspect(d.Path)
	if err != nil {
		return err
	}
	d.PageCount = info.PageCount
	d.Pages = info.Pages
	return nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"sophosia/internal/annotation"
	"sophosia/internal/domain"
	"sophosia/internal/logging"
	"sophosia/internal/render"
	"sophosia/internal/storage"
)

// ─────────────────────────────────────────────────────────────
// Annotation Service: one live store per open document
// ─────────────────────────────────────────────────────────────

// SessionOptions configures the stores created by Open.
type SessionOptions struct {
	Wait        time.Duration
	MaxWait     time.Duration
	CommentSize float64
}

// Session is an open document: its page scene, live store and controller.
type Session struct {
	DocumentID string
	Scene      *render.Scene
	Store      *annotation.Store
	Controller *annotation.Controller
	Tools      domain.ToolContext
}

// PersistFailure is the payload of EventPersistFailed.
type PersistFailure struct {
	DocumentID   string `json:"documentId"`
	AnnotationID string `json:"annotationId"`
	Error        string `json:"error"`
	Retryable    bool   `json:"retryable"`
}

// AnnotationService opens documents for annotating and serves annotation
// CRUD to callers outside a session (MCP, bindings for closed documents).
type AnnotationService struct {
	docs    domain.DocStore
	emitter EventEmitter
	opts    SessionOptions
	log     *slog.Logger

	// open guards against a second store for the same document.
	open keyGuard

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewAnnotationService creates an AnnotationService.
func NewAnnotationService(docs domain.DocStore, emitter EventEmitter, opts SessionOptions) *AnnotationService {
	if emitter == nil {
		emitter = nopEmitter{}
	}
	return &AnnotationService{
		docs:     docs,
		emitter:  emitter,
		opts:     opts,
		log:      logging.WithComponent("service.annotations"),
		sessions: make(map[string]*Session),
	}
}

// Open loads the annotations of a document into a new session whose
// layers are mirrored to sink. Opening an open document fails with
// ErrDocumentOpen.
func (s *AnnotationService) Open(ctx context.Context, documentID string, tools domain.ToolContext, sink render.Sink) (*Session, error) {
	if !s.open.TryLock(documentID) {
		return nil, fmt.Errorf("open %s: %w", documentID, domain.ErrDocumentOpen)
	}

	scene := render.NewScene(sink)
	factory := annotation.NewFactory(scene, annotation.WithCommentSize(s.opts.CommentSize))
	store := annotation.NewStore(documentID, s.docs, factory, annotation.StoreOptions{
		Wait:    s.opts.Wait,
		MaxWait: s.opts.MaxWait,
	})
	store.OnPersistError(func(id string, err error) {
		s.emitter.Emit(context.Background(), EventPersistFailed, PersistFailure{
			DocumentID:   documentID,
			AnnotationID: id,
			Error:        err.Error(),
			Retryable:    errors.Is(err, domain.ErrConflict),
		})
	})
	if err := store.Load(ctx); err != nil {
		s.open.Unlock(documentID)
		return nil, fmt.Errorf("open %s: %w", documentID, err)
	}

	sess := &Session{
		DocumentID: documentID,
		Scene:      scene,
		Store:      store,
		Controller: annotation.NewController(store, tools, nil),
		Tools:      tools,
	}
	s.mu.Lock()
	s.sessions[documentID] = sess
	s.mu.Unlock()
	s.log.Info("document opened", "document", documentID, "annotations", store.Len())
	return sess, nil
}

// Session returns the open session of a document.
func (s *AnnotationService) Session(documentID string) (*Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[documentID]
	return sess, ok
}

// Sessions returns the ids of the open documents.
func (s *AnnotationService) Sessions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := lo.Keys(s.sessions)
	slices.Sort(ids)
	return ids
}

// Close flushes and tears down the session of a document.
func (s *AnnotationService) Close(ctx context.Context, documentID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[documentID]
	delete(s.sessions, documentID)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	sess.Controller.Detach()
	err := sess.Store.Close(ctx)
	sess.Scene.Reset()
	s.open.Unlock(documentID)
	s.log.Info("document closed", "document", documentID)
	return err
}

// CloseAll closes every session.
func (s *AnnotationService) CloseAll(ctx context.Context) {
	for _, id := range s.Sessions() {
		if err := s.Close(ctx, id); err != nil {
			s.log.Warn("close session failed", "document", id, "err", err)
		}
	}
	s.open.WaitAll(ctx)
}

// List returns the annotations of a document, optionally limited to a page
// and kinds. An open document is served from its live store.
func (s *AnnotationService) List(ctx context.Context, documentID string, page int, kinds ...domain.Kind) ([]*domain.Annotation, error) {
	match := func(a *domain.Annotation) bool {
		return (page == 0 || a.PageNumber == page) && (len(kinds) == 0 || slices.Contains(kinds, a.Kind))
	}
	if sess, ok := s.Session(documentID); ok {
		return lo.Filter(sess.Store.Records(), func(a *domain.Annotation, _ int) bool { return match(a) }), nil
	}

	docs, err := s.docs.Find(ctx, domain.Selector{
		DataType:   domain.DataTypeAnnotation,
		DocumentID: documentID,
		PageNumber: page,
		Kinds:      lo.Map(kinds, func(k domain.Kind, _ int) string { return string(k) }),
	})
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	out := make([]*domain.Annotation, 0, len(docs))
	for i := range docs {
		rec, _, err := annotation.DecodeRecord(&docs[i])
		if err != nil {
			s.log.Warn("skipping unreadable annotation", "id", docs[i].ID, "err", err)
			continue
		}
		if _, err := domain.ParseKind(string(rec.Kind)); err != nil {
			s.log.Warn("skipping annotation", "id", rec.ID, "err", err)
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Get returns one annotation.
func (s *AnnotationService) Get(ctx context.Context, id string) (*domain.Annotation, error) {
	if sess := s.owner(id); sess != nil {
		if a := sess.Store.ByID(id); a != nil {
			return a.Record(), nil
		}
	}
	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get annotation %s: %w", id, err)
	}
	if doc.DataType != domain.DataTypeAnnotation {
		return nil, fmt.Errorf("get annotation %s: %w", id, domain.ErrNotFound)
	}
	rec, _, err := annotation.DecodeRecord(doc)
	return rec, err
}

// Update applies a patch. In an open document the live store applies it
// and writes at once; otherwise the record is rewritten directly.
func (s *AnnotationService) Update(ctx context.Context, id string, p domain.Patch) (*domain.Annotation, error) {
	if sess := s.owner(id); sess != nil {
		if err := sess.Store.Update(ctx, id, p); err != nil {
			return nil, err
		}
		sess.Store.Flush(id)
		if a := sess.Store.ByID(id); a != nil {
			return a.Record(), nil
		}
		return nil, fmt.Errorf("update annotation %s: %w", id, domain.ErrNotFound)
	}

	for attempt := 0; ; attempt++ {
		rec, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		p.Apply(rec)
		doc, err := annotation.EncodeRecord(rec)
		if err != nil {
			return nil, err
		}
		rev, err := s.docs.Put(ctx, doc)
		if errors.Is(err, domain.ErrConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("update annotation %s: %w", id, err)
		}
		rec.Rev = rev
		return rec, nil
	}
}

// Delete removes one annotation.
func (s *AnnotationService) Delete(ctx context.Context, id string) error {
	if sess := s.owner(id); sess != nil {
		return sess.Store.Delete(ctx, id)
	}
	for attempt := 0; ; attempt++ {
		doc, err := s.docs.Get(ctx, id)
		if err != nil {
			return fmt.Errorf("delete annotation %s: %w", id, err)
		}
		if doc.DataType != domain.DataTypeAnnotation {
			return fmt.Errorf("delete annotation %s: %w", id, domain.ErrNotFound)
		}
		err = s.docs.Remove(ctx, id, doc.Rev)
		if errors.Is(err, domain.ErrConflict) && attempt == 0 {
			continue
		}
		if err != nil {
			return fmt.Errorf("delete annotation %s: %w", id, err)
		}
		return nil
	}
}

// ExternalChanges compares the stored revisions of an open document with
// its live store and returns the ids that differ, sorted.
func (s *AnnotationService) ExternalChanges(ctx context.Context, documentID string) ([]string, error) {
	sess, ok := s.Session(documentID)
	if !ok {
		return nil, fmt.Errorf("external changes %s: %w", documentID, domain.ErrNotFound)
	}
	docs, err := s.docs.Find(ctx, domain.Selector{DataType: domain.DataTypeAnnotation, DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	live := sess.Store.Revisions()
	stored := lo.SliceToMap(docs, func(d domain.Doc) (string, string) { return d.ID, d.Rev })

	var changed []string
	for id, rev := range stored {
		if have, ok := live[id]; !ok || revNewer(rev, have) {
			changed = append(changed, id)
		}
	}
	for id := range live {
		if _, ok := stored[id]; !ok {
			changed = append(changed, id)
		}
	}
	slices.Sort(changed)
	return changed, nil
}

// Reload closes and reopens a document so externally edited records are
// drawn again.
func (s *AnnotationService) Reload(ctx context.Context, documentID string, sink render.Sink) (*Session, error) {
	sess, ok := s.Session(documentID)
	if !ok {
		return nil, fmt.Errorf("reload %s: %w", documentID, domain.ErrNotFound)
	}
	tools := sess.Tools
	if err := s.Close(ctx, documentID); err != nil {
		return nil, err
	}
	return s.Open(ctx, documentID, tools, sink)
}

func (s *AnnotationService) owner(id string) *Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		if sess.Store.ByID(id) != nil {
			return sess
		}
	}
	return nil
}

// revNewer reports whether stored is a later revision than have. Writes
// in flight from the live store are not reported, so an equal or older
// stored generation is not a change.
func revNewer(stored, have string) bool {
	if stored == have {
		return false
	}
	return storage.RevGeneration(stored) > storage.RevGeneration(have)
}

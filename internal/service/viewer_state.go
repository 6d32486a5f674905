package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"sophosia/internal/annotation"
	"sophosia/internal/domain"
	"sophosia/internal/logging"
)

// ─────────────────────────────────────────────────────────────
// Viewer State: tool, stroke settings, page and scale per document
// ─────────────────────────────────────────────────────────────
//
// The state is kept in memory and written back through the same debounce
// as annotation updates. A document's state is the Tool/state context its
// annotation controller reads.

// ViewerStateService owns the viewer state of open documents.
type ViewerStateService struct {
	docs     domain.DocStore
	defaults domain.ToolSettings
	debounce *annotation.Debouncer
	log      *slog.Logger

	writeMu sync.Mutex

	mu     sync.RWMutex
	states map[string]*domain.ViewerState
}

// NewViewerStateService creates the service. defaults seed documents
// without a stored state.
func NewViewerStateService(docs domain.DocStore, defaults domain.ToolSettings, wait, maxWait time.Duration) *ViewerStateService {
	return &ViewerStateService{
		docs:     docs,
		defaults: defaults,
		debounce: annotation.NewDebouncer(wait, maxWait),
		log:      logging.WithComponent("service.viewer"),
		states:   make(map[string]*domain.ViewerState),
	}
}

// Load reads the stored state of a document, or starts from the defaults.
// The returned context stays valid until Forget.
func (s *ViewerStateService) Load(ctx context.Context, documentID string) (domain.ToolContext, error) {
	s.mu.RLock()
	_, ok := s.states[documentID]
	s.mu.RUnlock()
	if ok {
		return toolContext{s: s, documentID: documentID}, nil
	}

	st, err := s.fetch(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load viewer state %s: %w", documentID, err)
	}
	if st == nil {
		st = &domain.ViewerState{
			DocumentID:        documentID,
			CurrentPageNumber: 1,
			CurrentScale:      1,
			Tool:              domain.ToolCursor,
			ToolSettings:      s.defaults,
		}
	}

	s.mu.Lock()
	if _, ok := s.states[documentID]; !ok {
		s.states[documentID] = st
	}
	s.mu.Unlock()
	return toolContext{s: s, documentID: documentID}, nil
}

// Get returns a copy of the state of a loaded document.
func (s *ViewerStateService) Get(documentID string) (domain.ViewerState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.states[documentID]
	if !ok {
		return domain.ViewerState{}, false
	}
	return *st, true
}

// SetTool changes the active tool.
func (s *ViewerStateService) SetTool(documentID string, tool domain.Tool) error {
	return s.change(documentID, func(st *domain.ViewerState) { st.Tool = tool })
}

// SetSettings replaces the stroke settings. Empty color and non-positive
// sizes keep their current values.
func (s *ViewerStateService) SetSettings(documentID string, ts domain.ToolSettings) error {
	return s.change(documentID, func(st *domain.ViewerState) {
		if ts.Color != "" {
			st.Color = ts.Color
		}
		if ts.InkThickness > 0 {
			st.InkThickness = ts.InkThickness
		}
		if ts.InkOpacity > 0 && ts.InkOpacity <= 1 {
			st.InkOpacity = ts.InkOpacity
		}
		if ts.EraserThickness > 0 {
			st.EraserThickness = ts.EraserThickness
		}
	})
}

// SetPage records the page currently shown.
func (s *ViewerStateService) SetPage(documentID string, page int) error {
	if page < 1 {
		return fmt.Errorf("set page %d: %w", page, domain.ErrInvalidGeometry)
	}
	return s.change(documentID, func(st *domain.ViewerState) { st.CurrentPageNumber = page })
}

// SetScale records the render scale.
func (s *ViewerStateService) SetScale(documentID string, scale float64) error {
	if scale <= 0 {
		return fmt.Errorf("set scale %g: %w", scale, domain.ErrInvalidGeometry)
	}
	return s.change(documentID, func(st *domain.ViewerState) { st.CurrentScale = scale })
}

// Forget writes the pending state of a document and drops it from memory.
func (s *ViewerStateService) Forget(documentID string) {
	s.debounce.Flush(documentID)
	s.mu.Lock()
	delete(s.states, documentID)
	s.mu.Unlock()
}

// Close writes every pending state.
func (s *ViewerStateService) Close() {
	s.debounce.FlushAll()
	s.debounce.Stop()
}

func (s *ViewerStateService) change(documentID string, fn func(st *domain.ViewerState)) error {
	s.mu.Lock()
	st, ok := s.states[documentID]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("viewer state %s: %w", documentID, domain.ErrNotFound)
	}
	fn(st)
	s.mu.Unlock()

	s.debounce.Schedule(documentID, func() { s.persist(documentID) })
	return nil
}

func (s *ViewerStateService) persist(documentID string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	st, ok := s.states[documentID]
	var snapshot domain.ViewerState
	if ok {
		snapshot = *st
	}
	s.mu.RUnlock()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if snapshot.ID == "" {
		snapshot.ID = uuid.NewString()
	}
	rev, err := s.put(ctx, &snapshot)
	if errors.Is(err, domain.ErrConflict) {
		if cur, gerr := s.docs.Get(ctx, snapshot.ID); gerr == nil {
			snapshot.Rev = cur.Rev
			rev, err = s.put(ctx, &snapshot)
		}
	}
	if err != nil {
		s.log.Error("persist viewer state failed", "document", documentID, "err", err)
		return
	}

	s.mu.Lock()
	if st, ok := s.states[documentID]; ok {
		st.ID, st.Rev = snapshot.ID, rev
	}
	s.mu.Unlock()
}

func (s *ViewerStateService) put(ctx context.Context, st *domain.ViewerState) (string, error) {
	doc, err := encodeDoc(st.ID, st.Rev, domain.DataTypeViewerState, st.DocumentID, st)
	if err != nil {
		return "", err
	}
	return s.docs.Put(ctx, doc)
}

func (s *ViewerStateService) fetch(ctx context.Context, documentID string) (*domain.ViewerState, error) {
	docs, err := s.docs.Find(ctx, domain.Selector{DataType: domain.DataTypeViewerState, DocumentID: documentID})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	st, err := decodeDoc[domain.ViewerState](&docs[0])
	if err != nil {
		return nil, err
	}
	st.ID, st.Rev, st.DocumentID = docs[0].ID, docs[0].Rev, documentID
	if st.Tool == "" {
		st.Tool = domain.ToolCursor
	}
	if st.Color == "" {
		st.Color = s.defaults.Color
	}
	return st, nil
}

// toolContext reads one document's state for the annotation controller.
type toolContext struct {
	s          *ViewerStateService
	documentID string
}

func (t toolContext) Tool() domain.Tool {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if st, ok := t.s.states[t.documentID]; ok {
		return st.Tool
	}
	return domain.ToolCursor
}

func (t toolContext) Settings() domain.ToolSettings {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	if st, ok := t.s.states[t.documentID]; ok {
		return st.ToolSettings
	}
	return t.s.defaults
}

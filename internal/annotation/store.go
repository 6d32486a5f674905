package annotation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"sophosia/internal/domain"
	"sophosia/internal/geometry"
	"sophosia/internal/logging"
)

const persistTimeout = 10 * time.Second

// PersistErrorFunc is told about background writes that failed for good.
type PersistErrorFunc func(id string, err error)

// StoreOptions configures a Store.
type StoreOptions struct {
	Wait    time.Duration
	MaxWait time.Duration
	Logger  *slog.Logger
}

// Store owns the live annotations of one open document.
//
// Adding with persist writes to the record store first and inserts only on
// success. Updates apply in memory at once and persist the full record
// through a per-id debounce. Deletes unmount and forget the annotation
// immediately, cancel any pending write and then remove the record.
type Store struct {
	documentID string
	docs       domain.DocStore
	factory    *Factory
	debounce   *Debouncer
	log        *slog.Logger

	// writeMu serializes record-store writes issued by this Store.
	writeMu sync.Mutex

	mu        sync.Mutex
	items     []*Annotation
	active    string
	ready     bool
	closed    bool
	onPersist PersistErrorFunc
}

// NewStore creates the store of one document. Call Load before use.
func NewStore(documentID string, docs domain.DocStore, factory *Factory, opts StoreOptions) *Store {
	log := opts.Logger
	if log == nil {
		log = logging.WithComponent("annotation.store")
	}
	s := &Store{
		documentID: documentID,
		docs:       docs,
		factory:    factory,
		debounce:   NewDebouncer(opts.Wait, opts.MaxWait),
		log:        log.With("document", documentID),
	}
	factory.Scene().OnRendered(s.pageRendered)
	return s
}

// DocumentID returns the id of the document the store belongs to.
func (s *Store) DocumentID() string { return s.documentID }

// Factory returns the factory the store builds with.
func (s *Store) Factory() *Factory { return s.factory }

// OnPersistError registers the callback for failed background writes.
func (s *Store) OnPersistError(fn PersistErrorFunc) {
	s.mu.Lock()
	s.onPersist = fn
	s.mu.Unlock()
}

// Ready reports whether Load completed.
func (s *Store) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Load fetches every record of the document, draws it and marks the store
// ready. Legacy records are migrated and written back.
func (s *Store) Load(ctx context.Context) error {
	docs, err := s.docs.Find(ctx, domain.Selector{DataType: domain.DataTypeAnnotation, DocumentID: s.documentID})
	if err != nil {
		return fmt.Errorf("load annotations: %w", err)
	}

	var migrated []*domain.Annotation
	built := make([]*Annotation, 0, len(docs))
	for i := range docs {
		rec, legacy, err := DecodeRecord(&docs[i])
		if err != nil {
			s.log.Warn("skipping unreadable record", "id", docs[i].ID, "err", err)
			continue
		}
		a := s.factory.Build(rec)
		if a == nil {
			continue
		}
		if legacy {
			migrated = append(migrated, a.rec)
		}
		built = append(built, a)
	}
	slices.SortStableFunc(built, func(a, b *Annotation) int { return a.rec.PageNumber - b.rec.PageNumber })

	if len(migrated) > 0 {
		s.writeMu.Lock()
		for _, rec := range migrated {
			rev, err := s.write(ctx, rec)
			if err != nil {
				s.log.Warn("legacy migration write failed", "id", rec.ID, "err", err)
				continue
			}
			rec.Rev = rev
		}
		s.writeMu.Unlock()
		s.log.Info("migrated legacy annotations", "count", len(migrated))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrStoreClosed
	}
	for _, a := range built {
		if s.index(a.rec.ID) >= 0 {
			continue
		}
		s.items = append(s.items, a)
		a.Mount()
	}
	s.ready = true
	s.log.Debug("annotations loaded", "count", len(s.items))
	return nil
}

// Add inserts a live annotation and mounts it. With persist the record is
// written first and a failed write leaves the store untouched. Adding an id
// that is already present is a no-op.
func (s *Store) Add(ctx context.Context, a *Annotation, persist bool) error {
	if a == nil {
		return nil
	}
	if s.isClosed() {
		return domain.ErrStoreClosed
	}
	if persist {
		s.writeMu.Lock()
		rec := a.rec.Clone()
		rec.Rev = ""
		rev, err := s.write(ctx, rec)
		s.writeMu.Unlock()
		if err != nil {
			s.log.Error("add annotation failed", "id", a.rec.ID, "err", err)
			return fmt.Errorf("add annotation %s: %w", a.rec.ID, err)
		}
		a.rec.Rev = rev
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index(a.rec.ID) >= 0 {
		return nil
	}
	s.items = append(s.items, a)
	a.Mount()
	return nil
}

// Update applies p to the live annotation and schedules a write of the
// full record. Unknown ids return ErrNotFound. Rects that do not fit the
// kind return ErrInvalidGeometry.
func (s *Store) Update(_ context.Context, id string, p domain.Patch) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return domain.ErrStoreClosed
	}
	a := s.find(id)
	if a == nil {
		s.mu.Unlock()
		s.log.Debug("update of unknown annotation ignored", "id", id)
		return fmt.Errorf("update annotation %s: %w", id, domain.ErrNotFound)
	}
	if p.Empty() {
		s.mu.Unlock()
		return nil
	}
	if p.Rects != nil && !rectsFit(a.rec.Kind, len(p.Rects)) {
		s.mu.Unlock()
		return fmt.Errorf("update annotation %s: %d rects for %s: %w", id, len(p.Rects), a.rec.Kind, domain.ErrInvalidGeometry)
	}
	a.apply(p)
	s.mu.Unlock()

	s.debounce.Schedule(id, func() { s.persist(id) })
	return nil
}

// Flush writes a pending update of id now.
func (s *Store) Flush(id string) { s.debounce.Flush(id) }

// Delete removes the annotation. The visual and in-memory removal happen
// before the record store confirms.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	i := s.index(id)
	if i < 0 {
		s.mu.Unlock()
		s.log.Debug("delete of unknown annotation ignored", "id", id)
		return fmt.Errorf("delete annotation %s: %w", id, domain.ErrNotFound)
	}
	a := s.items[i]
	a.Unmount()
	s.items = slices.Delete(s.items, i, i+1)
	if s.active == id {
		s.active = ""
	}
	s.mu.Unlock()

	s.debounce.Cancel(id)

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.remove(ctx, id); err != nil {
		s.log.Error("delete annotation failed", "id", id, "err", err)
		return fmt.Errorf("delete annotation %s: %w", id, err)
	}
	return nil
}

// SetActive marks id as the single active annotation. An empty id clears
// the activation. Unknown ids are ignored.
func (s *Store) SetActive(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.find(id)
	if id != "" && next == nil {
		return false
	}
	if prev := s.find(s.active); prev != nil {
		prev.SetActive(false)
	}
	s.active = id
	if next != nil {
		next.SetActive(true)
	}
	return true
}

// ActiveID returns the active annotation id, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// ByPage returns the annotations of a page in insertion order.
func (s *Store) ByPage(page int) []*Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Filter(s.items, func(a *Annotation, _ int) bool { return a.rec.PageNumber == page })
}

// ByID returns the annotation with the given id, or nil.
func (s *Store) ByID(id string) *Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(id)
}

// Ink returns the ink annotation of a page, or nil. A page has at most one.
func (s *Store) Ink(page int) *Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, _ := lo.Find(s.items, func(a *Annotation) bool {
		return a.rec.PageNumber == page && a.rec.Kind == domain.KindInk
	})
	return a
}

// Records returns copies of every record.
func (s *Store) Records() []*domain.Annotation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.items, func(a *Annotation, _ int) *domain.Annotation { return a.rec.Clone() })
}

// Revisions maps each live id to its last known revision.
func (s *Store) Revisions() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.SliceToMap(s.items, func(a *Annotation) (string, string) { return a.rec.ID, a.rec.Rev })
}

// Len returns the number of live annotations.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Close writes pending updates, unmounts everything and rejects further use.
func (s *Store) Close(context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.debounce.FlushAll()
	s.debounce.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.items {
		a.Unmount()
	}
	s.items = nil
	s.active = ""
	return nil
}

// persist writes the current state of id. A record deleted in the meantime
// is not written.
func (s *Store) persist(id string) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	a := s.find(id)
	if a == nil {
		s.mu.Unlock()
		return
	}
	rec := a.rec.Clone()
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	rev, err := s.write(ctx, rec)
	if errors.Is(err, domain.ErrNotFound) {
		s.log.Warn("annotation gone from store, write dropped", "id", id, "err", err)
		return
	}
	if err != nil {
		s.log.Error("persist annotation failed", "id", id, "err", err)
		s.mu.Lock()
		fn := s.onPersist
		s.mu.Unlock()
		if fn != nil {
			fn(id, err)
		}
		return
	}

	s.mu.Lock()
	if a := s.find(id); a != nil {
		a.rec.Rev = rev
	}
	s.mu.Unlock()
}

// rectsFit reports whether n rects are valid geometry for kind.
func rectsFit(kind domain.Kind, n int) bool {
	switch {
	case kind == domain.KindRectangle, kind == domain.KindComment:
		return n == 1
	case kind.TextBased():
		return n > 0
	default:
		return true
	}
}

// write puts rec. On a revision conflict it re-fetches the stored revision
// and retries once with the live fields. Callers hold writeMu.
func (s *Store) write(ctx context.Context, rec *domain.Annotation) (string, error) {
	doc, err := EncodeRecord(rec)
	if err != nil {
		return "", err
	}
	rev, err := s.docs.Put(ctx, doc)
	if !errors.Is(err, domain.ErrConflict) {
		return rev, err
	}

	cur, gerr := s.docs.Get(ctx, rec.ID)
	if gerr != nil {
		return "", fmt.Errorf("refetch %s: %w", rec.ID, gerr)
	}
	s.log.Warn("revision conflict, retrying", "id", rec.ID, "have", rec.Rev, "stored", cur.Rev)
	doc.Rev = cur.Rev
	rev, err = s.docs.Put(ctx, doc)
	if err != nil {
		return "", fmt.Errorf("retry %s: %w", rec.ID, err)
	}
	return rev, nil
}

// remove deletes the stored record with a fresh revision, retrying once on
// conflict. A record that is already gone counts as removed.
func (s *Store) remove(ctx context.Context, id string) error {
	for attempt := 0; ; attempt++ {
		cur, err := s.docs.Get(ctx, id)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		err = s.docs.Remove(ctx, id, cur.Rev)
		if errors.Is(err, domain.ErrConflict) && attempt == 0 {
			continue
		}
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		return err
	}
}

func (s *Store) pageRendered(page int, off geometry.PageOffset, scale float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for _, a := range s.items {
		if a.rec.PageNumber == page && a.rec.Kind == domain.KindInk {
			a.rescale(off.Width, off.Height, scale)
		}
	}
}

func (s *Store) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Store) index(id string) int {
	if id == "" {
		return -1
	}
	_, i, ok := lo.FindIndexOf(s.items, func(a *Annotation) bool { return a.rec.ID == id })
	if !ok {
		return -1
	}
	return i
}

func (s *Store) find(id string) *Annotation {
	if i := s.index(id); i >= 0 {
		return s.items[i]
	}
	return nil
}

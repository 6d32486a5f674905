package annotation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sophosia/internal/domain"
	"sophosia/internal/geometry"
	"sophosia/internal/logging"
	"sophosia/internal/render"
	"sophosia/internal/storage"
)

const (
	testWait    = 20 * time.Millisecond
	testMaxWait = 60 * time.Millisecond
)

// countingStore wraps a DocStore and counts writes.
type countingStore struct {
	domain.DocStore

	mu        sync.Mutex
	puts      int
	conflicts int // number of upcoming Puts forced to conflict
}

func (c *countingStore) Put(ctx context.Context, d *domain.Doc) (string, error) {
	c.mu.Lock()
	c.puts++
	if c.conflicts > 0 {
		c.conflicts--
		c.mu.Unlock()
		return "", domain.ErrConflict
	}
	c.mu.Unlock()
	return c.DocStore.Put(ctx, d)
}

func (c *countingStore) Puts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.puts
}

func (c *countingStore) Reset() {
	c.mu.Lock()
	c.puts = 0
	c.mu.Unlock()
}

type toolStub struct {
	mu   sync.Mutex
	tool domain.Tool
	st   domain.ToolSettings
}

func (t *toolStub) Tool() domain.Tool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.tool
}

func (t *toolStub) Settings() domain.ToolSettings {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.st
}

func (t *toolStub) Set(tool domain.Tool) {
	t.mu.Lock()
	t.tool = tool
	t.mu.Unlock()
}

type fixture struct {
	docs   *countingStore
	sink   *render.Recorder
	scene  *render.Scene
	store  *Store
	tools  *toolStub
	ctrl   *Controller
	offset geometry.PageOffset
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		docs:   &countingStore{DocStore: storage.NewMemoryStore()},
		sink:   &render.Recorder{},
		tools:  &toolStub{tool: domain.ToolCursor, st: domain.ToolSettings{Color: "#ffd400", InkThickness: 4, InkOpacity: 0.8, EraserThickness: 20}},
		offset: geometry.PageOffset{Left: 100, Top: 50, Width: 600, Height: 800},
	}
	f.scene = render.NewScene(f.sink)
	f.scene.PageRendered(1, f.offset, 1)
	factory := NewFactory(f.scene, WithFactoryLogger(logging.Discard()))
	f.store = NewStore("doc-1", f.docs, factory, StoreOptions{Wait: testWait, MaxWait: testMaxWait, Logger: logging.Discard()})
	require.NoError(t, f.store.Load(context.Background()))
	f.ctrl = NewController(f.store, f.tools, logging.Discard())
	f.ctrl.Attach(1)
	t.Cleanup(func() { _ = f.store.Close(context.Background()) })
	return f
}

func (f *fixture) stored(t *testing.T, id string) *domain.Annotation {
	t.Helper()
	d, err := f.docs.DocStore.Get(context.Background(), id)
	require.NoError(t, err)
	rec, _, err := DecodeRecord(d)
	require.NoError(t, err)
	return rec
}

func highlightRecord(id string, page int) *domain.Annotation {
	return &domain.Annotation{
		ID:         id,
		DocumentID: "doc-1",
		PageNumber: page,
		Kind:       domain.KindHighlight,
		Color:      "#ffd400",
		Rects:      []domain.Rect{{Left: 10, Top: 10, Width: 20, Height: 2}, {Left: 10, Top: 12, Width: 15, Height: 2}},
	}
}

func strptr(s string) *string { return &s }

package annotation

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sophosia/internal/domain"
	"sophosia/internal/logging"
	"sophosia/internal/render"
	"sophosia/internal/storage"
)

func TestStore_AddWithoutPersistDedups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	rec := highlightRecord("h1", 1)

	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(rec), false))
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(rec), false))

	assert.Equal(t, 1, f.store.Len())
	assert.Len(t, f.store.ByPage(1), 1)
	assert.Equal(t, 2, f.scene.Layer(1).Count("h1"))
	assert.Zero(t, f.docs.Puts())
}

func TestStore_AddWithPersistWritesFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a := f.store.Factory().Build(highlightRecord("h1", 1))
	require.NoError(t, f.store.Add(ctx, a, true))
	assert.Equal(t, 1, f.docs.Puts())
	assert.Equal(t, 1, storage.RevGeneration(f.store.ByID("h1").Record().Rev))

	// A failed write leaves the store untouched.
	f.docs.mu.Lock()
	f.docs.conflicts = 2
	f.docs.mu.Unlock()
	err := f.store.Add(ctx, f.store.Factory().Build(highlightRecord("h2", 1)), true)
	require.Error(t, err)
	assert.Nil(t, f.store.ByID("h2"))
	assert.False(t, f.scene.Layer(1).Has("h2"))
}

func TestStore_DebouncedUpdateWritesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(highlightRecord("h1", 1)), true))
	f.docs.Reset()

	colors := []string{"#c1", "#c2", "#c3", "#c4", "#c5"}
	for _, c := range colors {
		require.NoError(t, f.store.Update(ctx, "h1", domain.Patch{Color: strptr(c)}))
	}

	// Visuals follow immediately.
	for _, el := range f.store.ByID("h1").Elements() {
		assert.Equal(t, "#c5", el.Style.Background)
	}

	require.Eventually(t, func() bool { return f.docs.Puts() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(3 * testMaxWait)
	assert.Equal(t, 1, f.docs.Puts())
	assert.Equal(t, "#c5", f.stored(t, "h1").Color)
}

func TestStore_UpdateFlushedWithinMaxWait(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(highlightRecord("h1", 1)), true))
	f.docs.Reset()

	// Keep updating faster than the quiet window for well past maxWait.
	deadline := time.Now().Add(4 * testMaxWait)
	for time.Now().Before(deadline) {
		require.NoError(t, f.store.Update(ctx, "h1", domain.Patch{Color: strptr("#abcdef")}))
		time.Sleep(testWait / 4)
	}
	assert.GreaterOrEqual(t, f.docs.Puts(), 2)
}

func TestStore_UpdateUnknownID(t *testing.T) {
	f := newFixture(t)
	err := f.store.Update(context.Background(), "nope", domain.Patch{Color: strptr("#000")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, f.store.Delete(context.Background(), "nope"), domain.ErrNotFound)
}

func TestStore_DeleteDropsPendingUpdate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(highlightRecord("h1", 1)), true))
	f.store.SetActive("h1")
	f.docs.Reset()

	require.NoError(t, f.store.Update(ctx, "h1", domain.Patch{Color: strptr("#000000")}))
	require.NoError(t, f.store.Delete(ctx, "h1"))

	time.Sleep(3 * testMaxWait)
	assert.Zero(t, f.docs.Puts())
	_, err := f.docs.DocStore.Get(ctx, "h1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.Nil(t, f.store.ByID("h1"))
	assert.False(t, f.scene.Layer(1).Has("h1"))
	assert.Empty(t, f.store.ActiveID())
}

func TestStore_SingleActive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(highlightRecord("a", 1)), false))
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(highlightRecord("b", 1)), false))

	f.store.SetActive("a")
	f.store.SetActive("b")
	assert.False(t, f.store.ByID("a").Active())
	assert.True(t, f.store.ByID("b").Active())
	for _, el := range f.scene.Snapshot(1) {
		assert.Equal(t, el.AnnotationID == "b", el.Active, el.ID)
	}

	assert.False(t, f.store.SetActive("missing"))
	assert.Equal(t, "b", f.store.ActiveID())

	f.store.SetActive("")
	assert.False(t, f.store.ByID("b").Active())
	assert.Empty(t, f.store.ActiveID())
}

func TestStore_ConflictRetriesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(highlightRecord("h1", 1)), true))

	// Someone else writes the record, leaving the live revision stale.
	d, err := f.docs.DocStore.Get(ctx, "h1")
	require.NoError(t, err)
	_, err = f.docs.DocStore.Put(ctx, d)
	require.NoError(t, err)

	require.NoError(t, f.store.Update(ctx, "h1", domain.Patch{Color: strptr("#00ff00")}))
	f.store.Flush("h1")

	got := f.stored(t, "h1")
	assert.Equal(t, "#00ff00", got.Color)
	assert.Equal(t, 3, storage.RevGeneration(got.Rev))
	assert.Equal(t, got.Rev, f.store.ByID("h1").Record().Rev)
}

func TestStore_ConflictTwiceReported(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(highlightRecord("h1", 1)), true))

	var (
		mu     sync.Mutex
		failed []error
	)
	f.store.OnPersistError(func(id string, err error) {
		mu.Lock()
		failed = append(failed, err)
		mu.Unlock()
	})
	f.docs.mu.Lock()
	f.docs.conflicts = 2
	f.docs.mu.Unlock()

	require.NoError(t, f.store.Update(ctx, "h1", domain.Patch{Color: strptr("#00ff00")}))
	f.store.Flush("h1")

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, failed, 1)
	assert.True(t, errors.Is(failed[0], domain.ErrConflict))
	// The in-memory state is kept.
	assert.Equal(t, "#00ff00", f.store.ByID("h1").Record().Color)
}

func TestStore_LoadMigratesLegacyComment(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStore()
	body := `{"_id":"c1","projectId":"doc-1","pageNumber":1,"type":"comment","color":"#fff","content":"note","rect":{"left":5,"top":6,"width":0,"height":0}}`
	_, err := mem.Put(ctx, &domain.Doc{ID: "c1", DataType: domain.DataTypeAnnotation, DocumentID: "doc-1", PageNumber: 1, Kind: "comment", Body: []byte(body)})
	require.NoError(t, err)
	stamp := `{"_id":"s1","projectId":"doc-1","pageNumber":1,"type":"stamp"}`
	_, err = mem.Put(ctx, &domain.Doc{ID: "s1", DataType: domain.DataTypeAnnotation, DocumentID: "doc-1", PageNumber: 1, Kind: "stamp", Body: []byte(stamp)})
	require.NoError(t, err)

	scene := render.NewScene(nil)
	s := NewStore("doc-1", mem, NewFactory(scene, WithFactoryLogger(logging.Discard())), StoreOptions{Logger: logging.Discard()})
	require.NoError(t, s.Load(ctx))
	defer s.Close(ctx)

	assert.True(t, s.Ready())
	assert.Equal(t, 1, s.Len())
	a := s.ByID("c1")
	require.NotNil(t, a)
	assert.Equal(t, []domain.Rect{{Left: 5, Top: 6}}, a.Record().Rects)

	d, err := mem.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, storage.RevGeneration(d.Rev))
	var raw map[string]any
	require.NoError(t, json.Unmarshal(d.Body, &raw))
	assert.Contains(t, raw, "rects")
	assert.NotContains(t, raw, "rect")
}

func TestStore_InkRescalesOnRender(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ink := &domain.Annotation{ID: "i1", DocumentID: "doc-1", PageNumber: 1, Kind: domain.KindInk}
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(ink), false))

	f.scene.PageRendered(1, f.offset, 2)
	s := f.store.Ink(1).Ink()
	assert.Equal(t, 2.0, s.Scale)
	assert.Equal(t, f.offset.Width, s.Width)
	assert.Nil(t, f.store.Ink(2))
}

func TestStore_CloseFlushesPending(t *testing.T) {
	ctx := context.Background()
	docs := &countingStore{DocStore: storage.NewMemoryStore()}
	scene := render.NewScene(nil)
	s := NewStore("doc-1", docs, NewFactory(scene), StoreOptions{Wait: time.Hour, MaxWait: time.Hour, Logger: logging.Discard()})
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Add(ctx, s.Factory().Build(highlightRecord("h1", 1)), true))
	require.NoError(t, s.Update(ctx, "h1", domain.Patch{Color: strptr("#123456")}))

	require.NoError(t, s.Close(ctx))
	assert.Equal(t, 2, docs.Puts())
	assert.ErrorIs(t, s.Add(ctx, s.Factory().Build(highlightRecord("h2", 1)), false), domain.ErrStoreClosed)
	assert.Zero(t, scene.Layer(1).Count("h1"))
}

func TestStore_WriteOfExternallyRemovedRecordDropped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(highlightRecord("h1", 1)), true))

	var (
		mu     sync.Mutex
		failed int
	)
	f.store.OnPersistError(func(string, error) {
		mu.Lock()
		failed++
		mu.Unlock()
	})

	d, err := f.docs.DocStore.Get(ctx, "h1")
	require.NoError(t, err)
	require.NoError(t, f.docs.DocStore.Remove(ctx, "h1", d.Rev))

	require.NoError(t, f.store.Update(ctx, "h1", domain.Patch{Color: strptr("#00ff00")}))
	f.store.Flush("h1")

	mu.Lock()
	assert.Zero(t, failed)
	mu.Unlock()
	_, err = f.docs.DocStore.Get(ctx, "h1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_UpdateAfterCloseRejected(t *testing.T) {
	ctx := context.Background()
	docs := &countingStore{DocStore: storage.NewMemoryStore()}
	s := NewStore("doc-1", docs, NewFactory(render.NewScene(nil)), StoreOptions{Wait: time.Hour, MaxWait: time.Hour, Logger: logging.Discard()})
	require.NoError(t, s.Load(ctx))
	require.NoError(t, s.Add(ctx, s.Factory().Build(highlightRecord("h1", 1)), true))
	require.NoError(t, s.Update(ctx, "h1", domain.Patch{Color: strptr("#123456")}))

	require.NoError(t, s.Close(ctx))
	assert.ErrorIs(t, s.Update(ctx, "h1", domain.Patch{Color: strptr("#654321")}), domain.ErrStoreClosed)

	d, err := docs.DocStore.Get(ctx, "h1")
	require.NoError(t, err)
	rec, _, err := DecodeRecord(d)
	require.NoError(t, err)
	assert.Equal(t, "#123456", rec.Color)
}

func TestStore_UpdateRejectsRectCountForKind(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	box := &domain.Annotation{
		ID: "r1", DocumentID: "doc-1", PageNumber: 1, Kind: domain.KindRectangle, Color: "#ffd400",
		Rects: []domain.Rect{{Left: 10, Top: 10, Width: 20, Height: 20}},
	}
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(box), true))
	require.NoError(t, f.store.Add(ctx, f.store.Factory().Build(highlightRecord("h1", 1)), true))

	two := []domain.Rect{{Left: 1, Top: 1, Width: 5, Height: 5}, {Left: 7, Top: 7, Width: 5, Height: 5}}
	assert.ErrorIs(t, f.store.Update(ctx, "r1", domain.Patch{Rects: two}), domain.ErrInvalidGeometry)
	assert.ErrorIs(t, f.store.Update(ctx, "r1", domain.Patch{Rects: []domain.Rect{}}), domain.ErrInvalidGeometry)
	assert.ErrorIs(t, f.store.Update(ctx, "h1", domain.Patch{Rects: []domain.Rect{}}), domain.ErrInvalidGeometry)
	assert.Equal(t, box.Rects, f.store.ByID("r1").Record().Rects)

	require.NoError(t, f.store.Update(ctx, "h1", domain.Patch{Rects: two}))
	assert.Equal(t, two, f.store.ByID("h1").Record().Rects)
}

package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sophosia/internal/domain"
	"sophosia/internal/pdfinfo"
	"sophosia/internal/service"
	"sophosia/internal/storage"
)

func fakeInspect(path string) (*pdfinfo.Info, error) {
	if path == "broken.pdf" {
		return nil, errors.New("not a pdf")
	}
	return &pdfinfo.Info{PageCount: 2, Pages: []domain.PageSize{{Width: 612, Height: 792}, {Width: 612, Height: 792}}}, nil
}

func TestDocumentService_CreateAndList(t *testing.T) {
	ctx := context.Background()
	svc := service.NewDocumentService(storage.NewMemoryStore(), fakeInspect, &service.MockEmitter{})

	b, err := svc.Create(ctx, "  Beta ", "beta.pdf")
	require.NoError(t, err)
	assert.Equal(t, "Beta", b.Title)
	assert.Equal(t, 2, b.PageCount)
	assert.Len(t, b.Pages, 2)
	assert.NotEmpty(t, b.Rev)

	_, err = svc.Create(ctx, "Alpha", "")
	require.NoError(t, err)
	untitled, err := svc.Create(ctx, "", "")
	require.NoError(t, err)
	assert.Equal(t, "Untitled", untitled.Title)

	_, err = svc.Create(ctx, "Broken", "broken.pdf")
	assert.Error(t, err)

	docs, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, []string{"Alpha", "Beta", "Untitled"}, []string{docs[0].Title, docs[1].Title, docs[2].Title})
}

func TestDocumentService_RenameAndAttach(t *testing.T) {
	ctx := context.Background()
	svc := service.NewDocumentService(storage.NewMemoryStore(), fakeInspect, nil)

	d, err := svc.Create(ctx, "Draft", "")
	require.NoError(t, err)
	assert.Zero(t, d.PageCount)

	renamed, err := svc.Rename(ctx, d.ID, "Final")
	require.NoError(t, err)
	assert.Equal(t, "Final", renamed.Title)
	assert.NotEqual(t, d.Rev, renamed.Rev)

	attached, err := svc.AttachFile(ctx, d.ID, "paper.pdf")
	require.NoError(t, err)
	assert.Equal(t, "paper.pdf", attached.Path)
	assert.Equal(t, 2, attached.PageCount)

	got, err := svc.Get(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, attached.Rev, got.Rev)

	_, err = svc.Rename(ctx, "missing", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDocumentService_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	docs := storage.NewMemoryStore()
	emitter := &service.MockEmitter{}
	svc := service.NewDocumentService(docs, fakeInspect, emitter)

	d, err := svc.Create(ctx, "Paper", "paper.pdf")
	require.NoError(t, err)
	keep, err := svc.Create(ctx, "Other", "")
	require.NoError(t, err)

	body, _ := json.Marshal(domain.Annotation{ID: "a1", DocumentID: d.ID, Kind: domain.KindHighlight})
	for _, doc := range []domain.Doc{
		{ID: "a1", DataType: domain.DataTypeAnnotation, DocumentID: d.ID, Kind: "highlight", Body: body},
		{ID: "s1", DataType: domain.DataTypeViewerState, DocumentID: d.ID, Body: []byte(`{}`)},
		{ID: "a2", DataType: domain.DataTypeAnnotation, DocumentID: keep.ID, Kind: "highlight", Body: body},
	} {
		_, err := docs.Put(ctx, &doc)
		require.NoError(t, err)
	}

	require.NoError(t, svc.Delete(ctx, d.ID))

	left, err := docs.Find(ctx, domain.Selector{DocumentID: d.ID})
	require.NoError(t, err)
	assert.Empty(t, left)
	_, err = svc.Get(ctx, d.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	other, err := docs.Find(ctx, domain.Selector{DocumentID: keep.ID})
	require.NoError(t, err)
	assert.Len(t, other, 1)

	events := emitter.Named(service.EventDocumentDeleted)
	require.Len(t, events, 1)
	assert.Equal(t, d.ID, events[0].Data)
}

func TestDocumentService_GetRejectsOtherRecords(t *testing.T) {
	ctx := context.Background()
	docs := storage.NewMemoryStore()
	_, err := docs.Put(ctx, &domain.Doc{ID: "a1", DataType: domain.DataTypeAnnotation, Body: []byte(`{}`)})
	require.NoError(t, err)

	svc := service.NewDocumentService(docs, fakeInspect, nil)
	_, err = svc.Get(ctx, "a1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

package mcpserver

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sophosia/internal/annotation"
	"sophosia/internal/domain"
	"sophosia/internal/pdfinfo"
	"sophosia/internal/service"
	"sophosia/internal/storage"
)

type fixture struct {
	srv     *Server
	docs    *storage.MemoryStore
	emitter *service.MockEmitter
	docID   string
}

func newFixture(t *testing.T, approvals bool) *fixture {
	t.Helper()
	ctx := context.Background()
	docs := storage.NewMemoryStore()
	emitter := &service.MockEmitter{}
	inspect := func(string) (*pdfinfo.Info, error) { return &pdfinfo.Info{PageCount: 3}, nil }

	documents := service.NewDocumentService(docs, inspect, emitter)
	d, err := documents.Create(ctx, "Paper", "paper.pdf")
	require.NoError(t, err)

	for _, rec := range []domain.Annotation{
		{ID: "h1", DocumentID: d.ID, PageNumber: 1, Kind: domain.KindHighlight, Color: "#ffd400", Rects: []domain.Rect{{Left: 1, Top: 1, Width: 10, Height: 2}}},
		{ID: "c1", DocumentID: d.ID, PageNumber: 2, Kind: domain.KindComment, Content: "check this", Rects: []domain.Rect{{Left: 5, Top: 5}}},
		{ID: "i1", DocumentID: d.ID, PageNumber: 2, Kind: domain.KindInk, Content: `{"version":1}`},
	} {
		doc, err := annotation.EncodeRecord(&rec)
		require.NoError(t, err)
		_, err = docs.Put(ctx, doc)
		require.NoError(t, err)
	}

	deps := Deps{
		Emitter:     emitter,
		Documents:   documents,
		Annotations: service.NewAnnotationService(docs, emitter, service.SessionOptions{}),
	}
	if approvals {
		deps.ApprovalDB = docs
	}
	srv := New(ctx, deps)
	srv.approval.timeout = 2 * time.Second
	srv.approval.poll = 5 * time.Millisecond
	return &fixture{srv: srv, docs: docs, emitter: emitter, docID: d.ID}
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func TestListAnnotations_ActiveDocumentAndFilters(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	_, err := f.srv.handleListAnnotations(ctx, call(nil))
	assert.Error(t, err, "no active document")

	_, err = f.srv.handleSetActiveDocument(ctx, call(map[string]any{"documentId": f.docID}))
	require.NoError(t, err)

	res, err := f.srv.handleListAnnotations(ctx, call(map[string]any{"page": float64(2)}))
	require.NoError(t, err)
	var got []annotationSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	require.Len(t, got, 2)
	for _, a := range got {
		if a.Kind == domain.KindInk {
			assert.Empty(t, a.Content)
		}
	}

	res, err = f.srv.handleListAnnotations(ctx, call(map[string]any{"kind": "comment, highlight"}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Len(t, got, 2)

	_, err = f.srv.handleListAnnotations(ctx, call(map[string]any{"kind": "stamp"}))
	assert.ErrorIs(t, err, domain.ErrUnknownKind)
}

func TestUpdateAnnotation(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	res, err := f.srv.handleUpdateAnnotation(ctx, call(map[string]any{"annotationId": "c1", "content": "done", "color": "#00ff00"}))
	require.NoError(t, err)
	var got annotationSummary
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &got))
	assert.Equal(t, "done", got.Content)
	assert.Equal(t, "#00ff00", got.Color)
	assert.Len(t, f.emitter.Named(EventAnnotationsChanged), 1)

	_, err = f.srv.handleUpdateAnnotation(ctx, call(map[string]any{"annotationId": "i1", "content": "x"}))
	assert.Error(t, err)

	res, err = f.srv.handleUpdateAnnotation(ctx, call(map[string]any{"annotationId": "h1"}))
	require.NoError(t, err)
	assert.Equal(t, "Nothing to update", resultText(t, res))

	_, err = f.srv.handleGetAnnotation(ctx, call(map[string]any{"annotationId": "missing"}))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteAnnotation_InProcessApproval(t *testing.T) {
	f := newFixture(t, false)
	ctx := context.Background()

	go func() {
		for {
			if ev := f.emitter.Named(EventApprovalRequired); len(ev) > 0 {
				f.srv.Approve(ev[0].Data.(PendingAction).ID)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	res, err := f.srv.handleDeleteAnnotation(ctx, call(map[string]any{"annotationId": "h1"}))
	require.NoError(t, err)
	assert.Equal(t, "Annotation h1 deleted", resultText(t, res))
	_, err = f.docs.Get(ctx, "h1")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestDeleteAnnotation_StoredRejection(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	go func() {
		for {
			pending, err := PendingApprovals(ctx, f.docs)
			if err == nil && len(pending) == 1 {
				_ = ResolveApproval(ctx, f.docs, pending[0].ID, false)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	res, err := f.srv.handleDeleteAnnotation(ctx, call(map[string]any{"annotationId": "c1"}))
	require.NoError(t, err)
	assert.Equal(t, "Action rejected by user", resultText(t, res))

	_, err = f.docs.Get(ctx, "c1")
	require.NoError(t, err)
	pending, err := PendingApprovals(ctx, f.docs)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestApprovalQueue_StoredApprovalAndTimeout(t *testing.T) {
	docs := storage.NewMemoryStore()
	q := NewApprovalQueue(context.Background(), nopEmitter{})
	q.SetStore(docs)
	q.poll = 5 * time.Millisecond
	q.timeout = 2 * time.Second

	go func() {
		for {
			pending, _ := PendingApprovals(context.Background(), docs)
			if len(pending) == 1 {
				assert.Equal(t, "delete_annotation", pending[0].Tool)
				_ = ResolveApproval(context.Background(), docs, pending[0].ID, true)
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()
	ok, err := q.Request("delete_annotation", "Delete", `{"annotationIds":["a"]}`)
	require.NoError(t, err)
	assert.True(t, ok)

	q.timeout = 20 * time.Millisecond
	ok, err = q.Request("delete_annotation", "Delete")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestDocumentsResource(t *testing.T) {
	f := newFixture(t, false)
	contents, err := f.srv.handleDocumentsResource(context.Background(), mcp.ReadResourceRequest{})
	require.NoError(t, err)
	require.Len(t, contents, 1)
	var got []documentSummary
	require.NoError(t, json.Unmarshal([]byte(contents[0].(mcp.TextResourceContents).Text), &got))
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].PageCount)
	assert.True(t, got[0].HasFile)
}

func TestDocumentIDFromURI(t *testing.T) {
	assert.Equal(t, "abc-123", documentIDFromURI("sophosia://document/abc-123/annotations"))
	assert.Empty(t, documentIDFromURI("sophosia://document/abc/def/annotations"))
	assert.Empty(t, documentIDFromURI("other://document/abc/annotations"))
}

package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDocumentTools() {
	// ── list_documents ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List all documents in the library"),
	), s.handleListDocuments)

	// ── get_document ───────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_document",
		mcp.WithDescription("Get a document with its attached file and page sizes"),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
	), s.handleGetDocument)

	// ── set_active_document ────────────────────────────
	s.mcp.AddTool(mcp.NewTool("set_active_document",
		mcp.WithDescription("Set the active document for subsequent tool calls. Tools that accept documentId will default to this."),
		mcp.WithString("documentId",
			mcp.Description("ID of the document to make active"),
			mcp.Required(),
		),
	), s.handleSetActiveDocument)
}

type documentSummary struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	PageCount int    `json:"pageCount"`
	HasFile   bool   `json:"hasFile"`
}

func (s *Server) handleListDocuments(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.documents.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	summaries := make([]documentSummary, len(docs))
	for i, d := range docs {
		summaries[i] = documentSummary{ID: d.ID, Title: d.Title, PageCount: d.PageCount, HasFile: d.Path != ""}
	}
	return jsonResult(summaries)
}

func (s *Server) handleGetDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := s.resolveDocumentID(req)
	if err != nil {
		return nil, err
	}
	d, err := s.documents.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return jsonResult(d)
}

func (s *Server) handleSetActiveDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id := req.GetString("documentId", "")
	if id == "" {
		return nil, fmt.Errorf("documentId is required")
	}
	if _, err := s.documents.Get(ctx, id); err != nil {
		return nil, fmt.Errorf("set active document: %w", err)
	}
	s.mu.Lock()
	s.activeDocumentID = id
	s.mu.Unlock()
	return textResult(fmt.Sprintf("Active document set to %s", id)), nil
}

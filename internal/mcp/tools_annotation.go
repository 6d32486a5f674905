package mcpserver

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"sophosia/internal/domain"
)

func (s *Server) registerAnnotationTools() {
	// ── list_annotations ───────────────────────────────
	s.mcp.AddTool(mcp.NewTool("list_annotations",
		mcp.WithDescription("List the annotations of a document, optionally filtered by page and kind"),
		mcp.WithString("documentId", mcp.Description("Document ID (optional, defaults to active document)")),
		mcp.WithNumber("page", mcp.Description("1-based page number (optional)")),
		mcp.WithString("kind",
			mcp.Description("Comma-separated kinds: highlight, underline, strikeout, rectangle, comment, ink (optional)"),
		),
	), s.handleListAnnotations)

	// ── get_annotation ─────────────────────────────────
	s.mcp.AddTool(mcp.NewTool("get_annotation",
		mcp.WithDescription("Get one annotation"),
		mcp.WithString("annotationId", mcp.Description("Annotation ID"), mcp.Required()),
	), s.handleGetAnnotation)

	// ── update_annotation ──────────────────────────────
	s.mcp.AddTool(mcp.NewTool("update_annotation",
		mcp.WithDescription("Change the color or the text content of an annotation"),
		mcp.WithString("annotationId", mcp.Description("Annotation ID"), mcp.Required()),
		mcp.WithString("color", mcp.Description("New CSS color (optional)")),
		mcp.WithString("content", mcp.Description("New comment text (optional, not allowed for ink)")),
	), s.handleUpdateAnnotation)

	// ── delete_annotation (destructive) ────────────────
	s.mcp.AddTool(mcp.NewTool("delete_annotation",
		mcp.WithDescription("🛑 DESTRUCTIVE: Delete an annotation. Requires user approval."),
		mcp.WithString("annotationId", mcp.Description("Annotation ID to delete"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleDeleteAnnotation)
}

// annotationSummary is the agent-facing view of a record. Ink payloads are
// left out; they are large and not meaningful as text.
type annotationSummary struct {
	ID      string        `json:"id"`
	Page    int           `json:"page"`
	Kind    domain.Kind   `json:"kind"`
	Color   string        `json:"color"`
	Rects   []domain.Rect `json:"rects"`
	Content string        `json:"content,omitempty"`
}

func summarizeAnnotation(a *domain.Annotation) annotationSummary {
	sum := annotationSummary{ID: a.ID, Page: a.PageNumber, Kind: a.Kind, Color: a.Color, Rects: a.Rects}
	if a.Kind != domain.KindInk {
		sum.Content = a.Content
	}
	return sum
}

func parseKinds(s string) ([]domain.Kind, error) {
	var kinds []domain.Kind
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, err := domain.ParseKind(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (s *Server) handleListAnnotations(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	documentID, err := s.resolveDocumentID(req)
	if err != nil {
		return nil, err
	}
	kinds, err := parseKinds(req.GetString("kind", ""))
	if err != nil {
		return nil, err
	}
	page := req.GetInt("page", 0)

	list, err := s.annotations.List(ctx, documentID, page, kinds...)
	if err != nil {
		return nil, fmt.Errorf("list annotations: %w", err)
	}
	summaries := make([]annotationSummary, len(list))
	for i, a := range list {
		summaries[i] = summarizeAnnotation(a)
	}
	return jsonResult(summaries)
}

func (s *Server) handleGetAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := s.getAnnotationForTool(ctx, req)
	if err != nil {
		return nil, err
	}
	return jsonResult(summarizeAnnotation(a))
}

func (s *Server) handleUpdateAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := s.getAnnotationForTool(ctx, req)
	if err != nil {
		return nil, err
	}

	args := req.GetArguments()
	var patch domain.Patch
	if v, ok := args["color"].(string); ok && v != "" {
		patch.Color = &v
	}
	if v, ok := args["content"].(string); ok {
		if a.Kind == domain.KindInk {
			return nil, fmt.Errorf("content of ink annotations cannot be edited")
		}
		patch.Content = &v
	}
	if patch.Empty() {
		return textResult("Nothing to update"), nil
	}

	updated, err := s.annotations.Update(ctx, a.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("update annotation: %w", err)
	}
	s.emitAnnotationsChanged(ctx, updated.DocumentID)
	return jsonResult(summarizeAnnotation(updated))
}

func (s *Server) handleDeleteAnnotation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := s.getAnnotationForTool(ctx, req)
	if err != nil {
		return nil, err
	}

	// Require approval (with metadata for frontend highlight)
	meta := fmt.Sprintf(`{"annotationIds":["%s"],"documentId":"%s","page":%d}`, a.ID, a.DocumentID, a.PageNumber)
	approved, err := s.approval.Request("delete_annotation",
		fmt.Sprintf("Delete %s annotation on page %d", a.Kind, a.PageNumber), meta)
	if err != nil || !approved {
		return textResult("Action rejected by user"), nil
	}

	if err := s.annotations.Delete(ctx, a.ID); err != nil {
		return nil, fmt.Errorf("delete annotation: %w", err)
	}

	s.emitAnnotationsChanged(ctx, a.DocumentID)
	return textResult(fmt.Sprintf("Annotation %s deleted", a.ID)), nil
}

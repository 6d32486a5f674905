package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("summarize_annotations",
		mcp.WithPromptDescription("Summarize the highlights and comments of a document"),
		mcp.WithArgument("documentId",
			mcp.ArgumentDescription("ID of the document"),
			mcp.RequiredArgument(),
		),
	), s.handleSummarizePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("tidy_annotations",
		mcp.WithPromptDescription("Review the annotations of a document and recolor or remove stray ones"),
		mcp.WithArgument("documentId",
			mcp.ArgumentDescription("ID of the document"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("color",
			mcp.ArgumentDescription("Color to use for important highlights"),
		),
	), s.handleTidyPrompt)
}

func (s *Server) handleSummarizePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	documentID := req.Params.Arguments["documentId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Summarize the annotations of %s", documentID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Summarize my reading notes for document "%s". Follow these steps:

1. Use get_document to learn the title and the number of pages
2. Use list_annotations with kind "comment" to collect my comments, page by page
3. Use list_annotations with kind "highlight,underline" to see which passages I marked
4. Write a short summary grouped by page, quoting my comments verbatim

Do not change or delete any annotation.`, documentID),
				},
			},
		},
	}, nil
}

func (s *Server) handleTidyPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	documentID := req.Params.Arguments["documentId"]
	color := req.Params.Arguments["color"]
	if color == "" {
		color = "#ffd400"
	}
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Tidy the annotations of %s", documentID),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Tidy the annotations of document "%s". Follow these steps:

1. Use set_active_document with "%s"
2. Use list_annotations to review every annotation
3. Recolor comments and highlights that mark key findings to %s with update_annotation
4. Propose deleting empty comments with delete_annotation; each deletion asks me for approval

Explain every change you make.`, documentID, documentID, color),
				},
			},
		},
	}, nil
}

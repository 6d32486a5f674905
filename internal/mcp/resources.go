package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	documentsURI         = "sophosia://documents"
	documentURIPrefix    = "sophosia://document/"
	annotationsURISuffix = "/annotations"
)

func (s *Server) registerResources() {
	// ── sophosia://documents ───────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		documentsURI,
		"All Documents",
		mcp.WithMIMEType("application/json"),
	), s.handleDocumentsResource)

	// ── sophosia://document/{documentId}/annotations ───
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			documentURIPrefix+"{documentId}"+annotationsURISuffix,
			"Annotations of a Document",
		),
		s.handleDocumentAnnotationsResource,
	)
}

func (s *Server) handleDocumentsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	docs, err := s.documents.List(ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]documentSummary, len(docs))
	for i, d := range docs {
		summaries[i] = documentSummary{ID: d.ID, Title: d.Title, PageCount: d.PageCount, HasFile: d.Path != ""}
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      documentsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleDocumentAnnotationsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	documentID := documentIDFromURI(uri)
	if documentID == "" {
		return nil, fmt.Errorf("could not extract documentId from URI: %s", uri)
	}

	list, err := s.annotations.List(ctx, documentID, 0)
	if err != nil {
		return nil, err
	}

	summaries := make([]annotationSummary, len(list))
	for i, a := range list {
		summaries[i] = summarizeAnnotation(a)
	}

	data, _ := json.MarshalIndent(summaries, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// documentIDFromURI extracts the id from "sophosia://document/{id}/annotations".
func documentIDFromURI(uri string) string {
	rest, ok := strings.CutPrefix(uri, documentURIPrefix)
	if !ok {
		return ""
	}
	id, ok := strings.CutSuffix(rest, annotationsURISuffix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}

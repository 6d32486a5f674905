package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"sophosia/internal/domain"
	"sophosia/internal/logging"
	"sophosia/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// EventAnnotationsChanged tells the frontend that an agent changed annotations.
const EventAnnotationsChanged = "mcp:annotations-changed"

// Server is the MCP server for Sophosia.
// It exposes tools, resources, and prompts so AI agents can read and edit
// the annotations of the library.
type Server struct {
	mcp      *server.MCPServer
	emitter  EventEmitter
	approval *ApprovalQueue
	log      *slog.Logger

	// Services (injected from app layer)
	documents   *service.DocumentService
	annotations *service.AnnotationService

	// Active document context (set by set_active_document tool)
	mu               sync.Mutex
	activeDocumentID string
}

// Deps holds all dependencies passed from the App layer to the MCP server.
type Deps struct {
	Emitter     EventEmitter
	Documents   *service.DocumentService
	Annotations *service.AnnotationService
	ApprovalDB  domain.DocStore // When set, use store-based approval (standalone mode)
}

// New creates and configures a new MCP server with all tools and resources.
func New(ctx context.Context, deps Deps) *Server {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = nopEmitter{}
	}
	approval := NewApprovalQueue(ctx, emitter)
	if deps.ApprovalDB != nil {
		approval.SetStore(deps.ApprovalDB)
	}
	s := &Server{
		emitter:     emitter,
		approval:    approval,
		log:         logging.WithComponent("mcp"),
		documents:   deps.Documents,
		annotations: deps.Annotations,
	}

	s.mcp = server.NewMCPServer(
		"sophosia-mcp",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDocumentTools()
	s.registerAnnotationTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.log.Info("starting stdio server")
	return server.ServeStdio(s.mcp)
}

// Approve forwards a user approval to the approval queue.
func (s *Server) Approve(actionID string) {
	s.approval.Approve(actionID)
}

// Reject forwards a user rejection to the approval queue.
func (s *Server) Reject(actionID string) {
	s.approval.Reject(actionID)
}

// ── Helpers ────────────────────────────────────────────────

// emitAnnotationsChanged notifies the frontend that annotations of a document changed.
func (s *Server) emitAnnotationsChanged(ctx context.Context, documentID string) {
	s.emitter.Emit(ctx, EventAnnotationsChanged, map[string]string{"documentId": documentID})
}

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// resolveDocumentID returns the documentId from tool args or falls back to
// the active document.
func (s *Server) resolveDocumentID(req mcp.CallToolRequest) (string, error) {
	if id := req.GetString("documentId", ""); id != "" {
		return id, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.activeDocumentID != "" {
		return s.activeDocumentID, nil
	}
	return "", fmt.Errorf("no documentId provided and no active document set (use set_active_document first)")
}

// getAnnotationForTool retrieves an annotation and validates it exists.
func (s *Server) getAnnotationForTool(ctx context.Context, req mcp.CallToolRequest) (*domain.Annotation, error) {
	id := req.GetString("annotationId", "")
	if id == "" {
		return nil, fmt.Errorf("annotationId is required")
	}
	return s.annotations.Get(ctx, id)
}

func boolPtr(v bool) *bool { return &v }

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, string, any) {}

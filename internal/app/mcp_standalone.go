package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"sophosia/internal/config"
	"sophosia/internal/logging"
	mcpserver "sophosia/internal/mcp"
	"sophosia/internal/secret"
	"sophosia/internal/service"
)

// ServeMCP runs the app as a standalone MCP server on stdin/stdout with no GUI.
// It opens the configured store and serves until interrupted. Destructive
// tools wait for approval records the desktop app resolves.
func ServeMCP(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log := logging.WithComponent("mcp.standalone")
	docs, err := openStore(ctx, cfg, secret.NewKeyringStore())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer docs.Close()

	emitter := noopEmitter{}
	wait, maxWait := cfg.Debounce()

	mcpSrv := mcpserver.New(ctx, mcpserver.Deps{
		Emitter:   emitter,
		Documents: service.NewDocumentService(docs, nil, emitter),
		Annotations: service.NewAnnotationService(docs, emitter, service.SessionOptions{
			Wait:        wait,
			MaxWait:     maxWait,
			CommentSize: cfg.Annotations.CommentSize,
		}),
		ApprovalDB: docs, // approvals are exchanged through the store
	})

	log.Info("starting standalone stdio server", "driver", cfg.Storage.Driver)
	if err := mcpSrv.ServeStdio(); err != nil {
		return fmt.Errorf("mcp server: %w", err)
	}
	return nil
}

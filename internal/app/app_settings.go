package app

// ─────────────────────────────────────────────────────────────
// Settings, maintenance and MCP approval handlers
// ─────────────────────────────────────────────────────────────

import (
	mcpserver "sophosia/internal/mcp"
	"sophosia/internal/service"
)

// ── Window ─────────────────────────────────────────────────

func (a *App) LoadWindowSize() service.WindowSize {
	return a.window.LoadWindowSize(a.ctx)
}

func (a *App) SaveWindowSize(width, height int) error {
	return a.window.SaveWindowSize(a.ctx, width, height)
}

// ── Maintenance ────────────────────────────────────────────

// CompactNow purges old tombstones immediately and returns how many went.
func (a *App) CompactNow() (int, error) {
	return a.compactor.Run(a.ctx)
}

// ── MCP Approvals ──────────────────────────────────────────
// The MCP server runs as a separate process; approvals are exchanged
// through the record store.

func (a *App) ListPendingApprovals() ([]mcpserver.PendingAction, error) {
	return mcpserver.PendingApprovals(a.ctx, a.docs)
}

func (a *App) ApproveMCPAction(id string) error {
	return mcpserver.ResolveApproval(a.ctx, a.docs, id, true)
}

func (a *App) RejectMCPAction(id string) error {
	return mcpserver.ResolveApproval(a.ctx, a.docs, id, false)
}

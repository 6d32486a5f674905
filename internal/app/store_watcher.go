package app

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	mcpserver "sophosia/internal/mcp"
	"sophosia/internal/service"
)

// storeWatcher polls the record store for changes to the open document,
// detecting external modifications (e.g. from the MCP standalone process)
// and emitting events so the frontend can reload.
type storeWatcher struct {
	ctx      context.Context
	app      *App
	interval time.Duration

	mu         sync.Mutex
	documentID string
	// A change set is reported once it was seen on two polls in a row, so
	// writes of the live store in flight are not mistaken for external ones.
	lastChange string
	reported   string
	stopCh     chan struct{}
	// Track emitted approval IDs to avoid infinite re-emission
	emittedApprovals map[string]bool
}

func newStoreWatcher(ctx context.Context, app *App, interval time.Duration) *storeWatcher {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &storeWatcher{ctx: ctx, app: app, interval: interval, emittedApprovals: map[string]bool{}}
}

// SetDocument updates the watched document. Called when a document is
// opened or closed.
func (w *storeWatcher) SetDocument(documentID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.documentID = documentID
	w.lastChange = ""
	w.reported = ""
}

// Start begins the polling loop. Should be called once on app startup.
func (w *storeWatcher) Start() {
	w.stopCh = make(chan struct{})
	go w.pollLoop()
}

// Stop terminates the polling loop.
func (w *storeWatcher) Stop() {
	if w.stopCh != nil {
		close(w.stopCh)
		w.stopCh = nil
	}
}

func (w *storeWatcher) pollLoop() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	stop := w.stopCh
	for {
		select {
		case <-ticker.C:
			w.check()
		case <-stop:
			return
		case <-w.ctx.Done():
			return
		}
	}
}

func (w *storeWatcher) check() {
	w.checkDocument()
	w.checkApprovals()
}

func (w *storeWatcher) checkDocument() {
	w.mu.Lock()
	documentID := w.documentID
	w.mu.Unlock()
	if documentID == "" {
		return
	}

	changed, err := w.app.annotations.ExternalChanges(w.ctx, documentID)
	if err != nil {
		return
	}
	key := strings.Join(changed, ",")

	w.mu.Lock()
	if w.documentID != documentID {
		w.mu.Unlock()
		return
	}
	emit := key != "" && key == w.lastChange && key != w.reported
	w.lastChange = key
	switch {
	case emit:
		w.reported = key
	case key == "":
		w.reported = ""
	}
	w.mu.Unlock()

	if emit {
		w.app.emitter.Emit(w.ctx, service.EventExternalChange, ExternalChangeEvent{
			DocumentID:    documentID,
			AnnotationIDs: slices.Clone(changed),
		})
	}
}

// checkApprovals forwards approvals requested by the standalone MCP process.
func (w *storeWatcher) checkApprovals() {
	pending, err := mcpserver.PendingApprovals(w.ctx, w.app.docs)
	if err != nil {
		return
	}

	live := make(map[string]bool, len(pending))
	var fresh []mcpserver.PendingAction
	w.mu.Lock()
	for _, p := range pending {
		live[p.ID] = true
		if !w.emittedApprovals[p.ID] {
			w.emittedApprovals[p.ID] = true
			fresh = append(fresh, p)
		}
	}
	// Clean up tracking for resolved/deleted approvals
	for id := range w.emittedApprovals {
		if !live[id] {
			delete(w.emittedApprovals, id)
		}
	}
	w.mu.Unlock()

	for _, p := range fresh {
		w.app.emitter.Emit(w.ctx, mcpserver.EventApprovalRequired, p)
	}
}

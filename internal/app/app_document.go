package app

// ─────────────────────────────────────────────────────────────
// Document Handlers: library, open/close, viewer state
// ─────────────────────────────────────────────────────────────

import (
	"fmt"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"sophosia/internal/domain"
)

// ── Library ────────────────────────────────────────────────

func (a *App) ListDocuments() ([]domain.Document, error) {
	return a.documents.List(a.ctx)
}

func (a *App) GetDocument(id string) (*domain.Document, error) {
	return a.documents.Get(a.ctx, id)
}

func (a *App) CreateDocument(title, path string) (*domain.Document, error) {
	return a.documents.Create(a.ctx, title, path)
}

func (a *App) RenameDocument(id, title string) (*domain.Document, error) {
	return a.documents.Rename(a.ctx, id, title)
}

// AttachFile points a document at a PDF file and rereads its pages.
func (a *App) AttachFile(id, path string) (*domain.Document, error) {
	d, err := a.documents.AttachFile(a.ctx, id, path)
	if err != nil {
		return nil, err
	}
	if a.isOpen(id) {
		a.watchFile(d)
	}
	return d, nil
}

// PickPDF shows a file dialog and returns the chosen path, empty if cancelled.
func (a *App) PickPDF() (string, error) {
	return wailsRuntime.OpenFileDialog(a.ctx, wailsRuntime.OpenDialogOptions{
		Title:   "Open PDF",
		Filters: []wailsRuntime.FileFilter{{DisplayName: "PDF documents", Pattern: "*.pdf"}},
	})
}

// DeleteDocument closes the document if open and removes it with every
// record that belongs to it.
func (a *App) DeleteDocument(id string) error {
	if a.isOpen(id) {
		if err := a.CloseDocument(); err != nil {
			a.log.Warn("close before delete", "document", id, "err", err)
		}
	}
	return a.documents.Delete(a.ctx, id)
}

// ── Open / Close ───────────────────────────────────────────

// OpenDocument makes id the current document: its viewer state is restored,
// its annotations are loaded and drawn as pages render.
func (a *App) OpenDocument(id string) (*OpenedDocument, error) {
	d, err := a.documents.Get(a.ctx, id)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	prev := a.documentID
	a.mu.Unlock()
	if prev == id {
		return a.opened(d)
	}
	if prev != "" {
		if err := a.CloseDocument(); err != nil {
			a.log.Warn("close previous document", "document", prev, "err", err)
		}
	}

	tools, err := a.viewer.Load(a.ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err := a.annotations.Open(a.ctx, id, tools, newLayerSink(a.ctx, a.emitter, id))
	if err != nil {
		a.viewer.Forget(id)
		return nil, err
	}

	state, _ := a.viewer.Get(id)
	a.mu.Lock()
	a.documentID = id
	a.page = state.CurrentPageNumber
	a.mu.Unlock()

	sess.Controller.Attach(state.CurrentPageNumber)
	a.watchFile(d)
	a.watcher.SetDocument(id)
	wailsRuntime.LogInfof(a.ctx, "[OpenDocument] %s on page %d", id, state.CurrentPageNumber)
	return a.opened(d)
}

// CloseDocument writes pending changes of the current document and clears
// its layers.
func (a *App) CloseDocument() error {
	a.mu.Lock()
	id := a.documentID
	a.documentID = ""
	a.page = 0
	a.mu.Unlock()
	if id == "" {
		return nil
	}

	a.watcher.SetDocument("")
	if a.files != nil {
		a.files.Unwatch(id)
	}
	err := a.annotations.Close(a.ctx, id)
	a.viewer.Forget(id)
	return err
}

// ReloadDocument redraws the current document from the store, picking up
// changes made by another process.
func (a *App) ReloadDocument() (*OpenedDocument, error) {
	sess, err := a.current()
	if err != nil {
		return nil, err
	}
	id := sess.DocumentID
	d, err := a.documents.Get(a.ctx, id)
	if err != nil {
		return nil, err
	}
	sess, err = a.annotations.Reload(a.ctx, id, newLayerSink(a.ctx, a.emitter, id))
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	page := a.page
	a.mu.Unlock()
	sess.Controller.Attach(page)
	return a.opened(d)
}

func (a *App) opened(d *domain.Document) (*OpenedDocument, error) {
	sess, ok := a.annotations.Session(d.ID)
	if !ok {
		return nil, fmt.Errorf("document %s: %w", d.ID, domain.ErrNotFound)
	}
	state, _ := a.viewer.Get(d.ID)
	return &OpenedDocument{Document: d, State: state, Annotations: sess.Store.Records()}, nil
}

func (a *App) isOpen(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return id != "" && a.documentID == id
}

func (a *App) watchFile(d *domain.Document) {
	if a.files == nil || d.Path == "" {
		return
	}
	if err := a.files.Watch(d.ID, d.Path); err != nil {
		a.log.Warn("watch document file", "document", d.ID, "path", d.Path, "err", err)
	}
}

// ── Viewer State ───────────────────────────────────────────

func (a *App) GetViewerState() (domain.ViewerState, error) {
	sess, err := a.current()
	if err != nil {
		return domain.ViewerState{}, err
	}
	state, _ := a.viewer.Get(sess.DocumentID)
	return state, nil
}

// ActivatePage moves annotation handling to page.
func (a *App) ActivatePage(page int) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	if err := a.viewer.SetPage(sess.DocumentID, page); err != nil {
		return err
	}
	a.mu.Lock()
	a.page = page
	a.mu.Unlock()
	sess.Controller.Detach()
	sess.Controller.Attach(page)
	return nil
}

// SetTool switches the annotation tool. Handlers are reattached so a
// gesture started with the old tool is dropped.
func (a *App) SetTool(name string) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	tool, err := domain.ParseTool(name)
	if err != nil {
		return err
	}
	if err := a.viewer.SetTool(sess.DocumentID, tool); err != nil {
		return err
	}
	a.mu.Lock()
	page := a.page
	a.mu.Unlock()
	sess.Controller.Detach()
	sess.Controller.Attach(page)
	return nil
}

func (a *App) SetToolSettings(ts domain.ToolSettings) error {
	sess, err := a.current()
	if err != nil {
		return err
	}
	return a.viewer.SetSettings(sess.DocumentID, ts)
}

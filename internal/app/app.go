package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"sophosia/internal/config"
	"sophosia/internal/domain"
	"sophosia/internal/logging"
	"sophosia/internal/secret"
	"sophosia/internal/service"
	"sophosia/internal/storage"
	"sophosia/internal/watch"
)

// App is the main Wails application struct.
// All exported methods are available as Wails bindings.
type App struct {
	ctx context.Context
	cfg config.Config
	log *slog.Logger

	docs    domain.DocStore
	secrets secret.SecretStore
	emitter service.EventEmitter

	documents   *service.DocumentService
	viewer      *service.ViewerStateService
	annotations *service.AnnotationService
	compactor   *service.Compactor
	window      *service.WindowSettingsService

	files   *watch.Watcher
	watcher *storeWatcher

	// Currently opened document and its visible page
	mu         sync.Mutex
	documentID string
	page       int
}

// New creates a new App.
func New(cfg config.Config) *App {
	return &App{
		cfg:     cfg,
		log:     logging.WithComponent("app"),
		secrets: secret.NewKeyringStore(),
	}
}

// Startup is called when the app starts.
func (a *App) Startup(ctx context.Context) {
	docs, err := openStore(ctx, a.cfg, a.secrets)
	if err != nil {
		wailsRuntime.LogFatalf(ctx, "Failed to open store: %v", err)
		return
	}
	a.wire(ctx, docs, &wailsEmitter{ctx: ctx})

	size := a.window.LoadWindowSize(ctx)
	wailsRuntime.WindowSetSize(ctx, size.Width, size.Height)

	if a.cfg.Watch.Files {
		files, err := watch.New(a.onFileChanged)
		if err != nil {
			a.log.Error("file watcher unavailable", "err", err)
		} else {
			a.files = files
		}
	}
	a.watcher.Start()

	if err := a.compactor.Start(ctx, a.cfg.Compaction.Schedule); err != nil {
		a.log.Error("compaction not scheduled", "schedule", a.cfg.Compaction.Schedule, "err", err)
	}
}

// BeforeClose saves the window size. It never prevents closing.
func (a *App) BeforeClose(ctx context.Context) bool {
	if a.window == nil {
		return false
	}
	w, h := wailsRuntime.WindowGetSize(ctx)
	if err := a.window.SaveWindowSize(ctx, w, h); err != nil {
		a.log.Warn("save window size", "err", err)
	}
	return false
}

// Shutdown is called when the app is closing.
func (a *App) Shutdown(ctx context.Context) {
	if a.docs == nil {
		return
	}
	a.watcher.Stop()
	if a.files != nil {
		a.files.Close()
	}
	a.compactor.Stop()
	a.annotations.CloseAll(ctx)
	a.viewer.Close()

	if err := a.docs.Close(); err != nil {
		a.log.Error("close store", "err", err)
	}
}

// wire builds the services on an opened store. It starts nothing.
func (a *App) wire(ctx context.Context, docs domain.DocStore, emitter service.EventEmitter) {
	a.ctx = ctx
	a.docs = docs
	a.emitter = emitter
	if a.log == nil {
		a.log = logging.WithComponent("app")
	}

	wait, maxWait := a.cfg.Debounce()
	retain, _ := a.cfg.Retain()
	poll, _ := a.cfg.PollInterval()

	a.documents = service.NewDocumentService(docs, nil, emitter)
	a.viewer = service.NewViewerStateService(docs, toolDefaults(a.cfg.Tools), wait, maxWait)
	a.annotations = service.NewAnnotationService(docs, emitter, service.SessionOptions{
		Wait:        wait,
		MaxWait:     maxWait,
		CommentSize: a.cfg.Annotations.CommentSize,
	})
	a.compactor = service.NewCompactor(docs, retain, emitter)
	a.window = service.NewWindowSettingsService(docs)
	a.watcher = newStoreWatcher(ctx, a, poll)
}

// openStore opens the configured backend. Remote backends read their
// password from the keyring entry named in the config.
func openStore(ctx context.Context, cfg config.Config, secrets secret.SecretStore) (domain.DocStore, error) {
	var password string
	switch cfg.Storage.Driver {
	case storage.DriverMySQL, storage.DriverPostgres, storage.DriverMongo:
		if cfg.Storage.SecretKey != "" && secrets != nil {
			pw, err := secrets.Get(cfg.Storage.SecretKey)
			if err != nil {
				return nil, fmt.Errorf("read storage password: %w", err)
			}
			password = string(pw)
		}
	}
	return storage.Open(ctx, cfg.StorageOptions(password))
}

func toolDefaults(t config.ToolsConfig) domain.ToolSettings {
	return domain.ToolSettings{
		Color:           t.Color,
		InkThickness:    t.InkThickness,
		InkOpacity:      t.InkOpacity,
		EraserThickness: t.EraserThickness,
	}
}

// current returns the session of the opened document.
func (a *App) current() (*service.Session, error) {
	a.mu.Lock()
	id := a.documentID
	a.mu.Unlock()
	if id == "" {
		return nil, errors.New("no document is open")
	}
	sess, ok := a.annotations.Session(id)
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return sess, nil
}

func (a *App) onFileChanged(documentID, path string) {
	d, err := a.documents.Refresh(a.ctx, documentID)
	if err != nil {
		a.log.Warn("refresh after file change", "document", documentID, "err", err)
		return
	}
	a.emitter.Emit(a.ctx, service.EventDocumentChanged, map[string]any{
		"documentId": documentID,
		"path":       path,
		"pageCount":  d.PageCount,
	})
}

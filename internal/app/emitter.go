package app

import (
	"context"

	wailsRuntime "github.com/wailsapp/wails/v2/pkg/runtime"

	"sophosia/internal/render"
	"sophosia/internal/service"
)

// Layer events mirrored by the frontend annotation layer.
const (
	EventLayerMount   = "annotation-layer:mount"
	EventLayerUpdate  = "annotation-layer:update"
	EventLayerUnmount = "annotation-layer:unmount"
)

// wailsEmitter forwards service events to the webview. Events may be emitted
// from timer goroutines, so the Wails context is held instead of the caller's.
type wailsEmitter struct {
	ctx context.Context
}

func (w *wailsEmitter) Emit(_ context.Context, event string, data any) {
	wailsRuntime.EventsEmit(w.ctx, event, data)
}

// layerSink turns render mutations of one document into webview events.
type layerSink struct {
	ctx        context.Context
	emitter    service.EventEmitter
	documentID string
}

func newLayerSink(ctx context.Context, emitter service.EventEmitter, documentID string) *layerSink {
	return &layerSink{ctx: ctx, emitter: emitter, documentID: documentID}
}

func (s *layerSink) Mount(el render.Element) {
	s.emitter.Emit(s.ctx, EventLayerMount, LayerElementEvent{DocumentID: s.documentID, Element: el})
}

func (s *layerSink) Update(el render.Element) {
	s.emitter.Emit(s.ctx, EventLayerUpdate, LayerElementEvent{DocumentID: s.documentID, Element: el})
}

func (s *layerSink) Unmount(page int, annotationID string) {
	s.emitter.Emit(s.ctx, EventLayerUnmount, LayerUnmountEvent{
		DocumentID:   s.documentID,
		Page:         page,
		AnnotationID: annotationID,
	})
}

// noopEmitter is a no-op EventEmitter used in MCP-only mode (no Wails frontend).
type noopEmitter struct{}

func (noopEmitter) Emit(_ context.Context, _ string, _ any) {}

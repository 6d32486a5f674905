package app

import (
	"sophosia/internal/domain"
	"sophosia/internal/render"
)

// OpenedDocument is returned to the frontend when a document is opened.
type OpenedDocument struct {
	Document    *domain.Document     `json:"document"`
	State       domain.ViewerState   `json:"state"`
	Annotations []*domain.Annotation `json:"annotations"`
}

// LayerElementEvent is the payload of mount and update layer events.
type LayerElementEvent struct {
	DocumentID string         `json:"documentId"`
	Element    render.Element `json:"element"`
}

// LayerUnmountEvent is the payload of unmount layer events.
type LayerUnmountEvent struct {
	DocumentID   string `json:"documentId"`
	Page         int    `json:"page"`
	AnnotationID string `json:"annotationId"`
}

// ExternalChangeEvent reports annotations changed by another process.
type ExternalChangeEvent struct {
	DocumentID    string   `json:"documentId"`
	AnnotationIDs []string `json:"annotationIds"`
}

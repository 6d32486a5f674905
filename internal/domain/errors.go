package domain

import "errors"

var (
	// ErrNotFound indicates the record does not exist or was removed.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a write carried a stale revision. It is retryable.
	ErrConflict = errors.New("revision conflict")

	// ErrUnknownKind indicates a record kind this build cannot render.
	ErrUnknownKind = errors.New("unknown annotation kind")

	// ErrInvalidGeometry indicates geometry that cannot produce an annotation.
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrStoreClosed indicates the annotation store was torn down.
	ErrStoreClosed = errors.New("annotation store closed")

	// ErrDocumentOpen indicates a second store was requested for an open document.
	ErrDocumentOpen = errors.New("document already open")
)

package domain

import "time"

const (
	DataTypeDocument    = "project"
	DataTypeViewerState = "pdfState"
	DataTypeApproval    = "mcpApproval"
)

// PageSize is a page's media box in PDF points.
type PageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Document is a library entry with an optional attached PDF.
type Document struct {
	ID        string     `json:"_id"`
	Rev       string     `json:"_rev,omitempty"`
	Title     string     `json:"title"`
	Path      string     `json:"path,omitempty"`
	PageCount int        `json:"pagesCount"`
	Pages     []PageSize `json:"pages,omitempty"`
	CreatedAt time.Time  `json:"timestampAdded"`
	UpdatedAt time.Time  `json:"timestampModified"`
}

// ViewerState is the persisted per-document state of the PDF viewer,
// including the tool context used by the annotation controller.
type ViewerState struct {
	ID                string  `json:"_id"`
	Rev               string  `json:"_rev,omitempty"`
	DocumentID        string  `json:"projectId"`
	CurrentPageNumber int     `json:"currentPageNumber"`
	CurrentScale      float64 `json:"currentScale"`
	Tool              Tool    `json:"tool"`
	ToolSettings
}

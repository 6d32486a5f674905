// Package pdfinfo reads page geometry from PDF files.
package pdfinfo

import (
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"sophosia/internal/domain"
)

// Info describes the pages of a PDF file.
type Info struct {
	PageCount int
	Pages     []domain.PageSize
}

// Inspect returns page count and page sizes, in PDF points.
func Inspect(path string) (*Info, error) {
	count, err := api.PageCountFile(path)
	if err != nil {
		return nil, fmt.Errorf("page count %s: %w", path, err)
	}
	dims, err := api.PageDimsFile(path)
	if err != nil {
		return nil, fmt.Errorf("page dims %s: %w", path, err)
	}
	return &Info{PageCount: count, Pages: pageSizes(dims)}, nil
}

func pageSizes(dims []types.Dim) []domain.PageSize {
	out := make([]domain.PageSize, len(dims))
	for i, d := range dims {
		out[i] = domain.PageSize{Width: d.Width, Height: d.Height}
	}
	return out
}

package annotation

import (
	"encoding/json"
	"fmt"
	"time"

	"sophosia/internal/domain"
)

// storedAnnotation is the body layout, plus the single rect older comments
// were saved with.
type storedAnnotation struct {
	domain.Annotation
	Rect *domain.Rect `json:"rect,omitempty"`
}

// EncodeRecord converts a record into a store document.
func EncodeRecord(a *domain.Annotation) (*domain.Doc, error) {
	if _, err := domain.ParseKind(string(a.Kind)); err != nil {
		return nil, fmt.Errorf("encode annotation %s: %w", a.ID, err)
	}
	body, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode annotation %s: %w", a.ID, err)
	}
	return &domain.Doc{
		ID:         a.ID,
		Rev:        a.Rev,
		DataType:   domain.DataTypeAnnotation,
		DocumentID: a.DocumentID,
		PageNumber: a.PageNumber,
		Kind:       string(a.Kind),
		Body:       body,
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

// DecodeRecord converts a store document into a record. migrated is true
// when a legacy single-rect comment was rewritten and should be saved back.
// The kind is not validated here; Factory.Build skips unknown kinds.
func DecodeRecord(d *domain.Doc) (rec *domain.Annotation, migrated bool, err error) {
	var s storedAnnotation
	if err := json.Unmarshal(d.Body, &s); err != nil {
		return nil, false, fmt.Errorf("decode annotation %s: %w", d.ID, err)
	}
	rec = &s.Annotation
	rec.ID, rec.Rev = d.ID, d.Rev
	if rec.DocumentID == "" {
		rec.DocumentID = d.DocumentID
	}
	if rec.Kind == "" {
		rec.Kind = domain.Kind(d.Kind)
	}
	if rec.Kind == domain.KindComment && len(rec.Rects) == 0 && s.Rect != nil {
		rec.Rects = []domain.Rect{*s.Rect}
		migrated = true
	}
	return rec, migrated, nil
}

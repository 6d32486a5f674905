package service

import (
	"encoding/json"
	"fmt"
	"time"

	"sophosia/internal/domain"
)

// encodeDoc wraps a typed record into a store document.
func encodeDoc(id, rev, dataType, documentID string, v any) (*domain.Doc, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", dataType, id, err)
	}
	return &domain.Doc{
		ID:         id,
		Rev:        rev,
		DataType:   dataType,
		DocumentID: documentID,
		Body:       body,
		UpdatedAt:  time.Now().UTC(),
	}, nil
}

// decodeDoc unmarshals the body of d into a new T.
func decodeDoc[T any](d *domain.Doc) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(d.Body, v); err != nil {
		return nil, fmt.Errorf("decode %s %s: %w", d.DataType, d.ID, err)
	}
	return v, nil
}

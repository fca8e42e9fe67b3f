package listing

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dyluth/deck/pkg/deck"
	"github.com/google/uuid"
)

// Loader is the part of a deck store ShowDocument needs.
type Loader interface {
	Get(ctx context.Context, id string) (*deck.Document, error)
}

// ShowDocument writes one presentation, as indented JSON or as an outline.
func ShowDocument(ctx context.Context, loader Loader, documentID string, asJSON bool, w io.Writer) error {
	if _, err := uuid.Parse(documentID); err != nil {
		return fmt.Errorf("invalid presentation ID format: must be a valid UUID")
	}

	doc, err := loader.Get(ctx, documentID)
	if err != nil {
		if deck.IsNotFound(err) {
			return &DocumentNotFoundError{DocumentID: documentID}
		}
		return fmt.Errorf("failed to fetch presentation: %w", err)
	}

	if asJSON {
		return FormatDocumentJSON(w, doc)
	}
	FormatOutline(w, doc, time.Now())
	return nil
}

// DocumentNotFoundError reports a presentation id with no record.
type DocumentNotFoundError struct {
	DocumentID string
}

func (e *DocumentNotFoundError) Error() string {
	return fmt.Sprintf("presentation with ID '%s' not found", e.DocumentID)
}

// IsNotFound returns true if the error is a DocumentNotFoundError.
func IsNotFound(err error) bool {
	_, ok := err.(*DocumentNotFoundError)
	return ok
}

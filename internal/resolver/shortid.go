// Package resolver expands short document id prefixes typed on the command
// line into full ids.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dyluth/deck/pkg/deck"
)

// MinShortIDLength is the minimum required length for short ID prefixes.
const MinShortIDLength = 6

// maxListed caps how many candidates an ambiguity report names.
const maxListed = 10

// Scanner is the part of a deck backend the resolver needs.
type Scanner interface {
	Load(ctx context.Context, id string) (*deck.Document, error)
	ScanDocuments(ctx context.Context, prefix string) ([]string, error)
}

// ResolveDocumentID resolves a short ID prefix to a full document id.
// A full UUID is checked for existence and returned as-is; anything else
// must be at least MinShortIDLength characters and match exactly one document.
func ResolveDocumentID(ctx context.Context, scanner Scanner, shortID string) (string, error) {
	if len(shortID) == 36 && strings.Count(shortID, "-") == 4 {
		if _, err := scanner.Load(ctx, shortID); err != nil {
			if deck.IsNotFound(err) {
				return "", &NotFoundError{ShortID: shortID}
			}
			return "", fmt.Errorf("failed to verify document existence: %w", err)
		}
		return shortID, nil
	}

	if len(shortID) < MinShortIDLength {
		return "", fmt.Errorf("short ID must be at least %d characters (got %d)", MinShortIDLength, len(shortID))
	}

	matches, err := scanner.ScanDocuments(ctx, strings.ToLower(shortID))
	if err != nil {
		return "", fmt.Errorf("failed to search for document: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", &NotFoundError{ShortID: shortID}
	case 1:
		return matches[0], nil
	default:
		return "", &AmbiguousError{ShortID: shortID, Matches: matches}
	}
}

// NotFoundError indicates no documents matched the short ID.
type NotFoundError struct {
	ShortID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no presentations found matching '%s'", e.ShortID)
}

// AmbiguousError indicates multiple documents matched the short ID.
type AmbiguousError struct {
	ShortID string
	Matches []string
}

func (e *AmbiguousError) Error() string {
	return fmt.Sprintf("ambiguous short ID '%s' matches %d presentations", e.ShortID, len(e.Matches))
}

// Candidates lists the matching ids for display, at most ten, followed by
// a "...and N more" line when truncated.
func (e *AmbiguousError) Candidates() []string {
	if len(e.Matches) <= maxListed {
		return append([]string(nil), e.Matches...)
	}
	out := append([]string(nil), e.Matches[:maxListed]...)
	return append(out, fmt.Sprintf("...and %d more", len(e.Matches)-maxListed))
}

// IsNotFoundError checks if an error is a NotFoundError.
func IsNotFoundError(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsAmbiguousError checks if an error is an AmbiguousError.
func IsAmbiguousError(err error) bool {
	var target *AmbiguousError
	return errors.As(err, &target)
}

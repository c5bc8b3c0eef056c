// Package extract pulls plain text out of source documents.
package extract

import (
	"context"
	"errors"
)

// Static errors for text extraction.
var (
	// ErrNotFound is returned when the source document does not exist.
	ErrNotFound = errors.New("extract: document not found")
	// ErrUnreadable is returned when the document cannot be parsed.
	ErrUnreadable = errors.New("extract: document unreadable")
	// ErrNoText is returned by callers when a document yields no text after normalization.
	ErrNoText = errors.New("extract: document contains no extractable text")
)

// Extractor defines the interface for text extraction.
type Extractor interface {
	// Extract returns the whitespace-normalized text of the document at path.
	// Pages without extractable text contribute nothing and are not an error.
	Extract(ctx context.Context, path string) (string, error)
}

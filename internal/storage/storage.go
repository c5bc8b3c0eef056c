// Package storage manages the scratch files that hold audio segments while a
// narration is assembled, and publishes finished narrations to S3.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Static errors for storage operations.
var (
	// ErrS3NotConfigured is returned when an upload is attempted without S3 configuration.
	ErrS3NotConfigured = errors.New("storage: S3 storage is not configured")
	// ErrInvalidLocation is returned when an s3:// URL cannot be parsed.
	ErrInvalidLocation = errors.New("storage: invalid s3 location")
)

// Storage defines the interface for scratch files and published objects.
type Storage interface {
	// SaveTemp writes data to a new scratch file named after prefix with the
	// given extension (without dot) and returns its path.
	SaveTemp(ctx context.Context, prefix, ext string, data io.Reader) (path string, err error)

	// CreateTemp reserves a new empty scratch file and returns its path.
	CreateTemp(ctx context.Context, prefix, ext string) (path string, err error)

	// Open opens a file for reading. The caller must close it.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes the given files. Missing files are ignored and removal
	// continues past failures, returning the first error.
	Remove(ctx context.Context, paths ...string) error

	// Upload copies the local file at path to loc and returns its URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	Upload(ctx context.Context, loc Location, path string) (url string, err error)
}

// Location identifies an object in S3. An empty Bucket means the configured default bucket.
type Location struct {
	Bucket string
	Key    string
}

// String returns the location as an s3:// URL.
func (l Location) String() string {
	return "s3://" + l.Bucket + "/" + l.Key
}

// IsS3URL reports whether s uses the s3:// scheme.
func IsS3URL(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// ParseLocation parses "s3://bucket/key". The key must be non-empty.
func ParseLocation(s string) (Location, error) {
	if !IsS3URL(s) {
		return Location{}, fmt.Errorf("%w: %q: missing s3:// scheme", ErrInvalidLocation, s)
	}
	bucket, key, ok := strings.Cut(strings.TrimPrefix(s, "s3://"), "/")
	if !ok || bucket == "" || key == "" {
		return Location{}, fmt.Errorf("%w: %q: want s3://bucket/key", ErrInvalidLocation, s)
	}
	return Location{Bucket: bucket, Key: key}, nil
}

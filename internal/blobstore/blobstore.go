// Package blobstore defines the object-store collaborator: durable blob
// storage with a public-read toggle and short-lived signed URLs for private
// blobs.
package blobstore

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrBlobNotFound is returned when a blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// Store is a handle to blob storage.
type Store interface {
	// Put writes a blob at the given path, replacing any existing content.
	Put(ctx context.Context, path string, r io.Reader, contentType string) error

	// Open returns a reader for the blob, its content type, and its size.
	Open(ctx context.Context, path string) (io.ReadCloser, string, int64, error)

	// MakePublic marks a blob as publicly readable.
	MakePublic(ctx context.Context, path string) error

	// IsPublic reports whether a blob is publicly readable.
	IsPublic(ctx context.Context, path string) (bool, error)

	// PublicURL returns the stable URL of a public blob.
	PublicURL(path string) string

	// SignedURL returns a time-limited read URL for a blob, valid for ttl.
	SignedURL(path string, ttl time.Duration) (string, error)
}

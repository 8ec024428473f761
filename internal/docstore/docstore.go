// Package docstore defines the document-store collaborator used by the
// registry and license services: named collections of JSON documents with
// exact-match and membership filters, ordering, offset/limit pagination,
// counts, and atomic multi-document batch writes. Per-document writes are
// strongly consistent; there are no cross-document transactions beyond an
// explicit batch.
package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("document not found")

// fieldRe limits filter and order fields to plain top-level property names.
var fieldRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)

// ValidField reports whether a field name may be used in filters or ordering.
func ValidField(field string) bool {
	return fieldRe.MatchString(field)
}

// Filter restricts a query to documents whose field matches. Exactly one of
// Value (equality) or AnyOf (array membership: the stored field is a list and
// at least one AnyOf element appears in it) is set.
type Filter struct {
	Field string
	Value any
	AnyOf []any
}

// Eq builds an equality filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// AnyOf builds a membership filter matching documents whose list-valued field
// contains at least one of the given values.
func AnyOf(field string, values ...string) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return Filter{Field: field, AnyOf: vs}
}

// Query describes a find operation over a collection.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Offset     int
	Limit      int
}

// Document is a raw query result.
type Document struct {
	ID   string
	Data json.RawMessage
}

// Decode unmarshals the document body into out.
func (d Document) Decode(out any) error {
	return json.Unmarshal(d.Data, out)
}

// Collection provides access to the documents under one collection name.
type Collection interface {
	// Get reads the document with the given id into out. Returns
	// ErrNotFound when the document does not exist.
	Get(ctx context.Context, id string, out any) error

	// Set writes the full document, creating or replacing it.
	Set(ctx context.Context, id string, doc any) error

	// Update merges the given top-level fields into an existing document.
	// Returns ErrNotFound when the document does not exist.
	Update(ctx context.Context, id string, fields map[string]any) error

	// Insert writes a document under a generated id and returns the id.
	Insert(ctx context.Context, doc any) (string, error)

	// Delete removes a document. Deleting a missing document is not an error.
	Delete(ctx context.Context, id string) error

	// Find runs a query and returns the matching documents.
	Find(ctx context.Context, q Query) ([]Document, error)

	// Count returns the total number of documents in the collection.
	Count(ctx context.Context) (int64, error)

	// Increment atomically adds delta to a numeric field, treating a missing
	// field as zero. Returns ErrNotFound when the document does not exist.
	Increment(ctx context.Context, id string, field string, delta int64) error
}

// Write is one operation inside a batch. When Fields is nil the write is a
// full set of Doc; otherwise it is a field merge into an existing document.
type Write struct {
	Collection string
	ID         string
	Doc        any
	Fields     map[string]any
}

// Store is a handle to the document database.
type Store interface {
	// Collection returns the collection with the given name, creating it
	// implicitly on first write.
	Collection(name string) Collection

	// RunBatch applies all writes atomically: either every write is applied
	// or none are.
	RunBatch(ctx context.Context, writes []Write) error

	// Close releases the underlying resources.
	Close() error
}

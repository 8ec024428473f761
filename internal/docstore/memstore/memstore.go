// Package memstore provides an in-memory implementation of the document
// store, used for tests and single-process development mode.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/layerhub-dev/layerhub/internal/docstore"
)

// store holds every collection behind one lock, which also gives batch
// writes their atomicity.
type store struct {
	mu          sync.RWMutex
	collections map[string]map[string]json.RawMessage
}

var _ docstore.Store = (*store)(nil)

// New creates an empty in-memory document store.
func New() docstore.Store {
	return &store{
		collections: make(map[string]map[string]json.RawMessage),
	}
}

// Collection implements docstore.Store.
func (s *store) Collection(name string) docstore.Collection {
	return &collection{store: s, name: name}
}

// RunBatch implements docstore.Store.
func (s *store) RunBatch(_ context.Context, writes []docstore.Write) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Validate everything up front so a failing write leaves no partial state.
	prepared := make([]func(), 0, len(writes))
	for _, w := range writes {
		w := w
		if w.Fields == nil {
			raw, err := json.Marshal(w.Doc)
			if err != nil {
				return fmt.Errorf("failed to encode document %s/%s: %w", w.Collection, w.ID, err)
			}
			prepared = append(prepared, func() {
				s.docsLocked(w.Collection)[w.ID] = raw
			})
			continue
		}

		existing, ok := s.docsLocked(w.Collection)[w.ID]
		if !ok {
			return fmt.Errorf("update %s/%s: %w", w.Collection, w.ID, docstore.ErrNotFound)
		}
		merged, err := mergeFields(existing, w.Fields)
		if err != nil {
			return err
		}
		prepared = append(prepared, func() {
			s.docsLocked(w.Collection)[w.ID] = merged
		})
	}

	for _, apply := range prepared {
		apply()
	}
	return nil
}

// Close implements docstore.Store.
func (*store) Close() error { return nil }

func (s *store) docsLocked(name string) map[string]json.RawMessage {
	docs, ok := s.collections[name]
	if !ok {
		docs = make(map[string]json.RawMessage)
		s.collections[name] = docs
	}
	return docs
}

type collection struct {
	store *store
	name  string
}

var _ docstore.Collection = (*collection)(nil)

func (c *collection) Get(_ context.Context, id string, out any) error {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	raw, ok := c.store.collections[c.name][id]
	if !ok {
		return docstore.ErrNotFound
	}
	return json.Unmarshal(raw, out)
}

func (c *collection) Set(_ context.Context, id string, doc any) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	c.store.docsLocked(c.name)[id] = raw
	return nil
}

func (c *collection) Update(_ context.Context, id string, fields map[string]any) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	existing, ok := c.store.collections[c.name][id]
	if !ok {
		return docstore.ErrNotFound
	}
	merged, err := mergeFields(existing, fields)
	if err != nil {
		return err
	}
	c.store.docsLocked(c.name)[id] = merged
	return nil
}

func (c *collection) Insert(ctx context.Context, doc any) (string, error) {
	id := uuid.NewString()
	if err := c.Set(ctx, id, doc); err != nil {
		return "", err
	}
	return id, nil
}

func (c *collection) Delete(_ context.Context, id string) error {
	c.store.mu.Lock()
	defer c.store.mu.Unlock()
	delete(c.store.collections[c.name], id)
	return nil
}

func (c *collection) Find(_ context.Context, q docstore.Query) ([]docstore.Document, error) {
	if q.OrderBy != "" && !docstore.ValidField(q.OrderBy) {
		return nil, fmt.Errorf("invalid order field %q", q.OrderBy)
	}
	for _, f := range q.Filters {
		if !docstore.ValidField(f.Field) {
			return nil, fmt.Errorf("invalid filter field %q", f.Field)
		}
	}

	c.store.mu.RLock()
	defer c.store.mu.RUnlock()

	type row struct {
		id     string
		raw    json.RawMessage
		fields map[string]any
	}

	var rows []row
	for id, raw := range c.store.collections[c.name] {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("corrupt document %s/%s: %w", c.name, id, err)
		}
		if !matches(fields, q.Filters) {
			continue
		}
		rows = append(rows, row{id: id, raw: raw, fields: fields})
	}

	if q.OrderBy != "" {
		sort.SliceStable(rows, func(i, j int) bool {
			if q.Descending {
				i, j = j, i
			}
			return lessValue(rows[i].fields[q.OrderBy], rows[j].fields[q.OrderBy])
		})
	} else {
		// Deterministic order for unordered queries.
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].id < rows[j].id })
	}

	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			rows = nil
		} else {
			rows = rows[q.Offset:]
		}
	}
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}

	docs := make([]docstore.Document, 0, len(rows))
	for _, r := range rows {
		docs = append(docs, docstore.Document{ID: r.id, Data: r.raw})
	}
	return docs, nil
}

func (c *collection) Count(_ context.Context) (int64, error) {
	c.store.mu.RLock()
	defer c.store.mu.RUnlock()
	return int64(len(c.store.collections[c.name])), nil
}

func (c *collection) Increment(_ context.Context, id string, field string, delta int64) error {
	if !docstore.ValidField(field) {
		return fmt.Errorf("invalid field %q", field)
	}

	c.store.mu.Lock()
	defer c.store.mu.Unlock()

	existing, ok := c.store.collections[c.name][id]
	if !ok {
		return docstore.ErrNotFound
	}

	var fields map[string]any
	if err := json.Unmarshal(existing, &fields); err != nil {
		return fmt.Errorf("corrupt document %s/%s: %w", c.name, id, err)
	}

	current, _ := fields[field].(float64)
	fields[field] = current + float64(delta)

	raw, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}
	c.store.docsLocked(c.name)[id] = raw
	return nil
}

// mergeFields applies a partial update on top of a stored document.
func mergeFields(existing json.RawMessage, fields map[string]any) (json.RawMessage, error) {
	var doc map[string]any
	if err := json.Unmarshal(existing, &doc); err != nil {
		return nil, fmt.Errorf("corrupt document: %w", err)
	}
	for k, v := range fields {
		doc[k] = normalize(v)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	return raw, nil
}

// normalize round-trips a value through JSON so comparisons see the same
// representation the store itself holds (float64 numbers, RFC3339 times).
func normalize(v any) any {
	raw, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return v
	}
	return out
}

func matches(fields map[string]any, filters []docstore.Filter) bool {
	for _, f := range filters {
		if f.AnyOf != nil {
			list, ok := fields[f.Field].([]any)
			if !ok || !containsAny(list, f.AnyOf) {
				return false
			}
			continue
		}
		if !reflect.DeepEqual(fields[f.Field], normalize(f.Value)) {
			return false
		}
	}
	return true
}

func containsAny(list []any, wanted []any) bool {
	for _, w := range wanted {
		nw := normalize(w)
		for _, v := range list {
			if reflect.DeepEqual(v, nw) {
				return true
			}
		}
	}
	return false
}

// lessValue orders JSON values: numbers numerically, strings
// lexicographically, timestamps chronologically, booleans false-before-true.
// Missing values sort first.
func lessValue(a, b any) bool {
	switch av := a.(type) {
	case nil:
		return b != nil
	case float64:
		bv, ok := b.(float64)
		return ok && av < bv
	case string:
		bv, ok := b.(string)
		if !ok {
			return false
		}
		// RFC3339 strings cannot be compared byte-wise: Go trims trailing
		// fraction zeros, so "...00.5Z" would sort after "...00.55Z".
		if at, err := time.Parse(time.RFC3339Nano, av); err == nil {
			if bt, err := time.Parse(time.RFC3339Nano, bv); err == nil {
				return at.Before(bt)
			}
		}
		return av < bv
	case bool:
		bv, ok := b.(bool)
		return ok && !av && bv
	default:
		return false
	}
}

package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerhub-dev/layerhub/internal/docstore"
	"github.com/layerhub-dev/layerhub/internal/docstore/memstore"
)

type testDoc struct {
	Name      string   `json:"name"`
	Downloads int64    `json:"downloads"`
	Official  bool     `json:"official"`
	Tags      []string `json:"tags,omitempty"`
}

func seedLayers(t *testing.T, coll docstore.Collection) {
	t.Helper()
	ctx := context.Background()

	docs := map[string]testDoc{
		"a": {Name: "auth", Downloads: 50, Official: true, Tags: []string{"auth", "security"}},
		"b": {Name: "blog", Downloads: 200, Official: false, Tags: []string{"content"}},
		"c": {Name: "cms", Downloads: 100, Official: true, Tags: []string{"content", "admin"}},
	}
	for id, doc := range docs {
		require.NoError(t, coll.Set(ctx, id, doc))
	}
}

func TestCollection_GetSet(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	coll := store.Collection("layers")

	require.NoError(t, coll.Set(ctx, "a", testDoc{Name: "auth", Downloads: 1}))

	var got testDoc
	require.NoError(t, coll.Get(ctx, "a", &got))
	assert.Equal(t, "auth", got.Name)
	assert.Equal(t, int64(1), got.Downloads)

	err := coll.Get(ctx, "missing", &got)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestCollection_Update(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	coll := store.Collection("layers")

	require.NoError(t, coll.Set(ctx, "a", testDoc{Name: "auth", Downloads: 1, Official: true}))
	require.NoError(t, coll.Update(ctx, "a", map[string]any{"downloads": 7}))

	var got testDoc
	require.NoError(t, coll.Get(ctx, "a", &got))
	assert.Equal(t, int64(7), got.Downloads)
	assert.Equal(t, "auth", got.Name, "untouched fields survive a merge")
	assert.True(t, got.Official)

	err := coll.Update(ctx, "missing", map[string]any{"downloads": 1})
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestCollection_Find_Filters(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	coll := store.Collection("layers")
	seedLayers(t, coll)

	tests := []struct {
		name    string
		query   docstore.Query
		wantIDs []string
	}{
		{
			name:    "equality on bool field",
			query:   docstore.Query{Filters: []docstore.Filter{docstore.Eq("official", true)}, OrderBy: "name"},
			wantIDs: []string{"a", "c"},
		},
		{
			name:    "any-of membership on tags",
			query:   docstore.Query{Filters: []docstore.Filter{docstore.AnyOf("tags", "content")}, OrderBy: "name"},
			wantIDs: []string{"b", "c"},
		},
		{
			name: "combined filters",
			query: docstore.Query{
				Filters: []docstore.Filter{
					docstore.Eq("official", true),
					docstore.AnyOf("tags", "content", "admin"),
				},
			},
			wantIDs: []string{"c"},
		},
		{
			name:    "no match",
			query:   docstore.Query{Filters: []docstore.Filter{docstore.Eq("name", "nope")}},
			wantIDs: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			docs, err := coll.Find(ctx, tt.query)
			require.NoError(t, err)

			var ids []string
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.wantIDs, ids)
		})
	}
}

func TestCollection_Find_OrderAndPagination(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	coll := store.Collection("layers")
	seedLayers(t, coll)

	docs, err := coll.Find(ctx, docstore.Query{OrderBy: "downloads", Descending: true})
	require.NoError(t, err)
	require.Len(t, docs, 3)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)
	assert.Equal(t, "a", docs[2].ID)

	docs, err = coll.Find(ctx, docstore.Query{OrderBy: "downloads", Descending: true, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].ID)

	docs, err = coll.Find(ctx, docstore.Query{OrderBy: "downloads", Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, docs, "offset past the end yields an empty page")
}

func TestCollection_Find_TimestampOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	coll := store.Collection("versions")

	type versionDoc struct {
		Version     string    `json:"version"`
		PublishedAt time.Time `json:"publishedAt"`
	}

	// Trailing fraction zeros are trimmed in JSON, so the earlier timestamp
	// serializes as "...00.5Z" and the later as "...00.55Z" — byte order and
	// chronological order disagree.
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	require.NoError(t, coll.Set(ctx, "l@1.0.0",
		versionDoc{Version: "1.0.0", PublishedAt: base.Add(500 * time.Millisecond)}))
	require.NoError(t, coll.Set(ctx, "l@1.1.0",
		versionDoc{Version: "1.1.0", PublishedAt: base.Add(550 * time.Millisecond)}))

	docs, err := coll.Find(ctx, docstore.Query{
		OrderBy: "publishedAt", Descending: true, Limit: 1,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	var latest versionDoc
	require.NoError(t, docs[0].Decode(&latest))
	assert.Equal(t, "1.1.0", latest.Version)
}

func TestCollection_Count(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	coll := store.Collection("layers")
	seedLayers(t, coll)

	n, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}

func TestCollection_Increment(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	coll := store.Collection("layers")

	require.NoError(t, coll.Set(ctx, "a", testDoc{Name: "auth", Downloads: 2}))
	require.NoError(t, coll.Increment(ctx, "a", "downloads", 1))
	require.NoError(t, coll.Increment(ctx, "a", "downloads", 1))

	var got testDoc
	require.NoError(t, coll.Get(ctx, "a", &got))
	assert.Equal(t, int64(4), got.Downloads)

	// A missing field starts from zero.
	require.NoError(t, coll.Increment(ctx, "a", "stars", 5))
	raw := struct {
		Stars int64 `json:"stars"`
	}{}
	require.NoError(t, coll.Get(ctx, "a", &raw))
	assert.Equal(t, int64(5), raw.Stars)

	err := coll.Increment(ctx, "missing", "downloads", 1)
	assert.ErrorIs(t, err, docstore.ErrNotFound)
}

func TestCollection_Insert(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	coll := store.Collection("licenses")

	id, err := coll.Insert(ctx, testDoc{Name: "inserted"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var got testDoc
	require.NoError(t, coll.Get(ctx, id, &got))
	assert.Equal(t, "inserted", got.Name)
}

func TestStore_RunBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Collection("layers").Set(ctx, "root", testDoc{Name: "auth", Downloads: 1}))

	err := store.RunBatch(ctx, []docstore.Write{
		{Collection: "versions", ID: "auth@1.1.0", Doc: testDoc{Name: "auth"}},
		{Collection: "layers", ID: "root", Fields: map[string]any{"downloads": 9}},
	})
	require.NoError(t, err)

	var version testDoc
	require.NoError(t, store.Collection("versions").Get(ctx, "auth@1.1.0", &version))

	var root testDoc
	require.NoError(t, store.Collection("layers").Get(ctx, "root", &root))
	assert.Equal(t, int64(9), root.Downloads)
}

func TestStore_RunBatch_Atomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := memstore.New()
	t.Cleanup(func() { _ = store.Close() })

	// The second write merges into a missing document, so the whole batch
	// must be rejected without applying the first write.
	err := store.RunBatch(ctx, []docstore.Write{
		{Collection: "versions", ID: "auth@1.0.0", Doc: testDoc{Name: "auth"}},
		{Collection: "layers", ID: "missing", Fields: map[string]any{"downloads": 1}},
	})
	require.Error(t, err)

	var got testDoc
	err = store.Collection("versions").Get(ctx, "auth@1.0.0", &got)
	assert.ErrorIs(t, err, docstore.ErrNotFound, "failed batch leaves no partial state")
}

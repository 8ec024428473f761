package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/layerhub-dev/layerhub/internal/docstore"
	"github.com/layerhub-dev/layerhub/internal/docstore/sqlite"
)

type testDoc struct {
	Name      string   `json:"name"`
	Downloads int64    `json:"downloads"`
	Official  bool     `json:"official"`
	Tags      []string `json:"tags,omitempty"`
}

func openStore(t *testing.T) docstore.Store {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestOpen_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := sqlite.Open("")
	assert.Error(t, err)
}

func TestCollection_SetGetUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coll := openStore(t).Collection("layers")

	require.NoError(t, coll.Set(ctx, "a", testDoc{Name: "auth", Downloads: 1, Official: true}))

	var got testDoc
	require.NoError(t, coll.Get(ctx, "a", &got))
	assert.Equal(t, "auth", got.Name)

	require.NoError(t, coll.Update(ctx, "a", map[string]any{"downloads": 5}))
	require.NoError(t, coll.Get(ctx, "a", &got))
	assert.Equal(t, int64(5), got.Downloads)
	assert.True(t, got.Official, "merge keeps untouched fields")

	assert.ErrorIs(t, coll.Get(ctx, "missing", &got), docstore.ErrNotFound)
	assert.ErrorIs(t, coll.Update(ctx, "missing", map[string]any{"downloads": 1}), docstore.ErrNotFound)
}

func TestCollection_Find(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coll := openStore(t).Collection("layers")
	require.NoError(t, coll.Set(ctx, "a", testDoc{Name: "auth", Downloads: 50, Official: true, Tags: []string{"auth"}}))
	require.NoError(t, coll.Set(ctx, "b", testDoc{Name: "blog", Downloads: 200, Tags: []string{"content"}}))
	require.NoError(t, coll.Set(ctx, "c", testDoc{Name: "cms", Downloads: 100, Official: true, Tags: []string{"content", "admin"}}))

	// Equality on a boolean field.
	docs, err := coll.Find(ctx, docstore.Query{
		Filters: []docstore.Filter{docstore.Eq("official", true)},
		OrderBy: "name",
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "a", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)

	// Membership on a list-valued field.
	docs, err = coll.Find(ctx, docstore.Query{
		Filters: []docstore.Filter{docstore.AnyOf("tags", "content")},
		OrderBy: "name",
	})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "b", docs[0].ID)
	assert.Equal(t, "c", docs[1].ID)

	// Descending order with offset/limit pagination.
	docs, err = coll.Find(ctx, docstore.Query{OrderBy: "downloads", Descending: true, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "c", docs[0].ID)

	// Decoding a result row.
	var got testDoc
	require.NoError(t, docs[0].Decode(&got))
	assert.Equal(t, "cms", got.Name)
}

func TestCollection_Find_TimestampOrdering(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := openStore(t)
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

	// Numeric ordering stays untouched by the timestamp normalization.
	layers := store.Collection("layers")
	require.NoError(t, layers.Set(ctx, "n1", testDoc{Name: "one", Downloads: 9}))
	require.NoError(t, layers.Set(ctx, "n2", testDoc{Name: "two", Downloads: 10}))
	docs, err = layers.Find(ctx, docstore.Query{OrderBy: "downloads", Descending: true, Limit: 1})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "n2", docs[0].ID)
}

func TestCollection_IncrementAndCount(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	coll := openStore(t).Collection("layers")
	require.NoError(t, coll.Set(ctx, "a", testDoc{Name: "auth", Downloads: 2}))

	require.NoError(t, coll.Increment(ctx, "a", "downloads", 3))

	var got testDoc
	require.NoError(t, coll.Get(ctx, "a", &got))
	assert.Equal(t, int64(5), got.Downloads)

	// Missing numeric fields start from zero.
	require.NoError(t, coll.Increment(ctx, "a", "stars", 1))
	raw := struct {
		Stars int64 `json:"stars"`
	}{}
	require.NoError(t, coll.Get(ctx, "a", &raw))
	assert.Equal(t, int64(1), raw.Stars)

	assert.ErrorIs(t, coll.Increment(ctx, "missing", "downloads", 1), docstore.ErrNotFound)

	n, err := coll.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestStore_RunBatch_Atomic(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := openStore(t)

	err := store.RunBatch(ctx, []docstore.Write{
		{Collection: "versions", ID: "auth@1.0.0", Doc: testDoc{Name: "auth"}},
		{Collection: "layers", ID: "missing", Fields: map[string]any{"downloads": 1}},
	})
	require.ErrorIs(t, err, docstore.ErrNotFound)

	var got testDoc
	err = store.Collection("versions").Get(ctx, "auth@1.0.0", &got)
	assert.ErrorIs(t, err, docstore.ErrNotFound, "failed batch rolls back every write")
}

func TestStore_RunBatch_Applies(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := openStore(t)
	require.NoError(t, store.Collection("layers").Set(ctx, "root", testDoc{Name: "auth", Downloads: 1}))

	err := store.RunBatch(ctx, []docstore.Write{
		{Collection: "versions", ID: "auth@1.1.0", Doc: testDoc{Name: "auth"}},
		{Collection: "layers", ID: "root", Fields: map[string]any{"downloads": 9}},
	})
	require.NoError(t, err)

	var root testDoc
	require.NoError(t, store.Collection("layers").Get(ctx, "root", &root))
	assert.Equal(t, int64(9), root.Downloads)
}

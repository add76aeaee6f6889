package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/poiesic/mmrag/ai/mock"
	"github.com/poiesic/mmrag/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

func newTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	backend, err := OpenBackend("", true)
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })
	return NewVectorStore(backend, mock.NewMockEmbedder())
}

func seedVectors(t *testing.T, store *VectorStore, docID string, texts ...string) []string {
	t.Helper()
	docs := make([]schema.Document, len(texts))
	for i, text := range texts {
		docs[i] = schema.Document{
			PageContent: text,
			Metadata: map[string]any{
				MetaDocID:     docID,
				MetaChildID:   fmt.Sprintf("%s-c%d", docID, i),
				"type":        "text",
				"page_number": i + 1,
			},
		}
	}
	ids, err := store.AddDocuments(context.Background(), docs)
	require.NoError(t, err)
	return ids
}

func TestVectorStore_AddAndSearch(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	ids := seedVectors(t, store, "doc-a", "attention is all you need", "convolutional networks for images")
	assert.Equal(t, []string{"doc-a-c0", "doc-a-c1"}, ids)
	seedVectors(t, store, "doc-b", "gradient descent with momentum")

	results, err := store.SimilaritySearch(ctx, "attention is all you need", 10)
	require.NoError(t, err)
	require.Len(t, results, 3)

	top := results[0]
	assert.Equal(t, "attention is all you need", top.PageContent)
	assert.InDelta(t, 0.0, top.Score, 1e-5)
	assert.Equal(t, "doc-a", top.Metadata[MetaDocID])
	assert.Equal(t, "doc-a-c0", top.Metadata[MetaChildID])

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Score, results[i].Score, "ascending distance")
		assert.GreaterOrEqual(t, results[i].Score, float32(0))
		assert.LessOrEqual(t, results[i].Score, float32(2))
	}
}

func TestVectorStore_SearchLimitAndFilters(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	seedVectors(t, store, "doc-a", "one", "two", "three")
	seedVectors(t, store, "doc-b", "four", "five")

	results, err := store.SimilaritySearch(ctx, "one", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)

	results, err = store.SimilaritySearch(ctx, "one", 10,
		vectorstores.WithFilters(map[string]any{MetaDocID: "doc-b"}))
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "doc-b", r.Metadata[MetaDocID])
	}

	// Integers match numbers decoded from JSON.
	results, err = store.SimilaritySearch(ctx, "one", 10,
		vectorstores.WithFilters(map[string]any{"page_number": 3}))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "three", results[0].PageContent)

	_, err = store.SimilaritySearch(ctx, "one", 10, vectorstores.WithFilters("bogus"))
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	_, err = store.SimilaritySearch(ctx, "one", 0)
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestVectorStore_AddRequiresDocID(t *testing.T) {
	store := newTestVectorStore(t)
	_, err := store.AddDocuments(context.Background(), []schema.Document{{PageContent: "orphan"}})
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)

	ids, err := store.AddDocuments(context.Background(),
		[]schema.Document{{PageContent: "namespaced"}}, vectorstores.WithNameSpace("doc-ns"))
	require.NoError(t, err)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])
}

func TestVectorStore_DeleteByDocument(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	seedVectors(t, store, "doc-a", "one", "two")
	seedVectors(t, store, "doc-b", "three")

	n, err := store.DeleteByDocument(ctx, "doc-a")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := store.CountVectors(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	results, err := store.SimilaritySearch(ctx, "one", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "doc-b", results[0].Metadata[MetaDocID])

	_, err = store.DeleteByDocument(ctx, "")
	assert.ErrorIs(t, err, storage.ErrInvalidQuery)
}

func TestVectorStore_ScanAndUpdate(t *testing.T) {
	store := newTestVectorStore(t)
	ctx := context.Background()

	seedVectors(t, store, "doc-a", "one", "two", "three")
	seedVectors(t, store, "doc-b", "four", "five")

	var (
		all    []*storage.VectorRecord
		cursor string
		pages  int
	)
	for {
		records, next, err := store.ScanVectors(ctx, cursor, 2)
		require.NoError(t, err)
		all = append(all, records...)
		pages++
		if next == "" {
			break
		}
		cursor = next
	}
	assert.Len(t, all, 5)
	assert.Equal(t, 3, pages)

	rec := all[0]
	rec.Vector = []float32{3, 4}
	require.NoError(t, store.UpdateVectors(ctx, rec))

	records, _, err := store.ScanVectors(ctx, "", 1)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, records[0].Vector, 1e-6)
	assert.Equal(t, rec.Content, records[0].Content)

	missing := &storage.VectorRecord{ID: "nope", DocID: "doc-a", Vector: []float32{1}}
	assert.ErrorIs(t, store.UpdateVectors(ctx, missing), storage.ErrNotFound)
}

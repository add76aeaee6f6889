package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/poiesic/mmrag/ai/mock"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/index"
	"github.com/poiesic/mmrag/storage/badger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// stubStore returns fixed hits and records the requested count.
type stubStore struct {
	hits      []schema.Document
	err       error
	requested int
	options   vectorstores.Options
}

func (s *stubStore) AddDocuments(ctx context.Context, docs []schema.Document, opts ...vectorstores.Option) ([]string, error) {
	return nil, errors.New("not supported")
}

func (s *stubStore) SimilaritySearch(ctx context.Context, query string, n int, opts ...vectorstores.Option) ([]schema.Document, error) {
	s.requested = n
	for _, opt := range opts {
		opt(&s.options)
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.hits) > n {
		return s.hits[:n], nil
	}
	return s.hits, nil
}

// mapResolver resolves from a fixed map keyed by child id.
type mapResolver map[string]*core.ContentElement

func (m mapResolver) Resolve(ctx context.Context, docID, childID string) (*core.ContentElement, error) {
	return m[childID], nil
}

// recordingMonitor counts drops by reason.
type recordingMonitor struct {
	noopMonitor
	dropped map[string]int
	applied ScoreMode
	fetched int
}

func (m *recordingMonitor) AfterVectorSearch(n int) { m.fetched = n }
func (m *recordingMonitor) Dropped(_ string, reason string) {
	if m.dropped == nil {
		m.dropped = map[string]int{}
	}
	m.dropped[reason]++
}
func (m *recordingMonitor) AfterNormalization(applied ScoreMode) { m.applied = applied }

func hit(docID, childID string, typ core.ElementType, score float32) schema.Document {
	return schema.Document{
		PageContent: "summary of " + childID,
		Metadata: map[string]any{
			"doc_id":    docID,
			"parent_id": childID,
			"child_id":  childID,
			"type":      string(typ),
		},
		Score: score,
	}
}

func TestSearch_FiltersResolvesAndRanks(t *testing.T) {
	store := &stubStore{}
	resolver := mapResolver{}

	// 20 hits: 8 from another document, 2 unresolved, 10 good.
	for i := range 20 {
		id := fmt.Sprintf("c%02d", i)
		docID := "doc-a"
		if i%5 == 1 || i%5 == 3 {
			docID = "doc-b"
		}
		store.hits = append(store.hits, hit(docID, id, core.ElementText, 0.3+float32(i)*0.05))
		if i != 4 && i != 9 {
			resolver[id] = &core.ContentElement{Type: core.ElementText, Text: "text " + id}
		}
	}

	r, err := NewRetriever(store, resolver)
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	results, err := r.SearchWithMonitor(context.Background(), Query{Text: "q", K: 5, DocID: "doc-a"}, monitor)
	require.NoError(t, err)

	assert.Equal(t, 15, store.requested, "over-fetches 3k")
	assert.Equal(t, 15, monitor.fetched)
	assert.LessOrEqual(t, len(results), 5)
	assert.NotEmpty(t, results)
	assert.Equal(t, ScoreDistance, monitor.applied)
	assert.Positive(t, monitor.dropped[DropOtherDocument])
	assert.Positive(t, monitor.dropped[DropUnresolved])

	for i, res := range results {
		assert.Equal(t, "doc-a", res.DocID)
		assert.GreaterOrEqual(t, res.Score, 0.0)
		assert.LessOrEqual(t, res.Score, 1.0)
		assert.NotEmpty(t, res.Text)
		if i > 0 {
			assert.GreaterOrEqual(t, results[i-1].Score, res.Score)
		}
	}
	// The closest surviving hit is c00.
	assert.Equal(t, "c00", results[0].ParentID)
	assert.InDelta(t, 0.3, results[0].RawScore, 1e-4)
}

func TestSearch_AutoModeUsesEveryHit(t *testing.T) {
	store := &stubStore{hits: []schema.Document{
		hit("mine", "a", core.ElementText, 0.10),
		hit("mine", "b", core.ElementText, 0.30),
		hit("mine", "c", core.ElementText, 0.45),
		hit("other", "x", core.ElementText, 1.10),
		hit("other", "y", core.ElementText, 1.20),
	}}
	resolver := mapResolver{}
	for _, id := range []string{"a", "b", "c", "x", "y"} {
		resolver[id] = &core.ContentElement{Type: core.ElementText, Text: "text " + id}
	}

	r, err := NewRetriever(store, resolver, WithScoreMode(ScoreAuto))
	require.NoError(t, err)

	monitor := &recordingMonitor{}
	results, err := r.SearchWithMonitor(context.Background(), Query{Text: "q", K: 3, DocID: "mine"}, monitor)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, ScoreDistance, monitor.applied)
	assert.Equal(t, []string{"a", "b", "c"}, []string{results[0].ParentID, results[1].ParentID, results[2].ParentID})
	assert.Greater(t, results[0].Score, results[2].Score)
	assert.Equal(t, 2, monitor.dropped[DropOtherDocument])
}

func TestSearch_TwentyHitsWithKTen(t *testing.T) {
	store := &stubStore{}
	resolver := mapResolver{}
	for i := range 20 {
		id := fmt.Sprintf("c%02d", i)
		docID := "doc-a"
		if i < 8 {
			docID = "doc-b"
		}
		store.hits = append(store.hits, hit(docID, id, core.ElementText, float32(i)*0.1))
		if i != 10 && i != 11 {
			resolver[id] = &core.ContentElement{Type: core.ElementText, Text: id}
		}
	}
	r, err := NewRetriever(store, resolver)
	require.NoError(t, err)

	results, err := r.Search(context.Background(), Query{Text: "q", K: 10, DocID: "doc-a"})
	require.NoError(t, err)
	assert.Len(t, results, 10)
}

func TestSearch_MinimumFetchAndDefaultK(t *testing.T) {
	store := &stubStore{}
	r, err := NewRetriever(store, mapResolver{})
	require.NoError(t, err)

	_, err = r.Search(context.Background(), Query{Text: "q", K: 2})
	require.NoError(t, err)
	assert.Equal(t, 10, store.requested)

	_, err = r.Search(context.Background(), Query{Text: "q"})
	require.NoError(t, err)
	assert.Equal(t, 15, store.requested)
}

func TestSearch_ImagesExcludedUnlessRequested(t *testing.T) {
	store := &stubStore{hits: []schema.Document{
		hit("d", "img", core.ElementImage, 0.9),
		hit("d", "tbl", core.ElementTable, 1.0),
	}}
	resolver := mapResolver{
		"img": {Type: core.ElementImage, Image: []byte{1, 2}, ImageMIME: "image/png"},
		"tbl": {Type: core.ElementTable, TableHTML: "<table></table>", Text: "t"},
	}
	r, err := NewRetriever(store, resolver)
	require.NoError(t, err)

	results, err := r.Search(context.Background(), Query{Text: "q", K: 5})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, core.ElementTable, results[0].Type)
	assert.Equal(t, "<table></table>", results[0].TableHTML)

	results, err = r.Search(context.Background(), Query{Text: "q", K: 5, IncludeImages: true})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "img", results[0].ParentID)
	assert.Equal(t, []byte{1, 2}, results[0].Image)
}

func TestSearch_DeduplicatesByParent(t *testing.T) {
	store := &stubStore{hits: []schema.Document{
		hit("d", "p1", core.ElementText, 0.2),
		hit("d", "p1", core.ElementText, 0.9),
		hit("d", "p2", core.ElementText, 1.0),
	}}
	resolver := mapResolver{
		"p1": {Type: core.ElementText, Text: "one"},
		"p2": {Type: core.ElementText, Text: "two"},
	}
	r, err := NewRetriever(store, resolver, WithScoreMode(ScoreDistance))
	require.NoError(t, err)

	results, err := r.Search(context.Background(), Query{Text: "q", K: 5})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "p1", results[0].ParentID)
	assert.InDelta(t, 0.2, results[0].RawScore, 1e-6)
}

func TestSearch_PushdownFilter(t *testing.T) {
	store := &stubStore{}
	r, err := NewRetriever(store, mapResolver{}, WithDocumentFilterPushdown())
	require.NoError(t, err)

	_, err = r.Search(context.Background(), Query{Text: "q", DocID: "doc-a"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"doc_id": "doc-a"}, store.options.Filters)
}

func TestSearch_Errors(t *testing.T) {
	_, err := NewRetriever(nil, mapResolver{})
	assert.ErrorIs(t, err, ErrVectorStoreRequired)
	_, err = NewRetriever(&stubStore{}, nil)
	assert.ErrorIs(t, err, ErrResolverRequired)
	_, err = NewRetriever(&stubStore{}, mapResolver{}, WithScoreMode(ScoreMode(7)))
	assert.Error(t, err)

	r, err := NewRetriever(&stubStore{err: errors.New("store down")}, mapResolver{})
	require.NoError(t, err)

	_, err = r.Search(context.Background(), Query{Text: "  "})
	assert.ErrorIs(t, err, ErrEmptyQuery)
	_, err = r.Search(context.Background(), Query{Text: "q", K: -1})
	assert.ErrorIs(t, err, ErrInvalidK)
	_, err = r.Search(context.Background(), Query{Text: "q"})
	assert.EqualError(t, err, "store down")
}

func TestSearch_WithBadgerIndex(t *testing.T) {
	stores, err := badger.NewMemoryStores(mock.NewMockEmbedder())
	require.NoError(t, err)
	defer stores.Close()

	ix, err := index.New(stores.Vectors, stores.Parents)
	require.NoError(t, err)

	ctx := context.Background()
	parents := []core.ContentElement{
		{Type: core.ElementText, Text: "Multi-head attention lets the model attend jointly.", PageNumber: core.PageRef(4)},
		{Type: core.ElementTable, TableHTML: "<table><tr><td>EN-DE</td><td>28.4</td></tr></table>", PageNumber: core.PageRef(8)},
	}
	_, err = ix.Index(ctx, "doc-1", parents, []string{"multi-head attention", "translation quality table"})
	require.NoError(t, err)
	_, err = ix.Index(ctx, "doc-2", parents[:1], []string{"unrelated document"})
	require.NoError(t, err)

	r, err := NewRetriever(stores.Vectors, ix, WithScoreMode(ScoreDistance), WithDocumentFilterPushdown())
	require.NoError(t, err)

	results, err := r.Search(ctx, Query{Text: "translation quality table", K: 3, DocID: "doc-1"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, core.ElementTable, results[0].Type)
	assert.Equal(t, 1.0, results[0].Score)
	assert.Equal(t, parents[1].TableHTML, results[0].TableHTML)
	require.NotNil(t, results[0].PageNumber)
	assert.Equal(t, 8, *results[0].PageNumber)
}

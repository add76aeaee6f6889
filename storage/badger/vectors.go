package badger

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/mmrag/ai"
	"github.com/poiesic/mmrag/storage"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

// Metadata keys the vector store reads.
const (
	MetaDocID   = "doc_id"
	MetaChildID = "child_id"
)

// VectorStore implements storage.VectorStore with a brute-force cosine scan
// over unit-normalized vectors kept in BadgerDB.
//
// SimilaritySearch reports cosine distance in schema.Document.Score, in
// [0, 2] with 0 meaning identical.
type VectorStore struct {
	backend  *Backend
	embedder ai.Embedder
	logger   *slog.Logger
}

var (
	_ storage.VectorStore      = (*VectorStore)(nil)
	_ storage.VectorMaintainer = (*VectorStore)(nil)
)

// NewVectorStore creates a vector store that embeds through embedder.
func NewVectorStore(backend *Backend, embedder ai.Embedder) *VectorStore {
	return &VectorStore{
		backend:  backend,
		embedder: embedder,
		logger:   slog.Default().With("component", "vector-store"),
	}
}

// AddDocuments embeds and stores docs. Each document's metadata must carry
// a doc_id; child_id is used as the record id when present, otherwise a
// new UUID is minted. Returns the record ids in input order.
func (s *VectorStore) AddDocuments(ctx context.Context, docs []schema.Document, options ...vectorstores.Option) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	opts := s.options(options...)

	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.PageContent
	}
	vectors, err := s.embedDocuments(ctx, opts, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(docs) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(docs), len(vectors))
	}

	records := make([]*storage.VectorRecord, len(docs))
	ids := make([]string, len(docs))
	for i, doc := range docs {
		docID := metaString(doc.Metadata, MetaDocID)
		if docID == "" {
			docID = opts.NameSpace
		}
		if docID == "" {
			return nil, fmt.Errorf("%w: document %d has no %s", storage.ErrInvalidQuery, i, MetaDocID)
		}
		id := metaString(doc.Metadata, MetaChildID)
		if id == "" {
			id = uuid.NewString()
		}
		meta := make(map[string]any, len(doc.Metadata)+2)
		maps.Copy(meta, doc.Metadata)
		meta[MetaDocID] = docID
		meta[MetaChildID] = id

		records[i] = &storage.VectorRecord{
			ID:       id,
			DocID:    docID,
			Content:  doc.PageContent,
			Metadata: meta,
			Vector:   normalizeVector(vectors[i]),
		}
		ids[i] = id
	}

	err = s.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, rec := range records {
			if err := writeValue(tx, makeVectorKey(rec.DocID, rec.ID), rec); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Debug("added vectors", "count", len(records))
	return ids, nil
}

// SimilaritySearch returns up to numDocuments records closest to query.
//
// Filters, when given, must be a map[string]any; a record matches when
// every filter key equals its metadata value. A doc_id filter limits the
// scan to that document. ScoreThreshold is applied to similarity
// (1 - distance).
func (s *VectorStore) SimilaritySearch(ctx context.Context, query string, numDocuments int, options ...vectorstores.Option) ([]schema.Document, error) {
	if numDocuments <= 0 {
		return nil, fmt.Errorf("%w: numDocuments must be positive", storage.ErrInvalidQuery)
	}
	opts := s.options(options...)

	filters, err := parseFilters(opts.Filters)
	if err != nil {
		return nil, err
	}

	queryVec, err := s.embedQuery(ctx, opts, query)
	if err != nil {
		return nil, err
	}
	queryVec = normalizeVector(queryVec)

	prefix := []byte(vectorPrefix)
	if docID, ok := filters[MetaDocID].(string); ok && docID != "" {
		prefix = makeVectorDocPrefix(docID)
	}

	type hit struct {
		rec      *storage.VectorRecord
		distance float32
	}
	var hits []hit

	err = s.backend.View(ctx, func(tx *badger.Txn) error {
		return scanPrefix(tx, prefix, func(_ []byte, rec *storage.VectorRecord) error {
			if len(rec.Vector) == 0 || !matchFilters(rec.Metadata, filters) {
				return nil
			}
			d := cosineDistance(queryVec, rec.Vector)
			if opts.ScoreThreshold > 0 && 1-d < opts.ScoreThreshold {
				return nil
			}
			hits = append(hits, hit{rec: rec, distance: d})
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		return cmp.Compare(a.distance, b.distance)
	})
	if len(hits) > numDocuments {
		hits = hits[:numDocuments]
	}

	results := make([]schema.Document, len(hits))
	for i, h := range hits {
		results[i] = schema.Document{
			PageContent: h.rec.Content,
			Metadata:    h.rec.Metadata,
			Score:       h.distance,
		}
	}
	return results, nil
}

// DeleteByDocument removes every vector of docID.
func (s *VectorStore) DeleteByDocument(ctx context.Context, docID string) (int, error) {
	if docID == "" {
		return 0, fmt.Errorf("%w: empty document id", storage.ErrInvalidQuery)
	}
	n, err := s.backend.DeletePrefix(ctx, makeVectorDocPrefix(docID))
	if err != nil {
		return 0, err
	}
	s.logger.Debug("deleted vectors", "doc_id", docID, "count", n)
	return n, nil
}

// CountVectors returns the number of stored vectors.
func (s *VectorStore) CountVectors(ctx context.Context) (int, error) {
	var count int
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(vectorPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()
		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	})
	return count, err
}

// ScanVectors pages through stored vectors in key order.
func (s *VectorStore) ScanVectors(ctx context.Context, cursor string, limit int) ([]*storage.VectorRecord, string, error) {
	if limit <= 0 {
		return nil, "", fmt.Errorf("%w: limit must be positive", storage.ErrInvalidQuery)
	}
	var (
		records []*storage.VectorRecord
		next    string
	)
	err := s.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(vectorPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		start := []byte(vectorPrefix)
		if cursor != "" {
			start = []byte(cursor)
		}
		for iter.Seek(start); iter.Valid(); iter.Next() {
			item := iter.Item()
			if cursor != "" && string(item.Key()) == cursor {
				continue
			}
			if len(records) == limit {
				last := records[len(records)-1]
				next = string(makeVectorKey(last.DocID, last.ID))
				return nil
			}
			var rec *storage.VectorRecord
			err := item.Value(func(val []byte) error {
				var err error
				rec, err = storage.Unmarshal[storage.VectorRecord](val)
				return err
			})
			if err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return records, next, nil
}

// UpdateVectors replaces the vectors of existing records.
func (s *VectorStore) UpdateVectors(ctx context.Context, records ...*storage.VectorRecord) error {
	return s.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, rec := range records {
			key := makeVectorKey(rec.DocID, rec.ID)
			existing, err := readValue[storage.VectorRecord](tx, key)
			if err != nil {
				return err
			}
			if existing == nil {
				return fmt.Errorf("%w: vector %s", storage.ErrNotFound, rec.ID)
			}
			existing.Vector = normalizeVector(rec.Vector)
			if err := writeValue(tx, key, existing); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *VectorStore) options(options ...vectorstores.Option) vectorstores.Options {
	var opts vectorstores.Options
	for _, opt := range options {
		opt(&opts)
	}
	return opts
}

func (s *VectorStore) embedDocuments(ctx context.Context, opts vectorstores.Options, texts []string) ([][]float32, error) {
	if opts.Embedder != nil {
		return opts.Embedder.EmbedDocuments(ctx, texts)
	}
	if s.embedder == nil {
		return nil, errors.New("vector store has no embedder")
	}
	return s.embedder.EmbedTexts(ctx, texts)
}

func (s *VectorStore) embedQuery(ctx context.Context, opts vectorstores.Options, text string) ([]float32, error) {
	if opts.Embedder != nil {
		return opts.Embedder.EmbedQuery(ctx, text)
	}
	if s.embedder == nil {
		return nil, errors.New("vector store has no embedder")
	}
	return s.embedder.EmbedText(ctx, text)
}

func parseFilters(filters any) (map[string]any, error) {
	switch f := filters.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return f, nil
	case map[string]string:
		out := make(map[string]any, len(f))
		for k, v := range f {
			out[k] = v
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: unsupported filter type %T", storage.ErrInvalidQuery, filters)
	}
}

// matchFilters compares by printed value so that numbers survive the JSON
// round trip (an int filter matches a float64 stored value).
func matchFilters(meta map[string]any, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := meta[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return fmt.Sprint(v)
}

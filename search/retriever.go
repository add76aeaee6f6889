// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package search

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"

	"github.com/poiesic/mmrag/core"
	"github.com/tmc/langchaingo/schema"
	"github.com/tmc/langchaingo/vectorstores"
)

const (
	defaultK        = 5
	minFetch        = 10
	overFetchFactor = 3
)

// Metadata keys read from vector hits.
const (
	metaDocID      = "doc_id"
	metaChildID    = "child_id"
	metaParentID   = "parent_id"
	metaType       = "type"
	metaPageNumber = "page_number"
	metaSource     = "source"
)

// Query describes one retrieval request.
type Query struct {
	Text string
	// K is the number of results wanted. Zero means 5.
	K int
	// DocID, if set, restricts results to one document.
	DocID string
	// IncludeImages keeps image children in the results.
	IncludeImages bool
}

// Resolver maps a child id back to its parent content.
// It returns nil, nil when the parent is unknown.
type Resolver interface {
	Resolve(ctx context.Context, docID, childID string) (*core.ContentElement, error)
}

// Retriever runs similarity search and resolves hits to parent content.
type Retriever struct {
	vectors  vectorstores.VectorStore
	resolver Resolver
	mode     ScoreMode
	pushdown bool
	logger   *slog.Logger
}

// Option configures a Retriever.
type Option func(*Retriever) error

// WithScoreMode sets how raw store scores are normalized.
// Default is ScoreAuto.
func WithScoreMode(mode ScoreMode) Option {
	return func(r *Retriever) error {
		if mode < ScoreAuto || mode > ScoreSimilarity {
			return fmt.Errorf("unknown score mode %d", int(mode))
		}
		r.mode = mode
		return nil
	}
}

// WithDocumentFilterPushdown passes the document filter to the vector
// store as a doc_id metadata filter, for stores that support it. Results
// are still filtered locally.
func WithDocumentFilterPushdown() Option {
	return func(r *Retriever) error {
		r.pushdown = true
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) error {
		if logger == nil {
			logger = slog.Default()
		}
		r.logger = logger
		return nil
	}
}

// NewRetriever creates a new retriever.
func NewRetriever(vectors vectorstores.VectorStore, resolver Resolver, opts ...Option) (*Retriever, error) {
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if resolver == nil {
		return nil, ErrResolverRequired
	}

	r := &Retriever{
		vectors:  vectors,
		resolver: resolver,
		mode:     ScoreAuto,
		logger:   slog.Default().With("component", "retriever"),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Search returns up to q.K results ranked by normalized score.
func (r *Retriever) Search(ctx context.Context, q Query) ([]core.SourceResult, error) {
	return r.SearchWithMonitor(ctx, q, nil)
}

// candidate is a hit that survived filtering and resolution.
type candidate struct {
	hit    schema.Document
	parent *core.ContentElement
	docID  string
	id     string
	typ    core.ElementType
}

// SearchWithMonitor is Search with a monitor receiving callbacks at each stage.
// Fewer than K results are returned when too many hits are filtered out.
func (r *Retriever) SearchWithMonitor(ctx context.Context, q Query, monitor RetrievalMonitor) ([]core.SourceResult, error) {
	if monitor == nil {
		monitor = &noopMonitor{}
	}
	if strings.TrimSpace(q.Text) == "" {
		return nil, ErrEmptyQuery
	}
	if q.K < 0 {
		return nil, ErrInvalidK
	}
	if q.K == 0 {
		q.K = defaultK
	}
	monitor.Start(q)

	fetch := max(overFetchFactor*q.K, minFetch)
	var opts []vectorstores.Option
	if r.pushdown && q.DocID != "" {
		opts = append(opts, vectorstores.WithFilters(map[string]any{metaDocID: q.DocID}))
	}
	hits, err := r.vectors.SimilaritySearch(ctx, q.Text, fetch, opts...)
	if err != nil {
		r.logger.Error("vector search failed", "err", err)
		return nil, err
	}
	monitor.AfterVectorSearch(len(hits))

	candidates := make([]candidate, 0, len(hits))
	for _, hit := range hits {
		c := candidate{
			hit:   hit,
			docID: metaString(hit.Metadata, metaDocID),
			id:    metaString(hit.Metadata, metaParentID),
			typ:   core.ElementType(metaString(hit.Metadata, metaType)),
		}
		if c.id == "" {
			c.id = metaString(hit.Metadata, metaChildID)
		}
		switch {
		case c.id == "":
			monitor.Dropped("", DropNoParentID)
			continue
		case q.DocID != "" && c.docID != q.DocID:
			monitor.Dropped(c.id, DropOtherDocument)
			continue
		case !q.IncludeImages && c.typ == core.ElementImage:
			monitor.Dropped(c.id, DropImage)
			continue
		}

		parent, err := r.resolver.Resolve(ctx, c.docID, c.id)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", c.id, err)
		}
		if parent == nil {
			r.logger.Debug("dropping hit without parent", "doc_id", c.docID, "child_id", c.id)
			monitor.Dropped(c.id, DropUnresolved)
			continue
		}
		c.parent = parent
		if c.typ == "" {
			c.typ = parent.Type
		}
		candidates = append(candidates, c)
	}

	// Mode and scale come from every hit, not only the survivors.
	observed := make([]float64, len(hits))
	for i, hit := range hits {
		observed[i] = float64(hit.Score)
	}
	raw := make([]float64, len(candidates))
	for i, c := range candidates {
		raw[i] = float64(c.hit.Score)
	}
	scores, applied := NormalizeObserved(raw, observed, r.mode)
	monitor.AfterNormalization(applied)

	best := make(map[string]int, len(candidates))
	results := make([]core.SourceResult, 0, len(candidates))
	for i, c := range candidates {
		result := buildResult(c, scores[i], raw[i])
		if j, ok := best[c.id]; ok {
			monitor.Dropped(c.id, DropDuplicate)
			if result.Score > results[j].Score {
				results[j] = result
			}
			continue
		}
		best[c.id] = len(results)
		results = append(results, result)
	}

	slices.SortStableFunc(results, func(a, b core.SourceResult) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(results) > q.K {
		results = results[:q.K]
	}
	for i := range results {
		results[i].Score = round4(results[i].Score)
		results[i].RawScore = round4(results[i].RawScore)
	}

	r.logger.Debug("search complete", "fetched", len(hits), "kept", len(candidates), "returned", len(results), "mode", applied)
	monitor.Finish(results)
	return results, nil
}

func buildResult(c candidate, score, raw float64) core.SourceResult {
	result := core.SourceResult{
		ParentID:   c.id,
		DocID:      c.docID,
		Type:       c.typ,
		PageNumber: c.parent.PageNumber,
		Source:     c.parent.Source,
		Summary:    c.hit.PageContent,
		Score:      score,
		RawScore:   raw,
	}
	if page, ok := metaInt(c.hit.Metadata, metaPageNumber); ok && result.PageNumber == nil {
		result.PageNumber = core.PageRef(page)
	}
	if src := metaString(c.hit.Metadata, metaSource); src != "" && result.Source == "" {
		result.Source = src
	}
	switch c.parent.Type {
	case core.ElementTable:
		result.TableHTML = c.parent.TableHTML
		result.Text = c.parent.Text
	case core.ElementImage:
		result.Image = c.parent.Image
		result.ImageMIME = c.parent.ImageMIME
	default:
		result.Text = c.parent.Text
	}
	return result
}

func metaString(meta map[string]any, key string) string {
	v, ok := meta[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// metaInt reads a number that may have been decoded from JSON as float64.
func metaInt(meta map[string]any, key string) (int, bool) {
	switch v := meta[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case float32:
		if v == float32(math.Trunc(float64(v))) {
			return int(v), true
		}
	}
	return 0, false
}

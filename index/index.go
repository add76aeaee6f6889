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

package index

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/poiesic/mmrag/storage"
	"github.com/tmc/langchaingo/schema"
)

// Metadata keys stored with every child vector.
const (
	MetaDocID      = "doc_id"
	MetaChildID    = "child_id"
	MetaParentID   = "parent_id"
	MetaType       = "type"
	MetaPageNumber = "page_number"
	MetaSource     = "source"
)

// Index writes children to a vector store and parents to a ParentRepository.
type Index struct {
	vectors storage.VectorStore
	parents storage.ParentRepository
	sched   *ratelimit.Scheduler
	newID   func() string
	logger  *slog.Logger
}

// Option configures an Index.
type Option func(*Index)

// WithScheduler retries rate-limited embedding calls with s.
func WithScheduler(s *ratelimit.Scheduler) Option {
	return func(ix *Index) {
		ix.sched = s
	}
}

// WithIDGenerator replaces the UUID child id generator.
func WithIDGenerator(fn func() string) Option {
	return func(ix *Index) {
		if fn != nil {
			ix.newID = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(ix *Index) {
		if logger == nil {
			logger = slog.Default()
		}
		ix.logger = logger
	}
}

// New creates an Index.
func New(vectors storage.VectorStore, parents storage.ParentRepository, opts ...Option) (*Index, error) {
	ix := &Index{
		vectors: vectors,
		parents: parents,
		newID:   uuid.NewString,
		logger:  slog.Default().With("component", "index"),
	}
	for _, opt := range opts {
		opt(ix)
	}
	if ix.sched == nil {
		sched, err := ratelimit.NewScheduler(ratelimit.WithLogger(ix.logger))
		if err != nil {
			return nil, err
		}
		ix.sched = sched
	}
	return ix, nil
}

// Index stores each aligned (parent, summary) pair under a fresh child id.
// Pairs whose summary is blank are skipped: there is nothing to embed.
// It returns the entries that were indexed, in input order.
func (ix *Index) Index(ctx context.Context, docID string, parents []core.ContentElement, summaries []string) ([]core.ChildEntry, error) {
	if docID == "" {
		return nil, core.ErrEmptyID
	}
	if len(parents) != len(summaries) {
		return nil, fmt.Errorf("%w: %d parents, %d summaries", ErrMisaligned, len(parents), len(summaries))
	}

	entries := make([]core.ChildEntry, 0, len(parents))
	parentMap := make(map[string]core.ContentElement, len(parents))
	docs := make([]schema.Document, 0, len(parents))

	for i, parent := range parents {
		summary := strings.TrimSpace(summaries[i])
		if summary == "" {
			ix.logger.Debug("skipping element with empty summary", "doc_id", docID, "index", i, "type", parent.Type)
			continue
		}
		childID := ix.newID()
		entry := core.ChildEntry{
			ChildID:    childID,
			DocID:      docID,
			ParentID:   childID,
			Type:       parent.Type,
			PageNumber: parent.PageNumber,
			Source:     parent.Source,
			Summary:    summary,
		}
		entries = append(entries, entry)
		parentMap[childID] = parent
		docs = append(docs, schema.Document{
			PageContent: summary,
			Metadata:    metadataFor(entry),
		})
	}

	if len(entries) == 0 {
		return entries, nil
	}

	if err := ix.parents.MergeParents(ctx, docID, parentMap); err != nil {
		return nil, fmt.Errorf("%w: storing parents: %w", ErrIndexFailed, err)
	}

	_, err := ratelimit.Do(ctx, ix.sched, func(ctx context.Context) ([]string, error) {
		return ix.vectors.AddDocuments(ctx, docs)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: adding vectors: %w", ErrIndexFailed, err)
	}

	ix.logger.Info("indexed document", "doc_id", docID, "children", len(entries), "skipped", len(parents)-len(entries))
	return entries, nil
}

// Resolve returns the parent of childID, or nil, nil when the document's
// map or the id is absent.
func (ix *Index) Resolve(ctx context.Context, docID, childID string) (*core.ContentElement, error) {
	if docID == "" || childID == "" {
		return nil, nil
	}
	return ix.parents.GetParent(ctx, docID, childID)
}

// DeleteDocument removes the document's vectors and its parent map.
// Vector deletion is best effort: a failure is logged and the parent map
// is still dropped.
func (ix *Index) DeleteDocument(ctx context.Context, docID string) error {
	if docID == "" {
		return core.ErrEmptyID
	}
	n, err := ix.vectors.DeleteByDocument(ctx, docID)
	if err != nil {
		ix.logger.Warn("failed to delete vectors", "doc_id", docID, "err", err)
	} else {
		ix.logger.Debug("deleted vectors", "doc_id", docID, "count", n)
	}
	if err := ix.parents.DeleteParents(ctx, docID); err != nil {
		return fmt.Errorf("deleting parents of %s: %w", docID, err)
	}
	return nil
}

func metadataFor(e core.ChildEntry) map[string]any {
	meta := map[string]any{
		MetaDocID:    e.DocID,
		MetaChildID:  e.ChildID,
		MetaParentID: e.ParentID,
		MetaType:     string(e.Type),
	}
	if e.PageNumber != nil {
		meta[MetaPageNumber] = *e.PageNumber
	}
	if e.Source != "" {
		meta[MetaSource] = e.Source
	}
	return meta
}

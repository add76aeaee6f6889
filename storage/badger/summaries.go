package badger

import (
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/storage"
)

// SummaryRepository implements storage.SummaryRepository for BadgerDB.
type SummaryRepository struct {
	backend *Backend
}

var _ storage.SummaryRepository = (*SummaryRepository)(nil)

// NewSummaryRepository creates a new SummaryRepository.
func NewSummaryRepository(backend *Backend) *SummaryRepository {
	return &SummaryRepository{backend: backend}
}

// SaveSummaries replaces the summaries stored for set.DocID.
func (r *SummaryRepository) SaveSummaries(ctx context.Context, set *core.SummarySet) error {
	if set.DocID == "" {
		return core.ErrEmptyID
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now().UTC()
	}
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		return writeValue(tx, makeSummaryKey(set.DocID), set)
	})
}

// LoadSummaries retrieves the summaries of a document.
func (r *SummaryRepository) LoadSummaries(ctx context.Context, docID string) (*core.SummarySet, error) {
	var result *core.SummarySet
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readValue[core.SummarySet](tx, makeSummaryKey(docID))
		if err == nil && result == nil {
			return storage.ErrNotFound
		}
		return err
	})
	return result, err
}

// DeleteSummaries removes the summaries of a document.
func (r *SummaryRepository) DeleteSummaries(ctx context.Context, docID string) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeSummaryKey(docID))
	})
}

package badger

import (
	"context"
	"maps"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/storage"
)

// parentMap is the persisted form of one document's parents.
type parentMap map[string]core.ContentElement

// ParentRepository implements storage.ParentRepository for BadgerDB.
// Each document's parents live in a single JSON value keyed by doc id.
type ParentRepository struct {
	backend *Backend
}

var _ storage.ParentRepository = (*ParentRepository)(nil)

// NewParentRepository creates a new ParentRepository.
func NewParentRepository(backend *Backend) *ParentRepository {
	return &ParentRepository{backend: backend}
}

// MergeParents merges parents into the document's map in a
// read-modify-write transaction. Concurrent merges for the same document
// conflict at commit and are retried against the fresh map.
func (r *ParentRepository) MergeParents(ctx context.Context, docID string, parents map[string]core.ContentElement) error {
	if docID == "" {
		return core.ErrEmptyID
	}
	if len(parents) == 0 {
		return nil
	}
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeParentKey(docID)
		existing, err := readValue[parentMap](tx, key)
		if err != nil {
			return err
		}
		merged := make(parentMap, len(parents))
		if existing != nil {
			maps.Copy(merged, *existing)
		}
		maps.Copy(merged, parents)
		return writeValue(tx, key, &merged)
	})
}

// GetParent returns the parent of childID, or nil, nil when unknown.
func (r *ParentRepository) GetParent(ctx context.Context, docID, childID string) (*core.ContentElement, error) {
	var result *core.ContentElement
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		m, err := readValue[parentMap](tx, makeParentKey(docID))
		if err != nil || m == nil {
			return err
		}
		if el, ok := (*m)[childID]; ok {
			result = &el
		}
		return nil
	})
	return result, err
}

// LoadParents returns the document's whole map.
func (r *ParentRepository) LoadParents(ctx context.Context, docID string) (map[string]core.ContentElement, error) {
	result := make(map[string]core.ContentElement)
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		m, err := readValue[parentMap](tx, makeParentKey(docID))
		if err != nil || m == nil {
			return err
		}
		maps.Copy(result, *m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteParents drops the document's map.
func (r *ParentRepository) DeleteParents(ctx context.Context, docID string) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		return tx.Delete(makeParentKey(docID))
	})
}

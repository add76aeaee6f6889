package badger

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
	now     func() time.Time
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) *DocumentRepository {
	return &DocumentRepository{
		backend: backend,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateDocument stores a new document.
func (r *DocumentRepository) CreateDocument(ctx context.Context, doc *core.Document) error {
	if doc.Status == 0 {
		doc.Status = core.StatusProcessing
	}
	if doc.Stage == 0 {
		doc.Stage = core.StageUploaded
	}
	if err := core.ValidateDocument(doc); err != nil {
		return err
	}

	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.ID)
		if _, err := tx.Get(key); err == nil {
			return storage.ErrDuplicateKey
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = r.now()
		}
		doc.UpdatedAt = doc.CreatedAt
		return r.writeDocument(tx, doc)
	})
}

// GetDocument retrieves a document by ID.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var result *core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = r.readDocument(tx, id)
		return err
	})
	return result, err
}

// ListDocuments returns every document, newest first.
func (r *DocumentRepository) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	var results []*core.Document
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(documentPrefix)
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			var doc *core.Document
			err := iter.Item().Value(func(val []byte) error {
				var err error
				doc, err = storage.UnmarshalDocument(val)
				return err
			})
			if err != nil {
				return err
			}
			results = append(results, doc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(results, func(a, b *core.Document) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return results, nil
}

// UpdateProgress moves a processing document forward.
func (r *DocumentRepository) UpdateProgress(ctx context.Context, id string, stage core.Stage, progress int) (*core.Document, error) {
	return r.mutate(ctx, id, func(doc *core.Document) error {
		if doc.Status.Terminal() {
			return storage.ErrTerminalState
		}
		if stage == core.StageCompleted || stage == core.StageFailed {
			return core.ErrInvalidStage
		}
		if p := core.ClampProgress(progress); p > doc.Progress {
			doc.Progress = p
		}
		if stage != 0 {
			doc.Stage = stage
		}
		return nil
	})
}

// SetPageCount records the page count reported by the parser.
func (r *DocumentRepository) SetPageCount(ctx context.Context, id string, pages int) (*core.Document, error) {
	return r.mutate(ctx, id, func(doc *core.Document) error {
		if doc.Status.Terminal() {
			return storage.ErrTerminalState
		}
		doc.PageCount = max(pages, 0)
		return nil
	})
}

// MarkCompleted finishes a processing document.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id string) (*core.Document, error) {
	return r.mutate(ctx, id, func(doc *core.Document) error {
		if doc.Status.Terminal() {
			return storage.ErrTerminalState
		}
		doc.Status = core.StatusCompleted
		doc.Stage = core.StageCompleted
		doc.Progress = 100
		doc.Reason = ""
		return nil
	})
}

// MarkFailed stops a processing document, keeping its progress.
func (r *DocumentRepository) MarkFailed(ctx context.Context, id string, reason string) (*core.Document, error) {
	return r.mutate(ctx, id, func(doc *core.Document) error {
		if doc.Status.Terminal() {
			return storage.ErrTerminalState
		}
		doc.Status = core.StatusFailed
		doc.Stage = core.StageFailed
		doc.Reason = reason
		return nil
	})
}

// DeleteDocument removes a document record.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		key := makeDocumentKey(id)
		if _, err := tx.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return tx.Delete(key)
	})
}

// mutate applies fn to the stored document in one read-modify-write transaction.
func (r *DocumentRepository) mutate(ctx context.Context, id string, fn func(doc *core.Document) error) (*core.Document, error) {
	var result *core.Document
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		doc, err := r.readDocument(tx, id)
		if err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
		doc.UpdatedAt = r.now()
		result = doc
		return r.writeDocument(tx, doc)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *DocumentRepository) readDocument(tx *badger.Txn, id string) (*core.Document, error) {
	item, err := tx.Get(makeDocumentKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var err error
		doc, err = storage.UnmarshalDocument(val)
		return err
	})
	return doc, err
}

func (r *DocumentRepository) writeDocument(tx *badger.Txn, doc *core.Document) error {
	data, err := storage.MarshalDocument(doc)
	if err != nil {
		return err
	}
	return tx.Set(makeDocumentKey(doc.ID), data)
}

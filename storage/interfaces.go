package storage

import (
	"context"

	"github.com/poiesic/mmrag/core"
	"github.com/tmc/langchaingo/vectorstores"
)

// DocumentRepository manages document lifecycle records.
// Implementations must be thread-safe and support concurrent access.
type DocumentRepository interface {
	// CreateDocument stores a new document. CreatedAt and UpdatedAt are set,
	// and a missing status defaults to processing.
	// Returns ErrDuplicateKey if the id is taken.
	CreateDocument(ctx context.Context, doc *core.Document) error

	// GetDocument returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// ListDocuments returns every document, newest first.
	ListDocuments(ctx context.Context) ([]*core.Document, error)

	// UpdateProgress moves a processing document to stage and progress.
	// Progress is clamped to [0,100] and never decreases: a lower value keeps
	// the stored one. Returns ErrTerminalState for completed or failed documents.
	UpdateProgress(ctx context.Context, id string, stage core.Stage, progress int) (*core.Document, error)

	// SetPageCount records how many pages the parser found. Returns
	// ErrTerminalState for completed or failed documents.
	SetPageCount(ctx context.Context, id string, pages int) (*core.Document, error)

	// MarkCompleted sets status completed, stage completed and progress 100.
	MarkCompleted(ctx context.Context, id string) (*core.Document, error)

	// MarkFailed sets status failed and records reason. Progress is left at
	// its last value.
	MarkFailed(ctx context.Context, id string, reason string) (*core.Document, error)

	// DeleteDocument removes the record. Returns ErrNotFound if absent.
	DeleteDocument(ctx context.Context, id string) error
}

// ParentRepository persists, per document, the map from child id to the
// parent content element it was derived from.
type ParentRepository interface {
	// MergeParents adds parents to the document's map, overwriting entries
	// with the same child id.
	MergeParents(ctx context.Context, docID string, parents map[string]core.ContentElement) error

	// GetParent returns nil, nil when the map or the child id is missing.
	GetParent(ctx context.Context, docID, childID string) (*core.ContentElement, error)

	// LoadParents returns an empty map when the document has none.
	LoadParents(ctx context.Context, docID string) (map[string]core.ContentElement, error)

	// DeleteParents drops the document's map. Deleting a missing map is not an error.
	DeleteParents(ctx context.Context, docID string) error
}

// SummaryRepository persists the summaries produced for a document.
type SummaryRepository interface {
	SaveSummaries(ctx context.Context, set *core.SummarySet) error
	// LoadSummaries returns ErrNotFound if nothing was saved for docID.
	LoadSummaries(ctx context.Context, docID string) (*core.SummarySet, error)
	DeleteSummaries(ctx context.Context, docID string) error
}

// VectorStore is a langchaingo vector store that can also drop every
// vector belonging to one document.
//
// SimilaritySearch reports a distance in schema.Document.Score (lower is
// closer) for the badger implementation. Callers that accept other stores
// must normalize scores themselves.
type VectorStore interface {
	vectorstores.VectorStore

	// DeleteByDocument removes all vectors whose doc_id metadata equals
	// docID and returns how many were removed.
	DeleteByDocument(ctx context.Context, docID string) (int, error)
}

// VectorRecord is one stored vector with its source text.
type VectorRecord struct {
	ID       string         `json:"id"`
	DocID    string         `json:"doc_id"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Vector   []float32      `json:"vector"`
}

// VectorMaintainer gives batch access to stored vectors for re-embedding.
type VectorMaintainer interface {
	// CountVectors returns the number of stored vectors.
	CountVectors(ctx context.Context) (int, error)

	// ScanVectors returns up to limit records with keys after cursor, in key
	// order, and the cursor for the next call. An empty next cursor means
	// the scan is complete.
	ScanVectors(ctx context.Context, cursor string, limit int) (records []*VectorRecord, next string, err error)

	// UpdateVectors rewrites the vectors of existing records.
	UpdateVectors(ctx context.Context, records ...*VectorRecord) error
}

// MessageRepository stores chat sessions.
type MessageRepository interface {
	// AddMessage appends a message. ID and CreatedAt are set if empty.
	AddMessage(ctx context.Context, msg *core.Message) error

	// GetMessages returns the session's messages oldest first. A missing
	// session yields an empty slice.
	GetMessages(ctx context.Context, sessionID string) ([]*core.Message, error)

	// ListSessions returns session summaries, most recently active first.
	ListSessions(ctx context.Context) ([]*core.SessionSummary, error)

	// DeleteSession removes every message of the session and returns how
	// many were removed.
	DeleteSession(ctx context.Context, sessionID string) (int, error)
}

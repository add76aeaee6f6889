package reembed

import "errors"

var (
	// ErrVectorStoreRequired is returned when no vector maintainer is given.
	ErrVectorStoreRequired = errors.New("vector store is required")

	// ErrEmbedderRequired is returned when no embedder is given.
	ErrEmbedderRequired = errors.New("embedder is required")

	// ErrEmbeddingMismatch is returned when the embedder returns a different
	// number of vectors than texts it was given.
	ErrEmbeddingMismatch = errors.New("embedding count mismatch")
)

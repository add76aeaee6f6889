package reembed

import (
	"context"
	"fmt"

	"github.com/poiesic/mmrag/ai"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/poiesic/mmrag/storage"
)

// BatchProcessor embeds a batch of vector records and writes them back.
type BatchProcessor struct {
	vectors  storage.VectorMaintainer
	embedder ai.Embedder
	sched    *ratelimit.Scheduler
}

// NewBatchProcessor creates a batch processor. Embedding calls are retried
// through sched.
func NewBatchProcessor(vectors storage.VectorMaintainer, embedder ai.Embedder, sched *ratelimit.Scheduler) *BatchProcessor {
	return &BatchProcessor{
		vectors:  vectors,
		embedder: embedder,
		sched:    sched,
	}
}

// Process re-embeds records from their stored content and updates them.
// The store normalizes the new vectors.
func (bp *BatchProcessor) Process(ctx context.Context, records []*storage.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	texts := make([]string, len(records))
	for i, rec := range records {
		texts[i] = rec.Content
	}

	embeddings, err := ratelimit.Do(ctx, bp.sched, func(ctx context.Context) ([][]float32, error) {
		return bp.embedder.EmbedTexts(ctx, texts)
	})
	if err != nil {
		return fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(embeddings) != len(records) {
		return fmt.Errorf("%w: expected %d, got %d", ErrEmbeddingMismatch, len(records), len(embeddings))
	}

	updated := make([]*storage.VectorRecord, len(records))
	for i, rec := range records {
		cp := *rec
		cp.Vector = embeddings[i]
		updated[i] = &cp
	}

	if err := bp.vectors.UpdateVectors(ctx, updated...); err != nil {
		return fmt.Errorf("failed to update vectors: %w", err)
	}
	return nil
}

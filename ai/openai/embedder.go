package openai

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/poiesic/mmrag/ai"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"
)

// summaryBatchSize bounds how many child summaries go into one embeddings
// request. A large document is split across several requests.
const summaryBatchSize = 64

// Embedder turns child summaries and search queries into vectors through an
// OpenAI-compatible /embeddings endpoint. Newlines are stripped before
// sending, so a summary and a query with the same words embed alike.
type Embedder struct {
	client embeddings.Embedder
	model  string
	logger *slog.Logger
}

var _ ai.Embedder = (*Embedder)(nil)

// newEmbedder builds the embedder for the configured embedding host and
// model. Provider owns the instance.
func newEmbedder(config *ai.Config) (*Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	llm, err := openai.New(
		openai.WithBaseURL(config.EmbeddingHost),
		openai.WithToken(config.APIKey),
		openai.WithEmbeddingModel(config.EmbeddingModel),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedding client: %w", err)
	}

	client, err := embeddings.NewEmbedder(llm,
		embeddings.WithStripNewLines(true),
		embeddings.WithBatchSize(summaryBatchSize),
	)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	return &Embedder{
		client: client,
		model:  config.EmbeddingModel,
		logger: slog.Default().With("component", "openai-embedder", "model", config.EmbeddingModel),
	}, nil
}

// EmbedText embeds a single search query. Provider errors are mapped so
// that ratelimit.Classify can read their codes.
func (e *Embedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		e.logger.Debug("query embedding failed", "chars", len(text), "err", err)
		return nil, openai.MapError(err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("model %s returned an empty embedding", e.model)
	}
	return vec, nil
}

// EmbedTexts embeds child summaries in order. The result has exactly one
// vector per input or an error.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vecs, err := e.client.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Debug("summary embedding failed", "summaries", len(texts), "err", err)
		return nil, openai.MapError(err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("model %s returned %d embeddings for %d summaries", e.model, len(vecs), len(texts))
	}
	return vecs, nil
}

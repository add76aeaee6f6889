package ai

import "context"

// Embedder generates vector embeddings from text for semantic similarity search.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedText generates a vector embedding for a single text string.
	EmbedText(ctx context.Context, text string) ([]float32, error)

	// EmbedTexts generates vector embeddings for multiple text strings in a batch.
	// The returned slice contains embeddings in the same order as the input texts.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Image is binary image input for a multimodal generation call.
type Image struct {
	MIME string
	Data []byte
}

// ChunkFunc receives streamed output. Returning an error stops the stream.
type ChunkFunc func(ctx context.Context, chunk string) error

// Generator produces text from a prompt.
// Errors are returned as produced by the provider client so that callers can
// classify them; implementations must not swallow rate-limit or auth failures.
type Generator interface {
	// Generate returns the full completion for prompt. Images, if any, are
	// sent alongside the prompt in a single user turn.
	Generate(ctx context.Context, prompt string, images ...Image) (string, error)

	// GenerateStream delivers the completion incrementally to onChunk.
	GenerateStream(ctx context.Context, prompt string, onChunk ChunkFunc) error
}

// AIProvider aggregates AI services for initialization and lifecycle management.
// A provider is constructed explicitly and handed to the components that use it.
type AIProvider interface {
	// Embedder returns the text embedding service.
	Embedder() Embedder

	// ChatGenerator answers grounded questions.
	ChatGenerator() Generator

	// TextSummarizer summarizes text blocks and tables.
	TextSummarizer() Generator

	// ImageSummarizer describes images.
	ImageSummarizer() Generator

	// Close releases resources held by the provider and its services.
	Close() error
}

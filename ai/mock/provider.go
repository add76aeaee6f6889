package mock

import "github.com/poiesic/mmrag/ai"

// MockProvider is a test double for ai.AIProvider.
// It aggregates a mock embedder and three mock generators.
type MockProvider struct {
	embedder        *MockEmbedder
	chat            *MockGenerator
	textSummarizer  *MockGenerator
	imageSummarizer *MockGenerator
}

var _ ai.AIProvider = (*MockProvider)(nil)

// NewMockProvider creates a new mock provider with default mock services.
// It returns the concrete type so tests can reach the individual mocks.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		embedder:        NewMockEmbedder(),
		chat:            NewMockGenerator(),
		textSummarizer:  NewMockGenerator(),
		imageSummarizer: NewMockGenerator(),
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// ChatGenerator returns the mock chat generator.
func (p *MockProvider) ChatGenerator() ai.Generator {
	return p.chat
}

// TextSummarizer returns the mock text summarizer.
func (p *MockProvider) TextSummarizer() ai.Generator {
	return p.textSummarizer
}

// ImageSummarizer returns the mock image summarizer.
func (p *MockProvider) ImageSummarizer() ai.Generator {
	return p.imageSummarizer
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}

// GetMockChat returns the underlying chat generator.
func (p *MockProvider) GetMockChat() *MockGenerator {
	return p.chat
}

// GetMockTextSummarizer returns the underlying text summarizer.
func (p *MockProvider) GetMockTextSummarizer() *MockGenerator {
	return p.textSummarizer
}

// GetMockImageSummarizer returns the underlying image summarizer.
func (p *MockProvider) GetMockImageSummarizer() *MockGenerator {
	return p.imageSummarizer
}

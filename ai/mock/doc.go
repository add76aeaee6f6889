// Package mock provides test double implementations of AI service interfaces.
//
// This package contains mock implementations of ai.Embedder, ai.Generator,
// and ai.AIProvider for use in unit tests. The mocks allow tests to run without
// external AI service dependencies and enable controlled, deterministic behavior.
//
// # Usage in Tests
//
//	provider := mock.NewMockProvider()
//	provider.GetMockTextSummarizer().GenerateFunc = func(ctx context.Context, prompt string, images ...ai.Image) (string, error) {
//	    return "", errors.New("429 Too Many Requests")
//	}
//	count := provider.GetMockTextSummarizer().CallCount()
//
// # Default Behavior
//
//   - MockEmbedder: returns unit vectors derived from a hash of the text
//   - MockGenerator: returns a short summary built from the prompt tail, or a
//     fixed figure description when images are attached
//   - MockProvider: aggregates the above
package mock

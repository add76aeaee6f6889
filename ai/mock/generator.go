package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/poiesic/mmrag/ai"
)

// GenerateCall records the arguments of one Generate or GenerateStream call.
type GenerateCall struct {
	Prompt string
	Images []ai.Image
	Stream bool
}

// MockGenerator is a test double for ai.Generator.
type MockGenerator struct {
	// GenerateFunc is called by Generate if set.
	// If nil, Generate echoes a short summary of the prompt.
	GenerateFunc func(ctx context.Context, prompt string, images ...ai.Image) (string, error)

	// StreamFunc is called by GenerateStream if set.
	// If nil, the GenerateFunc result (or the default) is streamed word by word.
	StreamFunc func(ctx context.Context, prompt string, onChunk ai.ChunkFunc) error

	mu    sync.Mutex
	calls []GenerateCall
}

var _ ai.Generator = (*MockGenerator)(nil)

// NewMockGenerator creates a mock generator with default behavior.
func NewMockGenerator() *MockGenerator {
	return &MockGenerator{}
}

func (m *MockGenerator) record(call GenerateCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Generate returns GenerateFunc's result or a deterministic default.
func (m *MockGenerator) Generate(ctx context.Context, prompt string, images ...ai.Image) (string, error) {
	m.record(GenerateCall{Prompt: prompt, Images: images})

	if m.GenerateFunc != nil {
		return m.GenerateFunc(ctx, prompt, images...)
	}
	return defaultCompletion(prompt, len(images)), nil
}

// GenerateStream streams StreamFunc's output, or the Generate result split on spaces.
func (m *MockGenerator) GenerateStream(ctx context.Context, prompt string, onChunk ai.ChunkFunc) error {
	m.record(GenerateCall{Prompt: prompt, Stream: true})

	if m.StreamFunc != nil {
		return m.StreamFunc(ctx, prompt, onChunk)
	}

	var (
		text string
		err  error
	)
	if m.GenerateFunc != nil {
		text, err = m.GenerateFunc(ctx, prompt)
		if err != nil {
			return err
		}
	} else {
		text = defaultCompletion(prompt, 0)
	}

	words := strings.SplitAfter(text, " ")
	for _, w := range words {
		if err := onChunk(ctx, w); err != nil {
			return err
		}
	}
	return nil
}

// CallCount returns the number of calls made.
func (m *MockGenerator) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Calls returns a copy of the recorded calls.
func (m *MockGenerator) Calls() []GenerateCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]GenerateCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Reset clears recorded calls and injected behavior.
func (m *MockGenerator) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
	m.GenerateFunc = nil
	m.StreamFunc = nil
}

func defaultCompletion(prompt string, images int) string {
	if images > 0 {
		return "An illustrative figure from the document."
	}
	words := strings.Fields(prompt)
	if len(words) > 12 {
		words = words[len(words)-12:]
	}
	return "Summary of content: " + strings.Join(words, " ")
}

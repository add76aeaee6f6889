package openai

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	"github.com/poiesic/mmrag/ai"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Generator implements ai.Generator on top of a langchaingo llms.Model.
type Generator struct {
	client      llms.Model
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

var _ ai.Generator = (*Generator)(nil)

// newGenerator builds a generator for one model on the configured generation host.
// maxTokens of 0 leaves the limit to the server.
func newGenerator(config *ai.Config, model string, temperature float64, maxTokens int, component string) (*Generator, error) {
	client, err := openai.New(
		openai.WithBaseURL(config.GenerationHost),
		openai.WithToken(config.APIKey),
		openai.WithModel(model),
	)
	if err != nil {
		return nil, err
	}
	return NewGeneratorFromModel(client, temperature, maxTokens, component), nil
}

// NewGeneratorFromModel wraps an existing llms.Model. It is also how tests
// plug in langchaingo's fake model.
func NewGeneratorFromModel(client llms.Model, temperature float64, maxTokens int, component string) *Generator {
	return &Generator{
		client:      client,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      slog.Default().With("component", component),
	}
}

func (g *Generator) callOptions(extra ...llms.CallOption) []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(g.temperature)}
	if g.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(g.maxTokens))
	}
	return append(opts, extra...)
}

func userTurn(prompt string, images []ai.Image) []llms.MessageContent {
	parts := []llms.ContentPart{llms.TextPart(prompt)}
	for _, img := range images {
		mime := img.MIME
		if mime == "" {
			mime = "image/jpeg"
		}
		uri := fmt.Sprintf("data:%s;base64,%s", mime, base64.StdEncoding.EncodeToString(img.Data))
		parts = append(parts, llms.ImageURLPart(uri))
	}
	return []llms.MessageContent{{Role: llms.ChatMessageTypeHuman, Parts: parts}}
}

// Generate returns the first choice of a single-turn completion.
func (g *Generator) Generate(ctx context.Context, prompt string, images ...ai.Image) (string, error) {
	g.logger.Debug("generating", "promptLength", len(prompt), "images", len(images))

	resp, err := g.client.GenerateContent(ctx, userTurn(prompt, images), g.callOptions()...)
	if err != nil {
		g.logger.Debug("generation failed", "err", err)
		return "", openai.MapError(err)
	}
	if len(resp.Choices) < 1 {
		g.logger.Warn("model returned no choices")
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// GenerateStream streams a single-turn completion. Models that ignore the
// streaming option have their full answer delivered as one chunk.
func (g *Generator) GenerateStream(ctx context.Context, prompt string, onChunk ai.ChunkFunc) error {
	streamed := false
	stream := llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
		if len(chunk) == 0 {
			return nil
		}
		streamed = true
		return onChunk(ctx, string(chunk))
	})

	resp, err := g.client.GenerateContent(ctx, userTurn(prompt, nil), g.callOptions(stream)...)
	if err != nil {
		g.logger.Debug("streaming generation failed", "streamed", streamed, "err", err)
		return openai.MapError(err)
	}
	if !streamed && resp != nil && len(resp.Choices) > 0 && resp.Choices[0].Content != "" {
		return onChunk(ctx, resp.Choices[0].Content)
	}
	return nil
}

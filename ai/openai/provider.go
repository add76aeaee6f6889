// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package openai

import (
	"log/slog"

	"github.com/poiesic/mmrag/ai"
)

// Provider implements ai.AIProvider using OpenAI-compatible services.
// It owns one embedder and three generators that differ only in model and
// sampling settings.
type Provider struct {
	config          *ai.Config
	embedder        *Embedder
	chat            *Generator
	textSummarizer  *Generator
	imageSummarizer *Generator
	logger          *slog.Logger
}

// NewProvider creates a new AI provider with OpenAI-compatible services.
// The config is validated and normalized before use.
//
// Returns ai.AIProvider interface (not *Provider) to enforce abstraction
// and prevent coupling to OpenAI-specific implementation details.
func NewProvider(config *ai.Config) (ai.AIProvider, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	embedder, err := newEmbedder(config)
	if err != nil {
		return nil, err
	}

	chat, err := newGenerator(config, config.ChatModel, config.ChatTemperature, 0, "openai-chat")
	if err != nil {
		return nil, err
	}

	textSummarizer, err := newGenerator(config, config.SummaryModel, config.SummaryTemperature,
		config.SummaryMaxTokens, "openai-text-summarizer")
	if err != nil {
		return nil, err
	}

	imageSummarizer, err := newGenerator(config, config.VisionModel, config.SummaryTemperature,
		config.SummaryMaxTokens, "openai-image-summarizer")
	if err != nil {
		return nil, err
	}

	return &Provider{
		config:          config,
		embedder:        embedder,
		chat:            chat,
		textSummarizer:  textSummarizer,
		imageSummarizer: imageSummarizer,
		logger:          slog.Default().With("component", "openai-provider"),
	}, nil
}

// Embedder returns the text embedding service.
func (p *Provider) Embedder() ai.Embedder {
	return p.embedder
}

// ChatGenerator returns the answering model.
func (p *Provider) ChatGenerator() ai.Generator {
	return p.chat
}

// TextSummarizer returns the text and table summarization model.
func (p *Provider) TextSummarizer() ai.Generator {
	return p.textSummarizer
}

// ImageSummarizer returns the image description model.
func (p *Provider) ImageSummarizer() ai.Generator {
	return p.imageSummarizer
}

// Close releases resources held by the provider.
// The underlying HTTP clients need no explicit cleanup.
func (p *Provider) Close() error {
	p.logger.Debug("closing OpenAI provider")
	return nil
}

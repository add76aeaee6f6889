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

package ai

import (
	"errors"
	"strings"
)

// Config holds configuration for AI service providers.
type Config struct {
	// EmbeddingHost is the base URL for the embedding service API.
	// Example: "http://localhost:11434/v1" for local OpenAI-compatible server
	EmbeddingHost string

	// GenerationHost is the base URL for the chat and summarization models.
	GenerationHost string

	// APIKey is sent as the bearer token. Local servers accept any value.
	APIKey string

	// EmbeddingModel is the model identifier to use for text embeddings.
	// Example: "embeddinggemma", "text-embedding-3-small"
	EmbeddingModel string

	// ChatModel answers user questions.
	ChatModel string

	// SummaryModel summarizes text blocks and tables during ingestion.
	SummaryModel string

	// VisionModel describes images during ingestion. It must accept image input.
	VisionModel string

	// ChatTemperature is the sampling temperature for answers. Default: 0.7
	ChatTemperature float64

	// SummaryTemperature is the sampling temperature for summaries. Default: 0.3
	SummaryTemperature float64

	// SummaryMaxTokens bounds summary length. Default: 512
	SummaryMaxTokens int
}

// ConfigOption is a functional option for configuring a Config.
type ConfigOption func(*Config)

// WithEmbeddingHost sets the embedding service host URL.
func WithEmbeddingHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
	}
}

// WithGenerationHost sets the generation service host URL.
func WithGenerationHost(host string) ConfigOption {
	return func(c *Config) {
		c.GenerationHost = host
	}
}

// WithHost sets both embedding and generation hosts to the same URL.
func WithHost(host string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingHost = host
		c.GenerationHost = host
	}
}

// WithAPIKey sets the provider API key.
func WithAPIKey(key string) ConfigOption {
	return func(c *Config) {
		c.APIKey = key
	}
}

// WithEmbeddingModel sets the embedding model identifier.
func WithEmbeddingModel(model string) ConfigOption {
	return func(c *Config) {
		c.EmbeddingModel = model
	}
}

// WithChatModel sets the answering model.
func WithChatModel(model string) ConfigOption {
	return func(c *Config) {
		c.ChatModel = model
	}
}

// WithSummaryModel sets the text and table summarization model.
func WithSummaryModel(model string) ConfigOption {
	return func(c *Config) {
		c.SummaryModel = model
	}
}

// WithVisionModel sets the image description model.
func WithVisionModel(model string) ConfigOption {
	return func(c *Config) {
		c.VisionModel = model
	}
}

// WithChatTemperature sets the answer sampling temperature.
func WithChatTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.ChatTemperature = t
	}
}

// WithSummaryTemperature sets the summary sampling temperature.
func WithSummaryTemperature(t float64) ConfigOption {
	return func(c *Config) {
		c.SummaryTemperature = t
	}
}

// WithSummaryMaxTokens sets the summary token limit.
func WithSummaryMaxTokens(n int) ConfigOption {
	return func(c *Config) {
		c.SummaryMaxTokens = n
	}
}

// DefaultConfig returns a Config with sensible defaults for local OpenAI-compatible services.
// By default, embedding and generation use the same host.
func DefaultConfig() *Config {
	defaultHost := "http://localhost:11434/v1"
	return &Config{
		EmbeddingHost:      defaultHost,
		GenerationHost:     defaultHost,
		APIKey:             "none",
		EmbeddingModel:     "embeddinggemma",
		ChatModel:          "gemma3:4b",
		SummaryModel:       "gemma3:4b",
		VisionModel:        "gemma3:4b",
		ChatTemperature:    0.7,
		SummaryTemperature: 0.3,
		SummaryMaxTokens:   512,
	}
}

// NewConfig creates a Config with the default values and applies the provided options.
//
// Example:
//
//	cfg := NewConfig(
//	    WithHost("http://localhost:11434/v1"),
//	    WithVisionModel("llava:7b"),
//	)
func NewConfig(opts ...ConfigOption) *Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Normalize ensures the configuration is in a canonical form.
// It adds the /v1 suffix to hosts if missing, which is required
// by most OpenAI-compatible APIs (Ollama, LocalAI, vLLM, etc).
func (c *Config) Normalize() {
	c.EmbeddingHost = normalizeHost(c.EmbeddingHost)
	c.GenerationHost = normalizeHost(c.GenerationHost)
	if c.APIKey == "" {
		c.APIKey = "none"
	}
}

func normalizeHost(host string) string {
	if host == "" || strings.HasSuffix(host, "/v1") {
		return host
	}
	return strings.TrimSuffix(host, "/") + "/v1"
}

// Validate checks that the configuration is valid and complete.
// It normalizes the configuration before validation.
func (c *Config) Validate() error {
	c.Normalize()

	if c.EmbeddingHost == "" {
		return errors.New("ai config: EmbeddingHost is required")
	}
	if c.GenerationHost == "" {
		return errors.New("ai config: GenerationHost is required")
	}
	if c.EmbeddingModel == "" {
		return errors.New("ai config: EmbeddingModel is required")
	}
	if c.ChatModel == "" {
		return errors.New("ai config: ChatModel is required")
	}
	if c.SummaryModel == "" {
		return errors.New("ai config: SummaryModel is required")
	}
	if c.VisionModel == "" {
		return errors.New("ai config: VisionModel is required")
	}
	if c.ChatTemperature < 0 || c.ChatTemperature > 2 {
		return errors.New("ai config: ChatTemperature must be between 0 and 2")
	}
	if c.SummaryTemperature < 0 || c.SummaryTemperature > 2 {
		return errors.New("ai config: SummaryTemperature must be between 0 and 2")
	}
	if c.SummaryMaxTokens < 1 {
		return errors.New("ai config: SummaryMaxTokens must be positive")
	}
	return nil
}

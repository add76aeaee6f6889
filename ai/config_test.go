package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.NotNil(t, cfg)
	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.GenerationHost)
	assert.Equal(t, "embeddinggemma", cfg.EmbeddingModel)
	assert.Equal(t, 0.7, cfg.ChatTemperature)
	assert.Equal(t, 0.3, cfg.SummaryTemperature)
	assert.Equal(t, 512, cfg.SummaryMaxTokens)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with no options", func(t *testing.T) {
		cfg := NewConfig()
		assert.Equal(t, DefaultConfig(), cfg)
	})

	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.GenerationHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithGenerationHost("http://gen:9090/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://gen:9090/v1", cfg.GenerationHost)
	})

	t.Run("with custom models", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingModel("text-embedding-3-small"),
			WithChatModel("gpt-4o"),
			WithSummaryModel("gpt-4o-mini"),
			WithVisionModel("gpt-4o"),
			WithAPIKey("sk-test"),
		)

		assert.Equal(t, "text-embedding-3-small", cfg.EmbeddingModel)
		assert.Equal(t, "gpt-4o", cfg.ChatModel)
		assert.Equal(t, "gpt-4o-mini", cfg.SummaryModel)
		assert.Equal(t, "gpt-4o", cfg.VisionModel)
		assert.Equal(t, "sk-test", cfg.APIKey)
	})

	t.Run("with sampling options", func(t *testing.T) {
		cfg := NewConfig(
			WithChatTemperature(0.2),
			WithSummaryTemperature(0),
			WithSummaryMaxTokens(128),
		)

		assert.Equal(t, 0.2, cfg.ChatTemperature)
		assert.Equal(t, 0.0, cfg.SummaryTemperature)
		assert.Equal(t, 128, cfg.SummaryMaxTokens)
	})
}

func TestConfigNormalize(t *testing.T) {
	tests := []struct {
		name     string
		host     string
		expected string
	}{
		{"already has /v1", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"missing /v1", "http://localhost:11434", "http://localhost:11434/v1"},
		{"has trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"empty host", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{EmbeddingHost: tt.host, GenerationHost: tt.host}

			cfg.Normalize()

			assert.Equal(t, tt.expected, cfg.EmbeddingHost)
			assert.Equal(t, tt.expected, cfg.GenerationHost)
			assert.Equal(t, "none", cfg.APIKey)
		})
	}
}

func TestConfigValidate(t *testing.T) {
	t.Run("valid config normalizes hosts", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://localhost:11434"))

		require.NoError(t, cfg.Validate())
		assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://localhost:11434/v1", cfg.GenerationHost)
	})

	tests := []struct {
		name    string
		mutate  func(*Config)
		errText string
	}{
		{"missing embedding host", func(c *Config) { c.EmbeddingHost = "" }, "EmbeddingHost"},
		{"missing generation host", func(c *Config) { c.GenerationHost = "" }, "GenerationHost"},
		{"missing embedding model", func(c *Config) { c.EmbeddingModel = "" }, "EmbeddingModel"},
		{"missing chat model", func(c *Config) { c.ChatModel = "" }, "ChatModel"},
		{"missing summary model", func(c *Config) { c.SummaryModel = "" }, "SummaryModel"},
		{"missing vision model", func(c *Config) { c.VisionModel = "" }, "VisionModel"},
		{"chat temperature too high", func(c *Config) { c.ChatTemperature = 2.5 }, "ChatTemperature"},
		{"negative summary temperature", func(c *Config) { c.SummaryTemperature = -1 }, "SummaryTemperature"},
		{"zero max tokens", func(c *Config) { c.SummaryMaxTokens = 0 }, "SummaryMaxTokens"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errText)
		})
	}
}

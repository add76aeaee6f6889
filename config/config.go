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

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/mmrag/ai"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/poiesic/mmrag/search"
	"gopkg.in/yaml.v3"
)

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// UploadsPerMinute is the per-client upload rate. Zero disables limiting.
	UploadsPerMinute float64 `yaml:"uploads_per_minute"`
	UploadBurst      int     `yaml:"upload_burst"`
}

// StorageConfig locates the badger database and kept uploads.
type StorageConfig struct {
	DataDir    string `yaml:"data_dir"`
	InMemory   bool   `yaml:"in_memory"`
	UploadsDir string `yaml:"uploads_dir"`
}

// AIConfig mirrors ai.Config.
type AIConfig struct {
	EmbeddingHost      string  `yaml:"embedding_host"`
	GenerationHost     string  `yaml:"generation_host"`
	APIKey             string  `yaml:"api_key"`
	EmbeddingModel     string  `yaml:"embedding_model"`
	ChatModel          string  `yaml:"chat_model"`
	SummaryModel       string  `yaml:"summary_model"`
	VisionModel        string  `yaml:"vision_model"`
	ChatTemperature    float64 `yaml:"chat_temperature"`
	SummaryTemperature float64 `yaml:"summary_temperature"`
	SummaryMaxTokens   int     `yaml:"summary_max_tokens"`
}

// RetryConfig mirrors ratelimit.Policy.
type RetryConfig struct {
	MaxRetries        int     `yaml:"max_retries"`
	DefaultWaitSecs   float64 `yaml:"default_wait_secs"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
}

// IngestionConfig tunes the summarization pipeline.
type IngestionConfig struct {
	PoolSize         int     `yaml:"pool_size"`
	MaxUploadMB      int     `yaml:"max_upload_mb"`
	ImageSummaries   bool    `yaml:"image_summaries"`
	FailureThreshold float64 `yaml:"failure_threshold"`
	ThrottleMinMS    int     `yaml:"throttle_min_ms"`
	ThrottleMaxMS    int     `yaml:"throttle_max_ms"`
}

// SearchConfig tunes retrieval and answering.
type SearchConfig struct {
	TopK int `yaml:"top_k"`
	// ScoreMode is auto, distance or similarity.
	ScoreMode       string `yaml:"score_mode"`
	HistoryLimit    int    `yaml:"history_limit"`
	MaxContextChars int    `yaml:"max_context_chars"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LogLevel  string          `yaml:"log_level"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	AI        AIConfig        `yaml:"ai"`
	Retry     RetryConfig     `yaml:"retry"`
	Ingestion IngestionConfig `yaml:"ingestion"`
	Search    SearchConfig    `yaml:"search"`
}

// Default returns the built-in configuration: a local OpenAI-compatible
// server and a badger database under ./data.
func Default() *AppConfig {
	aiDefaults := ai.DefaultConfig()
	policy := ratelimit.DefaultPolicy()
	return &AppConfig{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:             ":8000",
			UploadsPerMinute: 10,
			UploadBurst:      3,
		},
		Storage: StorageConfig{
			DataDir:    "data",
			UploadsDir: filepath.Join("data", "uploads"),
		},
		AI: AIConfig{
			EmbeddingHost:      aiDefaults.EmbeddingHost,
			GenerationHost:     aiDefaults.GenerationHost,
			APIKey:             aiDefaults.APIKey,
			EmbeddingModel:     aiDefaults.EmbeddingModel,
			ChatModel:          aiDefaults.ChatModel,
			SummaryModel:       aiDefaults.SummaryModel,
			VisionModel:        aiDefaults.VisionModel,
			ChatTemperature:    aiDefaults.ChatTemperature,
			SummaryTemperature: aiDefaults.SummaryTemperature,
			SummaryMaxTokens:   aiDefaults.SummaryMaxTokens,
		},
		Retry: RetryConfig{
			MaxRetries:        policy.MaxRetries,
			DefaultWaitSecs:   policy.DefaultWait.Seconds(),
			BackoffMultiplier: policy.BackoffMultiplier,
		},
		Ingestion: IngestionConfig{
			PoolSize:         2,
			MaxUploadMB:      50,
			ImageSummaries:   true,
			FailureThreshold: 0.9,
			ThrottleMinMS:    500,
			ThrottleMaxMS:    1500,
		},
		Search: SearchConfig{
			TopK:            5,
			ScoreMode:       "distance",
			HistoryLimit:    10,
			MaxContextChars: 8000,
		},
	}
}

// Load reads a config from path over the defaults, loads .env files if
// present, and applies environment overrides. A missing file yields the
// defaults. An empty path skips the file.
func Load(path string, envFiles ...string) (*AppConfig, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	if err := loadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadDotEnv loads the given files, or ./.env, skipping missing ones.
// Variables already set in the environment win.
func loadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if _, err := os.Stat(f); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return fmt.Errorf("loading %s: %w", f, err)
		}
	}
	return nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ApplyEnv overrides fields from MMRAG_* variables. OPENAI_API_KEY is used
// when MMRAG_API_KEY is unset; MMRAG_HOST sets both hosts.
func (c *AppConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}

	str("MMRAG_LOG_LEVEL", &c.LogLevel)
	str("MMRAG_ADDR", &c.Server.Addr)
	str("MMRAG_DATA_DIR", &c.Storage.DataDir)
	str("MMRAG_UPLOADS_DIR", &c.Storage.UploadsDir)
	str("MMRAG_HOST", &c.AI.EmbeddingHost)
	str("MMRAG_HOST", &c.AI.GenerationHost)
	str("MMRAG_EMBEDDING_HOST", &c.AI.EmbeddingHost)
	str("MMRAG_GENERATION_HOST", &c.AI.GenerationHost)
	str("OPENAI_API_KEY", &c.AI.APIKey)
	str("MMRAG_API_KEY", &c.AI.APIKey)
	str("MMRAG_EMBEDDING_MODEL", &c.AI.EmbeddingModel)
	str("MMRAG_CHAT_MODEL", &c.AI.ChatModel)
	str("MMRAG_SUMMARY_MODEL", &c.AI.SummaryModel)
	str("MMRAG_VISION_MODEL", &c.AI.VisionModel)
	str("MMRAG_SCORE_MODE", &c.Search.ScoreMode)

	if v, ok := lookup("MMRAG_IN_MEMORY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MMRAG_IN_MEMORY: %w", err)
		}
		c.Storage.InMemory = b
	}
	if v, ok := lookup("MMRAG_IMAGE_SUMMARIES"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MMRAG_IMAGE_SUMMARIES: %w", err)
		}
		c.Ingestion.ImageSummaries = b
	}
	if v, ok := lookup("MMRAG_POOL_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MMRAG_POOL_SIZE: %w", err)
		}
		c.Ingestion.PoolSize = n
	}
	return nil
}

// Validate checks the values that have no usable fallback.
func (c *AppConfig) Validate() error {
	if err := c.RetryPolicy().Validate(); err != nil {
		return fmt.Errorf("retry: %w", err)
	}
	if _, err := c.ScoreMode(); err != nil {
		return err
	}
	if c.Ingestion.FailureThreshold < 0 || c.Ingestion.FailureThreshold > 1 {
		return fmt.Errorf("ingestion: failure_threshold %v outside [0,1]", c.Ingestion.FailureThreshold)
	}
	if c.Ingestion.MaxUploadMB < 1 {
		return errors.New("ingestion: max_upload_mb must be positive")
	}
	if c.Ingestion.ThrottleMaxMS < c.Ingestion.ThrottleMinMS {
		return errors.New("ingestion: throttle_max_ms must not be below throttle_min_ms")
	}
	if !c.Storage.InMemory && c.Storage.DataDir == "" {
		return errors.New("storage: data_dir is required unless in_memory is set")
	}
	return c.AIConfig().Validate()
}

// AIConfig builds the provider configuration.
func (c *AppConfig) AIConfig() *ai.Config {
	return ai.NewConfig(
		ai.WithEmbeddingHost(c.AI.EmbeddingHost),
		ai.WithGenerationHost(c.AI.GenerationHost),
		ai.WithAPIKey(c.AI.APIKey),
		ai.WithEmbeddingModel(c.AI.EmbeddingModel),
		ai.WithChatModel(c.AI.ChatModel),
		ai.WithSummaryModel(c.AI.SummaryModel),
		ai.WithVisionModel(c.AI.VisionModel),
		ai.WithChatTemperature(c.AI.ChatTemperature),
		ai.WithSummaryTemperature(c.AI.SummaryTemperature),
		ai.WithSummaryMaxTokens(c.AI.SummaryMaxTokens),
	)
}

// RetryPolicy builds the rate-limit retry policy.
func (c *AppConfig) RetryPolicy() ratelimit.Policy {
	return ratelimit.Policy{
		MaxRetries:        c.Retry.MaxRetries,
		DefaultWait:       time.Duration(c.Retry.DefaultWaitSecs * float64(time.Second)),
		BackoffMultiplier: c.Retry.BackoffMultiplier,
	}
}

// ScoreMode parses Search.ScoreMode.
func (c *AppConfig) ScoreMode() (search.ScoreMode, error) {
	switch strings.ToLower(strings.TrimSpace(c.Search.ScoreMode)) {
	case "", "auto":
		return search.ScoreAuto, nil
	case "distance":
		return search.ScoreDistance, nil
	case "similarity":
		return search.ScoreSimilarity, nil
	default:
		return 0, fmt.Errorf("search: unknown score_mode %q", c.Search.ScoreMode)
	}
}

// ThrottleDelay returns the inter-call pause range for ingestion.
func (c *AppConfig) ThrottleDelay() (time.Duration, time.Duration) {
	return time.Duration(c.Ingestion.ThrottleMinMS) * time.Millisecond,
		time.Duration(c.Ingestion.ThrottleMaxMS) * time.Millisecond
}

// MaxUploadBytes returns the upload size limit in bytes.
func (c *AppConfig) MaxUploadBytes() int64 {
	return int64(c.Ingestion.MaxUploadMB) << 20
}

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

package mmrag

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/poiesic/mmrag/ai"
	"github.com/poiesic/mmrag/ai/openai"
	"github.com/poiesic/mmrag/chat"
	"github.com/poiesic/mmrag/config"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/index"
	"github.com/poiesic/mmrag/ingestion"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/poiesic/mmrag/reembed"
	"github.com/poiesic/mmrag/search"
	"github.com/poiesic/mmrag/storage/badger"
	"github.com/poiesic/mmrag/throttle"
)

// Database wires storage, the AI provider, ingestion, retrieval and chat
// behind one handle.
type Database struct {
	cfg       *config.AppConfig
	stores    *badger.Stores
	provider  ai.AIProvider
	sched     *ratelimit.Scheduler
	index     *index.Index
	retriever *search.Retriever
	pipeline  *ingestion.Pipeline
	chat      *chat.Service
	logger    *slog.Logger
}

// DatabaseOption configures a Database.
type DatabaseOption func(*databaseOptions)

type databaseOptions struct {
	provider     ai.AIProvider
	sched        *ratelimit.Scheduler
	logger       *slog.Logger
	pipelineOpts []ingestion.Option
	chatOpts     []chat.Option
}

// WithProvider replaces the OpenAI-compatible provider built from config.
// The Database takes ownership and closes it.
func WithProvider(p ai.AIProvider) DatabaseOption {
	return func(o *databaseOptions) {
		o.provider = p
	}
}

// WithScheduler replaces the retry scheduler built from config.
func WithScheduler(s *ratelimit.Scheduler) DatabaseOption {
	return func(o *databaseOptions) {
		o.sched = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) DatabaseOption {
	return func(o *databaseOptions) {
		o.logger = logger
	}
}

// WithPipelineOptions appends options applied after the config-derived
// ingestion options.
func WithPipelineOptions(opts ...ingestion.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.pipelineOpts = append(o.pipelineOpts, opts...)
	}
}

// WithChatOptions appends options applied after the config-derived chat
// options.
func WithChatOptions(opts ...chat.Option) DatabaseOption {
	return func(o *databaseOptions) {
		o.chatOpts = append(o.chatOpts, opts...)
	}
}

// NewDatabase opens the store described by cfg and builds every service
// on top of it. A nil cfg uses config.Default().
func NewDatabase(cfg *config.AppConfig, opts ...DatabaseOption) (*Database, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	options := &databaseOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	mode, err := cfg.ScoreMode()
	if err != nil {
		return nil, err
	}

	provider := options.provider
	if provider == nil {
		provider, err = openai.NewProvider(cfg.AIConfig())
		if err != nil {
			return nil, fmt.Errorf("creating AI provider: %w", err)
		}
	}

	sched := options.sched
	if sched == nil {
		sched, err = ratelimit.NewScheduler(
			ratelimit.WithPolicy(cfg.RetryPolicy()),
			ratelimit.WithLogger(logger.With("component", "ratelimit")),
		)
		if err != nil {
			provider.Close()
			return nil, err
		}
	}

	backend, err := badger.OpenBackend(cfg.Storage.DataDir, cfg.Storage.InMemory)
	if err != nil {
		provider.Close()
		return nil, err
	}
	stores := badger.NewStores(backend, provider.Embedder())

	db := &Database{
		cfg:      cfg,
		stores:   stores,
		provider: provider,
		sched:    sched,
		logger:   logger,
	}
	if err := db.build(mode, options); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func (db *Database) build(mode search.ScoreMode, options *databaseOptions) error {
	var err error
	cfg := db.cfg

	db.index, err = index.New(db.stores.Vectors, db.stores.Parents,
		index.WithScheduler(db.sched),
		index.WithLogger(db.logger.With("component", "index")),
	)
	if err != nil {
		return err
	}

	db.retriever, err = search.NewRetriever(db.stores.Vectors, db.index,
		search.WithScoreMode(mode),
		search.WithDocumentFilterPushdown(),
		search.WithLogger(db.logger.With("component", "search")),
	)
	if err != nil {
		return err
	}

	lo, hi := cfg.ThrottleDelay()
	pipelineOpts := []ingestion.Option{
		ingestion.WithPoolSize(cfg.Ingestion.PoolSize),
		ingestion.WithScheduler(db.sched),
		ingestion.WithThrottle(throttle.WithDelay(lo, hi)),
		ingestion.WithImageSummaries(cfg.Ingestion.ImageSummaries),
		ingestion.WithFailureThreshold(cfg.Ingestion.FailureThreshold),
		ingestion.WithMaxUploadBytes(cfg.MaxUploadBytes()),
		ingestion.WithLogger(db.logger.With("component", "ingestion")),
	}
	if !cfg.Storage.InMemory && cfg.Storage.UploadsDir != "" {
		pipelineOpts = append(pipelineOpts, ingestion.WithUploadsDir(cfg.Storage.UploadsDir))
	}
	db.pipeline, err = ingestion.NewPipeline(db.stores.Documents, db.stores.Summaries, db.index, db.provider,
		append(pipelineOpts, options.pipelineOpts...)...)
	if err != nil {
		return err
	}

	chatOpts := []chat.Option{
		chat.WithScheduler(db.sched),
		chat.WithTopK(cfg.Search.TopK),
		chat.WithHistoryLimit(cfg.Search.HistoryLimit),
		chat.WithMaxContextChars(cfg.Search.MaxContextChars),
		chat.WithLogger(db.logger.With("component", "chat")),
	}
	db.chat, err = chat.NewService(db.retriever, db.stores.Messages, db.provider,
		append(chatOpts, options.chatOpts...)...)
	return err
}

// Close waits for in-flight ingestion, then releases the provider and the
// store.
func (db *Database) Close() error {
	if db.pipeline != nil {
		db.pipeline.Wait()
		db.pipeline.Release()
	}
	if err := db.provider.Close(); err != nil {
		db.logger.Error("error closing AI provider", "err", err)
	}
	if err := db.stores.Close(); err != nil {
		db.logger.Error("error closing backend storage", "err", err)
		return err
	}
	return nil
}

// Config returns the configuration the database was opened with.
func (db *Database) Config() *config.AppConfig {
	return db.cfg
}

// Stores returns the underlying repositories.
func (db *Database) Stores() *badger.Stores {
	return db.stores
}

// Pipeline returns the ingestion pipeline.
func (db *Database) Pipeline() *ingestion.Pipeline {
	return db.pipeline
}

// Chat returns the chat service.
func (db *Database) Chat() *chat.Service {
	return db.chat
}

// Retriever returns the retrieval engine.
func (db *Database) Retriever() *search.Retriever {
	return db.retriever
}

// Upload accepts a document and starts ingesting it in the background.
func (db *Database) Upload(ctx context.Context, name string, data []byte) (*core.Document, error) {
	return db.pipeline.Upload(ctx, name, data)
}

// Wait blocks until every accepted document has finished ingesting.
func (db *Database) Wait() {
	db.pipeline.Wait()
}

// Status returns a document's current lifecycle record.
func (db *Database) Status(ctx context.Context, id string) (*core.Document, error) {
	return db.stores.Documents.GetDocument(ctx, id)
}

// ListDocuments returns processing and completed documents, newest first.
// Failed documents are left out.
func (db *Database) ListDocuments(ctx context.Context) ([]*core.Document, error) {
	docs, err := db.stores.Documents.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	out := docs[:0]
	for _, doc := range docs {
		if doc.Status != core.StatusFailed {
			out = append(out, doc)
		}
	}
	return out, nil
}

// DeleteDocument removes a document with its kept upload, its index
// entries and its summaries, then its record. Cleanup of the upload and
// summaries is best effort; the record is removed regardless. Returns
// storage.ErrNotFound for an unknown id.
func (db *Database) DeleteDocument(ctx context.Context, id string) error {
	if _, err := db.stores.Documents.GetDocument(ctx, id); err != nil {
		return err
	}

	var cleanup []error
	if dir := db.pipeline.UploadPath(id); dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			cleanup = append(cleanup, fmt.Errorf("removing upload: %w", err))
		}
	}
	if err := db.index.DeleteDocument(ctx, id); err != nil {
		return err
	}
	if err := db.stores.Summaries.DeleteSummaries(ctx, id); err != nil {
		cleanup = append(cleanup, fmt.Errorf("deleting summaries: %w", err))
	}
	if err := errors.Join(cleanup...); err != nil {
		db.logger.Warn("incomplete document cleanup", "doc_id", id, "err", err)
	}

	if err := db.stores.Documents.DeleteDocument(ctx, id); err != nil {
		return err
	}
	db.logger.Info("document deleted", "doc_id", id)
	return nil
}

// Search retrieves the sources closest to q.
func (db *Database) Search(ctx context.Context, q search.Query) ([]core.SourceResult, error) {
	return db.retriever.Search(ctx, q)
}

// Ask answers a question and stores the exchange.
func (db *Database) Ask(ctx context.Context, req chat.Request) (*chat.Answer, error) {
	return db.chat.Ask(ctx, req)
}

// Stream answers a question incrementally through emit.
func (db *Database) Stream(ctx context.Context, req chat.Request, emit func(chat.Event) error) error {
	return db.chat.Stream(ctx, req, emit)
}

// Sessions lists chat sessions, most recently active first.
func (db *Database) Sessions(ctx context.Context) ([]*core.SessionSummary, error) {
	return db.chat.Sessions(ctx)
}

// Session returns one session's summary, or chat.ErrSessionNotFound.
func (db *Database) Session(ctx context.Context, sessionID string) (*core.SessionSummary, error) {
	return db.chat.Session(ctx, sessionID)
}

// Messages returns a session's messages, oldest first.
func (db *Database) Messages(ctx context.Context, sessionID string) ([]*core.Message, error) {
	return db.chat.Messages(ctx, sessionID)
}

// DeleteSession removes every message of a session.
func (db *Database) DeleteSession(ctx context.Context, sessionID string) error {
	return db.chat.DeleteSession(ctx, sessionID)
}

// Reembed rewrites every stored vector with the current embedder.
func (db *Database) Reembed(ctx context.Context, cfg *reembed.Config, progress io.Writer) (int, error) {
	r, err := reembed.NewReembedder(db.stores.Vectors, db.provider.Embedder(), cfg, progress,
		reembed.WithScheduler(db.sched),
		reembed.WithLogger(db.logger.With("component", "reembed")),
	)
	if err != nil {
		return 0, err
	}
	return r.Run(ctx)
}

// Health describes the running configuration.
type Health struct {
	Status         string `json:"status"`
	DataDir        string `json:"data_dir"`
	InMemory       bool   `json:"in_memory"`
	Documents      int    `json:"documents"`
	Vectors        int    `json:"vectors"`
	EmbeddingModel string `json:"embedding_model"`
	ChatModel      string `json:"chat_model"`
	SummaryModel   string `json:"summary_model"`
	VisionModel    string `json:"vision_model"`
	ImageSummaries bool   `json:"image_summaries"`
	ScoreMode      string `json:"score_mode"`
}

// Health reports storage and provider configuration with live counts.
func (db *Database) Health(ctx context.Context) (*Health, error) {
	docs, err := db.stores.Documents.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}
	vectors, err := db.stores.Vectors.CountVectors(ctx)
	if err != nil {
		return nil, err
	}
	return &Health{
		Status:         "ok",
		DataDir:        db.cfg.Storage.DataDir,
		InMemory:       db.cfg.Storage.InMemory,
		Documents:      len(docs),
		Vectors:        vectors,
		EmbeddingModel: db.cfg.AI.EmbeddingModel,
		ChatModel:      db.cfg.AI.ChatModel,
		SummaryModel:   db.cfg.AI.SummaryModel,
		VisionModel:    db.cfg.AI.VisionModel,
		ImageSummaries: db.cfg.Ingestion.ImageSummaries,
		ScoreMode:      db.cfg.Search.ScoreMode,
	}, nil
}

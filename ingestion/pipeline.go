package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/mmrag/ai"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/poiesic/mmrag/storage"
	"github.com/poiesic/mmrag/throttle"
)

// DefaultMaxUploadBytes is the default upload size limit (50 MiB).
const DefaultMaxUploadBytes = 50 << 20

// Indexer stores summaries for retrieval. index.Index implements it.
type Indexer interface {
	Index(ctx context.Context, docID string, parents []core.ContentElement, summaries []string) ([]core.ChildEntry, error)
}

// Pipeline takes uploaded documents from parsing to a searchable index.
// Each document runs as one task on a worker pool; within a task every
// provider call is serialized by a throttle.Throttler.
type Pipeline struct {
	documents      storage.DocumentRepository
	summaries      storage.SummaryRepository
	indexer        Indexer
	summarizer     *summarizer
	parsers        map[string]Parser
	pool           *ants.Pool
	wg             sync.WaitGroup
	sched          *ratelimit.Scheduler
	throttleOpts   []throttle.Option
	breaker        breaker
	imageSummaries bool
	maxUploadBytes int64
	uploadsDir     string
	newID          func() string
	logger         *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets how many documents are processed concurrently.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}
		if p.pool != nil {
			p.pool.Release()
		}
		pool, err := newPool(size)
		if err != nil {
			return err
		}
		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithScheduler sets the retry scheduler used for every provider call.
func WithScheduler(s *ratelimit.Scheduler) Option {
	return func(p *Pipeline) error {
		if s == nil {
			return errors.New("scheduler cannot be nil")
		}
		p.sched = s
		return nil
	}
}

// WithThrottle passes options to the throttler built for each document.
func WithThrottle(opts ...throttle.Option) Option {
	return func(p *Pipeline) error {
		p.throttleOpts = append(p.throttleOpts, opts...)
		return nil
	}
}

// WithImageSummaries enables or disables image description. When disabled,
// images are neither summarized nor indexed. Default is enabled.
func WithImageSummaries(enabled bool) Option {
	return func(p *Pipeline) error {
		p.imageSummaries = enabled
		return nil
	}
}

// WithFailureThreshold sets the failure fraction above which the circuit
// breaker fails a document. Default is DefaultFailureThreshold.
func WithFailureThreshold(threshold float64) Option {
	return func(p *Pipeline) error {
		if threshold < 0 || threshold > 1 {
			return fmt.Errorf("failure threshold %v outside [0,1]", threshold)
		}
		p.breaker.threshold = threshold
		return nil
	}
}

// WithParser registers parser for files with extension ext (".json").
func WithParser(ext string, parser Parser) Option {
	return func(p *Pipeline) error {
		if parser == nil {
			return errors.New("parser cannot be nil")
		}
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		p.parsers[ext] = parser
		return nil
	}
}

// WithMaxUploadBytes sets the upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			return errors.New("upload limit must be positive")
		}
		p.maxUploadBytes = n
		return nil
	}
}

// WithUploadsDir keeps a copy of every upload under dir/<docID>/.
func WithUploadsDir(dir string) Option {
	return func(p *Pipeline) error {
		p.uploadsDir = dir
		return nil
	}
}

// WithIDGenerator replaces uuid.NewString for document ids.
func WithIDGenerator(fn func() string) Option {
	return func(p *Pipeline) error {
		if fn == nil {
			return errors.New("id generator cannot be nil")
		}
		p.newID = fn
		return nil
	}
}

// NewPipeline creates a new ingestion pipeline.
func NewPipeline(
	documents storage.DocumentRepository,
	summaries storage.SummaryRepository,
	indexer Indexer,
	provider ai.AIProvider,
	opts ...Option,
) (*Pipeline, error) {
	if documents == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if summaries == nil {
		return nil, ErrSummaryRepositoryRequired
	}
	if indexer == nil {
		return nil, ErrIndexerRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}
	pool, err := newPool(poolSize)
	if err != nil {
		return nil, err
	}

	p := &Pipeline{
		documents:      documents,
		summaries:      summaries,
		indexer:        indexer,
		parsers:        defaultParsers(),
		pool:           pool,
		breaker:        breaker{threshold: DefaultFailureThreshold},
		imageSummaries: true,
		maxUploadBytes: DefaultMaxUploadBytes,
		newID:          uuid.NewString,
		logger:         slog.Default().With("component", "ingestion"),
	}

	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	if p.sched == nil {
		sched, err := ratelimit.NewScheduler(ratelimit.WithLogger(p.logger))
		if err != nil {
			p.Release()
			return nil, err
		}
		p.sched = sched
	}

	p.summarizer = &summarizer{
		text:  provider.TextSummarizer(),
		image: provider.ImageSummarizer(),
		sched: p.sched,
	}
	return p, nil
}

// Supports reports whether a parser is registered for name's extension.
func (p *Pipeline) Supports(name string) bool {
	_, ok := p.parsers[extension(name)]
	return ok
}

// Validate checks an upload before anything is stored.
func (p *Pipeline) Validate(name string, size int64) error {
	if !p.Supports(name) {
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
	}
	if size == 0 {
		return ErrEmptyFile
	}
	if size > p.maxUploadBytes {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, size, p.maxUploadBytes)
	}
	return nil
}

// Upload validates and records a new document, then processes it in the
// background. The returned document is in status processing; poll the
// document repository for progress.
func (p *Pipeline) Upload(ctx context.Context, name string, data []byte) (*core.Document, error) {
	name = filepath.Base(name)
	if err := p.Validate(name, int64(len(data))); err != nil {
		return nil, err
	}

	doc := &core.Document{
		ID:     p.newID(),
		Name:   name,
		Status: core.StatusProcessing,
		Stage:  core.StageUploaded,
	}
	if err := p.documents.CreateDocument(ctx, doc); err != nil {
		return nil, err
	}

	if p.uploadsDir != "" {
		if err := p.saveUpload(doc.ID, name, data); err != nil {
			p.fail(ctx, doc.ID, err)
			return nil, err
		}
	}

	if err := p.Submit(doc.ID, name, data); err != nil {
		p.fail(ctx, doc.ID, err)
		return nil, err
	}
	p.logger.Info("document accepted", "doc_id", doc.ID, "name", name, "bytes", len(data))
	return doc, nil
}

// UploadPath returns where Upload keeps the copy of a document's file, or
// "" when uploads are not kept.
func (p *Pipeline) UploadPath(docID string) string {
	if p.uploadsDir == "" || docID == "" {
		return ""
	}
	return filepath.Join(p.uploadsDir, docID)
}

func (p *Pipeline) saveUpload(docID, name string, data []byte) error {
	dir := p.UploadPath(docID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating upload dir: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("saving upload: %w", err)
	}
	return nil
}

// Submit queues an existing processing document for background work and
// returns without waiting for a free worker. Processing runs detached from
// any request context and cannot be cancelled once started.
func (p *Pipeline) Submit(docID, name string, data []byte) error {
	if p.pool.IsClosed() {
		return ErrPipelineClosed
	}

	p.wg.Add(1)
	task := func() {
		defer p.wg.Done()
		_ = p.Process(context.Background(), docID, name, data)
	}
	go func() {
		// Blocks until a worker frees up; the queue of waiting tasks is unbounded.
		if err := p.pool.Submit(task); err != nil {
			p.wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrPipelineClosed
			}
			p.fail(context.Background(), docID, fmt.Errorf("queueing document: %w", err))
		}
	}()
	return nil
}

// newPool creates a blocking pool with no cap on waiting submitters.
func newPool(size int) (*ants.Pool, error) {
	return ants.NewPool(size, ants.WithNonblocking(false), ants.WithMaxBlockingTasks(0))
}

// Process runs every stage for one document synchronously. On failure the
// document is marked failed with the error as its reason and the error is
// returned.
func (p *Pipeline) Process(ctx context.Context, docID, name string, data []byte) error {
	run := &documentRun{
		pipeline: p,
		docID:    docID,
		name:     name,
		logger:   p.logger.With("doc_id", docID),
	}
	if err := run.execute(ctx, data); err != nil {
		p.fail(ctx, docID, err)
		return err
	}
	return nil
}

func (p *Pipeline) fail(ctx context.Context, docID string, cause error) {
	p.logger.Error("document failed", "doc_id", docID, "err", cause)
	if _, err := p.documents.MarkFailed(ctx, docID, cause.Error()); err != nil {
		p.logger.Error("error marking document failed", "doc_id", docID, "err", err)
	}
}

// Wait blocks until every submitted document has finished.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Release releases resources including worker pools.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

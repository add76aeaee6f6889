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

package reembed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/poiesic/mmrag/ai"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/poiesic/mmrag/storage"
)

// Config holds configuration for the reembedding operation.
type Config struct {
	// BatchSize is the number of vectors embedded per call.
	BatchSize int

	// ReportInterval is how often progress is reported, in vectors.
	ReportInterval int

	// Workers is the number of batches embedded concurrently.
	Workers int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      DefaultBatchSize,
		ReportInterval: 100,
		Workers:        2,
	}
}

// Reembedder re-embeds every vector in a store.
type Reembedder struct {
	vectors   storage.VectorMaintainer
	config    *Config
	progress  io.Writer
	processor *BatchProcessor
	iterator  *VectorIterator
	logger    *slog.Logger
}

// Option configures a Reembedder.
type Option func(*reembedOptions)

type reembedOptions struct {
	sched  *ratelimit.Scheduler
	logger *slog.Logger
}

// WithScheduler sets the retry scheduler for embedding calls.
func WithScheduler(s *ratelimit.Scheduler) Option {
	return func(o *reembedOptions) {
		o.sched = s
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *reembedOptions) {
		o.logger = logger
	}
}

// NewReembedder creates a reembedder. progress receives human-readable
// progress lines, typically os.Stderr; nil discards them.
func NewReembedder(vectors storage.VectorMaintainer, embedder ai.Embedder, config *Config, progress io.Writer, opts ...Option) (*Reembedder, error) {
	if vectors == nil {
		return nil, ErrVectorStoreRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Workers <= 0 {
		config.Workers = 1
	}
	if progress == nil {
		progress = io.Discard
	}

	o := &reembedOptions{logger: slog.Default().With("component", "reembed")}
	for _, opt := range opts {
		opt(o)
	}
	if o.sched == nil {
		sched, err := ratelimit.NewScheduler(ratelimit.WithLogger(o.logger))
		if err != nil {
			return nil, err
		}
		o.sched = sched
	}

	return &Reembedder{
		vectors:   vectors,
		config:    config,
		progress:  progress,
		processor: NewBatchProcessor(vectors, embedder, o.sched),
		iterator:  NewVectorIterator(vectors, config.BatchSize),
		logger:    o.logger,
	}, nil
}

// Run re-embeds all stored vectors and returns how many were rewritten.
// Batches are scanned sequentially and embedded on a worker pool; the first
// failing batch stops further submissions and its error is returned.
func (r *Reembedder) Run(ctx context.Context) (int, error) {
	total, err := r.vectors.CountVectors(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count vectors: %w", err)
	}
	if total == 0 {
		fmt.Fprintf(r.progress, "No vectors found in database (0 vectors)\n")
		return 0, nil
	}

	fmt.Fprintf(r.progress, "Starting reembedding of %d vectors (batch size: %d, workers: %d)\n",
		total, r.iterator.batchSize, r.config.Workers)

	pool, err := ants.NewPool(r.config.Workers)
	if err != nil {
		return 0, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
		done     int
	)
	failed := func() error {
		mu.Lock()
		defer mu.Unlock()
		return firstErr
	}

	iterErr := r.iterator.ForEach(ctx, func(records []*storage.VectorRecord) error {
		if err := failed(); err != nil {
			return err
		}
		batch := records
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			err := r.processor.Process(ctx, batch)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			done += len(batch)
			tracker.Update(done)
		})
		if submitErr != nil {
			wg.Done()
			return fmt.Errorf("failed to submit batch: %w", submitErr)
		}
		return nil
	})
	wg.Wait()

	if iterErr == firstErr {
		iterErr = nil
	}
	if err := errors.Join(firstErr, iterErr); err != nil {
		r.logger.Error("reembedding stopped", "done", done, "total", total, "err", err)
		return done, err
	}

	tracker.Finish()
	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reembedding complete. Processed %d vectors in %v (%.1f vectors/sec)\n",
		done, elapsed.Round(time.Second), float64(done)/max(elapsed.Seconds(), 1e-9))
	r.logger.Info("reembedding complete", "vectors", done, "elapsed", elapsed)
	return done, nil
}

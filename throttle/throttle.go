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

package throttle

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"golang.org/x/sync/semaphore"
)

// Range is the progress window a batch reports into.
type Range struct {
	Start int
	End   int
}

// At returns the progress after done of total items, clamped to End.
func (r Range) At(done, total int) int {
	if total <= 0 {
		return r.End
	}
	p := r.Start + done*(r.End-r.Start)/total
	if p > r.End {
		return r.End
	}
	return p
}

// Batch is a list of independent items pushed through one provider call each.
type Batch[I, R any] struct {
	Items []I

	// Call produces the result for one item.
	Call func(ctx context.Context, item I) (R, error)

	// Fallback produces the stand-in result when Call fails or panics.
	// If nil, the zero R is used.
	Fallback func(item I, err error) R

	// Fatal marks errors that abort the whole batch. If nil, nothing is fatal.
	Fatal func(err error) bool

	Range Range

	// Progress, if set, receives the progress value after every item.
	Progress func(progress int)
}

// Throttler runs provider calls one at a time with a randomized pause
// between them. Every call holds the throttler's single slot, so batches
// sharing a Throttler are serialized with respect to each other too.
type Throttler struct {
	slot     *semaphore.Weighted
	minDelay time.Duration
	maxDelay time.Duration
	sleep    func(ctx context.Context, d time.Duration) error
	rand     func() float64
	logger   *slog.Logger
}

// Option configures a Throttler.
type Option func(*Throttler)

// WithDelay sets the inter-item pause range. Default is 0.5s to 1.5s.
func WithDelay(min, max time.Duration) Option {
	return func(t *Throttler) {
		if min < 0 {
			min = 0
		}
		if max < min {
			max = min
		}
		t.minDelay, t.maxDelay = min, max
	}
}

// WithSleep replaces the timer-based sleep.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(t *Throttler) {
		if fn != nil {
			t.sleep = fn
		}
	}
}

// WithRandSource replaces the uniform [0,1) source used to pick delays.
func WithRandSource(fn func() float64) Option {
	return func(t *Throttler) {
		if fn != nil {
			t.rand = fn
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Throttler) {
		if logger == nil {
			logger = slog.Default()
		}
		t.logger = logger
	}
}

// New creates a Throttler with a single execution slot.
func New(opts ...Option) *Throttler {
	t := &Throttler{
		slot:     semaphore.NewWeighted(1),
		minDelay: 500 * time.Millisecond,
		maxDelay: 1500 * time.Millisecond,
		sleep:    sleep,
		rand:     rand.Float64,
		logger:   slog.Default().With("component", "throttle"),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Throttler) delay() time.Duration {
	span := t.maxDelay - t.minDelay
	return t.minDelay + time.Duration(float64(span)*t.rand())
}

// Run processes b.Items in order, one at a time. It always returns one
// result per item. The error is non-nil only when an item failed with an
// error b.Fatal accepts; results for items after that one are zero values.
func Run[I, R any](ctx context.Context, t *Throttler, b Batch[I, R]) ([]R, error) {
	results := make([]R, len(b.Items))
	total := len(b.Items)

	for i, item := range b.Items {
		if i > 0 {
			if err := t.sleep(ctx, t.delay()); err != nil {
				t.logger.Debug("throttle sleep interrupted", "err", err)
			}
		}

		result, err := callItem(ctx, t, b, item)
		if err != nil {
			if b.Fatal != nil && b.Fatal(err) {
				t.logger.Warn("aborting batch", "item", i, "total", total, "err", err)
				return results, err
			}
			t.logger.Warn("item failed, using fallback", "item", i, "total", total, "err", err)
			if b.Fallback != nil {
				result = b.Fallback(item, err)
			}
		}
		results[i] = result

		if b.Progress != nil {
			b.Progress(b.Range.At(i+1, total))
		}
	}
	return results, nil
}

// call runs one item while holding the slot and converts panics to errors.
func callItem[I, R any](ctx context.Context, t *Throttler, b Batch[I, R], item I) (result R, err error) {
	if err := t.slot.Acquire(ctx, 1); err != nil {
		return result, err
	}
	defer t.slot.Release(1)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("item panicked: %v", r)
		}
	}()
	return b.Call(ctx, item)
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

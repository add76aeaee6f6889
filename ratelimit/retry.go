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

package ratelimit

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"
)

// Policy bounds how a rate-limited call is retried.
type Policy struct {
	// MaxRetries is the number of additional attempts after the first.
	MaxRetries int
	// DefaultWait is the base wait when the provider gives no hint.
	DefaultWait time.Duration
	// BackoffMultiplier grows the base wait per attempt.
	BackoffMultiplier float64
}

// DefaultPolicy returns 3 retries starting at 60s and growing by 1.5x.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries:        3,
		DefaultWait:       60 * time.Second,
		BackoffMultiplier: 1.5,
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	if p.MaxRetries < 0 {
		return ErrInvalidMaxRetries
	}
	if p.DefaultWait <= 0 {
		return ErrInvalidWait
	}
	if p.BackoffMultiplier < 1 {
		return ErrInvalidMultiplier
	}
	return nil
}

// WaitEvent describes a pending retry wait.
type WaitEvent struct {
	// Attempt is the 1-based number of the retry about to be made.
	Attempt    int
	MaxRetries int
	Wait       time.Duration
	Verdict    Verdict
	Err        error
}

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Scheduler retries rate-limited calls according to a Policy.
// A Scheduler is safe for concurrent use; waits hold no shared lock.
type Scheduler struct {
	policy   Policy
	classify func(error) Verdict
	sleep    SleepFunc
	jitter   func() float64
	onWait   func(WaitEvent)
	logger   *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithPolicy replaces the default policy.
func WithPolicy(p Policy) Option {
	return func(s *Scheduler) {
		s.policy = p
	}
}

// WithSleep replaces the timer-based sleep. Tests use it to avoid real waits.
func WithSleep(fn SleepFunc) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.sleep = fn
		}
	}
}

// WithJitterSource replaces the uniform [0,1) source used for jitter.
func WithJitterSource(fn func() float64) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.jitter = fn
		}
	}
}

// WithClassifier replaces Classify.
func WithClassifier(fn func(error) Verdict) Option {
	return func(s *Scheduler) {
		if fn != nil {
			s.classify = fn
		}
	}
}

// WithWaitHook registers fn to be called before every wait.
func WithWaitHook(fn func(WaitEvent)) Option {
	return func(s *Scheduler) {
		s.onWait = fn
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
	}
}

// NewScheduler creates a scheduler with DefaultPolicy unless overridden.
func NewScheduler(opts ...Option) (*Scheduler, error) {
	s := &Scheduler{
		policy:   DefaultPolicy(),
		classify: Classify,
		sleep:    Sleep,
		jitter:   rand.Float64,
		logger:   slog.Default().With("component", "ratelimit"),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.policy.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// With returns a copy of s with opts applied. It is used to attach a
// per-call wait hook to a shared scheduler.
func (s *Scheduler) With(opts ...Option) *Scheduler {
	c := *s
	for _, opt := range opts {
		opt(&c)
	}
	return &c
}

// Policy returns the scheduler's policy.
func (s *Scheduler) Policy() Policy {
	return s.policy
}

// Backoff returns the wait before retry number attempt (0-based), without
// jitter. A provider hint takes precedence over exponential growth.
func (s *Scheduler) Backoff(attempt int, v Verdict) time.Duration {
	if v.Hinted() {
		return v.RetryAfter
	}
	factor := math.Pow(s.policy.BackoffMultiplier, float64(attempt))
	return time.Duration(float64(s.policy.DefaultWait) * factor)
}

// jittered adds 10 to 20 percent to d.
func (s *Scheduler) jittered(d time.Duration) time.Duration {
	return d + time.Duration(float64(d)*(0.1+0.1*s.jitter()))
}

// Do runs op and retries it while it fails with a rate-limit verdict.
// Any other verdict returns the error immediately and unchanged. When
// retries are exhausted the last error is returned unchanged.
func Do[T any](ctx context.Context, s *Scheduler, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	for attempt := 0; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			if attempt > 0 {
				s.logger.Debug("operation succeeded after retry", "attempt", attempt+1)
			}
			return result, nil
		}

		verdict := s.classify(err)
		if verdict.Kind != KindRateLimited {
			s.logger.Debug("not retrying", "verdict", verdict, "err", err)
			return zero, err
		}
		if attempt >= s.policy.MaxRetries {
			s.logger.Warn("rate limit retries exhausted", "attempts", attempt+1, "err", err)
			return zero, err
		}

		wait := s.jittered(s.Backoff(attempt, verdict))
		s.logger.Info("rate limited, waiting before retry",
			"attempt", attempt+1, "maxRetries", s.policy.MaxRetries,
			"wait", wait.Round(time.Millisecond), "hinted", verdict.Hinted())
		if s.onWait != nil {
			s.onWait(WaitEvent{
				Attempt:    attempt + 1,
				MaxRetries: s.policy.MaxRetries,
				Wait:       wait,
				Verdict:    verdict,
				Err:        err,
			})
		}
		if sleepErr := s.sleep(ctx, wait); sleepErr != nil {
			return zero, sleepErr
		}
	}
}

// Retry is Do for operations without a result.
func Retry(ctx context.Context, s *Scheduler, op func(ctx context.Context) error) error {
	_, err := Do(ctx, s, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

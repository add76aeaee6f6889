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

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/poiesic/mmrag/ai"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/poiesic/mmrag/search"
	"github.com/poiesic/mmrag/storage"
)

const (
	defaultTopK         = 5
	defaultHistoryLimit = 10
	defaultMaxContext   = 8000
	// historyWindow is how many stored messages are loaded per turn.
	historyWindow = 20
)

// Retriever finds the sources a question is answered from.
type Retriever interface {
	Search(ctx context.Context, q search.Query) ([]core.SourceResult, error)
}

// Request is one user question.
type Request struct {
	// SessionID groups turns. A new id is generated when empty.
	SessionID string
	Question  string
	// DocID restricts retrieval to one document when set.
	DocID         string
	IncludeImages bool
}

// Answer is the result of Ask.
type Answer struct {
	SessionID string              `json:"session_id"`
	Answer    string              `json:"answer"`
	Sources   []core.SourceResult `json:"sources"`
}

// Service answers questions grounded in retrieved sources and keeps the
// conversation in a message repository.
type Service struct {
	retriever    Retriever
	messages     storage.MessageRepository
	generator    ai.Generator
	sched        *ratelimit.Scheduler
	topK         int
	historyLimit int
	maxContext   int
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithScheduler sets the retry scheduler for generation calls.
func WithScheduler(s *ratelimit.Scheduler) Option {
	return func(svc *Service) {
		svc.sched = s
	}
}

// WithTopK sets how many sources ground each answer. Default is 5.
func WithTopK(k int) Option {
	return func(svc *Service) {
		if k > 0 {
			svc.topK = k
		}
	}
}

// WithHistoryLimit sets how many previous messages go into the prompt.
// Default is 10.
func WithHistoryLimit(n int) Option {
	return func(svc *Service) {
		if n >= 0 {
			svc.historyLimit = n
		}
	}
}

// WithMaxContextChars caps the source text placed in the prompt.
// Default is 8000.
func WithMaxContextChars(n int) Option {
	return func(svc *Service) {
		if n > 0 {
			svc.maxContext = n
		}
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(svc *Service) {
		if logger == nil {
			logger = slog.Default()
		}
		svc.logger = logger
	}
}

// NewService creates a chat service that answers with the provider's chat
// generator.
func NewService(retriever Retriever, messages storage.MessageRepository, provider ai.AIProvider, opts ...Option) (*Service, error) {
	if retriever == nil {
		return nil, ErrRetrieverRequired
	}
	if messages == nil {
		return nil, ErrMessageRepositoryRequired
	}
	if provider == nil {
		return nil, ErrAIProviderRequired
	}

	svc := &Service{
		retriever:    retriever,
		messages:     messages,
		generator:    provider.ChatGenerator(),
		topK:         defaultTopK,
		historyLimit: defaultHistoryLimit,
		maxContext:   defaultMaxContext,
		logger:       slog.Default().With("component", "chat"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.sched == nil {
		sched, err := ratelimit.NewScheduler(ratelimit.WithLogger(svc.logger))
		if err != nil {
			return nil, err
		}
		svc.sched = sched
	}
	return svc, nil
}

// Turn is a prepared question: the user message is stored, sources are
// retrieved, and the prompt is built. Only generation remains.
type Turn struct {
	svc       *Service
	sessionID string
	prompt    string
	sources   []core.SourceResult
}

// SessionID returns the turn's session.
func (t *Turn) SessionID() string {
	return t.sessionID
}

// Sources returns the sources the answer is grounded in.
func (t *Turn) Sources() []core.SourceResult {
	return t.sources
}

// Prepare stores the question and retrieves its sources. Provider errors
// are wrapped, so ratelimit.Classify still sees them.
func (s *Service) Prepare(ctx context.Context, req Request) (*Turn, error) {
	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	history, err := s.messages.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if len(history) > historyWindow {
		history = history[len(history)-historyWindow:]
	}

	if err := s.messages.AddMessage(ctx, &core.Message{
		SessionID: sessionID,
		Role:      core.RoleUser,
		Content:   question,
	}); err != nil {
		return nil, fmt.Errorf("saving question: %w", err)
	}

	sources, err := s.retriever.Search(ctx, search.Query{
		Text:          question,
		K:             s.topK,
		DocID:         req.DocID,
		IncludeImages: req.IncludeImages,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieving sources: %w", err)
	}

	prompt, err := buildPrompt(question, sources, history, s.historyLimit, s.maxContext)
	if err != nil {
		return nil, fmt.Errorf("building prompt: %w", err)
	}

	s.logger.Debug("prepared turn", "session_id", sessionID, "sources", len(sources), "history", len(history))
	return &Turn{svc: s, sessionID: sessionID, prompt: prompt, sources: sources}, nil
}

// Ask answers a question in one call, retrying rate limits, and stores the
// answer with its sources.
func (s *Service) Ask(ctx context.Context, req Request) (*Answer, error) {
	turn, err := s.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	text, err := ratelimit.Do(ctx, s.sched, func(ctx context.Context) (string, error) {
		return s.generator.Generate(ctx, turn.prompt)
	})
	if err != nil {
		return nil, fmt.Errorf("generating answer: %w", err)
	}
	text = strings.TrimSpace(text)

	if err := turn.save(ctx, text); err != nil {
		return nil, err
	}
	return &Answer{SessionID: turn.sessionID, Answer: text, Sources: turn.sources}, nil
}

// Stream prepares and streams an answer. Preparation errors are returned
// before any event is sent; generation errors are reported in-band.
func (s *Service) Stream(ctx context.Context, req Request, emit func(Event) error) error {
	turn, err := s.Prepare(ctx, req)
	if err != nil {
		return err
	}
	return turn.Stream(ctx, emit)
}

// Stream generates the answer incrementally. Events are, in order: chunks,
// a rate_limit notice before each retry, an error event if generation
// fails, then end. A retry restarts generation from the beginning; chunks
// already emitted are not withdrawn. Only a successful answer is stored,
// as the text of the final attempt. The returned error is non-nil only
// when emit fails.
func (t *Turn) Stream(ctx context.Context, emit func(Event) error) error {
	var (
		mu      sync.Mutex
		attempt strings.Builder
		sendErr error
	)
	send := func(ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		if sendErr != nil {
			return sendErr
		}
		if err := emit(ev); err != nil {
			sendErr = fmt.Errorf("%w: %w", ErrStreamClosed, err)
		}
		return sendErr
	}
	closed := func() error {
		mu.Lock()
		defer mu.Unlock()
		return sendErr
	}

	sched := t.svc.sched.With(ratelimit.WithWaitHook(func(ev ratelimit.WaitEvent) {
		t.svc.logger.Warn("rate limited while streaming", "session_id", t.sessionID,
			"attempt", ev.Attempt, "wait", ev.Wait)
		_ = send(Event{Type: EventRateLimit, RateLimit: &RateLimitNotice{
			WaitSeconds:  int(math.Round(ev.Wait.Seconds())),
			RetryAttempt: ev.Attempt,
			MaxRetries:   ev.MaxRetries + 1,
			Type:         "waiting",
		}})
	}))

	err := ratelimit.Retry(ctx, sched, func(ctx context.Context) error {
		if err := closed(); err != nil {
			return err
		}
		attempt.Reset()
		return t.svc.generator.GenerateStream(ctx, t.prompt, func(ctx context.Context, chunk string) error {
			if chunk == "" {
				return nil
			}
			attempt.WriteString(chunk)
			return send(Event{Type: EventChunk, Text: chunk})
		})
	})

	if errors.Is(err, ErrStreamClosed) {
		t.svc.logger.Info("client went away", "session_id", t.sessionID, "err", err)
		return err
	}
	if err != nil {
		t.svc.logger.Error("streaming failed", "session_id", t.sessionID,
			"verdict", ratelimit.Classify(err), "err", err)
		if sendErr := send(Event{Type: EventError, Text: "[ERROR: " + err.Error() + "]"}); sendErr != nil {
			return sendErr
		}
	} else if text := strings.TrimSpace(attempt.String()); text != "" {
		if saveErr := t.save(ctx, text); saveErr != nil {
			t.svc.logger.Error("error saving streamed answer", "session_id", t.sessionID, "err", saveErr)
		}
	}
	return send(Event{Type: EventEnd})
}

func (t *Turn) save(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	err := t.svc.messages.AddMessage(ctx, &core.Message{
		SessionID: t.sessionID,
		Role:      core.RoleAssistant,
		Content:   text,
		Sources:   t.sources,
	})
	if err != nil {
		return fmt.Errorf("saving answer: %w", err)
	}
	return nil
}

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

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/microcosm-cc/bluemonday"
	"github.com/poiesic/mmrag"
	"github.com/poiesic/mmrag/chat"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/search"
)

const (
	defaultMaxUploadBytes = 50 << 20
	// multipartOverhead is allowed on top of the file limit for form
	// boundaries and headers.
	multipartOverhead = 1 << 20
	shutdownTimeout   = 10 * time.Second
)

// Backend is what the HTTP surface serves. *mmrag.Database implements it.
type Backend interface {
	Upload(ctx context.Context, name string, data []byte) (*core.Document, error)
	Status(ctx context.Context, id string) (*core.Document, error)
	ListDocuments(ctx context.Context) ([]*core.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	Search(ctx context.Context, q search.Query) ([]core.SourceResult, error)
	Ask(ctx context.Context, req chat.Request) (*chat.Answer, error)
	Stream(ctx context.Context, req chat.Request, emit func(chat.Event) error) error
	Sessions(ctx context.Context) ([]*core.SessionSummary, error)
	Session(ctx context.Context, sessionID string) (*core.SessionSummary, error)
	Messages(ctx context.Context, sessionID string) ([]*core.Message, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Health(ctx context.Context) (*mmrag.Health, error)
}

var _ Backend = (*mmrag.Database)(nil)

// Server routes HTTP requests to a Backend.
type Server struct {
	backend        Backend
	router         chi.Router
	uploads        *clientLimiter
	sanitizer      *bluemonday.Policy
	maxUploadBytes int64
	logger         *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithUploadLimit allows perMinute uploads per client address with the
// given burst. Zero disables limiting, which is the default.
func WithUploadLimit(perMinute float64, burst int) Option {
	return func(s *Server) {
		s.uploads = newClientLimiter(perMinute, burst)
	}
}

// WithMaxUploadBytes caps the accepted file size. Default is 50MB.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// NewServer creates a server for backend.
func NewServer(backend Backend, opts ...Option) *Server {
	s := &Server{
		backend:        backend,
		sanitizer:      bluemonday.UGCPolicy(),
		maxUploadBytes: defaultMaxUploadBytes,
		logger:         slog.Default().With("component", "api"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/upload", s.handleUpload)
		r.Get("/upload/status/{id}", s.handleStatus)

		r.Get("/documents", s.handleListDocuments)
		r.Delete("/documents/{id}", s.handleDeleteDocument)

		r.Post("/search", s.handleSearch)

		r.Post("/chat", s.handleChat)
		r.Get("/chat/stream", s.handleStream)
		r.Get("/chat/sessions", s.handleSessions)
		r.Get("/chat/sessions/{id}", s.handleSession)
		r.Delete("/chat/sessions/{id}", s.handleDeleteSession)
		r.Get("/chat/messages/{id}", s.handleMessages)
	})
	return r
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("stopping server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to stop server: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

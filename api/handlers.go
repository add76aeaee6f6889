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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/poiesic/mmrag/chat"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/ingestion"
	"github.com/poiesic/mmrag/search"
)

type okResponse struct {
	OK bool `json:"ok"`
}

type chatRequest struct {
	Question      string `json:"question"`
	SessionID     string `json:"sessionId"`
	DocumentID    string `json:"documentId"`
	IncludeImages *bool  `json:"includeImages"`
}

type searchRequest struct {
	Query         string `json:"query"`
	K             int    `json:"k"`
	DocumentID    string `json:"documentId"`
	IncludeImages *bool  `json:"includeImages"`
}

// includeImages defaults to true when the client leaves it out.
func includeImages(v *bool) bool {
	return v == nil || *v
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidBody, err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.backend.Health(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if wait := s.uploads.reserve(clientKey(r)); wait > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
		s.writeError(w, r, ErrUploadRateLimited)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartOverhead)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			s.writeError(w, r, fmt.Errorf("%w: limit %d bytes", ingestion.ErrFileTooLarge, s.maxUploadBytes))
			return
		}
		s.writeError(w, r, fmt.Errorf("%w: %w", ErrMissingFile, err))
		return
	}
	defer file.Close()

	if header.Size > s.maxUploadBytes {
		s.writeError(w, r, fmt.Errorf("%w: %d bytes, limit %d", ingestion.ErrFileTooLarge, header.Size, s.maxUploadBytes))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("reading upload: %w", err))
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		s.writeError(w, r, fmt.Errorf("%w: limit %d bytes", ingestion.ErrFileTooLarge, s.maxUploadBytes))
		return
	}

	doc, err := s.backend.Upload(r.Context(), header.Filename, data)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	doc, err := s.backend.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.backend.ListDocuments(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if docs == nil {
		docs = []*core.Document{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": docs})
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteDocument(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	results, err := s.backend.Search(r.Context(), search.Query{
		Text:          req.Query,
		K:             req.K,
		DocID:         req.DocumentID,
		IncludeImages: includeImages(req.IncludeImages),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": s.sanitizeSources(results)})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	answer, err := s.backend.Ask(r.Context(), chat.Request{
		SessionID:     req.SessionID,
		Question:      req.Question,
		DocID:         req.DocumentID,
		IncludeImages: includeImages(req.IncludeImages),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	answer.Sources = s.sanitizeSources(answer.Sources)
	writeJSON(w, http.StatusOK, answer)
}

// handleStream answers over server-sent events. Failures before the first
// event are reported with an HTTP status; later ones arrive as an error
// event followed by end.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := chat.Request{
		SessionID:     q.Get("sessionId"),
		Question:      q.Get("question"),
		DocID:         q.Get("documentId"),
		IncludeImages: true,
	}
	if v := q.Get("includeImages"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			s.writeError(w, r, fmt.Errorf("%w: includeImages: %w", ErrInvalidBody, err))
			return
		}
		req.IncludeImages = b
	}

	sse := newEventWriter(w)
	start := time.Now()
	err := s.backend.Stream(r.Context(), req, sse.send)
	if err != nil && !sse.started {
		s.writeError(w, r, err)
		return
	}
	if err != nil {
		s.logger.Info("stream ended early", "session_id", req.SessionID, "err", err)
		return
	}
	s.logger.Debug("stream finished", "session_id", req.SessionID, "events", sse.count, "duration", time.Since(start))
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.backend.Sessions(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*core.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.backend.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.backend.DeleteSession(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, okResponse{OK: true})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := s.backend.Messages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if messages == nil {
		messages = []*core.Message{}
	}
	for _, msg := range messages {
		msg.Sources = s.sanitizeSources(msg.Sources)
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// sanitizeSources strips anything but safe markup from table HTML, which
// comes from uploaded documents.
func (s *Server) sanitizeSources(sources []core.SourceResult) []core.SourceResult {
	if sources == nil {
		return []core.SourceResult{}
	}
	for i := range sources {
		if sources[i].TableHTML != "" {
			sources[i].TableHTML = s.sanitizer.Sanitize(sources[i].TableHTML)
		}
	}
	return sources
}

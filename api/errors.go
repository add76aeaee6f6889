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
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/poiesic/mmrag/chat"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/ingestion"
	"github.com/poiesic/mmrag/ratelimit"
	"github.com/poiesic/mmrag/search"
	"github.com/poiesic/mmrag/storage"
)

var (
	// ErrMissingFile is returned when an upload has no "file" part.
	ErrMissingFile = errors.New("missing file field")

	// ErrInvalidBody is returned for a request body that is not valid JSON.
	ErrInvalidBody = errors.New("invalid request body")

	// ErrUploadRateLimited is returned when a client uploads too fast.
	ErrUploadRateLimited = errors.New("too many uploads, slow down")
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps an error to its HTTP status. Request problems are checked
// first; provider failures go through ratelimit.Classify.
func statusFor(err error) int {
	var tooBig *http.MaxBytesError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, chat.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrFileTooLarge), errors.As(err, &tooBig):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingestion.ErrUnsupportedFormat),
		errors.Is(err, ingestion.ErrEmptyFile),
		errors.Is(err, chat.ErrEmptyQuestion),
		errors.Is(err, search.ErrEmptyQuery),
		errors.Is(err, search.ErrInvalidK),
		errors.Is(err, core.ErrEmptyID),
		errors.Is(err, ErrMissingFile),
		errors.Is(err, ErrInvalidBody):
		return http.StatusBadRequest
	case errors.Is(err, ErrUploadRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, storage.ErrTerminalState):
		return http.StatusConflict
	case errors.Is(err, ingestion.ErrPipelineClosed), errors.Is(err, storage.ErrStorageClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}

	switch ratelimit.Classify(err).Kind {
	case ratelimit.KindRateLimited:
		return http.StatusTooManyRequests
	case ratelimit.KindAuthInvalid:
		return http.StatusUnauthorized
	case ratelimit.KindProviderUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	body := errorBody{Error: err.Error()}

	if code == http.StatusTooManyRequests || code == http.StatusUnauthorized || code == http.StatusServiceUnavailable {
		verdict := ratelimit.Classify(err)
		body.Kind = verdict.Kind.String()
		if verdict.Hinted() {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(verdict.RetryAfter.Seconds()))))
		}
	}

	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "status", code, "err", err)
	}
	writeJSON(w, code, body)
}

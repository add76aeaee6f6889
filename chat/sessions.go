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

	"github.com/poiesic/mmrag/core"
)

// Sessions lists chat sessions, most recently active first.
func (s *Service) Sessions(ctx context.Context) ([]*core.SessionSummary, error) {
	return s.messages.ListSessions(ctx)
}

// Session returns one session's summary or ErrSessionNotFound.
func (s *Service) Session(ctx context.Context, sessionID string) (*core.SessionSummary, error) {
	sessions, err := s.messages.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	for _, session := range sessions {
		if session.ID == sessionID {
			return session, nil
		}
	}
	return nil, ErrSessionNotFound
}

// Messages returns a session's messages, oldest first. An unknown session
// has no messages.
func (s *Service) Messages(ctx context.Context, sessionID string) ([]*core.Message, error) {
	return s.messages.GetMessages(ctx, sessionID)
}

// DeleteSession removes every message of the session. It returns
// ErrSessionNotFound when there was nothing to remove.
func (s *Service) DeleteSession(ctx context.Context, sessionID string) error {
	n, err := s.messages.DeleteSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	s.logger.Info("deleted session", "session_id", sessionID, "messages", n)
	return nil
}

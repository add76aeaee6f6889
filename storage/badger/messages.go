package badger

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/poiesic/mmrag/core"
	"github.com/poiesic/mmrag/storage"
)

const sessionTitleLength = 50

// MessageRepository implements storage.MessageRepository for BadgerDB.
// Messages are keyed by session and creation time, so a prefix scan
// returns a session in order.
type MessageRepository struct {
	backend *Backend

	mu   sync.Mutex
	last time.Time
}

var _ storage.MessageRepository = (*MessageRepository)(nil)

// NewMessageRepository creates a new MessageRepository.
func NewMessageRepository(backend *Backend) *MessageRepository {
	return &MessageRepository{backend: backend}
}

// AddMessage appends a message to its session.
func (r *MessageRepository) AddMessage(ctx context.Context, msg *core.Message) error {
	if err := core.ValidateMessage(msg); err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = r.stamp()
	}
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		return writeValue(tx, makeMessageKey(msg.SessionID, msg.CreatedAt, msg.ID), msg)
	})
}

// stamp returns the current time, strictly after the previous stamp, so
// messages added in quick succession keep their order.
func (r *MessageRepository) stamp() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	if !now.After(r.last) {
		now = r.last.Add(time.Nanosecond)
	}
	r.last = now
	return now
}

// GetMessages returns a session's messages oldest first.
func (r *MessageRepository) GetMessages(ctx context.Context, sessionID string) ([]*core.Message, error) {
	messages := []*core.Message{}
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		return scanPrefix(tx, makeSessionPrefix(sessionID), func(_ []byte, msg *core.Message) error {
			messages = append(messages, msg)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// ListSessions summarizes every session, most recently active first.
func (r *MessageRepository) ListSessions(ctx context.Context) ([]*core.SessionSummary, error) {
	sessions := make(map[string]*core.SessionSummary)
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		return scanPrefix(tx, []byte(messagePrefix), func(_ []byte, msg *core.Message) error {
			s, ok := sessions[msg.SessionID]
			if !ok {
				s = &core.SessionSummary{ID: msg.SessionID, CreatedAt: msg.CreatedAt}
				sessions[msg.SessionID] = s
			}
			s.MessageCount++
			if msg.CreatedAt.Before(s.CreatedAt) {
				s.CreatedAt = msg.CreatedAt
			}
			if msg.CreatedAt.After(s.LastActivity) {
				s.LastActivity = msg.CreatedAt
			}
			if s.Title == "" && msg.Role == core.RoleUser {
				s.Title = sessionTitle(msg.Content)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	results := make([]*core.SessionSummary, 0, len(sessions))
	for _, s := range sessions {
		if s.Title == "" {
			s.Title = "Untitled"
		}
		results = append(results, s)
	}
	slices.SortFunc(results, func(a, b *core.SessionSummary) int {
		if c := b.LastActivity.Compare(a.LastActivity); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return results, nil
}

// DeleteSession removes every message of a session.
func (r *MessageRepository) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	if sessionID == "" {
		return 0, core.ErrEmptyID
	}
	return r.backend.DeletePrefix(ctx, makeSessionPrefix(sessionID))
}

// sessionTitle is the first line of content, cut to sessionTitleLength runes.
func sessionTitle(content string) string {
	title := strings.TrimSpace(content)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	runes := []rune(title)
	if len(runes) > sessionTitleLength {
		return string(runes[:sessionTitleLength])
	}
	return title
}

package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/johncui/haiku/pkg/model"
)

// SessionBuffer is an in-process session store. History lives for the
// lifetime of the process.
type SessionBuffer struct {
	mu       sync.Mutex
	sessions map[string][]model.Exchange
	capacity int
}

// NewSessionBuffer creates a buffer keeping at most capacity exchanges per
// session. A capacity <= 0 keeps everything.
func NewSessionBuffer(capacity int) *SessionBuffer {
	return &SessionBuffer{sessions: make(map[string][]model.Exchange), capacity: capacity}
}

// Append pushes a new exchange, evicting the session's oldest if capacity exceeded.
func (b *SessionBuffer) Append(_ context.Context, ex model.Exchange) error {
	if ex.SessionID == "" {
		return errors.New("session id is required")
	}
	if ex.ID == "" {
		ex.ID = uuid.NewString()
	}
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	items := append(b.sessions[ex.SessionID], ex)
	if b.capacity > 0 && len(items) > b.capacity {
		items = items[len(items)-b.capacity:]
	}
	b.sessions[ex.SessionID] = items
	return nil
}

// History returns a copy of the session's exchanges.
func (b *SessionBuffer) History(_ context.Context, sessionID string, limit int) ([]model.Exchange, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	items := b.sessions[sessionID]
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	if len(items) == 0 {
		return nil, nil
	}
	out := make([]model.Exchange, len(items))
	copy(out, items)
	return out, nil
}

// CountSessions reports how many sessions are held.
func (b *SessionBuffer) CountSessions(context.Context) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return int64(len(b.sessions)), nil
}

// Close drops all sessions.
func (b *SessionBuffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions = make(map[string][]model.Exchange)
	return nil
}

var _ model.SessionStore = (*SessionBuffer)(nil)

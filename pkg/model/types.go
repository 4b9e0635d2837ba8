package model

import (
	"context"
	"time"
)

// Role tags a message in a completion request.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one turn of conversation sent to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest carries a system instruction and the ordered conversation.
// The last message is the instruction the provider should answer.
type CompletionRequest struct {
	SystemPrompt string    `json:"system_prompt"`
	Messages     []Message `json:"messages"`
}

// Exchange is one stored (prompt, haiku) pair of a session.
type Exchange struct {
	ID        string    `json:"id"`
	SessionID string    `json:"session_id"`
	Subject   string    `json:"subject"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	CreatedAt time.Time `json:"created_at"`
}

// Provider produces a text completion from an external language model.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// SessionStore keeps the ordered exchange history of each session.
type SessionStore interface {
	// Append adds ex to the end of its session, creating the session if needed.
	Append(ctx context.Context, ex Exchange) error
	// History returns the session's exchanges oldest first. With limit > 0 only
	// the latest limit exchanges are returned. An unknown session yields nil.
	History(ctx context.Context, sessionID string, limit int) ([]Exchange, error)
	Close() error
}

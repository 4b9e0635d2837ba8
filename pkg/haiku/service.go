// Package haiku asks a language model for haiku and keeps per-session memory
// of what it wrote.
package haiku

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/johncui/haiku/pkg/model"
)

const (
	SystemPrompt   = "You are a professional haiku poet"
	RecallPrompt   = "What was the haiku you wrote?"
	DefaultSubject = "samurai"
	DefaultSession = "myHaiku"
)

// WritePrompt is the stateless user instruction for subject.
func WritePrompt(subject string) string {
	return fmt.Sprintf("Write a haiku about %s.", subject)
}

// WriteAndStorePrompt is the user instruction used when the haiku is kept in
// session memory.
func WriteAndStorePrompt(subject string) string {
	return fmt.Sprintf("Write a haiku about %s, and store it in memory.", subject)
}

// Options configures a Service.
type Options struct {
	Provider model.Provider
	// ProviderName labels provider errors.
	ProviderName string
	// Store is required for the memory-aware operations only.
	Store model.SessionStore
	// MemoryWindow caps how many prior exchanges are replayed to the model.
	// Zero replays the whole session.
	MemoryWindow int
	// Timeout bounds each provider call. Zero leaves it to the caller's context.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Service builds prompts, calls the provider and records exchanges.
type Service struct {
	provider     model.Provider
	providerName string
	store        model.SessionStore
	window       int
	timeout      time.Duration
	logger       *slog.Logger
}

// New creates a Service.
func New(opt Options) (*Service, error) {
	if opt.Provider == nil {
		return nil, errors.New("provider is required")
	}
	if opt.Logger == nil {
		opt.Logger = slog.New(slog.NewTextHandler(os.Stdout, nil))
	}
	return &Service{
		provider:     opt.Provider,
		providerName: opt.ProviderName,
		store:        opt.Store,
		window:       opt.MemoryWindow,
		timeout:      opt.Timeout,
		logger:       opt.Logger,
	}, nil
}

// Generate writes a haiku about subject without touching session memory.
func (s *Service) Generate(ctx context.Context, subject string) (string, error) {
	subject, err := normalizeSubject(subject)
	if err != nil {
		return "", err
	}
	return s.complete(ctx, model.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages:     []model.Message{{Role: model.RoleUser, Content: WritePrompt(subject)}},
	})
}

// GenerateFor writes a haiku about subject in the context of the session's
// prior exchanges and appends the new exchange once the provider answers.
func (s *Service) GenerateFor(ctx context.Context, sessionID, subject string) (string, error) {
	if err := s.requireStore(); err != nil {
		return "", err
	}
	subject, err := normalizeSubject(subject)
	if err != nil {
		return "", err
	}

	history, err := s.store.History(ctx, sessionID, s.window)
	if err != nil {
		return "", fmt.Errorf("load session %q: %w", sessionID, err)
	}
	prompt := WriteAndStorePrompt(subject)
	text, err := s.complete(ctx, model.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages:     append(conversation(history), model.Message{Role: model.RoleUser, Content: prompt}),
	})
	if err != nil {
		return "", err
	}

	ex := model.Exchange{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Subject:   subject,
		Prompt:    prompt,
		Response:  text,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Append(ctx, ex); err != nil {
		return "", fmt.Errorf("append to session %q: %w", sessionID, err)
	}
	s.logger.Debug("haiku stored", "session", sessionID, "subject", subject, "exchange", ex.ID)
	return text, nil
}

// Recall asks the model which haiku it wrote last, replaying the session's
// history as context. The recall itself is not stored.
func (s *Service) Recall(ctx context.Context, sessionID string) (string, error) {
	if err := s.requireStore(); err != nil {
		return "", err
	}
	history, err := s.store.History(ctx, sessionID, s.window)
	if err != nil {
		return "", fmt.Errorf("load session %q: %w", sessionID, err)
	}
	if len(history) == 0 {
		return "", fmt.Errorf("recall %q: %w", sessionID, model.ErrSessionNotFound)
	}
	return s.complete(ctx, model.CompletionRequest{
		SystemPrompt: SystemPrompt,
		Messages:     append(conversation(history), model.Message{Role: model.RoleUser, Content: RecallPrompt}),
	})
}

// Last returns the most recent stored exchange without calling the model.
func (s *Service) Last(ctx context.Context, sessionID string) (model.Exchange, error) {
	if err := s.requireStore(); err != nil {
		return model.Exchange{}, err
	}
	history, err := s.store.History(ctx, sessionID, 1)
	if err != nil {
		return model.Exchange{}, fmt.Errorf("load session %q: %w", sessionID, err)
	}
	if len(history) == 0 {
		return model.Exchange{}, fmt.Errorf("last %q: %w", sessionID, model.ErrSessionNotFound)
	}
	return history[0], nil
}

// History returns every stored exchange of the session, oldest first.
func (s *Service) History(ctx context.Context, sessionID string) ([]model.Exchange, error) {
	if err := s.requireStore(); err != nil {
		return nil, err
	}
	history, err := s.store.History(ctx, sessionID, 0)
	if err != nil {
		return nil, fmt.Errorf("load session %q: %w", sessionID, err)
	}
	if len(history) == 0 {
		return nil, fmt.Errorf("history %q: %w", sessionID, model.ErrSessionNotFound)
	}
	return history, nil
}

func (s *Service) complete(ctx context.Context, req model.CompletionRequest) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	text, err := s.provider.Complete(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = model.ErrEmptyCompletion
	}
	if err != nil {
		s.logger.Error("completion failed", "provider", s.providerName, "err", err, "elapsed", time.Since(start))
		return "", &model.ProviderError{Provider: s.providerName, Err: err}
	}
	s.logger.Debug("completion done", "provider", s.providerName, "elapsed", time.Since(start))
	return text, nil
}

func (s *Service) requireStore() error {
	if s.store == nil {
		return errors.New("session store is not configured")
	}
	return nil
}

// conversation replays stored exchanges as alternating user/assistant turns.
func conversation(history []model.Exchange) []model.Message {
	msgs := make([]model.Message, 0, 2*len(history)+1)
	for _, ex := range history {
		msgs = append(msgs,
			model.Message{Role: model.RoleUser, Content: ex.Prompt},
			model.Message{Role: model.RoleAssistant, Content: ex.Response},
		)
	}
	return msgs
}

func normalizeSubject(subject string) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", model.ErrEmptySubject
	}
	return subject, nil
}

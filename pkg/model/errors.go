package model

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptySubject is returned when a haiku is requested for a blank subject.
	ErrEmptySubject = errors.New("subject is required")

	// ErrSessionNotFound is returned when a session has no stored exchanges.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyCompletion is returned when a provider answers with no text.
	ErrEmptyCompletion = errors.New("empty completion")
)

// ProviderError reports a failed upstream model call.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("provider: %v", e.Err)
	}
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

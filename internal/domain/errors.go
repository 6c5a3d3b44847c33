package domain

import (
	"errors"
	"fmt"
)

// User-facing conditions raised by the command handlers.
var (
	ErrEmptyPrompt        = errors.New("prompt is empty")
	ErrNoSession          = errors.New("session not found")
	ErrSessionExists      = errors.New("session already exists")
	ErrPersonaUnavailable = errors.New("persona is not configured")
)

// Infrastructure failures. Wrapped by CompletionError and PersistenceError.
var (
	ErrCompletion  = errors.New("completion failed")
	ErrPersistence = errors.New("persistence failed")
)

// Backend sentinels returned by SessionStore implementations.
var (
	ErrSessionNotFound      = errors.New("session document not found")
	ErrSessionAlreadyExists = errors.New("session document already exists")
)

// CompletionError is returned by CompletionClient implementations.
type CompletionError struct {
	Backend string
	Err     error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("%s completion: %v", e.Backend, e.Err)
}

func (e *CompletionError) Unwrap() []error {
	return []error{ErrCompletion, e.Err}
}

// NewCompletionError wraps err unless it already is a CompletionError.
func NewCompletionError(backend string, err error) error {
	var ce *CompletionError
	if errors.As(err, &ce) {
		return err
	}
	return &CompletionError{Backend: backend, Err: err}
}

// PersistenceError marks a storage failure distinct from the logical
// not-found / already-exists outcomes.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() []error {
	return []error{ErrPersistence, e.Err}
}

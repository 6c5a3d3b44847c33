package domain

import "context"

// CompletionClient turns an ordered message sequence into a reply.
// Implementations do not retry; failures are *CompletionError.
type CompletionClient interface {
	Complete(ctx context.Context, messages []Message) (string, error)
}

// SessionStore is the document persistence behind the session repository.
//
// GetSession, ReplaceHistory and DeleteSession return ErrSessionNotFound when
// no document exists for the key. CreateSession returns ErrSessionAlreadyExists
// on conflict and must be atomic with respect to that check.
type SessionStore interface {
	GetSession(ctx context.Context, key SessionKey) (*Session, error)
	CreateSession(ctx context.Context, session *Session) error
	ReplaceHistory(ctx context.Context, key SessionKey, history []Message, updatedAt Timestamp) error
	DeleteSession(ctx context.Context, key SessionKey) error
}

// Package session implements the typed session repository on top of a
// domain.SessionStore backend.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/PabloGalante/gpt-relay/internal/domain"
	"github.com/PabloGalante/gpt-relay/internal/observability"
)

// Repository exposes exists/create/read/update/delete for one session per
// (server, user). A false result always means a logical non-event; storage
// failures come back as errors wrapping domain.ErrPersistence, and calls cut
// short by ctx as errors wrapping ctx.Err().
type Repository struct {
	store   domain.SessionStore
	persona domain.PersonaPreamble
	now     func() time.Time
}

func NewRepository(store domain.SessionStore, persona domain.PersonaPreamble) *Repository {
	return &Repository{
		store:   store,
		persona: persona,
		now:     time.Now,
	}
}

func (r *Repository) Exists(ctx context.Context, key domain.SessionKey) (bool, error) {
	_, err := r.store.GetSession(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrSessionNotFound):
		return false, nil
	default:
		return false, persistErr(ctx, "session exists", err)
	}
}

// Create starts an empty session, or one seeded with the persona preamble.
// It returns false without writing when the key already has a session.
func (r *Repository) Create(ctx context.Context, key domain.SessionKey, usePersona bool) (bool, error) {
	if usePersona && !r.persona.Configured() {
		return false, domain.ErrPersonaUnavailable
	}

	history := []domain.Message{}
	if usePersona {
		history = r.persona.Messages()
	}

	now := r.now()
	err := r.store.CreateSession(ctx, &domain.Session{
		Key:       key,
		History:   history,
		CreatedAt: now,
		UpdatedAt: now,
	})
	switch {
	case err == nil:
		observability.LoggerFromContext(ctx).Info("session created",
			"session", key.String(),
			"persona", usePersona)
		return true, nil
	case errors.Is(err, domain.ErrSessionAlreadyExists):
		return false, nil
	default:
		return false, persistErr(ctx, "session create", err)
	}
}

func (r *Repository) Read(ctx context.Context, key domain.SessionKey) ([]domain.Message, error) {
	sess, err := r.store.GetSession(ctx, key)
	switch {
	case err == nil:
		return domain.CloneHistory(sess.History), nil
	case errors.Is(err, domain.ErrSessionNotFound):
		return nil, domain.ErrNoSession
	default:
		return nil, persistErr(ctx, "session read", err)
	}
}

// Update overwrites the stored history. An empty history is rejected so a
// session can only be emptied through Delete.
func (r *Repository) Update(ctx context.Context, key domain.SessionKey, history []domain.Message) (bool, error) {
	if len(history) == 0 {
		observability.LoggerFromContext(ctx).Warn("rejected empty history update", "session", key.String())
		return false, nil
	}

	err := r.store.ReplaceHistory(ctx, key, domain.CloneHistory(history), r.now())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, domain.ErrSessionNotFound):
		return false, domain.ErrNoSession
	default:
		return false, persistErr(ctx, "session update", err)
	}
}

func (r *Repository) Delete(ctx context.Context, key domain.SessionKey) (bool, error) {
	err := r.store.DeleteSession(ctx, key)
	switch {
	case err == nil:
		observability.LoggerFromContext(ctx).Info("session deleted", "session", key.String())
		return true, nil
	case errors.Is(err, domain.ErrSessionNotFound):
		return false, nil
	default:
		return false, persistErr(ctx, "session delete", err)
	}
}

// persistErr classifies a backend failure. Failures caused by ctx ending
// keep the context error as their class so callers can tell a timeout from
// a storage outage.
func persistErr(ctx context.Context, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w (%v)", op, ctxErr, err)
	}

	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		return err
	}
	return &domain.PersistenceError{Op: op, Err: err}
}

package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/PabloGalante/gpt-relay/internal/domain"
)

// SessionStore is a simple in-memory implementation of domain.SessionStore.
// It is NOT persistent and is only suitable for development / local mode.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[domain.SessionKey]*domain.Session
}

func NewSessionStore() *SessionStore {
	return &SessionStore{
		sessions: make(map[domain.SessionKey]*domain.Session),
	}
}

func (s *SessionStore) CreateSession(ctx context.Context, session *domain.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.Key]; exists {
		return domain.ErrSessionAlreadyExists
	}

	s.sessions[session.Key] = session.Clone()
	return nil
}

func (s *SessionStore) ReplaceHistory(ctx context.Context, key domain.SessionKey, history []domain.Message, updatedAt domain.Timestamp) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, exists := s.sessions[key]
	if !exists {
		return domain.ErrSessionNotFound
	}

	// copy-on-write so earlier GetSession results stay untouched
	next := sess.Clone()
	next.History = domain.CloneHistory(history)
	next.UpdatedAt = updatedAt
	s.sessions[key] = next
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[key]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	return sess.Clone(), nil
}

func (s *SessionStore) DeleteSession(ctx context.Context, key domain.SessionKey) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[key]; !ok {
		return domain.ErrSessionNotFound
	}
	delete(s.sessions, key)
	return nil
}

// ListSessionsByServer returns the sessions stored for one server, ordered by user.
func (s *SessionStore) ListSessionsByServer(ctx context.Context, serverID domain.ServerID) ([]*domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Session
	for key, sess := range s.sessions {
		if key.ServerID == serverID {
			result = append(result, sess.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Key.UserID < result[j].Key.UserID
	})

	return result, nil
}

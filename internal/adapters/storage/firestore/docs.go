package firestore

import (
	"fmt"
	"time"

	"github.com/PabloGalante/gpt-relay/internal/domain"
)

// ─────────────────────────────────────────
// Firestore Types
// ─────────────────────────────────────────

type sessionDoc struct {
	ServerID  string       `firestore:"server_id"`
	UserID    string       `firestore:"user_id"`
	History   []messageDoc `firestore:"history"`
	CreatedAt time.Time    `firestore:"created_at"`
	UpdatedAt time.Time    `firestore:"updated_at"`
}

type messageDoc struct {
	Role    string `firestore:"role"`
	Content string `firestore:"content"`
}

func toSessionDoc(s *domain.Session) sessionDoc {
	return sessionDoc{
		ServerID:  string(s.Key.ServerID),
		UserID:    string(s.Key.UserID),
		History:   toMessageDocs(s.History),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

// toMessageDocs never returns nil, so an empty history is stored as [] and
// not as a null field.
func toMessageDocs(history []domain.Message) []messageDoc {
	out := make([]messageDoc, 0, len(history))
	for _, m := range history {
		out = append(out, messageDoc{Role: string(m.Role), Content: m.Content})
	}
	return out
}

// toDomain enforces the schema on data read back from the untyped store.
func (d sessionDoc) toDomain(key domain.SessionKey) (*domain.Session, error) {
	history := make([]domain.Message, 0, len(d.History))
	for i, m := range d.History {
		role := domain.Role(m.Role)
		if !role.Valid() {
			return nil, fmt.Errorf("session %s: message %d has unknown role %q", key.String(), i, m.Role)
		}
		history = append(history, domain.Message{Role: role, Content: m.Content})
	}

	return &domain.Session{
		Key:       key,
		History:   history,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

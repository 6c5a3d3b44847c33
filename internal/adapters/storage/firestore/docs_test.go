package firestore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/gpt-relay/internal/domain"
)

func TestSessionDocRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	key := domain.SessionKey{ServerID: "1", UserID: "7"}
	in := &domain.Session{
		Key:       key,
		History:   []domain.Message{domain.UserMessage("hello"), domain.AssistantMessage("hi there")},
		CreatedAt: now,
		UpdatedAt: now,
	}

	doc := toSessionDoc(in)
	assert.Equal(t, "1", doc.ServerID)
	assert.Equal(t, "7", doc.UserID)
	assert.Equal(t, []messageDoc{{Role: "user", Content: "hello"}, {Role: "assistant", Content: "hi there"}}, doc.History)

	out, err := doc.toDomain(key)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestEmptyHistoryIsNotNull(t *testing.T) {
	doc := toSessionDoc(&domain.Session{Key: domain.SessionKey{ServerID: "1", UserID: "7"}})
	assert.NotNil(t, doc.History)
	assert.Empty(t, doc.History)
}

func TestToDomainRejectsUnknownRole(t *testing.T) {
	doc := sessionDoc{History: []messageDoc{{Role: "system", Content: "x"}}}

	_, err := doc.toDomain(domain.SessionKey{ServerID: "1", UserID: "7"})
	assert.Error(t, err)
}

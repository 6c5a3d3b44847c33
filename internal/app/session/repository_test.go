package session_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/gpt-relay/internal/adapters/storage/memory"
	"github.com/PabloGalante/gpt-relay/internal/app/session"
	"github.com/PabloGalante/gpt-relay/internal/domain"
)

var (
	key     = domain.SessionKey{ServerID: "1", UserID: "7"}
	persona = domain.PersonaPreamble{User: "activate", Assistant: "activated"}
)

func newRepo(t *testing.T) (*session.Repository, *memory.SessionStore) {
	t.Helper()
	store := memory.NewSessionStore()
	return session.NewRepository(store, persona), store
}

func TestCreateThenExists(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	ok, err := repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)

	created, err := repo.Create(ctx, key, false)
	require.NoError(t, err)
	assert.True(t, created)

	ok, err = repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, ok)

	history, err := repo.Read(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSecondCreateIsNoOp(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	_, err := repo.Create(ctx, key, false)
	require.NoError(t, err)
	ok, err := repo.Update(ctx, key, []domain.Message{domain.UserMessage("q"), domain.AssistantMessage("a")})
	require.NoError(t, err)
	require.True(t, ok)

	created, err := repo.Create(ctx, key, true)
	require.NoError(t, err)
	assert.False(t, created)

	history, err := repo.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{domain.UserMessage("q"), domain.AssistantMessage("a")}, history)
}

func TestCreateWithPersonaSeedsHistory(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	created, err := repo.Create(ctx, key, true)
	require.NoError(t, err)
	require.True(t, created)

	history, err := repo.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "activate"},
		{Role: domain.RoleAssistant, Content: "activated"},
	}, history)
}

func TestCreateWithPersonaUnconfigured(t *testing.T) {
	repo := session.NewRepository(memory.NewSessionStore(), domain.PersonaPreamble{})

	created, err := repo.Create(context.Background(), key, true)
	assert.False(t, created)
	assert.ErrorIs(t, err, domain.ErrPersonaUnavailable)
}

func TestDeleteMissingIsNoOp(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	deleted, err := repo.Delete(ctx, key)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = repo.Create(ctx, key, false)
	require.NoError(t, err)

	deleted, err = repo.Delete(ctx, key)
	require.NoError(t, err)
	assert.True(t, deleted)

	ok, err := repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateRejectsEmptyHistory(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	_, err := repo.Create(ctx, key, true)
	require.NoError(t, err)

	ok, err := repo.Update(ctx, key, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.Update(ctx, key, []domain.Message{})
	require.NoError(t, err)
	assert.False(t, ok)

	history, err := repo.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, persona.Messages(), history)
}

func TestUpdateReplacesExactly(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)
	_, err := repo.Create(ctx, key, true)
	require.NoError(t, err)

	next := []domain.Message{domain.UserMessage("only")}
	ok, err := repo.Update(ctx, key, next)
	require.NoError(t, err)
	require.True(t, ok)

	next[0].Content = "caller mutation"

	history, err := repo.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{domain.UserMessage("only")}, history)
}

func TestReadAndUpdateWithoutSession(t *testing.T) {
	ctx := context.Background()
	repo, _ := newRepo(t)

	_, err := repo.Read(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNoSession)

	ok, err := repo.Update(ctx, key, []domain.Message{domain.UserMessage("x")})
	assert.False(t, ok)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

type brokenStore struct{ err error }

func (b brokenStore) GetSession(context.Context, domain.SessionKey) (*domain.Session, error) {
	return nil, b.err
}
func (b brokenStore) CreateSession(context.Context, *domain.Session) error { return b.err }
func (b brokenStore) ReplaceHistory(context.Context, domain.SessionKey, []domain.Message, domain.Timestamp) error {
	return b.err
}
func (b brokenStore) DeleteSession(context.Context, domain.SessionKey) error { return b.err }

func TestStorageFailuresAreDistinguishable(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection refused")
	repo := session.NewRepository(brokenStore{err: cause}, persona)

	_, err := repo.Exists(ctx, key)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.ErrorIs(t, err, cause)

	_, err = repo.Create(ctx, key, false)
	assert.ErrorIs(t, err, domain.ErrPersistence)

	_, err = repo.Read(ctx, key)
	assert.ErrorIs(t, err, domain.ErrPersistence)
	assert.NotErrorIs(t, err, domain.ErrNoSession)

	_, err = repo.Update(ctx, key, []domain.Message{domain.UserMessage("x")})
	assert.ErrorIs(t, err, domain.ErrPersistence)

	_, err = repo.Delete(ctx, key)
	assert.ErrorIs(t, err, domain.ErrPersistence)
}

func TestExpiredContextIsNotAStorageFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// remote backends report an ended context with their own error values
	repo := session.NewRepository(brokenStore{err: errors.New("rpc error: code = Canceled")}, persona)

	_, err := repo.Read(ctx, key)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrPersistence)

	_, err = repo.Delete(ctx, key)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, domain.ErrPersistence)

	repo = session.NewRepository(brokenStore{err: context.DeadlineExceeded}, persona)
	_, err = repo.Exists(context.Background(), key)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrPersistence)
}

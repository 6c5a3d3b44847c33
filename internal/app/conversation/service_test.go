package conversation_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PabloGalante/gpt-relay/internal/adapters/storage/memory"
	"github.com/PabloGalante/gpt-relay/internal/app/conversation"
	"github.com/PabloGalante/gpt-relay/internal/app/session"
	"github.com/PabloGalante/gpt-relay/internal/domain"
)

var key = domain.SessionKey{ServerID: "1", UserID: "7"}

// fakeLLM records every call and replies through fn.
type fakeLLM struct {
	mu    sync.Mutex
	calls [][]domain.Message
	fn    func(ctx context.Context, msgs []domain.Message) (string, error)
}

func (f *fakeLLM) Complete(ctx context.Context, msgs []domain.Message) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, domain.CloneHistory(msgs))
	f.mu.Unlock()
	return f.fn(ctx, msgs)
}

func (f *fakeLLM) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func replying(text string) *fakeLLM {
	return &fakeLLM{fn: func(context.Context, []domain.Message) (string, error) { return text, nil }}
}

type fixture struct {
	svc   *conversation.Service
	store *memory.SessionStore
	repo  *session.Repository
	llm   *fakeLLM
}

func newFixture(t *testing.T, llm *fakeLLM, persona domain.PersonaPreamble, opts ...conversation.Option) fixture {
	t.Helper()
	store := memory.NewSessionStore()
	repo := session.NewRepository(store, persona)
	return fixture{
		svc:   conversation.NewService(llm, repo, persona, opts...),
		store: store,
		repo:  repo,
		llm:   llm,
	}
}

func TestPostToSessionScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, replying("hi there"), domain.PersonaPreamble{})

	outcome, err := f.svc.CreateSession(ctx, key, false)
	require.NoError(t, err)
	require.Equal(t, conversation.OutcomeCreated, outcome)

	out, err := f.svc.PostToSession(ctx, key, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out.Reply)
	assert.NoError(t, out.PersistErr)

	history, err := f.repo.Read(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{
		{Role: domain.RoleUser, Content: "hello"},
		{Role: domain.RoleAssistant, Content: "hi there"},
	}, history)

	transcript, err := f.svc.ReadSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "User: hello\nAssistant: hi there\n", transcript)
}

func TestPostToSessionSendsStoredHistory(t *testing.T) {
	ctx := context.Background()
	persona := domain.PersonaPreamble{User: "activate", Assistant: "activated"}
	f := newFixture(t, replying("ok"), persona)

	_, err := f.svc.CreateSession(ctx, key, true)
	require.NoError(t, err)

	_, err = f.svc.PostToSession(ctx, key, "one")
	require.NoError(t, err)
	_, err = f.svc.PostToSession(ctx, key, "two")
	require.NoError(t, err)

	require.Equal(t, 2, f.llm.Calls())
	assert.Equal(t, []domain.Message{
		domain.UserMessage("activate"),
		domain.AssistantMessage("activated"),
		domain.UserMessage("one"),
		domain.AssistantMessage("ok"),
		domain.UserMessage("two"),
	}, f.llm.calls[1])
}

func TestSendEmptyPromptNeverCallsGateway(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, replying("unused"), domain.PersonaPreamble{User: "u", Assistant: "a"})

	for _, text := range []string{"", "   ", "\n\t"} {
		_, err := f.svc.Send(ctx, text)
		assert.ErrorIs(t, err, domain.ErrEmptyPrompt)

		_, err = f.svc.SendPersona(ctx, text)
		assert.ErrorIs(t, err, domain.ErrEmptyPrompt)

		_, err = f.svc.PostToSession(ctx, key, text)
		assert.ErrorIs(t, err, domain.ErrEmptyPrompt)
	}
	assert.Zero(t, f.llm.Calls())
}

func TestSendAssemblesPromptOnly(t *testing.T) {
	f := newFixture(t, replying("pong"), domain.PersonaPreamble{})

	reply, err := f.svc.Send(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
	assert.Equal(t, []domain.Message{domain.UserMessage("ping")}, f.llm.calls[0])
}

func TestSendPersonaPrependsPreamble(t *testing.T) {
	persona := domain.PersonaPreamble{User: "activate", Assistant: "activated"}
	f := newFixture(t, replying("sure"), persona)

	_, err := f.svc.SendPersona(context.Background(), "do it")
	require.NoError(t, err)
	assert.Equal(t, []domain.Message{
		domain.UserMessage("activate"),
		domain.AssistantMessage("activated"),
		domain.UserMessage("do it"),
	}, f.llm.calls[0])
}

func TestSendPersonaUnconfigured(t *testing.T) {
	for name, persona := range map[string]domain.PersonaPreamble{
		"empty": {},
		"blank": {User: "  ", Assistant: "activated"},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, replying("x"), persona)

			_, err := f.svc.SendPersona(context.Background(), "hello")
			assert.ErrorIs(t, err, domain.ErrPersonaUnavailable)
			assert.Zero(t, f.llm.Calls())
		})
	}
}

func TestPostWithoutSession(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, replying("x"), domain.PersonaPreamble{})

	_, err := f.svc.PostToSession(ctx, key, "hello")
	assert.ErrorIs(t, err, domain.ErrNoSession)
	assert.Zero(t, f.llm.Calls())

	exists, err := f.repo.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestCompletionFailureLeavesHistoryUntouched(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{fn: func(context.Context, []domain.Message) (string, error) {
		return "", errors.New("rate limited")
	}}
	f := newFixture(t, llm, domain.PersonaPreamble{})

	_, err := f.svc.CreateSession(ctx, key, false)
	require.NoError(t, err)

	_, err = f.svc.PostToSession(ctx, key, "hello")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCompletion)

	history, err := f.repo.Read(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, history)

	_, err = f.svc.Send(ctx, "hello")
	assert.ErrorIs(t, err, domain.ErrCompletion)
}

func TestCompletionTimeout(t *testing.T) {
	llm := &fakeLLM{fn: func(ctx context.Context, _ []domain.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	f := newFixture(t, llm, domain.PersonaPreamble{}, conversation.WithCompletionTimeout(20*time.Millisecond))

	_, err := f.svc.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, domain.ErrCompletion)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCreateAndDeleteOutcomes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, replying("x"), domain.PersonaPreamble{})

	outcome, err := f.svc.CreateSession(ctx, key, false)
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeCreated, outcome)

	outcome, err = f.svc.CreateSession(ctx, key, false)
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeAlreadyExists, outcome)

	deleted, err := f.svc.DeleteSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeDeleted, deleted)

	deleted, err = f.svc.DeleteSession(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, conversation.OutcomeNotFound, deleted)

	_, err = f.svc.ReadSession(ctx, key)
	assert.ErrorIs(t, err, domain.ErrNoSession)
}

// failingUpdateStore accepts everything except history replacement.
type failingUpdateStore struct {
	*memory.SessionStore
}

func (s failingUpdateStore) ReplaceHistory(context.Context, domain.SessionKey, []domain.Message, domain.Timestamp) error {
	return errors.New("disk full")
}

func TestPostReturnsReplyWhenSaveFails(t *testing.T) {
	ctx := context.Background()
	store := failingUpdateStore{memory.NewSessionStore()}
	repo := session.NewRepository(store, domain.PersonaPreamble{})
	svc := conversation.NewService(replying("answer"), repo, domain.PersonaPreamble{})

	_, err := svc.CreateSession(ctx, key, false)
	require.NoError(t, err)

	out, err := svc.PostToSession(ctx, key, "question")
	require.NoError(t, err)
	assert.Equal(t, "answer", out.Reply)
	assert.ErrorIs(t, out.PersistErr, domain.ErrPersistence)
}

func TestConcurrentPostsWithKeyLocks(t *testing.T) {
	ctx := context.Background()
	llm := &fakeLLM{fn: func(_ context.Context, msgs []domain.Message) (string, error) {
		time.Sleep(time.Millisecond)
		return "re:" + msgs[len(msgs)-1].Content, nil
	}}
	f := newFixture(t, llm, domain.PersonaPreamble{})
	_, err := f.svc.CreateSession(ctx, key, false)
	require.NoError(t, err)

	const n = 10
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.svc.PostToSession(ctx, key, fmt.Sprintf("m%d", i))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	history, err := f.repo.Read(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2*n)
	for i := 0; i < len(history); i += 2 {
		assert.Equal(t, domain.RoleUser, history[i].Role)
		assert.Equal(t, domain.RoleAssistant, history[i+1].Role)
		assert.Equal(t, "re:"+history[i].Content, history[i+1].Content)
	}
}

// Without key locks two posts that both read the same history overwrite
// each other's turns.
func TestConcurrentPostsWithoutKeyLocksLoseTurns(t *testing.T) {
	ctx := context.Background()

	var entered sync.WaitGroup
	entered.Add(2)
	llm := &fakeLLM{fn: func(_ context.Context, msgs []domain.Message) (string, error) {
		entered.Done()
		entered.Wait()
		return "re:" + msgs[len(msgs)-1].Content, nil
	}}
	f := newFixture(t, llm, domain.PersonaPreamble{}, conversation.WithoutKeyLocks())
	_, err := f.svc.CreateSession(ctx, key, false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, text := range []string{"a", "b"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			_, err := f.svc.PostToSession(ctx, key, text)
			assert.NoError(t, err)
		}(text)
	}
	wg.Wait()

	history, err := f.repo.Read(ctx, key)
	require.NoError(t, err)
	assert.Len(t, history, 2, "one post's turns were overwritten by the other")
}

func TestFormatTranscript(t *testing.T) {
	got := conversation.FormatTranscript([]domain.Message{
		domain.UserMessage("activate"),
		domain.AssistantMessage("activated"),
	})
	assert.Equal(t, "User: activate\nAssistant: activated\n", got)
	assert.Equal(t, "", conversation.FormatTranscript(nil))
}

func TestPostGivesUpWaitingAtDeadline(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	llm := &fakeLLM{fn: func(context.Context, []domain.Message) (string, error) {
		entered <- struct{}{}
		<-release
		return "slow reply", nil
	}}
	f := newFixture(t, llm, domain.PersonaPreamble{})
	_, err := f.svc.CreateSession(context.Background(), key, false)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.svc.PostToSession(context.Background(), key, "first")
		firstDone <- err
	}()
	<-entered

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err = f.svc.PostToSession(ctx, key, "second")
	waited := time.Since(start)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, domain.ErrPersistence)
	assert.Less(t, waited, 500*time.Millisecond)
	assert.Equal(t, 1, llm.Calls())

	close(release)
	require.NoError(t, <-firstDone)

	history, err := f.repo.Read(context.Background(), key)
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

func TestCancelledContextIsNotAStorageFailure(t *testing.T) {
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for name, opts := range map[string][]conversation.Option{
		"with key locks":    nil,
		"without key locks": {conversation.WithoutKeyLocks()},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t, replying("x"), domain.PersonaPreamble{}, opts...)
			_, err := f.svc.CreateSession(context.Background(), key, false)
			require.NoError(t, err)

			_, err = f.svc.PostToSession(cancelled, key, "hello")
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, domain.ErrPersistence)

			_, err = f.svc.CreateSession(cancelled, domain.SessionKey{ServerID: "1", UserID: "8"}, false)
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, domain.ErrPersistence)

			_, err = f.svc.DeleteSession(cancelled, key)
			assert.ErrorIs(t, err, context.Canceled)
			assert.NotErrorIs(t, err, domain.ErrPersistence)

			assert.Equal(t, 0, f.llm.Calls())
			exists, err := f.repo.Exists(context.Background(), key)
			require.NoError(t, err)
			assert.True(t, exists)
		})
	}
}

package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PabloGalante/gpt-relay/internal/app/prompt"
	"github.com/PabloGalante/gpt-relay/internal/app/session"
	"github.com/PabloGalante/gpt-relay/internal/domain"
	"github.com/PabloGalante/gpt-relay/internal/observability"
)

type Service struct {
	llm     domain.CompletionClient
	repo    *session.Repository
	persona domain.PersonaPreamble
	locks   *session.KeyedMutex
	timeout time.Duration
}

type Option func(*Service)

// WithCompletionTimeout bounds every completion call. Zero disables the bound.
func WithCompletionTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithoutKeyLocks disables per-session serialization; concurrent posts to
// the same session may then lose turns.
func WithoutKeyLocks() Option {
	return func(s *Service) { s.locks = nil }
}

func NewService(
	llm domain.CompletionClient,
	repo *session.Repository,
	persona domain.PersonaPreamble,
	opts ...Option,
) *Service {
	s := &Service{
		llm:     llm,
		repo:    repo,
		persona: persona,
		locks:   session.NewKeyedMutex(),
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type CreateOutcome int

const (
	OutcomeCreated CreateOutcome = iota
	OutcomeAlreadyExists
)

type DeleteOutcome int

const (
	OutcomeDeleted DeleteOutcome = iota
	OutcomeNotFound
)

type PostOutput struct {
	Reply string
	// PersistErr is set when the reply was produced but could not be saved.
	PersistErr error
}

// Send completes a single prompt with no history.
func (s *Service) Send(ctx context.Context, text string) (string, error) {
	if isBlank(text) {
		return "", domain.ErrEmptyPrompt
	}
	return s.complete(ctx, prompt.Assemble(text, nil, nil))
}

// SendPersona completes a single prompt primed with the persona preamble.
func (s *Service) SendPersona(ctx context.Context, text string) (string, error) {
	if isBlank(text) {
		return "", domain.ErrEmptyPrompt
	}
	if !s.persona.Configured() {
		return "", domain.ErrPersonaUnavailable
	}
	persona := s.persona
	return s.complete(ctx, prompt.Assemble(text, nil, &persona))
}

func (s *Service) CreateSession(ctx context.Context, key domain.SessionKey, wantsPersona bool) (CreateOutcome, error) {
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	created, err := s.repo.Create(ctx, key, wantsPersona)
	if err != nil {
		return 0, err
	}
	if !created {
		return OutcomeAlreadyExists, nil
	}
	return OutcomeCreated, nil
}

// PostToSession sends text with the stored history and appends the user and
// assistant turns. Nothing is written unless the completion succeeds.
func (s *Service) PostToSession(ctx context.Context, key domain.SessionKey, text string) (*PostOutput, error) {
	if isBlank(text) {
		return nil, domain.ErrEmptyPrompt
	}

	unlock, err := s.lock(ctx, key)
	if err != nil {
		return nil, err
	}
	defer unlock()

	log := observability.LoggerFromContext(ctx).With("session", key.String())

	exists, err := s.repo.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, domain.ErrNoSession
	}

	history, err := s.repo.Read(ctx, key)
	if err != nil {
		return nil, err
	}

	// persona turns, if any, are already part of the stored history
	reply, err := s.complete(ctx, prompt.Assemble(text, history, nil))
	if err != nil {
		return nil, err
	}

	next := append(history, domain.UserMessage(text), domain.AssistantMessage(reply))
	out := &PostOutput{Reply: reply}

	ok, err := s.repo.Update(ctx, key, next)
	switch {
	case err != nil:
		log.Error("failed to save session history", "error", err)
		out.PersistErr = persistFailure(err)
	case !ok:
		log.Error("session history update rejected", "history_len", len(next))
		out.PersistErr = &domain.PersistenceError{Op: "session update", Err: errors.New("update rejected")}
	default:
		log.Info("session extended", "history_len", len(next))
	}

	return out, nil
}

// ReadSession renders the stored history as "<Role>: <content>" lines.
func (s *Service) ReadSession(ctx context.Context, key domain.SessionKey) (string, error) {
	history, err := s.repo.Read(ctx, key)
	if err != nil {
		return "", err
	}
	return FormatTranscript(history), nil
}

func (s *Service) DeleteSession(ctx context.Context, key domain.SessionKey) (DeleteOutcome, error) {
	unlock, err := s.lock(ctx, key)
	if err != nil {
		return 0, err
	}
	defer unlock()

	deleted, err := s.repo.Delete(ctx, key)
	if err != nil {
		return 0, err
	}
	if !deleted {
		return OutcomeNotFound, nil
	}
	return OutcomeDeleted, nil
}

// PersonaConfigured reports whether persona commands can run.
func (s *Service) PersonaConfigured() bool {
	return s.persona.Configured()
}

func FormatTranscript(history []domain.Message) string {
	var b strings.Builder
	for _, m := range history {
		b.WriteString(m.Role.Label())
		b.WriteString(": ")
		b.WriteString(m.Content)
		b.WriteByte('\n')
	}
	return b.String()
}

func (s *Service) complete(ctx context.Context, messages []domain.Message) (string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	reply, err := s.llm.Complete(ctx, messages)
	log := observability.LoggerFromContext(ctx)
	if err != nil {
		log.Error("completion failed", "messages", len(messages), "error", err)
		return "", domain.NewCompletionError("gateway", err)
	}

	log.Info("completion done", "messages", len(messages), "elapsed_ms", time.Since(start).Milliseconds())
	return reply, nil
}

// lock waits for the session's turn. Giving up on ctx is reported as the
// context error, never as a storage failure.
func (s *Service) lock(ctx context.Context, key domain.SessionKey) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Lock(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("waiting for session %s: %w", key.String(), err)
	}
	return unlock, nil
}

func persistFailure(err error) error {
	if errors.Is(err, domain.ErrPersistence) || isContextErr(err) {
		return err
	}
	return &domain.PersistenceError{Op: "session update", Err: err}
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

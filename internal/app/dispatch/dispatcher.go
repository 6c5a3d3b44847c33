package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/google/uuid"

	"github.com/PabloGalante/gpt-relay/internal/app/conversation"
	"github.com/PabloGalante/gpt-relay/internal/domain"
	"github.com/PabloGalante/gpt-relay/internal/observability"
)

// Handlers is the command surface of conversation.Service.
type Handlers interface {
	Send(ctx context.Context, text string) (string, error)
	SendPersona(ctx context.Context, text string) (string, error)
	CreateSession(ctx context.Context, key domain.SessionKey, wantsPersona bool) (conversation.CreateOutcome, error)
	PostToSession(ctx context.Context, key domain.SessionKey, text string) (*conversation.PostOutput, error)
	ReadSession(ctx context.Context, key domain.SessionKey) (string, error)
	DeleteSession(ctx context.Context, key domain.SessionKey) (conversation.DeleteOutcome, error)
}

const (
	titleReply   = "ChatGPT"
	titleSession = "Session"
	fieldReply   = "Response"
)

type Dispatcher struct {
	handlers Handlers
	prefix   string
}

func NewDispatcher(handlers Handlers, prefix string) *Dispatcher {
	return &Dispatcher{handlers: handlers, prefix: prefix}
}

func (d *Dispatcher) Prefix() string {
	return d.prefix
}

// Handle runs one command and always produces a reply; errors and panics are
// converted into user-facing messages.
func (d *Dispatcher) Handle(ctx context.Context, cmd Command) (reply Reply) {
	if observability.RequestID(ctx) == "" {
		ctx = observability.WithRequestID(ctx, uuid.NewString())
	}
	log := observability.LoggerFromContext(ctx).With(
		"command", cmd.Verb,
		"session", cmd.Key.String(),
	)

	defer func() {
		if r := recover(); r != nil {
			log.Error("command panicked", "panic", fmt.Sprint(r), "stack", string(debug.Stack()))
			reply = failure(titleFor(cmd.Verb), "Something went wrong")
		}
	}()

	log.Info("command received")
	reply, err := d.run(ctx, cmd)
	if err != nil {
		reply = d.errorReply(ctx, cmd, err)
	}
	log.Info("command handled", "error_reply", reply.IsError())
	return reply
}

func (d *Dispatcher) run(ctx context.Context, cmd Command) (Reply, error) {
	switch cmd.Verb {
	case VerbSend:
		text, err := d.handlers.Send(ctx, cmd.Arg)
		if err != nil {
			return Reply{}, err
		}
		return success(titleReply, fieldReply, text), nil

	case VerbDan:
		text, err := d.handlers.SendPersona(ctx, cmd.Arg)
		if err != nil {
			return Reply{}, err
		}
		return success(titleReply+" (persona)", fieldReply, text), nil

	case VerbCreate:
		outcome, err := d.handlers.CreateSession(ctx, cmd.Key, cmd.Persona)
		if err != nil {
			return Reply{}, err
		}
		if outcome == conversation.OutcomeAlreadyExists {
			return failure(titleSession, "You already have a session on this server"), nil
		}
		msg := "Session created"
		if cmd.Persona {
			msg = "Session created in persona mode"
		}
		return success(titleSession, "Status", msg), nil

	case VerbChat:
		out, err := d.handlers.PostToSession(ctx, cmd.Key, cmd.Arg)
		if err != nil {
			return Reply{}, err
		}
		title := titleReply
		if out.PersistErr != nil {
			title += " (reply not saved to your session)"
		}
		return success(title, fieldReply, out.Reply), nil

	case VerbRead:
		transcript, err := d.handlers.ReadSession(ctx, cmd.Key)
		if err != nil {
			return Reply{}, err
		}
		if transcript == "" {
			transcript = "(empty)"
		}
		return success(titleSession, "Transcript", transcript), nil

	case VerbDelete:
		outcome, err := d.handlers.DeleteSession(ctx, cmd.Key)
		if err != nil {
			return Reply{}, err
		}
		if outcome == conversation.OutcomeNotFound {
			return failure(titleSession, "You don't have a session on this server"), nil
		}
		return success(titleSession, "Status", "Session deleted"), nil

	case VerbHelp:
		return success("Commands", "Usage", HelpText(d.prefix)), nil

	default:
		return Reply{}, fmt.Errorf("unsupported command %q", cmd.Verb)
	}
}

func (d *Dispatcher) errorReply(ctx context.Context, cmd Command, err error) Reply {
	log := observability.LoggerFromContext(ctx).With("command", cmd.Verb, "session", cmd.Key.String())
	title := titleFor(cmd.Verb)

	switch {
	case errors.Is(err, domain.ErrEmptyPrompt):
		return failure(title, fmt.Sprintf("The prompt is empty. Usage: %s%s", d.prefix, verbs[cmd.Verb].usage))
	case errors.Is(err, domain.ErrNoSession):
		return failure(title, fmt.Sprintf("You don't have a session, use %screate first", d.prefix))
	case errors.Is(err, domain.ErrSessionExists):
		return failure(title, "You already have a session on this server")
	case errors.Is(err, domain.ErrPersonaUnavailable):
		return failure(title, "Persona mode is not configured on this bot")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		log.Warn("command ran out of time", "error", err)
		return failure(title, "The request timed out, try again later")
	case errors.Is(err, domain.ErrCompletion):
		log.Warn("completion failure reported to user", "error", err)
		return failure(title, "The completion service failed, try again later")
	case errors.Is(err, domain.ErrPersistence):
		log.Error("persistence failure reported to user", "error", err)
		return failure(title, "Session storage is unavailable, try again later")
	default:
		log.Error("unexpected command error", "error", err)
		return failure(title, "Something went wrong")
	}
}

func titleFor(v Verb) string {
	switch v {
	case VerbCreate, VerbRead, VerbDelete:
		return titleSession
	default:
		return titleReply
	}
}

// Package prompt builds the message sequence submitted for one completion.
package prompt

import "github.com/PabloGalante/gpt-relay/internal/domain"

// Assemble returns persona (when non-nil), then history in stored order, then
// the new prompt as a user message. The result never shares storage with
// history, so callers can append to it without touching stored state.
func Assemble(newPrompt string, history []domain.Message, persona *domain.PersonaPreamble) []domain.Message {
	size := len(history) + 1
	if persona != nil {
		size += 2
	}

	out := make([]domain.Message, 0, size)
	if persona != nil {
		out = append(out, persona.Messages()...)
	}
	out = append(out, history...)
	out = append(out, domain.UserMessage(newPrompt))
	return out
}

package domain

import "strings"

// Message is one turn of a conversation. It is never modified after being
// appended to a history.
type Message struct {
	Role    Role
	Content string
}

// UserMessage and AssistantMessage are shorthands for building turns.
func UserMessage(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func AssistantMessage(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Session is one user's ongoing conversation within one server.
type Session struct {
	Key       SessionKey
	History   []Message
	CreatedAt Timestamp
	UpdatedAt Timestamp
}

// Clone returns a copy whose History does not share storage with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.History = CloneHistory(s.History)
	return &out
}

// CloneHistory copies a message slice. A nil input yields an empty, non-nil slice.
func CloneHistory(history []Message) []Message {
	out := make([]Message, len(history))
	copy(out, history)
	return out
}

// PersonaPreamble is the fixed seed exchange that primes "alternate mode".
type PersonaPreamble struct {
	User      string `yaml:"user" json:"user"`
	Assistant string `yaml:"assistant" json:"assistant"`
}

// Configured reports whether both seed lines have non-blank text.
func (p PersonaPreamble) Configured() bool {
	return strings.TrimSpace(p.User) != "" && strings.TrimSpace(p.Assistant) != ""
}

// Messages returns a new slice on every call so callers may append to it freely.
func (p PersonaPreamble) Messages() []Message {
	return []Message{
		UserMessage(p.User),
		AssistantMessage(p.Assistant),
	}
}

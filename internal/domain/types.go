package domain

import (
	"strings"
	"time"
	"unicode"
	"unicode/utf8"
)

// ServerID and UserID are the chat platform's opaque identifiers.
type ServerID string
type UserID string

// SessionKey identifies at most one Session.
type SessionKey struct {
	ServerID ServerID
	UserID   UserID
}

func (k SessionKey) String() string {
	return string(k.ServerID) + "/" + string(k.UserID)
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Label is the capitalized role name used in transcripts ("User", "Assistant").
func (r Role) Label() string {
	s := string(r)
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return ""
	}
	return string(unicode.ToUpper(first)) + strings.ToLower(s[size:])
}

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

type Timestamp = time.Time

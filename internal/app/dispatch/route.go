// Package dispatch turns chat messages into session commands and command
// results into replies. Route is pure; Dispatcher holds the side effects.
package dispatch

import (
	"strings"
	"unicode"

	"github.com/PabloGalante/gpt-relay/internal/domain"
)

type Verb string

const (
	VerbSend   Verb = "send"
	VerbDan    Verb = "dan"
	VerbCreate Verb = "create"
	VerbChat   Verb = "chat"
	VerbRead   Verb = "read"
	VerbDelete Verb = "delete"
	VerbHelp   Verb = "help"
)

// PersonaFlag is the literal token that makes create start in persona mode.
const PersonaFlag = "persona"

// Incoming is a chat message as seen by the router.
type Incoming struct {
	ServerID domain.ServerID
	AuthorID domain.UserID
	Content  string
}

type Command struct {
	Verb    Verb
	Key     domain.SessionKey
	Arg     string
	Persona bool
}

type verbInfo struct {
	usage string
	brief string
}

var verbs = map[Verb]verbInfo{
	VerbSend:   {`send "<prompt>"`, "One-off reply with no history"},
	VerbDan:    {`dan "<prompt>"`, "One-off reply in persona mode"},
	VerbCreate: {"create [persona]", "Start your session on this server"},
	VerbChat:   {`chat "<prompt>"`, "Reply using your session history"},
	VerbRead:   {"read", "Show your session transcript"},
	VerbDelete: {"delete", "Delete your session"},
	VerbHelp:   {"help", "List the commands"},
}

// helpOrder fixes the listing order for the help reply.
var helpOrder = []Verb{VerbSend, VerbDan, VerbCreate, VerbChat, VerbRead, VerbDelete, VerbHelp}

// Route decides whether a message is a command for this bot. Messages
// written by selfID, messages without prefix and unknown verbs are ignored.
func Route(in Incoming, selfID domain.UserID, prefix string) (Command, bool) {
	if selfID != "" && in.AuthorID == selfID {
		return Command{}, false
	}

	text := strings.TrimSpace(in.Content)
	if prefix == "" || !strings.HasPrefix(text, prefix) {
		return Command{}, false
	}
	text = strings.TrimSpace(text[len(prefix):])

	name, rest := text, ""
	if i := strings.IndexFunc(text, unicode.IsSpace); i >= 0 {
		name, rest = text[:i], text[i:]
	}
	verb := Verb(strings.ToLower(name))
	if _, ok := verbs[verb]; !ok {
		return Command{}, false
	}

	cmd := Command{
		Verb: verb,
		Key:  domain.SessionKey{ServerID: in.ServerID, UserID: in.AuthorID},
		Arg:  unquote(strings.TrimSpace(rest)),
	}
	if verb == VerbCreate {
		cmd.Persona = strings.EqualFold(cmd.Arg, PersonaFlag)
	}
	return cmd, true
}

// unquote strips one pair of surrounding double quotes, including the
// typographic ones mobile keyboards insert.
func unquote(s string) string {
	for _, pair := range [][2]string{{`"`, `"`}, {"“", "”"}} {
		if len(s) >= len(pair[0])+len(pair[1]) && strings.HasPrefix(s, pair[0]) && strings.HasSuffix(s, pair[1]) {
			return s[len(pair[0]) : len(s)-len(pair[1])]
		}
	}
	return s
}

// HelpText lists the commands with the given prefix.
func HelpText(prefix string) string {
	var b strings.Builder
	for _, v := range helpOrder {
		info := verbs[v]
		b.WriteString(prefix)
		b.WriteString(info.usage)
		b.WriteString(" - ")
		b.WriteString(info.brief)
		b.WriteByte('\n')
	}
	return b.String()
}

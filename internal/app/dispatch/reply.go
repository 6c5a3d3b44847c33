package dispatch

type ReplyKind int

const (
	KindSuccess ReplyKind = iota
	KindError
)

// Reply is a titled block with a single labeled field.
type Reply struct {
	Title string
	Field string
	Value string
	Kind  ReplyKind
}

func (r Reply) IsError() bool {
	return r.Kind == KindError
}

func success(title, field, value string) Reply {
	return Reply{Title: title, Field: field, Value: value, Kind: KindSuccess}
}

func failure(title, value string) Reply {
	return Reply{Title: title, Field: "Error", Value: value, Kind: KindError}
}

// Truncate shortens s to at most max runes, marking the cut with an ellipsis.
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max == 1 {
		return "…"
	}
	return string(r[:max-1]) + "…"
}

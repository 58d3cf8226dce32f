package sse

import "strings"

// LineKind classifies one complete, trimmed SSE line.
type LineKind int

const (
	// LineOther is any line that is not a recognised SSE field, including blank lines.
	LineOther LineKind = iota

	// LineData is a "data:" field. It is the only kind that can produce an Event.
	LineData

	// LineEvent is an explicit "event:" field.
	LineEvent

	// LineID is an "id:" field.
	LineID

	// LineRetry is a "retry:" reconnection hint.
	LineRetry

	// LineComment is a line starting with ':' (keep-alives, for example).
	LineComment
)

func (k LineKind) String() string {
	switch k {
	case LineData:
		return "data"
	case LineEvent:
		return "event"
	case LineID:
		return "id"
	case LineRetry:
		return "retry"
	case LineComment:
		return "comment"
	default:
		return "other"
	}
}

var fieldPrefixes = []struct {
	prefix string
	kind   LineKind
}{
	{"data:", LineData},
	{"event:", LineEvent},
	{"id:", LineID},
	{"retry:", LineRetry},
}

// ClassifyLine trims the line and reports its kind along with the field value,
// itself trimmed. The space after the colon is optional.
func ClassifyLine(line string) (LineKind, string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return LineOther, ""
	}

	if strings.HasPrefix(line, ":") {
		return LineComment, strings.TrimSpace(line[1:])
	}

	for _, f := range fieldPrefixes {
		if value, ok := strings.CutPrefix(line, f.prefix); ok {
			return f.kind, strings.TrimSpace(value)
		}
	}

	return LineOther, line
}

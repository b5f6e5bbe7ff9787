// Package reconcile computes the ordered statements that bring a device's
// active configuration to a desired state.
package reconcile

import "strings"

// Kind classifies a statement by its verb.
type Kind int

const (
	KindInvalid Kind = iota
	KindSet
	KindDelete
)

func (k Kind) String() string {
	switch k {
	case KindSet:
		return "set"
	case KindDelete:
		return "delete"
	default:
		return "invalid"
	}
}

const (
	setPrefix    = "set "
	deletePrefix = "delete "
)

// Clean normalizes a statement for comparison: quote characters are
// removed and surrounding whitespace trimmed.
func Clean(line string) string {
	line = strings.ReplaceAll(line, "'", "")
	line = strings.ReplaceAll(line, `"`, "")
	return strings.TrimSpace(line)
}

// Classify returns the kind of an already cleaned statement.
func Classify(line string) Kind {
	switch {
	case strings.HasPrefix(line, deletePrefix):
		return KindDelete
	case strings.HasPrefix(line, setPrefix):
		return KindSet
	default:
		return KindInvalid
	}
}

// ToDelete rewrites a leading "set " into "delete ".
func ToDelete(line string) string {
	if rest, ok := strings.CutPrefix(line, setPrefix); ok {
		return deletePrefix + rest
	}
	return line
}

// path returns the statement without its verb. A bare verb has an
// empty path.
func path(line string) string {
	for _, verb := range []string{"set", "delete"} {
		if line == verb {
			return ""
		}
		if rest, ok := strings.CutPrefix(line, verb+" "); ok {
			return rest
		}
	}
	return line
}

// searchKey drops the last space-separated word, which for a leaf is
// its value. A line without spaces is its own key.
func searchKey(line string) string {
	if i := strings.LastIndexByte(line, ' '); i >= 0 {
		return line[:i]
	}
	return line
}

// ParseLive splits device configuration text into cleaned statements.
// Blank lines are skipped.
func ParseLive(text string) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		if line := Clean(raw); line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

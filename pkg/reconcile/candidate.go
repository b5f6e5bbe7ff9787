package reconcile

import (
	"errors"
	"strings"

	"github.com/psaab/edgecfg/pkg/config"
)

var (
	// ErrMutuallyExclusive is returned when both inline lines and a source
	// text are supplied.
	ErrMutuallyExclusive = errors.New("parameters are mutually exclusive: lines, src")

	// ErrNoCandidate is returned when neither lines nor a source is supplied.
	ErrNoCandidate = errors.New("one of lines or src is required")
)

// Source is the caller's desired configuration: either inline statements
// or the contents of a source file, never both.
type Source struct {
	Lines []string
	Src   string
}

// Empty reports whether no candidate input was supplied.
func (s Source) Empty() bool {
	return len(s.Lines) == 0 && s.Src == ""
}

// Validate enforces that exactly one input is present.
func (s Source) Validate() error {
	switch {
	case len(s.Lines) > 0 && s.Src != "":
		return ErrMutuallyExclusive
	case s.Empty():
		return ErrNoCandidate
	}
	return nil
}

// BuildCandidate validates src and normalizes it into candidate
// statements. A bracket-format source that fails to parse returns the
// *config.ParseError unchanged.
func BuildCandidate(src Source) ([]string, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}
	text := src.Src
	if len(src.Lines) > 0 {
		text = strings.Join(src.Lines, "\n")
	}
	return config.Normalize(text)
}

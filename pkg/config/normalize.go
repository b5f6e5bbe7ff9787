package config

import "strings"

// IsSetFormat reports whether text is already a flat list of statements,
// which is decided by how the text starts.
func IsSetFormat(text string) bool {
	text = strings.TrimLeft(text, " \t\r\n")
	return strings.HasPrefix(text, "set") || strings.HasPrefix(text, "delete")
}

// Normalize converts configuration text into an ordered list of statements.
//
// Flat text is split into lines and returned as-is, so "delete" lines
// pass through. Bracket text is parsed and flattened into "set" lines;
// lines related by prefix are collapsed (see Collapse). A malformed
// bracket document yields a *ParseError and no statements.
func Normalize(text string) ([]string, error) {
	if IsSetFormat(text) {
		return SplitLines(text), nil
	}

	tree, err := NewParser(text).Parse()
	if err != nil {
		return nil, err
	}
	return Collapse(tree.SetLines()), nil
}

// Collapse drops redundant statements from lines. Each line is compared
// with every line kept so far; when either is a prefix of the other the
// kept one is removed, and the new line is appended. The line seen last
// therefore wins whenever two statements cover the same path.
func Collapse(lines []string) []string {
	var kept []string
	for _, line := range lines {
		n := 0
		for _, entry := range kept {
			if IsPrefixPath(entry, line) || IsPrefixPath(line, entry) {
				continue
			}
			kept[n] = entry
			n++
		}
		kept = append(kept[:n], line)
	}
	return kept
}

// IsPrefixPath reports whether prefix covers line. The comparison is a
// plain string prefix, so "set a b" covers "set a bc" too.
func IsPrefixPath(prefix, line string) bool {
	return strings.HasPrefix(line, prefix)
}

// SplitLines splits s into trimmed, non-empty lines.
func SplitLines(s string) []string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

package config

import (
	"fmt"
	"strings"
)

// ParseCommand splits a "set ..." or "delete ..." statement into its verb
// and path words. Quoted words keep their inner spaces.
func ParseCommand(input string) (verb string, path []string, err error) {
	words, err := SplitWords(input)
	if err != nil {
		return "", nil, err
	}
	if len(words) == 0 {
		return "", nil, fmt.Errorf("empty command")
	}
	verb = words[0]
	if verb != "set" && verb != "delete" {
		return "", nil, fmt.Errorf("unknown command %q: expected set or delete", verb)
	}
	if len(words) < 2 {
		return "", nil, fmt.Errorf("%s: missing path", verb)
	}
	return verb, words[1:], nil
}

// SplitWords tokenizes a single statement line.
func SplitWords(input string) ([]string, error) {
	lex := NewLexer(strings.TrimSpace(input))
	var words []string
	for {
		tok := lex.Next()
		switch tok.Type {
		case TokenEOF:
			return words, nil
		case TokenIdentifier, TokenString:
			words = append(words, tok.Value)
		case TokenError:
			return nil, &ParseError{Line: tok.Line, Column: tok.Column, Msg: tok.Value}
		default:
			return nil, &ParseError{Line: tok.Line, Column: tok.Column, Msg: "unexpected " + tok.Type.String()}
		}
	}
}

// FormatCommand renders verb and path as a statement, single-quoting
// words that contain spaces or punctuation.
func FormatCommand(verb string, path []string) string {
	return verb + " " + joinKeys(path, '\'')
}

// TreeFromSetLines builds a tree from "set" statements, such as the
// output of "show configuration commands". Delete statements are not
// accepted.
func TreeFromSetLines(lines []string) (*ConfigTree, error) {
	tree := &ConfigTree{}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		verb, path, err := ParseCommand(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if verb != "set" {
			return nil, fmt.Errorf("line %d: %s statements cannot be rendered as configuration", i+1, verb)
		}
		tree.SetPath(path)
	}
	return tree, nil
}

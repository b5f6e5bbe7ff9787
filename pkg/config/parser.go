package config

import "fmt"

// IndentUnit is the indentation emitted for each nesting level.
const IndentUnit = "    "

// ParseError describes malformed bracket configuration.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Parser builds a ConfigTree from bracket-format text.
type Parser struct {
	lex *Lexer
}

// NewParser creates a new Parser for the given input.
func NewParser(input string) *Parser {
	return &Parser{lex: NewLexer(input)}
}

// Parse parses the whole input. Any structural problem, such as an
// unbalanced brace, is returned as a *ParseError and no tree is produced.
func (p *Parser) Parse() (*ConfigTree, error) {
	children, err := p.parseBlock(nil)
	if err != nil {
		return nil, err
	}
	return &ConfigTree{Children: children}, nil
}

// parseBlock reads statements until the closing brace of open, or EOF
// when open is nil (top level).
func (p *Parser) parseBlock(open *Token) ([]*Node, error) {
	var nodes []*Node
	for {
		tok := p.lex.Next()
		switch tok.Type {
		case TokenNewline, TokenSemicolon:
			continue

		case TokenEOF:
			if open != nil {
				return nil, &ParseError{
					Line:   open.Line,
					Column: open.Column,
					Msg:    "unbalanced '{': missing closing '}'",
				}
			}
			return nodes, nil

		case TokenRBrace:
			if open == nil {
				return nil, &ParseError{Line: tok.Line, Column: tok.Column, Msg: "unexpected '}'"}
			}
			return nodes, nil

		case TokenLBrace:
			return nil, &ParseError{Line: tok.Line, Column: tok.Column, Msg: "'{' without a node name"}

		case TokenError:
			return nil, &ParseError{Line: tok.Line, Column: tok.Column, Msg: tok.Value}

		case TokenIdentifier, TokenString:
			node, err := p.parseNode(tok)
			if err != nil {
				return nil, err
			}
			nodes = append(nodes, node)
		}
	}
}

// parseNode collects the words of one statement starting at first and
// either terminates it as a leaf or descends into its block.
func (p *Parser) parseNode(first Token) (*Node, error) {
	node := &Node{
		Keys:   []string{first.Value},
		Line:   first.Line,
		Column: first.Column,
	}
	for {
		tok := p.lex.Peek()
		switch tok.Type {
		case TokenIdentifier, TokenString:
			p.lex.Next()
			node.Keys = append(node.Keys, tok.Value)

		case TokenLBrace:
			p.lex.Next()
			children, err := p.parseBlock(&tok)
			if err != nil {
				return nil, err
			}
			node.Children = children
			return node, nil

		case TokenError:
			return nil, &ParseError{Line: tok.Line, Column: tok.Column, Msg: tok.Value}

		default:
			// Newline, ';', '}' or EOF end the leaf; the caller consumes them.
			node.IsLeaf = true
			return node, nil
		}
	}
}

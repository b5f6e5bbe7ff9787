package config

import (
	"fmt"
	"strings"
)

// Node represents a node in the configuration tree.
// It is either a leaf (a statement line) or a block (containing children in {}).
type Node struct {
	// Keys is the sequence of words forming this node's identity.
	// Examples:
	//   "interfaces" -> ["interfaces"]
	//   "ethernet eth0" -> ["ethernet", "eth0"]
	//   "description \"LAN side\"" -> ["description", "LAN side"]
	Keys []string

	// Children are the nodes within this block's braces.
	// nil for leaf nodes and for empty blocks.
	Children []*Node

	// IsLeaf is true when the node has no block body.
	IsLeaf bool

	// Line/Column where this node starts (for error reporting).
	Line   int
	Column int
}

// Name returns the first key of the node.
func (n *Node) Name() string {
	if len(n.Keys) == 0 {
		return ""
	}
	return n.Keys[0]
}

// KeyPath returns the full key path as a single string.
func (n *Node) KeyPath() string {
	return strings.Join(n.Keys, " ")
}

// FindChild returns the first child whose first key matches name.
func (n *Node) FindChild(name string) *Node {
	for _, child := range n.Children {
		if len(child.Keys) > 0 && child.Keys[0] == name {
			return child
		}
	}
	return nil
}

// ConfigTree is the root of a parsed configuration.
type ConfigTree struct {
	Children []*Node
}

// FindChild returns the first top-level child matching name.
func (t *ConfigTree) FindChild(name string) *Node {
	for _, child := range t.Children {
		if len(child.Keys) > 0 && child.Keys[0] == name {
			return child
		}
	}
	return nil
}

// Clone creates a deep copy of the config tree.
func (t *ConfigTree) Clone() *ConfigTree {
	if t == nil {
		return nil
	}
	return &ConfigTree{
		Children: cloneNodes(t.Children),
	}
}

func cloneNodes(nodes []*Node) []*Node {
	if nodes == nil {
		return nil
	}
	result := make([]*Node, len(nodes))
	for i, n := range nodes {
		result[i] = &Node{
			Keys:     append([]string(nil), n.Keys...),
			Children: cloneNodes(n.Children),
			IsLeaf:   n.IsLeaf,
			Line:     n.Line,
			Column:   n.Column,
		}
	}
	return result
}

// SetPath inserts a leaf at the given path, creating intermediate blocks
// as needed. Without a device schema there is no way to know which words
// name a container, so every word but the last two opens a block and the
// final pair ("address 10.0.0.1/24") forms the leaf. A single-word path
// becomes a single-word leaf.
func (t *ConfigTree) SetPath(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}

	leafStart := len(path) - 2
	if leafStart < 0 {
		leafStart = 0
	}

	current := &t.Children
	for _, word := range path[:leafStart] {
		var next *Node
		for _, n := range *current {
			if !n.IsLeaf && len(n.Keys) == 1 && n.Keys[0] == word {
				next = n
				break
			}
		}
		if next == nil {
			next = &Node{Keys: []string{word}}
			*current = append(*current, next)
		}
		current = &next.Children
	}

	leafKeys := path[leafStart:]
	for _, n := range *current {
		if n.IsLeaf && keysEqual(n.Keys, leafKeys) {
			return nil
		}
	}
	*current = append(*current, &Node{
		Keys:   append([]string(nil), leafKeys...),
		IsLeaf: true,
	})
	return nil
}

// keysEqual returns true if two key slices are identical.
func keysEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Format renders the tree as EdgeOS bracket configuration text.
func (t *ConfigTree) Format() string {
	var b strings.Builder
	formatNodes(&b, t.Children, 0)
	return b.String()
}

func formatNodes(b *strings.Builder, nodes []*Node, indent int) {
	prefix := strings.Repeat(IndentUnit, indent)
	for _, n := range nodes {
		keys := joinKeys(n.Keys, '"')
		if n.IsLeaf {
			fmt.Fprintf(b, "%s%s\n", prefix, keys)
		} else {
			fmt.Fprintf(b, "%s%s {\n", prefix, keys)
			formatNodes(b, n.Children, indent+1)
			fmt.Fprintf(b, "%s}\n", prefix)
		}
	}
}

// FormatSet renders the tree as flat "set" commands, one per leaf or
// empty block, in document order.
func (t *ConfigTree) FormatSet() string {
	var b strings.Builder
	for _, line := range t.SetLines() {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// SetLines returns the tree as flat "set" statements.
func (t *ConfigTree) SetLines() []string {
	var lines []string
	walkPaths(t.Children, nil, func(path []string, n *Node) {
		if n.IsLeaf || len(n.Children) == 0 {
			lines = append(lines, "set "+joinKeys(path, '\''))
		}
	})
	return lines
}

// walkPaths visits every node in pre-order with its full key path.
func walkPaths(nodes []*Node, prefix []string, fn func(path []string, n *Node)) {
	for _, n := range nodes {
		path := append(append([]string(nil), prefix...), n.Keys...)
		fn(path, n)
		walkPaths(n.Children, path, fn)
	}
}

// joinKeys joins words with spaces, quoting any word that would not
// survive re-tokenization as a single identifier.
func joinKeys(keys []string, quote byte) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = quoteWord(k, quote)
	}
	return strings.Join(parts, " ")
}

func quoteWord(w string, quote byte) string {
	if w != "" && !needsQuote(w) {
		return w
	}
	q := string(quote)
	return q + strings.ReplaceAll(w, q, `\`+q) + q
}

func needsQuote(w string) bool {
	for i := 0; i < len(w); i++ {
		if !isIdentChar(w[i]) {
			return true
		}
	}
	return false
}

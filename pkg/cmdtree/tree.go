// Package cmdtree defines the command trees of the interactive shell.
//
// The trees drive tab completion, ? help and command lookup. Paths under
// set and delete are completed from the device's configuration instead.
package cmdtree

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/psaab/edgecfg/pkg/config"
)

// Node defines a completion tree node with description, children, and optional dynamic values.
type Node struct {
	Desc      string
	Children  map[string]*Node
	DynamicFn func(cfg *config.ConfigTree) []string
}

// Candidate holds a command name and its description for display.
type Candidate struct {
	Name string
	Desc string
}

// OperationalTree defines tab completion for operational mode.
var OperationalTree = map[string]*Node{
	"configure": {Desc: "Enter configuration mode"},
	"show": {Desc: "Show information", Children: map[string]*Node{
		"configuration": {Desc: "Show active configuration", Children: map[string]*Node{
			"commands": {Desc: "Show configuration as set commands"},
		}, DynamicFn: topLevelNames},
		"system": {Desc: "Show system information", Children: map[string]*Node{
			"commit": {Desc: "Show commit history"},
		}},
	}},
	"compare": {Desc: "Compare active and saved configuration"},
	"save":    {Desc: "Save active configuration to the boot configuration"},
	"exit":    {Desc: "Exit the shell"},
	"quit":    {Desc: "Exit the shell"},
}

// ConfigTopLevel defines tab completion for configuration mode.
var ConfigTopLevel = map[string]*Node{
	"set":     {Desc: "Set a configuration value"},
	"delete":  {Desc: "Delete a configuration element"},
	"show":    {Desc: "Show pending statements"},
	"compare": {Desc: "Show changes pending commit"},
	"commit": {Desc: "Commit pending statements", Children: map[string]*Node{
		"check":   {Desc: "Validate without committing"},
		"comment": {Desc: "Add a comment to the commit"},
	}},
	"discard":  {Desc: "Drop pending statements"},
	"load":     {Desc: "Reconcile pending statements from a file"},
	"save":     {Desc: "Save active configuration"},
	"rollback": {Desc: "Roll back to a previous commit"},
	"run":      {Desc: "Run an operational command"},
	"exit":     {Desc: "Exit configuration mode"},
}

func topLevelNames(cfg *config.ConfigTree) []string {
	names := make([]string, 0, len(cfg.Children))
	for _, n := range cfg.Children {
		names = append(names, n.Keys[0])
	}
	return names
}

// KeysFromTree returns a sorted list of keys from a Node map.
func KeysFromTree(tree map[string]*Node) []string {
	keys := KeysOf(tree)
	sort.Strings(keys)
	return keys
}

// HelpCandidates returns Candidates from a tree's children for help display.
func HelpCandidates(tree map[string]*Node) []Candidate {
	candidates := make([]Candidate, 0, len(tree))
	for name, node := range tree {
		candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
	}
	return candidates
}

// CompleteFromTree walks the tree to find completion candidates for the given words and partial.
func CompleteFromTree(tree map[string]*Node, words []string, partial string, cfg *config.ConfigTree) []Candidate {
	current := tree
	var currentNode *Node
	for _, w := range words {
		node, ok := current[w]
		if !ok {
			return nil
		}
		currentNode = node
		if node.Children == nil {
			current = nil
			break
		}
		current = node.Children
	}

	var candidates []Candidate
	for name, node := range current {
		if strings.HasPrefix(name, partial) {
			candidates = append(candidates, Candidate{Name: name, Desc: node.Desc})
		}
	}
	if currentNode != nil && currentNode.DynamicFn != nil && cfg != nil {
		for _, name := range currentNode.DynamicFn(cfg) {
			if strings.HasPrefix(name, partial) {
				candidates = append(candidates, Candidate{Name: name, Desc: "(configured)"})
			}
		}
	}
	return candidates
}

// CompletePath returns the configured words that can follow path in cfg.
// Multi-word nodes contribute their first unmatched word.
func CompletePath(cfg *config.ConfigTree, path []string, partial string) []Candidate {
	if cfg == nil {
		return nil
	}
	seen := make(map[string]bool)
	var candidates []Candidate
	add := func(name string) {
		if !seen[name] && strings.HasPrefix(name, partial) {
			seen[name] = true
			candidates = append(candidates, Candidate{Name: name, Desc: "(configured)"})
		}
	}

	nodes := cfg.Children
	for len(path) > 0 {
		var next []*config.Node
		consumed := 0
		for _, n := range nodes {
			k := matchKeys(n.Keys, path)
			if k == 0 {
				continue
			}
			if k < len(n.Keys) {
				// Path ends inside this node's keys.
				if k == len(path) {
					add(n.Keys[k])
				}
				continue
			}
			next = append(next, n.Children...)
			consumed = k
		}
		if consumed == 0 {
			return candidates
		}
		nodes = next
		path = path[consumed:]
	}
	for _, n := range nodes {
		add(n.Keys[0])
	}
	return candidates
}

// matchKeys returns how many leading words of path equal n's keys, or 0
// when the first key differs.
func matchKeys(keys, path []string) int {
	i := 0
	for i < len(keys) && i < len(path) && keys[i] == path[i] {
		i++
	}
	return i
}

// WriteHelp prints aligned completion candidates to w.
// The entire output is built as a single string and written in one call
// so that readline's wrapWriter triggers only one Refresh cycle.
func WriteHelp(w io.Writer, candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Name < candidates[j].Name })
	maxWidth := 20
	for _, c := range candidates {
		if len(c.Name)+2 > maxWidth {
			maxWidth = len(c.Name) + 2
		}
	}
	var sb strings.Builder
	sb.WriteString("Possible completions:\n")
	for _, c := range candidates {
		if c.Desc != "" {
			fmt.Fprintf(&sb, "  %-*s %s\n", maxWidth, c.Name, c.Desc)
		} else {
			fmt.Fprintf(&sb, "  %s\n", c.Name)
		}
	}
	io.WriteString(w, sb.String())
}

// CommonPrefix returns the longest shared prefix among the given strings.
func CommonPrefix(items []string) string {
	if len(items) == 0 {
		return ""
	}
	prefix := items[0]
	for _, s := range items[1:] {
		for !strings.HasPrefix(s, prefix) {
			prefix = prefix[:len(prefix)-1]
			if prefix == "" {
				return ""
			}
		}
	}
	return prefix
}

// KeysOf returns an unsorted list of keys from a Node map.
func KeysOf(m map[string]*Node) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Names returns the candidate names.
func Names(candidates []Candidate) []string {
	names := make([]string, len(candidates))
	for i, c := range candidates {
		names[i] = c.Name
	}
	return names
}

package cli

import (
	"context"
	"strings"

	"github.com/psaab/edgecfg/pkg/cmdtree"
	"github.com/psaab/edgecfg/pkg/config"
)

// completer implements readline.AutoCompleter on top of the command
// trees. Paths after set and delete complete from the active config.
type completer struct {
	cli *CLI
	ctx context.Context
}

// Do returns the suffixes that complete the word under the cursor.
func (p *completer) Do(line []rune, pos int) ([][]rune, int) {
	text := string(line[:pos])
	words, partial := splitForCompletion(text)
	candidates := p.cli.candidates(p.ctx, words, partial)
	if len(candidates) == 0 {
		return nil, 0
	}

	names := cmdtree.Names(candidates)
	if len(names) > 1 {
		// Offer the shared prefix first when it extends the partial word.
		if prefix := cmdtree.CommonPrefix(names); len(prefix) > len(partial) {
			return [][]rune{[]rune(prefix[len(partial):])}, len(partial)
		}
	}
	out := make([][]rune, 0, len(names))
	for _, n := range names {
		suffix := n[len(partial):]
		if len(names) == 1 {
			suffix += " "
		}
		out = append(out, []rune(suffix))
	}
	return out, len(partial)
}

// splitForCompletion separates completed words from the word being typed.
func splitForCompletion(text string) ([]string, string) {
	words := strings.Fields(text)
	if len(words) == 0 || strings.HasSuffix(text, " ") {
		return words, ""
	}
	return words[:len(words)-1], words[len(words)-1]
}

// candidates returns completions for the current mode.
func (c *CLI) candidates(ctx context.Context, words []string, partial string) []cmdtree.Candidate {
	tree := cmdtree.OperationalTree
	if c.configMode {
		if len(words) > 0 && words[0] == "run" {
			words = words[1:]
		} else {
			tree = cmdtree.ConfigTopLevel
			if len(words) > 0 && (words[0] == "set" || words[0] == "delete") {
				return cmdtree.CompletePath(c.activeTree(ctx), words[1:], partial)
			}
		}
	}
	var cfg *config.ConfigTree
	if len(words) >= 2 && words[0] == "show" && words[1] == "configuration" {
		cfg = c.activeTree(ctx)
	}
	return cmdtree.CompleteFromTree(tree, words, partial, cfg)
}

// activeTree fetches the device configuration for completion. Errors
// leave the completion empty.
func (c *CLI) activeTree(ctx context.Context) *config.ConfigTree {
	live, err := c.dev.FetchConfig(ctx)
	if err != nil {
		return nil
	}
	tree, err := config.TreeFromSetLines(config.SplitLines(live))
	if err != nil {
		return nil
	}
	return tree
}

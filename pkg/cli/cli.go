// Package cli implements the EdgeOS-style interactive shell for edgecfg.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/psaab/edgecfg/pkg/cmdtree"
	"github.com/psaab/edgecfg/pkg/config"
	"github.com/psaab/edgecfg/pkg/device"
	"github.com/psaab/edgecfg/pkg/reconcile"
)

// historian is implemented by devices that keep a commit history.
type historian interface {
	History() []*device.HistoryEntry
	Rollback(n int) error
}

// CLI is the interactive command-line interface.
type CLI struct {
	rl       *readline.Instance
	dev      device.Device
	out      io.Writer
	hostname string
	username string

	configMode bool
	pending    []string
}

// New creates a new CLI operating on dev.
func New(dev device.Device, hostname string) *CLI {
	if hostname == "" {
		hostname = "edgeos"
	}
	username := os.Getenv("USER")
	if username == "" {
		username = "root"
	}

	return &CLI{
		dev:      dev,
		out:      os.Stdout,
		hostname: hostname,
		username: username,
	}
}

// Run starts the interactive CLI loop.
func (c *CLI) Run(ctx context.Context) error {
	var err error
	c.rl, err = readline.NewEx(&readline.Config{
		Prompt:          c.prompt(),
		HistoryFile:     historyFile(),
		AutoComplete:    &completer{cli: c, ctx: ctx},
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline init: %w", err)
	}
	defer c.rl.Close()
	c.out = c.rl.Stdout()

	fmt.Fprintln(c.out, "edgecfg shell - EdgeOS configuration")
	fmt.Fprintln(c.out, "Type '?' for help")
	fmt.Fprintln(c.out)

	for {
		line, err := c.rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			if err == io.EOF {
				break
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := c.Execute(ctx, line); err != nil {
			if err == errExit {
				return nil
			}
			fmt.Fprintf(c.rl.Stderr(), "error: %v\n", err)
		}
		c.rl.SetPrompt(c.prompt())
	}
	return nil
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".edgecfg_history")
}

var errExit = errors.New("exit")

// Execute runs one command line. It returns errExit when the shell
// should terminate.
func (c *CLI) Execute(ctx context.Context, line string) error {
	if c.configMode {
		return c.dispatchConfig(ctx, line)
	}
	return c.dispatchOperational(ctx, line)
}

func (c *CLI) dispatchOperational(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "configure":
		c.configMode = true
		return nil

	case "show":
		return c.handleShow(ctx, parts[1:])

	case "compare":
		return c.handleCompareSaved(ctx)

	case "save":
		return c.handleSave(ctx)

	case "quit", "exit":
		return errExit

	case "?", "help":
		cmdtree.WriteHelp(c.out, cmdtree.HelpCandidates(cmdtree.OperationalTree))
		return nil

	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
}

func (c *CLI) dispatchConfig(ctx context.Context, line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	switch parts[0] {
	case "set", "delete":
		if _, _, err := config.ParseCommand(line); err != nil {
			return err
		}
		c.pending = append(c.pending, strings.TrimSpace(line))
		return nil

	case "show":
		if len(c.pending) == 0 {
			fmt.Fprintln(c.out, "No pending statements")
			return nil
		}
		for _, s := range c.pending {
			fmt.Fprintln(c.out, s)
		}
		return nil

	case "compare":
		return c.handlePush(ctx, false, "")

	case "commit":
		return c.handleCommit(ctx, parts[1:])

	case "discard":
		c.pending = nil
		fmt.Fprintln(c.out, "Changes have been discarded")
		return nil

	case "load":
		if len(parts) < 2 {
			return fmt.Errorf("load: missing file name")
		}
		return c.handleLoad(ctx, parts[1])

	case "save":
		return c.handleSave(ctx)

	case "rollback":
		return c.handleRollback(parts[1:])

	case "run":
		if len(parts) < 2 {
			return fmt.Errorf("run: missing command")
		}
		return c.dispatchOperational(ctx, strings.Join(parts[1:], " "))

	case "exit", "quit":
		if len(c.pending) > 0 {
			if len(parts) < 2 || parts[1] != "discard" {
				return fmt.Errorf("cannot exit: configuration has uncommitted changes, use 'exit discard'")
			}
			c.pending = nil
		}
		c.configMode = false
		return nil

	case "?", "help":
		cmdtree.WriteHelp(c.out, cmdtree.HelpCandidates(cmdtree.ConfigTopLevel))
		return nil

	default:
		return fmt.Errorf("unknown command: %s (in configuration mode)", parts[0])
	}
}

func (c *CLI) handleShow(ctx context.Context, args []string) error {
	if len(args) == 0 {
		cmdtree.WriteHelp(c.out, cmdtree.HelpCandidates(cmdtree.OperationalTree["show"].Children))
		return nil
	}

	switch args[0] {
	case "configuration":
		live, err := c.dev.FetchConfig(ctx)
		if err != nil {
			return err
		}
		rest := args[1:]
		if len(rest) > 0 && rest[0] == "commands" {
			fmt.Fprintln(c.out, live)
			return nil
		}
		tree, err := config.TreeFromSetLines(config.SplitLines(live))
		if err != nil {
			return err
		}
		if len(rest) > 0 {
			node := tree.FindChild(rest[0])
			if node == nil {
				return fmt.Errorf("configuration path not found: %s", rest[0])
			}
			tree = &config.ConfigTree{Children: []*config.Node{node}}
		}
		fmt.Fprint(c.out, tree.Format())
		return nil

	case "system":
		if len(args) < 2 || args[1] != "commit" {
			return fmt.Errorf("show system: expected 'commit'")
		}
		h, ok := c.dev.(historian)
		if !ok {
			return fmt.Errorf("device does not keep a commit history")
		}
		for i, e := range h.History() {
			fmt.Fprintf(c.out, "%-3d %s by %s", i+1, e.Timestamp.Format("2006-01-02 15:04:05"), c.username)
			if e.Comment != "" {
				fmt.Fprintf(c.out, "\n    %s", e.Comment)
			}
			fmt.Fprintln(c.out)
		}
		return nil

	default:
		return fmt.Errorf("unknown show target: %s", args[0])
	}
}

// handleCommit parses "commit [check] [comment <text>]".
func (c *CLI) handleCommit(ctx context.Context, args []string) error {
	check := false
	comment := ""
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "check":
			check = true
		case "comment":
			comment = strings.Trim(strings.Join(args[i+1:], " "), `"'`)
			i = len(args)
		default:
			return fmt.Errorf("commit: unknown option %q", args[i])
		}
	}
	if len(c.pending) == 0 {
		fmt.Fprintln(c.out, "No configuration changes to commit")
		return nil
	}
	if err := c.handlePush(ctx, !check, comment); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	if check {
		fmt.Fprintln(c.out, "configuration check succeeds")
		return nil
	}
	c.pending = nil
	fmt.Fprintln(c.out, "commit complete")
	return nil
}

func (c *CLI) handlePush(ctx context.Context, commit bool, comment string) error {
	if len(c.pending) == 0 {
		fmt.Fprintln(c.out, "No pending statements")
		return nil
	}
	out, err := c.dev.PushCommands(ctx, c.pending, commit, comment)
	if out != "" {
		fmt.Fprint(c.out, out)
	}
	return err
}

// handleLoad reconciles a configuration file against the device and
// queues the resulting statements.
func (c *CLI) handleLoad(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load: %w", err)
	}
	candidate, err := config.Normalize(string(data))
	if err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	live, err := c.dev.FetchConfig(ctx)
	if err != nil {
		return err
	}
	res := reconcile.Reconcile(candidate, live)
	c.pending = append(c.pending, res.Updates...)

	fmt.Fprintf(c.out, "Loaded %d statement(s) from %s\n", len(res.Updates), path)
	if len(res.Unmanaged) > 0 {
		fmt.Fprintf(c.out, "warning: %d unmanaged statement(s) on device:\n", len(res.Unmanaged))
		for _, s := range res.Unmanaged {
			fmt.Fprintf(c.out, "  %s\n", s)
		}
	}
	if len(res.Invalid) > 0 {
		fmt.Fprintf(c.out, "warning: %d invalid line(s) ignored:\n", len(res.Invalid))
		for _, s := range res.Invalid {
			fmt.Fprintf(c.out, "  %s\n", s)
		}
	}
	return nil
}

func (c *CLI) handleCompareSaved(ctx context.Context) error {
	out, err := c.dev.CompareSaved(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(c.out, strings.TrimRight(out, "\n"))
	return nil
}

func (c *CLI) handleSave(ctx context.Context) error {
	if err := c.dev.SaveConfig(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Saving configuration... Done")
	return nil
}

func (c *CLI) handleRollback(args []string) error {
	h, ok := c.dev.(historian)
	if !ok {
		return fmt.Errorf("device does not keep a commit history")
	}
	if len(args) < 1 {
		return fmt.Errorf("rollback: missing revision number")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return fmt.Errorf("rollback: invalid revision %q", args[0])
	}
	if err := h.Rollback(n); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "configuration rolled back")
	return nil
}

func (c *CLI) prompt() string {
	if c.configMode {
		return fmt.Sprintf("[edit]\n%s@%s# ", c.username, c.hostname)
	}
	return fmt.Sprintf("%s@%s:~$ ", c.username, c.hostname)
}

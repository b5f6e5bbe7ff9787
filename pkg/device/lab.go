package device

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/psaab/edgecfg/pkg/config"
)

// Lab is an in-memory device holding an active and a saved
// configuration. It applies statements the way EdgeOS does at the path
// level, except that every node is treated as multi-valued: setting a new
// value does not replace an old one.
type Lab struct {
	mu       sync.RWMutex
	active   [][]string
	saved    [][]string
	history  *History
	filePath string
}

// NewLab creates an empty lab device. When filePath is set, SaveConfig
// writes the configuration there in bracket format and Load reads it back.
func NewLab(filePath string) *Lab {
	return &Lab{
		history:  NewHistory(50),
		filePath: filePath,
	}
}

// Load reads the saved configuration from disk and makes it active.
// A missing file leaves the device empty.
func (l *Lab) Load() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.filePath == "" {
		return nil
	}
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	lines, err := config.Normalize(string(data))
	if err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	var paths [][]string
	for _, line := range lines {
		verb, path, err := config.ParseCommand(line)
		if err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
		paths = applyPath(paths, verb, path)
	}
	l.active = paths
	l.saved = clonePaths(paths)
	return nil
}

// FetchConfig implements Device.
func (l *Lab) FetchConfig(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return strings.Join(formatPaths(l.active), "\n"), nil
}

// PushCommands implements Device. Statements are applied to a working
// copy; the copy replaces the active configuration only when commit is
// set. The output lists the resulting changes.
func (l *Lab) PushCommands(ctx context.Context, commands []string, commit bool, comment string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	working := clonePaths(l.active)
	for _, cmd := range commands {
		verb, path, err := config.ParseCommand(cmd)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidCommand, cmd, err)
		}
		working = applyPath(working, verb, path)
	}

	out := compareLines(formatPaths(l.active), formatPaths(working))
	if !commit {
		return out, nil
	}

	l.history.Push(&HistoryEntry{
		Lines:     formatPaths(l.active),
		Timestamp: time.Now(),
		Comment:   comment,
	})
	l.active = working
	return out, nil
}

// SaveConfig implements Device.
func (l *Lab) SaveConfig(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.saved = clonePaths(l.active)
	if l.filePath == "" {
		return nil
	}
	if err := os.WriteFile(l.filePath, []byte(treeOf(l.active).Format()), 0644); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	return nil
}

// CompareSaved implements Device.
func (l *Lab) CompareSaved(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	l.mu.RLock()
	defer l.mu.RUnlock()

	diff := compareLines(formatPaths(l.saved), formatPaths(l.active))
	if diff == "" {
		return CompareSavedClean, nil
	}
	return diff + CompareSavedClean, nil
}

// Rollback re-commits the configuration that was active n commits ago
// (n=1 is the configuration before the last commit).
func (l *Lab) Rollback(n int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, err := l.history.Get(n - 1)
	if err != nil {
		return err
	}
	var paths [][]string
	for _, line := range entry.Lines {
		_, path, err := config.ParseCommand(line)
		if err != nil {
			return fmt.Errorf("rollback %d: %w", n, err)
		}
		paths = append(paths, path)
	}
	l.history.Push(&HistoryEntry{
		Lines:     formatPaths(l.active),
		Timestamp: time.Now(),
		Comment:   fmt.Sprintf("rollback %d", n),
	})
	l.active = paths
	return nil
}

// History returns the commit history, most recent first.
func (l *Lab) History() []*HistoryEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.history.List()
}

// ShowConfiguration returns the active configuration in bracket format.
func (l *Lab) ShowConfiguration() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return treeOf(l.active).Format()
}

// applyPath applies one statement to paths. "set" adds the path unless
// present; "delete" removes the path and everything beneath it.
func applyPath(paths [][]string, verb string, path []string) [][]string {
	switch verb {
	case "set":
		for _, p := range paths {
			if keysEqual(p, path) {
				return paths
			}
		}
		return append(paths, append([]string(nil), path...))
	case "delete":
		n := 0
		for _, p := range paths {
			if !keysMatch(p, path) {
				paths[n] = p
				n++
			}
		}
		return paths[:n]
	}
	return paths
}

// keysMatch returns true if nodeKeys starts with all elements of targetKeys.
func keysMatch(nodeKeys, targetKeys []string) bool {
	if len(targetKeys) > len(nodeKeys) {
		return false
	}
	for i, tk := range targetKeys {
		if nodeKeys[i] != tk {
			return false
		}
	}
	return true
}

func keysEqual(a, b []string) bool {
	return len(a) == len(b) && keysMatch(a, b)
}

func clonePaths(paths [][]string) [][]string {
	out := make([][]string, len(paths))
	for i, p := range paths {
		out[i] = append([]string(nil), p...)
	}
	return out
}

func formatPaths(paths [][]string) []string {
	lines := make([]string, len(paths))
	for i, p := range paths {
		lines[i] = config.FormatCommand("set", p)
	}
	return lines
}

func treeOf(paths [][]string) *config.ConfigTree {
	tree := &config.ConfigTree{}
	for _, p := range paths {
		tree.SetPath(p)
	}
	return tree
}

// compareLines returns a diff between two statement lists, with "-" for
// removed lines and "+" for added lines. Empty when they match.
func compareLines(oldLines, newLines []string) string {
	oldMap := make(map[string]bool, len(oldLines))
	for _, line := range oldLines {
		oldMap[line] = true
	}
	newMap := make(map[string]bool, len(newLines))
	for _, line := range newLines {
		newMap[line] = true
	}

	var b strings.Builder
	for _, line := range oldLines {
		if !newMap[line] {
			fmt.Fprintf(&b, "- %s\n", line)
		}
	}
	for _, line := range newLines {
		if !oldMap[line] {
			fmt.Fprintf(&b, "+ %s\n", line)
		}
	}
	return b.String()
}

// Package task loads the description of one configuration run.
package task

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/psaab/edgecfg/pkg/backup"
	"github.com/psaab/edgecfg/pkg/reconcile"
)

const (
	MatchLine = "line" // diff the candidate against the active config
	MatchNone = "none" // ignore the active config and load everything

	DefaultComment = "configured by edgecfg"
)

// Task describes the desired configuration and how to apply it.
type Task struct {
	// Lines are inline statements. Mutually exclusive with Src.
	Lines []string `yaml:"lines" toml:"lines" json:"lines,omitempty"`

	// Src is a path to a configuration file in bracket or set format.
	// Relative paths resolve against the task file's directory.
	Src string `yaml:"src" toml:"src" json:"src,omitempty"`

	// SrcText is configuration text supplied inline, as the API does.
	// It cannot be combined with Lines or Src.
	SrcText string `yaml:"-" toml:"-" json:"src_text,omitempty"`

	Match   string `yaml:"match" toml:"match" json:"match,omitempty"`
	Comment string `yaml:"comment" toml:"comment" json:"comment,omitempty"`

	// Config, when set, is used as the active configuration instead of
	// fetching it from the device.
	Config string `yaml:"config" toml:"config" json:"config,omitempty"`

	Backup          bool           `yaml:"backup" toml:"backup" json:"backup,omitempty"`
	BackupOptions   backup.Options `yaml:"backup_options" toml:"backup_options" json:"backup_options,omitempty"`
	Save            bool           `yaml:"save" toml:"save" json:"save,omitempty"`
	DeleteUnmanaged bool           `yaml:"delete_unmanaged" toml:"delete_unmanaged" json:"delete_unmanaged,omitempty"`

	// Check computes and validates the changes but discards them.
	Check bool `yaml:"check" toml:"check" json:"check,omitempty"`

	baseDir string
}

// Load reads a task file. The format follows the extension: .toml for
// TOML, anything else is parsed as YAML.
func Load(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("task load failed (%s): %w", path, err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		format = "toml"
	}
	t, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("task parse failed (%s): %w", path, err)
	}
	t.baseDir = filepath.Dir(path)
	return t, nil
}

// Parse decodes a task in the given format ("yaml" or "toml"), applies
// defaults and validates it.
func Parse(data []byte, format string) (*Task, error) {
	var t Task
	switch format {
	case "toml":
		md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&t)
		if err != nil {
			return nil, err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown field %q", undecoded[0].String())
		}
	case "yaml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown task format %q", format)
	}
	t.SetDefaults()
	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// SetDefaults fills in unset options.
func (t *Task) SetDefaults() {
	if t.Match == "" {
		t.Match = MatchLine
	}
	if t.Comment == "" {
		t.Comment = DefaultComment
	}
}

// Validate checks option values and the lines/src exclusivity.
func (t *Task) Validate() error {
	switch t.Match {
	case MatchLine, MatchNone:
	default:
		return fmt.Errorf("match: value must be one of: %s, %s, got: %s", MatchLine, MatchNone, t.Match)
	}
	n := 0
	for _, set := range []bool{len(t.Lines) > 0, t.Src != "", t.SrcText != ""} {
		if set {
			n++
		}
	}
	if n > 1 {
		return reconcile.ErrMutuallyExclusive
	}
	return nil
}

// HasCandidate reports whether the task carries desired configuration.
// A task without one may still back up or save the device.
func (t *Task) HasCandidate() bool {
	return len(t.Lines) > 0 || t.Src != "" || t.SrcText != ""
}

// Source reads Src if needed and returns the candidate input.
func (t *Task) Source() (reconcile.Source, error) {
	if t.SrcText != "" {
		return reconcile.Source{Src: t.SrcText}, nil
	}
	if t.Src == "" {
		return reconcile.Source{Lines: t.Lines}, nil
	}
	path := t.Src
	if !filepath.IsAbs(path) && t.baseDir != "" {
		path = filepath.Join(t.baseDir, path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return reconcile.Source{}, fmt.Errorf("read src: %w", err)
	}
	return reconcile.Source{Src: string(data)}, nil
}

// Package runner applies a task to a device: it backs up, reconciles,
// pushes the resulting statements and optionally saves.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/psaab/edgecfg/pkg/backup"
	"github.com/psaab/edgecfg/pkg/device"
	"github.com/psaab/edgecfg/pkg/metrics"
	"github.com/psaab/edgecfg/pkg/reconcile"
	"github.com/psaab/edgecfg/pkg/task"
)

const (
	WarnUnmanaged = "Some configuration commands were unmanaged, review unmanaged list"
	WarnInvalid   = "Some configuration commands were invalid, review invalid list"
)

// Report is the outcome of one run.
type Report struct {
	RunID      string   `json:"run_id" yaml:"run_id"`
	Changed    bool     `json:"changed" yaml:"changed"`
	Commands   []string `json:"commands" yaml:"commands"`
	Unmanaged  []string `json:"unmanaged" yaml:"unmanaged"`
	Invalid    []string `json:"invalid" yaml:"invalid"`
	Warnings   []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	BackupPath string   `json:"backup_path,omitempty" yaml:"backup_path,omitempty"`
	Output     string   `json:"output,omitempty" yaml:"output,omitempty"`
}

// Options configures a Runner.
type Options struct {
	Metrics  *metrics.Metrics
	Journal  *Journal
	Hostname string // used to name backups; defaults to "edgeos"
}

// Runner executes tasks against one device.
type Runner struct {
	dev      device.Device
	metrics  *metrics.Metrics
	journal  *Journal
	hostname string
	now      func() time.Time
}

// New creates a Runner for dev.
func New(dev device.Device, opts Options) *Runner {
	if opts.Hostname == "" {
		opts.Hostname = "edgeos"
	}
	return &Runner{
		dev:      dev,
		metrics:  opts.Metrics,
		journal:  opts.Journal,
		hostname: opts.Hostname,
		now:      time.Now,
	}
}

// Device returns the device the runner operates on.
func (r *Runner) Device() device.Device { return r.dev }

// Run executes t. The candidate is built before the device is touched,
// so a malformed source aborts the run without side effects. On a push
// failure the returned report still carries the computed statements.
func (r *Runner) Run(ctx context.Context, t *task.Task) (*Report, error) {
	start := r.now()
	report := &Report{RunID: uuid.NewString()}
	log := slog.With("run_id", report.RunID)

	err := r.run(ctx, t, report, log)

	result := metrics.ResultUnchanged
	switch {
	case err != nil:
		result = metrics.ResultFailed
		log.Warn("configuration run failed", "err", err)
	case report.Changed:
		result = metrics.ResultChanged
	}
	r.metrics.ObserveRun(result, t.Check, r.now().Sub(start))

	entry := Entry{Time: start, Report: report}
	if err != nil {
		entry.Error = err.Error()
	}
	r.journal.Add(entry)

	log.Info("configuration run finished",
		"result", result,
		"check", t.Check,
		"commands", len(report.Commands),
		"unmanaged", len(report.Unmanaged),
		"invalid", len(report.Invalid))
	return report, err
}

func (r *Runner) run(ctx context.Context, t *task.Task, report *Report, log *slog.Logger) error {
	if err := t.Validate(); err != nil {
		return err
	}

	var candidate []string
	if t.HasCandidate() {
		src, err := t.Source()
		if err != nil {
			return err
		}
		candidate, err = reconcile.BuildCandidate(src)
		if err != nil {
			return fmt.Errorf("candidate: %w", err)
		}
	}

	var fetched string
	haveFetched := false
	fetch := func() (string, error) {
		if haveFetched {
			return fetched, nil
		}
		out, err := r.dev.FetchConfig(ctx)
		if err != nil {
			return "", fmt.Errorf("fetch config: %w", err)
		}
		fetched, haveFetched = out, true
		return fetched, nil
	}

	if t.Backup {
		contents, err := fetch()
		if err != nil {
			return err
		}
		path, err := backup.Write(contents, r.hostname, t.BackupOptions, r.now())
		if err != nil {
			return err
		}
		report.BackupPath = path
		log.Info("configuration backed up", "path", path)
	}

	if t.HasCandidate() {
		if err := r.apply(ctx, t, candidate, fetch, report, log); err != nil {
			return err
		}
	}

	if t.Save {
		if err := r.save(ctx, t, report, log); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) apply(ctx context.Context, t *task.Task, candidate []string, fetch func() (string, error), report *Report, log *slog.Logger) error {
	live := t.Config
	switch {
	case t.Match == task.MatchNone:
		live = ""
	case live == "":
		var err error
		if live, err = fetch(); err != nil {
			return err
		}
	}

	res := reconcile.Reconcile(candidate, live)
	updates := res.Updates
	if t.DeleteUnmanaged && len(res.Unmanaged) > 0 {
		updates = reconcile.PromoteUnmanaged(updates, res.Unmanaged)
	}
	r.metrics.ObserveStatements(len(updates), len(res.Unmanaged), len(res.Invalid))

	report.Commands = updates
	report.Unmanaged = res.Unmanaged
	report.Invalid = res.Invalid
	if len(res.Unmanaged) > 0 {
		report.Warnings = append(report.Warnings, WarnUnmanaged)
	}
	if len(res.Invalid) > 0 {
		report.Warnings = append(report.Warnings, WarnInvalid)
	}

	if len(updates) == 0 {
		return nil
	}

	log.Debug("pushing configuration", "commands", len(updates), "commit", !t.Check)
	out, err := r.dev.PushCommands(ctx, updates, !t.Check, t.Comment)
	report.Output = out
	if err != nil {
		r.metrics.PushFailed()
		return fmt.Errorf("push config: %w", err)
	}
	report.Changed = true
	return nil
}

func (r *Runner) save(ctx context.Context, t *task.Task, report *Report, log *slog.Logger) error {
	diff, err := r.dev.CompareSaved(ctx)
	if err != nil {
		return fmt.Errorf("compare saved: %w", err)
	}
	if diff == device.CompareSavedClean {
		return nil
	}
	report.Changed = true
	if t.Check {
		log.Info("saved configuration differs, skipping save in check mode")
		return nil
	}
	if err := r.dev.SaveConfig(ctx); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	log.Info("configuration saved")
	return nil
}

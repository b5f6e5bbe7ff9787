package runner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/psaab/edgecfg/pkg/backup"
	"github.com/psaab/edgecfg/pkg/config"
	"github.com/psaab/edgecfg/pkg/device"
	"github.com/psaab/edgecfg/pkg/metrics"
	"github.com/psaab/edgecfg/pkg/task"
)

func newLab(t *testing.T, lines ...string) *device.Lab {
	t.Helper()
	lab := device.NewLab(filepath.Join(t.TempDir(), "config.boot"))
	if len(lines) > 0 {
		if _, err := lab.PushCommands(context.Background(), lines, true, "seed"); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return lab
}

func newTask(lines ...string) *task.Task {
	tk := &task.Task{Lines: lines}
	tk.SetDefaults()
	return tk
}

func TestRunApply(t *testing.T) {
	ctx := context.Background()
	lab := newLab(t,
		"set system host-name ubnt",
		"set service dhcp-server shared-network-name LAN authoritative enable",
		"set service ssh port 22",
	)
	r := New(lab, Options{Metrics: metrics.New(prometheus.NewRegistry())})

	tk := newTask(
		"set system host-name gw1",
		"set service lldp",
		"delete service dhcp-server",
	)
	rep, err := r.Run(ctx, tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Changed {
		t.Error("expected changed")
	}
	if rep.RunID == "" {
		t.Error("missing run id")
	}
	wantCmds := []string{
		"delete service dhcp-server",
		"set system host-name gw1",
		"set service lldp",
	}
	if !reflect.DeepEqual(rep.Commands, wantCmds) {
		t.Errorf("commands = %q, want %q", rep.Commands, wantCmds)
	}
	// The old host name is replaced by a pending update, so only the
	// ssh port is reported.
	if !reflect.DeepEqual(rep.Unmanaged, []string{"set service ssh port 22"}) {
		t.Errorf("unmanaged = %q", rep.Unmanaged)
	}
	if !reflect.DeepEqual(rep.Warnings, []string{WarnUnmanaged}) {
		t.Errorf("warnings = %q", rep.Warnings)
	}

	live, _ := lab.FetchConfig(ctx)
	if strings.Contains(live, "dhcp-server") || !strings.Contains(live, "set service lldp") {
		t.Errorf("device not updated:\n%s", live)
	}
	if hist := lab.History(); hist[0].Comment != task.DefaultComment {
		t.Errorf("commit comment = %q", hist[0].Comment)
	}
}

func TestRunIdempotent(t *testing.T) {
	ctx := context.Background()
	lab := newLab(t, "set system host-name ubnt")
	r := New(lab, Options{})
	tk := newTask("set system host-name ubnt", "set service lldp")

	if rep, err := r.Run(ctx, tk); err != nil || !rep.Changed {
		t.Fatalf("first Run: changed=%v err=%v", rep.Changed, err)
	}
	rep, err := r.Run(ctx, tk)
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if rep.Changed || len(rep.Commands) != 0 {
		t.Errorf("second run changed=%v commands=%q", rep.Changed, rep.Commands)
	}
}

func TestRunCheckMode(t *testing.T) {
	ctx := context.Background()
	lab := newLab(t, "set system host-name ubnt")
	before, _ := lab.FetchConfig(ctx)

	tk := newTask("set service lldp")
	tk.Check = true
	rep, err := New(lab, Options{}).Run(ctx, tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Changed || !strings.Contains(rep.Output, "+ set service lldp") {
		t.Errorf("report = %+v", rep)
	}
	after, _ := lab.FetchConfig(ctx)
	if after != before {
		t.Errorf("check mode modified device:\n%s", after)
	}
}

func TestRunDeleteUnmanaged(t *testing.T) {
	ctx := context.Background()
	lab := newLab(t,
		"set system host-name ubnt",
		"set service ssh port 22",
	)
	tk := newTask("set system host-name ubnt")
	tk.DeleteUnmanaged = true

	rep, err := New(lab, Options{}).Run(ctx, tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(rep.Commands, []string{"delete service ssh port 22"}) {
		t.Errorf("commands = %q", rep.Commands)
	}
	live, _ := lab.FetchConfig(ctx)
	if live != "set system host-name ubnt" {
		t.Errorf("live =\n%s", live)
	}
}

func TestRunInvalidWarning(t *testing.T) {
	lab := newLab(t, "set system host-name ubnt")
	tk := newTask("set system host-name ubnt", "show interfaces")

	rep, err := New(lab, Options{}).Run(context.Background(), tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Changed {
		t.Error("invalid lines alone must not change the device")
	}
	if !reflect.DeepEqual(rep.Invalid, []string{"show interfaces"}) {
		t.Errorf("invalid = %q", rep.Invalid)
	}
	if !reflect.DeepEqual(rep.Warnings, []string{WarnInvalid}) {
		t.Errorf("warnings = %q", rep.Warnings)
	}
}

func TestRunMatchNone(t *testing.T) {
	lab := newLab(t, "set service lldp")
	tk := newTask("set service lldp")
	tk.Match = task.MatchNone

	rep, err := New(lab, Options{}).Run(context.Background(), tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !reflect.DeepEqual(rep.Commands, []string{"set service lldp"}) {
		t.Errorf("commands = %q", rep.Commands)
	}
	if len(rep.Unmanaged) != 0 {
		t.Errorf("unmanaged = %q", rep.Unmanaged)
	}
}

func TestRunConfigOverride(t *testing.T) {
	lab := newLab(t)
	tk := newTask("set service lldp")
	tk.Config = "set service lldp\nset service ssh port 22"

	rep, err := New(lab, Options{}).Run(context.Background(), tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(rep.Commands) != 0 || rep.Changed {
		t.Errorf("report = %+v", rep)
	}
	if !reflect.DeepEqual(rep.Unmanaged, []string{"set service ssh port 22"}) {
		t.Errorf("unmanaged = %q", rep.Unmanaged)
	}
}

func TestRunBackup(t *testing.T) {
	lab := newLab(t, "set system host-name ubnt")
	dir := t.TempDir()
	tk := newTask("set service lldp")
	tk.Backup = true
	tk.BackupOptions = backup.Options{DirPath: dir, Filename: "gw1.cfg"}

	rep, err := New(lab, Options{Hostname: "gw1"}).Run(context.Background(), tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.BackupPath != filepath.Join(dir, "gw1.cfg") {
		t.Errorf("backup path = %q", rep.BackupPath)
	}
	data, err := os.ReadFile(rep.BackupPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "set system host-name ubnt" {
		t.Errorf("backup contents = %q", data)
	}
}

func TestRunParseErrorBeforeBackup(t *testing.T) {
	lab := newLab(t, "set system host-name ubnt")
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.cfg")
	os.WriteFile(src, []byte("system {\n    host-name gw1\n"), 0644)

	tk := &task.Task{Src: src, Backup: true, BackupOptions: backup.Options{DirPath: filepath.Join(dir, "backups")}}
	tk.SetDefaults()

	_, err := New(lab, Options{}).Run(context.Background(), tk)
	var pe *config.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "backups")); !os.IsNotExist(err) {
		t.Error("backup written despite parse error")
	}
}

func TestRunSave(t *testing.T) {
	ctx := context.Background()
	lab := newLab(t)
	tk := newTask("set service lldp")
	tk.Save = true

	r := New(lab, Options{})
	rep, err := r.Run(ctx, tk)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !rep.Changed {
		t.Error("expected changed")
	}
	diff, _ := lab.CompareSaved(ctx)
	if diff != device.CompareSavedClean {
		t.Errorf("saved config differs after save:\n%s", diff)
	}

	// Nothing to push and nothing unsaved.
	rep, err = r.Run(ctx, tk)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Changed {
		t.Error("expected unchanged on second run")
	}
}

func TestRunSaveCheckMode(t *testing.T) {
	ctx := context.Background()
	lab := newLab(t, "set service lldp")
	tk := newTask()
	tk.Save = true
	tk.Check = true

	rep, err := New(lab, Options{}).Run(ctx, tk)
	if err != nil {
		t.Fatal(err)
	}
	if !rep.Changed {
		t.Error("unsaved changes should report changed")
	}
	if diff, _ := lab.CompareSaved(ctx); diff == device.CompareSavedClean {
		t.Error("check mode saved the configuration")
	}
}

type failingDevice struct {
	device.Device
	err error
}

func (f *failingDevice) FetchConfig(context.Context) (string, error) { return "", nil }

func (f *failingDevice) PushCommands(context.Context, []string, bool, string) (string, error) {
	return "", f.err
}

func TestRunPushFailure(t *testing.T) {
	pushErr := errors.New("commit failed")
	dev := &failingDevice{err: pushErr}
	tk := newTask("set service lldp")

	rep, err := New(dev, Options{Metrics: metrics.New(prometheus.NewRegistry())}).Run(context.Background(), tk)
	if !errors.Is(err, pushErr) {
		t.Fatalf("err = %v", err)
	}
	if rep.Changed {
		t.Error("failed push must not report changed")
	}
	if !reflect.DeepEqual(rep.Commands, []string{"set service lldp"}) {
		t.Errorf("commands = %q", rep.Commands)
	}
}

func TestRunValidation(t *testing.T) {
	tk := &task.Task{Lines: []string{"set a"}, Src: "x.cfg"}
	tk.SetDefaults()
	if _, err := New(newLab(t), Options{}).Run(context.Background(), tk); err == nil {
		t.Fatal("expected mutually exclusive error")
	}
}

func TestRunJournal(t *testing.T) {
	j := NewJournal(4)
	sub := j.Subscribe(1)
	defer sub.Close()

	r := New(newLab(t), Options{Journal: j})
	rep, err := r.Run(context.Background(), newTask("set service lldp"))
	if err != nil {
		t.Fatal(err)
	}

	got := j.Latest(10)
	if len(got) != 1 || got[0].Report.RunID != rep.RunID || got[0].Error != "" {
		t.Fatalf("journal = %+v", got)
	}
	select {
	case e := <-sub.C:
		if e.Report != rep {
			t.Error("subscriber got a different report")
		}
	default:
		t.Error("subscriber not notified")
	}
}

func TestJournalWraps(t *testing.T) {
	j := NewJournal(2)
	for _, id := range []string{"a", "b", "c"} {
		j.Add(Entry{Report: &Report{RunID: id}})
	}
	got := j.Latest(5)
	if len(got) != 2 || got[0].Report.RunID != "c" || got[1].Report.RunID != "b" {
		t.Errorf("Latest = %+v", got)
	}
	if j.Len() != 2 {
		t.Errorf("Len = %d", j.Len())
	}
	if j.Latest(0) != nil {
		t.Error("Latest(0) should be nil")
	}
}

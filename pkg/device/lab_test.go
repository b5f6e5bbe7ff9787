package device

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestLab(t *testing.T, lines ...string) *Lab {
	t.Helper()
	lab := NewLab(filepath.Join(t.TempDir(), "config.boot"))
	if len(lines) > 0 {
		if _, err := lab.PushCommands(context.Background(), lines, true, "seed"); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	return lab
}

func TestLabPushCommit(t *testing.T) {
	ctx := context.Background()
	lab := newTestLab(t,
		"set interfaces ethernet eth0 address dhcp",
		"set service dhcp-server shared-network-name LAN authoritative enable",
		"set service dhcp-server shared-network-name LAN subnet 192.168.1.0/24",
		"set system host-name ubnt",
	)

	out, err := lab.PushCommands(ctx, []string{
		"delete service dhcp-server",
		"set service lldp",
	}, true, "test")
	if err != nil {
		t.Fatalf("PushCommands: %v", err)
	}
	if !strings.Contains(out, "- set service dhcp-server shared-network-name LAN subnet 192.168.1.0/24") {
		t.Errorf("output missing removed line:\n%s", out)
	}
	if !strings.Contains(out, "+ set service lldp") {
		t.Errorf("output missing added line:\n%s", out)
	}

	live, err := lab.FetchConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	want := "set interfaces ethernet eth0 address dhcp\nset system host-name ubnt\nset service lldp"
	if live != want {
		t.Errorf("FetchConfig =\n%s\nwant\n%s", live, want)
	}

	hist := lab.History()
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist))
	}
	if hist[0].Comment != "test" {
		t.Errorf("most recent comment = %q", hist[0].Comment)
	}
}

func TestLabPushCheckDiscards(t *testing.T) {
	ctx := context.Background()
	lab := newTestLab(t, "set system host-name ubnt")

	out, err := lab.PushCommands(ctx, []string{"set service lldp"}, false, "")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "+ set service lldp") {
		t.Errorf("check output should show pending change:\n%s", out)
	}
	live, _ := lab.FetchConfig(ctx)
	if strings.Contains(live, "lldp") {
		t.Errorf("check push must not change active config:\n%s", live)
	}
	if len(lab.History()) != 1 {
		t.Errorf("check push must not add history")
	}
}

func TestLabInvalidCommand(t *testing.T) {
	lab := newTestLab(t, "set system host-name ubnt")
	_, err := lab.PushCommands(context.Background(), []string{"set service lldp", "show interfaces"}, true, "")
	if !errors.Is(err, ErrInvalidCommand) {
		t.Fatalf("expected ErrInvalidCommand, got %v", err)
	}
	live, _ := lab.FetchConfig(context.Background())
	if strings.Contains(live, "lldp") {
		t.Error("failed push must not be applied partially")
	}
}

func TestLabQuotedValues(t *testing.T) {
	ctx := context.Background()
	lab := newTestLab(t, "set interfaces ethernet eth1 description 'LAN side'")
	live, _ := lab.FetchConfig(ctx)
	if live != "set interfaces ethernet eth1 description 'LAN side'" {
		t.Errorf("FetchConfig = %q", live)
	}
	if !strings.Contains(lab.ShowConfiguration(), `description "LAN side"`) {
		t.Errorf("ShowConfiguration:\n%s", lab.ShowConfiguration())
	}
}

func TestLabSaveAndCompare(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "config.boot")
	lab := NewLab(path)

	diff, err := lab.CompareSaved(ctx)
	if err != nil || diff != CompareSavedClean {
		t.Fatalf("empty lab CompareSaved = %q, %v", diff, err)
	}

	lab.PushCommands(ctx, []string{"set system host-name gw1", "set service ssh port 22"}, true, "")
	diff, _ = lab.CompareSaved(ctx)
	if diff == CompareSavedClean || !strings.Contains(diff, "+ set system host-name gw1") {
		t.Errorf("CompareSaved after commit = %q", diff)
	}

	if err := lab.SaveConfig(ctx); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}
	diff, _ = lab.CompareSaved(ctx)
	if diff != CompareSavedClean {
		t.Errorf("CompareSaved after save = %q", diff)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "host-name gw1") {
		t.Errorf("saved file:\n%s", data)
	}

	reloaded := NewLab(path)
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	got, _ := reloaded.FetchConfig(ctx)
	want, _ := lab.FetchConfig(ctx)
	if got != want {
		t.Errorf("reloaded config =\n%s\nwant\n%s", got, want)
	}
}

func TestLabLoadMissingFile(t *testing.T) {
	lab := NewLab(filepath.Join(t.TempDir(), "missing"))
	if err := lab.Load(); err != nil {
		t.Fatalf("Load missing file: %v", err)
	}
}

func TestLabLoadParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.boot")
	os.WriteFile(path, []byte("system {\n    host-name gw1\n"), 0644)
	if err := NewLab(path).Load(); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLabRollback(t *testing.T) {
	ctx := context.Background()
	lab := newTestLab(t, "set system host-name one")
	lab.PushCommands(ctx, []string{"delete system host-name", "set system host-name two"}, true, "")

	if err := lab.Rollback(1); err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	live, _ := lab.FetchConfig(ctx)
	if live != "set system host-name one" {
		t.Errorf("after rollback: %q", live)
	}

	if err := lab.Rollback(10); !errors.Is(err, ErrNoSuchRollback) {
		t.Errorf("expected ErrNoSuchRollback, got %v", err)
	}
}

func TestLabCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lab := NewLab("")
	if _, err := lab.FetchConfig(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("FetchConfig err = %v", err)
	}
	if _, err := lab.PushCommands(ctx, []string{"set a b"}, true, ""); !errors.Is(err, context.Canceled) {
		t.Errorf("PushCommands err = %v", err)
	}
}

func TestHistoryRing(t *testing.T) {
	h := NewHistory(2)
	for _, c := range []string{"a", "b", "c"} {
		h.Push(&HistoryEntry{Comment: c})
	}
	if h.Len() != 2 {
		t.Fatalf("Len = %d", h.Len())
	}
	e, err := h.Get(0)
	if err != nil || e.Comment != "c" {
		t.Errorf("Get(0) = %v, %v", e, err)
	}
	e, _ = h.Get(1)
	if e.Comment != "b" {
		t.Errorf("Get(1) = %q", e.Comment)
	}
	if _, err := h.Get(2); err == nil {
		t.Error("expected out of range error")
	}
}

package reconcile

import (
	"errors"
	"reflect"
	"sort"
	"strings"
	"testing"

	"github.com/psaab/edgecfg/pkg/config"
)

const liveConfig = `set interfaces ethernet eth0 address dhcp
set interfaces ethernet eth1 address 192.168.1.1/24
set interfaces ethernet eth1 description 'LAN side'
set service dhcp-server shared-network-name LAN authoritative enable
set service ssh port 22
set system host-name ubnt
`

func TestIdempotence(t *testing.T) {
	candidate := strings.Split(strings.TrimSpace(liveConfig), "\n")
	res := Reconcile(candidate, liveConfig)
	if len(res.Updates) != 0 {
		t.Errorf("expected no updates, got %q", res.Updates)
	}
	if len(res.Invalid) != 0 {
		t.Errorf("expected no invalid, got %q", res.Invalid)
	}
	if len(res.Unmanaged) != 0 {
		t.Errorf("expected no unmanaged, got %q", res.Unmanaged)
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name      string
		candidate []string
		live      string
		updates   []string
		unmanaged []string
		invalid   []string
	}{
		{
			name:      "empty candidate reports all live as unmanaged",
			candidate: nil,
			live:      "set b 2\nset a 1\n",
			unmanaged: []string{"set a 1", "set b 2"},
		},
		{
			name:      "missing set statement",
			candidate: []string{"set system host-name ubnt", "set service lldp"},
			live:      "set system host-name ubnt\n",
			updates:   []string{"set service lldp"},
		},
		{
			name:      "changed value subsumes live line",
			candidate: []string{"set system host-name gw1"},
			live:      "set system host-name ubnt\nset service ssh port 22\n",
			updates:   []string{"set system host-name gw1"},
			unmanaged: []string{"set service ssh port 22"},
		},
		{
			name:      "deletes precede sets",
			candidate: []string{"set service lldp", "delete service ssh", "set system host-name gw1", "delete service gui"},
			live:      "",
			updates:   []string{"delete service ssh", "delete service gui", "set service lldp", "set system host-name gw1"},
		},
		{
			name:      "restoration after delete",
			candidate: []string{"delete interfaces eth0", "set interfaces eth0 address 1.2.3.4"},
			live:      "set interfaces eth0 address 1.2.3.4\n",
			updates:   []string{"delete interfaces eth0", "set interfaces eth0 address 1.2.3.4"},
		},
		{
			name:      "restoration does not duplicate missing set",
			candidate: []string{"delete interfaces eth0", "set interfaces eth0 address 1.2.3.4"},
			live:      "",
			updates:   []string{"delete interfaces eth0", "set interfaces eth0 address 1.2.3.4"},
		},
		{
			name:      "delete subsumes live subtree",
			candidate: []string{"delete service dhcp-server"},
			live:      "set service dhcp-server shared-network-name LAN\nset service ssh port 22\n",
			updates:   []string{"delete service dhcp-server"},
			unmanaged: []string{"set service ssh port 22"},
		},
		{
			name:      "delete of a sibling value keeps live line unmanaged",
			candidate: []string{"delete system ntp server 2.2.2.2"},
			live:      "set system ntp server 1.1.1.1\n",
			updates:   []string{"delete system ntp server 2.2.2.2"},
			unmanaged: []string{"set system ntp server 1.1.1.1"},
		},
		{
			name:      "search key matches as a plain string prefix",
			candidate: []string{"set service ssh portal x"},
			live:      "set service ssh port 22\n",
			updates:   []string{"set service ssh portal x"},
		},
		{
			name:      "blank candidate lines are skipped",
			candidate: []string{"", "  ", "set service lldp"},
			live:      "set service lldp\n",
		},
		{
			name:      "invalid lines are sorted and excluded",
			candidate: []string{"set service lldp", "show configuration", "commit"},
			live:      "set service lldp\n",
			invalid:   []string{"commit", "show configuration"},
		},
		{
			name:      "quotes stripped on both sides",
			candidate: []string{`set interfaces ethernet eth1 description "LAN side"`},
			live:      "set interfaces ethernet eth1 description 'LAN side'\n",
		},
		{
			name:      "duplicate live lines reported once",
			candidate: nil,
			live:      "set a 1\nset a 1\n\n",
			unmanaged: []string{"set a 1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Reconcile(tt.candidate, tt.live)
			if !equalStrings(res.Updates, tt.updates) {
				t.Errorf("updates = %q, want %q", res.Updates, tt.updates)
			}
			if !equalStrings(res.Unmanaged, tt.unmanaged) {
				t.Errorf("unmanaged = %q, want %q", res.Unmanaged, tt.unmanaged)
			}
			if !equalStrings(res.Invalid, tt.invalid) {
				t.Errorf("invalid = %q, want %q", res.Invalid, tt.invalid)
			}
		})
	}
}

func TestDeletePrecedesSet(t *testing.T) {
	candidate := []string{
		"set firewall name WAN_IN default-action drop",
		"delete firewall name WAN_IN",
		"set firewall name WAN_IN rule 10 action accept",
		"delete service upnp",
		"set service lldp",
	}
	res := Reconcile(candidate, liveConfig)
	lastDelete, firstSet := -1, len(res.Updates)
	for i, line := range res.Updates {
		switch Classify(line) {
		case KindDelete:
			lastDelete = i
		case KindSet:
			if i < firstSet {
				firstSet = i
			}
		}
	}
	if lastDelete > firstSet {
		t.Errorf("delete at %d follows set at %d: %q", lastDelete, firstSet, res.Updates)
	}
}

func TestPartitionCompleteness(t *testing.T) {
	candidate := []string{
		"set service lldp",
		"delete service upnp",
		"bogus line",
		"set system host-name ubnt",
		"  set service ssh port 22  ",
	}
	res := Reconcile(candidate, liveConfig)
	for _, raw := range candidate {
		line := Clean(raw)
		inInvalid := contains(res.Invalid, line)
		valid := Classify(line) != KindInvalid
		if valid == inInvalid {
			t.Errorf("%q: valid=%v but inInvalid=%v", line, valid, inInvalid)
		}
	}
	for _, line := range res.Unmanaged {
		if contains(candidate, line) {
			t.Errorf("unmanaged %q is also a candidate statement", line)
		}
	}
}

func TestSortedOutputs(t *testing.T) {
	res := Reconcile([]string{"zz", "set q 1", "aa", "mm"}, "set z 9\nset c 3\nset m 1\n")
	if !sort.StringsAreSorted(res.Unmanaged) {
		t.Errorf("unmanaged not sorted: %q", res.Unmanaged)
	}
	if !sort.StringsAreSorted(res.Invalid) {
		t.Errorf("invalid not sorted: %q", res.Invalid)
	}
	if !reflect.DeepEqual(res.Updates, []string{"set q 1"}) {
		t.Errorf("updates = %q", res.Updates)
	}
}

func TestPromoteUnmanaged(t *testing.T) {
	got := PromoteUnmanaged([]string{"set a"}, []string{"set b c"})
	want := []string{"set a", "delete b c"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("PromoteUnmanaged = %q, want %q", got, want)
	}

	res := Reconcile([]string{"set system host-name gw1"}, liveConfig)
	promoted := PromoteUnmanaged(res.Updates, res.Unmanaged)
	if promoted[0] != "set system host-name gw1" {
		t.Errorf("original updates should come first: %q", promoted)
	}
	for _, line := range promoted[1:] {
		if Classify(line) != KindDelete {
			t.Errorf("promoted line %q is not a delete", line)
		}
	}
	if len(promoted) != 1+len(res.Unmanaged) {
		t.Errorf("promoted %d lines, want %d", len(promoted), 1+len(res.Unmanaged))
	}

	res = Reconcile([]string{"delete system ntp server 2.2.2.2"}, "set system ntp server 1.1.1.1\n")
	promoted = PromoteUnmanaged(res.Updates, res.Unmanaged)
	want = []string{"delete system ntp server 2.2.2.2", "delete system ntp server 1.1.1.1"}
	if !reflect.DeepEqual(promoted, want) {
		t.Errorf("sibling value not promoted: %q, want %q", promoted, want)
	}
}

func TestSearchKeyOverMatch(t *testing.T) {
	// A single-word statement keys on its bare verb, so any pending
	// set update hides it.
	res := Reconcile([]string{"set service lldp"}, "set lldp\n")
	if len(res.Unmanaged) != 0 {
		t.Errorf("expected bare statement to be subsumed, got %q", res.Unmanaged)
	}
}

func TestBuildCandidate(t *testing.T) {
	tests := []struct {
		name string
		src  Source
		want []string
		err  error
	}{
		{
			name: "inline lines",
			src:  Source{Lines: []string{"set service lldp", "delete service upnp"}},
			want: []string{"set service lldp", "delete service upnp"},
		},
		{
			name: "bracket source",
			src:  Source{Src: "service {\n    lldp {\n    }\n}\n"},
			want: []string{"set service lldp"},
		},
		{
			name: "both supplied",
			src:  Source{Lines: []string{"set service lldp"}, Src: "set service ssh"},
			err:  ErrMutuallyExclusive,
		},
		{
			name: "none supplied",
			err:  ErrNoCandidate,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := BuildCandidate(tt.src)
			if !errors.Is(err, tt.err) {
				t.Fatalf("err = %v, want %v", err, tt.err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("BuildCandidate = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildCandidateParseError(t *testing.T) {
	_, err := BuildCandidate(Source{Src: "service {\n    lldp {\n}\n"})
	var pe *config.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *config.ParseError, got %v", err)
	}
}

func equalStrings(a, b []string) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

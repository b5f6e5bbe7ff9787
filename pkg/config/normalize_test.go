package config

import (
	"errors"
	"reflect"
	"testing"
)

func TestIsSetFormat(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"set system host-name gw1", true},
		{"delete service dhcp-server", true},
		{"\n  set service lldp\n", true},
		{"system {\n    host-name gw1\n}", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsSetFormat(tt.text); got != tt.want {
			t.Errorf("IsSetFormat(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestNormalizeFlat(t *testing.T) {
	text := "set system host-name gw1\n\n  delete service dhcp-server  \nset service lldp\n"
	got, err := Normalize(text)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []string{
		"set system host-name gw1",
		"delete service dhcp-server",
		"set service lldp",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize = %q, want %q", got, want)
	}
}

func TestNormalizeBracket(t *testing.T) {
	text := `interfaces {
    ethernet eth0 {
        address 192.168.1.1/24
        description "LAN side"
    }
}
service {
    lldp {
    }
}
system {
    host-name gw1
}
`
	got, err := Normalize(text)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []string{
		"set interfaces ethernet eth0 address 192.168.1.1/24",
		"set interfaces ethernet eth0 description 'LAN side'",
		"set service lldp",
		"set system host-name gw1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Normalize =\n%q\nwant\n%q", got, want)
	}
}

func TestNormalizeParseError(t *testing.T) {
	got, err := Normalize("system {\n    host-name gw1\n")
	if err == nil {
		t.Fatalf("expected error, got %q", got)
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %T", err)
	}
	if got != nil {
		t.Errorf("expected no statements on error, got %q", got)
	}
}

func TestCollapse(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{
			name: "more general after more specific",
			in:   []string{"set a b", "set a"},
			want: []string{"set a"},
		},
		{
			name: "more specific after more general",
			in:   []string{"set a", "set a b"},
			want: []string{"set a b"},
		},
		{
			name: "unrelated lines kept in order",
			in:   []string{"set x 1", "set y 2", "set z 3"},
			want: []string{"set x 1", "set y 2", "set z 3"},
		},
		{
			name: "duplicate keeps last position",
			in:   []string{"set x", "set y", "set x"},
			want: []string{"set y", "set x"},
		},
		{
			name: "general line replaces every covered line",
			in:   []string{"set a b", "set q", "set a c", "set a"},
			want: []string{"set q", "set a"},
		},
		{
			name: "plain string prefix",
			in:   []string{"set ns 1.1.1.1", "set ns 1.1.1.10"},
			want: []string{"set ns 1.1.1.10"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Collapse(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Collapse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeFormatSetRoundTrip(t *testing.T) {
	tree := &ConfigTree{}
	tree.SetPath([]string{"firewall", "name", "WAN_IN", "default-action", "drop"})
	tree.SetPath([]string{"firewall", "name", "WAN_IN", "rule", "10", "action", "accept"})
	got, err := Normalize(tree.Format())
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !reflect.DeepEqual(got, tree.SetLines()) {
		t.Errorf("Normalize(Format()) = %q, want %q", got, tree.SetLines())
	}
}

package device

import (
	"errors"
	"strings"
	"testing"
)

func TestNewSSHValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  SSHConfig
		ok   bool
	}{
		{"missing host", SSHConfig{User: "ubnt", Password: "x"}, false},
		{"missing user", SSHConfig{Host: "gw", Password: "x"}, false},
		{"missing auth", SSHConfig{Host: "gw", User: "ubnt"}, false},
		{"password", SSHConfig{Host: "gw", User: "ubnt", Password: "x"}, true},
		{"key", SSHConfig{Host: "gw", User: "ubnt", KeyPath: "/tmp/id"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSSH(tt.cfg)
			if (err == nil) != tt.ok {
				t.Errorf("NewSSH err = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestSSHAddr(t *testing.T) {
	tests := []struct {
		cfg  SSHConfig
		want string
	}{
		{SSHConfig{Host: "gw"}, "gw:22"},
		{SSHConfig{Host: "gw", Port: "2222"}, "gw:2222"},
		{SSHConfig{Host: "10.0.0.1:2200"}, "10.0.0.1:2200"},
		{SSHConfig{Host: "fe80::1"}, "[fe80::1]:22"},
	}
	for _, tt := range tests {
		s := &SSH{cfg: tt.cfg}
		if got := s.Addr(); got != tt.want {
			t.Errorf("Addr(%+v) = %q, want %q", tt.cfg, got, tt.want)
		}
	}
}

func TestPushScript(t *testing.T) {
	script, err := pushScript([]string{
		"delete service dhcp-server",
		"set interfaces ethernet eth1 description 'LAN side'",
	}, true, "it's managed")
	if err != nil {
		t.Fatalf("pushScript: %v", err)
	}
	for _, want := range []string{
		"W=" + cfgWrapper + "\n",
		"$W begin || exit 1\n",
		"$W delete 'service' 'dhcp-server' || { $W discard; exit 1; }\n",
		"$W set 'interfaces' 'ethernet' 'eth1' 'description' 'LAN side' || { $W discard; exit 1; }\n",
		`$W commit comment 'it'"'"'s managed'`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("script missing %q:\n%s", want, script)
		}
	}

	check, err := pushScript([]string{"set service lldp"}, false, "ignored")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(check, "commit") || !strings.Contains(check, "$W discard\n") {
		t.Errorf("check script should discard:\n%s", check)
	}

	if _, err := pushScript([]string{"commit"}, true, ""); !errors.Is(err, ErrInvalidCommand) {
		t.Errorf("expected ErrInvalidCommand, got %v", err)
	}
}

func TestDialErrorUnwrap(t *testing.T) {
	base := errors.New("refused")
	err := error(&DialError{Addr: "gw:22", Err: base})
	if !errors.Is(err, base) {
		t.Error("DialError should unwrap")
	}
	if !strings.Contains(err.Error(), "gw:22") {
		t.Errorf("Error() = %q", err.Error())
	}
}

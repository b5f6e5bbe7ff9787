package daemon

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/psaab/edgecfg/pkg/api"
	"github.com/psaab/edgecfg/pkg/device"
)

// Device kinds accepted in Options.Device.
const (
	DeviceLab = "lab"
	DeviceSSH = "ssh"
)

// Options configures the daemon. It can be read from a TOML file and
// then overridden by command-line flags.
type Options struct {
	Device   string `toml:"device"`   // "lab" or "ssh"
	LabFile  string `toml:"lab_file"` // boot file backing the lab device
	Hostname string `toml:"hostname"` // names backups

	SSH   SSHOptions   `toml:"ssh"`
	Retry RetryOptions `toml:"retry"`

	APIAddr   string       `toml:"api_addr"`   // empty disables HTTP
	HTTPSAddr string       `toml:"https_addr"` // empty disables HTTPS
	TLSDir    string       `toml:"tls_dir"`
	GRPCAddr  string       `toml:"grpc_addr"` // empty disables gRPC
	Auth      *AuthOptions `toml:"auth"`

	JournalSize int  `toml:"journal_size"`
	Shell       bool `toml:"shell"` // run the interactive shell on stdin
}

// SSHOptions configures the SSH device.
type SSHOptions struct {
	Host           string        `toml:"host"`
	Port           string        `toml:"port"`
	User           string        `toml:"user"`
	KeyPath        string        `toml:"key_path"`
	Password       string        `toml:"password"`
	KnownHostsPath string        `toml:"known_hosts"`
	Insecure       bool          `toml:"insecure_skip_host_key_checking"`
	Timeout        time.Duration `toml:"timeout"`
}

// RetryOptions bounds device calls. Zero values take the defaults.
type RetryOptions struct {
	Attempts int           `toml:"attempts"`
	Timeout  time.Duration `toml:"timeout"`
	Backoff  time.Duration `toml:"backoff"`
}

// AuthOptions holds API credentials.
type AuthOptions struct {
	Users   map[string]string `toml:"users"`
	APIKeys []string          `toml:"api_keys"`
}

// DefaultOptions returns the options used when no file is given.
func DefaultOptions() Options {
	return Options{
		Device:      DeviceLab,
		LabFile:     "/var/lib/edgecfg/config.boot",
		APIAddr:     "127.0.0.1:8080",
		GRPCAddr:    "127.0.0.1:50051",
		JournalSize: 1000,
	}
}

// LoadOptions reads a TOML options file on top of DefaultOptions.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	md, err := toml.DecodeFile(path, &opts)
	if err != nil {
		return Options{}, fmt.Errorf("load %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Options{}, fmt.Errorf("load %s: unknown key %q", path, undecoded[0].String())
	}
	return opts, nil
}

// Validate checks that the options describe a runnable daemon.
func (o Options) Validate() error {
	switch o.Device {
	case DeviceLab, DeviceSSH:
	default:
		return fmt.Errorf("unknown device %q: expected %s or %s", o.Device, DeviceLab, DeviceSSH)
	}
	if o.APIAddr == "" && o.GRPCAddr == "" && !o.Shell {
		return fmt.Errorf("nothing to run: no API address, gRPC address or shell")
	}
	return nil
}

func (o Options) sshConfig() device.SSHConfig {
	return device.SSHConfig{
		Host:                        o.SSH.Host,
		Port:                        o.SSH.Port,
		User:                        o.SSH.User,
		KeyPath:                     o.SSH.KeyPath,
		Password:                    o.SSH.Password,
		KnownHostsPath:              o.SSH.KnownHostsPath,
		InsecureSkipHostKeyChecking: o.SSH.Insecure,
		Timeout:                     o.SSH.Timeout,
	}
}

func (o Options) retryPolicy() device.RetryPolicy {
	p := device.DefaultRetryPolicy
	if o.Retry.Attempts > 0 {
		p.Attempts = o.Retry.Attempts
	}
	if o.Retry.Timeout > 0 {
		p.Timeout = o.Retry.Timeout
	}
	if o.Retry.Backoff > 0 {
		p.Backoff = o.Retry.Backoff
	}
	return p
}

func (o Options) authConfig() *api.AuthConfig {
	if o.Auth == nil {
		return nil
	}
	keys := make(map[string]bool, len(o.Auth.APIKeys))
	for _, k := range o.Auth.APIKeys {
		keys[k] = true
	}
	return &api.AuthConfig{Users: o.Auth.Users, APIKeys: keys}
}

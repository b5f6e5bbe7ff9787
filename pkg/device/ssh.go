package device

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/psaab/edgecfg/pkg/config"
)

const (
	opWrapper  = "/opt/vyatta/bin/vyatta-op-cmd-wrapper"
	cfgWrapper = "/opt/vyatta/sbin/vyatta-cfg-cmd-wrapper"
)

// SSHConfig configures the SSH session with an EdgeOS device.
type SSHConfig struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	Password                    string
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

// DialError reports that no session could be established, so nothing
// was sent to the device.
type DialError struct {
	Addr string
	Err  error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s: %v", e.Addr, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

// SSH is a Device reached over SSH. Every call opens its own connection;
// configuration sessions are driven through the Vyatta command wrappers
// in a vbash script.
type SSH struct {
	cfg SSHConfig
}

// NewSSH validates cfg and returns an SSH device.
func NewSSH(cfg SSHConfig) (*SSH, error) {
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("ssh host is required")
	}
	if cfg.User == "" {
		return nil, fmt.Errorf("ssh user is required")
	}
	if cfg.KeyPath == "" && cfg.Password == "" {
		return nil, fmt.Errorf("ssh key path or password is required")
	}
	return &SSH{cfg: cfg}, nil
}

// Addr returns the host:port the device is dialed at.
func (s *SSH) Addr() string {
	addr, _ := s.address()
	return addr
}

// FetchConfig implements Device.
func (s *SSH) FetchConfig(ctx context.Context) (string, error) {
	out, err := s.run(ctx, opWrapper+" show configuration commands", "")
	if err != nil {
		return "", fmt.Errorf("show configuration commands: %w", err)
	}
	return out, nil
}

// PushCommands implements Device.
func (s *SSH) PushCommands(ctx context.Context, commands []string, commit bool, comment string) (string, error) {
	script, err := pushScript(commands, commit, comment)
	if err != nil {
		return "", err
	}
	out, err := s.run(ctx, "vbash -s", script)
	if err != nil {
		return out, fmt.Errorf("load configuration: %w: %s", err, strings.TrimSpace(out))
	}
	return out, nil
}

// SaveConfig implements Device.
func (s *SSH) SaveConfig(ctx context.Context) error {
	out, err := s.run(ctx, "vbash -s", sessionScript(cfgWrapper+" save"))
	if err != nil {
		return fmt.Errorf("save: %w: %s", err, strings.TrimSpace(out))
	}
	return nil
}

// CompareSaved implements Device. The wrapper prints nothing when the
// configurations match; that is reported as CompareSavedClean.
func (s *SSH) CompareSaved(ctx context.Context) (string, error) {
	out, err := s.run(ctx, "vbash -s", sessionScript(cfgWrapper+" compare saved"))
	if err != nil {
		return "", fmt.Errorf("compare saved: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return CompareSavedClean, nil
	}
	return out, nil
}

// sessionScript wraps body in a configuration session.
func sessionScript(body string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "W=%s\n", cfgWrapper)
	b.WriteString("$W begin || exit 1\n")
	b.WriteString("trap '$W end' EXIT\n")
	b.WriteString(body)
	b.WriteByte('\n')
	return b.String()
}

// pushScript renders commands as wrapper invocations. A failing
// statement discards the session and aborts the script.
func pushScript(commands []string, commit bool, comment string) (string, error) {
	var body strings.Builder
	for _, cmd := range commands {
		verb, path, err := config.ParseCommand(cmd)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidCommand, cmd, err)
		}
		fmt.Fprintf(&body, "$W %s %s || { $W discard; exit 1; }\n", verb, joinCommand(path))
	}
	if commit {
		fmt.Fprintf(&body, "$W commit comment %s || { $W discard; exit 1; }", shellEscape(comment))
	} else {
		body.WriteString("$W discard")
	}
	return sessionScript(body.String()), nil
}

func joinCommand(args []string) string {
	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = shellEscape(arg)
	}
	return strings.Join(parts, " ")
}

func shellEscape(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// run executes cmd on the device with stdin as its input. Cancelling ctx
// closes the connection.
func (s *SSH) run(ctx context.Context, cmd, stdin string) (string, error) {
	client, err := s.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	session, err := client.NewSession()
	if err != nil {
		return "", err
	}
	defer session.Close()

	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}
	out, err := session.CombinedOutput(cmd)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return string(out), ctxErr
	}
	return string(out), err
}

func (s *SSH) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := s.address()
	if err != nil {
		return nil, err
	}

	clientCfg, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, &DialError{Addr: address, Err: err}
	}

	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, clientCfg)
	if err != nil {
		conn.Close()
		return nil, &DialError{Addr: address, Err: err}
	}

	return ssh.NewClient(clientConn, chans, reqs), nil
}

func (s *SSH) address() (string, error) {
	host := strings.TrimSpace(s.cfg.Host)
	if host == "" {
		return "", fmt.Errorf("ssh host is required")
	}

	if s.cfg.Port != "" {
		return net.JoinHostPort(host, s.cfg.Port), nil
	}

	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}

	return net.JoinHostPort(host, "22"), nil
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if s.cfg.KeyPath != "" {
		signer, err := s.signer()
		if err != nil {
			return nil, err
		}
		auth = append(auth, ssh.PublicKeys(signer))
	}
	if s.cfg.Password != "" {
		auth = append(auth, ssh.Password(s.cfg.Password))
	}

	var hostKeyCallback ssh.HostKeyCallback
	if s.cfg.InsecureSkipHostKeyChecking {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	} else {
		callback, err := s.knownHostsCallback()
		if err != nil {
			return nil, err
		}
		hostKeyCallback = callback
	}

	return &ssh.ClientConfig{
		User:            s.cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         s.cfg.Timeout,
	}, nil
}

func (s *SSH) signer() (ssh.Signer, error) {
	privateKey, err := os.ReadFile(s.cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	if len(s.cfg.Passphrase) > 0 {
		return ssh.ParsePrivateKeyWithPassphrase(privateKey, s.cfg.Passphrase)
	}
	return ssh.ParsePrivateKey(privateKey)
}

func (s *SSH) knownHostsCallback() (ssh.HostKeyCallback, error) {
	path := s.cfg.KnownHostsPath
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("known_hosts: %w", err)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}

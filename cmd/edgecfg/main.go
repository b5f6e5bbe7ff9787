// edgecfg is the command-line client for EdgeOS configuration.
//
// It reconciles configuration files against a device reached directly
// over SSH, a local lab file, or a running edgecfgd over gRPC.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/psaab/edgecfg/pkg/cli"
	"github.com/psaab/edgecfg/pkg/config"
	"github.com/psaab/edgecfg/pkg/device"
	"github.com/psaab/edgecfg/pkg/grpcapi"
	"github.com/psaab/edgecfg/pkg/metrics"
	"github.com/psaab/edgecfg/pkg/reconcile"
	"github.com/psaab/edgecfg/pkg/runner"
	"github.com/psaab/edgecfg/pkg/task"
)

const usage = `usage: edgecfg <command> [flags] [args]

commands:
  normalize <file>      print a configuration file as set statements
  diff <file>           show the statements a file would push
  apply <task-file>     run a task file against the device
  shell                 interactive configuration shell
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "normalize":
		err = runNormalize(ctx, args)
	case "diff":
		err = runDiff(ctx, args)
	case "apply":
		err = runApply(ctx, args)
	case "shell":
		err = runShell(ctx, args)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "edgecfg: unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "edgecfg: %v\n", err)
		os.Exit(1)
	}
}

// common holds the flags shared by every command that reaches a device.
type common struct {
	server   string
	lab      string
	ssh      device.SSHConfig
	askPass  bool
	output   string
	debug    bool
	hostname string
}

func (c *common) register(fs *flag.FlagSet) {
	fs.StringVar(&c.server, "server", "", "edgecfgd gRPC address")
	fs.StringVar(&c.lab, "lab", "", "use a lab device backed by this boot file")
	fs.StringVar(&c.ssh.Host, "host", "", "EdgeOS host")
	fs.StringVar(&c.ssh.Port, "port", "", "SSH port (default 22)")
	fs.StringVar(&c.ssh.User, "user", os.Getenv("USER"), "SSH user")
	fs.StringVar(&c.ssh.KeyPath, "key", "", "SSH private key path")
	fs.StringVar(&c.ssh.KnownHostsPath, "known-hosts", "", "known_hosts file (default ~/.ssh/known_hosts)")
	fs.BoolVar(&c.ssh.InsecureSkipHostKeyChecking, "insecure", false, "skip host key verification")
	fs.BoolVar(&c.askPass, "ask-pass", false, "prompt for the SSH password")
	fs.StringVar(&c.output, "o", "text", "output format: text, json or yaml")
	fs.StringVar(&c.hostname, "hostname", "", "device hostname for backups and the prompt")
	fs.BoolVar(&c.debug, "debug", false, "enable debug logging")
}

func (c *common) setupLogging() {
	logLevel := slog.LevelWarn
	if c.debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

// device opens the local device selected by the flags.
func (c *common) device() (device.Device, error) {
	if c.lab != "" {
		lab := device.NewLab(c.lab)
		if err := lab.Load(); err != nil {
			return nil, err
		}
		return lab, nil
	}
	if c.ssh.Host == "" {
		return nil, fmt.Errorf("one of -server, -lab or -host is required")
	}
	if c.askPass {
		pw, err := readPassword(fmt.Sprintf("%s@%s's password: ", c.ssh.User, c.ssh.Host))
		if err != nil {
			return nil, err
		}
		c.ssh.Password = pw
	}
	if c.ssh.Password == "" {
		c.ssh.Password = os.Getenv("EDGECFG_SSH_PASSWORD")
	}
	ssh, err := device.NewSSH(c.ssh)
	if err != nil {
		return nil, err
	}
	if c.hostname == "" {
		c.hostname = c.ssh.Host
	}
	return device.WithRetry(ssh, device.DefaultRetryPolicy), nil
}

func readPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("cannot prompt for password: stdin is not a terminal")
	}
	fmt.Fprint(os.Stderr, prompt)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	return string(pw), nil
}

// print writes v in the selected format; text falls back to fn.
func (c *common) print(v any, text func()) error {
	switch c.output {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(v)
	case "text":
		text()
		return nil
	default:
		return fmt.Errorf("unknown output format %q", c.output)
	}
}

func runNormalize(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("normalize", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)
	c.setupLogging()
	if fs.NArg() != 1 {
		return fmt.Errorf("normalize: expected one file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}

	var lines []string
	if c.server != "" {
		client, err := grpcapi.Dial(c.server)
		if err != nil {
			return err
		}
		defer client.Close()
		lines, err = client.Normalize(ctx, string(data))
		if err != nil {
			return err
		}
	} else {
		lines, err = config.Normalize(string(data))
		if err != nil {
			return fmt.Errorf("%s: %w", fs.Arg(0), err)
		}
	}

	return c.print(lines, func() {
		for _, l := range lines {
			fmt.Println(l)
		}
	})
}

func runDiff(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("diff", flag.ExitOnError)
	var c common
	c.register(fs)
	liveFile := fs.String("live", "", "read the live configuration from a file instead of the device")
	deleteUnmanaged := fs.Bool("delete-unmanaged", false, "turn unmanaged statements into deletes")
	fs.Parse(args)
	c.setupLogging()
	if fs.NArg() != 1 {
		return fmt.Errorf("diff: expected one file")
	}

	data, err := os.ReadFile(fs.Arg(0))
	if err != nil {
		return err
	}
	var live string
	if *liveFile != "" {
		b, err := os.ReadFile(*liveFile)
		if err != nil {
			return err
		}
		live = string(b)
	}

	var res reconcile.Result
	if c.server != "" {
		client, err := grpcapi.Dial(c.server)
		if err != nil {
			return err
		}
		defer client.Close()
		res, err = client.Reconcile(ctx, grpcapi.ReconcileRequest{
			SrcText:         string(data),
			Config:          live,
			DeleteUnmanaged: *deleteUnmanaged,
		})
		if err != nil {
			return err
		}
	} else {
		candidate, err := reconcile.BuildCandidate(reconcile.Source{Src: string(data)})
		if err != nil {
			return fmt.Errorf("%s: %w", fs.Arg(0), err)
		}
		if *liveFile == "" {
			dev, err := c.device()
			if err != nil {
				return err
			}
			if live, err = dev.FetchConfig(ctx); err != nil {
				return err
			}
		}
		res = reconcile.Reconcile(candidate, live)
		if *deleteUnmanaged {
			res.Updates = reconcile.PromoteUnmanaged(res.Updates, res.Unmanaged)
		}
	}

	return c.print(res, func() {
		for _, l := range res.Updates {
			fmt.Println(l)
		}
		printList("unmanaged", res.Unmanaged)
		printList("invalid", res.Invalid)
	})
}

func runApply(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("apply", flag.ExitOnError)
	var c common
	c.register(fs)
	check := fs.Bool("check", false, "compute and validate changes without committing")
	fs.Parse(args)
	c.setupLogging()
	if fs.NArg() != 1 {
		return fmt.Errorf("apply: expected one task file")
	}

	t, err := task.Load(fs.Arg(0))
	if err != nil {
		return err
	}
	if *check {
		t.Check = true
	}

	var report *runner.Report
	if c.server != "" {
		client, err := grpcapi.Dial(c.server)
		if err != nil {
			return err
		}
		defer client.Close()
		report, err = client.Apply(ctx, t)
		if err != nil {
			return err
		}
	} else {
		dev, err := c.device()
		if err != nil {
			return err
		}
		r := runner.New(dev, runner.Options{Hostname: c.hostname})
		report, err = r.Run(ctx, t)
		if err != nil {
			return err
		}
	}

	return c.print(report, func() {
		status := metrics.ResultUnchanged
		if report.Changed {
			status = metrics.ResultChanged
		}
		fmt.Printf("%s (run %s)\n", status, report.RunID)
		for _, l := range report.Commands {
			fmt.Printf("  %s\n", l)
		}
		if report.BackupPath != "" {
			fmt.Printf("backup: %s\n", report.BackupPath)
		}
		printList("unmanaged", report.Unmanaged)
		printList("invalid", report.Invalid)
		for _, w := range report.Warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w)
		}
	})
}

func runShell(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("shell", flag.ExitOnError)
	var c common
	c.register(fs)
	fs.Parse(args)
	c.setupLogging()
	if c.server != "" {
		return fmt.Errorf("shell: -server is not supported, use -lab or -host")
	}

	dev, err := c.device()
	if err != nil {
		return err
	}
	return cli.New(dev, c.hostname).Run(ctx)
}

func printList(name string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Printf("%s:\n  %s\n", name, strings.Join(lines, "\n  "))
}

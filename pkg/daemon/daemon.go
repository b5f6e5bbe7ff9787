// Package daemon implements the edgecfg daemon lifecycle.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/psaab/edgecfg/pkg/api"
	"github.com/psaab/edgecfg/pkg/cli"
	"github.com/psaab/edgecfg/pkg/device"
	"github.com/psaab/edgecfg/pkg/grpcapi"
	"github.com/psaab/edgecfg/pkg/metrics"
	"github.com/psaab/edgecfg/pkg/runner"
)

// Daemon is the main edgecfg daemon.
type Daemon struct {
	opts     Options
	dev      device.Device
	registry *prometheus.Registry
	journal  *runner.Journal
	runner   *runner.Runner
}

// New creates a new Daemon and connects it to its device. The SSH
// device dials lazily, so New does no network I/O.
func New(opts Options) (*Daemon, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	dev, err := newDevice(opts)
	if err != nil {
		return nil, err
	}

	registry := prometheus.NewRegistry()
	journal := runner.NewJournal(opts.JournalSize)
	return &Daemon{
		opts:     opts,
		dev:      dev,
		registry: registry,
		journal:  journal,
		runner: runner.New(dev, runner.Options{
			Metrics:  metrics.New(registry),
			Journal:  journal,
			Hostname: opts.Hostname,
		}),
	}, nil
}

func newDevice(opts Options) (device.Device, error) {
	switch opts.Device {
	case DeviceSSH:
		ssh, err := device.NewSSH(opts.sshConfig())
		if err != nil {
			return nil, fmt.Errorf("ssh device: %w", err)
		}
		return device.WithRetry(ssh, opts.retryPolicy()), nil
	default:
		lab := device.NewLab(opts.LabFile)
		if err := lab.Load(); err != nil {
			return nil, fmt.Errorf("lab device: %w", err)
		}
		return lab, nil
	}
}

// Runner returns the runner shared by the API servers.
func (d *Daemon) Runner() *runner.Runner {
	return d.runner
}

// Run starts the configured servers and blocks until shutdown.
func (d *Daemon) Run(ctx context.Context) error {
	slog.Info("starting edgecfg daemon",
		"device", d.opts.Device,
		"pid", os.Getpid())

	// Handle signals for clean shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if d.opts.APIAddr != "" {
		srv := api.NewServer(api.Config{
			Addr:      d.opts.APIAddr,
			HTTPSAddr: d.opts.HTTPSAddr,
			TLS:       d.opts.HTTPSAddr != "",
			TLSDir:    d.opts.TLSDir,
			Auth:      d.opts.authConfig(),
			Runner:    d.runner,
			Journal:   d.journal,
			Registry:  d.registry,
		})
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				return fmt.Errorf("HTTP API: %w", err)
			}
			return nil
		})
	}

	if d.opts.GRPCAddr != "" {
		srv := grpcapi.NewServer(d.opts.GRPCAddr, grpcapi.Config{Runner: d.runner})
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				return fmt.Errorf("gRPC API: %w", err)
			}
			return nil
		})
	}

	if d.opts.Shell {
		shell := cli.New(d.dev, d.opts.Hostname)
		g.Go(func() error {
			// Leaving the shell stops the daemon.
			defer stop()
			if err := shell.Run(gctx); err != nil {
				return fmt.Errorf("CLI: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	slog.Info("shutdown complete")
	return err
}

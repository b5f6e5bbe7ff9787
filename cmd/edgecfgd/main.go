// edgecfgd is the edgecfg daemon.
//
// It reconciles EdgeOS configuration against a device and serves the
// HTTP and gRPC APIs, optionally with an interactive shell on stdin.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/psaab/edgecfg/pkg/daemon"
)

func main() {
	defaults := daemon.DefaultOptions()

	configFile := flag.String("config", "", "daemon options file (TOML)")
	dev := flag.String("device", defaults.Device, "device kind: lab or ssh")
	labFile := flag.String("lab", defaults.LabFile, "boot file backing the lab device")
	host := flag.String("host", "", "EdgeOS host for the ssh device")
	user := flag.String("user", "", "SSH user")
	keyPath := flag.String("key", "", "SSH private key path")
	apiAddr := flag.String("api-addr", defaults.APIAddr, "HTTP API listen address (empty to disable)")
	httpsAddr := flag.String("https-addr", "", "HTTPS API listen address (empty to disable)")
	grpcAddr := flag.String("grpc-addr", defaults.GRPCAddr, "gRPC API listen address (empty to disable)")
	shell := flag.Bool("shell", false, "run the interactive shell on stdin")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Set up structured logging
	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	opts := defaults
	if *configFile != "" {
		var err error
		opts, err = daemon.LoadOptions(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "edgecfgd: %v\n", err)
			os.Exit(1)
		}
	}

	// Flags given on the command line override the options file.
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "device":
			opts.Device = *dev
		case "lab":
			opts.LabFile = *labFile
		case "host":
			opts.SSH.Host = *host
		case "user":
			opts.SSH.User = *user
		case "key":
			opts.SSH.KeyPath = *keyPath
		case "api-addr":
			opts.APIAddr = *apiAddr
		case "https-addr":
			opts.HTTPSAddr = *httpsAddr
		case "grpc-addr":
			opts.GRPCAddr = *grpcAddr
		case "shell":
			opts.Shell = *shell
		}
	})
	if opts.SSH.Password == "" {
		opts.SSH.Password = os.Getenv("EDGECFG_SSH_PASSWORD")
	}

	d, err := daemon.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "edgecfgd: %v\n", err)
		os.Exit(1)
	}
	if err := d.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "edgecfgd: %v\n", err)
		os.Exit(1)
	}
}

// SPDX-License-Identifier: GPL-3.0-or-later

// Command unboundctl sends remote control commands to unbound.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bassosimone/unboundctl"
	"github.com/urfave/cli/v3"
)

var (
	// Version information (will be set by build flags)
	Version   = "dev"
	GitCommit = "unknown"
)

// errCommandFailed means the command ran and its output reports a failure.
var errCommandFailed = errors.New("command failed")

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:    "unboundctl",
		Usage:   "Control an unbound resolver through its remote control socket",
		Version: Version + " (" + GitCommit + ")",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to YAML config file",
				Sources: cli.EnvVars("UNBOUNDCTL_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "host",
				Usage: "control socket host",
				Value: "127.0.0.1",
			},
			&cli.IntFlag{
				Name:  "port",
				Usage: "control socket port",
				Value: unboundctl.DefaultPort,
			},
			&cli.BoolFlag{
				Name:  "tls",
				Usage: "use mutually authenticated TLS",
			},
			&cli.StringFlag{
				Name:  "server-cert",
				Usage: "pinned server certificate (PEM)",
			},
			&cli.StringFlag{
				Name:  "control-cert",
				Usage: "client certificate (PEM)",
			},
			&cli.StringFlag{
				Name:  "control-key",
				Usage: "client private key (PEM)",
			},
			&cli.DurationFlag{
				Name:  "connect-timeout",
				Usage: "bound for connect and TLS handshake",
				Value: unboundctl.DefaultConnectTimeout,
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "bound for the whole operation",
				Value: 30 * time.Second,
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug, info, warn, error)",
				Value: "warn",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text, json)",
				Value: "text",
			},
			&cli.StringFlag{
				Name:  "log-file",
				Usage: "write logs to a rotated file instead of stderr",
			},
		},
		Commands: []*cli.Command{
			newExecCommand(),
			newStatusCommand(),
			newHealthCommand(),
		},
	}
}

func main() {
	err := newRootCommand().Run(context.Background(), os.Args)
	switch {
	case errors.Is(err, errCommandFailed):
		os.Exit(1)
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

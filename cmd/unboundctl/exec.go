// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/urfave/cli/v3"
)

func newExecCommand() *cli.Command {
	return &cli.Command{
		Name:      "exec",
		Usage:     "Run a remote control command",
		ArgsUsage: "<command> [args...]",
		Description: `Send a command to the control socket and print the reply.

With --stdin, standard input is sent as the command payload. The server
only reads a payload for commands such as local_data or local_zone.

Examples:
  unboundctl exec status
  unboundctl exec flush_zone example.com
  printf 'www.example.com. A 192.0.2.1\n' | unboundctl exec --stdin local_data`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "stdin",
				Usage: "read the command payload from standard input",
			},
		},
		Action: runExec,
	}
}

func runExec(ctx context.Context, cmd *cli.Command) error {
	args := cmd.Args().Slice()
	if len(args) < 1 {
		return fmt.Errorf("command is required")
	}

	var payload string
	if cmd.Bool("stdin") {
		data, err := io.ReadAll(cmd.Root().Reader)
		if err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
		payload = string(data)
	}

	svc, ctx, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	success, output := svc.ExecuteCommand(ctx, args, payload)
	fmt.Fprint(cmd.Root().Writer, output)
	if !success {
		return errCommandFailed
	}
	return nil
}

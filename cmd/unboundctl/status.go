// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

func newStatusCommand() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Check that the control socket answers the status command",
		Action: runStatus,
	}
}

func runStatus(ctx context.Context, cmd *cli.Command) error {
	svc, ctx, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if !svc.TestConnection(ctx) {
		fmt.Fprintf(cmd.Root().Writer, "unhealthy: %s\n", svc.Config().Address())
		return errCommandFailed
	}
	fmt.Fprintf(cmd.Root().Writer, "healthy: %s\n", svc.Config().Address())
	return nil
}

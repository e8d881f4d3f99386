// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"

	"github.com/bassosimone/unboundctl"
	"github.com/urfave/cli/v3"
)

// loadConfig builds the configuration from the config file, if any, and
// the global flags. Flags set on the command line override the file.
func loadConfig(cmd *cli.Command) (*unboundctl.Config, error) {
	var params unboundctl.ConfigParams
	path := cmd.String("config")
	if path != "" {
		config, err := unboundctl.LoadConfigFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		params = config.Params()
	}

	useFlag := func(name string) bool {
		return path == "" || cmd.IsSet(name)
	}
	if useFlag("host") {
		params.Host = cmd.String("host")
	}
	if useFlag("port") {
		params.Port = int(cmd.Int("port"))
	}
	if useFlag("tls") {
		params.UseTLS = cmd.Bool("tls")
	}
	if useFlag("server-cert") {
		params.ServerCertFile = cmd.String("server-cert")
	}
	if useFlag("control-cert") {
		params.ControlCertFile = cmd.String("control-cert")
	}
	if useFlag("control-key") {
		params.ControlKeyFile = cmd.String("control-key")
	}
	if useFlag("connect-timeout") {
		params.ConnectTimeout = cmd.Duration("connect-timeout")
	}
	return unboundctl.NewConfig(params)
}

// setup returns the service, a context bounded by --timeout, and a cleanup
// function releasing both the context and the logger.
func setup(ctx context.Context, cmd *cli.Command, opts ...unboundctl.Option) (
	*unboundctl.Service, context.Context, func(), error) {
	config, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	logger, logCloser, err := newLogger(cmd)
	if err != nil {
		return nil, nil, nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, cmd.Duration("timeout"))
	cleanup := func() {
		cancel()
		logCloser.Close()
	}
	opts = append([]unboundctl.Option{unboundctl.WithLogger(logger)}, opts...)
	return unboundctl.NewService(config, opts...), ctx, cleanup, nil
}

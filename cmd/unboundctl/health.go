// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/bassosimone/unboundctl"
	"github.com/urfave/cli/v3"
)

func newHealthCommand() *cli.Command {
	return &cli.Command{
		Name:  "health",
		Usage: "Check the control socket and, optionally, DNS resolution",
		Description: `Run the status command and, with --probe-addr, also resolve a name
through the resolver's DNS listener.

Examples:
  unboundctl health
  unboundctl health --probe-addr 127.0.0.1:53
  unboundctl health --probe-addr 127.0.0.1:853 --probe-proto tls --probe-server-name dns.example.com`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "probe-addr",
				Usage: "DNS endpoint (ip:port) of the resolver",
			},
			&cli.StringFlag{
				Name:  "probe-proto",
				Usage: "DNS protocol used by the probe (tcp, tls, quic)",
				Value: "tcp",
			},
			&cli.StringFlag{
				Name:  "probe-name",
				Usage: "name to resolve",
				Value: unboundctl.DefaultProbeName,
			},
			&cli.StringFlag{
				Name:  "probe-server-name",
				Usage: "TLS server name for the tls and quic probes",
			},
		},
		Action: runHealth,
	}
}

// newProbe returns the probe selected by the flags, nil when --probe-addr
// is not set, and a function releasing the probe resources.
func newProbe(cmd *cli.Command) (*unboundctl.ResolutionProbe, func(), error) {
	noop := func() {}
	addr := cmd.String("probe-addr")
	if addr == "" {
		return nil, noop, nil
	}
	endpoint, err := netip.ParseAddrPort(addr)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid probe address %q: %w", addr, err)
	}
	serverName := cmd.String("probe-server-name")
	if serverName == "" {
		serverName = endpoint.Addr().String()
	}

	var probe *unboundctl.ResolutionProbe
	release := noop
	switch proto := strings.ToLower(cmd.String("probe-proto")); proto {
	case "tcp":
		probe = unboundctl.NewTCPProbe(&net.Dialer{}, endpoint)
	case "tls":
		dialer := &tls.Dialer{
			NetDialer: &net.Dialer{},
			Config:    unboundctl.NewTLSProbeConfig(serverName),
		}
		probe = unboundctl.NewTLSProbe(dialer, endpoint)
	case "quic":
		pconn, err := net.ListenPacket("udp", ":0")
		if err != nil {
			return nil, nil, err
		}
		probe = unboundctl.NewQUICProbe(unboundctl.NewQUICDialer(pconn, serverName), endpoint)
		release = func() { pconn.Close() }
	default:
		return nil, nil, fmt.Errorf("unknown probe protocol %q", proto)
	}
	probe.Name = cmd.String("probe-name")
	return probe, release, nil
}

func runHealth(ctx context.Context, cmd *cli.Command) error {
	probe, release, err := newProbe(cmd)
	if err != nil {
		return err
	}
	defer release()

	var opts []unboundctl.Option
	if probe != nil {
		opts = append(opts, unboundctl.WithProbe(probe))
	}
	svc, ctx, cleanup, err := setup(ctx, cmd, opts...)
	if err != nil {
		return err
	}
	defer cleanup()

	report := svc.CheckHealth(ctx)
	w := cmd.Root().Writer
	fmt.Fprintf(w, "%s: %s\n", report.Status, report.Message)
	if len(report.Addrs) > 0 {
		fmt.Fprintf(w, "%s: %s\n", probe.Name, strings.Join(report.Addrs, ", "))
	}
	if report.Err != nil {
		fmt.Fprintf(w, "cause: %s\n", report.Err)
	}
	if report.Status != unboundctl.HealthHealthy {
		return errCommandFailed
	}
	return nil
}

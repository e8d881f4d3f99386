// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl_test

import (
	"context"
	"net"
	"net/netip"
	"os"
	"testing"
	"time"

	"github.com/bassosimone/unboundctl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// integrationService returns a service for the unbound instance described
// by the file in UNBOUNDCTL_INTEGRATION_CONFIG or skips the test.
func integrationService(t *testing.T, opts ...unboundctl.Option) *unboundctl.Service {
	path := os.Getenv("UNBOUNDCTL_INTEGRATION_CONFIG")
	if path == "" {
		t.Skip("set UNBOUNDCTL_INTEGRATION_CONFIG to run against a real unbound")
	}
	config, err := unboundctl.LoadConfigFile(path)
	require.NoError(t, err)
	return unboundctl.NewService(config, opts...)
}

func TestIntegrationStatus(t *testing.T) {
	svc := integrationService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := svc.Execute(ctx, unboundctl.NewStatusCommand())
	require.NoError(t, result.Err)
	assert.True(t, result.Success)
	assert.Contains(t, result.Output, "version")
}

func TestIntegrationLocalDataRoundTrip(t *testing.T) {
	svc := integrationService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	add, err := unboundctl.NewLocalDataCommand("unboundctl-test.example. 60 IN A 192.0.2.53")
	require.NoError(t, err)
	require.True(t, svc.Execute(ctx, add).Success)

	remove, err := unboundctl.NewLocalDataRemoveCommand("unboundctl-test.example")
	require.NoError(t, err)
	require.True(t, svc.Execute(ctx, remove).Success)
}

func TestIntegrationUnknownCommand(t *testing.T) {
	svc := integrationService(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result := svc.Execute(ctx, unboundctl.NewCommand("no_such_command"))
	assert.False(t, result.Success)
	assert.Equal(t, unboundctl.KindProtocol, unboundctl.KindOf(result.Err))
}

func TestIntegrationHealthWithProbe(t *testing.T) {
	probeAddr := os.Getenv("UNBOUNDCTL_INTEGRATION_PROBE")
	if probeAddr == "" {
		t.Skip("set UNBOUNDCTL_INTEGRATION_PROBE to the resolver's DNS endpoint")
	}
	probe := unboundctl.NewTCPProbe(&net.Dialer{}, netip.MustParseAddrPort(probeAddr))
	svc := integrationService(t, unboundctl.WithProbe(probe))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	report := svc.CheckHealth(ctx)
	require.Equal(t, unboundctl.HealthHealthy, report.Status, report.Message)
	assert.NotEmpty(t, report.Addrs)
}

func TestMain(m *testing.M) {
	os.Setenv("QUIC_GO_DISABLE_RECEIVE_BUFFER_WARNING", "true")
	os.Exit(m.Run())
}

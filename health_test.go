// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"context"
	"net"
	"net/netip"
	"testing"

	"github.com/bassosimone/dnstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthStatusString(t *testing.T) {
	assert.Equal(t, "healthy", HealthHealthy.String())
	assert.Equal(t, "unhealthy", HealthUnhealthy.String())
	assert.Equal(t, "canceled", HealthCanceled.String())
	assert.Equal(t, "HealthStatus(7)", HealthStatus(7).String())
}

func TestServiceCheckHealth(t *testing.T) {
	t.Run("responding", func(t *testing.T) {
		srv := newTCPControlServer(t, replyOnce("version: 1.19.0\n"))
		svc := NewService(newTestConfig(t, srv.Address()))

		report := svc.CheckHealth(context.Background())
		assert.Equal(t, HealthHealthy, report.Status)
		assert.Equal(t, "Unbound server is responding", report.Message)
		assert.NoError(t, report.Err)
	})

	t.Run("error reply", func(t *testing.T) {
		srv := newTCPControlServer(t, replyOnce("error not running\n"))
		svc := NewService(newTestConfig(t, srv.Address()))

		report := svc.CheckHealth(context.Background())
		assert.Equal(t, HealthUnhealthy, report.Status)
		assert.Equal(t, "Unbound server is not responding", report.Message)
		assert.Equal(t, KindProtocol, KindOf(report.Err))
	})

	t.Run("not running", func(t *testing.T) {
		svc := NewService(newTestConfig(t, unusedAddress(t)))

		report := svc.CheckHealth(context.Background())
		assert.Equal(t, HealthUnhealthy, report.Status)
		assert.ErrorIs(t, report.Err, ErrConnectionRefused)
	})

	t.Run("canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		svc := NewService(newTestConfig(t, "127.0.0.1:8953"), WithDialer(blockingDialer()))

		report := svc.CheckHealth(ctx)
		assert.Equal(t, HealthCanceled, report.Status)
		assert.Equal(t, "health check was canceled", report.Message)
	})
}

func TestServiceCheckHealthWithProbe(t *testing.T) {
	control := newTCPControlServer(t, replyOnce("version: 1.19.0\n"))

	t.Run("resolving", func(t *testing.T) {
		dnsConfig := dnstest.NewHandlerConfig()
		dnsConfig.AddNetipAddr("localhost", netip.MustParseAddr("127.0.0.1"))
		dnsServer := dnstest.MustNewTCPServer(&net.ListenConfig{}, "127.0.0.1:0", dnstest.NewHandler(dnsConfig))
		defer dnsServer.Close()

		probe := NewTCPProbe(&net.Dialer{}, netip.MustParseAddrPort(dnsServer.Address()))
		svc := NewService(newTestConfig(t, control.Address()), WithProbe(probe))

		report := svc.CheckHealth(context.Background())
		require.Equal(t, HealthHealthy, report.Status, report.Message)
		assert.Equal(t, []string{"127.0.0.1"}, report.Addrs)
	})

	t.Run("not resolving", func(t *testing.T) {
		probe := NewTCPProbe(&net.Dialer{}, netip.MustParseAddrPort(unusedAddress(t)))
		probe.Name = "www.example.com"
		svc := NewService(newTestConfig(t, control.Address()), WithProbe(probe))

		report := svc.CheckHealth(context.Background())
		assert.Equal(t, HealthUnhealthy, report.Status)
		assert.Equal(t, "Unbound server is not resolving www.example.com", report.Message)
		assert.Error(t, report.Err)
	})
}

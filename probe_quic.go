// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"context"
	"crypto/tls"
	"net"
	"net/netip"
	"sync"

	"github.com/bassosimone/dnscodec"
	"github.com/quic-go/quic-go"
)

// NewQUICProbeConfig returns the [*tls.Config] to use for DNS over QUIC.
func NewQUICProbeConfig(serverName string) *tls.Config {
	return &tls.Config{
		NextProtos: []string{"doq"},
		ServerName: serverName,
	}
}

// QUICDialer dials a [*quic.Conn] using its fields.
type QUICDialer struct {
	// QUICConfig contains OPTIONAL [*quic.Config].
	QUICConfig *quic.Config

	// TLSConfig is the MANDATORY [*tls.Config].
	TLSConfig *tls.Config

	// Transport is the MANDATORY [*quic.Transport].
	Transport *quic.Transport
}

// NewQUICDialer creates a [*QUICDialer] sending packets through pconn.
func NewQUICDialer(pconn net.PacketConn, serverName string) *QUICDialer {
	return &QUICDialer{
		QUICConfig: &quic.Config{},
		TLSConfig:  NewQUICProbeConfig(serverName),
		Transport:  &quic.Transport{Conn: pconn},
	}
}

// Dial creates a [*quic.Conn] with the given endpoint.
func (qd *QUICDialer) Dial(ctx context.Context, address netip.AddrPort) (*quic.Conn, error) {
	return qd.Transport.Dial(ctx, net.UDPAddrFromAddrPort(address), qd.TLSConfig, qd.QUICConfig)
}

// NewQUICProbe returns a [*ResolutionProbe] using DNS over QUIC.
func NewQUICProbe(dialer *QUICDialer, endpoint netip.AddrPort) *ResolutionProbe {
	return newResolutionProbe(&quicProbeDialer{qd: dialer}, endpoint)
}

// quicProbeDialer implements [probeDialer] for QUIC.
type quicProbeDialer struct {
	qd *QUICDialer
}

var _ probeDialer = &quicProbeDialer{}

// DialContext implements [probeDialer].
func (d *quicProbeDialer) DialContext(ctx context.Context, address netip.AddrPort) (probeConn, error) {
	qconn, err := d.qd.Dial(ctx, address)
	if err != nil {
		return nil, err
	}
	return &quicProbeConn{qconn: qconn}, nil
}

// MutateQuery implements [probeDialer].
//
// RFC 9250 requires the message ID to be zero.
func (d *quicProbeDialer) MutateQuery(msg *dnscodec.Query) {
	msg.Flags |= dnscodec.QueryFlagBlockLengthPadding | dnscodec.QueryFlagDNSSec
	msg.ID = 0
	msg.MaxSize = dnscodec.QueryMaxResponseSizeTCP
}

// quicProbeConn adapts [*quic.Conn] to [probeConn].
type quicProbeConn struct {
	qconn *quic.Conn
	once  sync.Once
}

// CloseWithError implements [probeConn].
func (c *quicProbeConn) CloseWithError(code quic.ApplicationErrorCode, desc string) (err error) {
	c.once.Do(func() {
		err = c.qconn.CloseWithError(code, desc)
	})
	return
}

// OpenStream implements [probeConn].
func (c *quicProbeConn) OpenStream() (probeStream, error) {
	return c.qconn.OpenStream()
}

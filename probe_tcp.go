// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"context"
	"crypto/tls"
	"net"
	"net/netip"

	"github.com/bassosimone/dnscodec"
	"github.com/quic-go/quic-go"
)

// NewTCPProbe returns a [*ResolutionProbe] using DNS over TCP.
func NewTCPProbe(dialer NetDialer, endpoint netip.AddrPort) *ResolutionProbe {
	return newResolutionProbe(&tcpProbeDialer{nd: dialer}, endpoint)
}

// NewTLSProbeConfig returns the [*tls.Config] to use for DNS over TLS.
func NewTLSProbeConfig(serverName string) *tls.Config {
	return &tls.Config{
		NextProtos: []string{"dot"},
		ServerName: serverName,
	}
}

// TLSDialer is typically [*tls.Dialer].
//
// The caller is responsible for ensuring the dialer actually performs TLS.
type TLSDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// NewTLSProbe returns a [*ResolutionProbe] using DNS over TLS.
func NewTLSProbe(dialer TLSDialer, endpoint netip.AddrPort) *ResolutionProbe {
	return newResolutionProbe(&tlsProbeDialer{nd: dialer}, endpoint)
}

// tcpProbeDialer implements [probeDialer] for TCP.
type tcpProbeDialer struct {
	nd NetDialer
}

var _ probeDialer = &tcpProbeDialer{}

// DialContext implements [probeDialer].
func (d *tcpProbeDialer) DialContext(ctx context.Context, address netip.AddrPort) (probeConn, error) {
	conn, err := d.nd.DialContext(ctx, "tcp", address.String())
	if err != nil {
		return nil, err
	}
	return &streamProbeConn{conn}, nil
}

// MutateQuery implements [probeDialer].
func (d *tcpProbeDialer) MutateQuery(msg *dnscodec.Query) {
	msg.MaxSize = dnscodec.QueryMaxResponseSizeTCP
}

// tlsProbeDialer implements [probeDialer] for TLS.
type tlsProbeDialer struct {
	nd TLSDialer
}

var _ probeDialer = &tlsProbeDialer{}

// DialContext implements [probeDialer].
func (d *tlsProbeDialer) DialContext(ctx context.Context, address netip.AddrPort) (probeConn, error) {
	conn, err := d.nd.DialContext(ctx, "tcp", address.String())
	if err != nil {
		return nil, err
	}
	return &streamProbeConn{conn}, nil
}

// MutateQuery implements [probeDialer].
func (d *tlsProbeDialer) MutateQuery(msg *dnscodec.Query) {
	msg.Flags |= dnscodec.QueryFlagBlockLengthPadding | dnscodec.QueryFlagDNSSec
	msg.MaxSize = dnscodec.QueryMaxResponseSizeTCP
}

// streamProbeConn adapts a [net.Conn] to [probeConn] and [probeStream].
type streamProbeConn struct {
	net.Conn
}

// CloseWithError implements [probeConn].
func (c *streamProbeConn) CloseWithError(code quic.ApplicationErrorCode, desc string) error {
	return c.Conn.Close()
}

// OpenStream implements [probeConn].
func (c *streamProbeConn) OpenStream() (probeStream, error) {
	return streamProbeStream{c.Conn}, nil
}

// streamProbeStream is the [probeStream] of a TCP or TLS connection.
type streamProbeStream struct {
	net.Conn
}

// Close implements [probeStream].
//
// The connection is closed by its owner, not by the stream.
func (streamProbeStream) Close() error {
	return nil
}

//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Adapted from: https://github.com/bassosimone/dnsoverstream
//
// See https://datatracker.ietf.org/doc/rfc7766/ and https://datatracker.ietf.org/doc/rfc9250/
//

package unboundctl

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"math"
	"net/netip"
	"time"

	"github.com/bassosimone/dnscodec"
	"github.com/bassosimone/runtimex"
	"github.com/miekg/dns"
	"github.com/quic-go/quic-go"
)

// DefaultProbeName is resolved by [*ResolutionProbe] when Name is empty.
//
// The resolver answers for localhost from its default local zones, so the
// probe does not depend on upstream connectivity.
const DefaultProbeName = "localhost"

// probeStream is a stream for DNS over TCP, TLS, or QUIC.
type probeStream interface {
	SetDeadline(t time.Time) error
	io.ReadWriter

	// Close is a no-op for TCP and TLS, where the stream is the
	// connection, and half-closes a QUIC stream.
	io.Closer
}

// probeConn abstracts over [net.Conn], [*tls.Conn], and [*quic.Conn].
type probeConn interface {
	// CloseWithError closes the connection. The code is only
	// meaningful for QUIC.
	CloseWithError(code quic.ApplicationErrorCode, desc string) error

	// OpenStream returns the connection itself for TCP and TLS
	// and a new stream for QUIC.
	OpenStream() (probeStream, error)
}

// probeDialer creates a [probeConn] and adapts queries to its protocol.
type probeDialer interface {
	DialContext(ctx context.Context, address netip.AddrPort) (probeConn, error)
	MutateQuery(msg *dnscodec.Query)
}

// ResolutionProbe checks that the resolver answers DNS queries.
//
// Construct using [NewTCPProbe], [NewTLSProbe], or [NewQUICProbe]. Each
// lookup uses a new connection to the configured endpoint.
type ResolutionProbe struct {
	// Name is the OPTIONAL name resolved by [*Service.CheckHealth].
	Name string

	dialer   probeDialer
	endpoint netip.AddrPort
}

func newResolutionProbe(dialer probeDialer, endpoint netip.AddrPort) *ResolutionProbe {
	return &ResolutionProbe{dialer: dialer, endpoint: endpoint}
}

// Endpoint returns the DNS endpoint the probe queries.
func (p *ResolutionProbe) Endpoint() netip.AddrPort {
	return p.endpoint
}

func (p *ResolutionProbe) queryName() string {
	if p.Name == "" {
		return DefaultProbeName
	}
	return p.Name
}

// LookupA resolves the A records of name.
func (p *ResolutionProbe) LookupA(ctx context.Context, name string) ([]string, error) {
	resp, err := p.exchange(ctx, dnscodec.NewQuery(name, dns.TypeA))
	if err != nil {
		return nil, err
	}
	return resp.RecordsA()
}

// exchange resolves query over a connection dialed for this query only.
func (p *ResolutionProbe) exchange(ctx context.Context, query *dnscodec.Query) (*dnscodec.Response, error) {
	queryMsg, frame, err := p.encodeQuery(query)
	if err != nil {
		return nil, err
	}
	rawResp, err := p.roundTrip(ctx, frame)
	if err != nil {
		return nil, err
	}
	respMsg := new(dns.Msg)
	if err := respMsg.Unpack(rawResp); err != nil {
		return nil, err
	}
	return dnscodec.ParseResponse(queryMsg, respMsg)
}

// encodeQuery applies the dialer settings to a copy of query and returns
// the message and its length prefixed wire form.
func (p *ResolutionProbe) encodeQuery(query *dnscodec.Query) (*dns.Msg, []byte, error) {
	query = query.Clone()
	p.dialer.MutateQuery(query)
	msg, err := query.NewMsg()
	if err != nil {
		return nil, nil, err
	}
	rawMsg, err := msg.Pack()
	if err != nil {
		return nil, nil, err
	}
	return msg, newProbeFrame(rawMsg), nil
}

// roundTrip writes frame on a new stream and returns the raw reply.
func (p *ResolutionProbe) roundTrip(ctx context.Context, frame []byte) ([]byte, error) {
	conn, err := p.dialer.DialContext(ctx, p.endpoint)
	if err != nil {
		return nil, err
	}

	// Tear the connection down on return or as soon as ctx is done.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-ctx.Done()
		conn.CloseWithError(0, "")
	}()

	stream, err := conn.OpenStream()
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = stream.SetDeadline(deadline)
		defer stream.SetDeadline(time.Time{})
	}

	if _, err := stream.Write(frame); err != nil {
		return nil, err
	}
	// Half-close so DoQ servers see the end of the query (RFC 9250).
	stream.Close()

	return readProbeFrame(bufio.NewReader(stream))
}

// newProbeFrame prefixes a raw DNS message with its 16 bit length.
func newProbeFrame(rawMsg []byte) []byte {
	runtimex.Assert(len(rawMsg) <= math.MaxUint16)
	frame := make([]byte, 0, 2+len(rawMsg))
	frame = append(frame, byte(len(rawMsg)>>8), byte(len(rawMsg)))
	return append(frame, rawMsg...)
}

// readProbeFrame reads a message prefixed with its 16 bit length.
func readProbeFrame(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	rawMsg := make([]byte, binary.BigEndian.Uint16(header[:]))
	if _, err := io.ReadFull(r, rawMsg); err != nil {
		return nil, err
	}
	return rawMsg, nil
}

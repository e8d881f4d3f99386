// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"bufio"
	"crypto/tls"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"

	"github.com/bassosimone/pkitest"
	"github.com/stretchr/testify/require"
)

// testCredentials contains the PEM files of a control setup.
type testCredentials struct {
	// serverCert is the certificate the test server presents.
	serverCert tls.Certificate

	// serverCertFile is the PEM file of serverCert.
	serverCertFile string

	// otherCertFile is a PEM certificate unrelated to serverCert.
	otherCertFile string

	// clientCertFile and clientKeyFile are the control identity.
	clientCertFile string
	clientKeyFile  string

	// serverKeyFile is the PEM key of serverCert.
	serverKeyFile string
}

// newTestCertificate creates a self-signed certificate and its key.
//
// See https://github.com/bassosimone/pkitest
func newTestCertificate(commonName string) *pkitest.SelfSignedCert {
	return pkitest.MustNewSelfSignedCert(&pkitest.SelfSignedCertConfig{
		CommonName:   commonName,
		DNSNames:     []string{commonName},
		IPAddrs:      []net.IP{net.IPv4(127, 0, 0, 1)},
		Organization: []string{"Example"},
	})
}

// writeTestFile writes data into a new file inside dir.
func writeTestFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// newTestCredentials writes server and control credentials to a temporary directory.
func newTestCredentials(t *testing.T) *testCredentials {
	t.Helper()
	dir := t.TempDir()

	server := newTestCertificate("unbound")
	serverCert, err := tls.X509KeyPair(server.CertPEM, server.KeyPEM)
	require.NoError(t, err)

	client := newTestCertificate("unbound-control")
	other := newTestCertificate("unbound")

	return &testCredentials{
		serverCert:     serverCert,
		serverCertFile: writeTestFile(t, dir, "unbound_server.pem", server.CertPEM),
		serverKeyFile:  writeTestFile(t, dir, "unbound_server.key", server.KeyPEM),
		otherCertFile:  writeTestFile(t, dir, "other_server.pem", other.CertPEM),
		clientCertFile: writeTestFile(t, dir, "unbound_control.pem", client.CertPEM),
		clientKeyFile:  writeTestFile(t, dir, "unbound_control.key", client.KeyPEM),
	}
}

// controlServer is a local server speaking the control protocol.
type controlServer struct {
	listener net.Listener
	accepted atomic.Int64
}

// newControlServer starts accepting connections on listener and runs
// handle for each of them, closing the connection when handle returns.
func newControlServer(t *testing.T, listener net.Listener, handle func(conn net.Conn)) *controlServer {
	t.Helper()
	srv := &controlServer{listener: listener}
	t.Cleanup(func() { listener.Close() })
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			srv.accepted.Add(1)
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
	return srv
}

// newTCPControlServer starts a plain TCP [*controlServer].
func newTCPControlServer(t *testing.T, handle func(conn net.Conn)) *controlServer {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return newControlServer(t, listener, handle)
}

// newTLSControlServer starts a mutually authenticated TLS [*controlServer].
func newTLSControlServer(t *testing.T, creds *testCredentials, handle func(conn net.Conn)) *controlServer {
	t.Helper()
	config := &tls.Config{
		Certificates: []tls.Certificate{creds.serverCert},
		ClientAuth:   tls.RequireAnyClientCert,
		MinVersion:   tls.VersionTLS12,
	}
	listener, err := tls.Listen("tcp", "127.0.0.1:0", config)
	require.NoError(t, err)
	return newControlServer(t, listener, handle)
}

// Address returns the server endpoint.
func (s *controlServer) Address() string {
	return s.listener.Addr().String()
}

// Accepted returns the number of accepted connections.
func (s *controlServer) Accepted() int {
	return int(s.accepted.Load())
}

// replyOnce returns a handler reading a request line and writing reply.
func replyOnce(reply string) func(conn net.Conn) {
	return func(conn net.Conn) {
		if _, err := bufio.NewReader(conn).ReadString('\n'); err != nil {
			return
		}
		io.WriteString(conn, reply)
	}
}

// replyForever returns a handler answering every request line with reply.
func replyForever(reply string) func(conn net.Conn) {
	return func(conn net.Conn) {
		br := bufio.NewReader(conn)
		for {
			if _, err := br.ReadString('\n'); err != nil {
				return
			}
			if _, err := io.WriteString(conn, reply); err != nil {
				return
			}
		}
	}
}

// neverReply returns a handler that reads until the client hangs up.
func neverReply() func(conn net.Conn) {
	return func(conn net.Conn) {
		io.Copy(io.Discard, conn)
	}
}

// newTestConfig returns a plain TCP [*Config] for address.
func newTestConfig(t *testing.T, address string) *Config {
	t.Helper()
	return newTestConfigWithParams(t, address, ConfigParams{})
}

// newTestConfigWithParams fills host and port of params from address.
func newTestConfigWithParams(t *testing.T, address string, params ConfigParams) *Config {
	t.Helper()
	host, port, err := net.SplitHostPort(address)
	require.NoError(t, err)
	params.Host = host
	params.Port, err = strconv.Atoi(port)
	require.NoError(t, err)
	config, err := NewConfig(params)
	require.NoError(t, err)
	return config
}

// unusedAddress returns a local endpoint on which nothing listens.
func unusedAddress(t *testing.T) string {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	address := listener.Addr().String()
	require.NoError(t, listener.Close())
	return address
}

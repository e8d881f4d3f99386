// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"
)

// NetDialer is typically [*net.Dialer].
type NetDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

var _ NetDialer = &net.Dialer{}

// State is the lifecycle state of a [*Client].
type State int

const (
	// StateIdle is the state of a new client.
	StateIdle State = iota

	// StateConnecting means the TCP connection is being established.
	StateConnecting

	// StateHandshaking means the TLS handshake is in progress.
	StateHandshaking

	// StateReady means commands can be sent.
	StateReady

	// StateClosed is final. A closed client cannot be reused.
	StateClosed
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Option configures a [*Client] or a [*Service].
type Option func(opts *options)

type options struct {
	dialer NetDialer
	logger SLogger
	pool   *Pool
	probe  *ResolutionProbe
}

func newOptions(opts ...Option) *options {
	o := &options{
		dialer: &net.Dialer{},
		logger: discardLogger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithDialer sets the [NetDialer] used to reach the control socket.
func WithDialer(dialer NetDialer) Option {
	return func(opts *options) {
		opts.dialer = dialer
	}
}

// WithLogger sets the [SLogger]. The default discards all events.
func WithLogger(logger SLogger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// Client is a connection to the control socket.
//
// Construct using [NewClient]. A client goes through the states documented
// by [State] exactly once: after [*Client.Close] a new client is needed.
type Client struct {
	config *Config
	dialer NetDialer
	logger SLogger

	mu    sync.Mutex
	state State
	conn  net.Conn
}

// NewClient creates a new [*Client] in [StateIdle].
func NewClient(config *Config, opts ...Option) *Client {
	o := newOptions(opts...)
	return &Client{
		config: config,
		dialer: o.dialer,
		logger: o.logger,
		state:  StateIdle,
	}
}

// State returns the current [State].
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect establishes the connection and, when configured, the TLS session.
//
// Calling Connect on a connected client is a no-op. The TCP connect and the
// TLS handshake are bounded together by [*Config.ConnectTimeout].
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateReady:
		c.mu.Unlock()
		c.logger.Debug("already connected", "remoteAddr", c.config.Address())
		return nil
	case StateClosed:
		c.mu.Unlock()
		return newError(KindUsage, ErrClientClosed)
	case StateConnecting, StateHandshaking:
		c.mu.Unlock()
		return newError(KindUsage, errors.New("connect already in progress"))
	}
	c.state = StateConnecting
	c.mu.Unlock()

	conn, err := c.connect(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateClosed
		return err
	}
	c.conn = conn
	c.state = StateReady
	return nil
}

func (c *Client) setState(state State) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

func (c *Client) connect(ctx context.Context) (net.Conn, error) {
	// 1. Build the TLS config from the material loaded by NewConfig.
	var tlsConfig *tls.Config
	if c.config.UseTLS() {
		tlsConfig = newTLSConfig(c.config)
	}

	// 2. Bound connect and handshake with the connect timeout.
	connectCtx, cancel := context.WithTimeout(ctx, c.config.ConnectTimeout())
	defer cancel()

	// 3. Dial the control socket.
	address := c.config.Address()
	t0 := time.Now()
	c.logger.Info("connectStart", "remoteAddr", address, "protocol", "tcp", "t", t0)
	conn, err := c.dialer.DialContext(connectCtx, "tcp", address)
	c.logger.Info("connectDone", "remoteAddr", address, "protocol", "tcp",
		"t0", t0, "t", time.Now(), "err", errString(err))
	if err != nil {
		return nil, classifyDialError(ctx, connectCtx, address, err)
	}
	if tlsConfig == nil {
		return conn, nil
	}

	// 4. Upgrade to TLS, closing the socket if the handshake fails.
	c.setState(StateHandshaking)
	tlsConn := tls.Client(conn, tlsConfig)
	t0 = time.Now()
	c.logger.Info("tlsHandshakeStart", "remoteAddr", address, "protocol", "tcp", "t", t0)
	err = tlsConn.HandshakeContext(connectCtx)
	c.logger.Info("tlsHandshakeDone", "remoteAddr", address, "protocol", "tcp",
		"t0", t0, "t", time.Now(), "err", errString(err))
	if err != nil {
		conn.Close()
		return nil, classifyHandshakeError(ctx, connectCtx, address, err)
	}
	return tlsConn, nil
}

// newTLSConfig returns the client [*tls.Config] for config.
//
// The pinned certificate is the only thing the server certificate is checked
// against, hence InsecureSkipVerify disables chain and hostname validation.
func newTLSConfig(config *Config) *tls.Config {
	tlsConfig := &tls.Config{
		Certificates:          []tls.Certificate{config.identity},
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: config.pin.VerifyPeerCertificate,
		MinVersion:            tls.VersionTLS12,
		MaxVersion:            tls.VersionTLS13,
	}
	if _, err := netip.ParseAddr(config.Host()); err != nil {
		tlsConfig.ServerName = config.Host()
	}
	return tlsConfig
}

func classifyHandshakeError(parent, connectCtx context.Context, address string, err error) *Error {
	if parent.Err() != nil {
		return newError(KindCanceled, fmt.Errorf("tls handshake with %s: %w", address, parent.Err()))
	}
	if connectCtx.Err() != nil {
		return newError(KindConnectTimeout, fmt.Errorf("connection timeout: tls handshake with %s did not complete", address))
	}
	return newError(KindTLSHandshake, fmt.Errorf("tls handshake with %s: %w", address, err))
}

// Send writes cmd and reads the reply.
//
// Sending on a client that is not in [StateReady] returns a [KindUsage]
// error. An empty command, or an argument that is not printable ASCII,
// returns a [KindConfiguration] error wrapping a [*CommandError] without
// any I/O. A reply starting with "error" is returned as a [*Response] with
// Success set to false, not as an error. If ctx is done during I/O, the
// connection is closed and the error has [KindCanceled].
func (c *Client) Send(ctx context.Context, cmd Command) (*Response, error) {
	c.mu.Lock()
	if c.state != StateReady {
		state := c.state
		c.mu.Unlock()
		return nil, newError(KindUsage, fmt.Errorf("%w (state: %s)", ErrNotReady, state))
	}
	conn := c.conn
	c.mu.Unlock()

	if err := validateCommand(cmd); err != nil {
		return nil, newError(KindConfiguration, err)
	}

	// 1. React to ctx being done by closing the connection, which makes
	// blocking reads and writes fail immediately. The watcher is joined
	// before returning, and a connection it closed retires the client.
	stop := make(chan struct{})
	watcherClosed := make(chan bool, 1)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
			watcherClosed <- true
		case <-stop:
			watcherClosed <- false
		}
	}()
	defer func() {
		close(stop)
		if <-watcherClosed {
			c.Close()
		}
	}()

	// 2. Use the context deadline to limit the exchange lifetime.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}

	// 3. Send the request line and the optional payload.
	c.logger.Info("controlRequest", "remoteAddr", c.config.Address(), "command", cmd.Name(),
		"args", cmd.String(), "payloadLength", len(cmd.Payload), "endMarker", sendsEndMarker(cmd),
		"t", time.Now())
	if err := WriteRequest(conn, cmd); err != nil {
		c.Close()
		return nil, classifyIOError(ctx, "send", err)
	}

	// 4. Drain the reply.
	read := ReadResponse
	if c.config.ResponseMode() == ResponseModeUntilClose {
		read = ReadResponseUntilClose
	}
	resp, err := read(conn)
	if err != nil {
		c.Close()
		return nil, classifyIOError(ctx, "read", err)
	}
	c.logger.Info("controlResponse", "remoteAddr", c.config.Address(), "command", cmd.Name(),
		"length", len(resp.Text), "success", resp.Success, "t", time.Now())
	if !resp.Success {
		c.logger.Warn("command returned error", "command", cmd.String())
	}
	return resp, nil
}

// Close releases the TLS session and the socket.
//
// Close is idempotent and may be called in any state. A socket that was
// already closed because a context was done is not reported as an error.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed && c.conn == nil {
		return nil
	}
	c.state = StateClosed
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	c.conn = nil
	c.logger.Debug("closeDone", "remoteAddr", c.config.Address(), "err", errString(err))
	return err
}

// isAlive reports whether a ready client's connection is still open.
//
// It performs a read with a short deadline: a timeout means the peer has
// neither closed the stream nor sent unsolicited data.
func (c *Client) isAlive() bool {
	c.mu.Lock()
	conn, state := c.conn, c.state
	c.mu.Unlock()
	if state != StateReady || conn == nil {
		return false
	}
	if err := conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		return false
	}
	defer conn.SetReadDeadline(time.Time{})
	var buff [1]byte
	_, err := conn.Read(buff[:])
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

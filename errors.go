// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Sentinel errors. Use [errors.Is] to test for them.
var (
	// ErrFileNotFound indicates that a certificate or key file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrMalformedCertificate indicates that a PEM file could not be parsed or
	// that a certificate does not match its private key.
	ErrMalformedCertificate = errors.New("malformed certificate")

	// ErrConnectionRefused indicates that the control socket refused the connection.
	ErrConnectionRefused = errors.New("connection refused")

	// ErrCertificatePinMismatch indicates that the server presented a certificate
	// whose fingerprint differs from the pinned one.
	ErrCertificatePinMismatch = errors.New("server certificate does not match pinned certificate")

	// ErrNoPeerCertificate indicates that the server presented no certificate.
	ErrNoPeerCertificate = errors.New("server presented no certificate")

	// ErrNotReady indicates that a command was sent on a client that is not connected.
	ErrNotReady = errors.New("not connected to server")

	// ErrClientClosed indicates that a closed client was used again.
	ErrClientClosed = errors.New("client already closed")

	// ErrServerError indicates that the server reply started with the error marker.
	ErrServerError = errors.New("server returned an error")
)

// ErrorKind classifies an [*Error].
type ErrorKind int

const (
	// KindConfiguration is an invalid configuration, unusable TLS material,
	// or a command that cannot be encoded on the wire.
	KindConfiguration ErrorKind = iota + 1

	// KindConnectTimeout means the connection attempt exceeded its bound.
	KindConnectTimeout

	// KindTransport is a socket level failure such as a refused or reset
	// connection. It also covers a [*Pool] closed during shutdown.
	KindTransport

	// KindTLSHandshake is a failed TLS handshake, including pin mismatches.
	KindTLSHandshake

	// KindProtocol means the server reply started with the error marker.
	KindProtocol

	// KindCanceled means the caller's context was done during send or read.
	KindCanceled

	// KindUsage is a programming error such as sending before connecting.
	KindUsage
)

// String implements [fmt.Stringer].
func (k ErrorKind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration error"
	case KindConnectTimeout:
		return "connect timeout"
	case KindTransport:
		return "transport error"
	case KindTLSHandshake:
		return "tls handshake failure"
	case KindProtocol:
		return "protocol failure"
	case KindCanceled:
		return "canceled"
	case KindUsage:
		return "usage error"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the error type returned by this package.
//
// Every failure carries exactly one [ErrorKind] and a human readable cause.
type Error struct {
	// Kind classifies the failure.
	Kind ErrorKind

	// Err is the underlying cause.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return e.Err.Error()
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the [ErrorKind] of err, or zero if err is not an [*Error].
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// IsUsageError reports whether err signals a programming error.
func IsUsageError(err error) bool {
	return KindOf(err) == KindUsage
}

// classifyDialError maps a dial failure to an [*Error].
//
// The connectCtx is the context bounded by the connect timeout, while parent
// is the caller's context. A deadline on connectCtx that the parent did not
// cause is a connect timeout.
func classifyDialError(parent, connectCtx context.Context, address string, err error) *Error {
	if parent.Err() != nil {
		return newError(KindCanceled, fmt.Errorf("connect to %s: %w", address, parent.Err()))
	}
	if errors.Is(connectCtx.Err(), context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return newError(KindConnectTimeout, fmt.Errorf("connection timeout: could not connect to %s", address))
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindConnectTimeout, fmt.Errorf("connection timeout: could not connect to %s", address))
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return newError(KindTransport, fmt.Errorf("%w: %s", ErrConnectionRefused, address))
	}
	return newError(KindTransport, fmt.Errorf("connect to %s: %w", address, err))
}

// classifyIOError maps a send or read failure to an [*Error].
func classifyIOError(ctx context.Context, op string, err error) *Error {
	if ctx.Err() != nil {
		return newError(KindCanceled, fmt.Errorf("%s: %w", op, ctx.Err()))
	}
	// The connection deadline mirrors the ctx deadline and may fire first.
	if _, ok := ctx.Deadline(); ok && errors.Is(err, os.ErrDeadlineExceeded) {
		return newError(KindCanceled, fmt.Errorf("%s: %w", op, context.DeadlineExceeded))
	}
	return newError(KindTransport, fmt.Errorf("%s: %w", op, err))
}

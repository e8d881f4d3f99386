// SPDX-License-Identifier: GPL-3.0-or-later

// Package unboundctl implements a client for the unbound remote control protocol.
//
// A request is the line "UBCT1" followed by the space separated command
// arguments. Some commands are followed by a payload terminated by the
// bytes 0x04 0x0a (see [RequiresPayload] and [WriteRequest]). The reply is
// unstructured text and a reply starting with "error" is a failure.
//
// The protocol is ASCII. Arguments must be printable ASCII, so that no
// argument can start a second request line. Other characters in a payload
// are sent as '?' and reply bytes above 0x7f are read as '?'.
//
// The connection is plain TCP or mutually authenticated TLS. With TLS, the
// server certificate is checked against a pinned certificate only (see
// [PinnedCertificate]), which is equivalent to trust on first use. The
// certificate and key files are loaded once, by [NewConfig].
//
// [*Service] uses one connection per command unless configured with a
// [*Pool]. The replies have no length field, so [ReadResponse] stops at the
// first short read and classifies the reply from its first chunk only. See
// [ResponseModeUntilClose] for replies that are a multiple of [ResponseChunkSize].
//
// [*Service.CheckHealth] can also resolve a name through the resolver's DNS
// listener using DNS over TCP, TLS, or QUIC (see [ResolutionProbe]).
//
// Logging is disabled by default. Use [WithLogger] with a *slog.Logger.
package unboundctl

// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"
)

// ProtocolVersion is the version tag that starts every request line.
const ProtocolVersion = "UBCT1"

// PayloadEndMarker terminates the payload of commands other than load_cache.
var PayloadEndMarker = []byte{0x04, 0x0a}

// commandLoadCache reads its payload without an end marker.
const commandLoadCache = "load_cache"

// payloadCommands lists the commands after which the server reads a payload.
//
// This set must match what the server expects.
var payloadCommands = map[string]bool{
	"verbosity":         true,
	"local_zone":        true,
	"local_zone_remove": true,
	"local_data":        true,
	"local_data_remove": true,
	"lookup":            true,
	"flush":             true,
	"flush_type":        true,
	"flush_zone":        true,
	"flush_infra":       true,
	"set_option":        true,
	"get_option":        true,
	"forward_add":       true,
	"forward_remove":    true,
	"stub_add":          true,
	"stub_remove":       true,
	"forward":           true,
}

// RequiresPayload reports whether the server reads a payload after the
// request line of the named command.
func RequiresPayload(name string) bool {
	return payloadCommands[name]
}

// EncodeCommand returns the request line for cmd.
//
// The line is "UBCT1 " followed by the space joined arguments and a newline.
func EncodeCommand(cmd Command) []byte {
	var sb strings.Builder
	sb.Grow(256)
	sb.WriteString(ProtocolVersion)
	sb.WriteByte(' ')
	sb.WriteString(strings.Join(cmd.Args, " "))
	sb.WriteByte('\n')
	return []byte(sb.String())
}

// validateCommand checks that cmd has a name and that every argument is
// printable ASCII, so that the request is exactly one line.
func validateCommand(cmd Command) error {
	if cmd.Name() == "" {
		return &CommandError{Reason: "empty command"}
	}
	for _, arg := range cmd.Args {
		for i := 0; i < len(arg); i++ {
			if c := arg[i]; c < 0x20 || c > 0x7e {
				return &CommandError{Command: cmd.Name(), Value: arg, Reason: "argument must be printable ASCII"}
			}
		}
	}
	return nil
}

// encodePayload returns payload with every non-ASCII character, or invalid
// UTF-8 byte, replaced by '?'.
func encodePayload(payload []byte) []byte {
	ascii := true
	for _, c := range payload {
		if c >= utf8.RuneSelf {
			ascii = false
			break
		}
	}
	if ascii {
		return payload
	}
	out := make([]byte, 0, len(payload))
	for len(payload) > 0 {
		r, size := utf8.DecodeRune(payload)
		if r >= utf8.RuneSelf {
			r = '?'
		}
		out = append(out, byte(r))
		payload = payload[size:]
	}
	return out
}

// sendsPayload reports whether WriteRequest writes cmd's payload.
func sendsPayload(cmd Command) bool {
	return len(cmd.Payload) > 0 && RequiresPayload(cmd.Name())
}

// sendsEndMarker reports whether WriteRequest writes [PayloadEndMarker] for cmd.
func sendsEndMarker(cmd Command) bool {
	return sendsPayload(cmd) && cmd.Name() != commandLoadCache
}

// WriteRequest writes cmd to w.
//
// The request line is flushed on its own. When the command requires a payload
// and one is present, the payload follows, then [PayloadEndMarker] unless the
// command is load_cache, then a second flush. The payload is sent as ASCII:
// other characters become '?'.
func WriteRequest(w io.Writer, cmd Command) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(EncodeCommand(cmd)); err != nil {
		return err
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if !sendsPayload(cmd) {
		return nil
	}
	if _, err := bw.Write(encodePayload(cmd.Payload)); err != nil {
		return err
	}
	if sendsEndMarker(cmd) {
		if _, err := bw.Write(PayloadEndMarker); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// SPDX-License-Identifier: GPL-3.0-or-later

package unboundctl

import (
	"errors"
	"fmt"
	"io"
	"strings"
)

// ResponseChunkSize is the size of each read while draining a reply.
const ResponseChunkSize = 4096

// errorMarker starts the first chunk of a failed reply.
const errorMarker = "error"

// Response is a reply read from the control socket.
type Response struct {
	// Text is the whole reply.
	Text string

	// Success is false iff the first chunk started with "error".
	Success bool
}

// Err returns a [KindProtocol] error wrapping [ErrServerError] for a failed
// reply and nil otherwise.
func (r *Response) Err() error {
	if r.Success {
		return nil
	}
	return newError(KindProtocol, fmt.Errorf("%w: %s", ErrServerError, strings.TrimSpace(r.Text)))
}

// ReadResponse drains a reply from r.
//
// The protocol has no length field and no terminator for replies, so
// reading stops when a read returns no bytes or fewer than
// [ResponseChunkSize] bytes. A reply whose length is an exact multiple
// of [ResponseChunkSize] therefore needs the server to close the stream.
//
// The reply is decoded as ASCII: bytes above 0x7f become '?'.
//
// Success is decided from the first chunk only. An error line that only
// appears in a later chunk does not flip it.
func ReadResponse(r io.Reader) (*Response, error) {
	return readResponse(r, true)
}

// ReadResponseUntilClose is like [ReadResponse] but keeps reading until the
// server closes the stream, regardless of short reads.
func ReadResponseUntilClose(r io.Reader) (*Response, error) {
	return readResponse(r, false)
}

// decodeASCII returns data as a string with every byte above 0x7f replaced by '?'.
func decodeASCII(data []byte) string {
	out := append([]byte(nil), data...)
	for i, c := range out {
		if c > 0x7f {
			out[i] = '?'
		}
	}
	return string(out)
}

func readResponse(r io.Reader, stopOnShortRead bool) (*Response, error) {
	var (
		sb      strings.Builder
		success = true
		first   = true
		buffer  = make([]byte, ResponseChunkSize)
	)
	for {
		count, err := r.Read(buffer)
		if count > 0 {
			chunk := decodeASCII(buffer[:count])
			sb.WriteString(chunk)
			if first && strings.HasPrefix(chunk, errorMarker) {
				success = false
			}
			first = false
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if count == 0 {
			break
		}
		if stopOnShortRead && count < len(buffer) {
			break
		}
	}
	return &Response{Text: sb.String(), Success: success}, nil
}

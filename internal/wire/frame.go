// Package wire implements the proconq chat transport's framing codec (§4.A):
// a 4-digit ASCII decimal length prefix followed by exactly that many bytes
// of payload. The codec never looks inside the payload — encryption happens
// one layer up, in internal/cryptosuite.
package wire

import (
	"errors"
	"fmt"
	"io"
)

// MaxPayload is the largest payload the 4-digit length prefix can encode.
const MaxPayload = 9999

// ErrPayloadTooLarge is returned by WriteFrame when payload exceeds MaxPayload.
var ErrPayloadTooLarge = errors.New("wire: payload exceeds 9999 bytes")

// ErrShortRead is returned by ReadFrame when the connection closes or errors
// mid-frame. Per §7 this is a FramingError and is fatal for the connection.
var ErrShortRead = errors.New("wire: short read")

// ErrBadLength is returned when the 4-byte length prefix is not 4 ASCII digits.
var ErrBadLength = errors.New("wire: malformed length prefix")

// WriteFrame encodes payload's length as 4 zero-padded ASCII digits and
// writes the length prefix followed by payload in a single call.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxPayload {
		return ErrPayloadTooLarge
	}
	frame := make([]byte, 4+len(payload))
	copy(frame, fmt.Sprintf("%04d", len(payload)))
	copy(frame[4:], payload)
	_, err := w.Write(frame)
	return err
}

// ReadFrame reads a 4-digit length prefix then exactly that many payload
// bytes. Any short read or non-digit prefix is fatal for the connection per
// §7's FramingError.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
	}

	size := 0
	for _, b := range lenBuf {
		if b < '0' || b > '9' {
			return nil, ErrBadLength
		}
		size = size*10 + int(b-'0')
	}

	payload := make([]byte, size)
	if size > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrShortRead, err)
		}
	}
	return payload, nil
}

// internal/frame/frame.go
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// PrefixLen is the size of the big-endian length prefix preceding every frame.
const PrefixLen = 4

var (
	ErrShortFrame     = errors.New("frame: connection closed mid-frame")
	ErrNegativeLength = errors.New("frame: negative length prefix")
	ErrFrameTooLarge  = errors.New("frame: payload too large")
)

// Limits constrains frame decode/encode memory use.
type Limits struct {
	MaxFrameBytes int
}

func DefaultLimits() Limits {
	return Limits{MaxFrameBytes: 64 * 1024 * 1024}
}

// ReadFrame reads one length-prefixed frame. A clean close before the prefix
// returns io.EOF; a close anywhere after it returns ErrShortFrame. A zero-length
// frame yields an empty, non-nil slice.
func ReadFrame(r io.Reader, limits Limits) ([]byte, error) {
	var prefix [PrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortFrame
		}
		return nil, err
	}

	n := int32(binary.BigEndian.Uint32(prefix[:]))
	if n < 0 {
		return nil, fmt.Errorf("%w: %d", ErrNegativeLength, n)
	}
	if limits.MaxFrameBytes > 0 && int(n) > limits.MaxFrameBytes {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limits.MaxFrameBytes)
	}

	payload := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				return nil, ErrShortFrame
			}
			return nil, err
		}
	}
	return payload, nil
}

// WriteFrame writes the prefix and payload with a single Write call.
func WriteFrame(w io.Writer, payload []byte, limits Limits) error {
	if len(payload) > math.MaxInt32 {
		return fmt.Errorf("%w: %d exceeds int32", ErrFrameTooLarge, len(payload))
	}
	if limits.MaxFrameBytes > 0 && len(payload) > limits.MaxFrameBytes {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), limits.MaxFrameBytes)
	}

	buf := make([]byte, PrefixLen+len(payload))
	binary.BigEndian.PutUint32(buf[:PrefixLen], uint32(len(payload)))
	copy(buf[PrefixLen:], payload)
	_, err := w.Write(buf)
	return err
}

// WriteHandshake sends the zero-length "worker ready" marker.
func WriteHandshake(w io.Writer) error {
	return WriteFrame(w, nil, Limits{})
}

// IsHandshake reports whether a frame read by ReadFrame was the zero-length marker.
func IsHandshake(payload []byte) bool {
	return len(payload) == 0
}

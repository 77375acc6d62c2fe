package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"
)

func TestReadWriteFrameRoundTrip(t *testing.T) {
	payload := []byte("batch-envelope-bytes")
	var buf bytes.Buffer
	if err := WriteFrame(&buf, payload, DefaultLimits()); err != nil {
		t.Fatalf("write frame: %v", err)
	}
	if buf.Len() != PrefixLen+len(payload) {
		t.Fatalf("unexpected wire size: %d", buf.Len())
	}
	if got := binary.BigEndian.Uint32(buf.Bytes()[:PrefixLen]); got != uint32(len(payload)) {
		t.Fatalf("length prefix mismatch: got=%d", got)
	}

	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	if !bytes.Equal(out, payload) {
		t.Fatalf("payload mismatch: %q", out)
	}
}

func TestHandshakeIsFourZeroBytes(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHandshake(&buf); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), []byte{0, 0, 0, 0}) {
		t.Fatalf("handshake bytes: %v", buf.Bytes())
	}
	out, err := ReadFrame(&buf, DefaultLimits())
	if err != nil {
		t.Fatalf("read handshake: %v", err)
	}
	if !IsHandshake(out) {
		t.Fatalf("expected handshake, got %d bytes", len(out))
	}
}

func TestReadFrameCleanEOF(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader(nil), DefaultLimits())
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestReadFrameShortPrefix(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0, 0}), DefaultLimits())
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestReadFrameShortPayload(t *testing.T) {
	wire := []byte{0, 0, 0, 10, 'a', 'b', 'c'}
	_, err := ReadFrame(bytes.NewReader(wire), DefaultLimits())
	if !errors.Is(err, ErrShortFrame) {
		t.Fatalf("expected ErrShortFrame, got %v", err)
	}
}

func TestReadFrameNegativeLength(t *testing.T) {
	_, err := ReadFrame(bytes.NewReader([]byte{0xff, 0xff, 0xff, 0xfe}), DefaultLimits())
	if !errors.Is(err, ErrNegativeLength) {
		t.Fatalf("expected ErrNegativeLength, got %v", err)
	}
}

func TestFrameLimits(t *testing.T) {
	limits := Limits{MaxFrameBytes: 8}
	if err := WriteFrame(io.Discard, make([]byte, 9), limits); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected write ErrFrameTooLarge, got %v", err)
	}
	wire := []byte{0, 0, 0, 9}
	if _, err := ReadFrame(bytes.NewReader(wire), limits); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected read ErrFrameTooLarge, got %v", err)
	}
}

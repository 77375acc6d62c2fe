// Package serializer converts per-job payloads between wire bytes and values.
//
// The mode is fixed when the Serializer is built and holds for the whole
// connection: compact binary (msgpack) or UTF-8 JSON text. Unpacked values are
// normalized to nil, bool, int64, float64, string, []byte, []any and
// map[string]any so both modes hand the same shapes to schema validation.
// Binary mode keeps bin values as []byte at any depth. A JSON integer outside
// the int64 range stays a json.Number so its digits survive a repack.
package serializer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

// StructTag is shared by both modes so struct results encode with the same keys.
const StructTag = "json"

// Mode selects the payload encoding.
type Mode int

const (
	Text Mode = iota
	Binary
)

func (m Mode) String() string {
	if m == Binary {
		return "msgpack"
	}
	return "json"
}

// ErrExtraData is returned when bytes remain after a complete value.
var ErrExtraData = errors.New("extra data")

// DecodeError reports malformed payload bytes. Error returns the parser's
// message unchanged so it can be sent back to the front-end as is.
type DecodeError struct {
	Mode Mode
	Err  error
}

func (e *DecodeError) Error() string { return e.Err.Error() }

func (e *DecodeError) Unwrap() error { return e.Err }

// Serializer packs and unpacks payloads in one Mode.
type Serializer struct {
	mode Mode
}

// New returns a binary serializer when useMsgpack is set, a JSON one otherwise.
func New(useMsgpack bool) *Serializer {
	if useMsgpack {
		return &Serializer{mode: Binary}
	}
	return &Serializer{mode: Text}
}

func (s *Serializer) Mode() Mode { return s.mode }

// Binary reports whether payloads are msgpack encoded.
func (s *Serializer) Binary() bool { return s.mode == Binary }

// Pack encodes v.
func (s *Serializer) Pack(v any) ([]byte, error) {
	if s.mode == Binary {
		return MarshalMsgpack(v)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("serializer: json encode: %w", err)
	}
	return b, nil
}

// Unpack decodes b. Malformed input always yields a *DecodeError.
func (s *Serializer) Unpack(b []byte) (any, error) {
	var (
		v   any
		err error
	)
	if s.mode == Binary {
		v, err = unpackMsgpack(b)
	} else {
		v, err = unpackJSON(b)
	}
	if err != nil {
		return nil, &DecodeError{Mode: s.mode, Err: err}
	}
	return v, nil
}

// NewMsgpackEncoder returns an encoder configured for this module's wire format.
func NewMsgpackEncoder(w io.Writer) *msgpack.Encoder {
	enc := msgpack.NewEncoder(w)
	enc.SetCustomStructTag(StructTag)
	enc.SetSortMapKeys(true)
	enc.UseCompactInts(true)
	return enc
}

// NewMsgpackDecoder returns a decoder configured for this module's wire format.
func NewMsgpackDecoder(r io.Reader) *msgpack.Decoder {
	dec := msgpack.NewDecoder(r)
	dec.SetCustomStructTag(StructTag)
	return dec
}

// MarshalMsgpack encodes v with NewMsgpackEncoder.
func MarshalMsgpack(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewMsgpackEncoder(&buf).Encode(v); err != nil {
		return nil, fmt.Errorf("serializer: msgpack encode: %w", err)
	}
	return buf.Bytes(), nil
}

func unpackMsgpack(b []byte) (any, error) {
	r := bytes.NewReader(b)
	v, err := NewMsgpackDecoder(r).DecodeInterface()
	if err != nil {
		return nil, err
	}
	if r.Len() > 0 {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrExtraData, r.Len())
	}
	return normalize(v), nil
}

func unpackJSON(b []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, ErrExtraData
	}
	return normalize(v), nil
}

func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, item := range t {
			t[k] = normalize(item)
		}
		return t
	case []any:
		for i, item := range t {
			t[i] = normalize(item)
		}
		return t
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if isInteger(t) {
			return t
		}
		f, _ := t.Float64()
		return f
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return normalize(uint64(t))
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return t
	case float32:
		return float64(t)
	default:
		return v
	}
}

// isInteger reports whether a JSON number has no fraction or exponent.
func isInteger(n json.Number) bool {
	return !strings.ContainsAny(string(n), ".eE")
}

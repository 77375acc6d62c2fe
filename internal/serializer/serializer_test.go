package serializer

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func sampleValue() map[string]any {
	return map[string]any{
		"null":   nil,
		"flag":   true,
		"count":  int64(-42),
		"big":    int64(1 << 40),
		"ratio":  1.5,
		"text":   "héllo",
		"list":   []any{int64(1), "two", false},
		"nested": map[string]any{"k": []any{}},
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	s := New(true)
	in := sampleValue()
	in["raw"] = []byte{0x00, 0xff, 0x10}
	in["docs"] = []any{map[string]any{"blob": []byte("y")}, []byte{0x01}}

	b, err := s.Pack(in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out, err := s.Unpack(b)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !reflect.DeepEqual(out, any(in)) {
		t.Fatalf("roundtrip mismatch:\n got=%#v\nwant=%#v", out, in)
	}
}

func TestTextRoundTrip(t *testing.T) {
	s := New(false)
	in := sampleValue()

	b, err := s.Pack(in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out, err := s.Unpack(b)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if !reflect.DeepEqual(out, any(in)) {
		t.Fatalf("roundtrip mismatch:\n got=%#v\nwant=%#v", out, in)
	}
}

func TestBinaryWidensNumbers(t *testing.T) {
	s := New(true)
	in := map[string]any{
		"i8":  int8(-3),
		"i16": int16(-300),
		"i32": int32(-70000),
		"u8":  uint8(200),
		"u16": uint16(60000),
		"u32": uint32(4000000000),
		"f32": float32(0.5),
	}
	b, err := s.Pack(in)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	out, err := s.Unpack(b)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	want := map[string]any{
		"i8":  int64(-3),
		"i16": int64(-300),
		"i32": int64(-70000),
		"u8":  int64(200),
		"u16": int64(60000),
		"u32": int64(4000000000),
		"f32": float64(0.5),
	}
	if !reflect.DeepEqual(out, any(want)) {
		t.Fatalf("unexpected values:\n got=%#v\nwant=%#v", out, want)
	}
}

func TestTextKeepsLargeIntegersExact(t *testing.T) {
	s := New(false)
	out, err := s.Unpack([]byte(`{"id":12345678901234567890,"neg":-99999999999999999999,"f":1e3}`))
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	m := out.(map[string]any)
	if m["id"] != json.Number("12345678901234567890") {
		t.Fatalf("id=%#v", m["id"])
	}
	if m["neg"] != json.Number("-99999999999999999999") {
		t.Fatalf("neg=%#v", m["neg"])
	}
	if m["f"] != float64(1000) {
		t.Fatalf("f=%#v", m["f"])
	}

	b, err := s.Pack(map[string]any{"id": m["id"]})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if string(b) != `{"id":12345678901234567890}` {
		t.Fatalf("repacked=%s", b)
	}
}

func TestPackStructUsesJSONTags(t *testing.T) {
	type result struct {
		Spam bool `json:"spam"`
	}
	for _, useMsgpack := range []bool{true, false} {
		s := New(useMsgpack)
		b, err := s.Pack(result{Spam: true})
		if err != nil {
			t.Fatalf("%s pack: %v", s.Mode(), err)
		}
		out, err := s.Unpack(b)
		if err != nil {
			t.Fatalf("%s unpack: %v", s.Mode(), err)
		}
		if !reflect.DeepEqual(out, any(map[string]any{"spam": true})) {
			t.Errorf("%s unexpected value: %#v", s.Mode(), out)
		}
	}
}

func TestUnpackMalformed(t *testing.T) {
	cases := []struct {
		name       string
		useMsgpack bool
		data       []byte
	}{
		{"json syntax", false, []byte(`{"text":`)},
		{"json trailing", false, []byte(`{"a":1} {"b":2}`)},
		{"json empty", false, nil},
		{"msgpack truncated", true, []byte{0x82, 0xa1, 'a'}},
		{"msgpack trailing", true, []byte{0x01, 0x02}},
		{"msgpack empty", true, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.useMsgpack).Unpack(tc.data)
			var decErr *DecodeError
			if !errors.As(err, &decErr) {
				t.Fatalf("expected *DecodeError, got %v", err)
			}
			if decErr.Error() == "" {
				t.Fatalf("expected parser message")
			}
		})
	}
}

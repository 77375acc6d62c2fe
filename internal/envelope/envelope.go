// Package envelope encodes the outer batch structure exchanged with the
// batching front-end: an ordered msgpack map from job id to payload bytes.
//
// The envelope is always msgpack, whatever the payload mode. Map order on the
// wire is batch order and is preserved in both directions.
package envelope

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/SyedDaiam9101/batch-worker/internal/serializer"
)

// ErrorIDsKey is the reserved response key listing jobs whose payload is an
// error description. Job ids assigned by the front-end never take this value.
const ErrorIDsKey = "error_ids"

var (
	ErrNotMap            = errors.New("envelope: top-level value is not a map")
	ErrMismatchedResults = errors.New("envelope: ids and results differ in length")
)

// Request is a decoded inbound batch. IDs[i] owns Payloads[i].
type Request struct {
	IDs      []string
	Payloads [][]byte
}

func (r Request) Len() int { return len(r.IDs) }

// Response is an outbound batch aligned 1:1 with the Request it answers.
// ErrorIDs is the concatenation of the ids whose payload is an error.
// Text marks payloads as JSON text, written as msgpack str instead of bin.
// ErrorCount is the number of ids in ErrorIDs; it is not sent on the wire.
type Response struct {
	IDs        []string
	Payloads   [][]byte
	ErrorIDs   string
	ErrorCount int
	Text       bool
}

// DecodeRequest unpacks an inbound frame. A reserved error_ids key is ignored.
// A repeated id keeps its first position and takes the last value.
func DecodeRequest(b []byte) (Request, error) {
	var req Request
	pos := make(map[string]int)
	err := decodeMap(b, func(dec *msgpack.Decoder, key string) error {
		if key == ErrorIDsKey {
			return dec.Skip()
		}
		payload, err := dec.DecodeBytes()
		if err != nil {
			return fmt.Errorf("envelope: job %q: %w", key, err)
		}
		if i, ok := pos[key]; ok {
			req.Payloads[i] = payload
			return nil
		}
		pos[key] = len(req.IDs)
		req.IDs = append(req.IDs, key)
		req.Payloads = append(req.Payloads, payload)
		return nil
	})
	if err != nil {
		return Request{}, err
	}
	return req, nil
}

// EncodeResponse zips ids with payloads positionally and adds error_ids only
// when it is non-empty.
func EncodeResponse(resp Response) ([]byte, error) {
	if len(resp.IDs) != len(resp.Payloads) {
		return nil, fmt.Errorf("%w: %d ids, %d results", ErrMismatchedResults, len(resp.IDs), len(resp.Payloads))
	}
	n := len(resp.IDs)
	if resp.ErrorIDs != "" {
		n++
	}

	var buf bytes.Buffer
	enc := serializer.NewMsgpackEncoder(&buf)
	if err := enc.EncodeMapLen(n); err != nil {
		return nil, err
	}
	for i, id := range resp.IDs {
		if err := enc.EncodeString(id); err != nil {
			return nil, err
		}
		var err error
		if resp.Text {
			err = enc.EncodeString(string(resp.Payloads[i]))
		} else {
			err = enc.EncodeBytes(resp.Payloads[i])
		}
		if err != nil {
			return nil, err
		}
	}
	if resp.ErrorIDs != "" {
		if err := enc.EncodeString(ErrorIDsKey); err != nil {
			return nil, err
		}
		if err := enc.EncodeString(resp.ErrorIDs); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// EncodeRequest is the front-end side of DecodeRequest.
func EncodeRequest(req Request) ([]byte, error) {
	if len(req.IDs) != len(req.Payloads) {
		return nil, fmt.Errorf("%w: %d ids, %d payloads", ErrMismatchedResults, len(req.IDs), len(req.Payloads))
	}
	var buf bytes.Buffer
	enc := serializer.NewMsgpackEncoder(&buf)
	if err := enc.EncodeMapLen(len(req.IDs)); err != nil {
		return nil, err
	}
	for i, id := range req.IDs {
		if err := enc.EncodeString(id); err != nil {
			return nil, err
		}
		if err := enc.EncodeBytes(req.Payloads[i]); err != nil {
			return nil, err
		}
	}
	return buf.Bytes(), nil
}

// DecodeResponse is the front-end side of EncodeResponse. Text is left false;
// payloads come back as bytes whichever msgpack type carried them.
func DecodeResponse(b []byte) (Response, error) {
	var resp Response
	err := decodeMap(b, func(dec *msgpack.Decoder, key string) error {
		if key == ErrorIDsKey {
			ids, err := dec.DecodeString()
			if err != nil {
				return fmt.Errorf("envelope: %s: %w", ErrorIDsKey, err)
			}
			resp.ErrorIDs = ids
			return nil
		}
		payload, err := dec.DecodeBytes()
		if err != nil {
			return fmt.Errorf("envelope: job %q: %w", key, err)
		}
		resp.IDs = append(resp.IDs, key)
		resp.Payloads = append(resp.Payloads, payload)
		return nil
	})
	if err != nil {
		return Response{}, err
	}
	return resp, nil
}

func decodeMap(b []byte, entry func(dec *msgpack.Decoder, key string) error) error {
	r := bytes.NewReader(b)
	dec := serializer.NewMsgpackDecoder(r)
	n, err := dec.DecodeMapLen()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotMap, err)
	}
	if n < 0 {
		return fmt.Errorf("%w: nil", ErrNotMap)
	}
	for i := 0; i < n; i++ {
		key, err := dec.DecodeString()
		if err != nil {
			return fmt.Errorf("envelope: key %d: %w", i, err)
		}
		if err := entry(dec, key); err != nil {
			return err
		}
	}
	if r.Len() > 0 {
		return fmt.Errorf("envelope: %w: %d trailing bytes", serializer.ErrExtraData, r.Len())
	}
	return nil
}

package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// sep is the fixed two-byte separator between the header and an optional
// binary blob. A frame with no separator is header-only.
var sep = []byte{0x0A, 0x0A}

// Codec encodes/decodes the envelope header. JSONCodec is the only
// implementation the wire format mandates (cross-implementation
// compatibility requires a single header encoding); the interface is kept
// as a seam for a future binary codec without touching the frame split
// logic below, which is codec-independent.
type Codec interface {
	Name() string
	Marshal(Envelope) ([]byte, error)
	Unmarshal([]byte) (Envelope, error)
}

// JSONCodec is the default (and currently only) wire codec.
type JSONCodec struct{}

func (JSONCodec) Name() string { return "json" }

// wireHeader mirrors Envelope field-for-field; it exists so unknown fields
// in an inbound frame are rejected (fail-closed) via json.Decoder's
// DisallowUnknownFields rather than silently accepted by json.Unmarshal.
type wireHeader struct {
	Version  *int                   `json:"version"`
	Type     string                 `json:"type"`
	Transid  string                 `json:"transid"`
	Key      string                 `json:"key,omitempty"`
	Payload  map[string]interface{} `json:"payload"`
	Time     string                 `json:"time"`
	Destid   string                 `json:"destid,omitempty"`
	Sourceid string                 `json:"sourceid"`
}

func (JSONCodec) Marshal(env Envelope) ([]byte, error) {
	version := env.Version
	h := wireHeader{
		Version:  &version,
		Type:     string(env.Type),
		Transid:  env.Transid,
		Key:      env.Key,
		Payload:  env.Payload,
		Time:     env.Time,
		Destid:   env.Destid,
		Sourceid: env.Sourceid,
	}
	return json.Marshal(h)
}

// Unmarshal decodes a header, rejecting unknown fields (fail-closed) and
// missing required fields (version, type, transid, time, sourceid). version
// is decoded as *int rather than int so an entirely absent field is
// distinguishable from an explicit 0, matching the original wire.py's
// hard-required env["version"] lookup.
func (JSONCodec) Unmarshal(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var h wireHeader
	if err := dec.Decode(&h); err != nil {
		return Envelope{}, fmt.Errorf("envelope: decode header: %w", err)
	}
	if h.Version == nil || h.Transid == "" || h.Time == "" || h.Sourceid == "" || h.Type == "" {
		return Envelope{}, fmt.Errorf("envelope: missing required field")
	}
	if h.Payload == nil {
		h.Payload = map[string]interface{}{}
	}
	return Envelope{
		Version:  *h.Version,
		Type:     MsgType(h.Type),
		Transid:  h.Transid,
		Key:      h.Key,
		Payload:  h.Payload,
		Time:     h.Time,
		Destid:   h.Destid,
		Sourceid: h.Sourceid,
	}, nil
}

// Pack frames a Message as header bytes, optionally followed by the
// separator and a binary blob when Message.Binary is non-empty.
func Pack(codec Codec, msg Message) ([]byte, error) {
	header, err := codec.Marshal(msg.Env)
	if err != nil {
		return nil, fmt.Errorf("envelope: pack: %w", err)
	}
	if len(msg.Binary) == 0 {
		return header, nil
	}
	out := make([]byte, 0, len(header)+len(sep)+len(msg.Binary))
	out = append(out, header...)
	out = append(out, sep...)
	out = append(out, msg.Binary...)
	return out, nil
}

// Unpack splits frame at the FIRST occurrence of the separator and decodes
// the header. Absence of the separator means a header-only frame with no
// binary. Decode errors (malformed JSON, unknown/missing fields) are
// returned to the caller, which per the inbound dispatch contract must
// drop the frame silently rather than propagate the error further.
func Unpack(codec Codec, frame []byte) (Message, error) {
	idx := bytes.Index(frame, sep)
	var header, binary []byte
	if idx < 0 {
		header = frame
	} else {
		header = frame[:idx]
		binary = frame[idx+len(sep):]
	}

	env, err := codec.Unmarshal(header)
	if err != nil {
		return Message{}, err
	}
	return Message{Env: env, Binary: binary}, nil
}

// Package envelope defines the wire message shape shared by every peer in
// the mesh: the Envelope header, the MsgType enumeration, and the Message
// that pairs an Envelope with an optional binary blob.
//
// Envelopes are immutable once built (see Builder) and single-use: once an
// envelope has been framed and handed to a transport, the runtime does not
// retain or mutate it further.
package envelope

import (
	"fmt"
	"time"
)

// MsgType names the kind of a Message. The wire encoding of a MsgType is
// always its uppercase name (see wire.go).
type MsgType string

const (
	REQ       MsgType = "REQ"
	RESP      MsgType = "RESP"
	ACK       MsgType = "ACK"
	CONFIG    MsgType = "CONFIG"
	HELLO     MsgType = "HELLO"
	PUB       MsgType = "PUB"
	SUBSCRIBE MsgType = "SUBSCRIBE"
)

// SysAckKey is the route key stamped on every fast ACK (see Builder.Ack).
const SysAckKey = "sys.ack"

// Envelope carries routing and correlation metadata for one Message.
//
// Core identification and correlation:
//   - Transid ties a REQ/CONFIG to its ACK and RESP. ACK/RESP reuse the
//     transid of the message they answer.
//
// Routing:
//   - Destid is the target peer id. An absent Destid means broadcast.
//   - Key routes a direct message to a handler, or names a PUB topic.
//
// Thread safety: an Envelope is built once by Builder and never mutated
// afterward; concurrent readers are always safe.
type Envelope struct {
	Version  int                    `json:"version"`
	Type     MsgType                `json:"type"`
	Transid  string                 `json:"transid"`
	Key      string                 `json:"key,omitempty"`
	Payload  map[string]interface{} `json:"payload"`
	Time     string                 `json:"time"`
	Destid   string                 `json:"destid,omitempty"`
	Sourceid string                 `json:"sourceid"`
}

// Message pairs an Envelope with an optional opaque binary blob (see the
// framing contract in wire.go).
type Message struct {
	Env    Envelope
	Binary []byte
}

// Broadcast reports whether this message's envelope has no destination,
// i.e. it is meant to fan out rather than address a single peer.
func (m Message) Broadcast() bool {
	return m.Env.Destid == ""
}

// NoResp reports whether the sender asked the receiver to suppress a RESP,
// via either the "noresp" or legacy "_noresp" payload key (see §4.4 of the
// protocol design: only REQ handler dispatch consults this).
func (m Message) NoResp() bool {
	if m.Env.Payload == nil {
		return false
	}
	if v, ok := m.Env.Payload["noresp"]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	if v, ok := m.Env.Payload["_noresp"]; ok {
		if b, ok := v.(bool); ok && b {
			return true
		}
	}
	return false
}

// TTL returns the wait window derived from a numeric "ttl_ms" payload
// field, or fallback if the field is absent or not numeric.
func (m Message) TTL(fallback time.Duration) time.Duration {
	if m.Env.Payload == nil {
		return fallback
	}
	raw, ok := m.Env.Payload["ttl_ms"]
	if !ok {
		return fallback
	}
	switch v := raw.(type) {
	case float64:
		return time.Duration(v) * time.Millisecond
	case int:
		return time.Duration(v) * time.Millisecond
	case int64:
		return time.Duration(v) * time.Millisecond
	default:
		return fallback
	}
}

// InvalidEnvelope is returned by Builder.Build when the envelope violates
// the builder contract (a direct REQ/CONFIG/PUB without a key).
type InvalidEnvelope struct {
	Reason string
}

func (e *InvalidEnvelope) Error() string {
	return fmt.Sprintf("invalid envelope: %s", e.Reason)
}

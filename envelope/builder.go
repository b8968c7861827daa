package envelope

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ProtocolVersion is the current wire protocol revision stamped by Builder.
const ProtocolVersion = 1

// Builder is a fluent constructor that guarantees every Message it produces
// satisfies the envelope contract: direct (non-broadcast) REQ/CONFIG/PUB
// messages carry a non-empty key, Transid is always set, and Time is the
// UTC wall clock at build time.
//
// A Builder is not safe for concurrent use; build one per message.
//
// Called by: runtime.Runtime for its outbound messages (request, publish,
// subscribe, ack, resp) and by discovery.Announcer for HELLO.
type Builder struct {
	env    Envelope
	binary []byte
	corr   string // explicit transid override, set by Ack/Resp
}

// NewBuilder starts a new envelope build for messages sent by sourceid.
func NewBuilder(sourceid string) *Builder {
	return &Builder{
		env: Envelope{
			Version:  ProtocolVersion,
			Type:     REQ,
			Transid:  uuid.New().String(),
			Payload:  map[string]interface{}{},
			Sourceid: sourceid,
		},
	}
}

// To sets the destination peer id. An empty destid means broadcast.
func (b *Builder) To(destid string) *Builder {
	b.env.Destid = destid
	return b
}

// Req configures a REQ message for key with the given payload.
func (b *Builder) Req(key string, payload map[string]interface{}) *Builder {
	b.env.Type = REQ
	b.env.Key = key
	b.env.Payload = payload
	return b
}

// Config configures a CONFIG message for key, wrapping payload the way the
// original protocol does: {"persist": persist, "data": payload}.
func (b *Builder) Config(key string, payload map[string]interface{}, persist bool) *Builder {
	b.env.Type = CONFIG
	b.env.Key = key
	b.env.Payload = map[string]interface{}{
		"persist": persist,
		"data":    payload,
	}
	return b
}

// Resp configures a RESP answering transid, optionally tagged with the
// original key for readability in logs/traces.
func (b *Builder) Resp(transid, key string, payload map[string]interface{}) *Builder {
	b.env.Type = RESP
	b.corr = transid
	b.env.Key = key
	b.env.Payload = payload
	return b
}

// Ack configures an ACK acknowledging transid.
func (b *Builder) Ack(transid string) *Builder {
	b.env.Type = ACK
	b.corr = transid
	b.env.Key = SysAckKey
	b.env.Payload = map[string]interface{}{"ack": transid}
	return b
}

// Pub configures a PUB message on topic.
func (b *Builder) Pub(topic string, payload map[string]interface{}) *Builder {
	b.env.Type = PUB
	b.env.Key = topic
	b.env.Payload = payload
	return b
}

// Hello configures the canonical HELLO payload: {caps, keys, subs, rev, ts,
// noresp:true}, with every set field serialized as a sorted unique slice.
func (b *Builder) Hello(caps, keys, subs []string, rev int, ts time.Time) *Builder {
	b.env.Type = HELLO
	b.env.Key = "bamboo.hello"
	b.env.Payload = map[string]interface{}{
		"caps":   sortedUnique(caps),
		"keys":   sortedUnique(keys),
		"subs":   sortedUnique(subs),
		"rev":    rev,
		"ts":     ts.UTC().Format(time.RFC3339),
		"noresp": true,
	}
	return b
}

// Subscribe configures the canonical SUBSCRIBE payload: {add, remove,
// noresp:true}.
func (b *Builder) Subscribe(add, remove []string) *Builder {
	b.env.Type = SUBSCRIBE
	b.env.Key = "bamboo.subscribe"
	b.env.Payload = map[string]interface{}{
		"add":    sortedUnique(add),
		"remove": sortedUnique(remove),
		"noresp": true,
	}
	return b
}

// Binary attaches an opaque binary blob to the built Message.
func (b *Builder) Binary(data []byte) *Builder {
	b.binary = data
	return b
}

// Build validates and returns the finished Message. Direct (Destid set)
// REQ/CONFIG/PUB messages without a Key fail with *InvalidEnvelope.
func (b *Builder) Build() (Message, error) {
	b.env.Time = time.Now().UTC().Format(time.RFC3339)
	if b.corr != "" {
		b.env.Transid = b.corr
	}

	if b.env.Destid != "" {
		switch b.env.Type {
		case REQ, CONFIG, PUB:
			if b.env.Key == "" {
				return Message{}, &InvalidEnvelope{Reason: "direct REQ/CONFIG/PUB requires a non-empty key"}
			}
		}
	}

	return Message{Env: b.env, Binary: b.binary}, nil
}

func sortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

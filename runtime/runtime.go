// Package runtime is the protocol core: it wires envelope framing, the key
// and subscription registries, the correlation/wait machinery, and the
// discovery announcer together into one instantiable node, generalizing
// the shape of the teacher's client.BrokerClient (request/response
// correlation over a shared connection) and broker.Service (inbound
// dispatch per message type) onto a transport-agnostic peer, per the
// protocol core's Envelope+MsgType+Protocol design
// (original_source/protocol/protocol.py).
package runtime

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/prkrtg/bamboo/config"
	"github.com/prkrtg/bamboo/discovery"
	"github.com/prkrtg/bamboo/envelope"
	"github.com/prkrtg/bamboo/registry"
	"github.com/prkrtg/bamboo/transport"
)

// Status is the outcome tag returned by Request.
type Status string

const (
	StatusSent      Status = "sent"
	StatusNoKey     Status = "no_key"
	StatusTimeout   Status = "timeout"
	StatusTooLarge  Status = "too_large"
	StatusDelivered Status = "delivered"
)

// Result is returned by Request, matching the language-neutral
// {status, transid, [resp]} surface.
type Result struct {
	Status  Status
	Transid string
	Resp    map[string]interface{}
	MTU     int
	Size    int
}

// Handler answers a direct REQ for a registered key. A non-nil error is
// normalized into {ok:false, error:<message>} per the RESP normalization
// rule; a nil map result is normalized into {ok:true, data:nil}.
type Handler func(payload map[string]interface{}) (map[string]interface{}, error)

// TopicHandler reacts to an inbound PUB on a subscribed topic. Errors and
// panics are contained by the dispatcher; PUB never produces a RESP.
type TopicHandler func(payload map[string]interface{})

// Runtime is one mesh node: its registries, its pending correlation
// slots, its registered handlers, and the transport/announcer it drives.
//
// A Runtime is safe for concurrent use. Multiple Runtimes may coexist in
// one process; there is no process-wide shared state.
type Runtime struct {
	selfID     string
	tr         transport.Transport
	codec      envelope.Codec
	defaultTTL time.Duration
	log        logrus.FieldLogger

	keys *registry.KeyRegistry
	subs *registry.SubscriptionTable
	corr *correlationTable
	ann  *discovery.Announcer
	prn  *pruner

	handlersMu  sync.RWMutex
	reqHandlers map[string]Handler
	evtHandlers map[string]TopicHandler

	mu      sync.Mutex
	started bool
}

// New constructs a Runtime for selfID over tr, tuned by cfg. It does not
// start the transport or the announcer; call Start for that.
func New(selfID string, tr transport.Transport, cfg config.RuntimeConfig, log logrus.FieldLogger) *Runtime {
	if log == nil {
		log = logrus.StandardLogger()
	}
	r := &Runtime{
		selfID:      selfID,
		tr:          tr,
		codec:       envelope.JSONCodec{},
		defaultTTL:  cfg.DefaultTTL,
		log:         log,
		keys:        registry.NewKeyRegistry(),
		subs:        registry.NewSubscriptionTable(),
		corr:        newCorrelationTable(),
		reqHandlers: make(map[string]Handler),
		evtHandlers: make(map[string]TopicHandler),
	}
	r.ann = discovery.New(selfID, r.keys, r.subs, cfg.DiscoveryInterval, r.announceSend, log)
	r.prn = newPruner(r.keys, r.subs, cfg.StaleAfter, log)
	return r
}

// Start installs the inbound dispatcher on the transport, starts it, and
// starts the discovery announcer and the stale-peer pruner. Calling Start
// twice is a no-op.
func (r *Runtime) Start() error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = true
	r.mu.Unlock()

	r.tr.OnReceive(r.handleFrame)
	if err := r.tr.Start(); err != nil {
		return fmt.Errorf("runtime: start transport: %w", err)
	}
	r.ann.Start()
	r.prn.Start()
	return nil
}

// Stop stops the pruner and the announcer, then the transport. Stop is
// idempotent.
func (r *Runtime) Stop() error {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil
	}
	r.started = false
	r.mu.Unlock()

	r.prn.Stop()
	r.ann.Stop()
	if err := r.tr.Stop(); err != nil {
		return fmt.Errorf("runtime: stop transport: %w", err)
	}
	return nil
}

// On registers a handler for a direct REQ/CONFIG key, keeping the key
// registry in lockstep: k is added to the locally served key set the
// moment a handler is installed, and there is no handler-less served key.
func (r *Runtime) On(key string, h Handler) {
	r.handlersMu.Lock()
	r.reqHandlers[key] = h
	r.handlersMu.Unlock()
	r.keys.Add(key)
}

// Listen registers a PUB handler for topic. If topic was not already a
// local subscription, it is added and a broadcast SUBSCRIBE announcing the
// addition is emitted.
func (r *Runtime) Listen(topic string, h TopicHandler) {
	r.handlersMu.Lock()
	r.evtHandlers[topic] = h
	r.handlersMu.Unlock()

	if r.subs.MutateLocal([]string{topic}, nil) {
		r.broadcastSubscribe([]string{topic}, nil)
	}
}

// SubscribeTopics mutates the local subscription set and, if anything
// actually changed, broadcasts a single SUBSCRIBE carrying the deltas.
func (r *Runtime) SubscribeTopics(add, remove []string) error {
	if !r.subs.MutateLocal(add, remove) {
		return nil
	}
	return r.broadcastSubscribe(add, remove)
}

// AnnounceHello emits one HELLO immediately, independent of the
// announcer's ticker.
func (r *Runtime) AnnounceHello() error {
	return r.ann.AnnounceNow()
}

// LearnPeerKeys records peer as serving keys without touching its
// revision or capability state, a convenience wrapper over
// KeyRegistry.Learn for tests and manual peer seeding.
func (r *Runtime) LearnPeerKeys(peer string, keys []string) {
	r.keys.Learn(peer, keys, nil, 0, false, time.Time{}, false)
}

// Send frames msg and hands it to the transport without waiting for any
// acknowledgement, the fire-and-forget escape hatch.
func (r *Runtime) Send(msg envelope.Message) error {
	return r.sendFrame(msg)
}

// RequestPeer is a convenience composition of Builder + Request: it builds
// a direct REQ to peer for key carrying body, with timeout encoded as
// ttl_ms, and issues it.
func (r *Runtime) RequestPeer(peer, key string, body map[string]interface{}, timeout time.Duration) (Result, error) {
	payload := make(map[string]interface{}, len(body)+1)
	for k, v := range body {
		payload[k] = v
	}
	if timeout > 0 {
		payload["ttl_ms"] = timeout.Milliseconds()
	}
	msg, err := envelope.NewBuilder(r.selfID).
		Req(key, payload).
		To(peer).
		Build()
	if err != nil {
		return Result{}, err
	}
	return r.Request(msg)
}

// Publish sends topic/body to every peer known to subscribe to topic, or
// falls back to a single broadcast PUB if none are known. It returns the
// number of directed recipients (0 on the broadcast fallback path).
func (r *Runtime) Publish(topic string, body map[string]interface{}) (int, error) {
	recipients := r.subs.SubscribersOf(topic)

	if len(recipients) == 0 {
		msg, err := envelope.NewBuilder(r.selfID).Pub(topic, body).Build()
		if err != nil {
			return 0, err
		}
		return 0, r.sendFrame(msg)
	}

	for _, peer := range recipients {
		msg, err := envelope.NewBuilder(r.selfID).Pub(topic, body).To(peer).Build()
		if err != nil {
			return 0, err
		}
		if err := r.sendFrame(msg); err != nil {
			return 0, err
		}
	}
	return len(recipients), nil
}

func (r *Runtime) broadcastSubscribe(add, remove []string) error {
	msg, err := envelope.NewBuilder(r.selfID).Subscribe(add, remove).Build()
	if err != nil {
		return err
	}
	return r.sendFrame(msg)
}

func (r *Runtime) announceSend(msg envelope.Message) error {
	return r.sendFrame(msg)
}

func (r *Runtime) sendFrame(msg envelope.Message) error {
	frame, err := envelope.Pack(r.codec, msg)
	if err != nil {
		return fmt.Errorf("runtime: pack outbound frame: %w", err)
	}
	dest := msg.Env.Destid
	if dest == "" {
		dest = transport.BroadcastDest
	}
	return r.tr.Send(dest, frame)
}

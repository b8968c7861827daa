package runtime

import (
	"fmt"
	"time"

	"github.com/prkrtg/bamboo/envelope"
)

// handleFrame is installed as the transport's OnReceive callback. It never
// panics outward: decode errors and unmatched correlators are dropped
// silently, and a recover guards every handler invocation, mirroring the
// teacher's messageListener panic containment (internal/client/broker.go).
// Handlers run synchronously on the goroutine that delivered the frame, so
// a slow handler delays the return of that delivery.
func (r *Runtime) handleFrame(source string, frame []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Error("runtime: dispatch panic recovered")
		}
	}()

	msg, err := envelope.Unpack(r.codec, frame)
	if err != nil {
		r.log.WithError(err).Debug("runtime: dropping malformed frame")
		return
	}

	switch msg.Env.Type {
	case envelope.ACK:
		r.corr.completeAck(msg)
	case envelope.RESP:
		r.corr.completeResp(msg)
	case envelope.HELLO:
		r.handleHello(source, msg)
	case envelope.SUBSCRIBE:
		r.handleSubscribe(source, msg)
	case envelope.REQ, envelope.CONFIG:
		r.handleReqOrConfig(source, msg)
	case envelope.PUB:
		r.handlePub(msg)
	default:
		r.log.WithField("type", msg.Env.Type).Debug("runtime: unknown frame type, dropping")
	}
}

func (r *Runtime) handleHello(source string, msg envelope.Message) {
	payload := msg.Env.Payload
	keys := toStringSlice(payload["keys"])
	caps := toStringSlice(payload["caps"])
	rev, hasRev := toInt(payload["rev"])
	ts := parseTime(toStringValue(payload["ts"]))

	r.keys.Learn(source, keys, caps, rev, hasRev, ts, true)

	if subs := toStringSlice(payload["subs"]); len(subs) > 0 {
		r.subs.SetRemote(source, subs)
	}
}

func (r *Runtime) handleSubscribe(source string, msg envelope.Message) {
	add := toStringSlice(msg.Env.Payload["add"])
	remove := toStringSlice(msg.Env.Payload["remove"])
	r.subs.ApplyRemoteDelta(source, add, remove)
	r.keys.Touch(source)

	if msg.Env.Destid != "" {
		r.sendFastAck(source, msg.Env.Transid)
	}
}

// handleReqOrConfig implements §4.4's direct and broadcast REQ/CONFIG
// rules. Direct messages are receiver-side key-gated and fast-ACKed
// before handler execution; broadcast messages never ACK or RESP and may
// invoke a handler only if one is registered for the key.
func (r *Runtime) handleReqOrConfig(source string, msg envelope.Message) {
	if msg.Broadcast() {
		if msg.Env.Key == "" || !r.keys.ServesLocally(msg.Env.Key) {
			return
		}
		h, ok := r.lookupReqHandler(msg.Env.Key)
		if !ok {
			return
		}
		r.invokeHandler(h, msg.Env.Payload)
		return
	}

	if msg.Env.Key == "" || !r.keys.ServesLocally(msg.Env.Key) {
		return
	}
	r.sendFastAck(source, msg.Env.Transid)

	h, ok := r.lookupReqHandler(msg.Env.Key)
	if !ok {
		return
	}

	if msg.Env.Type == envelope.CONFIG {
		r.invokeHandler(h, msg.Env.Payload)
		return
	}

	result, herr := r.invokeHandler(h, msg.Env.Payload)
	if msg.NoResp() {
		return
	}
	r.sendResp(source, msg.Env.Transid, msg.Env.Key, normalizeResult(result, herr))
}

func (r *Runtime) handlePub(msg envelope.Message) {
	h, ok := r.lookupEvtHandler(msg.Env.Key)
	if !ok {
		return
	}
	r.invokeTopicHandler(h, msg.Env.Payload)
}

func (r *Runtime) lookupReqHandler(key string) (Handler, bool) {
	r.handlersMu.RLock()
	defer r.handlersMu.RUnlock()
	h, ok := r.reqHandlers[key]
	return h, ok
}

func (r *Runtime) lookupEvtHandler(topic string) (TopicHandler, bool) {
	r.handlersMu.RLock()
	defer r.handlersMu.RUnlock()
	h, ok := r.evtHandlers[topic]
	return h, ok
}

// invokeHandler runs h, converting a panic into a HandlerError so a
// misbehaving handler can never take the dispatcher down with it.
func (r *Runtime) invokeHandler(h Handler, payload map[string]interface{}) (result map[string]interface{}, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = &HandlerError{Cause: rec}
		}
	}()
	return h(payload)
}

func (r *Runtime) invokeTopicHandler(h TopicHandler, payload map[string]interface{}) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.WithField("panic", rec).Error("runtime: topic handler panic recovered")
		}
	}()
	h(payload)
}

// normalizeResult implements the RESP normalization rule (§4.4): a result
// map already carrying "ok" or "error" passes through unchanged; any other
// result is wrapped as {ok:true, data:result}; a handler error becomes
// {ok:false, error:<message>}.
func normalizeResult(result map[string]interface{}, err error) map[string]interface{} {
	if err != nil {
		return map[string]interface{}{"ok": false, "error": err.Error()}
	}
	if result != nil {
		if _, hasOK := result["ok"]; hasOK {
			return result
		}
		if _, hasErr := result["error"]; hasErr {
			return result
		}
	}
	return map[string]interface{}{"ok": true, "data": result}
}

func (r *Runtime) sendFastAck(dest, transid string) {
	msg, err := envelope.NewBuilder(r.selfID).Ack(transid).To(dest).Build()
	if err != nil {
		r.log.WithError(err).Error("runtime: build fast ack")
		return
	}
	if err := r.sendFrame(msg); err != nil {
		r.log.WithError(err).Debug("runtime: send fast ack")
	}
}

func (r *Runtime) sendResp(dest, transid, key string, payload map[string]interface{}) {
	msg, err := envelope.NewBuilder(r.selfID).Resp(transid, key, payload).To(dest).Build()
	if err != nil {
		r.log.WithError(err).Error("runtime: build resp")
		return
	}
	if err := r.sendFrame(msg); err != nil {
		r.log.WithError(err).Debug("runtime: send resp")
	}
}

// HandlerError wraps a recovered handler panic so it can flow through the
// same normalization path as a returned error.
type HandlerError struct {
	Cause interface{}
}

func (e *HandlerError) Error() string {
	return "handler panic: " + toStringValue(e.Cause)
}

func toStringSlice(v interface{}) []string {
	switch vv := v.(type) {
	case []string:
		return vv
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func toInt(v interface{}) (int, bool) {
	switch vv := v.(type) {
	case int:
		return vv, true
	case int64:
		return int(vv), true
	case float64:
		return int(vv), true
	default:
		return 0, false
	}
}

func toStringValue(v interface{}) string {
	switch vv := v.(type) {
	case string:
		return vv
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", vv)
	}
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

package runtime

import (
	"sync"
	"time"

	"github.com/prkrtg/bamboo/envelope"
)

// correlationTable holds the single-slot ACK/RESP rendezvous channels
// keyed by transid, generalizing the teacher's
// client.BrokerClient.responseChans (map[string]chan *BrokerResponse
// guarded by responseChMux) into two parallel maps, one per wait kind,
// since a transaction here has two independent rendezvous points rather
// than one.
type correlationTable struct {
	mu       sync.Mutex
	ackWait  map[string]chan envelope.Message
	respWait map[string]chan envelope.Message
}

func newCorrelationTable() *correlationTable {
	return &correlationTable{
		ackWait:  make(map[string]chan envelope.Message),
		respWait: make(map[string]chan envelope.Message),
	}
}

// install creates buffered, size-1 rendezvous channels for transid so a
// concurrent completeAck/completeResp never blocks on delivery.
func (c *correlationTable) install(transid string) (ack, resp chan envelope.Message) {
	ack = make(chan envelope.Message, 1)
	resp = make(chan envelope.Message, 1)
	c.mu.Lock()
	c.ackWait[transid] = ack
	c.respWait[transid] = resp
	c.mu.Unlock()
	return ack, resp
}

// remove deletes both slots for transid unconditionally, the "always
// remove on exit" guarantee from the state machine (success, timeout, or
// error all converge here via defer).
func (c *correlationTable) remove(transid string) {
	c.mu.Lock()
	delete(c.ackWait, transid)
	delete(c.respWait, transid)
	c.mu.Unlock()
}

// completeAck delivers msg to the ack slot for its transid, if one is
// still pending. A missing slot (stale/unmatched ACK) is silently
// ignored, per the dispatch contract.
func (c *correlationTable) completeAck(msg envelope.Message) {
	c.mu.Lock()
	ch, ok := c.ackWait[msg.Env.Transid]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

// completeResp delivers msg to the resp slot for its transid, mirroring
// completeAck.
func (c *correlationTable) completeResp(msg envelope.Message) {
	c.mu.Lock()
	ch, ok := c.respWait[msg.Env.Transid]
	c.mu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
	}
}

// pending reports whether transid currently has an installed ack or resp slot,
// used by tests to assert the no-leak invariant.
func (c *correlationTable) pending(transid string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ack := c.ackWait[transid]
	_, resp := c.respWait[transid]
	return ack || resp
}

// Request implements the sender-side correlation algorithm (§4.3 of the
// protocol core design): broadcast messages are fire-and-forget; direct
// messages pass the sender-side key gate and MTU guard before a
// rendezvous slot is installed and the frame is sent; the call then waits
// up to the message's TTL (or the runtime default) for an ACK, and, for
// REQ, up to half that again for a RESP.
func (r *Runtime) Request(msg envelope.Message) (Result, error) {
	transid := msg.Env.Transid

	if msg.Broadcast() {
		if err := r.sendFrame(msg); err != nil {
			return Result{}, err
		}
		return Result{Status: StatusSent, Transid: transid}, nil
	}

	if msg.Env.Key != "" && r.keys.KnowsPeer(msg.Env.Destid) && !r.keys.PeerSupports(msg.Env.Destid, msg.Env.Key) {
		return Result{Status: StatusNoKey, Transid: transid}, nil
	}

	frame, err := envelope.Pack(r.codec, msg)
	if err != nil {
		return Result{}, err
	}
	if mtu := r.tr.MTU(); mtu > 0 && len(frame) > mtu {
		return Result{Status: StatusTooLarge, Transid: transid, MTU: mtu, Size: len(frame)}, nil
	}

	ackCh, respCh := r.corr.install(transid)
	defer r.corr.remove(transid)

	if err := r.tr.Send(msg.Env.Destid, frame); err != nil {
		return Result{}, err
	}

	w := msg.TTL(r.defaultTTL)

	select {
	case <-ackCh:
	case <-time.After(w):
		return Result{Status: StatusTimeout, Transid: transid}, nil
	}

	if msg.Env.Type != envelope.REQ {
		return Result{Status: StatusDelivered, Transid: transid}, nil
	}

	select {
	case respMsg := <-respCh:
		return Result{Status: StatusDelivered, Transid: transid, Resp: respMsg.Env.Payload}, nil
	case <-time.After(w / 2):
		return Result{Status: StatusDelivered, Transid: transid, Resp: nil}, nil
	}
}

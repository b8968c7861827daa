package runtime

import (
	"testing"

	"github.com/prkrtg/bamboo/envelope"
)

func TestCorrelationTableInstallAndRemove(t *testing.T) {
	c := newCorrelationTable()
	ack, resp := c.install("t1")
	if ack == nil || resp == nil {
		t.Fatal("expected non-nil rendezvous channels")
	}
	if !c.pending("t1") {
		t.Fatal("expected t1 to be pending after install")
	}
	c.remove("t1")
	if c.pending("t1") {
		t.Fatal("expected t1 to be gone after remove")
	}
}

func TestCorrelationTableCompleteDeliversOnce(t *testing.T) {
	c := newCorrelationTable()
	ack, _ := c.install("t2")

	msg := envelope.Message{Env: envelope.Envelope{Transid: "t2", Type: envelope.ACK}}
	c.completeAck(msg)

	select {
	case got := <-ack:
		if got.Env.Transid != "t2" {
			t.Errorf("transid = %q", got.Env.Transid)
		}
	default:
		t.Fatal("expected ack to be delivered")
	}
}

func TestCorrelationTableCompleteUnmatchedIsNoop(t *testing.T) {
	c := newCorrelationTable()
	// No install for "ghost" -- completeAck/completeResp must not panic or block.
	c.completeAck(envelope.Message{Env: envelope.Envelope{Transid: "ghost", Type: envelope.ACK}})
	c.completeResp(envelope.Message{Env: envelope.Envelope{Transid: "ghost", Type: envelope.RESP}})
}

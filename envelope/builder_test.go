package envelope

import (
	"testing"
	"time"
)

func TestBuilderDirectReqRequiresKey(t *testing.T) {
	_, err := NewBuilder("peer-a").Req("", map[string]interface{}{}).To("peer-b").Build()
	if err == nil {
		t.Fatal("expected InvalidEnvelope error")
	}
	if _, ok := err.(*InvalidEnvelope); !ok {
		t.Fatalf("expected *InvalidEnvelope, got %T", err)
	}
}

func TestBuilderBroadcastAllowsEmptyKey(t *testing.T) {
	msg, err := NewBuilder("peer-a").Pub("", map[string]interface{}{}).Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !msg.Broadcast() {
		t.Error("expected broadcast message")
	}
}

func TestBuilderAckCopiesTransid(t *testing.T) {
	msg, err := NewBuilder("peer-a").Ack("orig-transid").To("peer-b").Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Env.Transid != "orig-transid" {
		t.Errorf("expected transid to be copied from original, got %q", msg.Env.Transid)
	}
	if msg.Env.Type != ACK {
		t.Errorf("expected ACK type, got %s", msg.Env.Type)
	}
}

func TestBuilderHelloPayloadShape(t *testing.T) {
	msg, err := NewBuilder("peer-a").
		Hello([]string{"json", "json"}, []string{"b.key", "a.key"}, []string{"topicB", "topicA"}, 3, time.Now()).
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	caps := msg.Env.Payload["caps"].([]string)
	if len(caps) != 1 || caps[0] != "json" {
		t.Errorf("expected deduped sorted caps, got %v", caps)
	}
	keys := msg.Env.Payload["keys"].([]string)
	if keys[0] != "a.key" || keys[1] != "b.key" {
		t.Errorf("expected sorted keys, got %v", keys)
	}
	if msg.Env.Payload["noresp"] != true {
		t.Error("expected noresp=true")
	}
}

func TestBuilderTransidAutoAssigned(t *testing.T) {
	a, _ := NewBuilder("peer-a").Req("k", map[string]interface{}{}).To("peer-b").Build()
	b, _ := NewBuilder("peer-a").Req("k", map[string]interface{}{}).To("peer-b").Build()
	if a.Env.Transid == "" || a.Env.Transid == b.Env.Transid {
		t.Error("expected distinct, non-empty auto-assigned transids")
	}
}

package envelope

import (
	"bytes"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	cases := []struct {
		name   string
		binary []byte
	}{
		{"no binary", nil},
		{"empty binary", []byte{}},
		{"plain binary", []byte("hello world")},
		{"binary containing separator", []byte("pre\n\npost")},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			msg, err := NewBuilder("peer-a").
				Req("camera.focus", map[string]interface{}{"x": 1.0}).
				To("peer-b").
				Binary(tc.binary).
				Build()
			if err != nil {
				t.Fatalf("build: %v", err)
			}

			frame, err := Pack(JSONCodec{}, msg)
			if err != nil {
				t.Fatalf("pack: %v", err)
			}

			got, err := Unpack(JSONCodec{}, frame)
			if err != nil {
				t.Fatalf("unpack: %v", err)
			}

			if got.Env.Transid != msg.Env.Transid {
				t.Errorf("transid mismatch: got %q want %q", got.Env.Transid, msg.Env.Transid)
			}
			if got.Env.Key != msg.Env.Key {
				t.Errorf("key mismatch: got %q want %q", got.Env.Key, msg.Env.Key)
			}
			if len(tc.binary) == 0 {
				if len(got.Binary) != 0 {
					t.Errorf("expected no binary, got %q", got.Binary)
				}
			} else if !bytes.Equal(got.Binary, tc.binary) {
				t.Errorf("binary mismatch: got %q want %q", got.Binary, tc.binary)
			}
		})
	}
}

func TestUnpackRejectsUnknownFields(t *testing.T) {
	frame := []byte(`{"version":1,"type":"REQ","transid":"t1","time":"2024-01-01T00:00:00Z","sourceid":"a","bogus":"field"}`)
	if _, err := Unpack(JSONCodec{}, frame); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestUnpackRejectsMissingRequiredFields(t *testing.T) {
	frame := []byte(`{"version":1,"type":"REQ","key":"x"}`)
	if _, err := Unpack(JSONCodec{}, frame); err == nil {
		t.Fatal("expected error for missing required fields")
	}
}

func TestUnpackRejectsMissingVersion(t *testing.T) {
	frame := []byte(`{"type":"REQ","transid":"t1","time":"2024-01-01T00:00:00Z","sourceid":"a"}`)
	if _, err := Unpack(JSONCodec{}, frame); err == nil {
		t.Fatal("expected error for missing version field")
	}
}

func TestUnpackAcceptsExplicitZeroVersion(t *testing.T) {
	frame := []byte(`{"version":0,"type":"REQ","transid":"t1","time":"2024-01-01T00:00:00Z","sourceid":"a"}`)
	msg, err := Unpack(JSONCodec{}, frame)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if msg.Env.Version != 0 {
		t.Errorf("expected version 0, got %d", msg.Env.Version)
	}
}

func TestUnpackNoSeparatorIsHeaderOnly(t *testing.T) {
	frame := []byte(`{"version":1,"type":"HELLO","transid":"t1","time":"2024-01-01T00:00:00Z","sourceid":"a"}`)
	msg, err := Unpack(JSONCodec{}, frame)
	if err != nil {
		t.Fatalf("unpack: %v", err)
	}
	if msg.Binary != nil {
		t.Errorf("expected nil binary, got %v", msg.Binary)
	}
}

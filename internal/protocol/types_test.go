package protocol

import (
	"encoding/json"
	"testing"
)

func TestEventMarshalFlattensFields(t *testing.T) {
	evt := NewEvent(EventJobLog, Fields{"jobId": "j1", "line": "hello", "kind": "spoofed", "type": "spoofed"})
	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got["kind"] != KindEvent || got["type"] != EventJobLog {
		t.Fatalf("unexpected envelope: %v", got)
	}
	if got["jobId"] != "j1" || got["line"] != "hello" {
		t.Fatalf("fields not flattened: %v", got)
	}
}

func TestResponseShapes(t *testing.T) {
	data, err := json.Marshal(Success("7", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"kind":"response","id":"7","ok":true,"result":{}}` {
		t.Fatalf("unexpected success encoding: %s", data)
	}
	data, err = json.Marshal(Failure("8", "unknown_job"))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(data) != `{"kind":"response","id":"8","ok":false,"error":"unknown_job"}` {
		t.Fatalf("unexpected failure encoding: %s", data)
	}
	if Failure("9", " ").Error != "unknown_error" {
		t.Fatal("expected blank failure reason to default")
	}
}

func TestCanonicalType(t *testing.T) {
	cases := map[string]string{
		"companion.ping": TypePing,
		"companion.info": TypeInfo,
		"udemy.start":    TypeStart,
		"udemy.cancel":   TypeCancel,
		"start":          TypeStart,
		"bogus":          "bogus",
	}
	for in, want := range cases {
		if got := CanonicalType(in); got != want {
			t.Errorf("CanonicalType(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLenientInt(t *testing.T) {
	var payload struct {
		Quality Int `json:"quality"`
		Workers Int `json:"workers"`
		Bad     Int `json:"bad"`
		Missing Int `json:"missing"`
	}
	req := Request{Payload: json.RawMessage(`{"quality":720,"workers":" 4 ","bad":{"x":1}}`)}
	if err := req.DecodePayload(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !payload.Quality.Set || payload.Quality.Value != 720 {
		t.Fatalf("quality = %+v", payload.Quality)
	}
	if !payload.Workers.Set || payload.Workers.Value != 4 {
		t.Fatalf("workers = %+v", payload.Workers)
	}
	if payload.Bad.Set || payload.Missing.Set {
		t.Fatalf("expected unset fields, got bad=%+v missing=%+v", payload.Bad, payload.Missing)
	}
}

func TestDecodePayloadToleratesMissingPayload(t *testing.T) {
	var v struct{ Path string }
	for _, raw := range []string{"", "null", "  "} {
		if err := (Request{Payload: json.RawMessage(raw)}).DecodePayload(&v); err != nil {
			t.Fatalf("payload %q: %v", raw, err)
		}
	}
}

package protocol

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Message kinds.
const (
	KindResponse = "response"
	KindEvent    = "event"
)

// Request types.
const (
	TypePing       = "ping"
	TypeInfo       = "info"
	TypeOpenLog    = "openLog"
	TypePickFolder = "pickFolder"
	TypeStart      = "start"
	TypeCancel     = "cancel"
)

// Event types.
const (
	EventJobStarted        = "job.started"
	EventJobLog            = "job.log"
	EventJobCompleted      = "job.completed"
	EventJobFailed         = "job.failed"
	EventJobCanceled       = "job.canceled"
	EventJobActive         = "job.active"
	EventJobRetryBearer    = "job.retry_bearer"
	EventHostReady         = "host.ready"
	EventPairServer        = "host.pair_server"
	EventPairServerFailed  = "host.pair_server_failed"
	EventCookiesSaved      = "host.cookies_saved"
	EventCookiesSaveFailed = "host.cookies_save_failed"
	EventHostDiagnostic    = "host.diagnostic"
)

// legacyTypes maps request names used by earlier extension builds.
var legacyTypes = map[string]string{
	"companion.ping": TypePing,
	"companion.info": TypeInfo,
	"udemy.start":    TypeStart,
	"udemy.cancel":   TypeCancel,
}

// CanonicalType resolves legacy request names to their current spelling.
func CanonicalType(name string) string {
	if mapped, ok := legacyTypes[name]; ok {
		return mapped
	}
	return name
}

// Request is one inbound exchange from the extension.
type Request struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the request payload into v. A missing or null
// payload leaves v untouched.
func (r Request) DecodePayload(v any) error {
	trimmed := strings.TrimSpace(string(r.Payload))
	if trimmed == "" || trimmed == "null" {
		return nil
	}
	return json.Unmarshal(r.Payload, v)
}

// Response answers exactly one Request.
type Response struct {
	Kind   string `json:"kind"`
	ID     string `json:"id"`
	OK     bool   `json:"ok"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Success builds a positive response. A nil result is sent as an empty object.
func Success(id string, result any) Response {
	if result == nil {
		result = map[string]any{}
	}
	return Response{Kind: KindResponse, ID: id, OK: true, Result: result}
}

// Failure builds a negative response.
func Failure(id, reason string) Response {
	if strings.TrimSpace(reason) == "" {
		reason = "unknown_error"
	}
	return Response{Kind: KindResponse, ID: id, OK: false, Error: reason}
}

// Fields carries the type-specific members of an event.
type Fields map[string]any

// Event is an asynchronous notification flattened onto the wire as
// {"kind":"event","type":...,<fields>}.
type Event struct {
	Type   string
	Fields Fields
}

// NewEvent builds an event of the given type.
func NewEvent(eventType string, fields Fields) Event {
	return Event{Type: eventType, Fields: fields}
}

// MarshalJSON flattens the fields next to kind and type. Fields named kind or
// type are ignored.
func (e Event) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(e.Fields)+2)
	for k, v := range e.Fields {
		if k == "kind" || k == "type" {
			continue
		}
		out[k] = v
	}
	out["kind"] = KindEvent
	out["type"] = e.Type
	return json.Marshal(out)
}

// Int is a lenient integer payload field. Numbers are truncated, numeric
// strings are parsed, and anything else leaves the field unset.
type Int struct {
	Value int
	Set   bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (i *Int) UnmarshalJSON(data []byte) error {
	*i = Int{}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil
	}
	switch v := raw.(type) {
	case float64:
		i.Value, i.Set = int(v), true
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			i.Value, i.Set = n, true
		}
	}
	return nil
}

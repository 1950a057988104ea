// Package protocol defines the ssap WebSocket message envelope spoken by webOS devices.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

// Message is the envelope for all control-socket messages, in both directions.
type Message struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Type    string          `json:"type"`
	URI     string          `json:"uri,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Message types (client → device)
const (
	TypeRegister  = "register"
	TypeRequest   = "request"
	TypeSubscribe = "subscribe"
)

// Message types (device → client)
const (
	TypeResponse   = "response"
	TypeRegistered = "registered"
	TypeError      = "error"
)

// URIScheme prefixes every endpoint on the control socket.
const URIScheme = "ssap://"

var emptyPayload = json.RawMessage(`{}`)

// NewMessage creates a message with a numeric command id. A nil payload is
// sent as an empty object.
func NewMessage(id uint64, msgType, endpoint string, payload any) (*Message, error) {
	data := emptyPayload
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	return &Message{
		ID:      json.RawMessage(strconv.FormatUint(id, 10)),
		Type:    msgType,
		URI:     URI(endpoint),
		Payload: data,
	}, nil
}

// URI returns the full ssap URI for an endpoint such as "audio/getVolume".
func URI(endpoint string) string {
	if strings.HasPrefix(endpoint, URIScheme) {
		return endpoint
	}
	return URIScheme + endpoint
}

// Decode parses one inbound frame.
func Decode(data []byte) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// CommandID returns the numeric correlation id of the message. Devices echo
// ids either as JSON numbers or as numeric strings; anything else (including
// the "register_0" handshake id) reports false.
func (m *Message) CommandID() (uint64, bool) {
	raw := bytes.TrimSpace(m.ID)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		raw = []byte(s)
	}
	id, err := strconv.ParseUint(string(raw), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// HasPayload reports whether the message carries a non-null payload.
func (m *Message) HasPayload() bool {
	raw := bytes.TrimSpace(m.Payload)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// ParsePayload unmarshals the payload into the given target.
func (m *Message) ParsePayload(target any) error {
	return json.Unmarshal(m.Payload, target)
}

// Response validation errors.
var (
	ErrMissingPayload = errors.New("response has no payload")
	ErrMissingStatus  = errors.New("response has neither returnValue nor subscribed")
	ErrRejected       = errors.New("request rejected by device")
)

type responseStatus struct {
	ReturnValue *bool `json:"returnValue"`
	Subscribed  *bool `json:"subscribed"`
}

// Validate inspects a response envelope and returns its payload when the
// device reported success through returnValue or subscribed.
func Validate(m *Message) (json.RawMessage, error) {
	if !m.HasPayload() {
		return nil, ErrMissingPayload
	}
	var status responseStatus
	if err := json.Unmarshal(m.Payload, &status); err != nil {
		return nil, ErrMissingStatus
	}
	if status.ReturnValue == nil && status.Subscribed == nil {
		return nil, ErrMissingStatus
	}
	if (status.ReturnValue != nil && *status.ReturnValue) || (status.Subscribed != nil && *status.Subscribed) {
		return m.Payload, nil
	}
	return nil, ErrRejected
}

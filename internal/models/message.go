package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidMessage is returned when a message is missing a required field.
var ErrInvalidMessage = errors.New("invalid message")

// Message is the unit of exchange between agents.
type Message struct {
	ID        string    `json:"id"` // ULID, assigned by the store
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Timestamp time.Time `json:"timestamp"` // Assigned by the sender
	Type      string    `json:"type"`      // e.g. "command", "response", "status"
	Payload   Payload   `json:"payload"`
	Delivered bool      `json:"delivered"`
}

// Validate checks that every field the relay needs is present.
func (m *Message) Validate() error {
	switch {
	case strings.TrimSpace(m.Sender) == "":
		return fmt.Errorf("%w: sender is required", ErrInvalidMessage)
	case strings.TrimSpace(m.Recipient) == "":
		return fmt.Errorf("%w: recipient is required", ErrInvalidMessage)
	case strings.TrimSpace(m.Type) == "":
		return fmt.Errorf("%w: type is required", ErrInvalidMessage)
	case m.Payload.IsZero():
		return fmt.Errorf("%w: payload is required", ErrInvalidMessage)
	}
	return nil
}

// Payload is an opaque JSON object. It is kept in compact form; key order,
// values and string escapes are returned exactly as deposited.
type Payload json.RawMessage

// NewPayload encodes v, which must marshal to a JSON object.
func NewPayload(v any) (Payload, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var p Payload
	if err := p.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return p, nil
}

// IsZero reports whether the payload is absent.
func (p Payload) IsZero() bool {
	return len(p) == 0
}

// MarshalJSON implements json.Marshaler.
func (p Payload) MarshalJSON() ([]byte, error) {
	if p.IsZero() {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON implements json.Unmarshaler. A JSON null leaves the payload
// empty; anything other than an object is rejected.
func (p *Payload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*p = nil
		return nil
	}
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return fmt.Errorf("%w: payload must be a JSON object", ErrInvalidMessage)
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return fmt.Errorf("%w: payload must be a JSON object", ErrInvalidMessage)
	}
	*p = append((*p)[:0], buf.Bytes()...)
	return nil
}

// Decode unmarshals the payload into v.
func (p Payload) Decode(v any) error {
	return json.Unmarshal(p, v)
}

// Stats summarizes the contents of a mailbox store.
type Stats struct {
	Pending    int64 `json:"pending"`
	Delivered  int64 `json:"delivered"`
	Recipients int64 `json:"recipients"`
}

// Clone returns a copy of m that shares no memory with it.
func (m Message) Clone() Message {
	if m.Payload != nil {
		m.Payload = append(Payload(nil), m.Payload...)
	}
	return m
}

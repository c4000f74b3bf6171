package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validMessage(t *testing.T) Message {
	t.Helper()
	p, err := NewPayload(map[string]any{"task": "do_something"})
	require.NoError(t, err)
	return Message{
		Sender:    "agentA",
		Recipient: "agentB",
		Timestamp: time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC),
		Type:      "command",
		Payload:   p,
	}
}

func TestMessageValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *Message)
		field  string
	}{
		{"valid", func(m *Message) {}, ""},
		{"missing sender", func(m *Message) { m.Sender = "" }, "sender"},
		{"blank recipient", func(m *Message) { m.Recipient = "  " }, "recipient"},
		{"missing type", func(m *Message) { m.Type = "" }, "type"},
		{"missing payload", func(m *Message) { m.Payload = nil }, "payload"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validMessage(t)
			tt.mutate(&m)
			err := m.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, ErrInvalidMessage))
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestPayloadJSON(t *testing.T) {
	var m Message
	err := json.Unmarshal([]byte(`{
		"sender": "agentA",
		"recipient": "agentB",
		"timestamp": "2025-06-15T12:00:00Z",
		"type": "command",
		"payload": {"task": "do_something", "args": [1, 2, {"deep": null}]}
	}`), &m)
	require.NoError(t, err)
	require.NoError(t, m.Validate())

	out, err := json.Marshal(m)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, map[string]any{
		"task": "do_something",
		"args": []any{float64(1), float64(2), map[string]any{"deep": nil}},
	}, decoded["payload"])
}

func TestPayloadRejectsNonObjects(t *testing.T) {
	for _, raw := range []string{`"text"`, `42`, `[1,2]`, `true`} {
		var p Payload
		err := p.UnmarshalJSON([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidMessage, "payload %s", raw)
	}
}

func TestPayloadCompactPreservesOrder(t *testing.T) {
	var p Payload
	require.NoError(t, p.UnmarshalJSON([]byte(` { "b": 2,
		"a": "x\u0000y" } `)))
	assert.Equal(t, `{"b":2,"a":"x\u0000y"}`, string(p))

	assert.ErrorIs(t, p.UnmarshalJSON([]byte(`{"a":`)), ErrInvalidMessage)
}

func TestPayloadNullIsMissing(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"sender":"a","recipient":"b","type":"status","payload":null}`), &m))
	assert.True(t, m.Payload.IsZero())
	assert.ErrorIs(t, m.Validate(), ErrInvalidMessage)
}

func TestMessageClone(t *testing.T) {
	m := validMessage(t)
	c := m.Clone()
	c.Payload[0] = '['
	assert.Equal(t, byte('{'), m.Payload[0])
}

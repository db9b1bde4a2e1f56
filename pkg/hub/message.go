// Package hub fans state changes out to websocket subscribers using a
// channel-based broadcast loop.
package hub

import (
	"encoding/json"

	"github.com/teslashibe/go-presence/pkg/state"
)

// MessageType indicates the websocket message format
type MessageType int

const (
	// JSONMessage is a JSON-encoded message
	JSONMessage MessageType = iota
	// BinaryMessage is raw binary data
	BinaryMessage
)

// Message represents a message to be broadcast to clients
type Message struct {
	Type MessageType
	Data []byte
}

// NewJSONMessage creates a JSON message from pre-encoded bytes
func NewJSONMessage(data []byte) Message {
	return Message{Type: JSONMessage, Data: data}
}

// NewBinaryMessage creates a binary message
func NewBinaryMessage(data []byte) Message {
	return Message{Type: BinaryMessage, Data: data}
}

// StatusUpdate is the JSON pushed to status subscribers: {"type": kind,
// "data": record}. Records use their durable file encoding.
type StatusUpdate struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// EventMessage encodes a store event.
func EventMessage(ev state.Event) (Message, error) {
	var data any
	switch ev.Kind {
	case state.EventPresence:
		data = ev.Presence
	case state.EventLastSeen:
		data = ev.LastSeen
	}
	b, err := json.Marshal(StatusUpdate{Type: string(ev.Kind), Data: data})
	if err != nil {
		return Message{}, err
	}
	return NewJSONMessage(b), nil
}

// Snapshot returns the messages a new subscriber receives first: the
// current presence and last-seen records, when present.
func Snapshot(store *state.Store) []Message {
	var out []Message
	if p, ok := store.ReadPresence(); ok {
		if m, err := EventMessage(state.Event{Kind: state.EventPresence, Presence: &p}); err == nil {
			out = append(out, m)
		}
	}
	if l, ok := store.ReadLastSeen(); ok {
		if m, err := EventMessage(state.Event{Kind: state.EventLastSeen, LastSeen: &l}); err == nil {
			out = append(out, m)
		}
	}
	return out
}

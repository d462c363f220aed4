// Package relay tracks live websocket sessions per identity and pushes
// events to them. It is the only piece of in-process shared mutable state;
// everything else lives in the durable store.
package relay

import (
	"encoding/json"
	"time"
)

// Inbound event names (client to server).
const (
	EventMessageSend = "message:send"
	EventMessageRead = "message:read"
	EventTypingStart = "typing:start"
	EventTypingStop  = "typing:stop"
)

// Outbound event names (server to client).
const (
	EventMessageNew      = "message:new"
	EventMessageSent     = "message:sent"
	EventPresenceOnline  = "presence:online"
	EventPresenceOffline = "presence:offline"
	EventError           = "error"
)

// Envelope is the wire frame: a named event with a structured payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// EncodeEvent wraps a payload into an envelope and marshals the frame.
func EncodeEvent(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

type SendPayload struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type TypingPayload struct {
	To             string `json:"to"`
	ConversationID string `json:"conversationId,omitempty"`
}

type ReadPayload struct {
	ConversationID string `json:"conversationId"`
}

type MessagePayload struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversationId"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	Text           string    `json:"text"`
	Read           bool      `json:"read"`
	CreatedAt      time.Time `json:"createdAt"`
}

type SentPayload struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
}

type PresenceOnlinePayload struct {
	UserID string `json:"userId"`
}

type PresenceOfflinePayload struct {
	UserID   string    `json:"userId"`
	LastSeen time.Time `json:"lastSeen"`
}

type TypingEvent struct {
	From           string `json:"from"`
	ConversationID string `json:"conversationId,omitempty"`
}

type ReadEvent struct {
	ConversationID string `json:"conversationId"`
	Reader         string `json:"reader"`
}

type ErrorPayload struct {
	Event string `json:"event"`
	Error string `json:"error"`
}

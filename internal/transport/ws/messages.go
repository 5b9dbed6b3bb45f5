package ws

import (
	"encoding/json"
	"time"
)

// MessageType represents the type of WebSocket message
type MessageType string

// Client → Server message types
const (
	MsgSubscribe   MessageType = "subscribe"
	MsgUnsubscribe MessageType = "unsubscribe"
	MsgSet         MessageType = "set"
	MsgPing        MessageType = "ping"
)

// Server → Client message types
const (
	MsgSnapshot MessageType = "snapshot"
	MsgAck      MessageType = "ack"
	MsgError    MessageType = "error"
	MsgPong     MessageType = "pong"
)

// ClientMessage represents a message from client to server
type ClientMessage struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ServerMessage represents a message from server to client
type ServerMessage struct {
	Type      MessageType `json:"type"`
	RequestID string      `json:"requestId,omitempty"`
	Payload   interface{} `json:"payload,omitempty"`
	Timestamp string      `json:"timestamp"`
}

// NewServerMessage creates a new server message with current timestamp
func NewServerMessage(msgType MessageType, requestID string, payload interface{}) *ServerMessage {
	return &ServerMessage{
		Type:      msgType,
		RequestID: requestID,
		Payload:   payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

// serverEnvelope is the receiving side of ServerMessage
type serverEnvelope struct {
	Type      MessageType     `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// Client message payloads

// KeyPayload is the payload for subscribe and unsubscribe messages
type KeyPayload struct {
	Key string `json:"key"`
}

// SetPayload is the payload for set message. A null value removes the key.
type SetPayload struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Server message payloads

// SnapshotPayload is the payload for snapshot message. Value is null for an absent key.
type SnapshotPayload struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// ErrorPayload is the payload for error message
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes
const (
	ErrCodeInvalidMessage   = "INVALID_MESSAGE"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

var jsonNull = json.RawMessage("null")

// encodeValue maps a store value to its wire form
func encodeValue(value []byte) json.RawMessage {
	if value == nil {
		return jsonNull
	}
	return json.RawMessage(value)
}

// decodeValue maps a wire value back to a store value, nil when absent
func decodeValue(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return []byte(raw)
}

package wire

import (
	"encoding/json"
	"fmt"
)

type MessageType string

const (
	// Client -> relay.
	MessageTypeJoin      MessageType = "join"
	MessageTypeLeave     MessageType = "leave"
	MessageTypeSignal    MessageType = "signal"
	MessageTypeBroadcast MessageType = "broadcast"

	// Relay -> client.
	MessageTypeJoined     MessageType = "joined"
	MessageTypePeerJoined MessageType = "peer-joined"
	MessageTypePeerLeft   MessageType = "peer-left"
	MessageTypeLeft       MessageType = "left"
	MessageTypeError      MessageType = "error"
)

// ClientMessage is a decoded client->relay message.
//
// Room is required for join; Data is required for signal and broadcast;
// To optionally addresses a signal to a single room member.
type ClientMessage struct {
	Type MessageType     `json:"type"`
	Room string          `json:"room,omitempty"`
	To   string          `json:"to,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// ServerMessage is a relay->client message. Which fields are populated
// depends on Type:
//
//	joined      ID (the recipient's own peer id), Peers (room snapshot
//	            excluding the recipient)
//	peer-joined PeerID
//	peer-left   PeerID
//	left        -
//	signal      From, Data, and To when the signal was directed
//	broadcast   From, Data
//	error       Message
type ServerMessage struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Peers   []string        `json:"peers,omitempty"`
	PeerID  string          `json:"peerId,omitempty"`
	From    string          `json:"from,omitempty"`
	To      string          `json:"to,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Message string          `json:"message,omitempty"`
}

// ErrorMessage builds the error response sent back to a misbehaving
// sender. The text is client-facing.
func ErrorMessage(text string) ServerMessage {
	return ServerMessage{Type: MessageTypeError, Message: text}
}

// ProtocolError describes a message that decoded as JSON but violates
// the per-type field contract. Its text is safe to echo to the sender.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return e.Reason }

// ParseClientMessage decodes and validates one inbound message.
//
// A returned *ProtocolError carries client-facing text; any other error
// means the payload was not a JSON object at all.
func ParseClientMessage(data []byte) (ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return ClientMessage{}, fmt.Errorf("wire: invalid message: %w", err)
	}
	if err := msg.validate(); err != nil {
		return ClientMessage{}, err
	}
	return msg, nil
}

func (m ClientMessage) validate() error {
	switch m.Type {
	case MessageTypeJoin:
		if m.Room == "" {
			return &ProtocolError{Reason: "join requires a non-empty room"}
		}
	case MessageTypeLeave:
	case MessageTypeSignal:
		if len(m.Data) == 0 {
			return &ProtocolError{Reason: "signal requires data"}
		}
	case MessageTypeBroadcast:
		if len(m.Data) == 0 {
			return &ProtocolError{Reason: "broadcast requires data"}
		}
	default:
		return &ProtocolError{Reason: fmt.Sprintf("unknown message type %q", string(m.Type))}
	}
	return nil
}

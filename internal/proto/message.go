package proto

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Envelope is the frame carried over the socket in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	// Lifecycle events raised by the transport itself, never sent over the wire.
	EventConnect      = "connect"
	EventConnectError = "connect_error"
	EventDisconnect   = "disconnect"

	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"

	EventNewMessage = "new_message"
	EventUserJoined = "userJoined"
	EventUserLeft   = "userLeft"
	EventError      = "error"
)

// MetadataClientMessageID is the reserved metadata key carrying the id of the
// locally composed message an outbound payload originated from.
const MetadataClientMessageID = "clientMessageId"

// JoinRoom asks the server to start delivering a room's events.
type JoinRoom struct {
	RoomID int64 `json:"roomId"`
	UserID int64 `json:"userId"`
}

// LeaveRoom asks the server to stop delivering a room's events.
type LeaveRoom struct {
	RoomID int64 `json:"roomId"`
}

// SendMessage is the outbound chat message payload.
type SendMessage struct {
	RoomID   int64          `json:"roomId"`
	UserID   int64          `json:"userId"`
	Content  string         `json:"content"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Typing signals that a user started or stopped typing in a room.
type Typing struct {
	RoomID   int64  `json:"roomId"`
	IsTyping bool   `json:"isTyping"`
	UserID   *int64 `json:"userId"`
}

// Presence is the payload of userJoined and userLeft.
type Presence struct {
	RoomID int64 `json:"roomId"`
	UserID int64 `json:"userId"`
}

// Sender is the profile summary attached to a server message.
type Sender struct {
	ID       int64  `json:"id"`
	FullName string `json:"fullName,omitempty"`
	Username string `json:"username,omitempty"`
	Avatar   string `json:"avatar,omitempty"`
}

// ServerMessage is a chat message as delivered by the server or the history endpoint.
type ServerMessage struct {
	ID        MessageID      `json:"id,omitempty"`
	RoomID    int64          `json:"roomId"`
	UserID    int64          `json:"userId,omitempty"`
	Content   string         `json:"content"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt string         `json:"createdAt"`
	User      *Sender        `json:"user,omitempty"`
}

// ErrorData is the payload of an error event sent by the server.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HistoryPage is one page of room history, newest message first.
type HistoryPage struct {
	Messages   []ServerMessage `json:"messages"`
	Page       int             `json:"page"`
	Limit      int             `json:"limit"`
	Total      int             `json:"total"`
	TotalPages int             `json:"totalPages"`
}

// HasMore reports whether an older page exists.
func (p *HistoryPage) HasMore() bool {
	return p.Page < p.TotalPages
}

// ConnectErrorData is the payload of the connect_error lifecycle event.
type ConnectErrorData struct {
	Message string `json:"message"`
}

// DisconnectData is the payload of the disconnect lifecycle event.
type DisconnectData struct {
	Reason string `json:"reason"`
}

// MessageID is a wire message id. Servers send it either as a number or a string.
type MessageID string

// UnmarshalJSON accepts numeric and string ids.
func (id *MessageID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = MessageID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("message id: %w", err)
	}
	*id = MessageID(n.String())
	return nil
}

// MarshalJSON writes numeric ids as numbers and everything else as strings.
func (id MessageID) MarshalJSON() ([]byte, error) {
	if _, err := strconv.ParseInt(string(id), 10, 64); err == nil {
		return []byte(id), nil
	}
	return json.Marshal(string(id))
}

// NewEnvelope marshals data into a frame for the given event.
func NewEnvelope(event string, data any) (Envelope, error) {
	if data == nil {
		return Envelope{Event: event}, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s: %w", event, err)
	}
	return Envelope{Event: event, Data: raw}, nil
}

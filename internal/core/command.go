package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandSendRoomMessage delivers a chat message to room participants.
	CommandSendRoomMessage CommandKind = iota
	// CommandJoinRoom subscribes the client to a room.
	CommandJoinRoom
	// CommandLeaveRoom unsubscribes the client from a room.
	CommandLeaveRoom
	// CommandTyping relays a typing indicator to the rest of the room.
	CommandTyping
)

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	RoomID   int64
	UserID   int64
	Message  Message
	IsTyping bool
}

package core

import "time"

// Message is the domain model for a chat message.
type Message struct {
	ID        int64
	RoomID    int64
	UserID    int64
	UserName  string
	Text      string
	Metadata  map[string]any
	CreatedAt time.Time
}

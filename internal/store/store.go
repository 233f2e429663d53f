package store

import (
	"context"
	"time"
)

// Message represents a persisted chat message.
type Message struct {
	ID        int64
	RoomID    int64
	UserID    int64
	UserName  string
	Body      string
	Metadata  map[string]any
	CreatedAt time.Time
}

// MessageStore handles message persistence.
type MessageStore interface {
	// SaveMessage persists a message and fills in its ID and CreatedAt.
	SaveMessage(ctx context.Context, msg *Message) error

	// ListMessages returns one page of a room's messages, newest first.
	// Offset counts messages skipped from the newest end.
	ListMessages(ctx context.Context, roomID int64, limit, offset int) ([]*Message, error)

	// CountMessages returns the number of messages stored for a room.
	CountMessages(ctx context.Context, roomID int64) (int, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	MessageStore

	// Close closes the underlying database connection.
	Close() error
}

package core

// Client is a chat participant as seen by the core layer.
type Client struct {
	ID       string
	UserID   int64
	Name     string
	Commands chan *Command
	Events   chan *Event

	// owned by the hub goroutine
	rooms map[int64]struct{}
	done  chan struct{}
}

// NewClient constructs a client with initialized channels. A zero userID is filled
// in from the first join.
func NewClient(id string, userID int64, name string) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Commands: make(chan *Command, 8),
		Events:   make(chan *Event, 32),
		rooms:    make(map[int64]struct{}),
		done:     make(chan struct{}),
	}
}

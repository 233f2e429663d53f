package realtime

import "encoding/json"

// Handler receives the raw data of one event.
type Handler func(data json.RawMessage)

// HandlerID identifies a subscription on a transport. Zero means "not subscribed".
type HandlerID uint64

// TransportOptions is the configuration a transport is built with. A reconnect
// reuses it unchanged.
type TransportOptions struct {
	URL   string
	Token string
}

// Transport is one underlying socket. Connect starts a connection attempt in the
// background; its outcome arrives as a connect or connect_error event on the same
// bus that carries wire events. A lost connection raises disconnect. Transports never
// reconnect on their own.
type Transport interface {
	Connect()
	Emit(event string, data any) error
	On(event string, h Handler) HandlerID
	Off(event string, ids ...HandlerID)
	Close() error
}

// TransportFactory builds a transport for a fresh connection.
type TransportFactory func(opts TransportOptions) Transport

// Emitter is the outbound side of the live channel. The Client implementation is
// fire-and-forget: nothing is acknowledged, retried or queued.
type Emitter interface {
	JoinRoom(roomID string, userID int64)
	LeaveRoom(roomID string)
	SendMessage(p SendPayload)
	SendTyping(roomID int64, isTyping bool, userID *int64)
}

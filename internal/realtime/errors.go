package realtime

import "errors"

var (
	// ErrNotConnected is returned by transports asked to emit without a live socket.
	ErrNotConnected = errors.New("realtime: not connected")
	// ErrInvalidRoomID is returned when a room id is not an integer.
	ErrInvalidRoomID = errors.New("realtime: invalid room id")
	// ErrAborted is returned to pending Connect calls when Disconnect runs first.
	ErrAborted = errors.New("realtime: connect aborted")
	// ErrExhausted is wrapped by a ConnectError when no reconnect is left to try.
	ErrExhausted = errors.New("realtime: reconnect attempts exhausted")
)

// ConnectError reports that the initial connection attempt failed. Err is
// ErrExhausted when the reconnection policy gave up with it.
type ConnectError struct {
	Message string
	Err     error
}

func (e *ConnectError) Unwrap() error { return e.Err }

func (e *ConnectError) Error() string {
	if e.Message == "" {
		return "realtime: connect failed"
	}
	return "realtime: connect failed: " + e.Message
}

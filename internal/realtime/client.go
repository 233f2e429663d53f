package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-realtime/internal/proto"
)

const (
	DefaultMaxAttempts = 5
	DefaultBaseDelay   = time.Second

	watcherBuffer = 16
)

// State is the connection state of a Client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateExhausted means the reconnection policy gave up. Only Connect leaves it.
	StateExhausted State = "exhausted"
)

// Option configures a Client.
type Option func(*Client)

// WithClock replaces the wall clock used for reconnect timers.
func WithClock(clk clock.Clock) Option {
	return func(c *Client) { c.clock = clk }
}

// WithLogger sets the client logger.
func WithLogger(logger *zerolog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.log = logger
		}
	}
}

// WithMaxAttempts bounds the number of scheduled reconnect attempts.
func WithMaxAttempts(n int) Option {
	return func(c *Client) { c.maxAttempts = n }
}

// WithBaseDelay sets the delay before the first reconnect attempt. Each following
// attempt doubles it.
func WithBaseDelay(d time.Duration) Option {
	return func(c *Client) { c.baseDelay = d }
}

type subscription struct {
	event string
	h     Handler
	tid   HandlerID
}

// Client owns one connection to the chat server and multiplexes rooms over it.
// Reconnection is driven by the client, never by the transport.
type Client struct {
	url         string
	factory     TransportFactory
	clock       clock.Clock
	log         *zerolog.Logger
	maxAttempts int
	baseDelay   time.Duration

	mu       sync.Mutex
	state    State
	socket   Transport
	attempts int
	timer    *clock.Timer
	timerGen uint64
	waiters  []chan error

	subs    map[HandlerID]*subscription
	nextSub HandlerID

	watchers    map[int]chan State
	nextWatcher int
}

// New builds a disconnected client that dials url through factory.
func New(url string, factory TransportFactory, opts ...Option) *Client {
	nop := zerolog.Nop()
	c := &Client{
		url:         url,
		factory:     factory,
		clock:       clock.New(),
		log:         &nop,
		maxAttempts: DefaultMaxAttempts,
		baseDelay:   DefaultBaseDelay,
		state:       StateDisconnected,
		subs:        make(map[HandlerID]*subscription),
		watchers:    make(map[int]chan State),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	sharedOnce sync.Once
	shared     *Client
)

// Shared returns the process-wide client, building it on first use. Arguments of
// later calls are ignored.
func Shared(url string, factory TransportFactory, opts ...Option) *Client {
	sharedOnce.Do(func() {
		shared = New(url, factory, opts...)
	})
	return shared
}

// State reports the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Attempts reports how many reconnect attempts were scheduled since the last
// successful connect.
func (c *Client) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

// Connect opens the connection with credential as the bearer token. It returns
// immediately when already connected. Otherwise it waits for the outcome of the
// first attempt; later attempts made by the reconnection policy report nothing.
// Connecting from the exhausted state restarts the reconnect budget.
// If ctx ends first the attempt keeps running and Disconnect is the way to stop it.
func (c *Client) Connect(ctx context.Context, credential string) error {
	c.mu.Lock()
	if c.state == StateConnected {
		c.mu.Unlock()
		return nil
	}

	if c.state == StateExhausted {
		c.attempts = 0
	}
	c.stopTimerLocked()
	old := c.socket
	sock := c.factory(TransportOptions{URL: c.url, Token: credential})
	c.socket = sock
	c.bindLocked(sock)

	done := make(chan error, 1)
	c.waiters = append(c.waiters, done)
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	if old != nil {
		if err := old.Close(); err != nil {
			c.log.Debug().Err(err).Msg("close replaced socket")
		}
	}

	c.log.Debug().Str("url", c.url).Msg("connecting")
	sock.Connect()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect cancels any pending reconnect, closes the socket and resets the
// attempt counter. It is safe to call in any state.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.stopTimerLocked()
	sock := c.socket
	c.socket = nil
	c.attempts = 0
	c.subs = make(map[HandlerID]*subscription)
	waiters := c.takeWaitersLocked()
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	for _, w := range waiters {
		w <- ErrAborted
	}
	if sock == nil {
		return
	}
	if err := sock.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close socket")
	}
	c.log.Info().Msg("disconnected")
}

// JoinRoom tells the server to deliver the room's events to this connection.
func (c *Client) JoinRoom(roomID string, userID int64) {
	if c.State() != StateConnected {
		return
	}
	id, err := ParseRoomID(roomID)
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("join_room dropped")
		return
	}
	c.emit(proto.EventJoinRoom, proto.JoinRoom{RoomID: id, UserID: userID})
}

// LeaveRoom tells the server to stop delivering the room's events.
func (c *Client) LeaveRoom(roomID string) {
	if c.State() != StateConnected {
		return
	}
	id, err := ParseRoomID(roomID)
	if err != nil {
		c.log.Warn().Err(err).Str("room_id", roomID).Msg("leave_room dropped")
		return
	}
	c.emit(proto.EventLeaveRoom, proto.LeaveRoom{RoomID: id})
}

// SendMessage emits p once. The message only shows up when the server
// broadcasts it back.
func (c *Client) SendMessage(p SendPayload) {
	c.emit(proto.EventSendMessage, p)
}

// SendTyping emits a typing signal. Debouncing is up to the caller.
func (c *Client) SendTyping(roomID int64, isTyping bool, userID *int64) {
	c.emit(proto.EventTyping, proto.Typing{RoomID: roomID, IsTyping: isTyping, UserID: userID})
}

// On subscribes h to event on the current socket. Without a socket nothing is
// subscribed and the zero id is returned. Subscriptions carry over when Connect
// replaces the socket and are dropped by Disconnect.
func (c *Client) On(event string, h Handler) HandlerID {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.socket == nil {
		return 0
	}
	c.nextSub++
	id := c.nextSub
	c.subs[id] = &subscription{event: event, h: h, tid: c.socket.On(event, h)}
	return id
}

// Off removes the given subscriptions of event, or all of them when no ids are given.
func (c *Client) Off(event string, ids ...HandlerID) {
	c.mu.Lock()
	sock := c.socket
	var tids []HandlerID
	remove := func(id HandlerID) {
		if sub, ok := c.subs[id]; ok && sub.event == event {
			tids = append(tids, sub.tid)
			delete(c.subs, id)
		}
	}
	if len(ids) == 0 {
		for id := range c.subs {
			remove(id)
		}
	} else {
		for _, id := range ids {
			remove(id)
		}
	}
	c.mu.Unlock()

	if sock != nil && len(tids) > 0 {
		sock.Off(event, tids...)
	}
}

// WatchState streams state transitions, starting with the current state. A watcher
// that falls behind misses transitions instead of blocking the client. The returned
// func stops the stream and closes the channel.
func (c *Client) WatchState() (<-chan State, func()) {
	ch := make(chan State, watcherBuffer)

	c.mu.Lock()
	c.nextWatcher++
	key := c.nextWatcher
	c.watchers[key] = ch
	ch <- c.state
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.watchers, key)
			close(ch)
			c.mu.Unlock()
		})
	}
}

func (c *Client) emit(event string, data any) {
	c.mu.Lock()
	sock, state := c.socket, c.state
	c.mu.Unlock()

	if state != StateConnected || sock == nil {
		c.log.Debug().Str("event", event).Str("state", string(state)).Msg("emit dropped")
		return
	}
	if err := sock.Emit(event, data); err != nil {
		c.log.Warn().Err(err).Str("event", event).Msg("emit failed")
	}
}

func (c *Client) bindLocked(sock Transport) {
	sock.On(proto.EventConnect, func(json.RawMessage) { c.handleConnect(sock) })
	sock.On(proto.EventConnectError, func(data json.RawMessage) { c.handleConnectError(sock, data) })
	sock.On(proto.EventDisconnect, func(data json.RawMessage) { c.handleDisconnect(sock, data) })
	for _, sub := range c.subs {
		sub.tid = sock.On(sub.event, sub.h)
	}
}

func (c *Client) handleConnect(sock Transport) {
	c.mu.Lock()
	if c.socket != sock {
		c.mu.Unlock()
		return
	}
	c.attempts = 0
	c.setStateLocked(StateConnected)
	waiters := c.takeWaitersLocked()
	c.mu.Unlock()

	c.log.Info().Str("url", c.url).Msg("connected")
	for _, w := range waiters {
		w <- nil
	}
}

func (c *Client) handleConnectError(sock Transport, data json.RawMessage) {
	var payload proto.ConnectErrorData
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}

	c.mu.Lock()
	if c.socket != sock {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnected)
	waiters := c.takeWaitersLocked()
	c.scheduleReconnectLocked()
	var cause error
	if c.state == StateExhausted {
		cause = ErrExhausted
	}
	c.mu.Unlock()

	c.log.Warn().Str("error", payload.Message).Msg("connect error")
	for _, w := range waiters {
		w <- &ConnectError{Message: payload.Message, Err: cause}
	}
}

func (c *Client) handleDisconnect(sock Transport, data json.RawMessage) {
	var payload proto.DisconnectData
	if len(data) > 0 {
		_ = json.Unmarshal(data, &payload)
	}

	c.mu.Lock()
	if c.socket != sock {
		c.mu.Unlock()
		return
	}
	c.setStateLocked(StateDisconnected)
	c.scheduleReconnectLocked()
	c.mu.Unlock()

	c.log.Warn().Str("reason", payload.Reason).Msg("connection lost")
}

// scheduleReconnectLocked arms the single reconnect timer, or gives up once the
// attempt ceiling is reached.
func (c *Client) scheduleReconnectLocked() {
	if c.attempts >= c.maxAttempts {
		c.stopTimerLocked()
		c.setStateLocked(StateExhausted)
		c.log.Error().Int("attempts", c.attempts).Msg("reconnect attempts exhausted")
		return
	}

	delay := c.baseDelay << c.attempts
	c.attempts++
	c.stopTimerLocked()

	gen := c.timerGen
	sock := c.socket
	c.timer = c.clock.AfterFunc(delay, func() { c.reconnect(sock, gen) })
	c.log.Info().Int("attempt", c.attempts).Dur("delay", delay).Msg("reconnect scheduled")
}

func (c *Client) reconnect(sock Transport, gen uint64) {
	c.mu.Lock()
	if gen != c.timerGen || c.socket != sock || c.state != StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	c.setStateLocked(StateConnecting)
	c.mu.Unlock()

	sock.Connect()
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerGen++
}

func (c *Client) takeWaitersLocked() []chan error {
	waiters := c.waiters
	c.waiters = nil
	return waiters
}

func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	for _, ch := range c.watchers {
		select {
		case ch <- s:
		default:
		}
	}
}

// ParseRoomID coerces a room id to its integer form.
func ParseRoomID(roomID string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(roomID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRoomID, roomID)
	}
	return id, nil
}

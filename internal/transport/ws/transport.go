package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-realtime/internal/proto"
	"github.com/vovakirdan/huddle-realtime/internal/realtime"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// Options tunes the websocket transport.
type Options struct {
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	HTTPClient   *http.Client
	Logger       *zerolog.Logger
}

type entry struct {
	id realtime.HandlerID
	h  realtime.Handler
}

// Transport is a realtime.Transport over a single websocket. Frames are
// proto.Envelope values encoded as JSON text messages.
type Transport struct {
	opts realtime.TransportOptions
	cfg  Options
	log  *zerolog.Logger

	mu       sync.Mutex
	conn     *websocket.Conn
	cancel   context.CancelFunc
	dialing  bool
	closed   bool
	handlers map[string][]entry
	nextID   realtime.HandlerID
}

var _ realtime.Transport = (*Transport)(nil)

// Factory returns a realtime.TransportFactory building websocket transports.
func Factory(cfg Options) realtime.TransportFactory {
	return func(opts realtime.TransportOptions) realtime.Transport {
		return New(opts, cfg)
	}
}

// New builds an idle transport. Nothing is dialed until Connect.
func New(opts realtime.TransportOptions, cfg Options) *Transport {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaultWriteTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Transport{
		opts:     opts,
		cfg:      cfg,
		log:      logger,
		handlers: make(map[string][]entry),
	}
}

// Connect dials in the background unless a dial is in flight or a connection is up.
func (t *Transport) Connect() {
	t.mu.Lock()
	if t.closed || t.dialing || t.conn != nil {
		t.mu.Unlock()
		return
	}
	t.dialing = true
	if t.cancel != nil {
		t.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.mu.Unlock()

	go t.run(ctx)
}

func (t *Transport) run(ctx context.Context) {
	conn, err := t.dial(ctx)

	t.mu.Lock()
	t.dialing = false
	if t.closed {
		t.mu.Unlock()
		if conn != nil {
			_ = conn.CloseNow()
		}
		return
	}
	if err != nil {
		t.mu.Unlock()
		t.log.Debug().Err(err).Str("url", t.opts.URL).Msg("ws dial failed")
		t.dispatchValue(proto.EventConnectError, proto.ConnectErrorData{Message: err.Error()})
		return
	}
	t.conn = conn
	t.mu.Unlock()

	t.dispatch(proto.EventConnect, nil)
	t.readLoop(ctx, conn)
}

func (t *Transport) dial(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, t.cfg.DialTimeout)
	defer cancel()

	header := http.Header{}
	if t.opts.Token != "" {
		header.Set("Authorization", "Bearer "+t.opts.Token)
	}

	conn, _, err := websocket.Dial(dialCtx, t.opts.URL, &websocket.DialOptions{
		HTTPClient: t.cfg.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", t.opts.URL, err)
	}
	return conn, nil
}

func (t *Transport) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			t.mu.Lock()
			closed := t.closed
			if t.conn == conn {
				t.conn = nil
			}
			t.mu.Unlock()
			if closed {
				return
			}

			_ = conn.CloseNow()
			reason := err.Error()
			if status := websocket.CloseStatus(err); status != -1 {
				reason = status.String()
			}
			t.log.Debug().Err(err).Msg("ws read ended")
			t.dispatchValue(proto.EventDisconnect, proto.DisconnectData{Reason: reason})
			return
		}

		switch env.Event {
		case proto.EventConnect, proto.EventConnectError, proto.EventDisconnect:
			t.log.Warn().Str("event", env.Event).Msg("ignoring lifecycle event from server")
			continue
		}
		t.dispatch(env.Event, env.Data)
	}
}

// Emit writes one frame. It fails when no connection is up.
func (t *Transport) Emit(event string, data any) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return realtime.ErrNotConnected
	}

	env, err := proto.NewEnvelope(event, data)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), t.cfg.WriteTimeout)
	defer cancel()
	if err := wsjson.Write(ctx, conn, env); err != nil {
		return fmt.Errorf("write %s: %w", event, err)
	}
	return nil
}

// On registers h for event. Handlers run on the read goroutine in registration order.
func (t *Transport) On(event string, h realtime.Handler) realtime.HandlerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextID++
	t.handlers[event] = append(t.handlers[event], entry{id: t.nextID, h: h})
	return t.nextID
}

// Off removes handlers for event; all of them when no ids are given.
func (t *Transport) Off(event string, ids ...realtime.HandlerID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(ids) == 0 {
		delete(t.handlers, event)
		return
	}
	t.handlers[event] = slices.DeleteFunc(t.handlers[event], func(e entry) bool {
		return slices.Contains(ids, e.id)
	})
}

// Close shuts the connection down for good. No lifecycle events follow.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	conn := t.conn
	t.conn = nil
	cancel := t.cancel
	t.mu.Unlock()

	// Stop the read loop first, it holds the read lock.
	if cancel != nil {
		cancel()
	}
	if conn == nil {
		return nil
	}
	if err := conn.CloseNow(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

func (t *Transport) dispatchValue(event string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		t.log.Error().Err(err).Str("event", event).Msg("marshal lifecycle payload")
		return
	}
	t.dispatch(event, raw)
}

func (t *Transport) dispatch(event string, data json.RawMessage) {
	t.mu.Lock()
	handlers := slices.Clone(t.handlers[event])
	t.mu.Unlock()

	for _, e := range handlers {
		e.h(data)
	}
}

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-realtime/internal/history"
	"github.com/vovakirdan/huddle-realtime/internal/proto"
	"github.com/vovakirdan/huddle-realtime/internal/realtime"
	"github.com/vovakirdan/huddle-realtime/internal/typing"
	"github.com/vovakirdan/huddle-realtime/internal/utils"
)

var (
	ErrNotOpen      = errors.New("conversation not open")
	ErrEmptyMessage = errors.New("message is empty")

	// ErrHistoryUnavailable marks an Open that connected but could not load history.
	ErrHistoryUnavailable = errors.New("history unavailable")
)

// HistorySource serves pages of room history, newest first.
type HistorySource interface {
	Fetch(ctx context.Context, roomID int64, page, limit int) (*history.Page, error)
}

// Options configures a Conversation.
type Options struct {
	RoomID      int64
	UserID      int64
	UserName    string
	Credential  string
	PageSize    int
	TypingQuiet time.Duration
	Clock       clock.Clock
	Converter   realtime.Converter
	Logger      *zerolog.Logger

	// Callbacks run on the transport goroutine.
	OnMessage  func(msg realtime.UIMessage)
	OnTyping   func(userID int64, isTyping bool)
	OnPresence func(event string, p proto.Presence)
}

// Conversation is the headless conversation screen: one room, its live messages and
// its paginated history.
type Conversation struct {
	coord *realtime.Coordinator
	hist  HistorySource
	opts  Options
	room  string
	log   *zerolog.Logger

	mu         sync.Mutex
	lease      *realtime.Lease
	debounce   *typing.Debouncer
	messages   []realtime.UIMessage
	seen       map[string]struct{}
	page       int
	totalPages int
	typing     map[int64]struct{}
}

// New builds a closed conversation for opts.RoomID.
func New(coord *realtime.Coordinator, hist HistorySource, opts Options) *Conversation {
	if opts.PageSize <= 0 {
		opts.PageSize = history.DefaultPageSize
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	logger := opts.Logger
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	room := strconv.FormatInt(opts.RoomID, 10)
	scoped := logger.With().Str("room_id", room).Logger()

	return &Conversation{
		coord:  coord,
		hist:   hist,
		opts:   opts,
		room:   room,
		log:    &scoped,
		seen:   make(map[string]struct{}),
		typing: make(map[int64]struct{}),
	}
}

// Open connects, subscribes, joins the room and loads the first history page. A
// connect failure is returned with nothing joined or fetched. A history failure is
// returned too, but the live channel stays open; Close must be called either way.
func (c *Conversation) Open(ctx context.Context) error {
	lease, err := c.coord.Acquire(ctx, c.opts.Credential)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	userID := c.opts.UserID
	debounce := typing.New(c.opts.Clock, c.opts.TypingQuiet, func(isTyping bool) {
		lease.SendTyping(c.opts.RoomID, isTyping, &userID)
	})

	c.mu.Lock()
	c.lease = lease
	c.debounce = debounce
	c.mu.Unlock()

	lease.On(proto.EventNewMessage, c.handleMessage)
	lease.On(proto.EventTyping, c.handleTyping)
	lease.On(proto.EventUserJoined, func(data json.RawMessage) { c.handlePresence(proto.EventUserJoined, data) })
	lease.On(proto.EventUserLeft, func(data json.RawMessage) { c.handlePresence(proto.EventUserLeft, data) })
	lease.JoinRoom(c.room, userID)

	page, err := c.hist.Fetch(ctx, c.opts.RoomID, 1, c.opts.PageSize)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}
	c.appendPage(page)
	return nil
}

// LoadEarlier appends the next older page and reports whether more remain.
func (c *Conversation) LoadEarlier(ctx context.Context) (bool, error) {
	c.mu.Lock()
	if c.lease == nil {
		c.mu.Unlock()
		return false, ErrNotOpen
	}
	next := c.page + 1
	done := c.page > 0 && c.page >= c.totalPages
	c.mu.Unlock()
	if done {
		return false, nil
	}

	page, err := c.hist.Fetch(ctx, c.opts.RoomID, next, c.opts.PageSize)
	if err != nil {
		return false, fmt.Errorf("load page %d: %w", next, err)
	}
	c.appendPage(page)
	return page.HasMore(), nil
}

// Send emits text as a new message and returns the composed message. It is not added
// to the list; it appears once the server broadcasts it back.
func (c *Conversation) Send(text string) (realtime.UIMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return realtime.UIMessage{}, ErrEmptyMessage
	}

	c.mu.Lock()
	lease, debounce := c.lease, c.debounce
	c.mu.Unlock()
	if lease == nil {
		return realtime.UIMessage{}, ErrNotOpen
	}

	msg := realtime.UIMessage{
		ID:        utils.NewID(),
		Text:      text,
		CreatedAt: c.opts.Clock.Now(),
		User:      realtime.UIUser{ID: c.opts.UserID, Name: c.opts.UserName},
		RoomID:    c.room,
	}
	debounce.Stop()
	lease.SendMessage(realtime.ToSendPayload(msg, c.opts.RoomID, c.opts.UserID))
	return msg, nil
}

// InputChanged feeds the typing debouncer.
func (c *Conversation) InputChanged() {
	c.mu.Lock()
	debounce := c.debounce
	c.mu.Unlock()
	if debounce != nil {
		debounce.Input()
	}
}

// Close stops typing, leaves the room and releases the connection reference.
func (c *Conversation) Close() {
	c.mu.Lock()
	lease, debounce := c.lease, c.debounce
	c.lease, c.debounce = nil, nil
	c.mu.Unlock()

	if debounce != nil {
		debounce.Stop()
	}
	if lease != nil {
		lease.Release()
	}
}

// Messages returns the loaded messages, newest first.
func (c *Conversation) Messages() []realtime.UIMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.messages)
}

// Typing returns the ids of other users currently typing, ascending.
func (c *Conversation) Typing() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.typing))
	for id := range c.typing {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (c *Conversation) appendPage(page *history.Page) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range page.Messages {
		msg := c.opts.Converter.ToUIMessage(m)
		if _, dup := c.seen[msg.ID]; dup {
			continue
		}
		c.seen[msg.ID] = struct{}{}
		c.messages = append(c.messages, msg)
	}
	c.page = page.Page
	c.totalPages = page.TotalPages
}

func (c *Conversation) handleMessage(data json.RawMessage) {
	var m proto.ServerMessage
	if err := json.Unmarshal(data, &m); err != nil {
		c.log.Warn().Err(err).Msg("bad new_message payload")
		return
	}
	if m.RoomID != c.opts.RoomID {
		return
	}
	msg := c.opts.Converter.ToUIMessage(m)

	c.mu.Lock()
	if _, dup := c.seen[msg.ID]; dup {
		c.mu.Unlock()
		return
	}
	c.seen[msg.ID] = struct{}{}
	c.messages = slices.Insert(c.messages, 0, msg)
	delete(c.typing, msg.User.ID)
	c.mu.Unlock()

	if c.opts.OnMessage != nil {
		c.opts.OnMessage(msg)
	}
}

func (c *Conversation) handleTyping(data json.RawMessage) {
	var t proto.Typing
	if err := json.Unmarshal(data, &t); err != nil {
		c.log.Warn().Err(err).Msg("bad typing payload")
		return
	}
	if t.RoomID != c.opts.RoomID || t.UserID == nil || *t.UserID == c.opts.UserID {
		return
	}

	c.mu.Lock()
	if t.IsTyping {
		c.typing[*t.UserID] = struct{}{}
	} else {
		delete(c.typing, *t.UserID)
	}
	c.mu.Unlock()

	if c.opts.OnTyping != nil {
		c.opts.OnTyping(*t.UserID, t.IsTyping)
	}
}

func (c *Conversation) handlePresence(event string, data json.RawMessage) {
	var p proto.Presence
	if err := json.Unmarshal(data, &p); err != nil {
		c.log.Debug().Err(err).Str("event", event).Msg("unrecognised presence payload")
		return
	}
	if p.RoomID != c.opts.RoomID {
		return
	}
	if event == proto.EventUserLeft {
		c.mu.Lock()
		delete(c.typing, p.UserID)
		c.mu.Unlock()
	}
	if c.opts.OnPresence != nil {
		c.opts.OnPresence(event, p)
	}
}

package core

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/huddle-realtime/internal/store"
)

type inbound struct {
	client *Client
	cmd    *Command
}

// Hub owns rooms and routes client commands. All room state is touched only by
// the Run goroutine.
type Hub struct {
	store store.MessageStore
	log   *zerolog.Logger

	register   chan *Client
	unregister chan *Client
	inbox      chan inbound
	stopped    chan struct{}

	clients map[*Client]struct{}
	rooms   map[int64]*Room
	seq     int64
}

// NewHub creates a hub. With a nil store messages get in-memory ids and are not kept.
func NewHub(st store.MessageStore, logger *zerolog.Logger) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Hub{
		store:      st,
		log:        logger,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		inbox:      make(chan inbound, 64),
		stopped:    make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		rooms:      make(map[int64]*Room),
	}
}

// RegisterClient hands a client to the hub. It is a no-op once Run has returned.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.stopped:
	}
}

// UnregisterClient removes a client from every room and closes its Events channel.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// Run processes hub traffic until ctx is cancelled. It must be called once.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			go h.forward(ctx, c)
		case c := <-h.unregister:
			h.removeClient(c)
		case in := <-h.inbox:
			h.handle(ctx, in.client, in.cmd)
		}
	}
}

func (h *Hub) forward(ctx context.Context, c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			select {
			case h.inbox <- inbound{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-ctx.Done():
				return
			}
		case <-c.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (h *Hub) removeClient(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for roomID := range c.rooms {
		h.leave(c, roomID)
	}
	close(c.done)
	close(c.Events)
}

func (h *Hub) handle(ctx context.Context, c *Client, cmd *Command) {
	if _, ok := h.clients[c]; !ok || cmd == nil {
		return
	}

	switch cmd.Kind {
	case CommandJoinRoom:
		if c.UserID == 0 {
			c.UserID = cmd.UserID
		}
		room, ok := h.rooms[cmd.RoomID]
		if !ok {
			room = NewRoom(cmd.RoomID)
			h.rooms[cmd.RoomID] = room
		}
		if !room.AddClient(c) {
			return
		}
		c.rooms[cmd.RoomID] = struct{}{}
		h.log.Debug().Str("client_id", c.ID).Int64("room_id", cmd.RoomID).Int64("user_id", c.UserID).Msg("joined room")
		room.Broadcast(&Event{Kind: EventUserJoined, RoomID: cmd.RoomID, UserID: c.UserID}, nil)

	case CommandLeaveRoom:
		if _, ok := c.rooms[cmd.RoomID]; !ok {
			deliver(c, &Event{Kind: EventError, RoomID: cmd.RoomID, Error: coreError(ErrCodeNotInRoom, "not in room")})
			return
		}
		h.leave(c, cmd.RoomID)

	case CommandSendRoomMessage:
		room, ok := h.rooms[cmd.RoomID]
		if !ok || !room.Has(c) {
			deliver(c, &Event{Kind: EventError, RoomID: cmd.RoomID, Error: coreError(ErrCodeNotInRoom, "join the room before sending")})
			return
		}
		msg := cmd.Message
		msg.RoomID = cmd.RoomID
		if c.UserID != 0 {
			msg.UserID = c.UserID
		}
		if msg.UserName == "" {
			msg.UserName = c.Name
		}
		if err := h.persist(ctx, &msg); err != nil {
			h.log.Error().Err(err).Int64("room_id", cmd.RoomID).Msg("failed to save message")
			deliver(c, &Event{Kind: EventError, RoomID: cmd.RoomID, Error: coreError(ErrCodeInternal, "message not saved")})
			return
		}
		room.Broadcast(&Event{Kind: EventRoomMessage, RoomID: cmd.RoomID, UserID: msg.UserID, Message: msg}, nil)

	case CommandTyping:
		room, ok := h.rooms[cmd.RoomID]
		if !ok || !room.Has(c) {
			return
		}
		userID := c.UserID
		if userID == 0 {
			userID = cmd.UserID
		}
		room.Broadcast(&Event{Kind: EventTyping, RoomID: cmd.RoomID, UserID: userID, IsTyping: cmd.IsTyping}, c)
	}
}

func (h *Hub) leave(c *Client, roomID int64) {
	delete(c.rooms, roomID)
	room, ok := h.rooms[roomID]
	if !ok || !room.RemoveClient(c) {
		return
	}
	room.Broadcast(&Event{Kind: EventUserLeft, RoomID: roomID, UserID: c.UserID}, nil)
	if room.Empty() {
		delete(h.rooms, roomID)
	}
}

func (h *Hub) persist(ctx context.Context, msg *Message) error {
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if h.store == nil {
		h.seq++
		msg.ID = h.seq
		return nil
	}

	rec := &store.Message{
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		UserName:  msg.UserName,
		Body:      msg.Text,
		Metadata:  msg.Metadata,
		CreatedAt: msg.CreatedAt,
	}
	if err := h.store.SaveMessage(ctx, rec); err != nil {
		return err
	}
	msg.ID = rec.ID
	msg.CreatedAt = rec.CreatedAt
	return nil
}

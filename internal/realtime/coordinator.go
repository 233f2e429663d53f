package realtime

import (
	"context"
	"encoding/json"
	"slices"
	"strconv"
	"sync"

	"github.com/vovakirdan/huddle-realtime/internal/proto"
)

type roomRef struct {
	count  int
	userID int64
}

// Coordinator shares one Client between several conversations. The connection
// stays up while at least one lease is held, and a room is left only when the
// last lease that joined it lets go.
type Coordinator struct {
	client *Client

	mu       sync.Mutex
	leases   int
	rooms    map[int64]*roomRef
	rejoinID HandlerID
}

// NewCoordinator wraps client.
func NewCoordinator(client *Client) *Coordinator {
	return &Coordinator{
		client: client,
		rooms:  make(map[int64]*roomRef),
	}
}

// Client returns the shared client.
func (co *Coordinator) Client() *Client {
	return co.client
}

// Acquire takes a reference on the connection, connecting if needed. On failure
// the reference is dropped again and the error of the connect attempt returned.
func (co *Coordinator) Acquire(ctx context.Context, credential string) (*Lease, error) {
	co.mu.Lock()
	co.leases++
	co.mu.Unlock()

	if err := co.client.Connect(ctx, credential); err != nil {
		co.releaseLease()
		return nil, err
	}

	co.mu.Lock()
	if co.rejoinID == 0 {
		co.rejoinID = co.client.On(proto.EventConnect, func(json.RawMessage) { co.rejoin() })
	}
	co.mu.Unlock()

	return &Lease{
		co:    co,
		rooms: make(map[int64]struct{}),
	}, nil
}

// rejoin repeats join_room for every held room once a reconnect succeeds, since
// the server forgets memberships with the old connection.
func (co *Coordinator) rejoin() {
	co.mu.Lock()
	joins := make([]proto.JoinRoom, 0, len(co.rooms))
	for id, ref := range co.rooms {
		joins = append(joins, proto.JoinRoom{RoomID: id, UserID: ref.userID})
	}
	co.mu.Unlock()

	for _, j := range joins {
		co.client.JoinRoom(strconv.FormatInt(j.RoomID, 10), j.UserID)
	}
}

func (co *Coordinator) retainRoom(roomID, userID int64) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	ref, ok := co.rooms[roomID]
	if !ok {
		co.rooms[roomID] = &roomRef{count: 1, userID: userID}
		return true
	}
	ref.count++
	return false
}

func (co *Coordinator) releaseRoom(roomID int64) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	ref, ok := co.rooms[roomID]
	if !ok {
		return false
	}
	ref.count--
	if ref.count > 0 {
		return false
	}
	delete(co.rooms, roomID)
	return true
}

func (co *Coordinator) releaseLease() {
	co.mu.Lock()
	co.leases--
	last := co.leases <= 0
	var rejoinID HandlerID
	if last {
		co.leases = 0
		rejoinID, co.rejoinID = co.rejoinID, 0
	}
	co.mu.Unlock()

	if last {
		if rejoinID != 0 {
			co.client.Off(proto.EventConnect, rejoinID)
		}
		co.client.Disconnect()
	}
}

type leaseSub struct {
	event string
	id    HandlerID
}

// Lease is one holder's view of the shared connection.
type Lease struct {
	co *Coordinator

	mu       sync.Mutex
	released bool
	rooms    map[int64]struct{}
	subs     []leaseSub
}

var _ Emitter = (*Lease)(nil)

// JoinRoom joins roomID unless another lease already holds it.
func (l *Lease) JoinRoom(roomID string, userID int64) {
	id, err := ParseRoomID(roomID)
	if err != nil {
		l.co.client.log.Warn().Err(err).Msg("lease join dropped")
		return
	}

	l.mu.Lock()
	if _, held := l.rooms[id]; held || l.released {
		l.mu.Unlock()
		return
	}
	l.rooms[id] = struct{}{}
	l.mu.Unlock()

	if l.co.retainRoom(id, userID) {
		l.co.client.JoinRoom(roomID, userID)
	}
}

// LeaveRoom leaves roomID if this was the last lease holding it.
func (l *Lease) LeaveRoom(roomID string) {
	id, err := ParseRoomID(roomID)
	if err != nil {
		return
	}

	l.mu.Lock()
	if _, held := l.rooms[id]; !held {
		l.mu.Unlock()
		return
	}
	delete(l.rooms, id)
	l.mu.Unlock()

	if l.co.releaseRoom(id) {
		l.co.client.LeaveRoom(roomID)
	}
}

func (l *Lease) SendMessage(p SendPayload) {
	if l.isReleased() {
		return
	}
	l.co.client.SendMessage(p)
}

func (l *Lease) SendTyping(roomID int64, isTyping bool, userID *int64) {
	if l.isReleased() {
		return
	}
	l.co.client.SendTyping(roomID, isTyping, userID)
}

// On subscribes h for the lifetime of the lease.
func (l *Lease) On(event string, h Handler) HandlerID {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.released {
		return 0
	}
	id := l.co.client.On(event, h)
	if id != 0 {
		l.subs = append(l.subs, leaseSub{event: event, id: id})
	}
	return id
}

// Off removes this lease's subscriptions of event; all of them when no ids are given.
func (l *Lease) Off(event string, ids ...HandlerID) {
	l.mu.Lock()
	var drop []HandlerID
	kept := l.subs[:0]
	for _, sub := range l.subs {
		if sub.event == event && (len(ids) == 0 || slices.Contains(ids, sub.id)) {
			drop = append(drop, sub.id)
			continue
		}
		kept = append(kept, sub)
	}
	l.subs = kept
	l.mu.Unlock()

	if len(drop) > 0 {
		l.co.client.Off(event, drop...)
	}
}

// Release drops the lease: its handlers are removed, rooms no other lease holds are
// left, and the connection is closed if this was the last lease. Calling it again
// does nothing.
func (l *Lease) Release() {
	l.mu.Lock()
	if l.released {
		l.mu.Unlock()
		return
	}
	l.released = true
	subs := l.subs
	rooms := l.rooms
	l.subs = nil
	l.rooms = make(map[int64]struct{})
	l.mu.Unlock()

	for _, sub := range subs {
		l.co.client.Off(sub.event, sub.id)
	}
	for id := range rooms {
		if l.co.releaseRoom(id) {
			l.co.client.LeaveRoom(strconv.FormatInt(id, 10))
		}
	}
	l.co.releaseLease()
}

func (l *Lease) isReleased() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.released
}

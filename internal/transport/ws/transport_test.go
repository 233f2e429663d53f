package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/vovakirdan/huddle-realtime/internal/proto"
	"github.com/vovakirdan/huddle-realtime/internal/realtime"
)

// peer is the server side of one test connection.
type peer struct {
	auth string
	conn *websocket.Conn
}

func startPeerServer(t *testing.T) (*httptest.Server, <-chan *peer) {
	t.Helper()

	peers := make(chan *peer, 4)
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		p := &peer{auth: r.Header.Get("Authorization"), conn: conn}
		peers <- p
		// Returning from the handler would tear the connection down.
		select {
		case <-done:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(ts.Close)
	return ts, peers
}

func wsURL(ts *httptest.Server) string {
	return strings.Replace(ts.URL, "http", "ws", 1)
}

type events struct {
	mu  sync.Mutex
	got map[string][]json.RawMessage
}

func record(tr *Transport, names ...string) *events {
	ev := &events{got: make(map[string][]json.RawMessage)}
	for _, name := range names {
		tr.On(name, func(data json.RawMessage) {
			ev.mu.Lock()
			ev.got[name] = append(ev.got[name], data)
			ev.mu.Unlock()
		})
	}
	return ev
}

func (e *events) count(name string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.got[name])
}

func (e *events) first(name string) json.RawMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.got[name][0]
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func nextPeer(t *testing.T, peers <-chan *peer) *peer {
	t.Helper()

	select {
	case p := <-peers:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("server never saw a connection")
	}
	return nil
}

func TestTransportConnectEmitAndReceive(t *testing.T) {
	ts, peers := startPeerServer(t)

	tr := New(realtime.TransportOptions{URL: wsURL(ts), Token: "abc"}, Options{})
	defer tr.Close()
	ev := record(tr, proto.EventConnect, proto.EventNewMessage)

	tr.Connect()
	p := nextPeer(t, peers)
	waitFor(t, func() bool { return ev.count(proto.EventConnect) == 1 }, "connect not dispatched")

	if p.auth != "Bearer abc" {
		t.Fatalf("unexpected authorization header %q", p.auth)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := tr.Emit(proto.EventJoinRoom, proto.JoinRoom{RoomID: 7, UserID: 42}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	var env proto.Envelope
	if err := wsjson.Read(ctx, p.conn, &env); err != nil {
		t.Fatalf("server read: %v", err)
	}
	if env.Event != proto.EventJoinRoom || string(env.Data) != `{"roomId":7,"userId":42}` {
		t.Fatalf("unexpected frame: %s %s", env.Event, env.Data)
	}

	out, _ := proto.NewEnvelope(proto.EventNewMessage, proto.ServerMessage{ID: "1", RoomID: 7, Content: "hi"})
	if err := wsjson.Write(ctx, p.conn, out); err != nil {
		t.Fatalf("server write: %v", err)
	}
	waitFor(t, func() bool { return ev.count(proto.EventNewMessage) == 1 }, "new_message not dispatched")

	var msg proto.ServerMessage
	if err := json.Unmarshal(ev.first(proto.EventNewMessage), &msg); err != nil || msg.Content != "hi" {
		t.Fatalf("unexpected message %s: %v", ev.first(proto.EventNewMessage), err)
	}
}

func TestTransportDialFailureRaisesConnectError(t *testing.T) {
	tr := New(realtime.TransportOptions{URL: "ws://127.0.0.1:1/ws"}, Options{DialTimeout: time.Second})
	defer tr.Close()
	ev := record(tr, proto.EventConnect, proto.EventConnectError)

	tr.Connect()
	waitFor(t, func() bool { return ev.count(proto.EventConnectError) == 1 }, "connect_error not dispatched")

	var data proto.ConnectErrorData
	if err := json.Unmarshal(ev.first(proto.EventConnectError), &data); err != nil || data.Message == "" {
		t.Fatalf("connect_error without message: %v", err)
	}
	if ev.count(proto.EventConnect) != 0 {
		t.Fatal("connect dispatched on failure")
	}

	if err := tr.Emit(proto.EventTyping, proto.Typing{RoomID: 1}); !errors.Is(err, realtime.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestTransportServerCloseRaisesDisconnect(t *testing.T) {
	ts, peers := startPeerServer(t)

	tr := New(realtime.TransportOptions{URL: wsURL(ts)}, Options{})
	defer tr.Close()
	ev := record(tr, proto.EventConnect, proto.EventDisconnect)

	tr.Connect()
	p := nextPeer(t, peers)
	waitFor(t, func() bool { return ev.count(proto.EventConnect) == 1 }, "connect not dispatched")

	_ = p.conn.Close(websocket.StatusGoingAway, "restart")
	waitFor(t, func() bool { return ev.count(proto.EventDisconnect) == 1 }, "disconnect not dispatched")

	// Reconnecting reuses the transport.
	tr.Connect()
	nextPeer(t, peers)
	waitFor(t, func() bool { return ev.count(proto.EventConnect) == 2 }, "second connect not dispatched")
}

func TestTransportCloseIsSilent(t *testing.T) {
	ts, peers := startPeerServer(t)

	tr := New(realtime.TransportOptions{URL: wsURL(ts)}, Options{})
	ev := record(tr, proto.EventConnect, proto.EventDisconnect)

	tr.Connect()
	nextPeer(t, peers)
	waitFor(t, func() bool { return ev.count(proto.EventConnect) == 1 }, "connect not dispatched")

	// The peer never reads, so it never answers a close frame.
	start := time.Now()
	if err := tr.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if took := time.Since(start); took > time.Second {
		t.Fatalf("close blocked for %s on an unresponsive peer", took)
	}
	time.Sleep(50 * time.Millisecond)
	if ev.count(proto.EventDisconnect) != 0 {
		t.Fatal("Close must not raise disconnect")
	}

	// Closed transports never dial again.
	tr.Connect()
	time.Sleep(50 * time.Millisecond)
	if ev.count(proto.EventConnect) != 1 {
		t.Fatal("closed transport dialed")
	}
}

func TestTransportIgnoresLifecycleFramesFromServer(t *testing.T) {
	ts, peers := startPeerServer(t)

	tr := New(realtime.TransportOptions{URL: wsURL(ts)}, Options{})
	defer tr.Close()
	ev := record(tr, proto.EventDisconnect, proto.EventUserJoined)

	tr.Connect()
	p := nextPeer(t, peers)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	spoof, _ := proto.NewEnvelope(proto.EventDisconnect, proto.DisconnectData{Reason: "spoof"})
	joined, _ := proto.NewEnvelope(proto.EventUserJoined, proto.Presence{RoomID: 1, UserID: 2})
	_ = wsjson.Write(ctx, p.conn, spoof)
	_ = wsjson.Write(ctx, p.conn, joined)

	waitFor(t, func() bool { return ev.count(proto.EventUserJoined) == 1 }, "userJoined not dispatched")
	if ev.count(proto.EventDisconnect) != 0 {
		t.Fatal("server-sent lifecycle frame was dispatched")
	}
}

func TestTransportOff(t *testing.T) {
	tr := New(realtime.TransportOptions{URL: "ws://unused"}, Options{})

	calls := 0
	a := tr.On("x", func(json.RawMessage) { calls++ })
	tr.On("x", func(json.RawMessage) { calls += 10 })

	tr.Off("x", a)
	tr.dispatch("x", nil)
	if calls != 10 {
		t.Fatalf("expected only the second handler, calls=%d", calls)
	}

	tr.Off("x")
	tr.dispatch("x", nil)
	if calls != 10 {
		t.Fatal("handlers left after Off without ids")
	}
}

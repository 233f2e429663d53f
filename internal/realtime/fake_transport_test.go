package realtime

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
	"testing"
	"time"
)

type emitted struct {
	event string
	data  json.RawMessage
}

type fakeEntry struct {
	id HandlerID
	h  Handler
}

// fakeTransport records emits and lets tests raise events by hand.
type fakeTransport struct {
	opts TransportOptions

	mu       sync.Mutex
	handlers map[string][]fakeEntry
	nextID   HandlerID
	connects int
	closed   bool
	emits    []emitted
}

func (f *fakeTransport) Connect() {
	f.mu.Lock()
	f.connects++
	f.mu.Unlock()
}

func (f *fakeTransport) Emit(event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.emits = append(f.emits, emitted{event: event, data: raw})
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) On(event string, h Handler) HandlerID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.handlers[event] = append(f.handlers[event], fakeEntry{id: f.nextID, h: h})
	return f.nextID
}

func (f *fakeTransport) Off(event string, ids ...HandlerID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(ids) == 0 {
		delete(f.handlers, event)
		return
	}
	f.handlers[event] = slices.DeleteFunc(f.handlers[event], func(e fakeEntry) bool {
		return slices.Contains(ids, e.id)
	})
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// fire dispatches event to the registered handlers like a real transport would.
func (f *fakeTransport) fire(t *testing.T, event string, data any) {
	t.Helper()

	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			t.Fatalf("marshal %s: %v", event, err)
		}
		raw = b
	}

	f.mu.Lock()
	handlers := slices.Clone(f.handlers[event])
	f.mu.Unlock()
	for _, e := range handlers {
		e.h(raw)
	}
}

func (f *fakeTransport) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeTransport) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeTransport) sent() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.emits)
}

func (f *fakeTransport) handlerCount(event string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers[event])
}

type fakeFactory struct {
	mu         sync.Mutex
	transports []*fakeTransport
}

func (ff *fakeFactory) build(opts TransportOptions) Transport {
	ft := &fakeTransport{opts: opts, handlers: make(map[string][]fakeEntry)}
	ff.mu.Lock()
	ff.transports = append(ff.transports, ft)
	ff.mu.Unlock()
	return ft
}

func (ff *fakeFactory) count() int {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	return len(ff.transports)
}

// nth waits for the n-th (1-based) transport to be built and to have dialed once.
func (ff *fakeFactory) nth(t *testing.T, n int) *fakeTransport {
	t.Helper()

	var ft *fakeTransport
	waitFor(t, func() bool {
		ff.mu.Lock()
		defer ff.mu.Unlock()
		if len(ff.transports) < n {
			return false
		}
		ft = ff.transports[n-1]
		return true
	}, "transport not built")
	waitFor(t, func() bool { return ft.connectCount() > 0 }, "transport never dialed")
	return ft
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

func connectAsync(c *Client, ctx context.Context, credential string) <-chan error {
	ch := make(chan error, 1)
	go func() { ch <- c.Connect(ctx, credential) }()
	return ch
}

func mustResult(t *testing.T, ch <-chan error) error {
	t.Helper()

	select {
	case err := <-ch:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("connect did not return")
	}
	return nil
}

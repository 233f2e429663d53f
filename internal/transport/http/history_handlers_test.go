package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vovakirdan/huddle-realtime/internal/auth"
	"github.com/vovakirdan/huddle-realtime/internal/proto"
	"github.com/vovakirdan/huddle-realtime/internal/store"
)

func seedMessages(t *testing.T, st store.MessageStore, roomID int64, n int) {
	t.Helper()

	for i := 0; i < n; i++ {
		msg := &store.Message{RoomID: roomID, UserID: 1, UserName: "ann", Body: "m"}
		if err := st.SaveMessage(context.Background(), msg); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
}

func TestListMessagesPaging(t *testing.T) {
	st := createTestStore(t)
	seedMessages(t, st, 5, 25)
	seedMessages(t, st, 6, 2)
	ts := startTestServer(t, st, nil)

	resp, err := ts.Client().Get(ts.URL + "/chat/rooms/5/messages?page=2&limit=20")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status: %d", resp.StatusCode)
	}

	var page proto.HistoryPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Page != 2 || page.Limit != 20 || page.Total != 25 || page.TotalPages != 2 {
		t.Fatalf("unexpected paging: %+v", page)
	}
	if len(page.Messages) != 5 {
		t.Fatalf("expected 5 messages on last page, got %d", len(page.Messages))
	}
	// Newest first: page 2 holds ids 5..1.
	if page.Messages[0].ID != "5" || page.Messages[4].ID != "1" {
		t.Fatalf("unexpected order: first=%s last=%s", page.Messages[0].ID, page.Messages[4].ID)
	}
	if page.HasMore() {
		t.Fatal("last page must not report more")
	}
}

func TestListMessagesRejectsBadRoom(t *testing.T) {
	ts := startTestServer(t, createTestStore(t), nil)

	resp, err := ts.Client().Get(ts.URL + "/chat/rooms/abc/messages")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestListMessagesRequiresToken(t *testing.T) {
	jwtCfg := &auth.JWTConfig{Secret: []byte("test-secret"), Issuer: "test", Audience: "test", TTL: time.Hour}
	ts := startTestServer(t, createTestStore(t), jwtCfg)

	resp, err := ts.Client().Get(ts.URL + "/chat/rooms/1/messages")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}

	token, err := auth.GenerateToken(jwtCfg, 1, "ann", "")
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/chat/rooms/1/messages", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	ts.Config.Handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
}

package history

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vovakirdan/huddle-realtime/internal/auth"
	"github.com/vovakirdan/huddle-realtime/internal/proto"
)

func TestFetchBuildsRequestAndDecodes(t *testing.T) {
	var gotPath, gotQuery, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"messages": []map[string]any{
				{"id": 12, "roomId": 7, "userId": 3, "content": "newer", "createdAt": "2024-01-01T00:00:01Z"},
				{"id": "abc", "roomId": 7, "userId": 4, "content": "older", "createdAt": "2024-01-01T00:00:00Z"},
			},
			"page":       2,
			"limit":      2,
			"total":      5,
			"totalPages": 3,
		})
	}))
	defer ts.Close()

	c := NewClient(ts.URL+"/", auth.StaticToken("secret"), ts.Client(), nil)
	page, err := c.Fetch(context.Background(), 7, 2, 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}

	if gotPath != "/chat/rooms/7/messages" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotQuery != "limit=2&page=2" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}

	if len(page.Messages) != 2 || page.Messages[0].ID != "12" || page.Messages[1].ID != "abc" {
		t.Fatalf("unexpected messages: %+v", page.Messages)
	}
	if !page.HasMore() {
		t.Fatal("page 2 of 3 must report more")
	}
}

func TestFetchDefaults(t *testing.T) {
	var gotQuery, gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(proto.HistoryPage{Page: 1, Limit: DefaultPageSize})
	}))
	defer ts.Close()

	c := NewClient(ts.URL, nil, nil, nil)
	if _, err := c.Fetch(context.Background(), 1, 0, 0); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotQuery != "limit=20&page=1" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if gotAuth != "" {
		t.Fatalf("no credential expected, got %q", gotAuth)
	}
}

func TestFetchStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	c := NewClient(ts.URL, auth.StaticToken("bad"), ts.Client(), nil)
	_, err := c.Fetch(context.Background(), 1, 1, 20)
	if !errors.Is(err, ErrStatus) {
		t.Fatalf("expected ErrStatus, got %v", err)
	}
}

func TestFetchMissingCredential(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", auth.StaticToken(""), nil, nil)
	_, err := c.Fetch(context.Background(), 1, 1, 20)
	if !errors.Is(err, auth.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
}

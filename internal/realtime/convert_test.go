package realtime

import (
	"testing"
	"time"

	"github.com/vovakirdan/huddle-realtime/internal/proto"
)

func TestToUIMessageKeepsWireID(t *testing.T) {
	for _, id := range []proto.MessageID{"123", "a1b2-c3", "0"} {
		ui := ToUIMessage(proto.ServerMessage{ID: id, RoomID: 3, UserID: 4, Content: "x"})
		if ui.ID != string(id) {
			t.Fatalf("id %q became %q", id, ui.ID)
		}
	}
}

func TestToUIMessageMapsFields(t *testing.T) {
	meta := map[string]any{"k": "v"}
	ui := ToUIMessage(proto.ServerMessage{
		ID:        "9",
		RoomID:    7,
		UserID:    42,
		Content:   "  hi  ",
		Metadata:  meta,
		CreatedAt: "2024-05-01T10:20:30.5Z",
		User:      &proto.Sender{ID: 42, FullName: "Ada Lovelace", Username: "ada", Avatar: "https://img/ada.png"},
	})

	if ui.Text != "  hi  " {
		t.Fatalf("text must be copied verbatim, got %q", ui.Text)
	}
	if ui.RoomID != "7" {
		t.Fatalf("room id should be a string, got %q", ui.RoomID)
	}
	if ui.User.ID != 42 || ui.User.Name != "Ada Lovelace" || ui.User.Avatar != "https://img/ada.png" {
		t.Fatalf("unexpected user: %+v", ui.User)
	}
	want := time.Date(2024, 5, 1, 10, 20, 30, 500_000_000, time.UTC)
	if !ui.CreatedAt.Equal(want) {
		t.Fatalf("createdAt: expected %s, got %s", want, ui.CreatedAt)
	}
	if ui.Metadata["k"] != "v" {
		t.Fatalf("metadata not passed through: %v", ui.Metadata)
	}
}

func TestToUIMessageNameFallbacks(t *testing.T) {
	tests := []struct {
		name string
		msg  proto.ServerMessage
		want string
		id   int64
	}{
		{
			name: "full name",
			msg:  proto.ServerMessage{UserID: 1, User: &proto.Sender{ID: 1, FullName: "Full", Username: "user"}},
			want: "Full",
			id:   1,
		},
		{
			name: "username",
			msg:  proto.ServerMessage{UserID: 2, User: &proto.Sender{ID: 2, Username: "user"}},
			want: "user",
			id:   2,
		},
		{
			name: "no profile",
			msg:  proto.ServerMessage{UserID: 3},
			want: "User 3",
			id:   3,
		},
		{
			name: "sender id from profile",
			msg:  proto.ServerMessage{User: &proto.Sender{ID: 5}},
			want: "User 5",
			id:   5,
		},
		{
			name: "unknown sender",
			msg:  proto.ServerMessage{},
			want: "User 0",
			id:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ui := ToUIMessage(tt.msg)
			if ui.User.Name != tt.want || ui.User.ID != tt.id {
				t.Fatalf("expected %q/%d, got %q/%d", tt.want, tt.id, ui.User.Name, ui.User.ID)
			}
		})
	}
}

func TestToUIMessageSynthesizesMissingID(t *testing.T) {
	cv := Converter{
		Now:    func() time.Time { return time.UnixMilli(1700000000123) },
		Suffix: func() string { return "beef" },
	}
	ui := cv.ToUIMessage(proto.ServerMessage{UserID: 42, Content: "x"})
	if ui.ID != "42-1700000000123-beef" {
		t.Fatalf("unexpected synthesized id %q", ui.ID)
	}

	// Without overrides ids are still unique per call.
	a := ToUIMessage(proto.ServerMessage{UserID: 1})
	b := ToUIMessage(proto.ServerMessage{UserID: 1})
	if a.ID == "" || a.ID == b.ID {
		t.Fatalf("expected distinct synthesized ids, got %q and %q", a.ID, b.ID)
	}
}

func TestToUIMessageTimestampFormats(t *testing.T) {
	tests := []struct {
		in   string
		zero bool
	}{
		{in: "2024-05-01T10:20:30Z"},
		{in: "2024-05-01T10:20:30.123456+02:00"},
		{in: "2024-05-01T10:20:30.123"},
		{in: "2024-05-01 10:20:30"},
		{in: "yesterday", zero: true},
		{in: "", zero: true},
	}
	for _, tt := range tests {
		got := ToUIMessage(proto.ServerMessage{ID: "1", CreatedAt: tt.in}).CreatedAt
		if got.IsZero() != tt.zero {
			t.Errorf("%q: zero=%v, got %s", tt.in, tt.zero, got)
		}
	}
}

func TestToSendPayloadEmbedsCorrelationID(t *testing.T) {
	ui := UIMessage{
		ID:       "local-1",
		Text:     " hello ",
		Metadata: map[string]any{"replyTo": "9"},
	}

	p := ToSendPayload(ui, 7, 42)
	if p.RoomID != 7 || p.UserID != 42 || p.Content != " hello " {
		t.Fatalf("unexpected payload: %+v", p)
	}
	if p.Metadata[proto.MetadataClientMessageID] != "local-1" || p.Metadata["replyTo"] != "9" {
		t.Fatalf("unexpected metadata: %v", p.Metadata)
	}

	// The caller's map is not modified.
	if _, ok := ui.Metadata[proto.MetadataClientMessageID]; ok {
		t.Fatal("input metadata was mutated")
	}
}

func TestToSendPayloadCorrelationIDWins(t *testing.T) {
	ui := UIMessage{
		ID:       "local-2",
		Metadata: map[string]any{proto.MetadataClientMessageID: "spoofed"},
	}
	p := ToSendPayload(ui, 1, 1)
	if p.Metadata[proto.MetadataClientMessageID] != "local-2" {
		t.Fatalf("reserved key must carry the message id, got %v", p.Metadata[proto.MetadataClientMessageID])
	}
}

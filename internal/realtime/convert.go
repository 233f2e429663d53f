package realtime

import (
	"fmt"
	"maps"
	"strconv"
	"time"

	"github.com/vovakirdan/huddle-realtime/internal/proto"
	"github.com/vovakirdan/huddle-realtime/internal/utils"
)

// SendPayload is the outbound message payload.
type SendPayload = proto.SendMessage

// UIUser is the sender as shown in a conversation.
type UIUser struct {
	ID     int64
	Name   string
	Avatar string
}

// UIMessage is a message in the form a conversation view renders.
type UIMessage struct {
	ID        string
	Text      string
	CreatedAt time.Time
	User      UIUser
	RoomID    string
	Metadata  map[string]any
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// Converter maps wire messages to conversation messages. Messages without a wire
// id get a synthesized one built from Now and Suffix; nil fields fall back to the
// wall clock and a random suffix.
type Converter struct {
	Now    func() time.Time
	Suffix func() string
}

// ToUIMessage converts with the default Converter.
func ToUIMessage(m proto.ServerMessage) UIMessage {
	return Converter{}.ToUIMessage(m)
}

// ToUIMessage converts a wire message. Apart from id synthesis the mapping is
// deterministic.
func (cv Converter) ToUIMessage(m proto.ServerMessage) UIMessage {
	senderID := m.UserID
	if senderID == 0 && m.User != nil {
		senderID = m.User.ID
	}

	name := fmt.Sprintf("User %d", senderID)
	var avatar string
	if m.User != nil {
		switch {
		case m.User.FullName != "":
			name = m.User.FullName
		case m.User.Username != "":
			name = m.User.Username
		}
		avatar = m.User.Avatar
	}

	id := string(m.ID)
	if id == "" {
		id = cv.synthesizeID(senderID)
	}

	return UIMessage{
		ID:        id,
		Text:      m.Content,
		CreatedAt: parseTimestamp(m.CreatedAt),
		User:      UIUser{ID: senderID, Name: name, Avatar: avatar},
		RoomID:    strconv.FormatInt(m.RoomID, 10),
		Metadata:  m.Metadata,
	}
}

func (cv Converter) synthesizeID(senderID int64) string {
	now := time.Now
	if cv.Now != nil {
		now = cv.Now
	}
	suffix := utils.RandomSuffix
	if cv.Suffix != nil {
		suffix = cv.Suffix
	}
	return fmt.Sprintf("%d-%d-%s", senderID, now().UnixMilli(), suffix())
}

// ToSendPayload builds the outbound payload for a locally composed message. The
// message id is stored under proto.MetadataClientMessageID and overrides a
// caller-supplied value for that key.
func ToSendPayload(ui UIMessage, roomID, userID int64) SendPayload {
	metadata := make(map[string]any, len(ui.Metadata)+1)
	maps.Copy(metadata, ui.Metadata)
	metadata[proto.MetadataClientMessageID] = ui.ID

	return SendPayload{
		RoomID:   roomID,
		UserID:   userID,
		Content:  ui.Text,
		Metadata: metadata,
	}
}

func parseTimestamp(s string) time.Time {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts
		}
	}
	return time.Time{}
}

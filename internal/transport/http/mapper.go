package http

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/vovakirdan/huddle-realtime/internal/core"
	"github.com/vovakirdan/huddle-realtime/internal/proto"
)

func envelopeToCommand(client *core.Client, env proto.Envelope) (*core.Command, *proto.ErrorData, error) {
	switch env.Event {
	case proto.EventJoinRoom:
		var join proto.JoinRoom
		if err := json.Unmarshal(env.Data, &join); err != nil {
			return nil, nil, err
		}
		if join.RoomID <= 0 {
			return nil, &proto.ErrorData{Code: core.ErrCodeBadRequest, Message: "roomId is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandJoinRoom,
			RoomID: join.RoomID,
			UserID: join.UserID,
		}, nil, nil
	case proto.EventLeaveRoom:
		var leave proto.LeaveRoom
		if err := json.Unmarshal(env.Data, &leave); err != nil {
			return nil, nil, err
		}
		if leave.RoomID <= 0 {
			return nil, &proto.ErrorData{Code: core.ErrCodeBadRequest, Message: "roomId is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandLeaveRoom,
			RoomID: leave.RoomID,
		}, nil, nil
	case proto.EventSendMessage:
		var msg proto.SendMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return nil, nil, err
		}
		if msg.RoomID <= 0 {
			return nil, &proto.ErrorData{Code: core.ErrCodeBadRequest, Message: "roomId is required"}, nil
		}
		if strings.TrimSpace(msg.Content) == "" {
			return nil, &proto.ErrorData{Code: core.ErrCodeBadRequest, Message: "content is required"}, nil
		}
		return &core.Command{
			Kind:   core.CommandSendRoomMessage,
			RoomID: msg.RoomID,
			UserID: msg.UserID,
			Message: core.Message{
				// ID is assigned by the hub
				RoomID:    msg.RoomID,
				UserID:    msg.UserID,
				UserName:  client.Name,
				Text:      msg.Content,
				Metadata:  msg.Metadata,
				CreatedAt: time.Now().UTC(),
			},
		}, nil, nil
	case proto.EventTyping:
		var typing proto.Typing
		if err := json.Unmarshal(env.Data, &typing); err != nil {
			return nil, nil, err
		}
		cmd := &core.Command{
			Kind:     core.CommandTyping,
			RoomID:   typing.RoomID,
			IsTyping: typing.IsTyping,
		}
		if typing.UserID != nil {
			cmd.UserID = *typing.UserID
		}
		return cmd, nil, nil
	default:
		return nil, &proto.ErrorData{Code: core.ErrCodeBadRequest, Message: "unknown event " + strconv.Quote(env.Event)}, nil
	}
}

func eventToEnvelope(event *core.Event) (proto.Envelope, error) {
	switch event.Kind {
	case core.EventRoomMessage:
		return proto.NewEnvelope(proto.EventNewMessage, messageToWire(event.Message))
	case core.EventUserJoined:
		return proto.NewEnvelope(proto.EventUserJoined, proto.Presence{RoomID: event.RoomID, UserID: event.UserID})
	case core.EventUserLeft:
		return proto.NewEnvelope(proto.EventUserLeft, proto.Presence{RoomID: event.RoomID, UserID: event.UserID})
	case core.EventTyping:
		userID := event.UserID
		return proto.NewEnvelope(proto.EventTyping, proto.Typing{RoomID: event.RoomID, IsTyping: event.IsTyping, UserID: &userID})
	case core.EventError:
		if event.Error == nil {
			return proto.NewEnvelope(proto.EventError, proto.ErrorData{Code: "unknown", Message: "unknown error"})
		}
		return proto.NewEnvelope(proto.EventError, proto.ErrorData{Code: event.Error.Code, Message: event.Error.Message})
	default:
		return proto.NewEnvelope(proto.EventError, proto.ErrorData{Code: core.ErrCodeInternal, Message: "unsupported event"})
	}
}

// messageToWire renders a message the way new_message and the history endpoint deliver it.
func messageToWire(msg core.Message) proto.ServerMessage {
	return proto.ServerMessage{
		ID:        proto.MessageID(strconv.FormatInt(msg.ID, 10)),
		RoomID:    msg.RoomID,
		UserID:    msg.UserID,
		Content:   msg.Text,
		Metadata:  msg.Metadata,
		CreatedAt: msg.CreatedAt.UTC().Format(time.RFC3339Nano),
		User: &proto.Sender{
			ID:       msg.UserID,
			Username: msg.UserName,
		},
	}
}

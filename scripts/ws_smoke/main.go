package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/vovakirdan/huddle-realtime/internal/proto"
	"github.com/vovakirdan/huddle-realtime/internal/realtime"
	"github.com/vovakirdan/huddle-realtime/internal/transport/ws"
	"github.com/vovakirdan/huddle-realtime/internal/utils"
)

func main() {
	if err := run(); err != nil {
		log.Printf("ws_smoke: %v", err)
		os.Exit(1)
	}
}

func run() error {
	addr := flag.String("addr", "ws://localhost:8080/ws", "WebSocket address")
	token := flag.String("token", "", "bearer token")
	userID := flag.Int64("user-id", 1, "user id to join with")
	room := flag.Int64("room", 1, "room id")
	text := flag.String("text", "hello from smoke test", "message text to send")
	timeout := flag.Duration("timeout", 5*time.Second, "total timeout for the run")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	client := realtime.New(*addr, ws.Factory(ws.Options{}), realtime.WithMaxAttempts(0))
	defer client.Disconnect()

	if err := client.Connect(ctx, *token); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	fmt.Println("Connected")

	joined := make(chan proto.Presence, 1)
	echoed := make(chan proto.ServerMessage, 1)
	serverErr := make(chan proto.ErrorData, 1)

	client.On(proto.EventUserJoined, func(data json.RawMessage) {
		var p proto.Presence
		if err := json.Unmarshal(data, &p); err == nil {
			fmt.Printf("Join: room=%d user=%d\n", p.RoomID, p.UserID)
			select {
			case joined <- p:
			default:
			}
		}
	})
	client.On(proto.EventNewMessage, func(data json.RawMessage) {
		var m proto.ServerMessage
		if err := json.Unmarshal(data, &m); err != nil {
			fmt.Printf("Raw data: %s\n", string(data))
			return
		}
		select {
		case echoed <- m:
		default:
		}
	})
	client.On(proto.EventError, func(data json.RawMessage) {
		var e proto.ErrorData
		_ = json.Unmarshal(data, &e)
		select {
		case serverErr <- e:
		default:
		}
	})

	client.JoinRoom(strconv.FormatInt(*room, 10), *userID)
	select {
	case <-joined:
	case e := <-serverErr:
		return fmt.Errorf("join: %s: %s", e.Code, e.Message)
	case <-ctx.Done():
		return fmt.Errorf("join: %w", ctx.Err())
	}

	local := realtime.UIMessage{ID: utils.NewID(), Text: *text}
	client.SendMessage(realtime.ToSendPayload(local, *room, *userID))

	select {
	case m := <-echoed:
		ui := realtime.ToUIMessage(m)
		fmt.Printf("Message: id=%s room=%s user=%q text=%q at=%s\n", ui.ID, ui.RoomID, ui.User.Name, ui.Text, ui.CreatedAt.Format(time.RFC3339))
		if ui.Metadata[proto.MetadataClientMessageID] != local.ID {
			return fmt.Errorf("echo carries clientMessageId %v, want %s", ui.Metadata[proto.MetadataClientMessageID], local.ID)
		}
		return nil
	case e := <-serverErr:
		return fmt.Errorf("send: %s: %s", e.Code, e.Message)
	case <-ctx.Done():
		return fmt.Errorf("waiting for echo: %w", ctx.Err())
	}
}

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vovakirdan/huddle-realtime/internal/auth"
	"github.com/vovakirdan/huddle-realtime/internal/config"
	"github.com/vovakirdan/huddle-realtime/internal/conversation"
	"github.com/vovakirdan/huddle-realtime/internal/history"
	"github.com/vovakirdan/huddle-realtime/internal/proto"
	"github.com/vovakirdan/huddle-realtime/internal/realtime"
	"github.com/vovakirdan/huddle-realtime/internal/transport/ws"
)

type identityFlags struct {
	token  string
	userID int64
}

func (f *identityFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.token, "token", "", "bearer token (overrides realtime.token)")
	cmd.Flags().Int64Var(&f.userID, "user-id", 0, "own user id (defaults to the token's user_id claim)")
}

// resolve returns the credential and user id to chat with.
func (f *identityFlags) resolve(cfg config.RealtimeConfig) (token string, userID int64, name string, err error) {
	token = cfg.Token
	if f.token != "" {
		token = f.token
	}
	userID = cfg.UserID
	if f.userID != 0 {
		userID = f.userID
	}

	if token != "" {
		if claims, peekErr := auth.PeekClaims(token); peekErr == nil {
			if userID == 0 {
				userID = claims.UserID
			}
			name = claims.FullName
			if name == "" {
				name = claims.Username
			}
		}
	}
	if userID == 0 {
		return "", 0, "", errors.New("user id unknown: pass --user-id or a token with a user_id claim")
	}
	return token, userID, name, nil
}

func newHistoryClient(cfg config.Config, token string, root *rootOptions) *history.Client {
	var tokens auth.TokenProvider
	if token != "" {
		tokens = auth.StaticToken(token)
	}
	return history.NewClient(
		cfg.API.BaseURL,
		tokens,
		&http.Client{Timeout: cfg.API.RequestTimeout},
		root.logger,
	)
}

func newChatCmd(root *rootOptions) *cobra.Command {
	var (
		ident  identityFlags
		roomID int64
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Join a room and chat from the terminal",
		Long: "Join a room and chat from the terminal. Lines are sent as messages;\n" +
			"/more loads older history and /quit leaves.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if roomID <= 0 {
				return errors.New("--room is required")
			}
			token, userID, name, err := ident.resolve(root.cfg.Realtime)
			if err != nil {
				return err
			}
			return runChat(cmd.Context(), root, cmd.InOrStdin(), cmd.OutOrStdout(), roomID, userID, name, token)
		},
	}

	ident.register(cmd)
	cmd.Flags().Int64Var(&roomID, "room", 0, "room id to join")
	return cmd
}

func runChat(ctx context.Context, root *rootOptions, in io.Reader, out io.Writer, roomID, userID int64, name, token string) error {
	cfg := root.cfg
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	client := realtime.Shared(cfg.Realtime.URL,
		ws.Factory(ws.Options{DialTimeout: cfg.Realtime.DialTimeout, Logger: root.logger}),
		realtime.WithLogger(root.logger),
		realtime.WithMaxAttempts(cfg.Realtime.MaxReconnectAttempts),
		realtime.WithBaseDelay(cfg.Realtime.ReconnectBaseDelay),
	)
	coord := realtime.NewCoordinator(client)

	states, stopWatch := client.WatchState()
	go watchConnection(states, out, cancel)

	conv := conversation.New(coord, newHistoryClient(cfg, token, root), conversation.Options{
		RoomID:      roomID,
		UserID:      userID,
		UserName:    name,
		Credential:  token,
		PageSize:    cfg.API.HistoryPageSize,
		TypingQuiet: cfg.Realtime.TypingQuietPeriod,
		Logger:      root.logger,
		OnMessage: func(msg realtime.UIMessage) {
			printMessage(out, msg)
		},
		OnTyping: func(id int64, isTyping bool) {
			if isTyping {
				fmt.Fprintf(out, "* user %d is typing\n", id)
			}
		},
		OnPresence: func(event string, p proto.Presence) {
			if p.UserID == userID {
				return
			}
			verb := "joined"
			if event == proto.EventUserLeft {
				verb = "left"
			}
			fmt.Fprintf(out, "* user %d %s\n", p.UserID, verb)
		},
	})
	defer func() {
		// Stop watching first so the disconnect on close is not reported as a loss.
		stopWatch()
		conv.Close()
	}()

	connectCtx, cancelConnect := context.WithTimeout(ctx, cfg.Realtime.ConnectTimeout)
	err := conv.Open(connectCtx)
	cancelConnect()
	if err != nil {
		if !errors.Is(err, conversation.ErrHistoryUnavailable) {
			return err
		}
		root.logger.Warn().Err(err).Msg("continuing without history")
	}

	msgs := conv.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		printMessage(out, msgs[i])
	}
	fmt.Fprintf(out, "* joined room %d as user %d\n", roomID, userID)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			if err := handleLine(ctx, conv, out, strings.TrimSpace(line)); err != nil {
				if errors.Is(err, errQuit) {
					return nil
				}
				fmt.Fprintf(out, "* %v\n", err)
			}
		}
	}
}

var errQuit = errors.New("quit")

func handleLine(ctx context.Context, conv *conversation.Conversation, out io.Writer, line string) error {
	switch line {
	case "":
		return nil
	case "/quit":
		return errQuit
	case "/more":
		before := len(conv.Messages())
		more, err := conv.LoadEarlier(ctx)
		if err != nil {
			return err
		}
		older := conv.Messages()[before:]
		for i := len(older) - 1; i >= 0; i-- {
			printMessage(out, older[i])
		}
		if !more {
			fmt.Fprintln(out, "* beginning of history")
		}
		return nil
	}

	conv.InputChanged()
	_, err := conv.Send(line)
	return err
}

func printMessage(out io.Writer, msg realtime.UIMessage) {
	ts := "--:--"
	if !msg.CreatedAt.IsZero() {
		ts = msg.CreatedAt.Local().Format("15:04")
	}
	fmt.Fprintf(out, "[%s] %s: %s\n", ts, msg.User.Name, msg.Text)
}

// watchConnection prints connection notices until states closes. The first
// value is the state at subscription time and is not a transition.
func watchConnection(states <-chan realtime.State, out io.Writer, onExhausted func()) {
	prev, ok := <-states
	if !ok {
		return
	}
	for s := range states {
		if notice := stateNotice(prev, s); notice != "" {
			fmt.Fprintln(out, notice)
		}
		if s == realtime.StateExhausted {
			onExhausted()
		}
		prev = s
	}
}

// stateNotice is the line printed for a connection state transition, if any.
func stateNotice(prev, next realtime.State) string {
	switch {
	case prev == realtime.StateConnected && next == realtime.StateDisconnected:
		return "* connection lost, reconnecting"
	case next == realtime.StateExhausted:
		return "* could not reconnect, giving up"
	}
	return ""
}

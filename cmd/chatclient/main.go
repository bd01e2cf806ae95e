// chatclient is a terminal client for the chat server, driving the session
// core the same way a frontend host would: intents in, rendered state out.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"quotechat/internal/app/session"
	"quotechat/internal/domain/chat"
	"quotechat/internal/infra/obs"
	"quotechat/internal/infra/rooms"
	"quotechat/internal/infra/transport/ws"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLogger(getEnv("APP_ENV", "dev"))

	serverURL := getEnv("CHAT_SERVER_URL", "http://localhost:8080")
	userID := strings.TrimSpace(os.Getenv("CHAT_USER_ID"))
	token := os.Getenv("CHAT_TOKEN")
	expertID := strings.TrimSpace(os.Getenv("CHAT_EXPERT_ID"))
	requestID, err := strconv.ParseInt(os.Getenv("CHAT_REQUEST_ID"), 10, 64)
	if userID == "" || expertID == "" || err != nil || requestID <= 0 {
		logger.Error("CHAT_USER_ID, CHAT_EXPERT_ID and a numeric CHAT_REQUEST_ID are required")
		os.Exit(1)
	}
	senderType := chat.SenderWeb
	if strings.EqualFold(os.Getenv("CHAT_SENDER_TYPE"), string(chat.SenderExpert)) {
		senderType = chat.SenderExpert
	}

	ctrl := session.NewController(session.Config{
		Identity: session.IdentityFunc(func() session.Identity {
			return session.Identity{IsAuthenticated: true, UserID: userID, Token: token}
		}),
		Rooms: rooms.NewClient(rooms.Config{BaseURL: serverURL, Token: token}, logger),
		Transport: ws.NewClient(ws.Config{
			BaseURL:    wsBaseURL(serverURL),
			UserID:     userID,
			SenderType: senderType,
			Token:      token,
			Logger:     logger,
		}),
		SenderType: senderType,
		Logger:     logger,
	})
	if err := ctrl.Open(ctx, requestID, expertID); err != nil {
		logger.Error("chat open failed", "error", err)
		os.Exit(1)
	}
	defer ctrl.Close()

	room, _ := ctrl.Room()
	fmt.Printf("connected to room %d as %s; type a message and press enter, ctrl-d to quit\n", room.ID, userID)

	go render(ctx, ctrl, userID)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		ctrl.HandleTyping(scanner.Text())
		ctrl.HandleKeyPress("Enter")
	}
}

// render polls the session snapshot and prints messages as they confirm.
func render(ctx context.Context, ctrl *session.Controller, self string) {
	seen := make(map[int64]struct{})
	peerWasTyping := false
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, m := range ctrl.Messages() {
			if m.Pending() {
				continue
			}
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			who := m.SenderID
			if who == self {
				who = "me"
			}
			body := m.Text
			if body == "" {
				body = m.FilePath
			}
			fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, body)
		}
		if typing := ctrl.PeerTyping(); typing != peerWasTyping {
			peerWasTyping = typing
			if typing {
				fmt.Println("… peer is typing")
			}
		}
	}
}

func wsBaseURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	default:
		return httpURL
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

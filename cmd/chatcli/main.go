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

	"github.com/joho/godotenv"
	"github.com/mbeoliero/kit/log"

	"github.com/mbeoliero/carechat/internal/api"
	"github.com/mbeoliero/carechat/internal/chat"
	"github.com/mbeoliero/carechat/internal/config"
	"github.com/mbeoliero/carechat/internal/socket"
	"github.com/mbeoliero/carechat/pkg/token"
)

func main() {
	ctx := context.Background()

	// Optional .env for local development
	if err := godotenv.Load(); err != nil {
		log.CtxDebug(ctx, "no .env file loaded: %v", err)
	}

	cfg := loadConfig(ctx)

	bearer := os.Getenv("CARECHAT_TOKEN")
	if bearer == "" {
		fmt.Fprintln(os.Stderr, "CARECHAT_TOKEN is required")
		os.Exit(1)
	}

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <service_request_id> [known_room_id]\n", os.Args[0])
		os.Exit(1)
	}

	serviceRequestId, err := strconv.ParseInt(os.Args[1], 10, 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid service_request_id: %v\n", err)
		os.Exit(1)
	}

	var fallbackRoomId int64
	if len(os.Args) > 2 {
		fallbackRoomId, _ = strconv.ParseInt(os.Args[2], 10, 64)
	}

	userId, err := token.UserIdOf(bearer)
	if err != nil {
		log.CtxError(ctx, "cannot read user id from token: %v", err)
		os.Exit(1)
	}

	apiClient, err := api.NewClient(&cfg.API, api.WithToken(bearer))
	if err != nil {
		log.CtxError(ctx, "failed to create api client: %v", err)
		os.Exit(1)
	}

	mgr := socket.NewManager(&cfg.Socket, bearer)
	defer mgr.Close()

	store := chat.NewStore()
	unbindUnread := chat.BindUnread(mgr, store)
	defer unbindUnread()

	// Prime the shared connection so badge pushes flow before any chat opens
	if _, err := mgr.Get(ctx); err != nil {
		log.CtxWarn(ctx, "socket connect failed, starting degraded: %v", err)
	}

	// Seed badges from the room list before opening anything
	if rooms, err := apiClient.ListRooms(ctx); err != nil {
		log.CtxWarn(ctx, "room list fetch failed, badges start empty: %v", err)
	} else {
		store.SeedInitialCounts(rooms)
	}

	surface := chat.NewSurface(&cfg.Chat, apiClient, mgr, store, userId, serviceRequestId, fallbackRoomId)
	surface.OnUpdate = func() { render(surface, userId) }

	if err := surface.Open(ctx); err != nil {
		log.CtxError(ctx, "failed to open chat: service_request_id=%d, error=%v", serviceRequestId, err)
		os.Exit(1)
	}
	defer surface.Close()

	log.CtxInfo(ctx, "chat open: room_id=%d, degraded=%v", surface.RoomId(), mgr.Degraded())
	render(surface, userId)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		surface.Close()
		os.Exit(0)
	}()

	repl(ctx, surface, userId)
}

func loadConfig(ctx context.Context) *config.Config {
	path := os.Getenv("CARECHAT_CONFIG")
	if path == "" {
		return config.Default()
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.CtxError(ctx, "failed to load config: path=%s, error=%v", path, err)
		os.Exit(1)
	}
	return cfg
}

// repl reads commands from stdin: plain text sends a message, /top and
// /bottom simulate the scroll sentinels, /retry re-sends a failed message
func repl(ctx context.Context, surface *chat.Surface, userId string) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case line == "/quit":
			return
		case line == "/top":
			surface.ScrollTop()
		case line == "/bottom":
			surface.ScrollBottom()
		case strings.HasPrefix(line, "/retry "):
			tempId := strings.TrimSpace(strings.TrimPrefix(line, "/retry "))
			if _, err := surface.Retry(ctx, tempId); err != nil {
				fmt.Printf("retry failed: %v\n", err)
			}
		default:
			if _, err := surface.Send(ctx, line); err != nil {
				fmt.Printf("send failed: %v\n", err)
			}
		}
	}
}

func render(surface *chat.Surface, userId string) {
	msgs := surface.Messages()
	fmt.Printf("--- room %d (%d messages, %d unread) ---\n", surface.RoomId(), len(msgs), surface.Unread())
	for _, m := range msgs {
		who := m.SenderId
		if who == userId {
			who = "me"
		}
		marker := ""
		if m.Status == chat.StatusSending {
			marker = " [sending]"
		} else if m.Status == chat.StatusFailed {
			marker = fmt.Sprintf(" [failed, /retry %s]", m.TempId)
		}
		fmt.Printf("[%s] %s: %s%s\n", m.CreatedAt.Format("15:04:05"), who, m.Text, marker)
	}
}

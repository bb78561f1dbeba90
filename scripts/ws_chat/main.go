package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/localchat/internal/proto"
)

type options struct {
	addr      string
	userID    string
	name      string
	latitude  float64
	longitude float64
	reconnect bool
}

func main() {
	if err := newCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCmd() *cobra.Command {
	var opts options
	cmd := &cobra.Command{
		Use:          "ws_chat",
		Short:        "Interactive client for the local chat socket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.addr, "addr", "ws://localhost:3000/ws/localchat", "WebSocket address")
	flags.StringVar(&opts.userID, "user", "cli-user", "user id")
	flags.StringVar(&opts.name, "name", "", "display name (defaults to user id)")
	flags.Float64Var(&opts.latitude, "lat", 12.9716, "latitude")
	flags.Float64Var(&opts.longitude, "lon", 77.5946, "longitude")
	flags.BoolVar(&opts.reconnect, "reconnect", false, "resume an existing session")
	return cmd
}

func run(parent context.Context, opts options) error {
	if parent == nil {
		parent = context.Background()
	}
	baseCtx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(baseCtx)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, opts.addr, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.CloseNow()

	send := func(v any) {
		if writeErr := wsjson.Write(ctx, conn, v); writeErr != nil {
			cancel()
			fmt.Fprintf(os.Stderr, "send: %v\n", writeErr)
		}
	}

	send(map[string]any{
		"type":      proto.InboundTypeJoin,
		"userId":    opts.userID,
		"name":      opts.name,
		"latitude":  opts.latitude,
		"longitude": opts.longitude,
		"reconnect": opts.reconnect,
	})

	fmt.Printf("Connected to %s as %s at %.4f,%.4f\n", opts.addr, opts.userID, opts.latitude, opts.longitude)
	fmt.Println("Type messages and press Enter to send. /ping, /leave, /quit.")

	go func() {
		defer cancel()
		readLoop(ctx, conn)
	}()

	writeLoop(ctx, send)

	_ = conn.Close(websocket.StatusNormalClosure, "bye")
	return nil
}

func readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				return
			}
			fmt.Fprintf(os.Stderr, "read error: %v\n", err)
			return
		}

		stamp := clock(frame["timestamp"])
		switch frame["type"] {
		case proto.OutboundTypeChat:
			fmt.Printf("%s %v: %v\n", stamp, frame["name"], frame["message"])
		case proto.OutboundTypeVoice:
			fmt.Printf("%s %v sent a voice note (%vs): %v\n", stamp, frame["name"], frame["duration"], frame["voiceUrl"])
		case proto.OutboundTypeSystem:
			fmt.Printf("%s * %v\n", stamp, frame["message"])
		case proto.OutboundTypePong:
			fmt.Printf("%s pong\n", stamp)
		case proto.OutboundTypeError:
			fmt.Printf("error [%v]: %v\n", frame["code"], frame["message"])
		default:
			fmt.Printf("frame: %v\n", frame)
		}
	}
}

func writeLoop(ctx context.Context, send func(any)) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			line = strings.TrimSpace(line)
			switch line {
			case "":
				continue
			case "/quit":
				return
			case "/ping":
				send(map[string]any{"type": proto.InboundTypePing})
			case "/leave":
				send(map[string]any{"type": proto.InboundTypeLeave})
			default:
				send(map[string]any{"type": proto.InboundTypeChat, "message": line})
			}
		}
	}
}

func clock(v any) string {
	s, _ := v.(string)
	t, err := time.Parse(proto.TimeLayout, s)
	if err != nil {
		return "--:--:--"
	}
	return t.Local().Format("15:04:05")
}

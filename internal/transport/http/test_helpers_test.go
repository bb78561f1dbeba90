package http

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/localchat/internal/auth"
	"github.com/vovakirdan/localchat/internal/config"
	"github.com/vovakirdan/localchat/internal/core"
)

type stubTranscoder struct{}

func (stubTranscoder) Transcode(_ context.Context, _ string, ownerID string) (string, error) {
	return "/uploads/voice/voice_" + ownerID + "_1_abcd.mp3", nil
}

type testEnv struct {
	ts    *httptest.Server
	relay *core.Relay
	cfg   *config.Config
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.Addr = ":0"
	cfg.Voice.Dir = filepath.Join(t.TempDir(), "voice")
	cfg.WS.RateLimit = 0
	return &cfg
}

func startTestServer(t *testing.T, cfg *config.Config, authService *auth.Service) *testEnv {
	t.Helper()

	logger := zerolog.Nop()
	relay := core.NewRelay(stubTranscoder{}, &logger)
	server := NewServer(relay, authService, cfg, &logger)

	ts := httptest.NewServer(server.Handler)
	t.Cleanup(ts.Close)

	return &testEnv{ts: ts, relay: relay, cfg: cfg}
}

func (e *testEnv) dial(t *testing.T, ctx context.Context) *websocket.Conn {
	t.Helper()
	wsURL := strings.Replace(e.ts.URL, "http", "ws", 1) + e.cfg.WS.Path
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "done") })
	return conn
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, frame any) {
	t.Helper()
	if err := wsjson.Write(ctx, conn, frame); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

// readUntil reads frames until one matches typ and message (empty message matches any).
func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, typ, message string) map[string]any {
	t.Helper()
	for {
		var frame map[string]any
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("waiting for %s %q: %v", typ, message, err)
		}
		if frame["type"] != typ {
			continue
		}
		if message != "" && frame["message"] != message {
			continue
		}
		return frame
	}
}

// readNext returns the next frame on conn.
func readNext(t *testing.T, ctx context.Context, conn *websocket.Conn) map[string]any {
	t.Helper()
	var frame map[string]any
	if err := wsjson.Read(ctx, conn, &frame); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return frame
}

func join(userID, name string, lat, lon float64) map[string]any {
	return map[string]any{
		"type":      "join",
		"userId":    userID,
		"name":      name,
		"latitude":  lat,
		"longitude": lon,
	}
}

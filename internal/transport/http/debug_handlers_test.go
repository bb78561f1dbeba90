package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/vovakirdan/localchat/internal/auth"
)

func postJSON(t *testing.T, env *testEnv, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, env.ts.URL+path, bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, env, req)
}

func get(t *testing.T, env *testEnv, path, token string) (*http.Response, []byte) {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, env.ts.URL+path, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return do(t, env, req)
}

func do(t *testing.T, env *testEnv, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := env.ts.Client().Do(req)
	if err != nil {
		t.Fatalf("request %s: %v", req.URL.Path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestDebugChatroomsAndTestMessage(t *testing.T) {
	env := startTestServer(t, testConfig(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, join("alice", "Alice", 12.90, 77.60))
	readUntil(t, ctx, conn, "system", "1 people in this local chat")

	resp, body := get(t, env, "/api/debug/chatrooms", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("chatrooms status %d: %s", resp.StatusCode, body)
	}
	var rooms ChatroomsResponse
	if err := json.Unmarshal(body, &rooms); err != nil {
		t.Fatalf("decode chatrooms: %v", err)
	}
	if rooms.TotalRooms != 1 || rooms.TotalConnections != 1 || rooms.TotalSessions != 1 {
		t.Fatalf("unexpected totals: %+v", rooms)
	}
	room, ok := rooms.Rooms["12.9,77.6"]
	if !ok || room.ClientCount != 1 || room.Clients[0].UserID != "alice" {
		t.Fatalf("unexpected rooms: %+v", rooms.Rooms)
	}
	if room.Clients[0].Coordinates != [2]float64{12.90, 77.60} || !room.Clients[0].Open {
		t.Fatalf("unexpected client info: %+v", room.Clients[0])
	}

	resp, body = postJSON(t, env, "/api/debug/test-message", "", `{"areaKey":"0,0"}`)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unknown area should 404, got %d: %s", resp.StatusCode, body)
	}

	resp, body = postJSON(t, env, "/api/debug/test-message", "", `{"areaKey":"12.9,77.6"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("test-message status %d: %s", resp.StatusCode, body)
	}
	var sent TestMessageResponse
	if err := json.Unmarshal(body, &sent); err != nil {
		t.Fatalf("decode test-message: %v", err)
	}
	if !sent.Success || sent.SentTo != 1 || sent.AreaKey != "12.9,77.6" {
		t.Fatalf("unexpected response: %+v", sent)
	}
	readUntil(t, ctx, conn, "system", "Test message from server")
}

func TestDebugRoutesRequireToken(t *testing.T) {
	cfg := testConfig(t)
	cfg.Debug.JWTSecret = "debug-secret"

	hash, err := auth.HashPassword("operator-pass")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	authService := auth.NewService(hash, &auth.JWTConfig{
		Secret:   []byte(cfg.Debug.JWTSecret),
		Issuer:   "localchat",
		Audience: "localchat-debug",
		TTL:      time.Hour,
	})
	env := startTestServer(t, cfg, authService)

	if resp, _ := get(t, env, "/api/debug/chatrooms", ""); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.StatusCode)
	}
	if resp, _ := get(t, env, "/api/debug/chatrooms", "garbage"); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", resp.StatusCode)
	}
	if resp, _ := postJSON(t, env, "/api/debug/token", "", `{"password":"wrong-pass"}`); resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", resp.StatusCode)
	}

	resp, body := postJSON(t, env, "/api/debug/token", "", `{"password":"operator-pass"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("token status %d: %s", resp.StatusCode, body)
	}
	var tok TokenResponse
	if err := json.Unmarshal(body, &tok); err != nil || tok.Token == "" {
		t.Fatalf("decode token: %v %s", err, body)
	}

	if resp, body := get(t, env, "/api/debug/chatrooms", tok.Token); resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d: %s", resp.StatusCode, body)
	}
}

func TestDebugDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Debug.Enabled = false
	env := startTestServer(t, cfg, nil)

	if resp, _ := get(t, env, "/api/debug/chatrooms", ""); resp.StatusCode != http.StatusNotFound {
		t.Fatalf("debug routes should not exist, got %d", resp.StatusCode)
	}
}

func TestVoiceFilesServedUnderBothPrefixes(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.Voice.Dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.Voice.Dir, "voice_a_1_x.mp3"), []byte("ID3"), 0o644); err != nil {
		t.Fatalf("write voice file: %v", err)
	}
	env := startTestServer(t, cfg, nil)

	for _, prefix := range []string{"/uploads/voice/", "/api/uploads/voice/"} {
		resp, body := get(t, env, prefix+"voice_a_1_x.mp3", "")
		if resp.StatusCode != http.StatusOK || string(body) != "ID3" {
			t.Fatalf("%s: status %d body %q", prefix, resp.StatusCode, body)
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	env := startTestServer(t, testConfig(t), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := env.dial(t, ctx)
	send(t, ctx, conn, map[string]any{"type": "ping"})
	readUntil(t, ctx, conn, "pong", "")

	resp, body := get(t, env, "/metrics", "")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics status %d", resp.StatusCode)
	}
	for _, name := range []string{"localchat_frames_received_total", "localchat_connections"} {
		if !strings.Contains(string(body), name) {
			t.Fatalf("metrics output missing %s", name)
		}
	}
}

package core

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport records frames instead of writing to a socket.
type fakeTransport struct {
	mu         sync.Mutex
	frames     [][]byte
	closed     bool
	pings      int
	terminated bool
}

func (f *fakeTransport) Send(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnectionClosed
	}
	f.frames = append(f.frames, payload)
	return nil
}

func (f *fakeTransport) Ping() {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()
}

func (f *fakeTransport) Terminate() {
	f.mu.Lock()
	f.terminated = true
	f.closed = true
	f.mu.Unlock()
}

func (f *fakeTransport) Open() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.closed
}

func (f *fakeTransport) close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// drain returns and forgets every recorded frame.
func (f *fakeTransport) drain(t *testing.T) []map[string]any {
	t.Helper()
	f.mu.Lock()
	frames := f.frames
	f.frames = nil
	f.mu.Unlock()

	out := make([]map[string]any, 0, len(frames))
	for _, raw := range frames {
		var m map[string]any
		if err := json.Unmarshal(raw, &m); err != nil {
			t.Fatalf("decode frame %q: %v", raw, err)
		}
		out = append(out, m)
	}
	return out
}

type fakeTranscoder struct {
	url string
	err error
}

func (f *fakeTranscoder) Transcode(_ context.Context, _ string, _ string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

var errTranscode = errors.New("disk full")

// testClock is a manually advanced time source.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2025, 3, 14, 9, 26, 53, 589_000_000, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type peer struct {
	conn *Connection
	tr   *fakeTransport
}

func newPeer(r *Relay, id string) peer {
	tr := &fakeTransport{}
	conn := NewConnection(id, tr)
	r.Connect(conn)
	return peer{conn: conn, tr: tr}
}

func mustJoin(t *testing.T, r *Relay, p peer, req JoinRequest) {
	t.Helper()
	if err := r.Join(p.conn, req); err != nil {
		t.Fatalf("join %s: %v", req.UserID, err)
	}
}

func messages(frames []map[string]any, typ string) []string {
	var out []string
	for _, f := range frames {
		if f["type"] == typ {
			msg, _ := f["message"].(string)
			out = append(out, msg)
		}
	}
	return out
}

func hasMessage(frames []map[string]any, typ, msg string) bool {
	for _, m := range messages(frames, typ) {
		if m == msg {
			return true
		}
	}
	return false
}

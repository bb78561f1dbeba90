package http

import (
	"context"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/vovakirdan/localchat/internal/core"
)

// wsTransport implements core.Transport over a websocket connection.
// Frames are queued on a buffered channel and written by writeLoop.
type wsTransport struct {
	ctx         context.Context
	conn        *websocket.Conn
	send        chan []byte
	pingTimeout time.Duration
	onPong      func()

	mu     sync.Mutex
	closed bool
}

func newWSTransport(ctx context.Context, conn *websocket.Conn, buffer int, pingTimeout time.Duration) *wsTransport {
	return &wsTransport{
		ctx:         ctx,
		conn:        conn,
		send:        make(chan []byte, buffer),
		pingTimeout: pingTimeout,
	}
}

func (t *wsTransport) Send(payload []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return core.ErrConnectionClosed
	}
	select {
	case t.send <- payload:
		return nil
	default:
		return core.ErrSlowConsumer
	}
}

// Ping sends a websocket ping in the background; the pong marks the connection alive.
func (t *wsTransport) Ping() {
	if !t.Open() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(t.ctx, t.pingTimeout)
		defer cancel()
		if err := t.conn.Ping(ctx); err == nil && t.onPong != nil {
			t.onPong()
		}
	}()
}

func (t *wsTransport) Terminate() {
	t.markClosed()
	_ = t.conn.CloseNow()
}

func (t *wsTransport) Open() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.closed
}

func (t *wsTransport) markClosed() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

func (t *wsTransport) writeLoop(ctx context.Context) error {
	for {
		select {
		case payload := <-t.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := t.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

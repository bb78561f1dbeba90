package core

import (
	"sync"
	"sync/atomic"
	"time"
)

// Transport is the outbound side of one physical socket.
type Transport interface {
	// Send enqueues a serialized frame without blocking.
	Send(payload []byte) error
	// Ping requests a transport-level ping. A pong must call Connection.MarkAlive.
	Ping()
	// Terminate closes the socket immediately.
	Terminate()
	// Open reports whether frames can still be delivered.
	Open() bool
}

// ConnState is the protocol state of one physical connection.
type ConnState int

const (
	// StateUnjoined is a connected socket that has not joined a local chat.
	StateUnjoined ConnState = iota
	// StateJoined is a socket enrolled in the room of its area.
	StateJoined
	// StateClosed is a socket whose transport went away.
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnjoined:
		return "unjoined"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection is one physical socket as seen by the relay.
type Connection struct {
	ID        string
	transport Transport
	alive     atomic.Bool

	mu     sync.Mutex
	state  ConnState
	client *Client
}

// NewConnection wraps a transport. New connections start alive and unjoined.
func NewConnection(id string, transport Transport) *Connection {
	c := &Connection{ID: id, transport: transport}
	c.alive.Store(true)
	return c
}

// MarkAlive records a heartbeat acknowledgement.
func (c *Connection) MarkAlive() {
	c.alive.Store(true)
}

// Alive reports whether the connection answered the last heartbeat.
func (c *Connection) Alive() bool {
	return c.alive.Load()
}

// Open reports whether the socket is still attached and accepts frames.
func (c *Connection) Open() bool {
	c.mu.Lock()
	closed := c.state == StateClosed
	c.mu.Unlock()
	return !closed && c.transport.Open()
}

// Send delivers an already serialized frame to this socket only.
func (c *Connection) Send(payload []byte) error {
	if !c.Open() {
		return ErrConnectionClosed
	}
	return c.transport.Send(payload)
}

// State returns the protocol state and, when joined, the enrolled client handle.
func (c *Connection) State() (ConnState, *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state, c.client
}

func (c *Connection) setJoined(client *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateJoined
	c.client = client
}

func (c *Connection) setUnjoined() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return
	}
	c.state = StateUnjoined
	c.client = nil
}

// release drops the connection back to unjoined if it still carries client.
func (c *Connection) release(client *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateJoined && c.client == client {
		c.state = StateUnjoined
		c.client = nil
	}
}

func (c *Connection) setClosed() *Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateClosed
	client := c.client
	c.client = nil
	return client
}

// Client is a chat participant enrolled in a room (the handle of one joined socket).
type Client struct {
	UserID    string
	Name      string
	Latitude  float64
	Longitude float64
	Radius    float64
	AreaKey   string
	JoinTime  time.Time

	conn *Connection
}

// Open reports whether frames sent to this handle can reach a socket.
func (c *Client) Open() bool {
	return c.conn != nil && c.conn.Open()
}

func (c *Client) send(payload []byte) error {
	if c.conn == nil {
		return ErrConnectionClosed
	}
	return c.conn.Send(payload)
}

package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/localchat/internal/geo"
	"github.com/vovakirdan/localchat/internal/metrics"
	"github.com/vovakirdan/localchat/internal/proto"
)

// Transcoder turns a base64 voice payload into a servable file and returns its URL path.
type Transcoder interface {
	Transcode(ctx context.Context, audioData, ownerID string) (string, error)
}

// JoinRequest is a validated join frame.
type JoinRequest struct {
	UserID    string
	Name      string
	Latitude  float64
	Longitude float64
	Radius    float64
	Reconnect bool
}

// VoiceRequest is a validated voice frame.
type VoiceRequest struct {
	AudioData string
	Duration  float64
	Sender    any
}

// Option configures a Relay.
type Option func(*Relay)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// Relay owns the room and session registries and every live connection.
// Lifecycle operations (join, leave, idle sweep) are serialized by mu; chat and
// voice broadcasts only take the room locks.
type Relay struct {
	mu       sync.Mutex
	rooms    *RoomRegistry
	sessions *SessionRegistry

	connsMu sync.RWMutex
	conns   map[*Connection]struct{}

	transcoder Transcoder
	now        func() time.Time
	log        *zerolog.Logger
}

// NewRelay creates a relay. transcoder may be nil, in which case voice frames fail.
func NewRelay(transcoder Transcoder, logger *zerolog.Logger, opts ...Option) *Relay {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	r := &Relay{
		rooms:      NewRoomRegistry(logger),
		sessions:   NewSessionRegistry(),
		conns:      make(map[*Connection]struct{}),
		transcoder: transcoder,
		now:        time.Now,
		log:        logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rooms exposes the room registry.
func (r *Relay) Rooms() *RoomRegistry {
	return r.rooms
}

// Sessions exposes the session registry.
func (r *Relay) Sessions() *SessionRegistry {
	return r.sessions
}

// Connect registers a new physical connection for heartbeat tracking.
func (r *Relay) Connect(conn *Connection) {
	r.connsMu.Lock()
	r.conns[conn] = struct{}{}
	total := len(r.conns)
	r.connsMu.Unlock()

	metrics.Connections.Set(float64(total))
	r.log.Info().Str("conn_id", conn.ID).Int("total", total).Msg("connection established")
}

// Disconnect forgets a physical connection. The client handle stays in its room
// and the session is kept so the user can reconnect silently; the idle sweep
// cleans up if they never do.
func (r *Relay) Disconnect(conn *Connection) {
	r.connsMu.Lock()
	delete(r.conns, conn)
	total := len(r.conns)
	r.connsMu.Unlock()

	metrics.Connections.Set(float64(total))

	ev := r.log.Info().Str("conn_id", conn.ID).Int("total", total)
	if client := conn.setClosed(); client != nil {
		ev = ev.Str("user_id", client.UserID).Str("area", client.AreaKey)
	}
	ev.Msg("connection closed, session kept for reconnect")
}

// ConnectionCount returns the number of live connections.
func (r *Relay) ConnectionCount() int {
	r.connsMu.RLock()
	defer r.connsMu.RUnlock()
	return len(r.conns)
}

// Pong answers a client ping on the same connection.
func (r *Relay) Pong(conn *Connection) {
	r.sendTo(conn, proto.Pong{
		Type:      proto.OutboundTypePong,
		Timestamp: proto.Timestamp(r.now()),
		Message:   "Server received your ping",
	})
}

// Join enrolls the connection in the room of the requested area. With Reconnect set
// and an existing session, the user's previous handles are replaced silently.
func (r *Relay) Join(conn *Connection, req JoinRequest) error {
	if strings.TrimSpace(req.UserID) == "" {
		return coreError(ErrCodeBadRequest, "userId is required")
	}

	now := r.now()
	areaKey := geo.AreaKey(req.Latitude, req.Longitude)
	radius := req.Radius
	if radius <= 0 {
		radius = proto.DefaultRadius
	}
	name := req.Name
	if name == "" {
		name = req.UserID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	state, prev := conn.State()
	if state == StateClosed {
		return ErrConnectionClosed
	}
	if prev != nil {
		// Re-join on the same socket, usually after the device moved.
		if _, remaining := r.rooms.Remove(prev.AreaKey, prev); remaining > 0 && prev.AreaKey != areaKey {
			r.rooms.Broadcast(prev.AreaKey, proto.NewSystem(prev.Name+" left the local chat", now), nil)
		}
	}

	existing, hasSession := r.sessions.Get(req.UserID)
	reconnect := req.Reconnect && hasSession
	joinTime := now
	if hasSession {
		joinTime = existing.JoinTime
		sameUser := func(c *Client) bool { return c.UserID == req.UserID }
		staleSameUser := func(c *Client) bool { return c.UserID == req.UserID && !c.Open() }
		var superseded []*Client
		if reconnect {
			superseded = r.rooms.RemoveWhere(existing.AreaKey, sameUser)
		} else {
			superseded = r.rooms.RemoveWhere(existing.AreaKey, staleSameUser)
		}
		for _, old := range superseded {
			if old.conn != nil && old.conn != conn {
				old.conn.release(old)
			}
		}
	}

	client := &Client{
		UserID:    req.UserID,
		Name:      name,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Radius:    radius,
		AreaKey:   areaKey,
		JoinTime:  joinTime,
		conn:      conn,
	}
	r.rooms.Enroll(areaKey, client)
	conn.setJoined(client)
	r.sessions.Upsert(req.UserID, areaKey, now)
	metrics.Sessions.Set(float64(r.sessions.Count()))

	if reconnect {
		r.sendTo(conn, proto.NewSystem("Reconnected to chat successfully", now))
	} else {
		r.rooms.Broadcast(areaKey, proto.NewSystem(name+" joined the local chat", now), func(c *Client) bool {
			return c.UserID != req.UserID
		})
	}

	size := r.rooms.Size(areaKey)
	r.sendTo(conn, proto.NewSystem(fmt.Sprintf("%d people in this local chat", size), now))

	r.log.Info().
		Str("conn_id", conn.ID).
		Str("user_id", req.UserID).
		Str("area", areaKey).
		Bool("reconnect", reconnect).
		Int("room_size", size).
		Msg("client joined area")
	return nil
}

// Leave removes the connection's handle from its room and ends the user's session,
// unless another handle of the same user is still enrolled there.
func (r *Relay) Leave(conn *Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	state, client := conn.State()
	if state != StateJoined || client == nil {
		return notJoined()
	}

	now := r.now()
	removed, remaining := r.rooms.Remove(client.AreaKey, client)
	conn.setUnjoined()
	if !removed {
		return notJoined()
	}
	if !r.rooms.HasUser(client.AreaKey, client.UserID) {
		r.sessions.Evict(client.UserID)
		metrics.Sessions.Set(float64(r.sessions.Count()))
	}

	if remaining > 0 {
		r.rooms.Broadcast(client.AreaKey, proto.NewSystem(client.Name+" left the local chat", now), nil)
	}

	r.log.Info().
		Str("conn_id", conn.ID).
		Str("user_id", client.UserID).
		Str("area", client.AreaKey).
		Int("remaining", remaining).
		Msg("client left area")
	return nil
}

// Chat stamps a chat frame and broadcasts it to every member of the sender's room,
// the sender included, so all participants see one ordering and timestamp.
// Fields other than type, timestamp, userId and name are relayed verbatim.
func (r *Relay) Chat(conn *Connection, frame map[string]any) error {
	state, client := conn.State()
	if state != StateJoined || client == nil {
		return notJoined()
	}
	if text, ok := frame["message"].(string); !ok || strings.TrimSpace(text) == "" {
		return coreError(ErrCodeBadRequest, "message is required")
	}

	now := r.now()
	frame["type"] = proto.OutboundTypeChat
	if ts, ok := frame["timestamp"]; !ok || ts == nil || ts == "" {
		frame["timestamp"] = proto.Timestamp(now)
	}
	if _, ok := frame["userId"]; !ok {
		frame["userId"] = client.UserID
	}
	if _, ok := frame["name"]; !ok {
		frame["name"] = client.Name
	}

	r.sessions.Touch(client.UserID, now)
	delivered := r.rooms.Broadcast(client.AreaKey, frame, nil)

	r.log.Debug().
		Str("user_id", client.UserID).
		Str("area", client.AreaKey).
		Int("delivered", delivered).
		Msg("chat message relayed")
	return nil
}

// Voice stores a voice note through the transcoder and broadcasts its URL to the
// sender's room. Transcoding problems fall back inside the transcoder; only a failure
// to store anything is reported back.
func (r *Relay) Voice(ctx context.Context, conn *Connection, req VoiceRequest) error {
	client, err := r.Speaker(conn)
	if err != nil {
		return err
	}
	return r.VoiceFrom(ctx, client, req)
}

// Speaker returns the joined handle of conn and refreshes its session. Callers that
// finish a voice note asynchronously take the handle first so a later leave on the
// same socket does not affect the note.
func (r *Relay) Speaker(conn *Connection) (*Client, error) {
	state, client := conn.State()
	if state != StateJoined || client == nil {
		return nil, notJoined()
	}
	r.sessions.Touch(client.UserID, r.now())
	return client, nil
}

// VoiceFrom stores and broadcasts a voice note on behalf of client, a handle obtained
// from Speaker.
func (r *Relay) VoiceFrom(ctx context.Context, client *Client, req VoiceRequest) error {
	if req.AudioData == "" {
		return coreError(ErrCodeBadRequest, "audioData is required")
	}
	if r.transcoder == nil {
		return coreError(ErrCodeVoiceFailed, "Failed to process voice message.")
	}
	voiceURL, err := r.transcoder.Transcode(ctx, req.AudioData, client.UserID)
	if err != nil {
		r.log.Error().Err(err).Str("user_id", client.UserID).Msg("store voice message")
		return coreError(ErrCodeVoiceFailed, "Failed to process voice message.")
	}

	msg := proto.Voice{
		Type:      proto.OutboundTypeVoice,
		Sender:    req.Sender,
		Name:      client.Name,
		UserID:    client.UserID,
		VoiceURL:  voiceURL,
		Duration:  req.Duration,
		Timestamp: proto.Timestamp(r.now()),
	}
	delivered := r.rooms.Broadcast(client.AreaKey, msg, nil)

	r.log.Info().
		Str("user_id", client.UserID).
		Str("area", client.AreaKey).
		Str("voice_url", voiceURL).
		Int("delivered", delivered).
		Msg("voice message relayed")
	return nil
}

// Heartbeat terminates connections that did not acknowledge the previous ping and
// pings the rest. Returns the number of terminated connections.
func (r *Relay) Heartbeat() int {
	r.connsMu.RLock()
	conns := make([]*Connection, 0, len(r.conns))
	for c := range r.conns {
		conns = append(conns, c)
	}
	r.connsMu.RUnlock()

	terminated := 0
	for _, c := range conns {
		if !c.alive.Load() {
			r.log.Info().Str("conn_id", c.ID).Msg("terminating unresponsive connection")
			c.transport.Terminate()
			terminated++
			continue
		}
		c.alive.Store(false)
		c.transport.Ping()
	}
	metrics.HeartbeatTerminations.Add(float64(terminated))
	return terminated
}

// SweepIdle evicts sessions that have no open handle in their room and whose last
// activity is older than threshold. Lingering handles are removed and the remaining
// members are told the user disconnected. Returns the evicted user ids.
func (r *Relay) SweepIdle(threshold time.Duration) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-threshold)

	var evicted []string
	for _, sess := range r.sessions.Snapshot() {
		if r.rooms.HasLive(sess.AreaKey, sess.UserID) {
			continue
		}
		if !sess.LastActivity.Before(cutoff) {
			continue
		}

		r.sessions.Evict(sess.UserID)
		removed := r.rooms.RemoveWhere(sess.AreaKey, func(c *Client) bool {
			return c.UserID == sess.UserID
		})
		for _, c := range removed {
			r.rooms.Broadcast(sess.AreaKey, proto.NewSystem(c.Name+" has disconnected", now), nil)
		}
		evicted = append(evicted, sess.UserID)

		r.log.Info().
			Str("user_id", sess.UserID).
			Str("area", sess.AreaKey).
			Time("last_activity", sess.LastActivity).
			Msg("cleaned up inactive session")
	}

	metrics.Sessions.Set(float64(r.sessions.Count()))
	metrics.IdleEvictions.Add(float64(len(evicted)))
	return evicted
}

// Snapshot returns the current rooms for inspection.
func (r *Relay) Snapshot() []RoomSnapshot {
	return r.rooms.Snapshot()
}

// SessionCount returns the number of live sessions.
func (r *Relay) SessionCount() int {
	return r.sessions.Count()
}

// InjectSystem sends a system notice to every open member of a room.
// ok is false when no room exists for areaKey.
func (r *Relay) InjectSystem(areaKey, message string) (sent int, ok bool) {
	if !r.rooms.Exists(areaKey) {
		return 0, false
	}
	return r.rooms.Broadcast(areaKey, proto.NewSystem(message, r.now()), nil), true
}

// SendError reports a domain error to one connection.
func (r *Relay) SendError(conn *Connection, err error) {
	ce := AsError(err)
	metrics.ProtocolErrors.WithLabelValues(ce.Code).Inc()
	r.sendTo(conn, proto.NewError(ce.Code, ce.Message))
}

func (r *Relay) sendTo(conn *Connection, frame any) {
	data, err := proto.Encode(frame)
	if err != nil {
		r.log.Error().Err(err).Str("conn_id", conn.ID).Msg("encode frame")
		return
	}
	if err := conn.Send(data); err != nil {
		r.log.Warn().Err(err).Str("conn_id", conn.ID).Msg("send frame")
	}
}

func notJoined() error {
	return coreError(ErrCodeNotJoined, "Join a local chat first.")
}

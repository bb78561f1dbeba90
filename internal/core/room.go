package core

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/localchat/internal/metrics"
	"github.com/vovakirdan/localchat/internal/proto"
)

// Room groups client handles sharing an area key.
type Room struct {
	Key     string
	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(key string) *Room {
	return &Room{
		Key:     key,
		clients: make(map[*Client]struct{}),
	}
}

// ClientSnapshot is a read-only view of one room member.
type ClientSnapshot struct {
	UserID    string
	Name      string
	Latitude  float64
	Longitude float64
	Radius    float64
	JoinTime  time.Time
	Open      bool
}

// RoomSnapshot is a read-only view of one room.
type RoomSnapshot struct {
	Key     string
	Clients []ClientSnapshot
}

// RoomRegistry maps area keys to rooms. Rooms are created on first enrollment
// and deleted as soon as their last member is removed.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]*Room
	log   *zerolog.Logger
}

// NewRoomRegistry creates an empty registry.
func NewRoomRegistry(logger *zerolog.Logger) *RoomRegistry {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &RoomRegistry{
		rooms: make(map[string]*Room),
		log:   logger,
	}
}

// Enroll adds a client to the room of areaKey, creating the room if needed.
// Enrolling the same handle twice is the caller's bug and is not deduplicated.
func (r *RoomRegistry) Enroll(areaKey string, c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[areaKey]
	if !ok {
		room = NewRoom(areaKey)
		r.rooms[areaKey] = room
		r.log.Debug().Str("area", areaKey).Msg("created room")
	}
	room.mu.Lock()
	room.clients[c] = struct{}{}
	room.mu.Unlock()
	metrics.Rooms.Set(float64(len(r.rooms)))
}

// Remove deletes a client from the room of areaKey and returns how many members remain.
// A room that becomes empty is deleted.
func (r *RoomRegistry) Remove(areaKey string, c *Client) (removed bool, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[areaKey]
	if !ok {
		return false, 0
	}
	room.mu.Lock()
	if _, exists := room.clients[c]; exists {
		delete(room.clients, c)
		removed = true
	}
	remaining = len(room.clients)
	room.mu.Unlock()

	if remaining == 0 {
		r.deleteLocked(areaKey)
	}
	return removed, remaining
}

// RemoveWhere deletes every member of the room matching match and returns them.
func (r *RoomRegistry) RemoveWhere(areaKey string, match func(*Client) bool) []*Client {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[areaKey]
	if !ok {
		return nil
	}
	var removed []*Client
	room.mu.Lock()
	for c := range room.clients {
		if match(c) {
			delete(room.clients, c)
			removed = append(removed, c)
		}
	}
	empty := len(room.clients) == 0
	room.mu.Unlock()

	if empty {
		r.deleteLocked(areaKey)
	}
	return removed
}

func (r *RoomRegistry) deleteLocked(areaKey string) {
	delete(r.rooms, areaKey)
	metrics.Rooms.Set(float64(len(r.rooms)))
	r.log.Debug().Str("area", areaKey).Msg("removed empty room")
}

// Broadcast serializes payload once and enqueues it to every open member of the
// room accepted by include (nil includes everyone). The room lock is held for the
// whole fan-out so that all members observe broadcasts in the same order.
// Returns the number of members the frame was enqueued to.
func (r *RoomRegistry) Broadcast(areaKey string, payload any, include func(*Client) bool) int {
	data, err := encode(payload)
	if err != nil {
		r.log.Error().Err(err).Str("area", areaKey).Msg("encode broadcast")
		return 0
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[areaKey]
	if !ok {
		return 0
	}

	room.mu.Lock()
	defer room.mu.Unlock()

	delivered := 0
	for c := range room.clients {
		if include != nil && !include(c) {
			continue
		}
		if !c.Open() {
			continue
		}
		if err := c.send(data); err != nil {
			metrics.BroadcastDropped.Inc()
			r.log.Warn().Err(err).Str("area", areaKey).Str("user_id", c.UserID).Msg("drop broadcast frame")
			continue
		}
		delivered++
	}
	metrics.BroadcastDeliveries.Add(float64(delivered))
	return delivered
}

// Size returns the membership count of a room, 0 if it does not exist.
func (r *RoomRegistry) Size(areaKey string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[areaKey]
	if !ok {
		return 0
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	return len(room.clients)
}

// Exists reports whether a room is registered for areaKey.
func (r *RoomRegistry) Exists(areaKey string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.rooms[areaKey]
	return ok
}

// HasLive reports whether the room holds an open handle for userID.
func (r *RoomRegistry) HasLive(areaKey, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[areaKey]
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	for c := range room.clients {
		if c.UserID == userID && c.Open() {
			return true
		}
	}
	return false
}

// HasUser reports whether the room holds any handle for userID, open or not.
func (r *RoomRegistry) HasUser(areaKey, userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[areaKey]
	if !ok {
		return false
	}
	room.mu.Lock()
	defer room.mu.Unlock()
	for c := range room.clients {
		if c.UserID == userID {
			return true
		}
	}
	return false
}

// Count returns the number of rooms.
func (r *RoomRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Snapshot returns every room and its members ordered by area key and user id.
func (r *RoomRegistry) Snapshot() []RoomSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]RoomSnapshot, 0, len(r.rooms))
	for key, room := range r.rooms {
		snap := RoomSnapshot{Key: key}
		room.mu.Lock()
		for c := range room.clients {
			snap.Clients = append(snap.Clients, ClientSnapshot{
				UserID:    c.UserID,
				Name:      c.Name,
				Latitude:  c.Latitude,
				Longitude: c.Longitude,
				Radius:    c.Radius,
				JoinTime:  c.JoinTime,
				Open:      c.Open(),
			})
		}
		room.mu.Unlock()
		sort.Slice(snap.Clients, func(i, j int) bool {
			return snap.Clients[i].UserID < snap.Clients[j].UserID
		})
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

func encode(payload any) ([]byte, error) {
	if b, ok := payload.([]byte); ok {
		return b, nil
	}
	return proto.Encode(payload)
}

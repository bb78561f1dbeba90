package proto

import (
	"time"

	"github.com/goccy/go-json"
)

const (
	InboundTypePing  = "ping"
	InboundTypeJoin  = "join"
	InboundTypeLeave = "leave"
	InboundTypeChat  = "chat"
	InboundTypeVoice = "voice"

	OutboundTypePong   = "pong"
	OutboundTypeSystem = "system"
	OutboundTypeChat   = "chat"
	OutboundTypeVoice  = "voice"
	OutboundTypeError  = "error"

	// TimeLayout matches the millisecond ISO-8601 stamps mobile clients already parse.
	TimeLayout = "2006-01-02T15:04:05.000Z"

	// DefaultRadius is the subscription radius in meters when a join omits it.
	DefaultRadius = 1000
)

// Timestamp formats t in UTC using TimeLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// JoinData asks to enter the local chat of the area around a coordinate.
type JoinData struct {
	UserID    string   `json:"userId" validate:"required,max=128"`
	Name      string   `json:"name" validate:"max=128"`
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Radius    float64  `json:"radius,omitempty" validate:"gte=0"`
	Reconnect bool     `json:"reconnect,omitempty"`
}

// VoiceData carries a base64 encoded voice note.
type VoiceData struct {
	AudioData string  `json:"audioData" validate:"required"`
	Duration  float64 `json:"duration,omitempty"`
	Sender    any     `json:"sender,omitempty"`
}

// Pong answers a client ping.
type Pong struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message,omitempty"`
}

// System is a server notice (joins, leaves, room size, reconnects).
type System struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
}

// Voice announces a stored voice note to a room.
type Voice struct {
	Type      string  `json:"type"`
	Sender    any     `json:"sender"`
	Name      string  `json:"name"`
	UserID    string  `json:"userId"`
	VoiceURL  string  `json:"voiceUrl"`
	Duration  float64 `json:"duration"`
	Timestamp string  `json:"timestamp"`
}

// Error describes a protocol-level error response.
type Error struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// NewSystem builds a system notice stamped with now.
func NewSystem(message string, now time.Time) System {
	return System{Type: OutboundTypeSystem, Message: message, Timestamp: Timestamp(now)}
}

// NewError builds an error frame.
func NewError(code, message string) Error {
	return Error{Type: OutboundTypeError, Code: code, Message: message}
}

// Encode serializes an outbound frame.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

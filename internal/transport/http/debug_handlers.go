package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/localchat/internal/auth"
	"github.com/vovakirdan/localchat/internal/core"
	"github.com/vovakirdan/localchat/internal/geo"
	"github.com/vovakirdan/localchat/internal/proto"
)

const defaultTestMessage = "Test message from server"

// Inspector is the read-mostly view of the relay the debug routes need.
type Inspector interface {
	Snapshot() []core.RoomSnapshot
	ConnectionCount() int
	SessionCount() int
	InjectSystem(areaKey, message string) (int, bool)
}

// DebugHandlers serves the operator inspection endpoints.
type DebugHandlers struct {
	inspector   Inspector
	authService *auth.Service
	log         *zerolog.Logger
}

// NewDebugHandlers creates the debug handlers.
func NewDebugHandlers(inspector Inspector, authService *auth.Service, logger *zerolog.Logger) *DebugHandlers {
	return &DebugHandlers{
		inspector:   inspector,
		authService: authService,
		log:         logger,
	}
}

// TokenRequest represents the debug login request body.
type TokenRequest struct {
	Password string `json:"password" binding:"required"`
}

// TokenResponse carries an operator token.
type TokenResponse struct {
	Token string `json:"token"`
}

// TestMessageRequest asks for a system notice in one area.
type TestMessageRequest struct {
	AreaKey string `json:"areaKey" binding:"required"`
	Message string `json:"message"`
}

// TestMessageResponse reports how many members got the notice.
type TestMessageResponse struct {
	Success bool   `json:"success"`
	SentTo  int    `json:"sentTo"`
	AreaKey string `json:"areaKey"`
}

// ChatroomsResponse lists every room and its members.
type ChatroomsResponse struct {
	TotalRooms       int                 `json:"totalRooms"`
	TotalConnections int                 `json:"totalConnections"`
	TotalSessions    int                 `json:"totalSessions"`
	Rooms            map[string]RoomInfo `json:"rooms"`
}

// RoomInfo describes one room.
type RoomInfo struct {
	ClientCount int          `json:"clientCount"`
	Clients     []ClientInfo `json:"clients"`
}

// ClientInfo describes one member handle.
type ClientInfo struct {
	UserID      string     `json:"userId"`
	Name        string     `json:"name"`
	Coordinates [2]float64 `json:"coordinates"`
	// DistanceMeters is measured from the south-west corner of the area cell.
	DistanceMeters float64 `json:"distanceMeters"`
	Open           bool    `json:"open"`
	JoinTime       string  `json:"joinTime"`
}

// Token exchanges the admin password for a token.
// POST /api/debug/token
func (h *DebugHandlers) Token(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Password)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "invalid credentials"})
		case errors.Is(err, auth.ErrLoginDisabled):
			c.JSON(http.StatusForbidden, ErrorResponse{Error: "admin login disabled"})
		default:
			h.log.Error().Err(err).Msg("issue debug token")
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		}
		return
	}

	h.log.Info().Str("remote", c.ClientIP()).Msg("issued debug token")
	c.JSON(http.StatusOK, TokenResponse{Token: token})
}

// Chatrooms lists rooms and members.
// GET /api/debug/chatrooms
func (h *DebugHandlers) Chatrooms(c *gin.Context) {
	snapshot := h.inspector.Snapshot()

	rooms := make(map[string]RoomInfo, len(snapshot))
	for _, room := range snapshot {
		clients := make([]ClientInfo, 0, len(room.Clients))
		for _, cl := range room.Clients {
			originLat, originLon := geo.CellOrigin(cl.Latitude, cl.Longitude)
			clients = append(clients, ClientInfo{
				UserID:         cl.UserID,
				Name:           cl.Name,
				Coordinates:    [2]float64{cl.Latitude, cl.Longitude},
				DistanceMeters: geo.DistanceMeters(originLat, originLon, cl.Latitude, cl.Longitude),
				Open:           cl.Open,
				JoinTime:       proto.Timestamp(cl.JoinTime),
			})
		}
		rooms[room.Key] = RoomInfo{ClientCount: len(clients), Clients: clients}
	}

	c.JSON(http.StatusOK, ChatroomsResponse{
		TotalRooms:       len(snapshot),
		TotalConnections: h.inspector.ConnectionCount(),
		TotalSessions:    h.inspector.SessionCount(),
		Rooms:            rooms,
	})
}

// TestMessage injects a system notice into one area.
// POST /api/debug/test-message
func (h *DebugHandlers) TestMessage(c *gin.Context) {
	var req TestMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.Message == "" {
		req.Message = defaultTestMessage
	}

	sent, ok := h.inspector.InjectSystem(req.AreaKey, req.Message)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Area key not found"})
		return
	}

	h.log.Info().Str("area", req.AreaKey).Int("sent_to", sent).Msg("injected test message")
	c.JSON(http.StatusOK, TestMessageResponse{Success: true, SentTo: sent, AreaKey: req.AreaKey})
}

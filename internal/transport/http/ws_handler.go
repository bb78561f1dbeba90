package http

import (
	"context"
	"errors"
	"io"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/localchat/internal/config"
	"github.com/vovakirdan/localchat/internal/core"
	"github.com/vovakirdan/localchat/internal/utils"
)

const writeTimeout = 10 * time.Second

// WSHandler upgrades HTTP connections and bridges them to the relay.
type WSHandler struct {
	relay    *core.Relay
	cfg      config.WSConfig
	validate *validator.Validate
	log      *zerolog.Logger
}

// NewWSHandler builds a new WebSocket handler.
func NewWSHandler(relay *core.Relay, cfg config.WSConfig, logger *zerolog.Logger) stdhttp.Handler {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.PingTimeout <= 0 {
		cfg.PingTimeout = 10 * time.Second
	}
	return &WSHandler{
		relay:    relay,
		cfg:      cfg,
		validate: newValidator(),
		log:      logger,
	}
}

func (h *WSHandler) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("ws accept error")
		return
	}
	defer conn.CloseNow()
	if h.cfg.MaxMessageBytes > 0 {
		conn.SetReadLimit(h.cfg.MaxMessageBytes)
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	tr := newWSTransport(ctx, conn, h.cfg.SendBuffer, h.cfg.PingTimeout)
	client := core.NewConnection(utils.NewID(), tr)
	tr.onPong = client.MarkAlive

	h.relay.Connect(client)
	defer h.relay.Disconnect(client)
	defer tr.markClosed()

	errCh := make(chan error, 2)
	go func() {
		errCh <- h.readLoop(ctx, conn, client)
	}()
	go func() {
		errCh <- tr.writeLoop(ctx)
	}()

	err = <-errCh
	cancel() // stop the other goroutine
	<-errCh

	status := websocket.StatusNormalClosure
	reason := "closing"
	if err != nil && !errors.Is(err, context.Canceled) {
		if errors.Is(err, io.EOF) {
			err = nil
		}
		if s := websocket.CloseStatus(err); s != -1 {
			status = s
		}
		if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
			err = nil
		}
		if err != nil {
			if status == websocket.StatusNormalClosure {
				status = websocket.StatusInternalError
			}
			reason = "connection error"
			h.log.Warn().Err(err).Str("conn_id", client.ID).Msg("ws connection closed with error")
		}
	}

	tr.markClosed()
	_ = conn.Close(status, reason)
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, client *core.Connection) error {
	limiter := newRateLimiter(h.cfg.RateLimit, h.cfg.RateBurst)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if !limiter.allow() {
			h.relay.SendError(client, core.NewError(core.ErrCodeRateLimited, "Too many messages, slow down."))
			continue
		}
		h.dispatch(ctx, client, data)
	}
}

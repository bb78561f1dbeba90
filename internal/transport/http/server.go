package http

import (
	stdhttp "net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/localchat/internal/auth"
	"github.com/vovakirdan/localchat/internal/config"
	"github.com/vovakirdan/localchat/internal/core"
)

// NewServer builds the HTTP server: chat socket, voice files, metrics and debug routes.
// authService may be nil when debug auth is not configured.
func NewServer(relay *core.Relay, authService *auth.Service, cfg *config.Config, logger *zerolog.Logger) *stdhttp.Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(logger))

	router.GET("/health", func(c *gin.Context) {
		c.String(stdhttp.StatusOK, "ok")
	})
	router.GET(cfg.WS.Path, gin.WrapH(NewWSHandler(relay, cfg.WS, logger)))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Clients have used both prefixes for voice files.
	router.Static(cfg.Voice.PublicPath, cfg.Voice.Dir)
	router.Static("/api"+cfg.Voice.PublicPath, cfg.Voice.Dir)

	if cfg.Debug.Enabled {
		debug := NewDebugHandlers(relay, authService, logger)
		group := router.Group("/api/debug")
		if authService != nil {
			group.POST("/token", debug.Token)
		}
		protected := group.Group("")
		if cfg.Debug.JWTSecret != "" && authService != nil {
			protected.Use(AdminMiddleware(authService, logger))
		}
		protected.GET("/chatrooms", debug.Chatrooms)
		protected.POST("/test-message", debug.TestMessage)
	}

	return &stdhttp.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}
}

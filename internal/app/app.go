package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"

	"github.com/vovakirdan/localchat/internal/auth"
	"github.com/vovakirdan/localchat/internal/config"
	"github.com/vovakirdan/localchat/internal/core"
	"github.com/vovakirdan/localchat/internal/maintenance"
	transporthttp "github.com/vovakirdan/localchat/internal/transport/http"
	"github.com/vovakirdan/localchat/internal/voice"
)

const (
	jwtIssuer   = "localchat"
	jwtAudience = "localchat-debug"
)

// App wires together core, voice storage, maintenance and transport layers.
type App struct {
	supervisor *suture.Supervisor
	relay      *core.Relay
	log        *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	transcoder, err := voice.New(voice.Config{
		Dir:             cfg.Voice.Dir,
		PublicPath:      cfg.Voice.PublicPath,
		Format:          cfg.Voice.Format,
		Bitrate:         cfg.Voice.Bitrate,
		FFmpegPath:      cfg.Voice.FFmpegPath,
		Timeout:         cfg.Voice.TranscodeTimeout,
		MaxConcurrent:   cfg.Voice.MaxConcurrent,
		BreakerFailures: cfg.Voice.BreakerFailures,
		BreakerCooldown: cfg.Voice.BreakerCooldown,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init voice storage: %w", err)
	}
	logger.Info().Str("dir", cfg.Voice.Dir).Str("format", cfg.Voice.Format).Msg("voice storage ready")

	relay := core.NewRelay(transcoder, logger)

	var authService *auth.Service
	if cfg.Debug.Enabled && cfg.Debug.JWTSecret != "" {
		authService = auth.NewService(cfg.Debug.AdminPasswordHash, &auth.JWTConfig{
			Secret:   []byte(cfg.Debug.JWTSecret),
			Issuer:   jwtIssuer,
			Audience: jwtAudience,
			TTL:      cfg.Debug.TokenTTL,
		})
	} else if cfg.Debug.Enabled {
		logger.Warn().Msg("debug endpoints enabled without jwt_secret, they are unauthenticated")
	}

	server := transporthttp.NewServer(relay, authService, cfg, logger)

	sup := maintenance.NewSupervisor(maintenance.Config{
		HeartbeatInterval: cfg.Maintenance.HeartbeatInterval,
		IdleSweepInterval: cfg.Maintenance.IdleSweepInterval,
		IdleThreshold:     cfg.Maintenance.IdleThreshold,
		PruneInterval:     cfg.Maintenance.PruneInterval,
		VoiceRetention:    cfg.Maintenance.VoiceRetention,
		ShutdownTimeout:   cfg.Server.ShutdownTimeout,
	}, relay, relay, transcoder, logger)
	sup.Add(maintenance.NewServerService(server, cfg.Server.ShutdownTimeout))

	return &App{
		supervisor: sup,
		relay:      relay,
		log:        logger,
	}, nil
}

// Run starts every supervised service and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	err := a.supervisor.Serve(ctx)
	a.log.Info().
		Int("connections", a.relay.ConnectionCount()).
		Int("sessions", a.relay.SessionCount()).
		Msg("supervisor stopped")
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

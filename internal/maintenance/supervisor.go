package maintenance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/thejerf/suture/v4"
)

// Config sets the intervals of the housekeeping services.
type Config struct {
	HeartbeatInterval time.Duration
	IdleSweepInterval time.Duration
	IdleThreshold     time.Duration
	PruneInterval     time.Duration
	VoiceRetention    time.Duration
	ShutdownTimeout   time.Duration
}

// DefaultConfig returns the production schedule.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval: 60 * time.Second,
		IdleSweepInterval: 30 * time.Minute,
		IdleThreshold:     3 * time.Hour,
		PruneInterval:     24 * time.Hour,
		VoiceRetention:    7 * 24 * time.Hour,
		ShutdownTimeout:   10 * time.Second,
	}
}

// NewSupervisor builds the root supervisor with the three housekeeping services.
// Suture events are reported through logger.
func NewSupervisor(cfg Config, heart Heart, sweeper IdleSweeper, pruner Pruner, logger *zerolog.Logger) *suture.Supervisor {
	def := DefaultConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.IdleSweepInterval <= 0 {
		cfg.IdleSweepInterval = def.IdleSweepInterval
	}
	if cfg.IdleThreshold <= 0 {
		cfg.IdleThreshold = def.IdleThreshold
	}
	if cfg.PruneInterval <= 0 {
		cfg.PruneInterval = def.PruneInterval
	}
	if cfg.VoiceRetention <= 0 {
		cfg.VoiceRetention = def.VoiceRetention
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = def.ShutdownTimeout
	}

	sup := suture.New("localchat", suture.Spec{
		EventHook: eventHook(logger),
		Timeout:   cfg.ShutdownTimeout,
	})
	sup.Add(NewHeartbeatService(heart, cfg.HeartbeatInterval, logger))
	sup.Add(NewIdleSweepService(sweeper, cfg.IdleSweepInterval, cfg.IdleThreshold, logger))
	if pruner != nil {
		sup.Add(NewPruneService(pruner, cfg.PruneInterval, cfg.VoiceRetention, logger))
	}
	return sup
}

func eventHook(logger *zerolog.Logger) suture.EventHook {
	return func(e suture.Event) {
		logger.Warn().Fields(e.Map()).Msg(e.String())
	}
}

// HTTPServer matches the lifecycle of *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// ServerService runs an HTTP server under the supervisor.
type ServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

// NewServerService wraps server. shutdownTimeout bounds graceful shutdown.
func NewServerService(server HTTPServer, shutdownTimeout time.Duration) *ServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 5 * time.Second
	}
	return &ServerService{server: server, shutdownTimeout: shutdownTimeout}
}

// Serve implements suture.Service.
func (s *ServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (s *ServerService) String() string {
	return "http-server"
}

// Package maintenance runs the periodic housekeeping of the relay as supervised services.
package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Heart checks connection liveness.
type Heart interface {
	Heartbeat() int
}

// IdleSweeper evicts sessions that went quiet.
type IdleSweeper interface {
	SweepIdle(threshold time.Duration) []string
}

// Pruner deletes expired voice files.
type Pruner interface {
	Prune(maxAge time.Duration) (int, error)
}

// TickerService calls tick on every interval until the context is canceled.
type TickerService struct {
	name     string
	interval time.Duration
	tick     func()
}

// Serve implements suture.Service.
func (s *TickerService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *TickerService) String() string {
	return s.name
}

// NewHeartbeatService pings every connection each interval and terminates those that
// missed the previous ping.
func NewHeartbeatService(h Heart, interval time.Duration, logger *zerolog.Logger) *TickerService {
	return &TickerService{
		name:     "heartbeat",
		interval: interval,
		tick: func() {
			if n := h.Heartbeat(); n > 0 {
				logger.Info().Int("terminated", n).Msg("heartbeat sweep")
			}
		},
	}
}

// NewIdleSweepService evicts sessions idle for longer than threshold.
func NewIdleSweepService(s IdleSweeper, interval, threshold time.Duration, logger *zerolog.Logger) *TickerService {
	return &TickerService{
		name:     "idle-sweep",
		interval: interval,
		tick: func() {
			if evicted := s.SweepIdle(threshold); len(evicted) > 0 {
				logger.Info().Strs("user_ids", evicted).Msg("idle sweep evicted sessions")
			}
		},
	}
}

// NewPruneService deletes voice files older than retention.
func NewPruneService(p Pruner, interval, retention time.Duration, logger *zerolog.Logger) *TickerService {
	return &TickerService{
		name:     "voice-prune",
		interval: interval,
		tick: func() {
			n, err := p.Prune(retention)
			if err != nil {
				logger.Warn().Err(err).Int("removed", n).Msg("voice prune incomplete")
				return
			}
			if n > 0 {
				logger.Info().Int("removed", n).Msg("pruned expired voice files")
			}
		},
	}
}

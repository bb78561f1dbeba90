// Package voice stores voice notes on disk, converting them with ffmpeg when possible.
package voice

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"

	"github.com/vovakirdan/localchat/internal/metrics"
	"github.com/vovakirdan/localchat/internal/utils"
)

const (
	FormatMP3 = "mp3"
	FormatM4A = "m4a"

	sourceExt = ".webm"
)

var codecs = map[string]string{
	FormatMP3: "libmp3lame",
	FormatM4A: "aac",
}

// Config controls where voice notes go and how they are converted.
type Config struct {
	Dir        string
	PublicPath string
	Format     string
	Bitrate    string
	FFmpegPath string
	Timeout    time.Duration
	// MaxConcurrent bounds simultaneous ffmpeg processes.
	MaxConcurrent int
	// BreakerFailures consecutive ffmpeg failures open the breaker for BreakerCooldown.
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

// Transcoder converts uploaded voice notes into a servable format.
type Transcoder struct {
	cfg     Config
	sem     chan struct{}
	breaker *gobreaker.CircuitBreaker[struct{}]
	log     *zerolog.Logger
	now     func() time.Time
}

// New creates a transcoder and makes sure the storage directory exists.
func New(cfg Config, logger *zerolog.Logger) (*Transcoder, error) {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	if cfg.Dir == "" {
		return nil, errors.New("voice dir is required")
	}
	if _, ok := codecs[cfg.Format]; !ok {
		return nil, fmt.Errorf("unsupported voice format %q", cfg.Format)
	}
	if cfg.PublicPath == "" {
		cfg.PublicPath = "/uploads/voice"
	}
	if cfg.Bitrate == "" {
		cfg.Bitrate = "128k"
	}
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = time.Minute
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create voice dir: %w", err)
	}

	t := &Transcoder{
		cfg: cfg,
		sem: make(chan struct{}, cfg.MaxConcurrent),
		log: logger,
		now: time.Now,
	}
	t.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:    "ffmpeg",
		Timeout: cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("transcoder breaker state changed")
		},
	})
	return t, nil
}

// Dir returns the storage directory.
func (t *Transcoder) Dir() string {
	return t.cfg.Dir
}

// PublicPath returns the URL prefix voice files are served under.
func (t *Transcoder) PublicPath() string {
	return t.cfg.PublicPath
}

// Transcode stores the payload and returns the public URL of the resulting file.
// When conversion fails the original recording is kept as .webm instead; an error is
// returned only if nothing could be stored.
func (t *Transcoder) Transcode(ctx context.Context, audioData, ownerID string) (string, error) {
	// Empty payloads are stored too and normally end up as an empty fallback recording.
	raw := decodePayload(audioData)

	base := fmt.Sprintf("%s_%d_%s", sanitizeOwner(ownerID), t.now().UnixMilli(), utils.RandomSuffix())
	src := filepath.Join(t.cfg.Dir, "temp_"+base+sourceExt)
	if err := os.WriteFile(src, raw, 0o644); err != nil {
		return "", fmt.Errorf("write voice source: %w", err)
	}

	started := time.Now()
	name := "voice_" + base + "." + t.cfg.Format
	err := t.convert(ctx, src, filepath.Join(t.cfg.Dir, name))
	if err == nil {
		if rmErr := os.Remove(src); rmErr != nil {
			t.log.Warn().Err(rmErr).Str("file", src).Msg("remove voice source")
		}
		metrics.TranscodeDuration.WithLabelValues("converted").Observe(time.Since(started).Seconds())
		return t.url(name), nil
	}

	t.log.Warn().Err(err).Str("user_id", ownerID).Msg("transcode failed, keeping original recording")
	name = "voice_" + base + sourceExt
	if renameErr := os.Rename(src, filepath.Join(t.cfg.Dir, name)); renameErr != nil {
		_ = os.Remove(src)
		return "", fmt.Errorf("store voice fallback: %w", renameErr)
	}
	metrics.TranscodeDuration.WithLabelValues("fallback").Observe(time.Since(started).Seconds())
	return t.url(name), nil
}

func (t *Transcoder) convert(ctx context.Context, src, dst string) error {
	select {
	case t.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-t.sem }()

	_, err := t.breaker.Execute(func() (struct{}, error) {
		runCtx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
		defer cancel()

		cmd := exec.CommandContext(runCtx, t.cfg.FFmpegPath,
			"-y", "-i", src, "-vn",
			"-c:a", codecs[t.cfg.Format],
			"-b:a", t.cfg.Bitrate,
			dst,
		)
		cmd.WaitDelay = time.Second
		out, err := cmd.CombinedOutput()
		if err != nil {
			_ = os.Remove(dst)
			return struct{}{}, fmt.Errorf("ffmpeg: %w: %s", err, lastLine(out))
		}
		return struct{}{}, nil
	})
	return err
}

func (t *Transcoder) url(name string) string {
	return path.Join(t.cfg.PublicPath, name)
}

// sanitizeOwner keeps user ids safe to embed in file names.
func sanitizeOwner(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
		if b.Len() >= 64 {
			break
		}
	}
	if b.Len() == 0 {
		return "anon"
	}
	return b.String()
}

func lastLine(out []byte) string {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	return lines[len(lines)-1]
}

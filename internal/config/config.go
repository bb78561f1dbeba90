package config

import "time"

// Config holds server configuration values.
type Config struct {
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	WS          WSConfig          `mapstructure:"ws" yaml:"ws"`
	Voice       VoiceConfig       `mapstructure:"voice" yaml:"voice"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" yaml:"maintenance"`
	Debug       DebugConfig       `mapstructure:"debug" yaml:"debug"`
}

// ServerConfig covers the HTTP listener and logging.
type ServerConfig struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format"`
}

// WSConfig covers the chat socket.
type WSConfig struct {
	Path            string        `mapstructure:"path" yaml:"path"`
	MaxMessageBytes int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	RateLimit       float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst       int           `mapstructure:"rate_burst" yaml:"rate_burst"`
	SendBuffer      int           `mapstructure:"send_buffer" yaml:"send_buffer"`
	PingTimeout     time.Duration `mapstructure:"ping_timeout" yaml:"ping_timeout"`
}

// VoiceConfig covers voice note storage and conversion.
type VoiceConfig struct {
	Dir              string        `mapstructure:"dir" yaml:"dir"`
	PublicPath       string        `mapstructure:"public_path" yaml:"public_path"`
	Format           string        `mapstructure:"format" yaml:"format"`
	Bitrate          string        `mapstructure:"bitrate" yaml:"bitrate"`
	FFmpegPath       string        `mapstructure:"ffmpeg_path" yaml:"ffmpeg_path"`
	TranscodeTimeout time.Duration `mapstructure:"transcode_timeout" yaml:"transcode_timeout"`
	MaxConcurrent    int           `mapstructure:"max_concurrent" yaml:"max_concurrent"`
	BreakerFailures  uint32        `mapstructure:"breaker_failures" yaml:"breaker_failures"`
	BreakerCooldown  time.Duration `mapstructure:"breaker_cooldown" yaml:"breaker_cooldown"`
}

// MaintenanceConfig covers the periodic sweeps.
type MaintenanceConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" yaml:"heartbeat_interval"`
	IdleSweepInterval time.Duration `mapstructure:"idle_sweep_interval" yaml:"idle_sweep_interval"`
	IdleThreshold     time.Duration `mapstructure:"idle_threshold" yaml:"idle_threshold"`
	PruneInterval     time.Duration `mapstructure:"prune_interval" yaml:"prune_interval"`
	VoiceRetention    time.Duration `mapstructure:"voice_retention" yaml:"voice_retention"`
}

// DebugConfig covers the inspection endpoints.
type DebugConfig struct {
	Enabled           bool          `mapstructure:"enabled" yaml:"enabled"`
	JWTSecret         string        `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	AdminPasswordHash string        `mapstructure:"admin_password_hash" yaml:"admin_password_hash"`
	TokenTTL          time.Duration `mapstructure:"token_ttl" yaml:"token_ttl"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:              ":3000",
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   5 * time.Second,
			LogLevel:          "info",
			LogFormat:         "console",
		},
		WS: WSConfig{
			Path:            "/ws/localchat",
			MaxMessageBytes: 10 << 20,
			RateLimit:       20,
			RateBurst:       40,
			SendBuffer:      64,
			PingTimeout:     10 * time.Second,
		},
		Voice: VoiceConfig{
			Dir:              "uploads/voice",
			PublicPath:       "/uploads/voice",
			Format:           "mp3",
			Bitrate:          "128k",
			FFmpegPath:       "ffmpeg",
			TranscodeTimeout: 30 * time.Second,
			MaxConcurrent:    4,
			BreakerFailures:  5,
			BreakerCooldown:  time.Minute,
		},
		Maintenance: MaintenanceConfig{
			HeartbeatInterval: 60 * time.Second,
			IdleSweepInterval: 30 * time.Minute,
			IdleThreshold:     3 * time.Hour,
			PruneInterval:     24 * time.Hour,
			VoiceRetention:    7 * 24 * time.Hour,
		},
		Debug: DebugConfig{
			Enabled:  true,
			TokenTTL: time.Hour,
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the fields exposed as command line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Server.Addr != "" {
		c.Server.Addr = other.Server.Addr
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}
	if other.Server.LogFormat != "" {
		c.Server.LogFormat = other.Server.LogFormat
	}
	if other.Server.ReadHeaderTimeout != 0 {
		c.Server.ReadHeaderTimeout = other.Server.ReadHeaderTimeout
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
	if other.Voice.FFmpegPath != "" {
		c.Voice.FFmpegPath = other.Voice.FFmpegPath
	}
	if other.Voice.Dir != "" {
		c.Voice.Dir = other.Voice.Dir
	}
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envPrefix            = "LOCALCHAT"
	envConfigDefaultPath = "LOCALCHAT_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars < caller overrides.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v, cfg)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			// try reading again in case it was just written
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	return cfg, configPath, nil
}

// setDefaults registers every key so env vars can override values absent from the file.
func setDefaults(v *viper.Viper, cfg Config) {
	defaults := map[string]any{
		"server.addr":                     cfg.Server.Addr,
		"server.read_header_timeout":      cfg.Server.ReadHeaderTimeout,
		"server.shutdown_timeout":         cfg.Server.ShutdownTimeout,
		"server.log_level":                cfg.Server.LogLevel,
		"server.log_format":               cfg.Server.LogFormat,
		"ws.path":                         cfg.WS.Path,
		"ws.max_message_bytes":            cfg.WS.MaxMessageBytes,
		"ws.rate_limit":                   cfg.WS.RateLimit,
		"ws.rate_burst":                   cfg.WS.RateBurst,
		"ws.send_buffer":                  cfg.WS.SendBuffer,
		"ws.ping_timeout":                 cfg.WS.PingTimeout,
		"voice.dir":                       cfg.Voice.Dir,
		"voice.public_path":               cfg.Voice.PublicPath,
		"voice.format":                    cfg.Voice.Format,
		"voice.bitrate":                   cfg.Voice.Bitrate,
		"voice.ffmpeg_path":               cfg.Voice.FFmpegPath,
		"voice.transcode_timeout":         cfg.Voice.TranscodeTimeout,
		"voice.max_concurrent":            cfg.Voice.MaxConcurrent,
		"voice.breaker_failures":          cfg.Voice.BreakerFailures,
		"voice.breaker_cooldown":          cfg.Voice.BreakerCooldown,
		"maintenance.heartbeat_interval":  cfg.Maintenance.HeartbeatInterval,
		"maintenance.idle_sweep_interval": cfg.Maintenance.IdleSweepInterval,
		"maintenance.idle_threshold":      cfg.Maintenance.IdleThreshold,
		"maintenance.prune_interval":      cfg.Maintenance.PruneInterval,
		"maintenance.voice_retention":     cfg.Maintenance.VoiceRetention,
		"debug.enabled":                   cfg.Debug.Enabled,
		"debug.jwt_secret":                cfg.Debug.JWTSecret,
		"debug.admin_password_hash":       cfg.Debug.AdminPasswordHash,
		"debug.token_ttl":                 cfg.Debug.TokenTTL,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

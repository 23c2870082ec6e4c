package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envConfigPath       = "RELAY_CONFIG"
	envPrefix           = "RELAY_"
	envVoiceflowAPIKey  = "API_KEY"
	envVoiceflowVersion = "VERSION_ID"
	envVerifyToken      = "VERIFY_TOKEN"
	envPageAccessToken  = "PAGE_ACCESS_TOKEN"
	envPort             = "PORT"
	envTelegramBotToken = "TELEGRAM_BOT_TOKEN"
	envTelegramAllow    = "TELEGRAM_ALLOW_FROM"
)

// Config is the root runtime configuration. It is built once at startup and
// passed explicitly to every component.
type Config struct {
	Server   ServerConfig   `yaml:"server" koanf:"server"`
	Runtime  RuntimeConfig  `yaml:"runtime" koanf:"runtime"`
	Channels ChannelsConfig `yaml:"channels" koanf:"channels"`
	Relay    RelayConfig    `yaml:"relay" koanf:"relay"`
	Logging  LoggingConfig  `yaml:"logging" koanf:"logging"`
}

// ServerConfig configures the HTTP listener shared by webhooks and status routes.
type ServerConfig struct {
	Host                string `yaml:"host" koanf:"host"`
	Port                int    `yaml:"port" koanf:"port"`
	DrainTimeoutSeconds int    `yaml:"drain_timeout_seconds" koanf:"drain_timeout_seconds"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `yaml:"format,omitempty" koanf:"format"`
	Level     string `yaml:"level,omitempty" koanf:"level"`
	AddSource bool   `yaml:"add_source,omitempty" koanf:"add_source"`
}

// RuntimeConfig selects and configures the dialogue runtime.
type RuntimeConfig struct {
	Provider  string               `yaml:"provider" koanf:"provider"`
	Voiceflow VoiceflowConfig      `yaml:"voiceflow" koanf:"voiceflow"`
	OpenAI    OpenAIProviderConfig `yaml:"openai" koanf:"openai"`
	Session   SessionConfig        `yaml:"session" koanf:"session"`
}

// VoiceflowConfig configures the Voiceflow general-runtime client.
type VoiceflowConfig struct {
	BaseURL               string `yaml:"base_url" koanf:"base_url"`
	APIKey                string `yaml:"api_key" koanf:"api_key"`
	VersionID             string `yaml:"version_id" koanf:"version_id"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" koanf:"request_timeout_seconds"`
}

// OpenAIProviderConfig configures the OpenAI dialogue runtime.
type OpenAIProviderConfig struct {
	BaseURL               string `yaml:"base_url" koanf:"base_url"`
	APIKeyEnv             string `yaml:"api_key_env" koanf:"api_key_env"`
	Model                 string `yaml:"model" koanf:"model"`
	Organization          string `yaml:"organization" koanf:"organization"`
	Project               string `yaml:"project" koanf:"project"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" koanf:"request_timeout_seconds"`
}

// SessionConfig controls how chat senders map to runtime conversation ids.
type SessionConfig struct {
	Mode     string `yaml:"mode" koanf:"mode"`
	SharedID string `yaml:"shared_id" koanf:"shared_id"`
}

// ChannelsConfig stores transport adapter settings.
type ChannelsConfig struct {
	Messenger MessengerConfig `yaml:"messenger" koanf:"messenger"`
	Telegram  TelegramConfig  `yaml:"telegram" koanf:"telegram"`
}

// MessengerConfig configures the Facebook Messenger webhook channel.
type MessengerConfig struct {
	Enabled               bool   `yaml:"enabled" koanf:"enabled"`
	VerifyToken           string `yaml:"verify_token" koanf:"verify_token"`
	PageAccessToken       string `yaml:"page_access_token" koanf:"page_access_token"`
	GraphBaseURL          string `yaml:"graph_base_url" koanf:"graph_base_url"`
	APIVersion            string `yaml:"api_version" koanf:"api_version"`
	RequestTimeoutSeconds int    `yaml:"request_timeout_seconds" koanf:"request_timeout_seconds"`
}

// TelegramConfig configures Telegram channel integration.
type TelegramConfig struct {
	Enabled   bool     `yaml:"enabled" koanf:"enabled"`
	Token     string   `yaml:"token" koanf:"token"`
	AllowFrom []string `yaml:"allow_from" koanf:"allow_from"`
}

// RelayConfig controls how runtime traces become chat messages.
type RelayConfig struct {
	MaxButtons   int    `yaml:"max_buttons" koanf:"max_buttons"`
	ShortChoice  string `yaml:"short_choice" koanf:"short_choice"`
	CardTitle    string `yaml:"card_title" koanf:"card_title"`
	CardSubtitle string `yaml:"card_subtitle" koanf:"card_subtitle"`
}

// LoadConfig loads the configuration and validates it for serving.
func LoadConfig(path string) (*Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Load resolves the config file and overlays environment variables on top of
// defaults without validating. An empty path falls back to RELAY_CONFIG and
// then to cwd-local config.yaml files; a missing fallback file is not an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	configPath, err := findConfigPath(path)
	if err != nil {
		return nil, err
	}
	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("read config %s: %w", configPath, err)
		}
	}

	// RELAY_CHANNELS__MESSENGER__VERIFY_TOKEN -> channels.messenger.verify_token
	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		key := strings.TrimPrefix(s, envPrefix)
		if key == "CONFIG" || strings.HasPrefix(key, "LOG_") {
			return ""
		}
		return strings.ReplaceAll(strings.ToLower(key), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := DefaultConfig()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// applyEnvOverrides injects the well-known deployment variables on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if value := strings.TrimSpace(os.Getenv(envVoiceflowAPIKey)); value != "" {
		cfg.Runtime.Voiceflow.APIKey = value
	}
	if value := strings.TrimSpace(os.Getenv(envVoiceflowVersion)); value != "" {
		cfg.Runtime.Voiceflow.VersionID = value
	}
	if value := strings.TrimSpace(os.Getenv(envVerifyToken)); value != "" {
		cfg.Channels.Messenger.VerifyToken = value
	}
	if value := strings.TrimSpace(os.Getenv(envPageAccessToken)); value != "" {
		cfg.Channels.Messenger.PageAccessToken = value
	}
	if value := strings.TrimSpace(os.Getenv(envPort)); value != "" {
		if port, err := strconv.Atoi(value); err == nil && port > 0 {
			cfg.Server.Port = port
		}
	}
	if token := strings.TrimSpace(os.Getenv(envTelegramBotToken)); token != "" {
		cfg.Channels.Telegram.Token = token
	}
	if rawAllowFrom := strings.TrimSpace(os.Getenv(envTelegramAllow)); rawAllowFrom != "" {
		cfg.Channels.Telegram.AllowFrom = parseCSV(rawAllowFrom)
	}
}

// parseCSV splits comma-separated values and returns a trimmed compact slice.
func parseCSV(input string) []string {
	parts := strings.Split(input, ",")
	clean := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		clean = append(clean, trimmed)
	}

	return slices.Clip(clean)
}

// findConfigPath resolves the active config file location.
//
// Precedence is the explicit path, then RELAY_CONFIG, then cwd-local fallback
// paths. An explicit path or RELAY_CONFIG must exist; fallbacks are optional.
func findConfigPath(explicit string) (string, error) {
	if value := strings.TrimSpace(explicit); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("config path does not point to a file: %s", value)
	}

	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.yaml"),
		filepath.Join(cwd, "config", "config.yaml"),
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, nil
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("access config %s: %w", candidate, err)
		}
	}

	return "", nil
}

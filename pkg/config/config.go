package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix          = "IDOBRIDGE_"
	envConfigPath      = "IDOBRIDGE_CONFIG"
	envIdobataName     = "IDOBATA_NAME"
	envIdobataAPIToken = "IDOBATA_API_TOKEN"
	envIdobataURL      = "IDOBATA_URL"
	envIdobataEventURL = "IDOBATA_EVENT_URL"
	envResponderAllow  = "IDOBRIDGE_ALLOW_ROOMS"
)

// DefaultIdobataURL is the production origin used when no override is configured.
const DefaultIdobataURL = "https://idobata.io/"

const defaultBotName = "idobridge"

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Idobata   IdobataConfig   `json:"idobata"`
	Responder ResponderConfig `json:"responder"`
	Providers ProvidersConfig `json:"providers"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty"`
	Level     string `json:"level,omitempty"`
	AddSource bool   `json:"add_source,omitempty"`
}

// IdobataConfig is the adapter's identity and endpoints.
type IdobataConfig struct {
	Name     string `json:"name"`
	APIToken string `json:"api_token"`
	URL      string `json:"url,omitempty"`
	EventURL string `json:"event_url,omitempty"`
}

// ResponderConfig selects the reply logic the gateway runs for each mention.
// HistoryTurns is how many earlier exchanges per room the openai responder
// replays; zero keeps every turn stateless.
type ResponderConfig struct {
	Type         string   `json:"type"`
	Model        string   `json:"model,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
	AllowRooms   []string `json:"allow_rooms,omitempty"`
	HistoryTurns int      `json:"history_turns,omitempty"`
}

// ProvidersConfig stores per-provider connection settings.
type ProvidersConfig struct {
	OpenCode OpenCodeProviderConfig `json:"opencode"`
	OpenAI   OpenAIProviderConfig   `json:"openai"`
}

// OpenCodeProviderConfig configures the opencode server client. Agent picks the
// server-side agent that answers; empty uses the server default.
type OpenCodeProviderConfig struct {
	BaseURL               string `json:"base_url"`
	Username              string `json:"username"`
	PasswordEnv           string `json:"password_env"`
	Agent                 string `json:"agent,omitempty"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// OpenAIProviderConfig configures the OpenAI provider client.
type OpenAIProviderConfig struct {
	APIKeyEnv             string `json:"api_key_env"`
	BaseURL               string `json:"base_url"`
	Organization          string `json:"organization"`
	Project               string `json:"project"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds"`
}

// GatewayConfig configures the status server and turn workers.
type GatewayConfig struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Workers   int    `json:"workers"`
	QueueSize int    `json:"queue_size"`
}

// MessagesURL returns the messaging API base, falling back to the production origin.
func (c IdobataConfig) MessagesURL() string {
	if value := strings.TrimSpace(c.URL); value != "" {
		return value
	}
	return DefaultIdobataURL
}

// StreamURL returns the event stream base. It follows URL when unset.
func (c IdobataConfig) StreamURL() string {
	if value := strings.TrimSpace(c.EventURL); value != "" {
		return value
	}
	return c.MessagesURL()
}

// BotName returns the display name sent as User-Agent.
func (c IdobataConfig) BotName() string {
	if value := strings.TrimSpace(c.Name); value != "" {
		return value
	}
	return defaultBotName
}

// Validate reports configuration the adapter cannot run with.
func (c IdobataConfig) Validate() error {
	if strings.TrimSpace(c.APIToken) == "" {
		return errors.New("idobata.api_token is required")
	}
	return nil
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
//
// A missing cwd-local file is not an error so the bridge can run from env alone.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := load(configPath, &cfg); err != nil {
		return nil, err
	}

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// load layers the config file (if any) and IDOBRIDGE_* variables into cfg.
// The yaml parser reads JSON as well. Nested keys use a double underscore, so
// IDOBRIDGE_GATEWAY__QUEUE_SIZE sets gateway.queue_size.
func load(path string, cfg *Config) error {
	k := koanf.New(".")
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return fmt.Errorf("load env overrides: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return fmt.Errorf("decode config: %w", err)
	}

	return nil
}

func envKey(name string) string {
	name = strings.TrimPrefix(name, envPrefix)
	return strings.ToLower(strings.ReplaceAll(name, "__", "."))
}

// applyEnvOverrides injects selected env-driven settings on top of file config.
func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}

	if name := strings.TrimSpace(os.Getenv(envIdobataName)); name != "" {
		cfg.Idobata.Name = name
	}
	if token := strings.TrimSpace(os.Getenv(envIdobataAPIToken)); token != "" {
		cfg.Idobata.APIToken = token
	}
	if url := strings.TrimSpace(os.Getenv(envIdobataURL)); url != "" {
		cfg.Idobata.URL = url
	}
	if url := strings.TrimSpace(os.Getenv(envIdobataEventURL)); url != "" {
		cfg.Idobata.EventURL = url
	}

	if rawAllow := strings.TrimSpace(os.Getenv(envResponderAllow)); rawAllow != "" {
		cfg.Responder.AllowRooms = parseCSV(rawAllow)
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
// Precedence is IDOBRIDGE_CONFIG first, then cwd-local fallback paths. An empty
// path with a nil error means no file was found.
func findConfigPath() (string, error) {
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
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", nil
}

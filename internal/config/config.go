package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Storage StorageConfig
	Sync    SyncConfig
	Log     LogConfig
	Auth    AuthConfig
}

type ServerConfig struct {
	Port int
}

type AIConfig struct {
	BaseURL      string
	APIKey       string
	EmbedModel   string
	ExtractModel string
	// Timeout is the per-request budget for AI calls, as a Go duration string.
	Timeout string
	// RateLimit caps AI-backed calls per user per window.
	RateLimit  int
	RateWindow string
}

type StorageConfig struct {
	DataDir string
}

type SyncConfig struct {
	// Debounce is the quiet period after an edit before indexing runs.
	Debounce string
}

type LogConfig struct {
	Level string
}

type AuthConfig struct {
	// Tokens holds "token:userID" pairs separated by commas. Secret, so it
	// is only ever read from the environment.
	Tokens string
	// MCPOwner is the user ID the stdio MCP server acts as.
	MCPOwner string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 4300,
		},
		AI: AIConfig{
			BaseURL:      "https://api.openai.com",
			EmbedModel:   "text-embedding-3-small",
			ExtractModel: "gpt-4o-mini",
			Timeout:      "15s",
			RateLimit:    30,
			RateWindow:   "1m",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Sync: SyncConfig{
			Debounce: "2s",
		},
		Log: LogConfig{
			Level: "info",
		},
		Auth: AuthConfig{
			MCPOwner: "local",
		},
	}
}

// Load reads configuration in layers: defaults, the JSON file backend at
// $XDG_CONFIG_HOME/notelink/config.json, a .env file in the working
// directory if present, then NOTELINK_* environment variables. Later layers
// win. Secrets (API key, auth tokens) come only from the environment.
func Load() (Config, error) {
	// Best effort: a missing .env file is not an error.
	_ = godotenv.Load()
	return loadWith(newFileBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.AI.APIKey == "" {
		return fmt.Errorf("missing required config: AI API key. Set it via environment variable NOTELINK_AI_API_KEY")
	}
	if _, err := time.ParseDuration(c.AI.Timeout); err != nil {
		return fmt.Errorf("invalid ai.timeout %q: %w", c.AI.Timeout, err)
	}
	if _, err := time.ParseDuration(c.Sync.Debounce); err != nil {
		return fmt.Errorf("invalid sync.debounce %q: %w", c.Sync.Debounce, err)
	}
	if _, err := time.ParseDuration(c.AI.RateWindow); err != nil {
		return fmt.Errorf("invalid ai.rate_window %q: %w", c.AI.RateWindow, err)
	}
	if c.Auth.Tokens != "" {
		if _, err := parseTokens(c.Auth.Tokens); err != nil {
			return err
		}
	}
	return nil
}

// AITimeout returns the parsed AI request timeout. validate already checked
// the string, so parse errors cannot happen on a loaded Config.
func (c Config) AITimeout() time.Duration {
	d, _ := time.ParseDuration(c.AI.Timeout)
	return d
}

func (c Config) SyncDebounce() time.Duration {
	d, _ := time.ParseDuration(c.Sync.Debounce)
	return d
}

func (c Config) AIRateWindow() time.Duration {
	d, _ := time.ParseDuration(c.AI.RateWindow)
	return d
}

// TokenMap returns the bearer-token to user-ID mapping. Empty when no
// tokens are configured, in which case the HTTP surface rejects everything.
func (c Config) TokenMap() map[string]string {
	m, _ := parseTokens(c.Auth.Tokens)
	return m
}

func parseTokens(raw string) (map[string]string, error) {
	m := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		token, user, ok := strings.Cut(pair, ":")
		if !ok || token == "" || user == "" {
			return nil, fmt.Errorf("invalid auth token entry %q, want token:user", pair)
		}
		m[token] = user
	}
	return m, nil
}
